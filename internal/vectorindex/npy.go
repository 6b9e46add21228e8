package vectorindex

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Matrices are stored in the NumPy .npy format (2-D, C order) so that files
// produced by the offline precompute tooling load unchanged.

var npyMagic = []byte("\x93NUMPY")

// ErrInvalidFile indicates a file that is not a usable .npy matrix.
var ErrInvalidFile = errors.New("invalid matrix file")

const (
	// maxHeaderLen bounds the header read before it is parsed.
	maxHeaderLen = 1 << 16
	// maxElements bounds rows*dim; taxonomies are thousands of rows of at
	// most a few thousand dimensions.
	maxElements = 1 << 28
	// readChunk is the number of values decoded per read, so a truncated
	// file fails before its declared size is allocated.
	readChunk = 1 << 16
)

var (
	descrRe   = regexp.MustCompile(`'descr':\s*'([^']*)'`)
	fortranRe = regexp.MustCompile(`'fortran_order':\s*(True|False)`)
	shapeRe   = regexp.MustCompile(`'shape':\s*\(([^)]*)\)`)
)

// Load reads a matrix from path. A missing file yields an error matching
// os.ErrNotExist.
func Load(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening matrix: %w", err)
	}
	defer f.Close()

	idx, err := Read(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return idx, nil
}

// Save writes the matrix to path atomically, creating parent directories.
func Save(path string, idx *Index) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating matrix directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp matrix file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	if err := Write(w, idx); err != nil {
		tmp.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("flushing matrix: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing matrix: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming matrix: %w", err)
	}
	return nil
}

// Write encodes the matrix as a version 1.0 .npy file of little-endian float32.
func Write(w io.Writer, idx *Index) error {
	header := fmt.Sprintf("{'descr': '<f4', 'fortran_order': False, 'shape': (%d, %d), }", idx.rows, idx.dim)
	// magic(6) + version(2) + length(2) + header + '\n', padded to 64 bytes
	total := len(npyMagic) + 4 + len(header) + 1
	if pad := total % 64; pad != 0 {
		header += strings.Repeat(" ", 64-pad)
	}
	header += "\n"
	if len(header) > math.MaxUint16 {
		return fmt.Errorf("%w: header too long", ErrInvalidFile)
	}

	var buf bytes.Buffer
	buf.Write(npyMagic)
	buf.Write([]byte{1, 0})
	_ = binary.Write(&buf, binary.LittleEndian, uint16(len(header)))
	buf.WriteString(header)
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("writing matrix header: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, idx.data); err != nil {
		return fmt.Errorf("writing matrix data: %w", err)
	}
	return nil
}

// Read decodes a 2-D .npy matrix of float32 or float64 values.
// float64 data is narrowed to float32.
func Read(r io.Reader) (*Index, error) {
	magic := make([]byte, len(npyMagic)+2)
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("%w: short header: %v", ErrInvalidFile, err)
	}
	if !bytes.Equal(magic[:len(npyMagic)], npyMagic) {
		return nil, fmt.Errorf("%w: bad magic", ErrInvalidFile)
	}

	var hlen int
	switch major := magic[len(npyMagic)]; major {
	case 1:
		var n uint16
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, fmt.Errorf("%w: header length: %v", ErrInvalidFile, err)
		}
		hlen = int(n)
	case 2, 3:
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, fmt.Errorf("%w: header length: %v", ErrInvalidFile, err)
		}
		hlen = int(n)
	default:
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidFile, major)
	}

	if hlen > maxHeaderLen {
		return nil, fmt.Errorf("%w: header length %d exceeds %d", ErrInvalidFile, hlen, maxHeaderLen)
	}
	header := make([]byte, hlen)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrInvalidFile, err)
	}

	descr, rows, dim, err := parseHeader(string(header))
	if err != nil {
		return nil, err
	}

	var order binary.ByteOrder = binary.LittleEndian
	if strings.HasPrefix(descr, ">") {
		order = binary.BigEndian
	}

	var width int
	switch strings.TrimLeft(descr, "<>=|") {
	case "f4":
		width = 4
	case "f8":
		width = 8
	default:
		return nil, fmt.Errorf("%w: unsupported dtype %q", ErrInvalidFile, descr)
	}

	data, err := readValues(r, order, width, rows*dim)
	if err != nil {
		return nil, err
	}
	return fromFlat(rows, dim, data)
}

// readValues decodes n values of the given byte width in chunks, narrowing
// float64 to float32.
func readValues(r io.Reader, order binary.ByteOrder, width, n int) ([]float32, error) {
	data := make([]float32, 0, min(n, readChunk))
	buf := make([]byte, min(n, readChunk)*width)
	for len(data) < n {
		chunk := min(n-len(data), readChunk)
		b := buf[:chunk*width]
		if _, err := io.ReadFull(r, b); err != nil {
			return nil, fmt.Errorf("%w: data: read %d of %d values: %v", ErrInvalidFile, len(data), n, err)
		}
		for i := 0; i < chunk; i++ {
			if width == 4 {
				data = append(data, math.Float32frombits(order.Uint32(b[i*4:])))
			} else {
				data = append(data, float32(math.Float64frombits(order.Uint64(b[i*8:]))))
			}
		}
	}
	return data, nil
}

func parseHeader(h string) (descr string, rows, dim int, err error) {
	m := descrRe.FindStringSubmatch(h)
	if m == nil {
		return "", 0, 0, fmt.Errorf("%w: missing descr", ErrInvalidFile)
	}
	descr = m[1]

	if m := fortranRe.FindStringSubmatch(h); m != nil && m[1] == "True" {
		return "", 0, 0, fmt.Errorf("%w: fortran order not supported", ErrInvalidFile)
	}

	m = shapeRe.FindStringSubmatch(h)
	if m == nil {
		return "", 0, 0, fmt.Errorf("%w: missing shape", ErrInvalidFile)
	}
	var dims []int
	for _, part := range strings.Split(m[1], ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, convErr := strconv.Atoi(part)
		if convErr != nil || n < 0 {
			return "", 0, 0, fmt.Errorf("%w: bad shape %q", ErrInvalidFile, m[1])
		}
		dims = append(dims, n)
	}
	if len(dims) != 2 {
		return "", 0, 0, fmt.Errorf("%w: want 2-D matrix, got shape (%s)", ErrInvalidFile, m[1])
	}
	rows, dim = dims[0], dims[1]
	if rows > 0 && dim == 0 {
		return "", 0, 0, fmt.Errorf("%w: %d rows of dimension 0", ErrInvalidFile, rows)
	}
	if dim > 0 && rows > maxElements/dim {
		return "", 0, 0, fmt.Errorf("%w: shape (%d, %d) exceeds %d values", ErrInvalidFile, rows, dim, maxElements)
	}
	return descr, rows, dim, nil
}

package vectorindex

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "emb_cache", "cat_mat.npy")
	idx, err := New([][]float32{{1, 2, 3}, {4, 5, 6}})
	require.NoError(t, err)

	require.NoError(t, Save(path, idx))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Len())
	assert.Equal(t, 3, got.Dim())
	assert.Equal(t, []float32{4, 5, 6}, got.Row(1))

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches, "temp file must not be left behind")
}

func TestWrite_HeaderAligned(t *testing.T) {
	idx, err := New([][]float32{{1}})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, idx))

	data := buf.Bytes()
	require.True(t, bytes.HasPrefix(data, npyMagic))
	hlen := int(binary.LittleEndian.Uint16(data[8:10]))
	assert.Equal(t, 0, (10+hlen)%64)
	assert.Equal(t, byte('\n'), data[10+hlen-1])
	assert.Contains(t, string(data[10:10+hlen]), "'shape': (1, 1)")
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "risk_mat.npy"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRead_Float64(t *testing.T) {
	header := "{'descr': '<f8', 'fortran_order': False, 'shape': (2, 2), }"
	var buf bytes.Buffer
	buf.Write(npyMagic)
	buf.Write([]byte{1, 0})
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint16(len(header)+1)))
	buf.WriteString(header + "\n")
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, []float64{0.5, 1.5, 2.5, 3.5}))

	idx, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, []float32{2.5, 3.5}, idx.Row(1))
}

func TestRead_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		header string
		data   []byte
	}{
		{"bad magic", "", []byte("NOTNPY\x01\x00")},
		{"one dimensional", "{'descr': '<f4', 'fortran_order': False, 'shape': (3,), }", nil},
		{"fortran order", "{'descr': '<f4', 'fortran_order': True, 'shape': (1, 1), }", nil},
		{"integer dtype", "{'descr': '<i4', 'fortran_order': False, 'shape': (1, 1), }", make([]byte, 4)},
		{"truncated data", "{'descr': '<f4', 'fortran_order': False, 'shape': (4, 4), }", make([]byte, 8)},
		{"huge shape", "{'descr': '<f4', 'fortran_order': False, 'shape': (4611686018427387904, 4), }", make([]byte, 16)},
		{"overflowing shape", "{'descr': '<f8', 'fortran_order': False, 'shape': (9223372036854775807, 9223372036854775807), }", nil},
		{"rows without dimension", "{'descr': '<f4', 'fortran_order': False, 'shape': (4611686018427387904, 0), }", nil},
		{"declared larger than data", "{'descr': '<f4', 'fortran_order': False, 'shape': (100000, 1024), }", make([]byte, 4096)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if tt.header == "" {
				buf.Write(tt.data)
			} else {
				buf.Write(npyMagic)
				buf.Write([]byte{1, 0})
				require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint16(len(tt.header))))
				buf.WriteString(tt.header)
				buf.Write(tt.data)
			}

			_, err := Read(&buf)
			assert.ErrorIs(t, err, ErrInvalidFile)
		})
	}
}

func TestRead_HeaderLengthBounded(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(npyMagic)
	buf.Write([]byte{2, 0})
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(1<<31)))

	_, err := Read(&buf)
	assert.ErrorIs(t, err, ErrInvalidFile)
}

func TestRead_Float64LargerThanChunk(t *testing.T) {
	rows, dim := 3, readChunk/2+1
	var buf bytes.Buffer
	header := fmt.Sprintf("{'descr': '<f8', 'fortran_order': False, 'shape': (%d, %d), }", rows, dim)
	buf.Write(npyMagic)
	buf.Write([]byte{1, 0})
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint16(len(header))))
	buf.WriteString(header)
	for i := 0; i < rows*dim; i++ {
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, float64(i%7)))
	}

	idx, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, rows, idx.Len())
	assert.Equal(t, dim, idx.Dim())
	last := idx.Row(rows - 1)
	assert.Equal(t, float32((rows*dim-1)%7), last[dim-1])
}

func TestSaveLoad_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.npy")
	idx, err := New(nil)
	require.NoError(t, err)
	require.NoError(t, Save(path, idx))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Len())
}

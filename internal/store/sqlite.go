package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fyrsmithlabs/devaudit/internal/report"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// timeLayout sorts lexicographically, which keeps max() in SQL correct.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const dateLayout = "2006-01-02"

const schema = `
CREATE TABLE IF NOT EXISTS deviations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	owner TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'draft',
	user_input_json TEXT NOT NULL,
	selected_json TEXT,
	sections_json TEXT,
	chosen_variants_json TEXT,
	view_mode_json TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_deviations_owner ON deviations(owner, id);
CREATE TABLE IF NOT EXISTS authorized_users (
	user_id TEXT PRIMARY KEY,
	authorized_date TEXT NOT NULL
);
`

// SQLite implements Records and Grants on a single SQLite database.
type SQLite struct {
	db       *sql.DB
	mu       sync.RWMutex
	now      func() time.Time
	location *time.Location
	logger   *zap.Logger
}

// Option configures SQLite.
type Option func(*SQLite)

// WithClock overrides the clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *SQLite) { s.now = now }
}

// WithLocation sets the reference timezone for daily grants.
func WithLocation(loc *time.Location) Option {
	return func(s *SQLite) { s.location = loc }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *SQLite) { s.logger = l }
}

// OpenSQLite opens (or creates) the database at path. Use ":memory:" for an
// in-process database.
func OpenSQLite(path string, opts ...Option) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	s := &SQLite{
		db:       db,
		now:      time.Now,
		location: time.UTC,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	s.logger.Debug("sqlite store opened", zap.String("path", path))
	return s, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Create implements Records.
func (s *SQLite) Create(ctx context.Context, owner string, input report.UserInput) (*report.Record, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	inputJSON, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("encoding user input: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO deviations (owner, status, user_input_json, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		owner, string(report.StatusDraft), string(inputJSON), ts.Format(timeLayout), ts.Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("inserting deviation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading deviation id: %w", err)
	}

	return &report.Record{
		ID:        id,
		Owner:     owner,
		Status:    report.StatusDraft,
		UserInput: input,
		CreatedAt: ts,
		UpdatedAt: ts,
	}, nil
}

const selectColumns = `id, owner, status, user_input_json, selected_json, sections_json,
	chosen_variants_json, view_mode_json, created_at, updated_at`

// Get implements Records.
func (s *SQLite) Get(ctx context.Context, id int64) (*report.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM deviations WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("reading deviation %d: %w", id, err)
	}
	return rec, nil
}

// ListByOwner implements Records.
func (s *SQLite) ListByOwner(ctx context.Context, owner string, limit int) ([]*report.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM deviations WHERE owner = ? ORDER BY id DESC LIMIT ?`, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("listing deviations: %w", err)
	}
	defer rows.Close()

	var out []*report.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning deviation: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Update implements Records.
func (s *SQLite) Update(ctx context.Context, id int64, fields Fields) error {
	var (
		sets []string
		args []any
	)
	add := func(column string, v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encoding %s: %w", column, err)
		}
		sets = append(sets, column+" = ?")
		args = append(args, string(data))
		return nil
	}

	if fields.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*fields.Status))
	}
	if fields.Selected != nil {
		if err := add("selected_json", fields.Selected); err != nil {
			return err
		}
	}
	if fields.Sections != nil {
		if err := add("sections_json", fields.Sections); err != nil {
			return err
		}
	}
	if fields.ChosenVariant != nil {
		if err := add("chosen_variants_json", fields.ChosenVariant); err != nil {
			return err
		}
	}
	if fields.ViewMode != nil {
		if err := add("view_mode_json", fields.ViewMode); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sets = append(sets, "updated_at = max(updated_at, ?)")
	args = append(args, s.now().UTC().Format(timeLayout), id)

	res, err := s.db.ExecContext(ctx,
		`UPDATE deviations SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("updating deviation %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating deviation %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return nil
}

// Grant implements Grants.
func (s *SQLite) Grant(ctx context.Context, user string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO authorized_users (user_id, authorized_date) VALUES (?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET authorized_date = excluded.authorized_date`,
		user, s.day(now))
	if err != nil {
		return fmt.Errorf("granting %s: %w", user, err)
	}
	return nil
}

// IsAuthorized implements Grants. A grant expires at the start of the next
// calendar day in the store's reference timezone.
func (s *SQLite) IsAuthorized(ctx context.Context, user string, now time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var day string
	err := s.db.QueryRowContext(ctx,
		`SELECT authorized_date FROM authorized_users WHERE user_id = ?`, user).Scan(&day)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking grant for %s: %w", user, err)
	}
	return day == s.day(now), nil
}

func (s *SQLite) day(t time.Time) string {
	return t.In(s.location).Format(dateLayout)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*report.Record, error) {
	var (
		rec                                  report.Record
		status, input, created, updated      string
		selected, sections, chosen, viewMode sql.NullString
	)
	if err := row.Scan(&rec.ID, &rec.Owner, &status, &input, &selected, &sections,
		&chosen, &viewMode, &created, &updated); err != nil {
		return nil, err
	}
	rec.Status = report.Status(status)

	if err := json.Unmarshal([]byte(input), &rec.UserInput); err != nil {
		return nil, fmt.Errorf("decoding user_input_json: %w", err)
	}
	if err := decodeOptional(selected, &rec.Selected); err != nil {
		return nil, fmt.Errorf("decoding selected_json: %w", err)
	}
	if err := decodeOptional(sections, &rec.Sections); err != nil {
		return nil, fmt.Errorf("decoding sections_json: %w", err)
	}
	if err := decodeOptional(chosen, &rec.ChosenVariant); err != nil {
		return nil, fmt.Errorf("decoding chosen_variants_json: %w", err)
	}
	if err := decodeOptional(viewMode, &rec.ViewMode); err != nil {
		return nil, fmt.Errorf("decoding view_mode_json: %w", err)
	}

	var err error
	if rec.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if rec.UpdatedAt, err = time.Parse(timeLayout, updated); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &rec, nil
}

func decodeOptional(s sql.NullString, v any) error {
	if !s.Valid || s.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(s.String), v)
}

var (
	_ Records = (*SQLite)(nil)
	_ Grants  = (*SQLite)(nil)
)

// Package store persists deviation records and daily authorization grants.
//
// Records are read and written as whole field sets. Update merges only the
// fields that are set, so two concurrent read-modify-write cycles on the same
// record can still overwrite each other; callers that need stronger
// guarantees serialize access per record.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/fyrsmithlabs/devaudit/internal/report"
)

// ErrNotFound indicates an unknown record id.
var ErrNotFound = errors.New("deviation not found")

// Fields is a partial update. Nil fields are left unchanged.
type Fields struct {
	Status        *report.Status
	Selected      report.Selected
	Sections      report.Sections
	ChosenVariant map[report.SectionKey]int
	ViewMode      map[report.SectionKey]report.ViewMode
}

// Empty reports whether no field is set.
func (f Fields) Empty() bool {
	return f.Status == nil && f.Selected == nil && f.Sections == nil &&
		f.ChosenVariant == nil && f.ViewMode == nil
}

// Records is the record persistence contract.
type Records interface {
	// Create inserts a new draft record and returns it with its id.
	Create(ctx context.Context, owner string, input report.UserInput) (*report.Record, error)

	// Get returns the record or an error matching ErrNotFound.
	Get(ctx context.Context, id int64) (*report.Record, error)

	// Update merges fields into the record and bumps updated_at.
	Update(ctx context.Context, id int64, fields Fields) error

	// ListByOwner returns the owner's records, newest first.
	ListByOwner(ctx context.Context, owner string, limit int) ([]*report.Record, error)
}

// Grants records daily authorization.
type Grants interface {
	// Grant authorizes user for the calendar day of now.
	Grant(ctx context.Context, user string, now time.Time) error

	// IsAuthorized reports whether user was granted on the calendar day of now.
	IsAuthorized(ctx context.Context, user string, now time.Time) (bool, error)
}

package normalize

import (
	"errors"
	"fmt"
)

// Stage names the step that rejected generator output.
type Stage string

const (
	StageParse      Stage = "parse"
	StageValidate   Stage = "validate"
	StageRegenerate Stage = "regenerate"
)

var (
	// ErrMalformed indicates output that is not parseable JSON.
	ErrMalformed = errors.New("malformed generator output")

	// ErrSchema indicates parseable output with the wrong structure.
	ErrSchema = errors.New("generator output does not match schema")

	// ErrSectionKeyMismatch indicates a regeneration answer for another section.
	ErrSectionKeyMismatch = errors.New("section_key mismatch")

	// ErrTooFewVariants indicates a regeneration answer with fewer than MinVariants.
	ErrTooFewVariants = errors.New("too few variants")
)

// NormalizationError carries a bounded excerpt of the raw output for
// diagnosis.
type NormalizationError struct {
	Stage   Stage
	Preview string
	Err     error
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalize %s: %v", e.Stage, e.Err)
}

func (e *NormalizationError) Unwrap() error { return e.Err }

func newError(stage Stage, raw string, limit int, err error) *NormalizationError {
	return &NormalizationError{Stage: stage, Preview: Preview(raw, limit), Err: err}
}

// Preview returns at most limit runes of raw.
func Preview(raw string, limit int) string {
	if limit <= 0 {
		return ""
	}
	n := 0
	for i := range raw {
		if n == limit {
			return raw[:i]
		}
		n++
	}
	return raw
}

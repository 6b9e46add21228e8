// Package normalize turns untrusted generator output into record updates.
//
// A build answer goes through four explicit steps: Clean (fence and control
// characters), parse, Repair (enumerated lenient fixes) and Validate
// (strict shape checks). Nothing is returned unless every step passes.
// Regeneration answers for a single section have their own, stricter path.
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/devaudit/internal/report"
)

const (
	// BuildPreviewLimit bounds the raw excerpt of a failed build answer.
	BuildPreviewLimit = 1200
	// RegenPreviewLimit bounds the raw excerpt of a failed regeneration answer.
	RegenPreviewLimit = 900

	// MinVariants is the fewest variants a regeneration answer may carry.
	MinVariants = 3
	// MaxVariants is the number of variants kept after regeneration.
	MaxVariants = 5

	autoShortMarker = "вариант добавлен автоматически"
	autoFullMarker  = "(вариант добавлен автоматически: модель вернула меньше 5)"
)

// Result is a successful build normalization.
type Result struct {
	Update  *Update
	Repairs []Applied
}

// Normalize parses, repairs and validates a build answer.
func Normalize(raw string) (*Result, error) {
	doc, err := decode(Clean(raw))
	if err != nil {
		return nil, newError(StageParse, raw, BuildPreviewLimit, err)
	}

	repaired, applied := Repair(doc)
	update, err := Validate(repaired)
	if err != nil {
		return nil, newError(StageValidate, raw, BuildPreviewLimit, err)
	}
	return &Result{Update: update, Repairs: applied}, nil
}

// NormalizeRegeneration validates a single-section answer for key and returns
// exactly MaxVariants variants. Three or four variants are padded with
// copies of the last returned one, each carrying a visible marker; more than
// five are cut.
func NormalizeRegeneration(raw string, key report.SectionKey) ([]report.Variant, error) {
	doc, err := decode(Clean(raw))
	if err != nil {
		return nil, newError(StageParse, raw, RegenPreviewLimit, err)
	}
	variants, err := regenerated(doc, key)
	if err != nil {
		return nil, newError(StageRegenerate, raw, RegenPreviewLimit, err)
	}
	return variants, nil
}

func regenerated(doc map[string]any, key report.SectionKey) ([]report.Variant, error) {
	got, _ := doc["section_key"].(string)
	if got != string(key) {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrSectionKeyMismatch, got, key)
	}

	list, ok := doc["variants"].([]any)
	if !ok {
		return nil, fmt.Errorf("%w: variants must be a list", ErrSchema)
	}
	if len(list) < MinVariants {
		return nil, fmt.Errorf("%w: got %d, want %d..%d", ErrTooFewVariants, len(list), MinVariants, MaxVariants)
	}
	if len(list) > MaxVariants {
		list = list[:MaxVariants]
	}

	variants := make([]report.Variant, 0, MaxVariants)
	for i, item := range list {
		v, err := parseVariant(item)
		if err != nil {
			return nil, fmt.Errorf("variants[%d]: %w", i, err)
		}
		variants = append(variants, v)
	}
	last := variants[len(variants)-1]
	for len(variants) < MaxVariants {
		variants = append(variants, autoAdded(last))
	}
	return variants, nil
}

func autoAdded(base report.Variant) report.Variant {
	short := strings.TrimSpace(base.Short())
	full := strings.TrimSpace(base.Full())

	if short == "" {
		short = autoShortMarker
	} else {
		short += " (" + autoShortMarker + ")"
	}
	if full == "" {
		full = autoFullMarker
	} else {
		full += "\n\n" + autoFullMarker
	}
	return report.ShortFullVariant(short, full)
}

// IsAutoAdded reports whether v was produced by regeneration padding.
func IsAutoAdded(v report.Variant) bool {
	return strings.Contains(v.Short(), autoShortMarker) && strings.Contains(v.Full(), autoFullMarker)
}

func decode(payload string) (map[string]any, error) {
	if payload == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformed)
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		var syntax *json.SyntaxError
		if errors.As(err, &syntax) {
			return nil, fmt.Errorf("%w: %v at offset %d", ErrMalformed, syntax, syntax.Offset)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: payload is not an object", ErrMalformed)
	}
	return doc, nil
}

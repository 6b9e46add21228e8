package normalize

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/devaudit/internal/report"
)

// Update is the validated content of a build answer.
type Update struct {
	Selected report.Selected
	Sections report.Sections
}

// Validate checks a repaired document and converts it into an Update.
// It never modifies doc.
func Validate(doc map[string]any) (*Update, error) {
	selected, err := validateSelected(doc["selected"])
	if err != nil {
		return nil, err
	}
	sections, err := validateSections(doc["sections"])
	if err != nil {
		return nil, err
	}
	return &Update{Selected: selected, Sections: sections}, nil
}

func validateSelected(v any) (report.Selected, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: selected must be an object", ErrSchema)
	}
	out := make(report.Selected, len(report.Slots))
	for _, slot := range report.Slots {
		raw, ok := m[string(slot)]
		if !ok {
			return nil, fmt.Errorf("%w: selected.%s is required", ErrSchema, slot)
		}
		sel, err := validateSelection(raw)
		if err != nil {
			return nil, fmt.Errorf("selected.%s: %w", slot, err)
		}
		out[slot] = sel
	}
	return out, nil
}

func validateSelection(v any) (report.Selection, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return report.Selection{}, fmt.Errorf("%w: must be an object", ErrSchema)
	}

	primary, ok := m["primary_id"].(string)
	if !ok || strings.TrimSpace(primary) == "" {
		return report.Selection{}, fmt.Errorf("%w: primary_id must be a non-empty string", ErrSchema)
	}
	sel := report.Selection{PrimaryID: primary, Alternatives: []string{}}

	switch alts := m["alternatives"].(type) {
	case nil:
	case []any:
		for i, a := range alts {
			s, ok := a.(string)
			if !ok {
				return report.Selection{}, fmt.Errorf("%w: alternatives[%d] must be a string", ErrSchema, i)
			}
			sel.Alternatives = append(sel.Alternatives, s)
		}
	default:
		return report.Selection{}, fmt.Errorf("%w: alternatives must be a list", ErrSchema)
	}

	switch c := m["confidence"].(type) {
	case nil:
	case float64:
		sel.Confidence = c
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(c), 64)
		if err != nil {
			return report.Selection{}, fmt.Errorf("%w: confidence must be a number", ErrSchema)
		}
		sel.Confidence = f
	default:
		return report.Selection{}, fmt.Errorf("%w: confidence must be a number", ErrSchema)
	}

	switch r := m["rationale"].(type) {
	case nil:
	case string:
		sel.Rationale = r
	default:
		return report.Selection{}, fmt.Errorf("%w: rationale must be a string", ErrSchema)
	}
	return sel, nil
}

func validateSections(v any) (report.Sections, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: sections must be an object", ErrSchema)
	}
	out := make(report.Sections, len(m))
	for name, raw := range m {
		key, err := report.ParseSectionKey(name)
		if err != nil {
			return nil, fmt.Errorf("%w: sections: %v", ErrSchema, err)
		}
		sec, err := validateSection(raw)
		if err != nil {
			return nil, fmt.Errorf("sections.%s: %w", name, err)
		}
		out[key] = sec
	}
	return out, nil
}

func validateSection(v any) (report.Section, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return report.Section{}, fmt.Errorf("%w: section must be an object", ErrSchema)
	}

	var text string
	switch t := m["text"].(type) {
	case nil:
	case string:
		text = t
	default:
		return report.Section{}, fmt.Errorf("%w: text must be a string", ErrSchema)
	}

	raw, ok := m["variants"]
	if !ok || raw == nil {
		return report.Section{}, fmt.Errorf("%w: variants are required", ErrSchema)
	}
	variants, err := parseVariants(raw)
	if err != nil {
		return report.Section{}, err
	}
	if len(variants) == 0 {
		return report.Section{}, fmt.Errorf("%w: variants must not be empty", ErrSchema)
	}
	return report.VariantedSection(text, variants), nil
}

// parseVariants accepts a list of variants, or an object whose values are
// variants (taken in key order). An object with short/full keys is a
// single variant.
func parseVariants(v any) ([]report.Variant, error) {
	switch vs := v.(type) {
	case []any:
		out := make([]report.Variant, 0, len(vs))
		for i, item := range vs {
			variant, err := parseVariant(item)
			if err != nil {
				return nil, fmt.Errorf("variants[%d]: %w", i, err)
			}
			out = append(out, variant)
		}
		return out, nil
	case map[string]any:
		_, hasShort := vs["short"]
		_, hasFull := vs["full"]
		if hasShort || hasFull {
			variant, err := parseVariant(vs)
			if err != nil {
				return nil, err
			}
			return []report.Variant{variant}, nil
		}
		keys := make([]string, 0, len(vs))
		for k := range vs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]report.Variant, 0, len(keys))
		for _, k := range keys {
			variant, err := parseVariant(vs[k])
			if err != nil {
				return nil, fmt.Errorf("variants.%s: %w", k, err)
			}
			out = append(out, variant)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: variants must be a list", ErrSchema)
	}
}

func parseVariant(v any) (report.Variant, error) {
	switch t := v.(type) {
	case string:
		return report.StringVariant(t), nil
	case map[string]any:
		short, err := optionalText(t, "short")
		if err != nil {
			return report.Variant{}, err
		}
		full, err := optionalText(t, "full")
		if err != nil {
			return report.Variant{}, err
		}
		return report.ShortFullVariant(short, full), nil
	default:
		return report.Variant{}, fmt.Errorf("%w: variant must be a string or an object with short/full", ErrSchema)
	}
}

func optionalText(m map[string]any, key string) (string, error) {
	switch s := m[key].(type) {
	case nil:
		return "", nil
	case string:
		return s, nil
	default:
		return "", fmt.Errorf("%w: %s must be a string", ErrSchema, key)
	}
}

package normalize

import "sort"

// RepairKind enumerates the transformations Repair may apply.
type RepairKind string

// RepairPlaceholderVariants gives a section that has text but no variants
// the placeholder list PlaceholderVariants. Rendering prefers the text, so
// the placeholders are never shown as content.
const RepairPlaceholderVariants RepairKind = "placeholder-variants"

// PlaceholderVariants is the filler list added by RepairPlaceholderVariants.
var PlaceholderVariants = []string{"v1", "v2", "v3"}

// Applied records one repair.
type Applied struct {
	Kind    RepairKind
	Section string
}

// Repair applies the lenient fixes to a decoded generator document and
// reports each one. The input is not modified.
func Repair(doc map[string]any) (map[string]any, []Applied) {
	sections, ok := doc["sections"].(map[string]any)
	if !ok {
		return doc, nil
	}

	keys := make([]string, 0, len(sections))
	for k := range sections {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var applied []Applied
	var repaired map[string]any
	for _, key := range keys {
		sec, ok := sections[key].(map[string]any)
		if !ok {
			continue
		}
		_, hasText := sec["text"]
		_, hasVariants := sec["variants"]
		if !hasText || hasVariants {
			continue
		}

		if repaired == nil {
			repaired = make(map[string]any, len(sections))
			for k, v := range sections {
				repaired[k] = v
			}
		}
		fixed := make(map[string]any, len(sec)+1)
		for k, v := range sec {
			fixed[k] = v
		}
		placeholders := make([]any, len(PlaceholderVariants))
		for i, p := range PlaceholderVariants {
			placeholders[i] = p
		}
		fixed["variants"] = placeholders
		repaired[key] = fixed
		applied = append(applied, Applied{Kind: RepairPlaceholderVariants, Section: key})
	}

	if repaired == nil {
		return doc, nil
	}
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	out["sections"] = repaired
	return out, applied
}

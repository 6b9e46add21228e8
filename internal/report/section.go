package report

import (
	"encoding/json"
	"errors"
)

// SectionKind tags the shape of a section.
type SectionKind int

const (
	// KindPlain holds only text.
	KindPlain SectionKind = iota
	// KindVarianted holds one or more variants and optionally a text that
	// takes precedence when rendering.
	KindVarianted
)

// Section is the generated content of one report section.
type Section struct {
	kind     SectionKind
	text     string
	variants []Variant
}

// PlainSection returns a text-only section.
func PlainSection(text string) Section {
	return Section{kind: KindPlain, text: text}
}

// VariantedSection returns a section with variants. text may be empty.
func VariantedSection(text string, variants []Variant) Section {
	vs := make([]Variant, len(variants))
	copy(vs, variants)
	return Section{kind: KindVarianted, text: text, variants: vs}
}

// Kind returns the section's tag.
func (s Section) Kind() SectionKind { return s.kind }

// Text returns the explicit text, empty if none.
func (s Section) Text() string { return s.text }

// Variants returns a copy of the variants.
func (s Section) Variants() []Variant {
	out := make([]Variant, len(s.variants))
	copy(out, s.variants)
	return out
}

// Len returns the number of variants.
func (s Section) Len() int { return len(s.variants) }

// Variant returns variant i clamped into range. ok is false when the
// section has no variants.
func (s Section) Variant(i int) (v Variant, ok bool) {
	if len(s.variants) == 0 {
		return Variant{}, false
	}
	return s.variants[Clamp(i, len(s.variants))], true
}

// Clamp bounds i to [0, n-1]; it returns 0 when n is 0.
func Clamp(i, n int) int {
	if i >= n {
		i = n - 1
	}
	if i < 0 {
		i = 0
	}
	return i
}

type sectionWire struct {
	Text     *string   `json:"text,omitempty"`
	Variants []Variant `json:"variants,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (s Section) MarshalJSON() ([]byte, error) {
	var w sectionWire
	if s.text != "" || s.kind == KindPlain {
		t := s.text
		w.Text = &t
	}
	if s.kind == KindVarianted {
		w.Variants = s.variants
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler. A section without variants
// decodes as plain.
func (s *Section) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var text string
	if msg, ok := raw["text"]; ok && string(msg) != "null" {
		if err := json.Unmarshal(msg, &text); err != nil {
			return err
		}
	}
	msg, ok := raw["variants"]
	if !ok || string(msg) == "null" {
		*s = PlainSection(text)
		return nil
	}
	var variants []Variant
	if err := json.Unmarshal(msg, &variants); err != nil {
		return err
	}
	if len(variants) == 0 {
		return errors.New("section variants must not be empty")
	}
	*s = VariantedSection(text, variants)
	return nil
}

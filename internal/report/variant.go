package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// VariantKind tags the shape of a variant.
type VariantKind int

const (
	// KindString is a single text shown in both modes.
	KindString VariantKind = iota
	// KindShortFull carries separate short and full texts.
	KindShortFull
)

// Variant is one alternative phrasing of a section. On the wire it is
// either a JSON string or an object {"short": ..., "full": ...}.
type Variant struct {
	kind  VariantKind
	text  string
	short string
	full  string
}

// StringVariant returns a plain text variant.
func StringVariant(text string) Variant {
	return Variant{kind: KindString, text: text}
}

// ShortFullVariant returns a variant with separate short and full texts.
func ShortFullVariant(short, full string) Variant {
	return Variant{kind: KindShortFull, short: short, full: full}
}

// Kind returns the variant's tag.
func (v Variant) Kind() VariantKind { return v.kind }

// Short returns the short text; a string variant returns its only text.
func (v Variant) Short() string {
	if v.kind == KindString {
		return v.text
	}
	return v.short
}

// Full returns the full text; a string variant returns its only text.
func (v Variant) Full() string {
	if v.kind == KindString {
		return v.text
	}
	return v.full
}

// Text returns the text for mode, falling back to whichever of short and
// full is non-empty.
func (v Variant) Text(mode ViewMode) string {
	if v.kind == KindString {
		return v.text
	}
	primary, other := v.short, v.full
	if mode == ModeFull {
		primary, other = v.full, v.short
	}
	if primary != "" {
		return primary
	}
	return other
}

// AsShortFull promotes a string variant to the short/full shape.
func (v Variant) AsShortFull() Variant {
	if v.kind == KindShortFull {
		return v
	}
	return ShortFullVariant(v.text, v.text)
}

// MarshalJSON implements json.Marshaler.
func (v Variant) MarshalJSON() ([]byte, error) {
	if v.kind == KindString {
		return json.Marshal(v.text)
	}
	return json.Marshal(shortFullWire{Short: v.short, Full: v.full})
}

type shortFullWire struct {
	Short string `json:"short"`
	Full  string `json:"full"`
}

var errVariantShape = errors.New("variant must be a string or an object with short/full")

// UnmarshalJSON implements json.Unmarshaler.
func (v *Variant) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = StringVariant(s)
		return nil
	}
	if len(data) == 0 || data[0] != '{' {
		return errVariantShape
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	short, err := optionalString(raw, "short")
	if err != nil {
		return err
	}
	full, err := optionalString(raw, "full")
	if err != nil {
		return err
	}
	*v = ShortFullVariant(short, full)
	return nil
}

func optionalString(raw map[string]json.RawMessage, key string) (string, error) {
	msg, ok := raw[key]
	if !ok || string(msg) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(msg, &s); err != nil {
		return "", fmt.Errorf("variant field %q: %w", key, err)
	}
	return s, nil
}

// Package taxonomy loads the fixed classification lists (deviation categories
// and risk types) that candidate retrieval ranks against.
//
// A Taxonomy is immutable once loaded. Entry order is significant: row i of the
// taxonomy's embedding matrix belongs to entry i.
package taxonomy

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

var (
	// ErrInvalidTaxonomy indicates a taxonomy file that cannot be used.
	ErrInvalidTaxonomy = errors.New("invalid taxonomy")

	// ErrUnknownEntry indicates an id that is not part of the taxonomy.
	ErrUnknownEntry = errors.New("unknown taxonomy entry")
)

// Entry is a single classification entry.
type Entry struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Description      string `json:"description,omitempty"`
	DescriptionShort string `json:"description_short,omitempty"`
	RiskType         string `json:"risk_type,omitempty"`
	ScenarioShort    string `json:"scenario_short,omitempty"`
}

// EmbeddingText returns the text embedded for this entry.
//
// Parts are joined with " | " and empty parts are skipped. The long
// description is not embedded.
func (e Entry) EmbeddingText() string {
	parts := make([]string, 0, 5)
	for _, p := range []string{e.ID, e.Name, e.DescriptionShort} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if rt := strings.TrimSpace(e.RiskType); rt != "" {
		parts = append(parts, "категория риска: "+rt)
	}
	if sc := strings.TrimSpace(e.ScenarioShort); sc != "" {
		parts = append(parts, sc)
	}
	return strings.Join(parts, " | ")
}

// Taxonomy is an ordered, immutable list of entries.
type Taxonomy struct {
	name    string
	entries []Entry
	byID    map[string]int
}

// New builds a taxonomy from entries, rejecting empty or duplicate ids.
func New(name string, entries []Entry) (*Taxonomy, error) {
	t := &Taxonomy{
		name:    name,
		entries: make([]Entry, len(entries)),
		byID:    make(map[string]int, len(entries)),
	}
	copy(t.entries, entries)

	for i, e := range t.entries {
		if strings.TrimSpace(e.ID) == "" {
			return nil, fmt.Errorf("%w: %s entry %d has empty id", ErrInvalidTaxonomy, name, i)
		}
		if prev, ok := t.byID[e.ID]; ok {
			return nil, fmt.Errorf("%w: %s id %q repeated at %d and %d", ErrInvalidTaxonomy, name, e.ID, prev, i)
		}
		t.byID[e.ID] = i
	}
	return t, nil
}

// Load reads a JSON array of entries from path.
func Load(name, path string) (*Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s taxonomy: %w", name, err)
	}
	return Parse(name, data)
}

// Parse decodes a JSON array of entries.
func Parse(name string, data []byte) (*Taxonomy, error) {
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTaxonomy, name, err)
	}
	return New(name, entries)
}

// Name returns the taxonomy's name (e.g. "categories").
func (t *Taxonomy) Name() string { return t.name }

// Len returns the number of entries.
func (t *Taxonomy) Len() int { return len(t.entries) }

// At returns the entry at position i in load order.
func (t *Taxonomy) At(i int) Entry { return t.entries[i] }

// Entries returns a copy of the entries in load order.
func (t *Taxonomy) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Lookup returns the entry with the given id.
func (t *Taxonomy) Lookup(id string) (Entry, error) {
	i, ok := t.byID[id]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s/%s", ErrUnknownEntry, t.name, id)
	}
	return t.entries[i], nil
}

// Texts returns the embedding text of every entry in load order.
func (t *Taxonomy) Texts() []string {
	out := make([]string, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.EmbeddingText()
	}
	return out
}

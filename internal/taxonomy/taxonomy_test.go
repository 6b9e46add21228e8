package taxonomy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntry_EmbeddingText(t *testing.T) {
	tests := []struct {
		name  string
		entry Entry
		want  string
	}{
		{
			name:  "id and name only",
			entry: Entry{ID: "C1", Name: "Overpayment"},
			want:  "C1 | Overpayment",
		},
		{
			name: "all fields",
			entry: Entry{
				ID:               "R7",
				Name:             "Fraud",
				Description:      "not embedded",
				DescriptionShort: "intentional misstatement",
				RiskType:         "operational",
				ScenarioShort:    "fake invoices",
			},
			want: "R7 | Fraud | intentional misstatement | категория риска: operational | fake invoices",
		},
		{
			name:  "blank optional fields skipped",
			entry: Entry{ID: "C2", Name: "Delay", DescriptionShort: "  ", ScenarioShort: "late acts"},
			want:  "C2 | Delay | late acts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.entry.EmbeddingText())
		})
	}
}

func TestNew_RejectsBadIDs(t *testing.T) {
	_, err := New("categories", []Entry{{ID: "C1"}, {ID: "C1"}})
	assert.ErrorIs(t, err, ErrInvalidTaxonomy)

	_, err = New("categories", []Entry{{ID: ""}})
	assert.ErrorIs(t, err, ErrInvalidTaxonomy)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "categories.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"id": "C1", "name": "First"},
		{"id": "C2", "name": "Second", "description_short": "short"}
	]`), 0o600))

	tax, err := Load("categories", path)
	require.NoError(t, err)

	assert.Equal(t, "categories", tax.Name())
	assert.Equal(t, 2, tax.Len())
	assert.Equal(t, "C1", tax.At(0).ID)
	assert.Equal(t, []string{"C1 | First", "C2 | Second | short"}, tax.Texts())

	e, err := tax.Lookup("C2")
	require.NoError(t, err)
	assert.Equal(t, "Second", e.Name)

	_, err = tax.Lookup("C9")
	assert.ErrorIs(t, err, ErrUnknownEntry)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load("risks", filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Parse("risks", []byte(`{"id": "not an array"}`))
	assert.ErrorIs(t, err, ErrInvalidTaxonomy)
}

func TestEntries_ReturnsCopy(t *testing.T) {
	tax, err := New("risks", []Entry{{ID: "R1", Name: "a"}})
	require.NoError(t, err)

	entries := tax.Entries()
	entries[0].Name = "changed"
	assert.Equal(t, "a", tax.At(0).Name)
}

func TestParse_Empty(t *testing.T) {
	tax, err := Parse("risks", []byte(`[]`))
	require.NoError(t, err)
	assert.Equal(t, 0, tax.Len())
}

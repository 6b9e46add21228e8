package report

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVariant_UnmarshalShapes(t *testing.T) {
	var vs []Variant
	require.NoError(t, json.Unmarshal([]byte(`["plain", {"short": "s", "full": "f"}, {"full": "only full"}]`), &vs))
	require.Len(t, vs, 3)

	assert.Equal(t, KindString, vs[0].Kind())
	assert.Equal(t, "plain", vs[0].Text(ModeFull))

	assert.Equal(t, KindShortFull, vs[1].Kind())
	assert.Equal(t, "s", vs[1].Text(ModeShort))
	assert.Equal(t, "f", vs[1].Text(ModeFull))

	assert.Equal(t, "only full", vs[2].Text(ModeShort), "falls back to the non-empty text")

	var bad Variant
	assert.Error(t, json.Unmarshal([]byte(`42`), &bad))
	assert.Error(t, json.Unmarshal([]byte(`{"short": 1}`), &bad))
}

func TestVariant_MarshalKeepsShape(t *testing.T) {
	out, err := json.Marshal([]Variant{StringVariant("a"), ShortFullVariant("s", "f")})
	require.NoError(t, err)
	assert.JSONEq(t, `["a", {"short": "s", "full": "f"}]`, string(out))
}

func TestSection_JSON(t *testing.T) {
	var s Section
	require.NoError(t, json.Unmarshal([]byte(`{"text": "hello"}`), &s))
	assert.Equal(t, KindPlain, s.Kind())
	assert.Equal(t, "hello", s.Text())

	require.NoError(t, json.Unmarshal([]byte(`{"variants": ["a", "b"]}`), &s))
	assert.Equal(t, KindVarianted, s.Kind())
	assert.Equal(t, 2, s.Len())

	assert.Error(t, json.Unmarshal([]byte(`{"variants": []}`), &s))

	out, err := json.Marshal(VariantedSection("", []Variant{StringVariant("x")}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"variants": ["x"]}`, string(out))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0, Clamp(-3, 4))
	assert.Equal(t, 3, Clamp(9, 4))
	assert.Equal(t, 2, Clamp(2, 4))
	assert.Equal(t, 0, Clamp(5, 0))
}

func TestParseSectionKey(t *testing.T) {
	for _, k := range SectionOrder {
		got, err := ParseSectionKey(string(k))
		require.NoError(t, err)
		assert.Equal(t, k, got)
		assert.NotEqual(t, string(k), k.Title())
	}
	_, err := ParseSectionKey("summary")
	assert.ErrorIs(t, err, ErrUnknownSection)
}

func TestViewMode_Toggle(t *testing.T) {
	assert.Equal(t, ModeFull, ModeShort.Toggle())
	assert.Equal(t, ModeShort, ModeFull.Toggle())
	assert.Equal(t, ModeFull, ViewMode("").Toggle())
}

func recordWith(sections Sections) *Record {
	return &Record{
		ID:            7,
		Sections:      sections,
		ChosenVariant: map[SectionKey]int{},
		ViewMode:      map[SectionKey]ViewMode{},
	}
}

func TestRender(t *testing.T) {
	variants := []Variant{
		ShortFullVariant("s0", "f0"),
		ShortFullVariant("s1", "f1"),
		ShortFullVariant("", "f2 only"),
	}

	tests := []struct {
		name   string
		record *Record
		key    SectionKey
		want   string
	}{
		{
			name:   "missing section",
			record: recordWith(nil),
			key:    SectionEssence,
			want:   NotGeneratedText,
		},
		{
			name:   "text wins over variants",
			record: recordWith(Sections{SectionEssence: VariantedSection("explicit", variants)}),
			key:    SectionEssence,
			want:   "explicit",
		},
		{
			name:   "default variant and mode",
			record: recordWith(Sections{SectionEssence: VariantedSection("", variants)}),
			key:    SectionEssence,
			want:   "s0",
		},
		{
			name: "chosen full",
			record: func() *Record {
				r := recordWith(Sections{SectionEssence: VariantedSection("", variants)})
				r.ChosenVariant[SectionEssence] = 1
				r.ViewMode[SectionEssence] = ModeFull
				return r
			}(),
			key:  SectionEssence,
			want: "f1",
		},
		{
			name: "stale index clamped",
			record: func() *Record {
				r := recordWith(Sections{SectionEssence: VariantedSection("", variants)})
				r.ChosenVariant[SectionEssence] = 9
				return r
			}(),
			key:  SectionEssence,
			want: "f2 only",
		},
		{
			name:   "plain section",
			record: recordWith(Sections{SectionMeasures: PlainSection("do things")}),
			key:    SectionMeasures,
			want:   "do things",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Render(tt.record, tt.key))
		})
	}
}

func TestRender_Truncates(t *testing.T) {
	long := strings.Repeat("я", MaxRenderLength+1)
	r := recordWith(Sections{SectionEssence: PlainSection(long)})

	got := Render(r, SectionEssence)
	assert.True(t, strings.HasSuffix(got, TruncationMarker))
	assert.Equal(t, TruncatedLength, len([]rune(strings.TrimSuffix(got, TruncationMarker))))

	exact := strings.Repeat("a", MaxRenderLength)
	assert.Equal(t, exact, Truncate(exact))
}

func TestRecord_Defaults(t *testing.T) {
	r := recordWith(Sections{SectionEssence: VariantedSection("", []Variant{StringVariant("a")})})
	assert.Equal(t, 0, r.Chosen(SectionEssence))
	assert.Equal(t, 0, r.Chosen(SectionMeasures))
	assert.Equal(t, ModeShort, r.Mode(SectionEssence))

	r.ViewMode[SectionEssence] = "bogus"
	assert.Equal(t, ModeShort, r.Mode(SectionEssence))
}

func TestInputFields(t *testing.T) {
	fields := InputFields(UserInput{ProblemText: "p", Period: "2024", Documents: " "})
	assert.Equal(t, []InputField{{"проблема:", "p"}, {"период:", "2024"}}, fields)
}

func TestExportMarkdown(t *testing.T) {
	r := recordWith(Sections{
		SectionEssence:  VariantedSection("", []Variant{ShortFullVariant("s0", "f0"), ShortFullVariant("s1", "f1")}),
		SectionMeasures: VariantedSection("", []Variant{ShortFullVariant("ms", "mf")}),
	})
	r.UserInput = UserInput{ProblemText: "overpaid supplier"}
	r.Selected = Selected{
		SlotDeviationCategory: {PrimaryID: "C1"},
		SlotRisk:              {PrimaryID: "R1"},
	}
	r.ChosenVariant[SectionEssence] = 5
	r.ViewMode[SectionMeasures] = ModeShort

	md := ExportMarkdown(r, func(_ Slot, id string) string { return id + " name" })

	assert.Contains(t, md, "категория отклонения: C1 name")
	assert.Contains(t, md, "риск: R1 name")
	assert.Contains(t, md, "проблема: overpaid supplier")
	assert.Contains(t, md, "f1", "chosen index clamped, full by default")
	assert.Contains(t, md, "ms")
	assert.NotContains(t, md, SectionRootCauses.Title())
	assert.Less(t, strings.Index(md, SectionEssence.Title()), strings.Index(md, SectionMeasures.Title()))
}

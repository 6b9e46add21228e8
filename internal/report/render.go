package report

import (
	"fmt"
	"strings"
)

const (
	// MaxRenderLength is the display ceiling of a rendered section in runes.
	MaxRenderLength = 4000
	// TruncatedLength is how much of an over-long section is kept.
	TruncatedLength = 3950

	// NotGeneratedText is shown for a section without generated content.
	NotGeneratedText = "нет данных по разделу (сначала /build)"
	// TruncationMarker is appended to truncated output.
	TruncationMarker = "\n\n... (текст обрезан, слишком длинный)"
)

// Render returns the display text of key: the explicit text if present,
// otherwise the chosen variant in the chosen mode.
func Render(r *Record, key SectionKey) string {
	s, ok := r.Section(key)
	if !ok {
		return NotGeneratedText
	}
	return Truncate(sectionText(s, r.Chosen(key), r.Mode(key)))
}

func sectionText(s Section, chosen int, mode ViewMode) string {
	if s.Text() != "" {
		return s.Text()
	}
	switch s.Kind() {
	case KindVarianted:
		v, _ := s.Variant(chosen)
		return v.Text(mode)
	default:
		return ""
	}
}

// Truncate cuts text longer than MaxRenderLength runes.
func Truncate(text string) string {
	runes := []rune(text)
	if len(runes) <= MaxRenderLength {
		return text
	}
	return string(runes[:TruncatedLength]) + TruncationMarker
}

// ExportMarkdown renders the whole record as a Markdown document: the
// classification, the auditor's input and every generated section in order,
// using the chosen variant and full mode unless short was chosen.
func ExportMarkdown(r *Record, names func(Slot, string) string) string {
	if names == nil {
		names = func(_ Slot, id string) string { return id }
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# отчёт по отклонению, id %d\n\n", r.ID)

	for _, slot := range Slots {
		sel, ok := r.Selected[slot]
		if !ok {
			continue
		}
		label := "категория отклонения"
		if slot == SlotRisk {
			label = "риск"
		}
		fmt.Fprintf(&b, "- %s: %s\n", label, names(slot, sel.PrimaryID))
	}

	b.WriteString("\n## входные данные аудитора\n\n")
	for _, f := range InputFields(r.UserInput) {
		fmt.Fprintf(&b, "- %s %s\n", f.Label, f.Value)
	}

	for _, key := range SectionOrder {
		s, ok := r.Section(key)
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "\n## %s\n\n", key.Title())

		mode := ModeFull
		if r.ViewMode[key] == ModeShort {
			mode = ModeShort
		}
		text := sectionText(s, r.Chosen(key), mode)
		if text == "" {
			text = "нет данных"
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String()
}

// InputField is one labelled, populated field of UserInput.
type InputField struct {
	Label string
	Value string
}

// InputFields returns the populated fields of u in fixed order with their
// labels. Retrieval builds its query from the same list.
func InputFields(u UserInput) []InputField {
	all := []InputField{
		{"проблема:", u.ProblemText},
		{"процесс/объект:", u.ProcessObject},
		{"период:", u.Period},
		{"участники (роли):", u.ParticipantsRoles},
		{"что нарушено:", u.WhatViolated},
		{"суммы/сроки:", u.AmountsTerms},
		{"документы:", u.Documents},
	}
	out := all[:0]
	for _, f := range all {
		if v := strings.TrimSpace(f.Value); v != "" {
			out = append(out, InputField{Label: f.Label, Value: v})
		}
	}
	return out
}

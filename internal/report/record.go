// Package report defines the deviation record: the auditor's input, the
// classification selection, the generated sections and the per-section
// variant and view-mode state.
package report

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidInput indicates user input that cannot start an analysis.
var ErrInvalidInput = errors.New("invalid user input")

// UserInput describes a deviation. Only ProblemText is required.
type UserInput struct {
	ProblemText       string `json:"problem_text"`
	ProcessObject     string `json:"process_object,omitempty"`
	Period            string `json:"period,omitempty"`
	ParticipantsRoles string `json:"participants_roles,omitempty"`
	WhatViolated      string `json:"what_violated,omitempty"`
	AmountsTerms      string `json:"amounts_terms,omitempty"`
	Documents         string `json:"documents,omitempty"`
}

// Validate checks the required fields.
func (u UserInput) Validate() error {
	if strings.TrimSpace(u.ProblemText) == "" {
		return fmt.Errorf("%w: problem_text is required", ErrInvalidInput)
	}
	return nil
}

// Selection is the generator's choice for one classification slot.
type Selection struct {
	PrimaryID    string   `json:"primary_id"`
	Alternatives []string `json:"alternatives"`
	Confidence   float64  `json:"confidence"`
	Rationale    string   `json:"rationale"`
}

// Selected maps classification slots to selections.
type Selected map[Slot]Selection

// Sections maps section keys to generated content.
type Sections map[SectionKey]Section

// Clone returns a shallow copy safe to modify at the map level.
func (s Sections) Clone() Sections {
	out := make(Sections, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Record is one deviation analysis.
type Record struct {
	ID            int64                   `json:"id"`
	Owner         string                  `json:"owner"`
	Status        Status                  `json:"status"`
	UserInput     UserInput               `json:"user_input"`
	Selected      Selected                `json:"selected,omitempty"`
	Sections      Sections                `json:"sections,omitempty"`
	ChosenVariant map[SectionKey]int      `json:"chosen_variant,omitempty"`
	ViewMode      map[SectionKey]ViewMode `json:"view_mode,omitempty"`
	CreatedAt     time.Time               `json:"created_at"`
	UpdatedAt     time.Time               `json:"updated_at"`
}

// Section returns the content of key, if generated.
func (r *Record) Section(key SectionKey) (Section, bool) {
	s, ok := r.Sections[key]
	return s, ok
}

// Chosen returns the chosen variant index for key, clamped into the
// section's current variant range. Absent means 0.
func (r *Record) Chosen(key SectionKey) int {
	idx := r.ChosenVariant[key]
	if s, ok := r.Sections[key]; ok {
		return Clamp(idx, s.Len())
	}
	return Clamp(idx, 1)
}

// Mode returns the view mode for key, short unless full was chosen.
func (r *Record) Mode(key SectionKey) ViewMode {
	if r.ViewMode[key] == ModeFull {
		return ModeFull
	}
	return ModeShort
}

// HasSections reports whether any section was generated.
func (r *Record) HasSections() bool {
	return len(r.Sections) > 0
}

// ChosenCopy returns a copy of the chosen-variant map.
func (r *Record) ChosenCopy() map[SectionKey]int {
	out := make(map[SectionKey]int, len(r.ChosenVariant))
	for k, v := range r.ChosenVariant {
		out[k] = v
	}
	return out
}

// ViewModeCopy returns a copy of the view-mode map.
func (r *Record) ViewModeCopy() map[SectionKey]ViewMode {
	out := make(map[SectionKey]ViewMode, len(r.ViewMode))
	for k, v := range r.ViewMode {
		out[k] = v
	}
	return out
}

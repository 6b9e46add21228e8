// Package variants mediates navigation and edits of a record's sections.
//
// The controller has two states. Listing shows the ordered sections of a
// record; Viewing shows one section rendered with its chosen variant and view
// mode. Every edit re-reads the record under a per-record lock, changes one
// field and writes it back, so edits made through one Controller never
// overwrite each other.
package variants

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/devaudit/internal/generation"
	"github.com/fyrsmithlabs/devaudit/internal/llm"
	"github.com/fyrsmithlabs/devaudit/internal/normalize"
	"github.com/fyrsmithlabs/devaudit/internal/report"
	"github.com/fyrsmithlabs/devaudit/internal/store"
	"go.uber.org/zap"
)

var (
	// ErrVariantOutOfRange indicates a caller-supplied index outside the
	// section's variants.
	ErrVariantOutOfRange = errors.New("variant index out of range")

	// ErrNotGenerated indicates an edit on a section that has no content yet.
	ErrNotGenerated = errors.New("section not generated")

	// ErrEmptyCustomText indicates a blank custom variant.
	ErrEmptyCustomText = errors.New("custom variant text is empty")

	// ErrRegenerationUnavailable indicates a controller built without a
	// generator.
	ErrRegenerationUnavailable = errors.New("regeneration not configured")
)

// CustomSlot is the index reserved for the author's own variant.
const CustomSlot = 3

// State is the controller state a view belongs to.
type State string

const (
	StateListing State = "listing"
	StateViewing State = "viewing"
)

// Store is the persistence the controller needs.
type Store interface {
	Get(ctx context.Context, id int64) (*report.Record, error)
	Update(ctx context.Context, id int64, fields store.Fields) error
}

// Runner executes a generator request.
type Runner interface {
	Run(ctx context.Context, op string, req llm.Request, progress generation.ProgressFunc) (string, error)
}

// Prompter builds the generator request that regenerates one section.
type Prompter interface {
	RegenerationRequest(ctx context.Context, rec *report.Record, key report.SectionKey, previous []report.Variant) (llm.Request, error)
}

// SectionSummary is one entry of a listing.
type SectionSummary struct {
	Key       report.SectionKey `json:"key"`
	Title     string            `json:"title"`
	Populated bool              `json:"populated"`
	Variants  int               `json:"variants"`
}

// Listing is the Listing state of a record.
type Listing struct {
	State    State            `json:"state"`
	RecordID int64            `json:"record_id"`
	Sections []SectionSummary `json:"sections"`
}

// View is the Viewing state of one section.
type View struct {
	State     State             `json:"state"`
	RecordID  int64             `json:"record_id"`
	Key       report.SectionKey `json:"key"`
	Title     string            `json:"title"`
	Populated bool              `json:"populated"`
	Chosen    int               `json:"chosen"`
	Variants  int               `json:"variants"`
	Mode      report.ViewMode   `json:"mode"`
	Text      string            `json:"text"`
}

// Controller implements the section state machine over a Store.
type Controller struct {
	store    Store
	locks    *store.Locks
	runner   Runner
	prompter Prompter
	logger   *zap.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithLocks shares a lock table with other writers of the same records.
func WithLocks(l *store.Locks) Option {
	return func(c *Controller) {
		if l != nil {
			c.locks = l
		}
	}
}

// WithRegeneration enables RegenerateSection.
func WithRegeneration(r Runner, p Prompter) Option {
	return func(c *Controller) {
		c.runner = r
		c.prompter = p
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Controller.
func New(s Store, opts ...Option) *Controller {
	c := &Controller{
		store:  s,
		locks:  store.NewLocks(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// List returns the Listing state: every section in display order. It is
// also the target of back navigation from a view.
func (c *Controller) List(ctx context.Context, id int64) (*Listing, error) {
	rec, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	out := &Listing{State: StateListing, RecordID: rec.ID}
	for _, key := range report.SectionOrder {
		s, ok := rec.Section(key)
		out.Sections = append(out.Sections, SectionSummary{
			Key:       key,
			Title:     key.Title(),
			Populated: ok,
			Variants:  s.Len(),
		})
	}
	return out, nil
}

// Open enters the Viewing state for key.
func (c *Controller) Open(ctx context.Context, id int64, key report.SectionKey) (*View, error) {
	if _, err := report.ParseSectionKey(string(key)); err != nil {
		return nil, err
	}
	rec, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return view(rec, key), nil
}

// SelectVariant makes idx the chosen variant of key.
func (c *Controller) SelectVariant(ctx context.Context, id int64, key report.SectionKey, idx int) (*View, error) {
	return c.mutate(ctx, id, key, func(rec *report.Record) (store.Fields, error) {
		s, ok := rec.Section(key)
		if !ok {
			return store.Fields{}, fmt.Errorf("%w: %s", ErrNotGenerated, key)
		}
		if idx < 0 || idx >= s.Len() {
			return store.Fields{}, fmt.Errorf("%w: %d not in [0, %d)", ErrVariantOutOfRange, idx, s.Len())
		}
		chosen := rec.ChosenCopy()
		chosen[key] = idx
		return store.Fields{ChosenVariant: chosen}, nil
	})
}

// ToggleMode flips the view mode of key between short and full.
func (c *Controller) ToggleMode(ctx context.Context, id int64, key report.SectionKey) (*View, error) {
	return c.mutate(ctx, id, key, func(rec *report.Record) (store.Fields, error) {
		modes := rec.ViewModeCopy()
		modes[key] = rec.Mode(key).Toggle()
		return store.Fields{ViewMode: modes}, nil
	})
}

// InsertCustomVariant stores text in the reserved CustomSlot and chooses it.
// A section with three variants gains a fourth; a section that already has
// a fourth has it overwritten. Sections with fewer than three variants are
// padded with placeholders first. The section's explicit text, if any, is
// dropped so the custom variant is what gets rendered; when the variants
// were only repair placeholders the text takes the first slot instead.
func (c *Controller) InsertCustomVariant(ctx context.Context, id int64, key report.SectionKey, text string) (*View, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyCustomText
	}
	return c.mutate(ctx, id, key, func(rec *report.Record) (store.Fields, error) {
		s, ok := rec.Section(key)
		if !ok {
			return store.Fields{}, fmt.Errorf("%w: %s", ErrNotGenerated, key)
		}

		variants := s.Variants()
		if s.Text() != "" && onlyPlaceholders(variants) {
			variants[0] = report.StringVariant(s.Text())
		}
		for i := len(variants); i < CustomSlot; i++ {
			variants = append(variants, report.StringVariant(normalize.PlaceholderVariants[i%len(normalize.PlaceholderVariants)]))
		}
		custom := report.StringVariant(text)
		if len(variants) == CustomSlot {
			variants = append(variants, custom)
		} else {
			variants[CustomSlot] = custom
		}

		sections := rec.Sections.Clone()
		sections[key] = report.VariantedSection("", variants)
		chosen := rec.ChosenCopy()
		chosen[key] = CustomSlot
		return store.Fields{Sections: sections, ChosenVariant: chosen}, nil
	})
}

// RegenerateSection asks the generator for fresh variants of key, passing
// the current ones as contrast, and replaces the section wholesale. The
// chosen index is left as is and clamped whenever it is read.
//
// The generator call happens outside the record lock; the replacement is
// applied to a fresh read of the record.
func (c *Controller) RegenerateSection(ctx context.Context, id int64, key report.SectionKey, progress generation.ProgressFunc) (*View, error) {
	if c.runner == nil || c.prompter == nil {
		return nil, ErrRegenerationUnavailable
	}
	if _, err := report.ParseSectionKey(string(key)); err != nil {
		return nil, err
	}

	rec, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s, ok := rec.Section(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotGenerated, key)
	}

	req, err := c.prompter.RegenerationRequest(ctx, rec, key, s.Variants())
	if err != nil {
		return nil, err
	}
	raw, err := c.runner.Run(ctx, "regenerate", req, progress)
	if err != nil {
		return nil, err
	}
	variants, err := normalize.NormalizeRegeneration(raw, key)
	if err != nil {
		c.logger.Warn("regeneration output rejected",
			zap.Int64("record_id", id),
			zap.String("section", string(key)),
			zap.Error(err))
		return nil, err
	}

	v, err := c.mutate(ctx, id, key, func(fresh *report.Record) (store.Fields, error) {
		sections := fresh.Sections.Clone()
		sections[key] = report.VariantedSection("", variants)
		return store.Fields{Sections: sections}, nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info("section regenerated",
		zap.Int64("record_id", id),
		zap.String("section", string(key)),
		zap.Int("variants", len(variants)))
	return v, nil
}

// mutate runs a locked read-modify-write on one record and renders key from
// the record as written.
func (c *Controller) mutate(ctx context.Context, id int64, key report.SectionKey, change func(*report.Record) (store.Fields, error)) (*View, error) {
	if _, err := report.ParseSectionKey(string(key)); err != nil {
		return nil, err
	}
	unlock := c.locks.Lock(id)
	defer unlock()

	rec, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	fields, err := change(rec)
	if err != nil {
		return nil, err
	}
	if err := c.store.Update(ctx, id, fields); err != nil {
		return nil, err
	}

	rec, err = c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return view(rec, key), nil
}

func view(rec *report.Record, key report.SectionKey) *View {
	s, ok := rec.Section(key)
	return &View{
		State:     StateViewing,
		RecordID:  rec.ID,
		Key:       key,
		Title:     key.Title(),
		Populated: ok,
		Chosen:    rec.Chosen(key),
		Variants:  s.Len(),
		Mode:      rec.Mode(key),
		Text:      report.Render(rec, key),
	}
}

func onlyPlaceholders(vs []report.Variant) bool {
	if len(vs) == 0 || len(vs) > len(normalize.PlaceholderVariants) {
		return false
	}
	for i, v := range vs {
		if v.Kind() != report.KindString || v.Short() != normalize.PlaceholderVariants[i] {
			return false
		}
	}
	return true
}

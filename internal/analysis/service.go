// Package analysis orchestrates a deviation analysis: record creation,
// candidate retrieval, report generation, section editing and the daily
// authorization of users.
//
// Generation runs through the generation runner, so a slow generator never
// blocks the caller that reports progress. Builds started with StartBuild run
// in the background and are tracked as jobs.
package analysis

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fyrsmithlabs/devaudit/internal/catalog"
	"github.com/fyrsmithlabs/devaudit/internal/generation"
	"github.com/fyrsmithlabs/devaudit/internal/llm"
	"github.com/fyrsmithlabs/devaudit/internal/normalize"
	"github.com/fyrsmithlabs/devaudit/internal/prompt"
	"github.com/fyrsmithlabs/devaudit/internal/report"
	"github.com/fyrsmithlabs/devaudit/internal/retrieval"
	"github.com/fyrsmithlabs/devaudit/internal/secrets"
	"github.com/fyrsmithlabs/devaudit/internal/store"
	"github.com/fyrsmithlabs/devaudit/internal/variants"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var (
	// ErrUnauthorized indicates a user without a grant for today.
	ErrUnauthorized = errors.New("not authorized today")

	// ErrBadPassword indicates a failed authorization attempt.
	ErrBadPassword = errors.New("wrong password")

	// ErrServiceClosed indicates a build requested after Close.
	ErrServiceClosed = errors.New("analysis service closed")
)

// Retriever ranks taxonomy candidates for a deviation.
type Retriever interface {
	Retrieve(ctx context.Context, input report.UserInput, k int) (*retrieval.CandidateSet, error)
}

// Deps are the collaborators of a Service.
type Deps struct {
	Records   store.Records
	Grants    store.Grants
	Retriever Retriever
	Runner    variants.Runner

	// Catalog resolves ids to names in previews and exports. Optional.
	Catalog *catalog.Catalog
	// Redactor scrubs the auditor's text before it leaves the process.
	// Optional.
	Redactor *secrets.Redactor
	Locks    *store.Locks
	Logger   *zap.Logger
	Metrics  *Metrics
	// Tracer defaults to the global provider.
	Tracer trace.Tracer
	Now    func() time.Time
}

// Options tunes a Service.
type Options struct {
	// Password is the shared daily password.
	Password string
	// AuthDisabled treats every user as authorized.
	AuthDisabled bool
	// K is the number of candidates per taxonomy.
	K          int
	Build      prompt.Params
	Regenerate prompt.Params
	// JobRetention bounds the finished jobs kept for polling.
	JobRetention int
}

// Service is the analysis orchestrator. It is safe for concurrent use.
type Service struct {
	deps     Deps
	opts     Options
	sections *variants.Controller
	jobs     *jobs
	tracer   trace.Tracer

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	closed  bool
}

// New creates a Service.
func New(deps Deps, opts Options) (*Service, error) {
	switch {
	case deps.Records == nil:
		return nil, errors.New("records store is required")
	case deps.Grants == nil:
		return nil, errors.New("grants store is required")
	case deps.Retriever == nil:
		return nil, errors.New("retriever is required")
	case deps.Runner == nil:
		return nil, errors.New("generation runner is required")
	}
	if !opts.AuthDisabled && opts.Password == "" {
		return nil, errors.New("password is required unless authorization is disabled")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics(deps.Logger)
	}
	if deps.Locks == nil {
		deps.Locks = store.NewLocks()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer(instrumentationName)
	}
	if opts.K <= 0 {
		opts.K = retrieval.DefaultK
	}
	if opts.Build == (prompt.Params{}) {
		opts.Build = prompt.DefaultBuild
	}
	if opts.Regenerate == (prompt.Params{}) {
		opts.Regenerate = prompt.DefaultRegenerate
	}
	if opts.JobRetention <= 0 {
		opts.JobRetention = 256
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		deps:    deps,
		opts:    opts,
		jobs:    newJobs(deps.Now, opts.JobRetention),
		tracer:  deps.Tracer,
		baseCtx: ctx,
		cancel:  cancel,
	}
	s.sections = variants.New(deps.Records,
		variants.WithLocks(deps.Locks),
		variants.WithRegeneration(deps.Runner, s),
		variants.WithLogger(deps.Logger.Named("variants")),
	)
	return s, nil
}

// Sections returns the section controller bound to the same store and locks.
func (s *Service) Sections() *variants.Controller {
	return s.sections
}

// Close stops accepting builds and waits for running ones to finish or
// observe cancellation.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}

// Authorize grants user access for the current calendar day when password
// matches.
func (s *Service) Authorize(ctx context.Context, user, password string) error {
	if user == "" {
		return fmt.Errorf("%w: empty user", ErrUnauthorized)
	}
	if s.opts.AuthDisabled {
		return nil
	}
	ok := subtle.ConstantTimeCompare([]byte(password), []byte(s.opts.Password)) == 1
	s.deps.Metrics.recordAuth(ctx, ok)
	if !ok {
		s.deps.Logger.Warn("authorization refused", zap.String("owner", user))
		return ErrBadPassword
	}
	if err := s.deps.Grants.Grant(ctx, user, s.deps.Now()); err != nil {
		return fmt.Errorf("recording grant: %w", err)
	}
	s.deps.Logger.Info("user authorized", zap.String("owner", user))
	return nil
}

// CheckAuthorized returns ErrUnauthorized unless user holds a grant for
// today.
func (s *Service) CheckAuthorized(ctx context.Context, user string) error {
	if user == "" {
		return fmt.Errorf("%w: empty user", ErrUnauthorized)
	}
	if s.opts.AuthDisabled {
		return nil
	}
	ok, err := s.deps.Grants.IsAuthorized(ctx, user, s.deps.Now())
	if err != nil {
		return fmt.Errorf("checking grant: %w", err)
	}
	if !ok {
		return ErrUnauthorized
	}
	return nil
}

// Create stores a new draft record for owner.
func (s *Service) Create(ctx context.Context, owner string, input report.UserInput) (*report.Record, error) {
	rec, err := s.deps.Records.Create(ctx, owner, input)
	if err != nil {
		return nil, err
	}
	s.deps.Logger.Info("deviation created", zap.Int64("record_id", rec.ID), zap.String("owner", owner))
	return rec, nil
}

// Record returns the record if it belongs to owner. Records of other owners
// are reported as not found.
func (s *Service) Record(ctx context.Context, owner string, id int64) (*report.Record, error) {
	rec, err := s.deps.Records.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Owner != owner {
		return nil, fmt.Errorf("%w: id %d", store.ErrNotFound, id)
	}
	return rec, nil
}

// List returns the owner's records, newest first.
func (s *Service) List(ctx context.Context, owner string, limit int) ([]*report.Record, error) {
	return s.deps.Records.ListByOwner(ctx, owner, limit)
}

// Candidates ranks both taxonomies against the record's input.
func (s *Service) Candidates(ctx context.Context, id int64) (*retrieval.CandidateSet, error) {
	rec, err := s.deps.Records.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.deps.Retriever.Retrieve(ctx, s.redact(rec.UserInput), s.opts.K)
}

// Build generates the whole report for id and stores the selection and
// sections. Nothing is written unless the generator answer passes
// normalization.
func (s *Service) Build(ctx context.Context, id int64, progress generation.ProgressFunc) error {
	ctx, span := s.tracer.Start(ctx, "analysis.build")
	defer span.End()
	span.SetAttributes(attribute.Int64("record_id", id))

	err := s.build(ctx, id, progress)
	outcome := "succeeded"
	if err != nil {
		outcome = "failed"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	s.deps.Metrics.recordBuild(ctx, outcome)
	return err
}

func (s *Service) build(ctx context.Context, id int64, progress generation.ProgressFunc) error {
	rec, err := s.deps.Records.Get(ctx, id)
	if err != nil {
		return err
	}
	input := s.redact(rec.UserInput)

	candidates, err := s.deps.Retriever.Retrieve(ctx, input, s.opts.K)
	if err != nil {
		return err
	}
	req, err := prompt.Build(input, candidates, s.opts.Build)
	if err != nil {
		return err
	}
	raw, err := s.deps.Runner.Run(ctx, "build", req, progress)
	if err != nil {
		return err
	}

	res, err := normalize.Normalize(raw)
	if err != nil {
		s.rejected(ctx, id, err)
		return err
	}
	for _, r := range res.Repairs {
		s.deps.Metrics.recordRepair(ctx, string(r.Kind))
		s.deps.Logger.Info("generator answer repaired",
			zap.Int64("record_id", id),
			zap.String("repair", string(r.Kind)),
			zap.String("section", r.Section))
	}

	unlock := s.deps.Locks.Lock(id)
	defer unlock()
	status := report.StatusGenerated
	if err := s.deps.Records.Update(ctx, id, store.Fields{
		Status:   &status,
		Selected: res.Update.Selected,
		Sections: res.Update.Sections,
	}); err != nil {
		return err
	}
	s.deps.Logger.Info("report built",
		zap.Int64("record_id", id),
		zap.Int("sections", len(res.Update.Sections)))
	return nil
}

func (s *Service) rejected(ctx context.Context, id int64, err error) {
	var nerr *normalize.NormalizationError
	if !errors.As(err, &nerr) {
		return
	}
	s.deps.Metrics.recordNormalizeFailure(ctx, string(nerr.Stage))
	s.deps.Logger.Warn("generator answer rejected",
		zap.Int64("record_id", id),
		zap.String("stage", string(nerr.Stage)),
		zap.String("preview", nerr.Preview),
		zap.Error(nerr.Err))
}

// StartBuild starts Build for id in the background and returns its job. If
// a build of the same record is still running, that job is returned.
func (s *Service) StartBuild(ctx context.Context, owner string, id int64) (Job, error) {
	if _, err := s.Record(ctx, owner, id); err != nil {
		return Job{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Job{}, ErrServiceClosed
	}

	job, started := s.jobs.start(id, owner)
	if !started {
		return job, nil
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.jobs.running(job.ID)
		err := s.Build(s.baseCtx, id, func(attempt int, elapsed time.Duration) {
			s.jobs.progress(job.ID, attempt, elapsed)
		})

		var preview string
		var nerr *normalize.NormalizationError
		if errors.As(err, &nerr) {
			preview = nerr.Preview
		}
		s.jobs.finish(job.ID, err, preview)
		if err != nil {
			s.deps.Logger.Error("background build failed",
				zap.String("job_id", job.ID),
				zap.Int64("record_id", id),
				zap.Error(err))
		}
	}()
	return job, nil
}

// Job returns a snapshot of the job if it belongs to owner.
func (s *Service) Job(owner, id string) (Job, error) {
	job, err := s.jobs.get(id)
	if err != nil {
		return Job{}, err
	}
	if job.Owner != owner {
		return Job{}, ErrJobNotFound
	}
	return job, nil
}

// ActiveJobs returns the number of unfinished builds.
func (s *Service) ActiveJobs() int {
	return s.jobs.activeCount()
}

// RegenerationRequest implements variants.Prompter. Candidates are
// retrieved again so the model sees the same context as during the build.
func (s *Service) RegenerationRequest(ctx context.Context, rec *report.Record, key report.SectionKey, previous []report.Variant) (llm.Request, error) {
	input := s.redact(rec.UserInput)
	candidates, err := s.deps.Retriever.Retrieve(ctx, input, s.opts.K)
	if err != nil {
		return llm.Request{}, err
	}
	return prompt.Regenerate(input, rec.Selected, key, previous, candidates, s.opts.Regenerate)
}

// Entry is a taxonomy reference with its display name.
type Entry struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Classification is the resolved selection of one slot.
type Classification struct {
	Slot         report.Slot `json:"slot"`
	Primary      Entry       `json:"primary"`
	Alternatives []Entry     `json:"alternatives"`
	Confidence   float64     `json:"confidence"`
	Rationale    string      `json:"rationale"`
}

// Classification returns the record's selection with names resolved from
// the catalog, in slot order. Slots without a selection are omitted.
func (s *Service) Classification(rec *report.Record) []Classification {
	var out []Classification
	for _, slot := range report.Slots {
		sel, ok := rec.Selected[slot]
		if !ok {
			continue
		}
		c := Classification{
			Slot:         slot,
			Primary:      Entry{ID: sel.PrimaryID, Name: s.name(slot, sel.PrimaryID)},
			Alternatives: make([]Entry, 0, len(sel.Alternatives)),
			Confidence:   sel.Confidence,
			Rationale:    sel.Rationale,
		}
		for _, alt := range sel.Alternatives {
			c.Alternatives = append(c.Alternatives, Entry{ID: alt, Name: s.name(slot, alt)})
		}
		out = append(out, c)
	}
	return out
}

// Export renders the record as Markdown.
func (s *Service) Export(rec *report.Record) string {
	return report.ExportMarkdown(rec, func(slot report.Slot, id string) string {
		if name := s.name(slot, id); name != "" {
			return fmt.Sprintf("%s (%s)", name, id)
		}
		return id
	})
}

func (s *Service) name(slot report.Slot, id string) string {
	if s.deps.Catalog == nil {
		return ""
	}
	src := s.deps.Catalog.Categories()
	if slot == report.SlotRisk {
		src = s.deps.Catalog.Risks()
	}
	e, err := src.Taxonomy.Lookup(id)
	if err != nil {
		return ""
	}
	return e.Name
}

func (s *Service) redact(in report.UserInput) report.UserInput {
	r := s.deps.Redactor
	if !r.Enabled() {
		return in
	}
	return report.UserInput{
		ProblemText:       r.Redact(in.ProblemText),
		ProcessObject:     r.Redact(in.ProcessObject),
		Period:            r.Redact(in.Period),
		ParticipantsRoles: r.Redact(in.ParticipantsRoles),
		WhatViolated:      r.Redact(in.WhatViolated),
		AmountsTerms:      r.Redact(in.AmountsTerms),
		Documents:         r.Redact(in.Documents),
	}
}

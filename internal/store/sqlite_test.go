package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/fyrsmithlabs/devaudit/internal/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func newTestStore(t *testing.T, opts ...Option) *SQLite {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "audit.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLite_CreateGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	input := report.UserInput{ProblemText: "double payment", Period: "Q1"}
	created, err := s.Create(ctx, "u1", input)
	require.NoError(t, err)
	assert.Positive(t, created.ID)
	assert.Equal(t, report.StatusDraft, created.Status)

	got, err := s.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.Owner)
	assert.Equal(t, input, got.UserInput)
	assert.Empty(t, got.Sections)
	assert.False(t, got.HasSections())

	second, err := s.Create(ctx, "u1", input)
	require.NoError(t, err)
	assert.Greater(t, second.ID, created.ID)
}

func TestSQLite_CreateRejectsEmptyProblem(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Create(context.Background(), "u1", report.UserInput{Period: "Q1"})
	assert.ErrorIs(t, err, report.ErrInvalidInput)
}

func TestSQLite_GetNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.Update(context.Background(), 42, Fields{ViewMode: map[report.SectionKey]report.ViewMode{}})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_PartialUpdate(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	s := newTestStore(t, WithClock(clock.Now))

	rec, err := s.Create(ctx, "u1", report.UserInput{ProblemText: "p"})
	require.NoError(t, err)

	sections := report.Sections{
		report.SectionEssence: report.VariantedSection("", []report.Variant{
			report.ShortFullVariant("s", "f"),
			report.StringVariant("plain"),
		}),
	}
	selected := report.Selected{
		report.SlotDeviationCategory: {PrimaryID: "C1", Alternatives: []string{"C2"}, Confidence: 90, Rationale: "r"},
		report.SlotRisk:              {PrimaryID: "R1", Alternatives: []string{}},
	}
	generated := report.StatusGenerated

	clock.t = clock.t.Add(time.Minute)
	require.NoError(t, s.Update(ctx, rec.ID, Fields{Status: &generated, Selected: selected, Sections: sections}))

	clock.t = clock.t.Add(time.Minute)
	require.NoError(t, s.Update(ctx, rec.ID, Fields{ChosenVariant: map[report.SectionKey]int{report.SectionEssence: 1}}))

	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, report.StatusGenerated, got.Status)
	assert.Equal(t, selected, got.Selected)
	assert.Equal(t, 1, got.Chosen(report.SectionEssence))
	assert.Equal(t, "plain", report.Render(got, report.SectionEssence))
	assert.Equal(t, rec.CreatedAt.Add(2*time.Minute), got.UpdatedAt)
	assert.Equal(t, rec.CreatedAt, got.CreatedAt)
}

func TestSQLite_UpdatedAtNeverDecreases(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	s := newTestStore(t, WithClock(clock.Now))

	rec, err := s.Create(ctx, "u1", report.UserInput{ProblemText: "p"})
	require.NoError(t, err)

	clock.t = clock.t.Add(-time.Hour)
	require.NoError(t, s.Update(ctx, rec.ID, Fields{ViewMode: map[report.SectionKey]report.ViewMode{report.SectionEssence: report.ModeFull}}))

	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.UpdatedAt, got.UpdatedAt)
	assert.Equal(t, report.ModeFull, got.Mode(report.SectionEssence))
}

func TestSQLite_ListByOwner(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, owner := range []string{"a", "b", "a"} {
		_, err := s.Create(ctx, owner, report.UserInput{ProblemText: "p"})
		require.NoError(t, err)
	}

	recs, err := s.ListByOwner(ctx, "a", 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Greater(t, recs[0].ID, recs[1].ID)
}

func TestSQLite_DailyGrant(t *testing.T) {
	ctx := context.Background()
	moscow, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		t.Skip("tzdata not available")
	}
	s := newTestStore(t, WithLocation(moscow))

	// 20:30 UTC on March 1 is already March 2 in Moscow.
	issued := time.Date(2024, 3, 1, 20, 30, 0, 0, time.UTC)
	require.NoError(t, s.Grant(ctx, "u1", issued))

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"same moment", issued, true},
		{"later the same Moscow day", time.Date(2024, 3, 2, 20, 0, 0, 0, time.UTC), true},
		{"next Moscow day", time.Date(2024, 3, 2, 21, 0, 0, 0, time.UTC), false},
		{"earlier Moscow day", time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := s.IsAuthorized(ctx, "u1", tt.at)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}

	ok, err := s.IsAuthorized(ctx, "stranger", issued)
	require.NoError(t, err)
	assert.False(t, ok)

	// Re-granting moves the grant to the new day.
	next := time.Date(2024, 3, 3, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.Grant(ctx, "u1", next))
	ok, err = s.IsAuthorized(ctx, "u1", next)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSQLite_InMemory(t *testing.T) {
	s, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	defer s.Close()

	rec, err := s.Create(context.Background(), "u", report.UserInput{ProblemText: "p"})
	require.NoError(t, err)
	_, err = s.Get(context.Background(), rec.ID)
	require.NoError(t, err)
}

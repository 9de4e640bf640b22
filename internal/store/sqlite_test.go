package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func sampleAttempt(site string, outcome model.Outcome, started time.Time) *model.SubmissionAttempt {
	return &model.SubmissionAttempt{
		SiteURL: site,
		Target: &model.Candidate{
			Kind:     model.KindVisibleForm,
			Target:   site + "/contact",
			Score:    24,
			Priority: model.TierStatic,
		},
		FieldsFilled: map[string]string{"email": "jane@sender.test"},
		MethodUsed:   model.MethodFormPost,
		Outcome:      outcome,
		Evidence:     "thank you for contacting us",
		Elapsed:      1500 * time.Millisecond,
		States:       []model.State{model.StateDiscovered, model.StateFieldsMapped, model.StateSubmitted},
		StartedAt:    started,
	}
}

func TestSQLite_SaveAndGetAttempt(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a := sampleAttempt("https://acme.test", model.OutcomeSuccess, time.Now().UTC())
	require.NoError(t, st.SaveAttempt(ctx, a))
	require.NotEmpty(t, a.ID)

	got, err := st.GetAttempt(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://acme.test", got.SiteURL)
	assert.Equal(t, model.OutcomeSuccess, got.Outcome)
	assert.Equal(t, model.MethodFormPost, got.MethodUsed)
	assert.Equal(t, "https://acme.test/contact", got.TargetURL())
	assert.Equal(t, "jane@sender.test", got.FieldsFilled["email"])
	assert.Equal(t, 1500*time.Millisecond, got.Elapsed)
	assert.Len(t, got.States, 3)
}

func TestSQLite_SaveAttempt_Upsert(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a := sampleAttempt("https://acme.test", model.OutcomeIndeterminate, time.Now().UTC())
	a.ID = "fixed-id"
	require.NoError(t, st.SaveAttempt(ctx, a))

	a.Outcome = model.OutcomeFailed
	a.Reason = model.ReasonCaptchaUnsolved
	require.NoError(t, st.SaveAttempt(ctx, a))

	all, err := st.ListAttempts(ctx, AttemptFilter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, model.OutcomeFailed, all[0].Outcome)
	assert.Equal(t, model.ReasonCaptchaUnsolved, all[0].Reason)
}

func TestSQLite_GetAttempt_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetAttempt(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_ListAttempts_Filters(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	old := sampleAttempt("https://old.test", model.OutcomeSuccess, now.Add(-48*time.Hour))
	ok := sampleAttempt("https://ok.test", model.OutcomeSuccess, now.Add(-time.Hour))
	bad := sampleAttempt("https://bad.test", model.OutcomeFailed, now.Add(-30*time.Minute))
	bad.Reason = model.ReasonNoCandidateFound
	for _, a := range []*model.SubmissionAttempt{old, ok, bad} {
		require.NoError(t, st.SaveAttempt(ctx, a))
	}

	all, err := st.ListAttempts(ctx, AttemptFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "https://bad.test", all[0].SiteURL, "newest first")

	recent, err := st.ListAttempts(ctx, AttemptFilter{Since: now.Add(-24 * time.Hour)})
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	failed, err := st.ListAttempts(ctx, AttemptFilter{Outcome: model.OutcomeFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, model.ReasonNoCandidateFound, failed[0].Reason)

	byReason, err := st.ListAttempts(ctx, AttemptFilter{Reason: model.ReasonNoCandidateFound})
	require.NoError(t, err)
	assert.Len(t, byReason, 1)

	bySite, err := st.ListAttempts(ctx, AttemptFilter{SiteURL: "https://ok.test"})
	require.NoError(t, err)
	assert.Len(t, bySite, 1)

	page, err := st.ListAttempts(ctx, AttemptFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "https://ok.test", page[0].SiteURL)
}

func TestSQLite_DeleteAttemptsBefore(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, st.SaveAttempt(ctx, sampleAttempt("https://a.test", model.OutcomeSuccess, now.Add(-72*time.Hour))))
	require.NoError(t, st.SaveAttempt(ctx, sampleAttempt("https://b.test", model.OutcomeSuccess, now)))

	n, err := st.DeleteAttemptsBefore(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rest, err := st.ListAttempts(ctx, AttemptFilter{})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "https://b.test", rest[0].SiteURL)
}

func TestSQLite_Ping(t *testing.T) {
	st := newTestSQLiteStore(t)
	assert.NoError(t, st.Ping(context.Background()))
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	assert.NoError(t, st.Migrate(context.Background()))
}

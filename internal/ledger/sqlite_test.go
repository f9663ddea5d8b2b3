package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"outreachd/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	require.NoError(t, EnsureSchema(db))
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db)
}

func TestLogAndLatest(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	payload := json.RawMessage(`{"profile_url":"https://example.com/in/abc"}`)
	id, err := s.Log(ctx, domain.ActionConnectionRequest, domain.EntityProfile, "abc", payload)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	rec, err := s.Latest(ctx, domain.ActionConnectionRequest, domain.EntityProfile, "abc")
	require.NoError(t, err)
	require.NotNil(t, rec)

	want := domain.ActionRecord{
		ID:         id,
		ActionType: domain.ActionConnectionRequest,
		EntityType: domain.EntityProfile,
		EntityID:   "abc",
		Status:     domain.StatusPending,
		Payload:    payload,
	}
	if diff := cmp.Diff(want, *rec, cmpopts.IgnoreFields(domain.ActionRecord{}, "CreatedAt", "UpdatedAt")); diff != "" {
		t.Errorf("Latest mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, rec.CreatedAt, rec.UpdatedAt)
}

func TestLatestReturnsNilForUnknownTuple(t *testing.T) {
	s := newTestStore(t)

	rec, err := s.Latest(context.Background(), domain.ActionComment, domain.EntityPost, "nope")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestLatestPicksNewestRecord(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return base })
	first, err := s.Log(ctx, domain.ActionConnectionRequest, domain.EntityProfile, "abc", nil)
	require.NoError(t, err)

	s.SetClock(func() time.Time { return base.Add(time.Minute) })
	second, err := s.Log(ctx, domain.ActionConnectionRequest, domain.EntityProfile, "abc", nil)
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	rec, err := s.Latest(ctx, domain.ActionConnectionRequest, domain.EntityProfile, "abc")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, second, rec.ID)
}

func TestUpdateStatusTransition(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.Log(ctx, domain.ActionConnectionRequest, domain.EntityProfile, "abc", nil)
	require.NoError(t, err)

	msg := "rate limited"
	require.NoError(t, s.UpdateStatus(ctx, id, domain.StatusFailed, &msg, nil))

	rec, err := s.Latest(ctx, domain.ActionConnectionRequest, domain.EntityProfile, "abc")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, domain.StatusFailed, rec.Status)
	require.NotNil(t, rec.ErrorMessage)
	assert.Equal(t, "rate limited", *rec.ErrorMessage)
}

func TestStatusNeverReverts(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.Log(ctx, domain.ActionCreateDraft, domain.EntityMeeting, "m1", nil)
	require.NoError(t, err)
	require.NoError(t, s.UpdateStatus(ctx, id, domain.StatusSucceeded, nil, nil))

	// A settled record ignores further transitions.
	msg := "late failure"
	require.NoError(t, s.UpdateStatus(ctx, id, domain.StatusFailed, &msg, nil))

	rec, err := s.Latest(ctx, domain.ActionCreateDraft, domain.EntityMeeting, "m1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSucceeded, rec.Status)
	assert.Nil(t, rec.ErrorMessage)
}

func TestUpdateStatusRejectsPendingTarget(t *testing.T) {
	s := newTestStore(t)
	err := s.UpdateStatus(context.Background(), "act_x", domain.StatusPending, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestUpdateStatusUnknownIDIsNoOp(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.UpdateStatus(context.Background(), "act_nope", domain.StatusSucceeded, nil, nil))
}

func TestCountsByDate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	day := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return day.Add(9 * time.Hour) })

	id1, err := s.Log(ctx, domain.ActionConnectionRequest, domain.EntityProfile, "p1", nil)
	require.NoError(t, err)
	_, err = s.Log(ctx, domain.ActionConnectionRequest, domain.EntityProfile, "p2", nil)
	require.NoError(t, err)
	_, err = s.Log(ctx, domain.ActionComment, domain.EntityPost, "post1", nil)
	require.NoError(t, err)
	require.NoError(t, s.UpdateStatus(ctx, id1, domain.StatusSucceeded, nil, nil))

	// Logged just before midnight the previous day: outside the window.
	s.SetClock(func() time.Time { return day.Add(-time.Second) })
	_, err = s.Log(ctx, domain.ActionComment, domain.EntityPost, "old", nil)
	require.NoError(t, err)

	counts, err := s.CountsByDate(ctx, day)
	require.NoError(t, err)

	want := []domain.ActionCount{
		{ActionType: domain.ActionComment, Status: domain.StatusPending, Count: 1},
		{ActionType: domain.ActionConnectionRequest, Status: domain.StatusPending, Count: 1},
		{ActionType: domain.ActionConnectionRequest, Status: domain.StatusSucceeded, Count: 1},
	}
	if diff := cmp.Diff(want, counts); diff != "" {
		t.Errorf("CountsByDate mismatch (-want +got):\n%s", diff)
	}
}

func TestPendingByDate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	day := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return day.Add(8 * time.Hour) })

	pendingID, err := s.Log(ctx, domain.ActionSendMessage, domain.EntityProfile, "p1", nil)
	require.NoError(t, err)
	doneID, err := s.Log(ctx, domain.ActionSendMessage, domain.EntityProfile, "p2", nil)
	require.NoError(t, err)
	require.NoError(t, s.UpdateStatus(ctx, doneID, domain.StatusSucceeded, nil, nil))

	recs, err := s.Pending(ctx, day.Add(13*time.Hour))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, pendingID, recs[0].ID)

	recs, err = s.Pending(ctx, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestRecentOrdering(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		offset := time.Duration(i) * time.Minute
		s.SetClock(func() time.Time { return base.Add(offset) })
		id, err := s.Log(ctx, domain.ActionLike, domain.EntityPost, "post", nil)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	recs, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, ids[2], recs[0].ID)
	assert.Equal(t, ids[1], recs[1].ID)
}

func TestActionIDsAreTimeSortable(t *testing.T) {
	a := newActionID(time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC))
	b := newActionID(time.Date(2026, 8, 29, 10, 0, 1, 0, time.UTC))
	assert.Less(t, a, b)
}

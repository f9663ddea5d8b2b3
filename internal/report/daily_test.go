package report

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"outreachd/internal/domain"
	"outreachd/internal/ledger"
	"outreachd/internal/seen"
)

func TestBuild(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	require.NoError(t, ledger.EnsureSchema(db))
	require.NoError(t, seen.EnsureSchema(db))
	t.Cleanup(func() { _ = db.Close() })

	led := ledger.NewStore(db)
	seenStore := seen.NewStore(db)

	day := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	led.SetClock(func() time.Time { return day.Add(9 * time.Hour) })

	doneID, err := led.Log(ctx, domain.ActionCreateDraft, domain.EntityMeeting, "m1", nil)
	require.NoError(t, err)
	require.NoError(t, led.UpdateStatus(ctx, doneID, domain.StatusSucceeded, nil, nil))
	pendingID, err := led.Log(ctx, domain.ActionCreateDraft, domain.EntityMeeting, "m2", nil)
	require.NoError(t, err)

	require.NoError(t, seenStore.MarkSeen(ctx, domain.EntityMeeting, "m1"))
	require.NoError(t, seenStore.MarkSeen(ctx, domain.EntityMeeting, "m2"))

	rep, err := Build(ctx, led, seenStore, day)
	require.NoError(t, err)

	assert.Equal(t, "2026-08-29", rep.Date)
	assert.Equal(t, 2, rep.SeenTotal)
	require.Len(t, rep.Pending, 1)
	assert.Equal(t, pendingID, rep.Pending[0].ID)

	wantCounts := []domain.ActionCount{
		{ActionType: domain.ActionCreateDraft, Status: domain.StatusPending, Count: 1},
		{ActionType: domain.ActionCreateDraft, Status: domain.StatusSucceeded, Count: 1},
	}
	if diff := cmp.Diff(wantCounts, rep.Counts); diff != "" {
		t.Errorf("Counts mismatch (-want +got):\n%s", diff)
	}

	// A day with no activity yields an empty, well-formed report.
	empty, err := Build(ctx, led, seenStore, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Empty(t, empty.Counts)
	assert.Empty(t, empty.Pending)
	assert.Equal(t, 2, empty.SeenTotal)
}

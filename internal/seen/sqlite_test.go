package seen

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"
	"testing"

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

func TestHasAndMarkSeen(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	seen, err := s.Has(ctx, domain.EntityPost, "p1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, s.MarkSeen(ctx, domain.EntityPost, "p1"))

	seen, err = s.Has(ctx, domain.EntityPost, "p1")
	require.NoError(t, err)
	assert.True(t, seen)

	// Same id under a different entity type is a different entity.
	seen, err = s.Has(ctx, domain.EntityProfile, "p1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestMarkSeenIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.MarkSeen(ctx, domain.EntityMeeting, "m1"))
	require.NoError(t, s.MarkSeen(ctx, domain.EntityMeeting, "m1"))

	count, err := s.Count(ctx, domain.EntityMeeting)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestClaimHasOneWinner(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	won, err := s.Claim(ctx, domain.EntityMeeting, "m1")
	require.NoError(t, err)
	assert.True(t, won)

	won, err = s.Claim(ctx, domain.EntityMeeting, "m1")
	require.NoError(t, err)
	assert.False(t, won)

	// A previously marked entity can never be claimed.
	require.NoError(t, s.MarkSeen(ctx, domain.EntityPost, "p1"))
	won, err = s.Claim(ctx, domain.EntityPost, "p1")
	require.NoError(t, err)
	assert.False(t, won)
}

func TestClaimUnderContention(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := s.Claim(ctx, domain.EntityProfile, "u1")
			assert.NoError(t, err)
			if won {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestCountScopes(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.MarkSeen(ctx, domain.EntityPost, "p1"))
	require.NoError(t, s.MarkSeen(ctx, domain.EntityPost, "p2"))
	require.NoError(t, s.MarkSeen(ctx, domain.EntityMeeting, "m1"))

	total, err := s.Count(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	posts, err := s.Count(ctx, domain.EntityPost)
	require.NoError(t, err)
	assert.Equal(t, 2, posts)

	profiles, err := s.Count(ctx, domain.EntityProfile)
	require.NoError(t, err)
	assert.Equal(t, 0, profiles)
}

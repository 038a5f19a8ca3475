package progress

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamscribe/internal/types"
)

const owner = "64f000000000000000000001"

func setup(t *testing.T) (*miniredis.Miniredis, *RedisTracker) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, NewRedisTracker(rdb, time.Hour)
}

func TestBeginAndGet(t *testing.T) {
	_, tr := setup(t)
	ctx := context.Background()

	jobID, err := tr.Begin(ctx, owner, "https://youtu.be/dQw4w9WgXcQ")
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	snap, err := tr.Get(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, jobID, snap.JobID)
	assert.Equal(t, owner, snap.UserID)
	assert.Equal(t, "https://youtu.be/dQw4w9WgXcQ", snap.SourceURL)
	assert.Equal(t, "Starting transcription", snap.Message)
	assert.False(t, snap.Done)
}

func TestConcurrentJobsDoNotInterfere(t *testing.T) {
	_, tr := setup(t)
	ctx := context.Background()

	a, err := tr.Begin(ctx, owner, "https://youtu.be/aaaaaaaaaaa")
	require.NoError(t, err)
	b, err := tr.Begin(ctx, owner, "https://youtu.be/bbbbbbbbbbb")
	require.NoError(t, err)
	require.NotEqual(t, a, b)

	require.NoError(t, tr.Update(ctx, a, "Uploading audio"))
	require.NoError(t, tr.Update(ctx, b, "Extracting audio"))

	snapA, err := tr.Get(ctx, a)
	require.NoError(t, err)
	snapB, err := tr.Get(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, "Uploading audio", snapA.Message)
	assert.Equal(t, "Extracting audio", snapB.Message)
}

func TestCompleteSetsResult(t *testing.T) {
	_, tr := setup(t)
	ctx := context.Background()

	jobID, err := tr.Begin(ctx, owner, "https://youtu.be/dQw4w9WgXcQ")
	require.NoError(t, err)
	require.NoError(t, tr.Complete(ctx, jobID, "rec-123"))

	snap, err := tr.Get(ctx, jobID)
	require.NoError(t, err)
	assert.True(t, snap.Done)
	assert.False(t, snap.Failed)
	assert.Equal(t, "rec-123", snap.ResultID)
}

func TestFailCarriesCause(t *testing.T) {
	_, tr := setup(t)
	ctx := context.Background()

	jobID, err := tr.Begin(ctx, owner, "https://youtu.be/dQw4w9WgXcQ")
	require.NoError(t, err)
	require.NoError(t, tr.Fail(ctx, jobID, errors.New("upstream said no")))

	snap, err := tr.Get(ctx, jobID)
	require.NoError(t, err)
	assert.True(t, snap.Done)
	assert.True(t, snap.Failed)
	assert.Equal(t, "upstream said no", snap.Error)
}

func TestUnknownJobIsNotFound(t *testing.T) {
	_, tr := setup(t)
	_, err := tr.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestSnapshotExpires(t *testing.T) {
	mr, tr := setup(t)
	ctx := context.Background()

	jobID, err := tr.Begin(ctx, owner, "https://youtu.be/dQw4w9WgXcQ")
	require.NoError(t, err)

	mr.FastForward(2 * time.Hour)
	_, err = tr.Get(ctx, jobID)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

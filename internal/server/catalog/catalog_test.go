package catalog

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/transcoder/internal/clock"
	"github.com/dmitrijs2005/transcoder/internal/logging"
	"github.com/dmitrijs2005/transcoder/internal/server/encoder"
	"github.com/dmitrijs2005/transcoder/internal/server/models"
	"github.com/dmitrijs2005/transcoder/internal/server/repositories/assets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newReconciler(t *testing.T, recordFailures bool) (*Reconciler, *assets.MemoryRepository, *clock.FakeClock) {
	t.Helper()
	repo := assets.NewMemoryRepository()
	clk := clock.Fake(ts)
	require.NoError(t, repo.Put(context.Background(), &models.Asset{
		OwnerID:    "alice",
		Filename:   "clip.mp4",
		StorageKey: "uploads/alice/1_clip.mp4",
		Processed:  []string{},
		UploadedAt: ts,
	}))
	return NewReconciler(repo, clk, logging.Nop(), recordFailures), repo, clk
}

func TestRecordVariant_Idempotent(t *testing.T) {
	r, repo, clk := newReconciler(t, false)
	ctx := context.Background()

	rec := models.VariantRecord{OwnerID: "alice", Filename: "clip.mp4", Variant: "clip_medium.mp4"}
	require.NoError(t, r.RecordVariant(ctx, rec))
	clk.Advance(time.Minute)
	require.NoError(t, r.RecordVariant(ctx, rec))
	require.NoError(t, r.RecordVariant(ctx, models.VariantRecord{OwnerID: "alice", Filename: "clip.mp4", Variant: "clip_fast.mp4"}))

	got, err := repo.Get(ctx, "alice", "clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, []string{"clip_medium.mp4", "clip_fast.mp4"}, got.Processed)
	require.NotNil(t, got.LastTranscodedAt)
	assert.True(t, got.LastTranscodedAt.Equal(ts.Add(time.Minute)))
}

func TestRecordFailure_DisabledLeavesNoTrace(t *testing.T) {
	r, repo, _ := newReconciler(t, false)
	ctx := context.Background()

	require.NoError(t, r.RecordFailure(ctx, "alice", "clip.mp4", "clip_medium.mp4", errors.New("boom")))

	got, err := repo.Get(ctx, "alice", "clip.mp4")
	require.NoError(t, err)
	assert.Nil(t, got.LastFailure)
	assert.False(t, r.RecordsFailures())
}

func TestRecordFailure_Enabled(t *testing.T) {
	r, repo, _ := newReconciler(t, true)
	ctx := context.Background()

	cause := &encoder.EncodeFailure{Variant: "clip_medium.mp4", Diagnostic: "Invalid data found", Err: errors.New("exit status 1")}
	require.NoError(t, r.RecordFailure(ctx, "alice", "clip.mp4", "clip_medium.mp4", cause))

	got, err := repo.Get(ctx, "alice", "clip.mp4")
	require.NoError(t, err)
	require.NotNil(t, got.LastFailure)
	assert.Equal(t, "clip_medium.mp4", got.LastFailure.Variant)
	assert.Equal(t, "Invalid data found", got.LastFailure.Reason)
	assert.True(t, got.LastFailure.At.Equal(ts))
}

func TestRecordFailure_TruncatesAndSkipsUnknownAsset(t *testing.T) {
	r, repo, _ := newReconciler(t, true)
	ctx := context.Background()

	long := strings.Repeat("x", maxFailureReason) + "tail"
	require.NoError(t, r.RecordFailure(ctx, "alice", "clip.mp4", "clip_fast.mp4", errors.New(long)))
	got, err := repo.Get(ctx, "alice", "clip.mp4")
	require.NoError(t, err)
	assert.Len(t, got.LastFailure.Reason, maxFailureReason)
	assert.True(t, strings.HasSuffix(got.LastFailure.Reason, "tail"))

	assert.NoError(t, r.RecordFailure(ctx, "alice", "ghost.mp4", "ghost_fast.mp4", errors.New("boom")))
}

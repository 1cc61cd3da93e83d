package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upload-gateway/models"
	"upload-gateway/store"
	"upload-gateway/testutil"
)

// newSession creates a one-file batch and returns its upload id.
func newSession(t *testing.T, svc *UploadService, owner string, size int64) string {
	t.Helper()
	batch, err := svc.InitBatch(context.Background(), owner, []models.ManifestEntry{
		{Name: "file.bin", Size: size},
	}, "", "")
	require.NoError(t, err)
	return batch.Sessions[0].UploadID
}

func TestApplyChunk_AccumulatesToDeclaredSize(t *testing.T) {
	svc := NewUploadService(testutil.NewMemorySessionStore(), nil)
	uploadID := newSession(t, svc, "user-1", 1000)

	ack, err := svc.ApplyChunk(context.Background(), "user-1", uploadID, 0, make([]byte, 400), false)
	require.NoError(t, err)
	assert.EqualValues(t, 400, ack.BytesUploaded)
	assert.Equal(t, 40, ack.Progress)
	assert.Equal(t, models.StatusUploading, ack.Status)
	assert.False(t, ack.IsComplete)

	ack, err = svc.ApplyChunk(context.Background(), "user-1", uploadID, 1, make([]byte, 600), true)
	require.NoError(t, err)
	assert.EqualValues(t, 1000, ack.BytesUploaded)
	assert.EqualValues(t, 1000, ack.DeclaredSize)
	assert.Equal(t, 100, ack.Progress)
	assert.Equal(t, models.StatusReadyForProcessing, ack.Status)
	assert.True(t, ack.IsComplete)
}

func TestApplyChunk_SingleChunkUpload(t *testing.T) {
	svc := NewUploadService(testutil.NewMemorySessionStore(), nil)
	uploadID := newSession(t, svc, "user-1", 1000)

	ack, err := svc.ApplyChunk(context.Background(), "user-1", uploadID, 0, make([]byte, 1000), true)
	require.NoError(t, err)
	assert.EqualValues(t, 1000, ack.BytesUploaded)
	assert.Equal(t, 100, ack.Progress)
	assert.True(t, ack.IsComplete)
	assert.Equal(t, models.StatusReadyForProcessing, ack.Status)
}

func TestApplyChunk_ProgressNotClampedAbove100(t *testing.T) {
	svc := NewUploadService(testutil.NewMemorySessionStore(), nil)
	uploadID := newSession(t, svc, "user-1", 100)

	ack, err := svc.ApplyChunk(context.Background(), "user-1", uploadID, 0, make([]byte, 150), false)
	require.NoError(t, err)
	assert.Equal(t, 150, ack.Progress)
}

func TestApplyChunk_Rejections(t *testing.T) {
	svc := NewUploadService(testutil.NewMemorySessionStore(), nil)
	uploadID := newSession(t, svc, "user-1", 1000)

	_, err := svc.ApplyChunk(context.Background(), "user-1", uploadID, 0, nil, false)
	assert.ErrorIs(t, err, ErrInvalidChunk)

	_, err = svc.ApplyChunk(context.Background(), "user-1", "no-such-upload", 0, make([]byte, 10), false)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Owner mismatch must be indistinguishable from absence.
	_, err = svc.ApplyChunk(context.Background(), "user-2", uploadID, 0, make([]byte, 10), false)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestApplyChunk_StatusIsMonotone(t *testing.T) {
	svc := NewUploadService(testutil.NewMemorySessionStore(), nil)
	uploadID := newSession(t, svc, "user-1", 1000)

	ack, err := svc.ApplyChunk(context.Background(), "user-1", uploadID, 0, make([]byte, 500), true)
	require.NoError(t, err)
	require.Equal(t, models.StatusReadyForProcessing, ack.Status)

	// A straggler chunk after the last one still counts bytes but must not
	// pull the status back to uploading.
	ack, err = svc.ApplyChunk(context.Background(), "user-1", uploadID, 1, make([]byte, 500), false)
	require.NoError(t, err)
	assert.EqualValues(t, 1000, ack.BytesUploaded)
	assert.Equal(t, models.StatusReadyForProcessing, ack.Status)
}

func TestApplyChunk_ConcurrentChunksDoNotLoseUpdates(t *testing.T) {
	svc := NewUploadService(testutil.NewMemorySessionStore(), nil)
	uploadID := newSession(t, svc, "user-1", 1000)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(seq int) {
			defer wg.Done()
			_, err := svc.ApplyChunk(context.Background(), "user-1", uploadID, seq, make([]byte, 500), false)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	sess, err := svc.GetSession(context.Background(), "user-1", uploadID)
	require.NoError(t, err)
	assert.EqualValues(t, 1000, sess.BytesUploaded, "concurrent chunk applications must serialize")
}

func TestApplyChunk_SinkConfirmsCompletion(t *testing.T) {
	sink := testutil.NewMemoryChunkSink()
	svc := NewUploadService(testutil.NewMemorySessionStore(), sink)
	uploadID := newSession(t, svc, "user-1", 200)

	ack, err := svc.ApplyChunk(context.Background(), "user-1", uploadID, 0, make([]byte, 100), false)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUploading, ack.Status)

	ack, err = svc.ApplyChunk(context.Background(), "user-1", uploadID, 1, make([]byte, 100), true)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, ack.Status)
	assert.Equal(t, 2, sink.ChunkCount(uploadID))
}

func TestApplyChunk_SinkFailureMarksSessionError(t *testing.T) {
	sink := testutil.NewMemoryChunkSink()
	sink.FailStore = true
	svc := NewUploadService(testutil.NewMemorySessionStore(), sink)
	uploadID := newSession(t, svc, "user-1", 200)

	_, err := svc.ApplyChunk(context.Background(), "user-1", uploadID, 0, make([]byte, 100), false)
	assert.ErrorIs(t, err, ErrChunkStorage)

	sess, err := svc.GetSession(context.Background(), "user-1", uploadID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, sess.Status)
}

func TestConfirmUpload_TerminalTransitions(t *testing.T) {
	svc := NewUploadService(testutil.NewMemorySessionStore(), nil)
	uploadID := newSession(t, svc, "user-1", 100)

	// Completed is only reachable once all declared bytes are in.
	_, err := svc.ConfirmUpload(context.Background(), "user-1", uploadID, models.StatusCompleted)
	assert.ErrorIs(t, err, store.ErrInvalidTransition)

	_, err = svc.ApplyChunk(context.Background(), "user-1", uploadID, 0, make([]byte, 100), true)
	require.NoError(t, err)

	sess, err := svc.ConfirmUpload(context.Background(), "user-1", uploadID, models.StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, sess.Status)

	// Confirming again is an idempotent no-op.
	sess, err = svc.ConfirmUpload(context.Background(), "user-1", uploadID, models.StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, sess.Status)

	// A completed session can no longer be failed.
	_, err = svc.ConfirmUpload(context.Background(), "user-1", uploadID, models.StatusError)
	assert.ErrorIs(t, err, store.ErrInvalidTransition)
}

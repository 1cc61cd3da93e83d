package services

import (
	"context"
	"math"

	"upload-gateway/models"
)

// BatchStatus projects the caller's sessions under one batch id into a batch
// summary. It is a pure read: batch progress is always derived from the
// per-session rows, never stored, so it cannot drift from them. A batch the
// caller owns nothing under comes back empty rather than as an error.
func (s *UploadService) BatchStatus(ctx context.Context, ownerID, batchID string) (*models.BatchStatus, error) {
	sessions, err := s.store.ListByBatch(ctx, batchID, ownerID)
	if err != nil {
		return nil, err
	}

	uploads := make([]models.FileStatus, len(sessions))
	completed := 0
	for i, sess := range sessions {
		if sess.Status == models.StatusCompleted {
			completed++
		}
		uploads[i] = models.FileStatus{
			UploadID:      sess.UploadID,
			Filename:      sess.Filename,
			DeclaredSize:  sess.DeclaredSize,
			BytesUploaded: sess.BytesUploaded,
			Progress:      progressPercent(sess.BytesUploaded, sess.DeclaredSize),
			Status:        sess.Status,
			BatchPosition: sess.BatchPosition,
			CreatedAt:     sess.CreatedAt,
			UpdatedAt:     sess.UpdatedAt,
		}
	}

	batchProgress := 0
	if len(sessions) > 0 {
		batchProgress = int(math.Round(float64(completed) / float64(len(sessions)) * 100))
	}

	return &models.BatchStatus{
		BatchID:        batchID,
		TotalFiles:     len(sessions),
		CompletedFiles: completed,
		BatchProgress:  batchProgress,
		Uploads:        uploads,
	}, nil
}

// GetSession returns one owner-scoped session.
func (s *UploadService) GetSession(ctx context.Context, ownerID, uploadID string) (*models.UploadSession, error) {
	return s.store.Get(ctx, uploadID, ownerID)
}

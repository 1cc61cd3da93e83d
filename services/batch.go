package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"upload-gateway/models"
)

// InitBatch creates one pending session per manifest entry, all sharing one
// batch id. A caller-supplied batch id makes the call retryable: replaying
// the same manifest under the same id returns the already-created sessions
// instead of appending duplicates.
func (s *UploadService) InitBatch(ctx context.Context, ownerID string, manifest []models.ManifestEntry, batchID, projectName string) (*models.BatchInit, error) {
	if len(manifest) == 0 {
		return nil, ErrEmptyManifest
	}
	if len(manifest) > MaxBatchFiles {
		return nil, fmt.Errorf("%w: %d files (max %d)", ErrBatchTooLarge, len(manifest), MaxBatchFiles)
	}
	for i, entry := range manifest {
		if entry.Name == "" {
			return nil, fmt.Errorf("%w: file %d has no name", ErrInvalidManifestEntry, i+1)
		}
		if entry.Size <= 0 {
			return nil, fmt.Errorf("%w: file %d has size %d", ErrInvalidManifestEntry, i+1, entry.Size)
		}
	}

	if batchID != "" {
		existing, err := s.store.ListByBatch(ctx, batchID, ownerID)
		if err != nil {
			return nil, err
		}
		if len(existing) > 0 {
			return replayBatch(batchID, manifest, existing)
		}
	} else {
		batchID = uuid.NewString()
	}

	now := time.Now()
	sessions := make([]models.UploadSession, len(manifest))
	refs := make([]models.SessionRef, len(manifest))
	for i, entry := range manifest {
		uploadID := uuid.NewString()
		sessions[i] = models.UploadSession{
			UploadID:     uploadID,
			OwnerID:      ownerID,
			BatchID:      batchID,
			Filename:     entry.Name,
			DeclaredSize: entry.Size,
			Metadata: map[string]any{
				"originalName": entry.Name,
				"mimeType":     entry.MimeType,
				"lastModified": entry.LastModified,
				"projectName":  projectName,
			},
			BatchTotalFiles: len(manifest),
			BatchPosition:   i + 1,
			BytesUploaded:   0,
			Status:          models.StatusPending,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		refs[i] = models.SessionRef{
			UploadID:      uploadID,
			Filename:      entry.Name,
			DeclaredSize:  entry.Size,
			BatchPosition: i + 1,
		}
	}

	if err := s.store.CreateBatch(ctx, sessions); err != nil {
		return nil, err
	}

	log.Printf("[InitBatch] Created batch %s with %d sessions for owner %s", batchID, len(manifest), ownerID)
	return &models.BatchInit{
		BatchID:    batchID,
		TotalFiles: len(manifest),
		Sessions:   refs,
	}, nil
}

// replayBatch answers an init retry against an already-created batch. The
// manifest must match what was created, position by position; anything else
// is a conflict rather than an append.
func replayBatch(batchID string, manifest []models.ManifestEntry, existing []models.UploadSession) (*models.BatchInit, error) {
	if len(existing) != len(manifest) {
		return nil, fmt.Errorf("%w: batch %s has %d sessions, manifest has %d entries",
			ErrBatchConflict, batchID, len(existing), len(manifest))
	}

	refs := make([]models.SessionRef, len(existing))
	for i, sess := range existing {
		entry := manifest[i]
		if sess.Filename != entry.Name || sess.DeclaredSize != entry.Size {
			return nil, fmt.Errorf("%w: batch %s position %d", ErrBatchConflict, batchID, i+1)
		}
		refs[i] = models.SessionRef{
			UploadID:      sess.UploadID,
			Filename:      sess.Filename,
			DeclaredSize:  sess.DeclaredSize,
			BatchPosition: sess.BatchPosition,
		}
	}

	log.Printf("[InitBatch] Replayed batch %s (%d sessions)", batchID, len(existing))
	return &models.BatchInit{
		BatchID:    batchID,
		TotalFiles: len(existing),
		Sessions:   refs,
	}, nil
}

package services

import (
	"context"
	"fmt"
	"log"
	"math"

	"upload-gateway/models"
)

// ApplyChunk accounts for one arrived chunk and, when a sink is configured,
// hands the bytes over to it. The accounting itself is a pure accumulator:
// chunk order and boundaries are caller-asserted, so a retried chunk that was
// already acknowledged double-counts. The completed status is only ever set
// here on behalf of the sink confirming durable persistence, never by the
// accounting step.
func (s *UploadService) ApplyChunk(ctx context.Context, ownerID, uploadID string, sequence int, chunk []byte, isLast bool) (*models.ChunkAck, error) {
	if len(chunk) == 0 {
		return nil, ErrInvalidChunk
	}

	sess, err := s.store.ApplyChunk(ctx, uploadID, ownerID, int64(len(chunk)), isLast)
	if err != nil {
		return nil, err
	}

	ack := &models.ChunkAck{
		UploadID:      sess.UploadID,
		BytesUploaded: sess.BytesUploaded,
		DeclaredSize:  sess.DeclaredSize,
		Progress:      progressPercent(sess.BytesUploaded, sess.DeclaredSize),
		IsComplete:    isLast,
		Status:        sess.Status,
	}

	if s.sink == nil {
		return ack, nil
	}

	if err := s.sink.Store(ctx, uploadID, sequence, chunk); err != nil {
		if _, terr := s.store.SetTerminal(ctx, uploadID, ownerID, models.StatusError); terr != nil {
			log.Printf("[ApplyChunk] Failed to mark upload %s as error: %v", uploadID, terr)
		}
		return nil, fmt.Errorf("%w: %v", ErrChunkStorage, err)
	}

	if isLast {
		confirmed, err := s.store.SetTerminal(ctx, uploadID, ownerID, models.StatusCompleted)
		if err != nil {
			log.Printf("[ApplyChunk] Failed to confirm upload %s: %v", uploadID, err)
			return ack, nil
		}
		ack.Status = confirmed.Status
	}

	return ack, nil
}

// ConfirmUpload is the collaborator-facing terminal transition: an external
// storage collaborator reports durable persistence (completed) or a failure
// (error) for one session.
func (s *UploadService) ConfirmUpload(ctx context.Context, ownerID, uploadID string, status models.UploadStatus) (*models.UploadSession, error) {
	return s.store.SetTerminal(ctx, uploadID, ownerID, status)
}

// progressPercent rounds bytes/declared to a whole percent. It deliberately
// does not clamp above 100: an overrun past the declared size stays visible
// to the caller. A declared size of 0 reads as 0%.
func progressPercent(bytesUploaded, declaredSize int64) int {
	if declaredSize <= 0 {
		return 0
	}
	return int(math.Round(float64(bytesUploaded) / float64(declaredSize) * 100))
}

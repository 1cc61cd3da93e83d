package store

import (
	"context"
	"errors"

	"upload-gateway/models"
)

var (
	// ErrNotFound covers both a missing session and an owner mismatch; callers
	// must not be able to tell the two apart.
	ErrNotFound = errors.New("upload session not found")

	// ErrDuplicateKey means an upload_id collision on create. With uuid
	// generation this is practically unreachable, but a retry with fresh ids
	// is always safe.
	ErrDuplicateKey = errors.New("upload session already exists")

	// ErrInvalidTransition means a terminal status change was requested from a
	// state it is not allowed from.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// SessionStore is the durable table of upload sessions. Implementations must
// serialize concurrent ApplyChunk calls for the same upload id (atomic
// read-modify-write on bytes_uploaded/status) and must make CreateBatch
// all-or-nothing.
type SessionStore interface {
	// CreateBatch inserts every session or none of them.
	CreateBatch(ctx context.Context, sessions []models.UploadSession) error

	// Get returns ErrNotFound if the session is absent or owned by someone else.
	Get(ctx context.Context, uploadID, ownerID string) (*models.UploadSession, error)

	// ApplyChunk atomically adds chunkSize to bytes_uploaded and advances the
	// status forward-only: pending/uploading move to uploading, or to
	// ready_for_processing when isLast is set; later statuses are untouched.
	// Returns the session after the update.
	ApplyChunk(ctx context.Context, uploadID, ownerID string, chunkSize int64, isLast bool) (*models.UploadSession, error)

	// SetTerminal moves a session to completed or error. Completed is only
	// reachable from ready_for_processing; error from any non-terminal status.
	// Setting the status it already has is a no-op, not an error.
	SetTerminal(ctx context.Context, uploadID, ownerID string, status models.UploadStatus) (*models.UploadSession, error)

	// ListByBatch returns the caller's sessions under batchID ordered by
	// batch_position. An empty slice is not an error.
	ListByBatch(ctx context.Context, batchID, ownerID string) ([]models.UploadSession, error)
}

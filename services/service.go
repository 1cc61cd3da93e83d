package services

import (
	"context"
	"errors"
	"io"

	"upload-gateway/storage"
	"upload-gateway/store"
)

const (
	MaxBatchFiles = 50
)

// UploadService implements batch creation, per-chunk progress accounting and
// batch aggregation on top of a SessionStore. The sink is optional: without
// one the service is metadata-only and sessions stop at ready_for_processing
// until an external collaborator confirms them.
type UploadService struct {
	store store.SessionStore
	sink  storage.ChunkSink
}

var AppUploadService *UploadService

func NewUploadService(sessionStore store.SessionStore, sink storage.ChunkSink) *UploadService {
	return &UploadService{
		store: sessionStore,
		sink:  sink,
	}
}

// HasSink reports whether a chunk sink is configured.
func (s *UploadService) HasSink() bool {
	return s.sink != nil
}

// AssembleUpload streams the stored chunks of an upload through the sink.
func (s *UploadService) AssembleUpload(ctx context.Context, uploadID string, w io.Writer) error {
	if s.sink == nil {
		return errors.New("chunk storage not configured")
	}
	return s.sink.Assemble(ctx, uploadID, w)
}

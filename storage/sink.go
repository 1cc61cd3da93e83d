package storage

import (
	"context"
	"io"
)

// ChunkSink is the durable home for chunk bytes. The session service only
// accounts for byte counts; a sink decides where the bytes actually land and
// confirms (via the service's terminal transition) that they did.
type ChunkSink interface {
	// Store persists one chunk. Storing the same (uploadID, sequence) twice
	// must be a no-op so acknowledged chunks can be retried safely.
	Store(ctx context.Context, uploadID string, sequence int, data []byte) error

	// Assemble streams the stored chunks of an upload to w in sequence order.
	Assemble(ctx context.Context, uploadID string, w io.Writer) error
}

// memory_sink.go - In-memory ChunkSink for tests
package testutil

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
)

// MemoryChunkSink implements storage.ChunkSink in memory.
type MemoryChunkSink struct {
	mu     sync.Mutex
	chunks map[string]map[int][]byte // uploadID -> sequence -> data

	// FailStore makes every Store call fail, to exercise the error path.
	FailStore bool
}

func NewMemoryChunkSink() *MemoryChunkSink {
	return &MemoryChunkSink{
		chunks: make(map[string]map[int][]byte),
	}
}

func (m *MemoryChunkSink) Store(ctx context.Context, uploadID string, sequence int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailStore {
		return fmt.Errorf("simulated sink failure")
	}

	if m.chunks[uploadID] == nil {
		m.chunks[uploadID] = make(map[int][]byte)
	}
	if _, exists := m.chunks[uploadID][sequence]; exists {
		return nil
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	m.chunks[uploadID][sequence] = cp
	return nil
}

func (m *MemoryChunkSink) Assemble(ctx context.Context, uploadID string, w io.Writer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bySeq := m.chunks[uploadID]
	seqs := make([]int, 0, len(bySeq))
	for seq := range bySeq {
		seqs = append(seqs, seq)
	}
	sort.Ints(seqs)

	for _, seq := range seqs {
		if _, err := w.Write(bySeq[seq]); err != nil {
			return err
		}
	}
	return nil
}

// ChunkCount returns how many chunks are stored for an upload.
func (m *MemoryChunkSink) ChunkCount(uploadID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.chunks[uploadID])
}

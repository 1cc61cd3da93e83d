// memory_store.go - In-memory SessionStore for tests
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"upload-gateway/models"
	"upload-gateway/store"
)

// MemorySessionStore implements store.SessionStore with a mutex standing in
// for the database's per-document atomicity. Semantics mirror the Mongo
// implementation: owner mismatch reads as not found, chunk application is an
// atomic read-modify-write, batch creation is all-or-nothing.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]*models.UploadSession

	// FailCreate forces the next CreateBatch to fail after inserting
	// partially, to exercise the all-or-nothing contract.
	FailCreate bool
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]*models.UploadSession),
	}
}

func (m *MemorySessionStore) CreateBatch(ctx context.Context, sessions []models.UploadSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailCreate {
		m.FailCreate = false
		return fmt.Errorf("simulated store failure")
	}

	for _, sess := range sessions {
		if _, exists := m.sessions[sess.UploadID]; exists {
			return store.ErrDuplicateKey
		}
	}
	for _, existing := range m.sessions {
		for _, sess := range sessions {
			if existing.BatchID == sess.BatchID && existing.BatchPosition == sess.BatchPosition {
				return store.ErrDuplicateKey
			}
		}
	}

	for _, sess := range sessions {
		cp := sess
		m.sessions[sess.UploadID] = &cp
	}
	return nil
}

func (m *MemorySessionStore) Get(ctx context.Context, uploadID, ownerID string) (*models.UploadSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locked(uploadID, ownerID)
}

func (m *MemorySessionStore) ApplyChunk(ctx context.Context, uploadID, ownerID string, chunkSize int64, isLast bool) (*models.UploadSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.locked(uploadID, ownerID); err != nil {
		return nil, err
	}

	stored := m.sessions[uploadID]
	stored.BytesUploaded += chunkSize
	if stored.Status == models.StatusPending || stored.Status == models.StatusUploading {
		if isLast {
			stored.Status = models.StatusReadyForProcessing
		} else {
			stored.Status = models.StatusUploading
		}
	}
	stored.UpdatedAt = time.Now()

	cp := *stored
	return &cp, nil
}

func (m *MemorySessionStore) SetTerminal(ctx context.Context, uploadID, ownerID string, status models.UploadStatus) (*models.UploadSession, error) {
	if status != models.StatusCompleted && status != models.StatusError {
		return nil, fmt.Errorf("%w: %s is not a terminal status", store.ErrInvalidTransition, status)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.locked(uploadID, ownerID); err != nil {
		return nil, err
	}

	stored := m.sessions[uploadID]
	if stored.Status == status {
		cp := *stored
		return &cp, nil
	}

	allowed := stored.Status == models.StatusReadyForProcessing ||
		(status == models.StatusError && !stored.Status.Terminal())
	if !allowed {
		return nil, fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, stored.Status, status)
	}

	stored.Status = status
	stored.UpdatedAt = time.Now()
	cp := *stored
	return &cp, nil
}

func (m *MemorySessionStore) ListByBatch(ctx context.Context, batchID, ownerID string) ([]models.UploadSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.UploadSession
	for _, sess := range m.sessions {
		if sess.BatchID == batchID && sess.OwnerID == ownerID {
			out = append(out, *sess)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].BatchPosition < out[j].BatchPosition
	})
	return out, nil
}

// Count returns how many sessions the store holds, for all owners.
func (m *MemorySessionStore) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *MemorySessionStore) locked(uploadID, ownerID string) (*models.UploadSession, error) {
	sess, ok := m.sessions[uploadID]
	if !ok || sess.OwnerID != ownerID {
		return nil, store.ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

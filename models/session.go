package models

import (
	"fmt"
	"time"
)

type UploadStatus string

const (
	StatusPending            UploadStatus = "pending"
	StatusUploading          UploadStatus = "uploading"
	StatusReadyForProcessing UploadStatus = "ready_for_processing"
	StatusCompleted          UploadStatus = "completed"
	StatusError              UploadStatus = "error"
)

func ParseUploadStatus(s string) (UploadStatus, error) {
	switch UploadStatus(s) {
	case StatusPending, StatusUploading, StatusReadyForProcessing, StatusCompleted, StatusError:
		return UploadStatus(s), nil
	}
	return "", fmt.Errorf("unknown upload status: %q", s)
}

// Terminal reports whether no further transition is allowed from s.
func (s UploadStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// UploadSession is one file within one batch. Sessions are created by batch
// init, mutated only by chunk-arrival events and terminal confirmations, and
// never deleted.
type UploadSession struct {
	UploadID        string         `bson:"upload_id" json:"upload_id"`
	OwnerID         string         `bson:"owner_id" json:"-"`
	BatchID         string         `bson:"batch_id" json:"batch_id"`
	Filename        string         `bson:"filename" json:"filename"`
	DeclaredSize    int64          `bson:"declared_size" json:"declared_size"`
	Metadata        map[string]any `bson:"metadata" json:"metadata,omitempty"`
	BatchTotalFiles int            `bson:"batch_total_files" json:"batch_total_files"`
	BatchPosition   int            `bson:"batch_position" json:"batch_position"`
	BytesUploaded   int64          `bson:"bytes_uploaded" json:"bytes_uploaded"`
	Status          UploadStatus   `bson:"status" json:"status"`
	CreatedAt       time.Time      `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `bson:"updated_at" json:"updated_at"`
}

// ManifestEntry is one file descriptor in a batch-init request.
type ManifestEntry struct {
	Name         string `json:"name"`
	Size         int64  `json:"size"`
	MimeType     string `json:"mime_type"`
	LastModified int64  `json:"last_modified"`
}

// SessionRef is the per-file slice of a batch-init response.
type SessionRef struct {
	UploadID      string `json:"upload_id"`
	Filename      string `json:"filename"`
	DeclaredSize  int64  `json:"declared_size"`
	BatchPosition int    `json:"batch_position"`
}

type BatchInit struct {
	BatchID    string       `json:"batch_id"`
	TotalFiles int          `json:"total_files"`
	Sessions   []SessionRef `json:"upload_sessions"`
}

// ChunkAck acknowledges one applied chunk.
type ChunkAck struct {
	UploadID      string       `json:"upload_id"`
	BytesUploaded int64        `json:"bytes_uploaded"`
	DeclaredSize  int64        `json:"declared_size"`
	Progress      int          `json:"progress"`
	IsComplete    bool         `json:"is_complete"`
	Status        UploadStatus `json:"status"`
}

// FileStatus is the per-file slice of a batch-status response.
type FileStatus struct {
	UploadID      string       `json:"upload_id"`
	Filename      string       `json:"filename"`
	DeclaredSize  int64        `json:"declared_size"`
	BytesUploaded int64        `json:"bytes_uploaded"`
	Progress      int          `json:"progress"`
	Status        UploadStatus `json:"status"`
	BatchPosition int          `json:"batch_position"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

type BatchStatus struct {
	BatchID        string       `json:"batch_id"`
	TotalFiles     int          `json:"total_files"`
	CompletedFiles int          `json:"completed_files"`
	BatchProgress  int          `json:"batch_progress"`
	Uploads        []FileStatus `json:"uploads"`
}

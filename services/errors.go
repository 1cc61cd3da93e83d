package services

import "errors"

var (
	ErrEmptyManifest        = errors.New("manifest must contain at least one file")
	ErrBatchTooLarge        = errors.New("manifest exceeds maximum batch size")
	ErrInvalidManifestEntry = errors.New("invalid manifest entry")
	ErrBatchConflict        = errors.New("batch id already used with a different manifest")
	ErrInvalidChunk         = errors.New("chunk must not be empty")
	ErrChunkStorage         = errors.New("chunk storage failed")
)

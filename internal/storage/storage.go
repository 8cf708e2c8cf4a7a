// Package storage is the document-storage collaborator: the engine hands it
// artifact bytes and gets back a stable URL. Implementations: S3-compatible
// object storage for deployments, local disk for development and tests.
package storage

import "context"

// UploadMeta describes the artifact being stored.
type UploadMeta struct {
	Filename string
	MimeType string
	Size     int
	Folder   string
}

// StoredObject identifies an uploaded artifact.
type StoredObject struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// Uploader stores one artifact. Implementations must be safe for concurrent
// use.
type Uploader interface {
	Upload(ctx context.Context, data []byte, meta UploadMeta, actorID uint) (StoredObject, error)
}

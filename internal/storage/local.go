package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalUploader writes artifacts under a base directory. Used in
// development and tests, where a file path is URL enough.
type LocalUploader struct {
	BaseDir string
}

func NewLocalUploader(baseDir string) *LocalUploader {
	return &LocalUploader{BaseDir: baseDir}
}

func (u *LocalUploader) Upload(_ context.Context, data []byte, meta UploadMeta, _ uint) (StoredObject, error) {
	key := objectKey(meta)
	path := filepath.Join(u.BaseDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return StoredObject{}, fmt.Errorf("create storage dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return StoredObject{}, fmt.Errorf("write %s: %w", meta.Filename, err)
	}
	return StoredObject{Key: key, URL: "file://" + filepath.ToSlash(path)}, nil
}

// interface check
var (
	_ Uploader = (*LocalUploader)(nil)
	_ Uploader = (*S3Uploader)(nil)
)

// MemoryUploader backs tests that only need to observe the upload.
type MemoryUploader struct {
	Objects map[string][]byte
}

func NewMemoryUploader() *MemoryUploader {
	return &MemoryUploader{Objects: map[string][]byte{}}
}

func (u *MemoryUploader) Upload(_ context.Context, data []byte, meta UploadMeta, _ uint) (StoredObject, error) {
	key := strings.Trim(meta.Folder, "/") + "/" + meta.Filename
	cp := make([]byte, len(data))
	copy(cp, data)
	u.Objects[key] = cp
	return StoredObject{Key: key, URL: "memory://" + key}, nil
}

// Package jsonstore persists offers and notifications as single JSON
// documents that are rewritten wholesale on every mutation.
package jsonstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/lavirtualzone/transfers/internal/domain"
)

// Document is a single blob of bytes addressed by a fixed location.
// Read returns nil, nil when the document does not exist yet.
type Document interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Location() string
}

// FileDocument stores the document on the local filesystem.
type FileDocument struct {
	path string
}

// NewFileDocument returns a FileDocument at path. Parent directories are
// created on first write.
func NewFileDocument(path string) *FileDocument {
	return &FileDocument{path: path}
}

func (d *FileDocument) Location() string { return d.path }

func (d *FileDocument) Read(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(d.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

// Write replaces the file atomically: temp file, fsync, rename.
func (d *FileDocument) Write(_ context.Context, data []byte) error {
	dir := filepath.Dir(d.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(d.path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), d.path)
}

// BlobDocument stores the document as one object in blob storage.
type BlobDocument struct {
	reader domain.BlobReader
	writer domain.BlobWriter
	key    string
}

// NewBlobDocument returns a BlobDocument at key.
func NewBlobDocument(reader domain.BlobReader, writer domain.BlobWriter, key string) *BlobDocument {
	return &BlobDocument{reader: reader, writer: writer, key: key}
}

func (d *BlobDocument) Location() string { return d.key }

func (d *BlobDocument) Read(ctx context.Context) ([]byte, error) {
	ok, err := d.reader.Exists(ctx, d.key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	rc, err := d.reader.Get(ctx, d.key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (d *BlobDocument) Write(ctx context.Context, data []byte) error {
	return d.writer.Put(ctx, d.key, bytes.NewReader(data), "application/json")
}

func persistErr(action, location string, err error) error {
	return fmt.Errorf("jsonstore: %s %s: %w: %w", action, location, domain.ErrPersistence, err)
}

package domain

import (
	"context"
	"io"
	"time"
)

// ArchivePrefix is the object key prefix under which archived offers are
// written as monthly-partitioned JSONL files.
const ArchivePrefix = "archive/offers/"

// ObjectInfo describes an object in blob storage.
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

// BlobWriter stores state documents and archive files. PutMultipart is used
// for archives large enough to need a multipart upload.
type BlobWriter interface {
	Put(ctx context.Context, key string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, key string, data io.Reader, partSize int64) error
}

// BlobReader reads state documents back and lists archive files. Get on a
// missing key returns ErrNotFound.
type BlobReader interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// Archiver exports settled offers created before a cutoff to cold storage.
type Archiver interface {
	ArchiveOffers(ctx context.Context, before time.Time) (int64, error)
}

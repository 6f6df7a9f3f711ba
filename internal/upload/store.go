package upload

import (
	"context"
	"io"
	"path"
)

// Store is the remote object store
type Store interface {
	PutObject(ctx context.Context, bucket, key string, body io.Reader) error
}

// KeyPrefix is {record}/{place}/{point}/{output folder}
func KeyPrefix(record, place, point, folder string) string {
	return path.Join(record, place, point, folder)
}

// ObjectKey is the remote key of a segment file under prefix
func ObjectKey(prefix, filename string) string {
	return path.Join(prefix, filename)
}

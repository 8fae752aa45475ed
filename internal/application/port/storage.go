package port

import "context"

// FileStorage stores uploaded receipt files
type FileStorage interface {
	Put(ctx context.Context, filename string, content []byte) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	URL(key string) string
	Delete(ctx context.Context, key string) error
}

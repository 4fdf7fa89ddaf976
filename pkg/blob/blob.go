// Package blob stores opaque objects in named buckets: the JSON result of a
// scrape and the images attached to published events.
package blob

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/klimkalender/klimkalender-cms/internal/utils"
)

var ErrNotFound = errors.New("blob: not found")

type Bucket interface {
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) error
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Delete(ctx context.Context, bucket, key string) error
}

// FSBucket keeps every bucket as a directory below Root. Writes go through a
// temporary file and a rename under an inter-process lock, so readers never
// see a partial object.
type FSBucket struct {
	Root string
}

func NewFSBucket(root string) (*FSBucket, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &FSBucket{Root: root}, nil
}

func (b *FSBucket) path(bucket, key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if key == "" || clean == "/" || strings.Contains(bucket, "/") || bucket == "" || bucket == ".." {
		return "", fmt.Errorf("blob: invalid object %s/%s", bucket, key)
	}
	return filepath.Join(b.Root, bucket, filepath.FromSlash(clean)), nil
}

func (b *FSBucket) Put(_ context.Context, bucket, key string, data []byte, _ string) error {
	p, err := b.path(bucket, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}

	lock, err := utils.NewFileLock(p)
	if err != nil {
		return err
	}
	if err := lock.Lock(); err != nil {
		return err
	}
	defer lock.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(p), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), p)
}

func (b *FSBucket) Get(_ context.Context, bucket, key string) ([]byte, error) {
	p, err := b.path(bucket, key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s/%s: %w", bucket, key, ErrNotFound)
	}
	return data, err
}

func (b *FSBucket) Delete(_ context.Context, bucket, key string) error {
	p, err := b.path(bucket, key)
	if err != nil {
		return err
	}
	err = os.Remove(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	os.Remove(p + ".lock")
	return err
}

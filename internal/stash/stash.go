// Package stash holds uploaded files until they are published, so that
// uploads waiting for review never become visible on the wiki.
package stash

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a stashed or published file does not exist.
var ErrNotFound = errors.New("file not found in stash")

const (
	stashPrefix = "stash/"
	filePrefix  = "files/"
)

// Stash stores uploads under random keys and publishes them under their
// final file name.
type Stash struct {
	objects ObjectStore
}

// New creates a stash on top of an object store.
func New(objects ObjectStore) *Stash {
	return &Stash{objects: objects}
}

// Put stashes an upload and returns its key. The key keeps the extension of
// fileName.
func (s *Stash) Put(ctx context.Context, fileName string, data []byte) (string, error) {
	key := uuid.NewString() + strings.ToLower(path.Ext(fileName))
	if err := s.objects.PutObject(ctx, stashPrefix+key, data); err != nil {
		return "", fmt.Errorf("failed to stash upload: %w", err)
	}
	return key, nil
}

// Get returns the content of a stashed upload.
func (s *Stash) Get(ctx context.Context, key string) ([]byte, error) {
	if !validKey(key) {
		return nil, ErrNotFound
	}
	return s.objects.GetObject(ctx, stashPrefix+key)
}

// Has reports whether a stashed upload still exists.
func (s *Stash) Has(ctx context.Context, key string) (bool, error) {
	_, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Publish copies a stashed upload to its public location and returns the
// object key and size of the published file. The stash entry is kept until
// the caller discards it.
func (s *Stash) Publish(ctx context.Context, key, fileName string) (string, int64, error) {
	data, err := s.Get(ctx, key)
	if err != nil {
		return "", 0, err
	}

	objectKey := filePrefix + fileName
	if err := s.objects.PutObject(ctx, objectKey, data); err != nil {
		return "", 0, fmt.Errorf("failed to publish %s: %w", fileName, err)
	}
	return objectKey, int64(len(data)), nil
}

// Discard removes a stashed upload.
func (s *Stash) Discard(ctx context.Context, key string) error {
	if !validKey(key) {
		return nil
	}
	return s.objects.DeleteObject(ctx, stashPrefix+key)
}

// Unpublish removes a published file.
func (s *Stash) Unpublish(ctx context.Context, fileName string) error {
	return s.objects.DeleteObject(ctx, filePrefix+fileName)
}

// Published returns the content of a published file.
func (s *Stash) Published(ctx context.Context, fileName string) ([]byte, error) {
	return s.objects.GetObject(ctx, filePrefix+fileName)
}

func validKey(key string) bool {
	return key != "" && !strings.ContainsAny(key, "/\\")
}

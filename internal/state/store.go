// Package state persists the small JSON documents that remember what each
// job last sent. A FileClient moves whole files in and out of a backend;
// Datastore layers typed JSON on top of one fixed path.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned by a FileClient when the path holds no file.
var ErrNotFound = errors.New("state file not found")

// FileClient reads and writes whole files at absolute paths.
type FileClient interface {
	// ReadFile returns ErrNotFound (possibly wrapped) for a missing path.
	ReadFile(ctx context.Context, path string) ([]byte, error)

	// WriteFile replaces the file at path.
	WriteFile(ctx context.Context, path string, data []byte) error

	// Name is the backend name used in report lines, e.g. "Dropbox".
	Name() string
}

// Datastore stores one value of type T as JSON at a fixed path.
type Datastore[T any] struct {
	files FileClient
	path  string
}

// NewDatastore binds a FileClient to path.
func NewDatastore[T any](files FileClient, path string) *Datastore[T] {
	return &Datastore[T]{files: files, path: path}
}

// Path is the location of the state file.
func (d *Datastore[T]) Path() string { return d.path }

// Backend names the underlying file client.
func (d *Datastore[T]) Backend() string { return d.files.Name() }

// Current loads and decodes the stored value. A missing file yields an
// error matching ErrNotFound.
func (d *Datastore[T]) Current(ctx context.Context) (*T, error) {
	data, err := d.files.ReadFile(ctx, d.path)
	if err != nil {
		return nil, fmt.Errorf("reading %s from %s: %w", d.path, d.files.Name(), err)
	}

	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", d.path, err)
	}
	return &v, nil
}

// Store encodes v and overwrites the state file.
func (d *Datastore[T]) Store(ctx context.Context, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", d.path, err)
	}
	if err := d.files.WriteFile(ctx, d.path, data); err != nil {
		return fmt.Errorf("writing %s to %s: %w", d.path, d.files.Name(), err)
	}
	return nil
}

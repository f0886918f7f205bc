// Package storage is the file-storage collaborator used by the puzzle
// catalog: image bytes go in, a stable URL comes out. The catalog persists
// only the URL.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

var (
	// ErrEmpty is returned for a zero-length upload.
	ErrEmpty = errors.New("empty upload")
	// ErrTooLarge is returned when the upload exceeds the configured limit.
	ErrTooLarge = errors.New("upload too large")
	// ErrUnsupportedType is returned when the content is not an accepted image.
	ErrUnsupportedType = errors.New("unsupported image type")
)

// Store persists image bytes and returns a URL the client can fetch.
type Store interface {
	Put(ctx context.Context, data []byte) (string, error)
}

// allowed maps sniffed MIME types to the extension used on disk.
var allowed = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Sniff detects the image type of data and returns its MIME type and file
// extension, or ErrUnsupportedType.
func Sniff(data []byte) (mime, ext string, err error) {
	mt := mimetype.Detect(data)
	for m := mt; m != nil; m = m.Parent() {
		if e, ok := allowed[m.String()]; ok {
			return m.String(), e, nil
		}
	}
	return mt.String(), "", fmt.Errorf("%w: %s", ErrUnsupportedType, mt.String())
}

// LocalStore writes uploads under Dir and serves them at BaseURL.
type LocalStore struct {
	Dir      string
	BaseURL  string
	MaxBytes int64
}

// NewLocalStore creates dir if needed and returns a store rooted there.
func NewLocalStore(dir, baseURL string, maxBytes int64) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &LocalStore{Dir: dir, BaseURL: strings.TrimRight(baseURL, "/"), MaxBytes: maxBytes}, nil
}

// Put validates data, writes it under a random name and returns its URL.
func (s *LocalStore) Put(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmpty
	}
	if s.MaxBytes > 0 && int64(len(data)) > s.MaxBytes {
		return "", ErrTooLarge
	}
	_, ext, err := Sniff(data)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := uuid.NewString() + ext
	tmp := filepath.Join(s.Dir, "."+name+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, filepath.Join(s.Dir, name)); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	return s.BaseURL + "/" + name, nil
}

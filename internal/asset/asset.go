// Package asset stores place and user images in a key-addressable blob
// store. Keys are opaque to callers and stable for the life of an object.
package asset

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

// ErrUnsupportedType is returned for content types outside AllowedTypes.
var ErrUnsupportedType = errors.New("unsupported image type")

// AllowedTypes maps accepted image MIME types to file extensions.
var AllowedTypes = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpeg",
	"image/jpg":  "jpg",
}

// Store is a blob store for images.
type Store interface {
	// Put stores data and returns its key. The object is resolvable
	// through URL as soon as Put returns.
	Put(ctx context.Context, data []byte, contentType string) (string, error)
	// Delete removes the object. Deleting a missing key succeeds.
	Delete(ctx context.Context, key string) error
	// Exists reports whether key names a live object.
	Exists(ctx context.Context, key string) (bool, error)
	// URL resolves key to a public URL.
	URL(key string) string
}

// NewKey returns a fresh object key for the content type.
func NewKey(prefix, contentType string) (string, error) {
	ext, ok := AllowedTypes[strings.ToLower(contentType)]
	if !ok {
		return "", ErrUnsupportedType
	}
	key := uuid.NewString() + "." + ext
	if prefix != "" {
		key = strings.TrimSuffix(prefix, "/") + "/" + key
	}
	return key, nil
}

// IsAllowedType reports whether contentType is an accepted image type.
func IsAllowedType(contentType string) bool {
	_, ok := AllowedTypes[strings.ToLower(contentType)]
	return ok
}

func joinURL(base, key string) string {
	if base == "" {
		return key
	}
	return strings.TrimSuffix(base, "/") + "/" + key
}

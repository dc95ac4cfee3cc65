package upload

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned when an upload doesn't exist.
var ErrNotFound = errors.New("upload: file not found")

// ErrTooLarge is returned when a file exceeds the size limit.
var ErrTooLarge = errors.New("upload: file too large")

// ErrTypeNotAllowed is returned when the detected content type is rejected.
var ErrTypeNotAllowed = errors.New("upload: content type not allowed")

// Store is the interface for upload storage backends.
type Store interface {
	// Save stores the payload and returns its ID. size is the declared
	// size, or -1 if unknown; stores enforce their own limit regardless.
	Save(ctx context.Context, filename, contentType string, size int64, r io.Reader) (id string, err error)

	// Open returns the stored payload. The caller must Close the file.
	// Opening does not consume the upload; it may be opened many times.
	Open(ctx context.Context, id string) (*File, error)

	// Delete removes an upload. Deleting a missing upload is not an error.
	Delete(ctx context.Context, id string) error

	// Cleanup removes uploads older than maxAge.
	Cleanup(ctx context.Context, maxAge time.Duration) error
}

// File is a stored upload.
type File struct {
	// ID is the unique identifier for this upload.
	ID string

	// Filename is the original filename from the client.
	Filename string

	// ContentType is the detected MIME type.
	ContentType string

	// Size is the payload size in bytes.
	Size int64

	// CreatedAt is when the upload was stored.
	CreatedAt time.Time

	// URL is a direct remote URL (S3 presigned), if the backend has one.
	URL string

	// Reader provides access to the payload. May be nil when URL is set.
	Reader io.ReadCloser
}

// Close closes the file reader if open.
func (f *File) Close() error {
	if f.Reader != nil {
		return f.Reader.Close()
	}
	return nil
}

// Config holds configuration for the upload handlers.
type Config struct {
	// MaxFileSize is the maximum allowed file size in bytes.
	// Default: 20MB.
	MaxFileSize int64

	// AllowedTypes lists accepted MIME types. An entry ending in "/*"
	// matches the whole family. If empty, all types are allowed.
	// Default: image/*.
	AllowedTypes []string

	// URLPrefix is prepended to the ID to build the URL returned to
	// clients. Default: "/api/uploads/".
	URLPrefix string

	// MaxAge is how long uploads live before Cleanup removes them.
	// Default: 24 hours.
	MaxAge time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxFileSize:  20 * 1024 * 1024,
		AllowedTypes: []string{"image/*"},
		URLPrefix:    "/api/uploads/",
		MaxAge:       24 * time.Hour,
	}
}

// limitedCopy copies at most max bytes from r to w. It returns ErrTooLarge
// if r holds more. max <= 0 means no limit.
func limitedCopy(w io.Writer, r io.Reader, max int64) (int64, error) {
	if max <= 0 {
		return io.Copy(w, r)
	}
	n, err := io.Copy(w, io.LimitReader(r, max+1)) // +1 to detect overflow
	if err != nil {
		return n, err
	}
	if n > max {
		return n, ErrTooLarge
	}
	return n, nil
}

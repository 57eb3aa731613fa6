package storage

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("stored file not found")

// FileStorage keeps uploaded report files. Save returns an opaque location
// that Open and Delete accept later.
type FileStorage interface {
	Save(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
	// Open makes the file available on local disk for extraction. cleanup
	// must be called when the caller is done with path.
	Open(ctx context.Context, location string) (path string, cleanup func(), err error)
	Delete(ctx context.Context, location string) error
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SafeFilename strips directories and unusual characters from an uploaded
// name.
func SafeFilename(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = filepath.Base(strings.TrimSpace(name))
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		return "report"
	}
	return name
}

// NewKey builds a unique storage key of the form {uuid}_{safe name}.
func NewKey(filename string) string {
	return uuid.NewString() + "_" + SafeFilename(filename)
}

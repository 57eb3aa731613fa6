package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore saves uploads under a base directory.
type LocalStore struct {
	basePath string
}

// NewLocalStore creates the base directory if missing.
func NewLocalStore(basePath string) (*LocalStore, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, fmt.Errorf("storage base path is required")
	}
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &LocalStore{basePath: abs}, nil
}

func (l *LocalStore) Save(_ context.Context, key string, r io.Reader, _ int64, _ string) (string, error) {
	target := filepath.Join(l.basePath, SafeFilename(key))
	out, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		_ = os.Remove(target)
		return "", fmt.Errorf("write file: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(target)
		return "", fmt.Errorf("close file: %w", err)
	}
	return target, nil
}

// Open returns the stored path itself; cleanup is a no-op.
func (l *LocalStore) Open(_ context.Context, location string) (string, func(), error) {
	path, err := l.resolve(location)
	if err != nil {
		return "", nil, err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil, ErrNotFound
		}
		return "", nil, err
	}
	return path, func() {}, nil
}

// Delete removes a stored file. Missing files are not an error.
func (l *LocalStore) Delete(_ context.Context, location string) error {
	path, err := l.resolve(location)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

func (l *LocalStore) resolve(location string) (string, error) {
	path := filepath.Clean(location)
	if !filepath.IsAbs(path) {
		path = filepath.Join(l.basePath, path)
	}
	rel, err := filepath.Rel(l.basePath, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("location %q outside storage dir", location)
	}
	return path, nil
}

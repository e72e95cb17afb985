package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/kirillkom/pdf-markup/internal/core/domain"
)

// Storage keeps uploaded and processed documents under one directory.
type Storage struct {
	basePath string
}

func New(basePath string) (*Storage, error) {
	if basePath == "" {
		basePath = "./data/documents"
	}
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Storage{basePath: abs}, nil
}

// Save writes data under key and returns a file:// reference to it. The file
// is written to a temporary name first so readers never see a partial PDF.
func (s *Storage) Save(_ context.Context, key string, data io.Reader) (domain.DocumentRef, error) {
	path, err := s.Path(key)
	if err != nil {
		return domain.DocumentRef{}, err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return domain.DocumentRef{}, fmt.Errorf("create document dir: %w", err)
	}
	f, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return domain.DocumentRef{}, fmt.Errorf("create file: %w", err)
	}
	tmp := f.Name()
	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return domain.DocumentRef{}, fmt.Errorf("write file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return domain.DocumentRef{}, fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return domain.DocumentRef{}, fmt.Errorf("publish file: %w", err)
	}

	return domain.DocumentRef{URI: FileURI(path), Name: filepath.Base(path)}, nil
}

func (s *Storage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	path, err := s.Path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.WrapError(domain.ErrNotFound, "open document", err)
		}
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

// Path resolves key inside the storage directory. Keys that would escape it
// are rejected.
func (s *Storage) Path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(strings.TrimSpace(key)))
	if clean == "." || clean == "" || filepath.IsAbs(clean) || clean == ".." ||
		strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", domain.NewError(domain.ErrInvalidInput, fmt.Sprintf("invalid document key %q", key))
	}
	return filepath.Join(s.basePath, clean), nil
}

func (s *Storage) BasePath() string {
	return s.basePath
}

func FileURI(path string) string {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
}

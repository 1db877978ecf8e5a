package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vbonduro/pantrysync/internal/domain"
	"github.com/vbonduro/pantrysync/internal/photostore"
)

const defaultExt = ".jpg"

var knownExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
	".heic": true,
}

// maxNameAttempts bounds filename regeneration when O_EXCL reports a clash.
const maxNameAttempts = 5

// LocalPhotoStore lays assets out as <base>/<owner>/<category>/<file>.
// Returned paths are relative to base.
type LocalPhotoStore struct {
	basePath string
	now      func() time.Time
}

func NewLocalPhotoStore(basePath string) (*LocalPhotoStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create photo directory: %w", err)
	}
	return &LocalPhotoStore{basePath: basePath, now: time.Now}, nil
}

// Save copies the file behind sourceURI into the store. The source is only read.
func (s *LocalPhotoStore) Save(ctx context.Context, ownerID, sourceURI string, category domain.Category) (string, error) {
	srcPath, err := sourcePath(sourceURI)
	if err != nil {
		return "", &photostore.AssetWriteError{Op: "resolve source", Path: sourceURI, Err: err}
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return "", &photostore.AssetWriteError{Op: "open source", Path: sourceURI, Err: err}
	}
	defer func() {
		if err := src.Close(); err != nil {
			slog.Error("failed to close source file", "path", srcPath, "error", err)
		}
	}()

	return s.SaveReader(ctx, ownerID, category, filepath.Ext(srcPath), src)
}

// SaveReader stores the bytes of r with the given extension.
func (s *LocalPhotoStore) SaveReader(ctx context.Context, ownerID string, category domain.Category, ext string, r io.Reader) (string, error) {
	if err := validateSegment(ownerID); err != nil {
		return "", &photostore.AssetWriteError{Op: "validate owner", Err: err}
	}
	if !category.Valid() {
		return "", &photostore.AssetWriteError{Op: "validate category", Err: fmt.Errorf("unknown category %q", category)}
	}

	dir := filepath.Join(s.basePath, ownerID, string(category))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", &photostore.AssetWriteError{Op: "create directory", Path: dir, Err: err}
	}

	ext = normalizeExt(ext)
	f, filename, err := s.createUnique(dir, ext)
	if err != nil {
		return "", err
	}
	filePath := filepath.Join(dir, filename)

	if _, err := io.Copy(f, r); err != nil {
		if cerr := f.Close(); cerr != nil {
			slog.Error("failed to close file after write error", "error", cerr)
		}
		if rerr := os.Remove(filePath); rerr != nil {
			slog.Error("failed to remove file after write error", "error", rerr)
		}
		return "", &photostore.AssetWriteError{Op: "copy", Path: filePath, Err: err}
	}
	if err := f.Close(); err != nil {
		if rerr := os.Remove(filePath); rerr != nil {
			slog.Error("failed to remove file after close error", "error", rerr)
		}
		return "", &photostore.AssetWriteError{Op: "close", Path: filePath, Err: err}
	}

	return filepath.ToSlash(filepath.Join(ownerID, string(category), filename)), nil
}

func (s *LocalPhotoStore) createUnique(dir, ext string) (*os.File, string, error) {
	var lastErr error
	for range maxNameAttempts {
		filename := s.newFilename(ext)
		f, err := os.OpenFile(filepath.Join(dir, filename), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			return f, filename, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", &photostore.AssetWriteError{Op: "create file", Path: dir, Err: err}
		}
		lastErr = err
	}
	return nil, "", &photostore.AssetWriteError{Op: "create file", Path: dir, Err: lastErr}
}

// newFilename is <unix nanos>_<8 random hex chars><ext>.
func (s *LocalPhotoStore) newFilename(ext string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%d_%s%s", s.now().UnixNano(), suffix, ext)
}

func (s *LocalPhotoStore) Open(ctx context.Context, localPath string) (io.ReadCloser, string, error) {
	filePath, err := s.safeJoin(localPath)
	if err != nil {
		return nil, "", err
	}

	f, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", fmt.Errorf("photo %s: %w", localPath, domain.ErrNotFound)
		}
		return nil, "", fmt.Errorf("failed to open file: %w", err)
	}
	return f, extToMimeType(filePath), nil
}

func (s *LocalPhotoStore) Delete(ctx context.Context, localPath string) error {
	filePath, err := s.safeJoin(localPath)
	if err != nil {
		return err
	}

	if err := os.Remove(filePath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("photo %s: %w", localPath, domain.ErrNotFound)
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// safeJoin resolves localPath relative to basePath and rejects directory traversal.
func (s *LocalPhotoStore) safeJoin(localPath string) (string, error) {
	absBase, err := filepath.Abs(s.basePath)
	if err != nil {
		return "", fmt.Errorf("invalid base path: %w", err)
	}

	absPath, err := filepath.Abs(filepath.Join(s.basePath, filepath.FromSlash(localPath)))
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}

	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal attempt")
	}
	return absPath, nil
}

// sourcePath accepts a plain path or a file:// URI.
func sourcePath(sourceURI string) (string, error) {
	if sourceURI == "" {
		return "", errors.New("empty source uri")
	}
	if !strings.Contains(sourceURI, "://") {
		return sourceURI, nil
	}
	u, err := url.Parse(sourceURI)
	if err != nil {
		return "", err
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("unsupported source scheme %q", u.Scheme)
	}
	return filepath.FromSlash(u.Path), nil
}

func validateSegment(s string) error {
	if s == "" || s == "." || s == ".." || strings.ContainsAny(s, `/\`) {
		return fmt.Errorf("invalid owner id %q", s)
	}
	return nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if !knownExts[ext] {
		return defaultExt
	}
	return ext
}

func extToMimeType(filePath string) string {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".heic":
		return "image/heic"
	default:
		return "image/jpeg"
	}
}

var _ photostore.LocalStore = (*LocalPhotoStore)(nil)

package photostore

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/vbonduro/pantrysync/internal/domain"
)

// LocalStore keeps captured photos on the device until they are synced.
type LocalStore interface {
	Save(ctx context.Context, ownerID, sourceURI string, category domain.Category) (localPath string, err error)
	SaveReader(ctx context.Context, ownerID string, category domain.Category, ext string, r io.Reader) (localPath string, err error)
	Open(ctx context.Context, localPath string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, localPath string) error
}

// RemoteStore is the durable object store. Delete of a missing key succeeds.
type RemoteStore interface {
	Put(ctx context.Context, key string, data []byte, mimeType string) (url string, err error)
	Delete(ctx context.Context, key string) error
}

// Key returns the deterministic object key of a record's photo.
func Key(ownerID string, category domain.Category, recordID string) string {
	return path.Join("users", ownerID, string(category), recordID+".jpg")
}

// AssetWriteError reports a failed local save. Callers degrade to a
// photo-less record.
type AssetWriteError struct {
	Op   string
	Path string
	Err  error
}

func (e *AssetWriteError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("asset write failed: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("asset write failed: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *AssetWriteError) Unwrap() error { return e.Err }

// UploadError reports a remote store rejection or outage. It is retryable.
type UploadError struct {
	Key string
	Err error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s failed: %v", e.Key, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// ExtForMimeType maps an upload's detected MIME type to a file extension.
func ExtForMimeType(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/heic":
		return ".heic"
	default:
		return ".jpg"
	}
}

package photostore

import (
	"context"
	"errors"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
)

// RetryingRemote wraps a RemoteStore and retries transient failures with
// exponential backoff. Context cancellation stops the retries.
type RetryingRemote struct {
	delegate     RemoteStore
	buildBackoff func() backoff.BackOff
}

// NewRetryingRemote wraps delegate. A nil factory uses a short exponential
// policy suited to interactive uploads.
func NewRetryingRemote(delegate RemoteStore, factory func() backoff.BackOff) *RetryingRemote {
	if factory == nil {
		factory = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxElapsedTime = 5 * time.Second
			return b
		}
	}
	return &RetryingRemote{delegate: delegate, buildBackoff: factory}
}

func (r *RetryingRemote) Put(ctx context.Context, key string, data []byte, mimeType string) (string, error) {
	var url string
	err := r.retry(ctx, func() error {
		var err error
		url, err = r.delegate.Put(ctx, key, data, mimeType)
		return err
	})
	if err != nil {
		return "", asUploadError(key, err)
	}
	return url, nil
}

func (r *RetryingRemote) Delete(ctx context.Context, key string) error {
	return r.retry(ctx, func() error { return r.delegate.Delete(ctx, key) })
}

func (r *RetryingRemote) retry(ctx context.Context, fn func() error) error {
	op := func() error {
		err := fn()
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.Retry(op, backoff.WithContext(r.buildBackoff(), ctx))
}

func asUploadError(key string, err error) error {
	var ue *UploadError
	if errors.As(err, &ue) {
		return err
	}
	return &UploadError{Key: key, Err: err}
}

var _ RemoteStore = (*RetryingRemote)(nil)

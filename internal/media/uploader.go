package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// Uploader moves request-owned temp files to a Store. It owns the temp file
// from the moment Upload is called and always removes it before returning.
type Uploader struct {
	store   Store
	timeout time.Duration
}

// NewUploader creates an Uploader. A zero timeout leaves deadlines to the
// caller's context.
func NewUploader(store Store, timeout time.Duration) *Uploader {
	return &Uploader{store: store, timeout: timeout}
}

// Upload sends the file at localPath into folder and removes localPath on
// every path out of this function. Failures wrap ErrUploadFailed.
func (u *Uploader) Upload(ctx context.Context, localPath, folder string) (asset Asset, err error) {
	defer RemoveTemp(localPath)

	if u.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.timeout)
		defer cancel()
	}

	asset, err = u.store.Upload(ctx, localPath, UploadOptions{
		Folder:    folder,
		MaxWidth:  MaxWidth,
		MaxHeight: MaxHeight,
	})
	if err != nil {
		return Asset{}, fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}
	return asset, nil
}

// Delete removes a remote asset. Errors are logged and swallowed so an
// orphan cleanup never fails the caller.
func (u *Uploader) Delete(ctx context.Context, assetID string) {
	if assetID == "" {
		return
	}
	if err := u.store.Destroy(ctx, assetID); err != nil {
		slog.Error("failed to delete media asset", "assetId", assetID, "error", err)
		return
	}
	slog.Debug("media asset deleted", "assetId", assetID)
}

// RemoveTemp deletes a local temp file. A missing file is not an error;
// anything else is logged and never returned.
func RemoveTemp(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Error("failed to remove temp file", "path", path, "error", err)
	}
}

package media

import (
	"context"
	"errors"
)

// ErrUploadFailed wraps every failure to transfer an asset to a Store.
var ErrUploadFailed = errors.New("upload failed")

// Bounds applied to every uploaded logo.
const (
	MaxWidth  = 500
	MaxHeight = 500
)

// Asset identifies an uploaded file. URL is public; AssetID is the opaque
// handle needed to delete it and is never shown to API clients.
type Asset struct {
	URL     string
	AssetID string
}

// UploadOptions describes where an asset goes and how it is normalized.
// The store scales the image down to fit MaxWidth x MaxHeight and picks
// quality and format automatically.
type UploadOptions struct {
	Folder    string
	MaxWidth  int
	MaxHeight int
}

// Store abstracts a media hosting backend.
type Store interface {
	// Upload transfers the file at path. It does not remove the file.
	Upload(ctx context.Context, path string, opts UploadOptions) (Asset, error)

	// Destroy deletes a previously uploaded asset.
	Destroy(ctx context.Context, assetID string) error
}

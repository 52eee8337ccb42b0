package media

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/admin"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// cloudinaryUploadAPI is the subset of the Cloudinary upload API the store
// calls. *uploader.API satisfies it.
type cloudinaryUploadAPI interface {
	Upload(ctx context.Context, file interface{}, params uploader.UploadParams) (*uploader.UploadResult, error)
	Destroy(ctx context.Context, params uploader.DestroyParams) (*uploader.DestroyResult, error)
}

// cloudinaryAdminAPI is the subset of the admin API used for start-up checks.
type cloudinaryAdminAPI interface {
	Ping(ctx context.Context) (*admin.PingResult, error)
}

// CloudinaryStore uploads images to Cloudinary.
type CloudinaryStore struct {
	upload cloudinaryUploadAPI
	admin  cloudinaryAdminAPI
}

// NewCloudinaryStore creates a store from account credentials.
func NewCloudinaryStore(cloudName, apiKey, apiSecret string) (*CloudinaryStore, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("configuring cloudinary: %w", err)
	}
	return &CloudinaryStore{upload: &cld.Upload, admin: &cld.Admin}, nil
}

// Transformation renders the Cloudinary transformation string for opts:
// a size limit followed by automatic quality and format.
func Transformation(opts UploadOptions) string {
	w, h := opts.MaxWidth, opts.MaxHeight
	if w <= 0 {
		w = MaxWidth
	}
	if h <= 0 {
		h = MaxHeight
	}
	return fmt.Sprintf("c_limit,h_%d,w_%d/q_auto/f_auto", h, w)
}

// Upload sends a local file to Cloudinary and returns its secure URL and
// public id.
func (s *CloudinaryStore) Upload(ctx context.Context, path string, opts UploadOptions) (Asset, error) {
	res, err := s.upload.Upload(ctx, path, uploader.UploadParams{
		Folder:         opts.Folder,
		ResourceType:   "image",
		Transformation: Transformation(opts),
	})
	if err != nil {
		return Asset{}, fmt.Errorf("cloudinary upload: %w", err)
	}
	if res.Error.Message != "" {
		return Asset{}, fmt.Errorf("cloudinary upload: %s", res.Error.Message)
	}
	if res.SecureURL == "" || res.PublicID == "" {
		return Asset{}, errors.New("cloudinary upload: empty result")
	}

	return Asset{URL: res.SecureURL, AssetID: res.PublicID}, nil
}

// Destroy deletes an image by public id.
func (s *CloudinaryStore) Destroy(ctx context.Context, assetID string) error {
	res, err := s.upload.Destroy(ctx, uploader.DestroyParams{
		PublicID:     assetID,
		ResourceType: "image",
	})
	if err != nil {
		return fmt.Errorf("cloudinary destroy: %w", err)
	}
	if res.Error.Message != "" {
		return fmt.Errorf("cloudinary destroy: %s", res.Error.Message)
	}
	if res.Result != "ok" && res.Result != "not found" {
		return fmt.Errorf("cloudinary destroy: unexpected result %q", res.Result)
	}
	return nil
}

// Ping verifies the credentials against the admin API.
func (s *CloudinaryStore) Ping(ctx context.Context) error {
	res, err := s.admin.Ping(ctx)
	if err != nil {
		return fmt.Errorf("cloudinary ping: %w", err)
	}
	if res.Error.Message != "" {
		return fmt.Errorf("cloudinary ping: %s", res.Error.Message)
	}
	return nil
}

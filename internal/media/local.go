package media

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// jpegQuality is used for opaque images; images with transparency are
// stored as PNG.
const jpegQuality = 85

// LocalStore keeps assets on the local filesystem and serves them under a
// public base URL. It applies the same bounding transformation a hosted
// store would. Asset ids are "<folder>/<uuid>-<blake3 prefix>.<ext>": every
// upload gets its own file, so deleting one asset never touches another
// that happens to hold the same bytes.
type LocalStore struct {
	dir     string
	baseURL string
}

// NewLocalStore creates the root directory if needed.
func NewLocalStore(dir, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating media directory: %w", err)
	}
	return &LocalStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Upload decodes the image at src, scales it to fit the bounds, re-encodes
// it, and writes it under the store root.
func (s *LocalStore) Upload(ctx context.Context, src string, opts UploadOptions) (Asset, error) {
	if err := ctx.Err(); err != nil {
		return Asset{}, err
	}

	f, err := os.Open(src)
	if err != nil {
		return Asset{}, fmt.Errorf("opening upload: %w", err)
	}
	img, _, err := image.Decode(f)
	f.Close()
	if err != nil {
		return Asset{}, fmt.Errorf("decoding image: %w", err)
	}

	encoded, ext, err := encode(bound(img, opts.MaxWidth, opts.MaxHeight))
	if err != nil {
		return Asset{}, err
	}

	sum := blake3.Sum256(encoded)
	name := uuid.NewString() + "-" + hex.EncodeToString(sum[:4]) + ext
	assetID := path.Join(cleanFolder(opts.Folder), name)

	target, err := s.resolve(assetID)
	if err != nil {
		return Asset{}, err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return Asset{}, fmt.Errorf("creating asset directory: %w", err)
	}

	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, encoded, 0o644); err != nil {
		return Asset{}, fmt.Errorf("writing asset: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return Asset{}, fmt.Errorf("publishing asset: %w", err)
	}

	return Asset{URL: s.baseURL + "/" + assetID, AssetID: assetID}, nil
}

// Destroy removes the asset file. Removing a missing asset succeeds.
func (s *LocalStore) Destroy(ctx context.Context, assetID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target, err := s.resolve(assetID)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing asset: %w", err)
	}
	return nil
}

// Handler serves stored assets. Mount it under the path of the public base URL.
func (s *LocalStore) Handler() http.Handler {
	return http.FileServer(http.Dir(s.dir))
}

// resolve maps an asset id to a path under the store root, rejecting ids
// that would escape it.
func (s *LocalStore) resolve(assetID string) (string, error) {
	clean := path.Clean("/" + assetID)
	if clean == "/" || clean != "/"+assetID {
		return "", fmt.Errorf("invalid asset id %q", assetID)
	}
	return filepath.Join(s.dir, filepath.FromSlash(clean[1:])), nil
}

func cleanFolder(folder string) string {
	folder = strings.Trim(path.Clean("/"+folder), "/")
	if folder == "" || folder == "." {
		return "assets"
	}
	return folder
}

// bound scales img down, preserving aspect ratio, so it fits maxW x maxH.
// Images already inside the bounds are returned unchanged.
func bound(img image.Image, maxW, maxH int) image.Image {
	if maxW <= 0 {
		maxW = MaxWidth
	}
	if maxH <= 0 {
		maxH = MaxHeight
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxW && h <= maxH {
		return img
	}

	scale := min(float64(maxW)/float64(w), float64(maxH)/float64(h))
	dw := max(1, int(float64(w)*scale))
	dh := max(1, int(float64(h)*scale))

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

// encode picks the output format automatically: JPEG for opaque images,
// PNG when transparency must be preserved.
func encode(img image.Image) ([]byte, string, error) {
	var buf bytes.Buffer

	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
			return nil, "", fmt.Errorf("encoding jpeg: %w", err)
		}
		return buf.Bytes(), ".jpg", nil
	}

	if err := png.Encode(&buf, img); err != nil {
		return nil, "", fmt.Errorf("encoding png: %w", err)
	}
	return buf.Bytes(), ".png", nil
}

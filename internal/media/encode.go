package media

import (
	"bytes"
	"fmt"
	"path/filepath"

	"github.com/disintegration/imaging"

	"image-tagger/internal/logging"
)

const (
	// DefaultVisionDimension is the bounding box for images sent to the
	// vision backend.
	DefaultVisionDimension = 1024

	visionJPEGQuality = 85
)

// EncodeForVision loads path, fits it into maxDim x maxDim and returns it as
// JPEG bytes. EXIF orientation is applied on the imaging path; libvips
// applies it on load.
func EncodeForVision(path string, maxDim int) ([]byte, error) {
	if maxDim <= 0 {
		maxDim = DefaultVisionDimension
	}

	if IsVipsAvailable() {
		buf, err := encodeWithVips(path, maxDim, visionJPEGQuality)
		if err == nil {
			return buf, nil
		}
		logging.Debug("Vips encode failed for %s, falling back to imaging: %v", filepath.Base(path), err)
	}

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadable, err)
	}

	b := img.Bounds()
	if b.Dx() > maxDim || b.Dy() > maxDim {
		img = imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(visionJPEGQuality)); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

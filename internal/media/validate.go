package media

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"image-tagger/internal/filesystem"
	"image-tagger/internal/mediatypes"
)

// MaxImagePixels bounds the full decode performed by Validate. Larger images
// are accepted on their header alone so a single panorama cannot exhaust
// memory.
const MaxImagePixels = 40_000_000

// ErrUnreadable marks files that cannot be processed: permission denied,
// truncated or corrupt data, or a codec with no decoder available.
var ErrUnreadable = errors.New("unreadable image")

// Info describes a validated image.
type Info struct {
	Format mediatypes.Format
	Width  int
	Height int
}

// Validate checks that path holds a decodable image. Failures that make the
// file permanently unprocessable wrap ErrUnreadable; other errors (for
// example a file vanishing mid-check) are returned as-is.
func Validate(path string) (Info, error) {
	f, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return Info{}, fmt.Errorf("%w: %w", ErrUnreadable, err)
		}
		return Info{}, err
	}
	defer f.Close()

	format, err := DetectFormat(f)
	if err != nil {
		return Info{}, fmt.Errorf("%w: reading header: %w", ErrUnreadable, err)
	}
	if format == mediatypes.FormatUnknown {
		return Info{}, fmt.Errorf("%w: unrecognized or unsupported codec", ErrUnreadable)
	}

	if format == mediatypes.FormatHEIF {
		return validateWithVips(path)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return Info{}, err
	}
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return Info{}, fmt.Errorf("%w: %s header: %w", ErrUnreadable, format, err)
	}
	info := Info{Format: format, Width: cfg.Width, Height: cfg.Height}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Info{}, fmt.Errorf("%w: invalid dimensions %dx%d", ErrUnreadable, cfg.Width, cfg.Height)
	}

	if int64(cfg.Width)*int64(cfg.Height) > MaxImagePixels {
		return info, nil
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return Info{}, err
	}
	if _, _, err := image.Decode(f); err != nil {
		return Info{}, fmt.Errorf("%w: %s data: %w", ErrUnreadable, format, err)
	}
	return info, nil
}

func validateWithVips(path string) (Info, error) {
	if !IsVipsAvailable() {
		return Info{}, fmt.Errorf("%w: heif requires libvips", ErrUnreadable)
	}
	ref, err := loadWithVips(path)
	if err != nil {
		return Info{}, fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	defer ref.Close()
	return Info{Format: mediatypes.FormatHEIF, Width: ref.Width(), Height: ref.Height()}, nil
}

package mediatypes

import (
	"path/filepath"
	"strings"
)

// Format identifies an image container format.
type Format string

const (
	FormatJPEG    Format = "jpeg"
	FormatPNG     Format = "png"
	FormatGIF     Format = "gif"
	FormatBMP     Format = "bmp"
	FormatWebP    Format = "webp"
	FormatTIFF    Format = "tiff"
	FormatHEIF    Format = "heif"
	FormatUnknown Format = "unknown"
)

// ImageExtensions maps supported lowercase extensions to their format.
var ImageExtensions = map[string]Format{
	".jpg":  FormatJPEG,
	".jpeg": FormatJPEG,
	".png":  FormatPNG,
	".gif":  FormatGIF,
	".bmp":  FormatBMP,
	".webp": FormatWebP,
	".tif":  FormatTIFF,
	".tiff": FormatTIFF,
	".heic": FormatHEIF,
	".heif": FormatHEIF,
}

// MimeTypes maps formats to their MIME type.
var MimeTypes = map[Format]string{
	FormatJPEG: "image/jpeg",
	FormatPNG:  "image/png",
	FormatGIF:  "image/gif",
	FormatBMP:  "image/bmp",
	FormatWebP: "image/webp",
	FormatTIFF: "image/tiff",
	FormatHEIF: "image/heif",
}

// FormatForPath returns the format implied by the file extension
// (case-insensitive), or FormatUnknown.
func FormatForPath(path string) Format {
	if f, ok := ImageExtensions[strings.ToLower(filepath.Ext(path))]; ok {
		return f
	}
	return FormatUnknown
}

// IsSupported reports whether path has a supported image extension.
func IsSupported(path string) bool {
	return FormatForPath(path) != FormatUnknown
}

// IsHidden reports whether the base name of path starts with a dot.
func IsHidden(path string) bool {
	name := filepath.Base(path)
	return len(name) > 1 && strings.HasPrefix(name, ".")
}

// GetMimeType returns the MIME type for a format, or application/octet-stream.
func GetMimeType(f Format) string {
	if mime, ok := MimeTypes[f]; ok {
		return mime
	}
	return "application/octet-stream"
}

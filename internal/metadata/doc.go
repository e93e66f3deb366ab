// Package metadata embeds descriptions and tags into image files.
//
// A Writer tries an ordered list of strategies until one succeeds and the
// result reads back: an in-process XMP writer for JPEG and PNG, then the
// exiftool and exiv2 command-line tools when they are installed. When every
// strategy fails the error matches ErrWriteFailed; the caller decides what
// that means for the image.
package metadata

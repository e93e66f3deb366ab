// Package media inspects and re-encodes image files for the pipeline.
//
// Validate decides whether a candidate can be processed at all: it sniffs the
// container from magic bytes and fully decodes the image, so truncated files
// and codecs without a decoder are reported as ErrUnreadable before any work
// is queued. HEIF/HEIC needs libvips (built with libheif).
//
// EncodeForVision produces the JPEG payload sent to the vision backend,
// downscaled to fit a bounding box. libvips is used when it has been
// initialized with InitVips; otherwise the pure-Go imaging path is used.
package media

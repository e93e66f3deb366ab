package metadata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"image-tagger/internal/filesystem"
	"image-tagger/internal/logging"
	"image-tagger/internal/media"
	"image-tagger/internal/mediatypes"
	"image-tagger/internal/metrics"
)

var (
	// ErrWriteFailed is returned when no strategy could embed the metadata.
	ErrWriteFailed = errors.New("metadata write failed")
	// ErrUnsupported is returned by a strategy that cannot handle a format.
	ErrUnsupported = errors.New("format not supported by strategy")
	// ErrToolUnavailable is returned when an external tool is not installed.
	ErrToolUnavailable = errors.New("tool not available")
)

// Strategy embeds metadata one particular way.
type Strategy interface {
	Name() string
	Supports(format mediatypes.Format) bool
	Write(ctx context.Context, path string, format mediatypes.Format, description string, tags []string) error
}

// Writer runs strategies in order.
type Writer struct {
	strategies []Strategy
	verify     bool
}

// NewWriter creates a Writer over strategies, in priority order. Each
// successful write is read back before it counts.
func NewWriter(strategies ...Strategy) *Writer {
	return &Writer{strategies: strategies, verify: true}
}

// DefaultStrategies returns the in-process XMP writer followed by exiftool
// and exiv2, each external call bounded by toolTimeout.
func DefaultStrategies(toolTimeout time.Duration) []Strategy {
	return []Strategy{
		XMPStrategy{},
		NewExiftool(toolTimeout),
		NewExiv2(toolTimeout),
	}
}

// Strategies returns the configured strategy names in order.
func (w *Writer) Strategies() []string {
	names := make([]string, len(w.strategies))
	for i, s := range w.strategies {
		names[i] = s.Name()
	}
	return names
}

// Write embeds description and tags into path.
func (w *Writer) Write(ctx context.Context, path, description string, tags []string) error {
	format, err := sniff(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	var errs []error
	for _, s := range w.strategies {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !s.Supports(format) {
			metrics.MetadataWritesTotal.WithLabelValues(s.Name(), "unsupported").Inc()
			continue
		}

		start := time.Now()
		err := s.Write(ctx, path, format, description, tags)
		if err == nil && w.verify {
			err = verify(path, description)
		}
		metrics.MetadataWriteDuration.WithLabelValues(s.Name()).Observe(time.Since(start).Seconds())

		if err != nil {
			if errors.Is(err, ErrToolUnavailable) {
				metrics.MetadataWritesTotal.WithLabelValues(s.Name(), "unsupported").Inc()
			} else {
				metrics.MetadataWritesTotal.WithLabelValues(s.Name(), "error").Inc()
				logging.Warn("Metadata strategy %s failed for %s: %v", s.Name(), path, err)
			}
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}

		metrics.MetadataWritesTotal.WithLabelValues(s.Name(), "success").Inc()
		logging.Debug("Embedded metadata in %s using %s", path, s.Name())
		return nil
	}

	if len(errs) == 0 {
		return fmt.Errorf("%w: no strategy supports %s", ErrWriteFailed, format)
	}
	return fmt.Errorf("%w: %w", ErrWriteFailed, errors.Join(errs...))
}

func sniff(path string) (mediatypes.Format, error) {
	f, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		return mediatypes.FormatUnknown, err
	}
	defer f.Close()
	return media.DetectFormat(f)
}

func verify(path, description string) error {
	got, err := ReadDescription(path)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	if got != description {
		return fmt.Errorf("verify: description not found after write")
	}
	return nil
}

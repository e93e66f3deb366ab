package media

import (
	"fmt"
	"path/filepath"
	"sync"

	"image-tagger/internal/logging"

	"github.com/davidbyttow/govips/v2/vips"
)

var (
	vipsInitialized bool
	vipsInitMutex   sync.Mutex
	vipsAvailable   bool
)

// vipsLogSettings maps the application log level onto libvips' own level and
// routes its messages through the logging package.
func vipsLogSettings(appLevel logging.LogLevel) (func(string, vips.LogLevel, string), vips.LogLevel) {
	var threshold vips.LogLevel
	switch appLevel {
	case logging.LevelDebug:
		threshold = vips.LogLevelInfo
	case logging.LevelWarn:
		threshold = vips.LogLevelError
	case logging.LevelError:
		threshold = vips.LogLevelCritical
	default:
		threshold = vips.LogLevelWarning
	}

	handler := func(domain string, level vips.LogLevel, msg string) {
		switch level {
		case vips.LogLevelError, vips.LogLevelCritical:
			logging.Error("[%s] %s", domain, msg)
		case vips.LogLevelWarning:
			logging.Warn("[%s] %s", domain, msg)
		default:
			logging.Debug("[%s] %s", domain, msg)
		}
	}
	return handler, threshold
}

// InitVips initializes the libvips library. Call once at startup.
func InitVips() error {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		return nil
	}

	handler, level := vipsLogSettings(logging.GetLevel())
	vips.LoggingSettings(handler, level)

	// Workers already run in parallel; keep each libvips call single-threaded.
	vips.Startup(&vips.Config{
		ConcurrencyLevel: 1,
		MaxCacheMem:      50 * 1024 * 1024,
		MaxCacheSize:     100,
		ReportLeaks:      false,
		CacheTrace:       false,
		CollectStats:     false,
	})

	vipsInitialized = true
	vipsAvailable = true
	logging.Info("libvips initialized successfully (version: %s)", vips.Version)
	return nil
}

// ShutdownVips cleans up libvips resources. libvips cannot be restarted in
// the same process afterwards.
func ShutdownVips() {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		vips.Shutdown()
		vipsInitialized = false
		vipsAvailable = false
		logging.Info("libvips shutdown complete")
	}
}

// IsVipsAvailable returns whether libvips is initialized and available
func IsVipsAvailable() bool {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()
	return vipsAvailable
}

// loadWithVips opens path with libvips, returning the image dimensions. The
// caller owns ref and must Close it.
func loadWithVips(path string) (*vips.ImageRef, error) {
	if !IsVipsAvailable() {
		return nil, fmt.Errorf("libvips not available")
	}
	ref, err := vips.LoadImageFromFile(path, vips.NewImportParams())
	if err != nil {
		return nil, fmt.Errorf("vips failed to load %s: %w", filepath.Base(path), err)
	}
	return ref, nil
}

// encodeWithVips shrinks path to fit maxDim x maxDim (never enlarging) and
// exports it as JPEG.
func encodeWithVips(path string, maxDim, quality int) ([]byte, error) {
	ref, err := loadWithVips(path)
	if err != nil {
		return nil, err
	}
	defer ref.Close()

	if ref.Width() > maxDim || ref.Height() > maxDim {
		logging.Debug("Vips shrinking %s from %dx%d to fit %d", filepath.Base(path), ref.Width(), ref.Height(), maxDim)
		if err := ref.Thumbnail(maxDim, maxDim, vips.InterestingNone); err != nil {
			return nil, fmt.Errorf("vips resize failed: %w", err)
		}
	}

	buf, _, err := ref.ExportJpeg(&vips.JpegExportParams{
		Quality:        quality,
		StripMetadata:  true,
		OptimizeCoding: true,
	})
	if err != nil {
		return nil, fmt.Errorf("vips export failed: %w", err)
	}
	return buf, nil
}

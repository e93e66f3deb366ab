package metadata

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"image-tagger/internal/logging"
	"image-tagger/internal/mediatypes"
)

// DefaultToolTimeout bounds one external tool invocation.
const DefaultToolTimeout = 30 * time.Second

// commandStrategy runs an external tool; its exit code decides success.
type commandStrategy struct {
	name    string
	binary  string
	timeout time.Duration
	formats map[mediatypes.Format]bool
	args    func(path, description string, tags []string) []string
}

// NewExiftool returns a strategy that shells out to exiftool.
func NewExiftool(timeout time.Duration) Strategy {
	return &commandStrategy{
		name:    "exiftool",
		binary:  "exiftool",
		timeout: timeout,
		formats: map[mediatypes.Format]bool{
			mediatypes.FormatJPEG: true,
			mediatypes.FormatPNG:  true,
			mediatypes.FormatGIF:  true,
			mediatypes.FormatWebP: true,
			mediatypes.FormatTIFF: true,
			mediatypes.FormatHEIF: true,
		},
		args: exiftoolArgs,
	}
}

// NewExiv2 returns a strategy that shells out to exiv2.
func NewExiv2(timeout time.Duration) Strategy {
	return &commandStrategy{
		name:    "exiv2",
		binary:  "exiv2",
		timeout: timeout,
		formats: map[mediatypes.Format]bool{
			mediatypes.FormatJPEG: true,
			mediatypes.FormatPNG:  true,
			mediatypes.FormatWebP: true,
			mediatypes.FormatTIFF: true,
		},
		args: exiv2Args,
	}
}

func exiftoolArgs(path, description string, tags []string) []string {
	args := []string{
		"-overwrite_original",
		"-q",
		"-ImageDescription=" + description,
		"-XMP-dc:Description=" + description,
		"-XMP-dc:Subject=",
	}
	for _, t := range tags {
		args = append(args, "-XMP-dc:Subject+="+t)
	}
	return append(args, "--", path)
}

func exiv2Args(path, description string, tags []string) []string {
	args := []string{
		"-M", "set Exif.Image.ImageDescription " + description,
		"-M", "set Xmp.dc.description lang=x-default " + description,
		"-M", "del Xmp.dc.subject",
	}
	for _, t := range tags {
		args = append(args, "-M", "add Xmp.dc.subject XmpBag "+t)
	}
	return append(args, "mo", path)
}

func (s *commandStrategy) Name() string { return s.name }

func (s *commandStrategy) Supports(format mediatypes.Format) bool {
	return s.formats[format]
}

func (s *commandStrategy) Write(ctx context.Context, path string, _ mediatypes.Format, description string, tags []string) error {
	bin, err := exec.LookPath(s.binary)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrToolUnavailable, s.binary)
	}

	timeout := s.timeout
	if timeout <= 0 {
		timeout = DefaultToolTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, s.args(path, description, tags)...)
	cmd.Stderr = &stderr

	err = cmd.Run()
	if msg := strings.TrimSpace(stderr.String()); msg != "" {
		logging.Debug("%s stderr for %s: %s", s.name, path, msg)
	}
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%s timed out after %v", s.name, timeout)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("%s exited with code %d: %s", s.name, exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}
		return err
	}
	return nil
}

package metadata

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
)

// ErrNoDescription is returned by ReadDescription when a file carries none.
var ErrNoDescription = errors.New("no embedded description")

// ReadDescription returns the description embedded in path. The XMP
// dc:description is preferred; the EXIF ImageDescription is the fallback.
func ReadDescription(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	if packet := extractPacket(data); packet != nil {
		desc, _, err := parsePacket(packet)
		if err == nil && desc != "" {
			return desc, nil
		}
	}

	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNoDescription, err)
	}
	tag, err := x.Get(exif.ImageDescription)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNoDescription, err)
	}
	desc, err := tag.StringVal()
	if err != nil {
		return "", err
	}
	desc = strings.TrimRight(desc, "\x00 ")
	if desc == "" {
		return "", ErrNoDescription
	}
	return desc, nil
}

// ReadTags returns the XMP dc:subject entries embedded in path.
func ReadTags(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	packet := extractPacket(data)
	if packet == nil {
		return nil, nil
	}
	_, tags, err := parsePacket(packet)
	return tags, err
}

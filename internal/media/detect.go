package media

import (
	"io"

	"image-tagger/internal/mediatypes"
)

// sniffLen is enough header to identify every supported container.
const sniffLen = 32

// DetectFormat identifies the container from its leading bytes.
func DetectFormat(r io.Reader) (mediatypes.Format, error) {
	header := make([]byte, sniffLen)
	n, err := io.ReadFull(r, header)
	if err != nil && err != io.ErrUnexpectedEOF {
		return mediatypes.FormatUnknown, err
	}
	return detectHeader(header[:n]), nil
}

func detectHeader(header []byte) mediatypes.Format {
	switch {
	case len(header) >= 3 && header[0] == 0xFF && header[1] == 0xD8 && header[2] == 0xFF:
		return mediatypes.FormatJPEG

	case len(header) >= 8 && header[0] == 0x89 && header[1] == 0x50 && header[2] == 0x4E && header[3] == 0x47:
		return mediatypes.FormatPNG

	case len(header) >= 4 && header[0] == 0x47 && header[1] == 0x49 && header[2] == 0x46 && header[3] == 0x38:
		return mediatypes.FormatGIF

	case len(header) >= 12 && string(header[0:4]) == "RIFF" && string(header[8:12]) == "WEBP":
		return mediatypes.FormatWebP

	case len(header) >= 2 && header[0] == 0x42 && header[1] == 0x4D:
		return mediatypes.FormatBMP

	case len(header) >= 4 && ((header[0] == 0x49 && header[1] == 0x49 && header[2] == 0x2A && header[3] == 0x00) ||
		(header[0] == 0x4D && header[1] == 0x4D && header[2] == 0x00 && header[3] == 0x2A)):
		return mediatypes.FormatTIFF

	case len(header) >= 12 && string(header[4:8]) == "ftyp":
		switch string(header[8:12]) {
		case "heic", "heix", "hevc", "hevx", "mif1", "msf1":
			return mediatypes.FormatHEIF
		}
	}

	return mediatypes.FormatUnknown
}

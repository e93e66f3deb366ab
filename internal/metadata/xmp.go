package metadata

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/xml"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"strings"

	"image-tagger/internal/filesystem"
	"image-tagger/internal/mediatypes"
)

const (
	xmpNamespaceJPEG = "http://ns.adobe.com/xap/1.0/\x00"
	xmpKeywordPNG    = "XML:com.adobe.xmp"

	nsDC  = "http://purl.org/dc/elements/1.1/"
	nsRDF = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"

	maxJPEGSegment = 0xFFFF - 2
)

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}

// XMPStrategy writes a Dublin Core XMP packet directly into JPEG (APP1) and
// PNG (iTXt) files, replacing any existing packet. Other metadata is kept.
type XMPStrategy struct{}

func (XMPStrategy) Name() string { return "xmp" }

func (XMPStrategy) Supports(format mediatypes.Format) bool {
	return format == mediatypes.FormatJPEG || format == mediatypes.FormatPNG
}

func (XMPStrategy) Write(ctx context.Context, path string, format mediatypes.Format, description string, tags []string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	packet := buildPacket(description, tags)

	var out []byte
	switch format {
	case mediatypes.FormatJPEG:
		out, err = embedJPEG(data, packet)
	case mediatypes.FormatPNG:
		out, err = embedPNG(data, packet)
	default:
		return ErrUnsupported
	}
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	return filesystem.WriteFileAtomic(path, out)
}

func buildPacket(description string, tags []string) []byte {
	var b bytes.Buffer
	b.WriteString("<?xpacket begin=\"\xEF\xBB\xBF\" id=\"W5M0MpCehiHzreSzNTczkc9d\"?>\n")
	b.WriteString(`<x:xmpmeta xmlns:x="adobe:ns:meta/">` + "\n")
	b.WriteString(` <rdf:RDF xmlns:rdf="` + nsRDF + `">` + "\n")
	b.WriteString(`  <rdf:Description rdf:about="" xmlns:dc="` + nsDC + `">` + "\n")
	b.WriteString(`   <dc:description><rdf:Alt><rdf:li xml:lang="x-default">`)
	_ = xml.EscapeText(&b, []byte(description))
	b.WriteString("</rdf:li></rdf:Alt></dc:description>\n")
	if len(tags) > 0 {
		b.WriteString("   <dc:subject><rdf:Bag>")
		for _, t := range tags {
			b.WriteString("<rdf:li>")
			_ = xml.EscapeText(&b, []byte(t))
			b.WriteString("</rdf:li>")
		}
		b.WriteString("</rdf:Bag></dc:subject>\n")
	}
	b.WriteString("  </rdf:Description>\n </rdf:RDF>\n</x:xmpmeta>\n")
	b.WriteString(`<?xpacket end="w"?>`)
	return b.Bytes()
}

// embedJPEG drops existing XMP APP1 segments and inserts a new one after the
// leading APP0/APP1 segments, so EXIF stays first.
func embedJPEG(data, packet []byte) ([]byte, error) {
	if len(data) < 4 || data[0] != 0xFF || data[1] != 0xD8 {
		return nil, errors.New("not a JPEG")
	}
	payload := append([]byte(xmpNamespaceJPEG), packet...)
	if len(payload) > maxJPEGSegment {
		return nil, fmt.Errorf("xmp packet too large for a JPEG segment (%d bytes)", len(payload))
	}

	segment := make([]byte, 4, 4+len(payload))
	segment[0], segment[1] = 0xFF, 0xE1
	binary.BigEndian.PutUint16(segment[2:], uint16(len(payload)+2))
	segment = append(segment, payload...)

	out := make([]byte, 0, len(data)+len(segment))
	out = append(out, data[:2]...)

	inserted := false
	i := 2
	for i < len(data) {
		if i+1 >= len(data) {
			return nil, io.ErrUnexpectedEOF
		}
		if data[i] != 0xFF {
			return nil, fmt.Errorf("corrupt JPEG: expected marker at offset %d", i)
		}
		marker := data[i+1]
		if marker == 0xFF {
			i++
			continue
		}
		if marker == 0xDA || marker == 0xD9 {
			break
		}
		if i+4 > len(data) {
			return nil, io.ErrUnexpectedEOF
		}
		end := i + 2 + int(binary.BigEndian.Uint16(data[i+2:]))
		if end > len(data) {
			return nil, io.ErrUnexpectedEOF
		}
		seg := data[i:end]

		isLeadingApp := marker == 0xE0 || (marker == 0xE1 && !isXMPSegment(seg))
		if !inserted && !isLeadingApp {
			out = append(out, segment...)
			inserted = true
		}
		if !isXMPSegment(seg) {
			out = append(out, seg...)
		}
		i = end
	}
	if !inserted {
		out = append(out, segment...)
	}
	return append(out, data[i:]...), nil
}

func isXMPSegment(seg []byte) bool {
	return len(seg) >= 4+len(xmpNamespaceJPEG) && seg[1] == 0xE1 &&
		string(seg[4:4+len(xmpNamespaceJPEG)]) == xmpNamespaceJPEG
}

// embedPNG drops existing XMP iTXt chunks and inserts a new one after IHDR.
func embedPNG(data, packet []byte) ([]byte, error) {
	if len(data) < len(pngSignature) || !bytes.Equal(data[:len(pngSignature)], pngSignature) {
		return nil, errors.New("not a PNG")
	}

	var chunkData bytes.Buffer
	chunkData.WriteString(xmpKeywordPNG)
	// null separator, uncompressed, no method, empty language and translated keyword
	chunkData.Write([]byte{0, 0, 0, 0, 0})
	chunkData.Write(packet)
	chunk := pngChunk("iTXt", chunkData.Bytes())

	out := make([]byte, 0, len(data)+len(chunk))
	out = append(out, pngSignature...)

	i := len(pngSignature)
	inserted := false
	for i < len(data) {
		if i+8 > len(data) {
			return nil, io.ErrUnexpectedEOF
		}
		length := int(binary.BigEndian.Uint32(data[i:]))
		typ := string(data[i+4 : i+8])
		end := i + 12 + length
		if end > len(data) {
			return nil, io.ErrUnexpectedEOF
		}
		body := data[i+8 : i+8+length]

		if !(typ == "iTXt" && bytes.HasPrefix(body, []byte(xmpKeywordPNG+"\x00"))) {
			out = append(out, data[i:end]...)
		}
		if typ == "IHDR" && !inserted {
			out = append(out, chunk...)
			inserted = true
		}
		i = end
		if typ == "IEND" {
			break
		}
	}
	if !inserted {
		return nil, errors.New("corrupt PNG: missing IHDR")
	}
	return out, nil
}

func pngChunk(typ string, body []byte) []byte {
	chunk := make([]byte, 8, 12+len(body))
	binary.BigEndian.PutUint32(chunk, uint32(len(body)))
	copy(chunk[4:], typ)
	chunk = append(chunk, body...)
	crc := crc32.NewIEEE()
	crc.Write(chunk[4:])
	return binary.BigEndian.AppendUint32(chunk, crc.Sum32())
}

// extractPacket returns the first XMP packet found in raw file bytes.
func extractPacket(data []byte) []byte {
	start := bytes.Index(data, []byte("<x:xmpmeta"))
	if start < 0 {
		return nil
	}
	end := bytes.Index(data[start:], []byte("</x:xmpmeta>"))
	if end < 0 {
		return nil
	}
	return data[start : start+end+len("</x:xmpmeta>")]
}

// parsePacket reads dc:description (x-default or first entry) and
// dc:subject from an XMP packet.
func parsePacket(packet []byte) (description string, tags []string, err error) {
	dec := xml.NewDecoder(bytes.NewReader(packet))
	var (
		field   string
		inLi    bool
		text    strings.Builder
		haveDes bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch {
			case t.Name.Space == nsDC && (t.Name.Local == "description" || t.Name.Local == "subject"):
				field = t.Name.Local
			case t.Name.Space == nsRDF && t.Name.Local == "li" && field != "":
				inLi = true
				text.Reset()
			}
		case xml.CharData:
			if inLi {
				text.Write(t)
			}
		case xml.EndElement:
			switch {
			case t.Name.Space == nsRDF && t.Name.Local == "li" && inLi:
				inLi = false
				if field == "description" && !haveDes {
					description = text.String()
					haveDes = true
				} else if field == "subject" {
					tags = append(tags, text.String())
				}
			case t.Name.Space == nsDC && t.Name.Local == field:
				field = ""
			}
		}
	}
	return description, tags, nil
}

package writer

import (
	"bytes"
	"io"

	"golang.org/x/text/encoding/unicode"

	"github.com/talismancer/gowim/internal/wimerr"
)

// utf16LE is the transcoding used for the XML metadata resource, matching
// the archive's on-disk convention for that resource (spec §4.6 step 5b).
var utf16LE = unicode.UTF16(unicode.LittleEndian, unicode.UseBOM)

// encodeXML transcodes an XML document (already rendered as UTF-8 text by
// an external collaborator, per spec §1's "XML metadata parsing" boundary)
// into the archive's UTF-16LE on-disk form.
func encodeXML(doc string) ([]byte, error) {
	enc := utf16LE.NewEncoder()
	out, err := enc.Bytes([]byte(doc))
	if err != nil {
		return nil, wimerr.New(wimerr.Write, "writer.encodeXML", err)
	}
	return out, nil
}

// decodeXML is the inverse of encodeXML, for readers that need an
// archive's XML blob back as text.
func decodeXML(raw []byte) (string, error) {
	dec := utf16LE.NewDecoder()
	r := dec.Reader(bytes.NewReader(raw))
	out, err := io.ReadAll(r)
	if err != nil {
		return "", wimerr.New(wimerr.Read, "writer.decodeXML", err)
	}
	return string(out), nil
}

// EncodeXML is the exported form of encodeXML, for the overwrite package.
func EncodeXML(doc string) ([]byte, error) { return encodeXML(doc) }

// DecodeXML is the exported form of decodeXML, for callers outside this
// package.
func DecodeXML(raw []byte) (string, error) { return decodeXML(raw) }

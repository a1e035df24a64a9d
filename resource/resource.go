// Package resource implements Resource I/O (spec §4.1): reading a stream
// by (offset, size, flags) into a caller buffer or output file descriptor,
// and writing a resource from a source to the current output stream while
// updating its stream descriptor in place with the final placement.
//
// Compression/decompression codecs are an external collaborator (spec
// §1); this package only defines the Encoder/Decoder seams they plug
// into.
package resource

import (
	"bytes"
	"io"

	"github.com/talismancer/gowim/internal/wimerr"
	"github.com/talismancer/gowim/stream"
)

// Decoder decompresses a resource's on-disk bytes back to its original
// form. Implementations are provided by the codec package the caller
// wires in; this package never implements a codec itself.
type Decoder interface {
	// Decode decompresses src (the on-disk bytes) into a buffer of
	// exactly originalSize bytes, or returns an error.
	Decode(src []byte, originalSize int64) ([]byte, error)
}

// Encoder compresses a resource's original bytes for on-disk storage.
// Encode may decline to compress (ok=false) when compression offers no
// benefit; the caller then stores the bytes raw.
type Encoder interface {
	Encode(src []byte) (encoded []byte, ok bool)
}

// Read reads the resource described by d from src (a full random-access
// view of the archive) and writes its decoded bytes to dst. Reads are
// reproducible: identical (d, src) always yields identical bytes.
//
// dec may be nil when d is known not to be compressed; Read then requires
// d.Size == d.OriginalSize and copies the bytes verbatim.
func Read(src io.ReaderAt, d *stream.Descriptor, dec Decoder, dst io.Writer) error {
	raw := make([]byte, d.Size)
	if _, err := io.ReadFull(io.NewSectionReader(src, d.Offset, d.Size), raw); err != nil {
		return wimerr.New(wimerr.IoFail, "resource.Read", err)
	}

	if d.ResFlags&stream.FlagCompressed == 0 {
		if d.Size != d.OriginalSize {
			return wimerr.New(wimerr.Corrupt, "resource.Read", nil)
		}
		_, err := dst.Write(raw)
		if err != nil {
			return wimerr.New(wimerr.IoFail, "resource.Read", err)
		}
		return nil
	}

	if dec == nil {
		return wimerr.New(wimerr.UnsupportedCodec, "resource.Read", nil)
	}
	decoded, err := dec.Decode(raw, d.OriginalSize)
	if err != nil {
		return wimerr.New(wimerr.Corrupt, "resource.Read", err)
	}
	if int64(len(decoded)) != d.OriginalSize {
		return wimerr.New(wimerr.Corrupt, "resource.Read", nil)
	}
	if _, err := dst.Write(decoded); err != nil {
		return wimerr.New(wimerr.IoFail, "resource.Read", err)
	}
	return nil
}

// ReadBytes is a convenience wrapper around Read that returns the decoded
// bytes directly.
func ReadBytes(src io.ReaderAt, d *stream.Descriptor, dec Decoder) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(int(d.OriginalSize))
	if err := Read(src, d, dec, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// OffsetWriter wraps an io.Writer, tracking the current output position so
// Write can record each resource's exact placement. The writer path
// advances the output file position monotonically (spec §4.1 guarantee).
type OffsetWriter struct {
	w   io.Writer
	pos int64
}

// NewOffsetWriter wraps w, assuming the underlying stream's current
// position is startPos (0 for a fresh file).
func NewOffsetWriter(w io.Writer, startPos int64) *OffsetWriter {
	return &OffsetWriter{w: w, pos: startPos}
}

// Pos returns the current output position.
func (o *OffsetWriter) Pos() int64 { return o.pos }

func (o *OffsetWriter) Write(p []byte) (int, error) {
	n, err := o.w.Write(p)
	o.pos += int64(n)
	return n, err
}

// Write writes the resource read from src (its full original-size
// content) to out, optionally compressing via enc, and updates d in place
// with the final (Offset, Size, OriginalSize, ResFlags). originalSize must
// be the exact byte count produced by src.
func Write(out *OffsetWriter, src io.Reader, originalSize int64, enc Encoder, flags stream.Flags, d *stream.Descriptor) error {
	raw := make([]byte, originalSize)
	if _, err := io.ReadFull(src, raw); err != nil {
		return wimerr.New(wimerr.IoFail, "resource.Write", err)
	}

	payload := raw
	outFlags := flags &^ stream.FlagCompressed
	if enc != nil {
		if encoded, ok := enc.Encode(raw); ok {
			payload = encoded
			outFlags |= stream.FlagCompressed
		}
	}

	offset := out.Pos()
	if _, err := out.Write(payload); err != nil {
		return wimerr.New(wimerr.Write, "resource.Write", err)
	}

	d.Offset = offset
	d.Size = int64(len(payload))
	d.OriginalSize = originalSize
	d.ResFlags = outFlags
	return nil
}

package writer

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/talismancer/gowim/internal/wimerr"
	"github.com/talismancer/gowim/stream"
)

// ReadHeaderAt reads and decodes the HeaderDiskSize-byte header starting at
// offset 0 of src, for callers (the overwrite path) that need to inspect an
// existing archive's resource placements before patching it.
func ReadHeaderAt(src io.ReaderAt) (Header, error) {
	raw := make([]byte, HeaderDiskSize)
	if _, err := src.ReadAt(raw, 0); err != nil {
		return Header{}, wimerr.New(wimerr.Read, "writer.ReadHeaderAt", err)
	}
	return decodeHeader(raw)
}

// WriteHeaderAt back-patches hdr over the header slot at offset 0 of dst.
func WriteHeaderAt(dst io.WriterAt, hdr Header) error {
	if _, err := dst.WriteAt(encodeHeader(hdr), 0); err != nil {
		return wimerr.New(wimerr.Write, "writer.WriteHeaderAt", err)
	}
	return nil
}

// magic tags the start of the on-disk header, the same role wimlib's "MSWIM"
// tag plays: a cheap sanity check that a given file is this kind of archive
// before the rest of the header is trusted.
var magic = [8]byte{'G', 'O', 'W', 'I', 'M', 0, 0, 0}

func writeResEntry(buf *bytes.Buffer, r ResEntry) {
	binary.Write(buf, binary.LittleEndian, r.Offset)
	binary.Write(buf, binary.LittleEndian, r.Size)
	binary.Write(buf, binary.LittleEndian, r.OriginalSize)
	buf.WriteByte(byte(r.Flags))
}

func readResEntry(r *bytes.Reader) (ResEntry, error) {
	var e ResEntry
	if err := binary.Read(r, binary.LittleEndian, &e.Offset); err != nil {
		return e, err
	}
	if err := binary.Read(r, binary.LittleEndian, &e.Size); err != nil {
		return e, err
	}
	if err := binary.Read(r, binary.LittleEndian, &e.OriginalSize); err != nil {
		return e, err
	}
	flag, err := r.ReadByte()
	if err != nil {
		return e, err
	}
	e.Flags = stream.Flags(flag)
	return e, nil
}

// encodeHeader serialises hdr to the fixed HeaderDiskSize on-disk layout,
// padding the reserved tail with zero bytes.
func encodeHeader(hdr Header) []byte {
	var buf bytes.Buffer
	buf.Write(magic[:])
	binary.Write(&buf, binary.LittleEndian, hdr.Version)
	binary.Write(&buf, binary.LittleEndian, uint32(hdr.Flags))
	binary.Write(&buf, binary.LittleEndian, hdr.ImageCount)
	binary.Write(&buf, binary.LittleEndian, hdr.BootIndex)
	writeResEntry(&buf, hdr.LookupTable)
	writeResEntry(&buf, hdr.XML)
	writeResEntry(&buf, hdr.Integrity)
	writeResEntry(&buf, hdr.BootMeta)

	out := buf.Bytes()
	if len(out) > HeaderDiskSize {
		out = out[:HeaderDiskSize]
	} else if len(out) < HeaderDiskSize {
		out = append(out, make([]byte, HeaderDiskSize-len(out))...)
	}
	return out
}

// decodeHeader is the inverse of encodeHeader.
func decodeHeader(raw []byte) (Header, error) {
	var hdr Header
	if len(raw) < HeaderDiskSize {
		return hdr, wimerr.New(wimerr.Corrupt, "writer.decodeHeader", nil)
	}
	r := bytes.NewReader(raw)
	var got [8]byte
	if _, err := r.Read(got[:]); err != nil {
		return hdr, wimerr.New(wimerr.Corrupt, "writer.decodeHeader", err)
	}
	if got != magic {
		return hdr, wimerr.New(wimerr.Corrupt, "writer.decodeHeader", nil)
	}
	if err := binary.Read(r, binary.LittleEndian, &hdr.Version); err != nil {
		return hdr, wimerr.New(wimerr.Corrupt, "writer.decodeHeader", err)
	}
	var flags uint32
	if err := binary.Read(r, binary.LittleEndian, &flags); err != nil {
		return hdr, wimerr.New(wimerr.Corrupt, "writer.decodeHeader", err)
	}
	hdr.Flags = HeaderFlags(flags)
	if err := binary.Read(r, binary.LittleEndian, &hdr.ImageCount); err != nil {
		return hdr, wimerr.New(wimerr.Corrupt, "writer.decodeHeader", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &hdr.BootIndex); err != nil {
		return hdr, wimerr.New(wimerr.Corrupt, "writer.decodeHeader", err)
	}
	var err error
	if hdr.LookupTable, err = readResEntry(r); err != nil {
		return hdr, wimerr.New(wimerr.Corrupt, "writer.decodeHeader", err)
	}
	if hdr.XML, err = readResEntry(r); err != nil {
		return hdr, wimerr.New(wimerr.Corrupt, "writer.decodeHeader", err)
	}
	if hdr.Integrity, err = readResEntry(r); err != nil {
		return hdr, wimerr.New(wimerr.Corrupt, "writer.decodeHeader", err)
	}
	if hdr.BootMeta, err = readResEntry(r); err != nil {
		return hdr, wimerr.New(wimerr.Corrupt, "writer.decodeHeader", err)
	}
	return hdr, nil
}

package writer

import (
	"bytes"
	"encoding/binary"
	"io"

	digest "github.com/opencontainers/go-digest"

	"github.com/talismancer/gowim/internal/wimerr"
	"github.com/talismancer/gowim/stream"
)

// fixedFieldsSize is the width of one lookup-table entry's fixed-size
// tail: three 8-byte resource fields, a 1-byte flags field, and a 4-byte
// reference count. The hash itself is stored as a length-prefixed string
// (digest.Digest's canonical "<algorithm>:<encoded>" form) rather than a
// fixed-width field, since this format is self-consistent rather than
// byte-compatible with any particular archive implementation and so is
// free to carry whichever digest algorithm produced the hash.
const fixedFieldsSize = 8 + 8 + 8 + 1 + 4

// encodeLookupTable serialises every descriptor in table, sorted by hash
// for a reproducible on-disk order, into the engine's lookup-table
// resource format.
func encodeLookupTable(table *stream.Table) ([]byte, error) {
	var buf bytes.Buffer
	for _, d := range table.All() {
		hashStr := string(d.Hash)
		if len(hashStr) > 0xFFFF {
			return nil, wimerr.New(wimerr.Corrupt, "encodeLookupTable", nil)
		}
		binary.Write(&buf, binary.LittleEndian, uint16(len(hashStr)))
		buf.WriteString(hashStr)
		binary.Write(&buf, binary.LittleEndian, d.Offset)
		binary.Write(&buf, binary.LittleEndian, d.Size)
		binary.Write(&buf, binary.LittleEndian, d.OriginalSize)
		buf.WriteByte(byte(d.ResFlags))
		binary.Write(&buf, binary.LittleEndian, d.RefCnt)
	}
	return buf.Bytes(), nil
}

// decodeLookupTable is the inverse of encodeLookupTable, used by readers
// that round-trip an archive this package wrote.
func decodeLookupTable(raw []byte) (*stream.Table, error) {
	table := stream.NewTable()
	r := bytes.NewReader(raw)
	for r.Len() > 0 {
		var hashLen uint16
		if err := binary.Read(r, binary.LittleEndian, &hashLen); err != nil {
			return nil, wimerr.New(wimerr.Corrupt, "decodeLookupTable", err)
		}
		hashBytes := make([]byte, hashLen)
		if _, err := io.ReadFull(r, hashBytes); err != nil {
			return nil, wimerr.New(wimerr.Corrupt, "decodeLookupTable", err)
		}

		tail := make([]byte, fixedFieldsSize)
		if _, err := io.ReadFull(r, tail); err != nil {
			return nil, wimerr.New(wimerr.Corrupt, "decodeLookupTable", err)
		}

		d := &stream.Descriptor{Hash: digest.Digest(hashBytes)}
		d.Offset = int64(binary.LittleEndian.Uint64(tail[0:8]))
		d.Size = int64(binary.LittleEndian.Uint64(tail[8:16]))
		d.OriginalSize = int64(binary.LittleEndian.Uint64(tail[16:24]))
		d.ResFlags = stream.Flags(tail[24])
		d.RefCnt = binary.LittleEndian.Uint32(tail[25:29])
		table.Insert(d)
	}
	return table, nil
}

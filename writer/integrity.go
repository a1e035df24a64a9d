package writer

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/talismancer/gowim/internal/wimerr"
	"github.com/talismancer/gowim/internal/wlog"
)

// IntegrityHasher computes one chunk's digest for the integrity table.
// SHA-1 itself is an external collaborator (spec §1); this package only
// defines the seam and the on-disk chunk-table format around it.
type IntegrityHasher interface {
	ChunkDigest(chunk []byte) [20]byte
}

// defaultIntegrityChunkSize is used when the caller's config leaves
// IntegrityChunkSize unset.
const defaultIntegrityChunkSize = 10 * 1024 * 1024

// buildIntegrityTable reads [start, end) from src in chunkSize pieces (spec
// §4.6 step 6: "CHECK_INTEGRITY chunks the written region and records one
// digest per chunk"), hashing each with hasher, and returns the encoded
// table: a 4-byte chunk count, an 8-byte chunk size, followed by that many
// 20-byte digests. start excludes the header; end excludes the XML data
// and everything after it, since neither is covered by the integrity
// table.
func buildIntegrityTable(src io.ReaderAt, start, end int64, chunkSize int64, hasher IntegrityHasher) ([]byte, error) {
	if chunkSize <= 0 {
		chunkSize = defaultIntegrityChunkSize
	}
	var digests [][20]byte
	buf := make([]byte, chunkSize)
	for off := start; off < end; off += chunkSize {
		n := chunkSize
		if off+n > end {
			n = end - off
		}
		chunk := buf[:n]
		if _, err := src.ReadAt(chunk, off); err != nil && err != io.EOF {
			wlog.Errorf("writer: integrity table read failed at offset %d: %v", off, err)
			return nil, wimerr.New(wimerr.Read, "writer.buildIntegrityTable", err)
		}
		digests = append(digests, hasher.ChunkDigest(chunk))
	}

	var out bytes.Buffer
	binary.Write(&out, binary.LittleEndian, uint32(len(digests)))
	binary.Write(&out, binary.LittleEndian, chunkSize)
	for _, d := range digests {
		out.Write(d[:])
	}
	return out.Bytes(), nil
}

// BuildIntegrityTable is the exported form of buildIntegrityTable, used by
// the overwrite package when it must recompute the table itself rather
// than reuse the archive's existing one.
func BuildIntegrityTable(src io.ReaderAt, start, end int64, chunkSize int64, hasher IntegrityHasher) ([]byte, error) {
	return buildIntegrityTable(src, start, end, chunkSize, hasher)
}

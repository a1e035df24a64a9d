package writer

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/talismancer/gowim/stream"
)

func TestEncodeDecodeHeaderRoundTrips(t *testing.T) {
	hdr := Header{
		Version:    1,
		Flags:      HeaderFlagRPFix,
		ImageCount: 3,
		BootIndex:  2,
		LookupTable: ResEntry{Offset: 208, Size: 100, OriginalSize: 100},
		XML:         ResEntry{Offset: 308, Size: 50, OriginalSize: 50, Flags: stream.FlagMetadata},
		Integrity:   ResEntry{Offset: 358, Size: 20, OriginalSize: 20},
		BootMeta:    ResEntry{Offset: 10, Size: 5, OriginalSize: 5},
	}

	raw := encodeHeader(hdr)
	assert.Equal(t, HeaderDiskSize, len(raw))

	got, err := decodeHeader(raw)
	assert.NilError(t, err)
	assert.DeepEqual(t, hdr, got)
}

func TestDecodeHeaderRejectsBadMagic(t *testing.T) {
	raw := make([]byte, HeaderDiskSize)
	_, err := decodeHeader(raw)
	assert.ErrorContains(t, err, "archive corrupt")
}

func TestDecodeHeaderRejectsShortInput(t *testing.T) {
	_, err := decodeHeader(make([]byte, 10))
	assert.ErrorContains(t, err, "archive corrupt")
}

func TestReadWriteHeaderAt(t *testing.T) {
	buf := newMemFile(HeaderDiskSize)
	hdr := Header{Version: 42, ImageCount: 1}
	assert.NilError(t, WriteHeaderAt(buf, hdr))

	got, err := ReadHeaderAt(buf)
	assert.NilError(t, err)
	assert.Equal(t, uint32(42), got.Version)
	assert.Equal(t, uint32(1), got.ImageCount)
}

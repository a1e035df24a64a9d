package writer

import (
	"io"

	digest "github.com/opencontainers/go-digest"

	"github.com/talismancer/gowim/dentry"
	"github.com/talismancer/gowim/internal/wconfig"
	"github.com/talismancer/gowim/internal/wimerr"
	"github.com/talismancer/gowim/internal/wlog"
	"github.com/talismancer/gowim/resource"
	"github.com/talismancer/gowim/stream"
)

// Output is the random-access, seekable destination Write patches in
// place: the placeholder header goes in first, the body streams out
// sequentially after it, and the real header is back-patched over the
// placeholder once every offset is known.
type Output interface {
	io.Writer
	io.ReaderAt
	io.WriterAt
	io.Seeker
}

// ContentSource resolves a stream's original bytes by hash, for the file
// resources phase. Supplying this from a live filesystem, from another
// archive handle, or from a cache are all valid callers; producing the
// bytes themselves is outside this package's concern (spec §1).
type ContentSource interface {
	Open(hash digest.Digest) (r io.Reader, size int64, err error)
}

// MetadataSource supplies one image's already-serialised metadata
// resource bytes (the encoded dentry/inode tree). Encoding the tree
// itself mirrors the external "on-disk dentry/inode decoding" collaborator
// named in spec §1, just run in reverse.
type MetadataSource interface {
	Metadata(img Image) (r io.Reader, size int64, err error)
}

// XMLProvider renders the XML metadata document for the images being
// written. totalBytesHint overrides the archive's reported total size
// when writing a subset of a split WIM (spec §9 supplement).
type XMLProvider interface {
	XML(images []Image, totalBytesHint int64) (string, error)
}

// Flags controls optional write-time behaviour.
type Flags uint32

const (
	// FlagCheckIntegrity appends an integrity table over the written
	// region (spec §4.6 step 6).
	FlagCheckIntegrity Flags = 1 << iota
)

func (f Flags) has(bit Flags) bool { return f&bit != 0 }

// EventKind enumerates the write-side progress events.
type EventKind int

const (
	EventWriteStreamsBegin EventKind = iota
	EventWriteStreamsEnd
	EventWriteMetadataBegin
	EventWriteMetadataEnd
	EventWriteIntegrityBegin
	EventWriteIntegrityEnd
)

type Event struct {
	Kind EventKind
}

// Progress receives write-side events; OnProgress errors abort the write.
type Progress interface {
	OnProgress(Event) error
}

type ProgressFunc func(Event) error

func (f ProgressFunc) OnProgress(e Event) error { return f(e) }

// NoProgress discards every event.
var NoProgress Progress = ProgressFunc(func(Event) error { return nil })

// Write implements the Writer (spec §4.6): a five-phase protocol —
// Begin (placeholder header), Reset (output refcounts), File resources,
// Metadata resources, and Finish (lookup table, XML, optional integrity
// table, then the real header back-patched over the placeholder).
//
// hdr carries the caller's starting header (Version and any flags the
// caller wants preserved); Write fills in ImageCount, BootIndex, and the
// four resource entries itself.
func Write(out Output, images []Image, table *stream.Table, hdr Header, flags Flags, enc resource.Encoder, content ContentSource, meta MetadataSource, xmlProvider XMLProvider, hasher IntegrityHasher, cfg wconfig.Config, progress Progress) error {
	if progress == nil {
		progress = NoProgress
	}
	if content == nil || meta == nil || xmlProvider == nil {
		wlog.Errorf("writer: Write called with a nil collaborator")
		return wimerr.New(wimerr.InvalidParam, "writer.Write", nil)
	}

	// Phase 1: Begin. The placeholder's contents don't matter — only its
	// size does, so the body below starts at the right offset — but
	// writing a structurally valid placeholder means a reader that opens
	// the file mid-write at least sees a recognisable (if incomplete)
	// header rather than garbage.
	if _, err := out.WriteAt(encodeHeader(hdr), 0); err != nil {
		return wimerr.New(wimerr.Write, "writer.Write", err)
	}

	// Phase 2: Reset.
	table.ResetOutputRefcounts()

	if _, err := out.Seek(HeaderDiskSize, io.SeekStart); err != nil {
		return wimerr.New(wimerr.Write, "writer.Write", err)
	}
	ow := resource.NewOffsetWriter(out, HeaderDiskSize)

	// Phase 3: file resources.
	if err := progress.OnProgress(Event{Kind: EventWriteStreamsBegin}); err != nil {
		return err
	}
	written := make(map[digest.Digest]bool)
	for _, img := range images {
		err := dentry.PreOrder(img.Root, func(d *dentry.Dentry) error {
			if d.Inode == nil {
				return nil
			}
			return writeInodeStreams(d.Inode, table, ow, enc, content, written)
		})
		if err != nil {
			return err
		}
	}
	if err := progress.OnProgress(Event{Kind: EventWriteStreamsEnd}); err != nil {
		return err
	}

	// Phase 4: metadata resources, one per image.
	if err := progress.OnProgress(Event{Kind: EventWriteMetadataBegin}); err != nil {
		return err
	}
	for i := range images {
		r, size, err := meta.Metadata(images[i])
		if err != nil {
			return err
		}
		if images[i].Metadata == nil {
			images[i].Metadata = &stream.Descriptor{}
		}
		if err := resource.Write(ow, r, size, enc, stream.FlagMetadata, images[i].Metadata); err != nil {
			return err
		}
	}
	if err := progress.OnProgress(Event{Kind: EventWriteMetadataEnd}); err != nil {
		return err
	}

	// Phase 5: finish_write.
	return finishWrite(out, ow, images, table, hdr, flags, xmlProvider, hasher, cfg, progress)
}

// writeInodeStreams writes the inode's unnamed stream and every alternate
// stream exactly once (spec §4.2 dedup invariant), skipping any hash
// already written by an earlier dentry in this pass.
func writeInodeStreams(ino *dentry.Inode, table *stream.Table, ow *resource.OffsetWriter, enc resource.Encoder, content ContentSource, written map[digest.Digest]bool) error {
	hashes := make([]digest.Digest, 0, 1+len(ino.AlternateStreams))
	if ino.UnnamedStreamHash != "" {
		hashes = append(hashes, ino.UnnamedStreamHash)
	}
	for _, ads := range ino.AlternateStreams {
		if ads.Hash != "" {
			hashes = append(hashes, ads.Hash)
		}
	}

	for _, h := range hashes {
		if written[h] {
			continue
		}
		wlog.Debugf("writer: writing stream %s", h)
		d := table.Lookup(h)
		if d == nil {
			wlog.Errorf("writer: stream %s has no lookup table entry", h)
			return wimerr.New(wimerr.Corrupt, "writer.writeInodeStreams", nil)
		}
		r, size, err := content.Open(h)
		if err != nil {
			return err
		}
		if err := resource.Write(ow, r, size, enc, 0, d); err != nil {
			return err
		}
		written[h] = true
	}
	return nil
}

// writeRawResource writes data (already in its final on-disk form — the
// lookup table and XML resources are not themselves stream-deduplicated
// content) at the writer's current position and returns its placement.
func writeRawResource(ow *resource.OffsetWriter, data []byte) (ResEntry, error) {
	off := ow.Pos()
	if _, err := ow.Write(data); err != nil {
		return ResEntry{}, wimerr.New(wimerr.Write, "writer.writeRawResource", err)
	}
	return ResEntry{Offset: off, Size: int64(len(data)), OriginalSize: int64(len(data))}, nil
}

// finishWrite is finish_write (spec §4.6 step 5): write the lookup table,
// then the XML, then optionally the integrity table, recording each
// placement in hdr, then back-patch the real header over the placeholder.
func finishWrite(out Output, ow *resource.OffsetWriter, images []Image, table *stream.Table, hdr Header, flags Flags, xmlProvider XMLProvider, hasher IntegrityHasher, cfg wconfig.Config, progress Progress) error {
	ltBytes, err := encodeLookupTable(table)
	if err != nil {
		return err
	}
	hdr.LookupTable, err = writeRawResource(ow, ltBytes)
	if err != nil {
		return err
	}

	var totalBytes int64
	for _, d := range table.All() {
		totalBytes += d.OriginalSize
	}
	xmlDoc, err := xmlProvider.XML(images, totalBytes)
	if err != nil {
		return err
	}
	xmlBytes, err := encodeXML(xmlDoc)
	if err != nil {
		return err
	}
	hdr.XML, err = writeRawResource(ow, xmlBytes)
	if err != nil {
		return err
	}

	hdr.ImageCount = uint32(len(images))
	hdr.BootIndex = 0
	hdr.BootMeta = ResEntry{}
	for i, img := range images {
		if img.Bootable && img.Metadata != nil {
			hdr.BootIndex = uint32(i + 1)
			hdr.BootMeta = ResEntry{
				Offset:       img.Metadata.Offset,
				Size:         img.Metadata.Size,
				OriginalSize: img.Metadata.OriginalSize,
				Flags:        img.Metadata.ResFlags,
			}
		}
	}

	if flags.has(FlagCheckIntegrity) {
		if err := progress.OnProgress(Event{Kind: EventWriteIntegrityBegin}); err != nil {
			return err
		}
		if hasher == nil {
			wlog.Errorf("writer: CHECK_INTEGRITY requested with no hasher")
			return wimerr.New(wimerr.InvalidParam, "writer.finishWrite", nil)
		}
		// The integrity table covers [header, xml_data_offset): neither the
		// header (overwritten below with its real contents) nor the XML
		// data itself is part of the hashed range.
		itBytes, err := buildIntegrityTable(out, HeaderDiskSize, hdr.XML.Offset, cfg.IntegrityChunkSize, hasher)
		if err != nil {
			return err
		}
		hdr.Integrity, err = writeRawResource(ow, itBytes)
		if err != nil {
			return err
		}
		if err := progress.OnProgress(Event{Kind: EventWriteIntegrityEnd}); err != nil {
			return err
		}
	} else {
		hdr.Integrity = ResEntry{}
	}

	if _, err := out.WriteAt(encodeHeader(hdr), 0); err != nil {
		return wimerr.New(wimerr.Write, "writer.finishWrite", err)
	}
	return nil
}

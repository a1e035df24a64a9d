// Package writer implements the Writer (spec §4.6): the multi-phase
// protocol that emits resources, lookup table, XML, and an optional
// integrity table, then back-patches the header to point at them.
package writer

import (
	"github.com/talismancer/gowim/dentry"
	"github.com/talismancer/gowim/stream"
)

// ResEntry is a single resource-entry slot in the header (spec §3: "header
// ... resource entries for lookup table / XML / integrity / boot
// metadata").
type ResEntry struct {
	Offset       int64
	Size         int64
	OriginalSize int64
	Flags        stream.Flags
}

// HeaderDiskSize is the fixed on-disk header size ("H" in spec §6's
// on-disk layout table).
const HeaderDiskSize = 208

// HeaderFlags mirrors the archive-level flags relevant to the writer and
// the RPFIX decision in package extract.
type HeaderFlags uint32

const (
	HeaderFlagRPFix HeaderFlags = 1 << iota
)

// Header is the on-disk WIM header (spec §3). Its resource-entry fields
// are placeholders until finish_write back-patches them with the real
// offsets recorded during the five write phases.
type Header struct {
	Version    uint32
	Flags      HeaderFlags
	ImageCount uint32
	BootIndex  uint32

	LookupTable ResEntry
	XML         ResEntry
	Integrity   ResEntry
	BootMeta    ResEntry
}

// Image is one bootable filesystem image within the archive (spec §3):
// its directory tree root and the descriptor of its metadata resource.
type Image struct {
	Root     *dentry.Dentry
	Metadata *stream.Descriptor
	// Bootable reports whether this image is the header's boot_idx
	// target; used by finish_write to decide the boot-metadata entry.
	Bootable bool
}

// Package stream implements the lookup table: the in-memory index from
// content hash to stream descriptor, with reference counting (spec §4.2).
package stream

import (
	digest "github.com/opencontainers/go-digest"

	"github.com/talismancer/gowim/dentry"
)

// Flags describes how a stream's bytes are stored on disk.
type Flags uint8

const (
	// FlagCompressed means the resource is stored compressed; its
	// on-disk Size differs from OriginalSize.
	FlagCompressed Flags = 1 << iota
	// FlagMetadata marks a resource as an image metadata stream rather
	// than file content.
	FlagMetadata
	// FlagFree marks a lookup-table slot that has been vacated (refcnt
	// dropped to zero) but not yet reclaimed.
	FlagFree
	// FlagSpanned means the resource's bytes live in a different part
	// of a split WIM set than the handle currently being read.
	FlagSpanned
)

// Descriptor is one per distinct content hash (spec §3): the archive
// location of the stream, its persistent reference count, and the
// transient fields the planner/executor populate for a single extraction.
type Descriptor struct {
	Hash digest.Digest

	// Offset, Size, OriginalSize, and Flags describe the stream's
	// on-disk placement: Size is the on-disk byte count (may be less
	// than OriginalSize under compression), OriginalSize is the
	// decompressed length.
	Offset       int64
	Size         int64
	OriginalSize int64
	ResFlags     Flags

	// RefCnt is the number of inode references to this stream among
	// dentries across the whole archive (persistent; lives with the
	// archive, not with one extraction).
	RefCnt uint32

	// OutRefCnt is the planner-computed number of extraction references
	// to this stream within the current plan's subtree (spec §3
	// invariant: equals the number of inode references to this stream
	// among dentries in the selected subtree, after planning). Reset to
	// zero at the start of every plan() call.
	OutRefCnt uint32

	// ExtractedFile names the first on-disk path this stream was
	// materialised to during the current extraction, used by the Normal
	// backend's SYMLINK/HARDLINK modes to link subsequent occurrences
	// instead of copying. Empty when unset.
	ExtractedFile string

	// Dentries is the transient list of dentries that reference this
	// descriptor during the current extraction (spec §3: "a transient
	// list head linking the dentries that reference it during a single
	// extraction"). Populated by the planner, cleared at plan start and
	// at extraction end.
	Dentries []*dentry.Dentry
}

// ResetExtractionState zeroes every transient, per-extraction field. The
// planner calls this on every touched descriptor before it begins marking
// dentries, and the executor calls it again in the shared cleanup cascade
// at the end of extraction (successful or not) — spec §3 lifecycle.
func (d *Descriptor) ResetExtractionState() {
	d.OutRefCnt = 0
	d.ExtractedFile = ""
	d.Dentries = nil
}

// Size in bytes counted toward progress for one extraction reference:
// OriginalSize, since progress tracks decompressed bytes delivered to the
// filesystem.
func (d *Descriptor) ExtractionSize() int64 { return d.OriginalSize }

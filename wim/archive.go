// Package wim ties the engine's independent pieces — the dentry tree, the
// stream lookup table, extraction, writing, and overwriting — into the
// five archive-level operations a caller actually drives: extracting a
// whole image, extracting a subset of files from one, writing a fresh
// archive, and the two overwrite modes.
package wim

import (
	"github.com/talismancer/gowim/internal/wimerr"
	"github.com/talismancer/gowim/stream"
	"github.com/talismancer/gowim/writer"
)

// Archive is one open WIM handle: its header, its stream lookup table,
// and its images. Decoding these from an on-disk file is the "on-disk
// dentry/inode decoding" external collaborator (spec §1); New assembles
// an Archive from that already-decoded state.
type Archive struct {
	// Path is the archive's on-disk location. Empty for an archive that
	// has not yet been written anywhere (Overwrite and
	// OverwriteXMLAndHeader require it to be set).
	Path string

	Header writer.Header
	Table  *stream.Table
	Images []writer.Image
}

// New assembles an Archive from its already-decoded constituents.
func New(path string, hdr writer.Header, table *stream.Table, images []writer.Image) *Archive {
	return &Archive{Path: path, Header: hdr, Table: table, Images: images}
}

// Image returns the 1-based indexed image (spec §3's boot_idx convention),
// or InvalidImage if index is out of range.
func (a *Archive) Image(index int) (writer.Image, error) {
	if index < 1 || index > len(a.Images) {
		return writer.Image{}, wimerr.New(wimerr.InvalidImage, "wim.Archive.Image", nil)
	}
	return a.Images[index-1], nil
}

// MergeParts brings a split WIM's secondary-part lookup tables into scope
// for the duration of an extraction (spec §4.2): the returned token must
// be passed to UnmergeParts afterward, even on an extraction error, to
// restore the primary table to its pre-merge state exactly (spec §9
// supplement: merge/unmerge are required to be exact inverses).
func (a *Archive) MergeParts(parts ...*stream.Table) stream.MergeToken {
	return a.Table.Merge(parts...)
}

// UnmergeParts reverses a prior MergeParts call.
func (a *Archive) UnmergeParts(tok stream.MergeToken) {
	a.Table.Unmerge(tok)
}

// Package dentry implements the per-image directory/inode tree (spec §4.3):
// pre-order and post-order traversal with a visitor, full-path
// materialisation, and canonical-path lookup.
package dentry

import (
	"time"

	digest "github.com/opencontainers/go-digest"
)

// ID uniquely identifies an Inode within one Tree.
type ID uint64

// AlternateStream is a named side-stream attached to an Inode (an ADS).
type AlternateStream struct {
	Name string
	Hash digest.Digest
}

// Attr carries the file attributes the extraction backends need to
// reproduce: Windows-style attribute bits plus the three timestamps.
type Attr struct {
	FileAttributes uint32
	CreationTime   time.Time
	LastWriteTime  time.Time
	LastAccessTime time.Time

	// UnixData carries the optional UNIX_DATA extension (uid/gid/mode/
	// rdev) used when UNIX_DATA is requested on extraction.
	UnixData *UnixData
}

// UnixData is the optional UNIX metadata extension stored alongside an
// inode (owner, group, permission bits, device numbers for special files).
type UnixData struct {
	UID  uint32
	GID  uint32
	Mode uint32
	Rdev uint32
}

// Inode is shared by exactly the set of Dentries that are hard links of
// each other (spec §3 invariant); their extraction must materialise
// filesystem hard links in HARDLINK mode.
type Inode struct {
	ID    ID
	Attr  Attr
	Nlink uint32

	// UnnamedStreamHash is the content hash of the inode's unnamed
	// (default) data stream. Zero digest means "no data" (e.g. a
	// directory, or a regular file with an empty stream).
	UnnamedStreamHash digest.Digest

	// AlternateStreams lists the inode's ADSes, present only when the
	// source filesystem/WIM recorded them.
	AlternateStreams []AlternateStream

	// Dentries are every Dentry in this tree that points at this Inode
	// (its hard links). Populated by Dentry.Link.
	Dentries []*Dentry

	// visited is a transient flag the planner uses to process each
	// inode's streams only on the first dentry visit; reset at the start
	// of every plan() call (spec §4.4 step 2).
	visited bool
}

// IsDir reports whether the inode represents a directory, derived from
// the Windows FILE_ATTRIBUTE_DIRECTORY bit.
func (i *Inode) IsDir() bool {
	const fileAttributeDirectory = 0x10
	return i.Attr.FileAttributes&fileAttributeDirectory != 0
}

// IsReparsePoint reports whether the inode is a reparse point (symlink or
// junction), derived from FILE_ATTRIBUTE_REPARSE_POINT.
func (i *Inode) IsReparsePoint() bool {
	const fileAttributeReparsePoint = 0x400
	return i.Attr.FileAttributes&fileAttributeReparsePoint != 0
}

// Visited reports the per-plan visited flag.
func (i *Inode) Visited() bool { return i.visited }

// SetVisited sets the per-plan visited flag.
func (i *Inode) SetVisited(v bool) { i.visited = v }

// IsHardLinked reports whether more than one Dentry references this Inode.
func (i *Inode) IsHardLinked() bool { return len(i.Dentries) > 1 }

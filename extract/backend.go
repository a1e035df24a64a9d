package extract

import (
	"io"

	"github.com/talismancer/gowim/dentry"
	"github.com/talismancer/gowim/stream"
)

// LinkMode selects how a shared stream's second and subsequent
// materialisations are produced (spec §4.5 Normal backend).
type LinkMode int

const (
	LinkModeNone LinkMode = iota
	LinkModeSymlink
	LinkModeHardlink
)

// Backend is the capability set a materialisation target exposes: Normal
// (host filesystem) or Raw-NTFS (spec §4.5). The executor drives both
// through this same interface; only the concrete implementation differs.
type Backend interface {
	// ApplyStructure is Phase A: create directories, empty files, and
	// symlink placeholders. Regular files with a non-empty unnamed
	// stream are left for ApplyStreamContent. This call is the NO_STREAMS
	// pass: it receives no stream content.
	ApplyStructure(d *dentry.Dentry, outPath string) error

	// ApplyStreamContent is Phase B: materialise desc's decoded bytes
	// at outPath for dentry d. When linkMode != LinkModeNone and desc
	// has already been extracted once (desc.ExtractedFile != ""), the
	// backend must link to that path instead of consuming content.
	// content is nil in that linking case.
	ApplyStreamContent(d *dentry.Dentry, outPath string, desc *stream.Descriptor, content io.Reader, linkMode LinkMode) error

	// ApplyTimestamps is Phase C: stamp last-write and last-access times.
	// Neither backend in this package sets the creation time.
	ApplyTimestamps(d *dentry.Dentry, outPath string) error

	// SupportsLinkMode reports whether the backend can honour the given
	// link mode at all (the Raw-NTFS backend cannot).
	SupportsLinkMode(mode LinkMode) bool
}

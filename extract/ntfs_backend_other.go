//go:build !windows

package extract

import (
	"io"

	"github.com/talismancer/gowim/dentry"
	"github.com/talismancer/gowim/internal/wimerr"
	"github.com/talismancer/gowim/stream"
)

// NTFSBackend is the Raw-NTFS backend slot (spec §4.5). Its working
// implementation is gated behind GOOS=windows (see
// ntfs_backend_windows.go); on every other
// platform it compiles to a capability stub that fails fast with
// Unsupported, matching the "runtime error when requested but absent"
// design in spec §9.
type NTFSBackend struct{}

var _ Backend = (*NTFSBackend)(nil)

func NewNTFSBackend(volumePath string) (*NTFSBackend, error) {
	return nil, wimerr.New(wimerr.Unsupported, "NewNTFSBackend", nil)
}

func (b *NTFSBackend) SupportsLinkMode(mode LinkMode) bool { return mode == LinkModeNone }

func (b *NTFSBackend) ApplyStructure(d *dentry.Dentry, outPath string) error {
	return wimerr.New(wimerr.Unsupported, "NTFSBackend.ApplyStructure", nil)
}

func (b *NTFSBackend) ApplyStreamContent(d *dentry.Dentry, outPath string, desc *stream.Descriptor, content io.Reader, linkMode LinkMode) error {
	return wimerr.New(wimerr.Unsupported, "NTFSBackend.ApplyStreamContent", nil)
}

func (b *NTFSBackend) ApplyTimestamps(d *dentry.Dentry, outPath string) error {
	return wimerr.New(wimerr.Unsupported, "NTFSBackend.ApplyTimestamps", nil)
}

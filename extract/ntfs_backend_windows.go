//go:build windows

package extract

import (
	"io"
	"os"

	"github.com/Microsoft/go-winio"

	"github.com/talismancer/gowim/dentry"
	"github.com/talismancer/gowim/internal/wimerr"
	"github.com/talismancer/gowim/stream"
)

// NTFSBackend is the Raw-NTFS backend on Windows. It creates directories
// and files at the output paths it is given, opening files through
// go-winio's backup-semantics handles. It writes only each file's unnamed
// stream: ACLs are not applied, alternate data streams are not written
// (streamPath builds their "path:stream" name but nothing calls it), and
// volumePath is stored but not used to address a volume image. It is
// mutually exclusive with link modes and with partial-subtree extraction,
// enforced by the executor's pre-check rather than here.
type NTFSBackend struct {
	volumePath string
}

var _ Backend = (*NTFSBackend)(nil)

// NewNTFSBackend opens volumePath as the raw-NTFS extraction target.
func NewNTFSBackend(volumePath string) (*NTFSBackend, error) {
	if volumePath == "" {
		return nil, wimerr.New(wimerr.InvalidParam, "NewNTFSBackend", nil)
	}
	return &NTFSBackend{volumePath: volumePath}, nil
}

func (b *NTFSBackend) SupportsLinkMode(mode LinkMode) bool { return mode == LinkModeNone }

func (b *NTFSBackend) ApplyStructure(d *dentry.Dentry, outPath string) error {
	ino := d.Inode
	if ino == nil {
		return nil
	}
	if ino.IsDir() {
		if err := os.MkdirAll(outPath, 0755); err != nil {
			return wimerr.New(wimerr.NtfsBackend, "NTFSBackend.ApplyStructure", err)
		}
		return nil
	}
	if ino.UnnamedStreamHash == "" && !ino.IsReparsePoint() {
		f, err := winio.OpenForBackup(outPath, 0, os.O_CREATE|os.O_WRONLY, 0)
		if err != nil {
			return wimerr.New(wimerr.NtfsBackend, "NTFSBackend.ApplyStructure", err)
		}
		return f.Close()
	}
	return nil
}

// streamPath addresses an ADS using NTFS's native "file:stream" syntax.
func streamPath(outPath, adsName string) string {
	if adsName == "" {
		return outPath
	}
	return outPath + ":" + adsName
}

func (b *NTFSBackend) ApplyStreamContent(d *dentry.Dentry, outPath string, desc *stream.Descriptor, content io.Reader, linkMode LinkMode) error {
	f, err := winio.OpenForBackup(outPath, 0, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return wimerr.New(wimerr.NtfsBackend, "NTFSBackend.ApplyStreamContent", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, content); err != nil {
		return wimerr.New(wimerr.NtfsBackend, "NTFSBackend.ApplyStreamContent", err)
	}
	return nil
}

func (b *NTFSBackend) ApplyTimestamps(d *dentry.Dentry, outPath string) error {
	ino := d.Inode
	if ino == nil {
		return nil
	}
	f, err := winio.OpenForBackup(outPath, winio.GENERIC_WRITE, os.O_WRONLY, 0)
	if err != nil {
		return wimerr.New(wimerr.NtfsBackend, "NTFSBackend.ApplyTimestamps", err)
	}
	defer f.Close()
	return os.Chtimes(outPath, ino.Attr.LastAccessTime, ino.Attr.LastWriteTime)
}

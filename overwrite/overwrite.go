// Package overwrite implements the Overwriter (spec §4.7): replacing an
// already-written archive's contents, either by patching its XML and
// header in place (overwrite_xml_and_header) or by rebuilding the whole
// file into a sibling temp file and atomically renaming it over the
// original (overwrite).
package overwrite

import (
	"crypto/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gofrs/flock"
	"github.com/mohae/deepcopy"

	"github.com/talismancer/gowim/internal/wconfig"
	"github.com/talismancer/gowim/internal/wimerr"
	"github.com/talismancer/gowim/internal/wlog"
	"github.com/talismancer/gowim/resource"
	"github.com/talismancer/gowim/stream"
	"github.com/talismancer/gowim/writer"
)

// Flags controls optional overwrite-time behaviour, mirroring the subset
// of writer.Flags meaningful here.
type Flags uint32

const (
	// FlagCheckIntegrity requests an integrity table on the result. In
	// MetadataOnly, an existing table is reused verbatim when the
	// unchanged body region it covers is still valid (spec §9 supplement);
	// in Full it is always recomputed, since the whole body is rewritten.
	FlagCheckIntegrity Flags = 1 << iota
)

func (f Flags) has(bit Flags) bool { return f&bit != 0 }

func lockPath(archivePath string) string { return archivePath + ".lock" }

func withLock(archivePath string, fn func() error) error {
	l := flock.New(lockPath(archivePath))
	if err := l.Lock(); err != nil {
		wlog.Errorf("overwrite: failed to acquire lock on %s: %v", archivePath, err)
		return wimerr.New(wimerr.Open, "overwrite", err)
	}
	defer l.Unlock()
	return fn()
}

// MetadataOnly implements overwrite_xml_and_header: every file and
// metadata resource already on disk is left untouched; only the XML
// metadata resource is rewritten, and the header is back-patched to
// match. totalBytesHint is forwarded to xmlProvider for split-WIM partial
// writes (spec §9 supplement).
func MetadataOnly(path string, images []writer.Image, totalBytesHint int64, xmlProvider writer.XMLProvider, hasher writer.IntegrityHasher, flags Flags, cfg wconfig.Config) error {
	return withLock(path, func() error {
		f, err := os.OpenFile(path, os.O_RDWR, 0)
		if err != nil {
			return wimerr.New(wimerr.Open, "overwrite.MetadataOnly", err)
		}
		defer f.Close()

		hdr, err := writer.ReadHeaderAt(f)
		if err != nil {
			return err
		}

		bodyEnd := hdr.LookupTable.Offset + hdr.LookupTable.Size
		wantIntegrity := flags.has(FlagCheckIntegrity)
		hadIntegrity := hdr.Integrity.Size > 0

		// Read any existing integrity table before anything is
		// overwritten: the body it covers is unchanged by a metadata-only
		// patch, so it can be carried forward verbatim rather than
		// recomputed, but only if read now, before the new XML written
		// below overwrites it (spec §9 supplement).
		var oldIntegrity []byte
		if wantIntegrity && hadIntegrity {
			oldIntegrity = make([]byte, hdr.Integrity.Size)
			if _, err := f.ReadAt(oldIntegrity, hdr.Integrity.Offset); err != nil {
				return wimerr.New(wimerr.Read, "overwrite.MetadataOnly", err)
			}
		}

		xmlDoc, err := xmlProvider.XML(images, totalBytesHint)
		if err != nil {
			return err
		}
		xmlBytes, err := writer.EncodeXML(xmlDoc)
		if err != nil {
			return err
		}
		if _, err := f.WriteAt(xmlBytes, bodyEnd); err != nil {
			return wimerr.New(wimerr.Write, "overwrite.MetadataOnly", err)
		}
		hdr.XML = writer.ResEntry{Offset: bodyEnd, Size: int64(len(xmlBytes)), OriginalSize: int64(len(xmlBytes))}
		newEnd := bodyEnd + int64(len(xmlBytes))

		if wantIntegrity {
			itBytes := oldIntegrity
			if itBytes == nil {
				itBytes, err = writer.BuildIntegrityTable(f, writer.HeaderDiskSize, bodyEnd, cfg.IntegrityChunkSize, hasher)
				if err != nil {
					return err
				}
			}
			if _, err := f.WriteAt(itBytes, newEnd); err != nil {
				return wimerr.New(wimerr.Write, "overwrite.MetadataOnly", err)
			}
			hdr.Integrity = writer.ResEntry{Offset: newEnd, Size: int64(len(itBytes)), OriginalSize: int64(len(itBytes))}
			newEnd += int64(len(itBytes))
		} else {
			hdr.Integrity = writer.ResEntry{}
		}

		if err := f.Truncate(newEnd); err != nil {
			return wimerr.New(wimerr.Write, "overwrite.MetadataOnly", err)
		}
		return writer.WriteHeaderAt(f, hdr)
	})
}

// Full implements overwrite: the entire archive is rebuilt into a fresh
// sibling temp file via writer.Write, then swapped into place with a
// single rename, so readers of the old path either see the complete old
// file or the complete new one and never a partial write.
func Full(path string, images []writer.Image, table *stream.Table, hdr writer.Header, flags Flags, enc resource.Encoder, content writer.ContentSource, meta writer.MetadataSource, xmlProvider writer.XMLProvider, hasher writer.IntegrityHasher, cfg wconfig.Config, progress writer.Progress) error {
	return withLock(path, func() error {
		// Clone the caller's header before handing it to the writer, so
		// that if the temp file never makes it into place the header
		// value a caller still holds is never observed mutated.
		original := deepcopy.Copy(hdr).(writer.Header)

		tmpFile, tmpPath, err := createTempSibling(path, cfg.TempSuffixLength)
		if err != nil {
			return err
		}
		defer os.Remove(tmpPath)

		var writeFlags writer.Flags
		if flags.has(FlagCheckIntegrity) {
			writeFlags |= writer.FlagCheckIntegrity
		}

		if err := writer.Write(tmpFile, images, table, original, writeFlags, enc, content, meta, xmlProvider, hasher, cfg, progress); err != nil {
			wlog.Errorf("overwrite: rebuild into %s failed: %v", tmpPath, err)
			tmpFile.Close()
			return err
		}
		if err := tmpFile.Close(); err != nil {
			return wimerr.New(wimerr.Write, "overwrite.Full", err)
		}

		if err := os.Rename(tmpPath, path); err != nil {
			return wimerr.New(wimerr.Rename, "overwrite.Full", err)
		}
		return nil
	})
}

// createTempSibling opens a new, exclusively-created temp file next to
// path, named exactly basename+suffix (no separator or extension),
// retrying with a fresh randomised suffix on a name collision (spec §9
// supplement: "9-char random alphanumeric suffix, retried on EEXIST").
func createTempSibling(path string, suffixLen int) (*os.File, string, error) {
	if suffixLen <= 0 {
		suffixLen = 9
	}
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	var tmpFile *os.File
	var tmpPath string
	op := func() error {
		suffix, err := randomAlnum(suffixLen)
		if err != nil {
			return backoff.Permanent(err)
		}
		candidate := filepath.Join(dir, base+suffix)
		f, err := os.OpenFile(candidate, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0644)
		if err != nil {
			if os.IsExist(err) {
				wlog.Warningf("overwrite: temp name %s collided, retrying", candidate)
				return err
			}
			return backoff.Permanent(err)
		}
		tmpFile, tmpPath = f, candidate
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 2 * time.Second
	if err := backoff.Retry(op, b); err != nil {
		return nil, "", wimerr.New(wimerr.Open, "overwrite.createTempSibling", err)
	}
	return tmpFile, tmpPath, nil
}

// alnumAlphabet is the 62-character [0-9A-Za-z] set the temp-file suffix
// is drawn from.
const alnumAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

func randomAlnum(n int) (string, error) {
	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	out := make([]byte, n)
	for i, b := range raw {
		out[i] = alnumAlphabet[int(b)%len(alnumAlphabet)]
	}
	return string(out), nil
}

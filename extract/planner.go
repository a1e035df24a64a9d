package extract

import (
	"github.com/talismancer/gowim/dentry"
	"github.com/talismancer/gowim/internal/wlog"
	"github.com/talismancer/gowim/stream"
)

// Plan is the output of Plan: the distinct-stream work list an executor
// consumes, plus the progress totals computed alongside it (spec §4.4).
type Plan struct {
	StreamList []*stream.Descriptor
	TotalBytes int64
	NumStreams int
}

// mainDescriptor returns the descriptor an inode's dentries should be
// queued under: the unnamed stream's descriptor if present, else the
// first alternate stream's descriptor that resolves, else nil (e.g. a
// directory with no data at all).
func mainDescriptor(ino *dentry.Inode, table *stream.Table, includeADS bool) *stream.Descriptor {
	if ino.UnnamedStreamHash != "" {
		if d := table.Lookup(ino.UnnamedStreamHash); d != nil {
			return d
		}
	}
	if includeADS {
		for _, ads := range ino.AlternateStreams {
			if d := table.Lookup(ads.Hash); d != nil {
				return d
			}
		}
	}
	return nil
}

// includeAlternateStreams reports whether ADS resolution is in scope for
// this extraction, per spec §4.4 step 2: NTFS target on any platform,
// Windows target unconditionally, otherwise excluded. The engine only
// knows "NTFS flag requested"; a genuine Windows build additionally always
// includes ADS, which windowsTarget reports.
func includeAlternateStreams(flags Flags, windowsTarget bool) bool {
	return flags.Has(FlagNTFS) || windowsTarget
}

// Plan walks the subtree rooted at root and produces a distinct-stream
// work list for it (spec §4.4). table is the (possibly merged, for split
// WIMs) lookup table to resolve stream hashes against.
func Plan(root *dentry.Dentry, table *stream.Table, flags Flags, windowsTarget bool) *Plan {
	includeADS := includeAlternateStreams(flags, windowsTarget)

	// Step 1: clean-slate pass. Resolve every touched descriptor and
	// reset its transient extraction state (out_refcnt included),
	// guarding against state left over from a previously aborted
	// extraction.
	touched := make(map[*stream.Descriptor]bool)
	_ = dentry.PreOrder(root, func(d *dentry.Dentry) error {
		ino := d.Inode
		if ino == nil {
			return nil
		}
		if ino.UnnamedStreamHash != "" {
			if desc := table.Lookup(ino.UnnamedStreamHash); desc != nil {
				touched[desc] = true
			}
		}
		if includeADS {
			for _, ads := range ino.AlternateStreams {
				if desc := table.Lookup(ads.Hash); desc != nil {
					touched[desc] = true
				}
			}
		}
		return nil
	})
	for desc := range touched {
		desc.ResetExtractionState()
	}

	// Reset the per-inode visited flag across the subtree so repeated
	// Plan calls (e.g. one per extract_files command) start clean.
	_ = dentry.PreOrder(root, func(d *dentry.Dentry) error {
		if d.Inode != nil {
			d.Inode.SetVisited(false)
		}
		return nil
	})

	var streamList []*stream.Descriptor

	// Step 2: marking pass.
	_ = dentry.PreOrder(root, func(d *dentry.Dentry) error {
		d.SetNeedsExtraction(true)
		wlog.Debugf("extract: planning %s", d.FullPath())
		ino := d.Inode
		if ino == nil {
			return nil
		}

		if !ino.Visited() {
			ino.SetVisited(true)
			if ino.UnnamedStreamHash != "" {
				if desc := table.Lookup(ino.UnnamedStreamHash); desc != nil {
					desc.OutRefCnt++
					if desc.OutRefCnt == 1 {
						desc.Dentries = nil
						streamList = append(streamList, desc)
					}
				}
			}
			if includeADS {
				for _, ads := range ino.AlternateStreams {
					desc := table.Lookup(ads.Hash)
					if desc == nil {
						continue
					}
					desc.OutRefCnt++
					if desc.OutRefCnt == 1 {
						desc.Dentries = nil
						streamList = append(streamList, desc)
					}
				}
			}
		}

		// Every dentry — including subsequent hard links of an
		// already-visited inode — is queued under exactly one
		// descriptor's dentry list, so Phase B applies it exactly once.
		if desc := mainDescriptor(ino, table, includeADS); desc != nil {
			desc.Dentries = append(desc.Dentries, d)
		}
		return nil
	})

	linkMode := flags.Has(FlagSymlink) || flags.Has(FlagHardlink)
	var totalBytes int64
	for _, desc := range streamList {
		if linkMode {
			totalBytes += desc.ExtractionSize()
		} else {
			totalBytes += desc.ExtractionSize() * int64(desc.OutRefCnt)
		}
	}
	numStreams := len(streamList)
	if !linkMode {
		numStreams = 0
		for _, desc := range streamList {
			numStreams += int(desc.OutRefCnt)
		}
	}

	return &Plan{StreamList: streamList, TotalBytes: totalBytes, NumStreams: numStreams}
}

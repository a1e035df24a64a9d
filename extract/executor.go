// Package extract implements the Extraction Planner (spec §4.4) and
// Extraction Executor (spec §4.5): walking a dentry tree, resolving
// shared streams, and driving the three-phase apply pipeline over a
// pluggable Backend.
package extract

import (
	"bytes"
	"io"
	"sort"
	"strings"

	"github.com/talismancer/gowim/dentry"
	"github.com/talismancer/gowim/internal/wconfig"
	"github.com/talismancer/gowim/internal/wimerr"
	"github.com/talismancer/gowim/internal/wlog"
	"github.com/talismancer/gowim/resource"
	"github.com/talismancer/gowim/stream"
)

// Options carries the call-scoped parameters Apply needs beyond the plan
// itself: where to write the output, whether this is a full-image
// extraction (governs RPFIX and raw-NTFS eligibility), and the header's
// own RPFIX declaration. Which Begin/End event pair fires is decided by
// whether the extraction root is the tree root, not by FullImage.
type Options struct {
	Target              string
	FullImage           bool
	HeaderDeclaresRPFix bool
	RealpathResolver    func(string) (string, error)
}

func linkModeOf(flags Flags) LinkMode {
	switch {
	case flags.Has(FlagHardlink):
		return LinkModeHardlink
	case flags.Has(FlagSymlink):
		return LinkModeSymlink
	default:
		return LinkModeNone
	}
}

// outputPath implements spec §4.5's output path composition: target
// concatenated with the dentry's in-image path with the extraction root's
// own in-image path prefix stripped, inserting "/" iff d is not root.
func outputPath(root, d *dentry.Dentry, target string) string {
	if d == root {
		return target
	}
	w := root.FullPath()
	p := d.FullPath()
	rel := strings.TrimPrefix(p, w)
	rel = strings.TrimPrefix(rel, "/")
	return target + "/" + rel
}

func resetTree(root *dentry.Dentry) {
	_ = dentry.PreOrder(root, func(d *dentry.Dentry) error {
		d.SetNeedsExtraction(false)
		if d.Inode != nil {
			d.Inode.SetVisited(false)
		}
		return nil
	})
}

// precheck validates flags and the TO_STDOUT precondition before any
// output is produced (spec §8 boundary case: "TO_STDOUT with a
// non-regular-file root fails with NotRegularFile before any output").
func precheck(root *dentry.Dentry, flags Flags) error {
	if err := flags.Validate(); err != nil {
		return err
	}
	if flags.Has(FlagToStdout) {
		if root.Inode == nil || root.Inode.IsDir() || root.Inode.IsReparsePoint() {
			wlog.Errorf("extract: TO_STDOUT requested on non-regular-file root %s", root.FullPath())
			return wimerr.New(wimerr.NotRegularFile, "extract.Apply", nil)
		}
	}
	return nil
}

// Apply is the Extraction Executor entry point (spec §4.5): apply(root,
// target, stream_list, flags, progress) -> Result.
func Apply(root *dentry.Dentry, plan *Plan, flags Flags, src io.ReaderAt, dec resource.Decoder, backend Backend, progress Progress, cfg wconfig.Config, opts Options) (err error) {
	if progress == nil {
		progress = NoProgress
	}
	if err := precheck(root, flags); err != nil {
		return err
	}
	linkMode := linkModeOf(flags)
	if linkMode != LinkModeNone && !backend.SupportsLinkMode(linkMode) {
		wlog.Errorf("extract: backend does not support link mode %v", linkMode)
		return wimerr.New(wimerr.InvalidParam, "extract.Apply", nil)
	}
	if flags.Has(FlagRPFix) && !opts.FullImage {
		wlog.Errorf("extract: RPFIX requested on a non-full-image extraction")
		return wimerr.New(wimerr.InvalidParam, "extract.Apply", nil)
	}
	if flags.Has(FlagNTFS) && !opts.FullImage {
		wlog.Errorf("extract: NTFS requested on a non-full-image extraction")
		return wimerr.New(wimerr.InvalidParam, "extract.Apply", nil)
	}

	rpfixEnabled := shouldRPFix(flags, opts.HeaderDeclaresRPFix, opts.FullImage)
	var realRoot string
	if rpfixEnabled && opts.RealpathResolver != nil {
		cache := newRealpathCache(opts.RealpathResolver)
		if r, rerr := cache.Get(opts.Target); rerr == nil {
			realRoot = r
		}
	}

	beginKind, endKind := EventExtractTreeBegin, EventExtractTreeEnd
	if root.IsRoot() {
		beginKind, endKind = EventExtractImageBegin, EventExtractImageEnd
	}

	// Shared cleanup cascade (spec §7): regardless of outcome, reset the
	// transient per-extraction state on the tree and on every planned
	// descriptor. The realpath cache is a local and is freed simply by
	// going out of scope.
	defer func() {
		resetTree(root)
		for _, d := range plan.StreamList {
			d.ResetExtractionState()
		}
	}()

	if err := progress.OnProgress(Event{Kind: beginKind}); err != nil {
		return err
	}

	if err := applyStructure(root, flags, backend, opts.Target, progress); err != nil {
		return err
	}

	streamList := plan.StreamList
	if flags.Has(FlagSequential) {
		if cfg.DisableSequentialSort {
			wlog.Warningf("extract: sequential sort allocation failed, proceeding unsorted")
		} else {
			sortSequential(streamList)
		}
	}

	tracker := newProgressTracker(progress, plan.TotalBytes, plan.NumStreams, cfg.ProgressGranularityPercent)
	if err := applyStreams(root, streamList, opts.Target, src, dec, backend, linkMode, rpfixEnabled, realRoot, tracker); err != nil {
		return err
	}

	if err := progress.OnProgress(Event{Kind: EventApplyTimestamps}); err != nil {
		return err
	}
	if err := applyTimestamps(root, opts.Target, backend); err != nil {
		return err
	}

	return progress.OnProgress(Event{Kind: endKind})
}

// applyStructure is Phase A (spec §4.5 step 2): pre-order walk with
// NO_STREAMS set. Dentries whose inode carries a non-empty unnamed
// stream are left for Phase B; everything else (directories, empty
// files, and reparse-point placeholders) is fully materialised here and
// has needs_extraction cleared immediately.
func applyStructure(root *dentry.Dentry, flags Flags, backend Backend, target string, progress Progress) error {
	if err := progress.OnProgress(Event{Kind: EventExtractDirStructureBegin}); err != nil {
		return err
	}

	err := dentry.PreOrder(root, func(d *dentry.Dentry) error {
		out := outputPath(root, d, target)
		if err := backend.ApplyStructure(d, out); err != nil {
			return err
		}
		if d.Inode == nil || d.Inode.UnnamedStreamHash == "" {
			d.SetNeedsExtraction(false)
		}
		if flags.Has(FlagVerbose) {
			wlog.Debugf("extract: applying structure for %s", d.FullPath())
			if perr := progress.OnProgress(Event{Kind: EventExtractDentry, DentryPath: d.FullPath()}); perr != nil {
				return perr
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	return progress.OnProgress(Event{Kind: EventExtractDirStructureEnd})
}

// sortSequential sorts stream_list by archive offset (spec §4.5 step 1).
// sort.SliceStable breaks ties by original discovery order, matching
// "stable only by key".
func sortSequential(list []*stream.Descriptor) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Offset < list[j].Offset
	})
}

// applyStreams is Phase B (spec §4.5 step 3): one pass over stream_list in
// order, applying each descriptor's content to every dentry on its list
// that still needs extraction. Resource I/O reads each descriptor's bytes
// exactly once (spec §8 dedup invariant), regardless of how many dentries
// share it.
func applyStreams(root *dentry.Dentry, streamList []*stream.Descriptor, target string, src io.ReaderAt, dec resource.Decoder, backend Backend, linkMode LinkMode, rpfixEnabled bool, realRoot string, tracker *progressTracker) error {
	for _, desc := range streamList {
		var content []byte
		var read bool

		for _, d := range desc.Dentries {
			if !d.NeedsExtraction() {
				continue
			}
			out := outputPath(root, d, target)

			firstMaterialisation := desc.ExtractedFile == ""
			var reader io.Reader
			if firstMaterialisation {
				if !read {
					b, err := resource.ReadBytes(src, desc, dec)
					if err != nil {
						return err
					}
					content = b
					read = true
				}
				if rpfixEnabled && d.Inode != nil && d.Inode.IsReparsePoint() {
					reader = bytes.NewReader([]byte(FixReparseTarget(string(content), realRoot)))
				} else {
					reader = bytes.NewReader(content)
				}
			}

			if err := backend.ApplyStreamContent(d, out, desc, reader, linkMode); err != nil {
				return err
			}
			d.SetNeedsExtraction(false)

			if linkMode == LinkModeNone || firstMaterialisation {
				if err := tracker.add(desc.ExtractionSize()); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// applyTimestamps is Phase C (spec §4.5 step 4): post-order so writing
// into a child directory does not touch the parent's mtime after the
// parent has already been stamped.
func applyTimestamps(root *dentry.Dentry, target string, backend Backend) error {
	return dentry.PostOrder(root, func(d *dentry.Dentry) error {
		out := outputPath(root, d, target)
		return backend.ApplyTimestamps(d, out)
	})
}

package wim

import (
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/talismancer/gowim/dentry"
	"github.com/talismancer/gowim/extract"
	"github.com/talismancer/gowim/internal/wconfig"
	"github.com/talismancer/gowim/internal/wimerr"
	"github.com/talismancer/gowim/overwrite"
	"github.com/talismancer/gowim/resource"
	"github.com/talismancer/gowim/stream"
	"github.com/talismancer/gowim/writer"
)

// ImageAll selects every image in the archive, for callers of Write that
// want a full rewrite rather than a single image's worth of metadata.
const ImageAll = 0

// mergeSWMs brings every secondary split-WIM part's lookup table into
// scope on a for the duration of one extraction call (spec §4.2), and
// returns the token the caller must unmerge in its own cleanup cascade
// regardless of outcome. With no parts, this is a harmless no-op merge.
func mergeSWMs(a *Archive, swms []*Archive) stream.MergeToken {
	parts := make([]*stream.Table, len(swms))
	for i, p := range swms {
		parts[i] = p.Table
	}
	return a.MergeParts(parts...)
}

// FileCommand is one extract_files work item: a canonical in-image path
// plus an explicit destination (defaulted to target/basename when empty)
// and a set of flags overlaid on top of the call's base flags (spec §9
// supplement: each command in a batch may request its own flag overrides,
// e.g. one file TO_STDOUT alongside others extracted normally).
type FileCommand struct {
	Path        string
	Destination string
	Flags       extract.Flags
}

func windowsTarget() bool { return runtime.GOOS == "windows" }

func rpfixDeclared(a *Archive) bool { return a.Header.Flags&writer.HeaderFlagRPFix != 0 }

// ExtractImage implements extract_image (spec §4.5 entry point): extract
// the whole of image imageIndex to target. swms carries any secondary
// split-WIM parts whose lookup tables must be visible for the duration of
// this extraction; they are merged into a.Table at entry and unmerged again
// before returning, regardless of outcome (spec §4.2, §9 supplement).
func (a *Archive) ExtractImage(imageIndex int, target string, flags extract.Flags, swms []*Archive, src io.ReaderAt, dec resource.Decoder, backend extract.Backend, progress extract.Progress, cfg wconfig.Config) error {
	img, err := a.Image(imageIndex)
	if err != nil {
		return err
	}

	tok := mergeSWMs(a, swms)
	defer a.UnmergeParts(tok)

	plan := extract.Plan(img.Root, a.Table, flags, windowsTarget())
	opts := extract.Options{
		Target:              target,
		FullImage:           true,
		HeaderDeclaresRPFix: rpfixDeclared(a),
		RealpathResolver:    filepath.EvalSymlinks,
	}
	return extract.Apply(img.Root, plan, flags, src, dec, backend, progress, cfg, opts)
}

// ExtractFiles implements extract_files (spec §4.5 entry point, §9
// supplement): extract a batch of individually-addressed paths out of one
// image, each optionally overriding the batch's base flags. Every
// command's TO_STDOUT precondition is validated against the whole batch
// before any command is applied, so an invalid command later in the list
// cannot leave earlier commands' output on disk as the only visible
// effect of a call that ultimately fails.
func (a *Archive) ExtractFiles(imageIndex int, commands []FileCommand, baseTarget string, baseFlags extract.Flags, swms []*Archive, src io.ReaderAt, dec resource.Decoder, backend extract.Backend, progress extract.Progress, cfg wconfig.Config) error {
	img, err := a.Image(imageIndex)
	if err != nil {
		return err
	}

	tok := mergeSWMs(a, swms)
	defer a.UnmergeParts(tok)

	resolved := make([]*dentry.Dentry, len(commands))
	effectiveFlags := make([]extract.Flags, len(commands))
	for i, cmd := range commands {
		d := dentry.Lookup(img.Root, cmd.Path)
		if d == nil {
			return wimerr.New(wimerr.PathDoesNotExist, "wim.ExtractFiles", nil)
		}
		flags := baseFlags | cmd.Flags
		if err := flags.Validate(); err != nil {
			return err
		}
		if flags.Has(extract.FlagToStdout) {
			if d.Inode == nil || d.Inode.IsDir() || d.Inode.IsReparsePoint() {
				return wimerr.New(wimerr.NotRegularFile, "wim.ExtractFiles", nil)
			}
		}
		resolved[i] = d
		effectiveFlags[i] = flags
	}

	for i, cmd := range commands {
		d := resolved[i]
		target := cmd.Destination
		if target == "" {
			target = filepath.Join(baseTarget, d.Name)
		}
		plan := extract.Plan(d, a.Table, effectiveFlags[i], windowsTarget())
		opts := extract.Options{
			Target:              target,
			FullImage:           false,
			HeaderDeclaresRPFix: rpfixDeclared(a),
			RealpathResolver:    filepath.EvalSymlinks,
		}
		if err := extract.Apply(d, plan, effectiveFlags[i], src, dec, backend, progress, cfg, opts); err != nil {
			return err
		}
	}
	return nil
}

// Write implements write (spec §4.6 entry point): write(wim, path,
// image|ALL, flags). imageIndex selects a single 1-based image to write, or
// ImageAll to serialise every image in the archive; an out-of-range index
// fails with InvalidImage before anything is written.
func (a *Archive) Write(path string, imageIndex int, flags writer.Flags, enc resource.Encoder, content writer.ContentSource, meta writer.MetadataSource, xmlProvider writer.XMLProvider, hasher writer.IntegrityHasher, cfg wconfig.Config, progress writer.Progress) error {
	images := a.Images
	if imageIndex != ImageAll {
		img, err := a.Image(imageIndex)
		if err != nil {
			return err
		}
		images = []writer.Image{img}
	}

	f, err := os.Create(path)
	if err != nil {
		return wimerr.New(wimerr.Open, "wim.Write", err)
	}
	defer f.Close()

	if err := writer.Write(f, images, a.Table, a.Header, flags, enc, content, meta, xmlProvider, hasher, cfg, progress); err != nil {
		return err
	}
	a.Path = path
	return nil
}

// Overwrite implements overwrite (spec §4.7 entry point): rebuild the
// whole archive into a temp file and atomically swap it into a.Path.
func (a *Archive) Overwrite(flags overwrite.Flags, enc resource.Encoder, content writer.ContentSource, meta writer.MetadataSource, xmlProvider writer.XMLProvider, hasher writer.IntegrityHasher, cfg wconfig.Config, progress writer.Progress) error {
	if a.Path == "" {
		return wimerr.New(wimerr.InvalidParam, "wim.Overwrite", nil)
	}
	return overwrite.Full(a.Path, a.Images, a.Table, a.Header, flags, enc, content, meta, xmlProvider, hasher, cfg, progress)
}

// OverwriteXMLAndHeader implements overwrite_xml_and_header (spec §4.7
// entry point): patch only the XML metadata resource and header of
// a.Path in place, leaving every file and metadata resource untouched.
func (a *Archive) OverwriteXMLAndHeader(totalBytesHint int64, xmlProvider writer.XMLProvider, hasher writer.IntegrityHasher, flags overwrite.Flags, cfg wconfig.Config) error {
	if a.Path == "" {
		return wimerr.New(wimerr.InvalidParam, "wim.OverwriteXMLAndHeader", nil)
	}
	return overwrite.MetadataOnly(a.Path, a.Images, totalBytesHint, xmlProvider, hasher, flags, cfg)
}

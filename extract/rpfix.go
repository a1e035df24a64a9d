package extract

import (
	"path/filepath"
	"strings"
)

// RealpathCache caches realpath(target) for one extract_tree call so
// every reparse-point fixup reuses the same resolved value instead of
// recomputing it per reparse point (§9 supplement, grounded in
// original_source/src/extract.c's per-call realpath cache). Freed (by
// simply letting it be garbage collected) in the executor's shared
// cleanup cascade.
type RealpathCache struct {
	resolved string
	done     bool
	resolver func(string) (string, error)
}

func newRealpathCache(resolver func(string) (string, error)) *RealpathCache {
	return &RealpathCache{resolver: resolver}
}

func (c *RealpathCache) Get(target string) (string, error) {
	if c.done {
		return c.resolved, nil
	}
	r, err := c.resolver(target)
	if err != nil {
		return "", err
	}
	c.resolved = r
	c.done = true
	return r, nil
}

// shouldRPFix decides whether reparse-point fixup is enabled for this
// call (spec §4.5): on by default when the archive header declares it and
// the caller is extracting a full image; refused explicitly for partial
// subtree extractions regardless of the header or NORPFIX.
func shouldRPFix(flags Flags, headerDeclaresRPFix bool, fullImage bool) bool {
	if flags.Has(FlagNoRPFix) {
		return false
	}
	if flags.Has(FlagRPFix) {
		return fullImage
	}
	return headerDeclaresRPFix && fullImage
}

// FixReparseTarget rewrites an in-image absolute reparse target so it is
// rooted at realRoot instead. A target counts as absolute when its
// filepath.ToSlash form starts with "/"; every other target passes through
// unchanged.
func FixReparseTarget(target, realRoot string) string {
	norm := filepath.ToSlash(target)
	if !strings.HasPrefix(norm, "/") {
		return target
	}
	return filepath.Join(realRoot, strings.TrimPrefix(norm, "/"))
}

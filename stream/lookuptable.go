package stream

import (
	"sort"

	digest "github.com/opencontainers/go-digest"
)

// Table maps a content hash to a stream Descriptor (spec §4.2).
type Table struct {
	entries map[digest.Digest]*Descriptor
}

// NewTable returns an empty lookup table.
func NewTable() *Table {
	return &Table{entries: make(map[digest.Digest]*Descriptor)}
}

// Lookup returns the descriptor for hash, or nil if absent.
func (t *Table) Lookup(hash digest.Digest) *Descriptor {
	return t.entries[hash]
}

// Insert adds or replaces the descriptor for d.Hash.
func (t *Table) Insert(d *Descriptor) {
	t.entries[d.Hash] = d
}

// Delete removes the descriptor for hash, if present.
func (t *Table) Delete(hash digest.Digest) {
	delete(t.entries, hash)
}

// Len reports the number of distinct streams indexed.
func (t *Table) Len() int { return len(t.entries) }

// Iterate calls fn for every descriptor. Order is unspecified; callers
// that need a stable order should sort the slice returned by All.
func (t *Table) Iterate(fn func(*Descriptor)) {
	for _, d := range t.entries {
		fn(d)
	}
}

// All returns every descriptor, sorted by Hash for deterministic callers
// (e.g. writing the on-disk lookup table in a reproducible order).
func (t *Table) All() []*Descriptor {
	out := make([]*Descriptor, 0, len(t.entries))
	for _, d := range t.entries {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hash < out[j].Hash })
	return out
}

// ResetOutputRefcounts zeroes OutRefCnt (and the rest of the transient
// extraction state) on every descriptor in the table. The writer calls it
// in its Reset phase; the planner resets only the descriptors its subtree
// touches.
func (t *Table) ResetOutputRefcounts() {
	for _, d := range t.entries {
		d.ResetExtractionState()
	}
}

// MergeToken records exactly which hashes a Merge call added to the
// primary table, so Unmerge can remove precisely those entries and
// nothing else — the two are required to be exact inverses (spec §4.2),
// including when the same hash happens to already exist in the primary.
type MergeToken struct {
	added []digest.Digest
}

// Merge unions the secondary tables into t (the primary), preferring t's
// own entry on conflict. It returns a MergeToken that Unmerge can later
// use to restore t to its pre-merge state bitwise.
func (t *Table) Merge(secondaries ...*Table) MergeToken {
	var tok MergeToken
	for _, sec := range secondaries {
		for hash, d := range sec.entries {
			if _, exists := t.entries[hash]; exists {
				continue
			}
			t.entries[hash] = d
			tok.added = append(tok.added, hash)
		}
	}
	return tok
}

// Unmerge reverses a prior Merge using the token it returned, removing
// exactly the entries that merge added.
func (t *Table) Unmerge(tok MergeToken) {
	for _, hash := range tok.added {
		delete(t.entries, hash)
	}
}

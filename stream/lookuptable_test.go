package stream

import (
	"testing"

	digest "github.com/opencontainers/go-digest"
	"gotest.tools/v3/assert"
)

func hash(s string) digest.Digest {
	return digest.FromString(s)
}

func TestInsertLookupDelete(t *testing.T) {
	table := NewTable()
	d := &Descriptor{Hash: hash("one")}
	table.Insert(d)
	assert.Equal(t, 1, table.Len())
	assert.Equal(t, d, table.Lookup(hash("one")))
	assert.Assert(t, table.Lookup(hash("missing")) == nil)

	table.Delete(hash("one"))
	assert.Equal(t, 0, table.Len())
}

func TestAllIsSortedByHash(t *testing.T) {
	table := NewTable()
	table.Insert(&Descriptor{Hash: hash("zzz")})
	table.Insert(&Descriptor{Hash: hash("aaa")})
	table.Insert(&Descriptor{Hash: hash("mmm")})

	all := table.All()
	assert.Equal(t, 3, len(all))
	for i := 1; i < len(all); i++ {
		assert.Assert(t, all[i-1].Hash < all[i].Hash)
	}
}

func TestResetOutputRefcountsClearsTransientState(t *testing.T) {
	table := NewTable()
	d := &Descriptor{Hash: hash("one"), OutRefCnt: 3, ExtractedFile: "/tmp/x"}
	table.Insert(d)
	table.ResetOutputRefcounts()
	assert.Equal(t, uint32(0), d.OutRefCnt)
	assert.Equal(t, "", d.ExtractedFile)
}

func TestMergeUnmergeAreExactInverses(t *testing.T) {
	primary := NewTable()
	primary.Insert(&Descriptor{Hash: hash("shared")})

	secondary := NewTable()
	secondary.Insert(&Descriptor{Hash: hash("shared")}) // already present, should NOT be added
	secondary.Insert(&Descriptor{Hash: hash("only-in-secondary")})

	tok := primary.Merge(secondary)
	assert.Equal(t, 2, primary.Len())
	assert.Assert(t, primary.Lookup(hash("only-in-secondary")) != nil)

	primary.Unmerge(tok)
	assert.Equal(t, 1, primary.Len())
	assert.Assert(t, primary.Lookup(hash("shared")) != nil)
	assert.Assert(t, primary.Lookup(hash("only-in-secondary")) == nil)
}

func TestMergeDoesNotOverwriteExistingEntryOnConflict(t *testing.T) {
	primary := NewTable()
	primaryDesc := &Descriptor{Hash: hash("shared"), RefCnt: 7}
	primary.Insert(primaryDesc)

	secondary := NewTable()
	secondary.Insert(&Descriptor{Hash: hash("shared"), RefCnt: 99})

	primary.Merge(secondary)
	assert.Equal(t, uint32(7), primary.Lookup(hash("shared")).RefCnt)
}

package wim

import (
	"testing"

	digest "github.com/opencontainers/go-digest"
	"gotest.tools/v3/assert"

	"github.com/talismancer/gowim/dentry"
	"github.com/talismancer/gowim/stream"
	"github.com/talismancer/gowim/writer"
)

func TestImageReturnsOneBasedEntry(t *testing.T) {
	root1 := dentry.NewDentry("", &dentry.Inode{})
	root2 := dentry.NewDentry("", &dentry.Inode{})
	a := New("", writer.Header{}, stream.NewTable(), []writer.Image{{Root: root1}, {Root: root2}})

	img, err := a.Image(1)
	assert.NilError(t, err)
	assert.Equal(t, root1, img.Root)

	img, err = a.Image(2)
	assert.NilError(t, err)
	assert.Equal(t, root2, img.Root)
}

func TestImageRejectsOutOfRangeIndex(t *testing.T) {
	a := New("", writer.Header{}, stream.NewTable(), []writer.Image{{Root: dentry.NewDentry("", &dentry.Inode{})}})

	_, err := a.Image(0)
	assert.ErrorContains(t, err, "invalid image")

	_, err = a.Image(2)
	assert.ErrorContains(t, err, "invalid image")
}

func TestMergeUnmergePartsAreExactInverses(t *testing.T) {
	primary := stream.NewTable()
	h := digest.FromString("x")
	primary.Insert(&stream.Descriptor{Hash: h})
	a := New("", writer.Header{}, primary, nil)

	secondary := stream.NewTable()
	secondary.Insert(&stream.Descriptor{Hash: digest.FromString("y")})

	before := primary.Len()
	tok := a.MergeParts(secondary)
	assert.Equal(t, before+1, primary.Len())

	a.UnmergeParts(tok)
	assert.Equal(t, before, primary.Len())
	assert.Assert(t, primary.Lookup(h) != nil)
}

package stream

import (
	"testing"

	"github.com/talismancer/gowim/dentry"
	"gotest.tools/v3/assert"
)

func TestResetExtractionStateZeroesTransientFields(t *testing.T) {
	d := &Descriptor{
		Hash:          hash("x"),
		RefCnt:        5,
		OutRefCnt:     2,
		ExtractedFile: "/tmp/out",
		Dentries:      []*dentry.Dentry{dentry.NewDentry("n", nil)},
	}
	d.ResetExtractionState()

	assert.Equal(t, uint32(0), d.OutRefCnt)
	assert.Equal(t, "", d.ExtractedFile)
	assert.Assert(t, d.Dentries == nil)
	// Persistent fields survive a reset.
	assert.Equal(t, uint32(5), d.RefCnt)
}

func TestExtractionSizeIsOriginalSize(t *testing.T) {
	d := &Descriptor{OriginalSize: 4096, Size: 1024}
	assert.Equal(t, int64(4096), d.ExtractionSize())
}

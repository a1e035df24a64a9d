package overwrite

import (
	"crypto/sha1"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	digest "github.com/opencontainers/go-digest"
	"gotest.tools/v3/assert"

	"github.com/talismancer/gowim/dentry"
	"github.com/talismancer/gowim/internal/wconfig"
	"github.com/talismancer/gowim/stream"
	"github.com/talismancer/gowim/writer"
)

type mapContentSource map[digest.Digest]string

func (m mapContentSource) Open(hash digest.Digest) (io.Reader, int64, error) {
	s := m[hash]
	return strings.NewReader(s), int64(len(s)), nil
}

type fixedMetadataSource struct{ text string }

func (f fixedMetadataSource) Metadata(img writer.Image) (io.Reader, int64, error) {
	return strings.NewReader(f.text), int64(len(f.text)), nil
}

type fixedXMLProvider struct{ doc string }

func (f fixedXMLProvider) XML(images []writer.Image, totalBytesHint int64) (string, error) {
	return f.doc, nil
}

func buildInitialArchive(t *testing.T, path string) (digest.Digest, *stream.Table) {
	t.Helper()
	root := dentry.NewDentry("", &dentry.Inode{Attr: dentry.Attr{FileAttributes: 0x10}})
	hash := digest.FromString("payload")
	f := dentry.NewDentry("f.txt", &dentry.Inode{UnnamedStreamHash: hash})
	root.Link(f)

	table := stream.NewTable()
	table.Insert(&stream.Descriptor{Hash: hash})

	out, err := os.Create(path)
	assert.NilError(t, err)
	defer out.Close()

	content := mapContentSource{hash: "payload"}
	meta := fixedMetadataSource{text: "meta-v1"}
	err = writer.Write(out, []writer.Image{{Root: root}}, table, writer.Header{}, 0, nil, content, meta, fixedXMLProvider{doc: "<WIM>v1</WIM>"}, nil, wconfig.Defaults(), writer.NoProgress)
	assert.NilError(t, err)
	return hash, table
}

func TestMetadataOnlyRewritesXMLAndHeader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "archive.wim")
	_, _ = buildInitialArchive(t, path)

	err := MetadataOnly(path, nil, 0, fixedXMLProvider{doc: "<WIM>v2</WIM>"}, nil, 0, wconfig.Defaults())
	assert.NilError(t, err)

	f, err := os.Open(path)
	assert.NilError(t, err)
	defer f.Close()

	hdr, err := writer.ReadHeaderAt(f)
	assert.NilError(t, err)
	assert.Assert(t, hdr.XML.Size > 0)

	raw := make([]byte, hdr.XML.Size)
	_, err = f.ReadAt(raw, hdr.XML.Offset)
	assert.NilError(t, err)
	doc, err := writer.DecodeXML(raw)
	assert.NilError(t, err)
	assert.Equal(t, "<WIM>v2</WIM>", doc)
}

func TestMetadataOnlyAddsIntegrityTableWhenRequested(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "archive.wim")
	buildInitialArchive(t, path)

	err := MetadataOnly(path, nil, 0, fixedXMLProvider{doc: "<WIM/>"}, sha1Hasher{}, FlagCheckIntegrity, wconfig.Defaults())
	assert.NilError(t, err)

	f, err := os.Open(path)
	assert.NilError(t, err)
	defer f.Close()
	hdr, err := writer.ReadHeaderAt(f)
	assert.NilError(t, err)
	assert.Assert(t, hdr.Integrity.Size > 0)
}

func TestFullRebuildsArchiveAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "archive.wim")
	hash, table := buildInitialArchive(t, path)

	root := dentry.NewDentry("", &dentry.Inode{Attr: dentry.Attr{FileAttributes: 0x10}})
	f := dentry.NewDentry("f.txt", &dentry.Inode{UnnamedStreamHash: hash})
	root.Link(f)
	content := mapContentSource{hash: "payload"}
	meta := fixedMetadataSource{text: "meta-v2"}

	err := Full(path, []writer.Image{{Root: root}}, table, writer.Header{}, 0, nil, content, meta, fixedXMLProvider{doc: "<WIM>full</WIM>"}, nil, wconfig.Defaults(), writer.NoProgress)
	assert.NilError(t, err)

	// No temp sibling remains; the lock file withLock creates does.
	entries, err := os.ReadDir(dir)
	assert.NilError(t, err)
	assert.Equal(t, 2, len(entries))
	assert.Equal(t, "archive.wim", entries[0].Name())
	assert.Equal(t, "archive.wim.lock", entries[1].Name())

	rf, err := os.Open(path)
	assert.NilError(t, err)
	defer rf.Close()
	hdr, err := writer.ReadHeaderAt(rf)
	assert.NilError(t, err)
	assert.Equal(t, uint32(1), hdr.ImageCount)
}

func TestFullCleansUpTempFileOnWriteFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "archive.wim")
	buildInitialArchive(t, path)

	err := Full(path, nil, stream.NewTable(), writer.Header{}, 0, nil, nil, nil, nil, nil, wconfig.Defaults(), writer.NoProgress)
	assert.ErrorContains(t, err, "invalid parameter")

	// No temp sibling remains; the lock file withLock creates does.
	entries, err := os.ReadDir(dir)
	assert.NilError(t, err)
	assert.Equal(t, 2, len(entries))
	assert.Equal(t, "archive.wim", entries[0].Name())
	assert.Equal(t, "archive.wim.lock", entries[1].Name())
}

type sha1Hasher struct{}

func (sha1Hasher) ChunkDigest(chunk []byte) [20]byte { return sha1.Sum(chunk) }

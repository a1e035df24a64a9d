package writer

import (
	"crypto/sha1"
	"io"
	"strings"
	"testing"

	digest "github.com/opencontainers/go-digest"
	"gotest.tools/v3/assert"

	"github.com/talismancer/gowim/dentry"
	"github.com/talismancer/gowim/internal/wconfig"
	"github.com/talismancer/gowim/resource"
	"github.com/talismancer/gowim/stream"
)

type mapContentSource map[digest.Digest]string

func (m mapContentSource) Open(hash digest.Digest) (io.Reader, int64, error) {
	s := m[hash]
	return strings.NewReader(s), int64(len(s)), nil
}

type fixedMetadataSource struct{ texts map[*dentry.Dentry]string }

func (f fixedMetadataSource) Metadata(img Image) (io.Reader, int64, error) {
	s := f.texts[img.Root]
	return strings.NewReader(s), int64(len(s)), nil
}

type fixedXMLProvider struct{ doc string }

func (f fixedXMLProvider) XML(images []Image, totalBytesHint int64) (string, error) {
	return f.doc, nil
}

type testHasher struct{}

func (testHasher) ChunkDigest(chunk []byte) [20]byte { return sha1.Sum(chunk) }

func buildTestImage(name, content string) (Image, digest.Digest) {
	root := dentry.NewDentry("", &dentry.Inode{Attr: dentry.Attr{FileAttributes: 0x10}})
	hash := digest.FromString(content)
	f := dentry.NewDentry(name, &dentry.Inode{UnnamedStreamHash: hash})
	root.Link(f)
	return Image{Root: root}, hash
}

func TestWriteProducesReadableArchive(t *testing.T) {
	img1, hash1 := buildTestImage("a.txt", "content-one")
	img2, hash2 := buildTestImage("b.txt", "content-two")
	img2.Bootable = true

	table := stream.NewTable()
	table.Insert(&stream.Descriptor{Hash: hash1})
	table.Insert(&stream.Descriptor{Hash: hash2})

	content := mapContentSource{hash1: "content-one", hash2: "content-two"}
	meta := fixedMetadataSource{texts: map[*dentry.Dentry]string{
		img1.Root: "metadata-one",
		img2.Root: "metadata-two",
	}}
	xmlProvider := fixedXMLProvider{doc: "<WIM/>"}

	out := newMemFile(1024)
	err := Write(out, []Image{img1, img2}, table, Header{Version: 1}, FlagCheckIntegrity, nil, content, meta, xmlProvider, testHasher{}, wconfig.Defaults(), NoProgress)
	assert.NilError(t, err)

	hdr, err := ReadHeaderAt(out)
	assert.NilError(t, err)
	assert.Equal(t, uint32(2), hdr.ImageCount)
	assert.Equal(t, uint32(2), hdr.BootIndex)
	assert.Assert(t, hdr.LookupTable.Size > 0)
	assert.Assert(t, hdr.XML.Size > 0)
	assert.Assert(t, hdr.Integrity.Size > 0)

	xmlRaw := make([]byte, hdr.XML.Size)
	_, err = out.ReadAt(xmlRaw, hdr.XML.Offset)
	assert.NilError(t, err)
	doc, err := DecodeXML(xmlRaw)
	assert.NilError(t, err)
	assert.Equal(t, "<WIM/>", doc)

	lt := make([]byte, hdr.LookupTable.Size)
	_, err = out.ReadAt(lt, hdr.LookupTable.Offset)
	assert.NilError(t, err)
	decoded, err := decodeLookupTable(lt)
	assert.NilError(t, err)
	assert.Equal(t, 2, decoded.Len())

	d1 := decoded.Lookup(hash1)
	assert.Assert(t, d1 != nil)
	got, err := resource.ReadBytes(out, d1, nil)
	assert.NilError(t, err)
	assert.Equal(t, "content-one", string(got))
}

func TestWriteWithoutIntegrityOmitsTable(t *testing.T) {
	img, hash := buildTestImage("a.txt", "x")
	table := stream.NewTable()
	table.Insert(&stream.Descriptor{Hash: hash})
	content := mapContentSource{hash: "x"}
	meta := fixedMetadataSource{texts: map[*dentry.Dentry]string{img.Root: "m"}}

	out := newMemFile(512)
	err := Write(out, []Image{img}, table, Header{}, 0, nil, content, meta, fixedXMLProvider{doc: "d"}, nil, wconfig.Defaults(), NoProgress)
	assert.NilError(t, err)

	hdr, err := ReadHeaderAt(out)
	assert.NilError(t, err)
	assert.Equal(t, int64(0), hdr.Integrity.Size)
}

func TestWriteRejectsNilCollaborators(t *testing.T) {
	err := Write(newMemFile(64), nil, stream.NewTable(), Header{}, 0, nil, nil, nil, nil, nil, wconfig.Defaults(), nil)
	assert.ErrorContains(t, err, "invalid parameter")
}

func TestWriteDedupsSharedStreamAcrossImages(t *testing.T) {
	root1 := dentry.NewDentry("", &dentry.Inode{Attr: dentry.Attr{FileAttributes: 0x10}})
	root2 := dentry.NewDentry("", &dentry.Inode{Attr: dentry.Attr{FileAttributes: 0x10}})
	hash := digest.FromString("shared")
	f1 := dentry.NewDentry("f1", &dentry.Inode{UnnamedStreamHash: hash})
	f2 := dentry.NewDentry("f2", &dentry.Inode{UnnamedStreamHash: hash})
	root1.Link(f1)
	root2.Link(f2)

	table := stream.NewTable()
	desc := &stream.Descriptor{Hash: hash}
	table.Insert(desc)

	writes := 0
	content := countingContentSource{count: &writes, text: "shared"}
	meta := fixedMetadataSource{texts: map[*dentry.Dentry]string{root1: "m1", root2: "m2"}}

	out := newMemFile(512)
	err := Write(out, []Image{{Root: root1}, {Root: root2}}, table, Header{}, 0, nil, content, meta, fixedXMLProvider{doc: "d"}, nil, wconfig.Defaults(), NoProgress)
	assert.NilError(t, err)
	assert.Equal(t, 1, writes)
}

type countingContentSource struct {
	count *int
	text  string
}

func (c countingContentSource) Open(hash digest.Digest) (io.Reader, int64, error) {
	*c.count++
	return strings.NewReader(c.text), int64(len(c.text)), nil
}

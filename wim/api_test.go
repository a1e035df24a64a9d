package wim

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	digest "github.com/opencontainers/go-digest"
	"gotest.tools/v3/assert"

	"github.com/talismancer/gowim/dentry"
	"github.com/talismancer/gowim/extract"
	"github.com/talismancer/gowim/internal/wconfig"
	"github.com/talismancer/gowim/resource"
	"github.com/talismancer/gowim/stream"
	"github.com/talismancer/gowim/writer"
)

func buildSingleFileArchiveState(t *testing.T, content string) (*dentry.Dentry, *stream.Descriptor, io.ReaderAt) {
	t.Helper()
	var buf bytes.Buffer
	ow := resource.NewOffsetWriter(&buf, 0)
	d := &stream.Descriptor{Hash: digest.FromString(content)}
	err := resource.Write(ow, strings.NewReader(content), int64(len(content)), nil, 0, d)
	assert.NilError(t, err)

	root := dentry.NewDentry("", &dentry.Inode{Attr: dentry.Attr{FileAttributes: 0x10}})
	f := dentry.NewDentry("f.txt", &dentry.Inode{UnnamedStreamHash: d.Hash})
	root.Link(f)
	return root, d, bytes.NewReader(buf.Bytes())
}

func TestExtractImageWritesFileToTarget(t *testing.T) {
	root, desc, src := buildSingleFileArchiveState(t, "hello world")
	table := stream.NewTable()
	table.Insert(desc)

	a := New("", writer.Header{}, table, []writer.Image{{Root: root}})
	dir := t.TempDir()
	backend := &extract.NormalBackend{}

	err := a.ExtractImage(1, dir, 0, nil, src, nil, backend, extract.NoProgress, wconfig.Defaults())
	assert.NilError(t, err)

	got, err := os.ReadFile(filepath.Join(dir, "f.txt"))
	assert.NilError(t, err)
	assert.Equal(t, "hello world", string(got))
}

func TestExtractImageRejectsOutOfRangeIndex(t *testing.T) {
	a := New("", writer.Header{}, stream.NewTable(), nil)
	err := a.ExtractImage(1, t.TempDir(), 0, nil, bytes.NewReader(nil), nil, &extract.NormalBackend{}, extract.NoProgress, wconfig.Defaults())
	assert.ErrorContains(t, err, "invalid image")
}

func TestExtractFilesRejectsUnknownPathBeforeExtractingAny(t *testing.T) {
	root, desc, src := buildSingleFileArchiveState(t, "content")
	table := stream.NewTable()
	table.Insert(desc)
	a := New("", writer.Header{}, table, []writer.Image{{Root: root}})

	dir := t.TempDir()
	commands := []FileCommand{
		{Path: "/f.txt"},
		{Path: "/missing.txt"},
	}
	err := a.ExtractFiles(1, commands, dir, 0, nil, src, nil, &extract.NormalBackend{}, extract.NoProgress, wconfig.Defaults())
	assert.ErrorContains(t, err, "path does not exist")

	_, statErr := os.Stat(filepath.Join(dir, "f.txt"))
	assert.Assert(t, os.IsNotExist(statErr))
}

func TestExtractFilesAppliesEachCommand(t *testing.T) {
	root, desc, src := buildSingleFileArchiveState(t, "content")
	table := stream.NewTable()
	table.Insert(desc)
	a := New("", writer.Header{}, table, []writer.Image{{Root: root}})

	dir := t.TempDir()
	commands := []FileCommand{{Path: "/f.txt"}}
	err := a.ExtractFiles(1, commands, dir, 0, nil, src, nil, &extract.NormalBackend{}, extract.NoProgress, wconfig.Defaults())
	assert.NilError(t, err)

	got, err := os.ReadFile(filepath.Join(dir, "f.txt"))
	assert.NilError(t, err)
	assert.Equal(t, "content", string(got))
}

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

func TestWriteSetsArchivePath(t *testing.T) {
	hash := digest.FromString("payload")
	root := dentry.NewDentry("", &dentry.Inode{Attr: dentry.Attr{FileAttributes: 0x10}})
	f := dentry.NewDentry("f.txt", &dentry.Inode{UnnamedStreamHash: hash})
	root.Link(f)

	table := stream.NewTable()
	table.Insert(&stream.Descriptor{Hash: hash})
	a := New("", writer.Header{}, table, []writer.Image{{Root: root}})

	path := filepath.Join(t.TempDir(), "out.wim")
	content := mapContentSource{hash: "payload"}
	err := a.Write(path, ImageAll, 0, nil, content, fixedMetadataSource{text: "meta"}, fixedXMLProvider{doc: "<WIM/>"}, nil, wconfig.Defaults(), writer.NoProgress)
	assert.NilError(t, err)
	assert.Equal(t, path, a.Path)

	_, err = os.Stat(path)
	assert.NilError(t, err)
}

func TestWriteSingleImageSelectsOnlyThatImage(t *testing.T) {
	hash := digest.FromString("payload")
	root := dentry.NewDentry("", &dentry.Inode{Attr: dentry.Attr{FileAttributes: 0x10}})
	f := dentry.NewDentry("f.txt", &dentry.Inode{UnnamedStreamHash: hash})
	root.Link(f)

	table := stream.NewTable()
	table.Insert(&stream.Descriptor{Hash: hash})
	a := New("", writer.Header{}, table, []writer.Image{{Root: root}})

	path := filepath.Join(t.TempDir(), "out.wim")
	content := mapContentSource{hash: "payload"}
	err := a.Write(path, 1, 0, nil, content, fixedMetadataSource{text: "meta"}, fixedXMLProvider{doc: "<WIM/>"}, nil, wconfig.Defaults(), writer.NoProgress)
	assert.NilError(t, err)
	assert.Equal(t, path, a.Path)
}

func TestWriteRejectsOutOfRangeImageIndex(t *testing.T) {
	a := New("", writer.Header{}, stream.NewTable(), nil)
	path := filepath.Join(t.TempDir(), "out.wim")
	err := a.Write(path, 1, 0, nil, nil, nil, nil, nil, wconfig.Defaults(), writer.NoProgress)
	assert.ErrorContains(t, err, "invalid image")
}

func TestOverwriteRequiresPathSet(t *testing.T) {
	a := New("", writer.Header{}, stream.NewTable(), nil)
	err := a.Overwrite(0, nil, nil, nil, nil, nil, wconfig.Defaults(), writer.NoProgress)
	assert.ErrorContains(t, err, "invalid parameter")
}

func TestOverwriteXMLAndHeaderRequiresPathSet(t *testing.T) {
	a := New("", writer.Header{}, stream.NewTable(), nil)
	err := a.OverwriteXMLAndHeader(0, fixedXMLProvider{doc: "d"}, nil, 0, wconfig.Defaults())
	assert.ErrorContains(t, err, "invalid parameter")
}

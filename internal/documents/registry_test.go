package documents

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/cdv-tracker/internal/common"
)

// minimalPDF builds a well-formed PDF with the given number of blank pages
// and a correct cross-reference table. tag makes the content unique.
func minimalPDF(pages int, tag string) []byte {
	var buf bytes.Buffer
	var offsets []int
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	fmt.Fprintf(&buf, "%%PDF-1.4\n%% %s\n", tag)
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	kids := ""
	for i := 0; i < pages; i++ {
		kids += fmt.Sprintf("%d 0 R ", i+3)
	}
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, pages))
	for i := 0; i < pages; i++ {
		obj("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << >> >>")
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, data, 0o644))
	return p
}

func TestRegistry_RegisterAndRead(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "cdv.pdf", minimalPDF(2, "a"))
	r := NewRegistry(nil)

	doc, dedup, err := r.Register(path)
	require.NoError(t, err)
	assert.False(t, dedup)
	assert.Equal(t, 2, doc.Pages)
	assert.Equal(t, "cdv.pdf", doc.Name)
	assert.Len(t, doc.HashHex, 64)

	got, ok := r.Resolve(doc.ID)
	require.True(t, ok)
	assert.Equal(t, doc, got)

	data, err := r.Read(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, minimalPDF(2, "a"), data)

	copyPath := writeFile(t, dir, "copy.PDF", minimalPDF(2, "a"))
	again, dedup, err := r.Register(copyPath)
	require.NoError(t, err)
	assert.True(t, dedup)
	assert.Equal(t, doc.ID, again.ID)
	assert.Len(t, r.List(), 1)
}

func TestRegistry_Rejects(t *testing.T) {
	dir := t.TempDir()
	r := NewRegistry(nil)

	_, _, err := r.Register(writeFile(t, dir, "notes.txt", []byte("hello")))
	assert.ErrorIs(t, err, ErrUnsupportedExt)

	_, _, err = r.Register(writeFile(t, dir, "broken.pdf", []byte("not a pdf")))
	require.Error(t, err)
	assert.Contains(t, common.UserMessage(err, ""), "broken.pdf")

	_, err = r.Read("missing")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestRegistry_ReadAfterDelete(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "fiche.pdf", minimalPDF(1, "b"))
	r := NewRegistry(nil)
	doc, _, err := r.Register(path)
	require.NoError(t, err)

	require.NoError(t, os.Remove(path))
	_, err = r.Read(doc.ID)
	require.Error(t, err)
	assert.Equal(t, "cannot read fiche.pdf", common.UserMessage(err, ""))
}

func TestRegistry_RegisterDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a/cdv.pdf", minimalPDF(1, "1"))
	writeFile(t, dir, "a/fiche.pdf", minimalPDF(3, "2"))
	writeFile(t, dir, "b/dup.pdf", minimalPDF(1, "1"))
	writeFile(t, dir, "b/readme.md", []byte("#"))
	writeFile(t, dir, "b/bad.pdf", []byte("garbage"))
	writeFile(t, dir, ".hidden/x.pdf", minimalPDF(1, "3"))

	r := NewRegistry(nil)
	results, stats, err := r.RegisterDirectory(context.Background(), dir, true)
	require.NoError(t, err)

	assert.EqualValues(t, 4, stats.Matched)
	assert.EqualValues(t, 3, stats.Succeeded)
	assert.EqualValues(t, 1, stats.Deduplicated)
	assert.EqualValues(t, 1, stats.Failed)
	assert.Len(t, results, 4)
	assert.Len(t, r.List(), 2)

	_, _, err = r.RegisterDirectory(context.Background(), " ", false)
	assert.Error(t, err)
}

package convert

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tollwatch/scraiper/internal/hash/sha256"
)

type fakePages struct {
	body []byte
	err  error
}

func (f *fakePages) FetchPage(ctx context.Context, url string) ([]byte, error) {
	return f.body, f.err
}

type fakeBlobStore struct {
	objects map[string][]byte
	types   map[string]string
	err     error
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeBlobStore) PutObject(ctx context.Context, path, contentType string, data []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.objects[path] = data
	f.types[path] = contentType
	return "mem://" + path, nil
}

type fakeParser struct {
	pages []Page
	err   error
}

func (f *fakeParser) Parse(data []byte) ([]Page, error) {
	return f.pages, f.err
}

func newTestConverter(t *testing.T, pages *fakePages, blobs *fakeBlobStore, parser *fakeParser) *Converter {
	t.Helper()
	c, err := New(pages, blobs, sha256.New(), parser, zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestConvertStoresBothArtifacts(t *testing.T) {
	t.Parallel()

	raw := []byte("%PDF-1.4 fake toll schedule")
	wantHash := sha256.New().Hash(raw)
	blobs := newFakeBlobStore()
	parser := &fakeParser{pages: []Page{{Number: 1, Text: "toll schedule"}}}
	c := newTestConverter(t, &fakePages{body: raw}, blobs, parser)

	doc, err := c.Convert(context.Background(), "http://example.com/budget.pdf")
	require.NoError(t, err)

	assert.Equal(t, wantHash, doc.Hash)
	assert.Equal(t, "mem://"+wantHash+".pdf", doc.PDFURI)
	assert.Equal(t, "mem://"+wantHash+".json", doc.JSONURI)
	require.Len(t, doc.Pages, 1)
	assert.Equal(t, "toll schedule", doc.Pages[0].Text)

	assert.Equal(t, raw, blobs.objects[wantHash+".pdf"])
	assert.Equal(t, "application/pdf", blobs.types[wantHash+".pdf"])
	assert.Equal(t, "application/json", blobs.types[wantHash+".json"])

	var stored Document
	require.NoError(t, json.Unmarshal(blobs.objects[wantHash+".json"], &stored))
	assert.Equal(t, wantHash, stored.Hash)
	require.Len(t, stored.Pages, 1)
	assert.Equal(t, 1, stored.Pages[0].Number)
}

func TestConvertSameContentSameKey(t *testing.T) {
	t.Parallel()

	raw := []byte("%PDF-1.4 stable bytes")
	blobs := newFakeBlobStore()
	c := newTestConverter(t, &fakePages{body: raw}, blobs, &fakeParser{})

	first, err := c.Convert(context.Background(), "http://example.com/a.pdf")
	require.NoError(t, err)
	second, err := c.Convert(context.Background(), "http://example.com/mirror/a.pdf")
	require.NoError(t, err)

	assert.Equal(t, first.Hash, second.Hash)
}

func TestConvertDownloadFailure(t *testing.T) {
	t.Parallel()

	c := newTestConverter(t, &fakePages{err: errors.New("unreachable")}, newFakeBlobStore(), &fakeParser{})

	_, err := c.Convert(context.Background(), "http://example.com/a.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "download pdf")
}

func TestConvertParseFailure(t *testing.T) {
	t.Parallel()

	parser := &fakeParser{err: errors.New("not a pdf")}
	c := newTestConverter(t, &fakePages{body: []byte("<html>")}, newFakeBlobStore(), parser)

	_, err := c.Convert(context.Background(), "http://example.com/a.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse pdf")
}

func TestConvertStoreFailure(t *testing.T) {
	t.Parallel()

	blobs := newFakeBlobStore()
	blobs.err = errors.New("disk full")
	c := newTestConverter(t, &fakePages{body: []byte("%PDF-1.4")}, blobs, &fakeParser{})

	_, err := c.Convert(context.Background(), "http://example.com/a.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store pdf")
}

func TestPDFParserRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := NewPDFParser().Parse([]byte("<html>not a pdf</html>"))
	require.Error(t, err)
}

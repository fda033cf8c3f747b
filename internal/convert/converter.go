// Package convert turns fetched PDF artifacts into structured JSON
// documents. Both the raw PDF and its JSON rendition are persisted to the
// content store under the document's SHA-256 content hash.
package convert

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/tollwatch/scraiper/internal/extract"
	"github.com/tollwatch/scraiper/internal/toll"
)

// Page is the extracted text of one PDF page.
type Page struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// Document is the structured result of one conversion.
type Document struct {
	Hash    string `json:"hash"`
	PDFURI  string `json:"pdf_uri"`
	JSONURI string `json:"json_uri"`
	Pages   []Page `json:"pages"`
}

// Parser extracts page text from raw PDF bytes.
type Parser interface {
	Parse(data []byte) ([]Page, error)
}

// Converter downloads a PDF, persists it under its content hash, and
// stores the parsed JSON rendition alongside it.
type Converter struct {
	pages  extract.PageFetcher
	blobs  toll.BlobStore
	hasher toll.Hasher
	parser Parser
	logger *zap.Logger
}

// New constructs a Converter.
func New(pages extract.PageFetcher, blobs toll.BlobStore, hasher toll.Hasher, parser Parser, logger *zap.Logger) (*Converter, error) {
	if pages == nil {
		return nil, fmt.Errorf("page fetcher is required")
	}
	if blobs == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if hasher == nil {
		return nil, fmt.Errorf("hasher is required")
	}
	if parser == nil {
		return nil, fmt.Errorf("parser is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Converter{
		pages:  pages,
		blobs:  blobs,
		hasher: hasher,
		parser: parser,
		logger: logger,
	}, nil
}

// Convert fetches the PDF at url and returns its structured rendition.
func (c *Converter) Convert(ctx context.Context, url string) (Document, error) {
	data, err := c.pages.FetchPage(ctx, url)
	if err != nil {
		return Document{}, fmt.Errorf("download pdf: %w", err)
	}

	hash := c.hasher.Hash(data)
	pdfURI, err := c.blobs.PutObject(ctx, hash+".pdf", "application/pdf", data)
	if err != nil {
		return Document{}, fmt.Errorf("store pdf: %w", err)
	}

	pages, err := c.parser.Parse(data)
	if err != nil {
		return Document{}, fmt.Errorf("parse pdf: %w", err)
	}

	doc := Document{Hash: hash, PDFURI: pdfURI, Pages: pages}
	encoded, err := json.Marshal(doc)
	if err != nil {
		return Document{}, fmt.Errorf("encode document: %w", err)
	}
	jsonURI, err := c.blobs.PutObject(ctx, hash+".json", "application/json", encoded)
	if err != nil {
		return Document{}, fmt.Errorf("store document: %w", err)
	}
	doc.JSONURI = jsonURI

	c.logger.Info("pdf converted",
		zap.String("url", url),
		zap.String("hash", hash),
		zap.Int("pages", len(pages)),
	)
	return doc, nil
}

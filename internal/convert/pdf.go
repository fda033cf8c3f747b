package convert

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// PDFParser implements Parser over a real PDF reader.
type PDFParser struct{}

// NewPDFParser returns a PDFParser.
func NewPDFParser() *PDFParser {
	return &PDFParser{}
}

// Parse extracts the plain text of every page.
func (PDFParser) Parse(data []byte) ([]Page, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}

	pages := make([]Page, 0, reader.NumPage())
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract page %d: %w", i, err)
		}
		pages = append(pages, Page{Number: i, Text: text})
	}
	return pages, nil
}

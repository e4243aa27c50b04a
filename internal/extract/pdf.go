package extract

import (
	"bytes"
	"fmt"

	pdflib "github.com/ledongthuc/pdf"
)

type pdfExtractor struct{}

// Extract reads the plain text of every page. Pages that fail to decode are
// skipped.
func (pdfExtractor) Extract(data []byte) (string, string, error) {
	reader, err := pdflib.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", "", fmt.Errorf("open pdf: %w", err)
	}
	pages := make([]string, 0, reader.NumPage())
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		pages = append(pages, text)
	}
	return "", joinBlocks(pages), nil
}

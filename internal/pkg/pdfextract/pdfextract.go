// Package pdfextract pulls plain text out of PDF documents.
package pdfextract

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

var ErrNoText = errors.New("pdf contains no extractable text")

// ExtractBytes returns the text of every page of an in-memory PDF, pages
// separated by a blank line. The parser panics on some malformed files; that
// is reported as an error.
func ExtractBytes(b []byte) (text string, err error) {
	if len(b) == 0 {
		return "", fmt.Errorf("empty pdf: %w", ErrNoText)
	}
	defer func() {
		if rec := recover(); rec != nil {
			text, err = "", fmt.Errorf("parse pdf failed: %v", rec)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return "", fmt.Errorf("open pdf failed: %w", err)
	}

	var out strings.Builder
	fonts := make(map[string]*pdf.Font)
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		for _, name := range page.Fonts() {
			if _, ok := fonts[name]; !ok {
				f := page.Font(name)
				fonts[name] = &f
			}
		}
		pageText, err := page.GetPlainText(fonts)
		if err != nil {
			return "", fmt.Errorf("extract page %d failed: %w", i, err)
		}
		if strings.TrimSpace(pageText) == "" {
			continue
		}
		if out.Len() > 0 {
			out.WriteString("\n\n")
		}
		out.WriteString(pageText)
	}

	if strings.TrimSpace(out.String()) == "" {
		return "", ErrNoText
	}
	return out.String(), nil
}

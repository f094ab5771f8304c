// Package chunker splits document text into overlapping fixed-size windows.
package chunker

import (
	"errors"
	"fmt"
	"strings"
)

const (
	DefaultSize    = 800
	DefaultOverlap = 120
)

var ErrInvalidParams = errors.New("chunker: overlap must satisfy 0 < overlap < size")

// Window is a raw slice of the input before whitespace normalisation.
// Start and End are rune offsets.
type Window struct {
	Start int
	End   int
	Text  string
}

// Windows slides a window of size runes across text, advancing by
// size-overlap runes, while the window start is inside the text.
func Windows(text string, size, overlap int) ([]Window, error) {
	if size <= 0 || overlap <= 0 || overlap >= size {
		return nil, fmt.Errorf("%w (size=%d, overlap=%d)", ErrInvalidParams, size, overlap)
	}

	runes := []rune(text)
	step := size - overlap
	windows := make([]Window, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		windows = append(windows, Window{Start: start, End: end, Text: string(runes[start:end])})
	}
	return windows, nil
}

// Chunk returns the whitespace-collapsed, trimmed windows of text, dropping
// any that end up empty.
func Chunk(text string, size, overlap int) ([]string, error) {
	windows, err := Windows(text, size, overlap)
	if err != nil {
		return nil, err
	}

	chunks := make([]string, 0, len(windows))
	for _, w := range windows {
		if normalized := Normalize(w.Text); normalized != "" {
			chunks = append(chunks, normalized)
		}
	}
	return chunks, nil
}

// Normalize collapses every run of whitespace into a single space and trims
// the result.
func Normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

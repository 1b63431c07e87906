package document

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// TextExtractor turns raw document bytes into plain text for the general
// document summarization path.
type TextExtractor interface {
	ExtractText(data []byte, filename string) (string, error)
}

// PlainTextExtractor handles text-like files locally. Binary formats (pdf,
// docx, images) belong to the extraction service deployment, not this
// process; asking for them here is an input error.
type PlainTextExtractor struct{}

var textExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".csv":  true,
	".log":  true,
	".json": true,
}

// ExtractText returns the file content as a string for supported text
// formats.
func (PlainTextExtractor) ExtractText(data []byte, filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !textExtensions[ext] {
		return "", fmt.Errorf("unsupported file type %q for text extraction", ext)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("file %s is not valid UTF-8 text", filename)
	}
	return string(data), nil
}

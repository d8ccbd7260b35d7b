// Package extract converts raw uploaded documents into plain text for
// review. Converters are registered per declared content type; an
// unrecognised type is a non-retryable failure.
package extract

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrUnsupportedFormat marks a content type with no registered converter.
// Callers must treat it as fatal for the message, never as retryable.
var ErrUnsupportedFormat = errors.New("unsupported content format")

// Converter turns one document format into plain text.
type Converter func(data []byte) (string, error)

// converters maps normalized content types to their format converter.
var converters = map[string]Converter{
	"application/pdf": convertPDF,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": convertDOCX,
	"text/plain":    convertPlainText,
	"text/markdown": convertMarkdown,
	"text/csv":      convertPlainText,
	"text/html":     convertHTML,
}

// SupportedTypes returns the content types with a registered converter.
func SupportedTypes() []string {
	types := make([]string, 0, len(converters))
	for t := range converters {
		types = append(types, t)
	}
	return types
}

// Supported reports whether a declared content type can be extracted.
func Supported(contentType string) bool {
	_, ok := converters[normalizeContentType(contentType)]
	return ok
}

// Extract converts a raw byte buffer with a declared content type into
// normalized plain text.
func Extract(data []byte, contentType string) (string, error) {
	ct := normalizeContentType(contentType)
	convert, ok := converters[ct]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, contentType)
	}

	text, err := convert(data)
	if err != nil {
		return "", fmt.Errorf("extracting %s content: %w", ct, err)
	}
	return Normalize(text), nil
}

// normalizeContentType lowercases the type and strips parameters such as
// charset, so "text/plain; charset=utf-8" resolves like "text/plain".
func normalizeContentType(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if idx := strings.Index(ct, ";"); idx != -1 {
		ct = strings.TrimSpace(ct[:idx])
	}
	return ct
}

var (
	spaceRuns   = regexp.MustCompile(`[ \t]+`)
	newlineRuns = regexp.MustCompile(`\n{3,}`)
)

// Normalize canonicalizes extracted text so downstream PII patterns see
// consistent input: CRLF becomes LF, horizontal whitespace collapses to a
// single space, and runs of blank lines collapse to one.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = spaceRuns.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " ")
	}
	text = strings.Join(lines, "\n")

	text = newlineRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

func convertPlainText(data []byte) (string, error) {
	return string(data), nil
}

// convertMarkdown keeps markdown as-is apart from normalization; the
// reviewer handles markup fine and stripping it would lose structure.
func convertMarkdown(data []byte) (string, error) {
	return string(data), nil
}

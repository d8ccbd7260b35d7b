package extract

import (
	"html"
	"regexp"
)

var (
	scriptBlocks = regexp.MustCompile(`(?is)<(script|style)\b[^>]*>.*?</(script|style)>`)
	blockTags    = regexp.MustCompile(`(?i)</?(p|div|br|h[1-6]|li|tr|table|section|article)\b[^>]*>`)
	anyTag       = regexp.MustCompile(`<[^>]+>`)
)

// convertHTML strips markup and returns the visible text. Block-level
// tags become newlines so paragraph structure survives.
func convertHTML(data []byte) (string, error) {
	text := string(data)
	text = scriptBlocks.ReplaceAllString(text, "")
	text = blockTags.ReplaceAllString(text, "\n")
	text = anyTag.ReplaceAllString(text, "")
	return html.UnescapeString(text), nil
}

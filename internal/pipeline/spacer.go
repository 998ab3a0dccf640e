package pipeline

import "regexp"

// spacerSpan matches the empty, width-styled spans the renderer emits in
// place of inter-word spaces.
var spacerSpan = regexp.MustCompile(`<span[^>]*>\s*</span>`)

// ReplaceSpacers replaces every empty span with a single space so words do
// not run together once the page's absolute layout is gone.
func ReplaceSpacers(content string) string {
	return spacerSpan.ReplaceAllString(content, " ")
}

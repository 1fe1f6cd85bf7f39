package linkindex

import (
	"regexp"
	"sort"
	"strings"

	"github.com/starford/attic/internal/parser"
)

const maxMatchesPerPattern = parser.MaxMatchesPerPattern

var (
	htmlAttrRe = regexp.MustCompile(`(?i)\b(?:href|src)\s*=\s*["']([^"']+)["']`)
	mdInlineRe = regexp.MustCompile(`!?\[[^\]]*\]\(\s*<?([^)>]+?)>?(?:\s+"[^"]*")?\s*\)`)
)

// extractor runs the regex fallbacks over a document.
type extractor struct {
	bareURLRe *regexp.Regexp
}

// newExtractor builds the bare URL pattern from the extension allow-list.
// With no extensions only HTML and Markdown fallbacks run.
func newExtractor(extensions map[string]struct{}) *extractor {
	exts := make([]string, 0, len(extensions))
	for e := range extensions {
		exts = append(exts, regexp.QuoteMeta(e))
	}
	if len(exts) == 0 {
		return &extractor{}
	}
	// Longest first so "jpeg" wins over "jpg" style prefixes.
	sort.Slice(exts, func(i, j int) bool {
		if len(exts[i]) != len(exts[j]) {
			return len(exts[i]) > len(exts[j])
		}
		return exts[i] < exts[j]
	})
	re := regexp.MustCompile(`(?i)\bhttps?://[^\s<>"'()\[\]]+\.(?:` + strings.Join(exts, "|") + `)\b`)
	return &extractor{bareURLRe: re}
}

// references returns every fallback match in content, raw.
func (x *extractor) references(content string) []string {
	var out []string
	for _, m := range htmlAttrRe.FindAllStringSubmatch(content, maxMatchesPerPattern) {
		out = append(out, m[1])
	}
	for _, m := range mdInlineRe.FindAllStringSubmatch(content, maxMatchesPerPattern) {
		out = append(out, m[1])
	}
	if x.bareURLRe != nil {
		out = append(out, x.bareURLRe.FindAllString(content, maxMatchesPerPattern)...)
	}
	return out
}

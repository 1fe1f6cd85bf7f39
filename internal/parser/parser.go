// Package parser extracts frontmatter and attachment references from
// Markdown content.
package parser

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"
)

var (
	wikilinkRe = regexp.MustCompile(`(!?)\[\[(.*?)\]\]`)

	md = goldmark.New(goldmark.WithExtensions(extension.Linkify))
)

// LinkKind tells where a reference was found.
type LinkKind int

const (
	KindWikilink LinkKind = iota
	KindEmbed
	KindMarkdown
	KindImage
	KindAutoLink
	KindFrontmatter
)

// Link is one reference to another vault file or URL. Target is the raw
// destination with alias, heading and size suffixes removed; it is not
// URL-decoded.
type Link struct {
	Target string
	Kind   LinkKind
}

// Result holds the output of parsing a Markdown file.
type Result struct {
	Frontmatter map[string]interface{}
	Body        string
	Links       []Link
}

// Parse extracts frontmatter, body and references from raw Markdown bytes.
// Wikilinks and embeds come from the body and from frontmatter string
// values; inline links, images and bare URLs come from the Markdown AST.
func Parse(data []byte) (*Result, error) {
	fm, body, err := splitFrontmatter(data)
	if err != nil {
		return nil, err
	}

	links := extractWikilinks(body, KindWikilink, MaxMatchesPerPattern)
	links = append(links, frontmatterLinks(fm)...)
	links = append(links, astLinks([]byte(body))...)

	return &Result{
		Frontmatter: fm,
		Body:        body,
		Links:       dedupe(links),
	}, nil
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the Markdown body. If no frontmatter is found the entire content is body.
func splitFrontmatter(data []byte) (map[string]interface{}, string, error) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data), nil
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data), nil
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var fm map[string]interface{}
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		// Invalid YAML: treat the whole file as body.
		return nil, string(data), nil
	}

	return fm, body, nil
}

// SplitWikilink splits the inner text of [[...]] into target, subpath
// ("#heading" or "#^block", with the hash) and suffix ("|alias" or "|200",
// with the pipe).
func SplitWikilink(inner string) (target, subpath, suffix string) {
	if i := strings.Index(inner, "|"); i >= 0 {
		suffix = inner[i:]
		inner = inner[:i]
	}
	if i := strings.Index(inner, "#"); i >= 0 {
		subpath = inner[i:]
		inner = inner[:i]
	}
	return strings.TrimSpace(inner), subpath, suffix
}

// MaxMatchesPerPattern bounds the matches collected per regex per document.
const MaxMatchesPerPattern = 10000

func extractWikilinks(s string, kind LinkKind, limit int) []Link {
	if limit <= 0 {
		return nil
	}
	var out []Link
	for _, m := range wikilinkRe.FindAllStringSubmatch(s, limit) {
		target, _, _ := SplitWikilink(m[2])
		if target == "" {
			continue
		}
		k := kind
		if m[1] == "!" && kind == KindWikilink {
			k = KindEmbed
		}
		out = append(out, Link{Target: target, Kind: k})
	}
	return out
}

// frontmatterLinks collects wikilinks from every string value in the
// frontmatter, at any depth, up to MaxMatchesPerPattern in total.
func frontmatterLinks(fm map[string]interface{}) []Link {
	var out []Link
	var walk func(v interface{})
	walk = func(v interface{}) {
		switch t := v.(type) {
		case string:
			out = append(out, extractWikilinks(t, KindFrontmatter, MaxMatchesPerPattern-len(out))...)
		case []interface{}:
			for _, item := range t {
				walk(item)
			}
		case map[string]interface{}:
			for _, item := range t {
				walk(item)
			}
		}
	}
	for _, v := range fm {
		walk(v)
	}
	return out
}

// astLinks walks the Markdown AST for inline links, images and autolinks.
func astLinks(src []byte) []Link {
	doc := md.Parser().Parse(text.NewReader(src))
	var out []Link
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch link := n.(type) {
		case *ast.Link:
			out = appendDest(out, string(link.Destination), KindMarkdown)
		case *ast.Image:
			out = appendDest(out, string(link.Destination), KindImage)
		case *ast.AutoLink:
			if link.AutoLinkType == ast.AutoLinkURL {
				out = appendDest(out, string(link.URL(src)), KindAutoLink)
			}
		}
		return ast.WalkContinue, nil
	})
	return out
}

func appendDest(out []Link, dest string, kind LinkKind) []Link {
	dest = StripFragment(strings.TrimSpace(dest))
	if dest == "" {
		return out
	}
	return append(out, Link{Target: dest, Kind: kind})
}

// StripFragment removes a "#..." suffix.
func StripFragment(s string) string {
	if i := strings.Index(s, "#"); i >= 0 {
		return s[:i]
	}
	return s
}

func dedupe(links []Link) []Link {
	seen := make(map[Link]struct{}, len(links))
	out := links[:0]
	for _, l := range links {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}

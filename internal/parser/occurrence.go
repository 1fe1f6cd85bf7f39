package parser

import "strings"

// Occurrence is one rewritable link as it appears in the source text.
type Occurrence struct {
	Markdown bool   // false for [[wikilinks]], true for [text](dest)
	Raw      string // exact source text: "[[a.png|200]]" or "[alt](a%20b.png \"t\")"
	Target   string // destination without subpath, alias or title
	Subpath  string // "#heading" including the hash
	Suffix   string // wikilink "|alias"; markdown ` "title"`
	Angle    bool   // markdown destination written as <...>
	Line     int    // 1-based
}

// Occurrences lists wikilinks and Markdown links outside fenced code blocks
// and inline code spans, in source order.
func Occurrences(content string) []Occurrence {
	var out []Occurrence
	inFence := false
	for i, line := range strings.Split(content, "\n") {
		trim := strings.TrimSpace(line)
		if strings.HasPrefix(trim, "```") || strings.HasPrefix(trim, "~~~") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		clean := stripInlineCode(line)
		out = append(out, wikiOccurrences(clean, i+1)...)
		out = append(out, markdownOccurrences(clean, i+1)...)
	}
	return out
}

// WithTarget returns the raw link text with its destination replaced and
// every other part kept.
func (o Occurrence) WithTarget(target string) string {
	if !o.Markdown {
		return "[[" + target + o.Subpath + o.Suffix + "]]"
	}
	i := strings.Index(o.Raw, "](")
	if i < 0 {
		return o.Raw
	}
	dest := target + o.Subpath
	if o.Angle {
		dest = "<" + dest + ">"
	}
	return o.Raw[:i+2] + dest + o.Suffix + ")"
}

func stripInlineCode(line string) string {
	var out strings.Builder
	inCode := false
	for i := 0; i < len(line); i++ {
		ch := line[i]
		if ch == '`' {
			inCode = !inCode
			continue
		}
		if !inCode {
			out.WriteByte(ch)
		}
	}
	return out.String()
}

func wikiOccurrences(line string, lineNum int) []Occurrence {
	var out []Occurrence
	remaining := line
	for {
		start := strings.Index(remaining, "[[")
		if start == -1 {
			break
		}
		end := strings.Index(remaining[start+2:], "]]")
		if end == -1 {
			break
		}
		end = start + 2 + end
		inner := remaining[start+2 : end]
		target, subpath, suffix := SplitWikilink(inner)
		if target != "" {
			out = append(out, Occurrence{
				Raw:     "[[" + inner + "]]",
				Target:  target,
				Subpath: subpath,
				Suffix:  suffix,
				Line:    lineNum,
			})
		}
		remaining = remaining[end+2:]
	}
	return out
}

func markdownOccurrences(line string, lineNum int) []Occurrence {
	var out []Occurrence
	remaining := line
	for {
		open := strings.Index(remaining, "[")
		if open == -1 {
			break
		}
		if open+1 < len(remaining) && remaining[open+1] == '[' {
			remaining = remaining[open+2:]
			continue
		}
		mid := strings.Index(remaining[open:], "](")
		if mid == -1 {
			break
		}
		mid = open + mid
		closing := strings.Index(remaining[mid+2:], ")")
		if closing == -1 {
			break
		}
		closing = mid + 2 + closing
		rawDest := remaining[mid+2 : closing]
		o := Occurrence{Markdown: true, Raw: remaining[open : closing+1], Line: lineNum}
		if parseDestination(rawDest, &o) {
			out = append(out, o)
		}
		remaining = remaining[closing+1:]
	}
	return out
}

// parseDestination splits "dest", "<dest>", "dest \"title\"" into o's
// fields and reports whether a local target remains.
func parseDestination(raw string, o *Occurrence) bool {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "<") {
		end := strings.Index(s, ">")
		if end < 0 {
			return false
		}
		o.Angle = true
		o.Suffix = s[end+1:]
		s = s[1:end]
	} else if i := strings.IndexAny(s, " \t"); i >= 0 {
		o.Suffix = s[i:]
		s = s[:i]
	}
	if i := strings.Index(s, "#"); i >= 0 {
		o.Subpath = s[i:]
		s = s[:i]
	}
	if s == "" || strings.Contains(s, "://") || strings.HasPrefix(s, "mailto:") {
		return false
	}
	o.Target = s
	return true
}

// ReplaceOutsideInlineCode replaces occurrences of old with new in line,
// but only outside backtick-delimited inline code spans.
func ReplaceOutsideInlineCode(line, old, new string) string {
	var result strings.Builder
	i := 0
	for i < len(line) {
		if line[i] == '`' {
			end := strings.IndexByte(line[i+1:], '`')
			if end < 0 {
				result.WriteString(line[i:])
				return result.String()
			}
			span := line[i : i+1+end+1]
			result.WriteString(span)
			i += len(span)
			continue
		}
		if strings.HasPrefix(line[i:], old) {
			result.WriteString(new)
			i += len(old)
			continue
		}
		result.WriteByte(line[i])
		i++
	}
	return result.String()
}

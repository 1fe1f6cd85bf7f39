// Package vaultpath holds the path arithmetic shared by the planner, the
// reference indexer and the purge executor. Vault paths are slash separated,
// relative to the vault root, with no leading or trailing slash.
package vaultpath

import (
	"net/url"
	"path"
	"strconv"
	"strings"
)

// Normalize converts p to canonical vault form: forward slashes, single
// separators, no "." segments, no leading or trailing slash. The empty string
// denotes the vault root.
func Normalize(p string) string {
	p = strings.TrimSpace(strings.ReplaceAll(p, "\\", "/"))
	if p == "" {
		return ""
	}
	p = path.Clean("/" + p)
	return strings.Trim(p, "/")
}

// Join joins elements and normalizes the result.
func Join(elem ...string) string {
	return Normalize(strings.Join(elem, "/"))
}

// Base returns the last element of p.
func Base(p string) string {
	p = Normalize(p)
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}

// Dir returns everything before the last element of p, "" at the root.
func Dir(p string) string {
	p = Normalize(p)
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[:i]
	}
	return ""
}

// Ext returns the lower-cased extension of the last element without the dot.
// Names that start with a dot and have no other dot have no extension.
func Ext(p string) string {
	name := Base(p)
	if i := strings.LastIndex(name, "."); i > 0 {
		return strings.ToLower(name[i+1:])
	}
	return ""
}

// Stem returns the last element of p without its extension.
func Stem(p string) string {
	name := Base(p)
	if i := strings.LastIndex(name, "."); i > 0 {
		return name[:i]
	}
	return name
}

// TrimExt strips the final extension from p, keeping the folder part.
func TrimExt(p string) string {
	p = Normalize(p)
	if Ext(p) == "" {
		return p
	}
	return p[:strings.LastIndex(p, ".")]
}

// IsWithin reports whether p equals folder or lies below it. The comparison
// is case-insensitive and anchored at a segment boundary, so "foo" never
// contains "foobar/x". The vault root contains everything.
func IsWithin(p, folder string) bool {
	lp := strings.ToLower(Normalize(p))
	lf := strings.ToLower(Normalize(folder))
	if lf == "" {
		return true
	}
	return lp == lf || strings.HasPrefix(lp, lf+"/")
}

// RelTo returns p relative to folder, or ok=false when p is not within it.
// A path equal to folder yields "".
func RelTo(p, folder string) (rel string, ok bool) {
	np := Normalize(p)
	nf := Normalize(folder)
	if !IsWithin(np, nf) {
		return "", false
	}
	if nf == "" {
		return np, true
	}
	if len(np) == len(nf) {
		return "", true
	}
	return np[len(nf)+1:], true
}

// Depth returns the number of segments in p.
func Depth(p string) int {
	p = Normalize(p)
	if p == "" {
		return 0
	}
	return strings.Count(p, "/") + 1
}

// Escape percent-encodes p the way a browser encodes a URL path, so
// "my file.png" becomes "my%20file.png".
func Escape(p string) string {
	return (&url.URL{Path: p}).EscapedPath()
}

// Unescape decodes a percent-encoded reference, returning it unchanged when
// it is not valid encoding.
func Unescape(p string) string {
	if !strings.Contains(p, "%") {
		return p
	}
	if d, err := url.PathUnescape(p); err == nil {
		return d
	}
	return p
}

// Unique returns dest if it is free, otherwise the first "stem (N).ext"
// variant in the same folder for which taken reports false, N counting up
// from 1.
func Unique(dest string, taken func(string) bool) string {
	dest = Normalize(dest)
	if !taken(dest) {
		return dest
	}
	dir := Dir(dest)
	stem := Stem(dest)
	ext := Ext(dest)
	if ext != "" {
		// Keep the original case of the extension.
		name := Base(dest)
		ext = name[len(name)-len(ext):]
	}
	for n := 1; ; n++ {
		name := stem + " (" + strconv.Itoa(n) + ")"
		if ext != "" {
			name += "." + ext
		}
		candidate := Join(dir, name)
		if !taken(candidate) {
			return candidate
		}
	}
}

package vaultpath

import "testing"

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"":                  "",
		"/":                 "",
		"_Attachments/":     "_Attachments",
		"//a//b///c.png":    "a/b/c.png",
		"./a/./b":           "a/b",
		`notes\img.png`:     "notes/img.png",
		"  spaced/path  ":   "spaced/path",
		"a/b/../c.png":      "a/c.png",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsWithin_SegmentBoundary(t *testing.T) {
	if !IsWithin("foo/x.png", "foo") {
		t.Error("foo/x.png should be within foo")
	}
	if IsWithin("foobar/x.png", "foo") {
		t.Error("foobar/x.png must not be within foo")
	}
	if !IsWithin("FOO/Sub/x.png", "foo/sub") {
		t.Error("comparison should ignore case")
	}
	if !IsWithin("foo", "foo/") {
		t.Error("folder should contain itself")
	}
}

func TestRelTo(t *testing.T) {
	rel, ok := RelTo("_Attachments/2024/01/a.png", "_Attachments")
	if !ok || rel != "2024/01/a.png" {
		t.Errorf("RelTo = %q, %v", rel, ok)
	}
	if _, ok := RelTo("notes/a.png", "_Attachments"); ok {
		t.Error("notes/a.png is not inside _Attachments")
	}
	rel, ok = RelTo("_Attachments", "_Attachments")
	if !ok || rel != "" {
		t.Errorf("folder itself: rel = %q, ok = %v", rel, ok)
	}
}

func TestStemExt(t *testing.T) {
	if got := Ext("a/B.PNG"); got != "png" {
		t.Errorf("Ext = %q", got)
	}
	if got := Stem("a/archive.tar.gz"); got != "archive.tar" {
		t.Errorf("Stem = %q", got)
	}
	if got := Ext(".gitignore"); got != "" {
		t.Errorf("dotfile ext = %q", got)
	}
	if got := TrimExt("2026/01/13 - Tuesday.md"); got != "2026/01/13 - Tuesday" {
		t.Errorf("TrimExt = %q", got)
	}
}

func TestUnique_Free(t *testing.T) {
	got := Unique("_Attachments/img.png", func(string) bool { return false })
	if got != "_Attachments/img.png" {
		t.Errorf("got %q", got)
	}
}

func TestUnique_IncrementsUntilFree(t *testing.T) {
	taken := map[string]bool{
		"_Attachments/img.png":     true,
		"_Attachments/img (1).png": true,
		"_Attachments/img (2).png": true,
	}
	got := Unique("_Attachments/img.png", func(p string) bool { return taken[p] })
	if got != "_Attachments/img (3).png" {
		t.Errorf("got %q, want _Attachments/img (3).png", got)
	}
}

func TestUnique_PreservesExtensionCase(t *testing.T) {
	got := Unique("a/Photo.JPG", func(p string) bool { return p == "a/Photo.JPG" })
	if got != "a/Photo (1).JPG" {
		t.Errorf("got %q", got)
	}
}

func TestUnique_NoExtension(t *testing.T) {
	got := Unique("a/README", func(p string) bool { return p == "a/README" })
	if got != "a/README (1)" {
		t.Errorf("got %q", got)
	}
}

func TestEscapeUnescape(t *testing.T) {
	if got := Escape("my dir/my file.png"); got != "my%20dir/my%20file.png" {
		t.Errorf("Escape = %q", got)
	}
	if got := Unescape("my%20file.png"); got != "my file.png" {
		t.Errorf("Unescape = %q", got)
	}
	if got := Unescape("100%.png"); got != "100%.png" {
		t.Errorf("invalid escape should pass through, got %q", got)
	}
}

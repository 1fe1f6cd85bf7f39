package organizer

import (
	"strings"
	"testing"
	"time"

	"github.com/starford/attic/internal/models"
	"github.com/starford/attic/internal/settings"
	"github.com/starford/attic/internal/vaultpath"
)

func file(p string) models.Entry {
	return models.Entry{
		Kind:    models.KindFile,
		Path:    p,
		Name:    vaultpath.Base(p),
		Ext:     vaultpath.Ext(p),
		ModTime: time.Date(2024, time.March, 15, 12, 0, 0, 0, time.Local),
	}
}

func folder(p string) models.Entry {
	return models.Entry{Kind: models.KindFolder, Path: p, Name: vaultpath.Base(p)}
}

func paths(entries []models.Entry) string {
	var out []string
	for _, e := range entries {
		out = append(out, e.Path)
	}
	return strings.Join(out, ",")
}

type staticNotes map[string]string

func (n staticNotes) ReferringNote(p string) (string, bool) {
	note, ok := n[p]
	return note, ok
}

func setOf(items ...string) func(string) bool {
	set := make(map[string]bool, len(items))
	for _, it := range items {
		set[it] = true
	}
	return func(p string) bool { return set[p] }
}

func TestScan_FiltersByExtensionAndExcludes(t *testing.T) {
	s := settings.Defaults()
	s.ExcludedFolders = settings.StringList{".obsidian", "foo"}
	entries := []models.Entry{
		folder("notes"),
		file("notes/img.png"),
		file("notes/readme.md"),
		file(".obsidian/icon.png"),
		file("foobar/x.png"),
		file("foo/y.png"),
		file("_Attachments/z.png"),
	}
	got := paths(Scan(entries, s))
	if got != "notes/img.png,foobar/x.png" {
		t.Errorf("Scan = %s", got)
	}
}

func TestScan_InsideRootRespectsIgnoreRules(t *testing.T) {
	s := settings.Defaults()
	s.ReorganizeInsideAttachmentFolder = true
	entries := []models.Entry{
		file("_Attachments/top.png"),
		file("_Attachments/keep/a.png"),
		file("_Attachments/misc/b.png"),
	}

	if got := paths(Scan(entries, s)); got != "_Attachments/top.png" {
		t.Errorf("ignore-all Scan = %s", got)
	}

	s.IgnoreAllAttachmentSubfolders = false
	s.IgnoredAttachmentSubfolders = settings.StringList{"Keep"}
	if got := paths(Scan(entries, s)); got != "_Attachments/top.png,_Attachments/misc/b.png" {
		t.Errorf("ignore-list Scan = %s", got)
	}
}

func TestIgnoredInsideRoot_NestedIgnore(t *testing.T) {
	if !IgnoredInsideRoot("media/keep/deep/a.png", "media", false, []string{"keep"}) {
		t.Error("subfolder below an ignored one should be ignored")
	}
	if IgnoredInsideRoot("media/keeper/a.png", "media", false, []string{"keep"}) {
		t.Error("ignore entries match whole segments only")
	}
	if IgnoredInsideRoot("other/x/a.png", "media", true, nil) {
		t.Error("files outside the root are never ignored")
	}
}

func TestAttachmentSubfolders(t *testing.T) {
	entries := []models.Entry{
		folder("_Attachments"),
		folder("_Attachments/b"),
		folder("_Attachments/A"),
		folder("_Attachments/A/x"),
		folder("other"),
		file("_Attachments/c.png"),
	}
	got := strings.Join(AttachmentSubfolders(entries, "_Attachments"), ",")
	if got != "A,A/x,b" {
		t.Errorf("subfolders = %s", got)
	}
}

func TestResolver_Layouts(t *testing.T) {
	f := file("notes/img.PNG")
	f.Ext = "png"
	cases := []struct {
		layout  settings.Layout
		pattern string
		want    string
	}{
		{settings.LayoutFlat, "", "_Attachments/img.PNG"},
		{settings.LayoutDate, "", "_Attachments/2024/03/img.PNG"},
		{settings.LayoutType, "", "_Attachments/png/img.PNG"},
		{settings.LayoutPattern, "{{type}}/{{year}}", "_Attachments/png/2024/img.PNG"},
		{settings.LayoutPattern, "{{year}}-{{month}}-{{day}}/{{filename}}", "_Attachments/2024-03-15/img.PNG"},
		{settings.LayoutPattern, "../../escape", "_Attachments/img.PNG"},
		{"unknown", "", "_Attachments/img.PNG"},
	}
	for _, c := range cases {
		s := settings.Defaults()
		s.Layout = c.layout
		s.FolderPattern = c.pattern
		if got := NewResolver(s, nil).Destination(f); got != c.want {
			t.Errorf("%s %q: got %q, want %q", c.layout, c.pattern, got, c.want)
		}
	}
}

func TestResolver_ByNote(t *testing.T) {
	s := settings.Defaults()
	s.OrganizeByNote = true
	s.Layout = settings.LayoutType
	notes := staticNotes{"img/a.png": "2026/01/13 - Tuesday.md"}
	r := NewResolver(s, notes)

	if got := r.Destination(file("img/a.png")); got != "_Attachments/2026/01/13 - Tuesday/a.png" {
		t.Errorf("referenced: %q", got)
	}
	if got := r.Destination(file("_Attachments/old/b.png")); got != "_Attachments/old/b.png" {
		t.Errorf("unreferenced inside root should stay: %q", got)
	}
	if got := r.Destination(file("img/c.png")); got != "_Attachments/png/c.png" {
		t.Errorf("unreferenced outside root uses layout: %q", got)
	}
}

func TestBuildPlan_MovesMisplacedFile(t *testing.T) {
	s := settings.Defaults()
	moves := BuildPlan([]models.Entry{file("notes/img.png")}, NewResolver(s, nil), setOf("notes/img.png"))
	if len(moves) != 1 || moves[0].From != "notes/img.png" || moves[0].To != "_Attachments/img.png" {
		t.Fatalf("moves = %+v", moves)
	}
}

func TestBuildPlan_CollisionSuffix(t *testing.T) {
	s := settings.Defaults()
	exists := setOf("notes/img.png", "_Attachments/img.png", "_Attachments/img (1).png")
	moves := BuildPlan([]models.Entry{file("notes/img.png")}, NewResolver(s, nil), exists)
	if len(moves) != 1 || moves[0].To != "_Attachments/img (2).png" {
		t.Fatalf("moves = %+v", moves)
	}
}

func TestBuildPlan_PendingDestinationsNeverCollide(t *testing.T) {
	s := settings.Defaults()
	candidates := []models.Entry{file("a/x.png"), file("b/x.png"), file("c/x.png")}
	moves := BuildPlan(candidates, NewResolver(s, nil), setOf())
	var got []string
	for _, m := range moves {
		got = append(got, m.To)
	}
	want := "_Attachments/x.png,_Attachments/x (1).png,_Attachments/x (2).png"
	if strings.Join(got, ",") != want {
		t.Errorf("destinations = %v", got)
	}
}

func TestBuildPlan_IdempotentForSettledFiles(t *testing.T) {
	s := settings.Defaults()
	s.ReorganizeInsideAttachmentFolder = true
	s.Layout = settings.LayoutType
	entries := []models.Entry{file("_Attachments/png/a.png"), file("_Attachments/b.png")}
	cands := Scan(entries, s)
	if paths(cands) != "_Attachments/b.png" {
		t.Fatalf("candidates = %s", paths(cands))
	}
	moves := BuildPlan(cands, NewResolver(s, nil), setOf("_Attachments/png/a.png", "_Attachments/b.png"))
	if len(moves) != 1 || moves[0].To != "_Attachments/png/b.png" {
		t.Fatalf("first run = %+v", moves)
	}

	settled := []models.Entry{file("_Attachments/png/a.png"), file("_Attachments/png/b.png")}
	s.IgnoreAllAttachmentSubfolders = false
	again := BuildPlan(Scan(settled, s), NewResolver(s, nil), setOf("_Attachments/png/a.png", "_Attachments/png/b.png"))
	if len(again) != 0 {
		t.Errorf("second run = %+v", again)
	}
}

func TestPlanFolderMove(t *testing.T) {
	entries := []models.Entry{
		file("old/a.png"),
		file("old/sub/b.pdf"),
		file("old/note.md"),
		file("older/c.png"),
	}
	exts := map[string]struct{}{"png": {}, "pdf": {}}
	moves, err := PlanFolderMove(entries, "old", "new", exts, setOf("new/a.png"))
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, m := range moves {
		got = append(got, m.From+">"+m.To)
	}
	if strings.Join(got, ",") != "old/a.png>new/a (1).png,old/sub/b.pdf>new/sub/b.pdf" {
		t.Errorf("moves = %v", got)
	}

	if _, err := PlanFolderMove(entries, "old", "old/inner", exts, setOf()); err == nil {
		t.Error("target inside source should fail")
	}
	if _, err := PlanFolderMove(entries, "", "x", exts, setOf()); err == nil {
		t.Error("vault root as source should fail")
	}
}

func defaultsWithReorganize() settings.Settings {
	s := settings.Defaults()
	s.ReorganizeInsideAttachmentFolder = true
	return s
}

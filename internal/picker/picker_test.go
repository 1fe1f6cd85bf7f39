package picker

import (
	"reflect"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func TestNormalizeForSearch(t *testing.T) {
	cases := map[string]string{
		"_Attachments/Img":   "attachmentsimg",
		"My Folder - 2024":   "myfolder2024",
		`Win\Path\To`:        "winpathto",
		"  tabs\tand  space ": "tabsandspace",
		"":                   "",
	}
	for in, want := range cases {
		if got := NormalizeForSearch(in); got != want {
			t.Errorf("NormalizeForSearch(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFuzzyMatch(t *testing.T) {
	if !FuzzyMatch("", "anything") {
		t.Error("empty query should match")
	}
	if !FuzzyMatch("atm", "attachments") {
		t.Error("subsequence should match")
	}
	if FuzzyMatch("mta", "attachments") {
		t.Error("out-of-order runes should not match")
	}
	if FuzzyMatch("abc", "") {
		t.Error("empty candidate should not match non-empty query")
	}
}

func TestFilter(t *testing.T) {
	options := []string{"Projects/Alpha", "Projects/Beta", "_Attachments", "Daily Notes"}

	got := Filter(options, "proj alpha", nil)
	if !reflect.DeepEqual(got, []string{"Projects/Alpha"}) {
		t.Errorf("got %v", got)
	}
	got = Filter(options, "pb", nil)
	if !reflect.DeepEqual(got, []string{"Projects/Beta"}) {
		t.Errorf("subsequence filter got %v", got)
	}
	got = Filter(options, "", nil)
	if len(got) != len(options) {
		t.Errorf("empty query should keep all, got %v", got)
	}
}

func TestFilter_Alias(t *testing.T) {
	options := []string{"img", "pdf"}
	alias := func(o string) string { return "_Attachments/" + o }

	if got := Filter(options, "attach", nil); len(got) != 0 {
		t.Errorf("without alias got %v", got)
	}
	got := Filter(options, "attachpdf", alias)
	if !reflect.DeepEqual(got, []string{"pdf"}) {
		t.Errorf("with alias got %v", got)
	}
}

func typeRunes(m tea.Model, s string) tea.Model {
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
	return m
}

func TestModel_FilterAndPick(t *testing.T) {
	var m tea.Model = New(Config{Title: "Pick", Options: []string{"Inbox", "Projects/Alpha", "Projects/Beta"}})

	m = typeRunes(m, "proj")
	if got := m.(Model).Visible(); len(got) != 2 {
		t.Fatalf("visible = %v", got)
	}

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("enter should quit")
	}
	choice, ok := m.(Model).Chosen()
	if !ok || choice != "Projects/Beta" {
		t.Errorf("chosen = %q, %v", choice, ok)
	}
}

func TestModel_CursorWraps(t *testing.T) {
	var m tea.Model = New(Config{Options: []string{"a", "b", "c"}})
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyUp})
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if choice, _ := m.(Model).Chosen(); choice != "c" {
		t.Errorf("chosen = %q, want c", choice)
	}
}

func TestModel_EnterWithoutMatchesIgnored(t *testing.T) {
	var m tea.Model = New(Config{Options: []string{"alpha"}})
	m = typeRunes(m, "zzz")
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil {
		t.Error("enter with no matches should not quit")
	}
	if _, ok := m.(Model).Chosen(); ok {
		t.Error("nothing should be chosen")
	}
	if !strings.Contains(m.View(), "No matches.") {
		t.Errorf("view = %q", m.View())
	}
}

func TestModel_Escape(t *testing.T) {
	var m tea.Model = New(Config{Options: []string{"alpha"}})
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if cmd == nil {
		t.Fatal("esc should quit")
	}
	if _, ok := m.(Model).Chosen(); ok {
		t.Error("esc should not choose")
	}
}

func TestModel_EmptyView(t *testing.T) {
	m := New(Config{Empty: "No subfolders found."})
	if !strings.Contains(m.View(), "No subfolders found.") {
		t.Errorf("view = %q", m.View())
	}
}

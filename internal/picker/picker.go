// Package picker implements the interactive filter-and-pick list used by the
// folder, subfolder and OCR file commands.
package picker

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ErrCancelled is returned by Run when the user quits without picking.
var ErrCancelled = errors.New("picker: cancelled")

// NormalizeForSearch lower-cases value and strips whitespace, '_', '-', '/'
// and '\'.
func NormalizeForSearch(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range strings.ToLower(value) {
		if unicode.IsSpace(r) {
			continue
		}
		switch r {
		case '_', '-', '/', '\\':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// FuzzyMatch reports whether query is a subsequence of candidate. An empty
// query matches everything.
func FuzzyMatch(query, candidate string) bool {
	if query == "" {
		return true
	}
	q := []rune(query)
	i := 0
	for _, r := range candidate {
		if r == q[i] {
			i++
			if i == len(q) {
				return true
			}
		}
	}
	return false
}

// Matches reports whether any of the forms contains the normalized query as
// a substring or subsequence.
func Matches(query string, forms ...string) bool {
	q := NormalizeForSearch(query)
	if q == "" {
		return true
	}
	for _, f := range forms {
		n := NormalizeForSearch(f)
		if strings.Contains(n, q) || FuzzyMatch(q, n) {
			return true
		}
	}
	return false
}

// Filter returns the options matching query, in their original order. alias
// optionally supplies a second form to match against (e.g. the full path of
// a relative option).
func Filter(options []string, query string, alias func(string) string) []string {
	out := make([]string, 0, len(options))
	for _, o := range options {
		forms := []string{o}
		if alias != nil {
			forms = append(forms, alias(o))
		}
		if Matches(query, forms...) {
			out = append(out, o)
		}
	}
	return out
}

// Config describes one picker screen.
type Config struct {
	Title   string
	Hint    string
	Options []string
	// Alias returns an extra form of an option to match against.
	Alias func(string) string
	// Empty is shown when Options is empty.
	Empty string
	// Height caps the visible rows; 0 means 10.
	Height int
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	hintStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("170")).Bold(true)
	itemStyle     = lipgloss.NewStyle().PaddingLeft(2)
)

// Model is the bubbletea model behind Run.
type Model struct {
	cfg       Config
	input     textinput.Model
	filtered  []string
	cursor    int
	offset    int
	chosen    string
	done      bool
	cancelled bool
}

// New builds a focused picker model.
func New(cfg Config) Model {
	if cfg.Height <= 0 {
		cfg.Height = 10
	}
	ti := textinput.New()
	ti.Placeholder = "Filter..."
	ti.Prompt = "> "
	ti.Focus()
	m := Model{cfg: cfg, input: ti}
	m.refilter()
	return m
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if km, ok := msg.(tea.KeyMsg); ok {
		switch km.String() {
		case "ctrl+c", "esc":
			m.cancelled = true
			return m, tea.Quit
		case "enter":
			if len(m.filtered) == 0 {
				return m, nil
			}
			m.chosen = m.filtered[m.cursor]
			m.done = true
			return m, tea.Quit
		case "up", "ctrl+p":
			m.move(-1)
			return m, nil
		case "down", "ctrl+n", "tab":
			m.move(1)
			return m, nil
		}
	}

	var cmd tea.Cmd
	prev := m.input.Value()
	m.input, cmd = m.input.Update(msg)
	if m.input.Value() != prev {
		m.refilter()
	}
	return m, cmd
}

func (m Model) View() string {
	var b strings.Builder
	if m.cfg.Title != "" {
		b.WriteString(titleStyle.Render(m.cfg.Title) + "\n")
	}
	if m.cfg.Hint != "" {
		b.WriteString(hintStyle.Render(m.cfg.Hint) + "\n")
	}
	b.WriteString(m.input.View() + "\n\n")

	switch {
	case len(m.cfg.Options) == 0:
		empty := m.cfg.Empty
		if empty == "" {
			empty = "Nothing to pick."
		}
		b.WriteString(hintStyle.Render(empty) + "\n")
	case len(m.filtered) == 0:
		b.WriteString(hintStyle.Render("No matches.") + "\n")
	default:
		end := min(m.offset+m.cfg.Height, len(m.filtered))
		for i := m.offset; i < end; i++ {
			if i == m.cursor {
				b.WriteString(selectedStyle.Render("› "+m.filtered[i]) + "\n")
			} else {
				b.WriteString(itemStyle.Render(m.filtered[i]) + "\n")
			}
		}
		b.WriteString(hintStyle.Render(fmt.Sprintf("%d/%d  ↑/↓ move · enter pick · esc cancel", len(m.filtered), len(m.cfg.Options))) + "\n")
	}
	return b.String()
}

// Chosen returns the picked option and whether one was picked.
func (m Model) Chosen() (string, bool) { return m.chosen, m.done }

// Visible returns the options matching the current filter.
func (m Model) Visible() []string { return m.filtered }

func (m *Model) refilter() {
	m.filtered = Filter(m.cfg.Options, strings.TrimSpace(m.input.Value()), m.cfg.Alias)
	m.cursor = 0
	m.offset = 0
}

func (m *Model) move(delta int) {
	if len(m.filtered) == 0 {
		return
	}
	m.cursor = (m.cursor + delta + len(m.filtered)) % len(m.filtered)
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+m.cfg.Height {
		m.offset = m.cursor - m.cfg.Height + 1
	}
}

// Run shows the picker on the given terminal streams and returns the chosen
// option, or ErrCancelled.
func Run(cfg Config, in io.Reader, out io.Writer) (string, error) {
	p := tea.NewProgram(New(cfg), tea.WithInput(in), tea.WithOutput(out))
	final, err := p.Run()
	if err != nil {
		return "", fmt.Errorf("picker: %w", err)
	}
	m, ok := final.(Model)
	if !ok {
		return "", ErrCancelled
	}
	if choice, picked := m.Chosen(); picked {
		return choice, nil
	}
	return "", ErrCancelled
}

// Package settings holds the user-facing organizer settings document: its
// defaults, validation, normalization and the store that persists it.
package settings

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"

	"github.com/starford/attic/internal/vaultpath"
)

// DefaultAttachmentFolder is used whenever attachment_folder is empty or
// normalizes to the vault root.
const DefaultAttachmentFolder = "_Attachments"

// DefaultMaxDocumentBytes caps how much of a note the reference indexer reads.
const DefaultMaxDocumentBytes = 5 << 20

const defaultOCRPrompt = "Transcribe all text in this image or document exactly as written. " +
	"Preserve the structure with Markdown headings, lists and tables. " +
	"Return only the transcription."

// Layout selects the destination strategy.
type Layout string

const (
	LayoutFlat    Layout = "flat"
	LayoutDate    Layout = "date"
	LayoutType    Layout = "type"
	LayoutPattern Layout = "pattern"
)

// MatchMode selects how strictly an attachment must be referenced to count
// as linked.
type MatchMode string

const (
	MatchLenient MatchMode = "lenient"
	MatchStrict  MatchMode = "strict"
)

// StringList decodes from either a YAML/JSON list or a comma-separated
// string, trimming items and dropping empty ones.
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *StringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*l = splitList(node.Value)
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := node.Decode(&items); err != nil {
			return err
		}
		*l = cleanList(items)
		return nil
	default:
		return fmt.Errorf("settings: expected list or comma string at line %d", node.Line)
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *StringList) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*l = splitList(s)
		return nil
	}
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("settings: expected list or comma string: %w", err)
	}
	*l = cleanList(items)
	return nil
}

func splitList(s string) StringList {
	return cleanList(strings.Split(s, ","))
}

func cleanList(items []string) StringList {
	out := make(StringList, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}

// OCRSettings configures the OCR pipeline.
type OCRSettings struct {
	WatchFolder       string `yaml:"watch_folder" json:"watch_folder"`
	OutputFolder      string `yaml:"output_folder" json:"output_folder"`
	AutoProcess       bool   `yaml:"auto_process" json:"auto_process"`
	Model             string `yaml:"model" json:"model"`
	Prompt            string `yaml:"prompt" json:"prompt"`
	BatchSize         int    `yaml:"batch_size" json:"batch_size"`
	BatchDelaySeconds int    `yaml:"batch_delay_seconds" json:"batch_delay_seconds"`
}

// BatchDelay returns the pause between OCR batches.
func (o OCRSettings) BatchDelay() time.Duration {
	return time.Duration(o.BatchDelaySeconds) * time.Second
}

// Settings is the organizer settings document.
type Settings struct {
	AttachmentFolder                 string      `yaml:"attachment_folder" json:"attachment_folder"`
	IntervalMinutes                  int         `yaml:"interval_minutes" json:"interval_minutes"`
	AutoOrganizeOnLoad               bool        `yaml:"auto_organize_on_load" json:"auto_organize_on_load"`
	OnLoadDelaySeconds               int         `yaml:"on_load_delay_seconds" json:"on_load_delay_seconds"`
	HasConfirmedFirstRun             bool        `yaml:"has_confirmed_first_run" json:"has_confirmed_first_run"`
	AttachmentExtensions             StringList  `yaml:"attachment_extensions" json:"attachment_extensions"`
	ExcludedFolders                  StringList  `yaml:"excluded_folders" json:"excluded_folders"`
	MergeIgnoreFiles                 bool        `yaml:"merge_ignore_files" json:"merge_ignore_files"`
	Layout                           Layout      `yaml:"layout" json:"layout"`
	FolderPattern                    string      `yaml:"folder_pattern" json:"folder_pattern"`
	OrganizeByNote                   bool        `yaml:"organize_by_note" json:"organize_by_note"`
	ReorganizeInsideAttachmentFolder bool        `yaml:"reorganize_inside_attachment_folder" json:"reorganize_inside_attachment_folder"`
	IgnoreAllAttachmentSubfolders    bool        `yaml:"ignore_all_attachment_subfolders" json:"ignore_all_attachment_subfolders"`
	IgnoredAttachmentSubfolders      StringList  `yaml:"ignored_attachment_subfolders" json:"ignored_attachment_subfolders"`
	UnlinkedMatch                    MatchMode   `yaml:"unlinked_match" json:"unlinked_match"`
	PurgeUseTrash                    bool        `yaml:"purge_use_trash" json:"purge_use_trash"`
	PurgeDeleteEmptyFolders          bool        `yaml:"purge_delete_empty_folders" json:"purge_delete_empty_folders"`
	MaxDocumentBytes                 int64       `yaml:"max_document_bytes" json:"max_document_bytes"`
	UpdateLinks                      bool        `yaml:"update_links" json:"update_links"`
	OCR                              OCRSettings `yaml:"ocr" json:"ocr"`
}

// Defaults returns a fresh settings document with every default applied.
func Defaults() Settings {
	return Settings{
		AttachmentFolder:   DefaultAttachmentFolder,
		IntervalMinutes:    30,
		AutoOrganizeOnLoad: true,
		OnLoadDelaySeconds: 3,
		AttachmentExtensions: StringList{
			"png", "jpg", "jpeg", "gif", "bmp", "svg", "webp", "ico",
			"mp3", "wav", "ogg", "flac", "m4a",
			"mp4", "webm", "mov", "avi", "mkv",
			"pdf", "doc", "docx", "xls", "xlsx", "ppt", "pptx",
			"zip", "rar", "7z", "tar", "gz",
			"ttf", "otf", "woff", "woff2",
			"excalidraw",
		},
		ExcludedFolders:               StringList{".obsidian", ".trash", ".git", "node_modules"},
		MergeIgnoreFiles:              true,
		Layout:                        LayoutFlat,
		FolderPattern:                 "{{type}}/{{year}}",
		IgnoreAllAttachmentSubfolders: true,
		IgnoredAttachmentSubfolders:   StringList{},
		UnlinkedMatch:                 MatchLenient,
		PurgeUseTrash:                 true,
		PurgeDeleteEmptyFolders:       true,
		MaxDocumentBytes:              DefaultMaxDocumentBytes,
		UpdateLinks:                   true,
		OCR: OCRSettings{
			WatchFolder:       "_Inbox",
			OutputFolder:      "_OCR",
			Model:             "gemini-2.0-flash",
			Prompt:            defaultOCRPrompt,
			BatchSize:         5,
			BatchDelaySeconds: 2,
		},
	}
}

// Clone returns a deep copy of s.
func (s Settings) Clone() Settings {
	c := s
	c.AttachmentExtensions = append(StringList(nil), s.AttachmentExtensions...)
	c.ExcludedFolders = append(StringList(nil), s.ExcludedFolders...)
	c.IgnoredAttachmentSubfolders = append(StringList(nil), s.IgnoredAttachmentSubfolders...)
	return c
}

// Validate checks the document strictly. It is applied to updates; loaded
// documents are repaired by Sanitize instead.
func (s *Settings) Validate() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.Layout, validation.Required, validation.In(LayoutFlat, LayoutDate, LayoutType, LayoutPattern)),
		validation.Field(&s.FolderPattern, validation.When(s.Layout == LayoutPattern, validation.Required)),
		validation.Field(&s.UnlinkedMatch, validation.Required, validation.In(MatchLenient, MatchStrict)),
		validation.Field(&s.IntervalMinutes, validation.Min(0)),
		validation.Field(&s.OnLoadDelaySeconds, validation.Min(0)),
		validation.Field(&s.MaxDocumentBytes, validation.Min(int64(1))),
		validation.Field(&s.OCR),
	)
}

// Validate checks the OCR section.
func (o OCRSettings) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.Model, validation.Required),
		validation.Field(&o.BatchSize, validation.Min(1)),
		validation.Field(&o.BatchDelaySeconds, validation.Min(0)),
	)
}

// Sanitize replaces invalid values with their defaults and reports each
// correction it made.
func (s *Settings) Sanitize() []string {
	d := Defaults()
	var fixes []string
	fix := func(key string, bad any) {
		fixes = append(fixes, fmt.Sprintf("%s: invalid value %v, using default", key, bad))
	}
	switch s.Layout {
	case LayoutFlat, LayoutDate, LayoutType, LayoutPattern:
	default:
		fix("layout", s.Layout)
		s.Layout = d.Layout
	}
	if s.Layout == LayoutPattern && strings.TrimSpace(s.FolderPattern) == "" {
		fix("folder_pattern", `""`)
		s.FolderPattern = d.FolderPattern
	}
	switch s.UnlinkedMatch {
	case MatchLenient, MatchStrict:
	default:
		fix("unlinked_match", s.UnlinkedMatch)
		s.UnlinkedMatch = d.UnlinkedMatch
	}
	if s.OnLoadDelaySeconds < 0 {
		fix("on_load_delay_seconds", s.OnLoadDelaySeconds)
		s.OnLoadDelaySeconds = d.OnLoadDelaySeconds
	}
	if s.MaxDocumentBytes <= 0 {
		fix("max_document_bytes", s.MaxDocumentBytes)
		s.MaxDocumentBytes = d.MaxDocumentBytes
	}
	if s.OCR.Model == "" {
		fix("ocr.model", `""`)
		s.OCR.Model = d.OCR.Model
	}
	if s.OCR.BatchSize < 1 {
		fix("ocr.batch_size", s.OCR.BatchSize)
		s.OCR.BatchSize = d.OCR.BatchSize
	}
	if s.OCR.BatchDelaySeconds < 0 {
		fix("ocr.batch_delay_seconds", s.OCR.BatchDelaySeconds)
		s.OCR.BatchDelaySeconds = d.OCR.BatchDelaySeconds
	}
	if s.OCR.Prompt == "" {
		s.OCR.Prompt = d.OCR.Prompt
	}
	return fixes
}

// AttachmentRoot returns the normalized destination folder, falling back to
// DefaultAttachmentFolder when the configured value names the vault root.
func (s Settings) AttachmentRoot() string {
	if p := vaultpath.Normalize(s.AttachmentFolder); p != "" {
		return p
	}
	return DefaultAttachmentFolder
}

// Extensions returns the allow-list as a set of lower-case extensions
// without leading dots.
func (s Settings) Extensions() map[string]struct{} {
	set := make(map[string]struct{}, len(s.AttachmentExtensions))
	for _, e := range s.AttachmentExtensions {
		e = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), "."))
		if e != "" {
			set[e] = struct{}{}
		}
	}
	return set
}

// ExcludedPaths returns the normalized exclude-list, dropping entries that
// normalize to the vault root.
func (s Settings) ExcludedPaths() []string {
	return normalizeAll(s.ExcludedFolders)
}

// IgnoredSubfolders returns the normalized ignore-list for subfolders of the
// attachment folder, relative to it.
func (s Settings) IgnoredSubfolders() []string {
	return normalizeAll(s.IgnoredAttachmentSubfolders)
}

func normalizeAll(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if p := vaultpath.Normalize(it); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Interval returns the automatic organize interval, zero when disabled.
func (s Settings) Interval() time.Duration {
	if s.IntervalMinutes <= 0 {
		return 0
	}
	return time.Duration(s.IntervalMinutes) * time.Minute
}

// OnLoadDelay returns how long serve mode waits before the on-load pass.
func (s Settings) OnLoadDelay() time.Duration {
	return time.Duration(s.OnLoadDelaySeconds) * time.Second
}

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type sample struct {
	Name  string `yaml:"name"`
	Count int    `yaml:"count"`
	Keep  string `yaml:"keep"`
}

func TestLoad_MergesOverDefaultsAndExpandsEnv(t *testing.T) {
	t.Setenv("ATTIC_SAMPLE_NAME", "from-env")
	path := filepath.Join(t.TempDir(), "c.yaml")
	if err := os.WriteFile(path, []byte("name: ${ATTIC_SAMPLE_NAME}\ncount: 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := sample{Keep: "default"}
	if err := Load(path, &s); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Name != "from-env" || s.Count != 3 || s.Keep != "default" {
		t.Errorf("got %+v", s)
	}
}

func TestLoadPlain_KeepsDollarSigns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	_ = os.WriteFile(path, []byte("name: costs $HOME\n"), 0o644)
	var s sample
	if err := LoadPlain(path, &s); err != nil {
		t.Fatalf("LoadPlain: %v", err)
	}
	if s.Name != "costs $HOME" {
		t.Errorf("name = %q", s.Name)
	}
}

func TestLoad_MissingFileWrapsNotExist(t *testing.T) {
	var s sample
	err := Load(filepath.Join(t.TempDir(), "missing.yaml"), &s)
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want ErrNotExist", err)
	}
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "s.yaml")
	in := sample{Name: "x", Count: 7}
	if err := Save(path, &in); err != nil {
		t.Fatalf("Save: %v", err)
	}
	var out sample
	if err := LoadPlain(path, &out); err != nil {
		t.Fatalf("LoadPlain: %v", err)
	}
	if out != in {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
	matches, _ := filepath.Glob(filepath.Join(filepath.Dir(path), ".config-tmp-*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

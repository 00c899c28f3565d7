package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func ptr[T any](v T) *T { return &v }

func TestFileStore_DefaultsWhenMissing(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "config.toml"))

	got, err := s.Get(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got != DefaultClassifier() {
		t.Fatalf("got %+v, want defaults %+v", got, DefaultClassifier())
	}
}

func TestFileStore_SetMergesPartial(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	s := NewFileStore(path)
	ctx := context.Background()

	if _, err := s.Set(ctx, Patch{EndpointBaseURL: ptr("https://clf.example.com"), Credential: ptr("sekrit")}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Set(ctx, Patch{Threshold: ptr(0.7)}); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.Threshold != 0.7 {
		t.Errorf("Threshold: got %v, want 0.7", got.Threshold)
	}
	if got.EndpointBaseURL != "https://clf.example.com" {
		t.Errorf("EndpointBaseURL changed: %q", got.EndpointBaseURL)
	}
	if got.Credential != "sekrit" {
		t.Errorf("Credential changed: %q", got.Credential)
	}

	// A fresh store over the same file sees the persisted record.
	again, err := NewFileStore(path).Get(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if again != got {
		t.Fatalf("reloaded %+v, want %+v", again, got)
	}
}

func TestFileStore_PreservesOtherTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	settings := Default()
	settings.Bridge.ListenAddr = "127.0.0.1:9999"
	if err := settings.SaveFile(path); err != nil {
		t.Fatal(err)
	}

	if _, err := NewFileStore(path).Set(context.Background(), Patch{Threshold: ptr(0.9)}); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Bridge.ListenAddr != "127.0.0.1:9999" {
		t.Fatalf("bridge table lost: %q", loaded.Bridge.ListenAddr)
	}
	if loaded.Classifier.Threshold == nil || *loaded.Classifier.Threshold != 0.9 {
		t.Fatalf("threshold not persisted: %+v", loaded.Classifier)
	}
}

func TestFileStore_PersistedValuesWin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := "version = 1\n[classifier]\nthreshold = 0.25\n"
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}

	got, err := NewFileStore(path).Get(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got.Threshold != 0.25 {
		t.Errorf("Threshold: got %v, want 0.25", got.Threshold)
	}
	if got.EndpointBaseURL != "http://localhost:8000" {
		t.Errorf("EndpointBaseURL should default, got %q", got.EndpointBaseURL)
	}
}

func TestSet_RejectsInvalid(t *testing.T) {
	s := NewMemoryStore(Patch{})
	ctx := context.Background()

	cases := []Patch{
		{Threshold: ptr(1.5)},
		{Threshold: ptr(-0.1)},
		{EndpointBaseURL: ptr("")},
		{Provider: ptr("carrier-pigeon")},
	}
	for _, p := range cases {
		if _, err := s.Set(ctx, p); err == nil {
			t.Errorf("Set(%+v): expected validation error", p)
		} else if !strings.Contains(err.Error(), "invalid classifier config") {
			t.Errorf("unexpected error: %v", err)
		}
	}

	got, _ := s.Get(ctx)
	if got != DefaultClassifier() {
		t.Fatalf("rejected patches must not persist, got %+v", got)
	}
}

func TestMemoryStore_Merge(t *testing.T) {
	s := NewMemoryStore(Patch{Credential: ptr("k")})
	ctx := context.Background()

	got, err := s.Set(ctx, Patch{Threshold: ptr(0.7)})
	if err != nil {
		t.Fatal(err)
	}
	want := DefaultClassifier()
	want.Threshold = 0.7
	want.Credential = "k"
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestLoadFile_KeepsDefaultsForMissingTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("version = 1\n[log]\nlevel = \"debug\"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	s, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if s.Log.Level != "debug" {
		t.Errorf("Log.Level: got %q", s.Log.Level)
	}
	if s.Scanner.MaxConcurrentScans != 4 {
		t.Errorf("Scanner defaults lost: %+v", s.Scanner)
	}
	if s.CacheTTL() != DefaultCacheTTL {
		t.Errorf("CacheTTL: got %v", s.CacheTTL())
	}
}

func TestParseAssignment(t *testing.T) {
	p, err := ParseAssignment("threshold=0.7")
	if err != nil || p.Threshold == nil || *p.Threshold != 0.7 {
		t.Fatalf("threshold: %+v %v", p, err)
	}

	p, err = ParseAssignment(" apiBaseUrl = https://clf.example.com ")
	if err != nil || p.EndpointBaseURL == nil || *p.EndpointBaseURL != "https://clf.example.com" {
		t.Fatalf("apiBaseUrl: %+v %v", p, err)
	}

	// an empty value is a real assignment, e.g. clearing the credential
	p, err = ParseAssignment("apiKey=")
	if err != nil || p.Credential == nil || *p.Credential != "" {
		t.Fatalf("apiKey: %+v %v", p, err)
	}

	for _, bad := range []string{"threshold", "threshold=high", "colour=blue"} {
		if _, err := ParseAssignment(bad); err == nil {
			t.Errorf("ParseAssignment(%q): expected error", bad)
		}
	}

	merged := Patch{Model: ptr("a")}.Merge(Patch{Threshold: ptr(0.1)})
	if merged.Model == nil || merged.Threshold == nil {
		t.Fatalf("Merge lost a field: %+v", merged)
	}
}

// cache_test.go - Unit Tests fuer das Cache-Layout
package huggingface

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestGetCacheDir testet die Ermittlung des Cache-Verzeichnisses
func TestGetCacheDir(t *testing.T) {
	tests := []struct {
		name         string
		hfHubCache   string
		hfHome       string
		wantContains string
	}{
		{
			name:         "HF_HUB_CACHE hat Prioritaet",
			hfHubCache:   "/custom/cache/path",
			hfHome:       "/other/path",
			wantContains: "/custom/cache/path",
		},
		{
			name:         "HF_HOME wird verwendet wenn HF_HUB_CACHE leer",
			hfHome:       "/hf/home",
			wantContains: filepath.Join("/hf/home", "hub"),
		},
		{
			name:         "Default wird verwendet wenn beide leer",
			wantContains: "huggingface",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("HF_HUB_CACHE", tt.hfHubCache)
			t.Setenv(EnvHFHome, tt.hfHome)

			if result := GetCacheDir(); !strings.Contains(result, tt.wantContains) {
				t.Errorf("GetCacheDir() = %v, sollte %v enthalten", result, tt.wantContains)
			}
		})
	}
}

// TestCacheDirRoundTrip testet Hin- und Rueckkonvertierung der Verzeichnisnamen
func TestCacheDirRoundTrip(t *testing.T) {
	tests := []struct {
		modelID  string
		cacheDir string
	}{
		{"google/vit-base-patch16-224-in21k", "models--google--vit-base-patch16-224-in21k"},
		{"google-t5/t5-small", "models--google-t5--t5-small"},
		{"nomic-ai/nomic-embed-vision-v1.5", "models--nomic-ai--nomic-embed-vision-v1.5"},
	}

	for _, tt := range tests {
		t.Run(tt.modelID, func(t *testing.T) {
			if got := modelIDToCacheDir(tt.modelID); got != tt.cacheDir {
				t.Errorf("modelIDToCacheDir(%q) = %q, erwartet %q", tt.modelID, got, tt.cacheDir)
			}
			if got := cacheDirToModelID(tt.cacheDir); got != tt.modelID {
				t.Errorf("cacheDirToModelID(%q) = %q, erwartet %q", tt.cacheDir, got, tt.modelID)
			}
		})
	}
}

// TestCachedModels prueft Auflistung, Revisionen und Groessen
func TestCachedModels(t *testing.T) {
	dir := t.TempDir()
	c := NewClient(WithCacheDir(dir))

	files := map[string]string{
		"models--google-t5--t5-small/snapshots/main/config.json":                  "{}",
		"models--google-t5--t5-small/snapshots/main/tokenizer.json":               "{\"a\":1}",
		"models--google--vit-base-patch16-224-in21k/snapshots/abc123/config.json": "{}",
	}
	for name, content := range files {
		p := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	// Fremde Verzeichnisse werden ignoriert
	os.MkdirAll(filepath.Join(dir, "datasets--foo--bar"), 0o755)

	models, err := c.CachedModels()
	if err != nil {
		t.Fatal(err)
	}
	if len(models) != 2 {
		t.Fatalf("%d modelle, erwartet 2", len(models))
	}

	if models[0].ModelID != "google-t5/t5-small" || models[0].FileCount != 2 || models[0].TotalSize != 9 {
		t.Errorf("erstes modell = %+v", models[0])
	}
	if models[1].ModelID != "google/vit-base-patch16-224-in21k" || len(models[1].Revisions) != 1 || models[1].Revisions[0] != "abc123" {
		t.Errorf("zweites modell = %+v", models[1])
	}
}

// TestCachedModelsMissingDir liefert eine leere Liste ohne Fehler
func TestCachedModelsMissingDir(t *testing.T) {
	c := NewClient(WithCacheDir(filepath.Join(t.TempDir(), "gibt-es-nicht")))
	models, err := c.CachedModels()
	if err != nil || len(models) != 0 {
		t.Errorf("CachedModels() = %v, %v", models, err)
	}
}

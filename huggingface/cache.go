// cache.go - Cache-Layout fuer HuggingFace Modelle
// Kompatibel mit der Python huggingface_hub Cache-Struktur
// (models--owner--name/snapshots/<revision>/<datei>).
package huggingface

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
)

// Cache-Konstanten
const (
	DefaultCacheSubdir = "huggingface/hub"
	CacheSnapshotDir   = "snapshots"
	CacheModelPrefix   = "models--"
)

// CachedModel repraesentiert ein gecachtes Modell
type CachedModel struct {
	ModelID   string
	CacheDir  string
	Revisions []string
	TotalSize int64
	FileCount int
}

// GetCacheDir gibt das Cache-Verzeichnis zurueck
func GetCacheDir() string {
	if cacheDir := os.Getenv("HF_HUB_CACHE"); cacheDir != "" {
		return cacheDir
	}
	if hfHome := os.Getenv(EnvHFHome); hfHome != "" {
		return filepath.Join(hfHome, "hub")
	}
	return getDefaultCacheDir()
}

func getDefaultCacheDir() string {
	var baseDir string
	switch runtime.GOOS {
	case "windows":
		if userProfile := os.Getenv("USERPROFILE"); userProfile != "" {
			baseDir = filepath.Join(userProfile, ".cache")
		} else {
			baseDir = filepath.Join(os.TempDir(), "huggingface_cache")
		}
	default:
		if xdgCache := os.Getenv("XDG_CACHE_HOME"); xdgCache != "" {
			baseDir = xdgCache
		} else if home, err := os.UserHomeDir(); err == nil {
			baseDir = filepath.Join(home, ".cache")
		} else {
			baseDir = filepath.Join(os.TempDir(), "huggingface_cache")
		}
	}
	return filepath.Join(baseDir, DefaultCacheSubdir)
}

// CachedModels listet alle Modelle im Cache des Clients, sortiert nach ID
func (c *Client) CachedModels() ([]CachedModel, error) {
	entries, err := os.ReadDir(c.cacheDir)
	if os.IsNotExist(err) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("cache lesen fehlgeschlagen: %w", err)
	}

	var models []CachedModel
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), CacheModelPrefix) {
			continue
		}
		modelPath := filepath.Join(c.cacheDir, entry.Name())
		m := CachedModel{ModelID: cacheDirToModelID(entry.Name()), CacheDir: modelPath}
		if revisions, err := os.ReadDir(filepath.Join(modelPath, CacheSnapshotDir)); err == nil {
			for _, rev := range revisions {
				if rev.IsDir() {
					m.Revisions = append(m.Revisions, rev.Name())
				}
			}
		}
		m.TotalSize, m.FileCount = getDirSizeAndCount(modelPath)
		models = append(models, m)
	}

	slices.SortFunc(models, func(a, b CachedModel) int { return strings.Compare(a.ModelID, b.ModelID) })
	return models, nil
}

func modelIDToCacheDir(modelID string) string {
	return CacheModelPrefix + strings.ReplaceAll(modelID, "/", "--")
}

func cacheDirToModelID(cacheDir string) string {
	return strings.Replace(strings.TrimPrefix(cacheDir, CacheModelPrefix), "--", "/", 1)
}

func getDirSizeAndCount(path string) (int64, int) {
	var size int64
	var count int
	filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			size += info.Size()
			count++
		}
		return nil
	})
	return size, count
}

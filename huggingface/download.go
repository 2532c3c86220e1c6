// download.go - Parallele Downloads mehrerer Repo-Dateien
// Laedt die Dateien eines Modells (config.json, Gewichte, Tokenizer)
// gleichzeitig ueber eine errgroup mit begrenzter Parallelitaet.
package huggingface

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// DefaultParallelism begrenzt gleichzeitige Datei-Downloads
const DefaultParallelism = 4

// ModelFile beschreibt eine angeforderte Datei eines Repositories
type ModelFile struct {
	Name     string
	Optional bool // fehlende Datei (404) ist kein Fehler
}

// Required fordert eine Datei an, die vorhanden sein muss
func Required(name string) ModelFile { return ModelFile{Name: name} }

// Optional fordert eine Datei an, die fehlen darf
func Optional(name string) ModelFile { return ModelFile{Name: name, Optional: true} }

// DownloadModelFiles laedt die angegebenen Dateien parallel in den Cache.
// Rueckgabe: Snapshot-Verzeichnis und die tatsaechlich vorhandenen Dateien
// (Dateiname -> lokaler Pfad).
func (c *Client) DownloadModelFiles(ctx context.Context, modelID, revision string, files ...ModelFile) (string, map[string]string, error) {
	if err := validateModelID(modelID); err != nil {
		return "", nil, err
	}
	if revision == "" {
		revision = DefaultRevision
	}

	paths := make([]string, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(DefaultParallelism)
	for i, f := range files {
		g.Go(func() error {
			p, err := c.DownloadFile(gctx, modelID, f.Name, revision)
			if err != nil {
				if f.Optional && errors.Is(err, ErrFileNotFound) {
					slog.Debug("optional file not in repository", "model", modelID, "file", f.Name)
					return nil
				}
				return fmt.Errorf("download von %s fehlgeschlagen: %w", f.Name, err)
			}
			paths[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", nil, err
	}

	found := make(map[string]string, len(files))
	for i, f := range files {
		if paths[i] != "" {
			found[f.Name] = paths[i]
		}
	}
	return c.SnapshotDir(modelID, revision), found, nil
}

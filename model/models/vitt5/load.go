// load.go - Aufbau des Caption-Modells beim Start
//
// Enthaelt:
// - LoadStateDict: Toleranter Checkpoint-Import (fehlend/unerwartet = Warnung)
// - Load: Teilmodelle vom Hub, Projektion, Tokenizer und Trainings-Checkpoint
package vitt5

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/imagecaption/captioner/checkpoint"
	"github.com/imagecaption/captioner/huggingface"
	"github.com/imagecaption/captioner/model"
	"github.com/imagecaption/captioner/model/models/t5"
	"github.com/imagecaption/captioner/model/models/vit"
	"github.com/imagecaption/captioner/sample"
	"github.com/imagecaption/captioner/tokenizer"
	"github.com/imagecaption/captioner/vision"
)

// Schluessel, die ein Checkpoint des kompletten Trainingsmodells mitbringt,
// die der Caption-Pfad aber nie liest (T5-Encoder, doppelte Decoder-Embeddings,
// ViT-Pooler)
var ignoredPrefixes = []string{
	"t5_decoder.encoder.",
	"t5_decoder.decoder.embed_tokens.",
	"vit_encoder.pooler.",
}

// LoadStateDict uebernimmt alle passenden Tensoren aus sd. Fehlende und
// unerwartete Schluessel landen im Report, falsche Formen sind ein Fehler.
func (m *Model) LoadStateDict(sd model.StateDict) (model.LoadReport, error) {
	filtered := make(model.StateDict, len(sd))
	var ignored []string
	for k, v := range sd {
		if hasIgnoredPrefix(k) {
			ignored = append(ignored, k)
			continue
		}
		filtered[k] = v
	}

	report, err := model.Populate(m, filtered)
	if err != nil {
		return model.LoadReport{}, err
	}
	if len(ignored) > 0 {
		slices.Sort(ignored)
		report.Ignored = ignored
	}
	return report, nil
}

func hasIgnoredPrefix(key string) bool {
	for _, p := range ignoredPrefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

// LoadOptions beschreibt Herkunft der Teilmodelle und des Checkpoints
type LoadOptions struct {
	EncoderRepo    string
	DecoderRepo    string
	Revision       string
	CheckpointPath string
	CheckpointURL  string
	Hub            *huggingface.Client
	Seed           uint64 // Initialisierung der Projektion ohne Checkpoint
}

// Loaded ist das betriebsbereite Modell. Nach Load wird nichts mehr veraendert.
type Loaded struct {
	Model        *Model
	Tokenizer    *tokenizer.Tokenizer
	Generation   sample.Config
	Preprocessor vision.Preprocessor

	// Checkpoint ist false wenn kein Trainings-Checkpoint angewendet wurde
	Checkpoint bool
	Report     model.LoadReport
}

// Load baut das Modell wie beim Training: vortrainierter ViT und T5,
// zufaellige Projektion, dann der Trainings-Checkpoint falls vorhanden.
// Der Checkpoint wirkt auf das ganze Modell wie ein vollstaendiges
// load_state_dict: vit_encoder.*-Schluessel ersetzen auch die vortrainierten
// ViT-Gewichte, nicht nur Projektion und Decoder. Ausgenommen sind nur die
// Praefixe in ignoredPrefixes.
func Load(ctx context.Context, opts LoadOptions) (*Loaded, error) {
	start := time.Now()
	hub := opts.Hub
	if hub == nil {
		hub = huggingface.NewClient()
	}

	weights := []huggingface.ModelFile{
		huggingface.Optional(checkpoint.SafetensorsFile),
		huggingface.Optional(checkpoint.PyTorchFile),
	}

	var encDir, decDir string
	var decFiles map[string]string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		encDir, _, err = hub.DownloadModelFiles(gctx, opts.EncoderRepo, opts.Revision,
			append([]huggingface.ModelFile{huggingface.Required("config.json")}, weights...)...)
		return err
	})
	g.Go(func() (err error) {
		decDir, decFiles, err = hub.DownloadModelFiles(gctx, opts.DecoderRepo, opts.Revision,
			append([]huggingface.ModelFile{huggingface.Required("config.json"), huggingface.Required("tokenizer.json")}, weights...)...)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("vortrainierte modelle laden fehlgeschlagen: %w", err)
	}

	enc, err := loadEncoder(encDir)
	if err != nil {
		return nil, err
	}
	dec, err := loadDecoder(decDir)
	if err != nil {
		return nil, err
	}

	tok, err := tokenizer.Load(decFiles["tokenizer.json"])
	if err != nil {
		return nil, err
	}

	// Start-Token ist das Pad-Token, wie beim Training konfiguriert
	dec.DecoderStartTokenID = tok.PadID()
	dec.EOSTokenID = tok.EOSID()
	dec.PadTokenID = tok.PadID()

	gen := sample.DefaultConfig()
	gen.DecoderStartTokenID = tok.PadID()
	gen.EOSTokenID = tok.EOSID()
	gen.PadTokenID = tok.PadID()
	if err := gen.Validate(dec.VocabSize); err != nil {
		return nil, err
	}

	m := NewBridged(enc, dec, rand.New(rand.NewPCG(opts.Seed, opts.Seed)))

	pre := vision.DefaultPreprocessor()
	pre.Size = enc.ImageSize

	loaded := &Loaded{Model: m, Tokenizer: tok, Generation: gen, Preprocessor: pre}

	present, err := checkpoint.Ensure(ctx, opts.CheckpointPath, opts.CheckpointURL, hub)
	if err != nil {
		return nil, err
	}

	if present {
		sd, err := checkpoint.Load(opts.CheckpointPath)
		if err != nil {
			return nil, err
		}
		report, err := m.LoadStateDict(sd)
		if err != nil {
			return nil, fmt.Errorf("checkpoint anwenden fehlgeschlagen: %w", err)
		}
		if len(report.Missing) > 0 {
			slog.Warn("checkpoint missing keys", "count", len(report.Missing), "keys", report.Missing)
		}
		if len(report.Unexpected) > 0 {
			slog.Warn("checkpoint unexpected keys", "count", len(report.Unexpected), "keys", report.Unexpected)
		}
		slog.Info("checkpoint loaded", "path", opts.CheckpointPath, "tensors", report.Loaded, "ignored", len(report.Ignored))
		loaded.Checkpoint, loaded.Report = true, report
	} else {
		slog.Warn("no checkpoint available, using pretrained submodels with random projection; captions will be degraded")
	}

	slog.Info("caption model ready",
		"encoder", opts.EncoderRepo, "decoder", opts.DecoderRepo,
		"hidden", enc.HiddenWidth(), "d_model", dec.EmbeddingWidth(), "duration", time.Since(start))
	return loaded, nil
}

func loadEncoder(dir string) (*vit.Model, error) {
	c, err := vit.LoadConfig(filepath.Join(dir, "config.json"))
	if err != nil {
		return nil, err
	}
	enc, err := vit.New(c)
	if err != nil {
		return nil, err
	}
	if err := applyPretrained(enc, dir, "vit."); err != nil {
		return nil, fmt.Errorf("vit: %w", err)
	}
	return enc, nil
}

func loadDecoder(dir string) (*t5.Model, error) {
	c, err := t5.LoadConfig(filepath.Join(dir, "config.json"))
	if err != nil {
		return nil, err
	}
	dec, err := t5.New(c)
	if err != nil {
		return nil, err
	}
	if err := applyPretrained(dec, dir, ""); err != nil {
		return nil, fmt.Errorf("t5: %w", err)
	}
	return dec, nil
}

// applyPretrained laedt die Gewichte eines Hub-Snapshots in v. Manche
// Repos speichern die Basisgewichte unter einem Modell-Praefix (z.B. "vit.").
func applyPretrained(v any, dir, basePrefix string) error {
	sd, err := checkpoint.LoadPretrained(dir)
	if err != nil {
		return err
	}
	if basePrefix != "" {
		if inner := sd.WithPrefix(basePrefix); len(inner) > 0 {
			sd = inner
		}
	}

	report, err := model.Populate(v, sd)
	if err != nil {
		return err
	}
	if len(report.Missing) > 0 {
		slog.Warn("pretrained weights incomplete", "dir", dir, "missing", report.Missing)
	}
	slog.Debug("pretrained weights applied", "dir", dir, "loaded", report.Loaded, "unused", len(report.Unexpected))
	return nil
}

// runner.go - Caption-Erzeugung mit dem lokalen Modell
//
// Enthaelt:
// - CaptionModel: Schnittstelle des Modells (vitt5.Model erfuellt sie)
// - Captioner: Vorverarbeitung, Beam-Suche und Dekodierung pro Anfrage
// - Overrides: Anfrage-spezifische max_length/num_beams
//
// Das Modell ist nach dem Laden nur lesbar und wird von allen Anfragen
// geteilt. Die Slots begrenzen nur die gleichzeitige Rechenlast.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/imagecaption/captioner/metrics"
	"github.com/imagecaption/captioner/ml"
	"github.com/imagecaption/captioner/model/models/vitt5"
	"github.com/imagecaption/captioner/sample"
	"github.com/imagecaption/captioner/tokenizer"
	"github.com/imagecaption/captioner/vision"
)

// Grenzen fuer Anfrage-Parameter. Eine Caption braucht neben dem Start-Token
// mindestens ein erzeugtes Token, daher beginnt max_length bei 2.
const (
	MinMaxLength   = 2
	MaxLengthLimit = 128
	NumBeamsLimit  = 16
)

// ErrOverride wird bei Anfrage-Parametern ausserhalb der Grenzen zurueckgegeben
var ErrOverride = errors.New("runner: override out of range")

// CaptionModel erzeugt Token-IDs fuer ein vorverarbeitetes Bild
type CaptionModel interface {
	GenerateCaption(ctx context.Context, pixels *ml.Tensor, cfg sample.Config) ([]int32, error)
}

// Overrides ueberschreibt Laenge und Beam-Anzahl, 0 bedeutet Standardwert
type Overrides struct {
	MaxLength int
	NumBeams  int
}

// Captioner erzeugt Captions aus Bilddaten
type Captioner struct {
	model        CaptionModel
	tokenizer    *tokenizer.Tokenizer
	preprocessor vision.Preprocessor
	generation   sample.Config
	slots        *semaphore.Weighted
}

// New erzeugt einen Captioner mit parallel gleichzeitigen Inferenz-Slots
func New(l *vitt5.Loaded, parallel int) *Captioner {
	return newCaptioner(l.Model, l.Tokenizer, l.Preprocessor, l.Generation, parallel)
}

func newCaptioner(m CaptionModel, tok *tokenizer.Tokenizer, pre vision.Preprocessor, gen sample.Config, parallel int) *Captioner {
	return &Captioner{
		model:        m,
		tokenizer:    tok,
		preprocessor: pre,
		generation:   gen,
		slots:        semaphore.NewWeighted(int64(max(parallel, 1))),
	}
}

// Generation gibt die Ladezeit-Dekodierparameter zurueck
func (c *Captioner) Generation() sample.Config {
	return c.generation
}

// Generate erzeugt eine Caption. Unlesbare Bilder liefern *vision.DecodeError.
func (c *Captioner) Generate(ctx context.Context, image []byte, o Overrides) (caption string, err error) {
	start := time.Now()
	defer func() {
		status := metrics.StatusOK
		if err != nil {
			status = metrics.StatusError
		}
		metrics.CaptionDuration.WithLabelValues(metrics.SourceLocal).Observe(time.Since(start).Seconds())
		metrics.CaptionTotal.WithLabelValues(metrics.SourceLocal, status).Inc()
	}()

	if o.MaxLength < 0 || (o.MaxLength > 0 && o.MaxLength < MinMaxLength) || o.MaxLength > MaxLengthLimit {
		return "", fmt.Errorf("%w: max_length %d (%d-%d)", ErrOverride, o.MaxLength, MinMaxLength, MaxLengthLimit)
	}
	if o.NumBeams < 0 || o.NumBeams > NumBeamsLimit {
		return "", fmt.Errorf("%w: num_beams %d (1-%d)", ErrOverride, o.NumBeams, NumBeamsLimit)
	}
	cfg := c.generation.WithOverrides(o.MaxLength, o.NumBeams)

	img, err := c.preprocessor.Preprocess(image)
	if err != nil {
		return "", err
	}

	if err := c.slots.Acquire(ctx, 1); err != nil {
		if errors.Is(err, context.Canceled) {
			slog.Info("aborting caption request due to client closing the connection")
		}
		return "", err
	}
	metrics.InferenceSlotsBusy.Inc()
	defer func() {
		metrics.InferenceSlotsBusy.Dec()
		c.slots.Release(1)
	}()

	ids, err := c.model.GenerateCaption(ctx, img.Pixels, cfg)
	if err != nil {
		return "", fmt.Errorf("caption generation: %w", err)
	}

	caption = c.tokenizer.Decode(ids, true)
	slog.Debug("caption generated",
		"format", img.Format, "width", img.SourceWidth, "height", img.SourceHeight,
		"max_length", cfg.MaxLength, "num_beams", cfg.NumBeams,
		"tokens", len(ids), "caption", caption, "duration", time.Since(start))
	return caption, nil
}

// Package vitt5 verbindet einen ViT-Encoder ueber eine lineare Projektion
// mit einem T5-Decoder zu einem Bildbeschreibungsmodell.
//
// Hauptkomponenten:
// - Model: Encoder, Projektion und Decoder mit den Checkpoint-Praefixen
// - New/NewBridged: Konstruktion mit dynamischer Breitenpruefung
// - GenerateCaption: Beam-Suche ueber den projizierten Bildzustaenden
package vitt5

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/imagecaption/captioner/logutil"
	"github.com/imagecaption/captioner/ml"
	"github.com/imagecaption/captioner/ml/nn"
	"github.com/imagecaption/captioner/model/models/t5"
	"github.com/imagecaption/captioner/model/models/vit"
	"github.com/imagecaption/captioner/sample"
)

// ShapeMismatchError meldet Projektionsbreiten, die nicht zu Encoder oder Decoder passen
type ShapeMismatchError struct {
	Side string // "input" (Encoder-Breite) oder "output" (Decoder-Breite)
	Want int
	Got  int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("projection %s width %d, erwartet %d", e.Side, e.Got, e.Want)
}

// Is erlaubt errors.Is(err, ml.ErrShape)
func (e *ShapeMismatchError) Is(target error) bool {
	return target == ml.ErrShape
}

// Model ist das kombinierte Bild-zu-Text Modell
type Model struct {
	Encoder    *vit.Model `pt:"vit_encoder"`
	Projection *nn.Linear `pt:"projection"`
	Decoder    *t5.Model  `pt:"t5_decoder"`
}

// New kombiniert die Teilmodelle. Die Projektion muss die Encoder-Breite
// annehmen und die Decoder-Breite liefern.
func New(enc *vit.Model, proj *nn.Linear, dec *t5.Model) (*Model, error) {
	if proj.In() != enc.HiddenWidth() {
		return nil, &ShapeMismatchError{Side: "input", Want: enc.HiddenWidth(), Got: proj.In()}
	}
	if proj.Out() != dec.EmbeddingWidth() {
		return nil, &ShapeMismatchError{Side: "output", Want: dec.EmbeddingWidth(), Got: proj.Out()}
	}
	return &Model{Encoder: enc, Projection: proj, Decoder: dec}, nil
}

// NewBridged erzeugt eine zufaellig initialisierte Projektion aus den
// Breiten beider Teilmodelle
func NewBridged(enc *vit.Model, dec *t5.Model, rng *rand.Rand) *Model {
	return &Model{
		Encoder:    enc,
		Projection: nn.NewLinear(enc.HiddenWidth(), dec.EmbeddingWidth(), rng),
		Decoder:    dec,
	}
}

// encodeAndProject liefert [seq, d_model], die Decoder sehen das wie eigene Encoder-Ausgaben
func (m *Model) encodeAndProject(pixels *ml.Tensor) (*ml.Tensor, error) {
	hidden, err := m.Encoder.Encode(pixels)
	if err != nil {
		return nil, err
	}
	projected, err := m.Projection.Forward(hidden)
	if err != nil {
		return nil, err
	}
	if slog.Default().Enabled(context.Background(), logutil.LevelTrace) {
		logutil.Trace("projected encoder states", "shape", projected.Shape, "values", ml.Dump(projected, ml.DumpWithEdgeItems(2), ml.DumpWithPrecision(3)))
	}
	return projected, nil
}

// GenerateCaption dekodiert eine Token-Folge (ohne Start- und EOS-Token) fuer ein Bild
func (m *Model) GenerateCaption(ctx context.Context, pixels *ml.Tensor, cfg sample.Config) ([]int32, error) {
	if err := cfg.Validate(m.Decoder.VocabSize); err != nil {
		return nil, err
	}

	states, err := m.encodeAndProject(pixels)
	if err != nil {
		return nil, fmt.Errorf("bild kodieren fehlgeschlagen: %w", err)
	}

	cache, err := m.Decoder.Prepare(states)
	if err != nil {
		return nil, err
	}

	best, err := sample.BeamSearch(ctx, cfg, func(_ context.Context, prefix []int32) ([]float32, error) {
		return m.Decoder.Logits(cache, prefix)
	})
	if err != nil {
		return nil, err
	}
	return best.Tokens, nil
}

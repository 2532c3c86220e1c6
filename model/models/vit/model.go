package vit

import (
	"fmt"

	"github.com/imagecaption/captioner/ml"
	"github.com/imagecaption/captioner/ml/nn"
)

// ============================================================================
// Vision Transformer - Encoder fuer Bild-Patches
// ============================================================================
//
// Dieses Modul enthaelt:
// - Model: Embeddings, Encoder-Layer und finale LayerNorm
// - Layer: Pre-LN Transformer-Block (Self-Attention + MLP)
// - Encode: Forward-Pass ohne Gradienten, gibt last_hidden_state zurueck

// Model implementiert das HF ViTModel ohne Pooler
type Model struct {
	Embeddings *Embeddings   `pt:"embeddings"`
	Layers     []Layer       `pt:"encoder.layer"`
	Norm       *nn.LayerNorm `pt:"layernorm"`

	Config
}

// Layer ist ein Encoder-Block
type Layer struct {
	Attention       *SelfAttention `pt:"attention"`
	Intermediate    *nn.Linear     `pt:"intermediate.dense"`
	Output          *nn.Linear     `pt:"output.dense"`
	LayerNormBefore *nn.LayerNorm  `pt:"layernorm_before"`
	LayerNormAfter  *nn.LayerNorm  `pt:"layernorm_after"`
}

// SelfAttention enthaelt die Projektionen eines Attention-Blocks
type SelfAttention struct {
	Query  *nn.Linear `pt:"attention.query"`
	Key    *nn.Linear `pt:"attention.key"`
	Value  *nn.Linear `pt:"attention.value"`
	Output *nn.Linear `pt:"output.dense"`
}

// New legt alle Gewichte mit den Formen aus c an (mit Nullen)
func New(c Config) (*Model, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	h := c.HiddenSize
	m := &Model{
		Embeddings: &Embeddings{
			CLSToken:           ml.New(1, 1, h),
			PositionEmbeddings: ml.New(1, c.NumPatches()+1, h),
			PatchProjection:    &nn.Linear{Weight: ml.New(h, c.NumChannels, c.PatchSize, c.PatchSize), Bias: ml.New(h)},
		},
		Layers: make([]Layer, c.NumHiddenLayers),
		Norm:   newLayerNorm(h),
		Config: c,
	}

	for i := range m.Layers {
		m.Layers[i] = Layer{
			Attention: &SelfAttention{
				Query:  newLinear(h, h),
				Key:    newLinear(h, h),
				Value:  newLinear(h, h),
				Output: newLinear(h, h),
			},
			Intermediate:    newLinear(h, c.IntermediateSize),
			Output:          newLinear(c.IntermediateSize, h),
			LayerNormBefore: newLayerNorm(h),
			LayerNormAfter:  newLayerNorm(h),
		}
	}
	return m, nil
}

func newLinear(in, out int) *nn.Linear {
	return &nn.Linear{Weight: ml.New(out, in), Bias: ml.New(out)}
}

func newLayerNorm(n int) *nn.LayerNorm {
	norm := &nn.LayerNorm{Weight: ml.New(n), Bias: ml.New(n)}
	for i := range norm.Weight.Data {
		norm.Weight.Data[i] = 1
	}
	return norm
}

// HiddenWidth ist die Breite der ausgegebenen Zustaende
func (m *Model) HiddenWidth() int {
	return m.HiddenSize
}

// Encode berechnet last_hidden_state [1+patches, hidden] fuer pixels [1, C, H, W]
func (m *Model) Encode(pixels *ml.Tensor) (*ml.Tensor, error) {
	hidden, err := m.Embeddings.Forward(pixels, m.Config)
	if err != nil {
		return nil, fmt.Errorf("vit embeddings: %w", err)
	}

	act := nn.Activation(m.HiddenAct)
	for i := range m.Layers {
		hidden, err = m.Layers[i].Forward(hidden, m.Config, act)
		if err != nil {
			return nil, fmt.Errorf("vit layer %d: %w", i, err)
		}
	}

	return m.Norm.Forward(hidden, m.LayerNormEps)
}

// Forward berechnet einen Pre-LN Block
func (l *Layer) Forward(hidden *ml.Tensor, c Config, act func(*ml.Tensor)) (*ml.Tensor, error) {
	normed, err := l.LayerNormBefore.Forward(hidden, c.LayerNormEps)
	if err != nil {
		return nil, err
	}

	attn, err := l.Attention.Forward(normed, c.NumAttentionHeads)
	if err != nil {
		return nil, err
	}
	if err := attn.Add(hidden); err != nil {
		return nil, err
	}
	hidden = attn

	normed, err = l.LayerNormAfter.Forward(hidden, c.LayerNormEps)
	if err != nil {
		return nil, err
	}

	mlp, err := l.Intermediate.Forward(normed)
	if err != nil {
		return nil, err
	}
	act(mlp)

	out, err := l.Output.Forward(mlp)
	if err != nil {
		return nil, err
	}
	if err := out.Add(hidden); err != nil {
		return nil, err
	}
	return out, nil
}

// Forward berechnet bidirektionale Self-Attention mit 1/sqrt(d) Skalierung
func (a *SelfAttention) Forward(hidden *ml.Tensor, heads int) (*ml.Tensor, error) {
	q, err := a.Query.Forward(hidden)
	if err != nil {
		return nil, err
	}
	k, err := a.Key.Forward(hidden)
	if err != nil {
		return nil, err
	}
	v, err := a.Value.Forward(hidden)
	if err != nil {
		return nil, err
	}

	ctx, err := nn.Attention(q, k, v, nn.AttentionOptions{Heads: heads})
	if err != nil {
		return nil, err
	}
	return a.Output.Forward(ctx)
}

package t5

import (
	"fmt"
	"math"

	"github.com/imagecaption/captioner/ml"
	"github.com/imagecaption/captioner/ml/nn"
)

// ============================================================================
// T5 Decoder - Bedingter Text-Decoder
// ============================================================================
//
// Dieses Modul enthaelt:
// - Model: Geteilte Embeddings, Decoder-Bloecke, finale Norm, LM-Head
// - Block: Kausale Self-Attention, Cross-Attention, Feed-Forward
// - CrossCache: Vorberechnete Cross-Attention K/V fuer ein Bild
// - Logits/Forward: Naechster-Token-Logits und Logits aller Positionen

// Model ist die Decoder-Haelfte von T5ForConditionalGeneration
type Model struct {
	Shared    *nn.Embedding `pt:"shared"`
	Blocks    []Block       `pt:"decoder.block"`
	FinalNorm *nn.RMSNorm   `pt:"decoder.final_layer_norm"`
	// Bei geteilten Embeddings wird ein geladener lm_head ignoriert
	LMHead *nn.Linear `pt:"lm_head"`

	Config
	act   func(*ml.Tensor)
	gated bool
}

// Block ist ein Decoder-Block mit drei Teilschichten
type Block struct {
	SelfAttention  *Attention   `pt:"layer.0.SelfAttention"`
	SelfNorm       *nn.RMSNorm  `pt:"layer.0.layer_norm"`
	CrossAttention *Attention   `pt:"layer.1.EncDecAttention"`
	CrossNorm      *nn.RMSNorm  `pt:"layer.1.layer_norm"`
	FeedForward    *FeedForward `pt:"layer.2.DenseReluDense"`
	FFNorm         *nn.RMSNorm  `pt:"layer.2.layer_norm"`
}

// Attention enthaelt die bias-freien Projektionen. Nur Block 0 hat eine Bias-Tabelle.
type Attention struct {
	Query        *ml.Tensor `pt:"q.weight"`
	Key          *ml.Tensor `pt:"k.weight"`
	Value        *ml.Tensor `pt:"v.weight"`
	Output       *ml.Tensor `pt:"o.weight"`
	RelativeBias *ml.Tensor `pt:"relative_attention_bias.weight,optional"`
}

// FeedForward ist DenseReluDense bzw. DenseGatedActDense
type FeedForward struct {
	WI  *ml.Tensor `pt:"wi.weight,optional"`
	WI0 *ml.Tensor `pt:"wi_0.weight,optional"`
	WI1 *ml.Tensor `pt:"wi_1.weight,optional"`
	WO  *ml.Tensor `pt:"wo.weight"`
}

// New legt alle Gewichte mit den Formen aus c an (Norm-Gewichte auf 1)
func New(c Config) (*Model, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	actName, gated, _ := c.activation()
	d, inner := c.DModel, c.InnerDim()
	m := &Model{
		Shared:    &nn.Embedding{Weight: ml.New(c.VocabSize, d)},
		Blocks:    make([]Block, c.NumDecoderLayers),
		FinalNorm: newRMSNorm(d),
		Config:    c,
		act:       nn.Activation(actName),
		gated:     gated,
	}
	if !c.Tied() {
		m.LMHead = &nn.Linear{Weight: ml.New(c.VocabSize, d)}
	}

	for i := range m.Blocks {
		b := Block{
			SelfAttention:  newAttention(d, inner),
			SelfNorm:       newRMSNorm(d),
			CrossAttention: newAttention(d, inner),
			CrossNorm:      newRMSNorm(d),
			FeedForward:    &FeedForward{WO: ml.New(d, c.DFF)},
			FFNorm:         newRMSNorm(d),
		}
		if i == 0 {
			b.SelfAttention.RelativeBias = ml.New(c.RelativeBuckets, c.NumHeads)
		}
		if gated {
			b.FeedForward.WI0 = ml.New(c.DFF, d)
			b.FeedForward.WI1 = ml.New(c.DFF, d)
		} else {
			b.FeedForward.WI = ml.New(c.DFF, d)
		}
		m.Blocks[i] = b
	}
	return m, nil
}

func newAttention(d, inner int) *Attention {
	return &Attention{
		Query:  ml.New(inner, d),
		Key:    ml.New(inner, d),
		Value:  ml.New(inner, d),
		Output: ml.New(d, inner),
	}
}

func newRMSNorm(n int) *nn.RMSNorm {
	norm := &nn.RMSNorm{Weight: ml.New(n)}
	for i := range norm.Weight.Data {
		norm.Weight.Data[i] = 1
	}
	return norm
}

// EmbeddingWidth ist die Breite, die der Decoder von Encoder-Zustaenden erwartet
func (m *Model) EmbeddingWidth() int {
	return m.DModel
}

// CrossCache haelt Cross-Attention Schluessel und Werte pro Block
type CrossCache struct {
	keys, values []*ml.Tensor
	length       int
}

// Len ist die Anzahl der Encoder-Positionen
func (c *CrossCache) Len() int {
	return c.length
}

// Prepare projiziert die Encoder-Zustaende [seq, d_model] einmal pro Bild
func (m *Model) Prepare(encoderStates *ml.Tensor) (*CrossCache, error) {
	if encoderStates.Cols() != m.DModel {
		return nil, fmt.Errorf("%w: encoder states %v fuer d_model %d", ml.ErrShape, encoderStates.Shape, m.DModel)
	}

	cache := &CrossCache{
		keys:   make([]*ml.Tensor, len(m.Blocks)),
		values: make([]*ml.Tensor, len(m.Blocks)),
		length: encoderStates.Rows(),
	}
	for i := range m.Blocks {
		k, err := nn.MatMulT(encoderStates, m.Blocks[i].CrossAttention.Key)
		if err != nil {
			return nil, err
		}
		v, err := nn.MatMulT(encoderStates, m.Blocks[i].CrossAttention.Value)
		if err != nil {
			return nil, err
		}
		cache.keys[i], cache.values[i] = k, v
	}
	return cache, nil
}

// Logits gibt die Logits fuer die Position nach tokens zurueck
func (m *Model) Logits(cache *CrossCache, tokens []int32) ([]float32, error) {
	hidden, err := m.decode(cache, tokens)
	if err != nil {
		return nil, err
	}

	last := hidden.SliceRows(hidden.Rows()-1, hidden.Rows())
	logits, err := m.project(last)
	if err != nil {
		return nil, err
	}
	return logits.Data, nil
}

// Forward gibt die Logits aller Positionen [len(tokens), vocab] zurueck
func (m *Model) Forward(cache *CrossCache, tokens []int32) (*ml.Tensor, error) {
	hidden, err := m.decode(cache, tokens)
	if err != nil {
		return nil, err
	}
	return m.project(hidden)
}

func (m *Model) decode(cache *CrossCache, tokens []int32) (*ml.Tensor, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("t5: leere token-folge")
	}
	if cache == nil || len(cache.keys) != len(m.Blocks) {
		return nil, fmt.Errorf("t5: cross cache passt nicht zum modell")
	}

	hidden, err := m.Shared.Forward(tokens)
	if err != nil {
		return nil, err
	}

	if len(m.Blocks) == 0 {
		return m.FinalNorm.Forward(hidden, m.LayerNormEpsilon)
	}
	bias := positionBias(m.Blocks[0].SelfAttention.RelativeBias, len(tokens), len(tokens), m.Config)

	for i := range m.Blocks {
		hidden, err = m.Blocks[i].Forward(hidden, bias, cache.keys[i], cache.values[i], m)
		if err != nil {
			return nil, fmt.Errorf("t5 block %d: %w", i, err)
		}
	}

	return m.FinalNorm.Forward(hidden, m.LayerNormEpsilon)
}

func (m *Model) project(hidden *ml.Tensor) (*ml.Tensor, error) {
	if m.LMHead != nil && !m.Tied() {
		return m.LMHead.Forward(hidden)
	}

	// Geteilte Embeddings: Skalierung mit d_model^-0.5 vor dem Kopf
	scaled := hidden.Clone()
	scaled.Scale(float32(1 / math.Sqrt(float64(m.DModel))))
	return nn.MatMulT(scaled, m.Shared.Weight)
}

// Forward berechnet einen Decoder-Block
func (b *Block) Forward(hidden, bias, crossK, crossV *ml.Tensor, m *Model) (*ml.Tensor, error) {
	eps := m.LayerNormEpsilon

	normed, err := b.SelfNorm.Forward(hidden, eps)
	if err != nil {
		return nil, err
	}
	k, err := nn.MatMulT(normed, b.SelfAttention.Key)
	if err != nil {
		return nil, err
	}
	v, err := nn.MatMulT(normed, b.SelfAttention.Value)
	if err != nil {
		return nil, err
	}
	attn, err := b.SelfAttention.attend(normed, k, v, nn.AttentionOptions{Heads: m.NumHeads, Scale: 1, Bias: bias, Causal: true})
	if err != nil {
		return nil, err
	}
	if err := attn.Add(hidden); err != nil {
		return nil, err
	}
	hidden = attn

	normed, err = b.CrossNorm.Forward(hidden, eps)
	if err != nil {
		return nil, err
	}
	cross, err := b.CrossAttention.attend(normed, crossK, crossV, nn.AttentionOptions{Heads: m.NumHeads, Scale: 1})
	if err != nil {
		return nil, err
	}
	if err := cross.Add(hidden); err != nil {
		return nil, err
	}
	hidden = cross

	normed, err = b.FFNorm.Forward(hidden, eps)
	if err != nil {
		return nil, err
	}
	ff, err := b.FeedForward.Forward(normed, m.act, m.gated)
	if err != nil {
		return nil, err
	}
	if err := ff.Add(hidden); err != nil {
		return nil, err
	}
	return ff, nil
}

// attend projiziert die Abfragen, berechnet die Aufmerksamkeit und die Ausgabe
func (a *Attention) attend(normed, k, v *ml.Tensor, opts nn.AttentionOptions) (*ml.Tensor, error) {
	q, err := nn.MatMulT(normed, a.Query)
	if err != nil {
		return nil, err
	}
	ctx, err := nn.Attention(q, k, v, opts)
	if err != nil {
		return nil, err
	}
	return nn.MatMulT(ctx, a.Output)
}

// Forward berechnet wo(act(wi(x))) bzw. wo(act(wi_0(x)) * wi_1(x))
func (f *FeedForward) Forward(x *ml.Tensor, act func(*ml.Tensor), gated bool) (*ml.Tensor, error) {
	if !gated {
		h, err := nn.MatMulT(x, f.WI)
		if err != nil {
			return nil, err
		}
		act(h)
		return nn.MatMulT(h, f.WO)
	}

	g, err := nn.MatMulT(x, f.WI0)
	if err != nil {
		return nil, err
	}
	act(g)
	lin, err := nn.MatMulT(x, f.WI1)
	if err != nil {
		return nil, err
	}
	for i, v := range lin.Data {
		g.Data[i] *= v
	}
	return nn.MatMulT(g, f.WO)
}

package t5

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config entspricht den benoetigten Feldern aus config.json eines HF T5-Modells
type Config struct {
	VocabSize           int     `json:"vocab_size"`
	DModel              int     `json:"d_model"`
	DKV                 int     `json:"d_kv"`
	DFF                 int     `json:"d_ff"`
	NumLayers           int     `json:"num_layers"`
	NumDecoderLayers    int     `json:"num_decoder_layers"`
	NumHeads            int     `json:"num_heads"`
	RelativeBuckets     int     `json:"relative_attention_num_buckets"`
	RelativeMaxDistance int     `json:"relative_attention_max_distance"`
	LayerNormEpsilon    float32 `json:"layer_norm_epsilon"`
	FeedForwardProj     string  `json:"feed_forward_proj"`
	TieWordEmbeddings   *bool   `json:"tie_word_embeddings"`
	DecoderStartTokenID int32   `json:"decoder_start_token_id"`
	EOSTokenID          int32   `json:"eos_token_id"`
	PadTokenID          int32   `json:"pad_token_id"`
}

// DefaultConfig entspricht t5-small
func DefaultConfig() Config {
	tied := true
	return Config{
		VocabSize:           32128,
		DModel:              512,
		DKV:                 64,
		DFF:                 2048,
		NumLayers:           6,
		NumDecoderLayers:    6,
		NumHeads:            8,
		RelativeBuckets:     32,
		RelativeMaxDistance: 128,
		LayerNormEpsilon:    1e-6,
		FeedForwardProj:     "relu",
		TieWordEmbeddings:   &tied,
		DecoderStartTokenID: 0,
		EOSTokenID:          1,
		PadTokenID:          0,
	}
}

// LoadConfig liest config.json, fehlende Felder bleiben auf dem Default
func LoadConfig(path string) (Config, error) {
	c := DefaultConfig()
	c.NumDecoderLayers = 0

	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultConfig(), fmt.Errorf("t5 config lesen fehlgeschlagen: %w", err)
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return DefaultConfig(), fmt.Errorf("t5 config parsen fehlgeschlagen: %w", err)
	}

	// num_decoder_layers faellt wie in transformers auf num_layers zurueck
	if c.NumDecoderLayers == 0 {
		c.NumDecoderLayers = c.NumLayers
	}
	return c, c.Validate()
}

// Validate prueft die Konsistenz der Abmessungen
func (c Config) Validate() error {
	switch {
	case c.DModel <= 0 || c.DKV <= 0 || c.NumHeads <= 0:
		return fmt.Errorf("t5: d_model %d, d_kv %d, num_heads %d ungueltig", c.DModel, c.DKV, c.NumHeads)
	case c.VocabSize <= 0:
		return fmt.Errorf("t5: vocab_size %d ungueltig", c.VocabSize)
	case c.RelativeBuckets < 2 || c.RelativeMaxDistance <= c.RelativeBuckets/2:
		return fmt.Errorf("t5: relative buckets %d / max distance %d ungueltig", c.RelativeBuckets, c.RelativeMaxDistance)
	}
	if _, _, err := c.activation(); err != nil {
		return err
	}
	return nil
}

// Tied gibt an, ob lm_head die geteilten Embeddings nutzt
func (c Config) Tied() bool {
	return c.TieWordEmbeddings == nil || *c.TieWordEmbeddings
}

// InnerDim ist die Breite von q/k/v ueber alle Koepfe
func (c Config) InnerDim() int {
	return c.NumHeads * c.DKV
}

// activation zerlegt feed_forward_proj in ("relu"|"gelu"...) und gated
func (c Config) activation() (string, bool, error) {
	switch c.FeedForwardProj {
	case "", "relu":
		return "relu", false, nil
	case "gated-gelu":
		return "gelu_new", true, nil
	case "gated-relu":
		return "relu", true, nil
	case "gelu":
		return "gelu", false, nil
	default:
		return "", false, fmt.Errorf("t5: feed_forward_proj %q nicht unterstuetzt", c.FeedForwardProj)
	}
}

package vit

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config entspricht den benoetigten Feldern aus config.json eines HF ViTModel
type Config struct {
	HiddenSize        int     `json:"hidden_size"`
	NumHiddenLayers   int     `json:"num_hidden_layers"`
	NumAttentionHeads int     `json:"num_attention_heads"`
	IntermediateSize  int     `json:"intermediate_size"`
	HiddenAct         string  `json:"hidden_act"`
	LayerNormEps      float32 `json:"layer_norm_eps"`
	ImageSize         int     `json:"image_size"`
	PatchSize         int     `json:"patch_size"`
	NumChannels       int     `json:"num_channels"`
}

// DefaultConfig entspricht google/vit-base-patch16-224-in21k
func DefaultConfig() Config {
	return Config{
		HiddenSize:        768,
		NumHiddenLayers:   12,
		NumAttentionHeads: 12,
		IntermediateSize:  3072,
		HiddenAct:         "gelu",
		LayerNormEps:      1e-12,
		ImageSize:         224,
		PatchSize:         16,
		NumChannels:       3,
	}
}

// LoadConfig liest config.json, fehlende Felder bleiben auf dem Default
func LoadConfig(path string) (Config, error) {
	c := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("vit config lesen fehlgeschlagen: %w", err)
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("vit config parsen fehlgeschlagen: %w", err)
	}
	return c, c.Validate()
}

// Validate prueft die Konsistenz der Abmessungen
func (c Config) Validate() error {
	switch {
	case c.HiddenSize <= 0 || c.NumAttentionHeads <= 0 || c.HiddenSize%c.NumAttentionHeads != 0:
		return fmt.Errorf("vit: hidden_size %d nicht durch %d koepfe teilbar", c.HiddenSize, c.NumAttentionHeads)
	case c.PatchSize <= 0 || c.ImageSize%c.PatchSize != 0:
		return fmt.Errorf("vit: image_size %d nicht durch patch_size %d teilbar", c.ImageSize, c.PatchSize)
	case c.NumChannels <= 0:
		return fmt.Errorf("vit: num_channels %d ungueltig", c.NumChannels)
	}
	return nil
}

// NumPatches ist die Anzahl der Bildfelder pro Bild
func (c Config) NumPatches() int {
	n := c.ImageSize / c.PatchSize
	return n * n
}

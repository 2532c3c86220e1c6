package vit

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/imagecaption/captioner/ml"
	"github.com/imagecaption/captioner/model"
)

func tinyConfig() Config {
	return Config{
		HiddenSize:        4,
		NumHiddenLayers:   1,
		NumAttentionHeads: 2,
		IntermediateSize:  8,
		HiddenAct:         "gelu",
		LayerNormEps:      1e-12,
		ImageSize:         4,
		PatchSize:         2,
		NumChannels:       1,
	}
}

func TestPatchify(t *testing.T) {
	data := make([]float32, 16)
	for i := range data {
		data[i] = float32(i)
	}
	pixels, _ := ml.FromData(data, 1, 1, 4, 4)

	patches, err := Patchify(pixels, tinyConfig())
	if err != nil {
		t.Fatal(err)
	}

	want := []float32{
		0, 1, 4, 5,
		2, 3, 6, 7,
		8, 9, 12, 13,
		10, 11, 14, 15,
	}
	if diff := cmp.Diff(want, patches.Data); diff != "" {
		t.Errorf("Patch-Reihenfolge (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{4, 4}, patches.Shape); diff != "" {
		t.Errorf("Shape (-want +got):\n%s", diff)
	}
}

func TestPatchifyWrongShape(t *testing.T) {
	if _, err := Patchify(ml.New(1, 1, 3, 3), tinyConfig()); err == nil {
		t.Error("Fehler erwartet fuer falsche Bildgroesse")
	}
}

func TestEncodeShape(t *testing.T) {
	m, err := New(tinyConfig())
	if err != nil {
		t.Fatal(err)
	}

	rng := rand.New(rand.NewPCG(1, 1))
	fillRandom(t, m, rng)

	pixels := ml.New(1, 1, 4, 4)
	for i := range pixels.Data {
		pixels.Data[i] = rng.Float32()*2 - 1
	}

	out, err := m.Encode(pixels)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{5, 4}, out.Shape); diff != "" {
		t.Errorf("last_hidden_state Shape (-want +got):\n%s", diff)
	}
	if m.HiddenWidth() != 4 {
		t.Errorf("HiddenWidth = %d, erwartet 4", m.HiddenWidth())
	}
}

func TestStateDictNames(t *testing.T) {
	c := tinyConfig()
	m, err := New(c)
	if err != nil {
		t.Fatal(err)
	}

	shapes := map[string][]int{
		"embeddings.cls_token":                          {1, 1, 4},
		"embeddings.position_embeddings":                {1, 5, 4},
		"embeddings.patch_embeddings.projection.weight": {4, 1, 2, 2},
		"embeddings.patch_embeddings.projection.bias":   {4},
		"layernorm.weight":                              {4},
		"layernorm.bias":                                {4},
		"pooler.dense.weight":                           {4, 4},
	}
	for _, key := range expectedKeys(1) {
		if _, ok := shapes[key]; ok {
			continue
		}
		switch {
		case strings.HasSuffix(key, "intermediate.dense.weight"):
			shapes[key] = []int{8, 4}
		case strings.HasSuffix(key, "intermediate.dense.bias"):
			shapes[key] = []int{8}
		case key == "encoder.layer.0.output.dense.weight":
			shapes[key] = []int{4, 8}
		case strings.HasSuffix(key, ".weight") && !strings.Contains(key, "layernorm"):
			shapes[key] = []int{4, 4}
		default:
			shapes[key] = []int{4}
		}
	}

	sd := model.StateDict{}
	for k, s := range shapes {
		sd[k] = ml.New(s...)
	}

	report, err := model.Populate(m, sd)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Missing) != 0 {
		t.Errorf("Fehlende Schluessel: %v", report.Missing)
	}
	if diff := cmp.Diff([]string{"pooler.dense.weight"}, report.Unexpected); diff != "" {
		t.Errorf("Unerwartete Schluessel (-want +got):\n%s", diff)
	}
}

// expectedKeys listet die HF-Namen eines ViTModel ohne Pooler
func expectedKeys(layers int) []string {
	keys := []string{
		"embeddings.cls_token",
		"embeddings.position_embeddings",
		"embeddings.patch_embeddings.projection.weight",
		"embeddings.patch_embeddings.projection.bias",
		"layernorm.weight",
		"layernorm.bias",
	}
	for i := range layers {
		for _, name := range []string{
			"attention.attention.query",
			"attention.attention.key",
			"attention.attention.value",
			"attention.output.dense",
			"intermediate.dense",
			"output.dense",
			"layernorm_before",
			"layernorm_after",
		} {
			keys = append(keys,
				fmt.Sprintf("encoder.layer.%d.%s.weight", i, name),
				fmt.Sprintf("encoder.layer.%d.%s.bias", i, name),
			)
		}
	}
	return keys
}

func fillRandom(t *testing.T, m *Model, rng *rand.Rand) {
	t.Helper()
	fill := func(ts ...*ml.Tensor) {
		for _, x := range ts {
			for i := range x.Data {
				x.Data[i] = (rng.Float32()*2 - 1) * 0.5
			}
		}
	}

	fill(m.Embeddings.CLSToken, m.Embeddings.PositionEmbeddings, m.Embeddings.PatchProjection.Weight)
	for _, l := range m.Layers {
		fill(l.Attention.Query.Weight, l.Attention.Key.Weight, l.Attention.Value.Weight, l.Attention.Output.Weight)
		fill(l.Intermediate.Weight, l.Output.Weight)
	}
}

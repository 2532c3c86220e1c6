package vit

import (
	"fmt"

	"github.com/imagecaption/captioner/ml"
	"github.com/imagecaption/captioner/ml/nn"
)

// Embeddings kombiniert Patch-Projektion, CLS-Token und Positions-Embeddings
type Embeddings struct {
	CLSToken           *ml.Tensor `pt:"cls_token"`
	PositionEmbeddings *ml.Tensor `pt:"position_embeddings"`
	PatchProjection    *nn.Linear `pt:"patch_embeddings.projection"`
}

// Patchify zerlegt pixels [1, C, H, W] in [patches, C*P*P].
// Die Reihenfolge innerhalb eines Patches (C, y, x) entspricht dem Conv2d-Gewicht.
func Patchify(pixels *ml.Tensor, c Config) (*ml.Tensor, error) {
	grid := c.ImageSize / c.PatchSize
	want := []int{1, c.NumChannels, c.ImageSize, c.ImageSize}
	if len(pixels.Shape) != 4 || pixels.Len() != want[1]*want[2]*want[3] {
		return nil, fmt.Errorf("%w: pixels %v, erwartet %v", ml.ErrShape, pixels.Shape, want)
	}

	// [C, gy, P, gx, P] -> [gy, gx, C, P, P]
	x, err := pixels.Reshape(c.NumChannels, grid, c.PatchSize, grid, c.PatchSize)
	if err != nil {
		return nil, err
	}
	x, err = x.Permute(1, 3, 0, 2, 4)
	if err != nil {
		return nil, err
	}
	return x.Reshape(grid*grid, c.NumChannels*c.PatchSize*c.PatchSize)
}

// Forward gibt [1+patches, hidden] zurueck
func (e *Embeddings) Forward(pixels *ml.Tensor, c Config) (*ml.Tensor, error) {
	patches, err := Patchify(pixels, c)
	if err != nil {
		return nil, err
	}

	// Conv2d mit stride = kernel entspricht einer linearen Abbildung je Patch
	w, err := e.PatchProjection.Weight.Reshape(c.HiddenSize, -1)
	if err != nil {
		return nil, err
	}
	proj := nn.Linear{Weight: w, Bias: e.PatchProjection.Bias}
	projected, err := proj.Forward(patches)
	if err != nil {
		return nil, err
	}

	n := projected.Rows() + 1
	if e.PositionEmbeddings.Len() != n*c.HiddenSize {
		return nil, fmt.Errorf("%w: position_embeddings %v fuer %d tokens", ml.ErrShape, e.PositionEmbeddings.Shape, n)
	}

	out := ml.New(n, c.HiddenSize)
	copy(out.Row(0), e.CLSToken.Data)
	copy(out.Data[c.HiddenSize:], projected.Data)
	for i, p := range e.PositionEmbeddings.Data {
		out.Data[i] += p
	}
	return out, nil
}

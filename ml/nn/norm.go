// norm.go - Normalisierungsschichten
//
// Dieses Modul enthaelt:
// - LayerNorm: Mittelwert/Varianz-Normalisierung mit Gewicht und Bias (ViT)
// - RMSNorm: Normalisierung ueber den quadratischen Mittelwert ohne Zentrierung (T5)
package nn

import (
	"fmt"
	"math"

	"github.com/imagecaption/captioner/ml"
)

// LayerNorm normalisiert jede Zeile auf Mittelwert 0 und Varianz 1
type LayerNorm struct {
	Weight *ml.Tensor `pt:"weight"`
	Bias   *ml.Tensor `pt:"bias"`
}

// Forward gibt einen neuen Tensor zurueck, x bleibt unveraendert
func (n *LayerNorm) Forward(x *ml.Tensor, eps float32) (*ml.Tensor, error) {
	cols := x.Cols()
	if n.Weight.Len() != cols || n.Bias.Len() != cols {
		return nil, fmt.Errorf("%w: layernorm %v auf %v", ml.ErrShape, n.Weight.Shape, x.Shape)
	}

	out := x.Clone()
	for r := range out.Rows() {
		row := out.Row(r)

		var mean float64
		for _, v := range row {
			mean += float64(v)
		}
		mean /= float64(cols)

		var variance float64
		for _, v := range row {
			d := float64(v) - mean
			variance += d * d
		}
		variance /= float64(cols)

		inv := 1 / math.Sqrt(variance+float64(eps))
		for i, v := range row {
			row[i] = float32((float64(v)-mean)*inv)*n.Weight.Data[i] + n.Bias.Data[i]
		}
	}
	return out, nil
}

// RMSNorm skaliert jede Zeile mit 1/rms, ohne Mittelwert und ohne Bias
type RMSNorm struct {
	Weight *ml.Tensor `pt:"weight"`
}

func (n *RMSNorm) Forward(x *ml.Tensor, eps float32) (*ml.Tensor, error) {
	cols := x.Cols()
	if n.Weight.Len() != cols {
		return nil, fmt.Errorf("%w: rmsnorm %v auf %v", ml.ErrShape, n.Weight.Shape, x.Shape)
	}

	out := x.Clone()
	for r := range out.Rows() {
		row := out.Row(r)

		var sq float64
		for _, v := range row {
			sq += float64(v) * float64(v)
		}
		inv := float32(1 / math.Sqrt(sq/float64(cols)+float64(eps)))

		for i, v := range row {
			row[i] = v * inv * n.Weight.Data[i]
		}
	}
	return out, nil
}

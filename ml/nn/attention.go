// attention.go - Skalierte Mehrkopf-Aufmerksamkeit
//
// Dieses Modul enthaelt:
// - AttentionOptions: Skalierung, additiver Positions-Bias, kausale Maske
// - Attention: softmax(q*k^T*scale + bias) * v pro Kopf
package nn

import (
	"fmt"
	"math"

	"github.com/imagecaption/captioner/ml"
)

// AttentionOptions steuert die Variante der Aufmerksamkeit.
// ViT skaliert mit 1/sqrt(d), T5 skaliert gar nicht (Scale = 1).
type AttentionOptions struct {
	Heads  int
	Scale  float32
	Bias   *ml.Tensor // [heads, Lq, Lk], optional
	Causal bool
}

// Attention erwartet q [Lq, heads*d] sowie k, v [Lk, heads*d] und gibt [Lq, heads*d] zurueck
func Attention(q, k, v *ml.Tensor, opts AttentionOptions) (*ml.Tensor, error) {
	lq, lk := q.Rows(), k.Rows()
	width := q.Cols()
	if opts.Heads <= 0 || width%opts.Heads != 0 {
		return nil, fmt.Errorf("%w: breite %d nicht durch %d koepfe teilbar", ml.ErrShape, width, opts.Heads)
	}
	if k.Cols() != width || v.Cols() != width || v.Rows() != lk {
		return nil, fmt.Errorf("%w: attention q %v k %v v %v", ml.ErrShape, q.Shape, k.Shape, v.Shape)
	}
	if opts.Bias != nil && opts.Bias.Len() != opts.Heads*lq*lk {
		return nil, fmt.Errorf("%w: attention bias %v fuer %dx%dx%d", ml.ErrShape, opts.Bias.Shape, opts.Heads, lq, lk)
	}

	dh := width / opts.Heads
	scale := opts.Scale
	if scale == 0 {
		scale = float32(1 / math.Sqrt(float64(dh)))
	}

	// Abfragen am Ende des Schluessel-Fensters ausrichten (inkrementelles Dekodieren)
	offset := lk - lq

	out := ml.New(lq, width)
	scores := make([]float32, lk)
	for h := range opts.Heads {
		lo := h * dh
		for i := range lq {
			qi := q.Row(i)[lo : lo+dh]
			for j := range lk {
				if opts.Causal && j > i+offset {
					scores[j] = float32(math.Inf(-1))
					continue
				}

				kj := k.Row(j)[lo : lo+dh]
				var dot float32
				for d := range dh {
					dot += qi[d] * kj[d]
				}
				dot *= scale
				if opts.Bias != nil {
					dot += opts.Bias.Data[(h*lq+i)*lk+j]
				}
				scores[j] = dot
			}

			Softmax(scores)

			oi := out.Row(i)[lo : lo+dh]
			for j, p := range scores {
				if p == 0 {
					continue
				}
				vj := v.Row(j)[lo : lo+dh]
				for d := range dh {
					oi[d] += p * vj[d]
				}
			}
		}
	}
	return out, nil
}

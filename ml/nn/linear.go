// linear.go - Vollverbundene Schicht
//
// Dieses Modul enthaelt:
// - Linear: y = x * W^T + b mit PyTorch-Gewichtslayout [out, in]
// - NewLinear: Zufaellig initialisierte Schicht (Kaiming-uniform wie nn.Linear)
// - MatMulT: float32-GEMM ueber gonum blas32
package nn

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/imagecaption/captioner/ml"
)

// Linear ist eine vollverbundene Schicht. Bias ist optional (T5 hat keinen).
type Linear struct {
	Weight *ml.Tensor `pt:"weight"`
	Bias   *ml.Tensor `pt:"bias,optional"`
}

// NewLinear erzeugt eine Schicht mit uniform(-1/sqrt(in), 1/sqrt(in)) fuer Gewicht und Bias
func NewLinear(in, out int, rng *rand.Rand) *Linear {
	bound := float32(1 / math.Sqrt(float64(in)))
	l := &Linear{Weight: ml.New(out, in), Bias: ml.New(out)}
	for i := range l.Weight.Data {
		l.Weight.Data[i] = (rng.Float32()*2 - 1) * bound
	}
	for i := range l.Bias.Data {
		l.Bias.Data[i] = (rng.Float32()*2 - 1) * bound
	}
	return l
}

// In ist die Eingabebreite
func (l *Linear) In() int {
	return l.Weight.Dim(1)
}

// Out ist die Ausgabebreite
func (l *Linear) Out() int {
	return l.Weight.Dim(0)
}

// Forward wendet die Schicht zeilenweise an: [rows, in] -> [rows, out]
func (l *Linear) Forward(x *ml.Tensor) (*ml.Tensor, error) {
	y, err := MatMulT(x, l.Weight)
	if err != nil {
		return nil, err
	}

	if l.Bias != nil {
		if l.Bias.Len() != y.Cols() {
			return nil, fmt.Errorf("%w: bias %v fuer ausgabe %v", ml.ErrShape, l.Bias.Shape, y.Shape)
		}
		for r := range y.Rows() {
			row := y.Row(r)
			for i, b := range l.Bias.Data {
				row[i] += b
			}
		}
	}
	return y, nil
}

// MatMulT berechnet x * w^T fuer x [rows, k] und w [n, k].
// Fuehrende Dimensionen von x bleiben erhalten.
func MatMulT(x, w *ml.Tensor) (*ml.Tensor, error) {
	k := x.Cols()
	if len(w.Shape) != 2 || w.Dim(1) != k {
		return nil, fmt.Errorf("%w: matmul %v x %v^T", ml.ErrShape, x.Shape, w.Shape)
	}

	rows, n := x.Rows(), w.Dim(0)
	shape := append(append([]int{}, x.Shape[:len(x.Shape)-1]...), n)
	if len(x.Shape) == 1 {
		shape = []int{n}
	}
	out := ml.New(shape...)

	a := blas32.General{Rows: rows, Cols: k, Stride: k, Data: x.Data}
	b := blas32.General{Rows: n, Cols: k, Stride: k, Data: w.Data}
	c := blas32.General{Rows: rows, Cols: n, Stride: n, Data: out.Data}
	blas32.Gemm(blas.NoTrans, blas.Trans, 1, a, b, 0, c)
	return out, nil
}

// MatMul berechnet x * y fuer x [m, k] und y [k, n]
func MatMul(x, y *ml.Tensor) (*ml.Tensor, error) {
	if x.Cols() != y.Dim(0) || len(y.Shape) != 2 {
		return nil, fmt.Errorf("%w: matmul %v x %v", ml.ErrShape, x.Shape, y.Shape)
	}

	m, k, n := x.Rows(), x.Cols(), y.Dim(1)
	out := ml.New(m, n)
	a := blas32.General{Rows: m, Cols: k, Stride: k, Data: x.Data}
	b := blas32.General{Rows: k, Cols: n, Stride: n, Data: y.Data}
	c := blas32.General{Rows: m, Cols: n, Stride: n, Data: out.Data}
	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1, a, b, 0, c)
	return out, nil
}

// activation.go - Aktivierungen und Wahrscheinlichkeitsfunktionen
//
// Dieses Modul enthaelt:
// - GELU (exakte erf-Variante wie HF "gelu"), GELUTanh ("gelu_new"), ReLU
// - Softmax, LogSoftmax: numerisch stabil ueber das Zeilenmaximum
package nn

import (
	"math"

	"github.com/imagecaption/captioner/ml"
)

// GELU wendet die exakte GELU in place an
func GELU(x *ml.Tensor) {
	for i, v := range x.Data {
		x.Data[i] = float32(0.5 * float64(v) * (1 + math.Erf(float64(v)/math.Sqrt2)))
	}
}

// GELUTanh ist die tanh-Naeherung der GELU
func GELUTanh(x *ml.Tensor) {
	c := math.Sqrt(2 / math.Pi)
	for i, v := range x.Data {
		f := float64(v)
		x.Data[i] = float32(0.5 * f * (1 + math.Tanh(c*(f+0.044715*f*f*f))))
	}
}

// ReLU setzt negative Werte in place auf 0
func ReLU(x *ml.Tensor) {
	for i, v := range x.Data {
		if v < 0 {
			x.Data[i] = 0
		}
	}
}

// Activation gibt die Funktion fuer einen HF-Namen zurueck ("gelu", "gelu_new", "relu")
func Activation(name string) func(*ml.Tensor) {
	switch name {
	case "gelu_new", "gelu_pytorch_tanh", "gelu_fast":
		return GELUTanh
	case "relu":
		return ReLU
	default:
		return GELU
	}
}

// Softmax normalisiert einen Vektor in place
func Softmax(v []float32) {
	maxV := float32(math.Inf(-1))
	for _, x := range v {
		maxV = max(maxV, x)
	}

	var sum float64
	for i, x := range v {
		e := math.Exp(float64(x - maxV))
		v[i] = float32(e)
		sum += e
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / sum)
	}
}

// LogSoftmax ersetzt v in place durch log(softmax(v))
func LogSoftmax(v []float32) {
	maxV := float32(math.Inf(-1))
	for _, x := range v {
		maxV = max(maxV, x)
	}
	if math.IsInf(float64(maxV), -1) {
		return
	}

	var sum float64
	for _, x := range v {
		sum += math.Exp(float64(x - maxV))
	}
	logSum := float32(math.Log(sum)) + maxV
	for i, x := range v {
		v[i] = x - logSum
	}
}

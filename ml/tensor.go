// tensor.go - Dichte float32-Tensoren fuer die Inferenz
//
// Dieses Modul enthaelt:
// - Tensor: Zeilenweise (row-major) gespeicherte float32-Werte mit Shape
// - Konstruktoren: New, FromData
// - Umformung: Reshape, Permute (ueber pdevine/tensor)
// - Zeilen-Zugriff fuer 2D-Sichten: Rows, Cols, Row
package ml

import (
	"errors"
	"fmt"
	"slices"

	"github.com/pdevine/tensor"
)

// ErrShape wird bei inkompatiblen Tensor-Formen zurueckgegeben
var ErrShape = errors.New("ml: shape mismatch")

// Tensor ist ein dichter float32-Tensor in row-major Anordnung.
// Die letzte Dimension liegt zusammenhaengend im Speicher.
type Tensor struct {
	Shape []int
	Data  []float32
}

// New erzeugt einen mit Nullen gefuellten Tensor
func New(shape ...int) *Tensor {
	return &Tensor{Shape: slices.Clone(shape), Data: make([]float32, mul(shape...))}
}

// FromData verpackt vorhandene Daten ohne Kopie
func FromData(data []float32, shape ...int) (*Tensor, error) {
	if n := mul(shape...); n != len(data) {
		return nil, fmt.Errorf("%w: %d werte fuer shape %v (%d)", ErrShape, len(data), shape, n)
	}
	return &Tensor{Shape: slices.Clone(shape), Data: data}, nil
}

// Len gibt die Gesamtzahl der Elemente zurueck
func (t *Tensor) Len() int {
	return len(t.Data)
}

// Dim gibt die Groesse der Dimension i zurueck, negative Indizes zaehlen von hinten
func (t *Tensor) Dim(i int) int {
	if i < 0 {
		i += len(t.Shape)
	}
	if i < 0 || i >= len(t.Shape) {
		return 1
	}
	return t.Shape[i]
}

// Cols ist die Groesse der letzten Dimension
func (t *Tensor) Cols() int {
	return t.Dim(-1)
}

// Rows ist das Produkt aller Dimensionen ausser der letzten
func (t *Tensor) Rows() int {
	if len(t.Shape) == 0 {
		return 1
	}
	return mul(t.Shape[:len(t.Shape)-1]...)
}

// Row gibt Zeile i der 2D-Sicht [Rows, Cols] zurueck (ohne Kopie)
func (t *Tensor) Row(i int) []float32 {
	c := t.Cols()
	return t.Data[i*c : (i+1)*c]
}

// Clone erzeugt eine tiefe Kopie
func (t *Tensor) Clone() *Tensor {
	return &Tensor{Shape: slices.Clone(t.Shape), Data: slices.Clone(t.Data)}
}

// SameShape prueft ob beide Tensoren dieselbe Form haben
func (t *Tensor) SameShape(o *Tensor) bool {
	return slices.Equal(t.Shape, o.Shape)
}

// Reshape gibt eine Sicht mit neuer Form auf dieselben Daten zurueck.
// Eine Dimension darf -1 sein und wird dann abgeleitet.
func (t *Tensor) Reshape(shape ...int) (*Tensor, error) {
	shape = slices.Clone(shape)
	infer := -1
	known := 1
	for i, d := range shape {
		if d == -1 {
			if infer >= 0 {
				return nil, fmt.Errorf("%w: mehrere -1 in %v", ErrShape, shape)
			}
			infer = i
			continue
		}
		known *= d
	}

	if infer >= 0 {
		if known == 0 || len(t.Data)%known != 0 {
			return nil, fmt.Errorf("%w: %v passt nicht zu %d werten", ErrShape, shape, len(t.Data))
		}
		shape[infer] = len(t.Data) / known
	}

	return FromData(t.Data, shape...)
}

// Permute vertauscht die Achsen und gibt einen neuen, zusammenhaengenden Tensor zurueck
func (t *Tensor) Permute(axes ...int) (*Tensor, error) {
	if len(axes) != len(t.Shape) {
		return nil, fmt.Errorf("%w: %d achsen fuer rang %d", ErrShape, len(axes), len(t.Shape))
	}

	identity := true
	for i, a := range axes {
		identity = identity && a == i
	}
	if identity {
		return t.Clone(), nil
	}

	dense := tensor.New(tensor.WithShape(t.Shape...), tensor.WithBacking(slices.Clone(t.Data)))
	if err := dense.T(axes...); err != nil {
		return nil, fmt.Errorf("permute %v: %w", axes, err)
	}
	if err := dense.Transpose(); err != nil {
		return nil, fmt.Errorf("permute %v: %w", axes, err)
	}

	data, ok := dense.Data().([]float32)
	if !ok {
		return nil, fmt.Errorf("permute: unerwarteter datentyp %T", dense.Data())
	}

	shape := make([]int, len(axes))
	for i, a := range axes {
		shape[i] = t.Shape[a]
	}
	return FromData(data, shape...)
}

// Transpose2D vertauscht die beiden Achsen eines 2D-Tensors
func (t *Tensor) Transpose2D() (*Tensor, error) {
	if len(t.Shape) != 2 {
		return nil, fmt.Errorf("%w: transpose2d braucht rang 2, hat %v", ErrShape, t.Shape)
	}
	return t.Permute(1, 0)
}

// SliceRows kopiert die Zeilen [from, to) der 2D-Sicht
func (t *Tensor) SliceRows(from, to int) *Tensor {
	c := t.Cols()
	return &Tensor{Shape: []int{to - from, c}, Data: slices.Clone(t.Data[from*c : to*c])}
}

// Add addiert o elementweise auf t (in place)
func (t *Tensor) Add(o *Tensor) error {
	if len(t.Data) != len(o.Data) {
		return fmt.Errorf("%w: add %v + %v", ErrShape, t.Shape, o.Shape)
	}
	for i, v := range o.Data {
		t.Data[i] += v
	}
	return nil
}

// Scale multipliziert alle Werte mit s (in place)
func (t *Tensor) Scale(s float32) {
	for i := range t.Data {
		t.Data[i] *= s
	}
}

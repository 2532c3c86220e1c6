package vitt5

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/imagecaption/captioner/ml"
	"github.com/imagecaption/captioner/ml/nn"
)

// IgnoreIndex markiert Label-Positionen ohne Verlustbeitrag
const IgnoreIndex = -100

// ErrNoLabels wird zurueckgegeben wenn alle Labels ignoriert werden
var ErrNoLabels = errors.New("vitt5: keine gueltigen labels")

// TrainingOutputs enthaelt Logits [len(labels), vocab] und den mittleren Verlust
type TrainingOutputs struct {
	Logits *ml.Tensor
	Loss   float32
}

// ComputeTrainingOutputs berechnet Logits und Kreuzentropie fuer labels.
// Die Decoder-Eingabe entsteht durch Verschieben der Labels um eine
// Position nach rechts mit dem Start-Token vorne, IgnoreIndex wird dabei
// durch das Pad-Token ersetzt.
func (m *Model) ComputeTrainingOutputs(pixels *ml.Tensor, labels []int32) (*TrainingOutputs, error) {
	if len(labels) == 0 {
		return nil, ErrNoLabels
	}

	states, err := m.encodeAndProject(pixels)
	if err != nil {
		return nil, fmt.Errorf("bild kodieren fehlgeschlagen: %w", err)
	}
	cache, err := m.Decoder.Prepare(states)
	if err != nil {
		return nil, err
	}

	logits, err := m.Decoder.Forward(cache, shiftRight(labels, m.Decoder.DecoderStartTokenID, m.Decoder.PadTokenID))
	if err != nil {
		return nil, err
	}

	loss, err := crossEntropy(logits, labels)
	if err != nil {
		return nil, err
	}
	return &TrainingOutputs{Logits: logits, Loss: loss}, nil
}

func shiftRight(labels []int32, start, pad int32) []int32 {
	inputs := make([]int32, len(labels))
	inputs[0] = start
	copy(inputs[1:], labels[:len(labels)-1])
	for i, id := range inputs {
		if id == IgnoreIndex {
			inputs[i] = pad
		}
	}
	return inputs
}

// crossEntropy mittelt -log p(label) ueber alle nicht ignorierten Positionen
func crossEntropy(logits *ml.Tensor, labels []int32) (float32, error) {
	if logits.Rows() != len(labels) {
		return 0, fmt.Errorf("%w: logits %v fuer %d labels", ml.ErrShape, logits.Shape, len(labels))
	}

	var sum float64
	var n int
	for i, label := range labels {
		if label == IgnoreIndex {
			continue
		}
		if label < 0 || int(label) >= logits.Cols() {
			return 0, fmt.Errorf("label %d ausserhalb des vokabulars (%d)", label, logits.Cols())
		}

		row := slices.Clone(logits.Row(i))
		nn.LogSoftmax(row)
		sum -= float64(row[label])
		n++
	}

	if n == 0 {
		return float32(math.NaN()), ErrNoLabels
	}
	return float32(sum / float64(n)), nil
}

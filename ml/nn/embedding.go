package nn

import (
	"fmt"

	"github.com/imagecaption/captioner/ml"
)

// Embedding bildet Token-IDs auf Zeilen der Gewichtsmatrix [vocab, dim] ab
type Embedding struct {
	Weight *ml.Tensor `pt:"weight"`
}

// Forward gibt [len(ids), dim] zurueck
func (e *Embedding) Forward(ids []int32) (*ml.Tensor, error) {
	vocab, dim := e.Weight.Dim(0), e.Weight.Dim(1)
	out := ml.New(len(ids), dim)
	for i, id := range ids {
		if id < 0 || int(id) >= vocab {
			return nil, fmt.Errorf("token %d ausserhalb des vokabulars (%d)", id, vocab)
		}
		copy(out.Row(i), e.Weight.Row(int(id)))
	}
	return out, nil
}

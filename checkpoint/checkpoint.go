// checkpoint.go - Trainings-Checkpoint beschaffen und lesen
//
// Enthaelt:
// - Ensure: Laedt den Checkpoint herunter falls er lokal fehlt
// - Load: Liest eine PyTorch-Datei (.pth/.bin) ueber gopickle
// - LoadPretrained: Gewichte eines Hub-Snapshots (safetensors, sonst .bin)
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/nlpodyssey/gopickle/pytorch"
	"github.com/nlpodyssey/gopickle/types"

	"github.com/imagecaption/captioner/ml"
	"github.com/imagecaption/captioner/model"
	"github.com/imagecaption/captioner/safetensors"
)

// StateDictKey ist der Schluessel unter dem das Trainingsskript die Gewichte ablegt
const StateDictKey = "model_state_dict"

// Dateinamen vortrainierter Gewichte in einem Hub-Snapshot
const (
	SafetensorsFile = "model.safetensors"
	PyTorchFile     = "pytorch_model.bin"
)

var (
	// ErrNoWeights wird zurueckgegeben wenn ein Snapshot keine Gewichte enthaelt
	ErrNoWeights = errors.New("checkpoint: keine gewichte gefunden")
	// ErrFormat wird bei unerwarteten Pickle-Strukturen zurueckgegeben
	ErrFormat = errors.New("checkpoint: unerwartetes format")
)

// Fetcher laedt eine URL nach dst (huggingface.Client erfuellt das Interface)
type Fetcher interface {
	FetchURL(ctx context.Context, url, dst string) error
}

// Ensure stellt sicher, dass path existiert. Fehlt die Datei und ist url
// gesetzt, wird sie einmalig heruntergeladen. Rueckgabe: ob danach ein
// Checkpoint vorhanden ist.
func Ensure(ctx context.Context, path, url string, fetcher Fetcher) (bool, error) {
	if path == "" {
		return false, nil
	}
	if _, err := os.Stat(path); err == nil {
		slog.Debug("checkpoint present", "path", path)
		return true, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("checkpoint pruefen fehlgeschlagen: %w", err)
	}

	if url == "" || fetcher == nil {
		return false, nil
	}

	slog.Info("checkpoint not found locally, downloading", "path", path, "url", url)
	if err := fetcher.FetchURL(ctx, url, path); err != nil {
		return false, err
	}
	return true, nil
}

// Load liest einen PyTorch-Checkpoint. Liegt ein model_state_dict Eintrag
// vor, wird dieser verwendet, sonst wird die Wurzel als flaches State-Dict
// interpretiert.
func Load(path string) (model.StateDict, error) {
	start := time.Now()

	root, err := pytorch.Load(path)
	if err != nil {
		return nil, fmt.Errorf("checkpoint laden fehlgeschlagen: %w", err)
	}

	entries, err := mapping(root)
	if err != nil {
		return nil, err
	}

	if inner, ok := entries[StateDictKey]; ok {
		if entries, err = mapping(inner); err != nil {
			return nil, fmt.Errorf("%s: %w", StateDictKey, err)
		}
	}

	sd := make(model.StateDict, len(entries))
	for name, v := range entries {
		pt, ok := v.(*pytorch.Tensor)
		if !ok {
			slog.Debug("skipping non-tensor entry", "key", name, "type", fmt.Sprintf("%T", v))
			continue
		}

		t, err := convert(pt)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		sd[name] = t
	}

	if len(sd) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoWeights, path)
	}

	slog.Info("checkpoint read", "path", path, "tensors", len(sd), "duration", time.Since(start))
	return sd, nil
}

// LoadPretrained liest die Gewichte aus einem Snapshot-Verzeichnis.
// model.safetensors hat Vorrang vor pytorch_model.bin.
func LoadPretrained(dir string) (model.StateDict, error) {
	if p := filepath.Join(dir, SafetensorsFile); exists(p) {
		return safetensors.Load(p)
	}
	if p := filepath.Join(dir, PyTorchFile); exists(p) {
		return Load(p)
	}
	return nil, fmt.Errorf("%w: %s", ErrNoWeights, dir)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// mapping wandelt dict und OrderedDict in eine Go-Map mit String-Schluesseln
func mapping(v any) (map[string]any, error) {
	out := make(map[string]any)
	switch d := v.(type) {
	case *types.Dict:
		for _, k := range d.Keys() {
			if s, ok := k.(string); ok {
				out[s] = d.MustGet(k)
			}
		}
	case *types.OrderedDict:
		for e := d.List.Front(); e != nil; e = e.Next() {
			entry := e.Value.(*types.OrderedDictEntry)
			if s, ok := entry.Key.(string); ok {
				out[s] = entry.Value
			}
		}
	default:
		return nil, fmt.Errorf("%w: wurzel ist %T", ErrFormat, v)
	}
	return out, nil
}

// convert kopiert einen (moeglicherweise gestrideten) Torch-Tensor in einen
// zusammenhaengenden float32-Tensor
func convert(pt *pytorch.Tensor) (*ml.Tensor, error) {
	var data []float32
	switch s := pt.Source.(type) {
	case *pytorch.FloatStorage:
		data = s.Data
	case *pytorch.HalfStorage:
		data = s.Data
	case *pytorch.BFloat16Storage:
		data = s.Data
	case *pytorch.DoubleStorage:
		data = make([]float32, len(s.Data))
		for i, v := range s.Data {
			data[i] = float32(v)
		}
	default:
		return nil, fmt.Errorf("%w: storage %T", ErrFormat, pt.Source)
	}

	shape := pt.Size
	if len(shape) == 0 {
		shape = []int{1}
	}

	return gather(data, pt.StorageOffset, pt.Size, pt.Stride, shape)
}

// gather liest die Elemente ueber offset und strides in row-major Reihenfolge
func gather(data []float32, offset int, size, stride, shape []int) (*ml.Tensor, error) {
	out := ml.New(shape...)
	if len(size) != len(stride) {
		return nil, fmt.Errorf("%w: size %v, stride %v", ErrFormat, size, stride)
	}

	idx := make([]int, len(size))
	for i := range out.Data {
		pos := offset
		for d, j := range idx {
			pos += j * stride[d]
		}
		if pos < 0 || pos >= len(data) {
			return nil, fmt.Errorf("%w: index %d ausserhalb des storage (%d)", ErrFormat, pos, len(data))
		}
		out.Data[i] = data[pos]

		for d := len(idx) - 1; d >= 0; d-- {
			idx[d]++
			if idx[d] < size[d] {
				break
			}
			idx[d] = 0
		}
	}
	return out, nil
}

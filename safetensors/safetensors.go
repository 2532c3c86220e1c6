// safetensors.go - Reader und Writer fuer das safetensors-Format
//
// Enthaelt:
// - Load, Read: 8-Byte Header-Laenge, JSON-Header, Rohdaten -> StateDict
// - Write: Schreibt ein StateDict als F32 (Fixtures und Export)
// - decode: F32/F16/BF16/F64 nach float32

package safetensors

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"

	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"

	"github.com/imagecaption/captioner/ml"
	"github.com/imagecaption/captioner/model"
)

// ErrInvalidHeader wird bei beschaedigten Headern zurueckgegeben
var ErrInvalidHeader = errors.New("safetensors: invalid header")

// maxHeaderSize begrenzt den JSON-Header (wie die Referenz-Implementierung)
const maxHeaderSize = 100 << 20

type tensorInfo struct {
	DType   string   `json:"dtype"`
	Shape   []int    `json:"shape"`
	Offsets [2]int64 `json:"data_offsets"`
}

// Load liest eine .safetensors Datei vollstaendig
func Load(path string) (model.StateDict, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("safetensors oeffnen fehlgeschlagen: %w", err)
	}
	defer f.Close()

	return Read(f)
}

// Read parst safetensors aus einem Reader
func Read(r io.Reader) (model.StateDict, error) {
	var n uint64
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("%w: laenge: %v", ErrInvalidHeader, err)
	}
	if n == 0 || n > maxHeaderSize {
		return nil, fmt.Errorf("%w: laenge %d", ErrInvalidHeader, n)
	}

	header := make([]byte, n)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(header, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}
	delete(raw, "__metadata__")

	infos := make(map[string]tensorInfo, len(raw))
	var end int64
	for name, msg := range raw {
		var info tensorInfo
		if err := json.Unmarshal(msg, &info); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidHeader, name, err)
		}
		if info.Offsets[0] < 0 || info.Offsets[1] < info.Offsets[0] {
			return nil, fmt.Errorf("%w: %s: offsets %v", ErrInvalidHeader, name, info.Offsets)
		}
		infos[name] = info
		end = max(end, info.Offsets[1])
	}

	data := make([]byte, end)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("safetensors daten lesen fehlgeschlagen: %w", err)
	}

	sd := make(model.StateDict, len(infos))
	for name, info := range infos {
		t, err := decode(info, data[info.Offsets[0]:info.Offsets[1]])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		sd[name] = t
	}
	return sd, nil
}

func decode(info tensorInfo, b []byte) (*ml.Tensor, error) {
	dtype, err := ml.ParseDType(info.DType)
	if err != nil {
		return nil, err
	}

	count := 1
	for _, d := range info.Shape {
		count *= d
	}
	if len(b) != count*dtype.Size() {
		return nil, fmt.Errorf("%w: %d bytes fuer %v %s", ErrInvalidHeader, len(b), info.Shape, info.DType)
	}

	f32s := make([]float32, count)
	switch dtype {
	case ml.DTypeF32:
		for i := range f32s {
			f32s[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
		}
	case ml.DTypeF16:
		for i := range f32s {
			f32s[i] = float16.Frombits(binary.LittleEndian.Uint16(b[2*i:])).Float32()
		}
	case ml.DTypeBF16:
		f32s = bfloat16.DecodeFloat32(b)
	case ml.DTypeF64:
		for i := range f32s {
			f32s[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(b[8*i:])))
		}
	}

	shape := info.Shape
	if len(shape) == 0 {
		shape = []int{1}
	}
	return ml.FromData(f32s, shape...)
}

// Write schreibt sd als F32-safetensors mit sortierten Namen
func Write(w io.Writer, sd model.StateDict) error {
	names := sd.Keys()
	header := make(map[string]tensorInfo, len(names))

	var offset int64
	for _, name := range names {
		t := sd[name]
		size := int64(4 * t.Len())
		header[name] = tensorInfo{DType: "F32", Shape: slices.Clone(t.Shape), Offsets: [2]int64{offset, offset + size}}
		offset += size
	}

	bts, err := json.Marshal(header)
	if err != nil {
		return err
	}
	// Header auf 8 Byte ausrichten
	if pad := len(bts) % 8; pad != 0 {
		bts = append(bts, bytes.Repeat([]byte{' '}, 8-pad)...)
	}

	if err := binary.Write(w, binary.LittleEndian, uint64(len(bts))); err != nil {
		return err
	}
	if _, err := w.Write(bts); err != nil {
		return err
	}
	for _, name := range names {
		if err := binary.Write(w, binary.LittleEndian, sd[name].Data); err != nil {
			return err
		}
	}
	return nil
}

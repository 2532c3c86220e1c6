package safetensors

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/d4l3k/go-bfloat16"
	"github.com/google/go-cmp/cmp"
	"github.com/x448/float16"

	"github.com/imagecaption/captioner/ml"
	"github.com/imagecaption/captioner/model"
)

func TestWriteLoad(t *testing.T) {
	sd := model.StateDict{
		"projection.weight": {Shape: []int{2, 3}, Data: []float32{1, 2, 3, 4, 5, 6}},
		"projection.bias":   {Shape: []int{2}, Data: []float32{-1, 0.5}},
	}

	path := filepath.Join(t.TempDir(), "model.safetensors")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := Write(f, sd); err != nil {
		t.Fatal(err)
	}
	f.Close()

	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(sd, got); diff != "" {
		t.Errorf("StateDict (-want +got):\n%s", diff)
	}
}

// encodeRaw baut eine Datei mit einem einzelnen Tensor im gegebenen Format
func encodeRaw(t *testing.T, dtype string, shape []int, data []byte) []byte {
	t.Helper()
	header, err := json.Marshal(map[string]any{
		"__metadata__": map[string]string{"format": "pt"},
		"x": map[string]any{
			"dtype":        dtype,
			"shape":        shape,
			"data_offsets": []int{0, len(data)},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint64(len(header)))
	buf.Write(header)
	buf.Write(data)
	return buf.Bytes()
}

func TestReadHalfPrecision(t *testing.T) {
	want := []float32{1, -2, 0.5}

	f16 := make([]byte, 0, 6)
	for _, v := range want {
		f16 = binary.LittleEndian.AppendUint16(f16, float16.Fromfloat32(v).Bits())
	}

	cases := map[string][]byte{
		"F16":  f16,
		"BF16": bfloat16.EncodeFloat32(want),
	}

	for dtype, data := range cases {
		t.Run(dtype, func(t *testing.T) {
			sd, err := Read(bytes.NewReader(encodeRaw(t, dtype, []int{3}, data)))
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(&ml.Tensor{Shape: []int{3}, Data: want}, sd["x"]); diff != "" {
				t.Errorf("Tensor (-want +got):\n%s", diff)
			}
			if _, ok := sd["__metadata__"]; ok {
				t.Error("__metadata__ sollte ignoriert werden")
			}
		})
	}
}

func TestReadInvalid(t *testing.T) {
	cases := map[string][]byte{
		"zu kurz":         {1, 2},
		"riesiger header": binary.LittleEndian.AppendUint64(nil, 1<<40),
		"kein json":       append(binary.LittleEndian.AppendUint64(nil, 3), 'a', 'b', 'c'),
	}

	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Read(bytes.NewReader(data)); !errors.Is(err, ErrInvalidHeader) {
				t.Errorf("Fehler = %v, erwartet ErrInvalidHeader", err)
			}
		})
	}
}

func TestReadUnsupportedDType(t *testing.T) {
	data := encodeRaw(t, "I64", []int{1}, make([]byte, 8))
	if _, err := Read(bytes.NewReader(data)); err == nil {
		t.Error("Fehler erwartet fuer I64")
	}
}

package ml

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestReshape(t *testing.T) {
	x, err := FromData([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name    string
		shape   []int
		want    []int
		wantErr bool
	}{
		{"flach", []int{6}, []int{6}, false},
		{"abgeleitet", []int{3, -1}, []int{3, 2}, false},
		{"rang 3", []int{1, 2, 3}, []int{1, 2, 3}, false},
		{"falsche groesse", []int{4, 2}, nil, true},
		{"zwei unbekannte", []int{-1, -1}, nil, true},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			got, err := x.Reshape(tt.shape...)
			if tt.wantErr {
				if !errors.Is(err, ErrShape) {
					t.Fatalf("Fehler = %v, erwartet ErrShape", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, got.Shape); diff != "" {
				t.Errorf("Shape weicht ab (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPermute(t *testing.T) {
	// [2,3] -> [3,2]
	x, _ := FromData([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	got, err := x.Transpose2D()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float32{1, 4, 2, 5, 3, 6}, got.Data); diff != "" {
		t.Errorf("Transpose2D (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{3, 2}, got.Shape); diff != "" {
		t.Errorf("Shape (-want +got):\n%s", diff)
	}

	// Quelle bleibt unveraendert
	if x.Data[1] != 2 {
		t.Errorf("Quelle veraendert: %v", x.Data)
	}
}

func TestPermuteRank3(t *testing.T) {
	data := make([]float32, 24)
	for i := range data {
		data[i] = float32(i)
	}
	x, _ := FromData(data, 2, 3, 4)

	got, err := x.Permute(2, 0, 1)
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]int{4, 2, 3}, got.Shape); diff != "" {
		t.Fatalf("Shape (-want +got):\n%s", diff)
	}

	for a := range 2 {
		for b := range 3 {
			for c := range 4 {
				want := data[a*12+b*4+c]
				if v := got.Data[c*6+a*3+b]; v != want {
					t.Fatalf("got[%d,%d,%d] = %v, erwartet %v", c, a, b, v, want)
				}
			}
		}
	}
}

func TestRows(t *testing.T) {
	x := New(2, 3, 4)
	if x.Rows() != 6 || x.Cols() != 4 {
		t.Errorf("Rows/Cols = %d/%d, erwartet 6/4", x.Rows(), x.Cols())
	}
	x.Data[5] = 7
	if x.Row(1)[1] != 7 {
		t.Errorf("Row(1)[1] = %v, erwartet 7", x.Row(1)[1])
	}
	if x.Dim(-1) != 4 || x.Dim(0) != 2 {
		t.Errorf("Dim = %d/%d", x.Dim(-1), x.Dim(0))
	}
}

func TestDump(t *testing.T) {
	x, _ := FromData([]float32{1, -2, 3, 4}, 2, 2)
	got := Dump(x, DumpWithPrecision(1))
	want := "[[ 1.0, -2.0],\n [ 3.0,  4.0]]"
	if got != want {
		t.Errorf("Dump =\n%s\nerwartet\n%s", got, want)
	}
}

func TestDumpEdgeItems(t *testing.T) {
	large := New(dumpThreshold + 1)
	for i := range large.Data {
		large.Data[i] = float32(i)
	}
	got := Dump(large, DumpWithPrecision(1), DumpWithEdgeItems(2))
	want := "[ 0.0,  1.0, ...,  999.0,  1000.0]"
	if got != want {
		t.Errorf("Dump = %q, erwartet %q", got, want)
	}

	// kleine Tensoren ignorieren EdgeItems
	small, _ := FromData([]float32{1, 2, 3, 4, 5}, 5)
	if got := Dump(small, DumpWithPrecision(0), DumpWithEdgeItems(1)); got != "[ 1,  2,  3,  4,  5]" {
		t.Errorf("Dump = %q, erwartet alle Elemente", got)
	}
}

// dump.go - Dump-Funktionen fuer Tensor-Debugging
// Dieses Modul stellt Hilfsfunktionen zum Ausgeben von Tensor-Inhalten bereit.
package ml

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

type number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

func mul[T number](s ...T) T {
	p := T(1)
	for _, v := range s {
		p *= v
	}

	return p
}

// DumpOptions configures tensor dump output format.
type DumpOptions func(*dumpOptions)

// DumpWithPrecision sets the number of decimal places to print.
func DumpWithPrecision(n int) DumpOptions {
	return func(opts *dumpOptions) {
		opts.Precision = n
	}
}

// DumpWithEdgeItems sets the number of elements to print at the beginning and end of each dimension.
func DumpWithEdgeItems(n int) DumpOptions {
	return func(opts *dumpOptions) {
		opts.EdgeItems = n
	}
}

type dumpOptions struct {
	Precision, EdgeItems int
}

// Tensoren bis zu dieser Groesse werden komplett ausgegeben
const dumpThreshold = 1000

// Dump converts a tensor to a human-readable string representation.
func Dump(t *Tensor, optsFuncs ...DumpOptions) string {
	opts := dumpOptions{Precision: 4, EdgeItems: 3}
	for _, optsFunc := range optsFuncs {
		optsFunc(&opts)
	}

	if len(t.Data) <= dumpThreshold {
		opts.EdgeItems = math.MaxInt
	}

	if len(t.Shape) == 0 {
		return "[]"
	}

	return dump(t.Data, slices.Clone(t.Shape), opts.EdgeItems, func(f float32) string {
		return strconv.FormatFloat(float64(f), 'f', opts.Precision, 32)
	})
}

func dump[S ~[]E, E number](s S, shape []int, items int, fn func(E) string) string {
	var sb strings.Builder
	var f func([]int, int)
	f = func(dims []int, stride int) {
		prefix := strings.Repeat(" ", len(shape)-len(dims)+1)
		sb.WriteString("[")
		defer func() { sb.WriteString("]") }()
		for i := 0; i < dims[0]; i++ {
			if i >= items && i < dims[0]-items {
				sb.WriteString("..., ")
				// zum naechsten druckbaren Element springen
				skip := dims[0] - 2*items
				if len(dims) > 1 {
					stride += skip * mul(dims[1:]...)
					fmt.Fprint(&sb, strings.Repeat("\n", len(dims)-1), prefix)
				}
				i += skip - 1
			} else if len(dims) > 1 {
				f(dims[1:], stride)
				stride += mul(dims[1:]...)
				if i < dims[0]-1 {
					fmt.Fprint(&sb, ",", strings.Repeat("\n", len(dims)-1), prefix)
				}
			} else {
				text := fn(s[stride+i])
				if len(text) > 0 && text[0] != '-' {
					sb.WriteString(" ")
				}

				sb.WriteString(text)
				if i < dims[0]-1 {
					sb.WriteString(", ")
				}
			}
		}
	}
	f(shape, 0)

	return sb.String()
}

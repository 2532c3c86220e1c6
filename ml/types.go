// types.go - Datentypen der Gewichtsquellen
// Dieses Modul definiert DType fuer Checkpoint- und Safetensors-Eintraege.
package ml

import "fmt"

// DType beschreibt den Quelldatentyp eines Tensors vor der Umwandlung nach float32.
type DType int

const (
	DTypeOther DType = iota
	DTypeF32
	DTypeF16
	DTypeBF16
	DTypeF64
)

// ParseDType liest die Kuerzel aus safetensors-Headern ("F32", "F16", "BF16", "F64").
func ParseDType(s string) (DType, error) {
	switch s {
	case "F32":
		return DTypeF32, nil
	case "F16":
		return DTypeF16, nil
	case "BF16":
		return DTypeBF16, nil
	case "F64":
		return DTypeF64, nil
	default:
		return DTypeOther, fmt.Errorf("nicht unterstuetzter datentyp %q", s)
	}
}

func (d DType) String() string {
	switch d {
	case DTypeF32:
		return "F32"
	case DTypeF16:
		return "F16"
	case DTypeBF16:
		return "BF16"
	case DTypeF64:
		return "F64"
	default:
		return "other"
	}
}

// Size gibt die Byte-Groesse eines Elements zurueck
func (d DType) Size() int {
	switch d {
	case DTypeF16, DTypeBF16:
		return 2
	case DTypeF32:
		return 4
	case DTypeF64:
		return 8
	default:
		return 0
	}
}

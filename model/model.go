// Package model - Gewichts-Zuordnung fuer Modellstrukturen
//
// Dieses Paket befuellt Modellstrukturen aus einer Zuordnung
// Parametername -> Tensor, wie sie Checkpoints und safetensors liefern.
//
// Hauptkomponenten:
// - StateDict: Parametername -> Tensor
// - LoadReport: Fehlende und unerwartete Schluessel eines Ladevorgangs
// - Populate: Befuellt eine Struktur anhand ihrer pt-Tags
package model

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/imagecaption/captioner/ml"
)

// ErrShapeMismatch wird zurueckgegeben wenn ein Tensor im StateDict nicht zur Zielform passt
var ErrShapeMismatch = errors.New("model: tensor shape mismatch")

// StateDict ordnet Parameternamen Tensoren zu
type StateDict map[string]*ml.Tensor

// WithPrefix gibt die Eintraege mit dem Praefix zurueck, das Praefix wird entfernt
func (sd StateDict) WithPrefix(prefix string) StateDict {
	out := make(StateDict)
	for k, v := range sd {
		if rest, ok := strings.CutPrefix(k, prefix); ok {
			out[rest] = v
		}
	}
	return out
}

// Keys gibt alle Schluessel sortiert zurueck
func (sd StateDict) Keys() []string {
	keys := make([]string, 0, len(sd))
	for k := range sd {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// LoadReport beschreibt das Ergebnis eines toleranten Ladevorgangs
type LoadReport struct {
	Loaded     int
	Missing    []string
	Unexpected []string
	Ignored    []string // bewusst uebergangene Schluessel, keine Warnung
}

// Clean ist true wenn alle Schluessel zugeordnet wurden (Ignored zaehlt nicht)
func (r LoadReport) Clean() bool {
	return len(r.Missing) == 0 && len(r.Unexpected) == 0
}

// Populate befuellt alle *ml.Tensor-Felder von v (Pointer auf Struct) aus sd.
// Feldnamen ergeben sich aus den pt-Tags der Pfade, verbunden mit ".".
// Felder ohne Eintrag behalten ihren Wert und erscheinen in Missing, Schluessel
// ohne Feld erscheinen in Unexpected. Passt die Form eines vorbelegten Feldes
// nicht, bricht Populate mit ErrShapeMismatch ab.
func Populate(v any, sd StateDict) (LoadReport, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return LoadReport{}, fmt.Errorf("populate: pointer auf struct erwartet, %T erhalten", v)
	}

	p := &populator{sd: sd, used: make(map[string]bool)}
	p.fields(rv.Elem())
	if p.err != nil {
		return LoadReport{}, p.err
	}

	for _, k := range sd.Keys() {
		if !p.used[k] {
			p.report.Unexpected = append(p.report.Unexpected, k)
		}
	}
	if len(p.report.Missing) == 0 {
		p.report.Missing = nil
	}
	slices.Sort(p.report.Missing)
	return p.report, nil
}

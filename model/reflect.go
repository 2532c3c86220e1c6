// Package model - Reflection-basierte Tensor-Population
//
// Dieses Modul enthaelt die Reflection-Logik zum Befuellen
// von Modell-Strukturen mit Tensoren aus einem StateDict.
//
// Hauptkomponenten:
// - populator.fields: Befuellt Strukturfelder rekursiv mit Tensoren
// - populator.pointer: Setzt Pointer-Felder in Strukturen
// - Tag: pt-Tag-Struktur fuer Parameternamen
// - parseTag: Parst pt-Tags aus Struct-Tags
// - Collect: Umkehrung von Populate (Struktur -> StateDict)

package model

import (
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/imagecaption/captioner/logutil"
	"github.com/imagecaption/captioner/ml"
)

// Tag repraesentiert einen geparsten pt-Tag
type Tag struct {
	name,
	// prefix und suffix werden auf Kind-Tags angewendet
	prefix,
	suffix string
	alternatives []string
	optional     bool
}

// parseTag parst einen pt-Tag-String in eine Tag-Struktur
func parseTag(s string) (tag Tag) {
	parts := strings.Split(s, ",")
	if len(parts) > 0 {
		tag.name = parts[0]

		for _, part := range parts[1:] {
			if value, ok := strings.CutPrefix(part, "alt:"); ok && tag.name == "" {
				// Alternative zum Primaernamen erheben wenn kein Primaername
				tag.name = value
				slog.Warn("pt tag has alt: but no primary name", "tag", s)
			} else if ok {
				tag.alternatives = append(tag.alternatives, value)
			}
			if value, ok := strings.CutPrefix(part, "pre:"); ok {
				tag.prefix = value
			}
			if value, ok := strings.CutPrefix(part, "suf:"); ok {
				tag.suffix = value
			}
			if part == "optional" {
				tag.optional = true
			}
		}
	}

	return
}

var tensorType = reflect.TypeOf((*ml.Tensor)(nil))

type populator struct {
	sd     StateDict
	used   map[string]bool
	report LoadReport
	err    error
}

// fields befuellt Strukturfelder rekursiv. Gibt false zurueck wenn nichts gesetzt ist.
func (p *populator) fields(v reflect.Value, tags ...Tag) bool {
	t := v.Type()
	if t.Kind() != reflect.Struct {
		return false
	}

	found := false
	for i := range t.NumField() {
		if p.err != nil {
			return found
		}

		tt := t.Field(i).Type
		vv := v.Field(i)
		if !vv.CanSet() {
			continue
		}

		tag := t.Field(i).Tag.Get("pt")
		if tag == "-" {
			continue
		}

		// Kopie erstellen
		tagsCopy := slices.Clone(tags)
		if tag != "" {
			tagsCopy = append(tagsCopy, parseTag(tag))
		}

		switch {
		case tt == tensorType:
			if p.tensor(vv, tagsCopy) {
				found = true
			}
		case tt.Kind() == reflect.Pointer && tt.Elem().Kind() == reflect.Struct:
			if p.pointer(vv, tagsCopy) {
				found = true
			}
		case tt.Kind() == reflect.Struct:
			if p.fields(vv, tagsCopy...) {
				found = true
			}
		case tt.Kind() == reflect.Slice || tt.Kind() == reflect.Array:
			for i := range vv.Len() {
				vvv := vv.Index(i)
				idx := append(slices.Clone(tagsCopy), Tag{name: strconv.Itoa(i)})
				if vvv.Kind() == reflect.Pointer {
					if p.pointer(vvv, idx) {
						found = true
					}
				} else if p.fields(vvv, idx...) {
					found = true
				}
			}
		}
	}

	return found
}

// tensor setzt ein *ml.Tensor-Feld aus dem ersten passenden Namen
func (p *populator) tensor(v reflect.Value, tags []Tag) bool {
	names := buildTensorNames(tags, "", "")
	if len(names) == 0 {
		return false
	}

	current, _ := v.Interface().(*ml.Tensor)
	for _, name := range names {
		key := strings.Join(name, ".")
		tensor, ok := p.sd[key]
		if !ok {
			continue
		}

		if current != nil && !current.SameShape(tensor) {
			p.err = fmt.Errorf("%w: %s ist %v, erwartet %v", ErrShapeMismatch, key, tensor.Shape, current.Shape)
			return false
		}

		logutil.Trace("found tensor", "name", key, "shape", tensor.Shape)
		v.Set(reflect.ValueOf(tensor))
		p.used[key] = true
		p.report.Loaded++
		return true
	}

	optional := len(tags) > 0 && tags[len(tags)-1].optional
	if current != nil || !optional {
		p.report.Missing = append(p.report.Missing, strings.Join(names[0], "."))
	}
	return current != nil
}

// buildTensorNames baut die vollstaendigen Tensor-Namen aus Tags
func buildTensorNames(tags []Tag, prefix, suffix string) (fullNames [][]string) {
	if len(tags) > 0 {
		var names []string
		if tags[0].name != "" {
			for _, n := range append([]string{tags[0].name}, tags[0].alternatives...) {
				names = append(names, prefix+n+suffix)
			}
		}
		childNames := buildTensorNames(tags[1:], tags[0].prefix, tags[0].suffix)
		if len(names) == 0 {
			// Aktueller Tag hat keinen Namen, nur Kind-Namen verwenden
			fullNames = append(fullNames, childNames...)
		} else if len(childNames) == 0 {
			// Aktueller Tag hat Namen aber keine Kinder, Branches fuer jeden Namen erstellen
			for _, name := range names {
				fullNames = append(fullNames, []string{name})
			}
		} else {
			// Jeden Namen mit jedem Kind zusammenfuehren
			for _, name := range names {
				for _, childName := range childNames {
					fullNames = append(fullNames, append([]string{name}, childName...))
				}
			}
		}
	}

	return fullNames
}

// pointer befuellt ein Pointer-auf-Struct-Feld. Ein nil-Pointer wird nur
// gesetzt wenn mindestens ein Tensor gefunden wurde.
func (p *populator) pointer(v reflect.Value, tags []Tag) bool {
	if !v.IsNil() {
		return p.fields(v.Elem(), tags...)
	}

	fresh := reflect.New(v.Type().Elem())
	missing := len(p.report.Missing)
	if p.fields(fresh.Elem(), tags...) {
		v.Set(fresh)
		return true
	}

	// Nicht angelegte Teilstrukturen gelten als abwesend, nicht als fehlend
	p.report.Missing = p.report.Missing[:missing]
	return false
}

// Collect ist die Umkehrung von Populate: alle gesetzten Tensoren von v
// unter ihrem Primaernamen
func Collect(v any) StateDict {
	sd := make(StateDict)
	collect(reflect.ValueOf(v), nil, sd)
	return sd
}

func collect(v reflect.Value, tags []Tag, sd StateDict) {
	switch {
	case v.Type() == tensorType:
		if v.IsNil() {
			return
		}
		if names := buildTensorNames(tags, "", ""); len(names) > 0 {
			sd[strings.Join(names[0], ".")] = v.Interface().(*ml.Tensor)
		}
	case v.Kind() == reflect.Pointer:
		if !v.IsNil() {
			collect(v.Elem(), tags, sd)
		}
	case v.Kind() == reflect.Struct:
		t := v.Type()
		for i := range t.NumField() {
			if !t.Field(i).IsExported() {
				continue
			}
			tag := t.Field(i).Tag.Get("pt")
			if tag == "-" {
				continue
			}
			child := slices.Clone(tags)
			if tag != "" {
				child = append(child, parseTag(tag))
			}
			collect(v.Field(i), child, sd)
		}
	case v.Kind() == reflect.Slice || v.Kind() == reflect.Array:
		for i := range v.Len() {
			collect(v.Index(i), append(slices.Clone(tags), Tag{name: strconv.Itoa(i)}), sd)
		}
	}
}

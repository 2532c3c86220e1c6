// validator.go - Einheitliche Pruefung von LLM-Antworten
//
// Dieses Modul enthaelt:
// - Verdict: Accepted(value) oder Rejected(reason)
// - Rule: Einzelne Regel ueber einen extrahierten Wert
// - ResponseValidator: Feld extrahieren und alle Regeln anwenden
// - Regeln: NonEmpty, NoFailureMarkers, WordBand, NotPlaceholder, HashtagShape
// - Vorkonfigurierte Validatoren fuer Verfeinerung, Hashtags und Uebersetzung
package llm

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
)

// Verdict ist das Ergebnis einer Pruefung
type Verdict[T any] struct {
	Value    T
	Reason   string
	accepted bool
}

// Accepted erzeugt ein positives Verdict
func Accepted[T any](v T) Verdict[T] {
	return Verdict[T]{Value: v, accepted: true}
}

// Rejected erzeugt ein negatives Verdict mit Begruendung
func Rejected[T any](reason string) Verdict[T] {
	return Verdict[T]{Reason: reason}
}

// OK meldet ob der Wert akzeptiert wurde
func (v Verdict[T]) OK() bool {
	return v.accepted
}

func (v Verdict[T]) String() string {
	if v.accepted {
		return fmt.Sprintf("accepted(%v)", v.Value)
	}
	return fmt.Sprintf("rejected(%s)", v.Reason)
}

// Rule gibt einen Ablehnungsgrund zurueck oder "" wenn der Wert passt
type Rule[T any] func(T) string

// ResponseValidator extrahiert Field aus einer Antwort und prueft Rules der Reihe nach
type ResponseValidator[T any] struct {
	Field   string
	Extract func(r *Response, field string) (T, bool)
	Rules   []Rule[T]
}

// Validate prueft eine geparste Antwort
func (v ResponseValidator[T]) Validate(r *Response) Verdict[T] {
	if !r.Has(v.Field) {
		return Rejected[T](fmt.Sprintf("field %q missing", v.Field))
	}
	value, ok := v.Extract(r, v.Field)
	if !ok {
		return Rejected[T](fmt.Sprintf("field %q has unexpected type", v.Field))
	}
	return v.Check(value)
}

// Check wendet nur die Regeln auf einen bereits extrahierten Wert an
func (v ResponseValidator[T]) Check(value T) Verdict[T] {
	for _, rule := range v.Rules {
		if reason := rule(value); reason != "" {
			return Rejected[T](reason)
		}
	}
	return Accepted(value)
}

// =============================================================================
// Regeln
// =============================================================================

// failureMarkers sind Wortanfaenge, die auf eine Fehlermeldung statt Inhalt hindeuten
var failureMarkers = []string{"error", "fail", "exception", "traceback"}

// failurePhrases werden als Teilstring (klein geschrieben) gesucht
var failurePhrases = []string{"timed out", "unable to", "unknown error", "api request"}

// ContainsFailureMarker prueft einen Text auf Fehlerhinweise
func ContainsFailureMarker(s string) bool {
	lower := strings.ToLower(s)
	for _, p := range failurePhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}

	words := strings.FieldsFunc(lower, func(r rune) bool { return !unicode.IsLetter(r) })
	for _, w := range words {
		for _, m := range failureMarkers {
			if strings.HasPrefix(w, m) {
				return true
			}
		}
	}
	return false
}

// WordCount zaehlt durch Leerraum getrennte Woerter
func WordCount(s string) int {
	return len(strings.Fields(s))
}

// NonEmpty lehnt leere oder nur aus Leerraum bestehende Texte ab
func NonEmpty(s string) string {
	if strings.TrimSpace(s) == "" {
		return "empty value"
	}
	return ""
}

// NoFailureMarkers lehnt Texte ab, die wie eine Fehlermeldung aussehen
func NoFailureMarkers(s string) string {
	if ContainsFailureMarker(s) {
		return "value looks like an error message"
	}
	return ""
}

// WordBand akzeptiert nur Texte mit min..max Woertern (inklusive)
func WordBand(minWords, maxWords int) Rule[string] {
	return func(s string) string {
		n := WordCount(s)
		if n < minWords || n > maxWords {
			return fmt.Sprintf("%d words outside band %d-%d", n, minWords, maxWords)
		}
		return ""
	}
}

// NotPlaceholder lehnt Texte ab, die nur den Platzhalter aus dem Prompt wiederholen
func NotPlaceholder(placeholder string, maxDistance int) Rule[string] {
	placeholder = strings.ToLower(placeholder)
	return func(s string) string {
		if levenshtein.ComputeDistance(strings.ToLower(strings.TrimSpace(s)), placeholder) <= maxDistance {
			return "value echoes the prompt placeholder"
		}
		return ""
	}
}

// HashtagShape verlangt eine nicht-leere Liste nicht-leerer Eintraege. Die
// Tags kommen unveraendert zurueck, auch ohne fuehrendes "#".
func HashtagShape(tags []string) string {
	if len(tags) == 0 {
		return "no hashtags"
	}
	for i, tag := range tags {
		if strings.TrimSpace(tag) == "" {
			return fmt.Sprintf("empty hashtag at position %d", i)
		}
	}
	return ""
}

// NoPlaceholderTags lehnt die Beispiel-Tags aus dem Prompt ab
func NoPlaceholderTags(tags []string) string {
	for _, tag := range tags {
		bare := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(tag)), "#")
		if strings.HasPrefix(bare, "tag") && len(bare) <= 4 {
			return "hashtags echo the prompt example"
		}
	}
	return ""
}

// =============================================================================
// Validatoren pro Aufrufart
// =============================================================================

func stringField(r *Response, field string) (string, bool) {
	s, ok := r.String(field)
	return strings.TrimSpace(s), ok
}

// RefinementValidator prueft das Feld refined_caption
func RefinementValidator(minWords, maxWords int) ResponseValidator[string] {
	return ResponseValidator[string]{
		Field:   FieldRefinedCaption,
		Extract: stringField,
		Rules: []Rule[string]{
			NonEmpty,
			NoFailureMarkers,
			NotPlaceholder(refinePlaceholder, 3),
			WordBand(minWords, maxWords),
		},
	}
}

// HashtagValidator prueft das Feld hashtags
func HashtagValidator() ResponseValidator[[]string] {
	return ResponseValidator[[]string]{
		Field:   FieldHashtags,
		Extract: (*Response).Strings,
		Rules:   []Rule[[]string]{HashtagShape, NoPlaceholderTags},
	}
}

// TranslationValidator prueft einen bereits gefundenen Uebersetzungstext
func TranslationValidator() ResponseValidator[string] {
	return ResponseValidator[string]{
		Field:   FieldTranslatedText,
		Extract: stringField,
		Rules:   []Rule[string]{NonEmpty},
	}
}

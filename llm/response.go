// response.go - Parsen der LLM-Antworten
//
// Dieses Modul enthaelt:
// - Response: JSON-Objekt der Antwort mit erhaltener Feldreihenfolge
// - ParseResponse: Strikter Parser (Markdown-Codebloecke werden entfernt)
// - ErrMalformedResponse: Antwort ist kein JSON-Objekt
package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ErrMalformedResponse wird zurueckgegeben, wenn die Antwort kein JSON-Objekt ist
var ErrMalformedResponse = errors.New("llm: malformed response")

// Response ist eine geparste LLM-Antwort
type Response struct {
	Raw    string
	fields *orderedmap.OrderedMap[string, any]
}

// ParseResponse parst raw als JSON-Objekt. Ein umschliessender
// Markdown-Codeblock (```json ... ```) wird vorher entfernt.
func ParseResponse(raw string) (*Response, error) {
	body := stripCodeFence(raw)
	if !strings.HasPrefix(body, "{") {
		return nil, fmt.Errorf("%w: kein JSON-Objekt: %q", ErrMalformedResponse, truncate(raw, 120))
	}

	fields := orderedmap.New[string, any]()
	if err := json.Unmarshal([]byte(body), fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	return &Response{Raw: raw, fields: fields}, nil
}

// Get gibt den Rohwert eines Feldes zurueck
func (r *Response) Get(key string) (any, bool) {
	if r == nil || r.fields == nil {
		return nil, false
	}
	return r.fields.Get(key)
}

// Has prueft ob das Feld existiert
func (r *Response) Has(key string) bool {
	_, ok := r.Get(key)
	return ok
}

// String gibt ein String-Feld zurueck
func (r *Response) String(key string) (string, bool) {
	v, ok := r.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Strings gibt ein Feld mit einer Liste von Strings zurueck.
// Jedes Nicht-String-Element macht das Feld ungueltig.
func (r *Response) Strings(key string) ([]string, bool) {
	v, ok := r.Get(key)
	if !ok {
		return nil, false
	}
	list, ok := v.([]any)
	if !ok {
		return nil, false
	}

	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

// FirstString gibt das erste String-Feld in Antwortreihenfolge zurueck
func (r *Response) FirstString() (string, string, bool) {
	if r == nil || r.fields == nil {
		return "", "", false
	}
	for pair := r.fields.Oldest(); pair != nil; pair = pair.Next() {
		if s, ok := pair.Value.(string); ok {
			return pair.Key, s, true
		}
	}
	return "", "", false
}

// Len ist die Anzahl der Felder
func (r *Response) Len() int {
	if r == nil || r.fields == nil {
		return 0
	}
	return r.fields.Len()
}

// Stringify serialisiert die Antwort wieder als JSON (Feldreihenfolge bleibt)
func (r *Response) Stringify() string {
	if r == nil || r.fields == nil {
		return "{}"
	}
	bts, err := json.Marshal(r.fields)
	if err != nil {
		return r.Raw
	}
	return string(bts)
}

func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```")
	// Sprachkennung wie "json" bis zum Zeilenende ueberspringen
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

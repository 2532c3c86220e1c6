// tokenizer.go - SentencePiece-Unigram Vokabular (tokenizer.json Format)
//
// Enthaelt:
// - Tokenizer: Stuecke, Bewertungen und Sondertokens
// - Load, LoadFromBytes: Parst das HF tokenizer.json eines T5-Modells
// - PadID, EOSID, UNKID, IsSpecial, VocabSize

package tokenizer

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"
)

// ErrUnsupportedModel wird fuer andere Modelltypen als Unigram zurueckgegeben
var ErrUnsupportedModel = errors.New("tokenizer: unsupported model type")

const spaceMarker = "▁"

// Tokenizer bildet Text auf T5-Token-IDs ab und zurueck
type Tokenizer struct {
	pieces  []string
	scores  []float64
	ids     map[string]int32
	special map[int32]bool

	unk, pad, eos int32
	maxPieceLen   int
	minScore      float64
}

// Load liest tokenizer.json aus einer Datei oder einem Verzeichnis
func Load(path string) (*Tokenizer, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, "tokenizer.json")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tokenizer lesen fehlgeschlagen: %w", err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes parst tokenizer.json Bytes
func LoadFromBytes(data []byte) (*Tokenizer, error) {
	var raw struct {
		Model struct {
			Type  string            `json:"type"`
			UnkID *int32            `json:"unk_id"`
			Vocab []json.RawMessage `json:"vocab"`
		} `json:"model"`
		AddedTokens []struct {
			ID      int32  `json:"id"`
			Content string `json:"content"`
			Special bool   `json:"special"`
		} `json:"added_tokens"`
	}

	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("tokenizer parsen fehlgeschlagen: %w", err)
	}
	if raw.Model.Type != "Unigram" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedModel, raw.Model.Type)
	}

	t := &Tokenizer{
		pieces:  make([]string, 0, len(raw.Model.Vocab)),
		scores:  make([]float64, 0, len(raw.Model.Vocab)),
		ids:     make(map[string]int32, len(raw.Model.Vocab)),
		special: make(map[int32]bool),
		unk:     -1,
		pad:     -1,
		eos:     -1,
	}

	for i, entry := range raw.Model.Vocab {
		// Jeder Eintrag ist [piece, score]
		var pair []any
		if err := json.Unmarshal(entry, &pair); err != nil || len(pair) != 2 {
			return nil, fmt.Errorf("vokabular eintrag %d ungueltig: %s", i, entry)
		}
		piece, ok := pair[0].(string)
		score, ok2 := pair[1].(float64)
		if !ok || !ok2 {
			return nil, fmt.Errorf("vokabular eintrag %d ungueltig: %s", i, entry)
		}
		t.add(piece, score)
	}

	for _, tok := range raw.AddedTokens {
		for int(tok.ID) >= len(t.pieces) {
			t.add("", 0)
		}
		t.pieces[tok.ID] = tok.Content
		t.ids[tok.Content] = tok.ID
		if tok.Special {
			t.special[tok.ID] = true
		}
	}

	if raw.Model.UnkID != nil {
		t.unk = *raw.Model.UnkID
	} else if id, ok := t.ids["<unk>"]; ok {
		t.unk = id
	}
	if id, ok := t.ids["<pad>"]; ok {
		t.pad = id
	}
	if id, ok := t.ids["</s>"]; ok {
		t.eos = id
	}

	if t.pad < 0 || t.eos < 0 {
		return nil, fmt.Errorf("tokenizer: <pad> oder </s> fehlt im vokabular")
	}
	for _, id := range []int32{t.pad, t.eos, t.unk} {
		if id >= 0 {
			t.special[id] = true
		}
	}
	return t, nil
}

func (t *Tokenizer) add(piece string, score float64) {
	id := int32(len(t.pieces))
	t.pieces = append(t.pieces, piece)
	t.scores = append(t.scores, score)
	if piece != "" {
		if _, ok := t.ids[piece]; !ok {
			t.ids[piece] = id
		}
	}
	t.maxPieceLen = max(t.maxPieceLen, utf8.RuneCountInString(piece))
	t.minScore = min(t.minScore, score)
}

// PadID ist zugleich das Decoder-Start-Token von T5
func (t *Tokenizer) PadID() int32 { return t.pad }

// EOSID ist das Ende-Token "</s>"
func (t *Tokenizer) EOSID() int32 { return t.eos }

// UNKID ist das Token fuer unbekannte Zeichen, -1 wenn nicht vorhanden
func (t *Tokenizer) UNKID() int32 { return t.unk }

// VocabSize ist die Anzahl bekannter Stuecke
func (t *Tokenizer) VocabSize() int { return len(t.pieces) }

// IsSpecial meldet Sondertokens (<pad>, </s>, <unk>, <extra_id_*>)
func (t *Tokenizer) IsSpecial(id int32) bool {
	return t.special[id]
}

// Piece gibt das Stueck zu einer ID zurueck
func (t *Tokenizer) Piece(id int32) string {
	if id < 0 || int(id) >= len(t.pieces) {
		return ""
	}
	return t.pieces[id]
}

// encode.go - Text zu Token-IDs kodieren
//
// Enthaelt:
// - Encode: NFKC, Leerzeichen -> ▁, Viterbi ueber die Stueck-Bewertungen, EOS am Ende

package tokenizer

import (
	"math"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// unknownPenalty liegt unter jeder Stueck-Bewertung, damit <unk> nur als letzte Wahl dient
const unknownPenalty = 10.0

// Encode zerlegt text in die wahrscheinlichste Stueck-Folge und haengt EOS an
func (t *Tokenizer) Encode(text string) []int32 {
	normalized := strings.Join(strings.Fields(norm.NFKC.String(text)), " ")
	if normalized == "" {
		return []int32{t.eos}
	}

	runes := []rune(spaceMarker + strings.ReplaceAll(normalized, " ", spaceMarker))
	n := len(runes)

	best := make([]float64, n+1)
	prev := make([]int, n+1)
	ids := make([]int32, n+1)
	for i := 1; i <= n; i++ {
		best[i] = math.Inf(-1)
	}

	for end := 1; end <= n; end++ {
		for start := max(0, end-t.maxPieceLen); start < end; start++ {
			if math.IsInf(best[start], -1) {
				continue
			}
			id, ok := t.ids[string(runes[start:end])]
			if !ok || t.special[id] {
				continue
			}
			if s := best[start] + t.scores[id]; s > best[end] {
				best[end], prev[end], ids[end] = s, start, id
			}
		}

		// Einzelnes unbekanntes Zeichen
		if math.IsInf(best[end], -1) && !math.IsInf(best[end-1], -1) {
			best[end], prev[end], ids[end] = best[end-1]+t.minScore-unknownPenalty, end-1, t.unk
		}
	}

	var out []int32
	for end := n; end > 0; end = prev[end] {
		out = append(out, ids[end])
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}

	// Aufeinanderfolgende <unk> wie SentencePiece zusammenfassen
	merged := make([]int32, 0, len(out)+1)
	for i, id := range out {
		if id < 0 || (id == t.unk && i > 0 && out[i-1] == t.unk) {
			continue
		}
		merged = append(merged, id)
	}
	return append(merged, t.eos)
}

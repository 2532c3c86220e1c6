// decode.go - Token-IDs zu Text dekodieren
//
// Enthaelt:
// - Decode: SentencePiece-Stuecke zusammensetzen, Sondertokens optional entfernen
// - cleanUpSpaces: Leerzeichen vor Satzzeichen entfernen

package tokenizer

import (
	"strconv"
	"strings"
)

// Decode wandelt IDs in Text um. IDs ausserhalb des Vokabulars werden uebersprungen.
func (t *Tokenizer) Decode(ids []int32, skipSpecial bool) string {
	var sb strings.Builder
	for _, id := range ids {
		if id < 0 || int(id) >= len(t.pieces) {
			continue
		}
		if skipSpecial && t.special[id] {
			continue
		}

		piece := t.pieces[id]
		// Byte-Fallback-Tokens wie <0x0A>
		if len(piece) == 6 && strings.HasPrefix(piece, "<0x") && piece[5] == '>' {
			if v, err := strconv.ParseUint(piece[3:5], 16, 8); err == nil {
				sb.WriteByte(byte(v))
				continue
			}
		}
		sb.WriteString(strings.ReplaceAll(piece, spaceMarker, " "))
	}

	return cleanUpSpaces(strings.TrimSpace(sb.String()))
}

var cleanUpReplacer = strings.NewReplacer(
	" .", ".",
	" ?", "?",
	" !", "!",
	" ,", ",",
	" ' ", "'",
	" n't", "n't",
	" 'm", "'m",
	" 's", "'s",
	" 've", "'ve",
	" 're", "'re",
)

func cleanUpSpaces(s string) string {
	return cleanUpReplacer.Replace(s)
}

package sample

import (
	"math"
	"slices"
)

var negInf = float32(math.Inf(-1))

// applyRepetitionPenalty macht bereits erzeugte Tokens unwahrscheinlicher:
// positive Logits werden geteilt, negative multipliziert.
func applyRepetitionPenalty(logits []float32, tokens []int32, penalty float32) {
	if penalty == 1 {
		return
	}

	seen := make(map[int32]bool, len(tokens))
	for _, tok := range tokens {
		if seen[tok] || int(tok) >= len(logits) || tok < 0 {
			continue
		}
		seen[tok] = true

		if logits[tok] > 0 {
			logits[tok] /= penalty
		} else {
			logits[tok] *= penalty
		}
	}
}

// bannedNgramTokens gibt die Tokens zurueck, die ein bereits vorkommendes n-Gramm wiederholen wuerden
func bannedNgramTokens(tokens []int32, n int) []int32 {
	if n <= 0 || len(tokens) < n {
		return nil
	}

	prefix := tokens[len(tokens)-n+1:]
	var banned []int32
	for i := 0; i+n <= len(tokens); i++ {
		if slices.Equal(tokens[i:i+n-1], prefix) {
			banned = append(banned, tokens[i+n-1])
		}
	}
	return banned
}

// applyNoRepeatNgram setzt verbotene Tokens auf -Inf
func applyNoRepeatNgram(logits []float32, tokens []int32, n int) {
	for _, tok := range bannedNgramTokens(tokens, n) {
		if int(tok) < len(logits) && tok >= 0 {
			logits[tok] = negInf
		}
	}
}

// applyTemperature skaliert die Logits mit 1/temperature
func applyTemperature(logits []float32, temperature float32) {
	if temperature == 1 {
		return
	}
	for i := range logits {
		logits[i] /= temperature
	}
}

// beam.go - Beam-Suche ueber dem Decoder-Vokabular
//
// Dieses Modul enthaelt:
// - StepFunc: Liefert Logits fuer die naechste Position eines Praefixes
// - BeamSearch: Bewahrt die besten NumBeams Praefixe pro Schritt
// - Hypothesis: Abgeschlossene Sequenz mit laengennormierter Bewertung
package sample

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/emirpasic/gods/v2/trees/binaryheap"

	"github.com/imagecaption/captioner/logutil"
	"github.com/imagecaption/captioner/ml/nn"
)

// StepFunc gibt die Logits fuer die Position nach prefix zurueck.
// prefix beginnt immer mit dem Start-Token.
type StepFunc func(ctx context.Context, prefix []int32) ([]float32, error)

// Hypothesis ist eine abgeschlossene (oder abgeschnittene) Sequenz
type Hypothesis struct {
	Tokens []int32 // ohne Start- und EOS-Token
	Score  float64 // laengennormierte Summe der Log-Wahrscheinlichkeiten
}

type beam struct {
	tokens []int32 // inklusive Start-Token
	score  float64
}

type candidate struct {
	beam  int
	token int32
	score float64
}

// BeamSearch dekodiert bis alle Beams EOS erreichen oder MaxLength erreicht ist
// und gibt die am besten bewertete Hypothese zurueck.
func BeamSearch(ctx context.Context, cfg Config, step StepFunc) (Hypothesis, error) {
	if err := cfg.Validate(0); err != nil {
		return Hypothesis{}, err
	}

	beams := []beam{{tokens: []int32{cfg.DecoderStartTokenID}}}
	var finished []Hypothesis

	for length := 1; length < cfg.MaxLength; length++ {
		if err := ctx.Err(); err != nil {
			return Hypothesis{}, err
		}

		candidates, err := expand(ctx, cfg, beams, step)
		if err != nil {
			return Hypothesis{}, err
		}

		next := make([]beam, 0, cfg.NumBeams)
		for rank, c := range candidates {
			parent := beams[c.beam]
			if c.token == cfg.EOSTokenID {
				// EOS ausserhalb der besten NumBeams wird verworfen
				if rank < cfg.NumBeams {
					finished = append(finished, finalize(parent.tokens, c.score, cfg, true))
				}
				continue
			}

			tokens := append(slices.Clone(parent.tokens), c.token)
			next = append(next, beam{tokens: tokens, score: c.score})
			if len(next) == cfg.NumBeams {
				break
			}
		}

		beams = next
		logutil.Trace("beam step", "length", length+1, "live", len(beams), "finished", len(finished))

		if len(beams) == 0 || done(finished, beams, cfg) {
			break
		}
	}

	// Am Laengenlimit werden die verbleibenden Beams uebernommen
	for _, b := range beams {
		if len(b.tokens) >= cfg.MaxLength || len(finished) < cfg.NumBeams {
			finished = append(finished, finalize(b.tokens, b.score, cfg, false))
		}
	}

	if len(finished) == 0 {
		return Hypothesis{}, fmt.Errorf("beam search: keine hypothese erzeugt")
	}

	best := slices.MaxFunc(finished, func(a, b Hypothesis) int {
		return cmp.Compare(a.Score, b.Score)
	})
	return best, nil
}

// expand bewertet alle Fortsetzungen und behaelt die besten 2*NumBeams Kandidaten
func expand(ctx context.Context, cfg Config, beams []beam, step StepFunc) ([]candidate, error) {
	keep := 2 * cfg.NumBeams
	heap := binaryheap.NewWith[candidate](func(a, b candidate) int {
		return cmp.Compare(a.score, b.score)
	})

	for i, b := range beams {
		logits, err := step(ctx, b.tokens)
		if err != nil {
			return nil, fmt.Errorf("beam %d: %w", i, err)
		}
		scores := slices.Clone(logits)

		applyRepetitionPenalty(scores, b.tokens, cfg.RepetitionPenalty)
		applyNoRepeatNgram(scores, b.tokens, cfg.NoRepeatNgramSize)
		applyTemperature(scores, cfg.Temperature)
		nn.LogSoftmax(scores)

		for tok, s := range scores {
			if math.IsInf(float64(s), -1) || math.IsNaN(float64(s)) {
				continue
			}

			c := candidate{beam: i, token: int32(tok), score: b.score + float64(s)}
			if heap.Size() < keep {
				heap.Push(c)
				continue
			}
			if worst, _ := heap.Peek(); c.score > worst.score {
				heap.Pop()
				heap.Push(c)
			}
		}
	}

	out := make([]candidate, 0, heap.Size())
	for !heap.Empty() {
		c, _ := heap.Pop()
		out = append(out, c)
	}
	slices.Reverse(out)
	return out, nil
}

// finalize normiert die Bewertung mit length^LengthPenalty.
// Die Laenge zaehlt alle erzeugten Tokens inklusive EOS, ohne Start-Token.
func finalize(tokens []int32, score float64, cfg Config, eos bool) Hypothesis {
	generated := slices.Clone(tokens[1:])
	length := len(generated)
	if eos {
		length++
	}
	length = max(length, 1)

	return Hypothesis{
		Tokens: generated,
		Score:  score / math.Pow(float64(length), float64(cfg.LengthPenalty)),
	}
}

// done ist true wenn genug Hypothesen vorliegen und kein lebender Beam sie mehr schlagen kann
func done(finished []Hypothesis, beams []beam, cfg Config) bool {
	if len(finished) < cfg.NumBeams {
		return false
	}

	scores := make([]float64, len(finished))
	for i, h := range finished {
		scores[i] = h.Score
	}
	slices.Sort(scores)
	worst := scores[len(scores)-cfg.NumBeams]

	best := math.Inf(-1)
	for _, b := range beams {
		best = max(best, b.score)
	}

	// Normierung mit der aktuellen Laenge (Heuristik ohne early stopping)
	length := float64(len(beams[0].tokens))
	return best/math.Pow(length, float64(cfg.LengthPenalty)) <= worst
}

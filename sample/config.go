// config.go - Dekodier-Parameter fuer die Beam-Suche
//
// Dieses Modul enthaelt:
// - Config: Beam-Anzahl, Laenge, Strafen, Temperatur und Token-IDs
// - DefaultConfig: Werte, mit denen das Caption-Modell trainiert wurde
// - WithOverrides: Anfrage-spezifische Laenge/Beam-Anzahl
package sample

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig wird bei inkonsistenten Dekodier-Parametern zurueckgegeben
var ErrInvalidConfig = errors.New("sample: invalid generation config")

// Config beschreibt die Dekodierung. MaxLength zaehlt das Start-Token mit.
type Config struct {
	NumBeams          int
	MaxLength         int
	RepetitionPenalty float32
	NoRepeatNgramSize int
	Temperature       float32
	LengthPenalty     float32

	DecoderStartTokenID int32
	EOSTokenID          int32
	PadTokenID          int32
}

// DefaultConfig entspricht den Ladezeit-Einstellungen des Caption-Modells
func DefaultConfig() Config {
	return Config{
		NumBeams:          6,
		MaxLength:         40,
		RepetitionPenalty: 1.2,
		NoRepeatNgramSize: 2,
		Temperature:       0.9,
		LengthPenalty:     1.0,

		DecoderStartTokenID: 0,
		EOSTokenID:          1,
		PadTokenID:          0,
	}
}

// Validate prueft die Parameter gegen eine Vokabulargroesse (0 = ohne Pruefung)
func (c Config) Validate(vocabSize int) error {
	switch {
	case c.NumBeams < 1:
		return fmt.Errorf("%w: num_beams %d", ErrInvalidConfig, c.NumBeams)
	case c.MaxLength < 2:
		return fmt.Errorf("%w: max_length %d", ErrInvalidConfig, c.MaxLength)
	case c.RepetitionPenalty <= 0:
		return fmt.Errorf("%w: repetition_penalty %v", ErrInvalidConfig, c.RepetitionPenalty)
	case c.Temperature <= 0:
		return fmt.Errorf("%w: temperature %v", ErrInvalidConfig, c.Temperature)
	case c.NoRepeatNgramSize < 0:
		return fmt.Errorf("%w: no_repeat_ngram_size %d", ErrInvalidConfig, c.NoRepeatNgramSize)
	}

	if vocabSize > 0 {
		for name, id := range map[string]int32{
			"decoder_start_token_id": c.DecoderStartTokenID,
			"eos_token_id":           c.EOSTokenID,
			"pad_token_id":           c.PadTokenID,
		} {
			if id < 0 || int(id) >= vocabSize {
				return fmt.Errorf("%w: %s %d ausserhalb des vokabulars (%d)", ErrInvalidConfig, name, id, vocabSize)
			}
		}
	}
	return nil
}

// WithOverrides ersetzt Laenge und Beam-Anzahl, Werte <= 0 bleiben unberuecksichtigt
func (c Config) WithOverrides(maxLength, numBeams int) Config {
	if maxLength > 0 {
		c.MaxLength = maxLength
	}
	if numBeams > 0 {
		c.NumBeams = numBeams
	}
	return c
}

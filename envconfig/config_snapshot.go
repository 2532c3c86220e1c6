// config_snapshot.go - Konfiguration als Wertobjekt
//
// Dieses Modul enthaelt:
// - Config: Einmalig beim Start gelesene Konfiguration
// - Load: Liest alle Environment-Variablen in ein Config
//
// Konstruktoren erhalten Config (oder Teile davon) als Wert, niemand liest
// waehrend des Betriebs erneut aus der Umgebung.
package envconfig

import (
	"log/slog"
	"net/url"
	"time"
)

// Config enthaelt alle Werte, die der Kern von aussen braucht
type Config struct {
	Host     *url.URL
	Origins  []string
	LogLevel slog.Level

	Model ModelConfig
	LLM   LLMConfig

	CaptionServiceURL     string
	CaptionServiceTimeout time.Duration
}

// ModelConfig beschreibt das lokale Captioning-Modell
type ModelConfig struct {
	EncoderRepo    string
	DecoderRepo    string
	CheckpointPath string
	CheckpointURL  string
	NumParallel    int
}

// LLMConfig beschreibt den LLM-Dienst und die Verfeinerungsregeln
type LLMConfig struct {
	BaseURL           string
	APIKey            string
	Model             string
	Timeout           time.Duration
	Workers           int
	RequestsPerMinute float64
	MinWords          int
	MaxWords          int
}

// Load liest die aktuelle Umgebung in ein Config
func Load() Config {
	minWords, maxWords := int(RefineMinWords()), int(RefineMaxWords())
	if maxWords < minWords {
		slog.Warn("refine word band inverted, swapping bounds", "min", minWords, "max", maxWords)
		minWords, maxWords = maxWords, minWords
	}

	return Config{
		Host:     Host(),
		Origins:  AllowedOrigins(),
		LogLevel: LogLevel(),
		Model: ModelConfig{
			EncoderRepo:    EncoderModel(),
			DecoderRepo:    DecoderModel(),
			CheckpointPath: CheckpointPath(),
			CheckpointURL:  CheckpointURL(),
			NumParallel:    max(int(NumParallel()), 1),
		},
		LLM: LLMConfig{
			BaseURL:           LLMAPIURL(),
			APIKey:            LLMAPIKey(),
			Model:             LLMModel(),
			Timeout:           LLMTimeout(),
			Workers:           max(int(LLMWorkers()), 1),
			RequestsPerMinute: LLMRequestsPerMinute(),
			MinWords:          minWords,
			MaxWords:          maxWords,
		},
		CaptionServiceURL:     CaptionServiceURL(),
		CaptionServiceTimeout: CaptionServiceTimeout(),
	}
}

// config_utils.go - Utility-Funktionen und Export fuer Konfiguration
//
// Dieses Modul enthaelt:
// - BoolWithDefault/Bool: Boolean-Getter mit Default-Wert
// - String/StringWithDefault: String-Getter
// - Uint/Float/Duration: Zahlen-Getter mit Default-Wert
// - EnvVar: Struktur fuer Environment-Variablen-Info
// - AsMap: Gibt alle Konfigurationen als Map zurueck
// - Values: Gibt alle Konfigurationswerte als String-Map zurueck
package envconfig

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

// =============================================================================
// Boolean-Getter
// =============================================================================

// BoolWithDefault gibt eine Funktion zurueck, die einen Bool mit Default-Wert liest
func BoolWithDefault(k string) func(defaultValue bool) bool {
	return func(defaultValue bool) bool {
		if s := Var(k); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return true
			}
			return b
		}
		return defaultValue
	}
}

// Bool gibt eine Funktion zurueck, die einen Bool liest (Default: false)
func Bool(k string) func() bool {
	withDefault := BoolWithDefault(k)
	return func() bool {
		return withDefault(false)
	}
}

// =============================================================================
// String-Getter
// =============================================================================

// String gibt eine Funktion zurueck, die einen String liest
func String(s string) func() string {
	return func() string {
		return Var(s)
	}
}

// StringWithDefault gibt eine Funktion zurueck, die einen String mit Default liest
func StringWithDefault(key, defaultValue string) func() string {
	return func() string {
		if s := Var(key); s != "" {
			return s
		}
		return defaultValue
	}
}

// =============================================================================
// Zahlen-Getter
// =============================================================================

// Uint gibt eine Funktion zurueck, die einen uint mit Default-Wert liest
func Uint(key string, defaultValue uint) func() uint {
	return func() uint {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return uint(n)
			}
		}
		return defaultValue
	}
}

// Float gibt eine Funktion zurueck, die einen float64 mit Default-Wert liest
func Float(key string, defaultValue float64) func() float64 {
	return func() float64 {
		if s := Var(key); s != "" {
			if f, err := strconv.ParseFloat(s, 64); err != nil || f < 0 {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return f
			}
		}
		return defaultValue
	}
}

// Duration gibt eine Funktion zurueck, die eine Dauer liest.
// Akzeptiert Go-Dauern ("20s") oder ganze Sekunden ("20").
// Werte <= 0 fallen auf den Default zurueck.
func Duration(key string, defaultValue time.Duration) func() time.Duration {
	return func() time.Duration {
		s := Var(key)
		if s == "" {
			return defaultValue
		}

		d, err := time.ParseDuration(s)
		if err != nil {
			n, nerr := strconv.ParseInt(s, 10, 64)
			if nerr != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
				return defaultValue
			}
			d = time.Duration(n) * time.Second
		}

		if d <= 0 {
			return defaultValue
		}
		return d
	}
}

// =============================================================================
// Export-Strukturen und -Funktionen
// =============================================================================

// EnvVar repraesentiert eine Environment-Variable mit Metadaten
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap gibt alle Konfigurationen als Map zurueck
// Enthaelt Namen, aktuelle Werte und Beschreibungen
func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"CAPTIONER_DEBUG":          {"CAPTIONER_DEBUG", LogLevel(), "Show additional debug information (e.g. CAPTIONER_DEBUG=1)"},
		"CAPTIONER_HOST":           {"CAPTIONER_HOST", Host(), "IP Address for the captioner server (default 127.0.0.1:8000)"},
		"CAPTIONER_ORIGINS":        {"CAPTIONER_ORIGINS", AllowedOrigins(), "A comma separated list of allowed origins"},
		"CAPTIONER_CHECKPOINT":     {"CAPTIONER_CHECKPOINT", CheckpointPath(), "Local path of the caption model checkpoint"},
		"CAPTIONER_CHECKPOINT_URL": {"CAPTIONER_CHECKPOINT_URL", CheckpointURL(), "Where to fetch the checkpoint when it is missing"},
		"CAPTIONER_ENCODER_MODEL":  {"CAPTIONER_ENCODER_MODEL", EncoderModel(), "HuggingFace repo of the vision encoder"},
		"CAPTIONER_DECODER_MODEL":  {"CAPTIONER_DECODER_MODEL", DecoderModel(), "HuggingFace repo of the text decoder"},
		"CAPTIONER_NUM_PARALLEL":   {"CAPTIONER_NUM_PARALLEL", NumParallel(), "Maximum number of parallel caption generations"},
		"CAPTION_SERVICE_URL":      {"CAPTION_SERVICE_URL", CaptionServiceURL(), "Remote first-stage caption service"},
		"CAPTION_SERVICE_TIMEOUT":  {"CAPTION_SERVICE_TIMEOUT", CaptionServiceTimeout(), "Deadline for the caption service (default \"30s\")"},
		"LLM_API_URL":              {"LLM_API_URL", LLMAPIURL(), "OpenAI compatible endpoint used for refinement"},
		"LLM_MODEL":                {"LLM_MODEL", LLMModel(), "Chat model used for refinement, hashtags and translation"},
		"LLM_TIMEOUT":              {"LLM_TIMEOUT", LLMTimeout(), "Deadline for each LLM call (default \"20s\")"},
		"LLM_WORKERS":              {"LLM_WORKERS", LLMWorkers(), "Size of the LLM worker pool"},
		"LLM_REQUESTS_PER_MINUTE":  {"LLM_REQUESTS_PER_MINUTE", LLMRequestsPerMinute(), "Client side LLM rate limit (0 disables)"},
		"REFINE_MIN_WORDS":         {"REFINE_MIN_WORDS", RefineMinWords(), "Shortest accepted refined caption in words"},
		"REFINE_MAX_WORDS":         {"REFINE_MAX_WORDS", RefineMaxWords(), "Longest accepted refined caption in words"},
		"GROQ_API_KEY":             {"GROQ_API_KEY", redact(LLMAPIKey()), "Credential for the LLM endpoint"},

		"HTTP_PROXY":  {"HTTP_PROXY", String("HTTP_PROXY")(), "HTTP proxy"},
		"HTTPS_PROXY": {"HTTPS_PROXY", String("HTTPS_PROXY")(), "HTTPS proxy"},
		"NO_PROXY":    {"NO_PROXY", String("NO_PROXY")(), "No proxy"},
	}
}

// Values gibt alle Konfigurationswerte als String-Map zurueck
func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}

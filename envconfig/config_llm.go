// config_llm.go - LLM-, Caption-Service- und Parallelitaets-Konfiguration
//
// Dieses Modul enthaelt:
// - Endpunkte und Zugangsdaten des LLM-Dienstes
// - Timeouts pro Aufrufklasse (Caption-Service, LLM)
// - Worker-Pool, Rate-Limit und Wortband der Verfeinerung
package envconfig

import "time"

// =============================================================================
// Entfernte Dienste
// =============================================================================

const (
	DefaultLLMAPIURL         = "https://api.groq.com/openai/v1/"
	DefaultLLMModel          = "llama-3.3-70b-versatile"
	DefaultCaptionServiceURL = "https://rishabh2234-image-captionator.hf.space/generate_caption/"
)

var (
	// LLMAPIURL ist der OpenAI-kompatible Endpunkt fuer Verfeinerung/Hashtags/Uebersetzung
	LLMAPIURL = StringWithDefault("LLM_API_URL", DefaultLLMAPIURL)

	// LLMAPIKey ist der Zugangsschluessel des LLM-Dienstes
	LLMAPIKey = String("GROQ_API_KEY")

	// LLMModel ist das Chat-Modell fuer alle LLM-Aufrufe
	LLMModel = StringWithDefault("LLM_MODEL", DefaultLLMModel)

	// CaptionServiceURL ist der entfernte Dienst fuer die erste Caption-Stufe
	CaptionServiceURL = StringWithDefault("CAPTION_SERVICE_URL", DefaultCaptionServiceURL)
)

// =============================================================================
// Timeouts
// =============================================================================

var (
	// CaptionServiceTimeout begrenzt den Aufruf des Caption-Dienstes
	// Konfigurierbar via CAPTION_SERVICE_TIMEOUT ("30s" oder Sekunden)
	CaptionServiceTimeout = Duration("CAPTION_SERVICE_TIMEOUT", 30*time.Second)

	// LLMTimeout begrenzt jeden LLM-Aufruf (Verfeinerung, Hashtags, Uebersetzung)
	// Konfigurierbar via LLM_TIMEOUT ("20s" oder Sekunden)
	LLMTimeout = Duration("LLM_TIMEOUT", 20*time.Second)
)

// =============================================================================
// Parallelitaet und Limits
// =============================================================================

var (
	// NumParallel setzt die Anzahl paralleler Inferenz-Slots des lokalen Modells
	NumParallel = Uint("CAPTIONER_NUM_PARALLEL", 1)

	// LLMWorkers setzt die Groesse des Worker-Pools fuer LLM-Aufrufe
	LLMWorkers = Uint("LLM_WORKERS", 8)

	// LLMRequestsPerMinute begrenzt LLM-Anfragen clientseitig (0 = aus)
	LLMRequestsPerMinute = Float("LLM_REQUESTS_PER_MINUTE", 0)
)

// =============================================================================
// Wortband der Verfeinerung
// =============================================================================

var (
	// RefineMinWords ist die untere Grenze akzeptierter Verfeinerungen (inklusive)
	RefineMinWords = Uint("REFINE_MIN_WORDS", 7)

	// RefineMaxWords ist die obere Grenze akzeptierter Verfeinerungen (inklusive)
	RefineMaxWords = Uint("REFINE_MAX_WORDS", 60)
)

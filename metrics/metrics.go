// metrics.go - Prometheus-Metriken fuer Captioning und LLM-Aufrufe
//
// Dieses Modul enthaelt:
// - Registry: Eigene Registry (keine globalen Default-Collector)
// - CaptionDuration/CaptionTotal: Erste Caption-Stufe (lokal/entfernt)
// - RefinementOutcomes: Ergebnis jeder LLM-Stufe (refine/hashtags/translate)
// - LLMDuration: Dauer einzelner LLM-Aufrufe
// - InferenceSlotsBusy: Belegte Inferenz-Slots des lokalen Modells
// - Handler: HTTP-Handler fuer /metrics
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry sammelt alle Metriken des Dienstes
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		CaptionDuration, CaptionTotal,
		RefinementOutcomes, LLMDuration,
		InferenceSlotsBusy,
	)
}

// Quellen der ersten Caption-Stufe
const (
	SourceLocal  = "local"
	SourceRemote = "remote"
)

// Status-Labels
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusTimeout = "timeout"
)

// CaptionDuration misst die Dauer einer Caption-Erzeugung in Sekunden
var CaptionDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "captioner_caption_duration_seconds",
		Help:    "Dauer der Caption-Erzeugung (Sekunden)",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	},
	[]string{"source"},
)

// CaptionTotal zaehlt Caption-Anfragen nach Quelle und Status
var CaptionTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "captioner_caption_total",
		Help: "Caption-Anfragen nach Quelle und Status",
	},
	[]string{"source", "status"},
)

// RefinementOutcomes zaehlt die Endzustaende der LLM-Stufen
var RefinementOutcomes = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "captioner_refinement_outcomes_total",
		Help: "Endzustaende von Verfeinerung, Hashtags und Uebersetzung",
	},
	[]string{"stage", "outcome"},
)

// LLMDuration misst einzelne LLM-Aufrufe inklusive Wartezeit auf einen Worker
var LLMDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "captioner_llm_call_duration_seconds",
		Help:    "Dauer der LLM-Aufrufe (Sekunden)",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"stage", "status"},
)

// InferenceSlotsBusy ist die Anzahl gerade belegter Inferenz-Slots
var InferenceSlotsBusy = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "captioner_inference_slots_busy",
		Help: "Belegte Inferenz-Slots des lokalen Modells",
	},
)

// Handler liefert die Registry im Prometheus-Textformat aus
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

// service.go - Verfeinerung, Hashtags und Uebersetzung von Captions
//
// Dieses Modul enthaelt:
// - Service: Orchestriert alle LLM-Stufen ueber den dispatch-Executor
// - Refine: Zustandsautomat von Received ueber Dispatched bis Resolved
// - Hashtags: 5-7 Hashtags, Fehler als einelementige Liste
// - Translate: Permissive Uebersetzung, Fehler liefern den Originaltext
//
// Kein oeffentlicher Einstiegspunkt gibt einen Fehler zurueck. Zeitueberschreitung,
// unbrauchbare Antworten und abgelehnte Eingaben werden hier in Rueckfallwerte
// uebersetzt.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/imagecaption/captioner/dispatch"
	"github.com/imagecaption/captioner/envconfig"
	"github.com/imagecaption/captioner/metrics"
)

// Feste Antworten und Standardwerte
const (
	RejectionMessage        = "Unable to refine caption. Please provide a valid caption."
	HashtagRejectionMessage = "Unable to generate hashtags. Please provide a valid caption."
	HashtagTimeoutMessage   = "Hashtag generation timed out. Please try again."

	DefaultTone           = "formal"
	DefaultContext        = "No additional information"
	DefaultTargetLanguage = "English"

	DefaultMinWords = 7
	DefaultMaxWords = 60
	DefaultTimeout  = 20 * time.Second
)

// Praefixe der Fehlermeldungen von Hashtags
const (
	hashtagTransportPrefix = "API request failed: "
	hashtagJSONPrefix      = "Invalid JSON response from LLM. Raw response: "
	hashtagInvalidPrefix   = "Invalid hashtags in response: "
)

// IsHashtagFailure erkennt die einelementige Fehlerliste von Hashtags.
// Gueltige Tags duerfen ohne "#" kommen, daher zaehlt nur der Meldungstext.
func IsHashtagFailure(tags []string) bool {
	if len(tags) != 1 {
		return false
	}
	switch msg := tags[0]; {
	case msg == HashtagRejectionMessage, msg == HashtagTimeoutMessage:
		return true
	default:
		for _, prefix := range []string{hashtagTransportPrefix, hashtagJSONPrefix, hashtagInvalidPrefix} {
			if strings.HasPrefix(msg, prefix) {
				return true
			}
		}
		return false
	}
}

// ErrorSentinel ist die Caption, die die erste Stufe bei einem Fehler liefert
const ErrorSentinel = "Error"

// captionEchoPrefixes sind Meldungen der ersten Stufe, die keine Caption sind
var captionEchoPrefixes = []string{
	"Caption generation timed out",
	"Failed to open image",
	"No caption found in response",
	"Error parsing response",
}

// Stufen fuer Logs und Metriken
const (
	stageRefine    = "refine"
	stageHashtags  = "hashtags"
	stageTranslate = "translate"
)

// Outcome ist der Endzustand einer LLM-Stufe
type Outcome string

const (
	OutcomeRejected  Outcome = "rejected"
	OutcomeCompleted Outcome = "completed"
	OutcomeTimedOut  Outcome = "timed_out"
	OutcomeInvalid   Outcome = "invalid"
	OutcomeFailed    Outcome = "failed"
)

// State ist ein Zustand des Verfeinerungsautomaten
type State int

const (
	StateReceived State = iota
	StateValidated
	StateDispatched
	StateCompleted
	StateTimedOut
	StateInvalid
	StateResolved
)

func (s State) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateValidated:
		return "validated"
	case StateDispatched:
		return "dispatched"
	case StateCompleted:
		return "completed"
	case StateTimedOut:
		return "timed_out"
	case StateInvalid:
		return "invalid"
	case StateResolved:
		return "resolved"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// RefinementRequest ist eine Anfrage an Refine
type RefinementRequest struct {
	Caption        string
	Tone           string
	AdditionalInfo string
}

// RefinementResult ist das Ergebnis von RefineResult
type RefinementResult struct {
	Caption string
	Outcome Outcome
	Reason  string
}

// Service fuehrt alle LLM-Stufen aus
type Service struct {
	completer Completer
	executor  *dispatch.Executor
	timeout   time.Duration

	refinement ResponseValidator[string]
	hashtags   ResponseValidator[[]string]
	translated ResponseValidator[string]
}

// NewService erzeugt einen Service. Nullwerte in cfg werden durch Standardwerte ersetzt.
func NewService(c Completer, ex *dispatch.Executor, cfg envconfig.LLMConfig) *Service {
	minWords, maxWords := cfg.MinWords, cfg.MaxWords
	if minWords <= 0 && maxWords <= 0 {
		minWords, maxWords = DefaultMinWords, DefaultMaxWords
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if ex == nil {
		ex = dispatch.NewExecutor(cfg.Workers, nil)
	}

	return &Service{
		completer:  c,
		executor:   ex,
		timeout:    timeout,
		refinement: RefinementValidator(minWords, maxWords),
		hashtags:   HashtagValidator(),
		translated: TranslationValidator(),
	}
}

// CheckCaption gibt einen Grund zurueck, wenn caption keine verwertbare
// Caption der ersten Stufe ist, sonst ""
func CheckCaption(caption string) string {
	trimmed := strings.TrimSpace(caption)
	switch {
	case trimmed == "":
		return "empty caption"
	case trimmed == ErrorSentinel:
		return "error sentinel"
	}
	for _, p := range captionEchoPrefixes {
		if strings.HasPrefix(trimmed, p) {
			return "caption echoes a first-stage message"
		}
	}
	if ContainsFailureMarker(trimmed) {
		return "caption contains a failure marker"
	}
	return ""
}

// Refine verfeinert eine Caption. Das Ergebnis ist immer ein verwendbarer
// Text: die Verfeinerung, die Originalcaption oder RejectionMessage.
func (s *Service) Refine(ctx context.Context, req RefinementRequest) string {
	return s.RefineResult(ctx, req).Caption
}

// RefineResult ist Refine mit Endzustand und Begruendung
func (s *Service) RefineResult(ctx context.Context, req RefinementRequest) RefinementResult {
	log := slog.With("request", uuid.NewString(), "stage", stageRefine)
	transition := func(from, to State, args ...any) {
		log.Info("refinement transition", append([]any{"from", from, "to", to}, args...)...)
	}
	resolve := func(from State, res RefinementResult) RefinementResult {
		transition(from, StateResolved, "outcome", res.Outcome, "reason", res.Reason, "result", res.Caption)
		metrics.RefinementOutcomes.WithLabelValues(stageRefine, string(res.Outcome)).Inc()
		return res
	}

	log.Info("refinement received", "caption", req.Caption, "tone", req.Tone, "additional_info", req.AdditionalInfo)

	if reason := CheckCaption(req.Caption); reason != "" {
		return resolve(StateReceived, RefinementResult{Caption: RejectionMessage, Outcome: OutcomeRejected, Reason: reason})
	}

	tone := strings.TrimSpace(req.Tone)
	if tone == "" {
		tone = DefaultTone
	}
	extra := strings.TrimSpace(req.AdditionalInfo)
	if extra == "" {
		extra = DefaultContext
	}
	transition(StateReceived, StateValidated, "tone", tone, "additional_info", extra)

	prompt := refinePrompt(strings.TrimSpace(req.Caption), tone, extra)
	transition(StateValidated, StateDispatched, "prompt", prompt, "timeout", s.timeout)

	raw, err := s.call(ctx, stageRefine, prompt)
	switch {
	case errors.Is(err, dispatch.ErrTransportTimeout):
		transition(StateDispatched, StateTimedOut, "error", err)
		return resolve(StateTimedOut, RefinementResult{Caption: req.Caption, Outcome: OutcomeTimedOut, Reason: err.Error()})
	case err != nil:
		transition(StateDispatched, StateInvalid, "error", err)
		return resolve(StateInvalid, RefinementResult{Caption: req.Caption, Outcome: OutcomeFailed, Reason: err.Error()})
	}
	transition(StateDispatched, StateCompleted, "raw", raw)

	verdict := s.parseRefinement(raw)
	if !verdict.OK() {
		transition(StateCompleted, StateInvalid, "reason", verdict.Reason, "raw", raw)
		return resolve(StateInvalid, RefinementResult{Caption: req.Caption, Outcome: OutcomeInvalid, Reason: verdict.Reason})
	}

	return resolve(StateCompleted, RefinementResult{Caption: verdict.Value, Outcome: OutcomeCompleted})
}

// parseRefinement parst strikt und faellt sonst auf den Rohtext zurueck.
// Nennt der Rohtext das Feld, war er als JSON gemeint und gilt als kaputt.
func (s *Service) parseRefinement(raw string) Verdict[string] {
	resp, err := ParseResponse(raw)
	if err == nil {
		return s.refinement.Validate(resp)
	}

	if strings.Contains(strings.ToLower(raw), FieldRefinedCaption) {
		return Rejected[string](err.Error())
	}
	return s.refinement.Check(unquote(raw))
}

// Hashtags erzeugt 5-7 Hashtags. Bei jedem Fehler ist das Ergebnis eine
// einelementige Liste mit der Fehlerbeschreibung.
func (s *Service) Hashtags(ctx context.Context, caption string) []string {
	log := slog.With("request", uuid.NewString(), "stage", stageHashtags)
	log.Info("hashtags received", "caption", caption)

	fail := func(outcome Outcome, description string) []string {
		log.Warn("hashtags failed", "outcome", outcome, "description", description)
		metrics.RefinementOutcomes.WithLabelValues(stageHashtags, string(outcome)).Inc()
		return []string{description}
	}

	if reason := CheckCaption(caption); reason != "" {
		return fail(OutcomeRejected, HashtagRejectionMessage)
	}

	raw, err := s.call(ctx, stageHashtags, hashtagPrompt(strings.TrimSpace(caption)))
	switch {
	case errors.Is(err, dispatch.ErrTransportTimeout):
		return fail(OutcomeTimedOut, HashtagTimeoutMessage)
	case err != nil:
		return fail(OutcomeFailed, hashtagTransportPrefix+err.Error())
	}
	log.Info("hashtags completed", "raw", raw)

	resp, err := ParseResponse(raw)
	if err != nil {
		return fail(OutcomeInvalid, hashtagJSONPrefix+raw)
	}

	verdict := s.hashtags.Validate(resp)
	if !verdict.OK() {
		return fail(OutcomeInvalid, hashtagInvalidPrefix+verdict.Reason)
	}

	log.Info("hashtags resolved", "hashtags", verdict.Value)
	metrics.RefinementOutcomes.WithLabelValues(stageHashtags, string(OutcomeCompleted)).Inc()
	return verdict.Value
}

// Translate uebersetzt text nach language. Bei Fehlern kommt text unveraendert zurueck.
func (s *Service) Translate(ctx context.Context, text, language string) string {
	log := slog.With("request", uuid.NewString(), "stage", stageTranslate)

	if strings.TrimSpace(text) == "" {
		return text
	}
	language = strings.TrimSpace(language)
	if language == "" {
		language = DefaultTargetLanguage
	}
	log.Info("translation received", "text", text, "target_language", language)

	raw, err := s.call(ctx, stageTranslate, translatePrompt(strings.TrimSpace(text), language))
	if err != nil {
		outcome := OutcomeFailed
		if errors.Is(err, dispatch.ErrTransportTimeout) {
			outcome = OutcomeTimedOut
		}
		log.Warn("translation failed, returning original", "outcome", outcome, "error", err)
		metrics.RefinementOutcomes.WithLabelValues(stageTranslate, string(outcome)).Inc()
		return text
	}
	log.Info("translation completed", "raw", raw)

	verdict := s.translated.Check(ExtractTranslation(raw))
	if !verdict.OK() {
		log.Warn("translation invalid, returning original", "reason", verdict.Reason)
		metrics.RefinementOutcomes.WithLabelValues(stageTranslate, string(OutcomeInvalid)).Inc()
		return text
	}

	metrics.RefinementOutcomes.WithLabelValues(stageTranslate, string(OutcomeCompleted)).Inc()
	return verdict.Value
}

// translationKeys werden der Reihe nach gesucht, refined_caption fuer alte Prompts
var translationKeys = []string{FieldTranslatedText, FieldTranslation, FieldRefinedCaption}

// ExtractTranslation holt den uebersetzten Text aus einer Antwort. Reiner Text
// wird direkt verwendet. Bei JSON gelten translationKeys, dann das erste
// String-Feld, zuletzt die serialisierte Antwort.
func ExtractTranslation(raw string) string {
	resp, err := ParseResponse(raw)
	if err != nil {
		return unquote(raw)
	}

	for _, key := range translationKeys {
		if s, ok := resp.String(key); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	if _, s, ok := resp.FirstString(); ok && strings.TrimSpace(s) != "" {
		return strings.TrimSpace(s)
	}
	return resp.Stringify()
}

// call fuehrt einen LLM-Aufruf mit Deadline auf dem Executor aus
func (s *Service) call(ctx context.Context, stage, prompt string) (string, error) {
	clock := s.executor.Clock()
	start := clock.Now()

	raw, err := dispatch.Call(ctx, s.executor, s.timeout, func(ctx context.Context) (string, error) {
		return s.completer.Complete(ctx, prompt)
	})

	status := metrics.StatusOK
	switch {
	case errors.Is(err, dispatch.ErrTransportTimeout):
		status = metrics.StatusTimeout
	case err != nil:
		status = metrics.StatusError
	}
	metrics.LLMDuration.WithLabelValues(stage, status).Observe(clock.Now().Sub(start).Seconds())

	return raw, err
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

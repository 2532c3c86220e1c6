// completer.go - Zugriff auf den OpenAI-kompatiblen LLM-Dienst
//
// Dieses Modul enthaelt:
// - Completer: Ein Prompt rein, Rohtext raus
// - OpenAIClient: Chat-Completions ueber openai-go (z.B. Groq)
// - Clientseitiges Rate-Limit ueber x/time/rate
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"golang.org/x/time/rate"

	"github.com/imagecaption/captioner/envconfig"
	"github.com/imagecaption/captioner/logutil"
)

// Parameter jedes LLM-Aufrufs
const (
	Temperature         = 0.7
	MaxCompletionTokens = 100
	TopP                = 1.0
)

// ErrNoChoices wird zurueckgegeben, wenn der Dienst keine Antwort liefert
var ErrNoChoices = errors.New("llm: response without choices")

// Completer schickt einen einzelnen Prompt an ein LLM
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// OpenAIClient spricht die Chat-Completions-API eines OpenAI-kompatiblen Dienstes
type OpenAIClient struct {
	client  *openai.Client
	model   string
	limiter *rate.Limiter
}

// NewOpenAIClient erzeugt einen Client fuer cfg.BaseURL. Weitere Optionen
// (z.B. option.WithHTTPClient) werden nach den Standardwerten angewendet.
func NewOpenAIClient(cfg envconfig.LLMConfig, opts ...option.RequestOption) *OpenAIClient {
	reqOpts := []option.RequestOption{
		option.WithBaseURL(cfg.BaseURL),
		option.WithAPIKey(cfg.APIKey),
		// Wiederholungen wuerden nur die Deadline des Aufrufers aufbrauchen
		option.WithMaxRetries(0),
	}
	reqOpts = append(reqOpts, opts...)

	c := &OpenAIClient{
		client: openai.NewClient(reqOpts...),
		model:  cfg.Model,
	}

	if cfg.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerMinute/60), 1)
		slog.Debug("llm rate limit enabled", "requests_per_minute", cfg.RequestsPerMinute)
	}

	return c
}

// Model gibt das konfigurierte Chat-Modell zurueck
func (c *OpenAIClient) Model() string {
	return c.model
}

// Complete schickt prompt als einzelne User-Nachricht und gibt den getrimmten Antworttext zurueck
func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit: %w", err)
		}
	}

	start := time.Now()
	logutil.Trace("llm request", "model", c.model, "prompt", prompt)

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: openai.F([]openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		}),
		Model:               openai.F(openai.ChatModel(c.model)),
		Temperature:         openai.Float(Temperature),
		MaxCompletionTokens: openai.Int(MaxCompletionTokens),
		TopP:                openai.Float(TopP),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	slog.Debug("llm response", "model", c.model, "duration", time.Since(start), "finish_reason", resp.Choices[0].FinishReason)
	logutil.Trace("llm response", "content", content)
	return content, nil
}

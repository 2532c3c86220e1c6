package llm

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/imagecaption/captioner/dispatch"
	"github.com/imagecaption/captioner/envconfig"
)

// fakeCompleter liefert eine feste Antwort und merkt sich die Prompts
type fakeCompleter struct {
	reply string
	err   error
	block chan struct{}

	calls atomic.Int32
	mu    sync.Mutex
	last  string
}

func (f *fakeCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.last = prompt
	f.mu.Unlock()

	if f.block != nil {
		<-f.block
	}
	return f.reply, f.err
}

func (f *fakeCompleter) prompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func newTestService(c Completer, timeout time.Duration) *Service {
	return NewService(c, dispatch.NewExecutor(2, nil), envconfig.LLMConfig{
		Timeout:  timeout,
		MinWords: 7,
		MaxWords: 60,
	})
}

// 25 Woerter
const longCaption = "A golden retriever sprints across the sunlit meadow chasing a bright red frisbee while children laugh and cheer from the shade of tall oak trees."

func TestRefineRejectsInvalidInput(t *testing.T) {
	cases := []string{
		"",
		"   ",
		"Error",
		"Caption generation timed out...",
		"Caption generation timed out. Please try again.",
		"Failed to open image: no such file",
		"No caption found in response.",
		"Error 500: internal server error",
	}

	for _, caption := range cases {
		t.Run(caption, func(t *testing.T) {
			fake := &fakeCompleter{reply: `{"refined_caption": "` + longCaption + `"}`}
			s := newTestService(fake, time.Second)

			if got := s.Refine(t.Context(), RefinementRequest{Caption: caption}); got != RejectionMessage {
				t.Errorf("Refine(%q) = %q, erwartet Ablehnung", caption, got)
			}
			if n := fake.calls.Load(); n != 0 {
				t.Errorf("%d LLM-Aufrufe, erwartet keinen", n)
			}
		})
	}
}

func TestRefineReturnsWellFormedReply(t *testing.T) {
	if n := WordCount(longCaption); n != 25 {
		t.Fatalf("Testsatz hat %d Woerter, erwartet 25", n)
	}

	fake := &fakeCompleter{reply: `{"refined_caption": "` + longCaption + `"}`}
	s := newTestService(fake, time.Second)

	res := s.RefineResult(t.Context(), RefinementRequest{Caption: "a dog running in a field"})
	if res.Caption != longCaption {
		t.Errorf("Caption = %q, erwartet %q", res.Caption, longCaption)
	}
	if res.Outcome != OutcomeCompleted {
		t.Errorf("Outcome = %s, erwartet completed", res.Outcome)
	}

	prompt := fake.prompt()
	for _, want := range []string{"'formal' tone", "a dog running in a field", DefaultContext, FieldRefinedCaption} {
		if !strings.Contains(prompt, want) {
			t.Errorf("Prompt enthaelt %q nicht: %s", want, prompt)
		}
	}
}

func TestRefineUsesToneAndContext(t *testing.T) {
	fake := &fakeCompleter{reply: `{"refined_caption": "` + longCaption + `"}`}
	s := newTestService(fake, time.Second)

	s.Refine(t.Context(), RefinementRequest{Caption: "a dog", Tone: "playful", AdditionalInfo: "taken in Berlin"})

	prompt := fake.prompt()
	if !strings.Contains(prompt, "'playful' tone") || !strings.Contains(prompt, "taken in Berlin") {
		t.Errorf("Prompt uebernimmt Ton oder Kontext nicht: %s", prompt)
	}
}

func TestRefineFallsBackToOriginal(t *testing.T) {
	const original = "a dog running in a field"

	cases := map[string]struct {
		reply   string
		err     error
		outcome Outcome
		want    string
	}{
		"three words":        {reply: `{"refined_caption": "Dog runs fast"}`, outcome: OutcomeInvalid, want: original},
		"too long":           {reply: `{"refined_caption": "` + strings.Repeat("word ", 61) + `"}`, outcome: OutcomeInvalid, want: original},
		"missing field":      {reply: `{"caption": "` + longCaption + `"}`, outcome: OutcomeInvalid, want: original},
		"empty field":        {reply: `{"refined_caption": "  "}`, outcome: OutcomeInvalid, want: original},
		"wrong type":         {reply: `{"refined_caption": 42}`, outcome: OutcomeInvalid, want: original},
		"failure marker":     {reply: `{"refined_caption": "An error occurred while processing your request, please try again in a moment"}`, outcome: OutcomeInvalid, want: original},
		"placeholder echo":   {reply: `{"refined_caption": "your refined caption here"}`, outcome: OutcomeInvalid, want: original},
		"broken json":        {reply: `{"refined_caption": "half`, outcome: OutcomeInvalid, want: original},
		"field name in text": {reply: `refined_caption: ` + longCaption, outcome: OutcomeInvalid, want: original},
		"transport error":    {err: errors.New("connection refused"), outcome: OutcomeFailed, want: original},
	}

	for name, tt := range cases {
		t.Run(name, func(t *testing.T) {
			s := newTestService(&fakeCompleter{reply: tt.reply, err: tt.err}, time.Second)

			res := s.RefineResult(t.Context(), RefinementRequest{Caption: original})
			if res.Caption != tt.want {
				t.Errorf("Caption = %q, erwartet %q", res.Caption, tt.want)
			}
			if res.Outcome != tt.outcome {
				t.Errorf("Outcome = %s, erwartet %s (Grund: %s)", res.Outcome, tt.outcome, res.Reason)
			}
		})
	}
}

func TestRefineLenientParse(t *testing.T) {
	cases := map[string]string{
		"plain text":   longCaption,
		"quoted text":  `"` + longCaption + `"`,
		"code fence":   "```json\n{\"refined_caption\": \"" + longCaption + "\"}\n```",
		"extra fields": `{"note": "x", "refined_caption": "` + longCaption + `"}`,
	}

	for name, reply := range cases {
		t.Run(name, func(t *testing.T) {
			s := newTestService(&fakeCompleter{reply: reply}, time.Second)
			if got := s.Refine(t.Context(), RefinementRequest{Caption: "a dog"}); got != longCaption {
				t.Errorf("Refine = %q, erwartet %q", got, longCaption)
			}
		})
	}
}

func TestRefineTimeoutReturnsOriginal(t *testing.T) {
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })

	fake := &fakeCompleter{reply: `{"refined_caption": "` + longCaption + `"}`, block: block}
	s := newTestService(fake, 50*time.Millisecond)

	start := time.Now()
	res := s.RefineResult(t.Context(), RefinementRequest{Caption: "a dog running in a field"})
	elapsed := time.Since(start)

	if res.Caption != "a dog running in a field" {
		t.Errorf("Caption = %q, erwartet Original", res.Caption)
	}
	if res.Outcome != OutcomeTimedOut {
		t.Errorf("Outcome = %s, erwartet timed_out", res.Outcome)
	}
	if elapsed > time.Second {
		t.Errorf("Refine hat %v blockiert, Deadline war 50ms", elapsed)
	}
}

func TestHashtags(t *testing.T) {
	cases := map[string]struct {
		caption string
		reply   string
		err     error
		want    []string
		prefix  string
	}{
		"ok": {
			caption: "a dog on the beach",
			reply:   `{"hashtags": ["#dog", "#beach", "#summer", "#doglife", "#ocean"]}`,
			want:    []string{"#dog", "#beach", "#summer", "#doglife", "#ocean"},
		},
		"code fence": {
			caption: "a dog on the beach",
			reply:   "```\n{\"hashtags\": [\"#dog\", \"#beach\"]}\n```",
			want:    []string{"#dog", "#beach"},
		},
		"malformed":     {caption: "a dog", reply: "Here are some hashtags: #dog #beach", prefix: "Invalid JSON response from LLM"},
		"missing field": {caption: "a dog", reply: `{"tags": ["#dog"]}`, prefix: "Invalid hashtags in response"},
		"bare words": {
			caption: "sunset over the ocean",
			reply:   `{"hashtags": ["travel", "sunset", "beach", "summer", "ocean"]}`,
			want:    []string{"travel", "sunset", "beach", "summer", "ocean"},
		},
		"empty tag":        {caption: "a dog", reply: `{"hashtags": ["#dog", ""]}`, prefix: "Invalid hashtags in response"},
		"bare placeholder": {caption: "a dog", reply: `{"hashtags": ["tag1", "tag2"]}`, prefix: "Invalid hashtags in response"},
		"placeholder":      {caption: "a dog", reply: `{"hashtags": ["#tag1", "#tag2", "#tag3"]}`, prefix: "Invalid hashtags in response"},
		"transport error":  {caption: "a dog", err: errors.New("connection refused"), prefix: "API request failed"},
		"invalid caption":  {caption: "Error", want: []string{HashtagRejectionMessage}},
	}

	for name, tt := range cases {
		t.Run(name, func(t *testing.T) {
			s := newTestService(&fakeCompleter{reply: tt.reply, err: tt.err}, time.Second)
			got := s.Hashtags(t.Context(), tt.caption)

			if tt.want != nil {
				if diff := cmp.Diff(tt.want, got); diff != "" {
					t.Errorf("Hashtags (-erwartet +erhalten):\n%s", diff)
				}
				return
			}
			if len(got) != 1 || !strings.HasPrefix(got[0], tt.prefix) {
				t.Errorf("Hashtags = %q, erwartet ein Element mit Praefix %q", got, tt.prefix)
			}
		})
	}
}

func TestHashtagsTimeout(t *testing.T) {
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })

	s := newTestService(&fakeCompleter{block: block}, 50*time.Millisecond)
	got := s.Hashtags(t.Context(), "a dog on the beach")
	if diff := cmp.Diff([]string{HashtagTimeoutMessage}, got); diff != "" {
		t.Errorf("Hashtags (-erwartet +erhalten):\n%s", diff)
	}
}

func TestTranslate(t *testing.T) {
	cases := map[string]struct {
		reply string
		err   error
		want  string
	}{
		"legacy field":       {reply: `{"refined_caption": "Bonjour"}`, want: "Bonjour"},
		"translated_text":    {reply: `{"translated_text": "Hola"}`, want: "Hola"},
		"translation":        {reply: `{"translation": "Ciao"}`, want: "Ciao"},
		"key precedence":     {reply: `{"refined_caption": "B", "translation": "A"}`, want: "A"},
		"first string field": {reply: `{"count": 1, "text": "Salut", "other": "x"}`, want: "Salut"},
		"no string field":    {reply: `{"count": 1}`, want: `{"count":1}`},
		"plain text":         {reply: "Hallo Welt", want: "Hallo Welt"},
		"empty reply":        {reply: "   ", want: "Hello world"},
		"transport error":    {err: errors.New("connection refused"), want: "Hello world"},
	}

	for name, tt := range cases {
		t.Run(name, func(t *testing.T) {
			s := newTestService(&fakeCompleter{reply: tt.reply, err: tt.err}, time.Second)
			if got := s.Translate(t.Context(), "Hello world", "French"); got != tt.want {
				t.Errorf("Translate = %q, erwartet %q", got, tt.want)
			}
		})
	}
}

func TestTranslateTimeoutReturnsOriginal(t *testing.T) {
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })

	s := newTestService(&fakeCompleter{block: block}, 50*time.Millisecond)
	if got := s.Translate(t.Context(), "Hello world", "German"); got != "Hello world" {
		t.Errorf("Translate = %q, erwartet Original", got)
	}
}

func TestTranslateEmptyTextSkipsCall(t *testing.T) {
	fake := &fakeCompleter{reply: "x"}
	s := newTestService(fake, time.Second)

	if got := s.Translate(t.Context(), "  ", "German"); got != "  " {
		t.Errorf("Translate = %q, erwartet unveraenderte Eingabe", got)
	}
	if n := fake.calls.Load(); n != 0 {
		t.Errorf("%d LLM-Aufrufe, erwartet keinen", n)
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateReceived:   "received",
		StateDispatched: "dispatched",
		StateTimedOut:   "timed_out",
		StateResolved:   "resolved",
		State(42):       "state(42)",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, erwartet %q", int(s), got, want)
		}
	}
}

func TestIsHashtagFailure(t *testing.T) {
	cases := map[string]struct {
		tags []string
		want bool
	}{
		"hashtags":    {[]string{"#dog", "#beach"}, false},
		"single bare": {[]string{"sunset"}, false},
		"single tag":  {[]string{"#sunset"}, false},
		"rejected":    {[]string{HashtagRejectionMessage}, true},
		"timeout":     {[]string{HashtagTimeoutMessage}, true},
		"transport":   {[]string{"API request failed: connection refused"}, true},
		"json":        {[]string{"Invalid JSON response from LLM. Raw response: nope"}, true},
		"invalid":     {[]string{"Invalid hashtags in response: no hashtags"}, true},
	}

	for name, tt := range cases {
		t.Run(name, func(t *testing.T) {
			if got := IsHashtagFailure(tt.tags); got != tt.want {
				t.Errorf("IsHashtagFailure(%q) = %v, erwartet %v", tt.tags, got, tt.want)
			}
		})
	}
}

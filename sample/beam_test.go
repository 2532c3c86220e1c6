package sample

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const (
	testStart = 0
	testEOS   = 1
	testVocab = 5
)

// distributionStep liefert Log-Wahrscheinlichkeiten je Praefix, sonst fast sicher EOS
func distributionStep(dists map[string]map[int32]float64) StepFunc {
	return func(_ context.Context, prefix []int32) ([]float32, error) {
		dist, ok := dists[fmt.Sprint(prefix)]
		if !ok {
			dist = map[int32]float64{testEOS: 0.99}
		}

		logits := make([]float32, testVocab)
		for i := range logits {
			logits[i] = float32(math.Log(1e-6))
		}
		for tok, p := range dist {
			logits[tok] = float32(math.Log(p))
		}
		return logits, nil
	}
}

func testConfig() Config {
	return Config{
		NumBeams:            2,
		MaxLength:           10,
		RepetitionPenalty:   1,
		Temperature:         1,
		LengthPenalty:       0,
		DecoderStartTokenID: testStart,
		EOSTokenID:          testEOS,
		PadTokenID:          testStart,
	}
}

func TestBeamSearchBeatsGreedy(t *testing.T) {
	step := distributionStep(map[string]map[int32]float64{
		"[0]":   {2: 0.6, 3: 0.4},
		"[0 2]": {testEOS: 0.34, 2: 0.33, 3: 0.33},
		"[0 3]": {testEOS: 0.9, 4: 0.1},
	})

	best, err := BeamSearch(context.Background(), testConfig(), step)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int32{3}, best.Tokens); diff != "" {
		t.Errorf("Tokens (-want +got):\n%s", diff)
	}
	if want := math.Log(0.4 * 0.9); math.Abs(best.Score-want) > 1e-4 {
		t.Errorf("Score = %v, erwartet %v", best.Score, want)
	}

	// Mit einem Beam bleibt nur der gierige Pfad
	greedy := testConfig()
	greedy.NumBeams = 1
	best, err = BeamSearch(context.Background(), greedy, step)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int32{2}, best.Tokens); diff != "" {
		t.Errorf("Greedy Tokens (-want +got):\n%s", diff)
	}
}

func TestBeamSearchMaxLength(t *testing.T) {
	// EOS ist nie erreichbar
	step := func(_ context.Context, prefix []int32) ([]float32, error) {
		logits := []float32{0, float32(math.Inf(-1)), 1, 1, 1}
		return logits, nil
	}

	cfg := testConfig()
	cfg.MaxLength = 6
	best, err := BeamSearch(context.Background(), cfg, step)
	if err != nil {
		t.Fatal(err)
	}
	if len(best.Tokens) != cfg.MaxLength-1 {
		t.Errorf("len(Tokens) = %d, erwartet %d (MaxLength zaehlt das Start-Token)", len(best.Tokens), cfg.MaxLength-1)
	}
}

func TestBeamSearchNoRepeatNgram(t *testing.T) {
	// Token 2 ist immer am wahrscheinlichsten, EOS nie
	step := func(_ context.Context, prefix []int32) ([]float32, error) {
		return []float32{-5, float32(math.Inf(-1)), 3, 1, 0}, nil
	}

	cfg := testConfig()
	cfg.NoRepeatNgramSize = 2
	cfg.MaxLength = 8
	best, err := BeamSearch(context.Background(), cfg, step)
	if err != nil {
		t.Fatal(err)
	}

	seq := append([]int32{testStart}, best.Tokens...)
	seen := map[[2]int32]bool{}
	for i := 0; i+1 < len(seq); i++ {
		bigram := [2]int32{seq[i], seq[i+1]}
		if seen[bigram] {
			t.Fatalf("Bigramm %v wiederholt in %v", bigram, seq)
		}
		seen[bigram] = true
	}
}

func TestBeamSearchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := BeamSearch(ctx, testConfig(), distributionStep(nil))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Fehler = %v, erwartet context.Canceled", err)
	}
}

func TestBeamSearchStepError(t *testing.T) {
	boom := errors.New("boom")
	step := func(context.Context, []int32) ([]float32, error) { return nil, boom }
	if _, err := BeamSearch(context.Background(), testConfig(), step); !errors.Is(err, boom) {
		t.Errorf("Fehler = %v, erwartet boom", err)
	}
}

func TestRepetitionPenalty(t *testing.T) {
	logits := []float32{2, -2, 1}
	applyRepetitionPenalty(logits, []int32{0, 1, 1}, 2)
	if diff := cmp.Diff([]float32{1, -4, 1}, logits); diff != "" {
		t.Errorf("Logits (-want +got):\n%s", diff)
	}
}

func TestBannedNgramTokens(t *testing.T) {
	cases := []struct {
		tokens []int32
		n      int
		want   []int32
	}{
		{[]int32{0, 5, 6, 5}, 2, []int32{6}},
		{[]int32{0, 5, 6, 7}, 2, nil},
		{[]int32{1, 2, 3, 1, 2}, 3, []int32{3}},
		{[]int32{4}, 2, nil},
		{[]int32{4, 4}, 0, nil},
	}

	for _, tt := range cases {
		if diff := cmp.Diff(tt.want, bannedNgramTokens(tt.tokens, tt.n)); diff != "" {
			t.Errorf("bannedNgramTokens(%v, %d) (-want +got):\n%s", tt.tokens, tt.n, diff)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(32128); err != nil {
		t.Fatalf("DefaultConfig ungueltig: %v", err)
	}

	bad := DefaultConfig()
	bad.EOSTokenID = 40000
	if err := bad.Validate(32128); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Fehler = %v, erwartet ErrInvalidConfig", err)
	}

	got := DefaultConfig().WithOverrides(30, 4)
	if got.MaxLength != 30 || got.NumBeams != 4 {
		t.Errorf("WithOverrides = %d/%d, erwartet 30/4", got.MaxLength, got.NumBeams)
	}
	if kept := DefaultConfig().WithOverrides(0, -1); kept.MaxLength != 40 || kept.NumBeams != 6 {
		t.Errorf("WithOverrides(0, -1) = %d/%d, erwartet 40/6", kept.MaxLength, kept.NumBeams)
	}
}

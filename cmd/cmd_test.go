package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/imagecaption/captioner/api"
	"github.com/imagecaption/captioner/huggingface"
	"github.com/imagecaption/captioner/model"
)

// withServer leitet clientFromCommand fuer die Dauer des Tests auf h um
func withServer(t *testing.T, h http.Handler) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	base, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	orig := clientFromCommand
	clientFromCommand = func(*cobra.Command) (*api.Client, error) {
		return api.NewClient(base, srv.Client()), nil
	}
	t.Cleanup(func() { clientFromCommand = orig })
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewCLI()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(t.Context())
	return out.String(), err
}

func TestNewCLICommands(t *testing.T) {
	root := NewCLI()
	for _, name := range []string{"serve", "caption", "refine", "hashtags", "translate", "checkpoint", "score"} {
		if c, _, err := root.Find([]string{name}); err != nil || c.Name() != name {
			t.Errorf("Command %q fehlt", name)
		}
	}
}

func TestCaptionCommand(t *testing.T) {
	var gotQuery url.Values
	mux := http.NewServeMux()
	mux.HandleFunc("/"+api.PathCaption, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		json.NewEncoder(w).Encode(api.CaptionResponse{Caption: "a dog on the grass"})
	})
	mux.HandleFunc("/"+api.PathRemoteCaption, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(api.CaptionResponse{Caption: "remote dog"})
	})
	withServer(t, mux)

	img := filepath.Join(t.TempDir(), "dog.png")
	if err := os.WriteFile(img, []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "caption", img, "--max-length", "20", "--num-beams", "3")
	if err != nil {
		t.Fatalf("caption: %v", err)
	}
	if strings.TrimSpace(out) != "a dog on the grass" {
		t.Errorf("Ausgabe = %q", out)
	}
	if gotQuery.Get("max_length") != "20" || gotQuery.Get("num_beams") != "3" {
		t.Errorf("Query = %v", gotQuery)
	}

	out, err = run(t, "caption", img, "--remote")
	if err != nil || strings.TrimSpace(out) != "remote dog" {
		t.Errorf("caption --remote = %q, %v", out, err)
	}
}

func TestCaptionCommandMissingFile(t *testing.T) {
	withServer(t, http.NotFoundHandler())

	if _, err := run(t, "caption", filepath.Join(t.TempDir(), "fehlt.png")); err == nil {
		t.Error("Fehler fuer fehlende Datei erwartet")
	}
}

func TestRefineCommand(t *testing.T) {
	var got api.RefineRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/"+api.PathRefine, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(api.RefineResponse{RefinedCaption: "A playful dog."})
	})
	withServer(t, mux)

	out, err := run(t, "refine", "a", "dog", "--tone", "casual", "--info", "park")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "A playful dog." {
		t.Errorf("Ausgabe = %q", out)
	}
	if got.Caption != "a dog" || got.Tone != "casual" || got.AdditionalInfo != "park" {
		t.Errorf("Anfrage = %+v", got)
	}
}

func TestHashtagsCommand(t *testing.T) {
	tags := []string{"#dog", "#park"}
	mux := http.NewServeMux()
	mux.HandleFunc("/"+api.PathHashtags, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(api.HashtagsResponse{Hashtags: tags})
	})
	withServer(t, mux)

	out, err := run(t, "hashtags", "a dog")
	if err != nil {
		t.Fatal(err)
	}
	for _, tag := range tags {
		if !strings.Contains(out, tag) {
			t.Errorf("Ausgabe enthaelt %q nicht:\n%s", tag, out)
		}
	}

	tags = []string{"sunset"}
	out, err = run(t, "hashtags", "a dog")
	if err != nil {
		t.Fatalf("einzelner Tag ohne # als Fehler gewertet: %v", err)
	}
	if !strings.Contains(out, "sunset") {
		t.Errorf("Ausgabe enthaelt %q nicht:\n%s", "sunset", out)
	}

	tags = []string{"Hashtag generation timed out. Please try again."}
	if _, err := run(t, "hashtags", "a dog"); err == nil || err.Error() != tags[0] {
		t.Errorf("Fehler = %v, erwartet %q", err, tags[0])
	}
}

func TestTranslateCommand(t *testing.T) {
	var got api.TranslateRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/"+api.PathTranslate, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(api.TranslateResponse{TranslatedText: "Ein Hund"})
	})
	withServer(t, mux)

	out, err := run(t, "translate", "a dog", "--lang", "German")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "Ein Hund" || got.TargetLanguage != "German" || got.Text != "a dog" {
		t.Errorf("Ausgabe = %q, Anfrage = %+v", out, got)
	}
}

func TestRenderReport(t *testing.T) {
	var buf bytes.Buffer
	renderReport(&buf, model.LoadReport{
		Loaded:     3,
		Missing:    []string{"proj.weight"},
		Unexpected: []string{"extra.bias"},
		Ignored:    []string{"decoder.lm_head.weight"},
	})
	out := buf.String()
	for _, want := range []string{"missing", "proj.weight", "unexpected", "extra.bias", "ignored", "decoder.lm_head.weight"} {
		if !strings.Contains(out, want) {
			t.Errorf("Ausgabe enthaelt %q nicht:\n%s", want, out)
		}
	}

	buf.Reset()
	renderReport(&buf, model.LoadReport{Loaded: 3})
	if strings.TrimSpace(buf.String()) != "all keys matched" {
		t.Errorf("Ausgabe = %q", buf.String())
	}
}

func TestRenderCache(t *testing.T) {
	var buf bytes.Buffer
	renderCache(&buf, []huggingface.CachedModel{
		{ModelID: "google-t5/t5-small", Revisions: []string{"abc", "def"}, FileCount: 4, TotalSize: 242_000_000},
	})
	out := buf.String()
	for _, want := range []string{"google-t5/t5-small", "abc,def", "242.0 MB"} {
		if !strings.Contains(out, want) {
			t.Errorf("Ausgabe enthaelt %q nicht:\n%s", want, out)
		}
	}
}

func TestHumanBytes(t *testing.T) {
	cases := map[int64]string{
		0:             "0 B",
		999:           "999 B",
		1000:          "1.0 KB",
		1_500_000:     "1.5 MB",
		3_000_000_000: "3.0 GB",
	}
	for in, want := range cases {
		if got := humanBytes(in); got != want {
			t.Errorf("humanBytes(%d) = %q, erwartet %q", in, got, want)
		}
	}
}

func TestWrapText(t *testing.T) {
	cases := map[string]struct {
		in    string
		width int
		want  string
	}{
		"short":      {"a dog", 20, "a dog"},
		"wrap":       {"a dog on the green grass", 10, "a dog on\nthe green\ngrass"},
		"long word":  {"supercalifragilistic dog", 8, "supercalifragilistic\ndog"},
		"newlines":   {"one two\nthree", 20, "one two\nthree"},
		"wide runes": {"日本語 日本語", 8, "日本語\n日本語"},
	}
	for name, tt := range cases {
		if got := wrapText(tt.in, tt.width); got != tt.want {
			t.Errorf("%s: wrapText = %q, erwartet %q", name, got, tt.want)
		}
	}
}

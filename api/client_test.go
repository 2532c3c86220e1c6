package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	base, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	return NewClient(base, srv.Client())
}

func TestClientGenerateCaption(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/"+PathCaption {
			t.Errorf("Pfad = %s", r.URL.Path)
		}
		if q := r.URL.Query(); q.Get("max_length") != "20" || q.Get("num_beams") != "2" {
			t.Errorf("Query = %s", r.URL.RawQuery)
		}
		if _, _, err := r.FormFile(FileField); err != nil {
			t.Errorf("FormFile: %v", err)
		}
		json.NewEncoder(w).Encode(CaptionResponse{Caption: "a red car"})
	}))

	got, err := c.GenerateCaption(t.Context(), []byte("img"), "car.jpg", &CaptionOptions{MaxLength: 20, NumBeams: 2})
	if err != nil {
		t.Fatalf("GenerateCaption: %v", err)
	}
	if got != "a red car" {
		t.Errorf("Caption = %q", got)
	}
}

func TestClientGenerateCaptionError(t *testing.T) {
	cases := map[string]struct {
		status int
		body   string
	}{
		"error field":  {http.StatusOK, `{"error": "unknown image format"}`},
		"bad request":  {http.StatusBadRequest, `{"error": "No file provided."}`},
		"plain status": {http.StatusBadGateway, "upstream down"},
	}

	for name, tt := range cases {
		t.Run(name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))

			_, err := c.GenerateCaption(t.Context(), []byte("img"), "x.jpg", nil)
			var se StatusError
			if !errors.As(err, &se) {
				t.Fatalf("Fehler = %v, erwartet StatusError", err)
			}
			if se.ErrorMessage == "" {
				t.Error("StatusError ohne Meldung")
			}
		})
	}
}

func TestClientJSONEndpoints(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/"+PathRefine, func(w http.ResponseWriter, r *http.Request) {
		var req RefineRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Tone != "casual" || req.AdditionalInfo != "at night" {
			t.Errorf("RefineRequest = %+v", req)
		}
		json.NewEncoder(w).Encode(RefineResponse{RefinedCaption: "refined " + req.Caption})
	})
	mux.HandleFunc("/"+PathHashtags, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(HashtagsResponse{Hashtags: []string{"#a", "#b"}})
	})
	mux.HandleFunc("/"+PathTranslate, func(w http.ResponseWriter, r *http.Request) {
		var req TranslateRequest
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(TranslateResponse{TranslatedText: req.TargetLanguage + ":" + req.Text})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(WelcomeResponse{Message: "hi"})
	})
	c := newTestClient(t, mux)
	ctx := t.Context()

	refined, err := c.Refine(ctx, RefineRequest{Caption: "x", Tone: "casual", AdditionalInfo: "at night"})
	if err != nil || refined != "refined x" {
		t.Errorf("Refine = %q, %v", refined, err)
	}

	tags, err := c.Hashtags(ctx, "x")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"#a", "#b"}, tags); diff != "" {
		t.Errorf("Hashtags (-erwartet +erhalten):\n%s", diff)
	}

	translated, err := c.Translate(ctx, "hello", "de")
	if err != nil || translated != "de:hello" {
		t.Errorf("Translate = %q, %v", translated, err)
	}

	msg, err := c.Welcome(ctx)
	if err != nil || msg != "hi" {
		t.Errorf("Welcome = %q, %v", msg, err)
	}
}

func TestStatusErrorMessage(t *testing.T) {
	cases := map[string]struct {
		err  StatusError
		want string
	}{
		"both":    {StatusError{Status: "400 Bad Request", ErrorMessage: "no file"}, "400 Bad Request: no file"},
		"status":  {StatusError{Status: "500 Internal Server Error"}, "500 Internal Server Error"},
		"message": {StatusError{ErrorMessage: "no file"}, "no file"},
		"code":    {StatusError{StatusCode: 418}, "unexpected status code 418"},
	}
	for name, tt := range cases {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("%s: Error() = %q, erwartet %q", name, got, tt.want)
		}
	}
}

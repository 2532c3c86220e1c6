package api

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/imagecaption/captioner/dispatch"
)

func newRemote(t *testing.T, url string, timeout time.Duration) *RemoteCaptioner {
	t.Helper()
	r, err := NewRemoteCaptioner(url, timeout, dispatch.NewExecutor(2, nil), nil)
	if err != nil {
		t.Fatalf("NewRemoteCaptioner: %v", err)
	}
	return r
}

func TestRemoteCaption(t *testing.T) {
	cases := map[string]struct {
		status int
		body   string
		want   string
		prefix bool
	}{
		"caption":         {status: http.StatusOK, body: `{"caption": "a cat on a sofa"}`, want: "a cat on a sofa"},
		"empty caption":   {status: http.StatusOK, body: `{"caption": ""}`, want: ""},
		"missing caption": {status: http.StatusOK, body: `{"error": "cannot identify image file"}`, want: NoCaptionMessage},
		"server error":    {status: http.StatusInternalServerError, body: "boom", want: "Error 500: boom"},
		"bad json":        {status: http.StatusOK, body: "<html>", want: "Error parsing response:", prefix: true},
	}

	for name, tt := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				f, hdr, err := r.FormFile(FileField)
				if err != nil {
					t.Errorf("FormFile: %v", err)
					return
				}
				defer f.Close()
				data, _ := io.ReadAll(f)
				if string(data) != "imagebytes" || hdr.Filename != "cat.png" {
					t.Errorf("Upload = %q (%s)", data, hdr.Filename)
				}

				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			got := newRemote(t, srv.URL+"/generate_caption/", time.Second).Caption(t.Context(), []byte("imagebytes"), "cat.png")
			if tt.prefix {
				if !strings.HasPrefix(got, tt.want) {
					t.Errorf("Caption = %q, erwartet Praefix %q", got, tt.want)
				}
				return
			}
			if got != tt.want {
				t.Errorf("Caption = %q, erwartet %q", got, tt.want)
			}
		})
	}
}

func TestRemoteCaptionTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	got := newRemote(t, srv.URL, 50*time.Millisecond).Caption(t.Context(), []byte("x"), "x.jpg")
	if got != CaptionTimeoutMessage {
		t.Errorf("Caption = %q, erwartet %q", got, CaptionTimeoutMessage)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Caption hat %v blockiert, Deadline war 50ms", elapsed)
	}
}

func TestRemoteCaptionUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	got := newRemote(t, url, time.Second).Caption(t.Context(), []byte("x"), "x.jpg")
	if !strings.HasPrefix(got, "Failed to open image:") {
		t.Errorf("Caption = %q, erwartet Transportfehler", got)
	}
}

func TestNewRemoteCaptionerInvalidURL(t *testing.T) {
	for _, u := range []string{"", "not a url", "/relative/path", "://broken"} {
		if _, err := NewRemoteCaptioner(u, time.Second, nil, nil); err == nil {
			t.Errorf("NewRemoteCaptioner(%q) sollte fehlschlagen", u)
		}
	}
}

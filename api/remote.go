// remote.go - Erste Caption-Stufe ueber einen entfernten Dienst
//
// Der Dienst erwartet ein Multipart-Feld "file" und antwortet mit
// {"caption": "..."}. Caption gibt immer einen Text zurueck: die Caption
// oder eine Meldung, die die Verfeinerung als unbrauchbar erkennt.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/imagecaption/captioner/dispatch"
	"github.com/imagecaption/captioner/metrics"
)

// Meldungen der ersten Stufe
const (
	CaptionTimeoutMessage = "Caption generation timed out. Please try again."
	NoCaptionMessage      = "No caption found in response."
)

// RemoteCaptioner ruft einen entfernten Caption-Dienst mit Deadline auf
type RemoteCaptioner struct {
	endpoint *url.URL
	http     *http.Client
	executor *dispatch.Executor
	timeout  time.Duration
}

// NewRemoteCaptioner erzeugt einen Captioner fuer serviceURL. Ist hc nil,
// wird http.DefaultClient verwendet.
func NewRemoteCaptioner(serviceURL string, timeout time.Duration, ex *dispatch.Executor, hc *http.Client) (*RemoteCaptioner, error) {
	endpoint, err := url.Parse(serviceURL)
	if err != nil {
		return nil, fmt.Errorf("caption service url: %w", err)
	}
	if endpoint.Scheme == "" || endpoint.Host == "" {
		return nil, fmt.Errorf("caption service url %q: scheme and host required", serviceURL)
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	if ex == nil {
		ex = dispatch.NewExecutor(1, nil)
	}

	return &RemoteCaptioner{endpoint: endpoint, http: hc, executor: ex, timeout: timeout}, nil
}

// Endpoint gibt die URL des Dienstes zurueck
func (r *RemoteCaptioner) Endpoint() string {
	return r.endpoint.String()
}

// Caption schickt image an den Dienst. Nach Ablauf der Deadline kommt
// CaptionTimeoutMessage zurueck, der Aufruf laeuft im Hintergrund ins Leere.
func (r *RemoteCaptioner) Caption(ctx context.Context, image []byte, filename string) string {
	clock := r.executor.Clock()
	start := clock.Now()

	caption, err := dispatch.Call(ctx, r.executor, r.timeout, func(ctx context.Context) (remoteResult, error) {
		return r.fetch(ctx, image, filename), nil
	})

	status := metrics.StatusOK
	var text string
	switch {
	case errors.Is(err, dispatch.ErrTransportTimeout):
		slog.Warn("caption service timed out", "endpoint", r.endpoint, "timeout", r.timeout)
		status, text = metrics.StatusTimeout, CaptionTimeoutMessage
	case err != nil:
		slog.Warn("caption service call aborted", "endpoint", r.endpoint, "error", err)
		status, text = metrics.StatusError, fmt.Sprintf("Failed to open image: %v", err)
	default:
		if !caption.ok {
			status = metrics.StatusError
		}
		text = caption.text
	}

	metrics.CaptionDuration.WithLabelValues(metrics.SourceRemote).Observe(clock.Now().Sub(start).Seconds())
	metrics.CaptionTotal.WithLabelValues(metrics.SourceRemote, status).Inc()
	return text
}

type remoteResult struct {
	text string
	ok   bool
}

func (r *RemoteCaptioner) fetch(ctx context.Context, image []byte, filename string) remoteResult {
	resp, body, err := postImage(ctx, r.http, r.endpoint, image, filename)
	if err != nil {
		return remoteResult{text: fmt.Sprintf("Failed to open image: %v", err)}
	}
	if resp.StatusCode != http.StatusOK {
		slog.Warn("caption service error", "status", resp.StatusCode, "body", string(body))
		return remoteResult{text: fmt.Sprintf("Error %d: %s", resp.StatusCode, body)}
	}

	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil {
		return remoteResult{text: fmt.Sprintf("Error parsing response: %v", err)}
	}

	caption, ok := data["caption"].(string)
	if !ok {
		slog.Warn("caption service response without caption", "body", string(body))
		return remoteResult{text: NoCaptionMessage}
	}

	slog.Debug("caption service responded", "caption", caption)
	return remoteResult{text: caption, ok: true}
}

// client.go - HuggingFace Hub Client
// Stellt einen HTTP-Client fuer den HuggingFace Hub und fuer einzelne
// Artefakt-URLs (Checkpoints) bereit.
//
// Enthaelt:
// - Client mit funktionalen Optionen (Token, Base-URL, Timeout, Cache)
// - FetchURL: Einmaliger Streaming-Download mit atomarem Rename
// - DownloadFile: Datei aus einem Repo in den HF-kompatiblen Cache
package huggingface

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Konstanten fuer HuggingFace Hub API
const (
	DefaultHubURL        = "https://huggingface.co"
	DefaultClientTimeout = 1800 // 30 Minuten fuer grosse Checkpoints
	EnvHFToken           = "HF_TOKEN"
	EnvHFHome            = "HF_HOME"
	EnvHFEndpoint        = "HF_ENDPOINT"
	ClientUserAgent      = "captioner/1.0"
	DefaultRevision      = "main"
)

// Fehler-Definitionen
var (
	ErrUnauthorized    = errors.New("authentifizierung fehlgeschlagen")
	ErrRateLimited     = errors.New("rate limit ueberschritten")
	ErrNetworkError    = errors.New("netzwerkfehler")
	ErrInvalidModelID  = errors.New("ungueltige modell-id")
	ErrFileNotFound    = errors.New("datei nicht gefunden")
	ErrDownloadFailed  = errors.New("download fehlgeschlagen")
	ErrInvalidResponse = errors.New("ungueltige server-antwort")
)

// ArtifactFetchError beschreibt einen fehlgeschlagenen Artefakt-Download.
// Es wird nicht erneut versucht, eine teilweise geschriebene Datei wird entfernt.
type ArtifactFetchError struct {
	URL    string
	Status int   // HTTP-Status, 0 bei Transportfehlern
	Err    error // Sentinel (ErrFileNotFound, ErrUnauthorized, ...) oder Transportfehler
}

func (e *ArtifactFetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("artifact fetch %s: status %d: %v", e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("artifact fetch %s: %v", e.URL, e.Err)
}

// Unwrap ermoeglicht errors.Is/As
func (e *ArtifactFetchError) Unwrap() error {
	return e.Err
}

// Client ist der HuggingFace Hub Client
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	userAgent  string
	cacheDir   string
}

// ClientOption ist eine Funktion zur Konfiguration des Clients
type ClientOption func(*Client)

// WithToken setzt den HuggingFace API Token
func WithToken(token string) ClientOption {
	return func(c *Client) { c.token = token }
}

// WithBaseURL setzt eine Custom Base-URL
func WithBaseURL(url string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(url, "/") }
}

// WithClientTimeout setzt den HTTP Timeout
func WithClientTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

// WithHTTPClient setzt einen Custom HTTP Client
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = client }
}

// WithCacheDir ueberschreibt das Cache-Verzeichnis (Standard: GetCacheDir)
func WithCacheDir(dir string) ClientOption {
	return func(c *Client) { c.cacheDir = dir }
}

// NewClient erstellt einen neuen HuggingFace Hub Client
func NewClient(options ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultClientTimeout * time.Second},
		baseURL:    DefaultHubURL,
		userAgent:  ClientUserAgent,
	}
	if token := os.Getenv(EnvHFToken); token != "" {
		c.token = token
	}
	if endpoint := os.Getenv(EnvHFEndpoint); endpoint != "" {
		c.baseURL = strings.TrimSuffix(endpoint, "/")
	}
	for _, opt := range options {
		opt(c)
	}
	if c.cacheDir == "" {
		c.cacheDir = GetCacheDir()
	}
	return c
}

// BaseURL gibt die aktuelle Base-URL zurueck
func (c *Client) BaseURL() string { return c.baseURL }

// CacheDir gibt das verwendete Cache-Verzeichnis zurueck
func (c *Client) CacheDir() string { return c.cacheDir }

// FetchURL laedt url einmalig nach dst. Die Daten landen zuerst in
// dst + ".download" und werden erst nach vollstaendigem Empfang umbenannt.
func (c *Client) FetchURL(ctx context.Context, url, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("verzeichnis erstellen fehlgeschlagen: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &ArtifactFetchError{URL: url, Err: err}
	}
	c.setHeaders(req)

	slog.Info("downloading artifact", "url", url, "dst", dst)
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ArtifactFetchError{URL: url, Err: fmt.Errorf("%w: %v", ErrNetworkError, err)}
	}
	defer resp.Body.Close()

	if err := c.handleResponseError(resp); err != nil {
		return &ArtifactFetchError{URL: url, Status: resp.StatusCode, Err: err}
	}

	tmpPath := dst + ".download"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("temp-datei erstellen fehlgeschlagen: %w", err)
	}

	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return &ArtifactFetchError{URL: url, Status: resp.StatusCode, Err: fmt.Errorf("%w: %v", ErrDownloadFailed, err)}
	}

	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("datei umbenennen fehlgeschlagen: %w", err)
	}

	slog.Info("artifact downloaded", "dst", dst, "bytes", n, "duration", time.Since(start))
	return nil
}

// DownloadFile laedt eine Datei aus einem Model-Repository in den Cache
// und gibt den lokalen Pfad zurueck. Bereits gecachte Dateien werden nicht
// erneut geladen.
func (c *Client) DownloadFile(ctx context.Context, modelID, filename, revision string) (string, error) {
	if err := validateModelID(modelID); err != nil {
		return "", err
	}
	if filename == "" {
		return "", fmt.Errorf("%w: dateiname darf nicht leer sein", ErrFileNotFound)
	}
	if revision == "" {
		revision = DefaultRevision
	}

	targetPath := filepath.Join(c.SnapshotDir(modelID, revision), filename)
	if _, err := os.Stat(targetPath); err == nil {
		slog.Debug("using cached file", "model", modelID, "file", filename)
		return targetPath, nil
	}

	url := fmt.Sprintf("%s/%s/resolve/%s/%s", c.baseURL, modelID, revision, filename)
	if err := c.FetchURL(ctx, url, targetPath); err != nil {
		return "", err
	}
	return targetPath, nil
}

// SnapshotDir gibt das Snapshot-Verzeichnis eines Modells im Cache zurueck
func (c *Client) SnapshotDir(modelID, revision string) string {
	return filepath.Join(c.cacheDir, modelIDToCacheDir(modelID), CacheSnapshotDir, revision)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func (c *Client) handleResponseError(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return ErrFileNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%w: status %d - %s", ErrInvalidResponse, resp.StatusCode, strings.TrimSpace(string(body)))
	}
}

func validateModelID(modelID string) error {
	if modelID == "" {
		return fmt.Errorf("%w: modell-id darf nicht leer sein", ErrInvalidModelID)
	}
	parts := strings.Split(modelID, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("%w: erwartet format 'owner/model'", ErrInvalidModelID)
	}
	return nil
}

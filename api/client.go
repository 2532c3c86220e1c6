// Package api - HTTP-Client und Wire-Typen des Caption-Dienstes.
//
// Client spricht einen laufenden captioner-Server (oder einen Dienst mit
// derselben Schnittstelle) an. RemoteCaptioner in remote.go ist die erste
// Caption-Stufe ueber einen entfernten Dienst mit Deadline.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"runtime"
	"strconv"

	"github.com/imagecaption/captioner/envconfig"
)

// Pfade der HTTP-Schnittstelle
const (
	PathCaption       = "generate_caption/"
	PathRemoteCaption = "api/generate-caption/"
	PathRefine        = "api/refine-caption/"
	PathHashtags      = "api/get-hashtags/"
	PathTranslate     = "api/translate-caption/"
)

// FileField ist der Multipart-Feldname des Bildes
const FileField = "file"

var userAgent = fmt.Sprintf("captioner (%s %s) Go/%s", runtime.GOARCH, runtime.GOOS, runtime.Version())

// Client kapselt den Zugriff auf einen captioner-Server
type Client struct {
	base *url.URL
	http *http.Client
}

func checkError(resp *http.Response, body []byte) error {
	if resp.StatusCode < http.StatusBadRequest {
		return nil
	}

	apiError := StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	if err := json.Unmarshal(body, &apiError); err != nil {
		apiError.ErrorMessage = string(body)
	}
	return apiError
}

// ClientFromEnvironment erzeugt einen Client fuer CAPTIONER_HOST
func ClientFromEnvironment() (*Client, error) {
	return &Client{
		base: envconfig.Host(),
		http: http.DefaultClient,
	}, nil
}

func NewClient(base *url.URL, http *http.Client) *Client {
	return &Client{
		base: base,
		http: http,
	}
}

func (c *Client) do(ctx context.Context, method, path string, reqData, respData any) error {
	var reqBody io.Reader
	if reqData != nil {
		data, err := json.Marshal(reqData)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.base.JoinPath(path).String(), reqBody)
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")
	request.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(request)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if err := checkError(resp, body); err != nil {
		return err
	}

	if respData != nil && len(body) > 0 {
		if err := json.Unmarshal(body, respData); err != nil {
			return fmt.Errorf("decode %s response: %w", path, err)
		}
	}
	return nil
}

// Welcome ruft GET / auf und gibt die Begruessung zurueck
func (c *Client) Welcome(ctx context.Context) (string, error) {
	var resp WelcomeResponse
	if err := c.do(ctx, http.MethodGet, "/", nil, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

// GenerateCaption schickt ein Bild an das lokale Modell des Servers
func (c *Client) GenerateCaption(ctx context.Context, image []byte, filename string, opts *CaptionOptions) (string, error) {
	endpoint := c.base.JoinPath(PathCaption)
	if opts != nil {
		q := endpoint.Query()
		if opts.MaxLength > 0 {
			q.Set("max_length", strconv.Itoa(opts.MaxLength))
		}
		if opts.NumBeams > 0 {
			q.Set("num_beams", strconv.Itoa(opts.NumBeams))
		}
		endpoint.RawQuery = q.Encode()
	}
	return c.postCaption(ctx, endpoint, image, filename)
}

// RemoteCaption schickt ein Bild an die entfernte erste Stufe des Servers
func (c *Client) RemoteCaption(ctx context.Context, image []byte, filename string) (string, error) {
	return c.postCaption(ctx, c.base.JoinPath(PathRemoteCaption), image, filename)
}

func (c *Client) postCaption(ctx context.Context, endpoint *url.URL, image []byte, filename string) (string, error) {
	resp, body, err := postImage(ctx, c.http, endpoint, image, filename)
	if err != nil {
		return "", err
	}
	if err := checkError(resp, body); err != nil {
		return "", err
	}

	var cr CaptionResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return "", fmt.Errorf("decode caption response: %w", err)
	}
	if cr.Error != "" {
		return "", StatusError{StatusCode: resp.StatusCode, ErrorMessage: cr.Error}
	}
	return cr.Caption, nil
}

// Refine verfeinert eine Caption ueber den Server
func (c *Client) Refine(ctx context.Context, req RefineRequest) (string, error) {
	var resp RefineResponse
	if err := c.do(ctx, http.MethodPost, PathRefine, req, &resp); err != nil {
		return "", err
	}
	return resp.RefinedCaption, nil
}

// Hashtags erzeugt Hashtags ueber den Server
func (c *Client) Hashtags(ctx context.Context, caption string) ([]string, error) {
	var resp HashtagsResponse
	if err := c.do(ctx, http.MethodPost, PathHashtags, HashtagsRequest{Caption: caption}, &resp); err != nil {
		return nil, err
	}
	return resp.Hashtags, nil
}

// Translate uebersetzt einen Text ueber den Server
func (c *Client) Translate(ctx context.Context, text, language string) (string, error) {
	var resp TranslateResponse
	req := TranslateRequest{Text: text, TargetLanguage: language}
	if err := c.do(ctx, http.MethodPost, PathTranslate, req, &resp); err != nil {
		return "", err
	}
	return resp.TranslatedText, nil
}

// postImage schickt image als Multipart-Feld "file" an endpoint und liest die Antwort vollstaendig
func postImage(ctx context.Context, hc *http.Client, endpoint *url.URL, image []byte, filename string) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile(FileField, filename)
	if err != nil {
		return nil, nil, err
	}
	if _, err := part.Write(image); err != nil {
		return nil, nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, nil, err
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), &buf)
	if err != nil {
		return nil, nil, err
	}
	request.Header.Set("Content-Type", mw.FormDataContentType())
	request.Header.Set("Accept", "application/json")
	request.Header.Set("User-Agent", userAgent)

	resp, err := hc.Do(request)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	return resp, body, nil
}

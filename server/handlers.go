// handlers.go - Handler der Caption-Endpunkte
// Beinhaltet: Welcome, GenerateCaption (lokal), RemoteCaption, Refine, Hashtags, Translate
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/imagecaption/captioner/api"
	"github.com/imagecaption/captioner/llm"
	"github.com/imagecaption/captioner/runner"
	"github.com/imagecaption/captioner/vision"
)

// WelcomeMessage ist die Antwort auf GET /
const WelcomeMessage = "Welcome to the Image Captioning API!"

// Standardwerte von /generate_caption/ ohne Query-Parameter
const (
	DefaultRequestMaxLength = 30
	DefaultRequestNumBeams  = 4
)

// MaxImageBytes begrenzt die Groesse hochgeladener Bilder
const MaxImageBytes = 20 << 20

var (
	errNoFile      = errors.New("No file provided.")
	errFileTooBig  = fmt.Errorf("file exceeds %d bytes", MaxImageBytes)
	errUnavailable = errors.New("service not configured")
)

func (s *Server) WelcomeHandler(c *gin.Context) {
	c.JSON(http.StatusOK, api.WelcomeResponse{Message: WelcomeMessage})
}

// readUpload liest das Multipart-Feld "file"
func readUpload(c *gin.Context) ([]byte, string, error) {
	fh, err := c.FormFile(api.FileField)
	if err != nil {
		return nil, "", errNoFile
	}

	f, err := fh.Open()
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxImageBytes+1))
	if err != nil {
		return nil, "", err
	}
	if len(data) > MaxImageBytes {
		return nil, "", errFileTooBig
	}
	return data, fh.Filename, nil
}

func uploadStatus(err error) int {
	switch {
	case errors.Is(err, errNoFile):
		return http.StatusBadRequest
	case errors.Is(err, errFileTooBig):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// queryInt liest einen optionalen positiven Query-Parameter
func queryInt(c *gin.Context, name string, def int) (int, error) {
	s, ok := c.GetQuery(name)
	if !ok || s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s %q", name, s)
	}
	return n, nil
}

// GenerateCaptionHandler erzeugt eine Caption mit dem lokalen Modell
func (s *Server) GenerateCaptionHandler(c *gin.Context) {
	if s.captioner == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, api.CaptionResponse{Error: errUnavailable.Error()})
		return
	}

	maxLength, err := queryInt(c, "max_length", DefaultRequestMaxLength)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, api.CaptionResponse{Error: err.Error()})
		return
	}
	numBeams, err := queryInt(c, "num_beams", DefaultRequestNumBeams)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, api.CaptionResponse{Error: err.Error()})
		return
	}

	data, _, err := readUpload(c)
	if err != nil {
		c.AbortWithStatusJSON(uploadStatus(err), api.CaptionResponse{Error: err.Error()})
		return
	}

	caption, err := s.captioner.Generate(c.Request.Context(), data, runner.Overrides{MaxLength: maxLength, NumBeams: numBeams})
	if err != nil {
		var de *vision.DecodeError
		status := http.StatusInternalServerError
		switch {
		case errors.As(err, &de), errors.Is(err, runner.ErrOverride):
			status = http.StatusBadRequest
		case errors.Is(err, context.Canceled):
			slog.Info("caption request cancelled by client")
		default:
			slog.Error("caption generation failed", "error", err)
		}
		c.AbortWithStatusJSON(status, api.CaptionResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, api.CaptionResponse{Caption: caption})
}

// RemoteCaptionHandler fragt den entfernten Caption-Dienst. Die Antwort ist
// immer {"caption": ...}, auch bei Fehlern des Dienstes.
func (s *Server) RemoteCaptionHandler(c *gin.Context) {
	if s.remote == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, api.CaptionResponse{Error: errUnavailable.Error()})
		return
	}

	data, filename, err := readUpload(c)
	if err != nil {
		c.AbortWithStatusJSON(uploadStatus(err), api.CaptionResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, api.CaptionResponse{Caption: s.remote.Caption(c.Request.Context(), data, filename)})
}

// bindOptional liest einen JSON-Body. Ein kaputter Body zaehlt als leere Anfrage,
// die Pipeline-Endpunkte antworten immer mit ihrem Ergebnisfeld.
func bindOptional(c *gin.Context, v any) {
	if err := c.ShouldBindJSON(v); err != nil {
		slog.Debug("ignoring malformed request body", "path", c.Request.URL.Path, "error", err)
	}
}

func (s *Server) RefineHandler(c *gin.Context) {
	if s.refiner == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": errUnavailable.Error()})
		return
	}

	var req api.RefineRequest
	bindOptional(c, &req)

	refined := s.refiner.Refine(c.Request.Context(), llm.RefinementRequest{
		Caption:        req.Caption,
		Tone:           req.Tone,
		AdditionalInfo: req.AdditionalInfo,
	})
	c.JSON(http.StatusOK, api.RefineResponse{RefinedCaption: refined})
}

func (s *Server) HashtagsHandler(c *gin.Context) {
	if s.refiner == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": errUnavailable.Error()})
		return
	}

	var req api.HashtagsRequest
	bindOptional(c, &req)

	c.JSON(http.StatusOK, api.HashtagsResponse{Hashtags: s.refiner.Hashtags(c.Request.Context(), req.Caption)})
}

func (s *Server) TranslateHandler(c *gin.Context) {
	if s.refiner == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": errUnavailable.Error()})
		return
	}

	var req api.TranslateRequest
	bindOptional(c, &req)

	c.JSON(http.StatusOK, api.TranslateResponse{
		TranslatedText: s.refiner.Translate(c.Request.Context(), req.Text, req.TargetLanguage),
	})
}

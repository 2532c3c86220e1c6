// types.go - Wire-Typen der HTTP-Schnittstelle
// Enthaelt: StatusError, CaptionOptions, CaptionResponse, RefineRequest/Response,
// HashtagsRequest/Response, TranslateRequest/Response, WelcomeResponse
package api

import "fmt"

// StatusError ist ein Fehler mit HTTP-Status und Meldung
type StatusError struct {
	StatusCode   int
	Status       string
	ErrorMessage string `json:"error"`
}

func (e StatusError) Error() string {
	switch {
	case e.Status != "" && e.ErrorMessage != "":
		return fmt.Sprintf("%s: %s", e.Status, e.ErrorMessage)
	case e.Status != "":
		return e.Status
	case e.ErrorMessage != "":
		return e.ErrorMessage
	default:
		return fmt.Sprintf("unexpected status code %d", e.StatusCode)
	}
}

// CaptionOptions ueberschreibt die Dekodier-Parameter einer Anfrage.
// Nullwerte lassen den Standard des Servers stehen.
type CaptionOptions struct {
	MaxLength int
	NumBeams  int
}

// CaptionResponse ist die Antwort der Caption-Endpunkte. Genau eines der
// Felder ist gesetzt.
type CaptionResponse struct {
	Caption string `json:"caption,omitempty"`
	Error   string `json:"error,omitempty"`
}

// RefineRequest ist der Body von /api/refine-caption/
type RefineRequest struct {
	Caption        string `json:"caption"`
	Tone           string `json:"tone,omitempty"`
	AdditionalInfo string `json:"additional_info,omitempty"`
}

type RefineResponse struct {
	RefinedCaption string `json:"refined_caption"`
}

// HashtagsRequest ist der Body von /api/get-hashtags/
type HashtagsRequest struct {
	Caption string `json:"caption"`
}

type HashtagsResponse struct {
	Hashtags []string `json:"hashtags"`
}

// TranslateRequest ist der Body von /api/translate-caption/
type TranslateRequest struct {
	Text           string `json:"text"`
	TargetLanguage string `json:"target_language"`
}

type TranslateResponse struct {
	TranslatedText string `json:"translated_text"`
}

// WelcomeResponse ist die Antwort auf GET /
type WelcomeResponse struct {
	Message string `json:"message"`
}

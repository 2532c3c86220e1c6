// MODUL: formats
// ZWECK: Bildformat-Erkennung und Validierung vor dem Dekodieren
// INPUT: Bild-Bytes
// OUTPUT: ImageFormat, Fehler bei unbekanntem Format
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: keine (nur Standardbibliothek)
// HINWEISE: Magic-Bytes-basierte Erkennung, unterstuetzt JPEG/PNG/WebP/GIF/BMP/TIFF

package vision

import (
	"bytes"
	"errors"
)

// ImageFormat repraesentiert ein unterstuetztes Bildformat
type ImageFormat string

const (
	FormatJPEG    ImageFormat = "jpeg"
	FormatPNG     ImageFormat = "png"
	FormatWebP    ImageFormat = "webp"
	FormatGIF     ImageFormat = "gif"
	FormatBMP     ImageFormat = "bmp"
	FormatTIFF    ImageFormat = "tiff"
	FormatUnknown ImageFormat = "unknown"
)

// Magic-Byte-Signaturen fuer Bildformate
var (
	magicJPEG   = []byte{0xFF, 0xD8, 0xFF}
	magicPNG    = []byte{0x89, 0x50, 0x4E, 0x47}
	magicWebP   = []byte("RIFF")
	magicGIF    = []byte("GIF8")
	magicBMP    = []byte("BM")
	magicTIFFLE = []byte{'I', 'I', 0x2A, 0x00}
	magicTIFFBE = []byte{'M', 'M', 0x00, 0x2A}
)

// ErrUnknownFormat wird zurueckgegeben wenn Format nicht erkannt wurde
var ErrUnknownFormat = errors.New("unbekanntes Bildformat")

// DetectFormat erkennt das Bildformat anhand der Magic-Bytes
func DetectFormat(data []byte) ImageFormat {
	if len(data) < 4 {
		return FormatUnknown
	}

	switch {
	case bytes.HasPrefix(data, magicJPEG):
		return FormatJPEG
	case bytes.HasPrefix(data, magicPNG):
		return FormatPNG
	case bytes.HasPrefix(data, magicWebP) && isValidWebP(data):
		return FormatWebP
	case bytes.HasPrefix(data, magicGIF):
		return FormatGIF
	case bytes.HasPrefix(data, magicTIFFLE), bytes.HasPrefix(data, magicTIFFBE):
		return FormatTIFF
	case bytes.HasPrefix(data, magicBMP):
		return FormatBMP
	}
	return FormatUnknown
}

// isValidWebP prueft auf "WEBP" Marker nach RIFF Header
func isValidWebP(data []byte) bool {
	// RIFF....WEBP
	return len(data) >= 12 && string(data[8:12]) == "WEBP"
}

// ValidateFormat prueft ob ein Format unterstuetzt wird
func ValidateFormat(format ImageFormat) error {
	switch format {
	case FormatJPEG, FormatPNG, FormatWebP, FormatGIF, FormatBMP, FormatTIFF:
		return nil
	default:
		return ErrUnknownFormat
	}
}

// String implementiert Stringer Interface
func (f ImageFormat) String() string {
	return string(f)
}

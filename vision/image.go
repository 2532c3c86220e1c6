// MODUL: image
// ZWECK: Bilder dekodieren, auf 3 Kanaele reduzieren und skalieren
// INPUT: Bild-Bytes
// OUTPUT: ImageInput Struktur mit deckendem RGB-Bild
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: golang.org/x/image (draw, webp, bmp, tiff)
// HINWEISE: Alpha wird verworfen, die Farbwerte bleiben unmultipliziert erhalten

package vision

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"

	// Standard-Decoder registrieren
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DecodeError beschreibt Bild-Bytes die nicht dekodiert werden koennen
type DecodeError struct {
	Format ImageFormat
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("bild dekodieren fehlgeschlagen (%s): %v", e.Format, e.Err)
}

// Unwrap ermoeglicht errors.Is/As
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ImageInput enthaelt ein dekodiertes Bild mit Metadaten
type ImageInput struct {
	Image  *image.RGBA
	Width  int
	Height int
	Format ImageFormat
}

// LoadImageFromBytes dekodiert ein Bild aus Byte-Daten.
// Fehler sind immer vom Typ *DecodeError.
func LoadImageFromBytes(data []byte) (*ImageInput, error) {
	if len(data) == 0 {
		return nil, &DecodeError{Format: FormatUnknown, Err: errors.New("leere daten")}
	}

	format := DetectFormat(data)
	if err := ValidateFormat(format); err != nil {
		return nil, &DecodeError{Format: format, Err: err}
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Format: format, Err: err}
	}

	rgb := toRGB(img)
	bounds := rgb.Bounds()
	if bounds.Empty() {
		return nil, &DecodeError{Format: format, Err: errors.New("bild hat keine pixel")}
	}

	return &ImageInput{
		Image:  rgb,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Format: format,
	}, nil
}

// toRGB erzeugt ein deckendes Bild ab Ursprung (0,0). Wie bei einer
// RGB-Konvertierung wird der Alpha-Kanal verworfen, die Farbanteile
// bleiben unmultipliziert erhalten.
func toRGB(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			dst.SetRGBA(x-bounds.Min.X, y-bounds.Min.Y, color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xFF})
		}
	}
	return dst
}

// ResizeImage skaliert ein Bild bilinear auf die angegebene Groesse
func ResizeImage(img *ImageInput, width, height int) (*ImageInput, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("ungueltige Groesse: %dx%d", width, height)
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img.Image, img.Image.Bounds(), draw.Src, nil)

	return &ImageInput{
		Image:  dst,
		Width:  width,
		Height: height,
		Format: img.Format,
	}, nil
}

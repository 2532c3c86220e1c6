// MODUL: preprocess
// ZWECK: Beliebige Bild-Bytes in den Eingabetensor des Vision-Encoders wandeln
// INPUT: Bild-Bytes (JPEG/PNG/WebP/GIF/BMP/TIFF)
// OUTPUT: ImageTensor mit Shape [1, 3, Size, Size]
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: ml (Tensor), image.go, normalize.go
// HINWEISE: Groesse und mean/std gehoeren zum Trainingsvertrag des Modells

package vision

import (
	"fmt"
	"log/slog"

	"github.com/imagecaption/captioner/ml"
)

// DefaultImageSize ist die quadratische Eingabegroesse des Encoders
const DefaultImageSize = 224

// Preprocessor beschreibt Zielgroesse und Normalisierung
type Preprocessor struct {
	Size int
	Mean [3]float32
	Std  [3]float32
}

// DefaultPreprocessor liefert 224x224 mit mean = std = 0.5
func DefaultPreprocessor() Preprocessor {
	return Preprocessor{Size: DefaultImageSize, Mean: StandardMean, Std: StandardStd}
}

// ImageTensor ist das normalisierte Bild samt Herkunftsinformationen
type ImageTensor struct {
	Pixels *ml.Tensor // [1, 3, Size, Size]

	SourceWidth  int
	SourceHeight int
	Format       ImageFormat
}

// Preprocess dekodiert data, skaliert bilinear auf Size x Size und
// normalisiert kanalweise. Kaputte Bilder liefern *DecodeError.
func (p Preprocessor) Preprocess(data []byte) (*ImageTensor, error) {
	img, err := LoadImageFromBytes(data)
	if err != nil {
		return nil, err
	}

	resized, err := ResizeImage(img, p.Size, p.Size)
	if err != nil {
		return nil, err
	}

	pixels, err := ml.FromData(NormalizeRGB(resized, p.Mean, p.Std), 1, 3, p.Size, p.Size)
	if err != nil {
		return nil, fmt.Errorf("bildtensor erstellen fehlgeschlagen: %w", err)
	}

	slog.Debug("image preprocessed", "format", img.Format, "width", img.Width, "height", img.Height, "size", p.Size)
	return &ImageTensor{
		Pixels:       pixels,
		SourceWidth:  img.Width,
		SourceHeight: img.Height,
		Format:       img.Format,
	}, nil
}

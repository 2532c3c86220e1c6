// MODUL: image_test
// ZWECK: Tests fuer Dekodieren, Alpha-Behandlung und Skalierung
// INPUT: Synthetische Bilder in verschiedenen Formaten
// OUTPUT: Testresultate
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: testing, image/*, golang.org/x/image/{bmp,tiff}
// HINWEISE: Kodiert Testbilder im Speicher, keine Testdateien noetig

package vision

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// solidImage erzeugt ein einfarbiges NRGBA-Bild
func solidImage(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

// createPNGBytes erzeugt PNG-Bytes aus einem Testbild
func createPNGBytes(t *testing.T, w, h int, c color.NRGBA) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, solidImage(w, h, c)); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestLoadImageFromBytesFormats(t *testing.T) {
	img := solidImage(40, 20, color.NRGBA{R: 200, G: 100, B: 50, A: 255})

	encoders := map[ImageFormat]func(*bytes.Buffer) error{
		FormatPNG:  func(b *bytes.Buffer) error { return png.Encode(b, img) },
		FormatJPEG: func(b *bytes.Buffer) error { return jpeg.Encode(b, img, nil) },
		FormatGIF:  func(b *bytes.Buffer) error { return gif.Encode(b, img, nil) },
		FormatBMP:  func(b *bytes.Buffer) error { return bmp.Encode(b, img) },
		FormatTIFF: func(b *bytes.Buffer) error { return tiff.Encode(b, img, nil) },
	}

	for format, encode := range encoders {
		t.Run(format.String(), func(t *testing.T) {
			var buf bytes.Buffer
			if err := encode(&buf); err != nil {
				t.Fatal(err)
			}

			got, err := LoadImageFromBytes(buf.Bytes())
			if err != nil {
				t.Fatalf("LoadImageFromBytes() error = %v", err)
			}
			if got.Width != 40 || got.Height != 20 {
				t.Errorf("Groesse = %dx%d, erwartet 40x20", got.Width, got.Height)
			}
			if got.Format != format {
				t.Errorf("Format = %v, erwartet %v", got.Format, format)
			}
			if a := got.Image.RGBAAt(0, 0).A; a != 0xFF {
				t.Errorf("Alpha = %d, erwartet deckend", a)
			}
		})
	}
}

func TestLoadImageFromBytesInvalid(t *testing.T) {
	cases := map[string][]byte{
		"leer":              nil,
		"unbekannt":         {0x00, 0x00, 0x00, 0x00},
		"abgeschnitten png": createPNGBytes(t, 10, 10, color.NRGBA{A: 255})[:20],
	}

	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadImageFromBytes(data)
			var decodeErr *DecodeError
			if !errors.As(err, &decodeErr) {
				t.Errorf("Fehler = %v, erwartet *DecodeError", err)
			}
		})
	}
}

func TestTransparentPixelsKeepColor(t *testing.T) {
	data := createPNGBytes(t, 4, 4, color.NRGBA{R: 10, G: 20, B: 30, A: 0})

	img, err := LoadImageFromBytes(data)
	if err != nil {
		t.Fatal(err)
	}

	want := color.RGBA{R: 10, G: 20, B: 30, A: 255}
	if got := img.Image.RGBAAt(2, 2); got != want {
		t.Errorf("pixel = %v, erwartet %v", got, want)
	}
}

func TestResizeImage(t *testing.T) {
	img, err := LoadImageFromBytes(createPNGBytes(t, 100, 60, color.NRGBA{R: 255, G: 255, B: 255, A: 255}))
	if err != nil {
		t.Fatal(err)
	}

	resized, err := ResizeImage(img, 50, 50)
	if err != nil {
		t.Fatalf("ResizeImage() error = %v", err)
	}
	if resized.Width != 50 || resized.Height != 50 || resized.Image.Bounds().Dx() != 50 {
		t.Errorf("Groesse = %dx%d, erwartet 50x50", resized.Width, resized.Height)
	}
	if got := resized.Image.RGBAAt(25, 25); got != (color.RGBA{255, 255, 255, 255}) {
		t.Errorf("pixel = %v, erwartet weiss", got)
	}
}

func TestResizeImageInvalidSize(t *testing.T) {
	img := &ImageInput{Image: image.NewRGBA(image.Rect(0, 0, 4, 4)), Width: 4, Height: 4}
	for _, size := range [][2]int{{0, 10}, {10, 0}, {-1, -1}} {
		if _, err := ResizeImage(img, size[0], size[1]); err == nil {
			t.Errorf("ResizeImage(%v) erwartet Fehler", size)
		}
	}
}

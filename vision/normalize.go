// MODUL: normalize
// ZWECK: Normalisierung und Tensor-Konvertierung fuer den Vision-Encoder
// INPUT: ImageInput, Normalisierungs-Parameter (mean, std)
// OUTPUT: float32-Werte im CHW Layout
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: keine (nur Standardbibliothek)
// HINWEISE: Werte werden erst auf [0,1] skaliert, dann (x - mean) / std

package vision

// Normalisierung mit der das Modell trainiert wurde (Ergebnis in [-1, 1])
var (
	StandardMean = [3]float32{0.5, 0.5, 0.5}
	StandardStd  = [3]float32{0.5, 0.5, 0.5}
)

// NormalizeRGB normalisiert ein Bild mit gegebenen mean/std Werten
// und gibt einen float32-Slice im CHW Format zurueck (Channel-First)
func NormalizeRGB(img *ImageInput, mean, std [3]float32) []float32 {
	bounds := img.Image.Bounds()
	size := bounds.Dx() * bounds.Dy()

	result := make([]float32, size*3)
	r, g, b := result[:size], result[size:2*size], result[2*size:]

	idx := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			p := img.Image.RGBAAt(x, y)
			r[idx] = (float32(p.R)/255 - mean[0]) / std[0]
			g[idx] = (float32(p.G)/255 - mean[1]) / std[1]
			b[idx] = (float32(p.B)/255 - mean[2]) / std[2]
			idx++
		}
	}

	return result
}

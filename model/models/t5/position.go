package t5

import (
	"math"

	"github.com/imagecaption/captioner/ml"
)

// relativeBucket ordnet einen Abstand (key - query) einem Bucket zu.
// Der Decoder ist unidirektional: nur Abstaende in die Vergangenheit zaehlen.
func relativeBucket(relative, buckets, maxDistance int) int {
	n := max(-relative, 0)

	maxExact := buckets / 2
	if n < maxExact {
		return n
	}

	large := maxExact + int(math.Log(float64(n)/float64(maxExact))/
		math.Log(float64(maxDistance)/float64(maxExact))*float64(buckets-maxExact))
	return min(large, buckets-1)
}

// positionBias berechnet [heads, q, k] aus der Bias-Tabelle [buckets, heads].
// Abfragen liegen am Ende des Schluessel-Fensters.
func positionBias(table *ml.Tensor, queries, keys int, c Config) *ml.Tensor {
	heads := c.NumHeads
	bias := ml.New(heads, queries, keys)
	offset := keys - queries
	for i := range queries {
		for j := range keys {
			row := table.Row(relativeBucket(j-(i+offset), c.RelativeBuckets, c.RelativeMaxDistance))
			for h := range heads {
				bias.Data[(h*queries+i)*keys+j] = row[h]
			}
		}
	}
	return bias
}

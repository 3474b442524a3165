package ml

import "math/rand"

// blobs returns three well separated Gaussian clusters in width dimensions.
func blobs(perClass, width int, seed int64) ([][]float64, []int) {
	rng := rand.New(rand.NewSource(seed))
	centers := []float64{-5, 0, 5}
	features := make([][]float64, 0, perClass*len(centers))
	labels := make([]int, 0, perClass*len(centers))
	for c, center := range centers {
		for i := 0; i < perClass; i++ {
			row := make([]float64, width)
			for j := range row {
				row[j] = center + rng.NormFloat64()*0.5
			}
			features = append(features, row)
			labels = append(labels, c)
		}
	}
	return features, labels
}

package ml

import (
	"sort"
)

const DefaultNeighbors = 5

// KNN is a k-nearest-neighbors classifier with Euclidean distance and uniform votes.
type KNN struct {
	K       int         `json:"k"`
	Classes int         `json:"classes"`
	Points  [][]float64 `json:"points"`
	Labels  []int       `json:"labels"`
}

func NewKNN(k int) *KNN {
	if k <= 0 {
		k = DefaultNeighbors
	}
	return &KNN{K: k}
}

// Fit memorizes the training set.
func (m *KNN) Fit(features [][]float64, labels []int) error {
	_, classes, err := validateTrainingSet(features, labels)
	if err != nil {
		return err
	}
	if m.K <= 0 {
		m.K = DefaultNeighbors
	}
	m.Points = make([][]float64, len(features))
	for i, row := range features {
		m.Points[i] = append([]float64(nil), row...)
	}
	m.Labels = append([]int(nil), labels...)
	m.Classes = classes
	return nil
}

type neighbor struct {
	dist  float64
	index int
}

func (m *KNN) Predict(features []float64) (int, error) {
	if len(m.Points) == 0 {
		return 0, ErrNotTrained
	}
	if len(features) != len(m.Points[0]) {
		return 0, ErrFeatureLength
	}

	neighbors := make([]neighbor, len(m.Points))
	for i, p := range m.Points {
		neighbors[i] = neighbor{dist: squaredDistance(features, p), index: i}
	}
	sort.Slice(neighbors, func(a, b int) bool {
		if neighbors[a].dist != neighbors[b].dist {
			return neighbors[a].dist < neighbors[b].dist
		}
		return neighbors[a].index < neighbors[b].index
	})

	k := m.K
	if k > len(neighbors) {
		k = len(neighbors)
	}
	votes := make([]int, k)
	for i := 0; i < k; i++ {
		votes[i] = m.Labels[neighbors[i].index]
	}
	return majorityVote(votes, m.Classes), nil
}

func squaredDistance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

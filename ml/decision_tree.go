package ml

import (
	"errors"
	"math/rand"
	"sort"
)

// DecisionTree is a CART classifier using weighted Gini impurity. Nodes are stored in a
// flat slice; the root is nodes[0].
type DecisionTree struct {
	MaxDepth    int        `json:"max_depth,omitempty"`
	MaxFeatures int        `json:"max_features,omitempty"`
	Classes     int        `json:"classes"`
	Nodes       []TreeNode `json:"nodes"`

	rng *rand.Rand
}

type TreeNode struct {
	FeatureIdx int       `json:"feature_idx"`
	Threshold  float64   `json:"threshold"`
	LeftChild  int       `json:"left_child"`
	RightChild int       `json:"right_child"`
	ClassLabel int       `json:"class_label"`
	IsLeaf     bool      `json:"is_leaf"`
	Value      []float64 `json:"value,omitempty"`
}

func (dt *DecisionTree) Fit(features [][]float64, labels []int) error {
	_, classes, err := validateTrainingSet(features, labels)
	if err != nil {
		return err
	}
	weights := make([]float64, len(labels))
	indices := make([]int, len(labels))
	for i := range labels {
		weights[i] = 1
		indices[i] = i
	}
	return dt.fitWeighted(features, labels, weights, indices, classes)
}

// fitWeighted grows the tree over the rows in indices, each row weighted by weights[row].
func (dt *DecisionTree) fitWeighted(features [][]float64, labels []int, weights []float64, indices []int, classes int) error {
	if len(indices) == 0 {
		return ErrEmptyDataset
	}
	b := &treeBuilder{
		x:           features,
		y:           labels,
		w:           weights,
		classes:     classes,
		width:       len(features[0]),
		maxDepth:    dt.MaxDepth,
		maxFeatures: dt.MaxFeatures,
		rng:         dt.rng,
	}
	if b.maxFeatures > 0 && b.rng == nil {
		b.rng = rand.New(rand.NewSource(1))
	}
	b.build(append([]int(nil), indices...), 0)
	dt.Nodes = b.nodes
	dt.Classes = classes
	return nil
}

func (dt *DecisionTree) PredictProba(features []float64) ([]float64, error) {
	if len(dt.Nodes) == 0 {
		return nil, ErrNotTrained
	}
	idx := 0
	for {
		node := dt.Nodes[idx]
		if node.IsLeaf {
			return node.Value, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return nil, errors.New("feature index out of range")
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx <= 0 || idx >= len(dt.Nodes) {
			return nil, errors.New("invalid tree state")
		}
	}
}

func (dt *DecisionTree) Predict(features []float64) (int, error) {
	proba, err := dt.PredictProba(features)
	if err != nil {
		return 0, err
	}
	return argmax(proba), nil
}

type treeBuilder struct {
	x           [][]float64
	y           []int
	w           []float64
	classes     int
	width       int
	maxDepth    int
	maxFeatures int
	rng         *rand.Rand
	nodes       []TreeNode
}

func (b *treeBuilder) build(indices []int, depth int) int {
	dist := b.distribution(indices)
	nodeIdx := len(b.nodes)
	b.nodes = append(b.nodes, b.leaf(dist))

	if len(indices) < 2 || isPure(dist) || (b.maxDepth > 0 && depth >= b.maxDepth) {
		return nodeIdx
	}

	feature, threshold, ok := b.findBestSplit(indices, dist)
	if !ok {
		return nodeIdx
	}

	left := make([]int, 0, len(indices))
	right := make([]int, 0, len(indices))
	for _, i := range indices {
		if b.x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return nodeIdx
	}

	leftIdx := b.build(left, depth+1)
	rightIdx := b.build(right, depth+1)
	b.nodes[nodeIdx] = TreeNode{
		FeatureIdx: feature,
		Threshold:  threshold,
		LeftChild:  leftIdx,
		RightChild: rightIdx,
		ClassLabel: argmax(dist),
		IsLeaf:     false,
	}
	return nodeIdx
}

func (b *treeBuilder) leaf(dist []float64) TreeNode {
	var total float64
	for _, v := range dist {
		total += v
	}
	value := make([]float64, len(dist))
	for c, v := range dist {
		if total > 0 {
			value[c] = v / total
		}
	}
	return TreeNode{
		FeatureIdx: -1,
		LeftChild:  -1,
		RightChild: -1,
		ClassLabel: argmax(dist),
		IsLeaf:     true,
		Value:      value,
	}
}

func (b *treeBuilder) distribution(indices []int) []float64 {
	dist := make([]float64, b.classes)
	for _, i := range indices {
		dist[b.y[i]] += b.w[i]
	}
	return dist
}

// findBestSplit scans candidate features for the split with the lowest weighted Gini
// impurity. With maxFeatures set, features are visited in random order until that many
// non-constant features have been scored.
func (b *treeBuilder) findBestSplit(indices []int, dist []float64) (int, float64, bool) {
	order := make([]int, b.width)
	for i := range order {
		order[i] = i
	}
	limit := b.width
	if b.maxFeatures > 0 && b.maxFeatures < b.width {
		order = b.rng.Perm(b.width)
		limit = b.maxFeatures
	}

	var total float64
	for _, v := range dist {
		total += v
	}

	bestFeature := -1
	bestThreshold := 0.0
	bestScore := -1.0
	sorted := make([]int, len(indices))
	leftDist := make([]float64, b.classes)
	rightDist := make([]float64, b.classes)
	scored := 0

	for _, feature := range order {
		if scored >= limit {
			break
		}
		copy(sorted, indices)
		sort.Slice(sorted, func(a, c int) bool {
			return b.x[sorted[a]][feature] < b.x[sorted[c]][feature]
		})
		if b.x[sorted[0]][feature] == b.x[sorted[len(sorted)-1]][feature] {
			continue
		}
		scored++

		for c := range leftDist {
			leftDist[c] = 0
			rightDist[c] = dist[c]
		}
		var leftTotal float64
		for p := 1; p < len(sorted); p++ {
			prev := sorted[p-1]
			wv := b.w[prev]
			leftDist[b.y[prev]] += wv
			rightDist[b.y[prev]] -= wv
			leftTotal += wv

			lo := b.x[prev][feature]
			hi := b.x[sorted[p]][feature]
			if lo == hi {
				continue
			}
			rightTotal := total - leftTotal
			if leftTotal <= 0 || rightTotal <= 0 {
				continue
			}
			// Minimizing weighted Gini is maximizing sum(w_c^2)/W on each side.
			score := sumSquares(leftDist)/leftTotal + sumSquares(rightDist)/rightTotal
			if score > bestScore {
				bestScore = score
				bestFeature = feature
				threshold := lo + (hi-lo)/2
				if threshold >= hi {
					threshold = lo
				}
				bestThreshold = threshold
			}
		}
	}
	if bestFeature == -1 {
		return -1, 0, false
	}
	return bestFeature, bestThreshold, true
}

func sumSquares(values []float64) float64 {
	var s float64
	for _, v := range values {
		s += v * v
	}
	return s
}

func isPure(dist []float64) bool {
	nonZero := 0
	for _, v := range dist {
		if v > 0 {
			nonZero++
		}
	}
	return nonZero <= 1
}

package ml

import (
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sync"
)

const (
	DefaultForestTrees = 100
	DefaultForestSeed  = 42
)

// RandomForest bags DecisionTrees grown on bootstrap samples with sqrt(width) candidate
// features per split. Predictions average the trees' leaf distributions.
type RandomForest struct {
	Trees    int             `json:"n_estimators"`
	Seed     int64           `json:"random_state"`
	Balanced bool            `json:"balanced"`
	Workers  int             `json:"-"`
	Classes  int             `json:"classes"`
	Forest   []*DecisionTree `json:"trees"`
}

func NewRandomForest(trees int, seed int64, balanced bool) *RandomForest {
	if trees <= 0 {
		trees = DefaultForestTrees
	}
	return &RandomForest{Trees: trees, Seed: seed, Balanced: balanced}
}

func (rf *RandomForest) Fit(features [][]float64, labels []int) error {
	width, classes, err := validateTrainingSet(features, labels)
	if err != nil {
		return err
	}
	if rf.Trees <= 0 {
		rf.Trees = DefaultForestTrees
	}
	maxFeatures := int(math.Sqrt(float64(width)))
	if maxFeatures < 1 {
		maxFeatures = 1
	}

	classWeights := make([]float64, classes)
	for c := range classWeights {
		classWeights[c] = 1
	}
	if rf.Balanced {
		classWeights = balancedWeights(labels, classes)
	}

	// Seeds are drawn up front so the forest does not depend on goroutine scheduling.
	master := rand.New(rand.NewSource(rf.Seed))
	seeds := make([]int64, rf.Trees)
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	workers := rf.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	forest := make([]*DecisionTree, rf.Trees)
	errs := make([]error, rf.Trees)
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for t := 0; t < rf.Trees; t++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(t int) {
			defer wg.Done()
			defer func() { <-sem }()
			forest[t], errs[t] = growTree(features, labels, classWeights, classes, maxFeatures, seeds[t])
		}(t)
	}
	wg.Wait()

	for t, err := range errs {
		if err != nil {
			return fmt.Errorf("tree %d: %w", t, err)
		}
	}
	rf.Forest = forest
	rf.Classes = classes
	return nil
}

func growTree(features [][]float64, labels []int, classWeights []float64, classes, maxFeatures int, seed int64) (*DecisionTree, error) {
	rng := rand.New(rand.NewSource(seed))
	n := len(labels)
	counts := make([]int, n)
	for i := 0; i < n; i++ {
		counts[rng.Intn(n)]++
	}
	weights := make([]float64, n)
	indices := make([]int, 0, n)
	for i, count := range counts {
		if count == 0 {
			continue
		}
		weights[i] = classWeights[labels[i]] * float64(count)
		indices = append(indices, i)
	}

	tree := &DecisionTree{MaxFeatures: maxFeatures, rng: rng}
	if err := tree.fitWeighted(features, labels, weights, indices, classes); err != nil {
		return nil, err
	}
	return tree, nil
}

func (rf *RandomForest) PredictProba(features []float64) ([]float64, error) {
	if len(rf.Forest) == 0 {
		return nil, ErrNotTrained
	}
	avg := make([]float64, rf.Classes)
	for _, tree := range rf.Forest {
		proba, err := tree.PredictProba(features)
		if err != nil {
			return nil, err
		}
		for c, p := range proba {
			if c < len(avg) {
				avg[c] += p
			}
		}
	}
	for c := range avg {
		avg[c] /= float64(len(rf.Forest))
	}
	return avg, nil
}

func (rf *RandomForest) Predict(features []float64) (int, error) {
	proba, err := rf.PredictProba(features)
	if err != nil {
		return 0, err
	}
	return argmax(proba), nil
}

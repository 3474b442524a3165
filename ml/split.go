package ml

import (
	"errors"
	"math"
	"math/rand"
	"sort"
)

// Split holds the row indices of a train/test partition, each in ascending order.
type Split struct {
	Train []int
	Test  []int
}

// StratifiedSplit partitions rows so each class keeps its share in both partitions.
// The test partition has ceil(testRatio*n) rows; per-class quotas use largest remainders.
func StratifiedSplit(labels []int, testRatio float64, seed int64) (Split, error) {
	n := len(labels)
	if n < 2 {
		return Split{}, errors.New("need at least two rows to split")
	}
	if testRatio <= 0 || testRatio >= 1 {
		return Split{}, errors.New("test ratio must be in (0, 1)")
	}
	nTest := int(math.Ceil(testRatio * float64(n)))
	if nTest >= n {
		nTest = n - 1
	}

	byClass := make(map[int][]int)
	classes := make([]int, 0)
	for i, label := range labels {
		if _, ok := byClass[label]; !ok {
			classes = append(classes, label)
		}
		byClass[label] = append(byClass[label], i)
	}
	sort.Ints(classes)

	type quota struct {
		class int
		take  int
		frac  float64
	}
	quotas := make([]quota, len(classes))
	assigned := 0
	for i, c := range classes {
		exact := float64(nTest) * float64(len(byClass[c])) / float64(n)
		take := int(math.Floor(exact))
		quotas[i] = quota{class: c, take: take, frac: exact - float64(take)}
		assigned += take
	}
	order := make([]int, len(quotas))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return quotas[order[a]].frac > quotas[order[b]].frac
	})
	for i := 0; assigned < nTest && len(order) > 0; i = (i + 1) % len(order) {
		q := &quotas[order[i]]
		if q.take < len(byClass[q.class]) {
			q.take++
			assigned++
		}
	}

	rng := rand.New(rand.NewSource(seed))
	var split Split
	for _, q := range quotas {
		members := append([]int(nil), byClass[q.class]...)
		rng.Shuffle(len(members), func(i, j int) { members[i], members[j] = members[j], members[i] })
		split.Test = append(split.Test, members[:q.take]...)
		split.Train = append(split.Train, members[q.take:]...)
	}
	sort.Ints(split.Train)
	sort.Ints(split.Test)
	return split, nil
}

// Take gathers the rows and labels selected by indices.
func Take(features [][]float64, labels []int, indices []int) ([][]float64, []int) {
	x := make([][]float64, len(indices))
	y := make([]int, len(indices))
	for i, idx := range indices {
		x[i] = features[idx]
		y[i] = labels[idx]
	}
	return x, y
}

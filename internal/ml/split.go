package ml

import (
	"fmt"
	"math/rand"
)

// Split holds the result of a train/validation split.
type Split struct {
	TrainFeatures [][]float64
	TrainLabels   []int
	ValFeatures   [][]float64
	ValLabels     []int
	// Stratified reports whether the split preserved class ratios.
	// False means a plain random split was used because at least one
	// class had fewer than two samples.
	Stratified bool
}

// StratifiedSplit splits the data preserving per-class ratios. When any
// class has fewer than two samples a stratified split is impossible and
// the function falls back to a plain shuffled split.
func StratifiedSplit(features [][]float64, labels []int, valRatio float64, seed int64) (*Split, error) {
	if len(features) != len(labels) {
		return nil, fmt.Errorf("features/labels length mismatch: %d != %d", len(features), len(labels))
	}
	if len(features) < 2 {
		return nil, fmt.Errorf("need at least 2 samples to split, got %d", len(features))
	}
	if valRatio <= 0 || valRatio >= 1 {
		return nil, fmt.Errorf("validation ratio must be in (0,1), got %f", valRatio)
	}

	rng := rand.New(rand.NewSource(seed))

	byClass := make(map[int][]int)
	for i, l := range labels {
		byClass[l] = append(byClass[l], i)
	}
	stratifiable := true
	for _, idxs := range byClass {
		if len(idxs) < 2 {
			stratifiable = false
			break
		}
	}

	var valIdx map[int]struct{}
	if stratifiable {
		valIdx = make(map[int]struct{})
		for _, idxs := range byClass {
			rng.Shuffle(len(idxs), func(a, b int) { idxs[a], idxs[b] = idxs[b], idxs[a] })
			nVal := int(float64(len(idxs)) * valRatio)
			// Always hold out at least one sample per class.
			if nVal == 0 {
				nVal = 1
			}
			for _, i := range idxs[:nVal] {
				valIdx[i] = struct{}{}
			}
		}
	} else {
		order := rng.Perm(len(features))
		nVal := int(float64(len(features)) * valRatio)
		if nVal == 0 {
			nVal = 1
		}
		valIdx = make(map[int]struct{}, nVal)
		for _, i := range order[:nVal] {
			valIdx[i] = struct{}{}
		}
	}

	s := &Split{Stratified: stratifiable}
	for i := range features {
		if _, ok := valIdx[i]; ok {
			s.ValFeatures = append(s.ValFeatures, features[i])
			s.ValLabels = append(s.ValLabels, labels[i])
		} else {
			s.TrainFeatures = append(s.TrainFeatures, features[i])
			s.TrainLabels = append(s.TrainLabels, labels[i])
		}
	}
	if len(s.TrainFeatures) == 0 {
		return nil, fmt.Errorf("split left no training samples")
	}
	return s, nil
}

package ml

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// Classifier is a multinomial logistic regression model over standardized
// feature vectors. Weights include a bias term as the last column.
type Classifier struct {
	Weights    [][]float64 `json:"weights"` // [numClasses][dim+1]
	NumClasses int         `json:"num_classes"`
	Dim        int         `json:"dim"`
}

// TrainConfig holds the hyperparameters for classifier training.
type TrainConfig struct {
	Epochs       int
	LearningRate float64
	L2           float64
	Seed         int64
}

// DefaultTrainConfig returns the hyperparameters used by the retraining
// pipeline unless overridden.
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		Epochs:       200,
		LearningRate: 0.1,
		L2:           1e-4,
		Seed:         1,
	}
}

// TrainClassifier fits a classifier with weighted gradient descent.
// sampleWeights may be nil for uniform weighting.
func TrainClassifier(features [][]float64, labels []int, numClasses int, sampleWeights []float64, cfg TrainConfig) (*Classifier, error) {
	if len(features) == 0 {
		return nil, fmt.Errorf("cannot train on empty data")
	}
	if len(features) != len(labels) {
		return nil, fmt.Errorf("features/labels length mismatch: %d != %d", len(features), len(labels))
	}
	if numClasses < 2 {
		return nil, fmt.Errorf("need at least 2 classes, got %d", numClasses)
	}
	if sampleWeights != nil && len(sampleWeights) != len(features) {
		return nil, fmt.Errorf("sample weights length mismatch: %d != %d", len(sampleWeights), len(features))
	}
	dim := len(features[0])
	for i, row := range features {
		if len(row) != dim {
			return nil, fmt.Errorf("inconsistent feature dimension at row %d", i)
		}
		if labels[i] < 0 || labels[i] >= numClasses {
			return nil, fmt.Errorf("label %d out of range at row %d", labels[i], i)
		}
	}

	c := &Classifier{
		Weights:    make([][]float64, numClasses),
		NumClasses: numClasses,
		Dim:        dim,
	}
	for k := range c.Weights {
		c.Weights[k] = make([]float64, dim+1)
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	order := rng.Perm(len(features))

	totalWeight := float64(len(features))
	if sampleWeights != nil {
		totalWeight = 0
		for _, w := range sampleWeights {
			totalWeight += w
		}
		if totalWeight <= 0 {
			return nil, fmt.Errorf("sample weights sum to %f", totalWeight)
		}
	}

	grad := make([][]float64, numClasses)
	for k := range grad {
		grad[k] = make([]float64, dim+1)
	}

	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		for k := range grad {
			for j := range grad[k] {
				grad[k][j] = 0
			}
		}
		for _, i := range order {
			probs := c.scores(features[i])
			w := 1.0
			if sampleWeights != nil {
				w = sampleWeights[i]
			}
			for k := 0; k < numClasses; k++ {
				target := 0.0
				if labels[i] == k {
					target = 1.0
				}
				g := w * (probs[k] - target)
				for j := 0; j < dim; j++ {
					grad[k][j] += g * features[i][j]
				}
				grad[k][dim] += g
			}
		}
		for k := 0; k < numClasses; k++ {
			for j := 0; j <= dim; j++ {
				c.Weights[k][j] -= cfg.LearningRate * (grad[k][j]/totalWeight + cfg.L2*c.Weights[k][j])
			}
		}
	}

	return c, nil
}

// scores computes softmax probabilities for a feature vector.
func (c *Classifier) scores(row []float64) []float64 {
	logits := make([]float64, c.NumClasses)
	maxLogit := math.Inf(-1)
	for k := 0; k < c.NumClasses; k++ {
		z := c.Weights[k][c.Dim]
		for j := 0; j < c.Dim; j++ {
			z += c.Weights[k][j] * row[j]
		}
		logits[k] = z
		if z > maxLogit {
			maxLogit = z
		}
	}
	var sum float64
	for k, z := range logits {
		logits[k] = math.Exp(z - maxLogit)
		sum += logits[k]
	}
	for k := range logits {
		logits[k] /= sum
	}
	return logits
}

// Probabilities returns the class probability distribution for a vector.
func (c *Classifier) Probabilities(row []float64) ([]float64, error) {
	if len(row) != c.Dim {
		return nil, fmt.Errorf("feature dimension mismatch: got %d, want %d", len(row), c.Dim)
	}
	return c.scores(row), nil
}

// Predict returns the index of the most probable class and its probability.
func (c *Classifier) Predict(row []float64) (int, float64, error) {
	probs, err := c.Probabilities(row)
	if err != nil {
		return 0, 0, err
	}
	best := 0
	for k := 1; k < len(probs); k++ {
		if probs[k] > probs[best] {
			best = k
		}
	}
	return best, probs[best], nil
}

// ClassProbability pairs a class index with its probability.
type ClassProbability struct {
	Class       int
	Probability float64
}

// TopK returns the k most probable classes in descending order.
func (c *Classifier) TopK(row []float64, k int) ([]ClassProbability, error) {
	probs, err := c.Probabilities(row)
	if err != nil {
		return nil, err
	}
	ranked := make([]ClassProbability, len(probs))
	for i, p := range probs {
		ranked[i] = ClassProbability{Class: i, Probability: p}
	}
	sort.Slice(ranked, func(a, b int) bool { return ranked[a].Probability > ranked[b].Probability })
	if k > len(ranked) {
		k = len(ranked)
	}
	return ranked[:k], nil
}

// BalancedSampleWeights computes class-balanced weights n / (k * count(class)).
func BalancedSampleWeights(labels []int, numClasses int) []float64 {
	counts := make([]float64, numClasses)
	for _, l := range labels {
		counts[l]++
	}
	n := float64(len(labels))
	k := float64(numClasses)
	weights := make([]float64, len(labels))
	for i, l := range labels {
		weights[i] = n / (k * counts[l])
	}
	return weights
}

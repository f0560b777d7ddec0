package ml

import "fmt"

// Metrics holds the evaluation metrics computed on the validation set
// after a retraining run.
type Metrics struct {
	Accuracy         float64 `json:"accuracy"`
	BalancedAccuracy float64 `json:"balanced_accuracy"`
	WeightedF1       float64 `json:"weighted_f1"`
}

// Evaluate computes accuracy, balanced accuracy and weighted F1 for the
// given predictions.
func Evaluate(predicted, actual []int, numClasses int) (*Metrics, error) {
	if len(predicted) != len(actual) {
		return nil, fmt.Errorf("predicted/actual length mismatch: %d != %d", len(predicted), len(actual))
	}
	if len(actual) == 0 {
		return nil, fmt.Errorf("cannot evaluate empty prediction set")
	}

	var correct int
	tp := make([]float64, numClasses)
	fp := make([]float64, numClasses)
	fn := make([]float64, numClasses)
	support := make([]float64, numClasses)

	for i := range actual {
		a, p := actual[i], predicted[i]
		if a < 0 || a >= numClasses || p < 0 || p >= numClasses {
			return nil, fmt.Errorf("class index out of range at %d", i)
		}
		support[a]++
		if a == p {
			correct++
			tp[a]++
		} else {
			fp[p]++
			fn[a]++
		}
	}

	m := &Metrics{
		Accuracy: float64(correct) / float64(len(actual)),
	}

	// Balanced accuracy: mean per-class recall over classes with support.
	var recallSum float64
	var present int
	for k := 0; k < numClasses; k++ {
		if support[k] == 0 {
			continue
		}
		present++
		recallSum += tp[k] / support[k]
	}
	if present > 0 {
		m.BalancedAccuracy = recallSum / float64(present)
	}

	// Weighted F1: per-class F1 weighted by support.
	var f1Sum float64
	for k := 0; k < numClasses; k++ {
		if support[k] == 0 {
			continue
		}
		var precision, recall float64
		if tp[k]+fp[k] > 0 {
			precision = tp[k] / (tp[k] + fp[k])
		}
		recall = tp[k] / support[k]
		var f1 float64
		if precision+recall > 0 {
			f1 = 2 * precision * recall / (precision + recall)
		}
		f1Sum += f1 * support[k]
	}
	m.WeightedF1 = f1Sum / float64(len(actual))

	return m, nil
}

// Package ml implements the training and inference primitives used by the
// fault classification models: label encoding, feature scaling, a multinomial
// logistic classifier and the evaluation metrics reported after retraining.
package ml

import (
	"fmt"
	"sort"
)

// LabelEncoder maps string class labels to contiguous integer indices.
// The index order is the sorted order of the classes, so encoders fitted
// on the same label set are interchangeable.
type LabelEncoder struct {
	Classes []string `json:"classes"`

	index map[string]int
}

// NewLabelEncoder creates an encoder fitted over the given labels.
// Duplicates are removed and classes are stored sorted.
func NewLabelEncoder(labels []string) *LabelEncoder {
	seen := make(map[string]struct{}, len(labels))
	classes := make([]string, 0, len(labels))
	for _, l := range labels {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		classes = append(classes, l)
	}
	sort.Strings(classes)

	e := &LabelEncoder{Classes: classes}
	e.buildIndex()
	return e
}

// buildIndex rebuilds the label -> index map. Must be called after
// deserializing an encoder.
func (e *LabelEncoder) buildIndex() {
	e.index = make(map[string]int, len(e.Classes))
	for i, c := range e.Classes {
		e.index[c] = i
	}
}

// Encode returns the integer index of a label.
func (e *LabelEncoder) Encode(label string) (int, error) {
	if e.index == nil {
		e.buildIndex()
	}
	idx, ok := e.index[label]
	if !ok {
		return 0, fmt.Errorf("unknown label %q", label)
	}
	return idx, nil
}

// Knows reports whether the encoder was fitted with the given label.
func (e *LabelEncoder) Knows(label string) bool {
	if e.index == nil {
		e.buildIndex()
	}
	_, ok := e.index[label]
	return ok
}

// Decode returns the label for an integer index.
func (e *LabelEncoder) Decode(idx int) (string, error) {
	if idx < 0 || idx >= len(e.Classes) {
		return "", fmt.Errorf("label index %d out of range [0,%d)", idx, len(e.Classes))
	}
	return e.Classes[idx], nil
}

// EncodeAll encodes a slice of labels.
func (e *LabelEncoder) EncodeAll(labels []string) ([]int, error) {
	out := make([]int, len(labels))
	for i, l := range labels {
		idx, err := e.Encode(l)
		if err != nil {
			return nil, err
		}
		out[i] = idx
	}
	return out, nil
}

// NumClasses returns the number of known classes.
func (e *LabelEncoder) NumClasses() int {
	return len(e.Classes)
}

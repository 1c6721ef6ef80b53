package model

import (
	"fmt"
	"slices"
	"sort"
)

// FallbackClass is preferred for unseen labels when the encoder knows it
const FallbackClass = "other"

// CategoryEncoder maps a categorical label onto the integer the model was
// trained with, and back
type CategoryEncoder interface {
	Encode(label string) int
	Decode(index int) (string, error)
	Classes() []string
}

// LabelEncoder assigns each class its position in a sorted class list.
// Labels it never saw map to the fallback class instead of failing.
type LabelEncoder struct {
	classes  []string
	index    map[string]int
	fallback int
}

// NewLabelEncoder builds an encoder over classes. Classes are sorted and
// deduplicated so the mapping does not depend on input order.
func NewLabelEncoder(classes []string) (*LabelEncoder, error) {
	if len(classes) == 0 {
		return nil, fmt.Errorf("label encoder needs at least one class")
	}

	sorted := slices.Clone(classes)
	sort.Strings(sorted)
	sorted = slices.Compact(sorted)

	index := make(map[string]int, len(sorted))
	for i, c := range sorted {
		index[c] = i
	}

	fallback := 0
	if i, ok := index[FallbackClass]; ok {
		fallback = i
	}

	return &LabelEncoder{
		classes:  sorted,
		index:    index,
		fallback: fallback,
	}, nil
}

// NewDefaultLabelEncoder returns the encoder over the genre vocabulary
func NewDefaultLabelEncoder() *LabelEncoder {
	enc, _ := NewLabelEncoder(genres)
	return enc
}

// Encode returns the index of label, or the fallback index when unseen
func (e *LabelEncoder) Encode(label string) int {
	if i, ok := e.index[label]; ok {
		return i
	}
	return e.fallback
}

// Known reports whether label is one of the classes
func (e *LabelEncoder) Known(label string) bool {
	_, ok := e.index[label]
	return ok
}

// Decode returns the class at index
func (e *LabelEncoder) Decode(index int) (string, error) {
	if index < 0 || index >= len(e.classes) {
		return "", fmt.Errorf("class index %d out of range [0,%d)", index, len(e.classes))
	}
	return e.classes[index], nil
}

// Classes returns a copy of the sorted classes
func (e *LabelEncoder) Classes() []string {
	return slices.Clone(e.classes)
}

// FallbackLabel is the class unseen labels are mapped to
func (e *LabelEncoder) FallbackLabel() string {
	return e.classes[e.fallback]
}

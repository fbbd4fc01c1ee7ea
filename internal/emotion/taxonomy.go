// Package emotion maps raw classifier scores onto a fixed, ranked set of
// emotion labels.
package emotion

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyTaxonomy is returned when a taxonomy has no classes.
	ErrEmptyTaxonomy = errors.New("taxonomy has no classes")
	// ErrDuplicateClass is returned when two classes share a label or index.
	ErrDuplicateClass = errors.New("duplicate taxonomy class")
	// ErrIndexRange is returned when a class index falls outside the score vector.
	ErrIndexRange = errors.New("class index out of range")
	// ErrLogitCount is returned when the score vector length does not match
	// the model's class count.
	ErrLogitCount = errors.New("unexpected logit count")
)

// GoEmotionsClasses is the class count of the reference GoEmotions model.
const GoEmotionsClasses = 28

// Class binds one model output index to a display label.
type Class struct {
	Index int    `json:"index"`
	Label string `json:"label"`
	Emoji string `json:"emoji,omitempty"`
}

// Taxonomy is the ordered label set read out of a C-class score vector.
// The order of Classes is the tie-break order of a Report.
type Taxonomy struct {
	numClasses int
	classes    []Class
}

// NewTaxonomy validates classes against a model with numClasses outputs.
// numClasses <= 0 means the output width is unknown; only index
// non-negativity is checked then, and Decode skips the length check.
func NewTaxonomy(numClasses int, classes []Class) (Taxonomy, error) {
	if len(classes) == 0 {
		return Taxonomy{}, ErrEmptyTaxonomy
	}

	labels := make(map[string]struct{}, len(classes))
	indices := make(map[int]struct{}, len(classes))

	for _, c := range classes {
		if c.Label == "" {
			return Taxonomy{}, fmt.Errorf("class at index %d has an empty label", c.Index)
		}

		if c.Index < 0 || (numClasses > 0 && c.Index >= numClasses) {
			return Taxonomy{}, fmt.Errorf("%w: %s -> %d (classes=%d)", ErrIndexRange, c.Label, c.Index, numClasses)
		}

		if _, ok := labels[c.Label]; ok {
			return Taxonomy{}, fmt.Errorf("%w: label %q", ErrDuplicateClass, c.Label)
		}

		if _, ok := indices[c.Index]; ok {
			return Taxonomy{}, fmt.Errorf("%w: index %d", ErrDuplicateClass, c.Index)
		}

		labels[c.Label] = struct{}{}
		indices[c.Index] = struct{}{}
	}

	return Taxonomy{
		numClasses: numClasses,
		classes:    append([]Class(nil), classes...),
	}, nil
}

// GoEmotionsEkman is the seven-label Ekman grouping of the 28-class
// GoEmotions BERT model. The index table is frozen with the model weights.
func GoEmotionsEkman() Taxonomy {
	t, err := NewTaxonomy(GoEmotionsClasses, []Class{
		{Index: 2, Label: "Anger", Emoji: "😡"},
		{Index: 11, Label: "Disgust", Emoji: "🤢"},
		{Index: 14, Label: "Fear", Emoji: "😱"},
		{Index: 17, Label: "Joy", Emoji: "😂"},
		{Index: 27, Label: "Neutral", Emoji: "😐"},
		{Index: 25, Label: "Sadness", Emoji: "😢"},
		{Index: 26, Label: "Surprise", Emoji: "😲"},
	})
	if err != nil {
		panic(err)
	}

	return t
}

// NumClasses returns the expected score vector length, or 0 if unknown.
func (t Taxonomy) NumClasses() int { return t.numClasses }

// Len returns the number of labels.
func (t Taxonomy) Len() int { return len(t.classes) }

// Classes returns a copy of the classes in taxonomy order.
func (t Taxonomy) Classes() []Class {
	return append([]Class(nil), t.classes...)
}

// Labels returns the label names in taxonomy order.
func (t Taxonomy) Labels() []string {
	out := make([]string, len(t.classes))
	for i, c := range t.classes {
		out[i] = c.Label
	}

	return out
}

// Emoji returns the emoji registered for label, or "".
func (t Taxonomy) Emoji(label string) string {
	for _, c := range t.classes {
		if c.Label == label {
			return c.Emoji
		}
	}

	return ""
}

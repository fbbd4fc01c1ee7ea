package emotion

import (
	"fmt"
	"math"
	"slices"
)

// Score is one label with its independent probability.
type Score struct {
	Label       string  `json:"label"`
	Probability float32 `json:"probability"`
}

// Report is the ranked result for one text. Scores are sorted by probability,
// highest first; the dominant emotion is Scores[0]. Probabilities are
// independent and do not sum to 1.
type Report struct {
	DominantLabel       string  `json:"dominant_label"`
	DominantProbability float32 `json:"dominant_probability"`
	Scores              []Score `json:"scores"`
}

// Sigmoid is the logistic function evaluated without overflow for large |x|.
// NaN maps to 0.
func Sigmoid(x float32) float32 {
	v := float64(x)
	if math.IsNaN(v) {
		return 0
	}

	if v >= 0 {
		return float32(1 / (1 + math.Exp(-v)))
	}

	e := math.Exp(v)

	return float32(e / (1 + e))
}

// Decode turns raw logits into a ranked report over the taxonomy's labels.
// Scores for indices outside the taxonomy are ignored.
func (t Taxonomy) Decode(logits []float32) (Report, error) {
	if len(t.classes) == 0 {
		return Report{}, ErrEmptyTaxonomy
	}

	if t.numClasses > 0 && len(logits) != t.numClasses {
		return Report{}, fmt.Errorf("%w: got %d, want %d", ErrLogitCount, len(logits), t.numClasses)
	}

	scores := make([]Score, 0, len(t.classes))

	for _, c := range t.classes {
		if c.Index >= len(logits) {
			return Report{}, fmt.Errorf("%w: %s -> %d with %d logits", ErrIndexRange, c.Label, c.Index, len(logits))
		}

		scores = append(scores, Score{
			Label:       c.Label,
			Probability: clamp01(Sigmoid(logits[c.Index])),
		})
	}

	slices.SortStableFunc(scores, func(a, b Score) int {
		switch {
		case a.Probability > b.Probability:
			return -1
		case a.Probability < b.Probability:
			return 1
		default:
			return 0
		}
	})

	return Report{
		DominantLabel:       scores[0].Label,
		DominantProbability: scores[0].Probability,
		Scores:              scores,
	}, nil
}

func clamp01(p float32) float32 {
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	default:
		return p
	}
}

package emotion

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoEmotionsEkman(t *testing.T) {
	tax := GoEmotionsEkman()

	assert.Equal(t, GoEmotionsClasses, tax.NumClasses())
	assert.Equal(t, 7, tax.Len())
	assert.Equal(t,
		[]string{"Anger", "Disgust", "Fear", "Joy", "Neutral", "Sadness", "Surprise"},
		tax.Labels())

	want := map[string]int{
		"Anger": 2, "Disgust": 11, "Fear": 14, "Joy": 17,
		"Neutral": 27, "Sadness": 25, "Surprise": 26,
	}
	for _, c := range tax.Classes() {
		assert.Equal(t, want[c.Label], c.Index, c.Label)
		assert.NotEmpty(t, c.Emoji, c.Label)
	}

	assert.Equal(t, "😂", tax.Emoji("Joy"))
	assert.Empty(t, tax.Emoji("Boredom"))
}

func TestNewTaxonomy_Validation(t *testing.T) {
	tests := []struct {
		name    string
		classes []Class
		target  error
	}{
		{name: "empty", classes: nil, target: ErrEmptyTaxonomy},
		{name: "negative index", classes: []Class{{Index: -1, Label: "A"}}, target: ErrIndexRange},
		{name: "index too large", classes: []Class{{Index: 3, Label: "A"}}, target: ErrIndexRange},
		{name: "duplicate label", classes: []Class{{Index: 0, Label: "A"}, {Index: 1, Label: "A"}}, target: ErrDuplicateClass},
		{name: "duplicate index", classes: []Class{{Index: 0, Label: "A"}, {Index: 0, Label: "B"}}, target: ErrDuplicateClass},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTaxonomy(3, tt.classes)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.target), "got %v", err)
		})
	}

	_, err := NewTaxonomy(3, []Class{{Index: 0}})
	require.Error(t, err)
}

func TestTaxonomyClassesIsCopy(t *testing.T) {
	tax := GoEmotionsEkman()

	c := tax.Classes()
	c[0].Label = "Rage"

	assert.Equal(t, "Anger", tax.Labels()[0])
}

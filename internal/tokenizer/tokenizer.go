// Package tokenizer turns text into the fixed-length id sequences consumed by
// the BERT emotion classifier.
package tokenizer

import "github.com/example/go-ekman/internal/text"

// Encoding is the model input for one text: three sequences of equal length.
type Encoding struct {
	IDs           []int64
	AttentionMask []int64
	TokenTypeIDs  []int64
}

// Len returns the sequence length.
func (e Encoding) Len() int { return len(e.IDs) }

// Tokenizer encodes text into a fixed-length Encoding.
type Tokenizer interface {
	// Encode never fails: truncation and padding absorb every input shape.
	Encode(text string, maxLen int) Encoding
}

// WholeWordTokenizer maps each whitespace-separated word to exactly one id:
// the word's own id when the vocabulary holds it verbatim, otherwise [UNK].
//
// There is no greedy sub-word ("##") decomposition. The classifier was
// evaluated with this behaviour, so it is kept as is.
type WholeWordTokenizer struct {
	vocab *Vocabulary
}

// New returns a tokenizer over v.
func New(v *Vocabulary) *WholeWordTokenizer {
	return &WholeWordTokenizer{vocab: v}
}

// Vocabulary returns the vocabulary the tokenizer reads from.
func (t *WholeWordTokenizer) Vocabulary() *Vocabulary { return t.vocab }

// Encode normalizes s and builds [CLS] w1 … wn [SEP] [PAD]… of length maxLen.
// Words are dropped once only the separator slot remains. The separator is
// written only if it fits.
func (t *WholeWordTokenizer) Encode(s string, maxLen int) Encoding {
	if maxLen <= 0 {
		return Encoding{IDs: []int64{}, AttentionMask: []int64{}, TokenTypeIDs: []int64{}}
	}

	pad := t.vocab.PAD()

	ids := make([]int64, 0, maxLen)
	ids = append(ids, t.vocab.CLS())

	for _, word := range text.Words(text.Normalize(s)) {
		if len(ids) >= maxLen-1 {
			break
		}

		ids = append(ids, t.wordID(word))
	}

	if len(ids) < maxLen {
		ids = append(ids, t.vocab.SEP())
	}

	for len(ids) < maxLen {
		ids = append(ids, pad)
	}

	mask := make([]int64, maxLen)
	for i, id := range ids {
		if id != pad {
			mask[i] = 1
		}
	}

	return Encoding{
		IDs:           ids,
		AttentionMask: mask,
		TokenTypeIDs:  make([]int64, maxLen),
	}
}

func (t *WholeWordTokenizer) wordID(word string) int64 {
	if id, ok := t.vocab.Lookup(word); ok {
		return id
	}

	return t.vocab.UNK()
}

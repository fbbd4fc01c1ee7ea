package tokenizer

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Reserved token spellings in a BERT vocabulary.
const (
	CLSToken = "[CLS]"
	SEPToken = "[SEP]"
	PADToken = "[PAD]"
	UNKToken = "[UNK]"
)

// Fallback ids used when a reserved token is absent from the vocabulary.
// They match the uncased BERT base vocabulary.
const (
	DefaultCLSID int64 = 101
	DefaultSEPID int64 = 102
	DefaultPADID int64 = 0
	DefaultUNKID int64 = 100
)

// ErrEmptyPath is returned when LoadVocabulary is called with an empty path.
var ErrEmptyPath = errors.New("vocabulary path must not be empty")

// maxVocabLine bounds a single vocabulary line.
const maxVocabLine = 1 << 20

// Vocabulary maps token text to ids. It is immutable after construction and
// safe for concurrent reads.
type Vocabulary struct {
	ids      map[string]int64
	reserved map[string]bool

	cls int64
	sep int64
	pad int64
	unk int64
}

// NewVocabulary builds a vocabulary from an ordered token list: the i-th
// token, trimmed, gets id i. Blank entries still consume an id so ids stay
// aligned with line numbers. A repeated token keeps its last id.
func NewVocabulary(tokens []string) *Vocabulary {
	ids := make(map[string]int64, len(tokens))
	for i, tok := range tokens {
		ids[strings.TrimSpace(tok)] = int64(i)
	}

	return newVocabulary(ids)
}

// NewVocabularyFromMap builds a vocabulary from explicit token ids.
// The map is copied.
func NewVocabularyFromMap(m map[string]int64) *Vocabulary {
	ids := make(map[string]int64, len(m))
	for tok, id := range m {
		ids[tok] = id
	}

	return newVocabulary(ids)
}

func newVocabulary(ids map[string]int64) *Vocabulary {
	v := &Vocabulary{
		ids:      ids,
		reserved: make(map[string]bool, 4),
	}

	specials := []struct {
		token    string
		fallback int64
		dest     *int64
	}{
		{CLSToken, DefaultCLSID, &v.cls},
		{SEPToken, DefaultSEPID, &v.sep},
		{PADToken, DefaultPADID, &v.pad},
		{UNKToken, DefaultUNKID, &v.unk},
	}
	for _, s := range specials {
		id, ok := ids[s.token]
		if !ok {
			id = s.fallback
		}

		*s.dest = id
		v.reserved[s.token] = ok
	}

	return v
}

// ReadVocabulary reads a newline-delimited token list from r.
func ReadVocabulary(r io.Reader) (*Vocabulary, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxVocabLine)

	var tokens []string
	for scanner.Scan() {
		tokens = append(tokens, scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read vocabulary: %w", err)
	}

	return NewVocabulary(tokens), nil
}

// LoadVocabulary reads a BERT-style vocab file (one token per line, the
// 0-based line index is the token id).
func LoadVocabulary(path string) (*Vocabulary, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vocabulary %q: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	v, err := ReadVocabulary(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return v, nil
}

// Lookup returns the id of token and whether it is in the vocabulary.
func (v *Vocabulary) Lookup(token string) (int64, bool) {
	id, ok := v.ids[token]
	return id, ok
}

// Len returns the number of distinct tokens.
func (v *Vocabulary) Len() int { return len(v.ids) }

// CLS returns the sequence start id.
func (v *Vocabulary) CLS() int64 { return v.cls }

// SEP returns the separator id.
func (v *Vocabulary) SEP() int64 { return v.sep }

// PAD returns the padding id.
func (v *Vocabulary) PAD() int64 { return v.pad }

// UNK returns the out-of-vocabulary id.
func (v *Vocabulary) UNK() int64 { return v.unk }

// HasReserved reports whether the reserved token was found in the vocabulary
// rather than falling back to its default id.
func (v *Vocabulary) HasReserved(token string) bool {
	return v.reserved[token]
}

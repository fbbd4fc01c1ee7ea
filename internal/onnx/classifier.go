package onnx

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/example/go-ekman/internal/tokenizer"
)

var (
	// ErrNoOutput is returned when the logits output cannot be identified
	// among the graph's outputs.
	ErrNoOutput = errors.New("classifier output not found")
	// ErrOutputShape is returned when the logits output is not a [1, C]
	// float32 tensor.
	ErrOutputShape = errors.New("unexpected classifier output")
)

// ClassifierConfig names the graph inputs and output. An empty input name
// means the graph does not take that input.
type ClassifierConfig struct {
	InputIDs      string
	AttentionMask string
	TokenTypeIDs  string
	// Output selects the logits; empty picks the only output, or "logits".
	Output string
	// NumClasses, when positive, is checked against the output width.
	NumClasses int
}

// DefaultClassifierConfig matches a standard BERT sequence-classification
// export.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		InputIDs:      "input_ids",
		AttentionMask: "attention_mask",
		TokenTypeIDs:  "token_type_ids",
	}
}

// Classifier feeds encoded text to a BERT classification graph and returns
// its logits.
type Classifier struct {
	runner GraphRunner
	cfg    ClassifierConfig
	closed bool
}

// NewClassifier wraps r. The classifier owns r and closes it on Close.
func NewClassifier(r GraphRunner, cfg ClassifierConfig) *Classifier {
	return &Classifier{runner: r, cfg: cfg}
}

// Run builds [1, L] int64 tensors from enc, runs the graph and returns the C
// logits of batch item 0.
func (c *Classifier) Run(ctx context.Context, enc tokenizer.Encoding) ([]float32, error) {
	if c.closed {
		return nil, errors.New("classifier is closed")
	}

	inputs, err := c.feeds(enc)
	if err != nil {
		return nil, err
	}

	outputs, err := c.runner.Run(ctx, inputs)
	if err != nil {
		return nil, err
	}

	out, err := c.selectOutput(outputs)
	if err != nil {
		return nil, err
	}

	shape := out.Shape()
	if out.DType() != DTypeFloat32 || len(shape) != 2 || shape[0] != 1 {
		return nil, fmt.Errorf("%w: %s %v, want float32 [1, C]", ErrOutputShape, out.DType(), shape)
	}

	if c.cfg.NumClasses > 0 && shape[1] != int64(c.cfg.NumClasses) {
		return nil, fmt.Errorf("%w: %d classes, want %d", ErrOutputShape, shape[1], c.cfg.NumClasses)
	}

	return out.Float32s()
}

func (c *Classifier) feeds(enc tokenizer.Encoding) (map[string]*Tensor, error) {
	shape := []int64{1, int64(enc.Len())}
	inputs := make(map[string]*Tensor, 3)

	for _, in := range []struct {
		name string
		data []int64
	}{
		{c.cfg.InputIDs, enc.IDs},
		{c.cfg.AttentionMask, enc.AttentionMask},
		{c.cfg.TokenTypeIDs, enc.TokenTypeIDs},
	} {
		if in.name == "" {
			continue
		}

		t, err := NewTensor(in.data, shape)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", in.name, err)
		}

		inputs[in.name] = t
	}

	if len(inputs) == 0 {
		return nil, errors.New("classifier has no inputs configured")
	}

	return inputs, nil
}

func (c *Classifier) selectOutput(outputs map[string]*Tensor) (*Tensor, error) {
	if c.cfg.Output != "" {
		if t, ok := outputs[c.cfg.Output]; ok {
			return t, nil
		}

		return nil, fmt.Errorf("%w: %q not in %v", ErrNoOutput, c.cfg.Output, outputNames(outputs))
	}

	if len(outputs) == 1 {
		for _, t := range outputs {
			return t, nil
		}
	}

	if t, ok := outputs["logits"]; ok {
		return t, nil
	}

	return nil, fmt.Errorf("%w: ambiguous outputs %v", ErrNoOutput, outputNames(outputs))
}

// Close releases the graph runner. Repeated calls are no-ops.
func (c *Classifier) Close() error {
	if c.closed {
		return nil
	}

	c.closed = true
	c.runner.Close()

	return nil
}

// Name returns the underlying graph name.
func (c *Classifier) Name() string { return c.runner.Name() }

func outputNames(outputs map[string]*Tensor) []string {
	return slices.Sorted(maps.Keys(outputs))
}

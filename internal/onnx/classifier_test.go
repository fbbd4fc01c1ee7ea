package onnx

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/example/go-ekman/internal/tokenizer"
)

type fakeRunner struct {
	outputs map[string]*Tensor
	err     error

	inputs map[string]*Tensor
	closed int
}

func (f *fakeRunner) Run(_ context.Context, inputs map[string]*Tensor) (map[string]*Tensor, error) {
	f.inputs = inputs
	if f.err != nil {
		return nil, f.err
	}

	return f.outputs, nil
}

func (f *fakeRunner) Name() string { return "fake" }

func (f *fakeRunner) Close() { f.closed++ }

func mustTensor[T ~int64 | ~float32](t *testing.T, data []T, shape []int64) *Tensor {
	t.Helper()

	tt, err := NewTensor(data, shape)
	if err != nil {
		t.Fatalf("NewTensor: %v", err)
	}

	return tt
}

func sampleEncoding() tokenizer.Encoding {
	return tokenizer.Encoding{
		IDs:           []int64{101, 200, 100, 102, 0, 0, 0, 0},
		AttentionMask: []int64{1, 1, 1, 1, 0, 0, 0, 0},
		TokenTypeIDs:  []int64{0, 0, 0, 0, 0, 0, 0, 0},
	}
}

func TestClassifierRunFeedsThreeInputs(t *testing.T) {
	r := &fakeRunner{outputs: map[string]*Tensor{
		"logits": mustTensor(t, []float32{0.1, 0.2, 0.3}, []int64{1, 3}),
	}}
	c := NewClassifier(r, DefaultClassifierConfig())

	got, err := c.Run(context.Background(), sampleEncoding())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !reflect.DeepEqual(got, []float32{0.1, 0.2, 0.3}) {
		t.Fatalf("logits = %v", got)
	}

	if len(r.inputs) != 3 {
		t.Fatalf("expected 3 inputs, got %d", len(r.inputs))
	}

	enc := sampleEncoding()
	for name, want := range map[string][]int64{
		"input_ids":      enc.IDs,
		"attention_mask": enc.AttentionMask,
		"token_type_ids": enc.TokenTypeIDs,
	} {
		in, ok := r.inputs[name]
		if !ok {
			t.Fatalf("missing input %q", name)
		}

		if in.DType() != DTypeInt64 {
			t.Fatalf("%s dtype = %s; want int64", name, in.DType())
		}

		if !reflect.DeepEqual(in.Shape(), []int64{1, 8}) {
			t.Fatalf("%s shape = %v; want [1 8]", name, in.Shape())
		}

		data, _ := in.Int64s()
		if !reflect.DeepEqual(data, want) {
			t.Fatalf("%s = %v; want %v", name, data, want)
		}
	}
}

func TestClassifierSkipsUndeclaredInputs(t *testing.T) {
	r := &fakeRunner{outputs: map[string]*Tensor{
		"out": mustTensor(t, []float32{1}, []int64{1, 1}),
	}}
	cfg := DefaultClassifierConfig()
	cfg.TokenTypeIDs = ""

	if _, err := NewClassifier(r, cfg).Run(context.Background(), sampleEncoding()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, ok := r.inputs["token_type_ids"]; ok {
		t.Fatal("token_type_ids fed although not configured")
	}

	if len(r.inputs) != 2 {
		t.Fatalf("expected 2 inputs, got %d", len(r.inputs))
	}
}

func TestClassifierOutputSelection(t *testing.T) {
	logits := mustTensor(t, []float32{1, 2}, []int64{1, 2})
	hidden := mustTensor(t, []float32{9, 9, 9, 9}, []int64{1, 4})

	tests := []struct {
		name    string
		outputs map[string]*Tensor
		output  string
		want    []float32
		wantErr error
	}{
		{"single output", map[string]*Tensor{"probs": logits}, "", []float32{1, 2}, nil},
		{"logits by convention", map[string]*Tensor{"logits": logits, "hidden": hidden}, "", []float32{1, 2}, nil},
		{"explicit name", map[string]*Tensor{"hidden": hidden, "scores": logits}, "scores", []float32{1, 2}, nil},
		{"explicit name missing", map[string]*Tensor{"logits": logits}, "scores", nil, ErrNoOutput},
		{"ambiguous", map[string]*Tensor{"a": logits, "b": hidden}, "", nil, ErrNoOutput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultClassifierConfig()
			cfg.Output = tt.output

			got, err := NewClassifier(&fakeRunner{outputs: tt.outputs}, cfg).Run(context.Background(), sampleEncoding())
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v; want %v", err, tt.wantErr)
				}

				return
			}

			if err != nil {
				t.Fatalf("Run: %v", err)
			}

			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("logits = %v; want %v", got, tt.want)
			}
		})
	}
}

func TestClassifierRejectsBadOutput(t *testing.T) {
	tests := []struct {
		name   string
		out    *Tensor
		before func(*ClassifierConfig)
	}{
		{"int64 output", mustTensor(t, []int64{1, 2}, []int64{1, 2}), nil},
		{"rank 1", mustTensor(t, []float32{1, 2}, []int64{2}), nil},
		{"batch of 2", mustTensor(t, []float32{1, 2, 3, 4}, []int64{2, 2}), nil},
		{"wrong class count", mustTensor(t, []float32{1, 2, 3}, []int64{1, 3}), func(c *ClassifierConfig) { c.NumClasses = 28 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultClassifierConfig()
			if tt.before != nil {
				tt.before(&cfg)
			}

			r := &fakeRunner{outputs: map[string]*Tensor{"logits": tt.out}}

			_, err := NewClassifier(r, cfg).Run(context.Background(), sampleEncoding())
			if !errors.Is(err, ErrOutputShape) {
				t.Fatalf("err = %v; want ErrOutputShape", err)
			}
		})
	}
}

func TestClassifierPropagatesRunnerError(t *testing.T) {
	boom := errors.New("ort: invalid input")
	c := NewClassifier(&fakeRunner{err: boom}, DefaultClassifierConfig())

	_, err := c.Run(context.Background(), sampleEncoding())
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v; want %v", err, boom)
	}
}

func TestClassifierCloseOnce(t *testing.T) {
	r := &fakeRunner{}
	c := NewClassifier(r, DefaultClassifierConfig())

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if r.closed != 1 {
		t.Fatalf("runner closed %d times; want 1", r.closed)
	}

	if _, err := c.Run(context.Background(), sampleEncoding()); err == nil {
		t.Fatal("Run after Close succeeded")
	}
}

func TestClassifierNoInputs(t *testing.T) {
	c := NewClassifier(&fakeRunner{}, ClassifierConfig{})

	if _, err := c.Run(context.Background(), sampleEncoding()); err == nil {
		t.Fatal("expected error with no inputs configured")
	}
}

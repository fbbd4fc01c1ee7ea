package onnx

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

// ErrSignature is returned when feeds do not match the graph's declared
// inputs.
var ErrSignature = errors.New("graph signature mismatch")

// GraphRunner executes one ONNX graph on named tensors. Runner is the native
// implementation; tests and alternate runtimes provide their own.
type GraphRunner interface {
	Run(ctx context.Context, inputs map[string]*Tensor) (map[string]*Tensor, error)
	Name() string
	Close()
}

// checkFeeds requires inputs to cover exactly the declared inputs, each with
// the declared dtype. A graph without declared inputs accepts any feeds.
func (g Graph) checkFeeds(inputs map[string]*Tensor) error {
	if len(g.Inputs) == 0 {
		return nil
	}

	for _, in := range g.Inputs {
		t, ok := inputs[in.Name]
		if !ok {
			return fmt.Errorf("%w: %q: missing input %q", ErrSignature, g.Name, in.Name)
		}

		if err := checkDType(in, t); err != nil {
			return fmt.Errorf("%w: %q: input %q: %w", ErrSignature, g.Name, in.Name, err)
		}
	}

	for name := range inputs {
		if !slices.ContainsFunc(g.Inputs, func(n NodeInfo) bool { return n.Name == name }) {
			return fmt.Errorf("%w: %q: undeclared input %q", ErrSignature, g.Name, name)
		}
	}

	return nil
}

// fetches reports whether output name is materialized. Only declared outputs
// are when the graph declares any.
func (g Graph) fetches(name string) bool {
	if len(g.Outputs) == 0 {
		return true
	}

	return slices.ContainsFunc(g.Outputs, func(n NodeInfo) bool { return n.Name == name })
}

// checkOutput holds a fetched output to its declared dtype and rank.
func (g Graph) checkOutput(name string, t *Tensor) error {
	i := slices.IndexFunc(g.Outputs, func(n NodeInfo) bool { return n.Name == name })
	if i < 0 {
		return nil
	}

	decl := g.Outputs[i]
	if err := checkDType(decl, t); err != nil {
		return fmt.Errorf("%w: output %q: %w", ErrOutputShape, name, err)
	}

	if rank := len(t.Shape()); len(decl.Shape) > 0 && rank != len(decl.Shape) {
		return fmt.Errorf("%w: output %q has rank %d, declared %d", ErrOutputShape, name, rank, len(decl.Shape))
	}

	return nil
}

func checkDType(decl NodeInfo, t *Tensor) error {
	if decl.DType == "" {
		return nil
	}

	want, err := canonicalDType(decl.DType)
	if err != nil {
		return err
	}

	if t.DType() != want {
		return fmt.Errorf("dtype %s, declared %s", t.DType(), want)
	}

	return nil
}

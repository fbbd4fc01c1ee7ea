//go:build !windows && !(js && wasm)

package onnx

import (
	"context"
	"fmt"

	ort "github.com/shota3506/onnxruntime-purego/onnxruntime"
)

// DefaultAPIVersion is the ONNX Runtime C API version requested when none is
// configured.
const DefaultAPIVersion = 23

// RunnerConfig holds ORT library settings for creating runners.
type RunnerConfig struct {
	LibraryPath string
	APIVersion  uint32
}

// Runner owns the ORT runtime, environment and session of one classifier
// graph and holds every call to the graph's declared signature.
type Runner struct {
	graph   Graph
	runtime *ort.Runtime
	env     *ort.Env
	session *ort.Session
}

// NewRunner loads the ORT library and opens a session on g.Path. A failure
// releases whatever was opened before it.
func NewRunner(g Graph, cfg RunnerConfig) (*Runner, error) {
	if cfg.APIVersion == 0 {
		cfg.APIVersion = DefaultAPIVersion
	}

	r := &Runner{graph: g}
	if err := r.open(cfg); err != nil {
		r.Close()
		return nil, err
	}

	return r, nil
}

func (r *Runner) open(cfg RunnerConfig) error {
	var err error

	name := r.graph.Name
	if r.runtime, err = ort.NewRuntime(cfg.LibraryPath, cfg.APIVersion); err != nil {
		return fmt.Errorf("ort runtime for %q: %w", name, err)
	}

	if r.env, err = r.runtime.NewEnv("ekman-"+name, ort.LoggingLevelWarning); err != nil {
		return fmt.Errorf("ort env for %q: %w", name, err)
	}

	if r.session, err = r.runtime.NewSession(r.env, r.graph.Path, nil); err != nil {
		return fmt.Errorf("ort session for %q (%s): %w", name, r.graph.Path, err)
	}

	return nil
}

// Run executes the graph. Feeds must match the declared inputs; only declared
// outputs are copied out, each checked against its declared dtype and rank.
// Every native value created for the call is released before Run returns.
func (r *Runner) Run(ctx context.Context, inputs map[string]*Tensor) (map[string]*Tensor, error) {
	if r.session == nil {
		return nil, fmt.Errorf("run %q: runner is closed", r.graph.Name)
	}

	if err := r.graph.checkFeeds(inputs); err != nil {
		return nil, err
	}

	ortInputs := make(map[string]*ort.Value, len(inputs))
	defer closeORTValues(ortInputs)

	for name, t := range inputs {
		v, err := tensorToORT(r.runtime, t)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", name, err)
		}

		ortInputs[name] = v
	}

	ortOutputs, err := r.session.Run(ctx, ortInputs)
	if err != nil {
		return nil, fmt.Errorf("run %q: %w", r.graph.Name, err)
	}
	defer closeORTValues(ortOutputs)

	results := make(map[string]*Tensor, len(ortOutputs))
	for name, v := range ortOutputs {
		if !r.graph.fetches(name) {
			continue
		}

		t, err := ortToTensor(v)
		if err != nil {
			return nil, fmt.Errorf("output %q: %w", name, err)
		}

		if err := r.graph.checkOutput(name, t); err != nil {
			return nil, err
		}

		results[name] = t
	}

	return results, nil
}

// Close releases the session, environment and runtime. Safe to call
// multiple times.
func (r *Runner) Close() {
	if r.session != nil {
		r.session.Close()
		r.session = nil
	}

	if r.env != nil {
		r.env.Close()
		r.env = nil
	}

	if r.runtime != nil {
		_ = r.runtime.Close()
		r.runtime = nil
	}
}

// Name returns the graph name.
func (r *Runner) Name() string { return r.graph.Name }

func tensorToORT(runtime *ort.Runtime, t *Tensor) (*ort.Value, error) {
	switch data := t.Data().(type) {
	case []int64:
		return ort.NewTensorValue(runtime, data, t.Shape())
	case []float32:
		return ort.NewTensorValue(runtime, data, t.Shape())
	}

	return nil, fmt.Errorf("unsupported tensor dtype %s", t.DType())
}

// ortToTensor copies v out of native memory. Token feeds are int64 and
// scores float32; nothing else crosses the boundary.
func ortToTensor(v *ort.Value) (*Tensor, error) {
	elemType, err := v.GetTensorElementType()
	if err != nil {
		return nil, fmt.Errorf("get element type: %w", err)
	}

	switch elemType {
	case ort.ONNXTensorElementDataTypeFloat:
		return copyOut[float32](v)
	case ort.ONNXTensorElementDataTypeInt64:
		return copyOut[int64](v)
	}

	return nil, fmt.Errorf("unsupported ORT element type %d", elemType)
}

func copyOut[T float32 | int64](v *ort.Value) (*Tensor, error) {
	data, shape, err := ort.GetTensorData[T](v)
	if err != nil {
		return nil, err
	}

	return NewTensor(data, shape)
}

func closeORTValues(vals map[string]*ort.Value) {
	for _, v := range vals {
		if v != nil {
			v.Close()
		}
	}
}

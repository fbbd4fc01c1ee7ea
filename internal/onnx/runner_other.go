//go:build windows || (js && wasm)

package onnx

import (
	"context"
	"fmt"
)

// DefaultAPIVersion is the ONNX Runtime C API version requested when none is
// configured.
const DefaultAPIVersion = 23

// RunnerConfig holds ORT library settings for creating runners.
type RunnerConfig struct {
	LibraryPath string
	APIVersion  uint32
}

// Runner is unavailable on this platform.
type Runner struct {
	name string
}

// NewRunner always returns an error on this platform.
func NewRunner(g Graph, _ RunnerConfig) (*Runner, error) {
	return nil, fmt.Errorf("native onnx runner is unavailable on this platform for graph %q", g.Name)
}

// Run always returns an error on this platform.
func (r *Runner) Run(_ context.Context, _ map[string]*Tensor) (map[string]*Tensor, error) {
	return nil, fmt.Errorf("native onnx runner is unavailable on this platform for graph %q", r.name)
}

// Close is a no-op on this platform.
func (r *Runner) Close() {}

// Name returns the graph name.
func (r *Runner) Name() string { return r.name }

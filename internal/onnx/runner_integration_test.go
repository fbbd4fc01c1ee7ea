//go:build integration

package onnx

import (
	"context"
	"os"
	"testing"

	"github.com/example/go-ekman/internal/config"
	"github.com/example/go-ekman/internal/testutil"
	"github.com/example/go-ekman/internal/tokenizer"
)

// TestClassifierIntegration runs the real classifier named by the manifest in
// EKMAN_TEST_MANIFEST and checks the [1, C] output contract.
func TestClassifierIntegration(t *testing.T) {
	testutil.RequireONNXRuntime(t)
	manifestPath := testutil.RequireManifest(t)

	m, err := LoadManifest(manifestPath)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}

	rc, _, err := RunnerConfigFor(config.RuntimeConfig{})
	if err != nil {
		t.Skipf("ONNX Runtime library not detected: %v", err)
	}

	runner, err := NewRunner(m.Graph(), rc)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}

	c := NewClassifier(runner, m.ClassifierConfig())
	defer func() { _ = c.Close() }()

	vocab, err := tokenizer.LoadVocabulary(m.VocabPath())
	if err != nil {
		t.Fatalf("LoadVocabulary: %v", err)
	}

	enc := tokenizer.New(vocab).Encode("i am so happy today", m.MaxLen)

	logits, err := c.Run(context.Background(), enc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(logits) != m.NumClasses {
		t.Fatalf("got %d logits; want %d", len(logits), m.NumClasses)
	}
}

func TestRunnerIntegration_MissingModel(t *testing.T) {
	testutil.RequireONNXRuntime(t)

	rc, _, err := RunnerConfigFor(config.RuntimeConfig{})
	if err != nil {
		t.Skipf("ONNX Runtime library not detected: %v", err)
	}

	missing := t.TempDir() + string(os.PathSeparator) + "missing.onnx"

	if _, err := NewRunner(Graph{Name: "missing", Path: missing}, rc); err == nil {
		t.Fatal("expected error for missing model file")
	}
}

// Package testutil provides shared skip helpers for integration tests.
//
// Each helper calls t.Skip with a clear human-readable reason when the named
// prerequisite is absent, so integration tests remain runnable in partial
// environments without failing noisily.
//
// Typical usage:
//
//	func TestMyIntegration(t *testing.T) {
//	    testutil.RequireONNXRuntime(t)
//	    manifest := testutil.RequireManifest(t)
//	    ...
//	}
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// ortCandidates mirrors the system locations probed by the runtime detector.
var ortCandidates = []string{
	"/usr/lib/libonnxruntime.so",
	"/usr/local/lib/libonnxruntime.so",
	"/usr/lib/x86_64-linux-gnu/libonnxruntime.so",
	"/opt/homebrew/lib/libonnxruntime.dylib",
}

// RequireONNXRuntime skips the test if no ONNX Runtime shared library can be
// located. It checks (in order): the EKMAN_ORT_LIB env var, then the
// ORT_LIBRARY_PATH env var, then common system library paths.
func RequireONNXRuntime(tb testing.TB) {
	tb.Helper()

	for _, env := range []string{"EKMAN_ORT_LIB", "ORT_LIBRARY_PATH"} {
		if p := os.Getenv(env); p != "" {
			// #nosec G703 -- Integration tests intentionally accept explicit env-provided local library paths.
			if _, err := os.Stat(p); err == nil {
				return
			}

			tb.Skipf("ONNX Runtime library not found at %s=%q", env, p)

			return
		}
	}

	for _, p := range ortCandidates {
		if _, err := os.Stat(p); err == nil {
			return
		}
	}

	tb.Skip("ONNX Runtime shared library not found; set EKMAN_ORT_LIB or ORT_LIBRARY_PATH")
}

// RequireManifest returns the model manifest named by EKMAN_TEST_MANIFEST,
// falling back to models/manifest.json under the repository root. It skips
// the test when neither exists.
func RequireManifest(tb testing.TB) string {
	tb.Helper()

	if p := os.Getenv("EKMAN_TEST_MANIFEST"); p != "" {
		if _, err := os.Stat(p); err != nil {
			tb.Skipf("model manifest not found at EKMAN_TEST_MANIFEST=%q", p)
		}

		return p
	}

	p := filepath.Join(RepoRoot(tb), "models", "manifest.json")
	if _, err := os.Stat(p); err != nil {
		tb.Skipf("model manifest not available at %q; set EKMAN_TEST_MANIFEST", p)
	}

	return p
}

// RepoRoot walks up from the working directory to the directory holding
// go.mod.
func RepoRoot(tb testing.TB) string {
	tb.Helper()

	dir, err := os.Getwd()
	if err != nil {
		tb.Fatalf("getwd: %v", err)
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			tb.Fatalf("go.mod not found above working directory")
		}

		dir = parent
	}
}

// WriteVocab writes tokens, one per line, to a temporary vocab file.
func WriteVocab(tb testing.TB, tokens ...string) string {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "vocab.txt")

	var data []byte
	for _, tok := range tokens {
		data = append(data, tok...)
		data = append(data, '\n')
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		tb.Fatalf("write vocab: %v", err)
	}

	return path
}

package doctor_test

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/example/go-ekman/internal/doctor"
	"github.com/example/go-ekman/internal/onnx"
)

// ---------------------------------------------------------------------------
// fixtures
// ---------------------------------------------------------------------------

type fixture struct {
	dir      string
	model    string
	vocab    string
	manifest string
	modelSHA string
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	dir := t.TempDir()
	f := fixture{
		dir:      dir,
		model:    filepath.Join(dir, "bert_28.onnx"),
		vocab:    filepath.Join(dir, "vocab_bert.txt"),
		manifest: filepath.Join(dir, "manifest.json"),
	}

	writeFile(t, f.model, "fake-onnx")
	writeFile(t, f.vocab, "[PAD]\n[UNK]\n[CLS]\n[SEP]\nhappy\n")

	sum := sha256.Sum256([]byte("fake-onnx"))
	f.modelSHA = hex.EncodeToString(sum[:])

	return f
}

func (f fixture) writeManifest(t *testing.T, modelSHA string) {
	t.Helper()

	writeFile(t, f.manifest, fmt.Sprintf(`{
  "name": "bert-goemotions",
  "version": "1",
  "model": {"filename": "bert_28.onnx", "sha256": %q},
  "vocab": {"filename": "vocab_bert.txt"}
}`, modelSHA))
}

func writeFile(t *testing.T, path, data string) {
	t.Helper()

	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func runtimeOK(version string) doctor.RuntimeFunc {
	return func() (onnx.RuntimeInfo, error) {
		return onnx.RuntimeInfo{LibraryPath: "/usr/lib/libonnxruntime.so", Version: version}, nil
	}
}

// ---------------------------------------------------------------------------
// all-pass scenarios
// ---------------------------------------------------------------------------

func TestRun_AllChecksPassWithManifest(t *testing.T) {
	f := newFixture(t)
	f.writeManifest(t, f.modelSHA)

	cfg := doctor.Config{
		Runtime:      runtimeOK("1.23.1"),
		APIVersion:   23,
		ManifestPath: f.manifest,
	}

	var out strings.Builder
	result := doctor.Run(cfg, &out)

	if result.Failed() {
		t.Fatalf("expected all checks to pass; failures: %v\n%s", result.Failures(), out.String())
	}

	for _, want := range []string{"onnx runtime: 1.23.1", "manifest: bert-goemotions 1", "model file", "vocabulary", "model checksum: ok", "vocab checksum: not pinned"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}

	if strings.Contains(out.String(), doctor.FailMark) {
		t.Errorf("output should not contain %s:\n%s", doctor.FailMark, out.String())
	}
}

func TestRun_ConfiguredPathsWithoutManifest(t *testing.T) {
	f := newFixture(t)

	cfg := doctor.Config{
		Runtime:      runtimeOK("unknown"),
		ManifestPath: filepath.Join(f.dir, "absent.json"),
		ModelPath:    f.model,
		VocabPath:    f.vocab,
	}

	var out strings.Builder
	result := doctor.Run(cfg, &out)

	if result.Failed() {
		t.Fatalf("unexpected failures: %v", result.Failures())
	}

	if !strings.Contains(out.String(), "using configured paths") {
		t.Errorf("output should mention configured paths:\n%s", out.String())
	}

	if !strings.Contains(out.String(), "version unknown") {
		t.Errorf("output should mention unknown version:\n%s", out.String())
	}
}

func TestRun_RuntimeSkipped(t *testing.T) {
	f := newFixture(t)

	var out strings.Builder
	result := doctor.Run(doctor.Config{ModelPath: f.model, VocabPath: f.vocab}, &out)

	if result.Failed() {
		t.Fatalf("unexpected failures: %v", result.Failures())
	}

	if !strings.Contains(out.String(), "onnx runtime: skipped") {
		t.Errorf("output should show skipped runtime:\n%s", out.String())
	}
}

// ---------------------------------------------------------------------------
// failures
// ---------------------------------------------------------------------------

func TestRun_RuntimeMissingFails(t *testing.T) {
	f := newFixture(t)

	cfg := doctor.Config{
		Runtime: func() (onnx.RuntimeInfo, error) {
			return onnx.RuntimeInfo{}, errLibraryNotFound
		},
		ModelPath: f.model,
		VocabPath: f.vocab,
	}

	var out strings.Builder
	result := doctor.Run(cfg, &out)

	if !result.Failed() {
		t.Fatal("expected failure when the runtime is missing")
	}

	if !hasFailureContaining(result.Failures(), "onnx runtime") {
		t.Errorf("expected failure mentioning onnx runtime, got: %v", result.Failures())
	}
}

func TestRun_RuntimeTooOldFails(t *testing.T) {
	f := newFixture(t)

	cfg := doctor.Config{
		Runtime:    runtimeOK("1.17.0"),
		APIVersion: 23,
		ModelPath:  f.model,
		VocabPath:  f.vocab,
	}

	var out strings.Builder
	result := doctor.Run(cfg, &out)

	if !hasFailureContaining(result.Failures(), "version") {
		t.Errorf("expected version failure, got: %v", result.Failures())
	}
}

func TestRun_MissingFilesFail(t *testing.T) {
	dir := t.TempDir()

	cfg := doctor.Config{
		ModelPath: filepath.Join(dir, "missing.onnx"),
		VocabPath: filepath.Join(dir, "missing.txt"),
	}

	var out strings.Builder
	result := doctor.Run(cfg, &out)

	if len(result.Failures()) != 2 {
		t.Fatalf("failures = %v; want model and vocabulary", result.Failures())
	}

	if !hasFailureContaining(result.Failures(), "model file") {
		t.Errorf("expected model failure, got: %v", result.Failures())
	}

	if !hasFailureContaining(result.Failures(), "vocabulary") {
		t.Errorf("expected vocabulary failure, got: %v", result.Failures())
	}
}

func TestRun_InvalidManifestFails(t *testing.T) {
	f := newFixture(t)
	writeFile(t, f.manifest, "{")

	cfg := doctor.Config{ManifestPath: f.manifest, ModelPath: f.model, VocabPath: f.vocab}

	var out strings.Builder
	result := doctor.Run(cfg, &out)

	if !hasFailureContaining(result.Failures(), "manifest") {
		t.Errorf("expected manifest failure, got: %v", result.Failures())
	}
}

func TestRun_ChecksumMismatchFails(t *testing.T) {
	f := newFixture(t)
	f.writeManifest(t, strings.Repeat("0", 64))

	var out strings.Builder
	result := doctor.Run(doctor.Config{ManifestPath: f.manifest}, &out)

	if !hasFailureContaining(result.Failures(), "model checksum") {
		t.Errorf("expected checksum failure, got: %v", result.Failures())
	}
}

func TestRun_SkipChecksums(t *testing.T) {
	f := newFixture(t)
	f.writeManifest(t, strings.Repeat("0", 64))

	var out strings.Builder
	result := doctor.Run(doctor.Config{ManifestPath: f.manifest, SkipChecksums: true}, &out)

	if result.Failed() {
		t.Fatalf("unexpected failures: %v", result.Failures())
	}

	if strings.Contains(out.String(), "checksum") {
		t.Errorf("checksums should not be reported:\n%s", out.String())
	}
}

func TestRun_VocabularyWithoutReservedTokens(t *testing.T) {
	f := newFixture(t)
	writeFile(t, f.vocab, "hello\nworld\n")

	var out strings.Builder
	result := doctor.Run(doctor.Config{ModelPath: f.model, VocabPath: f.vocab}, &out)

	if result.Failed() {
		t.Fatalf("missing reserved tokens should not fail: %v", result.Failures())
	}

	if !strings.Contains(out.String(), "default ids for [CLS] [SEP] [PAD] [UNK]") {
		t.Errorf("output should list defaulted tokens:\n%s", out.String())
	}
}

func TestResult_AddFailure(t *testing.T) {
	var r doctor.Result
	if r.Failed() {
		t.Fatal("zero Result should not be failed")
	}

	r.AddFailure("external")

	if !r.Failed() || r.Failures()[0] != "external" {
		t.Errorf("failures = %v", r.Failures())
	}
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

type sentinelError string

func (e sentinelError) Error() string { return string(e) }

var errLibraryNotFound = sentinelError("library not found")

func hasFailureContaining(failures []string, substr string) bool {
	substr = strings.ToLower(substr)
	for _, f := range failures {
		if strings.Contains(strings.ToLower(f), substr) {
			return true
		}
	}

	return false
}

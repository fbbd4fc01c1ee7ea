// Package doctor provides environment preflight checks for ekman.
package doctor

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/example/go-ekman/internal/model"
	"github.com/example/go-ekman/internal/onnx"
	"github.com/example/go-ekman/internal/tokenizer"
)

// PassMark and FailMark are the prefix symbols printed for each check result.
const (
	PassMark = "✓"
	FailMark = "✗"
)

// RuntimeFunc locates the ONNX Runtime shared library.
type RuntimeFunc func() (onnx.RuntimeInfo, error)

// Config holds injectable dependencies for each doctor check.
type Config struct {
	// Runtime detects the ORT library. Nil skips the check.
	Runtime RuntimeFunc
	// APIVersion is the ORT C API version the runner will request.
	APIVersion int
	// ManifestPath is optional; when the file is absent ModelPath and
	// VocabPath are checked directly.
	ManifestPath string
	ModelPath    string
	VocabPath    string
	// SkipChecksums disables hashing of pinned manifest assets.
	SkipChecksums bool
}

// Result collects the outcome of all checks.
type Result struct {
	failures []string
}

// Failed returns true if any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

// AddFailure appends an external failure message to the result.
func (r *Result) AddFailure(msg string) { r.failures = append(r.failures, msg) }

func (r *Result) fail(msg string) { r.failures = append(r.failures, msg) }

// Run executes all configured checks and writes human-readable output to w.
// Each check line is prefixed with PassMark or FailMark.
func Run(cfg Config, w io.Writer) Result {
	var res Result

	// ---- ONNX Runtime -----------------------------------------------------
	if cfg.Runtime == nil {
		fmt.Fprintf(w, "%s onnx runtime: skipped\n", PassMark)
	} else {
		info, err := cfg.Runtime()
		switch {
		case err != nil:
			res.fail(fmt.Sprintf("onnx runtime: %v", err))
			fmt.Fprintf(w, "%s onnx runtime: not found (%v)\n", FailMark, err)
		case info.Version == "" || info.Version == "unknown":
			fmt.Fprintf(w, "%s onnx runtime: %s (version unknown)\n", PassMark, info.LibraryPath)
		default:
			if verErr := checkORTVersion(info.Version, cfg.APIVersion); verErr != nil {
				res.fail(fmt.Sprintf("onnx runtime version: %v", verErr))
				fmt.Fprintf(w, "%s onnx runtime %s: %v\n", FailMark, info.Version, verErr)
			} else {
				fmt.Fprintf(w, "%s onnx runtime: %s (%s)\n", PassMark, info.Version, info.LibraryPath)
			}
		}
	}

	// ---- manifest ---------------------------------------------------------
	modelPath, vocabPath := cfg.ModelPath, cfg.VocabPath

	var manifest *onnx.Manifest

	if cfg.ManifestPath != "" {
		if _, err := os.Stat(cfg.ManifestPath); errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(w, "%s manifest: %s not found, using configured paths\n", PassMark, cfg.ManifestPath)
		} else if m, err := onnx.LoadManifest(cfg.ManifestPath); err != nil {
			res.fail(fmt.Sprintf("manifest: %v", err))
			fmt.Fprintf(w, "%s manifest: %v\n", FailMark, err)
		} else {
			manifest = m
			modelPath, vocabPath = m.ModelPath(), m.VocabPath()
			fmt.Fprintf(w, "%s manifest: %s %s (%d classes, max_len %d)\n",
				PassMark, displayName(m), m.Version, m.NumClasses, m.MaxLen)
		}
	}

	// ---- model file -------------------------------------------------------
	if fi, err := os.Stat(modelPath); err != nil {
		res.fail(fmt.Sprintf("model file %q: %v", modelPath, err))
		fmt.Fprintf(w, "%s model file %s: not found\n", FailMark, modelPath)
	} else {
		fmt.Fprintf(w, "%s model file: %s (%d bytes)\n", PassMark, modelPath, fi.Size())
	}

	// ---- vocabulary -------------------------------------------------------
	if v, err := tokenizer.LoadVocabulary(vocabPath); err != nil {
		res.fail(fmt.Sprintf("vocabulary %q: %v", vocabPath, err))
		fmt.Fprintf(w, "%s vocabulary %s: %v\n", FailMark, vocabPath, err)
	} else {
		line := fmt.Sprintf("%s vocabulary: %s (%d tokens)", PassMark, vocabPath, v.Len())
		if missing := missingReserved(v); len(missing) > 0 {
			line += fmt.Sprintf(", default ids for %s", strings.Join(missing, " "))
		}

		fmt.Fprintln(w, line)
	}

	// ---- checksums --------------------------------------------------------
	if manifest != nil && !cfg.SkipChecksums {
		results, _ := model.VerifyChecksums(manifest)
		for _, r := range results {
			switch {
			case r.Skipped:
				fmt.Fprintf(w, "%s %s checksum: not pinned\n", PassMark, r.Name)
			case r.Err != nil:
				res.fail(fmt.Sprintf("%s checksum: %v", r.Name, r.Err))
				fmt.Fprintf(w, "%s %s checksum: %v\n", FailMark, r.Name, r.Err)
			default:
				fmt.Fprintf(w, "%s %s checksum: ok\n", PassMark, r.Name)
			}
		}
	}

	return res
}

func displayName(m *onnx.Manifest) string {
	if m.Name != "" {
		return m.Name
	}

	return m.Graph().Name
}

func missingReserved(v *tokenizer.Vocabulary) []string {
	var missing []string

	for _, tok := range []string{tokenizer.CLSToken, tokenizer.SEPToken, tokenizer.PADToken, tokenizer.UNKToken} {
		if !v.HasReserved(tok) {
			missing = append(missing, tok)
		}
	}

	return missing
}

// checkORTVersion returns an error if ver cannot serve C API version api.
// ORT 1.N provides API versions up to N. ver is expected to look like "1.23.1".
func checkORTVersion(ver string, api int) error {
	major, minor, err := parseMajorMinor(ver)
	if err != nil {
		return fmt.Errorf("cannot parse %q: %w", ver, err)
	}
	if major != 1 {
		return fmt.Errorf("requires ONNX Runtime 1.x, got %d", major)
	}
	if api > 0 && minor < api {
		return fmt.Errorf("C API version %d requires ONNX Runtime >=1.%d, got 1.%d", api, api, minor)
	}
	return nil
}

func parseMajorMinor(ver string) (major, minor int, err error) {
	parts := strings.SplitN(ver, ".", 3)
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("unexpected version format %q", ver)
	}
	major, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("bad major in %q: %w", ver, err)
	}
	minor, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("bad minor in %q: %w", ver, err)
	}
	return major, minor, nil
}

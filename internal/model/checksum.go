package model

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/example/go-ekman/internal/onnx"
)

// ErrChecksumMismatch reports an asset whose digest differs from the manifest.
var ErrChecksumMismatch = errors.New("checksum mismatch")

var shaHexPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// ChecksumResult is the outcome for one manifest asset.
type ChecksumResult struct {
	Name     string
	Path     string
	Expected string
	Actual   string
	// Skipped is set when the manifest pins no digest for the asset.
	Skipped bool
	Err     error
}

// OK reports whether the asset matched or was not pinned.
func (r ChecksumResult) OK() bool { return r.Err == nil }

// VerifyChecksums hashes the model and vocabulary named by m and compares
// them against the pinned SHA-256 digests. It returns one result per asset
// and a joined error for every failure.
func VerifyChecksums(m *onnx.Manifest) ([]ChecksumResult, error) {
	assets := []struct {
		name string
		ref  onnx.FileRef
		path string
	}{
		{"model", m.Model, m.ModelPath()},
		{"vocab", m.Vocab, m.VocabPath()},
	}

	results := make([]ChecksumResult, 0, len(assets))

	var errs []error

	for _, a := range assets {
		res := ChecksumResult{
			Name:     a.name,
			Path:     a.path,
			Expected: strings.ToLower(strings.TrimSpace(a.ref.SHA256)),
		}

		switch {
		case res.Expected == "":
			res.Skipped = true
		case !isSHA256Hex(res.Expected):
			res.Err = fmt.Errorf("%s: pinned digest %q is not a sha256 hex string", a.name, a.ref.SHA256)
		default:
			actual, err := FileSHA256(a.path)
			if err != nil {
				res.Err = fmt.Errorf("%s: %w", a.name, err)
				break
			}

			res.Actual = actual
			if actual != res.Expected {
				res.Err = fmt.Errorf("%s %s: %w (want %s, got %s)", a.name, a.path, ErrChecksumMismatch, res.Expected, actual)
			}
		}

		if res.Err != nil {
			errs = append(errs, res.Err)
		}

		results = append(results, res)
	}

	return results, errors.Join(errs...)
}

// FileSHA256 returns the lowercase hex SHA-256 of the file at path.
func FileSHA256(path string) (string, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat file for checksum: %w", err)
	}

	if fi.IsDir() {
		return "", fmt.Errorf("expected file at %s, found directory", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file for checksum: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("read file for checksum: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

func isSHA256Hex(v string) bool {
	return shaHexPattern.MatchString(v)
}

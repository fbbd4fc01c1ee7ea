package onnx

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/example/go-ekman/internal/emotion"
)

// Manifest defaults applied when the file leaves a field out.
const (
	DefaultMaxLen     = 64
	DefaultNumClasses = emotion.GoEmotionsClasses
)

// NodeInfo describes one graph input or output.
type NodeInfo struct {
	Name  string `json:"name"`
	DType string `json:"dtype"`
	Shape []any  `json:"shape"`
}

// FileRef names a model asset relative to the manifest and its expected digest.
type FileRef struct {
	Filename string `json:"filename"`
	SHA256   string `json:"sha256,omitempty"`
}

// Graph is a loadable ONNX graph with a resolved path.
type Graph struct {
	Name string
	Path string

	Inputs  []NodeInfo
	Outputs []NodeInfo
}

// Manifest is versioned next to a classifier and pins everything needed to
// use it: files, input/output signature, sequence length and the index→label
// table.
type Manifest struct {
	Name       string          `json:"name"`
	Version    string          `json:"version"`
	Model      FileRef         `json:"model"`
	Vocab      FileRef         `json:"vocab"`
	MaxLen     int             `json:"max_len"`
	NumClasses int             `json:"num_classes"`
	Inputs     []NodeInfo      `json:"inputs"`
	Outputs    []NodeInfo      `json:"outputs"`
	Labels     []emotion.Class `json:"labels"`

	path string
}

// LoadManifest reads and validates a manifest. Relative filenames resolve
// against the manifest's directory; the model file must exist.
func LoadManifest(path string) (*Manifest, error) {
	if path == "" {
		return nil, errors.New("manifest path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode model manifest %s: %w", path, err)
	}

	m.path = path
	if m.MaxLen == 0 {
		m.MaxLen = DefaultMaxLen
	}

	if m.NumClasses == 0 {
		m.NumClasses = DefaultNumClasses
	}

	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("model manifest %s: %w", path, err)
	}

	slog.Debug("loaded model manifest",
		"name", m.Name,
		"version", m.Version,
		"model", m.ModelPath(),
		"inputs", nodeNames(m.Inputs),
		"outputs", nodeNames(m.Outputs),
		"labels", len(m.Labels),
	)

	return &m, nil
}

func (m *Manifest) validate() error {
	if m.Model.Filename == "" {
		return errors.New("model filename is empty")
	}

	if m.Vocab.Filename == "" {
		return errors.New("vocab filename is empty")
	}

	if m.MaxLen < 2 {
		return fmt.Errorf("max_len must be at least 2, got %d", m.MaxLen)
	}

	if m.NumClasses < 1 {
		return fmt.Errorf("num_classes must be positive, got %d", m.NumClasses)
	}

	if _, err := os.Stat(m.ModelPath()); err != nil {
		return fmt.Errorf("model file: %w", err)
	}

	if _, err := m.Taxonomy(); err != nil {
		return err
	}

	return nil
}

// Path returns the file the manifest was read from.
func (m *Manifest) Path() string { return m.path }

// Dir returns the directory relative filenames resolve against.
func (m *Manifest) Dir() string { return filepath.Dir(m.path) }

// ModelPath returns the resolved classifier path.
func (m *Manifest) ModelPath() string { return m.resolve(m.Model.Filename) }

// VocabPath returns the resolved vocabulary path.
func (m *Manifest) VocabPath() string { return m.resolve(m.Vocab.Filename) }

func (m *Manifest) resolve(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}

	return filepath.Clean(filepath.Join(m.Dir(), name))
}

// Taxonomy returns the manifest's label table, or the GoEmotions Ekman
// grouping when the manifest lists none.
func (m *Manifest) Taxonomy() (emotion.Taxonomy, error) {
	if len(m.Labels) == 0 {
		if m.NumClasses != emotion.GoEmotionsClasses {
			return emotion.Taxonomy{}, fmt.Errorf("labels are required when num_classes is %d", m.NumClasses)
		}

		return emotion.GoEmotionsEkman(), nil
	}

	return emotion.NewTaxonomy(m.NumClasses, m.Labels)
}

// Graph returns the classifier graph description.
func (m *Manifest) Graph() Graph {
	name := m.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(m.Model.Filename), filepath.Ext(m.Model.Filename))
	}

	return Graph{
		Name:    name,
		Path:    m.ModelPath(),
		Inputs:  append([]NodeInfo(nil), m.Inputs...),
		Outputs: append([]NodeInfo(nil), m.Outputs...),
	}
}

// ClassifierConfig derives the feed and fetch names from the manifest's
// signature. Inputs are assigned by name: "mask" marks the attention mask,
// "type" or "segment" the token type ids, anything else the token ids. A
// role the graph does not declare is not fed.
func (m *Manifest) ClassifierConfig() ClassifierConfig {
	cfg := DefaultClassifierConfig()
	cfg.NumClasses = m.NumClasses

	if len(m.Inputs) > 0 {
		cfg.InputIDs, cfg.AttentionMask, cfg.TokenTypeIDs = "", "", ""

		for _, in := range m.Inputs {
			lower := strings.ToLower(in.Name)

			switch {
			case strings.Contains(lower, "mask"):
				cfg.AttentionMask = in.Name
			case strings.Contains(lower, "type"), strings.Contains(lower, "segment"):
				cfg.TokenTypeIDs = in.Name
			default:
				cfg.InputIDs = in.Name
			}
		}
	}

	if len(m.Outputs) == 1 {
		cfg.Output = m.Outputs[0].Name
	}

	return cfg
}

func nodeNames(nodes []NodeInfo) string {
	names := make([]string, 0, len(nodes))
	for _, n := range nodes {
		names = append(names, n.Name)
	}

	return strings.Join(names, ",")
}

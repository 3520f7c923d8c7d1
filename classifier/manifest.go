package classifier

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	BackendRemote     = "remote"
	BackendPrototypes = "prototypes"
)

// DefaultManifestPaths are tried in order when no explicit manifest is configured.
var DefaultManifestPaths = []string{"saved_models/model.yaml", "model.yaml"}

// Manifest describes a trained model and how to reach it.
type Manifest struct {
	Name       string            `yaml:"name" json:"name"`
	Backend    string            `yaml:"backend" json:"backend"`
	Labels     []string          `yaml:"labels" json:"labels"`
	Input      Shape             `yaml:"input" json:"input"`
	Remote     RemoteSettings    `yaml:"remote" json:"remote"`
	Prototypes PrototypeSettings `yaml:"prototypes" json:"prototypes"`

	// path the manifest was read from; relative backend paths resolve against its directory
	path string
}

type RemoteSettings struct {
	URL            string  `yaml:"url" json:"url"`
	Model          string  `yaml:"model" json:"model"`
	Signature      string  `yaml:"signature" json:"signature,omitempty"`
	TimeoutSeconds float64 `yaml:"timeout_seconds" json:"timeoutSeconds"`
}

type PrototypeSettings struct {
	Path string `yaml:"path" json:"path"`
	K    int    `yaml:"k" json:"k"`
}

// ResolveManifestPath returns the first existing path among candidates,
// falling back to DefaultManifestPaths when none are given.
func ResolveManifestPath(candidates ...string) (string, error) {
	if len(candidates) == 0 {
		candidates = DefaultManifestPaths
	}
	for _, p := range candidates {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("no model manifest found (tried %v): %w", candidates, os.ErrNotExist)
}

// LoadManifest reads and validates a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	m.path = path

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the manifest against the fixed label set and the pipeline's
// feature geometry.
func (m *Manifest) Validate() error {
	if m.Name == "" {
		return errors.New("manifest has no model name")
	}

	if !slices.Equal(m.Labels, labels[:]) {
		return &ContractMismatchError{
			Model:  m.Name,
			Reason: fmt.Sprintf("labels %v do not match %v", m.Labels, labels),
		}
	}

	if m.Input.Coefficients != PipelineShape.Coefficients {
		return &ContractMismatchError{
			Model:  m.Name,
			Reason: fmt.Sprintf("model expects %d coefficients per frame, pipeline produces %d", m.Input.Coefficients, PipelineShape.Coefficients),
		}
	}
	if m.Input.Frames != 0 && m.Input.Frames != PipelineShape.Frames {
		return &ContractMismatchError{
			Model:  m.Name,
			Reason: fmt.Sprintf("model expects %d frames, pipeline produces %d", m.Input.Frames, PipelineShape.Frames),
		}
	}

	switch m.Backend {
	case BackendRemote:
		if m.Remote.Model == "" {
			return errors.New("remote backend requires remote.model")
		}
	case BackendPrototypes:
		if m.Prototypes.Path == "" {
			return errors.New("prototypes backend requires prototypes.path")
		}
	default:
		return fmt.Errorf("unknown backend %q", m.Backend)
	}
	return nil
}

// Open builds the classifier the manifest describes.
func (m *Manifest) Open() (Classifier, error) {
	switch m.Backend {
	case BackendRemote:
		timeout := time.Duration(m.Remote.TimeoutSeconds * float64(time.Second))
		return NewRemoteModel(m.Remote.URL, m.Remote.Model, m.Remote.Signature, m.Input, timeout), nil
	case BackendPrototypes:
		k := m.Prototypes.K
		if k <= 0 {
			k = 5
		}
		return LoadPrototypeModel(m.resolve(m.Prototypes.Path), k)
	default:
		return nil, fmt.Errorf("unknown backend %q", m.Backend)
	}
}

// PrototypePath returns the prototype file location resolved against the manifest.
func (m *Manifest) PrototypePath() string {
	return m.resolve(m.Prototypes.Path)
}

func (m *Manifest) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || m.path == "" {
		return p
	}
	return filepath.Join(filepath.Dir(m.path), p)
}

package classifier

import (
	"fmt"
	"sync"
)

// ModelInfo is the public description of the loaded model.
type ModelInfo struct {
	Name       string      `json:"name"`
	Backend    string      `json:"backend"`
	Labels     []string    `json:"labels"`
	InputShape string      `json:"inputShape"`
	Prototypes *ModelStats `json:"prototypes,omitempty"`
}

// Loader opens the configured classifier once and shares it. A failed load is
// remembered and returned on every later call.
type Loader struct {
	candidates []string
	open       func() (Classifier, *Manifest, error)

	once     sync.Once
	model    Classifier
	manifest *Manifest
	err      error
}

// NewLoader resolves the manifest from candidates (or DefaultManifestPaths) on first use.
func NewLoader(candidates ...string) *Loader {
	l := &Loader{candidates: candidates}
	l.open = l.openManifest
	return l
}

// NewStaticLoader wraps an already constructed classifier.
func NewStaticLoader(model Classifier) *Loader {
	return &Loader{
		open: func() (Classifier, *Manifest, error) { return model, nil, nil },
	}
}

func (l *Loader) openManifest() (Classifier, *Manifest, error) {
	path, err := ResolveManifestPath(l.candidates...)
	if err != nil {
		return nil, nil, err
	}
	m, err := LoadManifest(path)
	if err != nil {
		return nil, nil, err
	}
	model, err := m.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s backend: %w", m.Backend, err)
	}
	if !model.InputShape().Accepts([3]int{1, PipelineShape.Frames, PipelineShape.Coefficients}) {
		return nil, nil, &ContractMismatchError{
			Model:  model.Name(),
			Reason: fmt.Sprintf("model input %s cannot take pipeline output %s", model.InputShape(), PipelineShape),
		}
	}
	return model, m, nil
}

// Get returns the shared classifier, loading it on the first call.
func (l *Loader) Get() (Classifier, error) {
	l.once.Do(func() {
		l.model, l.manifest, l.err = l.open()
	})
	return l.model, l.err
}

// Info describes the loaded model.
func (l *Loader) Info() (ModelInfo, error) {
	model, err := l.Get()
	if err != nil {
		return ModelInfo{}, err
	}

	info := ModelInfo{
		Name:       model.Name(),
		Labels:     Labels(),
		InputShape: model.InputShape().String(),
	}
	if l.manifest != nil {
		info.Name = l.manifest.Name
		info.Backend = l.manifest.Backend
	}
	if pm, ok := model.(*PrototypeModel); ok {
		stats := pm.Stats()
		info.Prototypes = &stats
		if info.Backend == "" {
			info.Backend = BackendPrototypes
		}
	}
	return info, nil
}

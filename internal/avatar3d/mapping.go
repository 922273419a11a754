package avatar3d

import (
	"errors"
	"fmt"

	"github.com/qmuntal/gltf"
)

var ErrNoMorphTargets = errors.New("model has no morph targets")

// Layout orders frame weights for a consumer.
type Layout interface {
	Names() []string
	Weights(frame *MorphFrame, dst []float32) []float32
}

// ChannelLayout emits every channel in MorphTarget order.
type ChannelLayout struct{}

func (ChannelLayout) Names() []string {
	return MorphTargetNames()
}

func (ChannelLayout) Weights(frame *MorphFrame, dst []float32) []float32 {
	return append(dst[:0], frame[:]...)
}

// MorphMapping maps a model's morph target order onto channels. It is built
// once at model load and read-only afterwards.
type MorphMapping struct {
	names      []string
	targets    []MorphTarget
	hasVisemes bool
}

// NewMorphMapping resolves model morph target names. Unmatched names map to
// NoTarget and are always driven at 0.
func NewMorphMapping(names []string) *MorphMapping {
	m := &MorphMapping{
		names:   append([]string(nil), names...),
		targets: make([]MorphTarget, len(names)),
	}
	for i, name := range names {
		t, ok := MorphTargetByName(name)
		if !ok {
			m.targets[i] = NoTarget
			continue
		}
		m.targets[i] = t
		if t.IsViseme() {
			m.hasVisemes = true
		}
	}
	return m
}

// LoadMorphMapping reads morph target names from a glTF/GLB file. Names come
// from mesh extras.targetNames; meshes sharing names are merged in first-seen
// order.
func LoadMorphMapping(path string) (*MorphMapping, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gltf: %w", err)
	}

	seen := make(map[string]bool)
	var names []string
	for mi, mesh := range doc.Meshes {
		for _, name := range meshTargetNames(mesh, mi) {
			if seen[name] {
				continue
			}
			seen[name] = true
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoMorphTargets)
	}
	return NewMorphMapping(names), nil
}

func meshTargetNames(mesh *gltf.Mesh, meshIndex int) []string {
	count := 0
	for _, prim := range mesh.Primitives {
		if len(prim.Targets) > count {
			count = len(prim.Targets)
		}
	}

	var names []string
	if extras, ok := mesh.Extras.(map[string]interface{}); ok {
		if targetNames, ok := extras["targetNames"].([]interface{}); ok {
			for _, n := range targetNames {
				if s, ok := n.(string); ok {
					names = append(names, s)
				}
			}
		}
	}
	for i := len(names); i < count; i++ {
		names = append(names, fmt.Sprintf("mesh%d_target_%d", meshIndex, i))
	}
	return names
}

func (m *MorphMapping) Names() []string {
	return append([]string(nil), m.names...)
}

// Len returns the number of model morph targets.
func (m *MorphMapping) Len() int {
	return len(m.names)
}

// Target returns the channel driving model morph target i.
func (m *MorphMapping) Target(i int) MorphTarget {
	return m.targets[i]
}

// HasVisemes reports whether the model carries viseme morph targets. Models
// without them get visemes projected onto ARKit mouth shapes.
func (m *MorphMapping) HasVisemes() bool {
	return m.hasVisemes
}

// Weights writes frame weights in model order.
func (m *MorphMapping) Weights(frame *MorphFrame, dst []float32) []float32 {
	src := frame
	if !m.hasVisemes {
		projected := ProjectVisemes(frame)
		src = &projected
	}

	dst = dst[:0]
	for _, t := range m.targets {
		if t == NoTarget {
			dst = append(dst, 0)
			continue
		}
		dst = append(dst, src[t])
	}
	return dst
}

package avatar3d

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const headGLTF = `{
  "asset": {"version": "2.0"},
  "meshes": [
    {
      "name": "Head",
      "extras": {"targetNames": ["jawOpen", "viseme_aa", "eyeBlinkLeft", "studioCustom"]},
      "primitives": [{"attributes": {}, "targets": [{}, {}, {}, {}]}]
    },
    {
      "name": "Teeth",
      "extras": {"targetNames": ["jawOpen", "viseme_aa"]},
      "primitives": [{"attributes": {}, "targets": [{}, {}, {}]}]
    }
  ]
}`

func TestLoadMorphMapping(t *testing.T) {
	path := filepath.Join(t.TempDir(), "head.gltf")
	require.NoError(t, os.WriteFile(path, []byte(headGLTF), 0644))

	m, err := LoadMorphMapping(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"jawOpen", "viseme_aa", "eyeBlinkLeft", "studioCustom", "mesh1_target_2"}, m.Names())
	assert.Equal(t, 5, m.Len())
	assert.Equal(t, JawOpen, m.Target(0))
	assert.Equal(t, NoTarget, m.Target(3))
	assert.True(t, m.HasVisemes())

	var f MorphFrame
	f.Set(JawOpen, 0.3)
	f.Set(VisemeAA, 0.9)
	f.Set(EyeBlinkLeft, 1)
	assert.Equal(t, []float32{0.3, 0.9, 1, 0, 0}, m.Weights(&f, nil))
}

func TestLoadMorphMappingErrors(t *testing.T) {
	_, err := LoadMorphMapping(filepath.Join(t.TempDir(), "missing.glb"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "empty.gltf")
	require.NoError(t, os.WriteFile(path, []byte(`{"asset": {"version": "2.0"}}`), 0644))
	_, err = LoadMorphMapping(path)
	assert.ErrorIs(t, err, ErrNoMorphTargets)
}

func TestMappingWithoutVisemesProjects(t *testing.T) {
	m := NewMorphMapping([]string{"jawOpen", "mouthPucker"})
	assert.False(t, m.HasVisemes())

	var f MorphFrame
	f.Set(VisemeU, 1)
	w := m.Weights(&f, make([]float32, 0, 2))
	assert.InDelta(t, 0.25, w[0], 1e-6)
	assert.InDelta(t, 0.6, w[1], 1e-6)
}

func TestChannelLayout(t *testing.T) {
	var l Layout = ChannelLayout{}
	assert.Len(t, l.Names(), int(MorphTargetCount))

	var f MorphFrame
	f.Set(VisemeI, 0.5)
	w := l.Weights(&f, nil)
	require.Len(t, w, int(MorphTargetCount))
	assert.Equal(t, float32(0.5), w[VisemeI])
}

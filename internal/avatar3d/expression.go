package avatar3d

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

const DefaultExpression = "neutral"

//go:embed profiles.yaml
var profilesYAML []byte

// Profile is a named set of expression weights. Profiles are read-only.
type Profile struct {
	Name    string
	Weights map[MorphTarget]float32
}

var (
	profiles = mustParseProfiles(profilesYAML)

	profileAliases = map[string]string{
		"default": "neutral",
	}
)

func mustParseProfiles(data []byte) map[string]Profile {
	p, err := ParseProfiles(data)
	if err != nil {
		panic(fmt.Sprintf("avatar3d: embedded profiles: %v", err))
	}
	return p
}

// ParseProfiles decodes a YAML document of name -> channel -> weight.
// Viseme and blink channels are rejected.
func ParseProfiles(data []byte) (map[string]Profile, error) {
	var raw map[string]map[string]float32
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse profiles: %w", err)
	}

	out := make(map[string]Profile, len(raw))
	for name, weights := range raw {
		p := Profile{Name: name, Weights: make(map[MorphTarget]float32, len(weights))}
		for channel, w := range weights {
			t, ok := MorphTargetByName(channel)
			if !ok {
				return nil, fmt.Errorf("profile %s: unknown channel %q", name, channel)
			}
			if t.IsViseme() || t.IsBlink() {
				return nil, fmt.Errorf("profile %s: channel %q is not an expression channel", name, channel)
			}
			if w < 0 || w > 1 {
				return nil, fmt.Errorf("profile %s: weight %.2f for %q out of range", name, w, channel)
			}
			p.Weights[t] = w
		}
		out[name] = p
	}
	return out, nil
}

// LookupProfile resolves a profile by name. Unknown names fall back to
// neutral and ok is false.
func LookupProfile(name string) (Profile, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if alias, found := profileAliases[key]; found {
		key = alias
	}
	if p, found := profiles[key]; found {
		return p, true
	}
	return profiles[DefaultExpression], false
}

// ProfileNames lists the known profiles, sorted.
func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BlenderConfig tunes an ExpressionBlender.
type BlenderConfig struct {
	Smoother          Smoother
	ExpressionRate    float32
	BlinkRate         float32
	DefaultExpression string
}

// ExpressionBlender eases expression channels toward the active profile and
// runs the blink channel. Viseme channels are left to the synchronizer.
type ExpressionBlender struct {
	mu sync.Mutex

	cfg     BlenderConfig
	blink   *BlinkScheduler
	current Profile
	target  MorphFrame
}

func NewExpressionBlender(cfg BlenderConfig, blink *BlinkScheduler) *ExpressionBlender {
	if cfg.ExpressionRate <= 0 {
		cfg.ExpressionRate = ExpressionRate
	}
	if cfg.BlinkRate <= 0 {
		cfg.BlinkRate = BlinkRate
	}
	if cfg.DefaultExpression == "" {
		cfg.DefaultExpression = DefaultExpression
	}
	if blink == nil {
		blink = NewBlinkScheduler(BlinkConfig{}, nil)
	}

	b := &ExpressionBlender{cfg: cfg, blink: blink}
	b.setLocked(cfg.DefaultExpression)
	return b
}

// SetExpression switches the target profile and returns the resolved name.
func (b *ExpressionBlender) SetExpression(name string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.setLocked(name)
}

func (b *ExpressionBlender) setLocked(name string) string {
	p, _ := LookupProfile(name)
	b.current = p
	b.target = MorphFrame{}
	for t, w := range p.Weights {
		b.target[t] = w
	}
	return p.Name
}

// SetDefaultExpression changes the profile Reset returns to.
func (b *ExpressionBlender) SetDefaultExpression(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cfg.DefaultExpression = name
}

// Expression returns the active profile name.
func (b *ExpressionBlender) Expression() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current.Name
}

// Tick advances the blender by dt seconds and writes into frame.
func (b *ExpressionBlender) Tick(dt float64, frame *MorphFrame) {
	b.mu.Lock()
	defer b.mu.Unlock()

	alpha := b.cfg.Smoother.Alpha(b.cfg.ExpressionRate, dt)
	for t := MorphTarget(0); t < MorphTargetCount; t++ {
		if t.IsViseme() || t.IsBlink() {
			continue
		}
		frame.Approach(t, b.target[t], alpha)
	}

	var blinkTarget float32
	if b.blink.Tick(dt) {
		blinkTarget = 1
	}
	blinkAlpha := b.cfg.Smoother.Alpha(b.cfg.BlinkRate, dt)
	frame.Approach(EyeBlinkLeft, blinkTarget, blinkAlpha)
	frame.Approach(EyeBlinkRight, blinkTarget, blinkAlpha)
}

// Reset returns to the default profile and restarts the blink schedule.
func (b *ExpressionBlender) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setLocked(b.cfg.DefaultExpression)
	b.blink.Reset()
}

package avatar3d

import "math"

// Default per-reference-frame blend rates.
const (
	VisemeRate     = 0.2
	ExpressionRate = 0.1
	BlinkRate      = 0.4

	DefaultReferenceFPS = 60
)

// Smoother turns a per-frame blend rate into a per-tick factor. A rate r at
// the reference frame rate becomes 1-(1-r)^(dt*fps), so weights converge in
// the same wall time regardless of the actual tick rate. FixedStep applies r
// once per tick instead.
type Smoother struct {
	ReferenceFPS float64
	FixedStep    bool
}

func NewSmoother(referenceFPS float64, fixedStep bool) Smoother {
	if referenceFPS <= 0 {
		referenceFPS = DefaultReferenceFPS
	}
	return Smoother{ReferenceFPS: referenceFPS, FixedStep: fixedStep}
}

// Alpha returns the blend factor for one tick of dt seconds.
func (s Smoother) Alpha(rate float32, dt float64) float32 {
	if s.FixedStep {
		return rate
	}
	if dt <= 0 {
		return 0
	}
	fps := s.ReferenceFPS
	if fps <= 0 {
		fps = DefaultReferenceFPS
	}
	return float32(1 - math.Pow(1-float64(rate), dt*fps))
}

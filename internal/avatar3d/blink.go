package avatar3d

import (
	"math/rand"
	"time"
)

// BlinkConfig bounds the blink schedule.
type BlinkConfig struct {
	MinInterval time.Duration
	MaxInterval time.Duration
	Hold        time.Duration
}

// BlinkScheduler decides when the eyes close. It runs on tick time only, so
// it stops whenever the tick loop stops and has nothing to cancel.
type BlinkScheduler struct {
	cfg BlinkConfig
	rng *rand.Rand

	now         float64
	next        float64
	closedUntil float64
	blinks      int
}

// NewBlinkScheduler creates a scheduler. A nil rng is seeded from the clock.
func NewBlinkScheduler(cfg BlinkConfig, rng *rand.Rand) *BlinkScheduler {
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = 2500 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 5 * time.Second
	}
	if cfg.MaxInterval < cfg.MinInterval {
		cfg.MaxInterval = cfg.MinInterval
	}
	if cfg.Hold <= 0 {
		cfg.Hold = 150 * time.Millisecond
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	b := &BlinkScheduler{cfg: cfg, rng: rng}
	b.Reset()
	return b
}

func (b *BlinkScheduler) interval() float64 {
	lo := b.cfg.MinInterval.Seconds()
	hi := b.cfg.MaxInterval.Seconds()
	return lo + b.rng.Float64()*(hi-lo)
}

// Tick advances the schedule by dt seconds and reports whether the eyes
// should be closed.
func (b *BlinkScheduler) Tick(dt float64) bool {
	if dt > 0 {
		b.now += dt
	}
	for b.now >= b.next {
		b.closedUntil = b.next + b.cfg.Hold.Seconds()
		b.next += b.interval()
		b.blinks++
	}
	return b.now < b.closedUntil
}

// Reset restarts the schedule from zero.
func (b *BlinkScheduler) Reset() {
	b.now = 0
	b.closedUntil = 0
	b.blinks = 0
	b.next = b.interval()
}

// NextIn returns the time until the next blink.
func (b *BlinkScheduler) NextIn() time.Duration {
	return time.Duration((b.next - b.now) * float64(time.Second))
}

// Blinks returns how many blinks have fired since the last Reset.
func (b *BlinkScheduler) Blinks() int {
	return b.blinks
}

package playback

import (
	"context"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/cortexlipsync/internal/avatar3d"
	"github.com/normanking/cortexlipsync/internal/utterance"
)

func newTestAnimator(t *testing.T) (*Animator, *utterance.Queue, *handles) {
	t.Helper()
	q := utterance.NewQueue()
	f := newHandles()
	s := newSync(q, f)
	blink := avatar3d.NewBlinkScheduler(avatar3d.BlinkConfig{MinInterval: time.Hour, MaxInterval: time.Hour}, rand.New(rand.NewSource(1)))
	blender := avatar3d.NewExpressionBlender(avatar3d.BlenderConfig{Smoother: avatar3d.NewSmoother(60, false)}, blink)
	return NewAnimator(s, blender, 60, nil, zerolog.Nop()), q, f
}

func TestAnimatorAppliesUtteranceExpression(t *testing.T) {
	a, q, f := newTestAnimator(t)

	u := readyUtterance(t, q, "u1", abCues()...)
	u.Expression = "smile"
	require.NoError(t, q.Push(u))

	a.Step(dt)
	h := f.get("u1")
	h.set(func() { h.started = true; h.position = 0.1 })
	a.Step(dt)
	assert.Equal(t, "smile", a.blender.Expression())

	for i := 0; i < 120; i++ {
		a.Step(dt)
	}
	frame := a.Frame()
	assert.Greater(t, frame.Get(avatar3d.MouthSmileLeft), float32(0.4))
	assert.Equal(t, float32(1), frame.Get(avatar3d.VisemePP))

	h.set(func() { h.finished = true })
	a.Step(dt)
	assert.Equal(t, "neutral", a.blender.Expression(), "expression resets once the queue drains")
}

func TestAnimatorSinksGetCopies(t *testing.T) {
	a, _, _ := newTestAnimator(t)
	a.SetExpression("surprised")

	var got []avatar3d.MorphFrame
	a.OnFrame(func(f avatar3d.MorphFrame) { got = append(got, f) })

	a.Step(dt)
	a.Step(dt)
	require.Len(t, got, 2)
	assert.Less(t, got[0].Get(avatar3d.EyeWideLeft), got[1].Get(avatar3d.EyeWideLeft))
	assert.Equal(t, got[1], a.Frame())
}

func TestAnimatorClampsDt(t *testing.T) {
	a, _, _ := newTestAnimator(t)
	a.SetExpression("surprised")

	a.Step(10)
	surprised, _ := avatar3d.LookupProfile("surprised")
	want := 1 - pow(0.9, 0.1*60)
	frame := a.Frame()
	assert.InDelta(t, float64(surprised.Weights[avatar3d.EyeWideLeft])*want, frame.Get(avatar3d.EyeWideLeft), 1e-4)
}

func pow(b, e float64) float64 {
	r := 1.0
	for i := 0; i < int(e); i++ {
		r *= b
	}
	return r
}

func TestAnimatorRunAndPause(t *testing.T) {
	a, _, _ := newTestAnimator(t)

	var ticks atomic.Int64
	a.OnFrame(func(avatar3d.MorphFrame) { ticks.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	assert.Eventually(t, func() bool { return ticks.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)

	a.Pause()
	assert.True(t, a.Paused())
	time.Sleep(50 * time.Millisecond)
	paused := ticks.Load()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, paused, ticks.Load(), "no ticks while paused")

	a.Resume()
	assert.Eventually(t, func() bool { return ticks.Load() > paused }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

package utterance

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readyUtterance(t *testing.T, id string, seq uint64) *Utterance {
	t.Helper()
	u := New(id, seq, "text "+id, "en-IN")
	require.NoError(t, u.AttachAudio([]byte{0}, "wav", "test"))
	tl, err := NewTimeline([]Cue{{Start: 0, End: 1, Value: SymbolA}})
	require.NoError(t, err)
	require.NoError(t, u.AttachTimeline(tl))
	return u
}

func TestQueuePreservesRequestOrder(t *testing.T) {
	q := NewQueue()
	seqA := q.Reserve()
	seqB := q.Reserve()

	// B finishes synthesis first.
	require.NoError(t, q.Push(readyUtterance(t, "B", seqB)))
	assert.Nil(t, q.Peek())
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, 1, q.Pending())

	require.NoError(t, q.Push(readyUtterance(t, "A", seqA)))
	assert.Equal(t, []string{"A", "B"}, q.Snapshot())

	assert.Equal(t, "A", q.Pop().ID)
	assert.Equal(t, "B", q.Peek().ID)
	assert.Equal(t, "B", q.Pop().ID)
	assert.Nil(t, q.Pop())
}

func TestQueueAbandonReleasesLaterUtterances(t *testing.T) {
	q := NewQueue()
	seqA := q.Reserve()
	seqB := q.Reserve()
	seqC := q.Reserve()

	require.NoError(t, q.Push(readyUtterance(t, "C", seqC)))
	require.NoError(t, q.Push(readyUtterance(t, "B", seqB)))
	assert.Equal(t, 0, q.Len())

	q.Abandon(seqA)
	assert.Equal(t, []string{"B", "C"}, q.Snapshot())
	assert.Equal(t, 0, q.Pending())
}

func TestQueueAbandonBeforeEarlierPush(t *testing.T) {
	q := NewQueue()
	seqA := q.Reserve()
	seqB := q.Reserve()
	seqC := q.Reserve()

	q.Abandon(seqB)
	require.NoError(t, q.Push(readyUtterance(t, "C", seqC)))
	assert.Equal(t, 0, q.Len())

	require.NoError(t, q.Push(readyUtterance(t, "A", seqA)))
	assert.Equal(t, []string{"A", "C"}, q.Snapshot())
}

func TestQueuePushRejections(t *testing.T) {
	q := NewQueue()

	pending := New("p", q.Reserve(), "x", "en-IN")
	assert.ErrorIs(t, q.Push(pending), ErrNotReady)

	assert.ErrorIs(t, q.Push(readyUtterance(t, "unreserved", 99)), ErrNotReserved)
	assert.ErrorIs(t, q.Push(readyUtterance(t, "zero", 0)), ErrNotReserved)

	q.Abandon(pending.Seq)
	assert.ErrorIs(t, q.Push(readyUtterance(t, "late", pending.Seq)), ErrDuplicate)

	seq := q.Reserve()
	require.NoError(t, q.Push(readyUtterance(t, "once", seq)))
	assert.ErrorIs(t, q.Push(readyUtterance(t, "twice", seq)), ErrDuplicate)
}

func TestQueueConcurrentProducers(t *testing.T) {
	q := NewQueue()
	const n = 50

	seqs := make([]uint64, n)
	for i := range seqs {
		seqs[i] = q.Reserve()
	}

	order := rand.New(rand.NewSource(7)).Perm(n)
	var wg sync.WaitGroup
	for _, i := range order {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("u%02d", i)
			if i%7 == 3 {
				q.Abandon(seqs[i])
				return
			}
			assert.NoError(t, q.Push(readyUtterance(t, id, seqs[i])))
		}(i)
	}
	wg.Wait()

	var want []string
	for i := 0; i < n; i++ {
		if i%7 != 3 {
			want = append(want, fmt.Sprintf("u%02d", i))
		}
	}
	assert.Equal(t, want, q.Snapshot())
	assert.Equal(t, 0, q.Pending())
}

func TestQueueDepthCallback(t *testing.T) {
	q := NewQueue()
	var depths []int
	q.OnDepthChange(func(ready, parked int) { depths = append(depths, ready) })

	seq := q.Reserve()
	require.NoError(t, q.Push(readyUtterance(t, "A", seq)))
	q.Pop()

	assert.Equal(t, []int{1, 0}, depths)
}

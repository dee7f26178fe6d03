package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/funtimes-shiftpwm/internal/pwm"
)

// recorder captures every word sent and every delay requested, in order.
type recorder struct {
	mu      sync.Mutex
	words   []uint32
	delays  []time.Duration
	failing bool

	onSleep func(n int)
}

func (r *recorder) Send(w uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failing {
		return errors.New("bus gone")
	}
	r.words = append(r.words, w)
	return nil
}

func (r *recorder) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	n := len(r.delays)
	hook := r.onSleep
	r.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	return ctx.Err()
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.words, r.delays = nil, nil
}

func expected(l pwm.Levels, q time.Duration) ([]uint32, []time.Duration) {
	var words []uint32
	var delays []time.Duration
	for _, st := range pwm.Reflect(l) {
		if st.Len == 0 {
			continue
		}
		words = append(words, st.Mask)
		delays = append(delays, time.Duration(st.Len)*q)
	}
	return words, delays
}

func TestCycleSkipsEmptySteps(t *testing.T) {
	store := pwm.NewStore()
	l := pwm.Levels{0, 2, 5, 0, 0, 100, 0, 0}
	store.Update(l)

	rec := &recorder{}
	s := New(store, rec, rec, 10*time.Microsecond)
	require.NoError(t, s.Cycle(context.Background()))

	assert.Equal(t, []uint32{0x26, 0x24, 0x20, 0x00}, rec.words)
	assert.Equal(t, []time.Duration{
		20 * time.Microsecond,
		30 * time.Microsecond,
		950 * time.Microsecond,
		1550 * time.Microsecond,
	}, rec.delays)

	var total time.Duration
	for _, d := range rec.delays {
		total += d
	}
	assert.Equal(t, pwm.Period*s.Quantum(), total)
	assert.Equal(t, Stats{Cycles: 1, Sends: 4}, s.Stats())
}

func TestCycleDark(t *testing.T) {
	rec := &recorder{}
	s := New(pwm.NewStore(), rec, rec, time.Microsecond)
	require.NoError(t, s.Cycle(context.Background()))
	assert.Equal(t, []uint32{0}, rec.words)
	assert.Equal(t, []time.Duration{255 * time.Microsecond}, rec.delays)
}

func TestDefaultsApplied(t *testing.T) {
	s := New(pwm.NewStore(), &recorder{}, nil, 0)
	assert.Equal(t, DefaultQuantum, s.Quantum())
	assert.IsType(t, SystemClock{}, s.clock)
}

// An update landing mid-cycle must not alter the cycle in flight, and the
// streamer must not hold the store lock while it waits.
func TestUpdateMidCycleTakesEffectNextCycle(t *testing.T) {
	store := pwm.NewStore()
	before := pwm.Levels{10, 20, 30, 40, 50, 60, 70, 80}
	after := pwm.Levels{255, 0, 128, 0, 1, 0, 0, 3}
	store.Update(before)

	rec := &recorder{}
	rec.onSleep = func(n int) {
		if n != 1 {
			return
		}
		done := make(chan struct{})
		go func() {
			store.Update(after)
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Error("store locked while streamer was sleeping")
		}
	}

	q := time.Microsecond
	s := New(store, rec, rec, q)
	require.NoError(t, s.Cycle(context.Background()))
	words, delays := expected(before, q)
	assert.Equal(t, words, rec.words)
	assert.Equal(t, delays, rec.delays)

	rec.onSleep = nil
	rec.reset()
	require.NoError(t, s.Cycle(context.Background()))
	words, delays = expected(after, q)
	assert.Equal(t, words, rec.words)
	assert.Equal(t, delays, rec.delays)
}

func TestSendErrorsDoNotStopCycle(t *testing.T) {
	store := pwm.NewStore()
	store.Update(pwm.Levels{1, 2, 3, 4, 5, 6, 7, 8})
	rec := &recorder{failing: true}
	s := New(store, rec, rec, time.Microsecond)

	require.NoError(t, s.Cycle(context.Background()))
	st := s.Stats()
	assert.Equal(t, uint64(1), st.Cycles)
	assert.Zero(t, st.Sends)
	assert.Equal(t, uint64(9), st.SendErrors)
	assert.Len(t, rec.delays, 9)
}

func TestRunStopsOnCancel(t *testing.T) {
	store := pwm.NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	rec := &recorder{}
	rec.onSleep = func(n int) {
		if n == 3 {
			cancel()
		}
	}
	s := New(store, rec, rec, time.Microsecond)
	err := s.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, uint64(2), s.Stats().Cycles)
}

func TestSystemClockSleep(t *testing.T) {
	start := time.Now()
	require.NoError(t, SystemClock{}.Sleep(context.Background(), 2*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 2*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, SystemClock{}.Sleep(ctx, time.Hour), context.Canceled)
}

// Every cycle observed while a producer hammers the store must be a whole,
// reflected sequence: masks only lose bits and durations add up to a period.
func TestConcurrentProducer(t *testing.T) {
	store := pwm.NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ctx.Err() == nil; i++ {
			var l pwm.Levels
			for c := range l {
				l[c] = uint8(i*7 + c*37)
			}
			store.Update(l)
		}
	}()

	rec := &recorder{}
	s := New(store, rec, rec, time.Nanosecond)
	for n := 0; n < 200; n++ {
		rec.reset()
		require.NoError(t, s.Cycle(ctx))
		var total time.Duration
		for _, d := range rec.delays {
			total += d
		}
		assert.Equal(t, pwm.Period*time.Nanosecond, total)
		for i := 1; i < len(rec.words); i++ {
			prev, cur := rec.words[i-1], rec.words[i]
			if cur&^prev != 0 {
				t.Fatalf("cycle %d: mask %#x gains bits after %#x", n, cur, prev)
			}
		}
	}
	cancel()
	wg.Wait()
}

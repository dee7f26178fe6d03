package stream

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/coreman2200/funtimes-shiftpwm/internal/pwm"
)

// DefaultQuantum is the wall time of one step unit; a full cycle is pwm.Period quanta.
const DefaultQuantum = 10 * time.Microsecond

// Sender shifts a bitmask out to the register chain.
type Sender interface {
	Send(word uint32) error
}

// Clock suspends the calling goroutine for d or until ctx is done.
type Clock interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock sleeps on a runtime timer.
type SystemClock struct{}

func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats are cumulative counters since the streamer was created.
type Stats struct {
	Cycles     uint64 `json:"cycles"`
	Sends      uint64 `json:"sends"`
	SendErrors uint64 `json:"send_errors"`
}

// Streamer realizes the store's current steps on a Sender, one cycle at a time.
// It is the only writer of its Sender.
type Streamer struct {
	store   *pwm.Store
	out     Sender
	clock   Clock
	quantum time.Duration

	cycles  atomic.Uint64
	sends   atomic.Uint64
	sendErr atomic.Uint64
}

func New(store *pwm.Store, out Sender, clock Clock, quantum time.Duration) *Streamer {
	if clock == nil {
		clock = SystemClock{}
	}
	if quantum <= 0 {
		quantum = DefaultQuantum
	}
	return &Streamer{store: store, out: out, clock: clock, quantum: quantum}
}

func (s *Streamer) Quantum() time.Duration { return s.quantum }

// Cycle emits one full output cycle from a snapshot of the store.
// Updates made while the cycle is running are picked up by the next call.
func (s *Streamer) Cycle(ctx context.Context) error {
	steps := s.store.Snapshot().Steps

	for _, st := range steps {
		if st.Len == 0 {
			continue
		}
		if err := s.out.Send(st.Mask); err != nil {
			if s.sendErr.Add(1) == 1 {
				log.Warn().Err(err).Msg("shift out failed")
			} else {
				log.Debug().Err(err).Uint32("mask", st.Mask).Msg("shift out failed")
			}
		} else {
			s.sends.Add(1)
		}
		if err := s.clock.Sleep(ctx, time.Duration(st.Len)*s.quantum); err != nil {
			return err
		}
	}
	s.cycles.Add(1)
	return nil
}

// Run repeats Cycle until ctx is cancelled.
func (s *Streamer) Run(ctx context.Context) error {
	log.Info().Dur("quantum", s.quantum).
		Dur("period", pwm.Period*s.quantum).
		Msg("streamer started")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Cycle(ctx); err != nil {
			return err
		}
	}
}

func (s *Streamer) Stats() Stats {
	return Stats{
		Cycles:     s.cycles.Load(),
		Sends:      s.sends.Load(),
		SendErrors: s.sendErr.Load(),
	}
}

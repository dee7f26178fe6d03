package animate

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/coreman2200/funtimes-shiftpwm/internal/pwm"
)

// Updater is the producer side of the brightness store.
type Updater interface {
	Update(l pwm.Levels) pwm.Frame
}

// DefaultPath walks segments 1..7 and comes back through 4, leaving 0 dark.
var DefaultPath = []int{1, 2, 3, 4, 5, 6, 7, 4}

// Chase hands brightness from one channel to the next along Path: the current
// channel fades out over a phase while the next one fades in, starting 40% of
// the way through.
type Chase struct {
	Path []int
	Step float64 // phase advance per tick, 0 < Step <= 1
	Tick time.Duration
	Ease string

	// OnUpdate, if set, is called with every new set of levels after the store update.
	OnUpdate func(pwm.Levels)

	levels pwm.Levels
	phase  float64
	cur    int
	next   int
}

func NewChase(path []int, step float64, tick time.Duration, ease string) *Chase {
	if len(path) == 0 {
		path = DefaultPath
	}
	if step <= 0 || step > 1 {
		step = 0.05
	}
	if tick <= 0 {
		tick = 50 * time.Millisecond
	}
	return &Chase{Path: path, Step: step, Tick: tick, Ease: ease, next: 1 % len(path)}
}

// Levels computes the levels for the current phase.
func (c *Chase) Levels() pwm.Levels {
	e := Ease(c.Ease, c.phase)
	cur, next := c.Path[c.cur], c.Path[c.next]
	c.levels[cur] = level(1 - e)
	if cur != next {
		c.levels[next] = level((e - 0.4) * 1.667)
	}
	return c.levels
}

// Advance moves the phase by one Step, handing over to the next path entry on wrap.
func (c *Chase) Advance() {
	c.phase += c.Step
	if c.phase < 1 {
		return
	}
	c.phase -= 1
	c.levels[c.Path[c.cur]] = 0
	c.cur = c.next
	c.next = (c.next + 1) % len(c.Path)
}

// Run updates u once per Tick until ctx is done. The store is never held
// across the wait.
func (c *Chase) Run(ctx context.Context, u Updater) error {
	log.Info().Ints("path", c.Path).Dur("tick", c.Tick).Float64("step", c.Step).Msg("chase started")
	tick := time.NewTicker(c.Tick)
	defer tick.Stop()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		l := c.Levels()
		u.Update(l)
		if c.OnUpdate != nil {
			c.OnUpdate(l)
		}
		c.Advance()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}
}

package animate

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/coreman2200/funtimes-shiftpwm/internal/pwm"
)

// LevelsFrom packs up to pwm.Channels values into Levels, clamping to 0..255.
func LevelsFrom(vals []int) pwm.Levels {
	var l pwm.Levels
	for i := 0; i < len(vals) && i < pwm.Channels; i++ {
		v := vals[i]
		if v < 0 {
			v = 0
		}
		if v > 255 {
			v = 255
		}
		l[i] = uint8(v)
	}
	return l
}

// Static sets the levels once and then idles until ctx is done.
type Static struct {
	Levels   pwm.Levels
	OnUpdate func(pwm.Levels)
}

func (s *Static) Run(ctx context.Context, u Updater) error {
	f := u.Update(s.Levels)
	if s.OnUpdate != nil {
		s.OnUpdate(f.Levels)
	}
	log.Info().Ints("levels", levelInts(f.Levels)).Int("active_steps", f.Steps.Active()).Msg("levels set")
	<-ctx.Done()
	return ctx.Err()
}

func levelInts(l pwm.Levels) []int {
	out := make([]int, len(l))
	for i, v := range l {
		out[i] = int(v)
	}
	return out
}

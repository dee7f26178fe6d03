package led

import (
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/funtimes-shiftpwm/internal/config"
)

// Driver abstracts the shift register output.
type Driver interface {
	// Send latches the low 8 bits of word onto the register outputs.
	Send(word uint32) error
	// Close releases resources.
	Close() error
}

// Open builds the driver named by cfg.Driver. Hardware that cannot be opened
// falls back to Sim; the returned name is the driver actually in use.
func Open(cfg config.Config) (Driver, string) {
	switch cfg.Driver {
	case "sim", "":
		return NewSim(), "sim"

	case "console":
		return NewConsole(), "console"

	case "spi":
		drv, err := NewSPI(cfg.SPI.Dev, cfg.SPI.SpeedHz)
		if err != nil {
			log.Warn().Err(err).
				Str("driver", "spi").
				Str("dev", cfg.SPI.Dev).
				Int("speed_hz", cfg.SPI.SpeedHz).
				Msg("SPI init failed; falling back to SIM")
			return NewSim(), "sim"
		}
		return drv, "spi"

	case "gpio":
		drv, err := NewGPIO(cfg.GPIO.Data, cfg.GPIO.Clock, cfg.GPIO.Latch)
		if err != nil {
			log.Warn().Err(err).
				Str("driver", "gpio").
				Str("data", cfg.GPIO.Data).
				Str("clock", cfg.GPIO.Clock).
				Str("latch", cfg.GPIO.Latch).
				Msg("GPIO init failed; falling back to SIM")
			return NewSim(), "sim"
		}
		return drv, "gpio"

	default:
		log.Warn().Str("driver", cfg.Driver).Msg("unknown driver; using SIM")
		return NewSim(), "sim"
	}
}

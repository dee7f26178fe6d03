package led

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

// outPin is the part of gpio.PinOut the bit-banger needs.
type outPin interface {
	Out(l gpio.Level) error
}

// GPIO shifts words out by toggling three pins, MSB first, then pulses the latch.
// It is much slower than SPI and meant for boards without a free SPI port.
type GPIO struct {
	mu                 sync.Mutex
	data, clock, latch outPin
}

func NewGPIO(data, clock, latch string) (*GPIO, error) {
	var pins [3]gpio.PinOut
	for i, name := range []string{data, clock, latch} {
		p := gpioreg.ByName(name)
		if p == nil {
			return nil, fmt.Errorf("gpio pin %q not found", name)
		}
		if err := p.Out(gpio.Low); err != nil {
			return nil, fmt.Errorf("gpio %s: %w", name, err)
		}
		pins[i] = p
	}
	return newGPIO(pins[0], pins[1], pins[2]), nil
}

func newGPIO(data, clock, latch outPin) *GPIO {
	return &GPIO{data: data, clock: clock, latch: latch}
}

func (g *GPIO) Send(word uint32) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := 7; i >= 0; i-- {
		if err := g.data.Out(gpio.Level(word&(1<<uint(i)) != 0)); err != nil {
			return fmt.Errorf("gpio data: %w", err)
		}
		if err := pulse(g.clock); err != nil {
			return fmt.Errorf("gpio clock: %w", err)
		}
	}
	if err := pulse(g.latch); err != nil {
		return fmt.Errorf("gpio latch: %w", err)
	}
	return nil
}

func pulse(p outPin) error {
	if err := p.Out(gpio.High); err != nil {
		return err
	}
	return p.Out(gpio.Low)
}

// Close leaves the lines low; the register keeps its last latched value.
func (g *GPIO) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.data.Out(gpio.Low)
}

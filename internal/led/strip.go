package led

import (
	"fmt"
	"io"
	"sync"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/nrzled"

	"github.com/coreman2200/funtimes-shiftpwm/internal/pwm"
)

// Strip mirrors channel levels onto an addressable WS2812 strip, one pixel
// per channel. The strip does its own PWM, so it is fed levels, not steps.
type Strip struct {
	mu     sync.Mutex
	dev    *nrzled.Dev
	closer io.Closer
	pix    [pwm.Channels * 3]byte
}

func NewStrip(dev string, speedHz int) (*Strip, error) {
	p, err := spireg.Open(dev)
	if err != nil {
		return nil, fmt.Errorf("open strip spi %q: %w", dev, err)
	}
	s, err := newStrip(p, speedHz)
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	return s, nil
}

func newStrip(p spi.PortCloser, speedHz int) (*Strip, error) {
	if speedHz <= 0 {
		speedHz = 2500000
	}
	d, err := nrzled.NewSPI(p, &nrzled.Opts{
		NumPixels: pwm.Channels,
		Channels:  3,
		Freq:      physic.Frequency(speedHz) * physic.Hertz,
	})
	if err != nil {
		return nil, fmt.Errorf("nrzled: %w", err)
	}
	return &Strip{dev: d, closer: p}, nil
}

// Show writes l as white pixels of matching brightness.
func (s *Strip) Show(l pwm.Levels) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dev == nil {
		return fmt.Errorf("strip closed")
	}
	for i, v := range l {
		s.pix[i*3+0], s.pix[i*3+1], s.pix[i*3+2] = v, v, v
	}
	if _, err := s.dev.Write(s.pix[:]); err != nil {
		return fmt.Errorf("strip write: %w", err)
	}
	return nil
}

func (s *Strip) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dev == nil {
		return nil
	}
	err := s.dev.Halt()
	if cerr := s.closer.Close(); err == nil {
		err = cerr
	}
	s.dev, s.closer = nil, nil
	return err
}

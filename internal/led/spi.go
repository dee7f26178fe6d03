package led

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
)

// SPI drives a 74HC595 chain from an SPI port: MOSI to SER, SCLK to SRCLK and
// CS to RCLK, so the rising CS edge at the end of each transfer latches the byte.
type SPI struct {
	mu   sync.Mutex
	port spi.PortCloser
	conn spi.Conn
	buf  [1]byte
}

// NewSPI opens the periph SPI port by name ("" for the first available one).
// host.Init must have been called.
func NewSPI(dev string, speedHz int) (*SPI, error) {
	p, err := spireg.Open(dev)
	if err != nil {
		return nil, fmt.Errorf("open spi %q: %w", dev, err)
	}
	s, err := newSPI(p, speedHz)
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	return s, nil
}

func newSPI(p spi.PortCloser, speedHz int) (*SPI, error) {
	if speedHz <= 0 {
		speedHz = 1000000
	}
	c, err := p.Connect(physic.Frequency(speedHz)*physic.Hertz, spi.Mode0, 8)
	if err != nil {
		return nil, fmt.Errorf("spi connect: %w", err)
	}
	return &SPI{port: p, conn: c}, nil
}

func (s *SPI) Send(word uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("spi closed")
	}
	s.buf[0] = byte(word)
	if err := s.conn.Tx(s.buf[:], nil); err != nil {
		return fmt.Errorf("spi write: %w", err)
	}
	return nil
}

func (s *SPI) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port, s.conn = nil, nil
	return err
}

package led

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Sim stands in for the register when no hardware is attached.
type Sim struct {
	mu    sync.Mutex
	last  uint32
	count uint64
}

func NewSim() *Sim { return &Sim{} }

func (s *Sim) Send(word uint32) error {
	s.mu.Lock()
	s.last = word & 0xFF
	s.count++
	s.mu.Unlock()
	log.Trace().Uint32("mask", word&0xFF).Msg("sim send")
	return nil
}

// Last returns the latched outputs and the number of sends so far.
func (s *Sim) Last() (uint32, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.count
}

func (s *Sim) Close() error { return nil }

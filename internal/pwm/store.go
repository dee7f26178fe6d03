package pwm

import "sync"

// Frame pairs channel levels with the steps reflected from them.
type Frame struct {
	Levels Levels
	Steps  Steps
}

// Store is the single piece of state shared between producers and the streamer.
// Levels and Steps are only ever changed together.
//
// Neither method blocks beyond the mutex; callers must not hold a Frame
// obtained here as a reference into the store, it is always a copy.
type Store struct {
	mu    sync.Mutex
	frame Frame
}

func NewStore() *Store {
	return &Store{frame: Frame{Steps: Reflect(Levels{})}}
}

// Snapshot returns a copy of the current frame.
func (s *Store) Snapshot() Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame
}

// Update stores new levels and recomputes the steps in the same critical section.
func (s *Store) Update(l Levels) Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frame.Levels = l
	s.frame.Steps = Reflect(l)
	return s.frame
}

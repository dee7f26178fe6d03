package pwm

const (
	// Channels is the number of outputs on one 74HC595 register.
	Channels = 8
	// StepCount is one transition per channel plus the trailing all-off interval.
	StepCount = Channels + 1
	// Period is the length of one output cycle in step units.
	Period = 255
)

// AllOn has one bit set per channel.
const AllOn uint32 = 1<<Channels - 1

// Levels holds the target brightness of every channel (0 = off, 255 = on).
type Levels [Channels]uint8

// Step is one interval of the output cycle: Mask is shifted out and held for Len units.
// A zero Len step is skipped by the streamer.
type Step struct {
	Mask uint32
	Len  uint8
}

// Steps is a complete output cycle.
type Steps [StepCount]Step

// Reflect turns channel levels into the step sequence that reproduces them.
//
// Channels are switched off in ascending order of level, so each one stays
// on for exactly its level out of Period units. Channels that share a level
// produce a zero length step between them.
func Reflect(l Levels) Steps {
	idx := [Channels]uint8{0, 1, 2, 3, 4, 5, 6, 7}
	// insertion sort, stable, no allocation
	for i := 1; i < Channels; i++ {
		for j := i; j > 0 && l[idx[j-1]] > l[idx[j]]; j-- {
			idx[j-1], idx[j] = idx[j], idx[j-1]
		}
	}

	var s Steps
	mask := AllOn
	var prev uint8
	for k, c := range idx {
		cur := l[c]
		s[k] = Step{Mask: mask, Len: cur - prev}
		mask &^= 1 << c
		prev = cur
	}
	s[Channels] = Step{Mask: 0, Len: Period - prev}
	return s
}

// OnTime returns how many units channel ch is driven high during one cycle.
func (s Steps) OnTime(ch int) int {
	n := 0
	for _, st := range s {
		if st.Mask&(1<<uint(ch)) != 0 {
			n += int(st.Len)
		}
	}
	return n
}

// Total is the cycle length in units. It is always Period for a reflected sequence.
func (s Steps) Total() int {
	n := 0
	for _, st := range s {
		n += int(st.Len)
	}
	return n
}

// Active counts the steps that will actually be shifted out.
func (s Steps) Active() int {
	n := 0
	for _, st := range s {
		if st.Len > 0 {
			n++
		}
	}
	return n
}

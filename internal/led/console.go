package led

import (
	"image"
	"image/color"
	"sync"
	"time"

	"periph.io/x/extra/devices/screen"

	"github.com/coreman2200/funtimes-shiftpwm/internal/pwm"
)

// drawer is the subset of a periph display used here.
type drawer interface {
	Draw(r image.Rectangle, src image.Image, sp image.Point) error
	Halt() error
}

// Console prints the latched outputs as a row of terminal cells. A terminal
// cannot keep up with the step rate, so at most one frame per throttle is drawn.
type Console struct {
	mu       sync.Mutex
	d        drawer
	img      *image.NRGBA
	throttle time.Duration
	lastEmit time.Time
	now      func() time.Time
}

func NewConsole() *Console {
	return newConsole(screen.New(pwm.Channels), 100*time.Millisecond)
}

func newConsole(d drawer, throttle time.Duration) *Console {
	return &Console{
		d:        d,
		img:      image.NewNRGBA(image.Rect(0, 0, pwm.Channels, 1)),
		throttle: throttle,
		now:      time.Now,
	}
}

var (
	consoleOn  = color.NRGBA{R: 255, G: 160, A: 255}
	consoleOff = color.NRGBA{A: 255}
)

func (c *Console) Send(word uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.lastEmit.Add(c.throttle).After(now) {
		return nil
	}
	c.lastEmit = now

	for i := 0; i < pwm.Channels; i++ {
		col := consoleOff
		if word&(1<<uint(i)) != 0 {
			col = consoleOn
		}
		c.img.SetNRGBA(i, 0, col)
	}
	return c.d.Draw(c.img.Bounds(), c.img, image.Point{})
}

func (c *Console) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.d.Halt()
}

package led

import (
	"bytes"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/spi/spitest"

	"github.com/coreman2200/funtimes-shiftpwm/internal/config"
	"github.com/coreman2200/funtimes-shiftpwm/internal/pwm"
)

func TestSPISendsLowByte(t *testing.T) {
	buf := bytes.Buffer{}
	s, err := newSPI(spitest.NewRecordRaw(&buf), 0)
	require.NoError(t, err)

	for _, w := range []uint32{0x26, 0x24, 0x20, 0x00, 0xFFFF01} {
		require.NoError(t, s.Send(w))
	}
	assert.Equal(t, []byte{0x26, 0x24, 0x20, 0x00, 0x01}, buf.Bytes())

	require.NoError(t, s.Close())
	assert.Error(t, s.Send(0x01))
	assert.NoError(t, s.Close())
}

// wire shares one event log between the three bit-bang lines.
type wire struct {
	clockHigh bool
	data      gpio.Level
	shifted   []byte
	latched   []byte
}

type wirePin struct {
	w    *wire
	role string
}

func (p *wirePin) Out(l gpio.Level) error {
	w := p.w
	switch p.role {
	case "data":
		w.data = l
	case "clock":
		if bool(l) && !w.clockHigh {
			b := byte(0)
			if w.data {
				b = 1
			}
			w.shifted = append(w.shifted, b)
		}
		w.clockHigh = bool(l)
	case "latch":
		if l {
			var v byte
			n := len(w.shifted)
			for i := n - 8; i < n; i++ {
				v = v<<1 | w.shifted[i]
			}
			w.latched = append(w.latched, v)
		}
	}
	return nil
}

func TestGPIOShiftsMSBFirstAndLatches(t *testing.T) {
	w := &wire{}
	g := newGPIO(&wirePin{w, "data"}, &wirePin{w, "clock"}, &wirePin{w, "latch"})

	require.NoError(t, g.Send(0xA5))
	require.NoError(t, g.Send(0x0126))

	assert.Equal(t, []byte{1, 0, 1, 0, 0, 1, 0, 1}, w.shifted[:8])
	assert.Equal(t, []byte{0xA5, 0x26}, w.latched)
}

func TestGPIOCloseDrivesDataLow(t *testing.T) {
	data := &gpiotest.Pin{N: "GPIO2", Num: 2}
	clock := &gpiotest.Pin{N: "GPIO3", Num: 3}
	latch := &gpiotest.Pin{N: "GPIO4", Num: 4}
	g := newGPIO(data, clock, latch)

	require.NoError(t, g.Send(0x01))
	assert.Equal(t, gpio.High, data.Read())
	assert.Equal(t, gpio.Low, clock.Read())
	assert.Equal(t, gpio.Low, latch.Read())

	require.NoError(t, g.Close())
	assert.Equal(t, gpio.Low, data.Read())
}

func TestSimRemembersLastWord(t *testing.T) {
	s := NewSim()
	require.NoError(t, s.Send(0x126))
	require.NoError(t, s.Send(0x24))
	last, n := s.Last()
	assert.Equal(t, uint32(0x24), last)
	assert.Equal(t, uint64(2), n)
}

type fakeDrawer struct {
	frames []image.Image
	halted bool
}

func (f *fakeDrawer) Draw(r image.Rectangle, src image.Image, sp image.Point) error {
	img := image.NewNRGBA(r)
	for x := r.Min.X; x < r.Max.X; x++ {
		img.Set(x, 0, src.At(x, 0))
	}
	f.frames = append(f.frames, img)
	return nil
}

func (f *fakeDrawer) Halt() error {
	f.halted = true
	return nil
}

func TestConsoleThrottlesAndDrawsBits(t *testing.T) {
	fd := &fakeDrawer{}
	c := newConsole(fd, time.Second)
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Send(0x05))
	require.NoError(t, c.Send(0xFF)) // throttled
	now = now.Add(2 * time.Second)
	require.NoError(t, c.Send(0x80))

	require.Len(t, fd.frames, 2)
	first := fd.frames[0].(*image.NRGBA)
	assert.Equal(t, consoleOn, first.NRGBAAt(0, 0))
	assert.Equal(t, consoleOff, first.NRGBAAt(1, 0))
	assert.Equal(t, consoleOn, first.NRGBAAt(2, 0))
	second := fd.frames[1].(*image.NRGBA)
	assert.Equal(t, consoleOn, second.NRGBAAt(7, 0))
	assert.Equal(t, consoleOff, second.NRGBAAt(0, 0))

	require.NoError(t, c.Close())
	assert.True(t, fd.halted)
}

func TestStripShowWritesPixels(t *testing.T) {
	buf := bytes.Buffer{}
	s, err := newStrip(spitest.NewRecordRaw(&buf), 0)
	require.NoError(t, err)

	require.NoError(t, s.Show(pwm.Levels{0, 2, 5, 0, 0, 100, 0, 0}))
	assert.NotZero(t, buf.Len())

	require.NoError(t, s.Close())
	assert.Error(t, s.Show(pwm.Levels{}))
}

func TestOpenFallsBackToSim(t *testing.T) {
	tests := []struct {
		driver string
		want   string
	}{
		{"", "sim"},
		{"sim", "sim"},
		{"bogus", "sim"},
		// no host.Init in tests, so nothing is registered
		{"spi", "sim"},
		{"gpio", "sim"},
	}
	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			cfg := config.Defaults()
			cfg.Driver = tt.driver
			cfg.GPIO = config.GPIO{Data: "NOPE1", Clock: "NOPE2", Latch: "NOPE3"}
			cfg.SPI.Dev = "NOPE"
			d, name := Open(cfg)
			defer d.Close()
			assert.Equal(t, tt.want, name)
			assert.IsType(t, &Sim{}, d)
		})
	}
}

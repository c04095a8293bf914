// Package epd154 drives the Waveshare 1.54" B V2 tri-color e-ink panel
// (200x200, black/red). The panel keeps its image without power, which is
// what makes it suitable for a node that spends most of its life in deep
// sleep.
//
// The driver owns the SPI bus and control pins exclusively. A full refresh
// takes seconds; callers are expected to draw rarely.
package epd154

import (
	"errors"
	"time"

	"tinygo.org/x/drivers"
)

// Panel geometry.
const (
	Width    = 200
	Height   = 200
	byteSize = Width * Height / 8
)

// Controller commands (SSD1681).
const (
	cmdDriverOutputControl   = 0x01
	cmdDeepSleepMode         = 0x10
	cmdDataEntryMode         = 0x11
	cmdSoftwareReset         = 0x12
	cmdMasterActivation      = 0x20
	cmdDisplayUpdateControl2 = 0x22
	cmdWriteRAMBlack         = 0x24
	cmdWriteRAMChromatic     = 0x26
	cmdBorderWaveformControl = 0x3C
	cmdSetRAMXStartEnd       = 0x44
	cmdSetRAMYStartEnd       = 0x45
	cmdSetRAMXCounter        = 0x4E
	cmdSetRAMYCounter        = 0x4F
)

// Errors returned by the driver.
var (
	ErrBusyTimeout = errors.New("epd154: busy timeout")
)

// PinOut drives a control pin.
type PinOut func(high bool)

// PinIn samples an input pin.
type PinIn func() bool

// Config controls non-hardware behaviour. All fields are optional.
type Config struct {
	// BusyTimeout bounds waits on the panel's busy line. A full refresh of
	// this panel takes up to ~15s. Default 20s.
	BusyTimeout time.Duration
}

// Device wraps a SPI connection to the panel. The SPI bus must already be
// configured.
type Device struct {
	bus  drivers.SPI
	cs   PinOut
	dc   PinOut
	rst  PinOut
	busy PinIn

	cfg Config
}

// New creates a panel device. This only creates the object; Configure
// resets and initializes the hardware.
func New(bus drivers.SPI, cs, dc, rst PinOut, busy PinIn) *Device {
	return &Device{bus: bus, cs: cs, dc: dc, rst: rst, busy: busy}
}

// Configure resets the panel and runs the init sequence.
func (d *Device) Configure(cfg Config) error {
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 20 * time.Second
	}
	d.cfg = cfg

	d.hardwareReset()
	if err := d.softwareReset(); err != nil {
		return err
	}

	// Gate count 200 lines, no interleave.
	d.command(cmdDriverOutputControl, 0xc7, 0x00, 0x01)

	// X increment, Y decrement; window covers the full panel.
	d.command(cmdDataEntryMode, 0x01)
	d.command(cmdSetRAMXStartEnd, 0x00, Width/8-1)
	d.command(cmdSetRAMYStartEnd, 0xc7, 0x00, 0x00, 0x00)

	d.command(cmdBorderWaveformControl, 0x05)

	d.setCursor()
	return d.waitUntilIdle()
}

// DrawBuffer transfers both planes and refreshes the panel. It blocks until
// the physical update completes.
func (d *Device) DrawBuffer(buf *Buffer) error {
	d.setCursor()

	d.command(cmdWriteRAMBlack)
	d.data(buf.black[:])

	// The controller expects the chromatic plane inverted.
	d.command(cmdWriteRAMChromatic)
	var line [Width / 8]byte
	for row := 0; row < Height; row++ {
		src := buf.chromatic[row*len(line) : (row+1)*len(line)]
		for i, b := range src {
			line[i] = ^b
		}
		d.data(line[:])
	}

	return d.refresh()
}

// Clear blanks the panel to white.
func (d *Device) Clear() error {
	var b Buffer
	b.Fill(White)
	return d.DrawBuffer(&b)
}

// Sleep puts the panel controller into deep sleep. A hardware reset (or
// power cycle) is required to use it again.
func (d *Device) Sleep() error {
	d.command(cmdDeepSleepMode, 0x01)
	time.Sleep(200 * time.Millisecond)
	return nil
}

func (d *Device) hardwareReset() {
	d.rst(true)
	time.Sleep(10 * time.Millisecond)
	d.rst(false)
	time.Sleep(10 * time.Millisecond)
	d.rst(true)
	time.Sleep(10 * time.Millisecond)
}

func (d *Device) softwareReset() error {
	d.command(cmdSoftwareReset)
	return d.waitUntilIdle()
}

func (d *Device) setCursor() {
	d.command(cmdSetRAMXCounter, 0x00)
	d.command(cmdSetRAMYCounter, 0xc7, 0x00)
}

func (d *Device) refresh() error {
	d.command(cmdDisplayUpdateControl2, 0xf7)
	d.command(cmdMasterActivation)
	return d.waitUntilIdle()
}

// waitUntilIdle polls the busy line. High means busy on this panel.
func (d *Device) waitUntilIdle() error {
	deadline := time.Now().Add(d.cfg.BusyTimeout)
	for d.busy() {
		if time.Now().After(deadline) {
			return ErrBusyTimeout
		}
		time.Sleep(10 * time.Millisecond)
	}
	return nil
}

func (d *Device) command(c byte, data ...byte) {
	d.dc(false)
	d.cs(false)
	d.bus.Tx([]byte{c}, nil)
	d.cs(true)
	if len(data) > 0 {
		d.data(data)
	}
}

func (d *Device) data(p []byte) {
	d.dc(true)
	d.cs(false)
	d.bus.Tx(p, nil)
	d.cs(true)
}

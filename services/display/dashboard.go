package display

import (
	"context"

	"envnode-go/drivers/epd154"
	"envnode-go/types"
)

// historyLen matches the sample history kept for the sparkline. At one
// sample per minute this covers a bit over an hour and a half.
const historyLen = 96

// Dashboard renders readings onto the 200x200 tri-color panel:
// a clock row, large temperature digits, humidity and pressure rows, and a
// temperature sparkline of recent history. History lives in RAM only and is
// lost on deep sleep.
type Dashboard struct {
	dev *epd154.Device
	buf epd154.Buffer

	history [historyLen]int16 // deci-°C
	count   int
	next    int
}

// NewDashboard creates a dashboard over a configured panel device.
func NewDashboard(dev *epd154.Device) *Dashboard {
	return &Dashboard{dev: dev}
}

// Draw implements Panel: record the reading, render, transfer.
func (d *Dashboard) Draw(_ context.Context, r types.Reading) error {
	d.push(r.Sample.DeciC)
	d.render(r)
	return d.dev.DrawBuffer(&d.buf)
}

// Sleep puts the panel controller into its retention low-power mode. The
// next Configure after wake resets it out again.
func (d *Dashboard) Sleep() error {
	return d.dev.Sleep()
}

func (d *Dashboard) push(deciC int16) {
	d.history[d.next] = deciC
	d.next = (d.next + 1) % historyLen
	if d.count < historyLen {
		d.count++
	}
}

// render composes the full frame into the off-screen buffer.
func (d *Dashboard) render(r types.Reading) {
	d.buf.Fill(epd154.White)

	// Clock row, small digits, top right.
	hh, mm := r.At.Hour(), r.At.Minute()
	drawNumber2(&d.buf, 104, 6, 10, 16, 2, hh, epd154.Black)
	d.buf.FillRect(132, 10, 2, 2, epd154.Black)
	d.buf.FillRect(132, 16, 2, 2, epd154.Black)
	drawNumber2(&d.buf, 138, 6, 10, 16, 2, mm, epd154.Black)

	// Temperature, large, one decimal.
	drawFixed1(&d.buf, 8, 34, 22, 40, 4, int(r.Sample.DeciC), epd154.Black)
	drawGlyph(&d.buf, 160, 34, 3, glyphDeg, epd154.Black)
	drawGlyph(&d.buf, 172, 40, 3, glyphC, epd154.Black)

	// Humidity, chromatic accent.
	drawFixed1(&d.buf, 8, 92, 14, 24, 3, int(r.Sample.RHx100)/10, epd154.Chromatic)
	drawGlyph(&d.buf, 120, 98, 2, glyphPct, epd154.Chromatic)

	// Pressure in hPa, whole units.
	drawNumberN(&d.buf, 8, 128, 14, 24, 3, int(r.Sample.DPa)/10, 4, epd154.Black)
	drawGlyph(&d.buf, 120, 134, 2, glyphH, epd154.Black)
	drawGlyph(&d.buf, 134, 134, 2, glyphP, epd154.Black)
	drawGlyph(&d.buf, 148, 134, 2, glyphA, epd154.Black)

	d.sparkline(8, 162, 184, 32)
}

// sparkline draws recent temperature history scaled into the given rect.
func (d *Dashboard) sparkline(x, y, w, h int) {
	if d.count < 2 {
		return
	}

	lo, hi := d.history[d.index(0)], d.history[d.index(0)]
	for i := 1; i < d.count; i++ {
		v := d.history[d.index(i)]
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	span := int(hi - lo)
	if span == 0 {
		span = 1
	}

	for i := 0; i < d.count; i++ {
		v := d.history[d.index(i)]
		px := x + i*(w-2)/(historyLen-1)
		py := y + h - 2 - int(v-lo)*(h-2)/span
		d.buf.FillRect(px, py, 2, 2, epd154.Black)
	}
}

// index maps a logical history position (0 = oldest) to the ring slot.
func (d *Dashboard) index(i int) int {
	start := d.next - d.count
	if start < 0 {
		start += historyLen
	}
	return (start + i) % historyLen
}

// ------------------------
// Seven-segment rendering
// ------------------------

// Segment bits: 0=top 1=top-right 2=bottom-right 3=bottom 4=bottom-left
// 5=top-left 6=middle.
var segDigits = [10]uint8{
	0b0111111, // 0
	0b0000110, // 1
	0b1011011, // 2
	0b1001111, // 3
	0b1100110, // 4
	0b1101101, // 5
	0b1111101, // 6
	0b0000111, // 7
	0b1111111, // 8
	0b1101111, // 9
}

// drawDigit renders one seven-segment digit of size w×h with the given
// stroke thickness.
func drawDigit(buf *epd154.Buffer, x, y, w, h, t, digit int, c epd154.Color) {
	if digit < 0 || digit > 9 {
		return
	}
	segs := segDigits[digit]
	half := (h - 3*t) / 2

	if segs&(1<<0) != 0 { // top
		buf.FillRect(x+t, y, w-2*t, t, c)
	}
	if segs&(1<<1) != 0 { // top-right
		buf.FillRect(x+w-t, y+t, t, half, c)
	}
	if segs&(1<<2) != 0 { // bottom-right
		buf.FillRect(x+w-t, y+2*t+half, t, half, c)
	}
	if segs&(1<<3) != 0 { // bottom
		buf.FillRect(x+t, y+h-t, w-2*t, t, c)
	}
	if segs&(1<<4) != 0 { // bottom-left
		buf.FillRect(x, y+2*t+half, t, half, c)
	}
	if segs&(1<<5) != 0 { // top-left
		buf.FillRect(x, y+t, t, half, c)
	}
	if segs&(1<<6) != 0 { // middle
		buf.FillRect(x+t, y+t+half, w-2*t, t, c)
	}
}

// drawNumber2 renders a two-digit zero-padded number (clock fields).
func drawNumber2(buf *epd154.Buffer, x, y, w, h, t, v int, c epd154.Color) {
	if v < 0 {
		v = 0
	}
	drawDigit(buf, x, y, w, h, t, (v/10)%10, c)
	drawDigit(buf, x+w+t*2, y, w, h, t, v%10, c)
}

// drawNumberN renders v right-aligned in n digit cells, blank-padded.
func drawNumberN(buf *epd154.Buffer, x, y, w, h, t, v, n int, c epd154.Color) {
	step := w + t*2
	for i := n - 1; i >= 0; i-- {
		digit := v % 10
		v /= 10
		if digit == 0 && v == 0 && i != n-1 {
			break
		}
		drawDigit(buf, x+i*step, y, w, h, t, digit, c)
	}
}

// drawFixed1 renders a deci-fixed-point value as "[-]II.D".
func drawFixed1(buf *epd154.Buffer, x, y, w, h, t, deci int, c epd154.Color) {
	neg := deci < 0
	if neg {
		deci = -deci
	}
	whole, frac := deci/10, deci%10

	if neg {
		buf.FillRect(x, y+(h-t)/2, w-t, t, c)
		x += w
	}
	step := w + t*2
	if whole >= 10 {
		drawDigit(buf, x, y, w, h, t, (whole/10)%10, c)
		x += step
	}
	drawDigit(buf, x, y, w, h, t, whole%10, c)
	x += step
	buf.FillRect(x, y+h-t, t, t, c) // decimal point
	x += t * 3
	drawDigit(buf, x, y, w, h, t, frac, c)
}

// ------------------------
// Tiny unit glyphs (8x8, row-major, MSB left)
// ------------------------

var (
	glyphDeg = [8]byte{0x38, 0x44, 0x44, 0x38, 0x00, 0x00, 0x00, 0x00}
	glyphC   = [8]byte{0x3c, 0x42, 0x40, 0x40, 0x40, 0x40, 0x42, 0x3c}
	glyphPct = [8]byte{0x62, 0x64, 0x08, 0x10, 0x20, 0x4c, 0x8c, 0x00}
	glyphH   = [8]byte{0x40, 0x40, 0x40, 0x7c, 0x42, 0x42, 0x42, 0x00}
	glyphP   = [8]byte{0x7c, 0x42, 0x42, 0x7c, 0x40, 0x40, 0x40, 0x00}
	glyphA   = [8]byte{0x00, 0x00, 0x3c, 0x02, 0x3e, 0x42, 0x3e, 0x00}
)

// drawGlyph renders an 8x8 bitmap scaled by s.
func drawGlyph(buf *epd154.Buffer, x, y, s int, g [8]byte, c epd154.Color) {
	for row := 0; row < 8; row++ {
		bits := g[row]
		for col := 0; col < 8; col++ {
			if bits&(0x80>>col) != 0 {
				buf.FillRect(x+col*s, y+row*s, s, s, c)
			}
		}
	}
}

package display

import (
	"testing"
	"time"

	"envnode-go/drivers/epd154"
	"envnode-go/types"
)

func TestHistoryRing(t *testing.T) {
	d := &Dashboard{}
	for i := 0; i < historyLen+10; i++ {
		d.push(int16(i))
	}
	if d.count != historyLen {
		t.Fatalf("count = %d, want %d", d.count, historyLen)
	}
	// Oldest surviving value is 10, newest is historyLen+9.
	if got := d.history[d.index(0)]; got != 10 {
		t.Fatalf("oldest = %d, want 10", got)
	}
	if got := d.history[d.index(d.count-1)]; got != int16(historyLen+9) {
		t.Fatalf("newest = %d, want %d", got, historyLen+9)
	}
}

func TestRenderMarksPixels(t *testing.T) {
	d := &Dashboard{}
	r := types.Reading{
		At:     time.Date(2023, 11, 14, 23, 13, 0, 0, time.UTC),
		Sample: types.Sample{DeciC: 234, RHx100: 5034, DPa: 10132},
	}
	d.push(r.Sample.DeciC)
	d.render(r)

	black, chroma := 0, 0
	for y := 0; y < epd154.Height; y++ {
		for x := 0; x < epd154.Width; x++ {
			switch d.buf.Pixel(x, y) {
			case epd154.Black:
				black++
			case epd154.Chromatic:
				chroma++
			}
		}
	}
	if black == 0 {
		t.Fatal("render produced no black pixels")
	}
	if chroma == 0 {
		t.Fatal("render produced no chromatic pixels (humidity row)")
	}
}

func TestRenderNegativeTemperature(t *testing.T) {
	d := &Dashboard{}
	r := types.Reading{
		At:     time.Unix(1_700_000_000, 0).UTC(),
		Sample: types.Sample{DeciC: -52, RHx100: 3000, DPa: 9980},
	}
	d.push(r.Sample.DeciC)
	// Must not panic or write out of bounds.
	d.render(r)
}

func TestDrawDigitStaysInCell(t *testing.T) {
	var buf epd154.Buffer
	const x, y, w, h = 50, 50, 20, 36
	drawDigit(&buf, x, y, w, h, 3, 8, epd154.Black)

	for py := 0; py < epd154.Height; py++ {
		for px := 0; px < epd154.Width; px++ {
			if buf.Pixel(px, py) == epd154.Black {
				if px < x || px >= x+w || py < y || py >= y+h {
					t.Fatalf("digit pixel (%d,%d) outside cell", px, py)
				}
			}
		}
	}
}

func TestSparklineFlatHistory(t *testing.T) {
	d := &Dashboard{}
	for i := 0; i < 10; i++ {
		d.push(210) // zero span must not divide by zero
	}
	d.sparkline(8, 162, 184, 32)
}

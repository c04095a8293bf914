package epd154

// Color of one pixel. The panel has two planes: black and chromatic (red).
type Color uint8

const (
	White Color = iota
	Black
	Chromatic
)

// Buffer is an off-screen tri-color frame. The zero value is all white.
// Both planes store one bit per pixel, MSB first, bit set = pixel off.
type Buffer struct {
	black     [byteSize]byte
	chromatic [byteSize]byte
	dirty     bool
}

// Fill sets every pixel to c.
func (b *Buffer) Fill(c Color) {
	blackFill, chromaFill := byte(0xff), byte(0xff)
	switch c {
	case Black:
		blackFill = 0x00
	case Chromatic:
		chromaFill = 0x00
	}
	for i := range b.black {
		b.black[i] = blackFill
		b.chromatic[i] = chromaFill
	}
	b.dirty = true
}

// SetPixel colors the pixel at (x, y). Out-of-range coordinates are ignored.
func (b *Buffer) SetPixel(x, y int, c Color) {
	if x < 0 || x >= Width || y < 0 || y >= Height {
		return
	}
	bit := x + y*Width
	index := bit >> 3
	mask := byte(0x80) >> (bit & 7)

	switch c {
	case Black:
		b.black[index] &^= mask
		b.chromatic[index] |= mask
	case Chromatic:
		b.chromatic[index] &^= mask
		b.black[index] |= mask
	case White:
		b.black[index] |= mask
		b.chromatic[index] |= mask
	}
	b.dirty = true
}

// Pixel reports the color at (x, y). Out-of-range reads return White.
func (b *Buffer) Pixel(x, y int) Color {
	if x < 0 || x >= Width || y < 0 || y >= Height {
		return White
	}
	bit := x + y*Width
	index := bit >> 3
	mask := byte(0x80) >> (bit & 7)

	if b.black[index]&mask == 0 {
		return Black
	}
	if b.chromatic[index]&mask == 0 {
		return Chromatic
	}
	return White
}

// FillRect colors the axis-aligned rectangle of size w×h at (x, y).
func (b *Buffer) FillRect(x, y, w, h int, c Color) {
	for dy := 0; dy < h; dy++ {
		for dx := 0; dx < w; dx++ {
			b.SetPixel(x+dx, y+dy, c)
		}
	}
}

// Dirty reports whether the buffer changed since the last ClearDirty.
func (b *Buffer) Dirty() bool { return b.dirty }

// ClearDirty resets the dirty flag after a transfer.
func (b *Buffer) ClearDirty() { b.dirty = false }

package epd154

import "testing"

func TestZeroBufferIsWhite(t *testing.T) {
	var b Buffer
	if got := b.Pixel(0, 0); got != White {
		t.Fatalf("Pixel(0,0) = %v, want White", got)
	}
	if got := b.Pixel(Width-1, Height-1); got != White {
		t.Fatalf("corner pixel = %v, want White", got)
	}
	if b.Dirty() {
		t.Fatal("zero buffer reports dirty")
	}
}

func TestSetPixelPlanesExclusive(t *testing.T) {
	var b Buffer

	b.SetPixel(3, 7, Black)
	if got := b.Pixel(3, 7); got != Black {
		t.Fatalf("Pixel = %v, want Black", got)
	}

	// Recoloring chromatic must clear the black plane.
	b.SetPixel(3, 7, Chromatic)
	if got := b.Pixel(3, 7); got != Chromatic {
		t.Fatalf("Pixel = %v, want Chromatic", got)
	}

	b.SetPixel(3, 7, White)
	if got := b.Pixel(3, 7); got != White {
		t.Fatalf("Pixel = %v, want White", got)
	}
	if !b.Dirty() {
		t.Fatal("buffer not dirty after writes")
	}
}

func TestSetPixelOutOfRangeIgnored(t *testing.T) {
	var b Buffer
	b.SetPixel(-1, 0, Black)
	b.SetPixel(0, -1, Black)
	b.SetPixel(Width, 0, Black)
	b.SetPixel(0, Height, Black)
	if b.Dirty() {
		t.Fatal("out-of-range writes marked the buffer dirty")
	}
}

func TestFillRect(t *testing.T) {
	var b Buffer
	b.FillRect(10, 20, 4, 3, Black)

	for y := 20; y < 23; y++ {
		for x := 10; x < 14; x++ {
			if b.Pixel(x, y) != Black {
				t.Fatalf("pixel (%d,%d) not black", x, y)
			}
		}
	}
	if b.Pixel(9, 20) != White || b.Pixel(14, 20) != White {
		t.Fatal("FillRect spilled outside the rectangle")
	}
}

func TestFill(t *testing.T) {
	var b Buffer
	b.Fill(Chromatic)
	if b.Pixel(100, 100) != Chromatic {
		t.Fatal("Fill(Chromatic) did not color pixels")
	}
	b.Fill(White)
	if b.Pixel(100, 100) != White {
		t.Fatal("Fill(White) did not blank pixels")
	}
}

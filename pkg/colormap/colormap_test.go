package colormap

import (
	"image/color"
	"testing"
)

func TestViridisEndpoints(t *testing.T) {
	t.Parallel()

	c0, ok := Viridis.At(0).(color.RGBA)
	if !ok {
		t.Fatalf("expected color.RGBA at t=0")
	}
	if c0 != (color.RGBA{R: 68, G: 1, B: 84, A: 255}) {
		t.Fatalf("unexpected Viridis.At(0): %#v", c0)
	}

	c1, ok := Viridis.At(1).(color.RGBA)
	if !ok {
		t.Fatalf("expected color.RGBA at t=1")
	}
	if c1 != (color.RGBA{R: 253, G: 231, B: 37, A: 255}) {
		t.Fatalf("unexpected Viridis.At(1): %#v", c1)
	}
}

func TestHSVPrimaries(t *testing.T) {
	t.Parallel()

	if got := HSV.At(0).(color.RGBA); got != (color.RGBA{255, 0, 0, 255}) {
		t.Fatalf("hsv(0) = %#v", got)
	}
	if got := HSV.At(1.0 / 3).(color.RGBA); got != (color.RGBA{0, 255, 0, 255}) {
		t.Fatalf("hsv(1/3) = %#v", got)
	}
}

func TestLookup(t *testing.T) {
	t.Parallel()

	if _, ok := Lookup("Viridis"); !ok {
		t.Fatal("expected viridis to be registered")
	}
	if _, ok := Lookup("nope"); ok {
		t.Fatal("unexpected colormap")
	}
	if got := Tab10.AtIndex(10); got != Tab10.AtIndex(0) {
		t.Fatalf("tab10 should wrap, got %#v", got)
	}
}

func TestParseColor(t *testing.T) {
	t.Parallel()

	cases := map[string]color.RGBA{
		"#ff0000": {255, 0, 0, 255},
		"#0f0":    {0, 255, 0, 255},
		"blue":    {0, 0, 255, 255},
	}
	for in, want := range cases {
		got, err := ParseColor(in)
		if err != nil {
			t.Fatalf("ParseColor(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseColor(%q) = %#v, want %#v", in, got, want)
		}
		if in[0] == '#' && len(in) == 7 && Hex(got) != in {
			t.Fatalf("Hex round trip: %s", Hex(got))
		}
	}
	if _, err := ParseColor("#12"); err == nil {
		t.Fatal("expected error for short hex")
	}
}

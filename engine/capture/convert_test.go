package capture

import (
	"testing"
)

// solidFrame builds a w x h frame of one colour with rows padded to 256 bytes.
func solidFrame(w, h int, format PixelFormat, r, g, b byte) *FrameBuffer {
	bpr := (w*4 + 255) / 256 * 256
	data := make([]byte, bpr*h)
	for i := range data {
		data[i] = 0xee // padding must never reach the output
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			px := data[y*bpr+x*4:]
			switch format {
			case FormatBGRA8:
				px[0], px[1], px[2], px[3] = b, g, r, 0xff
			default:
				px[0], px[1], px[2], px[3] = r, g, b, 0xff
			}
		}
	}
	return &FrameBuffer{Data: data, Width: w, Height: h, BytesPerRow: bpr, Format: format}
}

func allEqual(t *testing.T, plane string, got []byte, want byte) {
	t.Helper()
	for i, v := range got {
		if v != want {
			t.Errorf("%s[%d] = %d, want %d", plane, i, v, want)
			return
		}
	}
}

func TestConvertColours(t *testing.T) {
	tests := []struct {
		name    string
		r, g, b byte
		y, u, v byte
	}{
		{"white", 255, 255, 255, 235, 128, 128},
		{"black", 0, 0, 0, 16, 128, 128},
		{"red", 255, 0, 0, 82, 90, 240},
	}
	for _, tt := range tests {
		for _, format := range []PixelFormat{FormatRGBA8, FormatBGRA8} {
			t.Run(tt.name+"/"+format.String(), func(t *testing.T) {
				fb := solidFrame(4, 2, format, tt.r, tt.g, tt.b)
				fb.Seq = 7
				got, err := Convert(fb, OutputFormat{})
				if err != nil {
					t.Fatalf("Convert: %v", err)
				}
				if got.Seq != 7 {
					t.Errorf("Seq = %d, want 7", got.Seq)
				}
				if got.Width != 4 || got.Height != 2 {
					t.Errorf("size = %dx%d, want 4x2", got.Width, got.Height)
				}
				if len(got.Y) != 8 || len(got.U) != 2 || len(got.V) != 2 {
					t.Fatalf("plane sizes = %d/%d/%d, want 8/2/2", len(got.Y), len(got.U), len(got.V))
				}
				allEqual(t, "Y", got.Y, tt.y)
				allEqual(t, "U", got.U, tt.u)
				allEqual(t, "V", got.V, tt.v)
			})
		}
	}
}

func TestConvertOddSize(t *testing.T) {
	got, err := Convert(solidFrame(3, 3, FormatRGBA8, 255, 255, 255), OutputFormat{})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if len(got.Y) != 9 || len(got.U) != 4 || len(got.V) != 4 {
		t.Errorf("plane sizes = %d/%d/%d, want 9/4/4", len(got.Y), len(got.U), len(got.V))
	}
	allEqual(t, "U", got.U, 128)
}

func TestConvertScales(t *testing.T) {
	got, err := Convert(solidFrame(8, 8, FormatBGRA8, 0, 0, 0), OutputFormat{Width: 4, Height: 2})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if got.Width != 4 || got.Height != 2 {
		t.Errorf("size = %dx%d, want 4x2", got.Width, got.Height)
	}
	if len(got.Y) != 8 {
		t.Errorf("len(Y) = %d, want 8", len(got.Y))
	}
	allEqual(t, "Y", got.Y, 16)
}

func TestConvertRejectsMalformed(t *testing.T) {
	short := solidFrame(4, 4, FormatRGBA8, 0, 0, 0)
	short.Data = short.Data[:len(short.Data)/2]

	narrow := solidFrame(4, 4, FormatRGBA8, 0, 0, 0)
	narrow.BytesPerRow = 8

	unknown := solidFrame(4, 4, FormatRGBA8, 0, 0, 0)
	unknown.Format = PixelFormat(9)

	tests := map[string]*FrameBuffer{
		"nil":     nil,
		"empty":   {},
		"short":   short,
		"narrow":  narrow,
		"unknown": unknown,
	}
	for name, fb := range tests {
		if _, err := Convert(fb, OutputFormat{}); err == nil {
			t.Errorf("Convert(%s) returned nil error", name)
		}
	}
}

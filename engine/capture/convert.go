package capture

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// OutputFormat is the size frames are converted to. A zero dimension keeps the source size.
type OutputFormat struct {
	Width  int
	Height int
}

// Converter turns a read back frame into an encoder frame.
type Converter func(fb *FrameBuffer, out OutputFormat) (*ConvertedBuffer, error)

// Convert strips row padding, normalises channel order, optionally scales the
// frame and converts it to BT.601 limited range I420.
//
// Parameters:
//   - fb: the read back frame
//   - out: the output size
//
// Returns:
//   - *ConvertedBuffer: the I420 frame carrying fb.Seq
//   - error: error if fb is malformed
func Convert(fb *FrameBuffer, out OutputFormat) (*ConvertedBuffer, error) {
	img, err := toRGBA(fb)
	if err != nil {
		return nil, err
	}

	w, h := out.Width, out.Height
	if w <= 0 {
		w = fb.Width
	}
	if h <= 0 {
		h = fb.Height
	}
	if w != fb.Width || h != fb.Height {
		scaled := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), img, img.Bounds(), draw.Src, nil)
		img = scaled
	}

	cb := toI420(img)
	cb.Seq = fb.Seq
	return cb, nil
}

// toRGBA copies the visible part of every row into an RGBA image.
func toRGBA(fb *FrameBuffer) (*image.RGBA, error) {
	if fb == nil || fb.Width <= 0 || fb.Height <= 0 {
		return nil, fmt.Errorf("convert frame: empty frame")
	}
	rowBytes := fb.Width * 4
	if fb.BytesPerRow < rowBytes {
		return nil, fmt.Errorf("convert frame %d: bytes per row %d shorter than %d", fb.Seq, fb.BytesPerRow, rowBytes)
	}
	if need := fb.BytesPerRow*(fb.Height-1) + rowBytes; len(fb.Data) < need {
		return nil, fmt.Errorf("convert frame %d: have %d bytes, need %d", fb.Seq, len(fb.Data), need)
	}

	img := image.NewRGBA(image.Rect(0, 0, fb.Width, fb.Height))
	for y := 0; y < fb.Height; y++ {
		src := fb.Data[y*fb.BytesPerRow : y*fb.BytesPerRow+rowBytes]
		dst := img.Pix[y*img.Stride : y*img.Stride+rowBytes]
		switch fb.Format {
		case FormatBGRA8:
			for x := 0; x < rowBytes; x += 4 {
				dst[x], dst[x+1], dst[x+2], dst[x+3] = src[x+2], src[x+1], src[x], 0xff
			}
		case FormatRGBA8:
			for x := 0; x < rowBytes; x += 4 {
				dst[x], dst[x+1], dst[x+2], dst[x+3] = src[x], src[x+1], src[x+2], 0xff
			}
		default:
			return nil, fmt.Errorf("convert frame %d: unsupported format %s", fb.Seq, fb.Format)
		}
	}
	return img, nil
}

// toI420 converts img with 2x2 chroma subsampling. Odd edges average the samples that exist.
func toI420(img *image.RGBA) *ConvertedBuffer {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	cw, ch := (w+1)/2, (h+1)/2
	cb := &ConvertedBuffer{
		Width:  w,
		Height: h,
		Y:      make([]byte, w*h),
		U:      make([]byte, cw*ch),
		V:      make([]byte, cw*ch),
	}

	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			r, g, b := int(row[x*4]), int(row[x*4+1]), int(row[x*4+2])
			cb.Y[y*w+x] = uint8(((66*r + 129*g + 25*b + 128) >> 8) + 16)
		}
	}

	for cy := 0; cy < ch; cy++ {
		for cx := 0; cx < cw; cx++ {
			var r, g, b, n int
			for dy := 0; dy < 2; dy++ {
				y := cy*2 + dy
				if y >= h {
					continue
				}
				for dx := 0; dx < 2; dx++ {
					x := cx*2 + dx
					if x >= w {
						continue
					}
					i := y*img.Stride + x*4
					r += int(img.Pix[i])
					g += int(img.Pix[i+1])
					b += int(img.Pix[i+2])
					n++
				}
			}
			r, g, b = r/n, g/n, b/n
			cb.U[cy*cw+cx] = uint8(((-38*r - 74*g + 112*b + 128) >> 8) + 128)
			cb.V[cy*cw+cx] = uint8(((112*r - 94*g - 18*b + 128) >> 8) + 128)
		}
	}
	return cb
}

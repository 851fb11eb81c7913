package capture

import (
	"bufio"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
)

// y4mEncoder writes YUV4MPEG2. The stream header is written with the first frame,
// so the size follows whatever the converter produced.
type y4mEncoder struct {
	dst     io.WriteCloser
	lz      *lz4.Writer
	w       *bufio.Writer
	fps     int
	width   int
	height  int
	started bool
	closed  bool
}

var _ Encoder = &y4mEncoder{}

// NewY4MEncoder creates an Encoder writing a YUV4MPEG2 stream to dst.
// Closing the encoder closes dst.
//
// Parameters:
//   - dst: the output
//   - fps: the frame rate recorded in the header
//   - compress: wrap the stream in an lz4 frame
//
// Returns:
//   - Encoder: the encoder
func NewY4MEncoder(dst io.WriteCloser, fps int, compress bool) Encoder {
	if fps <= 0 {
		fps = 60
	}
	e := &y4mEncoder{dst: dst, fps: fps}
	var out io.Writer = dst
	if compress {
		e.lz = lz4.NewWriter(dst)
		out = e.lz
	}
	e.w = bufio.NewWriterSize(out, 1<<20)
	return e
}

func (e *y4mEncoder) Encode(frame *ConvertedBuffer) error {
	if e.closed {
		return fmt.Errorf("encode frame %d: encoder closed", frame.Seq)
	}
	if !e.started {
		e.width, e.height = frame.Width, frame.Height
		if _, err := fmt.Fprintf(e.w, "YUV4MPEG2 W%d H%d F%d:1 Ip A1:1 C420jpeg\n", e.width, e.height, e.fps); err != nil {
			return fmt.Errorf("write y4m header: %w", err)
		}
		e.started = true
	}
	if frame.Width != e.width || frame.Height != e.height {
		return fmt.Errorf("encode frame %d: size %dx%d differs from stream %dx%d", frame.Seq, frame.Width, frame.Height, e.width, e.height)
	}

	if _, err := e.w.WriteString("FRAME\n"); err != nil {
		return fmt.Errorf("write frame %d: %w", frame.Seq, err)
	}
	for _, plane := range [][]byte{frame.Y, frame.U, frame.V} {
		if _, err := e.w.Write(plane); err != nil {
			return fmt.Errorf("write frame %d: %w", frame.Seq, err)
		}
	}
	return nil
}

func (e *y4mEncoder) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	err := e.w.Flush()
	if e.lz != nil {
		if cerr := e.lz.Close(); err == nil {
			err = cerr
		}
	}
	if cerr := e.dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("close y4m stream: %w", err)
	}
	return nil
}

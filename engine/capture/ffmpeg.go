package capture

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ffmpegEncoder pipes a y4m stream into an ffmpeg process that encodes H.264.
// The process starts with the first frame.
type ffmpegEncoder struct {
	log     *zap.Logger
	path    string
	output  string
	bitrate string
	fps     int

	cmd    *exec.Cmd
	stream Encoder
	g      *errgroup.Group
}

var _ Encoder = &ffmpegEncoder{}

// NewFFmpegEncoder creates an Encoder that runs ffmpeg to write output.
//
// Parameters:
//   - path: the ffmpeg executable
//   - output: the video file ffmpeg writes
//   - bitrate: the H.264 target bitrate, for example "8M"
//   - fps: the frame rate
//   - log: logger for ffmpeg's diagnostic output
//
// Returns:
//   - Encoder: the encoder
func NewFFmpegEncoder(path, output, bitrate string, fps int, log *zap.Logger) Encoder {
	if fps <= 0 {
		fps = 60
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ffmpegEncoder{
		log:     log.Named("ffmpeg"),
		path:    path,
		output:  output,
		bitrate: bitrate,
		fps:     fps,
	}
}

// ffmpegArgs returns the command line for reading y4m on stdin.
func ffmpegArgs(output, bitrate string, fps int) []string {
	args := []string{
		"-hide_banner", "-loglevel", "warning", "-y",
		"-f", "yuv4mpegpipe", "-i", "pipe:0",
		"-c:v", "libx264", "-pix_fmt", "yuv420p",
		"-r", strconv.Itoa(fps),
	}
	if bitrate != "" {
		args = append(args, "-b:v", bitrate)
	}
	return append(args, output)
}

func (e *ffmpegEncoder) start() error {
	cmd := exec.Command(e.path, ffmpegArgs(e.output, e.bitrate, e.fps)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdin: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", e.path, err)
	}
	e.log.Info("started", zap.String("output", e.output), zap.Int("pid", cmd.Process.Pid))

	e.g = &errgroup.Group{}
	e.g.Go(func() error { return e.drain(stderr) })
	e.cmd = cmd
	e.stream = NewY4MEncoder(stdin, e.fps, false)
	return nil
}

func (e *ffmpegEncoder) drain(r io.Reader) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		e.log.Warn(sc.Text())
	}
	return sc.Err()
}

func (e *ffmpegEncoder) Encode(frame *ConvertedBuffer) error {
	if e.cmd == nil {
		if err := e.start(); err != nil {
			return err
		}
	}
	return e.stream.Encode(frame)
}

// Close ends the input stream and waits for ffmpeg to finish writing the file.
func (e *ffmpegEncoder) Close() error {
	if e.cmd == nil {
		return nil
	}
	cerr := e.stream.Close()
	gerr := e.g.Wait()
	werr := e.cmd.Wait()
	e.cmd = nil
	switch {
	case werr != nil:
		return fmt.Errorf("ffmpeg exited: %w", werr)
	case cerr != nil:
		return cerr
	case gerr != nil:
		return fmt.Errorf("read ffmpeg output: %w", gerr)
	}
	return nil
}

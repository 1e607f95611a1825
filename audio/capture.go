// Package audio is the device boundary: it pulls PCM from a capture
// command, encodes it to opus for the outbound track, and turns
// inbound opus back into something the platform can play or a file we
// can keep.
package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/charmbracelet/log"
	"gopkg.in/hraban/opus.v2"
)

// ErrPermissionDenied means the capture command could not open the
// microphone. The caller surfaces this to the user; we never retry on
// our own.
var ErrPermissionDenied = errors.New("microphone capture unavailable")

const (
	SampleRate = 48000
	Channels   = 1
	// frameSamples is one 20 ms opus frame at 48 kHz mono.
	frameSamples = 960
	frameBytes   = frameSamples * 2
)

// Frame is one encoded opus packet ready for the outbound track.
type Frame struct {
	Data     []byte
	Duration time.Duration
}

// Capture runs an external recorder command (ffmpeg, arecord, sox)
// that writes s16le 48 kHz mono PCM to stdout, and encodes it into
// 20 ms opus frames.
type Capture struct {
	command []string
	logger  *log.Logger

	cmd    *exec.Cmd
	frames chan Frame
}

func NewCapture(command []string, logger *log.Logger) *Capture {
	return &Capture{
		command: command,
		logger:  logger,
		frames:  make(chan Frame, 50), // one second of audio
	}
}

// Start launches the recorder and begins encoding. A command that
// cannot be started or exits immediately reads as a denied microphone.
func (c *Capture) Start(ctx context.Context) error {
	if len(c.command) == 0 {
		return fmt.Errorf("%w: no capture command configured", ErrPermissionDenied)
	}

	enc, err := opus.NewEncoder(SampleRate, Channels, opus.AppVoIP)
	if err != nil {
		return fmt.Errorf("create opus encoder: %w", err)
	}

	cmd := exec.CommandContext(ctx, c.command[0], c.command[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("capture stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	c.cmd = cmd

	go c.encodeLoop(stdout, enc)

	c.logger.Info("capture started", "cmd", c.command[0])
	return nil
}

func (c *Capture) encodeLoop(stdout io.Reader, enc *opus.Encoder) {
	defer close(c.frames)

	raw := make([]byte, frameBytes)
	pcm := make([]int16, frameSamples)
	packet := make([]byte, 1500)

	for {
		if _, err := io.ReadFull(stdout, raw); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				c.logger.Error("capture read", "error", err)
			}
			return
		}
		for i := range pcm {
			pcm[i] = int16(raw[2*i]) | int16(raw[2*i+1])<<8
		}
		n, err := enc.Encode(pcm, packet)
		if err != nil {
			c.logger.Error("opus encode", "error", err)
			return
		}
		frame := Frame{
			Data:     append([]byte(nil), packet[:n]...),
			Duration: 20 * time.Millisecond,
		}
		select {
		case c.frames <- frame:
		default:
			// Drop rather than stall the device.
		}
	}
}

// Frames is the stream of encoded mic audio. Closed when the recorder
// exits or Stop is called.
func (c *Capture) Frames() <-chan Frame {
	return c.frames
}

// Stop kills the recorder. Safe to call more than once.
func (c *Capture) Stop() {
	if c.cmd != nil && c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
		_ = c.cmd.Wait()
		c.cmd = nil
	}
}

package audio

import (
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/pion/rtp"
	"gopkg.in/hraban/opus.v2"
)

// Sink consumes the remote audio track packet by packet.
type Sink interface {
	WriteRTP(packet *rtp.Packet) error
	Close() error
}

// Playback decodes inbound opus and pipes raw PCM into a player
// command (ffplay, aplay, pacat) reading s16le 48 kHz mono on stdin.
type Playback struct {
	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	dec    *opus.Decoder
	pcm    []int16
	buf    []byte
	logger *log.Logger
	closed bool
}

func NewPlayback(command []string, logger *log.Logger) (*Playback, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("no playback command configured")
	}
	dec, err := opus.NewDecoder(SampleRate, Channels)
	if err != nil {
		return nil, fmt.Errorf("create opus decoder: %w", err)
	}

	cmd := exec.Command(command[0], command[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("playback stdin: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start playback command: %w", err)
	}

	logger.Info("playback started", "cmd", command[0])
	return &Playback{
		cmd:    cmd,
		stdin:  stdin,
		dec:    dec,
		pcm:    make([]int16, frameSamples*4),
		buf:    make([]byte, frameBytes*4),
		logger: logger,
	}, nil
}

func (p *Playback) WriteRTP(packet *rtp.Packet) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}

	n, err := p.dec.Decode(packet.Payload, p.pcm)
	if err != nil {
		// A corrupt packet is a glitch, not a session failure.
		p.logger.Debug("opus decode", "error", err)
		return nil
	}
	for i := 0; i < n; i++ {
		p.buf[2*i] = byte(p.pcm[i])
		p.buf[2*i+1] = byte(p.pcm[i] >> 8)
	}
	if _, err := p.stdin.Write(p.buf[:2*n]); err != nil {
		return fmt.Errorf("write playback pcm: %w", err)
	}
	return nil
}

func (p *Playback) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	_ = p.stdin.Close()
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	return p.cmd.Wait()
}

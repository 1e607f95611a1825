package audio

import (
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
)

// OggWriter is the slice of oggwriter.OggWriter the recorder needs.
type OggWriter interface {
	WriteRTP(packet *rtp.Packet) error
	Close() error
}

// Recorder archives the remote audio track as OGG Opus. Timestamp gaps
// are filled with silent packets so playback stays in sync with wall
// clock.
type Recorder struct {
	writer        OggWriter
	lastTimestamp uint32
	log           *log.Logger
}

func NewRecorder(w io.Writer, log *log.Logger) (*Recorder, error) {
	ogg, err := oggwriter.NewWith(w, SampleRate, Channels)
	if err != nil {
		return nil, fmt.Errorf("create OGG writer: %w", err)
	}
	return &Recorder{writer: ogg, log: log}, nil
}

// NewRecorderWith wraps an existing writer.
func NewRecorderWith(writer OggWriter, log *log.Logger) *Recorder {
	return &Recorder{writer: writer, log: log}
}

func (r *Recorder) WriteRTP(packet *rtp.Packet) error {
	if r.lastTimestamp != 0 {
		gap := int64(packet.Timestamp) - int64(r.lastTimestamp)
		if gap > frameSamples {
			if err := r.insertSilence(gap); err != nil {
				return err
			}
		}
	}

	if err := r.writer.WriteRTP(packet); err != nil {
		return fmt.Errorf("write opus packet: %w", err)
	}
	r.lastTimestamp = packet.Timestamp
	return nil
}

func (r *Recorder) insertSilence(gap int64) error {
	count := gap / frameSamples
	r.log.Debug("inserting silence", "count", count, "gap", gap)
	for j := int64(0); j < count; j++ {
		silent := []byte{0xf8, 0xff, 0xfe}
		err := r.writer.WriteRTP(&rtp.Packet{
			Header: rtp.Header{
				Timestamp: r.lastTimestamp + uint32(j*frameSamples),
			},
			Payload: silent,
		})
		if err != nil {
			return fmt.Errorf("write silent opus packet: %w", err)
		}
	}
	return nil
}

func (r *Recorder) Close() error {
	return r.writer.Close()
}

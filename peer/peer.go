// Package peer owns the underlying peer connection for one voice
// session: the outbound microphone track, the inbound playback track,
// and the ordered reliable data channel that carries event frames.
package peer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/pion/randutil"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"voxline.dev/audio"
	"voxline.dev/provider"
	"voxline.dev/signal"
)

var (
	// ErrChannel means the data channel rejected a write on an
	// otherwise live session.
	ErrChannel = errors.New("data channel write failed")
	// ErrClosed is returned by Send after the session is torn down.
	ErrClosed = errors.New("peer session closed")
)

// Hooks are the session's asynchronous notifications. They are invoked
// on transport goroutines; receivers serialize their own state.
type Hooks struct {
	// Established fires once the data channel is open. sessionID is
	// the provider-assigned identifier from signaling.
	Established func(sessionID string)
	// Message delivers one raw inbound data channel frame.
	Message func(data []byte)
	// Closed fires once when the transport is lost or torn down. err
	// is nil for a deliberate local Close.
	Closed func(err error)
}

// Session is one live peer connection. Create with Dial, release with
// Close.
type Session struct {
	logger  *log.Logger
	pc      *webrtc.PeerConnection
	dc      *webrtc.DataChannel
	capture *audio.Capture
	sinks   []audio.Sink
	hooks   Hooks

	mu     sync.Mutex
	closed bool

	closeHookOnce sync.Once
}

// Dial establishes the whole transport: capture first (microphone
// access is a precondition, checked before any network activity), then
// peer connection, offer, provider handshake, answer. On any failure
// every partially acquired resource is released before the error is
// returned.
func Dial(
	ctx context.Context,
	cfg provider.Config,
	negotiator signal.Negotiator,
	capture *audio.Capture,
	sinks []audio.Sink,
	hooks Hooks,
	logger *log.Logger,
) (*Session, error) {
	if err := capture.Start(ctx); err != nil {
		return nil, err
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		capture.Stop()
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	s := &Session{
		logger:  logger,
		pc:      pc,
		capture: capture,
		sinks:   sinks,
		hooks:   hooks,
	}

	if err := s.setup(ctx, cfg, negotiator); err != nil {
		s.teardown()
		return nil, err
	}
	return s, nil
}

func (s *Session) setup(
	ctx context.Context,
	cfg provider.Config,
	negotiator signal.Negotiator,
) error {
	streamID, err := randutil.GenerateCryptoRandomString(
		16, "abcdefghijklmnopqrstuvwxyz0123456789")
	if err != nil {
		return fmt.Errorf("generate stream id: %w", err)
	}
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeOpus,
			ClockRate: audio.SampleRate,
			Channels:  audio.Channels,
		},
		"audio", "voxline-"+streamID,
	)
	if err != nil {
		return fmt.Errorf("create mic track: %w", err)
	}
	if _, err := s.pc.AddTrack(track); err != nil {
		return fmt.Errorf("add mic track: %w", err)
	}

	dc, err := s.pc.CreateDataChannel("events", nil)
	if err != nil {
		return fmt.Errorf("create data channel: %w", err)
	}
	s.dc = dc

	s.pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		s.logger.Info("remote track", "kind", remote.Kind().String())
		if remote.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		go s.drainRemote(remote)
	})

	s.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		s.logger.Debug("connection state", "state", state.String())
		switch state {
		case webrtc.PeerConnectionStateFailed:
			s.notifyClosed(errors.New("transport failed"))
		case webrtc.PeerConnectionStateDisconnected,
			webrtc.PeerConnectionStateClosed:
			s.notifyClosed(nil)
		}
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if s.hooks.Message != nil {
			s.hooks.Message(msg.Data)
		}
	})

	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	gathered := webrtc.GatheringCompletePromise(s.pc)
	if err := s.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", signal.ErrNetwork, ctx.Err())
	}

	answer, err := negotiator.Negotiate(ctx, cfg, s.pc.LocalDescription().SDP)
	if err != nil {
		return err
	}

	err = s.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answer.SDP,
	})
	if err != nil {
		return fmt.Errorf("%w: answer rejected: %v", signal.ErrProtocol, err)
	}

	dc.OnOpen(func() {
		s.logger.Info("channel open", "session", answer.SessionID)
		go s.pumpMic(track)
		if s.hooks.Established != nil {
			s.hooks.Established(answer.SessionID)
		}
	})

	return nil
}

func (s *Session) pumpMic(track *webrtc.TrackLocalStaticSample) {
	for frame := range s.capture.Frames() {
		err := track.WriteSample(media.Sample{
			Data:     frame.Data,
			Duration: frame.Duration,
		})
		if err != nil {
			s.logger.Error("write mic sample", "error", err)
			return
		}
	}
}

func (s *Session) drainRemote(remote *webrtc.TrackRemote) {
	for {
		packet, _, err := remote.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Debug("remote track read", "error", err)
			}
			return
		}
		for _, sink := range s.sinks {
			if err := sink.WriteRTP(packet); err != nil {
				s.logger.Error("audio sink", "error", err)
			}
		}
	}
}

// Send writes one frame to the data channel.
func (s *Session) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.dc == nil || s.dc.ReadyState() != webrtc.DataChannelStateOpen {
		return fmt.Errorf("%w: channel not open", ErrChannel)
	}
	if err := s.dc.Send(data); err != nil {
		return fmt.Errorf("%w: %v", ErrChannel, err)
	}
	return nil
}

func (s *Session) notifyClosed(err error) {
	s.closeHookOnce.Do(func() {
		if s.hooks.Closed != nil {
			s.hooks.Closed(err)
		}
	})
}

// Close releases the capture, tracks, data channel, and peer
// connection. Safe to call from any state, any number of times.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.teardown()
	s.notifyClosed(nil)
}

func (s *Session) teardown() {
	s.capture.Stop()
	if s.dc != nil {
		_ = s.dc.Close()
	}
	_ = s.pc.Close()
	for _, sink := range s.sinks {
		_ = sink.Close()
	}
}

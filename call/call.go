// Package call is the realtime voice session manager. It drives the
// peer transport through its lifecycle, funnels every asynchronous
// transport notification through one mailbox consumed by a single
// goroutine, and owns the conversation transcript and connection
// status the shell renders.
package call

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"voxline.dev/audio"
	"voxline.dev/etc"
	"voxline.dev/peer"
	"voxline.dev/provider"
	"voxline.dev/signal"
	"voxline.dev/transcript"
	"voxline.dev/wire"
)

var (
	// ErrNotConnected is returned by Send unless the session is live.
	ErrNotConnected = errors.New("not connected")
	// ErrSendBusy means a previous Send has not finished. Messages are
	// not queued; the caller retries.
	ErrSendBusy = errors.New("send already in flight")
)

// Status is the connection lifecycle the shell renders.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

type msgKind int

const (
	msgEstablished msgKind = iota
	msgLost
	msgFrame
	msgLocalTurn
)

type message struct {
	kind      msgKind
	gen       uint64
	sessionID string
	data      []byte
	err       error
	turnID    string
	text      string
}

// Options configure the audio edges of a session. Zero values disable
// the corresponding sink.
type Options struct {
	CaptureCommand  []string
	PlaybackCommand []string
	RecordTo        io.Writer
	Logger          *log.Logger
}

type dialFunc func(ctx context.Context, hooks peer.Hooks) (conn, error)

// conn is the slice of peer.Session the manager needs; tests stub it.
type conn interface {
	Send(data []byte) error
	Close()
}

// Session is one voice conversation with a provider backend. All
// state mutation happens on the mailbox goroutine or under mu; shell
// reads are snapshots.
type Session struct {
	cfg    provider.Config
	logger *log.Logger
	dial   dialFunc

	mailbox chan message
	updates chan struct{}
	done    chan struct{}

	mu        sync.RWMutex
	status    Status
	lastEvent string
	sessionID string
	agg       *transcript.Aggregator
	gen       uint64

	peerMu     sync.Mutex
	peer       conn
	cancelDial context.CancelFunc

	sending   atomic.Bool
	closeOnce sync.Once
}

// New assembles a session for one validated config. The session is
// idle until Connect.
func New(cfg provider.Config, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	s := &Session{
		cfg:     cfg,
		logger:  logger,
		mailbox: make(chan message, 256),
		updates: make(chan struct{}, 1),
		done:    make(chan struct{}),
		agg:     transcript.NewAggregator(),
	}
	s.dial = func(ctx context.Context, hooks peer.Hooks) (conn, error) {
		capture := audio.NewCapture(opts.CaptureCommand, logger.WithPrefix("mic"))
		var sinks []audio.Sink
		if len(opts.PlaybackCommand) > 0 {
			playback, err := audio.NewPlayback(
				opts.PlaybackCommand, logger.WithPrefix("spk"))
			if err != nil {
				return nil, err
			}
			sinks = append(sinks, playback)
		}
		if opts.RecordTo != nil {
			recorder, err := audio.NewRecorder(opts.RecordTo, logger.WithPrefix("rec"))
			if err != nil {
				return nil, err
			}
			sinks = append(sinks, recorder)
		}
		negotiator := signal.ForProfile(cfg.Provider, logger.WithPrefix("sig"))
		return peer.Dial(
			ctx, cfg, negotiator, capture, sinks, hooks,
			logger.WithPrefix("peer"))
	}
	go s.run()
	return s
}

// Connect validates nothing further (the config was validated at
// build time) and drives signaling plus transport establishment.
// Status becomes Connecting before any network activity and Connected
// once the data channel opens. Calling Connect while Connecting or
// Connected is a no-op.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.status != StatusDisconnected {
		current := s.status
		s.mu.Unlock()
		s.logger.Debug("connect ignored", "status", current.String())
		return nil
	}
	s.status = StatusConnecting
	s.gen++
	gen := s.gen
	s.mu.Unlock()
	s.notify()

	dialCtx, cancel := context.WithCancel(ctx)
	s.peerMu.Lock()
	s.cancelDial = cancel
	s.peerMu.Unlock()

	hooks := peer.Hooks{
		Established: func(sessionID string) {
			s.post(message{kind: msgEstablished, gen: gen, sessionID: sessionID})
		},
		Message: func(data []byte) {
			s.post(message{
				kind: msgFrame,
				gen:  gen,
				data: append([]byte(nil), data...),
			})
		},
		Closed: func(err error) {
			s.post(message{kind: msgLost, gen: gen, err: err})
		},
	}

	p, err := s.dial(dialCtx, hooks)
	if err != nil {
		cancel()
		s.peerMu.Lock()
		s.mu.Lock()
		if s.gen == gen {
			s.status = StatusDisconnected
			s.lastEvent = ""
			s.cancelDial = nil
		}
		s.mu.Unlock()
		s.peerMu.Unlock()
		s.notify()
		return err
	}

	// Install only while this attempt is still the current one. A
	// Disconnect that raced the tail of the dial already advanced the
	// generation; its transport must be released without touching the
	// slot a successor may occupy.
	s.peerMu.Lock()
	s.mu.RLock()
	current := s.gen == gen
	s.mu.RUnlock()
	if current {
		s.peer = p
	}
	s.peerMu.Unlock()

	if !current {
		p.Close()
	}
	return nil
}

// Disconnect aborts any in-flight negotiation, releases the
// transport, and settles on Disconnected. The transcript survives;
// only Reset discards it. Safe from any state.
func (s *Session) Disconnect() {
	// Advance the generation first so a dial still in flight sees
	// itself stale before it can install its transport.
	s.mu.Lock()
	s.gen++
	changed := s.status != StatusDisconnected
	s.status = StatusDisconnected
	s.lastEvent = ""
	s.mu.Unlock()

	s.peerMu.Lock()
	if s.cancelDial != nil {
		s.cancelDial()
		s.cancelDial = nil
	}
	p := s.peer
	s.peer = nil
	s.peerMu.Unlock()

	if p != nil {
		p.Close()
	}

	if changed {
		s.logger.Info("disconnected")
	}
	s.notify()
}

// Send encodes one user-authored message and writes it to the data
// channel. Exactly one send may be in flight; concurrent calls get
// ErrSendBusy rather than silently queueing.
func (s *Session) Send(text string) error {
	s.mu.RLock()
	status := s.status
	s.mu.RUnlock()
	if status != StatusConnected {
		return ErrNotConnected
	}

	if !s.sending.CompareAndSwap(false, true) {
		return ErrSendBusy
	}
	defer s.sending.Store(false)

	frame, err := wire.EncodeTextInput(text)
	if err != nil {
		return err
	}

	s.peerMu.Lock()
	p := s.peer
	s.peerMu.Unlock()
	if p == nil {
		return ErrNotConnected
	}
	if err := p.Send(frame); err != nil {
		return err
	}

	s.mu.RLock()
	gen := s.gen
	s.mu.RUnlock()
	s.post(message{
		kind:   msgLocalTurn,
		gen:    gen,
		turnID: etc.NewFreshID(),
		text:   text,
	})
	return nil
}

// Reset discards the transcript. The shell calls this when the user
// starts a fresh conversation; disconnects never do it implicitly.
func (s *Session) Reset() {
	s.mu.Lock()
	s.agg.Reset()
	s.mu.Unlock()
	s.notify()
}

// Close stops the mailbox goroutine after disconnecting.
func (s *Session) Close() {
	s.Disconnect()
	s.closeOnce.Do(func() { close(s.done) })
}

// Status reports the current connection state.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// LastEventType is the wire label of the most recently decoded event,
// empty while disconnected.
func (s *Session) LastEventType() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastEvent
}

// SessionID is the provider-assigned identifier, empty until
// established.
func (s *Session) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID
}

// Conversation is a snapshot of the transcript in first-seen turn
// order.
func (s *Session) Conversation() []transcript.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.agg.Snapshot()
}

// Updates ticks after every observable state change. Shells drain it
// to know when to re-render; missing a tick only delays a repaint.
func (s *Session) Updates() <-chan struct{} {
	return s.updates
}

func (s *Session) post(m message) {
	select {
	case s.mailbox <- m:
	case <-s.done:
	}
}

func (s *Session) notify() {
	select {
	case s.updates <- struct{}{}:
	default:
	}
}

// run is the single consumer of transport notifications. Because only
// this goroutine applies established/lost/frame messages, transcript
// and status updates can never interleave.
func (s *Session) run() {
	for {
		select {
		case <-s.done:
			return
		case m := <-s.mailbox:
			s.apply(m)
		}
	}
}

func (s *Session) apply(m message) {
	s.mu.Lock()
	defer func() {
		s.mu.Unlock()
		s.notify()
	}()

	if m.gen != s.gen {
		// Notification from a torn-down transport; a stale
		// "established" must not resurrect the session.
		return
	}

	switch m.kind {
	case msgEstablished:
		if s.status != StatusConnecting {
			return
		}
		s.status = StatusConnected
		s.sessionID = m.sessionID
		s.logger.Info("connected", "session", m.sessionID)

	case msgLost:
		if s.status == StatusDisconnected {
			return
		}
		s.status = StatusDisconnected
		s.lastEvent = ""
		if m.err != nil {
			s.logger.Error("connection lost", "error", m.err)
		}

	case msgFrame:
		s.applyFrame(m.data)

	case msgLocalTurn:
		s.agg.Append(m.turnID, wire.RoleUser, m.text)
	}
}

func (s *Session) applyFrame(data []byte) {
	ev, err := wire.Decode(data)
	if err != nil {
		// Malformed frames are logged and dropped; they never touch
		// the transcript or the connection.
		s.logger.Warn("dropping frame", "error", err)
		return
	}
	s.lastEvent = ev.TypeLabel()

	switch ev := ev.(type) {
	case wire.TranscriptDelta:
		s.agg.ApplyDelta(ev)
	case wire.TranscriptDone:
		s.agg.ApplyDone(ev)
	case wire.SessionEstablished:
		if ev.SessionID != "" {
			s.sessionID = ev.SessionID
		}
	case wire.StatusChanged:
		s.logger.Debug("provider status", "status", ev.Status)
	case wire.ErrorEvent:
		s.logger.Error("provider error", "code", ev.Code, "detail", ev.Detail)
	case wire.Unknown:
		s.logger.Debug("unknown event", "type", ev.RawType)
	}
}

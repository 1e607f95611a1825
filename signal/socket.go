package signal

import (
	"context"
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"voxline.dev/provider"
)

// SocketNegotiator handshakes with providers that signal over a
// short-lived websocket: dial, send the offer frame, read the answer
// frame, hang up. The socket never outlives the handshake; media and
// events ride the peer connection afterwards.
type SocketNegotiator struct {
	dialer *websocket.Dialer
	logger *log.Logger
}

func NewSocketNegotiator(logger *log.Logger) *SocketNegotiator {
	return &SocketNegotiator{
		dialer: websocket.DefaultDialer,
		logger: logger,
	}
}

type offerFrame struct {
	Type         string `json:"type"`
	SDP          string `json:"sdp"`
	Model        string `json:"model"`
	Voice        string `json:"voice"`
	Instructions string `json:"instructions,omitempty"`
}

type answerFrame struct {
	Type      string `json:"type"`
	SDP       string `json:"sdp"`
	SessionID string `json:"session_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

func (n *SocketNegotiator) Negotiate(
	ctx context.Context,
	cfg provider.Config,
	offerSDP string,
) (Answer, error) {
	ctx, cancel := context.WithTimeout(ctx, NegotiateTimeout)
	defer cancel()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+cfg.APIKey)

	conn, resp, err := n.dialer.DialContext(ctx, cfg.Provider.RealtimeURL, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized ||
			resp.StatusCode == http.StatusForbidden) {
			return Answer{}, fmt.Errorf("%w (status %d)", ErrAuth, resp.StatusCode)
		}
		return Answer{}, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
		_ = conn.SetWriteDeadline(deadline)
	}

	err = conn.WriteJSON(offerFrame{
		Type:         "offer",
		SDP:          offerSDP,
		Model:        cfg.Model,
		Voice:        cfg.Voice,
		Instructions: cfg.System,
	})
	if err != nil {
		return Answer{}, fmt.Errorf("%w: send offer: %v", ErrNetwork, err)
	}

	var frame answerFrame
	if err := conn.ReadJSON(&frame); err != nil {
		if websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
			return Answer{}, fmt.Errorf("%w: closed during handshake", ErrAuth)
		}
		return Answer{}, fmt.Errorf("%w: read answer: %v", ErrNetwork, err)
	}

	switch frame.Type {
	case "answer":
		if frame.SDP == "" {
			return Answer{}, fmt.Errorf("%w: answer without sdp", ErrProtocol)
		}
		n.logger.Debug("answer received", "session", frame.SessionID)
		return Answer{SDP: frame.SDP, SessionID: frame.SessionID}, nil
	case "error":
		if frame.Code == "auth_error" {
			return Answer{}, fmt.Errorf("%w: %s", ErrAuth, frame.Message)
		}
		return Answer{}, fmt.Errorf("%w: %s: %s", ErrProtocol, frame.Code, frame.Message)
	default:
		return Answer{}, fmt.Errorf("%w: unexpected frame %q", ErrProtocol, frame.Type)
	}
}

// Package signal performs the out-of-band handshake that turns a
// session config into the answer the peer connection needs: minting an
// ephemeral token where the provider requires one and exchanging the
// SDP offer for the provider's answer.
package signal

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"

	"voxline.dev/provider"
)

var (
	// ErrAuth means the provider rejected the credentials. Not worth
	// retrying until the user fixes the key.
	ErrAuth = errors.New("provider rejected credentials")
	// ErrNetwork covers unreachable endpoints and timeouts during the
	// handshake.
	ErrNetwork = errors.New("signaling transport failure")
	// ErrProtocol means the provider answered with something we could
	// not interpret.
	ErrProtocol = errors.New("malformed signaling response")
)

// NegotiateTimeout bounds one whole handshake. Callers may impose a
// tighter deadline through the context.
const NegotiateTimeout = 15 * time.Second

// Answer is everything a successful handshake yields.
type Answer struct {
	SDP       string
	SessionID string
}

// Negotiator is a provider-specific handshake strategy. One peer
// session drives exactly one Negotiate call at a time.
type Negotiator interface {
	Negotiate(ctx context.Context, cfg provider.Config, offerSDP string) (Answer, error)
}

// ForProfile picks the handshake strategy a profile requires.
func ForProfile(p provider.Profile, logger *log.Logger) Negotiator {
	switch p.Scheme {
	case provider.SignalSocket:
		return NewSocketNegotiator(logger)
	default:
		return NewHTTPNegotiator(logger)
	}
}

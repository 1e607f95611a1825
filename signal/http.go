package signal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/charmbracelet/log"

	"voxline.dev/provider"
)

// HTTPNegotiator handshakes with providers that take the offer over
// plain HTTPS: first mint an ephemeral session token, then trade the
// offer SDP for the answer SDP.
type HTTPNegotiator struct {
	client *http.Client
	logger *log.Logger
}

func NewHTTPNegotiator(logger *log.Logger) *HTTPNegotiator {
	return &HTTPNegotiator{
		client: &http.Client{},
		logger: logger,
	}
}

type sessionRequest struct {
	Model        string `json:"model"`
	Voice        string `json:"voice"`
	Instructions string `json:"instructions,omitempty"`
}

type sessionResponse struct {
	ID           string `json:"id"`
	ClientSecret struct {
		Value string `json:"value"`
	} `json:"client_secret"`
}

func (n *HTTPNegotiator) Negotiate(
	ctx context.Context,
	cfg provider.Config,
	offerSDP string,
) (Answer, error) {
	ctx, cancel := context.WithTimeout(ctx, NegotiateTimeout)
	defer cancel()

	token, sessionID, err := n.mintToken(ctx, cfg)
	if err != nil {
		return Answer{}, err
	}
	n.logger.Debug("session token minted", "session", sessionID)

	answerSDP, err := n.exchangeOffer(ctx, cfg, token, offerSDP)
	if err != nil {
		return Answer{}, err
	}

	return Answer{SDP: answerSDP, SessionID: sessionID}, nil
}

func (n *HTTPNegotiator) mintToken(
	ctx context.Context,
	cfg provider.Config,
) (token, sessionID string, err error) {
	body, err := json.Marshal(sessionRequest{
		Model:        cfg.Model,
		Voice:        cfg.Voice,
		Instructions: cfg.System,
	})
	if err != nil {
		return "", "", fmt.Errorf("encode session request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, cfg.Provider.SessionURL, bytes.NewReader(body))
	if err != nil {
		return "", "", fmt.Errorf("build session request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return "", "", err
	}

	var sr sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return "", "", fmt.Errorf("%w: session response: %v", ErrProtocol, err)
	}
	if sr.ClientSecret.Value == "" {
		return "", "", fmt.Errorf("%w: session response without client secret", ErrProtocol)
	}
	return sr.ClientSecret.Value, sr.ID, nil
}

func (n *HTTPNegotiator) exchangeOffer(
	ctx context.Context,
	cfg provider.Config,
	token, offerSDP string,
) (string, error) {
	url := cfg.Provider.RealtimeURL + "?model=" + cfg.Model
	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, url, bytes.NewReader([]byte(offerSDP)))
	if err != nil {
		return "", fmt.Errorf("build offer request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/sdp")

	resp, err := n.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return "", err
	}

	answer, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	if len(answer) == 0 {
		return "", fmt.Errorf("%w: empty answer", ErrProtocol)
	}
	return string(answer), nil
}

func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w (status %d)", ErrAuth, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%w: unexpected status %d", ErrProtocol, resp.StatusCode)
	}
	return nil
}

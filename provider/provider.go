// Package provider holds the static descriptors of the realtime voice
// backends voxline can talk to, and validates session configuration
// against them before any network activity happens.
package provider

import (
	"errors"
	"fmt"
	"slices"

	"github.com/charmbracelet/log"
)

var (
	ErrUnknownProvider  = errors.New("unknown provider")
	ErrInvalidSelection = errors.New("invalid model or voice selection")
	ErrMissingAPIKey    = errors.New("missing api key")
)

// SignalScheme selects the negotiation strategy a profile requires.
type SignalScheme string

const (
	// SignalHTTP exchanges the connection offer and answer over plain
	// HTTPS requests, after minting a short-lived session token.
	SignalHTTP SignalScheme = "http"
	// SignalSocket exchanges the offer and answer over a short-lived
	// websocket to the provider's signaling endpoint.
	SignalSocket SignalScheme = "socket"
)

// Profile is the compiled-in descriptor of one backend. Profiles are
// immutable; Resolve hands out copies of registry entries.
type Profile struct {
	ID            string
	DefaultModel  string
	DefaultVoice  string
	DefaultSystem string
	AllowedModels []string
	AllowedVoices []string

	// SessionURL mints ephemeral session tokens (http scheme only).
	SessionURL string
	// RealtimeURL receives the connection offer.
	RealtimeURL string
	Scheme      SignalScheme
}

var registry = []Profile{
	{
		ID:            "openai",
		DefaultModel:  "gpt-4o-realtime-preview",
		DefaultVoice:  "alloy",
		DefaultSystem: "You are a helpful voice assistant. Keep answers short and conversational.",
		AllowedModels: []string{
			"gpt-4o-realtime-preview",
			"gpt-4o-mini-realtime-preview",
		},
		AllowedVoices: []string{"alloy", "ash", "coral", "echo", "sage", "verse"},
		SessionURL:    "https://api.openai.com/v1/realtime/sessions",
		RealtimeURL:   "https://api.openai.com/v1/realtime",
		Scheme:        SignalHTTP,
	},
	{
		ID:            "outspeed",
		DefaultModel:  "outspeed-v1",
		DefaultVoice:  "david",
		DefaultSystem: "You are a helpful voice assistant.",
		AllowedModels: []string{"outspeed-v1", "outspeed-v1-mini"},
		AllowedVoices: []string{"david", "sarah", "maya"},
		RealtimeURL:   "wss://api.outspeed.com/v1/realtime",
		Scheme:        SignalSocket,
	},
}

const defaultProviderID = "openai"

// IDs lists the registered provider ids in registry order.
func IDs() []string {
	ids := make([]string, len(registry))
	for i, p := range registry {
		ids[i] = p.ID
	}
	return ids
}

// All returns copies of every registered profile, in registry order.
func All() []Profile {
	return slices.Clone(registry)
}

// Resolve maps a provider id to its profile. Unrecognized ids are an
// error; there is no silent fallback.
func Resolve(id string) (Profile, error) {
	for _, p := range registry {
		if p.ID == id {
			return p, nil
		}
	}
	return Profile{}, fmt.Errorf("%w: %q", ErrUnknownProvider, id)
}

// ResolveOrDefault resolves id, falling back to the default provider
// when the id is not recognized. The fallback is logged so a
// misconfigured provider name never passes unnoticed. An empty id
// means "not specified" and selects the default quietly.
func ResolveOrDefault(id string, logger *log.Logger) Profile {
	if id == "" {
		p, _ := Resolve(defaultProviderID)
		return p
	}
	p, err := Resolve(id)
	if err != nil {
		logger.Warn(
			"unknown provider, using default",
			"requested", id,
			"default", defaultProviderID,
		)
		p, _ = Resolve(defaultProviderID)
	}
	return p
}

// Config is the assembled connection request for one session. It is
// immutable for the session's lifetime.
type Config struct {
	Provider Profile
	APIKey   string
	Model    string
	Voice    string
	System   string
}

// BuildConfig validates the selection against the profile's allowed
// lists. Empty model, voice, or system select the profile defaults.
func BuildConfig(p Profile, apiKey, model, voice, system string) (Config, error) {
	if apiKey == "" {
		return Config{}, fmt.Errorf("%w for provider %q", ErrMissingAPIKey, p.ID)
	}
	if model == "" {
		model = p.DefaultModel
	}
	if voice == "" {
		voice = p.DefaultVoice
	}
	if system == "" {
		system = p.DefaultSystem
	}
	if !slices.Contains(p.AllowedModels, model) {
		return Config{}, fmt.Errorf(
			"%w: model %q not offered by %q", ErrInvalidSelection, model, p.ID)
	}
	if !slices.Contains(p.AllowedVoices, voice) {
		return Config{}, fmt.Errorf(
			"%w: voice %q not offered by %q", ErrInvalidSelection, voice, p.ID)
	}
	return Config{
		Provider: p,
		APIKey:   apiKey,
		Model:    model,
		Voice:    voice,
		System:   system,
	}, nil
}

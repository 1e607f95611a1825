// Package wire encodes and decodes the JSON event frames carried on
// the session's data channel. Decoding is strict about the type
// discriminator and lenient about everything else: unknown fields are
// ignored and unknown types come back as Unknown so a newer backend
// never kills an older client.
package wire

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role identifies the speaker of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// NormalizeRole folds the role spellings seen across backends into the
// two canonical values. Unrecognized roles default to assistant, since
// every remote-authored turn we have seen without a clean role label
// was model output.
func NormalizeRole(raw string) Role {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "user", "human":
		return RoleUser
	case "assistant", "ai", "agent", "model":
		return RoleAssistant
	default:
		return RoleAssistant
	}
}

// Event is one decoded inbound frame. Exactly one implementation per
// recognized type discriminator.
type Event interface {
	// TypeLabel is the wire discriminator, kept for diagnostics.
	TypeLabel() string
}

type SessionEstablished struct {
	SessionID string
}

func (SessionEstablished) TypeLabel() string { return "session_established" }

type TranscriptDelta struct {
	TurnID string
	Role   Role
	Text   string
}

func (TranscriptDelta) TypeLabel() string { return "transcript_delta" }

type TranscriptDone struct {
	TurnID string
	Role   Role
	Text   string
}

func (TranscriptDone) TypeLabel() string { return "transcript_done" }

type StatusChanged struct {
	Status string
}

func (StatusChanged) TypeLabel() string { return "status_changed" }

type ErrorEvent struct {
	Code   string
	Detail string
}

func (ErrorEvent) TypeLabel() string { return "error" }

type Unknown struct {
	RawType string
}

func (u Unknown) TypeLabel() string { return u.RawType }

// DecodeError reports a frame that could not be interpreted at all.
// Callers log and drop these; they never terminate the session.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode frame: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("decode frame: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

type envelope struct {
	Type string `json:"type"`
}

type transcriptFrame struct {
	TurnID string `json:"turnId"`
	Role   string `json:"role"`
	Text   string `json:"text"`
}

type establishedFrame struct {
	SessionID string `json:"sessionId"`
}

type statusFrame struct {
	Status string `json:"status"`
}

type errorFrame struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

// Decode interprets one inbound data channel frame.
func Decode(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &DecodeError{Reason: "unparseable json", Err: err}
	}
	typ := strings.TrimSpace(env.Type)
	if typ == "" {
		return nil, &DecodeError{Reason: "missing type"}
	}

	switch typ {
	case "session_established", "session.created":
		var f establishedFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, &DecodeError{Reason: "bad session_established frame", Err: err}
		}
		return SessionEstablished{SessionID: f.SessionID}, nil
	case "transcript_delta":
		var f transcriptFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, &DecodeError{Reason: "bad transcript_delta frame", Err: err}
		}
		if f.TurnID == "" {
			return nil, &DecodeError{Reason: "transcript_delta without turnId"}
		}
		return TranscriptDelta{
			TurnID: f.TurnID,
			Role:   NormalizeRole(f.Role),
			Text:   f.Text,
		}, nil
	case "transcript_done":
		var f transcriptFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, &DecodeError{Reason: "bad transcript_done frame", Err: err}
		}
		if f.TurnID == "" {
			return nil, &DecodeError{Reason: "transcript_done without turnId"}
		}
		return TranscriptDone{
			TurnID: f.TurnID,
			Role:   NormalizeRole(f.Role),
			Text:   f.Text,
		}, nil
	case "status_changed":
		var f statusFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, &DecodeError{Reason: "bad status_changed frame", Err: err}
		}
		return StatusChanged{Status: f.Status}, nil
	case "error":
		var f errorFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, &DecodeError{Reason: "bad error frame", Err: err}
		}
		return ErrorEvent{Code: f.Code, Detail: f.Detail}, nil
	default:
		return Unknown{RawType: typ}, nil
	}
}

type textInputFrame struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// EncodeTextInput builds the outbound frame for a user-authored
// message.
func EncodeTextInput(text string) ([]byte, error) {
	return json.Marshal(textInputFrame{Type: "text_input", Text: text})
}

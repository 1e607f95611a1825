package wire

import (
	"errors"
	"testing"
)

func TestDecodeRecognizedFrames(t *testing.T) {
	t.Run("session established", func(t *testing.T) {
		ev, err := Decode([]byte(`{"type":"session_established","sessionId":"sess_1"}`))
		if err != nil {
			t.Fatalf("Failed to decode: %v", err)
		}
		got, ok := ev.(SessionEstablished)
		if !ok {
			t.Fatalf("Expected SessionEstablished, got %T", ev)
		}
		if got.SessionID != "sess_1" {
			t.Errorf("Expected session ID sess_1, got %q", got.SessionID)
		}
	})

	t.Run("session established with dotted alias", func(t *testing.T) {
		ev, err := Decode([]byte(`{"type":"session.created","sessionId":"sess_2"}`))
		if err != nil {
			t.Fatalf("Failed to decode: %v", err)
		}
		if _, ok := ev.(SessionEstablished); !ok {
			t.Fatalf("Expected SessionEstablished, got %T", ev)
		}
	})

	t.Run("transcript delta", func(t *testing.T) {
		ev, err := Decode([]byte(`{"type":"transcript_delta","turnId":"t1","role":"ai","text":"Hel"}`))
		if err != nil {
			t.Fatalf("Failed to decode: %v", err)
		}
		got, ok := ev.(TranscriptDelta)
		if !ok {
			t.Fatalf("Expected TranscriptDelta, got %T", ev)
		}
		if got.TurnID != "t1" {
			t.Errorf("Expected turn t1, got %q", got.TurnID)
		}
		if got.Role != RoleAssistant {
			t.Errorf("Expected role assistant, got %q", got.Role)
		}
		if got.Text != "Hel" {
			t.Errorf("Expected text Hel, got %q", got.Text)
		}
	})

	t.Run("transcript done", func(t *testing.T) {
		ev, err := Decode([]byte(`{"type":"transcript_done","turnId":"t1","role":"assistant","text":"Hello there"}`))
		if err != nil {
			t.Fatalf("Failed to decode: %v", err)
		}
		got, ok := ev.(TranscriptDone)
		if !ok {
			t.Fatalf("Expected TranscriptDone, got %T", ev)
		}
		if got.Text != "Hello there" {
			t.Errorf("Expected final text, got %q", got.Text)
		}
	})

	t.Run("status changed", func(t *testing.T) {
		ev, err := Decode([]byte(`{"type":"status_changed","status":"listening"}`))
		if err != nil {
			t.Fatalf("Failed to decode: %v", err)
		}
		got, ok := ev.(StatusChanged)
		if !ok {
			t.Fatalf("Expected StatusChanged, got %T", ev)
		}
		if got.Status != "listening" {
			t.Errorf("Expected status listening, got %q", got.Status)
		}
	})

	t.Run("error", func(t *testing.T) {
		ev, err := Decode([]byte(`{"type":"error","code":"rate_limited","detail":"slow down"}`))
		if err != nil {
			t.Fatalf("Failed to decode: %v", err)
		}
		got, ok := ev.(ErrorEvent)
		if !ok {
			t.Fatalf("Expected ErrorEvent, got %T", ev)
		}
		if got.Code != "rate_limited" {
			t.Errorf("Expected code rate_limited, got %q", got.Code)
		}
	})
}

func TestDecodeUnknownType(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"response.audio.done","foo":1}`))
	if err != nil {
		t.Fatalf("Unknown types must not error: %v", err)
	}
	got, ok := ev.(Unknown)
	if !ok {
		t.Fatalf("Expected Unknown, got %T", ev)
	}
	if got.RawType != "response.audio.done" {
		t.Errorf("Expected raw type preserved, got %q", got.RawType)
	}
}

func TestDecodeExtraFieldsIgnored(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"transcript_delta","turnId":"t1","text":"x","latencyMs":12,"nested":{"a":1}}`))
	if err != nil {
		t.Fatalf("Extra fields must be ignored: %v", err)
	}
	if _, ok := ev.(TranscriptDelta); !ok {
		t.Fatalf("Expected TranscriptDelta, got %T", ev)
	}
}

func TestDecodeMalformedFrames(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"not json", `{{{`},
		{"missing type", `{"text":"hi"}`},
		{"empty type", `{"type":""}`},
		{"delta without turn id", `{"type":"transcript_delta","text":"x"}`},
		{"done without turn id", `{"type":"transcript_done","text":"x"}`},
		{"type not a string", `{"type":42}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.data))
			if err == nil {
				t.Fatal("Expected a decode error")
			}
			var decodeErr *DecodeError
			if !errors.As(err, &decodeErr) {
				t.Errorf("Expected DecodeError, got %T", err)
			}
		})
	}
}

func TestNormalizeRole(t *testing.T) {
	cases := []struct {
		raw  string
		want Role
	}{
		{"user", RoleUser},
		{"User", RoleUser},
		{"human", RoleUser},
		{"assistant", RoleAssistant},
		{"ai", RoleAssistant},
		{"agent", RoleAssistant},
		{"model", RoleAssistant},
		{" MODEL ", RoleAssistant},
		{"", RoleAssistant},
		{"narrator", RoleAssistant},
	}

	for _, tc := range cases {
		if got := NormalizeRole(tc.raw); got != tc.want {
			t.Errorf("NormalizeRole(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestEncodeTextInput(t *testing.T) {
	data, err := EncodeTextInput(`he said "hi"`)
	if err != nil {
		t.Fatalf("Failed to encode: %v", err)
	}
	want := `{"type":"text_input","text":"he said \"hi\""}`
	if string(data) != want {
		t.Errorf("Expected %s, got %s", want, data)
	}
}

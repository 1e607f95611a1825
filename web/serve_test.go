package web

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/charmbracelet/log"

	"voxline.dev/call"
	"voxline.dev/provider"
)

func testSession(t *testing.T) *call.Session {
	t.Helper()
	profile, err := provider.Resolve("openai")
	if err != nil {
		t.Fatalf("Failed to resolve provider: %v", err)
	}
	cfg, err := provider.BuildConfig(profile, "sk-test", "", "", "")
	if err != nil {
		t.Fatalf("Failed to build config: %v", err)
	}
	s := call.New(cfg, call.Options{Logger: log.New(io.Discard)})
	t.Cleanup(s.Close)
	return s
}

func TestStatusEndpoint(t *testing.T) {
	session := testSession(t)
	srv := httptest.NewServer(Router(session))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("Failed to fetch status: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected application/json, got %q", ct)
	}

	var view struct {
		Status string `json:"status"`
		Turns  int    `json:"turns"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if view.Status != "disconnected" {
		t.Errorf("Expected disconnected, got %q", view.Status)
	}
	if view.Turns != 0 {
		t.Errorf("Expected 0 turns, got %d", view.Turns)
	}
}

func TestConversationEndpoint(t *testing.T) {
	session := testSession(t)
	srv := httptest.NewServer(Router(session))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/conversation")
	if err != nil {
		t.Fatalf("Failed to fetch conversation: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}
	if string(body) != "[]\n" {
		t.Errorf("Expected empty array, got %q", body)
	}
}

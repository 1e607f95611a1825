// Package web exposes the live session as JSON over HTTP, for
// debugging and for remote shells that cannot attach a TUI.
package web

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"voxline.dev/call"
	"voxline.dev/transcript"
)

type statusView struct {
	Status        string `json:"status"`
	SessionID     string `json:"sessionId,omitempty"`
	LastEventType string `json:"lastEventType,omitempty"`
	Turns         int    `json:"turns"`
}

type turnView struct {
	ID    string `json:"id"`
	Role  string `json:"role"`
	Text  string `json:"text"`
	Phase string `json:"phase"`
}

// Router builds the debug routes over one session. Snapshots only;
// nothing here can mutate the call.
func Router(session *call.Session) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, statusView{
			Status:        session.Status().String(),
			SessionID:     session.SessionID(),
			LastEventType: session.LastEventType(),
			Turns:         len(session.Conversation()),
		})
	})

	r.Get("/conversation", func(w http.ResponseWriter, req *http.Request) {
		turns := session.Conversation()
		views := make([]turnView, 0, len(turns))
		for _, t := range turns {
			views = append(views, turnView{
				ID:    t.ID,
				Role:  string(t.Role),
				Text:  t.Text,
				Phase: phaseLabel(t.Phase),
			})
		}
		writeJSON(w, views)
	})

	return r
}

func phaseLabel(p transcript.Phase) string {
	if p == transcript.Finalized {
		return "finalized"
	}
	return "streaming"
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encode failed", http.StatusInternalServerError)
	}
}

// Serve blocks on the listener.
func Serve(session *call.Session, port int, logger *log.Logger) error {
	logger.Info("http", "url", fmt.Sprintf("http://localhost:%d", port))
	return http.ListenAndServe(fmt.Sprintf(":%d", port), Router(session))
}

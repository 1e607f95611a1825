// Package transcript assembles the ordered conversation from streamed
// delta and done events. It is a pure state machine; the call package
// serializes access to it.
package transcript

import (
	"voxline.dev/wire"
)

// Phase is the per-turn lifecycle: a turn streams until its final text
// arrives, then it is immutable.
type Phase int

const (
	Streaming Phase = iota
	Finalized
)

// Turn is one contiguous utterance. Text grows while Streaming and is
// replaced wholesale by the done event's final text.
type Turn struct {
	ID    string
	Role  wire.Role
	Text  string
	Phase Phase
}

// Aggregator keeps turns in first-seen order. Not safe for concurrent
// use; the owner serializes mutations.
type Aggregator struct {
	order []string
	turns map[string]*Turn
}

func NewAggregator() *Aggregator {
	return &Aggregator{turns: make(map[string]*Turn)}
}

// ApplyDelta appends a text fragment to the turn, creating it on first
// sight. Fragments for a finalized turn are stale duplicates and are
// dropped.
func (a *Aggregator) ApplyDelta(ev wire.TranscriptDelta) {
	t, ok := a.turns[ev.TurnID]
	if !ok {
		a.insert(&Turn{
			ID:    ev.TurnID,
			Role:  ev.Role,
			Text:  ev.Text,
			Phase: Streaming,
		})
		return
	}
	if t.Phase == Finalized {
		return
	}
	t.Text += ev.Text
}

// ApplyDone sets the turn's authoritative final text, replacing any
// accumulated fragments, and finalizes it. Applying the same done
// event twice is a no-op.
func (a *Aggregator) ApplyDone(ev wire.TranscriptDone) {
	t, ok := a.turns[ev.TurnID]
	if !ok {
		a.insert(&Turn{
			ID:    ev.TurnID,
			Role:  ev.Role,
			Text:  ev.Text,
			Phase: Finalized,
		})
		return
	}
	if t.Phase == Finalized {
		return
	}
	t.Text = ev.Text
	t.Phase = Finalized
}

// Append records a locally-authored turn, already final. Used for the
// user's own text messages so they appear in the conversation without
// a round trip.
func (a *Aggregator) Append(id string, role wire.Role, text string) {
	if _, ok := a.turns[id]; ok {
		return
	}
	a.insert(&Turn{ID: id, Role: role, Text: text, Phase: Finalized})
}

func (a *Aggregator) insert(t *Turn) {
	a.order = append(a.order, t.ID)
	a.turns[t.ID] = t
}

// Snapshot copies the conversation in first-seen order.
func (a *Aggregator) Snapshot() []Turn {
	out := make([]Turn, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, *a.turns[id])
	}
	return out
}

// Len reports the number of turns.
func (a *Aggregator) Len() int { return len(a.order) }

// Reset discards all turns. Only the shell decides when history goes;
// disconnects never call this implicitly.
func (a *Aggregator) Reset() {
	a.order = nil
	clear(a.turns)
}

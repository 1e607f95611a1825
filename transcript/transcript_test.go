package transcript

import (
	"testing"

	"voxline.dev/wire"
)

func delta(id, text string) wire.TranscriptDelta {
	return wire.TranscriptDelta{TurnID: id, Role: wire.RoleAssistant, Text: text}
}

func done(id, text string) wire.TranscriptDone {
	return wire.TranscriptDone{TurnID: id, Role: wire.RoleAssistant, Text: text}
}

func TestDeltaAccumulation(t *testing.T) {
	a := NewAggregator()
	a.ApplyDelta(delta("t1", "Hel"))
	a.ApplyDelta(delta("t1", "lo "))
	a.ApplyDelta(delta("t1", "there"))

	turns := a.Snapshot()
	if len(turns) != 1 {
		t.Fatalf("Expected 1 turn, got %d", len(turns))
	}
	if turns[0].Text != "Hello there" {
		t.Errorf("Expected concatenated text, got %q", turns[0].Text)
	}
	if turns[0].Phase != Streaming {
		t.Errorf("Expected turn still streaming")
	}
}

func TestDoneReplacesAccumulatedText(t *testing.T) {
	a := NewAggregator()
	a.ApplyDelta(delta("t1", "Hel"))
	a.ApplyDelta(delta("t1", "lo"))
	a.ApplyDone(done("t1", "Hello there"))

	turns := a.Snapshot()
	if turns[0].Text != "Hello there" {
		t.Errorf("Final text must win, got %q", turns[0].Text)
	}
	if turns[0].Phase != Finalized {
		t.Errorf("Expected turn finalized")
	}
}

func TestDoneIsIdempotent(t *testing.T) {
	a := NewAggregator()
	a.ApplyDone(done("t1", "final"))
	a.ApplyDone(done("t1", "other final"))

	turns := a.Snapshot()
	if len(turns) != 1 {
		t.Fatalf("Expected 1 turn, got %d", len(turns))
	}
	if turns[0].Text != "final" {
		t.Errorf("Second done must be a no-op, got %q", turns[0].Text)
	}
}

func TestStaleDeltaAfterDoneDropped(t *testing.T) {
	a := NewAggregator()
	a.ApplyDone(done("t1", "final"))
	a.ApplyDelta(delta("t1", " trailing"))

	turns := a.Snapshot()
	if turns[0].Text != "final" {
		t.Errorf("Delta after done must be dropped, got %q", turns[0].Text)
	}
}

func TestDoneWithoutPriorDeltas(t *testing.T) {
	a := NewAggregator()
	a.ApplyDone(done("t1", "all at once"))

	turns := a.Snapshot()
	if len(turns) != 1 {
		t.Fatalf("Expected 1 turn, got %d", len(turns))
	}
	if turns[0].Phase != Finalized {
		t.Errorf("Expected turn finalized immediately")
	}
}

func TestFirstSeenOrder(t *testing.T) {
	a := NewAggregator()
	a.ApplyDelta(delta("t1", "first"))
	a.ApplyDelta(delta("t2", "second"))
	a.ApplyDone(done("t1", "first final"))
	a.ApplyDelta(delta("t3", "third"))
	a.ApplyDone(done("t2", "second final"))

	turns := a.Snapshot()
	wantOrder := []string{"t1", "t2", "t3"}
	if len(turns) != len(wantOrder) {
		t.Fatalf("Expected %d turns, got %d", len(wantOrder), len(turns))
	}
	for i, id := range wantOrder {
		if turns[i].ID != id {
			t.Errorf("Position %d: expected %s, got %s", i, id, turns[i].ID)
		}
	}
}

func TestInterleavedTurns(t *testing.T) {
	a := NewAggregator()
	a.ApplyDelta(wire.TranscriptDelta{TurnID: "u1", Role: wire.RoleUser, Text: "What"})
	a.ApplyDelta(delta("a1", "I "))
	a.ApplyDelta(wire.TranscriptDelta{TurnID: "u1", Role: wire.RoleUser, Text: " time"})
	a.ApplyDelta(delta("a1", "think"))

	turns := a.Snapshot()
	if turns[0].Text != "What time" {
		t.Errorf("User turn corrupted: %q", turns[0].Text)
	}
	if turns[1].Text != "I think" {
		t.Errorf("Assistant turn corrupted: %q", turns[1].Text)
	}
	if turns[0].Role != wire.RoleUser || turns[1].Role != wire.RoleAssistant {
		t.Errorf("Roles mixed up")
	}
}

func TestAppendLocalTurn(t *testing.T) {
	a := NewAggregator()
	a.Append("local1", wire.RoleUser, "typed message")

	turns := a.Snapshot()
	if len(turns) != 1 {
		t.Fatalf("Expected 1 turn, got %d", len(turns))
	}
	if turns[0].Phase != Finalized {
		t.Errorf("Local turns are final on arrival")
	}

	a.Append("local1", wire.RoleUser, "duplicate")
	if a.Len() != 1 {
		t.Errorf("Duplicate append must be ignored")
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	a := NewAggregator()
	a.ApplyDelta(delta("t1", "before"))

	snap := a.Snapshot()
	a.ApplyDelta(delta("t1", " after"))

	if snap[0].Text != "before" {
		t.Errorf("Snapshot must not share state, got %q", snap[0].Text)
	}
}

func TestReset(t *testing.T) {
	a := NewAggregator()
	a.ApplyDelta(delta("t1", "x"))
	a.ApplyDone(done("t2", "y"))
	a.Reset()

	if a.Len() != 0 {
		t.Errorf("Expected empty aggregator after reset, got %d turns", a.Len())
	}

	a.ApplyDelta(delta("t1", "fresh"))
	turns := a.Snapshot()
	if len(turns) != 1 || turns[0].Text != "fresh" {
		t.Errorf("Aggregator unusable after reset")
	}
}

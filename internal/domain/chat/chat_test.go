package chat

import (
	"testing"
	"time"
)

func TestNormalizeParticipants(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"sorts", []string{"bob", "alice"}, []string{"alice", "bob"}},
		{"trims and drops empties", []string{" alice ", "", "bob"}, []string{"alice", "bob"}},
		{"dedupes", []string{"alice", "alice", "bob"}, []string{"alice", "bob"}},
		{"empty input", nil, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeParticipants(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestSameParticipantsIgnoresSlotOrder(t *testing.T) {
	if !SameParticipants([]string{"alice", "bob"}, []string{"bob", "alice"}) {
		t.Fatal("swapped pair not recognized as the same")
	}
	if SameParticipants([]string{"alice", "bob"}, []string{"alice", "carol"}) {
		t.Fatal("different pairs compared equal")
	}
}

func TestOtherParticipant(t *testing.T) {
	conv := Conversation{Participants: []string{"alice", "bob"}}
	if got := conv.OtherParticipant("alice"); got != "bob" {
		t.Fatalf("OtherParticipant(alice) = %q, want bob", got)
	}
	if got := conv.OtherParticipant("carol"); got != "alice" {
		t.Fatalf("OtherParticipant for an outsider = %q, want first participant", got)
	}
}

func TestLastActivityFallsBackToCreation(t *testing.T) {
	created := time.Now().Add(-time.Hour)
	conv := Conversation{CreatedAt: created}
	if !conv.LastActivity().Equal(created) {
		t.Fatal("empty thread should order by creation time")
	}

	bumped := time.Now()
	conv.LastMessageAt = bumped
	if !conv.LastActivity().Equal(bumped) {
		t.Fatal("thread with messages should order by last message")
	}
}

package conversation

import (
	"errors"
	"reflect"
	"testing"

	"github.com/jackzampolin/tracker/internal/tracker"
)

func testDefinition() tracker.Definition {
	return tracker.Definition{Fields: []tracker.Field{
		{Name: "mood", Type: tracker.TypeString, Default: "neutral"},
		{Name: "location", Type: tracker.TypeString, Default: "unknown"},
	}}
}

func newTestBuilder(chat *Chat, window int) *Builder {
	return NewBuilder(chat, BuilderConfig{
		Definition: testDefinition(),
		Format:     tracker.FormatFlat,
		Window:     window,
	})
}

func TestJoinNames(t *testing.T) {
	tests := []struct {
		names []string
		want  string
	}{
		{nil, ""},
		{[]string{"A"}, "A"},
		{[]string{"A", "B"}, "A and B"},
		{[]string{"A", "B", "C"}, "A, B, and C"},
		{[]string{"A", "B", "C", "D"}, "A, B, C, and D"},
	}
	for _, tt := range tests {
		if got := JoinNames(tt.names); got != tt.want {
			t.Errorf("JoinNames(%v) = %q, want %q", tt.names, got, tt.want)
		}
	}
}

func TestRoster(t *testing.T) {
	t.Run("single counterpart", func(t *testing.T) {
		chat := NewChat(Cast{User: Character{Name: "You"}, Counterpart: &Character{Name: "Ada"}})
		got := newTestBuilder(chat, 5).Roster()
		if !reflect.DeepEqual(got, []string{"You", "Ada"}) {
			t.Errorf("got %v", got)
		}
	})

	t.Run("group skips disabled members", func(t *testing.T) {
		chat := NewChat(Cast{
			User:     Character{Name: "You"},
			Group:    true,
			Members:  []Character{{Name: "Ada"}, {Name: "Bob"}, {Name: "Cy"}},
			Disabled: []string{"Bob"},
		})
		got := newTestBuilder(chat, 5).Roster()
		if !reflect.DeepEqual(got, []string{"You", "Ada", "Cy"}) {
			t.Errorf("got %v", got)
		}
	})
}

func TestCharacterDescriptions(t *testing.T) {
	chat := NewChat(Cast{
		User:    Character{Name: "You", Description: "A traveller."},
		Group:   true,
		Members: []Character{{Name: "Ada", Description: "An engineer."}, {Name: "Bob"}},
	})
	b := NewBuilder(chat, BuilderConfig{CharacterTemplate: "[{{charName}}] {{charDescription}}"})

	want := "[You] A traveller.\n\n[Ada] An engineer."
	if got := b.CharacterDescriptions(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRecentMessages(t *testing.T) {
	chat := NewChat(Cast{User: Character{Name: "You"}},
		Message{Speaker: "You", Body: "hello", IsUser: true},
		Message{Speaker: "Ada", Body: "hi <tracker>\nmood: x\n</tracker>", Tracker: tracker.Record{"mood": "happy"}},
		Message{Speaker: "System", Body: "note", IsSystem: true},
		Message{Speaker: "You", Body: "bye", IsUser: true},
		Message{Speaker: "Ada", Body: "later"},
	)
	b := newTestBuilder(chat, 2)
	tmpl := "{{char}}: {{message}}{{#if tracker}} [{{tracker}}]{{/if}}"

	got, ok, err := b.RecentMessages(tmpl, 3, tracker.FilterAll)
	if err != nil || !ok {
		t.Fatalf("RecentMessages() ok=%v err=%v", ok, err)
	}
	want := "Ada: hi [mood: happy]\nYou: bye"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	if _, ok, _ := newTestBuilder(NewChat(Cast{}), 3).RecentMessages(tmpl, 0, tracker.FilterAll); ok {
		t.Error("empty chat should report no context")
	}
	if _, ok, _ := newTestBuilder(chat, 0).RecentMessages(tmpl, 3, tracker.FilterAll); ok {
		t.Error("zero window should report no context")
	}
}

func TestCurrentTracker(t *testing.T) {
	t.Run("scans backward", func(t *testing.T) {
		chat := NewChat(Cast{},
			Message{Speaker: "Ada", Body: "a", Tracker: tracker.Record{"mood": "sad"}},
			Message{Speaker: "You", Body: "b"},
		)
		got, err := newTestBuilder(chat, 5).CurrentTracker(1, tracker.FilterAll)
		if err != nil {
			t.Fatal(err)
		}
		if got != "mood: sad" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("own record wins", func(t *testing.T) {
		chat := NewChat(Cast{},
			Message{Tracker: tracker.Record{"mood": "sad"}},
			Message{Tracker: tracker.Record{"mood": "glad"}},
		)
		rec, from := newTestBuilder(chat, 5).ResolveTracker(1, tracker.FilterAll)
		if from != 1 || rec["mood"] != "glad" {
			t.Errorf("got %v from %d", rec, from)
		}
	})

	t.Run("falls back to default", func(t *testing.T) {
		chat := NewChat(Cast{}, Message{Body: "a"}, Message{Body: "b"})
		got, err := newTestBuilder(chat, 5).CurrentTracker(1, tracker.FilterAll)
		if err != nil {
			t.Fatal(err)
		}
		if got != "mood: neutral\nlocation: unknown" {
			t.Errorf("got %q", got)
		}
	})
}

func TestChat_AttachTracker(t *testing.T) {
	chat := NewChat(Cast{}, Message{Body: "a"})
	if err := chat.AttachTracker(0, tracker.Record{"mood": "ok"}); err != nil {
		t.Fatal(err)
	}
	if msg, _ := chat.Message(0); msg.Tracker["mood"] != "ok" {
		t.Errorf("tracker not attached: %#v", msg)
	}
	if err := chat.AttachTracker(3, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("AttachTracker(3) = %v, want ErrNotFound", err)
	}
}

package extract

import (
	"context"
	"log/slog"
	"reflect"
	"sync"
	"testing"

	"github.com/jackzampolin/tracker/internal/tracker"
)

// countingHandler counts records per level.
type countingHandler struct {
	mu     sync.Mutex
	counts map[slog.Level]int
}

func newCountingHandler() *countingHandler {
	return &countingHandler{counts: make(map[slog.Level]int)}
}

func (h *countingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *countingHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.counts[r.Level]++
	return nil
}

func (h *countingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *countingHandler) WithGroup(string) slog.Handler      { return h }

func (h *countingHandler) errors() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.counts[slog.LevelError]
}

func testDefinition() tracker.Definition {
	return tracker.Definition{Fields: []tracker.Field{
		{Name: "mood", Type: tracker.TypeString, Default: "neutral"},
		{Name: "location", Type: tracker.TypeString, Default: "unknown"},
		{Name: "items", Type: tracker.TypeArray, Presence: tracker.PresenceStatic},
	}}
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name   string
		format tracker.Format
		filter tracker.Filter
		raw    string
		want   tracker.Record
	}{
		{
			name:   "yaml payload",
			format: tracker.FormatStructured,
			filter: tracker.FilterAll,
			raw:    "blah <tracker>\nmood: happy\nlocation: kitchen\n</tracker> blah",
			want:   tracker.Record{"mood": "happy", "location": "kitchen"},
		},
		{
			name:   "json payload",
			format: tracker.FormatStructured,
			filter: tracker.FilterAll,
			raw:    `<tracker>{"mood": "calm", "items": ["key", "map"]}</tracker>`,
			want:   tracker.Record{"mood": "calm", "items": []any{"key", "map"}},
		},
		{
			name:   "first block wins",
			format: tracker.FormatStructured,
			filter: tracker.FilterAll,
			raw:    "<tracker>mood: first</tracker> then <tracker>mood: second</tracker>",
			want:   tracker.Record{"mood": "first"},
		},
		{
			name:   "code fenced",
			format: tracker.FormatStructured,
			filter: tracker.FilterAll,
			raw:    "<tracker>\n```yaml\nmood: wary\n```\n</tracker>",
			want:   tracker.Record{"mood": "wary"},
		},
		{
			name:   "scalars coerced to text",
			format: tracker.FormatStructured,
			filter: tracker.FilterAll,
			raw:    "<tracker>\nmood: 3\nitems: sword\n</tracker>",
			want:   tracker.Record{"mood": "3", "items": []any{"sword"}},
		},
		{
			name:   "leading zero kept",
			format: tracker.FormatStructured,
			filter: tracker.FilterAll,
			raw:    "<tracker>\nlocation: 02134\n</tracker>",
			want:   tracker.Record{"location": "02134"},
		},
		{
			name:   "trailing zero kept",
			format: tracker.FormatStructured,
			filter: tracker.FilterAll,
			raw:    "<tracker>\nmood: 10.30\nlocation: 1.50\n</tracker>",
			want:   tracker.Record{"mood": "10.30", "location": "1.50"},
		},
		{
			name:   "big integer kept",
			format: tracker.FormatStructured,
			filter: tracker.FilterAll,
			raw:    "<tracker>\nlocation: 12345678901234567890\n</tracker>",
			want:   tracker.Record{"location": "12345678901234567890"},
		},
		{
			name:   "numeric list items kept",
			format: tracker.FormatStructured,
			filter: tracker.FilterAll,
			raw:    "<tracker>\nitems: [007, 2.50]\n</tracker>",
			want:   tracker.Record{"items": []any{"007", "2.50"}},
		},
		{
			name:   "json numbers kept",
			format: tracker.FormatStructured,
			filter: tracker.FilterAll,
			raw:    `<tracker>{"mood": 10.30, "location": null}</tracker>`,
			want:   tracker.Record{"mood": "10.30", "location": ""},
		},
		{
			name:   "flat format keeps numeric text",
			format: tracker.FormatFlat,
			filter: tracker.FilterAll,
			raw:    "<tracker>\nlocation: 02134\nitems: [1.0, 2]\n</tracker>",
			want:   tracker.Record{"location": "02134", "items": "1.0; 2"},
		},
		{
			name:   "filter drops static fields",
			format: tracker.FormatStructured,
			filter: tracker.FilterDynamic,
			raw:    "<tracker>\nmood: ok\nitems: [a]\n</tracker>",
			want:   tracker.Record{"mood": "ok"},
		},
		{
			name:   "unknown keys dropped",
			format: tracker.FormatStructured,
			filter: tracker.FilterAll,
			raw:    "<tracker>\nmood: ok\nweather: rain\n</tracker>",
			want:   tracker.Record{"mood": "ok"},
		},
		{
			name:   "flat format joins lists",
			format: tracker.FormatFlat,
			filter: tracker.FilterAll,
			raw:    "<tracker>\nmood: ok\nitems: [a, b]\n</tracker>",
			want:   tracker.Record{"mood": "ok", "items": "a; b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newCountingHandler()
			e := New(testDefinition(), tt.format, slog.New(h))

			got, ok := e.Extract(tt.raw, tt.filter)
			if !ok {
				t.Fatalf("Extract() ok = false")
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Extract() = %#v, want %#v", got, tt.want)
			}
			if h.errors() != 0 {
				t.Errorf("logged %d errors, want 0", h.errors())
			}
		})
	}
}

func TestExtract_Failures(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"no markers", "the model forgot the block"},
		{"unclosed marker", "<tracker>mood: ok"},
		{"malformed yaml", "<tracker>not: valid: yaml: at: all:::</tracker>"},
		{"empty payload", "<tracker>  </tracker>"},
		{"not a mapping", "<tracker>- just\n- a list</tracker>"},
		{"shape mismatch", "<tracker>\nmood:\n  nested: value\n</tracker>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newCountingHandler()
			e := New(testDefinition(), tracker.FormatStructured, slog.New(h))

			got, ok := e.Extract(tt.raw, tracker.FilterAll)
			if ok || got != nil {
				t.Errorf("Extract() = %v, %v; want nil, false", got, ok)
			}
			if h.errors() != 1 {
				t.Errorf("logged %d errors, want exactly 1", h.errors())
			}
		})
	}
}

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"mood: ok", ""},
		{"```\nmood: ok\n```", "mood: ok"},
		{"```yaml\nmood: ok", "mood: ok"},
		{"```", ""},
	}
	for _, tt := range tests {
		if got := stripCodeFences(tt.in); got != tt.want {
			t.Errorf("stripCodeFences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

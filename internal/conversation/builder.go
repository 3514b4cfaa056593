package conversation

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/jackzampolin/tracker/internal/template"
	"github.com/jackzampolin/tracker/internal/tracker"
)

// DefaultCharacterTemplate renders one entry of CharacterDescriptions.
const DefaultCharacterTemplate = "{{charName}}'s Description:\n{{charDescription}}"

// BuilderConfig configures a Builder.
type BuilderConfig struct {
	Definition tracker.Definition
	Format     tracker.Format
	// Window is how many trailing non-system messages RecentMessages shows.
	Window int
	// CharacterTemplate uses {{charName}} and {{charDescription}}.
	CharacterTemplate string
}

// Builder formats conversation state into prompt fragments.
type Builder struct {
	store Store
	cfg   BuilderConfig
}

// NewBuilder creates a context builder over store.
func NewBuilder(store Store, cfg BuilderConfig) *Builder {
	if cfg.CharacterTemplate == "" {
		cfg.CharacterTemplate = DefaultCharacterTemplate
	}
	return &Builder{store: store, cfg: cfg}
}

// Roster returns the user followed by the active counterparts.
func (b *Builder) Roster() []string {
	return lo.Map(b.participants(), func(c Character, _ int) string { return c.Name })
}

// participants returns the user then each active counterpart, deduplicated by name.
func (b *Builder) participants() []Character {
	cast := b.store.Cast()

	out := []Character{cast.User}
	if cast.Group {
		active := lo.Filter(cast.Members, func(m Character, _ int) bool {
			return !lo.Contains(cast.Disabled, m.Name)
		})
		out = append(out, active...)
	} else if cast.Counterpart != nil {
		out = append(out, *cast.Counterpart)
	}

	out = lo.Filter(out, func(c Character, _ int) bool { return c.Name != "" })
	return lo.UniqBy(out, func(c Character) string { return c.Name })
}

// JoinNames joins names as English prose: "A", "A and B", "A, B, and C".
func JoinNames(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	case 2:
		return names[0] + " and " + names[1]
	default:
		return strings.Join(names[:len(names)-1], ", ") + ", and " + names[len(names)-1]
	}
}

// CharacterDescriptions renders the persona and each counterpart through the
// character template, skipping empty descriptions, separated by blank lines.
func (b *Builder) CharacterDescriptions() string {
	entries := make([]string, 0)
	for _, c := range b.participants() {
		desc := strings.TrimSpace(c.Description)
		if desc == "" {
			continue
		}
		entries = append(entries, template.Substitute(b.cfg.CharacterTemplate, template.Vars{
			"charName":        c.Name,
			"charDescription": desc,
		}))
	}
	return strings.Join(entries, "\n\n")
}

// RecentMessages renders the trailing window of non-system messages at or
// before upto through tmpl. tmpl may use {{char}}, {{message}}, {{tracker}}
// and a {{#if tracker}} section shown when the message has a tracker under
// filter. ok is false when there is nothing to show.
func (b *Builder) RecentMessages(tmpl string, upto int, filter tracker.Filter) (text string, ok bool, err error) {
	indices := b.window(upto)
	if len(indices) == 0 {
		return "", false, nil
	}

	parts := make([]string, 0, len(indices))
	for _, i := range indices {
		msg, _ := b.store.Message(i)

		rendered := ""
		if !msg.Tracker.IsEmpty() {
			fields := b.cfg.Definition.Included(filter, true)
			if sel := tracker.Select(msg.Tracker, fields); !sel.IsEmpty() {
				rendered, err = tracker.Render(sel, b.cfg.Definition, filter, true, b.cfg.Format)
				if err != nil {
					return "", false, fmt.Errorf("render tracker of message %d: %w", i, err)
				}
			}
		}

		parts = append(parts, template.Render(tmpl, template.Vars{
			"char":    msg.Speaker,
			"message": tracker.StripPayload(msg.Body),
			"tracker": rendered,
		}, map[string]bool{"tracker": rendered != ""}))
	}
	return strings.Join(parts, "\n"), true, nil
}

// window returns indices of the last Window non-system messages at or before upto.
func (b *Builder) window(upto int) []int {
	if b.cfg.Window <= 0 || upto < 0 {
		return nil
	}
	if last := b.store.Len() - 1; upto > last {
		upto = last
	}

	indices := make([]int, 0, b.cfg.Window)
	for i := upto; i >= 0 && len(indices) < b.cfg.Window; i-- {
		if msg, ok := b.store.Message(i); ok && !msg.IsSystem {
			indices = append(indices, i)
		}
	}
	return lo.Reverse(indices)
}

// ResolveTracker returns the tracker in effect at upto: the message's own,
// else the nearest earlier non-empty one, else the definition default.
// from is the index the record came from, or -1 for the default.
func (b *Builder) ResolveTracker(upto int, filter tracker.Filter) (rec tracker.Record, from int) {
	if last := b.store.Len() - 1; upto > last {
		upto = last
	}
	for i := upto; i >= 0; i-- {
		if msg, ok := b.store.Message(i); ok && !msg.Tracker.IsEmpty() {
			return msg.Tracker, i
		}
	}
	return tracker.DefaultRecord(b.cfg.Definition, filter, tracker.FormatStructured), -1
}

// CurrentTracker renders ResolveTracker's record. Ephemeral fields are kept
// only when the record belongs to upto itself or is the default.
func (b *Builder) CurrentTracker(upto int, filter tracker.Filter) (string, error) {
	rec, from := b.ResolveTracker(upto, filter)
	historical := from >= 0 && from < upto
	return tracker.Render(rec, b.cfg.Definition, filter, historical, b.cfg.Format)
}

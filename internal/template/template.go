// Package template implements the small placeholder language used by tracker
// prompts: {{name}} substitution and {{#if name}}...{{/if}} sections.
//
// Sections are resolved explicitly by name with a caller-supplied condition;
// nothing is inferred from the truthiness of the substitution variables.
package template

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Vars maps placeholder names to values. Nil and missing values render as "".
type Vars map[string]any

var (
	placeholderRe = regexp.MustCompile(`\{\{\s*([^#/{}\s][^{}]*?)\s*\}\}`)
	sectionRe     = regexp.MustCompile(`\{\{#if\s+([^{}\s]+)\s*\}\}|\{\{/if\}\}`)
)

// Substitute replaces every {{key}} in tmpl with the string form of vars[key].
func Substitute(tmpl string, vars Vars) string {
	return placeholderRe.ReplaceAllStringFunc(tmpl, func(match string) string {
		key := placeholderRe.FindStringSubmatch(match)[1]
		return stringify(vars[key])
	})
}

// Section resolves every {{#if name}}BODY{{/if}} block in tmpl. When cond is
// true the markers are dropped and BODY is kept verbatim; otherwise the whole
// block is removed. Blocks with other names are left as they are.
//
// Open and close markers pair by nesting depth, so differently named sections
// may nest. A false section removes everything it encloses, including inner
// sections of the same name. Unbalanced markers are left in place.
func Section(tmpl, name string, cond bool) string {
	type marker struct {
		name       string
		start, end int
	}

	var (
		stack []marker
		cuts  [][2]int
	)
	for _, loc := range sectionRe.FindAllStringSubmatchIndex(tmpl, -1) {
		if loc[2] >= 0 {
			stack = append(stack, marker{name: tmpl[loc[2]:loc[3]], start: loc[0], end: loc[1]})
			continue
		}
		if len(stack) == 0 {
			continue
		}
		open := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if open.name != name {
			continue
		}
		if cond {
			cuts = append(cuts, [2]int{open.start, open.end}, [2]int{loc[0], loc[1]})
		} else {
			cuts = append(cuts, [2]int{open.start, loc[1]})
		}
	}
	if len(cuts) == 0 {
		return tmpl
	}
	return cut(tmpl, cuts)
}

// Render resolves each named section in conds, then substitutes vars.
func Render(tmpl string, vars Vars, conds map[string]bool) string {
	names := make([]string, 0, len(conds))
	for name := range conds {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		tmpl = Section(tmpl, name, conds[name])
	}
	return Substitute(tmpl, vars)
}

// HasPlaceholder reports whether tmpl contains a {{key}} placeholder.
func HasPlaceholder(tmpl, key string) bool {
	for _, m := range placeholderRe.FindAllStringSubmatch(tmpl, -1) {
		if m[1] == key {
			return true
		}
	}
	return false
}

// cut removes the given byte ranges from s. Ranges may overlap.
func cut(s string, ranges [][2]int) string {
	sort.Slice(ranges, func(i, j int) bool { return ranges[i][0] < ranges[j][0] })

	var b strings.Builder
	b.Grow(len(s))
	pos := 0
	for _, r := range ranges {
		if r[0] > pos {
			b.WriteString(s[pos:r[0]])
		}
		if r[1] > pos {
			pos = r[1]
		}
	}
	b.WriteString(s[pos:])
	return b.String()
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

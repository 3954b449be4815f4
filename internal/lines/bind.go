package lines

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/cory-johannsen/dungeonforge/internal/binding"
)

// DefaultTitleMarker introduces a scene reference in choice text whose
// display name is derived from the reference, e.g. "__Default__:go_north.extra".
const DefaultTitleMarker = "__Default__"

// Action binding keys. A choice whose params hold none of them gets a
// fallback scene binding when the conventional scene line exists.
const (
	ParamScene   = binding.KeyScene
	ParamAction  = binding.KeyAction
	ParamDelayed = binding.KeyDelayed
)

// ActionKeys lists the parameter keys that count as action bindings.
var ActionKeys = []string{ParamScene, ParamAction, ParamDelayed}

// sceneIndexSuffix is the running index of the first scene line of a choice.
const sceneIndexSuffix = ".1.1.1"

// ChoiceDecl is a choice line bound to an encounter, with its display name and
// parameters derived. Params is a fresh map; the source line is not modified.
type ChoiceDecl struct {
	// ID is the line ID without its directive.
	ID     string
	Name   string
	Params map[string]any
	Line   Line
}

// Bind selects the choice lines belonging to encounterID, in the order they
// appear in choices. A choice belongs to encounter "<room>.<sub>" when its ID
// is "!<room>.<sub>.<anything>".
//
// Precondition: every line in choices is a '!' line with at least 3 segments.
// Postcondition: Returns nil when encounterID has fewer than two segments.
func Bind(encounterID string, choices []Line, table *Table) []ChoiceDecl {
	room, sub, ok := SplitEncounterID(encounterID)
	if !ok {
		return nil
	}
	var out []ChoiceDecl
	for _, l := range choices {
		id, ok := ParseID(l.ID)
		if !ok || id.Directive != Choice || !id.HasSegments(3) {
			continue
		}
		if id.Segments[0] != room || id.Segments[1] != sub {
			continue
		}
		out = append(out, ChoiceDecl{
			ID:     id.Body(),
			Name:   Title(l.Text),
			Params: defaultParams(id, l.Params, table),
			Line:   l,
		})
	}
	return out
}

// Title derives a choice's display name. Text carrying the default-title
// marker yields the title-cased scene reference with its trailing qualifier
// removed ("__Default__:go_north.extra" gives "Go North"); any other text is
// returned verbatim.
func Title(text string) string {
	marker := DefaultTitleMarker + ":"
	at := strings.Index(text, marker)
	if at < 0 {
		return text
	}
	ref := strings.TrimSpace(text[at+len(marker):])
	if end := strings.IndexFunc(ref, isSpace); end >= 0 {
		ref = ref[:end]
	}
	if dot := strings.IndexByte(ref, '.'); dot >= 0 {
		ref = ref[:dot]
	}
	words := strings.FieldsFunc(ref, func(r rune) bool { return r == '_' })
	if len(words) == 0 {
		return text
	}
	// Only the first letter changes so acronyms such as NPC survive.
	upper := cases.Upper(language.Und)
	for i, w := range words {
		_, n := utf8.DecodeRuneInString(w)
		words[i] = upper.String(w[:n]) + w[n:]
	}
	return strings.Join(words, " ")
}

// SceneID returns the conventional first scene line of a choice:
// "!1.main.A" gives "#1.main~A.1.1.1".
//
// Precondition: choice.HasSegments(3).
func SceneID(choice ID) string {
	return string(Event) + choice.Segments[0] + "." + choice.Segments[1] +
		"~" + strings.Join(choice.Segments[2:], ".") + sceneIndexSuffix
}

// HasAction reports whether params bind any action.
func HasAction(params map[string]any) bool {
	for _, k := range ActionKeys {
		if v, ok := params[k]; ok && v != nil {
			return true
		}
	}
	return false
}

func defaultParams(id ID, params map[string]any, table *Table) map[string]any {
	out := make(map[string]any, len(params)+1)
	for k, v := range params {
		out[k] = v
	}
	if HasAction(params) {
		return out
	}
	if scene := SceneID(id); table != nil && table.Has(scene) {
		out[ParamScene] = scene
	}
	return out
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

package keys

import (
	"maps"
	"slices"

	"github.com/gdamore/tcell/v2"
)

// Action represents a keybinding action.
type Action struct {
	Key         tcell.Key
	Rune        rune
	Description string
	Handler     func()
	Visible     bool
}

// Matches returns true if key (and ch, for rune keys) triggers this action.
func (a *Action) Matches(key tcell.Key, ch rune) bool {
	if a.Key != tcell.KeyRune {
		return key == a.Key
	}
	return key == tcell.KeyRune && ch == a.Rune
}

// Registry holds keybindings organized by scope.
type Registry struct {
	Global map[string]*Action
	Views  map[string]map[string]*Action
}

// NewRegistry creates a new keybinding registry.
func NewRegistry() *Registry {
	return &Registry{
		Global: make(map[string]*Action),
		Views:  make(map[string]map[string]*Action),
	}
}

// AddGlobal registers a global keybinding.
func (r *Registry) AddGlobal(name string, action *Action) {
	r.Global[name] = action
}

// AddView registers a view-specific keybinding.
func (r *Registry) AddView(view, name string, action *Action) {
	if r.Views[view] == nil {
		r.Views[view] = make(map[string]*Action)
	}
	r.Views[view][name] = action
}

// Hints returns visible keybinding descriptions for a given view, view
// bindings first, each group sorted.
func (r *Registry) Hints(view string) []string {
	hints := visible(r.Views[view])
	return append(hints, visible(r.Global)...)
}

func visible(actions map[string]*Action) []string {
	var out []string
	for _, a := range actions {
		if a.Visible {
			out = append(out, a.Description)
		}
	}
	slices.Sort(out)
	return out
}

// HandleEvent dispatches a key event to the first matching action. Returns
// true if a handler matched.
func (r *Registry) HandleEvent(view string, ev *tcell.EventKey) bool {
	return r.Dispatch(view, ev.Key(), ev.Rune())
}

// Dispatch runs the first action bound to key, view bindings before global
// ones, by binding name within each group.
func (r *Registry) Dispatch(view string, key tcell.Key, ch rune) bool {
	for _, group := range []map[string]*Action{r.Views[view], r.Global} {
		for _, name := range slices.Sorted(maps.Keys(group)) {
			if a := group[name]; a.Matches(key, ch) {
				a.Handler()
				return true
			}
		}
	}
	return false
}

// Package variables holds the mutable environment a recipe run reads from and
// writes to, and the "$NAME" template substitution over it.
package variables

import (
	"regexp"
	"sort"
	"strings"
)

// substitutionPasses bounds chained references: "$YEAR$i" needs two passes
// ("$YEAR0", then its value). Deeper chains stay unresolved.
const substitutionPasses = 2

var (
	lineBreaks    = strings.NewReplacer("\r\n", "", "\n", "", "\r", "")
	whitespaceRun = regexp.MustCompile(`\s+`)
)

// Store is a variable environment for a single recipe run. It is not safe for
// concurrent use; each engine owns its own Store.
type Store struct {
	values   map[string]Value
	defaults map[string]string
}

// NewStore creates an empty Store. defaults is consulted by Get when a key has
// never been written, typically a snapshot of the process environment.
func NewStore(defaults map[string]string) *Store {
	d := make(map[string]string, len(defaults))
	for k, v := range defaults {
		d[k] = v
	}
	return &Store{
		values:   make(map[string]Value),
		defaults: d,
	}
}

// Set stores value under key, replacing any prior value and shape. Undefined
// values are ignored.
func (s *Store) Set(key string, value Value) {
	if !value.IsDefined() {
		return
	}
	s.values[key] = normalize(value)
}

// SetString is shorthand for Set(key, String(value)).
func (s *Store) SetString(key, value string) {
	s.Set(key, String(value))
}

// Push appends value to the list stored under key, creating the list first if
// key is absent. A non-list value under key is replaced by a new list.
func (s *Store) Push(key, value string) {
	cur := s.values[key]
	var items []string
	if cur.Kind() == KindList {
		items = cur.list
	}
	items = append(items, normalizeString(value))
	s.values[key] = Value{kind: KindList, list: items}
}

// Lookup returns the stored value for key without any fallback.
func (s *Store) Lookup(key string) (Value, bool) {
	v, ok := s.values[strings.TrimPrefix(key, "$")]
	return v, ok
}

// Get returns the value of key (a leading "$" is ignored). Missing keys fall
// back to the defaults map, then to def (or "" when def is omitted).
func (s *Store) Get(key string, def ...string) Value {
	key = strings.TrimPrefix(key, "$")
	if v, ok := s.values[key]; ok {
		return v
	}
	if v, ok := s.defaults[key]; ok {
		return String(v)
	}
	if len(def) > 0 {
		return String(def[0])
	}
	return String("")
}

// GetString returns Get(key, def...) rendered as text.
func (s *Store) GetString(key string, def ...string) string {
	return s.Get(key, def...).Text()
}

// ReplaceVariablesInString substitutes every "$NAME" reference with the value
// of NAME. Names are matched longest first so "$URL10" never resolves as
// "$URL1" followed by "0". The substitution runs twice, which resolves exactly
// one level of chained references.
func (s *Store) ReplaceVariablesInString(str string) string {
	if str == "" || !strings.Contains(str, "$") {
		return str
	}
	for i := 0; i < substitutionPasses; i++ {
		str = s.replacer().Replace(str)
	}
	return str
}

func (s *Store) replacer() *strings.Replacer {
	names := s.names()
	pairs := make([]string, 0, len(names)*2)
	for _, name := range names {
		pairs = append(pairs, "$"+name, s.Get(name).Text())
	}
	return strings.NewReplacer(pairs...)
}

// names returns every known variable name, longest first.
func (s *Store) names() []string {
	seen := make(map[string]struct{}, len(s.values)+len(s.defaults))
	names := make([]string, 0, len(s.values)+len(s.defaults))
	add := func(name string) {
		if name == "" {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	for name := range s.values {
		add(name)
	}
	for name := range s.defaults {
		add(name)
	}
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	return names
}

// Snapshot returns a copy of every variable written during the run. Defaults
// are not included.
func (s *Store) Snapshot() map[string]Value {
	out := make(map[string]Value, len(s.values))
	for k, v := range s.values {
		if v.kind == KindList {
			v = List(v.list...)
		}
		out[k] = v
	}
	return out
}

// Len returns the number of stored variables.
func (s *Store) Len() int {
	return len(s.values)
}

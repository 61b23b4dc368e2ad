// Package object implements the object store iterator: a flat-directory
// scan yielding whole-file objects with their attribute sidecars attached.
// It is grounded on the original adiskd's src/lib/libodisk/odisk.c.
package object

// AttrOrigin records how an attribute entry came to exist on an object,
// matching the distinction the original attribute table keeps between
// values read from the on-disk sidecar and values a filter computed.
type AttrOrigin uint8

const (
	// AttrOriginal marks an attribute loaded from the object's .attr
	// sidecar file at scan time.
	AttrOriginal AttrOrigin = iota
	// AttrComputed marks an attribute produced during a search rather
	// than loaded from a sidecar. filter.Executor does not write
	// attributes back to objects; its filter RPC returns only a score.
	AttrComputed
)

// Attr is a single named byte-string attribute.
type Attr struct {
	Name   string
	Value  []byte
	Origin AttrOrigin
}

// AttrSet is an ordered collection of attributes: insertion order is
// preserved (the on-disk codec in attrfile.go round-trips that order) while
// lookup by name is O(1).
type AttrSet struct {
	entries []Attr
	index   map[string]int
}

// NewAttrSet returns an empty attribute set.
func NewAttrSet() *AttrSet {
	return &AttrSet{index: make(map[string]int)}
}

// Set adds or replaces the attribute named name.
func (a *AttrSet) Set(name string, value []byte, origin AttrOrigin) {
	if a.index == nil {
		a.index = make(map[string]int)
	}
	if i, ok := a.index[name]; ok {
		a.entries[i].Value = value
		a.entries[i].Origin = origin
		return
	}
	a.index[name] = len(a.entries)
	a.entries = append(a.entries, Attr{Name: name, Value: value, Origin: origin})
}

// Get returns the named attribute's value and whether it was present.
func (a *AttrSet) Get(name string) ([]byte, bool) {
	if a.index == nil {
		return nil, false
	}
	i, ok := a.index[name]
	if !ok {
		return nil, false
	}
	return a.entries[i].Value, true
}

// Len returns the number of attributes in the set.
func (a *AttrSet) Len() int {
	return len(a.entries)
}

// Range calls fn for every attribute in insertion order. Stops early if fn
// returns false.
func (a *AttrSet) Range(fn func(Attr) bool) {
	for _, e := range a.entries {
		if !fn(e) {
			return
		}
	}
}

// Object is a single object pulled from the store: its raw payload plus
// whatever attributes were attached at load time. Once built by the
// iterator an Object is treated as immutable; the filter executor reads
// its payload and attributes and writes nothing back.
type Object struct {
	Name    string
	Payload []byte
	Attrs   *AttrSet
}

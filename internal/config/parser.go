// Package config implements the path-keyed JSON config parser every task
// factory uses to turn a DeclaredTask's opaque config blob into a typed
// config struct (spec.md §4.7). It is grounded on the config::Parser type
// used throughout original_source/driver/ni/*.cpp (parser.required<T>("x"),
// parser.optional<T>("x", def), sub-parsers for nested channel objects) and
// reshaped into a generic Go API: Required[T](p, key) / Optional[T](p, key,
// def) instead of template methods, since Go has no member template
// equivalent.
package config

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Parser walks one JSON object, accumulating one error per bad or missing
// field instead of failing on the first (original_source's config::Parser
// does the same, so a single malformed task config blob is reported in
// full, not one field at a time across repeated parse attempts).
type Parser struct {
	path   string
	fields map[string]json.RawMessage
	errs   []error
	parent *Parser
}

// NewParser parses raw as a JSON object and returns a root Parser over its
// fields. An unmarshal failure surfaces as the first error seen by Errors.
func NewParser(raw []byte) *Parser {
	p := &Parser{}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		p.errs = append(p.errs, fmt.Errorf("config: %w", err))
		return p
	}
	p.fields = fields
	return p
}

// Errors returns every error accumulated by Required, Child, and Iter calls
// made against this Parser, in call order.
func (p *Parser) Errors() []error { return p.errs }

// Ok reports whether no errors have been accumulated.
func (p *Parser) Ok() bool { return len(p.errs) == 0 }

// Error joins every accumulated error into one, or nil if there are none.
func (p *Parser) Error() error {
	if len(p.errs) == 0 {
		return nil
	}
	msgs := make([]string, len(p.errs))
	for i, e := range p.errs {
		msgs[i] = e.Error()
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}

func (p *Parser) keyPath(key string) string {
	if p.path == "" {
		return key
	}
	return p.path + "." + key
}

// addErr appends err to p and, since a Child/Iter sub-Parser's errors are
// only useful once they reach the root that callers actually inspect,
// propagates the same err up through every ancestor immediately — not just
// at Child/Iter construction time, so an error recorded on a returned
// sub-Parser after the call still reaches the root's Errors().
func (p *Parser) addErr(err error) {
	p.errs = append(p.errs, err)
	if p.parent != nil {
		p.parent.addErr(err)
	}
}

func (p *Parser) record(key string, err error) {
	p.addErr(fmt.Errorf("%s: %w", p.keyPath(key), err))
}

// Required reads key into a value of type T, recording an error on this
// Parser (and returning the zero value) if key is absent or does not
// unmarshal as T.
func Required[T any](p *Parser, key string) T {
	var zero T
	raw, ok := p.fields[key]
	if !ok {
		p.record(key, fmt.Errorf("required field missing"))
		return zero
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		p.record(key, err)
		return zero
	}
	return v
}

// Optional reads key into a value of type T, returning def if key is
// absent. A present-but-malformed value still records an error, matching
// config::Parser's optional<T>(key, default) that only suppresses the
// "missing" case, not the "wrong type" case.
func Optional[T any](p *Parser, key string, def T) T {
	raw, ok := p.fields[key]
	if !ok {
		return def
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		p.record(key, err)
		return def
	}
	return v
}

// Child returns a sub-Parser over the object at key, for nested config
// (e.g. a single channel entry inside a "channels" array element).
func (p *Parser) Child(key string) *Parser {
	raw, ok := p.fields[key]
	if !ok {
		p.record(key, fmt.Errorf("required object missing"))
		return &Parser{path: p.keyPath(key)}
	}
	child := NewParser(raw)
	child.path = p.keyPath(key)
	child.parent = p
	for _, e := range child.errs {
		p.addErr(e)
	}
	return child
}

// Iter parses the array at key, calling fn with a Child-style Parser for
// each element. Errors recorded by fn's Parsers are folded back into p.
func Iter(p *Parser, key string, fn func(i int, child *Parser)) {
	raw, ok := p.fields[key]
	if !ok {
		p.record(key, fmt.Errorf("required array missing"))
		return
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		p.record(key, err)
		return
	}
	for i, item := range items {
		child := NewParser(item)
		child.path = fmt.Sprintf("%s[%d]", p.keyPath(key), i)
		child.parent = p
		for _, e := range child.errs {
			p.addErr(e)
		}
		fn(i, child)
	}
}

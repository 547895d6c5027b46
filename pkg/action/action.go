// Package action defines the typed records flowing through the event bus.
//
// Every action has a dotted Type from a closed per-domain set and a payload
// specific to that type. Actions are values: once published they are never
// modified.
package action

import (
	"sort"
	"strings"
)

// Type is the discriminant of an action.
type Type string

// Action is an immutable typed event record.
type Action interface {
	Type() Type
}

// Matcher decides whether an action type is of interest.
type Matcher interface {
	Match(t Type) bool
	String() string
}

type typeSet map[Type]struct{}

// Is matches exactly one type, or any type of a set.
func Is(types ...Type) Matcher {
	set := make(typeSet, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	return set
}

func (s typeSet) Match(t Type) bool {
	_, ok := s[t]
	return ok
}

func (s typeSet) String() string {
	names := make([]string, 0, len(s))
	for t := range s {
		names = append(names, string(t))
	}
	sort.Strings(names)
	return strings.Join(names, "|")
}

type pattern string

// Pattern matches types against a subject pattern. A "*" segment matches one
// segment and a trailing ">" matches the remaining segments, so
// "bleDevice.>" matches every BLE action.
func Pattern(p string) Matcher {
	return pattern(p)
}

func (p pattern) Match(t Type) bool {
	return SubjectMatches(string(p), string(t))
}

func (p pattern) String() string {
	return string(p)
}

// Any matches every action.
func Any() Matcher {
	return pattern(">")
}

// MatcherFunc adapts a predicate to a Matcher.
type MatcherFunc func(t Type) bool

func (f MatcherFunc) Match(t Type) bool { return f(t) }
func (f MatcherFunc) String() string     { return "func" }

// SubjectMatches supports exact, "*" segment, and ">" suffix wildcards.
func SubjectMatches(pattern, subject string) bool {
	if pattern == subject {
		return true
	}
	if pattern == ">" {
		return subject != ""
	}
	if strings.HasSuffix(pattern, ".>") {
		prefix := strings.TrimSuffix(pattern, ".>")
		return subject == prefix || strings.HasPrefix(subject, prefix+".")
	}

	patternParts := strings.Split(pattern, ".")
	subjectParts := strings.Split(subject, ".")
	if len(patternParts) != len(subjectParts) {
		return false
	}
	for i := range patternParts {
		if patternParts[i] == "*" {
			continue
		}
		if patternParts[i] != subjectParts[i] {
			return false
		}
	}
	return true
}

package eventbus

import (
	"fmt"
	"strings"

	"github.com/goclaw/actiond/pkg/action"
)

const (
	// DefaultSubjectPrefix is the canonical prefix for remote action subjects.
	DefaultSubjectPrefix = "actiond.v1"
)

// Direction separates actions entering a node from actions it emits, so a
// node never consumes its own output.
type Direction string

const (
	DirectionInbound  Direction = "in"
	DirectionOutbound Direction = "out"
)

// ActionSubject returns the remote subject an action type travels on.
func ActionSubject(prefix string, dir Direction, t action.Type) string {
	return fmt.Sprintf("%s.%s.%s", sanitizePrefix(prefix), dir, sanitizeSegment(string(t)))
}

// DirectionWildcardSubject matches every action subject of one direction.
func DirectionWildcardSubject(prefix string, dir Direction) string {
	return fmt.Sprintf("%s.%s.>", sanitizePrefix(prefix), dir)
}

// ActionTypeFromSubject recovers the action type from a remote subject.
func ActionTypeFromSubject(prefix string, dir Direction, subject string) (action.Type, bool) {
	head := fmt.Sprintf("%s.%s.", sanitizePrefix(prefix), dir)
	if !strings.HasPrefix(subject, head) || len(subject) == len(head) {
		return "", false
	}
	return action.Type(strings.TrimPrefix(subject, head)), true
}

func sanitizePrefix(prefix string) string {
	prefix = strings.Trim(prefix, ".")
	if prefix == "" {
		return DefaultSubjectPrefix
	}
	return prefix
}

func sanitizeSegment(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}

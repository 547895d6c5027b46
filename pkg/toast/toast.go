// Package toast provides the notification surface used by the notification tasks.
//
// A Toaster holds the set of visible toasts. Tasks never touch that set directly;
// they go through Show, Dismiss and Keys so the surface stays the single owner of
// its state.
package toast

import (
	"fmt"
	"time"
)

// Level is the severity of a notification.
type Level string

const (
	// LevelError requires user action to resolve.
	LevelError Level = "error"
	// LevelWarning means the user could take action or ignore it.
	LevelWarning Level = "warning"
	// LevelInfo is informational only.
	LevelInfo Level = "info"
)

// ParseLevel parses a level string.
func ParseLevel(s string) (Level, error) {
	switch Level(s) {
	case LevelError, LevelWarning, LevelInfo:
		return Level(s), nil
	default:
		return "", fmt.Errorf("toast: unknown level %q", s)
	}
}

// Intent is the visual intent a surface renders a toast with.
type Intent string

const (
	IntentNone    Intent = "none"
	IntentPrimary Intent = "primary"
	IntentWarning Intent = "warning"
	IntentDanger  Intent = "danger"
)

// Intent maps a level to its intent.
func (l Level) Intent() Intent {
	switch l {
	case LevelError:
		return IntentDanger
	case LevelWarning:
		return IntentWarning
	case LevelInfo:
		return IntentPrimary
	default:
		return IntentNone
	}
}

// Icon maps a level to its icon name. Unknown levels have no icon.
func (l Level) Icon() string {
	switch l {
	case LevelError:
		return "error"
	case LevelWarning:
		return "warning-sign"
	case LevelInfo:
		return "info-sign"
	default:
		return ""
	}
}

// Action is the optional button attached to a toast.
type Action struct {
	Icon   string `json:"icon,omitempty"`
	Text   string `json:"text,omitempty"`
	Href   string `json:"href,omitempty"`
	Target string `json:"target,omitempty"`

	// OnClick runs when the user clicks the button. It must not block.
	OnClick func() `json:"-"`
}

// HelpAction returns a link button pointing at helpURL.
func HelpAction(helpURL string) *Action {
	return &Action{
		Icon:   "help",
		Href:   helpURL,
		Target: "_blank",
	}
}

// Props describes a toast to show.
type Props struct {
	Intent  Intent
	Icon    string
	Message string

	// Timeout of zero keeps the toast until it is dismissed.
	Timeout time.Duration

	Action *Action

	// OnDismiss runs once when the toast goes away. timeoutExpired is true when
	// the toast expired on its own. It must not block.
	OnDismiss func(timeoutExpired bool)
}

// Toast is a snapshot of a visible toast.
type Toast struct {
	Key       string    `json:"key"`
	Intent    Intent    `json:"intent"`
	Icon      string    `json:"icon,omitempty"`
	Message   string    `json:"message"`
	Action    *Action   `json:"action,omitempty"`
	ShownAt   time.Time `json:"shown_at"`
	Timeout   int64     `json:"timeout_ms,omitempty"`
	Clickable bool      `json:"clickable"`
}

// Toaster is the notification surface capability.
type Toaster interface {
	// Show shows a toast under key, or updates the toast already shown under key.
	// An empty key gets a fresh unique key. The key used is returned.
	Show(props Props, key string) string

	// Dismiss removes the toast with key, running its OnDismiss hook.
	// Unknown keys are ignored.
	Dismiss(key string)

	// Keys lists the keys of the visible toasts.
	Keys() []string
}

// Package notification turns failure and status actions into toasts.
//
// Each watcher renders one action family. Singleton notifications use their
// message id as the toast key: when the same message is already visible it is
// dismissed first and shown again after a short pause, so users notice that
// something triggered it once more.
package notification

import (
	"errors"
	"slices"
	"time"

	"github.com/goclaw/actiond/pkg/saga"
	"github.com/goclaw/actiond/pkg/toast"
)

// RepeatDelay is the pause between dismissing a visible singleton and showing it again.
const RepeatDelay = 500 * time.Millisecond

// ErrNoToaster is returned when creating a Notifier without a toaster.
var ErrNoToaster = errors.New("notification: toaster is required")

// Notifier owns the notification watchers. Every task it starts shows toasts
// on the same toaster.
type Notifier struct {
	toaster toast.Toaster
}

// New creates a Notifier showing toasts on toaster.
func New(toaster toast.Toaster) (*Notifier, error) {
	if toaster == nil {
		return nil, ErrNoToaster
	}
	return &Notifier{toaster: toaster}, nil
}

type singleton struct {
	level        toast.Level
	id           MessageID
	replacements Replacements
	action       *toast.Action
	onDismiss    func(timeoutExpired bool)
}

func (n *Notifier) showSingleton(t *saga.Task, s singleton) error {
	key := string(s.id)
	if slices.Contains(n.toaster.Keys(), key) {
		n.toaster.Dismiss(key)
		if err := t.Sleep(RepeatDelay); err != nil {
			return err
		}
	}

	n.toaster.Show(toast.Props{
		Intent:    s.level.Intent(),
		Icon:      s.level.Icon(),
		Message:   Render(s.id, s.replacements),
		Action:    s.action,
		OnDismiss: s.onDismiss,
	}, key)
	return nil
}

package action

import "github.com/goclaw/actiond/pkg/toast"

// TypeNotificationAdd asks for a one-off notification.
const TypeNotificationAdd Type = "notification.action.add"

// NotificationAdd shows a plain notification. Every instance gets its own toast.
type NotificationAdd struct {
	Level   toast.Level `json:"level" validate:"required,oneof=error warning info"`
	Message string      `json:"message" validate:"required"`
	HelpURL string      `json:"helpUrl,omitempty" validate:"omitempty,url"`
}

func (NotificationAdd) Type() Type { return TypeNotificationAdd }

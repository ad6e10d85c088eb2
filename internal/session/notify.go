package session

import "debtflow/internal/logging"

// Level is the severity of a user-visible notification.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notification is a message for the user.
type Notification struct {
	Level   Level
	Message string
}

// Notifier shows notifications. Implementations must not block.
type Notifier interface {
	Notify(Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

// logNotifier is used when no notifier is injected.
type logNotifier struct{}

func (logNotifier) Notify(n Notification) {
	switch n.Level {
	case LevelError:
		logging.Get(logging.CategorySession).Warn("notify: %s", n.Message)
	default:
		logging.Session("notify[%s]: %s", n.Level, n.Message)
	}
}

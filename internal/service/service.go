// Package service contains the client-side session and document orchestration services.
package service

import (
	"context"

	"github.com/and161185/docdesk/internal/errs"
	"github.com/and161185/docdesk/internal/gateway"
)

// Backend is the gateway surface the services depend on.
type Backend interface {
	Do(ctx context.Context, r gateway.Request, out any) error
	Fetch(ctx context.Context, r gateway.Request) (*gateway.Download, error)
	Exchange(ctx context.Context, username, password string) (gateway.Token, error)
}

var _ Backend = (*gateway.Client)(nil)

// Level is a notification severity.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Notification is a one-line message for the user.
type Notification struct {
	Level   Level
	Message string
}

// Notifier receives user-facing notifications. Implementations must not block.
type Notifier interface {
	Notify(Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notification)

// Notify calls f.
func (f NotifierFunc) Notify(n Notification) { f(n) }

type nopNotifier struct{}

func (nopNotifier) Notify(Notification) {}

func notifierOrNop(n Notifier) Notifier {
	if n == nil {
		return nopNotifier{}
	}
	return n
}

// Report turns err into a single error notification. A nil err is ignored.
func Report(n Notifier, prefix string, err error) {
	if err == nil || n == nil {
		return
	}
	msg := errs.UserMessage(err)
	if prefix != "" {
		msg = prefix + ": " + msg
	}
	n.Notify(Notification{Level: LevelError, Message: msg})
}

package account

import (
	"context"

	"github.com/dealerhub/showroom/pkg/logger"
)

type NoticeLevel string

const (
	NoticeSuccess NoticeLevel = "success"
	NoticeError   NoticeLevel = "error"
)

// Notice is a non-blocking, user-facing message (a toast in a UI).
type Notice struct {
	Level   NoticeLevel
	Message string
	Err     error
}

// Notifier receives notices from the coordinator.
type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// LogNotifier writes notices to the structured logger. Used when no UI is attached.
type LogNotifier struct {
	Logger *logger.Logger
}

func (l LogNotifier) Notify(n Notice) {
	if l.Logger == nil {
		return
	}
	ctx := l.Logger.WithField(context.Background(), "notice_level", string(n.Level))
	if n.Level == NoticeError {
		l.Logger.Warn(ctx, n.Message)
		return
	}
	l.Logger.Info(ctx, n.Message)
}

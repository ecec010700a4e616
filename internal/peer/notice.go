package peer

import (
	"time"

	"github.com/dkeye/Meet/internal/domain"
)

// Notice is a short-lived, user-facing message about a failure the call
// survived.
type Notice struct {
	At     time.Time
	Kind   error
	Remote domain.ParticipantID
	Text   string
}

type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

type discardNotifier struct{}

func (discardNotifier) Notify(Notice) {}

func noticeFor(err *OpError, text string) Notice {
	return Notice{At: time.Now(), Kind: err.Kind, Remote: err.Remote, Text: text}
}

// Package notify carries user-facing notices out of the sync core: the
// successes worth announcing and the validation or logical failures a user
// must see.
package notify

import "log/slog"

// Level distinguishes announcement notices from failures.
type Level string

const (
	// LevelInfo marks a success announcement.
	LevelInfo Level = "info"
	// LevelWarning marks a recoverable failure the user should act on.
	LevelWarning Level = "warning"
)

// Notice is one user-visible message.
type Notice struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

// Notifier is the sink the UI layer plugs in.
type Notifier interface {
	Notify(notice Notice)
}

// Func adapts a function to the Notifier interface.
type Func func(Notice)

// Notify implements Notifier.
func (f Func) Notify(notice Notice) { f(notice) }

// Slog returns a Notifier that logs notices, for headless use.
func Slog(logger *slog.Logger) Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return Func(func(n Notice) {
		switch n.Level {
		case LevelWarning:
			logger.Warn("notice", "message", n.Message)
		default:
			logger.Info("notice", "message", n.Message)
		}
	})
}

// Recorder collects notices for tests.
type Recorder struct {
	Notices []Notice
}

// Notify implements Notifier.
func (r *Recorder) Notify(notice Notice) {
	r.Notices = append(r.Notices, notice)
}

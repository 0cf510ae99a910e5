package plugin

import (
	"fmt"

	"originchats/pkg/logger"
)

// DefaultFactories returns the plugins compiled into the server.
func DefaultFactories() []Factory {
	return []Factory{
		func() Plugin { return &activityLog{} },
		func() Plugin { return &welcomeNotice{} },
	}
}

// activityLog records protocol activity for operators.
type activityLog struct{}

func (a *activityLog) Name() string { return "activity_log" }
func (a *activityLog) Handles() []string {
	return []string{EventUserConnect, EventNewMessage, EventTyping}
}
func (a *activityLog) RequiredRoles() []string { return nil }

func (a *activityLog) Handle(event string, sess Session, payload map[string]any, _ *HostContext) {
	switch event {
	case EventNewMessage:
		logger.Info("activity_message", "user", sess.User, "channel", payload["channel"])
	case EventTyping:
		logger.Debug("activity_typing", "user", sess.User, "channel", payload["channel"])
	case EventUserConnect:
		logger.Info("activity_connect", "user", sess.User)
	}
}

// welcomeNotice announces new connections to everyone, with the current
// online count.
type welcomeNotice struct{}

func (w *welcomeNotice) Name() string            { return "welcome_notice" }
func (w *welcomeNotice) Handles() []string       { return []string{EventUserConnect} }
func (w *welcomeNotice) RequiredRoles() []string { return nil }

func (w *welcomeNotice) Handle(_ string, sess Session, _ map[string]any, host *HostContext) {
	if host == nil || host.Broadcast == nil {
		return
	}
	online := 0
	if host.Online != nil {
		online = len(host.Online())
	}
	host.Broadcast(map[string]any{
		"cmd":    "system",
		"val":    fmt.Sprintf("%s joined the server", sess.User),
		"online": online,
		"global": true,
	})
}

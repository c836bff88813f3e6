package models

import "time"

type AuthEventType string

const (
	EventUserRegistered AuthEventType = "user_registered"
	EventUserLoggedIn   AuthEventType = "user_logged_in"
	EventUserLoggedOut  AuthEventType = "user_logged_out"
)

// AuthEvent is published after a successful authentication state change.
type AuthEvent struct {
	EventID    string        `json:"event_id"`
	Type       AuthEventType `json:"event_type"`
	UserID     int64         `json:"user_id"`
	Username   string        `json:"username"`
	OccurredAt time.Time     `json:"occurred_at"`
}

type AdminCommandType string

const (
	CommandUserDeactivated AdminCommandType = "user_deactivated"
	CommandUserActivated   AdminCommandType = "user_activated"
)

// AdminCommand is consumed from the user administration topic.
type AdminCommand struct {
	Type   AdminCommandType `json:"event_type"`
	UserID int64            `json:"user_id"`
}

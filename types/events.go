package types

import (
	"time"
)

// RelayEvent is published after every relay attempt.
type RelayEvent struct {
	ID      string    `json:"id"`
	Time    time.Time `json:"time"`
	UserID  int64     `json:"user_id"`
	From    string    `json:"from"`
	To      string    `json:"to"`
	Subject string    `json:"subject"`
	Outcome string    `json:"outcome"`
	Error   string    `json:"error,omitempty"`
}

// Outcomes of a directory search.
const (
	LookupFound    = "found"
	LookupNotFound = "not_found"
	LookupTooMany  = "too_many"
)

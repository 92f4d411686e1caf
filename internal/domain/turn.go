package domain

import "time"

// Turn is one recorded conversation exchange. Turns are append-only and
// kept in a bounded most-recent-N ring per session.
type Turn struct {
	Timestamp  time.Time         `json:"timestamp"`
	UserInput  string            `json:"user_input"`
	Response   string            `json:"response"`
	Intent     string            `json:"intent"`
	Entities   map[string]string `json:"entities,omitempty"`
	StageAfter Stage             `json:"stage_after"`
}

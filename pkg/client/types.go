package client

import "time"

// StatusResponse is returned by status and every lifecycle operation.
type StatusResponse struct {
	Status string `json:"status"`
}

// Detail is the runner snapshot served at /status/detail.
type Detail struct {
	Name       string    `json:"name"`
	State      string    `json:"state"`
	PID        int       `json:"pid,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	LastExit   string    `json:"last_exit,omitempty"`
	Restarts   int64     `json:"restarts"`
	Suppressed bool      `json:"suppressed"`
	Held       bool      `json:"held"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}

package models

import "time"

// SessionStatus represents the current state of the admin login session
type SessionStatus string

const (
	StatusUnknown       SessionStatus = "unknown"
	StatusLoggedIn      SessionStatus = "logged_in"
	StatusLoggedOut     SessionStatus = "logged_out"
	StatusLoginRequired SessionStatus = "login_required"
	StatusChecking      SessionStatus = "checking"
)

// Message returns a human-readable description of the status
func (s SessionStatus) Message() string {
	switch s {
	case StatusUnknown:
		return "Session status not yet checked"
	case StatusLoggedIn:
		return "Logged into Shopify admin"
	case StatusLoggedOut:
		return "Not logged in"
	case StatusLoginRequired:
		return "Manual login required - browser window should be open"
	case StatusChecking:
		return "Checking session status..."
	default:
		return "Unknown status"
	}
}

// SessionStatusResponse is returned by the session endpoints
type SessionStatusResponse struct {
	Status    SessionStatus `json:"status"`
	StoreSlug string        `json:"store_slug"`
	Message   string        `json:"message,omitempty"`
}

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status         string        `json:"status"`
	Version        string        `json:"version"`
	HeadlessMode   bool          `json:"headless_mode"`
	DownloadDir    string        `json:"download_dir"`
	SessionStatus  SessionStatus `json:"session_status"`
	BrowserRunning bool          `json:"browser_running"`
	Engine         string        `json:"engine"`
}

// StatusEvent is pushed to websocket subscribers whenever the session status changes
type StatusEvent struct {
	Status    SessionStatus `json:"status"`
	Message   string        `json:"message"`
	Timestamp time.Time     `json:"timestamp"`
}

package protocol

import "time"

// Hello is the first message a feed subscriber receives.
type Hello struct {
	Client          string `json:"client"`
	Version         string `json:"version"`
	ServerURL       string `json:"server_url"`
	PublishInterval int64  `json:"publish_interval_ms"`
}

// Error reports a problem on the feed itself.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SessionStatus summarises the client's login and polling health.
type SessionStatus struct {
	LoggedIn          bool       `json:"logged_in"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	DirectoryFailures int        `json:"directory_failures"`
}

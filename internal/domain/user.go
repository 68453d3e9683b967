// Package domain contains entity without logic, just meta-data
package domain

// UserID is the authenticated identity behind a signaling session.
// It comes from the session directory, never from the client.
type UserID string

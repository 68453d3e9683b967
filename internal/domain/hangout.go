package domain

// HangoutID identifies a persisted hangout session. The session lifecycle
// service owns the row; this subsystem only keys runtime rooms by it.
type HangoutID string

package core

import "github.com/dkeye/Huddle/internal/domain"

// ProducerInfo is a read-only view of one published track.
type ProducerInfo struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}

// ParticipantInfo is what a newly joined client sees of an existing
// publisher: identity plus the tracks it can consume.
type ParticipantInfo struct {
	UserID    domain.UserID  `json:"userId"`
	Producers []ProducerInfo `json:"producers"`
}

// RoomStats is the lifecycle-service view of a running room.
type RoomStats struct {
	HangoutID    domain.HangoutID `json:"hangoutId"`
	Participants int              `json:"participants"`
	Producers    int              `json:"producers"`
	Broadcasting bool             `json:"broadcasting"`
}

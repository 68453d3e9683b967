package core

import (
	"context"

	"github.com/dkeye/Huddle/internal/domain"
)

// Directory is the session lifecycle service boundary. This subsystem
// reads identities from it and writes nothing except the broadcast flag.
type Directory interface {
	// Authenticate resolves a connection token to a signed-in user.
	Authenticate(ctx context.Context, token string) (domain.UserID, error)
	// ClearBroadcast resets the persisted active-broadcast flag after the
	// bridge stops unexpectedly.
	ClearBroadcast(ctx context.Context, id domain.HangoutID) error
}

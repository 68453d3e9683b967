// Package rooms owns the runtime state of active hangouts: one routing
// engine router per room plus the participants flowing through it.
package rooms

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

// Registry maps hangout ids to live rooms. Creation is guarded by a
// singleflight group so concurrent callers for the same id converge on
// a single room and a single router.
type Registry struct {
	engine core.Engine

	mu    sync.RWMutex
	rooms map[domain.HangoutID]*Room

	create singleflight.Group
}

func NewRegistry(engine core.Engine) *Registry {
	return &Registry{
		engine: engine,
		rooms:  make(map[domain.HangoutID]*Room),
	}
}

// GetOrCreate returns the room for id, creating it (and its router) on
// first access. Late callers observe the winner.
func (g *Registry) GetOrCreate(ctx context.Context, id domain.HangoutID) (*Room, error) {
	g.mu.RLock()
	room, ok := g.rooms[id]
	g.mu.RUnlock()
	if ok {
		return room, nil
	}

	v, err, _ := g.create.Do(string(id), func() (any, error) {
		g.mu.RLock()
		room, ok := g.rooms[id]
		g.mu.RUnlock()
		if ok {
			return room, nil
		}
		router, err := g.engine.CreateRouter(ctx)
		if err != nil {
			return nil, err
		}
		room = newRoom(id, router)
		g.mu.Lock()
		g.rooms[id] = room
		g.mu.Unlock()
		log.Info().Str("module", "rooms").Str("hangout", string(id)).Str("router", router.ID()).Msg("room created")
		return room, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Room), nil
}

func (g *Registry) Get(id domain.HangoutID) (*Room, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	room, ok := g.rooms[id]
	return room, ok
}

// Close tears the room down: every participant, the bridge if one is
// running, then the router. Closing an unknown id is a no-op.
func (g *Registry) Close(id domain.HangoutID) {
	g.mu.Lock()
	room, ok := g.rooms[id]
	delete(g.rooms, id)
	g.mu.Unlock()
	if !ok {
		return
	}
	room.close()
	log.Info().Str("module", "rooms").Str("hangout", string(id)).Msg("room closed")
}

func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms)
}

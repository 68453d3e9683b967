package rooms

import (
	"sync"

	mediasoup "github.com/jiyeyuran/mediasoup-go/v2"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

// BridgeRef is the room's view of a running broadcast bridge: just
// enough to close it when the room goes away.
type BridgeRef interface {
	Close()
}

// Room is the runtime state for one hangout: a router plus the set of
// participants currently in it. The bridge reference is optional.
type Room struct {
	id     domain.HangoutID
	router core.Router

	mu           sync.RWMutex
	participants map[domain.UserID]*Participant
	bridge       BridgeRef
	closed       bool
}

func newRoom(id domain.HangoutID, router core.Router) *Room {
	return &Room{
		id:           id,
		router:       router,
		participants: make(map[domain.UserID]*Participant),
	}
}

func (r *Room) ID() domain.HangoutID { return r.id }
func (r *Room) Router() core.Router  { return r.router }

// Join returns the participant for user, creating it on first join.
// Fails when the room has already been closed; a connection racing the
// teardown must not land in a dead room.
func (r *Room) Join(user domain.UserID, conn core.SignalConnection) (*Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, core.ErrNoRoom
	}
	if p, ok := r.participants[user]; ok {
		// Reconnect: the new channel replaces the stale one.
		p.replaceConn(conn)
		return p, nil
	}
	p := newParticipant(user, conn)
	r.participants[user] = p
	log.Info().Str("module", "rooms").Str("hangout", string(r.id)).Str("user", string(user)).Msg("participant joined")
	return p, nil
}

// Leave tears the participant down (producers, consumers, transports)
// and removes it. Returns the number of participants left.
func (r *Room) Leave(user domain.UserID) int {
	r.mu.Lock()
	p, ok := r.participants[user]
	delete(r.participants, user)
	remaining := len(r.participants)
	r.mu.Unlock()
	if ok {
		p.closeAll()
		log.Info().Str("module", "rooms").Str("hangout", string(r.id)).Str("user", string(user)).Msg("participant left")
	}
	return remaining
}

func (r *Room) Participant(user domain.UserID) (*Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.participants[user]
	return p, ok
}

func (r *Room) ParticipantCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.participants)
}

// Fanout delivers a frame to every participant except the originator.
// Slow receivers are dropped by TrySend, never waited on.
func (r *Room) Fanout(except domain.UserID, frame core.Frame) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for user, p := range r.participants {
		if user == except {
			continue
		}
		if err := p.Conn().TrySend(frame); err != nil {
			log.Warn().Err(err).Str("module", "rooms").Str("user", string(user)).Msg("fanout drop")
		}
	}
}

// Publishers lists every other participant that has at least one active
// producer, for the getParticipants snapshot.
func (r *Room) Publishers(except domain.UserID) []core.ParticipantInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.ParticipantInfo, 0, len(r.participants))
	for user, p := range r.participants {
		if user == except {
			continue
		}
		producers := p.ProducerInfos()
		if len(producers) == 0 {
			continue
		}
		out = append(out, core.ParticipantInfo{UserID: user, Producers: producers})
	}
	return out
}

// FirstProducer returns some active producer of the given kind, or nil.
func (r *Room) FirstProducer(kind mediasoup.MediaKind) core.Producer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.participants {
		if producer := p.producerOfKind(kind); producer != nil {
			return producer
		}
	}
	return nil
}

func (r *Room) ProducerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, p := range r.participants {
		n += p.producerCount()
	}
	return n
}

// SetBridge records the active bridge. Reports false when one is
// already running (at-most-one per room).
func (r *Room) SetBridge(b BridgeRef) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bridge != nil || r.closed {
		return false
	}
	r.bridge = b
	return true
}

func (r *Room) ClearBridge() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bridge = nil
}

func (r *Room) Broadcasting() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.bridge != nil
}

// close releases everything the room owns. The bridge never outlives
// the room, and each cleanup step runs regardless of earlier failures.
func (r *Room) close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	participants := make([]*Participant, 0, len(r.participants))
	for _, p := range r.participants {
		participants = append(participants, p)
	}
	r.participants = make(map[domain.UserID]*Participant)
	bridge := r.bridge
	r.bridge = nil
	r.mu.Unlock()

	for _, p := range participants {
		p.closeAll()
		p.Conn().Close()
	}
	if bridge != nil {
		bridge.Close()
	}
	if err := r.router.Close(); err != nil {
		log.Error().Err(err).Str("module", "rooms").Str("hangout", string(r.id)).Msg("router close")
	}
}

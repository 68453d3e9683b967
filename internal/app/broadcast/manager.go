// Package broadcast bridges a room's live media into an external RTMP
// endpoint: it consumes one audio and one video producer onto loopback
// plain transports and feeds them to an ffmpeg re-encode subprocess.
package broadcast

import (
	"context"
	"sync"
	"time"

	mediasoup "github.com/jiyeyuran/mediasoup-go/v2"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/app/rooms"
	"github.com/dkeye/Huddle/internal/config"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

const bridgeListenIP = "127.0.0.1"

type Manager struct {
	registry  *rooms.Registry
	directory core.Directory
	cfg       *config.Config

	mu      sync.Mutex
	bridges map[domain.HangoutID]*Bridge
}

func NewManager(registry *rooms.Registry, directory core.Directory, cfg *config.Config) *Manager {
	return &Manager{
		registry:  registry,
		directory: directory,
		cfg:       cfg,
		bridges:   make(map[domain.HangoutID]*Bridge),
	}
}

// Start spins up a bridge for the room: at most one per hangout. It
// picks the first audio and first video producer found; having neither
// is an error. Success means the subprocess has been spawned, not that
// the remote endpoint accepted the stream.
func (m *Manager) Start(ctx context.Context, id domain.HangoutID, endpointURL string) error {
	room, ok := m.registry.Get(id)
	if !ok {
		return core.ErrNoRoom
	}

	b := &Bridge{hangoutID: id, manager: m}
	m.mu.Lock()
	if _, exists := m.bridges[id]; exists {
		m.mu.Unlock()
		return core.ErrBroadcastActive
	}
	m.bridges[id] = b
	m.mu.Unlock()

	if !room.SetBridge(b) {
		m.remove(id)
		return core.ErrBroadcastActive
	}

	if err := m.setup(ctx, room, b, endpointURL); err != nil {
		b.stop()
		room.ClearBridge()
		m.remove(id)
		return err
	}
	log.Info().Str("module", "broadcast").Str("hangout", string(id)).Str("endpoint", endpointURL).Msg("bridge started")
	return nil
}

func (m *Manager) setup(ctx context.Context, room *rooms.Room, b *Bridge, endpointURL string) error {
	audioProducer := room.FirstProducer(mediasoup.MediaKindAudio)
	videoProducer := room.FirstProducer(mediasoup.MediaKindVideo)
	if audioProducer == nil && videoProducer == nil {
		return core.ErrNoBroadcastSource
	}

	router := room.Router()
	var legs []mediaLeg
	for _, src := range []struct {
		producer core.Producer
		kind     string
	}{
		{audioProducer, "audio"},
		{videoProducer, "video"},
	} {
		if src.producer == nil {
			continue
		}
		transport, err := router.CreatePlainTransport(ctx, bridgeListenIP)
		if err != nil {
			return err
		}
		b.addTransport(src.kind, transport)
		consumer, err := transport.Consume(ctx, src.producer.ID(), router.RtpCapabilities())
		if err != nil {
			return err
		}
		b.addConsumer(consumer)
		legs = append(legs, mediaLeg{
			kind:   src.kind,
			port:   int(transport.Tuple().LocalPort),
			params: consumer.RtpParameters(),
		})
	}

	doc, err := buildSDP(legs)
	if err != nil {
		return err
	}
	if err := b.spawn(m.cfg.Broadcast.FFmpegBin, doc, audioProducer != nil, videoProducer != nil, endpointURL); err != nil {
		return err
	}

	// The encoder is up; let packets flow.
	for _, consumer := range b.consumers {
		if err := consumer.Resume(ctx); err != nil {
			log.Warn().Err(err).Str("module", "broadcast").Str("consumer", consumer.ID()).Msg("bridge consumer resume")
		}
	}
	return nil
}

// Stop tears the bridge down. Idempotent; unknown ids are a no-op.
func (m *Manager) Stop(id domain.HangoutID) {
	b := m.remove(id)
	if b == nil {
		return
	}
	b.stop()
	if room, ok := m.registry.Get(id); ok {
		room.ClearBridge()
	}
	log.Info().Str("module", "broadcast").Str("hangout", string(id)).Msg("bridge stopped")
}

func (m *Manager) IsActive(id domain.HangoutID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.bridges[id]
	return ok
}

func (m *Manager) remove(id domain.HangoutID) *Bridge {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.bridges[id]
	delete(m.bridges, id)
	return b
}

// onExit runs when the subprocess ends on its own: full teardown plus
// clearing the persisted broadcast flag.
func (m *Manager) onExit(id domain.HangoutID, err error) {
	log.Error().Err(err).Str("module", "broadcast").Str("hangout", string(id)).Msg("encoder exited unexpectedly")
	m.Stop(id)
	timeout := m.cfg.Media.OpTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := m.directory.ClearBroadcast(ctx, id); err != nil {
		log.Error().Err(err).Str("module", "broadcast").Str("hangout", string(id)).Msg("clear broadcast flag")
	}
}

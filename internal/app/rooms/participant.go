package rooms

import (
	"sync"

	mediasoup "github.com/jiyeyuran/mediasoup-go/v2"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

// Participant is one user's runtime state inside a room: a transport
// per direction plus the producers and consumers flowing over them.
type Participant struct {
	user domain.UserID

	mu            sync.Mutex
	conn          core.SignalConnection
	sendTransport core.WebRtcTransport
	recvTransport core.WebRtcTransport
	producers     map[string]core.Producer
	consumers     map[string]core.Consumer
}

func newParticipant(user domain.UserID, conn core.SignalConnection) *Participant {
	return &Participant{
		user:      user,
		conn:      conn,
		producers: make(map[string]core.Producer),
		consumers: make(map[string]core.Consumer),
	}
}

func (p *Participant) User() domain.UserID { return p.user }

func (p *Participant) Conn() core.SignalConnection {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn
}

func (p *Participant) replaceConn(conn core.SignalConnection) {
	p.mu.Lock()
	old := p.conn
	p.conn = conn
	p.mu.Unlock()
	if old != nil && old != conn {
		old.Close()
	}
}

// SetTransport stores a freshly created transport for one direction,
// closing any prior transport of that direction (no accumulation).
// Producers ride the send transport and consumers the recv transport,
// so the entries riding a replaced transport are closed and removed
// with it; nothing may keep resolving handles on a dead transport.
func (p *Participant) SetTransport(producing bool, t core.WebRtcTransport) {
	p.mu.Lock()
	var old core.WebRtcTransport
	var producers map[string]core.Producer
	var consumers map[string]core.Consumer
	if producing {
		old = p.sendTransport
		p.sendTransport = t
		if old != nil {
			producers = p.producers
			p.producers = make(map[string]core.Producer)
		}
	} else {
		old = p.recvTransport
		p.recvTransport = t
		if old != nil {
			consumers = p.consumers
			p.consumers = make(map[string]core.Consumer)
		}
	}
	p.mu.Unlock()
	if old == nil {
		return
	}

	for id, producer := range producers {
		if err := producer.Close(); err != nil {
			log.Warn().Err(err).Str("module", "rooms").Str("producer", id).Msg("stale producer close")
		}
	}
	for id, consumer := range consumers {
		if err := consumer.Close(); err != nil {
			log.Warn().Err(err).Str("module", "rooms").Str("consumer", id).Msg("stale consumer close")
		}
	}
	if err := old.Close(); err != nil {
		log.Warn().Err(err).Str("module", "rooms").Str("user", string(p.user)).Msg("stale transport close")
	}
}

func (p *Participant) Transport(producing bool) core.WebRtcTransport {
	p.mu.Lock()
	defer p.mu.Unlock()
	if producing {
		return p.sendTransport
	}
	return p.recvTransport
}

func (p *Participant) AddProducer(producer core.Producer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.producers[producer.ID()] = producer
}

func (p *Participant) AddConsumer(consumer core.Consumer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.consumers[consumer.ID()] = consumer
}

func (p *Participant) Consumer(id string) (core.Consumer, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.consumers[id]
	return c, ok
}

func (p *Participant) RemoveConsumer(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.consumers, id)
}

func (p *Participant) ProducerInfos() []core.ProducerInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]core.ProducerInfo, 0, len(p.producers))
	for id, producer := range p.producers {
		out = append(out, core.ProducerInfo{ID: id, Kind: string(producer.Kind())})
	}
	return out
}

func (p *Participant) producerOfKind(kind mediasoup.MediaKind) core.Producer {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, producer := range p.producers {
		if producer.Kind() == kind {
			return producer
		}
	}
	return nil
}

func (p *Participant) producerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.producers)
}

// closeAll releases every engine resource this participant holds. Each
// close error is logged and swallowed so one stale handle cannot block
// teardown of the rest. The maps are cleared before unlocking, so from
// the caller's view teardown is all-or-nothing.
func (p *Participant) closeAll() {
	p.mu.Lock()
	producers := p.producers
	consumers := p.consumers
	send, recv := p.sendTransport, p.recvTransport
	p.producers = make(map[string]core.Producer)
	p.consumers = make(map[string]core.Consumer)
	p.sendTransport, p.recvTransport = nil, nil
	p.mu.Unlock()

	for id, producer := range producers {
		if err := producer.Close(); err != nil {
			log.Warn().Err(err).Str("module", "rooms").Str("producer", id).Msg("producer close")
		}
	}
	for id, consumer := range consumers {
		if err := consumer.Close(); err != nil {
			log.Warn().Err(err).Str("module", "rooms").Str("consumer", id).Msg("consumer close")
		}
	}
	for _, t := range []core.WebRtcTransport{send, recv} {
		if t == nil {
			continue
		}
		if err := t.Close(); err != nil {
			log.Warn().Err(err).Str("module", "rooms").Str("transport", t.ID()).Msg("transport close")
		}
	}
}

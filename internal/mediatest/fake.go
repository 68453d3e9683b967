// Package mediatest provides an in-memory routing engine for tests. It
// implements the core media interfaces without worker processes, tracks
// every handle it hands out and supports fault injection on Close.
package mediatest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	mediasoup "github.com/jiyeyuran/mediasoup-go/v2"

	"github.com/dkeye/Huddle/internal/core"
)

// Engine is the fake core.Engine. The zero value is not usable; call
// NewEngine.
type Engine struct {
	mu       sync.Mutex
	routers  []*Router
	created  int64
	seq      int64
	shutdown bool

	// CreateRouterErr, when set, fails every CreateRouter call.
	CreateRouterErr error
}

func NewEngine() *Engine { return &Engine{} }

func (e *Engine) CreateRouter(ctx context.Context) (core.Router, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.CreateRouterErr != nil {
		return nil, e.CreateRouterErr
	}
	if e.shutdown {
		return nil, fmt.Errorf("engine shut down")
	}
	e.created++
	r := &Router{
		id:        fmt.Sprintf("router-%d", e.created),
		engine:    e,
		producers: make(map[string]*Producer),
	}
	e.routers = append(e.routers, r)
	return r, nil
}

func (e *Engine) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.shutdown = true
}

// RoutersCreated counts successful CreateRouter calls.
func (e *Engine) RoutersCreated() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return int(e.created)
}

// Routers snapshots every router created so far.
func (e *Engine) Routers() []*Router {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Router(nil), e.routers...)
}

func (e *Engine) nextID(prefix string) string {
	n := atomic.AddInt64(&e.seq, 1)
	return fmt.Sprintf("%s-%d", prefix, n)
}

// Router is the fake core.Router. Producers are registered router-wide
// so any transport can consume them, matching the real engine.
type Router struct {
	id     string
	engine *Engine

	mu         sync.Mutex
	producers  map[string]*Producer
	transports []*Transport
	closed     bool

	// CanConsumeFn overrides the default always-true answer.
	CanConsumeFn func(producerID string, caps *mediasoup.RtpCapabilities) bool
}

// fakeCaps is deliberately fixed: tests assert the capability document
// is byte-stable across calls.
var fakeCaps = &mediasoup.RtpCapabilities{
	Codecs: []*mediasoup.RtpCodecCapability{
		{Kind: mediasoup.MediaKindAudio, MimeType: "audio/opus", ClockRate: 48000, Channels: 2},
		{Kind: mediasoup.MediaKindVideo, MimeType: "video/VP8", ClockRate: 90000},
	},
}

func (r *Router) ID() string { return r.id }

func (r *Router) RtpCapabilities() *mediasoup.RtpCapabilities { return fakeCaps }

func (r *Router) CanConsume(producerID string, caps *mediasoup.RtpCapabilities) bool {
	if r.CanConsumeFn != nil {
		return r.CanConsumeFn(producerID, caps)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.producers[producerID]
	return ok
}

func (r *Router) CreateWebRtcTransport(ctx context.Context) (core.WebRtcTransport, error) {
	t, err := r.newTransport(ctx)
	if err != nil {
		return nil, err
	}
	return &WebRtcTransport{Transport: t}, nil
}

func (r *Router) CreatePlainTransport(ctx context.Context, listenIP string) (core.PlainTransport, error) {
	t, err := r.newTransport(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	port := 20000 + len(r.transports)
	r.mu.Unlock()
	return &PlainTransport{
		Transport: t,
		tuple:     mediasoup.TransportTuple{LocalAddress: listenIP, LocalPort: uint16(port)},
	}, nil
}

func (r *Router) newTransport(ctx context.Context) (*Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, fmt.Errorf("router %s closed", r.id)
	}
	t := &Transport{id: r.engine.nextID("transport"), router: r}
	r.transports = append(r.transports, t)
	return t, nil
}

func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *Router) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Transports snapshots every transport this router created.
func (r *Router) Transports() []*Transport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Transport(nil), r.transports...)
}

// Producers snapshots every producer registered on this router.
func (r *Router) Producers() []*Producer {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Producer, 0, len(r.producers))
	for _, p := range r.producers {
		out = append(out, p)
	}
	return out
}

func (r *Router) addProducer(p *Producer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.producers[p.id] = p
}

func (r *Router) producer(id string) (*Producer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.producers[id]
	return p, ok
}

// Transport is the fake core.Transport shared by both flavors.
type Transport struct {
	id     string
	router *Router

	mu     sync.Mutex
	closed bool

	// CloseErr is returned from Close (after marking the transport
	// closed) to exercise best-effort teardown paths.
	CloseErr error
}

func (t *Transport) ID() string { return t.id }

func (t *Transport) Produce(ctx context.Context, kind mediasoup.MediaKind, params *mediasoup.RtpParameters, appData mediasoup.H) (core.Producer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, fmt.Errorf("transport %s closed", t.id)
	}
	t.mu.Unlock()
	p := &Producer{id: t.router.engine.nextID("producer"), kind: kind}
	t.router.addProducer(p)
	return p, nil
}

func (t *Transport) Consume(ctx context.Context, producerID string, caps *mediasoup.RtpCapabilities) (core.Consumer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src, ok := t.router.producer(producerID)
	if !ok {
		return nil, fmt.Errorf("producer %s not found", producerID)
	}
	c := &Consumer{
		id:         t.router.engine.nextID("consumer"),
		producerID: producerID,
		kind:       src.kind,
		paused:     true,
	}
	src.attach(c)
	return c, nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return t.CloseErr
}

func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

type WebRtcTransport struct {
	*Transport

	mu        sync.Mutex
	connected bool
}

func (t *WebRtcTransport) Connect(ctx context.Context, dtls *mediasoup.DtlsParameters) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = true
	return nil
}

func (t *WebRtcTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *WebRtcTransport) IceParameters() *mediasoup.IceParameters {
	return &mediasoup.IceParameters{UsernameFragment: "frag-" + t.id, Password: "pwd-" + t.id}
}

func (t *WebRtcTransport) IceCandidates() []mediasoup.IceCandidate { return nil }

func (t *WebRtcTransport) DtlsParameters() *mediasoup.DtlsParameters {
	return &mediasoup.DtlsParameters{}
}

type PlainTransport struct {
	*Transport
	tuple mediasoup.TransportTuple
}

func (t *PlainTransport) Tuple() mediasoup.TransportTuple { return t.tuple }

// Producer is the fake core.Producer. Closing it fires OnProducerClose
// on every consumer attached to it, exactly once each.
type Producer struct {
	id   string
	kind mediasoup.MediaKind

	mu        sync.Mutex
	closed    bool
	consumers []*Consumer

	CloseErr error
}

func (p *Producer) ID() string                { return p.id }
func (p *Producer) Kind() mediasoup.MediaKind { return p.kind }

func (p *Producer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	consumers := p.consumers
	p.consumers = nil
	err := p.CloseErr
	p.mu.Unlock()

	for _, c := range consumers {
		c.producerClosed()
	}
	return err
}

func (p *Producer) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Producer) attach(c *Consumer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.consumers = append(p.consumers, c)
}

type Consumer struct {
	id         string
	producerID string
	kind       mediasoup.MediaKind

	mu              sync.Mutex
	paused          bool
	closed          bool
	onProducerClose func()
	fired           bool

	CloseErr error
}

func (c *Consumer) ID() string                { return c.id }
func (c *Consumer) ProducerID() string        { return c.producerID }
func (c *Consumer) Kind() mediasoup.MediaKind { return c.kind }

func (c *Consumer) RtpParameters() *mediasoup.RtpParameters {
	return &mediasoup.RtpParameters{}
}

func (c *Consumer) Resume(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("consumer %s closed", c.id)
	}
	c.paused = false
	return nil
}

func (c *Consumer) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

func (c *Consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return c.CloseErr
}

func (c *Consumer) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Consumer) OnProducerClose(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onProducerClose = fn
}

func (c *Consumer) producerClosed() {
	c.mu.Lock()
	fn := c.onProducerClose
	fired := c.fired
	c.fired = true
	c.mu.Unlock()
	if fn != nil && !fired {
		fn()
	}
}

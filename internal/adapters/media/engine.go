package media

import (
	"context"

	mediasoup "github.com/jiyeyuran/mediasoup-go/v2"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/config"
	"github.com/dkeye/Huddle/internal/core"
)

// roomMediaCodecs is the fixed capability set every router is created
// with: Opus for audio, then VP8, VP9, H264 in preference order.
var roomMediaCodecs = []*mediasoup.RtpCodecCapability{
	{Kind: mediasoup.MediaKindAudio, MimeType: "audio/opus", ClockRate: 48000, Channels: 2},
	{Kind: mediasoup.MediaKindVideo, MimeType: "video/VP8", ClockRate: 90000},
	{Kind: mediasoup.MediaKindVideo, MimeType: "video/VP9", ClockRate: 90000},
	{Kind: mediasoup.MediaKindVideo, MimeType: "video/H264", ClockRate: 90000},
}

// Engine implements core.Engine on top of the worker pool.
type Engine struct {
	pool *WorkerPool
	cfg  *config.MediaConfig
}

func NewEngine(pool *WorkerPool, cfg *config.MediaConfig) *Engine {
	return &Engine{pool: pool, cfg: cfg}
}

func (e *Engine) CreateRouter(ctx context.Context) (core.Router, error) {
	worker, err := e.pool.Next()
	if err != nil {
		return nil, err
	}
	r, err := await(ctx, func() (*mediasoup.Router, error) {
		return worker.CreateRouter(&mediasoup.RouterOptions{MediaCodecs: roomMediaCodecs})
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("module", "media").Str("router", r.Id()).Msg("router created")
	return &router{r: r, cfg: e.cfg}, nil
}

func (e *Engine) Shutdown() {
	e.pool.Shutdown()
}

// await runs one engine call in its own goroutine so the caller's
// deadline applies. The engine has no per-request timeout of its own; a
// hung call is abandoned and surfaces as ctx.Err.
func await[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

type router struct {
	r   *mediasoup.Router
	cfg *config.MediaConfig
}

func (x *router) ID() string { return x.r.Id() }

func (x *router) RtpCapabilities() *mediasoup.RtpCapabilities {
	return x.r.RtpCapabilities()
}

func (x *router) CanConsume(producerID string, caps *mediasoup.RtpCapabilities) bool {
	return x.r.CanConsume(producerID, caps)
}

func (x *router) CreateWebRtcTransport(ctx context.Context) (core.WebRtcTransport, error) {
	t, err := await(ctx, func() (*mediasoup.Transport, error) {
		return x.r.CreateWebRtcTransport(&mediasoup.WebRtcTransportOptions{
			ListenInfos: []mediasoup.TransportListenInfo{{
				Protocol:         "udp",
				Ip:               x.cfg.ListenIP,
				AnnouncedAddress: x.cfg.AnnouncedIP,
			}},
		})
	})
	if err != nil {
		return nil, err
	}
	return &webRtcTransport{transport: transport{t: t}}, nil
}

func (x *router) CreatePlainTransport(ctx context.Context, listenIP string) (core.PlainTransport, error) {
	t, err := await(ctx, func() (*mediasoup.Transport, error) {
		return x.r.CreatePlainTransport(&mediasoup.PlainTransportOptions{
			ListenInfo: mediasoup.TransportListenInfo{
				Protocol: "udp",
				Ip:       listenIP,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return &plainTransport{transport: transport{t: t}}, nil
}

func (x *router) Close() error {
	return x.r.Close()
}

type transport struct {
	t *mediasoup.Transport
}

func (x *transport) ID() string { return x.t.Id() }

func (x *transport) Produce(ctx context.Context, kind mediasoup.MediaKind, params *mediasoup.RtpParameters, appData mediasoup.H) (core.Producer, error) {
	p, err := await(ctx, func() (*mediasoup.Producer, error) {
		return x.t.Produce(&mediasoup.ProducerOptions{
			Kind:          kind,
			RtpParameters: params,
			AppData:       appData,
		})
	})
	if err != nil {
		return nil, err
	}
	return &producer{p: p}, nil
}

func (x *transport) Consume(ctx context.Context, producerID string, caps *mediasoup.RtpCapabilities) (core.Consumer, error) {
	c, err := await(ctx, func() (*mediasoup.Consumer, error) {
		return x.t.Consume(&mediasoup.ConsumerOptions{
			ProducerId:      producerID,
			RtpCapabilities: caps,
			// Always start paused so the first packets are not lost while
			// the client wires its receiver; callers resume explicitly.
			Paused: true,
		})
	})
	if err != nil {
		return nil, err
	}
	return &consumer{c: c}, nil
}

func (x *transport) Close() error {
	return x.t.Close()
}

type webRtcTransport struct {
	transport
}

func (x *webRtcTransport) Connect(ctx context.Context, dtls *mediasoup.DtlsParameters) error {
	_, err := await(ctx, func() (struct{}, error) {
		return struct{}{}, x.t.Connect(&mediasoup.TransportConnectOptions{DtlsParameters: dtls})
	})
	return err
}

func (x *webRtcTransport) IceParameters() *mediasoup.IceParameters {
	return &x.t.Data().WebRtcTransportData.IceParameters
}

func (x *webRtcTransport) IceCandidates() []mediasoup.IceCandidate {
	return x.t.Data().WebRtcTransportData.IceCandidates
}

func (x *webRtcTransport) DtlsParameters() *mediasoup.DtlsParameters {
	return &x.t.Data().WebRtcTransportData.DtlsParameters
}

type plainTransport struct {
	transport
}

func (x *plainTransport) Tuple() mediasoup.TransportTuple {
	return x.t.Data().PlainTransportData.Tuple
}

type producer struct {
	p *mediasoup.Producer
}

func (x *producer) ID() string                { return x.p.Id() }
func (x *producer) Kind() mediasoup.MediaKind { return x.p.Kind() }
func (x *producer) Close() error              { return x.p.Close() }

type consumer struct {
	c *mediasoup.Consumer
}

func (x *consumer) ID() string                { return x.c.Id() }
func (x *consumer) ProducerID() string        { return x.c.ProducerId() }
func (x *consumer) Kind() mediasoup.MediaKind { return x.c.Kind() }

func (x *consumer) RtpParameters() *mediasoup.RtpParameters {
	return x.c.RtpParameters()
}

func (x *consumer) Resume(ctx context.Context) error {
	_, err := await(ctx, func() (struct{}, error) {
		return struct{}{}, x.c.Resume()
	})
	return err
}

func (x *consumer) Close() error { return x.c.Close() }

func (x *consumer) OnProducerClose(fn func()) {
	x.c.OnProducerClose(func(context.Context) { fn() })
}

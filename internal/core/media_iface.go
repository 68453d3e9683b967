package core

import (
	"context"

	mediasoup "github.com/jiyeyuran/mediasoup-go/v2"
)

// Engine hands out per-hangout routers backed by the external worker
// processes. Owned by the adapter; callers never see workers directly.
type Engine interface {
	// CreateRouter allocates a routing engine on the next worker.
	CreateRouter(ctx context.Context) (Router, error)
	// Shutdown closes every worker process.
	Shutdown()
}

// Router is the per-hangout routing engine. It forwards media between
// producers and consumers without transcoding.
type Router interface {
	ID() string
	RtpCapabilities() *mediasoup.RtpCapabilities
	// CanConsume reports whether a producer can be consumed with the
	// given client capabilities.
	CanConsume(producerID string, caps *mediasoup.RtpCapabilities) bool
	CreateWebRtcTransport(ctx context.Context) (WebRtcTransport, error)
	// CreatePlainTransport binds a raw RTP transport to listenIP, used to
	// feed the broadcast bridge.
	CreatePlainTransport(ctx context.Context, listenIP string) (PlainTransport, error)
	Close() error
}

// Transport is one negotiated network path for a single participant,
// one per direction.
type Transport interface {
	ID() string
	Produce(ctx context.Context, kind mediasoup.MediaKind, params *mediasoup.RtpParameters, appData mediasoup.H) (Producer, error)
	// Consume creates a consumer in the paused state. Callers resume it
	// explicitly once the client is ready.
	Consume(ctx context.Context, producerID string, caps *mediasoup.RtpCapabilities) (Consumer, error)
	Close() error
}

type WebRtcTransport interface {
	Transport
	Connect(ctx context.Context, dtls *mediasoup.DtlsParameters) error
	IceParameters() *mediasoup.IceParameters
	IceCandidates() []mediasoup.IceCandidate
	DtlsParameters() *mediasoup.DtlsParameters
}

type PlainTransport interface {
	Transport
	// Tuple is the local address/port the engine listens on for this transport.
	Tuple() mediasoup.TransportTuple
}

// Producer is a published media track flowing into the routing engine.
type Producer interface {
	ID() string
	Kind() mediasoup.MediaKind
	Close() error
}

// Consumer is a forwarded copy of a producer's track for one participant.
type Consumer interface {
	ID() string
	ProducerID() string
	Kind() mediasoup.MediaKind
	RtpParameters() *mediasoup.RtpParameters
	Resume(ctx context.Context) error
	Close() error
	// OnProducerClose fires once when the source producer goes away.
	OnProducerClose(fn func())
}

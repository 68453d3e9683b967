package signal

import (
	"encoding/json"

	mediasoup "github.com/jiyeyuran/mediasoup-go/v2"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

// Envelope is the wire format both directions: requests carry an id and
// are answered with the same id; notifications carry no id.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
	ID   string          `json:"id,omitempty"`
}

// Client request types. The dispatch switch in io.go is the closed set;
// anything else gets a typed error reply.
const (
	ReqGetRouterRtpCapabilities = "getRouterRtpCapabilities"
	ReqCreateWebRtcTransport    = "createWebRtcTransport"
	ReqConnectTransport         = "connectTransport"
	ReqProduce                  = "produce"
	ReqConsume                  = "consume"
	ReqResumeConsumer           = "resumeConsumer"
	ReqGetParticipants          = "getParticipants"
)

// Server-initiated notification types.
const (
	NotifNewProducer     = "newProducer"
	NotifProducerClosed  = "producerClosed"
	NotifParticipantLeft = "participantLeft"
	NotifHangoutEnded    = "hangoutEnded"
	TypeError            = "error"
)

type createTransportPayload struct {
	Producing bool `json:"producing"`
}

type connectTransportPayload struct {
	DtlsParameters *mediasoup.DtlsParameters `json:"dtlsParameters"`
	Producing      bool                      `json:"producing"`
}

type producePayload struct {
	Kind          string                   `json:"kind"`
	RtpParameters *mediasoup.RtpParameters `json:"rtpParameters"`
	AppData       mediasoup.H              `json:"appData,omitempty"`
}

type consumePayload struct {
	ProducerID      string                     `json:"producerId"`
	RtpCapabilities *mediasoup.RtpCapabilities `json:"rtpCapabilities"`
}

type resumeConsumerPayload struct {
	ConsumerID string `json:"consumerId"`
}

type transportCreatedData struct {
	ID             string                    `json:"id"`
	IceParameters  *mediasoup.IceParameters  `json:"iceParameters"`
	IceCandidates  []mediasoup.IceCandidate  `json:"iceCandidates"`
	DtlsParameters *mediasoup.DtlsParameters `json:"dtlsParameters"`
}

type producedData struct {
	ID string `json:"id"`
}

type consumedData struct {
	ID            string                   `json:"id"`
	ProducerID    string                   `json:"producerId"`
	Kind          string                   `json:"kind"`
	RtpParameters *mediasoup.RtpParameters `json:"rtpParameters"`
}

type participantsData struct {
	Participants []core.ParticipantInfo `json:"participants"`
}

type newProducerData struct {
	ProducerID string        `json:"producerId"`
	UserID     domain.UserID `json:"userId"`
	Kind       string        `json:"kind"`
}

type producerClosedData struct {
	ConsumerID string `json:"consumerId"`
	ProducerID string `json:"producerId"`
}

type participantLeftData struct {
	UserID domain.UserID `json:"userId"`
}

type errorData struct {
	Message string `json:"message"`
}

func marshalEnvelope(typ, id string, data any) (core.Frame, error) {
	env := Envelope{Type: typ, ID: id}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		env.Data = raw
	}
	return json.Marshal(env)
}

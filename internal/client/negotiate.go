package client

import (
	"encoding/json"

	mediasoup "github.com/jiyeyuran/mediasoup-go/v2"

	"github.com/dkeye/Huddle/internal/core"
)

// TransportInfo carries the connection parameters for one server-side
// transport.
type TransportInfo struct {
	ID             string                    `json:"id"`
	IceParameters  *mediasoup.IceParameters  `json:"iceParameters"`
	IceCandidates  []mediasoup.IceCandidate  `json:"iceCandidates"`
	DtlsParameters *mediasoup.DtlsParameters `json:"dtlsParameters"`
}

// ConsumeInfo describes a consumer created (paused) on the server.
type ConsumeInfo struct {
	ID            string                   `json:"id"`
	ProducerID    string                   `json:"producerId"`
	Kind          string                   `json:"kind"`
	RtpParameters *mediasoup.RtpParameters `json:"rtpParameters"`
}

func (c *Client) RouterRtpCapabilities() (*mediasoup.RtpCapabilities, error) {
	raw, err := c.request("getRouterRtpCapabilities", nil)
	if err != nil {
		return nil, err
	}
	var caps mediasoup.RtpCapabilities
	if err := json.Unmarshal(raw, &caps); err != nil {
		return nil, err
	}
	return &caps, nil
}

// RouterRtpCapabilitiesRaw returns the capability document verbatim.
func (c *Client) RouterRtpCapabilitiesRaw() (json.RawMessage, error) {
	return c.request("getRouterRtpCapabilities", nil)
}

func (c *Client) CreateTransport(producing bool) (*TransportInfo, error) {
	raw, err := c.request("createWebRtcTransport", map[string]bool{"producing": producing})
	if err != nil {
		return nil, err
	}
	var info TransportInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) ConnectTransport(dtls *mediasoup.DtlsParameters, producing bool) error {
	_, err := c.request("connectTransport", map[string]any{
		"dtlsParameters": dtls,
		"producing":      producing,
	})
	return err
}

// Produce publishes a track and returns the server-side producer id.
func (c *Client) Produce(kind string, params *mediasoup.RtpParameters, appData mediasoup.H) (string, error) {
	raw, err := c.request("produce", map[string]any{
		"kind":          kind,
		"rtpParameters": params,
		"appData":       appData,
	})
	if err != nil {
		return "", err
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (c *Client) Consume(producerID string, caps *mediasoup.RtpCapabilities) (*ConsumeInfo, error) {
	raw, err := c.request("consume", map[string]any{
		"producerId":      producerID,
		"rtpCapabilities": caps,
	})
	if err != nil {
		return nil, err
	}
	var info ConsumeInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) ResumeConsumer(consumerID string) error {
	_, err := c.request("resumeConsumer", map[string]string{"consumerId": consumerID})
	return err
}

// Participants snapshots the other publishers in the room. A client
// merging this with newProducer pushes must dedupe by producer id; a
// publish can race the snapshot.
func (c *Client) Participants() ([]core.ParticipantInfo, error) {
	raw, err := c.request("getParticipants", nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Participants []core.ParticipantInfo `json:"participants"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, err
	}
	return resp.Participants, nil
}

// Request sends an arbitrary typed request; used for probing and tests.
func (c *Client) Request(typ string, data any) (json.RawMessage, error) {
	return c.request(typ, data)
}

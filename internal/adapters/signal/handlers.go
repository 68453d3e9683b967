package signal

import (
	"encoding/json"
	"fmt"

	mediasoup "github.com/jiyeyuran/mediasoup-go/v2"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/core"
)

func (ctl *Controller) handleGetRouterRtpCapabilities(sess *session) (any, error) {
	return sess.room.Router().RtpCapabilities(), nil
}

func (ctl *Controller) handleCreateWebRtcTransport(sess *session, data json.RawMessage) (any, error) {
	var p createTransportPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("bad payload: %w", err)
	}

	ctx, cancel := ctl.opCtx()
	defer cancel()
	transport, err := sess.room.Router().CreateWebRtcTransport(ctx)
	if err != nil {
		return nil, err
	}
	if !ctl.sessionAlive(sess) {
		_ = transport.Close()
		return nil, errSessionClosed
	}
	sess.participant.SetTransport(p.Producing, transport)

	return transportCreatedData{
		ID:             transport.ID(),
		IceParameters:  transport.IceParameters(),
		IceCandidates:  transport.IceCandidates(),
		DtlsParameters: transport.DtlsParameters(),
	}, nil
}

func (ctl *Controller) handleConnectTransport(sess *session, data json.RawMessage) (any, error) {
	var p connectTransportPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("bad payload: %w", err)
	}

	transport := sess.participant.Transport(p.Producing)
	if transport == nil {
		return nil, core.ErrTransportNotFound
	}

	ctx, cancel := ctl.opCtx()
	defer cancel()
	if err := transport.Connect(ctx, p.DtlsParameters); err != nil {
		return nil, err
	}
	return struct{}{}, nil
}

func (ctl *Controller) handleProduce(sess *session, data json.RawMessage) (any, error) {
	var p producePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("bad payload: %w", err)
	}
	kind, err := parseKind(p.Kind)
	if err != nil {
		return nil, err
	}

	transport := sess.participant.Transport(true)
	if transport == nil {
		return nil, core.ErrSendTransportNotFound
	}

	ctx, cancel := ctl.opCtx()
	defer cancel()
	producer, err := transport.Produce(ctx, kind, p.RtpParameters, p.AppData)
	if err != nil {
		return nil, err
	}
	if !ctl.sessionAlive(sess) {
		_ = producer.Close()
		return nil, errSessionClosed
	}
	sess.participant.AddProducer(producer)
	log.Info().Str("module", "signal").Str("user", string(sess.user)).Str("producer", producer.ID()).Str("kind", p.Kind).Msg("produce")

	ctl.notifyOthers(sess.room, sess.user, NotifNewProducer, newProducerData{
		ProducerID: producer.ID(),
		UserID:     sess.user,
		Kind:       string(producer.Kind()),
	})

	return producedData{ID: producer.ID()}, nil
}

func (ctl *Controller) handleConsume(sess *session, data json.RawMessage) (any, error) {
	var p consumePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("bad payload: %w", err)
	}

	if !sess.room.Router().CanConsume(p.ProducerID, p.RtpCapabilities) {
		return nil, core.ErrCannotConsume
	}
	transport := sess.participant.Transport(false)
	if transport == nil {
		return nil, core.ErrTransportNotFound
	}

	ctx, cancel := ctl.opCtx()
	defer cancel()
	consumer, err := transport.Consume(ctx, p.ProducerID, p.RtpCapabilities)
	if err != nil {
		return nil, err
	}
	if !ctl.sessionAlive(sess) {
		_ = consumer.Close()
		return nil, errSessionClosed
	}
	sess.participant.AddConsumer(consumer)

	// When the source producer goes away the client gets one push so it
	// can garbage-collect its receiver; the entry is gone server-side.
	participant, conn := sess.participant, sess.conn
	consumerID, producerID := consumer.ID(), consumer.ProducerID()
	consumer.OnProducerClose(func() {
		participant.RemoveConsumer(consumerID)
		ctl.sendTo(conn, NotifProducerClosed, producerClosedData{
			ConsumerID: consumerID,
			ProducerID: producerID,
		})
	})

	return consumedData{
		ID:            consumer.ID(),
		ProducerID:    consumer.ProducerID(),
		Kind:          string(consumer.Kind()),
		RtpParameters: consumer.RtpParameters(),
	}, nil
}

func (ctl *Controller) handleResumeConsumer(sess *session, data json.RawMessage) (any, error) {
	var p resumeConsumerPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("bad payload: %w", err)
	}

	consumer, ok := sess.participant.Consumer(p.ConsumerID)
	if !ok {
		return nil, core.ErrConsumerNotFound
	}

	ctx, cancel := ctl.opCtx()
	defer cancel()
	if err := consumer.Resume(ctx); err != nil {
		return nil, err
	}
	return struct{}{}, nil
}

func (ctl *Controller) handleGetParticipants(sess *session) (any, error) {
	return participantsData{Participants: sess.room.Publishers(sess.user)}, nil
}

func parseKind(kind string) (mediasoup.MediaKind, error) {
	switch k := mediasoup.MediaKind(kind); k {
	case mediasoup.MediaKindAudio, mediasoup.MediaKindVideo:
		return k, nil
	default:
		return "", fmt.Errorf("unknown media kind %q", kind)
	}
}

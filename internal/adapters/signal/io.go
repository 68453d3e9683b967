package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/core"
)

func (ctl *Controller) writePump(ctx context.Context, c *wsSignalConn) {
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, cancel context.CancelFunc, sess *session) {
	defer func() {
		log.Info().Str("module", "signal").Str("user", string(sess.user)).Msg("readPump closing")
		cancel()
		ctl.handleDisconnect(sess)
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("user", string(sess.user)).Msg("readPump ctx done")
			return
		default:
			_, data, err := sess.conn.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "signal").Str("user", string(sess.user)).Msg("readPump read error")
				return
			}
			ctl.dispatch(sess, data)
		}
	}
}

// dispatch parses one envelope and routes it to the matching handler.
// Every handler error becomes a typed error envelope with the request
// id; nothing thrown here closes the connection.
func (ctl *Controller) dispatch(sess *session, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		ctl.replyError(sess, "", "bad envelope")
		return
	}

	var (
		resp any
		err  error
	)
	switch env.Type {
	case ReqGetRouterRtpCapabilities:
		resp, err = ctl.handleGetRouterRtpCapabilities(sess)
	case ReqCreateWebRtcTransport:
		resp, err = ctl.handleCreateWebRtcTransport(sess, env.Data)
	case ReqConnectTransport:
		resp, err = ctl.handleConnectTransport(sess, env.Data)
	case ReqProduce:
		resp, err = ctl.handleProduce(sess, env.Data)
	case ReqConsume:
		resp, err = ctl.handleConsume(sess, env.Data)
	case ReqResumeConsumer:
		resp, err = ctl.handleResumeConsumer(sess, env.Data)
	case ReqGetParticipants:
		resp, err = ctl.handleGetParticipants(sess)
	default:
		err = fmt.Errorf("unknown request type %q", env.Type)
	}

	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("type", env.Type).Str("user", string(sess.user)).Msg("request failed")
		ctl.replyError(sess, env.ID, err.Error())
		return
	}
	ctl.reply(sess, env.Type, env.ID, resp)
}

func (ctl *Controller) reply(sess *session, typ, id string, data any) {
	frame, err := marshalEnvelope(typ, id, data)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("reply marshal")
		return
	}
	ctl.deliver(sess, frame)
}

func (ctl *Controller) replyError(sess *session, id, msg string) {
	frame, err := marshalEnvelope(TypeError, id, errorData{Message: msg})
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("error marshal")
		return
	}
	ctl.deliver(sess, frame)
}

func (ctl *Controller) deliver(sess *session, frame core.Frame) {
	if err := sess.conn.TrySend(frame); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("user", string(sess.user)).Msg("reply dropped")
	}
}

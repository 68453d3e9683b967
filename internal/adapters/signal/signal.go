package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/app/rooms"
	"github.com/dkeye/Huddle/internal/config"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

var (
	ErrBackpressure  = errors.New("backpressure")
	errSessionClosed = errors.New("connection no longer active")
)

const defaultOpTimeout = 15 * time.Second

// Controller serves the per-client signaling channel: one bidirectional
// WS connection bound to exactly one (room, participant) pair.
type Controller struct {
	Registry  *rooms.Registry
	Directory core.Directory
	Cfg       *config.Config
}

func NewController(registry *rooms.Registry, directory core.Directory, cfg *config.Config) *Controller {
	return &Controller{Registry: registry, Directory: directory, Cfg: cfg}
}

type wsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *wsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// session is the state behind one signaling connection.
type session struct {
	user        domain.UserID
	room        *rooms.Room
	participant *rooms.Participant
	conn        *wsSignalConn
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal authenticates the connection token, binds the client to
// an existing room and starts the read/write pumps. The room must have
// been created by the lifecycle service beforehand; a missing room or a
// bad token is answered with an error envelope and an immediate close.
func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	hangoutID := domain.HangoutID(c.Param("id"))
	token := c.Query("token")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &wsSignalConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}
	if ctl.Cfg.ReadLimit > 0 {
		ws.SetReadLimit(ctl.Cfg.ReadLimit)
	}
	// Clients ping on Cfg.PingPeriod; a connection silent for two
	// periods is dead and gets cut by the read deadline.
	if wait := 2 * ctl.Cfg.PingPeriod; wait > 0 {
		_ = ws.SetReadDeadline(time.Now().Add(wait))
		ws.SetPingHandler(func(appData string) error {
			_ = ws.SetReadDeadline(time.Now().Add(wait))
			return ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
		})
	}

	authCtx, cancel := context.WithTimeout(ctx, ctl.opTimeout())
	user, err := ctl.Directory.Authenticate(authCtx, token)
	cancel()
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("hangout", string(hangoutID)).Msg("rejected connection")
		ctl.rejectConn(conn, core.ErrUnauthorized.Error())
		return
	}

	room, ok := ctl.Registry.Get(hangoutID)
	if !ok {
		log.Warn().Str("module", "signal").Str("hangout", string(hangoutID)).Msg("no room for connection")
		ctl.rejectConn(conn, core.ErrNoRoom.Error())
		return
	}

	participant, err := room.Join(user, conn)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("hangout", string(hangoutID)).Msg("room gone before join")
		ctl.rejectConn(conn, core.ErrNoRoom.Error())
		return
	}
	sess := &session{
		user:        user,
		room:        room,
		participant: participant,
		conn:        conn,
	}
	log.Info().Str("module", "signal").Str("hangout", string(hangoutID)).Str("user", string(user)).Msg("new WS connection")

	ctx, cancelPumps := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancelPumps, sess)
}

// rejectConn flushes one error envelope and drops the connection.
func (ctl *Controller) rejectConn(conn *wsSignalConn, msg string) {
	if frame, err := marshalEnvelope(TypeError, "", errorData{Message: msg}); err == nil {
		_ = conn.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		_ = conn.conn.WriteMessage(websocket.TextMessage, frame)
	}
	conn.Close()
}

func (ctl *Controller) opTimeout() time.Duration {
	if ctl.Cfg != nil && ctl.Cfg.Media.OpTimeout > 0 {
		return ctl.Cfg.Media.OpTimeout
	}
	return defaultOpTimeout
}

// opCtx bounds one engine-facing call; a hung engine call becomes a
// timeout error envelope instead of a wedged connection.
func (ctl *Controller) opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), ctl.opTimeout())
}

// sendTo pushes a server-initiated notification to a single connection.
func (ctl *Controller) sendTo(conn core.SignalConnection, typ string, data any) {
	frame, err := marshalEnvelope(typ, "", data)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("notification marshal")
		return
	}
	_ = conn.TrySend(frame)
}

// notifyOthers fans a notification out to every other participant in
// the room.
func (ctl *Controller) notifyOthers(room *rooms.Room, except domain.UserID, typ string, data any) {
	frame, err := marshalEnvelope(typ, "", data)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("notification marshal")
		return
	}
	room.Fanout(except, frame)
}

// NotifyHangoutEnded tells every connected participant the hangout was
// administratively ended; their channels close right after.
func (ctl *Controller) NotifyHangoutEnded(room *rooms.Room) {
	ctl.notifyOthers(room, "", NotifHangoutEnded, struct{}{})
}

// sessionAlive reports whether sess still owns its participant slot.
// Engine calls suspend the handler; a disconnect or reconnect racing
// the call invalidates the session, and any handle created meanwhile
// must be closed instead of stored.
func (ctl *Controller) sessionAlive(sess *session) bool {
	p, ok := sess.room.Participant(sess.user)
	return ok && p == sess.participant && p.Conn() == core.SignalConnection(sess.conn)
}

// handleDisconnect tears the participant down and tells the room.
func (ctl *Controller) handleDisconnect(sess *session) {
	sess.conn.Close()

	// A reconnect may have replaced this connection already; only the
	// current holder tears the participant down.
	if p, ok := sess.room.Participant(sess.user); !ok || p.Conn() != core.SignalConnection(sess.conn) {
		return
	}

	remaining := sess.room.Leave(sess.user)
	ctl.notifyOthers(sess.room, sess.user, NotifParticipantLeft, participantLeftData{UserID: sess.user})
	log.Info().Str("module", "signal").Str("hangout", string(sess.room.ID())).Str("user", string(sess.user)).Msg("disconnected")

	if remaining == 0 {
		ctl.Registry.Close(sess.room.ID())
	}
}

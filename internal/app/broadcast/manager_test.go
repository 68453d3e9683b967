package broadcast

import (
	"context"
	"os/exec"
	"sync"
	"testing"
	"time"

	mediasoup "github.com/jiyeyuran/mediasoup-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Huddle/internal/app/rooms"
	"github.com/dkeye/Huddle/internal/config"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/mediatest"
)

type stubConn struct{}

func (stubConn) TrySend(core.Frame) error { return nil }
func (stubConn) Close()                   {}

type stubDirectory struct {
	mu      sync.Mutex
	cleared []domain.HangoutID
}

func (d *stubDirectory) Authenticate(ctx context.Context, token string) (domain.UserID, error) {
	return domain.UserID(token), nil
}

func (d *stubDirectory) ClearBroadcast(ctx context.Context, id domain.HangoutID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cleared = append(d.cleared, id)
	return nil
}

func (d *stubDirectory) clearedFor(id domain.HangoutID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range d.cleared {
		if c == id {
			return true
		}
	}
	return false
}

// fakeEncoder swaps the ffmpeg invocation for a harmless long sleep so
// spawn/signal/wait behave like the real subprocess.
func fakeEncoder(t *testing.T) {
	t.Helper()
	orig := execCommand
	execCommand = func(name string, args ...string) *exec.Cmd {
		return exec.Command("sleep", "60")
	}
	t.Cleanup(func() { execCommand = orig })
}

func newTestManager(t *testing.T) (*Manager, *rooms.Registry, *stubDirectory) {
	t.Helper()
	registry := rooms.NewRegistry(mediatest.NewEngine())
	dir := &stubDirectory{}
	cfg := &config.Config{
		Media:     config.MediaConfig{OpTimeout: time.Second},
		Broadcast: config.BroadcastConfig{FFmpegBin: "ffmpeg"},
	}
	return NewManager(registry, dir, cfg), registry, dir
}

// addPublisher joins a user with one producer per requested kind.
func addPublisher(t *testing.T, room *rooms.Room, user domain.UserID, kinds ...string) {
	t.Helper()
	ctx := context.Background()
	p, err := room.Join(user, stubConn{})
	require.NoError(t, err)
	send, err := room.Router().CreateWebRtcTransport(ctx)
	require.NoError(t, err)
	p.SetTransport(true, send)
	for _, kind := range kinds {
		producer, err := send.Produce(ctx, mediasoup.MediaKind(kind), nil, nil)
		require.NoError(t, err)
		p.AddProducer(producer)
	}
}

func TestStartUnknownRoom(t *testing.T) {
	m, _, _ := newTestManager(t)
	err := m.Start(context.Background(), "nope", "rtmp://example/live")
	assert.ErrorIs(t, err, core.ErrNoRoom)
}

func TestStartWithoutProducers(t *testing.T) {
	m, registry, _ := newTestManager(t)
	room, err := registry.GetOrCreate(context.Background(), "h1")
	require.NoError(t, err)
	_, err = room.Join("alice", stubConn{})
	require.NoError(t, err)

	err = m.Start(context.Background(), "h1", "rtmp://example/live")
	assert.ErrorIs(t, err, core.ErrNoBroadcastSource)
	assert.False(t, m.IsActive("h1"))
	assert.False(t, room.Broadcasting())
}

func TestStartAtMostOnePerRoom(t *testing.T) {
	fakeEncoder(t)
	m, registry, _ := newTestManager(t)
	room, err := registry.GetOrCreate(context.Background(), "h1")
	require.NoError(t, err)
	addPublisher(t, room, "alice", "audio", "video")

	require.NoError(t, m.Start(context.Background(), "h1", "rtmp://example/live"))
	assert.True(t, m.IsActive("h1"))
	assert.True(t, room.Broadcasting())

	err = m.Start(context.Background(), "h1", "rtmp://example/live")
	assert.ErrorIs(t, err, core.ErrBroadcastActive)

	m.Stop("h1")
	assert.False(t, m.IsActive("h1"))
	assert.False(t, room.Broadcasting())

	// A fresh start is allowed once the previous bridge is gone.
	require.NoError(t, m.Start(context.Background(), "h1", "rtmp://example/live"))
	m.Stop("h1")
}

func TestStartAudioOnly(t *testing.T) {
	fakeEncoder(t)
	m, registry, _ := newTestManager(t)
	room, err := registry.GetOrCreate(context.Background(), "h1")
	require.NoError(t, err)
	addPublisher(t, room, "alice", "audio")

	require.NoError(t, m.Start(context.Background(), "h1", "rtmp://example/live"))
	assert.True(t, m.IsActive("h1"))
	m.Stop("h1")
}

func TestStopClosesBridgeResources(t *testing.T) {
	fakeEncoder(t)
	m, registry, _ := newTestManager(t)
	room, err := registry.GetOrCreate(context.Background(), "h1")
	require.NoError(t, err)
	addPublisher(t, room, "alice", "audio", "video")

	require.NoError(t, m.Start(context.Background(), "h1", "rtmp://example/live"))

	m.mu.Lock()
	b := m.bridges["h1"]
	m.mu.Unlock()
	require.NotNil(t, b)
	require.Len(t, b.consumers, 2)

	// Inject close failures everywhere: teardown must still reach every
	// handle.
	for _, c := range b.consumers {
		c.(*mediatest.Consumer).CloseErr = assert.AnError
	}
	b.audioTransport.(*mediatest.PlainTransport).CloseErr = assert.AnError
	b.videoTransport.(*mediatest.PlainTransport).CloseErr = assert.AnError

	m.Stop("h1")

	for _, c := range b.consumers {
		assert.True(t, c.(*mediatest.Consumer).Closed())
	}
	assert.True(t, b.audioTransport.(*mediatest.PlainTransport).Closed())
	assert.True(t, b.videoTransport.(*mediatest.PlainTransport).Closed())
	assert.False(t, room.Broadcasting())

	// Stop again: no-op.
	m.Stop("h1")
}

func TestBridgeConsumersResumed(t *testing.T) {
	fakeEncoder(t)
	m, registry, _ := newTestManager(t)
	room, err := registry.GetOrCreate(context.Background(), "h1")
	require.NoError(t, err)
	addPublisher(t, room, "alice", "audio", "video")

	require.NoError(t, m.Start(context.Background(), "h1", "rtmp://example/live"))
	defer m.Stop("h1")

	m.mu.Lock()
	b := m.bridges["h1"]
	m.mu.Unlock()
	require.NotNil(t, b)
	for _, c := range b.consumers {
		assert.False(t, c.(*mediatest.Consumer).Paused())
	}
}

func TestRoomCloseStopsBridge(t *testing.T) {
	fakeEncoder(t)
	m, registry, _ := newTestManager(t)
	room, err := registry.GetOrCreate(context.Background(), "h1")
	require.NoError(t, err)
	addPublisher(t, room, "alice", "audio")

	require.NoError(t, m.Start(context.Background(), "h1", "rtmp://example/live"))
	require.True(t, room.Broadcasting())

	registry.Close("h1")
	assert.False(t, m.IsActive("h1"))
}

func TestEncoderExitClearsBroadcastFlag(t *testing.T) {
	// "true" exits immediately, which looks like an encoder crash.
	orig := execCommand
	execCommand = func(name string, args ...string) *exec.Cmd {
		return exec.Command("true")
	}
	t.Cleanup(func() { execCommand = orig })

	m, registry, dir := newTestManager(t)
	room, err := registry.GetOrCreate(context.Background(), "h1")
	require.NoError(t, err)
	addPublisher(t, room, "alice", "audio")

	require.NoError(t, m.Start(context.Background(), "h1", "rtmp://example/live"))

	require.Eventually(t, func() bool {
		return !m.IsActive("h1") && dir.clearedFor("h1")
	}, 3*time.Second, 10*time.Millisecond)
	assert.False(t, room.Broadcasting())
}

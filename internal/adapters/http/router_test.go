package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Huddle/internal/adapters/signal"
	"github.com/dkeye/Huddle/internal/app/broadcast"
	"github.com/dkeye/Huddle/internal/app/rooms"
	"github.com/dkeye/Huddle/internal/config"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/mediatest"
)

type stubDirectory struct{}

func (stubDirectory) Authenticate(ctx context.Context, token string) (domain.UserID, error) {
	return domain.UserID(token), nil
}

func (stubDirectory) ClearBroadcast(ctx context.Context, id domain.HangoutID) error { return nil }

const testSecret = "svc-secret"

func newTestRouter(t *testing.T) (*gin.Engine, *rooms.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		Mode:   "test",
		Secret: testSecret,
		Media:  config.MediaConfig{OpTimeout: time.Second},
	}
	registry := rooms.NewRegistry(mediatest.NewEngine())
	bridges := broadcast.NewManager(registry, stubDirectory{}, cfg)
	ctl := signal.NewController(registry, stubDirectory{}, cfg)
	return SetupRouter(context.Background(), cfg, registry, bridges, ctl), registry
}

func doReq(r *gin.Engine, method, path, body string, authed bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if authed {
		req.Header.Set("X-Service-Secret", testSecret)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestServiceAuthRequired(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doReq(r, http.MethodPost, "/api/hangouts/h1/media", "", false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doReq(r, http.MethodPost, "/api/hangouts/h1/media", "", true)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestEnsureRoomIdempotent(t *testing.T) {
	r, registry := newTestRouter(t)

	w := doReq(r, http.MethodPost, "/api/hangouts/h1/media", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	var first map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))

	w = doReq(r, http.MethodPost, "/api/hangouts/h1/media", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	var second map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &second))

	assert.Equal(t, first["router_id"], second["router_id"])
	assert.Equal(t, 1, registry.Len())
}

func TestRoomStats(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doReq(r, http.MethodGet, "/api/hangouts/h1/media", "", true)
	assert.Equal(t, http.StatusNotFound, w.Code)

	doReq(r, http.MethodPost, "/api/hangouts/h1/media", "", true)
	w = doReq(r, http.MethodGet, "/api/hangouts/h1/media", "", true)
	require.Equal(t, http.StatusOK, w.Code)

	var stats core.RoomStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, domain.HangoutID("h1"), stats.HangoutID)
	assert.Equal(t, 0, stats.Participants)
	assert.False(t, stats.Broadcasting)
}

func TestCloseRoom(t *testing.T) {
	r, registry := newTestRouter(t)

	doReq(r, http.MethodPost, "/api/hangouts/h1/media", "", true)
	require.Equal(t, 1, registry.Len())

	w := doReq(r, http.MethodDelete, "/api/hangouts/h1/media", "", true)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 0, registry.Len())

	// Closing a room that never existed is still 204.
	w = doReq(r, http.MethodDelete, "/api/hangouts/ghost/media", "", true)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestStartBroadcastStatusCodes(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doReq(r, http.MethodPost, "/api/hangouts/h1/broadcast", `{"url":"rtmp://example/live"}`, true)
	assert.Equal(t, http.StatusNotFound, w.Code)

	doReq(r, http.MethodPost, "/api/hangouts/h1/media", "", true)

	w = doReq(r, http.MethodPost, "/api/hangouts/h1/broadcast", `{}`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// The room exists but nobody publishes anything yet.
	w = doReq(r, http.MethodPost, "/api/hangouts/h1/broadcast", `{"url":"rtmp://example/live"}`, true)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = doReq(r, http.MethodGet, "/api/hangouts/h1/broadcast", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"active":false}`, w.Body.String())

	w = doReq(r, http.MethodDelete, "/api/hangouts/h1/broadcast", "", true)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

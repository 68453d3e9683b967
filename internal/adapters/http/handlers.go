package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/adapters/signal"
	"github.com/dkeye/Huddle/internal/app/broadcast"
	"github.com/dkeye/Huddle/internal/app/rooms"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

type hangoutHandlers struct {
	registry *rooms.Registry
	bridges  *broadcast.Manager
	signal   *signal.Controller
}

// ensureRoom is called by the lifecycle service before the first join.
func (h *hangoutHandlers) ensureRoom(c *gin.Context) {
	id := domain.HangoutID(c.Param("id"))
	room, err := h.registry.GetOrCreate(c.Request.Context(), id)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Str("hangout", string(id)).Msg("ensure room")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"hangout_id": id, "router_id": room.Router().ID()})
}

func (h *hangoutHandlers) roomStats(c *gin.Context) {
	id := domain.HangoutID(c.Param("id"))
	room, ok := h.registry.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": core.ErrNoRoom.Error()})
		return
	}
	c.JSON(http.StatusOK, core.RoomStats{
		HangoutID:    id,
		Participants: room.ParticipantCount(),
		Producers:    room.ProducerCount(),
		Broadcasting: room.Broadcasting(),
	})
}

// closeRoom ends the runtime side of a hangout the lifecycle service
// has administratively ended.
func (h *hangoutHandlers) closeRoom(c *gin.Context) {
	id := domain.HangoutID(c.Param("id"))
	if room, ok := h.registry.Get(id); ok {
		h.signal.NotifyHangoutEnded(room)
	}
	h.registry.Close(id)
	c.Status(http.StatusNoContent)
}

type startBroadcastRequest struct {
	URL string `json:"url"`
}

func (h *hangoutHandlers) startBroadcast(c *gin.Context) {
	id := domain.HangoutID(c.Param("id"))
	var req startBroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.URL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid url"})
		return
	}
	if err := h.bridges.Start(c.Request.Context(), id, req.URL); err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, core.ErrNoRoom):
			status = http.StatusNotFound
		case errors.Is(err, core.ErrBroadcastActive):
			status = http.StatusConflict
		case errors.Is(err, core.ErrNoBroadcastSource):
			status = http.StatusUnprocessableEntity
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"active": true})
}

func (h *hangoutHandlers) broadcastStatus(c *gin.Context) {
	id := domain.HangoutID(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"active": h.bridges.IsActive(id)})
}

func (h *hangoutHandlers) stopBroadcast(c *gin.Context) {
	h.bridges.Stop(domain.HangoutID(c.Param("id")))
	c.Status(http.StatusNoContent)
}

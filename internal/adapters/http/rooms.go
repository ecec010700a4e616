package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/domain"
)

type JoinRequest struct {
	Code string `json:"code"`
}

type RoomResponse struct {
	ID   domain.RoomID `json:"id"`
	Path string        `json:"path"`
}

type roomsHandler struct {
	dir *app.Directory
}

func roomPath(id domain.RoomID) string { return "/room/" + string(id) }

func (h *roomsHandler) list(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": h.dir.List()})
}

// create hands out a fresh id; the room itself exists only once someone joins.
func (h *roomsHandler) create(c *gin.Context) {
	id := domain.GenerateRoomID()
	c.JSON(http.StatusOK, RoomResponse{ID: id, Path: roomPath(id)})
}

func (h *roomsHandler) join(c *gin.Context) {
	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid code"})
		return
	}
	id := domain.RoomID(req.Code)
	if err := id.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": app.MsgInvalidRoom})
		return
	}
	c.JSON(http.StatusOK, RoomResponse{ID: id, Path: roomPath(id)})
}

func (h *roomsHandler) get(c *gin.Context) {
	id := domain.RoomID(c.Param("id"))
	if err := id.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": app.MsgInvalidRoom})
		return
	}
	info, ok := h.dir.Room(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	c.JSON(http.StatusOK, info)
}

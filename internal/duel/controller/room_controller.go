package controller

import (
	"strings"

	"algoarena/internal/auth"
	"algoarena/internal/duel/model"
	"algoarena/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// RoomReader is the read side of the room registry.
type RoomReader interface {
	ListRooms() []model.Summary
	GetRoom(roomID, userID string) (model.RoomView, error)
}

// RoomController serves the lobby over HTTP for clients that poll.
type RoomController struct {
	rooms RoomReader
}

func NewRoomController(rooms RoomReader) *RoomController {
	return &RoomController{rooms: rooms}
}

// List returns the open rooms.
func (h *RoomController) List(c *gin.Context) {
	response.Success(c, gin.H{"rooms": h.rooms.ListRooms()})
}

// Get returns the caller's view of a room they are in.
func (h *RoomController) Get(c *gin.Context) {
	caller, _ := auth.FromGin(c)
	view, err := h.rooms.GetRoom(strings.ToUpper(c.Param("id")), caller.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, view)
}

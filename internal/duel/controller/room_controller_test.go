package controller

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"algoarena/internal/auth"
	"algoarena/internal/duel/model"
	appErr "algoarena/pkg/errors"

	"github.com/gin-gonic/gin"
)

type fakeRooms struct{}

func (fakeRooms) ListRooms() []model.Summary {
	return []model.Summary{{ID: "ABC234", Status: model.StatusWaiting, PlayerCount: 1, Players: []string{"Ada"}}}
}

func (fakeRooms) GetRoom(roomID, userID string) (model.RoomView, error) {
	if roomID != "ABC234" {
		return model.RoomView{}, appErr.New(appErr.RoomNotFound)
	}
	if userID != "u1" {
		return model.RoomView{}, appErr.New(appErr.NotInRoom)
	}
	return model.RoomView{ID: roomID, Status: model.StatusWaiting}, nil
}

func TestRoomController(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewRoomController(fakeRooms{})

	tests := []struct {
		name   string
		userID string
		path   string
		status int
	}{
		{"list", "u1", "/rooms", http.StatusOK},
		{"member reads room", "u1", "/rooms/abc234", http.StatusOK},
		{"outsider", "u2", "/rooms/ABC234", http.StatusForbidden},
		{"missing", "u1", "/rooms/ZZZ999", http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			router := gin.New()
			router.Use(func(c *gin.Context) {
				auth.SetIdentity(c, auth.Identity{UserID: tc.userID})
				c.Next()
			})
			router.GET("/rooms", h.List)
			router.GET("/rooms/:id", h.Get)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tc.path, nil))
			if w.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, w.Code, w.Body.String())
			}
			if tc.status != http.StatusOK {
				return
			}
			var body struct {
				Data json.RawMessage `json:"data"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(body.Data) == 0 {
				t.Fatalf("expected data in response")
			}
		})
	}
}

package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"algoarena/internal/auth"
	commonmw "algoarena/internal/common/http/middleware"
	"algoarena/internal/duel/model"
	duelService "algoarena/internal/duel/service"
	appErr "algoarena/pkg/errors"
	"algoarena/pkg/utils/logger"
	"algoarena/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// DuelService is the part of the room registry driven by websocket actions.
type DuelService interface {
	CreateRoom(ctx context.Context, c duelService.Caller) (model.RoomView, error)
	JoinRoom(ctx context.Context, roomID string, c duelService.Caller) (model.RoomView, error)
	ListRooms() []model.Summary
	SetReady(ctx context.Context, roomID string, c duelService.Caller) error
	Submit(ctx context.Context, roomID string, c duelService.Caller, code, language string) error
	Leave(ctx context.Context, roomID string, c duelService.Caller) error
	Connect(ctx context.Context, c duelService.Caller)
	Disconnect(ctx context.Context, userID, connID string)
}

// Handler upgrades authenticated requests and dispatches client actions.
type Handler struct {
	hub      *Hub
	duel     DuelService
	authn    auth.Authenticator
	upgrader websocket.Upgrader
}

func NewHandler(hub *Hub, duel DuelService, authn auth.Authenticator) *Handler {
	h := &Handler{hub: hub, duel: duel, authn: authn}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// ServeWS authenticates the handshake and runs the connection until it closes.
func (h *Handler) ServeWS(c *gin.Context) {
	ctx := c.Request.Context()
	identity, err := h.authn.Authenticate(ctx, auth.ExtractToken(c.Request))
	if err != nil {
		response.AbortWithError(c, err)
		return
	}
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn(ctx, "websocket upgrade failed", zap.Error(err))
		return
	}

	cfg := h.hub.cfg
	conn := newConn(context.WithoutCancel(ctx), uuid.NewString(), identity.UserID, ws, cfg.SendBuffer)
	h.hub.register(conn)
	go conn.writePump(cfg)
	logger.Info(conn.ctx, "websocket connected")

	h.duel.Connect(conn.ctx, duelService.Caller{
		UserID:      identity.UserID,
		DisplayName: identity.Username,
		ConnID:      conn.id,
	})
	h.readPump(conn, identity)

	h.hub.unregister(conn)
	conn.close()
	h.duel.Disconnect(conn.ctx, identity.UserID, conn.id)
	logger.Info(conn.ctx, "websocket disconnected")
}

func (h *Handler) readPump(conn *Conn, identity auth.Identity) {
	cfg := h.hub.cfg
	conn.ws.SetReadLimit(cfg.MaxMessageBytes)
	_ = conn.ws.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
	conn.ws.SetPongHandler(func(string) error {
		return conn.ws.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
	})
	for {
		_, raw, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug(conn.ctx, "websocket read failed", zap.Error(err))
			}
			return
		}
		_ = conn.ws.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
		var env model.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			h.replyError(conn, model.EventDuelError, "", appErr.New(appErr.InvalidFormat).WithMessage("malformed message"))
			continue
		}
		h.dispatch(conn, identity, env)
	}
}

// dispatch runs one client action. Create and join failures are reported as
// joinError, everything else as duelError.
func (h *Handler) dispatch(conn *Conn, identity auth.Identity, env model.Envelope) {
	ctx := conn.ctx
	caller := duelService.Caller{UserID: identity.UserID, DisplayName: identity.Username, ConnID: conn.id}

	switch env.Event {
	case model.ActionCreateDuel:
		var p model.CreateDuelPayload
		if err := h.decode(env, &p, identity, &p.UserID); err != nil {
			h.replyError(conn, model.EventJoinError, "", err)
			return
		}
		caller.DisplayName = pick(p.Username, identity.Username)
		caller.Languages = p.Languages
		if _, err := h.duel.CreateRoom(ctx, caller); err != nil {
			h.replyError(conn, model.EventJoinError, "", err)
		}
	case model.ActionJoinDuel:
		var p model.JoinDuelPayload
		if err := h.decode(env, &p, identity, &p.UserID); err != nil {
			h.replyError(conn, model.EventJoinError, p.RoomID, err)
			return
		}
		caller.DisplayName = pick(p.Username, identity.Username)
		caller.Languages = p.Languages
		if _, err := h.duel.JoinRoom(ctx, normalizeRoomID(p.RoomID), caller); err != nil {
			h.replyError(conn, model.EventJoinError, p.RoomID, err)
		}
	case model.ActionPlayerReady:
		var p model.ReadyPayload
		if err := h.decode(env, &p, identity, &p.UserID); err != nil {
			h.replyError(conn, model.EventDuelError, p.RoomID, err)
			return
		}
		if err := h.duel.SetReady(ctx, normalizeRoomID(p.RoomID), caller); err != nil {
			h.replyError(conn, model.EventDuelError, p.RoomID, err)
		}
	case model.ActionSubmitCode:
		var p model.SubmitPayload
		if err := h.decode(env, &p, identity, &p.UserID); err != nil {
			h.replyError(conn, model.EventDuelError, p.RoomID, err)
			return
		}
		if err := h.duel.Submit(ctx, normalizeRoomID(p.RoomID), caller, p.Code, p.Language); err != nil {
			h.replyError(conn, model.EventDuelError, p.RoomID, err)
		}
	case model.ActionLeaveDuel:
		var p model.LeavePayload
		if err := h.decode(env, &p, identity, &p.UserID); err != nil {
			h.replyError(conn, model.EventDuelError, p.RoomID, err)
			return
		}
		if err := h.duel.Leave(ctx, normalizeRoomID(p.RoomID), caller); err != nil {
			h.replyError(conn, model.EventDuelError, p.RoomID, err)
		}
	case model.ActionGetRoomList:
		h.hub.Send(conn.id, model.EventRoomList, h.duel.ListRooms())
	default:
		h.replyError(conn, model.EventDuelError, "", appErr.New(appErr.UnknownAction).WithDetail("event", env.Event))
	}
}

// decode parses the action payload and checks that a userId it names is the
// authenticated user.
func (h *Handler) decode(env model.Envelope, dst any, identity auth.Identity, userID *string) error {
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, dst); err != nil {
			return appErr.New(appErr.InvalidFormat).WithMessage("malformed payload")
		}
	}
	if userID != nil && *userID != "" && *userID != identity.UserID {
		return appErr.New(appErr.UserMismatch)
	}
	return nil
}

func (h *Handler) replyError(conn *Conn, event, roomID string, err error) {
	e := appErr.GetError(err)
	msg := e.Error()
	if e.Code.HTTPStatus() >= http.StatusInternalServerError {
		logger.Error(conn.ctx, "duel action failed", zap.Error(err))
		msg = e.Code.Message()
	} else {
		logger.Debug(conn.ctx, "duel action rejected", zap.Error(err))
	}
	h.hub.Send(conn.id, event, model.ErrorPayload{Message: msg, Code: int(e.Code), RoomID: roomID})
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	allowed := h.hub.cfg.AllowedOrigins
	origin := r.Header.Get("Origin")
	return len(allowed) == 0 || origin == "" || commonmw.OriginAllowed(origin, allowed)
}

func normalizeRoomID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

func pick(preferred, fallback string) string {
	if s := strings.TrimSpace(preferred); s != "" {
		return s
	}
	return fallback
}

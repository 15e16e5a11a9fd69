package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"chat-sync/internal/auth"
	"chat-sync/internal/codec"
	"chat-sync/internal/gateway"
	"chat-sync/internal/middleware"
	"chat-sync/internal/models"
	"chat-sync/internal/observability"
)

// LiveGateway is the part of the sync gateway used for live refresh.
type LiveGateway interface {
	GetAllConversations(ctx context.Context, email string) ([]models.ConversationSummary, error)
	ObserveConversations(ctx context.Context, email string) (<-chan []models.ConversationSummary, error)
	ObserveMessages(ctx context.Context, conversationID string) (<-chan []models.Message, error)
}

// LiveHandler streams conversation lists and message logs over websockets.
type LiveHandler struct {
	hub      *Hub
	gateway  LiveGateway
	verifier middleware.TokenVerifier
	logger   log.Logger
}

func NewLiveHandler(hub *Hub, gw LiveGateway, verifier middleware.TokenVerifier, logger log.Logger) *LiveHandler {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &LiveHandler{hub: hub, gateway: gw, verifier: verifier, logger: logger}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Conversations pushes the caller's conversation list on every change.
func (h *LiveHandler) Conversations(c *gin.Context) {
	me, ok := h.authenticate(c)
	if !ok {
		return
	}
	key := "conversations:" + me.SafeEmail()
	h.serve(c, "conversations", key, me, func(ctx context.Context) (<-chan any, error) {
		lists, err := h.gateway.ObserveConversations(ctx, me.Email)
		if err != nil {
			return nil, err
		}
		return relay(lists, func(list []models.ConversationSummary) any {
			return models.ConversationsEvent{Type: "conversations", Conversations: list}
		}), nil
	})
}

// Messages pushes a conversation's message log on every change. Only
// participants listed in the caller's conversations may subscribe.
func (h *LiveHandler) Messages(c *gin.Context) {
	me, ok := h.authenticate(c)
	if !ok {
		return
	}
	conversationID := c.Param("conversation_id")
	if !h.participates(c.Request.Context(), me, conversationID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not authorized for conversation"})
		return
	}
	key := "messages:" + conversationID
	h.serve(c, "messages", key, me, func(ctx context.Context) (<-chan any, error) {
		logs, err := h.gateway.ObserveMessages(ctx, conversationID)
		if err != nil {
			return nil, err
		}
		return relay(logs, func(msgs []models.Message) any {
			return models.MessagesEvent{Type: "messages", ConversationID: conversationID, Messages: records(msgs)}
		}), nil
	})
}

func (h *LiveHandler) authenticate(c *gin.Context) (models.Identity, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		if token := c.Query("token"); token != "" {
			header = "Bearer " + token
		}
	}
	token, ok := auth.BearerToken(header)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return models.Identity{}, false
	}
	claims, err := h.verifier.VerifyToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return models.Identity{}, false
	}
	return claims.Identity(), true
}

func (h *LiveHandler) participates(ctx context.Context, me models.Identity, conversationID string) bool {
	list, err := h.gateway.GetAllConversations(ctx, me.Email)
	if err != nil {
		if !errors.Is(err, gateway.ErrFetchFailed) {
			level.Error(h.logger).Log("msg", "participant check failed", "conversation", conversationID, "err", err)
		}
		return false
	}
	for _, s := range list {
		if s.ID == conversationID {
			return true
		}
	}
	return false
}

func (h *LiveHandler) serve(c *gin.Context, kind, key string, me models.Identity, feed Feed) {
	ctx, span := otel.Tracer("chat-sync/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	info := newConnInfo(c.Request, me, span)
	if err := h.hub.Join(kind, key, conn, info, feed); err != nil {
		level.Error(h.logger).Log("msg", "live feed unavailable", "room", key, "err", err)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "live updates unavailable"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}

	observability.IncWSActive(kind)
	publishWSEvent(ctx, kind, key, "ws_connect", info, "")

	// Keep connection alive and clean on close
	go func() {
		var closeReason string
		defer func() {
			h.hub.Leave(key, conn)
			observability.DecWSActive(kind)
			publishWSEvent(context.Background(), kind, key, "ws_disconnect", info, closeReason)
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				closeReason = err.Error()
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					publishWSEvent(context.Background(), kind, key, "ws_error", info, closeReason)
				}
				return
			}
		}
	}()
}

// relay converts every value of in to an event until in closes.
func relay[T any](in <-chan T, toEvent func(T) any) <-chan any {
	out := make(chan any)
	go func() {
		defer close(out)
		for v := range in {
			out <- toEvent(v)
		}
	}()
	return out
}

func records(msgs []models.Message) []models.MessageRecord {
	out := make([]models.MessageRecord, 0, len(msgs))
	for _, m := range msgs {
		rec, err := codec.EncodeMessage(m)
		if err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out
}

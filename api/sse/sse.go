package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/rpgquest/cache"
	"github.com/kasuganosora/rpgquest/config"
	"github.com/kasuganosora/rpgquest/game/quest"
	"github.com/kasuganosora/rpgquest/game/world"
	mw "github.com/kasuganosora/rpgquest/middleware"
	"go.uber.org/zap"
)

const (
	keepAlive  = 30 * time.Second
	retryAfter = 5 * time.Second
)

// Broadcast is the data of one "broadcast" event: a world announcement sent
// by quest content or by an operator.
type Broadcast struct {
	Message string `json:"message"`
	Channel string `json:"channel"`
	SentAt  int64  `json:"sent_at"`
}

type connected struct {
	CharID int64 `json:"char_id"`
}

// Handler streams world broadcasts to web clients that hold no game
// connection, such as a launcher or a status page.
type Handler struct {
	pubsub cache.PubSub
	sec    config.SecurityConfig
	c      cache.Cache
	logger *zap.Logger
}

func NewHandler(pubsub cache.PubSub, c cache.Cache, sec config.SecurityConfig, logger *zap.Logger) *Handler {
	return &Handler{pubsub: pubsub, c: c, sec: sec, logger: logger}
}

// writeEvent writes one frame. id 0 leaves the id field out.
func writeEvent(w io.Writer, event string, id uint64, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if id > 0 {
		if _, err := io.WriteString(w, "id: "+strconv.FormatUint(id, 10)+"\n"); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

// authorize accepts a signed token whose session is still recorded.
func (h *Handler) authorize(c *gin.Context) (int64, bool) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return 0, false
	}
	claims, err := mw.ParseToken(token, h.sec.JWTSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return 0, false
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if live, err := h.c.Exists(ctx, mw.SessionKey(token)); err != nil || !live {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
		return 0, false
	}
	return claims.CharID, true
}

// ServeSSE handles GET /sse?token=<jwt>. Event ids count broadcasts per
// stream; a reconnecting client starts a new count.
func (h *Handler) ServeSSE(c *gin.Context) {
	charID, ok := h.authorize(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	msgs, unsub, err := h.pubsub.Subscribe(ctx, world.BroadcastChannel)
	if err != nil {
		h.logger.Error("sse subscribe failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "broadcasts unavailable"})
		return
	}
	defer unsub()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	w := c.Writer
	fmt.Fprintf(w, "retry: %d\n", retryAfter.Milliseconds())
	if err := writeEvent(w, "connected", 0, connected{CharID: charID}); err != nil {
		return
	}
	w.Flush()
	h.logger.Debug("sse stream opened", zap.Int64("char_id", charID))

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	var seq uint64
	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			seq++
			ev := Broadcast{
				Message: msg.Payload,
				Channel: quest.ChatBroadcast.String(),
				SentAt:  time.Now().UnixMilli(),
			}
			if err := writeEvent(w, "broadcast", seq, ev); err != nil {
				h.logger.Debug("sse write failed", zap.Int64("char_id", charID), zap.Error(err))
				return
			}
			w.Flush()

		case <-ticker.C:
			io.WriteString(w, ": keepalive\n\n")
			w.Flush()

		case <-ctx.Done():
			return
		}
	}
}

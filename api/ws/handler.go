package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/kasuganosora/rpgquest/cache"
	"github.com/kasuganosora/rpgquest/config"
	"github.com/kasuganosora/rpgquest/game/party"
	"github.com/kasuganosora/rpgquest/game/player"
	"github.com/kasuganosora/rpgquest/game/quest"
	"github.com/kasuganosora/rpgquest/game/world"
	mw "github.com/kasuganosora/rpgquest/middleware"
	"go.uber.org/zap"
)

const saveTimeout = 5 * time.Second

// Handler is the Gin handler for GET /ws.
type Handler struct {
	cache    cache.Cache
	sec      config.SecurityConfig
	sm       *player.SessionManager
	world    *world.World
	engine   *quest.Engine
	store    *world.Store
	partyMgr *party.Manager
	router   *Router
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a new WebSocket Handler.
// sec.AllowedOrigins controls which WebSocket origins are accepted.
// An empty slice permits all origins (development only).
func NewHandler(
	c cache.Cache,
	sec config.SecurityConfig,
	sm *player.SessionManager,
	w *world.World,
	eng *quest.Engine,
	store *world.Store,
	partyMgr *party.Manager,
	router *Router,
	logger *zap.Logger,
) *Handler {
	h := &Handler{
		cache:    c,
		sec:      sec,
		sm:       sm,
		world:    w,
		engine:   eng,
		store:    store,
		partyMgr: partyMgr,
		router:   router,
		logger:   logger,
	}
	allowed := sec.AllowedOrigins
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true // dev mode: allow all
			}
			origin := r.Header.Get("Origin")
			for _, o := range allowed {
				if o == origin {
					return true
				}
			}
			return false
		},
	}
	return h
}

// ServeWS handles GET /ws?token=<jwt>.
func (h *Handler) ServeWS(c *gin.Context) {
	tokenStr := c.Query("token")
	if tokenStr == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	claims, err := mw.ParseToken(tokenStr, h.sec.JWTSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	exists, err := h.cache.Exists(ctx, mw.SessionKey(tokenStr))
	if err != nil || !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
		return
	}

	// Look the character up before upgrading so a bad id still gets a JSON answer.
	char, err := h.store.LoadCharacter(ctx, claims.CharID)
	if errors.Is(err, world.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "character not found"})
		return
	}
	if err != nil {
		h.logger.Error("load character failed", zap.Int64("char_id", claims.CharID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("ws upgrade failed", zap.Error(err))
		return
	}

	sess := player.NewPlayerSession(char.ID, char.Name, conn, h.logger)
	p, err := h.join(context.Background(), sess)
	if err != nil {
		h.logger.Error("player join failed", zap.Int64("char_id", char.ID), zap.Error(err))
		sess.Close()
		return
	}

	// Blocks until the connection closes.
	h.readPump(sess, p)
}

// join loads the character, its bag and its quest journal and places the
// player in the world. A previous connection for the same character is
// displaced.
func (h *Handler) join(ctx context.Context, s *player.PlayerSession) (*world.Player, error) {
	char, err := h.store.LoadCharacter(ctx, s.CharID)
	if err != nil {
		return nil, err
	}
	bag, err := h.store.Inventory().Load(ctx, s.CharID)
	if err != nil {
		return nil, fmt.Errorf("load inventory: %w", err)
	}

	p := h.world.NewPlayer(s, char, bag)
	if err := h.engine.Manager().LoadPlayer(ctx, p); err != nil {
		return nil, err
	}
	h.sm.Register(s)
	h.world.Enter(p)
	p.Out().QuestList(h.engine.Manager().Entries(p))

	h.logger.Info("player joined",
		zap.Int64("char_id", s.CharID),
		zap.String("name", s.CharName),
		zap.Int("region", char.Region),
		zap.Int("active_quests", len(p.Journal().ActiveQuests())))
	return p, nil
}

// readPump reads messages from the WebSocket connection and dispatches them.
func (h *Handler) readPump(s *player.PlayerSession, p *world.Player) {
	defer func() {
		h.handleDisconnect(p)
	}()

	s.SetReadDeadline()
	s.Conn.SetPongHandler(func(string) error {
		s.SetReadDeadline()
		return nil
	})

	for {
		_, raw, err := s.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived) {
				h.logger.Warn("ws unexpected close",
					zap.Int64("char_id", s.CharID),
					zap.Error(err))
			}
			return
		}
		// Reset read deadline on any message (heartbeat or otherwise).
		s.SetReadDeadline()
		h.router.Dispatch(s, raw)
	}
}

// handleDisconnect cleans up after the connection closes: pending sequences
// and dialogs are cancelled, the party is left and the character is saved.
// A session displaced by a newer login leaves the character to the newer
// adapter and saves nothing.
func (h *Handler) handleDisconnect(p *world.Player) {
	s := p.Session()
	s.Close()

	if h.partyMgr != nil {
		h.partyMgr.LeaveParty(s)
	}
	h.sm.Unregister(s)
	if !h.world.Leave(p) {
		h.logger.Info("displaced session closed", zap.Int64("char_id", s.CharID))
		return
	}
	h.engine.PlayerLeft(p)
	if h.partyMgr != nil {
		h.partyMgr.CleanupInvites(s.CharID)
	}
	h.logger.Info("player disconnected", zap.Int64("char_id", s.CharID))

	// Async: persist the character and bag.
	go func() {
		defer func() {
			if r := recover(); r != nil {
				h.logger.Error("panic in disconnect save",
					zap.Int64("char_id", s.CharID),
					zap.Any("recover", r),
					zap.String("stack", string(debug.Stack())))
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()
		if err := h.store.SavePlayer(ctx, p); err != nil {
			h.logger.Error("save on disconnect failed",
				zap.Int64("char_id", s.CharID), zap.Error(err))
		}
	}()
}

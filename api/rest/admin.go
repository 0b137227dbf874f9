package rest

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/rpgquest/audit"
	"github.com/kasuganosora/rpgquest/cache"
	"github.com/kasuganosora/rpgquest/config"
	"github.com/kasuganosora/rpgquest/game/content"
	"github.com/kasuganosora/rpgquest/game/player"
	"github.com/kasuganosora/rpgquest/game/quest"
	"github.com/kasuganosora/rpgquest/game/world"
	mw "github.com/kasuganosora/rpgquest/middleware"
	"github.com/kasuganosora/rpgquest/model"
	"github.com/kasuganosora/rpgquest/scheduler"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	reloadLockKey = "lock:content_reload"
	reloadLockTTL = 30 * time.Second
	reloadTimeout = 20 * time.Second

	auditLimit    = 50
	auditLimitMax = 500
)

// AdminDeps are the collaborators of the admin endpoints.
type AdminDeps struct {
	Sessions    *player.SessionManager
	World       *world.World
	Engine      *quest.Engine
	Store       *world.Store
	Quests      quest.Store
	Loader      *content.Loader
	ContentPath string
	Cache       cache.Cache
	Security    config.SecurityConfig
	Scheduler   *scheduler.Scheduler
	Audit       *audit.Service
}

// AdminHandler handles admin-only REST endpoints.
// Routes should be protected by the AdminKey middleware.
type AdminHandler struct {
	AdminDeps
	logger *zap.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(deps AdminDeps, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{AdminDeps: deps, logger: logger}
}

// Mount registers /health and the /api/admin group. The group only admits
// whitelisted addresses carrying adminKey and is rate limited.
func (h *AdminHandler) Mount(r gin.IRouter, adminKey string) {
	r.GET("/health", h.Health)

	g := r.Group("/api/admin")
	g.Use(mw.IPWhitelist(h.Security.AdminIPWhitelist), mw.AdminKey(adminKey))
	if h.Security.RateLimitRPS > 0 {
		g.Use(mw.RateLimit(rate.Limit(h.Security.RateLimitRPS), h.Security.RateLimitBurst))
	}
	g.GET("/metrics", h.Metrics)
	g.GET("/players", h.ListPlayers)
	g.POST("/kick/:id", h.KickPlayer)
	g.GET("/scheduler", h.ListSchedulerTasks)
	g.GET("/quests", h.ListQuests)
	g.GET("/players/:id/quests", h.PlayerQuests)
	g.GET("/players/:id/audit", h.PlayerAudit)
	g.POST("/content/reload", h.ReloadContent)
	g.POST("/characters", h.CreateCharacter)
	g.POST("/tokens/:char_id", h.IssueToken)
	g.POST("/broadcast", h.Broadcast)
}

func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

// Health reports liveness and the loaded rule set version.
// GET /health
func (h *AdminHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"rules_version": h.Engine.Rules().Version(),
	})
}

// Metrics returns server and quest engine metrics.
// GET /api/admin/metrics
func (h *AdminHandler) Metrics(c *gin.Context) {
	out := gin.H{
		"online_players": h.Sessions.Count(),
		"world_players":  len(h.World.Players()),
		"npcs":           len(h.World.NPCs()),
		"engine":         h.Engine.Stats(),
		"visibility":     h.Engine.Options().VisibilityDistance,
	}
	if h.Scheduler != nil {
		out["scheduler_tasks"] = h.Scheduler.ListTickers()
		out["pending_delays"] = h.Scheduler.PendingDelays()
	}
	c.JSON(http.StatusOK, out)
}

// ListPlayers returns a snapshot of all players in the world.
// GET /api/admin/players
func (h *AdminHandler) ListPlayers(c *gin.Context) {
	type playerInfo struct {
		CharID   int64          `json:"char_id"`
		CharName string         `json:"char_name"`
		Level    int            `json:"level"`
		Position quest.Position `json:"position"`
		Quests   int            `json:"active_quests"`
	}
	players := h.World.Players()
	result := make([]playerInfo, 0, len(players))
	for _, p := range players {
		result = append(result, playerInfo{
			CharID:   p.ObjectID(),
			CharName: p.Name(),
			Level:    p.Level(),
			Position: p.Position(),
			Quests:   len(p.Journal().ActiveQuests()),
		})
	}
	c.JSON(http.StatusOK, gin.H{"players": result, "count": len(result)})
}

// KickPlayer forcibly disconnects a player by character ID.
// POST /api/admin/kick/:id
func (h *AdminHandler) KickPlayer(c *gin.Context) {
	charID, ok := paramID(c, "id")
	if !ok {
		return
	}
	s := h.Sessions.Get(charID)
	if s == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "player not online"})
		return
	}
	s.Close()
	h.logger.Info("admin kicked player", zap.Int64("char_id", charID))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ListSchedulerTasks returns names of all registered ticker tasks.
// GET /api/admin/scheduler
func (h *AdminHandler) ListSchedulerTasks(c *gin.Context) {
	var tasks []string
	if h.Scheduler != nil {
		tasks = h.Scheduler.ListTickers()
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

// ListQuests returns the registered descriptors with the number of parts
// bound to each quest.
// GET /api/admin/quests
func (h *AdminHandler) ListQuests(c *gin.Context) {
	parts := make(map[quest.QuestID]int)
	for _, p := range h.Engine.Rules().Parts() {
		parts[p.QuestID()]++
	}
	type questInfo struct {
		*quest.Descriptor
		Parts int `json:"parts"`
	}
	descs := h.Engine.Manager().Descriptors()
	out := make([]questInfo, 0, len(descs))
	for _, d := range descs {
		out = append(out, questInfo{Descriptor: d, Parts: parts[d.QuestID]})
	}
	c.JSON(http.StatusOK, gin.H{"quests": out, "version": h.Engine.Rules().Version()})
}

// PlayerQuests returns a character's active and finished quests. Online
// players answer from their journal; offline ones from the store.
// GET /api/admin/players/:id/quests
func (h *AdminHandler) PlayerQuests(c *gin.Context) {
	charID, ok := paramID(c, "id")
	if !ok {
		return
	}
	if p, ok := h.World.Player(charID); ok {
		c.JSON(http.StatusOK, gin.H{
			"online":   true,
			"active":   h.Engine.Manager().Entries(p),
			"finished": p.Journal().Finished(),
		})
		return
	}
	if h.Quests == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "player not online"})
		return
	}

	ctx := c.Request.Context()
	active, err := h.Quests.LoadActiveQuests(ctx, charID)
	var finished map[quest.QuestID]int
	if err == nil {
		finished, err = h.Quests.LoadFinished(ctx, charID)
	}
	if err != nil {
		h.logger.Error("load player quests failed", zap.Int64("char_id", charID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	entries := make([]quest.JournalEntry, 0, len(active))
	for _, q := range active {
		e := quest.JournalEntry{QuestID: q.ID, Step: q.Step}
		if d, ok := h.Engine.Manager().Descriptor(q.ID); ok {
			e.Name = d.Name
		}
		entries = append(entries, e)
	}
	c.JSON(http.StatusOK, gin.H{"online": false, "active": entries, "finished": finished})
}

// PlayerAudit returns a character's most recent quest transitions.
// GET /api/admin/players/:id/audit?limit=N
func (h *AdminHandler) PlayerAudit(c *gin.Context) {
	charID, ok := paramID(c, "id")
	if !ok {
		return
	}
	if h.Audit == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "audit disabled"})
		return
	}
	limit := auditLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = min(n, auditLimitMax)
	}
	rows, err := h.Audit.Recent(c.Request.Context(), charID, limit)
	if err != nil {
		h.logger.Error("load audit rows failed", zap.Int64("char_id", charID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": rows})
}

// ReloadContent re-reads the content files and swaps the rule set. Only one
// reload runs at a time across nodes sharing the cache. A content error
// leaves the running rules untouched.
// POST /api/admin/content/reload
func (h *AdminHandler) ReloadContent(c *gin.Context) {
	ctx := c.Request.Context()
	locked, err := h.Cache.SetNX(ctx, reloadLockKey, "1", reloadLockTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cache error"})
		return
	}
	if !locked {
		c.JSON(http.StatusConflict, gin.H{"error": "reload already running"})
		return
	}
	defer func() { _ = h.Cache.Del(context.Background(), reloadLockKey) }()

	loaded, err := h.Loader.Load(h.ContentPath)
	if err != nil {
		h.logger.Error("content reload rejected", zap.String("path", h.ContentPath), zap.Error(err))
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid content", "details": errorLines(err)})
		return
	}

	// Apply on the dispatch goroutine so no event sees half the new content.
	done := make(chan error, 1)
	if !h.Engine.Post(func() { done <- loaded.Apply(h.Engine, h.World, h.logger) }) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "engine stopped"})
		return
	}
	select {
	case err = <-done:
	case <-time.After(reloadTimeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "reload timed out"})
		return
	}
	if err != nil {
		h.logger.Error("content apply incomplete", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "apply failed", "details": errorLines(err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":      true,
		"quests":  len(loaded.Descriptors),
		"parts":   len(loaded.Parts),
		"version": h.Engine.Rules().Version(),
	})
}

func errorLines(err error) []string {
	errs := multierr.Errors(err)
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Error())
	}
	return out
}

type createCharacterReq struct {
	Name    string `json:"name" binding:"required,min=2,max=32"`
	ClassID int    `json:"class_id"`
	Race    int    `json:"race"`
	Gender  int    `json:"gender"`
	Level   int    `json:"level"`
	Region  int    `json:"region"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
}

// CreateCharacter creates a character for testing content.
// POST /api/admin/characters
func (h *AdminHandler) CreateCharacter(c *gin.Context) {
	var req createCharacterReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Level <= 0 {
		req.Level = 1
	}
	char := &model.Character{
		Name:      strings.TrimSpace(req.Name),
		ClassID:   req.ClassID,
		Race:      req.Race,
		Gender:    req.Gender,
		Level:     req.Level,
		Health:    100,
		MaxHealth: 100,
		Region:    req.Region,
		X:         req.X,
		Y:         req.Y,
	}
	if err := h.Store.CreateCharacter(c.Request.Context(), char); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "name already taken"})
		return
	}
	h.logger.Info("character created", zap.Int64("char_id", char.ID), zap.String("name", char.Name))
	c.JSON(http.StatusCreated, char)
}

// IssueToken signs a WebSocket token for an existing character.
// POST /api/admin/tokens/:char_id
func (h *AdminHandler) IssueToken(c *gin.Context) {
	charID, ok := paramID(c, "char_id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if _, err := h.Store.LoadCharacter(ctx, charID); err != nil {
		if errors.Is(err, world.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "character not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	token, err := mw.IssueToken(ctx, h.Security, h.Cache, charID)
	if err != nil {
		h.logger.Error("issue token failed", zap.Int64("char_id", charID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "char_id": charID})
}

// Broadcast sends a message to every player on every node.
// POST /api/admin/broadcast
func (h *AdminHandler) Broadcast(c *gin.Context) {
	var req struct {
		Message string `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.World.Broadcast(req.Message)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

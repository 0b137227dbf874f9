package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	apirest "github.com/kasuganosora/rpgquest/api/rest"
	"github.com/kasuganosora/rpgquest/api/sse"
	apows "github.com/kasuganosora/rpgquest/api/ws"
	"github.com/kasuganosora/rpgquest/audit"
	"github.com/kasuganosora/rpgquest/cache"
	"github.com/kasuganosora/rpgquest/config"
	dbadapter "github.com/kasuganosora/rpgquest/db"
	"github.com/kasuganosora/rpgquest/game/content"
	"github.com/kasuganosora/rpgquest/game/item"
	"github.com/kasuganosora/rpgquest/game/party"
	"github.com/kasuganosora/rpgquest/game/player"
	"github.com/kasuganosora/rpgquest/game/quest"
	"github.com/kasuganosora/rpgquest/game/script"
	"github.com/kasuganosora/rpgquest/game/world"
	"github.com/kasuganosora/rpgquest/logger"
	mw "github.com/kasuganosora/rpgquest/middleware"
	"github.com/kasuganosora/rpgquest/model"
	"github.com/kasuganosora/rpgquest/scheduler"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	zl, err := logger.New(cfg.Log, cfg.Server.Debug)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer zl.Sync()

	if cfg.Server.AdminKey == "" {
		zl.Warn("server.admin_key is not set; admin endpoints are disabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database, zl)
	if err != nil {
		zl.Fatal("db open", zap.Error(err))
	}
	if err := model.AutoMigrate(db); err != nil {
		zl.Fatal("db migrate", zap.Error(err))
	}
	zl.Info("DB initialized", zap.String("mode", cfg.Database.Mode))

	// ---- Audit ----
	auditSvc := audit.New(db, zl)
	defer auditSvc.Stop(context.Background())

	// ---- Cache / PubSub ----
	cacheConfig := cache.CacheConfig{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
		LocalPubSubBuf:  cfg.Cache.LocalPubSubBuf,
	}
	c, err := cache.NewCache(cacheConfig)
	if err != nil {
		zl.Fatal("cache", zap.Error(err))
	}
	pubsub, err := cache.NewPubSub(cacheConfig)
	if err != nil {
		zl.Fatal("pubsub", zap.Error(err))
	}
	defer pubsub.Close()
	zl.Info("Cache initialized", zap.Bool("redis", cfg.Cache.RedisAddr != ""))

	// ---- Scheduler ----
	sched := scheduler.New(zl)
	defer sched.Stop()

	// ---- World ----
	sm := player.NewSessionManager(zl)
	partyMgr := party.NewManager(cfg.Game.MaxPartySize, zl)
	w := world.New(world.Deps{Sessions: sm, PubSub: pubsub, Parties: partyMgr}, zl)
	store := world.NewStore(db, item.NewInventoryService(db, cfg.Game.BagSlots, zl), zl)

	// ---- Quest engine ----
	quests := quest.NewGormStore(db)
	persister := quest.NewPersister(quests, cfg.Quest.PersistQueue, zl)
	offers := quest.NewOffers(c, cfg.Quest.OfferTTL, zl)
	sandbox := script.NewSandbox(cfg.Script.VMPoolSize, cfg.Script.Timeout, zl)

	eng := quest.NewEngine(quest.OptionsFromConfig(cfg.Quest), quest.Deps{
		World:     w,
		Timers:    sched,
		Script:    sandbox,
		Persister: persister,
		Auditor:   auditSvc,
		Offers:    offers,
	}, zl)
	w.SetPublisher(eng.Publish)

	loader := content.NewLoader(w, content.DefaultsFromConfig(cfg.Quest), zl)
	loaded, err := loader.Load(cfg.Quest.ContentPath)
	if err != nil {
		zl.Fatal("quest content", zap.String("path", cfg.Quest.ContentPath), zap.Error(err))
	}
	// The dispatch loop is not running yet, so the content can be installed directly.
	if err := loaded.Apply(eng, w, zl); err != nil {
		zl.Fatal("quest content apply", zap.Error(err))
	}
	zl.Info("quest content loaded",
		zap.Int("quests", len(loaded.Descriptors)),
		zap.Int("parts", len(loaded.Parts)),
		zap.Uint64("version", eng.Rules().Version()))

	go eng.Run(ctx)
	go func() {
		if err := w.RunBroadcastRelay(ctx); err != nil {
			zl.Error("broadcast relay stopped", zap.Error(err))
		}
	}()

	// ---- Periodic Scheduler Tasks ----
	lastTick := time.Now()
	sched.AddTicker("world_tick", world.TickInterval, func() {
		now := time.Now()
		w.Tick(now.Sub(lastTick))
		lastTick = now
	})
	if cfg.Game.SaveIntervalS > 0 {
		sched.AddTicker("auto_save", time.Duration(cfg.Game.SaveIntervalS)*time.Second, func() {
			saveCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()
			if err := w.SaveAll(saveCtx, store); err != nil {
				zl.Warn("auto save incomplete", zap.Error(err))
			}
		})
	}

	// ---- WS Router ----
	wsRouter := apows.NewRouter(zl)
	apows.NewGameHandlers(w, eng, zl).RegisterHandlers(wsRouter)
	apows.NewNPCHandlers(w, eng, zl).RegisterHandlers(wsRouter)
	apows.NewPartyHandlers(partyMgr, sm, zl).RegisterHandlers(wsRouter)

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(zl), mw.Recovery(zl))

	wsH := apows.NewHandler(c, cfg.Security, sm, w, eng, store, partyMgr, wsRouter, zl)
	r.GET("/ws", wsH.ServeWS)

	sseH := sse.NewHandler(pubsub, c, cfg.Security, zl)
	r.GET("/sse", sseH.ServeSSE)

	apirest.NewAdminHandler(apirest.AdminDeps{
		Sessions:    sm,
		World:       w,
		Engine:      eng,
		Store:       store,
		Quests:      quests,
		Loader:      loader,
		ContentPath: cfg.Quest.ContentPath,
		Cache:       c,
		Security:    cfg.Security,
		Scheduler:   sched,
		Audit:       auditSvc,
	}, zl).Mount(r, cfg.Server.AdminKey)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		zl.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Error("server", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	zl.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Warn("http shutdown", zap.Error(err))
	}
	sm.BroadcastToAll(player.NewPacket("server_shutdown", nil))
	if err := w.SaveAll(shutdownCtx, store); err != nil {
		zl.Warn("final save incomplete", zap.Error(err))
	}
	sm.CloseAllSessions()
	offers.Flush()
	persister.Stop()
}

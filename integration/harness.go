package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	apirest "github.com/kasuganosora/rpgquest/api/rest"
	"github.com/kasuganosora/rpgquest/api/sse"
	apows "github.com/kasuganosora/rpgquest/api/ws"
	"github.com/kasuganosora/rpgquest/audit"
	"github.com/kasuganosora/rpgquest/cache"
	"github.com/kasuganosora/rpgquest/config"
	"github.com/kasuganosora/rpgquest/game/content"
	"github.com/kasuganosora/rpgquest/game/item"
	"github.com/kasuganosora/rpgquest/game/party"
	"github.com/kasuganosora/rpgquest/game/player"
	"github.com/kasuganosora/rpgquest/game/quest"
	"github.com/kasuganosora/rpgquest/game/script"
	"github.com/kasuganosora/rpgquest/game/world"
	mw "github.com/kasuganosora/rpgquest/middleware"
	"github.com/kasuganosora/rpgquest/scheduler"
	"github.com/kasuganosora/rpgquest/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// AdminKey is the admin API key of every test server.
	AdminKey    = "integration-admin-key"
	contentPath = "../data/quests.yaml"
)

// TestServer wraps a real HTTP server with every quest subsystem wired
// together. It mirrors the dependency wiring in main.go.
type TestServer struct {
	DB     *gorm.DB
	Cache  cache.Cache
	PubSub cache.PubSub
	SM     *player.SessionManager
	World  *world.World
	Engine *quest.Engine
	Server *httptest.Server
	URL    string // http://127.0.0.1:<port>
	WSURL  string // ws://127.0.0.1:<port>/ws
	Sec    config.SecurityConfig
}

// NewTestServer creates a fully wired quest server loaded with the starter
// content. Everything is torn down when the test ends.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	// ---- Infrastructure ----
	db := testutil.SetupTestDB(t)
	c, pubsub := testutil.SetupTestCache(t)
	logger := zap.NewNop()

	sec := config.SecurityConfig{
		JWTSecret:      "integration-test-secret",
		JWTTTLH:        72 * time.Hour,
		RateLimitRPS:   1000,
		RateLimitBurst: 2000,
		AllowedOrigins: []string{}, // allow all origins
	}
	qcfg := config.Default().Quest

	sched := scheduler.New(logger)
	auditSvc := audit.New(db, logger)

	// ---- World ----
	sm := player.NewSessionManager(logger)
	partyMgr := party.NewManager(8, logger)
	w := world.New(world.Deps{Sessions: sm, PubSub: pubsub, Parties: partyMgr}, logger)
	store := world.NewStore(db, item.NewInventoryService(db, 40, logger), logger)

	// ---- Quest engine ----
	quests := quest.NewGormStore(db)
	persister := quest.NewPersister(quests, qcfg.PersistQueue, logger)
	offers := quest.NewOffers(c, qcfg.OfferTTL, logger)
	eng := quest.NewEngine(quest.OptionsFromConfig(qcfg), quest.Deps{
		World:     w,
		Timers:    sched,
		Script:    script.NewSandbox(2, 200*time.Millisecond, logger),
		Persister: persister,
		Auditor:   auditSvc,
		Offers:    offers,
	}, logger)
	w.SetPublisher(eng.Publish)

	loader := content.NewLoader(w, content.DefaultsFromConfig(qcfg), logger)
	loaded, err := loader.Load(contentPath)
	require.NoError(t, err)
	require.NoError(t, loaded.Apply(eng, w, logger))

	ctx, cancel := context.WithCancel(context.Background())
	go eng.Run(ctx)
	go func() { _ = w.RunBroadcastRelay(ctx) }()

	// ---- WS Router ----
	wsRouter := apows.NewRouter(logger)
	apows.NewGameHandlers(w, eng, logger).RegisterHandlers(wsRouter)
	apows.NewNPCHandlers(w, eng, logger).RegisterHandlers(wsRouter)
	apows.NewPartyHandlers(partyMgr, sm, logger).RegisterHandlers(wsRouter)

	// ---- Gin HTTP Server ----
	r := gin.New()
	r.Use(mw.TraceID(), mw.Recovery(logger))

	r.GET("/ws", apows.NewHandler(c, sec, sm, w, eng, store, partyMgr, wsRouter, logger).ServeWS)
	r.GET("/sse", sse.NewHandler(pubsub, c, sec, logger).ServeSSE)
	apirest.NewAdminHandler(apirest.AdminDeps{
		Sessions:    sm,
		World:       w,
		Engine:      eng,
		Store:       store,
		Quests:      quests,
		Loader:      loader,
		ContentPath: contentPath,
		Cache:       c,
		Security:    sec,
		Scheduler:   sched,
		Audit:       auditSvc,
	}, logger).Mount(r, AdminKey)

	// ---- Start server ----
	server := httptest.NewServer(r)
	t.Cleanup(func() {
		server.Close()
		sm.CloseAllSessions()
		cancel()
		sched.Stop()
		offers.Flush()
		persister.Stop()
		auditSvc.Stop(context.Background())
	})

	url := server.URL
	return &TestServer{
		DB:     db,
		Cache:  c,
		PubSub: pubsub,
		SM:     sm,
		World:  w,
		Engine: eng,
		Server: server,
		URL:    url,
		WSURL:  "ws" + url[len("http"):] + "/ws",
		Sec:    sec,
	}
}

// --- HTTP helpers ---

// Admin sends an admin API request with the admin key and optional JSON body.
func (ts *TestServer) Admin(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Admin-Key", AdminKey)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// ReadJSON reads and decodes a JSON response body into the given target.
func ReadJSON(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, target), "body: %s", string(data))
}

// --- Character helpers ---

// CreateCharacter creates a character at (x, y) in region 1 through the
// admin API and returns its ID and a session token for it.
func (ts *TestServer) CreateCharacter(t *testing.T, name string, level, x, y int) (int64, string) {
	t.Helper()
	resp := ts.Admin(t, http.MethodPost, "/api/admin/characters", map[string]interface{}{
		"name":   name,
		"level":  level,
		"region": 1,
		"x":      x,
		"y":      y,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var char map[string]interface{}
	ReadJSON(t, resp, &char)
	charID := int64(char["id"].(float64))

	resp = ts.Admin(t, http.MethodPost, fmt.Sprintf("/api/admin/tokens/%d", charID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var tok map[string]interface{}
	ReadJSON(t, resp, &tok)
	return charID, tok["token"].(string)
}

// PlayerQuests is the admin view of a character's quests.
type PlayerQuests struct {
	Online   bool                 `json:"online"`
	Active   []quest.JournalEntry `json:"active"`
	Finished map[string]int       `json:"finished"`
}

// Quests fetches the admin view of a character's quests.
func (ts *TestServer) Quests(t *testing.T, charID int64) PlayerQuests {
	t.Helper()
	resp := ts.Admin(t, http.MethodGet, fmt.Sprintf("/api/admin/players/%d/quests", charID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out PlayerQuests
	ReadJSON(t, resp, &out)
	return out
}

// --- WebSocket client ---

// WSClient wraps a gorilla/websocket connection for integration testing.
// A background readLoop feeds readCh so timeouts never touch the
// connection's read deadline.
type WSClient struct {
	Conn   *websocket.Conn
	t      *testing.T
	seq    uint64
	readCh chan readResult
}

type readResult struct {
	data []byte
	err  error
}

// ConnectWS dials the test server's WS endpoint with the given token.
func (ts *TestServer) ConnectWS(t *testing.T, token string) *WSClient {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(ts.WSURL+"?token="+token, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	require.NoError(t, err, "WS dial failed")
	wc := &WSClient{Conn: conn, t: t, readCh: make(chan readResult, 256)}
	go wc.readLoop()
	t.Cleanup(wc.Close)
	return wc
}

func (wc *WSClient) readLoop() {
	for {
		_, data, err := wc.Conn.ReadMessage()
		wc.readCh <- readResult{data, err}
		if err != nil {
			return
		}
	}
}

// Send writes a packet to the WebSocket.
func (wc *WSClient) Send(msgType string, payload interface{}) {
	wc.t.Helper()
	payloadJSON, err := json.Marshal(payload)
	require.NoError(wc.t, err)
	data, err := json.Marshal(map[string]interface{}{
		"seq":     atomic.AddUint64(&wc.seq, 1),
		"type":    msgType,
		"payload": json.RawMessage(payloadJSON),
	})
	require.NoError(wc.t, err)
	require.NoError(wc.t, wc.Conn.WriteMessage(websocket.TextMessage, data))
}

// RecvAny reads one packet, or fails with a timeout error.
func (wc *WSClient) RecvAny(timeout time.Duration) (map[string]interface{}, error) {
	select {
	case res := <-wc.readCh:
		if res.err != nil {
			return nil, res.err
		}
		var pkt map[string]interface{}
		if err := json.Unmarshal(res.data, &pkt); err != nil {
			return nil, err
		}
		return pkt, nil
	case <-time.After(timeout):
		return nil, errTimeout
	}
}

var errTimeout = errors.New("read timeout")

// RecvMatch reads packets until one of type msgType whose payload satisfies
// match arrives. A nil match accepts the first packet of that type.
func (wc *WSClient) RecvMatch(msgType string, timeout time.Duration, match func(map[string]interface{}) bool) map[string]interface{} {
	wc.t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		pkt, err := wc.RecvAny(remaining)
		if err != nil {
			wc.t.Fatalf("WS recv failed while waiting for %q: %v", msgType, err)
		}
		if pkt["type"] != msgType {
			continue
		}
		payload, _ := pkt["payload"].(map[string]interface{})
		if match == nil || match(payload) {
			return payload
		}
	}
	wc.t.Fatalf("timed out waiting for message type %q", msgType)
	return nil
}

// RecvType reads packets until one of the given type arrives and returns
// its payload.
func (wc *WSClient) RecvType(msgType string, timeout time.Duration) map[string]interface{} {
	wc.t.Helper()
	return wc.RecvMatch(msgType, timeout, nil)
}

// Close closes the WebSocket connection.
func (wc *WSClient) Close() {
	_ = wc.Conn.Close()
}

// QuestEntries extracts the entries of a quest_list payload.
func QuestEntries(payload map[string]interface{}) []map[string]interface{} {
	raw, _ := payload["quests"].([]interface{})
	out := make([]map[string]interface{}, 0, len(raw))
	for _, e := range raw {
		if m, ok := e.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out
}

// --- Composite helper ---

// Join creates a character, connects it and waits for the initial quest list.
func (ts *TestServer) Join(t *testing.T, name string, level, x, y int) (int64, *WSClient) {
	t.Helper()
	charID, token := ts.CreateCharacter(t, name, level, x, y)
	ws := ts.ConnectWS(t, token)
	ws.RecvType(player.PktQuestList, 5*time.Second)
	require.Eventually(t, func() bool {
		_, ok := ts.World.Player(charID)
		return ok
	}, 2*time.Second, 10*time.Millisecond)
	return charID, ws
}

var nameCounter uint64

// UniqueName returns a character name that is unique within the test binary.
func UniqueName(prefix string) string {
	return fmt.Sprintf("%s%d", prefix, atomic.AddUint64(&nameCounter, 1))
}

package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scythe504/turing-party-backend/internal"
	"github.com/scythe504/turing-party-backend/internal/events"
	"github.com/scythe504/turing-party-backend/internal/game"
	"github.com/scythe504/turing-party-backend/internal/store"
)

type envelope struct {
	StatusCode int                     `json:"status_code"`
	Success    bool                    `json:"success"`
	Data       json.RawMessage         `json:"data"`
	Error      *internal.ResponseError `json:"error"`
}

type testServer struct {
	server  *Server
	handler http.Handler
	bus     *events.Bus
}

func newTestServer(t *testing.T, cfg Config) *testServer {
	t.Helper()
	mem := store.NewMemory()
	bus := events.NewBus(16)
	m := game.NewManager(game.Deps{
		Rooms:     mem,
		Players:   mem,
		Rounds:    mem,
		Votes:     mem,
		Settings:  mem,
		Bus:       bus,
		Scheduler: game.NewScheduler(0),
		Selector:  game.NewRoleSelector(1),
	})
	t.Cleanup(m.Close)
	t.Cleanup(bus.Close)

	s := NewServer(m, bus, cfg)
	return &testServer{server: s, handler: s.RegisterRoutes(), bus: bus}
}

func (ts *testServer) do(t *testing.T, method, path, player string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if player != "" {
		req.Header.Set(PlayerHeader, player)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

// lobby creates a room and joins a second player.
func (ts *testServer) lobby(t *testing.T) (room *internal.Room, owner, guest *internal.Player) {
	t.Helper()
	rec, env := ts.do(t, http.MethodPost, "/rooms", "", game.CreateRoomParams{Nickname: "alice"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created game.Session
	require.NoError(t, json.Unmarshal(env.Data, &created))

	rec, env = ts.do(t, http.MethodPost, "/rooms/join", "", game.JoinRoomParams{Code: created.Room.Code, Nickname: "bob"})
	require.Equal(t, http.StatusOK, rec.Code)
	var joined game.Session
	require.NoError(t, json.Unmarshal(env.Data, &joined))

	return created.Room, created.Player, joined.Player
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, Config{})
	rec, env := ts.do(t, http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestCreateJoinAndState(t *testing.T) {
	ts := newTestServer(t, Config{})
	room, owner, guest := ts.lobby(t)

	assert.Equal(t, internal.PhaseWaiting, room.Phase)
	assert.True(t, owner.IsOwner)
	assert.False(t, guest.IsOwner)

	rec, env := ts.do(t, http.MethodGet, "/rooms/"+room.Id+"/state", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var state internal.StateSnapshot
	require.NoError(t, json.Unmarshal(env.Data, &state))
	assert.Len(t, state.Players, 2)
	assert.Nil(t, state.Round)

	rec, env = ts.do(t, http.MethodPost, "/rooms/"+room.Id+"/ready", guest.Id, map[string]bool{"is_ready": true})
	require.Equal(t, http.StatusOK, rec.Code)
	var ready internal.PlayerSnapshot
	require.NoError(t, json.Unmarshal(env.Data, &ready))
	assert.True(t, ready.IsReady)
}

func TestGameActionsOverHTTP(t *testing.T) {
	ts := newTestServer(t, Config{})
	room, owner, guest := ts.lobby(t)
	base := "/rooms/" + room.Id

	rec, env := ts.do(t, http.MethodPost, base+"/start", guest.Id, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, internal.KindInvalidState, env.Error.Kind)

	rec, env = ts.do(t, http.MethodPost, base+"/start", owner.Id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var started internal.Room
	require.NoError(t, json.Unmarshal(env.Data, &started))
	assert.Equal(t, internal.PhaseSetup, started.Phase)

	rec, _ = ts.do(t, http.MethodPost, base+"/vote", guest.Id, map[string]string{"vote": "maybe"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = ts.do(t, http.MethodPost, base+"/question", owner.Id, map[string]string{"question": "Hobbies?"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = ts.do(t, http.MethodPost, base+"/kick/"+owner.Id, guest.Id, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, env = ts.do(t, http.MethodGet, base+"/round", "", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, internal.KindInvalidState, env.Error.Kind)
}

func TestErrorResponses(t *testing.T) {
	ts := newTestServer(t, Config{})

	rec, env := ts.do(t, http.MethodGet, "/rooms/missing/state", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, internal.KindNotFound, env.Error.Kind)

	req := httptest.NewRequest(http.MethodPost, "/rooms", strings.NewReader("{not json"))
	raw := httptest.NewRecorder()
	ts.handler.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)

	rec, env = ts.do(t, http.MethodPost, "/rooms", "", game.CreateRoomParams{Nickname: "alice"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created game.Session
	require.NoError(t, json.Unmarshal(env.Data, &created))

	rec, env = ts.do(t, http.MethodPost, "/rooms/"+created.Room.Id+"/start", created.Player.Id, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, internal.KindInsufficientPlayers, env.Error.Kind)

	rec, _ = ts.do(t, http.MethodDelete, "/rooms/"+created.Room.Id, created.Player.Id, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = ts.do(t, http.MethodGet, "/rooms/"+created.Room.Id+"/state", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		kind internal.ErrorKind
		want int
	}{
		{internal.KindInvalidInput, http.StatusBadRequest},
		{internal.KindNotFound, http.StatusNotFound},
		{internal.KindInvalidState, http.StatusConflict},
		{internal.KindConflict, http.StatusConflict},
		{internal.KindInsufficientPlayers, http.StatusUnprocessableEntity},
		{internal.KindUpstreamFailure, http.StatusBadGateway},
		{internal.KindRateLimited, http.StatusTooManyRequests},
		{"", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.kind), tt.kind)
	}
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t, Config{AllowedOrigins: []string{"http://game.test"}})

	req := httptest.NewRequest(http.MethodOptions, "/rooms", nil)
	req.Header.Set("Origin", "http://game.test")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://game.test", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), PlayerHeader)

	req = httptest.NewRequest(http.MethodOptions, "/rooms", nil)
	req.Header.Set("Origin", "http://evil.test")
	rec = httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, Config{RateLimitRPS: 0.01, RateLimitBurst: 1})

	rec, _ := ts.do(t, http.MethodPost, "/rooms", "", game.CreateRoomParams{Nickname: "alice"})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec, env := ts.do(t, http.MethodPost, "/rooms", "", game.CreateRoomParams{Nickname: "carol"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, internal.KindRateLimited, env.Error.Kind)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	// reads are never throttled
	rec, _ = ts.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIPLimiterKeysByClient(t *testing.T) {
	l := newIPLimiter(0.01, 1)
	now := time.Now()

	assert.True(t, l.allow("10.0.0.1", now))
	assert.False(t, l.allow("10.0.0.1", now))
	assert.True(t, l.allow("10.0.0.2", now))

	later := now.Add(2 * limiterIdleTTL)
	assert.True(t, l.allow("10.0.0.3", later))
	l.mu.Lock()
	assert.Len(t, l.clients, 1)
	l.mu.Unlock()

	assert.False(t, newIPLimiter(0, 0).enabled())
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:5555"
	assert.Equal(t, "192.0.2.7", clientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", clientIP(req))
}

// ===== STREAMING =====

type sseEvent struct {
	name string
	data string
}

// readSSE returns the next block, skipping retry hints.
func readSSE(t *testing.T, r *bufio.Reader) sseEvent {
	t.Helper()
	var ev sseEvent
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if ev.name != "" {
				return ev
			}
		case strings.HasPrefix(line, "event: "):
			ev.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestEventStream(t *testing.T) {
	ts := newTestServer(t, Config{HeartbeatInterval: 20 * time.Millisecond})
	srv := httptest.NewServer(ts.handler)
	t.Cleanup(srv.Close)

	rec, env := ts.do(t, http.MethodPost, "/rooms", "", game.CreateRoomParams{Nickname: "alice"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created game.Session
	require.NoError(t, json.Unmarshal(env.Data, &created))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/rooms/"+created.Room.Id+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no", resp.Header.Get("X-Accel-Buffering"))

	body := bufio.NewReader(resp.Body)
	first, err := body.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "retry: 2000\n", first)

	snapshot := readSSE(t, body)
	assert.Equal(t, internal.EventSnapshot, snapshot.name)
	var msg internal.Message[internal.StateSnapshot]
	require.NoError(t, json.Unmarshal([]byte(snapshot.data), &msg))
	assert.Equal(t, created.Room.Id, msg.Data.Room.Id)

	rec, _ = ts.do(t, http.MethodPost, "/rooms/join", "", game.JoinRoomParams{Code: created.Room.Code, Nickname: "bob"})
	require.Equal(t, http.StatusOK, rec.Code)

	seen := map[string]bool{}
	for !(seen[internal.EventPlayerJoined] && seen[internal.EventPing]) {
		seen[readSSE(t, body).name] = true
	}

	rec, _ = ts.do(t, http.MethodDelete, "/rooms/"+created.Room.Id, created.Player.Id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	for {
		ev := readSSE(t, body)
		if ev.name == internal.EventRoomDeleted {
			break
		}
	}
}

func TestEventStreamUnknownRoom(t *testing.T) {
	ts := newTestServer(t, Config{})
	rec, env := ts.do(t, http.MethodGet, "/rooms/missing/events", "", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, internal.KindNotFound, env.Error.Kind)
	assert.Zero(t, ts.bus.SubscriberCount("missing"))
}

func wsURL(srv *httptest.Server, roomID, playerID string) string {
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + roomID
	if playerID != "" {
		u += "?player_id=" + playerID
	}
	return u
}

func readUntil(t *testing.T, conn *websocket.Conn, event string) internal.Message[json.RawMessage] {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var msg internal.Message[json.RawMessage]
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == event {
			return msg
		}
	}
}

func TestWebSocket(t *testing.T) {
	ts := newTestServer(t, Config{})
	srv := httptest.NewServer(ts.handler)
	t.Cleanup(srv.Close)

	room, _, guest := ts.lobby(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, room.Id, guest.Id), nil)
	require.NoError(t, err)
	defer conn.Close()

	snapshot := readUntil(t, conn, internal.EventSnapshot)
	var state internal.StateSnapshot
	require.NoError(t, json.Unmarshal(snapshot.Data, &state))
	assert.Len(t, state.Players, 2)

	require.NoError(t, conn.WriteJSON(internal.Message[bool]{Type: "player_ready", Data: true}))
	ready := readUntil(t, conn, internal.EventPlayerReady)
	var data internal.PlayerReadyData
	require.NoError(t, json.Unmarshal(ready.Data, &data))
	assert.Equal(t, guest.Id, data.PlayerID)
	assert.True(t, data.IsReady)

	// only the owner may start
	require.NoError(t, conn.WriteJSON(internal.Message[any]{Type: "start_game"}))
	failed := readUntil(t, conn, EventActionError)
	var actionErr ActionErrorData
	require.NoError(t, json.Unmarshal(failed.Data, &actionErr))
	assert.Equal(t, "start_game", actionErr.Action)
	assert.Equal(t, internal.KindInvalidState, actionErr.Kind)

	require.NoError(t, conn.WriteJSON(internal.Message[string]{Type: "dance", Data: "now"}))
	failed = readUntil(t, conn, EventActionError)
	require.NoError(t, json.Unmarshal(failed.Data, &actionErr))
	assert.Equal(t, internal.KindInvalidInput, actionErr.Kind)
}

func TestWebSocketReadOnlyAndUnknownPlayer(t *testing.T) {
	ts := newTestServer(t, Config{})
	srv := httptest.NewServer(ts.handler)
	t.Cleanup(srv.Close)

	room, _, _ := ts.lobby(t)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, room.Id, "stranger"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, room.Id, ""), nil)
	require.NoError(t, err)
	defer conn.Close()
	readUntil(t, conn, internal.EventSnapshot)

	require.NoError(t, conn.WriteJSON(internal.Message[bool]{Type: "player_ready", Data: true}))
	failed := readUntil(t, conn, EventActionError)
	var actionErr ActionErrorData
	require.NoError(t, json.Unmarshal(failed.Data, &actionErr))
	assert.Equal(t, internal.KindInvalidState, actionErr.Kind)
}

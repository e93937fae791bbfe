package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/scythe504/turing-party-backend/internal"
	"github.com/scythe504/turing-party-backend/internal/events"
	"github.com/scythe504/turing-party-backend/internal/game"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 8 << 10
	replyBuffer    = 8

	// EventActionError answers a failed inbound action, to its sender only.
	EventActionError = "action_error"
)

type ActionErrorData struct {
	Action  string             `json:"action"`
	Kind    internal.ErrorKind `json:"kind"`
	Message string             `json:"message"`
}

// wsClient is one socket attached to a room. Only writePump writes to conn.
type wsClient struct {
	server   *Server
	conn     *websocket.Conn
	sub      *events.Subscription
	roomID   string
	playerID string
	replies  chan events.Envelope
	done     chan struct{}
}

// =============================================================================
// WEBSOCKET CONNECTION HANDLING
// =============================================================================

// HandleWebSocket streams the room like HandleEvents and accepts the
// player's actions as typed messages. Without a player_id the socket is
// read-only.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UnixMilli()
	id := roomID(r)
	player := playerID(r)

	sub := s.bus.Subscribe(id)
	state, err := s.manager.State(r.Context(), id)
	if err == nil && player != "" && !hasPlayer(state, player) {
		err = internal.NotFound("player %s not in room %s", player, id)
	}
	if err != nil {
		s.bus.Unsubscribe(sub)
		writeResult(w, start, 0, nil, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.bus.Unsubscribe(sub)
		log.Warn().Err(err).Str("room", id).Msg("[HandleWebSocket] upgrade failed")
		return
	}

	c := &wsClient{
		server:   s,
		conn:     conn,
		sub:      sub,
		roomID:   id,
		playerID: player,
		replies:  make(chan events.Envelope, replyBuffer),
		done:     make(chan struct{}),
	}
	log.Info().Str("room", id).Str("player", player).Msg("[HandleWebSocket] socket attached")

	go c.writePump(state)
	c.readPump(r.Context())
}

func hasPlayer(state *internal.StateSnapshot, playerID string) bool {
	for _, p := range state.Players {
		if p.ID == playerID {
			return true
		}
	}
	return false
}

func (c *wsClient) pongWait() time.Duration {
	return 3 * c.server.cfg.HeartbeatInterval
}

func (c *wsClient) writePump(snapshot *internal.StateSnapshot) {
	ticker := time.NewTicker(c.server.cfg.HeartbeatInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	if err := c.write(events.Envelope{Type: internal.EventSnapshot, Data: snapshot}); err != nil {
		return
	}

	for {
		select {
		case <-c.done:
			return
		case msg, ok := <-c.sub.Events():
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "room closed"),
					time.Now().Add(writeWait))
				return
			}
			if err := c.write(msg); err != nil {
				log.Debug().Err(err).Str("room", c.roomID).Msg("[writePump] write failed")
				return
			}
		case reply := <-c.replies:
			if err := c.write(reply); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) write(msg events.Envelope) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}

// readPump processes incoming messages until the socket closes.
func (c *wsClient) readPump(ctx context.Context) {
	defer func() {
		close(c.done)
		c.server.bus.Unsubscribe(c.sub)
		log.Info().Str("room", c.roomID).Str("player", c.playerID).Uint64("dropped", c.sub.Dropped()).
			Msg("[readPump] socket detached")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.pongWait()))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.pongWait()))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("player", c.playerID).Msg("[readPump] unexpected close")
			}
			return
		}

		var msg internal.Message[json.RawMessage]
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.reply("", internal.InvalidInput("malformed message"))
			continue
		}
		log.Debug().Str("type", msg.Type).Str("player", c.playerID).Msg("[readPump] message received")

		if err := c.dispatch(ctx, msg); err != nil {
			c.reply(msg.Type, err)
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.pongWait()))
	}
}

// dispatch routes a message to the orchestrator. Successful actions are
// visible through the events they publish.
func (c *wsClient) dispatch(ctx context.Context, msg internal.Message[json.RawMessage]) error {
	if c.playerID == "" {
		return internal.InvalidState("socket is read-only without a player_id")
	}
	m := c.server.manager

	switch msg.Type {
	case "player_ready":
		var ready bool
		if err := decodeData(msg.Data, &ready); err != nil {
			return err
		}
		_, err := m.SetReady(ctx, c.roomID, c.playerID, ready)
		return err
	case "setup":
		var params game.SetupParams
		if err := decodeData(msg.Data, &params); err != nil {
			return err
		}
		_, err := m.UpdateSetup(ctx, c.roomID, c.playerID, params)
		return err
	case "start_game":
		_, err := m.StartGame(ctx, c.roomID, c.playerID)
		return err
	case "question":
		var question string
		if err := decodeData(msg.Data, &question); err != nil {
			return err
		}
		_, err := m.SubmitQuestion(ctx, c.roomID, c.playerID, question)
		return err
	case "draft":
		var body draftRequest
		if err := decodeData(msg.Data, &body); err != nil {
			return err
		}
		return m.SaveDraft(ctx, c.roomID, c.playerID, body.Kind, body.Text)
	case "answer":
		var params game.AnswerParams
		if err := decodeData(msg.Data, &params); err != nil {
			return err
		}
		_, err := m.SubmitAnswer(ctx, c.roomID, c.playerID, params)
		return err
	case "vote":
		var choice internal.VoteChoice
		if err := decodeData(msg.Data, &choice); err != nil {
			return err
		}
		return m.SubmitVote(ctx, c.roomID, c.playerID, choice)
	case "leave":
		return m.LeaveRoom(ctx, c.roomID, c.playerID)
	default:
		return internal.InvalidInput("unknown message type %q", msg.Type)
	}
}

func decodeData(data json.RawMessage, target any) error {
	if err := json.Unmarshal(data, target); err != nil {
		return internal.WrapError(internal.KindInvalidInput, err, "malformed message data")
	}
	return nil
}

func (c *wsClient) reply(action string, err error) {
	body := errorBody(err)
	msg := events.Envelope{Type: EventActionError, Data: ActionErrorData{
		Action:  action,
		Kind:    body.Kind,
		Message: body.Message,
	}}
	select {
	case c.replies <- msg:
	default:
		log.Warn().Str("player", c.playerID).Str("action", action).Msg("[reply] reply queue full, dropping")
	}
}

package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/scythe504/turing-party-backend/internal"
	"github.com/scythe504/turing-party-backend/internal/game"
)

const maxBodyBytes = 64 << 10

func (s *Server) RegisterRoutes() http.Handler {
	r := mux.NewRouter()

	r.Use(s.corsMiddleware)
	r.Use(s.rateLimitMiddleware)

	r.HandleFunc("/health", s.HealthHandler).Methods(http.MethodGet)

	r.HandleFunc("/rooms", s.CreateRoom).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/rooms/join", s.JoinRoom).Methods(http.MethodPost, http.MethodOptions)

	r.HandleFunc("/rooms/{roomId}", s.DeleteRoom).Methods(http.MethodDelete, http.MethodOptions)

	room := r.PathPrefix("/rooms/{roomId}").Subrouter()
	room.HandleFunc("/state", s.GetState).Methods(http.MethodGet)
	room.HandleFunc("/round", s.GetRound).Methods(http.MethodGet)
	room.HandleFunc("/events", s.HandleEvents).Methods(http.MethodGet)
	room.HandleFunc("/ready", s.SetReady).Methods(http.MethodPost, http.MethodOptions)
	room.HandleFunc("/setup", s.UpdateSetup).Methods(http.MethodPost, http.MethodOptions)
	room.HandleFunc("/start", s.StartGame).Methods(http.MethodPost, http.MethodOptions)
	room.HandleFunc("/question", s.SubmitQuestion).Methods(http.MethodPost, http.MethodOptions)
	room.HandleFunc("/draft", s.SaveDraft).Methods(http.MethodPost, http.MethodOptions)
	room.HandleFunc("/answer", s.SubmitAnswer).Methods(http.MethodPost, http.MethodOptions)
	room.HandleFunc("/vote", s.SubmitVote).Methods(http.MethodPost, http.MethodOptions)
	room.HandleFunc("/kick/{playerId}", s.KickPlayer).Methods(http.MethodPost, http.MethodOptions)
	room.HandleFunc("/leave", s.LeaveRoom).Methods(http.MethodPost, http.MethodOptions)

	r.HandleFunc("/ws/{roomId}", s.HandleWebSocket)

	return r
}

// CORS middleware
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case origin != "" && s.originAllowed(origin):
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		case origin == "":
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, "+PlayerHeader)

		// websocket upgrades check the origin themselves
		if strings.ToLower(r.Header.Get("Upgrade")) == "websocket" {
			next.ServeHTTP(w, r)
			return
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UnixMilli()
	writeResponse(w, start, http.StatusOK, map[string]any{
		"status":      "ok",
		"live_rooms":  s.bus.Rooms(),
		"queue_depth": s.bus.Capacity(),
	}, nil)
}

// ===== LOBBY =====

func (s *Server) CreateRoom(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UnixMilli()
	var params game.CreateRoomParams
	if !decodeBody(w, r, start, &params) {
		return
	}
	session, err := s.manager.CreateRoom(r.Context(), params)
	writeResult(w, start, http.StatusCreated, session, err)
}

func (s *Server) JoinRoom(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UnixMilli()
	var params game.JoinRoomParams
	if !decodeBody(w, r, start, &params) {
		return
	}
	session, err := s.manager.JoinRoom(r.Context(), params)
	writeResult(w, start, http.StatusOK, session, err)
}

func (s *Server) SetReady(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UnixMilli()
	var body struct {
		IsReady bool `json:"is_ready"`
	}
	if !decodeBody(w, r, start, &body) {
		return
	}
	snapshot, err := s.manager.SetReady(r.Context(), roomID(r), playerID(r), body.IsReady)
	writeResult(w, start, http.StatusOK, snapshot, err)
}

func (s *Server) UpdateSetup(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UnixMilli()
	var params game.SetupParams
	if !decodeBody(w, r, start, &params) {
		return
	}
	player, err := s.manager.UpdateSetup(r.Context(), roomID(r), playerID(r), params)
	writeResult(w, start, http.StatusOK, player, err)
}

func (s *Server) StartGame(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UnixMilli()
	room, err := s.manager.StartGame(r.Context(), roomID(r), playerID(r))
	writeResult(w, start, http.StatusOK, room, err)
}

func (s *Server) KickPlayer(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UnixMilli()
	target := mux.Vars(r)["playerId"]
	err := s.manager.KickPlayer(r.Context(), roomID(r), playerID(r), target)
	writeResult(w, start, http.StatusOK, map[string]string{"kicked": target}, err)
}

func (s *Server) LeaveRoom(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UnixMilli()
	err := s.manager.LeaveRoom(r.Context(), roomID(r), playerID(r))
	writeResult(w, start, http.StatusOK, map[string]string{"left": playerID(r)}, err)
}

func (s *Server) DeleteRoom(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UnixMilli()
	err := s.manager.DeleteRoom(r.Context(), roomID(r), playerID(r))
	writeResult(w, start, http.StatusOK, map[string]string{"deleted": roomID(r)}, err)
}

// ===== STATE =====

func (s *Server) GetState(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UnixMilli()
	state, err := s.manager.State(r.Context(), roomID(r))
	writeResult(w, start, http.StatusOK, state, err)
}

func (s *Server) GetRound(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UnixMilli()
	round, err := s.manager.CurrentRound(r.Context(), roomID(r))
	writeResult(w, start, http.StatusOK, round, err)
}

// ===== ROUND ACTIONS =====

type questionRequest struct {
	Question string `json:"question"`
}

type draftRequest struct {
	Kind game.DraftKind `json:"kind"`
	Text string         `json:"text"`
}

type voteRequest struct {
	Vote internal.VoteChoice `json:"vote"`
}

func (s *Server) SubmitQuestion(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UnixMilli()
	var body questionRequest
	if !decodeBody(w, r, start, &body) {
		return
	}
	round, err := s.manager.SubmitQuestion(r.Context(), roomID(r), playerID(r), body.Question)
	writeResult(w, start, http.StatusOK, round, err)
}

func (s *Server) SaveDraft(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UnixMilli()
	var body draftRequest
	if !decodeBody(w, r, start, &body) {
		return
	}
	err := s.manager.SaveDraft(r.Context(), roomID(r), playerID(r), body.Kind, body.Text)
	writeResult(w, start, http.StatusOK, map[string]any{"saved": body.Kind}, err)
}

func (s *Server) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UnixMilli()
	var params game.AnswerParams
	if !decodeBody(w, r, start, &params) {
		return
	}
	round, err := s.manager.SubmitAnswer(r.Context(), roomID(r), playerID(r), params)
	writeResult(w, start, http.StatusOK, round, err)
}

func (s *Server) SubmitVote(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UnixMilli()
	var body voteRequest
	if !decodeBody(w, r, start, &body) {
		return
	}
	err := s.manager.SubmitVote(r.Context(), roomID(r), playerID(r), body.Vote)
	writeResult(w, start, http.StatusOK, map[string]any{"vote": body.Vote}, err)
}

// ===== HELPERS =====

func roomID(r *http.Request) string {
	return mux.Vars(r)["roomId"]
}

// playerID reads the caller from the header, falling back to the query
// string for clients that cannot set headers (EventSource, WebSocket).
func playerID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(PlayerHeader)); id != "" {
		return id
	}
	return strings.TrimSpace(r.URL.Query().Get("player_id"))
}

func decodeBody(w http.ResponseWriter, r *http.Request, start int64, target any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(target); err != nil && !errors.Is(err, io.EOF) {
		writeResult(w, start, 0, nil, internal.WrapError(internal.KindInvalidInput, err, "malformed request body"))
		return false
	}
	return true
}

// statusFor maps an error kind onto an HTTP status.
func statusFor(kind internal.ErrorKind) int {
	switch kind {
	case internal.KindInvalidInput:
		return http.StatusBadRequest
	case internal.KindNotFound:
		return http.StatusNotFound
	case internal.KindInvalidState, internal.KindConflict:
		return http.StatusConflict
	case internal.KindInsufficientPlayers:
		return http.StatusUnprocessableEntity
	case internal.KindUpstreamFailure:
		return http.StatusBadGateway
	case internal.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func errorBody(err error) *internal.ResponseError {
	var e *internal.Error
	if errors.As(err, &e) {
		return &internal.ResponseError{Kind: e.Kind, Message: e.Message}
	}
	return &internal.ResponseError{Kind: internal.KindUpstreamFailure, Message: "internal error"}
}

func writeResult(w http.ResponseWriter, start int64, status int, data any, err error) {
	if err != nil {
		kind := internal.KindOf(err)
		if kind == internal.KindUpstreamFailure {
			log.Error().Err(err).Msg("[writeResult] request failed upstream")
		}
		writeResponse(w, start, statusFor(kind), nil, errorBody(err))
		return
	}
	writeResponse(w, start, status, data, nil)
}

func writeResponse(w http.ResponseWriter, start int64, status int, data any, respErr *internal.ResponseError) {
	resp := internal.Response{
		StatusCode:    status,
		Success:       respErr == nil,
		RespStartTime: start,
		Data:          data,
		Error:         respErr,
	}

	end := time.Now().UnixMilli()
	resp.RespEndTime = end
	resp.NetRespTime = end - start

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Msg("[writeResponse] encoding response")
	}
}

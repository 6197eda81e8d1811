package network

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/MRamiBalles/NBackTrainer/server/internal/infra/storage"
	"github.com/MRamiBalles/NBackTrainer/server/internal/nback"
	"github.com/MRamiBalles/NBackTrainer/server/internal/platform/logger"
	"github.com/MRamiBalles/NBackTrainer/server/internal/platform/metrics"
)

const defaultHistoryLimit = 20

// API serves the REST surface next to the websocket.
type API struct {
	game     Game
	hub      *Hub
	sessions storage.SessionRepository
	events   storage.EventRepository
	metrics  *metrics.Collector
	logger   *logger.Logger
}

// NewAPI wires the handlers. sessions and events may be nil, in which case
// the history routes answer 404.
func NewAPI(game Game, hub *Hub, sessions storage.SessionRepository, events storage.EventRepository,
	m *metrics.Collector, log *logger.Logger) *API {
	return &API{
		game:     game,
		hub:      hub,
		sessions: sessions,
		events:   events,
		metrics:  m,
		logger:   log,
	}
}

// StateResponse is returned by the state and game routes.
type StateResponse struct {
	State  nback.State  `json:"state"`
	Scores nback.Scores `json:"scores"`
}

// MatchResponse is returned by POST /api/game/match.
type MatchResponse struct {
	Result nback.MatchResult `json:"result"`
	Scores nback.Scores      `json:"scores"`
}

// Router builds the route table.
func (a *API) Router() *mux.Router {
	// Keep routes on the root router: a subrouter reports a method mismatch
	// as 404.
	r := mux.NewRouter()
	r.HandleFunc("/api/state", a.handleState).Methods(http.MethodGet)
	r.HandleFunc("/api/game/start", a.handleStart).Methods(http.MethodPost)
	r.HandleFunc("/api/game/match", a.handleMatch).Methods(http.MethodPost)
	r.HandleFunc("/api/game/end", a.handleEnd).Methods(http.MethodPost)
	r.HandleFunc("/api/game/type", a.handleGameType).Methods(http.MethodPut)
	r.HandleFunc("/api/highscore", a.handleHighScore).Methods(http.MethodGet)
	r.HandleFunc("/api/sessions", a.handleSessions).Methods(http.MethodGet)
	r.HandleFunc("/api/sessions/{id}/events", a.handleSessionEvents).Methods(http.MethodGet)
	r.Handle("/api/metrics", a.metrics.Handler()).Methods(http.MethodGet)
	r.Handle("/metrics", a.metrics.PrometheusHandler()).Methods(http.MethodGet)
	if a.hub != nil {
		r.HandleFunc("/ws", a.hub.ServeWs)
	}
	return r
}

func (a *API) handleState(w http.ResponseWriter, r *http.Request) {
	a.jsonSuccess(w, a.stateResponse())
}

func (a *API) handleStart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), startTimeout)
	defer cancel()
	if err := a.game.StartGame(ctx); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, nback.ErrClosed) {
			status = http.StatusServiceUnavailable
		}
		a.logger.Warn("Start request failed", logger.Err(err))
		a.jsonError(w, err.Error(), status)
		return
	}
	a.jsonSuccess(w, a.stateResponse())
}

func (a *API) handleMatch(w http.ResponseWriter, r *http.Request) {
	result := a.game.CheckMatch()
	a.jsonSuccess(w, MatchResponse{Result: result, Scores: a.game.Scores()})
}

func (a *API) handleEnd(w http.ResponseWriter, r *http.Request) {
	a.game.EndGame()
	a.jsonSuccess(w, a.stateResponse())
}

func (a *API) handleGameType(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GameType string `json:"game_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.jsonError(w, "Invalid payload", http.StatusBadRequest)
		return
	}
	t, err := nback.ParseGameType(req.GameType)
	if err == nil {
		err = a.game.SetGameType(t)
	}
	if err != nil {
		a.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	a.jsonSuccess(w, a.stateResponse())
}

func (a *API) handleHighScore(w http.ResponseWriter, r *http.Request) {
	a.jsonSuccess(w, map[string]int{"high_score": a.game.Scores().HighScore})
}

// HistoryResponse lists recent sessions.
type HistoryResponse struct {
	Total       int                     `json:"total"`
	GeneratedAt string                  `json:"generated_at"`
	Sessions    []storage.SessionRecord `json:"sessions"`
}

// ReplayResponse is the recorded event stream of one session.
type ReplayResponse struct {
	SessionID   string                `json:"session_id"`
	TotalEvents int                   `json:"total_events"`
	GeneratedAt string                `json:"generated_at"`
	Events      []storage.EventRecord `json:"events"`
}

// GET /api/sessions?limit=N
func (a *API) handleSessions(w http.ResponseWriter, r *http.Request) {
	if a.sessions == nil {
		a.jsonError(w, "History disabled", http.StatusNotFound)
		return
	}
	limit := defaultHistoryLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			a.jsonError(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	sessions, err := a.sessions.Recent(r.Context(), limit)
	if err != nil {
		a.logger.Error("Failed to list sessions", logger.Err(err))
		a.jsonError(w, "Failed to list sessions", http.StatusInternalServerError)
		return
	}
	if sessions == nil {
		sessions = []storage.SessionRecord{}
	}
	a.jsonSuccess(w, HistoryResponse{
		Total:       len(sessions),
		GeneratedAt: time.Now().Format(time.RFC3339),
		Sessions:    sessions,
	})
}

// GET /api/sessions/{id}/events
func (a *API) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	if a.events == nil {
		a.jsonError(w, "History disabled", http.StatusNotFound)
		return
	}
	id := mux.Vars(r)["id"]

	evs, err := a.events.GetBySession(r.Context(), id)
	if err != nil {
		a.logger.Error("Failed to replay session", logger.String("session_id", id), logger.Err(err))
		a.jsonError(w, "Failed to replay session", http.StatusInternalServerError)
		return
	}
	if len(evs) == 0 {
		a.jsonError(w, "Unknown session", http.StatusNotFound)
		return
	}

	a.logger.Event("SESSION_REPLAY", "PLAYER", "session "+id+" events "+strconv.Itoa(len(evs)))
	a.jsonSuccess(w, ReplayResponse{
		SessionID:   id,
		TotalEvents: len(evs),
		GeneratedAt: time.Now().Format(time.RFC3339),
		Events:      evs,
	})
}

func (a *API) stateResponse() StateResponse {
	return StateResponse{State: a.game.State(), Scores: a.game.Scores()}
}

func (a *API) jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func (a *API) jsonSuccess(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/robalobadob/wordly/internal/leaderboard"
	"github.com/robalobadob/wordly/internal/service"
)

type guessReq struct {
	UID     string `json:"uid"`
	GameUID string `json:"gameUid"`
	Guess   string `json:"guess"`
	Name    string `json:"name"`
}

type saveReq struct {
	UID     string `json:"uid"`
	Name    string `json:"name"`
	GameUID string `json:"gameUid"`
	State   struct {
		Draft string `json:"draft"`
	} `json:"state"`
}

type stateResp struct {
	State *service.StateView `json:"state"`
}

func (s *Server) mountGame(r chi.Router) {
	r.Get("/config", s.handleConfig)
	r.Post("/guess", s.handleGuess)
	r.Get("/state", s.handleGetState)
	r.Post("/state", s.handleSaveState)
	r.Get("/scores", s.handleScores)
}

// GET /api/config
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.game.Config(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// POST /api/guess
func (s *Server) handleGuess(w http.ResponseWriter, r *http.Request) {
	var req guessReq
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.game.SubmitGuess(r.Context(), service.GuessInput{
		UID:     req.UID,
		GameUID: req.GameUID,
		Guess:   req.Guess,
		Name:    req.Name,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GET /api/state?uid=
func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	st, err := s.game.State(r.Context(), r.URL.Query().Get("uid"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stateResp{State: st})
}

// POST /api/state
func (s *Server) handleSaveState(w http.ResponseWriter, r *http.Request) {
	var req saveReq
	if !decodeJSON(w, r, &req) {
		return
	}
	st, err := s.game.SaveState(r.Context(), service.SaveInput{
		UID:     req.UID,
		GameUID: req.GameUID,
		Name:    req.Name,
		Draft:   req.State.Draft,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stateResp{State: st})
}

// GET /api/scores
func (s *Server) handleScores(w http.ResponseWriter, r *http.Request) {
	scores, err := s.game.Scores(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if scores == nil {
		scores = []leaderboard.Entry{}
	}
	writeJSON(w, http.StatusOK, scores)
}

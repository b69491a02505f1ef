package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type adminReq struct {
	Code string `json:"code"`
}

type resetResp struct {
	GameUID    string `json:"gameUid"`
	Word       string `json:"word"`
	Definition string `json:"definition"`
	WordLength int    `json:"wordLength"`
	MaxGuesses int    `json:"maxGuesses"`
}

func (s *Server) mountAdmin(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Post("/verify", s.handleVerify)
		r.Post("/reset", s.handleReset)
	})
}

// POST /api/admin/verify
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req adminReq
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.admin.Verify(r.Context(), clientIP(r), req.Code)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// POST /api/admin/reset
//
// The credential is the code in the body or, failing that, a bearer token
// from a previous verify. The body may be empty when a token is sent.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	credential := bearerToken(r)
	if credential == "" {
		var req adminReq
		if !decodeJSON(w, r, &req) {
			return
		}
		credential = req.Code
	}
	e, err := s.admin.Reset(r.Context(), clientIP(r), credential)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resetResp{
		GameUID:    e.GameUID,
		Word:       e.Word,
		Definition: e.Definition,
		WordLength: e.WordLength,
		MaxGuesses: e.MaxGuesses,
	})
}

// internal/httpserver/routes_game.go
//
// Game endpoints:
//   - GET  /api/game/init          → create or return the post's session
//   - POST /api/game/phrase-check  → match a dial position
//   - POST /api/game/meta-solve    → submit the meta answer
//   - GET  /api/game/map           → community territory snapshot
//   - GET  /api/game/plot/{row}/{col} → claim record for one cell

package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/AswinBehera/staticfrontier/internal/game"
	"github.com/AswinBehera/staticfrontier/internal/territory"
)

// handleGameInit creates or returns the session for a post. Idempotent.
func (s *Server) handleGameInit(w http.ResponseWriter, r *http.Request) {
	postID := r.URL.Query().Get("postId")
	if postID == "" {
		writeErr(w, http.StatusBadRequest, "postId is required")
		return
	}
	state, err := s.engine.InitSession(r.Context(), postID, community(r), callerUsername(r))
	if err != nil {
		log.Error().Err(err).Str("postId", postID).Msg("game init failed")
		writeErr(w, http.StatusInternalServerError, "Failed to initialize game")
		return
	}
	writeJSON(w, state)
}

// phraseCheckReq is the payload for POST /api/game/phrase-check.
type phraseCheckReq struct {
	PostID     string  `json:"postId"`
	Frequency  float64 `json:"frequency"`
	Modulation float64 `json:"modulation"`
}

// handlePhraseCheck matches a dial position against the session's broadcast.
func (s *Server) handlePhraseCheck(w http.ResponseWriter, r *http.Request) {
	var req phraseCheckReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PostID == "" {
		writeErr(w, http.StatusBadRequest, "postId is required")
		return
	}
	res, err := s.engine.CheckPhrase(r.Context(), req.PostID, callerUsername(r), req.Frequency, req.Modulation)
	if err != nil {
		if errors.Is(err, game.ErrNoSession) {
			writeErr(w, http.StatusBadRequest, "Game not initialized")
			return
		}
		log.Error().Err(err).Str("postId", req.PostID).Msg("phrase check failed")
		writeErr(w, http.StatusInternalServerError, "Failed to check phrase")
		return
	}
	writeJSON(w, res)
}

// metaSolveReq is the payload for POST /api/game/meta-solve.
type metaSolveReq struct {
	PostID    string `json:"postId"`
	Community string `json:"community"`
	Answer    string `json:"answer"`
}

// handleMetaSolve submits the meta answer for a post.
func (s *Server) handleMetaSolve(w http.ResponseWriter, r *http.Request) {
	var req metaSolveReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PostID == "" {
		writeErr(w, http.StatusBadRequest, "postId is required")
		return
	}
	if req.Answer == "" {
		writeErr(w, http.StatusBadRequest, "answer is required")
		return
	}
	comm := req.Community
	if comm == "" {
		comm = community(r)
	}
	res, err := s.engine.SolveMeta(r.Context(), req.PostID, comm, callerUsername(r), req.Answer)
	if err != nil {
		if errors.Is(err, game.ErrNoSession) {
			writeErr(w, http.StatusBadRequest, "Game not initialized")
			return
		}
		log.Error().Err(err).Str("postId", req.PostID).Msg("meta solve failed")
		writeErr(w, http.StatusInternalServerError, "Failed to solve meta puzzle")
		return
	}
	writeJSON(w, res)
}

// handleMap returns the community's territory snapshot.
func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	grid, err := s.maps.GetMap(r.Context(), community(r))
	if err != nil {
		log.Error().Err(err).Msg("map read failed")
		writeErr(w, http.StatusInternalServerError, "Failed to get map")
		return
	}
	writeJSON(w, map[string]any{"asciiMap": grid})
}

// handlePlot returns the claim record for one cell, or 404.
func (s *Server) handlePlot(w http.ResponseWriter, r *http.Request) {
	row, err1 := strconv.Atoi(chi.URLParam(r, "row"))
	col, err2 := strconv.Atoi(chi.URLParam(r, "col"))
	if err1 != nil || err2 != nil {
		writeErr(w, http.StatusBadRequest, "row and col must be integers")
		return
	}
	rec, err := s.maps.GetPlot(r.Context(), community(r), row, col)
	if err != nil {
		if errors.Is(err, territory.ErrPlotNotFound) {
			writeErr(w, http.StatusNotFound, "Plot not found")
			return
		}
		log.Error().Err(err).Msg("plot read failed")
		writeErr(w, http.StatusInternalServerError, "Failed to get plot info")
		return
	}
	writeJSON(w, map[string]any{"status": "success", "plotInfo": rec})
}

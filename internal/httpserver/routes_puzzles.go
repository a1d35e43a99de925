// internal/httpserver/routes_puzzles.go
//
// Puzzle catalog, submission, moderation, and leaderboard endpoints.
// Catalog reads are public; submission uses optional auth (guests submit as
// "Anonymous"); moderation requires auth.

package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/AswinBehera/staticfrontier/internal/puzzles"
)

// mountPuzzles registers /api/puzzles, creator, and echo-points routes.
func (s *Server) mountPuzzles() {
	s.r.Route("/api/puzzles", func(r chi.Router) {
		r.Get("/", s.handlePuzzleList)
		r.Get("/search", s.handlePuzzleSearch)
		r.Get("/category/{category}", s.handlePuzzlesByCategory)
		r.Get("/difficulty/{difficulty}", s.handlePuzzlesByDifficulty)

		r.With(s.withOptionalAuth()).Post("/submit", s.handlePuzzleSubmit)
		r.With(s.requireAuth()).Get("/pending", s.handlePuzzlesPending)
		r.With(s.requireAuth()).Post("/approve/{puzzleId}", s.handlePuzzleApprove)
		r.With(s.requireAuth()).Post("/reject/{puzzleId}", s.handlePuzzleReject)

		r.Get("/{id}", s.handlePuzzleByID)
	})

	s.r.Get("/api/creator/credits/{username}", s.handleCreatorCredits)
	s.r.Get("/api/creators/leaderboard", s.handleCreatorLeaderboard)
	s.r.Get("/api/echo-points/leaderboard", s.handlePointsLeaderboard)
	s.r.Get("/api/echo-points/{username}", s.handleEchoPoints)
}

// ------------------------------- catalog -----------------------------------

func (s *Server) handlePuzzleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"puzzles": puzzles.All()})
}

func (s *Server) handlePuzzleByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, ok := puzzles.ByID(id)
	if !ok {
		// User submissions are addressable by id too.
		var err error
		p, err = s.subs.Lookup(r.Context(), id)
		if err != nil {
			writeErr(w, http.StatusNotFound, "Puzzle not found")
			return
		}
	}
	writeJSON(w, map[string]any{"puzzle": p})
}

func (s *Server) handlePuzzlesByCategory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"puzzles": puzzles.ByCategory(chi.URLParam(r, "category"))})
}

func (s *Server) handlePuzzlesByDifficulty(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"puzzles": puzzles.ByDifficulty(chi.URLParam(r, "difficulty"))})
}

func (s *Server) handlePuzzleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeErr(w, http.StatusBadRequest, "q is required")
		return
	}
	writeJSON(w, map[string]any{"puzzles": puzzles.Search(q)})
}

// ----------------------- submission & moderation ---------------------------

func (s *Server) handlePuzzleSubmit(w http.ResponseWriter, r *http.Request) {
	var in puzzles.SubmissionInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid request body")
		return
	}
	p, err := s.subs.Submit(r.Context(), community(r), callerUsername(r), in)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, map[string]any{
		"success":  true,
		"message":  "Puzzle submitted for review! You earned 5 Echo Points.",
		"puzzleId": p.ID,
	})
}

func (s *Server) handlePuzzlesPending(w http.ResponseWriter, r *http.Request) {
	list, err := s.subs.Pending(r.Context(), community(r))
	if err != nil {
		log.Error().Err(err).Msg("pending list failed")
		writeErr(w, http.StatusInternalServerError, "Failed to get pending puzzles")
		return
	}
	writeJSON(w, map[string]any{"status": "success", "puzzles": list})
}

func (s *Server) handlePuzzleApprove(w http.ResponseWriter, r *http.Request) {
	puzzleID := chi.URLParam(r, "puzzleId")
	p, postID, err := s.subs.Approve(r.Context(), community(r), puzzleID)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, map[string]any{
		"success":  true,
		"message":  "Puzzle approved and announced!",
		"puzzleId": p.ID,
		"postId":   postID,
	})
}

type rejectReq struct {
	Reason string `json:"reason"`
}

func (s *Server) handlePuzzleReject(w http.ResponseWriter, r *http.Request) {
	var body rejectReq
	_ = json.NewDecoder(r.Body).Decode(&body)
	puzzleID := chi.URLParam(r, "puzzleId")
	if err := s.subs.Reject(r.Context(), community(r), puzzleID, body.Reason); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, map[string]any{"success": true, "message": "Puzzle rejected", "puzzleId": puzzleID})
}

// ------------------------------ leaderboards -------------------------------

func (s *Server) handleCreatorCredits(w http.ResponseWriter, r *http.Request) {
	credits, err := s.subs.Credits(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		log.Error().Err(err).Msg("creator credits read failed")
		writeErr(w, http.StatusInternalServerError, "Failed to get creator credits")
		return
	}
	writeJSON(w, map[string]any{"status": "success", "credits": credits})
}

func (s *Server) handleCreatorLeaderboard(w http.ResponseWriter, r *http.Request) {
	top, err := s.subs.CreatorLeaderboard(r.Context(), community(r), 10)
	if err != nil {
		log.Error().Err(err).Msg("creator leaderboard failed")
		writeErr(w, http.StatusInternalServerError, "Failed to get creator leaderboard")
		return
	}
	writeJSON(w, map[string]any{"status": "success", "leaderboard": top})
}

func (s *Server) handleEchoPoints(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	total, err := s.ledger.Total(r.Context(), username)
	if err != nil {
		log.Error().Err(err).Msg("echo points read failed")
		writeErr(w, http.StatusInternalServerError, "Failed to get echo points")
		return
	}
	writeJSON(w, map[string]any{"status": "success", "username": username, "echoPoints": total})
}

func (s *Server) handlePointsLeaderboard(w http.ResponseWriter, r *http.Request) {
	top, err := s.ledger.Leaderboard(r.Context(), 10)
	if err != nil {
		log.Error().Err(err).Msg("points leaderboard failed")
		writeErr(w, http.StatusInternalServerError, "Failed to get echo points leaderboard")
		return
	}
	writeJSON(w, map[string]any{"status": "success", "leaderboard": top})
}

// internal/httpserver/routes_daily.go
//
// HTTP routes for the daily official puzzle.
// Exposes two endpoints:
//   - POST /api/daily-puzzle/post  → announce today's puzzle (once per day)
//   - GET  /api/daily-puzzle/today → fetch today's puzzle teaser
//
// The day's puzzle is chosen deterministically from the unsolved built-in
// pool via HMAC(salt, date), so repeated calls and multiple instances agree
// without coordination. The once-per-day guard is a KV key per
// (community, date).

package httpserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/AswinBehera/staticfrontier/internal/daily"
	"github.com/AswinBehera/staticfrontier/internal/puzzles"
	"github.com/AswinBehera/staticfrontier/internal/store"
)

// mountDaily registers the daily puzzle routes.
func (s *Server) mountDaily() {
	s.r.With(s.requireAuth()).Post("/api/daily-puzzle/post", s.handleDailyPost)
	s.r.Get("/api/daily-puzzle/today", s.handleDailyToday)
}

// handleDailyPost announces today's puzzle for a community, at most once per
// day. Reposting the same day returns the original announcement id.
func (s *Server) handleDailyPost(w http.ResponseWriter, r *http.Request) {
	comm := community(r)
	today := daily.DateKey(time.Now())

	if postID, ok, err := s.kv.Get(r.Context(), store.DailyPostKey(comm, today)); err != nil {
		log.Error().Err(err).Msg("daily post check failed")
		writeErr(w, http.StatusInternalServerError, "Failed to post daily puzzle")
		return
	} else if ok {
		writeJSON(w, map[string]any{
			"status":  "success",
			"message": "Daily puzzle already posted today",
			"postId":  postID,
		})
		return
	}

	chosen, ok := s.pickDaily(r, comm)
	if !ok {
		writeErr(w, http.StatusInternalServerError, "No built-in puzzles available")
		return
	}

	title := "DAILY PUZZLE: " + chosen.Title
	body := dailyBody(chosen)
	postID, err := s.notifier.SubmitPost(r.Context(), comm, title, body)
	if err != nil {
		log.Error().Err(err).Msg("daily announcement failed")
		writeErr(w, http.StatusInternalServerError, "Failed to post daily puzzle")
		return
	}

	if err := s.kv.Set(r.Context(), store.DailyPostKey(comm, today), postID); err != nil {
		log.Warn().Err(err).Msg("daily post guard write failed")
	}
	if err := s.kv.Set(r.Context(), store.DailyPuzzleKey(comm, today), chosen.ID); err != nil {
		log.Warn().Err(err).Msg("daily puzzle record write failed")
	}

	writeJSON(w, map[string]any{
		"status":   "success",
		"message":  "Daily puzzle posted!",
		"puzzleId": chosen.ID,
		"postId":   postID,
		"title":    chosen.Title,
	})
}

// pickDaily selects today's puzzle deterministically from the built-in pool,
// preferring puzzles the community has not solved yet.
func (s *Server) pickDaily(r *http.Request, comm string) (puzzles.Puzzle, bool) {
	pool := puzzles.All()
	if raw, ok, err := s.kv.Get(r.Context(), store.SolvedSetKey(comm)); err == nil && ok {
		var ids []string
		if err := json.Unmarshal([]byte(raw), &ids); err == nil {
			solved := make(map[string]struct{}, len(ids))
			for _, id := range ids {
				solved[id] = struct{}{}
			}
			var unsolved []puzzles.Puzzle
			for _, p := range pool {
				if _, done := solved[p.ID]; !done {
					unsolved = append(unsolved, p)
				}
			}
			if len(unsolved) > 0 {
				pool = unsolved
			}
		}
	}
	if len(pool) == 0 {
		return puzzles.Puzzle{}, false
	}
	salt := getEnv("DAILY_SALT", "local_dev_salt")
	return pool[daily.PuzzleIndex(time.Now(), salt, len(pool))], true
}

// handleDailyToday returns a teaser for today's puzzle, without the answer
// or the phrase coordinates.
func (s *Server) handleDailyToday(w http.ResponseWriter, r *http.Request) {
	comm := community(r)
	today := daily.DateKey(time.Now())

	puzzleID, ok, err := s.kv.Get(r.Context(), store.DailyPuzzleKey(comm, today))
	if err != nil {
		log.Error().Err(err).Msg("daily puzzle read failed")
		writeErr(w, http.StatusInternalServerError, "Failed to get daily puzzle")
		return
	}
	if !ok {
		writeJSON(w, map[string]any{"status": "success", "hasDailyPuzzle": false})
		return
	}
	p, found := puzzles.ByID(puzzleID)
	if !found {
		writeJSON(w, map[string]any{"status": "success", "hasDailyPuzzle": false})
		return
	}
	writeJSON(w, map[string]any{
		"status":         "success",
		"hasDailyPuzzle": true,
		"puzzle": map[string]any{
			"id":          p.ID,
			"title":       p.Title,
			"description": p.Description,
			"difficulty":  p.Difficulty,
			"category":    p.Category,
			"hints":       p.Hints,
		},
	})
}

// dailyBody renders the daily announcement text.
func dailyBody(p puzzles.Puzzle) string {
	hints := "- No hints provided"
	if len(p.Hints) > 0 {
		hints = ""
		for i, h := range p.Hints {
			if i > 0 {
				hints += "\n"
			}
			hints += "- " + h
		}
	}
	return "**" + p.Title + "**\n\n" + p.Description +
		"\n\n**Difficulty:** " + p.Difficulty +
		"\n**Category:** " + p.Category +
		"\n\n---\n\nTune your radio to find the hidden signals and solve the meta puzzle!\n\n**Hints:**\n" + hints +
		"\n\n---\nThis is today's official puzzle. Solve it to claim territory on the shared map!"
}

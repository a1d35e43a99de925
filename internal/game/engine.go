// internal/game/engine.go
//
// Core engine for the signal-tuning game.
// Responsibilities:
//   - Initialize per-post sessions with a randomly selected unsolved puzzle.
//   - Match dial positions against hidden phrases (Signal Matcher).
//   - Resolve meta-answer submissions: first-winner decision, territory
//     claim, points, solved-set update (Meta Resolution Engine).
//
// Concurrency note: the KV store offers single-key get/set only, so the
// read-modify-write sequences here are not atomic against concurrent
// writers. Two simultaneous winning submissions for one session can both
// observe an empty winner. That window is accepted at the traffic scale of
// a single post; a stronger deployment would put a CAS-capable KV behind
// the store interface or serialize writes per post id.

package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/AswinBehera/staticfrontier/internal/notify"
	"github.com/AswinBehera/staticfrontier/internal/points"
	"github.com/AswinBehera/staticfrontier/internal/puzzles"
	"github.com/AswinBehera/staticfrontier/internal/store"
	"github.com/AswinBehera/staticfrontier/internal/territory"
)

// Tolerance is the half-width of the rectangular match window on each dial
// axis. A phrase matches when both deltas are strictly below it.
const Tolerance = 0.5

// ErrNoSession means the post has no initialized session; callers must init
// first. Distinct from a failed match or a rejected answer.
var ErrNoSession = errors.New("game not initialized")

// Engine wires the session store to the catalog, map, ledger, and notifier.
type Engine struct {
	kv       store.KV
	catalog  *puzzles.Catalog
	maps     *territory.Allocator
	ledger   *points.Ledger
	notifier notify.Notifier
}

// NewEngine constructs an Engine.
func NewEngine(kv store.KV, catalog *puzzles.Catalog, maps *territory.Allocator, ledger *points.Ledger, notifier notify.Notifier) *Engine {
	return &Engine{kv: kv, catalog: catalog, maps: maps, ledger: ledger, notifier: notifier}
}

// InitSession returns the session for postID, creating one on first access.
// Creation selects uniformly at random among puzzles the community has not
// solved yet, falling back to the full catalog when everything is solved.
// Idempotent: an existing session is returned unchanged.
func (e *Engine) InitSession(ctx context.Context, postID, community, username string) (GameState, error) {
	if s, err := e.loadSession(ctx, postID); err == nil {
		return s, nil
	} else if !errors.Is(err, ErrNoSession) {
		return GameState{}, err
	}

	pool := e.catalog.Available(ctx, community)
	solved, err := e.solvedSet(ctx, community)
	if err != nil {
		return GameState{}, err
	}
	var unsolved []puzzles.Puzzle
	for _, p := range pool {
		if _, done := solved[p.ID]; !done {
			unsolved = append(unsolved, p)
		}
	}
	if len(unsolved) == 0 {
		unsolved = pool
	}
	chosen, ok := puzzles.PickRandom(unsolved)
	if !ok {
		return GameState{}, errors.New("no puzzles available")
	}

	grid, err := e.maps.GetMap(ctx, community)
	if err != nil {
		return GameState{}, err
	}
	total, err := e.ledger.Total(ctx, username)
	if err != nil {
		log.Warn().Err(err).Str("username", username).Msg("points lookup failed, defaulting to 0")
		total = 0
	}

	s := GameState{
		Broadcast:      puzzles.ToBroadcast(chosen),
		FoundPhrases:   []string{},
		IsMetaSolved:   false,
		AsciiMap:       grid,
		UserEchoPoints: total,
		Username:       username,
	}
	if err := e.saveSession(ctx, postID, s); err != nil {
		return GameState{}, err
	}
	return s, nil
}

// CheckPhrase matches a dial position against the session's broadcast.
// The first phrase within Tolerance on both axes that is not already found
// is appended to the session's discovery list. The first time a phrase text
// is discovered anywhere on the platform, a discovery announcement is posted
// and the discoverer earns points; both side effects are best effort.
func (e *Engine) CheckPhrase(ctx context.Context, postID, username string, frequency, modulation float64) (PhraseResult, error) {
	if !validDial(frequency) || !validDial(modulation) {
		return PhraseResult{}, errors.New("invalid dial values")
	}
	s, err := e.loadSession(ctx, postID)
	if err != nil {
		return PhraseResult{}, err
	}

	phrase, ok := matchPhrase(s.Broadcast.Phrases, s.FoundPhrases, frequency, modulation)
	if !ok {
		return PhraseResult{Success: false, Message: "No signal at this frequency"}, nil
	}

	s.FoundPhrases = append(s.FoundPhrases, phrase.Text)
	if err := e.saveSession(ctx, postID, s); err != nil {
		return PhraseResult{}, err
	}

	e.recordFirstDiscovery(ctx, postID, username, s.Broadcast.BroadcastID, phrase.Text)

	return PhraseResult{Success: true, Phrase: phrase.Text, Message: "Signal decoded!"}, nil
}

// matchPhrase finds the first phrase within the rectangular tolerance window
// whose text has not been found yet.
func matchPhrase(phrases []puzzles.Phrase, found []string, frequency, modulation float64) (puzzles.Phrase, bool) {
	for _, p := range phrases {
		if math.Abs(p.Frequency-frequency) < Tolerance &&
			math.Abs(p.Modulation-modulation) < Tolerance &&
			!contains(found, p.Text) {
			return p, true
		}
	}
	return puzzles.Phrase{}, false
}

// recordFirstDiscovery marks phrase text as discovered platform-wide at most
// once, awarding discovery points and announcing the find on the first time.
func (e *Engine) recordFirstDiscovery(ctx context.Context, postID, username, broadcastID, text string) {
	key := store.PhraseDiscoveredKey(text)
	_, seen, err := e.kv.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("phrase", text).Msg("discovery check failed")
		return
	}
	if seen {
		return
	}
	if err := e.kv.Set(ctx, key, "true"); err != nil {
		log.Warn().Err(err).Str("phrase", text).Msg("discovery mark failed")
		return
	}

	if err := e.ledger.Award(ctx, username, points.DiscoveryAward, points.ReasonPhraseDiscovery, broadcastID); err != nil {
		log.Warn().Err(err).Str("username", username).Msg("discovery award failed")
	}
	comment := fmt.Sprintf(
		"SIGNAL DISCOVERED!\n\n%s was the first to decode this hidden signal.\n\nPhrase: %q",
		username, text)
	if err := e.notifier.SubmitComment(ctx, postID, comment); err != nil {
		log.Warn().Err(err).Str("postId", postID).Msg("discovery announcement failed")
	}
}

// SolveMeta resolves a meta-answer submission for postID.
//
// State machine per session: UNSOLVED → SOLVED, terminal. An already-solved
// session and a session with no found phrases reject without side effects;
// a wrong answer rejects without state change and may be retried. On a
// correct answer the submitter wins iff no winner is recorded yet; winners
// claim a random map cell and the award follows the territory outcome, late
// correct answers earn the flat consolation amount.
func (e *Engine) SolveMeta(ctx context.Context, postID, community, username, answer string) (SolveResult, error) {
	s, err := e.loadSession(ctx, postID)
	if err != nil {
		return SolveResult{}, err
	}

	if s.IsMetaSolved {
		return SolveResult{Success: false, Message: "Meta puzzle already solved"}, nil
	}
	if len(s.FoundPhrases) == 0 {
		return SolveResult{Success: false, Message: "At least one phrase must be found first"}, nil
	}
	if !answersEqual(answer, s.Broadcast.MetaAnswer) {
		return SolveResult{Success: false, Message: "Incorrect answer"}, nil
	}

	isWinner := s.Winner == ""

	claimed := false
	if isWinner {
		rec := territory.PlotRecord{
			Username:       username,
			BroadcastTitle: s.Broadcast.Title,
			BroadcastID:    s.Broadcast.BroadcastID,
			MetaAnswer:     s.Broadcast.MetaAnswer,
		}
		_, claimed, err = e.maps.ClaimRandomCell(ctx, community, claimantInitial(username), rec)
		if err != nil {
			return SolveResult{}, err
		}
	}

	grid, err := e.maps.GetMap(ctx, community)
	if err != nil {
		return SolveResult{}, err
	}
	mapFull := territory.IsFull(grid)

	// Award schedule: completing the map supersedes the plain win amount,
	// a full map before the claim falls back to the same bonus, and a
	// normal mid-map claim awards nothing beyond the territory itself.
	var solvePts int
	switch {
	case !isWinner:
		solvePts = points.ConsolationAward
	case claimed && mapFull:
		solvePts = points.CompletionBonus
	case !claimed:
		solvePts = points.NoPlotsFallback
	default:
		solvePts = points.NormalWinAward
	}

	if isWinner {
		if err := e.markSolved(ctx, community, s.Broadcast.BroadcastID); err != nil {
			log.Warn().Err(err).Str("community", community).Msg("solved-set update failed")
		}
	}
	if solvePts > 0 {
		if err := e.ledger.Award(ctx, username, solvePts, points.ReasonPuzzleSolve, s.Broadcast.BroadcastID); err != nil {
			log.Warn().Err(err).Str("username", username).Msg("solve award failed")
		}
	}

	s.IsMetaSolved = true
	if isWinner {
		s.Winner = username
	}
	s.AsciiMap = grid
	if total, err := e.ledger.Total(ctx, username); err == nil {
		s.UserEchoPoints = total
	} else {
		log.Warn().Err(err).Str("username", username).Msg("points refresh failed")
	}
	if err := e.saveSession(ctx, postID, s); err != nil {
		return SolveResult{}, err
	}

	if isWinner {
		comment := fmt.Sprintf(
			"PUZZLE SOLVED!\n\n%s solved the meta puzzle and claimed territory on the shared map. First to crack this signal!",
			username)
		if err := e.notifier.SubmitComment(ctx, postID, comment); err != nil {
			log.Warn().Err(err).Str("postId", postID).Msg("solve announcement failed")
		}
	}

	msg := fmt.Sprintf("Correct! You earned %d Echo Points.", solvePts)
	if isWinner {
		msg = "Congratulations! You claimed the territory!"
		if claimed && mapFull {
			msg += fmt.Sprintf(" +%d Echo Points for map completion!", solvePts)
		}
	}
	return SolveResult{
		Success:    true,
		IsWinner:   isWinner,
		EchoPoints: solvePts,
		AsciiMap:   grid,
		Message:    msg,
	}, nil
}

// ------------------------------ persistence --------------------------------

func (e *Engine) loadSession(ctx context.Context, postID string) (GameState, error) {
	raw, ok, err := e.kv.Get(ctx, store.SessionKey(postID))
	if err != nil {
		return GameState{}, fmt.Errorf("read session: %w", err)
	}
	if !ok {
		return GameState{}, ErrNoSession
	}
	var s GameState
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return GameState{}, fmt.Errorf("decode session: %w", err)
	}
	return s, nil
}

func (e *Engine) saveSession(ctx context.Context, postID string, s GameState) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if err := e.kv.Set(ctx, store.SessionKey(postID), string(b)); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// solvedSet loads a community's solved puzzle ids as a lookup set.
func (e *Engine) solvedSet(ctx context.Context, community string) (map[string]struct{}, error) {
	raw, ok, err := e.kv.Get(ctx, store.SolvedSetKey(community))
	if err != nil {
		return nil, fmt.Errorf("read solved set: %w", err)
	}
	set := make(map[string]struct{})
	if !ok {
		return set, nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, fmt.Errorf("decode solved set: %w", err)
	}
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

// markSolved appends broadcastID to the community's solved set, once.
func (e *Engine) markSolved(ctx context.Context, community, broadcastID string) error {
	set, err := e.solvedSet(ctx, community)
	if err != nil {
		return err
	}
	if _, ok := set[broadcastID]; ok {
		return nil
	}
	ids := make([]string, 0, len(set)+1)
	for id := range set {
		ids = append(ids, id)
	}
	ids = append(ids, broadcastID)
	b, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return e.kv.Set(ctx, store.SolvedSetKey(community), string(b))
}

// ------------------------------- helpers -----------------------------------

// answersEqual compares answers case-insensitively after trimming whitespace.
func answersEqual(submitted, meta string) bool {
	return strings.EqualFold(strings.TrimSpace(submitted), strings.TrimSpace(meta))
}

// claimantInitial is the single uppercase character written into a claimed
// cell. Falls back to "A" for empty identities.
func claimantInitial(username string) string {
	for _, r := range username {
		return strings.ToUpper(string(r))
	}
	return "A"
}

// validDial rejects NaN and infinite dial values before any state is read.
func validDial(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

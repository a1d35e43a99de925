// internal/puzzles/submissions.go
//
// User puzzle submissions and their moderation lifecycle:
// pending → approved (announced, selectable) or rejected (terminal).
// Approval also maintains the creator-credit summaries, which are deliberate
// separate bookkeeping from the echo-points ledger.

package puzzles

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/AswinBehera/staticfrontier/internal/notify"
	"github.com/AswinBehera/staticfrontier/internal/points"
	"github.com/AswinBehera/staticfrontier/internal/store"
)

// SubmissionInput is the payload of a puzzle submission.
type SubmissionInput struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	MetaAnswer  string   `json:"metaAnswer"`
	Phrases     []Phrase `json:"phrases"`
	Difficulty  string   `json:"difficulty"`
	Category    string   `json:"category"`
	Hints       []string `json:"hints"`
}

// CreatorCredits summarizes a creator's contribution. Updated only on
// approval; intentionally independent of the points ledger.
type CreatorCredits struct {
	TotalPuzzles    int `json:"totalPuzzles"`
	ApprovedPuzzles int `json:"approvedPuzzles"`
	TotalEchoPoints int `json:"totalEchoPoints"`
}

// CreatorEntry is one creator-leaderboard row.
type CreatorEntry struct {
	Username        string `json:"username"`
	ApprovedPuzzles int    `json:"approvedPuzzles"`
	TotalEchoPoints int    `json:"totalEchoPoints"`
}

// Submissions manages the user-puzzle lifecycle on top of the KV store.
type Submissions struct {
	kv       store.KV
	ledger   *points.Ledger
	notifier notify.Notifier
}

// NewSubmissions constructs the submission service.
func NewSubmissions(kv store.KV, ledger *points.Ledger, notifier notify.Notifier) *Submissions {
	return &Submissions{kv: kv, ledger: ledger, notifier: notifier}
}

// Submit validates and stores a new submission in pending state and credits
// the creator the submission award. Validation happens before any write.
func (s *Submissions) Submit(ctx context.Context, community, creator string, in SubmissionInput) (Puzzle, error) {
	phrases := filterPhrases(in.Phrases)
	if in.Title == "" || in.Description == "" || in.MetaAnswer == "" || len(phrases) < 2 {
		return Puzzle{}, errors.New("missing required fields")
	}
	seen := make(map[float64]struct{}, len(phrases))
	for _, p := range phrases {
		if _, dup := seen[p.Frequency]; dup {
			return Puzzle{}, errors.New("all phrases must have unique frequencies")
		}
		seen[p.Frequency] = struct{}{}
	}

	p := Puzzle{
		ID:          fmt.Sprintf("user_%d_%s", time.Now().UnixMilli(), randomToken()),
		Title:       in.Title,
		Description: in.Description,
		MetaAnswer:  in.MetaAnswer,
		Hints:       filterHints(in.Hints),
		Phrases:     phrases,
		Difficulty:  in.Difficulty,
		Category:    in.Category,
		Creator:     creator,
		Status:      StatusPending,
		Community:   community,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.writePuzzle(ctx, p); err != nil {
		return Puzzle{}, err
	}
	if err := s.appendID(ctx, store.PendingKey(community), p.ID); err != nil {
		return Puzzle{}, err
	}

	if err := s.ledger.Award(ctx, creator, points.SubmissionAward, points.ReasonPuzzleSubmission, p.ID); err != nil {
		log.Warn().Err(err).Str("creator", creator).Msg("submission award failed")
	}
	return p, nil
}

// Pending lists a community's submissions awaiting moderation.
func (s *Submissions) Pending(ctx context.Context, community string) ([]Puzzle, error) {
	ids, err := s.readIDs(ctx, store.PendingKey(community))
	if err != nil {
		return nil, err
	}
	var out []Puzzle
	for _, id := range ids {
		p, err := s.Lookup(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// Lookup loads one submission by id.
func (s *Submissions) Lookup(ctx context.Context, puzzleID string) (Puzzle, error) {
	raw, ok, err := s.kv.Get(ctx, store.SubmissionKey(puzzleID))
	if err != nil {
		return Puzzle{}, fmt.Errorf("read submission: %w", err)
	}
	if !ok {
		return Puzzle{}, errors.New("puzzle not found")
	}
	var p Puzzle
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Puzzle{}, fmt.Errorf("decode submission: %w", err)
	}
	return p, nil
}

// Approve transitions a pending submission to approved: announces it,
// makes it selectable, and credits the creator. Returns the announcement
// post id.
func (s *Submissions) Approve(ctx context.Context, community, puzzleID string) (Puzzle, string, error) {
	p, err := s.Lookup(ctx, puzzleID)
	if err != nil {
		return Puzzle{}, "", err
	}
	if p.Status != StatusPending {
		return Puzzle{}, "", errors.New("puzzle is not pending approval")
	}

	postID, err := s.notifier.SubmitPost(ctx, community, announcementTitle(p), announcementBody(p))
	if err != nil {
		return Puzzle{}, "", fmt.Errorf("announce puzzle: %w", err)
	}

	p.Status = StatusApproved
	p.ApprovedAt = time.Now().UTC()
	if err := s.writePuzzle(ctx, p); err != nil {
		return Puzzle{}, "", err
	}
	if err := s.appendID(ctx, store.ApprovedKey(community), p.ID); err != nil {
		return Puzzle{}, "", err
	}
	if err := s.removeID(ctx, store.PendingKey(community), p.ID); err != nil {
		return Puzzle{}, "", err
	}

	if err := s.bumpCredits(ctx, p.Creator); err != nil {
		log.Warn().Err(err).Str("creator", p.Creator).Msg("creator credits update failed")
	}
	if err := s.ledger.Award(ctx, p.Creator, points.ApprovalAward, points.ReasonPuzzleApproval, p.ID); err != nil {
		log.Warn().Err(err).Str("creator", p.Creator).Msg("approval award failed")
	}
	return p, postID, nil
}

// Reject transitions a pending submission to the terminal rejected state.
func (s *Submissions) Reject(ctx context.Context, community, puzzleID, reason string) error {
	p, err := s.Lookup(ctx, puzzleID)
	if err != nil {
		return err
	}
	if p.Status != StatusPending {
		return errors.New("puzzle is not pending approval")
	}

	p.Status = StatusRejected
	p.RejectedAt = time.Now().UTC()
	if reason == "" {
		reason = "No reason provided"
	}
	p.RejectionReason = reason
	if err := s.writePuzzle(ctx, p); err != nil {
		return err
	}
	if err := s.removeID(ctx, store.PendingKey(community), p.ID); err != nil {
		return err
	}
	return s.appendID(ctx, store.RejectedKey(community), p.ID)
}

// Credits returns a creator's summary, zero-valued when absent.
func (s *Submissions) Credits(ctx context.Context, username string) (CreatorCredits, error) {
	raw, ok, err := s.kv.Get(ctx, store.CreatorCreditsKey(username))
	if err != nil {
		return CreatorCredits{}, fmt.Errorf("read credits: %w", err)
	}
	if !ok {
		return CreatorCredits{}, nil
	}
	var c CreatorCredits
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return CreatorCredits{}, fmt.Errorf("decode credits: %w", err)
	}
	return c, nil
}

// CreatorLeaderboard aggregates a community's approved puzzles by creator.
func (s *Submissions) CreatorLeaderboard(ctx context.Context, community string, n int) ([]CreatorEntry, error) {
	ids, err := s.readIDs(ctx, store.ApprovedKey(community))
	if err != nil {
		return nil, err
	}
	byCreator := make(map[string]*CreatorEntry)
	for _, id := range ids {
		p, err := s.Lookup(ctx, id)
		if err != nil {
			continue
		}
		e, ok := byCreator[p.Creator]
		if !ok {
			e = &CreatorEntry{Username: p.Creator}
			byCreator[p.Creator] = e
		}
		e.ApprovedPuzzles++
		e.TotalEchoPoints += points.ApprovalAward
	}
	out := make([]CreatorEntry, 0, len(byCreator))
	for _, e := range byCreator {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ApprovedPuzzles > out[j].ApprovedPuzzles })
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// ------------------------------- internals ---------------------------------

func (s *Submissions) writePuzzle(ctx context.Context, p Puzzle) error {
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, store.SubmissionKey(p.ID), string(b)); err != nil {
		return fmt.Errorf("write submission: %w", err)
	}
	return nil
}

func (s *Submissions) readIDs(ctx context.Context, key string) ([]string, error) {
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil || !ok {
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Submissions) writeIDs(ctx context.Context, key string, ids []string) error {
	b, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, key, string(b))
}

func (s *Submissions) appendID(ctx context.Context, key, id string) error {
	ids, err := s.readIDs(ctx, key)
	if err != nil {
		return err
	}
	return s.writeIDs(ctx, key, append(ids, id))
}

func (s *Submissions) removeID(ctx context.Context, key, id string) error {
	ids, err := s.readIDs(ctx, key)
	if err != nil {
		return err
	}
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return s.writeIDs(ctx, key, out)
}

func (s *Submissions) bumpCredits(ctx context.Context, creator string) error {
	c, err := s.Credits(ctx, creator)
	if err != nil {
		return err
	}
	c.TotalPuzzles++
	c.ApprovedPuzzles++
	c.TotalEchoPoints += points.ApprovalAward
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, store.CreatorCreditsKey(creator), string(b))
}

func filterPhrases(in []Phrase) []Phrase {
	var out []Phrase
	for _, p := range in {
		if strings.TrimSpace(p.Text) != "" {
			out = append(out, p)
		}
	}
	return out
}

func filterHints(in []string) []string {
	var out []string
	for _, h := range in {
		if strings.TrimSpace(h) != "" {
			out = append(out, h)
		}
	}
	return out
}

func announcementTitle(p Puzzle) string {
	return fmt.Sprintf("NEW PUZZLE: %s (by %s)", p.Title, p.Creator)
}

func announcementBody(p Puzzle) string {
	hints := "- No hints provided"
	if len(p.Hints) > 0 {
		lines := make([]string, len(p.Hints))
		for i, h := range p.Hints {
			lines[i] = "- " + h
		}
		hints = strings.Join(lines, "\n")
	}
	return fmt.Sprintf(
		"**%s**\n\n%s\n\n**Difficulty:** %s\n**Category:** %s\n**Created by:** %s\n\n---\n\nTune your radio to find the hidden signals and solve the meta puzzle!\n\n**Hints:**\n%s",
		p.Title, p.Description, p.Difficulty, p.Category, p.Creator, hints)
}

// randomToken returns a short random id suffix.
func randomToken() string {
	var b [5]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// internal/points/points.go
//
// Echo-points ledger: one append-only account per user with a running total.
// The total is always the sum of the recorded transactions. Award amounts
// are fixed per reason and non-negative, so totals never go below zero.
//
// Award failures are surfaced to the caller, which logs and swallows them:
// losing a points write on a storage failure is an accepted degradation and
// must never fail the primary game operation.

package points

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/AswinBehera/staticfrontier/internal/store"
)

// Award reasons.
const (
	ReasonPhraseDiscovery  = "phrase_discovery"
	ReasonPuzzleSolve      = "puzzle_solve"
	ReasonPuzzleSubmission = "puzzle_submission"
	ReasonPuzzleApproval   = "puzzle_approval"
)

// Fixed award amounts.
const (
	DiscoveryAward   = 10 // first global discovery of a phrase
	SubmissionAward  = 5  // puzzle submitted for review
	ApprovalAward    = 50 // puzzle approved by a moderator
	ConsolationAward = 5  // correct answer after a winner exists
	CompletionBonus  = 50 // winning claim fills the final cell
	NoPlotsFallback  = 50 // winning solve with the map already full
	NormalWinAward   = 0  // winning claim of a non-final cell
)

// Transaction is one ledger entry.
type Transaction struct {
	Points    int       `json:"points"`
	Reason    string    `json:"reason"`
	PuzzleID  string    `json:"puzzleId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Account is a user's full ledger state.
type Account struct {
	TotalPoints  int           `json:"totalPoints"`
	Transactions []Transaction `json:"transactions"`
}

// Entry is one leaderboard row.
type Entry struct {
	Username   string `json:"username"`
	EchoPoints int    `json:"echoPoints"`
}

// Ledger persists accounts in the KV store.
type Ledger struct {
	kv store.KV
}

// NewLedger builds a Ledger over kv.
func NewLedger(kv store.KV) *Ledger {
	return &Ledger{kv: kv}
}

// Award appends a transaction to username's account and updates the total.
// A missing account starts from the zero state.
func (l *Ledger) Award(ctx context.Context, username string, pts int, reason, puzzleID string) error {
	acct, err := l.Get(ctx, username)
	if err != nil {
		return err
	}
	acct.TotalPoints += pts
	acct.Transactions = append(acct.Transactions, Transaction{
		Points:    pts,
		Reason:    reason,
		PuzzleID:  puzzleID,
		Timestamp: time.Now().UTC(),
	})

	b, err := json.Marshal(acct)
	if err != nil {
		return err
	}
	if err := l.kv.Set(ctx, store.PointsKey(username), string(b)); err != nil {
		return fmt.Errorf("write account: %w", err)
	}
	return l.index(ctx, username)
}

// Get loads username's account, defaulting to the zero state.
func (l *Ledger) Get(ctx context.Context, username string) (Account, error) {
	raw, ok, err := l.kv.Get(ctx, store.PointsKey(username))
	if err != nil {
		return Account{}, fmt.Errorf("read account: %w", err)
	}
	if !ok {
		return Account{}, nil
	}
	var acct Account
	if err := json.Unmarshal([]byte(raw), &acct); err != nil {
		return Account{}, fmt.Errorf("decode account: %w", err)
	}
	return acct, nil
}

// Total returns username's running total, 0 when no account exists.
func (l *Ledger) Total(ctx context.Context, username string) (int, error) {
	acct, err := l.Get(ctx, username)
	if err != nil {
		return 0, err
	}
	return acct.TotalPoints, nil
}

// Leaderboard returns the top n accounts by total points.
func (l *Ledger) Leaderboard(ctx context.Context, n int) ([]Entry, error) {
	names, err := l.indexed(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(names))
	for _, name := range names {
		total, err := l.Total(ctx, name)
		if err != nil {
			return nil, err
		}
		out = append(out, Entry{Username: name, EchoPoints: total})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EchoPoints > out[j].EchoPoints })
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// index records username in the account index so leaderboards can find it.
func (l *Ledger) index(ctx context.Context, username string) error {
	names, err := l.indexed(ctx)
	if err != nil {
		return err
	}
	for _, n := range names {
		if n == username {
			return nil
		}
	}
	names = append(names, username)
	b, err := json.Marshal(names)
	if err != nil {
		return err
	}
	return l.kv.Set(ctx, store.PointsIndexKey(), string(b))
}

func (l *Ledger) indexed(ctx context.Context) ([]string, error) {
	raw, ok, err := l.kv.Get(ctx, store.PointsIndexKey())
	if err != nil || !ok {
		return nil, err
	}
	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		return nil, err
	}
	return names, nil
}

// internal/puzzles/puzzles.go
//
// Built-in puzzle catalog.
//
// Responsibilities:
//   - Load the embedded puzzle set (puzzles, categories, difficulties) once.
//   - Supply lookups by id, category, and difficulty, plus search and stats.
//   - Project puzzles into the client-facing Broadcast shape.
//
// Puzzle records are immutable: the catalog hands out copies of slices where
// callers might be tempted to append.
//
// Initialization behavior (Init):
//   - Decodes the embedded puzzles.json exactly once (sync.Once).
//   - Fails if the built-in set is empty.

package puzzles

import (
	"crypto/rand"
	_ "embed"
	"encoding/json"
	"errors"
	"math/big"
	"strings"
	"sync"
	"time"
)

//go:embed data/puzzles.json
var embeddedData []byte

// Phrase is a hidden text fragment keyed by a dial coordinate.
type Phrase struct {
	Frequency  float64 `json:"frequency"`
	Modulation float64 `json:"modulation"`
	Text       string  `json:"text"`
}

// Puzzle is an immutable puzzle definition. Built-in puzzles are always
// approved; user submissions carry the full moderation lifecycle.
type Puzzle struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	MetaAnswer  string   `json:"metaAnswer"`
	Hints       []string `json:"hints"`
	Phrases     []Phrase `json:"phrases"`
	Difficulty  string   `json:"difficulty"`
	Category    string   `json:"category"`

	// Submission metadata; zero-valued for built-in puzzles.
	Creator         string    `json:"creator,omitempty"`
	Status          string    `json:"status,omitempty"` // pending | approved | rejected
	Community       string    `json:"community,omitempty"`
	CreatedAt       time.Time `json:"createdAt,omitempty"`
	ApprovedAt      time.Time `json:"approvedAt,omitempty"`
	RejectedAt      time.Time `json:"rejectedAt,omitempty"`
	RejectionReason string    `json:"rejectionReason,omitempty"`
}

// Submission lifecycle states.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Broadcast is the read-only projection of a Puzzle consumed by clients.
type Broadcast struct {
	BroadcastID string   `json:"broadcastId"`
	Title       string   `json:"title"`
	MetaAnswer  string   `json:"metaAnswer"`
	Phrases     []Phrase `json:"phrases"`
}

// Category describes a puzzle grouping.
type Category struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Difficulty describes a difficulty tier.
type Difficulty struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Color       string `json:"color"`
}

type data struct {
	Puzzles      []Puzzle     `json:"puzzles"`
	Categories   []Category   `json:"categories"`
	Difficulties []Difficulty `json:"difficulties"`
}

var (
	initOnce   sync.Once
	builtIn    data
	initialErr error
)

// Init decodes the embedded puzzle set exactly once.
func Init() error {
	initOnce.Do(func() {
		if err := json.Unmarshal(embeddedData, &builtIn); err != nil {
			initialErr = err
			return
		}
		if len(builtIn.Puzzles) == 0 {
			initialErr = errors.New("puzzles: built-in set is empty")
		}
	})
	return initialErr
}

// All returns the built-in puzzles.
func All() []Puzzle {
	return append([]Puzzle(nil), builtIn.Puzzles...)
}

// ByID returns the built-in puzzle with the given id.
func ByID(id string) (Puzzle, bool) {
	for _, p := range builtIn.Puzzles {
		if p.ID == id {
			return p, true
		}
	}
	return Puzzle{}, false
}

// ByCategory returns built-in puzzles in a category.
func ByCategory(category string) []Puzzle {
	var out []Puzzle
	for _, p := range builtIn.Puzzles {
		if p.Category == category {
			out = append(out, p)
		}
	}
	return out
}

// ByDifficulty returns built-in puzzles of a difficulty tier.
func ByDifficulty(difficulty string) []Puzzle {
	var out []Puzzle
	for _, p := range builtIn.Puzzles {
		if p.Difficulty == difficulty {
			out = append(out, p)
		}
	}
	return out
}

// Search matches title, description, or meta answer, case-insensitively.
func Search(query string) []Puzzle {
	q := strings.ToLower(query)
	var out []Puzzle
	for _, p := range builtIn.Puzzles {
		if strings.Contains(strings.ToLower(p.Title), q) ||
			strings.Contains(strings.ToLower(p.Description), q) ||
			strings.Contains(strings.ToLower(p.MetaAnswer), q) {
			out = append(out, p)
		}
	}
	return out
}

// Categories returns the category list.
func Categories() []Category { return append([]Category(nil), builtIn.Categories...) }

// Difficulties returns the difficulty list.
func Difficulties() []Difficulty { return append([]Difficulty(nil), builtIn.Difficulties...) }

// Stats reports puzzle counts overall and per category/difficulty.
func Stats() (total int, byCategory, byDifficulty map[string]int) {
	byCategory = make(map[string]int)
	byDifficulty = make(map[string]int)
	for _, p := range builtIn.Puzzles {
		byCategory[p.Category]++
		byDifficulty[p.Difficulty]++
	}
	return len(builtIn.Puzzles), byCategory, byDifficulty
}

// ToBroadcast projects a puzzle into its client-facing shape.
func ToBroadcast(p Puzzle) Broadcast {
	return Broadcast{
		BroadcastID: p.ID,
		Title:       p.Title,
		MetaAnswer:  p.MetaAnswer,
		Phrases:     append([]Phrase(nil), p.Phrases...),
	}
}

// PickRandom selects one puzzle uniformly at random.
// Returns false when the slice is empty.
func PickRandom(list []Puzzle) (Puzzle, bool) {
	if len(list) == 0 {
		return Puzzle{}, false
	}
	nBig, err := rand.Int(rand.Reader, big.NewInt(int64(len(list))))
	if err != nil {
		return list[0], true
	}
	return list[nBig.Int64()], true
}

// internal/game/types.go
//
// Core type definitions for the signal-tuning game.
// Defines:
//   - GameState: the per-post session aggregate.
//   - PhraseResult / SolveResult: outcomes returned to clients.

package game

import "github.com/AswinBehera/staticfrontier/internal/puzzles"

// GameState holds the state of a single post's game session.
// Created on first access to a post and mutated by phrase checks and meta
// solves; never deleted for the lifetime of the post.
type GameState struct {
	Broadcast      puzzles.Broadcast `json:"broadcast"`
	FoundPhrases   []string          `json:"foundPhrases"`   // discovery order, no duplicates
	IsMetaSolved   bool              `json:"isMetaSolved"`   // terminal once true
	Winner         string            `json:"winner,omitempty"`
	AsciiMap       [][]string        `json:"asciiMap"`       // territory snapshot at read time
	UserEchoPoints int               `json:"userEchoPoints"` // requester's total at read time
	Username       string            `json:"username"`
}

// PhraseResult is the outcome of a dial-position check.
type PhraseResult struct {
	Success bool   `json:"success"`
	Phrase  string `json:"phrase,omitempty"`
	Message string `json:"message"`
}

// SolveResult is the outcome of a meta-answer submission.
type SolveResult struct {
	Success    bool       `json:"success"`
	IsWinner   bool       `json:"isWinner"`
	EchoPoints int        `json:"echoPoints"`
	AsciiMap   [][]string `json:"asciiMap,omitempty"`
	Message    string     `json:"message"`
}

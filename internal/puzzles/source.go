// internal/puzzles/source.go
//
// A Catalog combines puzzle sources behind one read interface: the immutable
// built-in set and the append-only, community-scoped approved submissions
// held in the KV store.

package puzzles

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/AswinBehera/staticfrontier/internal/store"
)

// Source yields the puzzles a community can play from one origin.
type Source interface {
	Puzzles(ctx context.Context, community string) ([]Puzzle, error)
}

// builtinSource serves the embedded puzzle set, identical for every community.
type builtinSource struct{}

func (builtinSource) Puzzles(ctx context.Context, community string) ([]Puzzle, error) {
	return All(), nil
}

// submissionSource serves a community's approved user puzzles from the store.
type submissionSource struct {
	kv store.KV
}

func (s submissionSource) Puzzles(ctx context.Context, community string) ([]Puzzle, error) {
	raw, ok, err := s.kv.Get(ctx, store.ApprovedKey(community))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, err
	}
	var out []Puzzle
	for _, id := range ids {
		data, ok, err := s.kv.Get(ctx, store.SubmissionKey(id))
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		var p Puzzle
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			log.Warn().Err(err).Str("puzzleId", id).Msg("skipping malformed submission")
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// Catalog merges all sources into one selectable pool.
type Catalog struct {
	sources []Source
}

// NewCatalog builds the standard catalog: built-ins plus approved submissions.
func NewCatalog(kv store.KV) *Catalog {
	return &Catalog{sources: []Source{builtinSource{}, submissionSource{kv: kv}}}
}

// Available returns every puzzle a community can be served.
// A failing source degrades to the remaining sources rather than erroring,
// so a store outage still leaves the built-in set playable.
func (c *Catalog) Available(ctx context.Context, community string) []Puzzle {
	var out []Puzzle
	for _, s := range c.sources {
		ps, err := s.Puzzles(ctx, community)
		if err != nil {
			log.Warn().Err(err).Str("community", community).Msg("puzzle source unavailable")
			continue
		}
		out = append(out, ps...)
	}
	return out
}

// Lookup finds a puzzle by id across all sources.
func (c *Catalog) Lookup(ctx context.Context, community, id string) (Puzzle, bool) {
	for _, p := range c.Available(ctx, community) {
		if p.ID == id {
			return p, true
		}
	}
	return Puzzle{}, false
}

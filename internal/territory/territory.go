// internal/territory/territory.go
//
// Shared territory map: one fixed-size grid per community whose cells are
// claimed by puzzle winners. Cells hold the sentinel "." until claimed with
// a single-character claimant initial; claims never revert. Each claim also
// writes an immutable plot record keyed by coordinate.

package territory

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/AswinBehera/staticfrontier/internal/store"
)

const (
	Rows      = 10
	Cols      = 10
	Unclaimed = "."
)

// ErrPlotNotFound is returned when a coordinate has no claim record.
var ErrPlotNotFound = errors.New("plot not found")

// PlotRecord captures who claimed a cell and for which broadcast.
type PlotRecord struct {
	Username       string    `json:"username"`
	BroadcastTitle string    `json:"broadcastTitle"`
	BroadcastID    string    `json:"broadcastId"`
	MetaAnswer     string    `json:"metaAnswer"`
	ClaimedAt      time.Time `json:"claimedAt"`
}

// Cell is a grid coordinate.
type Cell struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Allocator manages community grids on top of the KV store.
type Allocator struct {
	kv store.KV
}

// NewAllocator builds an Allocator over kv.
func NewAllocator(kv store.KV) *Allocator {
	return &Allocator{kv: kv}
}

// GetMap returns a community's grid, lazily creating an all-unclaimed one.
func (a *Allocator) GetMap(ctx context.Context, community string) ([][]string, error) {
	raw, ok, err := a.kv.Get(ctx, store.MapKey(community))
	if err != nil {
		return nil, fmt.Errorf("get map: %w", err)
	}
	if ok {
		var grid [][]string
		if err := json.Unmarshal([]byte(raw), &grid); err != nil {
			return nil, fmt.Errorf("decode map: %w", err)
		}
		return grid, nil
	}

	grid := make([][]string, Rows)
	for r := range grid {
		grid[r] = make([]string, Cols)
		for c := range grid[r] {
			grid[r][c] = Unclaimed
		}
	}
	if err := a.writeMap(ctx, community, grid); err != nil {
		return nil, err
	}
	return grid, nil
}

func (a *Allocator) writeMap(ctx context.Context, community string, grid [][]string) error {
	b, err := json.Marshal(grid)
	if err != nil {
		return err
	}
	return a.kv.Set(ctx, store.MapKey(community), string(b))
}

// FreeCells enumerates the unclaimed coordinates of grid.
func FreeCells(grid [][]string) []Cell {
	var free []Cell
	for r := range grid {
		for c := range grid[r] {
			if grid[r][c] == Unclaimed {
				free = append(free, Cell{Row: r, Col: c})
			}
		}
	}
	return free
}

// IsFull reports whether every cell of grid is claimed.
func IsFull(grid [][]string) bool {
	return len(FreeCells(grid)) == 0
}

// ClaimRandomCell claims one free cell uniformly at random, marks it with the
// claimant's initial, persists the grid, and writes the plot record.
// Returns ok=false without error when no cell is free; the caller handles
// the fallback scoring path.
func (a *Allocator) ClaimRandomCell(ctx context.Context, community, initial string, rec PlotRecord) (Cell, bool, error) {
	grid, err := a.GetMap(ctx, community)
	if err != nil {
		return Cell{}, false, err
	}
	free := FreeCells(grid)
	if len(free) == 0 {
		return Cell{}, false, nil
	}

	cell := free[randIndex(len(free))]
	grid[cell.Row][cell.Col] = initial
	rec.ClaimedAt = time.Now().UTC()
	if err := a.writeMap(ctx, community, grid); err != nil {
		return Cell{}, false, fmt.Errorf("write map: %w", err)
	}

	b, err := json.Marshal(rec)
	if err != nil {
		return Cell{}, false, err
	}
	if err := a.kv.Set(ctx, store.PlotKey(community, cell.Row, cell.Col), string(b)); err != nil {
		return Cell{}, false, fmt.Errorf("write plot: %w", err)
	}
	return cell, true, nil
}

// GetPlot returns the claim record at (row, col) or ErrPlotNotFound.
func (a *Allocator) GetPlot(ctx context.Context, community string, row, col int) (PlotRecord, error) {
	raw, ok, err := a.kv.Get(ctx, store.PlotKey(community, row, col))
	if err != nil {
		return PlotRecord{}, fmt.Errorf("get plot: %w", err)
	}
	if !ok {
		return PlotRecord{}, ErrPlotNotFound
	}
	var rec PlotRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return PlotRecord{}, fmt.Errorf("decode plot: %w", err)
	}
	return rec, nil
}

// randIndex returns a uniform index in [0, n), or 0 if the entropy source
// fails.
func randIndex(n int) int {
	nBig, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(nBig.Int64())
}

package territory

import (
	"context"
	"errors"
	"testing"

	"github.com/AswinBehera/staticfrontier/internal/store"
)

func newAllocator(t *testing.T) *Allocator {
	t.Helper()
	return NewAllocator(store.NewMemory())
}

func TestGetMapCreatesUnclaimedGrid(t *testing.T) {
	a := newAllocator(t)
	grid, err := a.GetMap(context.Background(), "sub")
	if err != nil {
		t.Fatalf("get map: %v", err)
	}
	if len(grid) != Rows {
		t.Fatalf("expected %d rows, got %d", Rows, len(grid))
	}
	for r, row := range grid {
		if len(row) != Cols {
			t.Fatalf("row %d has %d cols", r, len(row))
		}
		for c, cell := range row {
			if cell != Unclaimed {
				t.Fatalf("cell (%d,%d) = %q, want unclaimed", r, c, cell)
			}
		}
	}
}

func TestGetMapReturnsExistingGrid(t *testing.T) {
	a := newAllocator(t)
	ctx := context.Background()

	if _, ok, err := a.ClaimRandomCell(ctx, "sub", "A", PlotRecord{Username: "alice"}); err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}
	grid, err := a.GetMap(ctx, "sub")
	if err != nil {
		t.Fatalf("get map: %v", err)
	}
	if len(FreeCells(grid)) != Rows*Cols-1 {
		t.Fatal("reloaded grid lost the claim")
	}
}

func TestMapsAreScopedPerCommunity(t *testing.T) {
	a := newAllocator(t)
	ctx := context.Background()

	if _, ok, err := a.ClaimRandomCell(ctx, "one", "A", PlotRecord{Username: "alice"}); err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}
	other, err := a.GetMap(ctx, "two")
	if err != nil {
		t.Fatalf("get map: %v", err)
	}
	if len(FreeCells(other)) != Rows*Cols {
		t.Fatal("claim in one community leaked into another")
	}
}

func TestClaimWritesPlotRecord(t *testing.T) {
	a := newAllocator(t)
	ctx := context.Background()

	cell, ok, err := a.ClaimRandomCell(ctx, "sub", "A", PlotRecord{
		Username:       "alice",
		BroadcastTitle: "Numbers Station",
		BroadcastID:    "signal_001",
		MetaAnswer:     "midnight",
	})
	if err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}

	rec, err := a.GetPlot(ctx, "sub", cell.Row, cell.Col)
	if err != nil {
		t.Fatalf("get plot: %v", err)
	}
	if rec.Username != "alice" || rec.BroadcastID != "signal_001" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.ClaimedAt.IsZero() {
		t.Fatal("claim timestamp not set")
	}

	grid, _ := a.GetMap(ctx, "sub")
	if grid[cell.Row][cell.Col] != "A" {
		t.Fatalf("cell not marked with initial: %q", grid[cell.Row][cell.Col])
	}
}

func TestGetPlotUnclaimedCell(t *testing.T) {
	a := newAllocator(t)
	_, err := a.GetPlot(context.Background(), "sub", 3, 3)
	if !errors.Is(err, ErrPlotNotFound) {
		t.Fatalf("expected ErrPlotNotFound, got %v", err)
	}
}

func TestClaimsExhaustExactlyOnce(t *testing.T) {
	a := newAllocator(t)
	ctx := context.Background()

	seen := map[Cell]bool{}
	for i := 0; i < Rows*Cols; i++ {
		cell, ok, err := a.ClaimRandomCell(ctx, "sub", "X", PlotRecord{Username: "alice"})
		if err != nil {
			t.Fatalf("claim %d: %v", i, err)
		}
		if !ok {
			t.Fatalf("claim %d refused with %d cells outstanding", i, Rows*Cols-i)
		}
		if seen[cell] {
			t.Fatalf("cell (%d,%d) claimed twice", cell.Row, cell.Col)
		}
		seen[cell] = true
	}

	grid, _ := a.GetMap(ctx, "sub")
	if !IsFull(grid) {
		t.Fatal("map should be full after claiming every cell")
	}

	if _, ok, err := a.ClaimRandomCell(ctx, "sub", "X", PlotRecord{Username: "bob"}); err != nil {
		t.Fatalf("claim on full map: %v", err)
	} else if ok {
		t.Fatal("full map must refuse further claims")
	}
}

func TestClaimsNeverRevert(t *testing.T) {
	a := newAllocator(t)
	ctx := context.Background()

	var claimed []Cell
	for i := 0; i < 10; i++ {
		cell, ok, err := a.ClaimRandomCell(ctx, "sub", "A", PlotRecord{Username: "alice"})
		if err != nil || !ok {
			t.Fatalf("claim %d: ok=%v err=%v", i, ok, err)
		}
		claimed = append(claimed, cell)

		grid, err := a.GetMap(ctx, "sub")
		if err != nil {
			t.Fatalf("get map: %v", err)
		}
		for _, c := range claimed {
			if grid[c.Row][c.Col] == Unclaimed {
				t.Fatalf("cell (%d,%d) reverted to unclaimed", c.Row, c.Col)
			}
		}
	}
}

func TestRandIndexInRange(t *testing.T) {
	for _, n := range []int{1, 2, 7, Rows * Cols} {
		for i := 0; i < 50; i++ {
			if idx := randIndex(n); idx < 0 || idx >= n {
				t.Fatalf("randIndex(%d) = %d", n, idx)
			}
		}
	}
}

func TestFreeCellsCount(t *testing.T) {
	grid := make([][]string, Rows)
	for r := range grid {
		grid[r] = make([]string, Cols)
		for c := range grid[r] {
			grid[r][c] = Unclaimed
		}
	}
	if n := len(FreeCells(grid)); n != Rows*Cols {
		t.Fatalf("fresh grid has %d free cells", n)
	}
	grid[0][0] = "A"
	grid[9][9] = "B"
	if n := len(FreeCells(grid)); n != Rows*Cols-2 {
		t.Fatalf("expected %d free cells, got %d", Rows*Cols-2, n)
	}
	if IsFull(grid) {
		t.Fatal("partially claimed grid reported full")
	}
}

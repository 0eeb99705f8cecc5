package engine

import (
	"testing"
)

func TestHungarianAssign_Empty(t *testing.T) {
	result := hungarianAssign(nil)
	if result != nil {
		t.Errorf("expected nil for empty cost matrix, got %v", result)
	}
}

func TestHungarianAssign_SingleElement(t *testing.T) {
	cost := [][]float32{{5.0}}
	result := hungarianAssign(cost)
	if len(result) != 1 || result[0] != 0 {
		t.Errorf("expected [0], got %v", result)
	}
}

func TestHungarianAssign_SquareOptimal(t *testing.T) {
	// Classic 3x3 assignment problem:
	//   [1 2 3]     Optimal: row0->col0 (1), row1->col1 (4), row2->col2 (5) = 10
	//   [4 4 6]
	//   [9 8 5]
	cost := [][]float32{
		{1, 2, 3},
		{4, 4, 6},
		{9, 8, 5},
	}
	result := hungarianAssign(cost)

	if len(result) != 3 {
		t.Fatalf("expected 3 assignments, got %d", len(result))
	}

	totalCost := float32(0)
	for i, j := range result {
		if j < 0 {
			t.Errorf("row %d unassigned", i)
			continue
		}
		totalCost += cost[i][j]
	}

	if totalCost != 10.0 {
		t.Errorf("expected optimal cost 10, got %v (assignments: %v)", totalCost, result)
	}
}

func TestHungarianAssign_Forbidden(t *testing.T) {
	// Row 1 has no reachable column (all forbidden).
	cost := [][]float32{
		{1, 2},
		{hungarianInf, hungarianInf},
	}
	result := hungarianAssign(cost)

	if len(result) != 2 {
		t.Fatalf("expected 2 assignments, got %d", len(result))
	}
	if result[0] < 0 {
		t.Errorf("row 0 should be assigned, got %d", result[0])
	}
	if result[1] != -1 {
		t.Errorf("row 1 should be unassigned (-1), got %d", result[1])
	}
}

func TestHungarianAssign_MoreRowsThanCols(t *testing.T) {
	// 3 detections, 2 tracks: one detection must go unassigned.
	cost := [][]float32{
		{1, 10},
		{10, 1},
		{5, 5},
	}
	result := hungarianAssign(cost)

	if len(result) != 3 {
		t.Fatalf("expected 3 assignments, got %d", len(result))
	}

	assigned := make(map[int]bool)
	count := 0
	for _, j := range result {
		if j < 0 {
			continue
		}
		if assigned[j] {
			t.Errorf("column %d assigned twice", j)
		}
		assigned[j] = true
		count++
	}
	if count != 2 {
		t.Errorf("expected exactly 2 assigned rows, got %d", count)
	}
	if result[0] != 0 || result[1] != 1 {
		t.Errorf("expected cheap diagonal assignment, got %v", result)
	}
}

func TestHungarianAssign_MoreColsThanRows(t *testing.T) {
	cost := [][]float32{
		{9, 1, 9},
	}
	result := hungarianAssign(cost)
	if len(result) != 1 || result[0] != 1 {
		t.Errorf("expected [1], got %v", result)
	}
}

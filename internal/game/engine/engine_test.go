package engine

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// boardFromIndex decodes a base-3 number into a board: 0=empty, 1=X, 2=O.
func boardFromIndex(n int) Board {
	var b Board
	for i := 0; i < Cells; i++ {
		switch n % 3 {
		case 1:
			b[i] = X
		case 2:
			b[i] = O
		}
		n /= 3
	}
	return b
}

// naiveWin checks rows, columns and diagonals by coordinate.
func naiveWin(b Board) bool {
	at := func(r, c int) Mark { return b[r*3+c] }
	for i := 0; i < 3; i++ {
		if at(i, 0) != Empty && at(i, 0) == at(i, 1) && at(i, 1) == at(i, 2) {
			return true
		}
		if at(0, i) != Empty && at(0, i) == at(1, i) && at(1, i) == at(2, i) {
			return true
		}
	}
	if at(1, 1) == Empty {
		return false
	}
	return (at(0, 0) == at(1, 1) && at(1, 1) == at(2, 2)) ||
		(at(0, 2) == at(1, 1) && at(1, 1) == at(2, 0))
}

func TestCheckWin_Exhaustive(t *testing.T) {
	total := 1
	for i := 0; i < Cells; i++ {
		total *= 3
	}
	require.Equal(t, 19683, total)

	for n := 0; n < total; n++ {
		b := boardFromIndex(n)
		if got, want := CheckWin(b), naiveWin(b); got != want {
			t.Fatalf("board %v: CheckWin=%v want %v", b, got, want)
		}
	}
}

func TestApplyMove(t *testing.T) {
	var b Board
	next, err := ApplyMove(b, 4, X)
	require.NoError(t, err)
	assert.Equal(t, X, next[4])
	assert.Equal(t, Empty, b[4], "input board must not be mutated")
	assert.Equal(t, 1, next.Count())
}

func TestApplyMove_OutOfRange(t *testing.T) {
	for _, cell := range []int{-1, 9, 100} {
		_, err := ApplyMove(Board{}, cell, X)
		assert.ErrorIs(t, err, ErrInvalidMove, "cell %d", cell)
	}
}

func TestApplyMove_InvalidMark(t *testing.T) {
	_, err := ApplyMove(Board{}, 0, Empty)
	assert.ErrorIs(t, err, ErrInvalidMove)
}

func TestMark_Opponent(t *testing.T) {
	assert.Equal(t, O, X.Opponent())
	assert.Equal(t, X, O.Opponent())
	assert.Equal(t, Empty, Empty.Opponent())
}

func TestEvaluate_WinningNinthMoveIsWin(t *testing.T) {
	// X O X
	// O X O
	// O X .   X at 8 completes the diagonal on the last free cell
	b := Board{X, O, X, O, X, O, O, X, Empty}
	require.Equal(t, 8, b.Count())
	next, err := ApplyMove(b, 8, X)
	require.NoError(t, err)
	assert.Equal(t, Win, Evaluate(next, 9))
	assert.False(t, IsDraw(next, 9))
}

func TestEvaluate_FullBoardNoLineIsDraw(t *testing.T) {
	b := Board{X, O, X, X, O, O, O, X, X}
	assert.False(t, CheckWin(b))
	assert.True(t, IsDraw(b, 9))
	assert.Equal(t, Draw, Evaluate(b, 9))
	assert.Equal(t, Ongoing, Evaluate(Board{}, 0))
}

func TestBoard_JSON(t *testing.T) {
	b := Board{X, Empty, O}
	data, err := json.Marshal(b)
	require.NoError(t, err)
	assert.JSONEq(t, `["X",null,"O",null,null,null,null,null,null]`, string(data))

	var back Board
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, b, back)

	assert.Error(t, json.Unmarshal([]byte(`[null]`), &back))
	assert.Error(t, json.Unmarshal([]byte(`["Z",null,null,null,null,null,null,null,null]`), &back))
}

// Property: a move onto an occupied cell fails and leaves the board unchanged.
func TestPropertyOccupiedCellRejected(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		b := boardFromIndex(rapid.IntRange(0, 19682).Draw(t, "board"))
		cell := rapid.IntRange(0, Cells-1).Draw(t, "cell")
		if b[cell] == Empty {
			return
		}
		mark := rapid.SampledFrom([]Mark{X, O}).Draw(t, "mark")
		got, err := ApplyMove(b, cell, mark)
		if err == nil {
			t.Fatalf("expected ErrInvalidMove for occupied cell %d", cell)
		}
		if got != b {
			t.Fatalf("board changed on rejected move")
		}
	})
}

// Property: nine distinct legal alternating moves with no winning line at any
// prefix end in a draw, never a win.
func TestPropertyNoWinPrefixEndsInDraw(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		order := rapid.Permutation([]int{0, 1, 2, 3, 4, 5, 6, 7, 8}).Draw(t, "order")
		var b Board
		mark := X
		for i, cell := range order {
			var err error
			b, err = ApplyMove(b, cell, mark)
			if err != nil {
				t.Fatalf("legal move rejected: %v", err)
			}
			outcome := Evaluate(b, i+1)
			if outcome == Win {
				return // sequence contains a winning prefix
			}
			if i < Cells-1 && outcome != Ongoing {
				t.Fatalf("unexpected %s after %d moves", outcome, i+1)
			}
			mark = mark.Opponent()
		}
		if Evaluate(b, Cells) != Draw {
			t.Fatalf("full board without a line must be a draw")
		}
	})
}

// Package engine implements the tic-tac-toe rules: move legality and
// win/draw detection over a 9-cell board addressed 0-8 in row-major order.
//
// Everything in this package is pure and deterministic.
package engine

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidMove is returned when a cell index is out of range, the target
// cell is already marked, or the mark is not X or O.
var ErrInvalidMove = errors.New("invalid move")

// Cells is the number of cells on the board.
const Cells = 9

// Mark is the content of a board cell.
type Mark string

// Cell marks. Empty is the zero value.
const (
	Empty Mark = ""
	X     Mark = "X"
	O     Mark = "O"
)

// Valid reports whether m is a player mark (X or O).
func (m Mark) Valid() bool {
	return m == X || m == O
}

// Opponent returns the other player's mark. Opponent of Empty is Empty.
func (m Mark) Opponent() Mark {
	switch m {
	case X:
		return O
	case O:
		return X
	}
	return Empty
}

// Board is the 3x3 board in row-major order. It is a value type; copying a
// Board copies its cells.
type Board [Cells]Mark

// Count returns the number of non-empty cells.
func (b Board) Count() int {
	n := 0
	for _, c := range b {
		if c != Empty {
			n++
		}
	}
	return n
}

// MarshalJSON encodes empty cells as null and marked cells as "X"/"O".
func (b Board) MarshalJSON() ([]byte, error) {
	cells := make([]*string, Cells)
	for i, c := range b {
		if c != Empty {
			s := string(c)
			cells[i] = &s
		}
	}
	return json.Marshal(cells)
}

// UnmarshalJSON decodes a 9-element array of null, "", "X" or "O".
func (b *Board) UnmarshalJSON(data []byte) error {
	var cells []*string
	if err := json.Unmarshal(data, &cells); err != nil {
		return err
	}
	if len(cells) != Cells {
		return fmt.Errorf("board must have %d cells, got %d", Cells, len(cells))
	}
	var out Board
	for i, c := range cells {
		if c == nil || *c == "" {
			continue
		}
		m := Mark(*c)
		if !m.Valid() {
			return fmt.Errorf("cell %d: invalid mark %q", i, *c)
		}
		out[i] = m
	}
	*b = out
	return nil
}

// lines are the 8 canonical winning lines.
var lines = [8][3]int{
	{0, 1, 2}, // top row
	{3, 4, 5}, // middle row
	{6, 7, 8}, // bottom row
	{0, 3, 6}, // left column
	{1, 4, 7}, // middle column
	{2, 5, 8}, // right column
	{0, 4, 8}, // diagonal
	{2, 4, 6}, // anti-diagonal
}

// ApplyMove returns a copy of board with cell set to mark.
//
// Precondition: none; all inputs are validated.
// Postcondition: Returns ErrInvalidMove and the unchanged board if cell is
// outside [0,8], the cell is occupied, or mark is not X/O.
func ApplyMove(board Board, cell int, mark Mark) (Board, error) {
	if cell < 0 || cell >= Cells {
		return board, fmt.Errorf("%w: cell %d out of range", ErrInvalidMove, cell)
	}
	if !mark.Valid() {
		return board, fmt.Errorf("%w: mark %q", ErrInvalidMove, mark)
	}
	if board[cell] != Empty {
		return board, fmt.Errorf("%w: cell %d already marked", ErrInvalidMove, cell)
	}
	board[cell] = mark
	return board, nil
}

// Winner returns the mark holding a complete line, or Empty.
func Winner(board Board) Mark {
	for _, l := range lines {
		a, b, c := l[0], l[1], l[2]
		if board[a] != Empty && board[a] == board[b] && board[b] == board[c] {
			return board[a]
		}
	}
	return Empty
}

// CheckWin reports whether any canonical line holds three identical marks.
func CheckWin(board Board) bool {
	return Winner(board) != Empty
}

// IsDraw reports whether the board is full with no winning line.
func IsDraw(board Board, moveCount int) bool {
	return moveCount == Cells && !CheckWin(board)
}

// Outcome is the result of evaluating a board after a move.
type Outcome int

const (
	// Ongoing means the game continues.
	Ongoing Outcome = iota
	// Win means the last mover completed a line.
	Win
	// Draw means the board is full with no line.
	Draw
)

// String returns the lower-case outcome name.
func (o Outcome) String() string {
	switch o {
	case Win:
		return "win"
	case Draw:
		return "draw"
	}
	return "ongoing"
}

// Evaluate classifies the board. The win check runs strictly before the
// draw check: a winning ninth move is a win.
func Evaluate(board Board, moveCount int) Outcome {
	if CheckWin(board) {
		return Win
	}
	if IsDraw(board, moveCount) {
		return Draw
	}
	return Ongoing
}

// Package rules decides move legality and game termination. Everything here
// is a pure function of a board value.
package rules

import (
	"fmt"

	"chessmatch/internal/server/board"
	"chessmatch/internal/server/core"
)

// violation names the first structural rule a move breaks
type violation int

const (
	noViolation violation = iota
	outOfBounds
	emptyOrigin
	foreignPiece
	nullMove
	ownDestination
	unknownPiece
	badGeometry
)

// IsStructurallyLegal reports whether m obeys piece geometry, path clearance
// and occupancy for mover. Self-check is not considered.
func IsStructurallyLegal(b board.Board, m core.Move, mover core.Color) bool {
	return structural(b, m, mover) == noViolation
}

// Classify explains why m is structurally illegal, or returns nil.
// Returned errors wrap core.ErrIllegalMove.
func Classify(b board.Board, m core.Move, mover core.Color) error {
	switch structural(b, m, mover) {
	case noViolation:
		return nil
	case outOfBounds:
		return fmt.Errorf("%w: square out of bounds", core.ErrIllegalMove)
	case emptyOrigin:
		return fmt.Errorf("%w: no piece on %s", core.ErrIllegalMove, m.From)
	case foreignPiece:
		return fmt.Errorf("%w: piece on %s is not yours", core.ErrIllegalMove, m.From)
	case nullMove:
		return fmt.Errorf("%w: origin and destination are the same", core.ErrIllegalMove)
	case ownDestination:
		return fmt.Errorf("%w: %s is occupied by your own piece", core.ErrIllegalMove, m.To)
	case unknownPiece:
		return fmt.Errorf("%w: unknown piece on %s", core.ErrIllegalMove, m.From)
	default:
		p, _ := b.At(m.From)
		return fmt.Errorf("%w: %s cannot move from %s to %s", core.ErrIllegalMove, p.Kind, m.From, m.To)
	}
}

// structural is the allocation-free form of Classify used by move enumeration
func structural(b board.Board, m core.Move, mover core.Color) violation {
	if !m.From.InBounds() || !m.To.InBounds() {
		return outOfBounds
	}
	p, ok := b.At(m.From)
	if !ok {
		return emptyOrigin
	}
	if p.Color != mover {
		return foreignPiece
	}
	if m.From == m.To {
		return nullMove
	}
	if dst, ok := b.At(m.To); ok && dst.Color == mover {
		return ownDestination
	}

	var legal bool
	switch p.Kind {
	case core.Pawn:
		legal = pawnMove(b, m, p.Color)
	case core.Knight:
		legal = knightMove(m)
	case core.Bishop:
		legal = bishopMove(b, m)
	case core.Rook:
		legal = rookMove(b, m)
	case core.Queen:
		legal = queenMove(b, m)
	case core.King:
		legal = kingMove(m)
	default:
		return unknownPiece
	}
	if !legal {
		return badGeometry
	}
	return noViolation
}

// forward is the rank step of a pawn of color c
func forward(c core.Color) int {
	if c == core.ColorWhite {
		return -1
	}
	return 1
}

func startRank(c core.Color) int {
	if c == core.ColorWhite {
		return 6
	}
	return 1
}

func pawnMove(b board.Board, m core.Move, c core.Color) bool {
	dir := forward(c)
	df := m.To.File - m.From.File
	dr := m.To.Rank - m.From.Rank
	_, occupied := b.At(m.To)

	switch {
	case df == 0 && dr == dir:
		return !occupied
	case df == 0 && dr == 2*dir && m.From.Rank == startRank(c):
		mid := core.Square{File: m.From.File, Rank: m.From.Rank + dir}
		_, blocked := b.At(mid)
		return !blocked && !occupied
	case abs(df) == 1 && dr == dir:
		// occupancy by an own piece was rejected earlier
		return occupied
	default:
		return false
	}
}

func knightMove(m core.Move) bool {
	df, dr := abs(m.To.File-m.From.File), abs(m.To.Rank-m.From.Rank)
	return (df == 1 && dr == 2) || (df == 2 && dr == 1)
}

func bishopMove(b board.Board, m core.Move) bool {
	df, dr := abs(m.To.File-m.From.File), abs(m.To.Rank-m.From.Rank)
	return df == dr && df != 0 && pathClear(b, m.From, m.To)
}

func rookMove(b board.Board, m core.Move) bool {
	df, dr := m.To.File-m.From.File, m.To.Rank-m.From.Rank
	return (df == 0) != (dr == 0) && pathClear(b, m.From, m.To)
}

func queenMove(b board.Board, m core.Move) bool {
	return bishopMove(b, m) || rookMove(b, m)
}

func kingMove(m core.Move) bool {
	return abs(m.To.File-m.From.File) <= 1 && abs(m.To.Rank-m.From.Rank) <= 1
}

// pathClear reports whether every square strictly between from and to is
// empty. from and to must share a line or diagonal.
func pathClear(b board.Board, from, to core.Square) bool {
	sf, sr := sign(to.File-from.File), sign(to.Rank-from.Rank)
	cur := core.Square{File: from.File + sf, Rank: from.Rank + sr}
	for cur != to {
		if _, ok := b.At(cur); ok {
			return false
		}
		cur.File += sf
		cur.Rank += sr
	}
	return true
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func sign(n int) int {
	switch {
	case n > 0:
		return 1
	case n < 0:
		return -1
	default:
		return 0
	}
}

package rules

import (
	"chessmatch/internal/server/board"
	"chessmatch/internal/server/core"
)

// Outcome is the result of evaluating a position for the side to move
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeCheckmate
	OutcomeStalemate
	OutcomeInsufficientMaterial
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCheckmate:
		return "checkmate"
	case OutcomeStalemate:
		return "stalemate"
	case OutcomeInsufficientMaterial:
		return "insufficient_material"
	default:
		return "none"
	}
}

// IsInCheck reports whether any opposing piece attacks c's king.
// A board without a king of color c is never in check.
func IsInCheck(b board.Board, c core.Color) bool {
	king, ok := b.KingSquare(c)
	if !ok {
		return false
	}
	attacker := c.Opposite()
	attacked := false
	b.Pieces(func(sq core.Square, p core.Piece) {
		if attacked || p.Color != attacker {
			return
		}
		if IsStructurallyLegal(b, core.Move{From: sq, To: king}, attacker) {
			attacked = true
		}
	})
	return attacked
}

// LeavesKingInCheck applies m to a copy of b and reports whether c's king
// is attacked afterwards
func LeavesKingInCheck(b board.Board, m core.Move, c core.Color) bool {
	return IsInCheck(board.Apply(b, m), c)
}

// IsLegal is structural legality plus the self-check filter
func IsLegal(b board.Board, m core.Move, c core.Color) bool {
	return IsStructurallyLegal(b, m, c) && !LeavesKingInCheck(b, m, c)
}

// HasAnyLegalMove stops at the first legal move found for c
func HasAnyLegalMove(b board.Board, c core.Color) bool {
	found := false
	eachLegalMove(b, c, func(core.Move) bool {
		found = true
		return false
	})
	return found
}

// LegalMoves enumerates every legal move for c. Promotions are listed once,
// as queen promotions.
func LegalMoves(b board.Board, c core.Color) []core.Move {
	var moves []core.Move
	eachLegalMove(b, c, func(m core.Move) bool {
		moves = append(moves, m)
		return true
	})
	return moves
}

// eachLegalMove calls yield for every origin/destination pair that is legal
// for c, until yield returns false
func eachLegalMove(b board.Board, c core.Color, yield func(core.Move) bool) {
	for fr := 0; fr < 8; fr++ {
		for ff := 0; ff < 8; ff++ {
			from := core.Square{File: ff, Rank: fr}
			p, ok := b.At(from)
			if !ok || p.Color != c {
				continue
			}
			for tr := 0; tr < 8; tr++ {
				for tf := 0; tf < 8; tf++ {
					m := core.Move{From: from, To: core.Square{File: tf, Rank: tr}}
					if p.Kind == core.Pawn && tr == board.LastRank(c) {
						m.Promotion = core.Queen
					}
					if !IsLegal(b, m, c) {
						continue
					}
					if !yield(m) {
						return
					}
				}
			}
		}
	}
}

func IsCheckmate(b board.Board, c core.Color) bool {
	return IsInCheck(b, c) && !HasAnyLegalMove(b, c)
}

func IsStalemate(b board.Board, c core.Color) bool {
	return !IsInCheck(b, c) && !HasAnyLegalMove(b, c)
}

// InsufficientMaterial recognizes bare kings, king and one minor piece
// against a bare king, and same-colored bishops on both sides
func InsufficientMaterial(b board.Board) bool {
	type material struct {
		count   int
		minors  int
		bishops []core.Square
	}
	var side [2]material
	index := func(c core.Color) int {
		if c == core.ColorWhite {
			return 0
		}
		return 1
	}

	b.Pieces(func(sq core.Square, p core.Piece) {
		m := &side[index(p.Color)]
		m.count++
		switch p.Kind {
		case core.Bishop:
			m.minors++
			m.bishops = append(m.bishops, sq)
		case core.Knight:
			m.minors++
		}
	})

	w, bl := side[0], side[1]
	bareKing := func(m material) bool { return m.count == 1 }
	kingAndMinor := func(m material) bool { return m.count == 2 && m.minors == 1 }

	switch {
	case bareKing(w) && bareKing(bl):
		return true
	case bareKing(w) && kingAndMinor(bl), bareKing(bl) && kingAndMinor(w):
		return true
	case kingAndMinor(w) && kingAndMinor(bl) && len(w.bishops) == 1 && len(bl.bishops) == 1:
		return squareShade(w.bishops[0]) == squareShade(bl.bishops[0])
	default:
		return false
	}
}

func squareShade(sq core.Square) int {
	return (sq.File + sq.Rank) % 2
}

// Evaluate checks, in priority order, checkmate, stalemate and
// insufficient material for the side about to move
func Evaluate(b board.Board, toMove core.Color) Outcome {
	inCheck := IsInCheck(b, toMove)
	if !HasAnyLegalMove(b, toMove) {
		if inCheck {
			return OutcomeCheckmate
		}
		return OutcomeStalemate
	}
	if InsufficientMaterial(b) {
		return OutcomeInsufficientMaterial
	}
	return OutcomeNone
}

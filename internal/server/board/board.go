package board

import (
	"fmt"
	"strings"

	"chessmatch/internal/server/core"
)

const (
	StartingFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w - - 0 1"
)

// Board is an 8x8 grid plus the side to move. It is a plain value:
// assignment yields an independent copy, so look-ahead never touches
// the authoritative position.
type Board struct {
	squares [8][8]core.Piece // [rank][file], rank 0 is the eighth rank
	turn    core.Color
}

// New returns the standard starting position with white to move
func New() Board {
	b, err := ParseFEN(StartingFEN)
	if err != nil {
		panic(err)
	}
	return b
}

// Empty returns a board with no pieces and the given side to move
func Empty(turn core.Color) Board {
	return Board{turn: turn}
}

func (b Board) Turn() core.Color {
	return b.turn
}

// At returns the piece on sq. ok is false for empty or out of bounds squares.
func (b Board) At(sq core.Square) (core.Piece, bool) {
	if !sq.InBounds() {
		return core.Piece{}, false
	}
	p := b.squares[sq.Rank][sq.File]
	return p, !p.IsZero()
}

// Set places p on sq, replacing any occupant
func (b *Board) Set(sq core.Square, p core.Piece) {
	if !sq.InBounds() {
		return
	}
	b.squares[sq.Rank][sq.File] = p
}

func (b *Board) Clear(sq core.Square) {
	b.Set(sq, core.Piece{})
}

func (b *Board) SetTurn(c core.Color) {
	b.turn = c
}

// Pieces visits every occupied square in rank-major order
func (b Board) Pieces(fn func(sq core.Square, p core.Piece)) {
	for r := 0; r < 8; r++ {
		for f := 0; f < 8; f++ {
			if p := b.squares[r][f]; !p.IsZero() {
				fn(core.Square{File: f, Rank: r}, p)
			}
		}
	}
}

// Count returns the number of pieces of color c
func (b Board) Count(c core.Color) int {
	n := 0
	b.Pieces(func(_ core.Square, p core.Piece) {
		if p.Color == c {
			n++
		}
	})
	return n
}

// KingSquare scans for the king of color c
func (b Board) KingSquare(c core.Color) (core.Square, bool) {
	for r := 0; r < 8; r++ {
		for f := 0; f < 8; f++ {
			p := b.squares[r][f]
			if p.Kind == core.King && p.Color == c {
				return core.Square{File: f, Rank: r}, true
			}
		}
	}
	return core.Square{}, false
}

// Grid returns the position as optional pieces for snapshots
func (b Board) Grid() [8][8]*core.Piece {
	var g [8][8]*core.Piece
	for r := 0; r < 8; r++ {
		for f := 0; f < 8; f++ {
			if p := b.squares[r][f]; !p.IsZero() {
				cp := p
				g[r][f] = &cp
			}
		}
	}
	return g
}

// Apply relocates the moving piece and flips the side to move. A pawn
// reaching its last rank becomes the requested piece, or a queen when the
// request names no valid promotion kind. Legality is the caller's concern.
func Apply(b Board, m core.Move) Board {
	p, ok := b.At(m.From)
	if !ok || !m.To.InBounds() {
		return b
	}
	b.Clear(m.From)
	if p.Kind == core.Pawn && m.To.Rank == LastRank(p.Color) {
		kind := m.Promotion
		if !kind.IsPromotionTarget() {
			kind = core.Queen
		}
		p = core.Piece{Kind: kind, Color: p.Color}
	}
	b.Set(m.To, p)
	b.turn = b.turn.Opposite()
	return b
}

// LastRank is the rank index on which pawns of color c promote
func LastRank(c core.Color) int {
	if c == core.ColorWhite {
		return 0
	}
	return 7
}

// ParseFEN reads piece placement and side to move. Castling, en passant
// and clock fields are accepted but ignored.
func ParseFEN(fen string) (Board, error) {
	parts := strings.Fields(fen)
	if len(parts) < 2 || len(parts) > 6 {
		return Board{}, fmt.Errorf("invalid FEN: expected 2 to 6 fields, got %d", len(parts))
	}

	var b Board

	ranks := strings.Split(parts[0], "/")
	if len(ranks) != 8 {
		return Board{}, fmt.Errorf("invalid FEN: expected 8 ranks")
	}

	for r := 0; r < 8; r++ {
		file := 0
		for i := 0; i < len(ranks[r]); i++ {
			ch := ranks[r][i]
			if ch >= '1' && ch <= '8' {
				file += int(ch - '0')
				continue
			}
			kind := core.KindFromLetter(ch)
			if kind == core.NoKind {
				return Board{}, fmt.Errorf("invalid FEN: unknown piece %q in rank %d", ch, 8-r)
			}
			if file >= 8 {
				return Board{}, fmt.Errorf("invalid FEN: too many pieces in rank %d", 8-r)
			}
			color := core.ColorBlack
			if ch >= 'A' && ch <= 'Z' {
				color = core.ColorWhite
			}
			b.squares[r][file] = core.Piece{Kind: kind, Color: color}
			file++
		}
		if file != 8 {
			return Board{}, fmt.Errorf("invalid FEN: rank %d has %d files", 8-r, file)
		}
	}

	switch parts[1] {
	case "w":
		b.turn = core.ColorWhite
	case "b":
		b.turn = core.ColorBlack
	default:
		return Board{}, fmt.Errorf("invalid FEN: turn must be 'w' or 'b'")
	}

	return b, nil
}

// FEN encodes the position. Castling and en passant are never available.
func (b Board) FEN() string {
	var sb strings.Builder
	for r := 0; r < 8; r++ {
		empty := 0
		for f := 0; f < 8; f++ {
			p := b.squares[r][f]
			if p.IsZero() {
				empty++
				continue
			}
			if empty > 0 {
				sb.WriteByte(byte('0' + empty))
				empty = 0
			}
			sb.WriteByte(p.FENLetter())
		}
		if empty > 0 {
			sb.WriteByte(byte('0' + empty))
		}
		if r < 7 {
			sb.WriteByte('/')
		}
	}
	sb.WriteByte(' ')
	sb.WriteString(b.turn.Short())
	sb.WriteString(" - - 0 1")
	return sb.String()
}

// ToASCII creates an ASCII representation of the board
func (b Board) ToASCII() string {
	var sb strings.Builder
	sb.WriteString("  a b c d e f g h\n")

	for r := 0; r < 8; r++ {
		sb.WriteString(fmt.Sprintf("%d ", 8-r))
		for f := 0; f < 8; f++ {
			p := b.squares[r][f]
			if p.IsZero() {
				sb.WriteString(". ")
			} else {
				sb.WriteString(fmt.Sprintf("%c ", p.FENLetter()))
			}
		}
		sb.WriteString(fmt.Sprintf(" %d\n", 8-r))
	}
	sb.WriteString("  a b c d e f g h")

	return sb.String()
}

package core

import (
	"fmt"
	"strings"
)

// Color identifies a side. The zero value is no color.
type Color byte

const (
	ColorWhite Color = iota + 1
	ColorBlack
)

func (c Color) String() string {
	switch c {
	case ColorWhite:
		return "white"
	case ColorBlack:
		return "black"
	default:
		return "none"
	}
}

// Short returns the single letter form used in FEN and the move journal
func (c Color) Short() string {
	switch c {
	case ColorWhite:
		return "w"
	case ColorBlack:
		return "b"
	default:
		return "-"
	}
}

func (c Color) Valid() bool {
	return c == ColorWhite || c == ColorBlack
}

func (c Color) Opposite() Color {
	return OppositeColor(c)
}

func OppositeColor(c Color) Color {
	if c == ColorWhite {
		return ColorBlack
	}
	return ColorWhite
}

func (c Color) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return []byte(""), nil
	}
	return []byte(c.String()), nil
}

func (c *Color) UnmarshalText(text []byte) error {
	color, err := ParseColor(string(text))
	if err != nil {
		return err
	}
	*c = color
	return nil
}

// ParseColor accepts "white", "black", "w", "b" and the empty string
func ParseColor(s string) (Color, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "white", "w":
		return ColorWhite, nil
	case "black", "b":
		return ColorBlack, nil
	case "", "none", "-":
		return 0, nil
	default:
		return 0, fmt.Errorf("unknown color %q", s)
	}
}

// PieceKind is the closed set of chess piece kinds. NoKind marks an empty square.
type PieceKind byte

const (
	NoKind PieceKind = iota
	Pawn
	Knight
	Bishop
	Rook
	Queen
	King
)

func (k PieceKind) String() string {
	switch k {
	case Pawn:
		return "pawn"
	case Knight:
		return "knight"
	case Bishop:
		return "bishop"
	case Rook:
		return "rook"
	case Queen:
		return "queen"
	case King:
		return "king"
	default:
		return ""
	}
}

// Letter returns the lower case FEN letter of the kind
func (k PieceKind) Letter() byte {
	switch k {
	case Pawn:
		return 'p'
	case Knight:
		return 'n'
	case Bishop:
		return 'b'
	case Rook:
		return 'r'
	case Queen:
		return 'q'
	case King:
		return 'k'
	default:
		return 0
	}
}

// KindFromLetter maps a FEN letter of either case to its kind
func KindFromLetter(ch byte) PieceKind {
	switch ch {
	case 'p', 'P':
		return Pawn
	case 'n', 'N':
		return Knight
	case 'b', 'B':
		return Bishop
	case 'r', 'R':
		return Rook
	case 'q', 'Q':
		return Queen
	case 'k', 'K':
		return King
	default:
		return NoKind
	}
}

// IsPromotionTarget reports whether a pawn may promote to k
func (k PieceKind) IsPromotionTarget() bool {
	return k == Knight || k == Bishop || k == Rook || k == Queen
}

func (k PieceKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *PieceKind) UnmarshalText(text []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(text)))
	switch s {
	case "":
		*k = NoKind
		return nil
	case "pawn":
		*k = Pawn
	case "knight":
		*k = Knight
	case "bishop":
		*k = Bishop
	case "rook":
		*k = Rook
	case "queen":
		*k = Queen
	case "king":
		*k = King
	default:
		return fmt.Errorf("unknown piece kind %q", s)
	}
	return nil
}

// Piece is an immutable kind and color pair. The zero value is no piece.
type Piece struct {
	Kind  PieceKind `json:"kind"`
	Color Color     `json:"color"`
}

func (p Piece) IsZero() bool {
	return p.Kind == NoKind
}

// FENLetter returns the piece letter, upper case for white
func (p Piece) FENLetter() byte {
	ch := p.Kind.Letter()
	if ch != 0 && p.Color == ColorWhite {
		ch -= 'a' - 'A'
	}
	return ch
}

func (p Piece) String() string {
	if p.IsZero() {
		return "empty"
	}
	return p.Color.String() + " " + p.Kind.String()
}

// Square addresses the board by file and rank index.
// Rank 0 is the eighth rank, so e2 is {File: 4, Rank: 6}.
type Square struct {
	File int
	Rank int
}

func (s Square) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Square) UnmarshalText(text []byte) error {
	sq, err := ParseSquare(string(text))
	if err != nil {
		return err
	}
	*s = sq
	return nil
}

func (s Square) InBounds() bool {
	return s.File >= 0 && s.File < 8 && s.Rank >= 0 && s.Rank < 8
}

// String returns algebraic notation, or "??" when out of bounds
func (s Square) String() string {
	if !s.InBounds() {
		return "??"
	}
	return string([]byte{byte('a' + s.File), byte('8' - s.Rank)})
}

// ParseSquare reads algebraic notation like "e2"
func ParseSquare(s string) (Square, error) {
	if len(s) != 2 {
		return Square{}, fmt.Errorf("invalid square %q", s)
	}
	f, r := s[0], s[1]
	if f < 'a' || f > 'h' || r < '1' || r > '8' {
		return Square{}, fmt.Errorf("invalid square %q", s)
	}
	return Square{File: int(f - 'a'), Rank: int('8' - r)}, nil
}

// Move is a requested relocation. It carries no legality guarantee.
type Move struct {
	From      Square
	To        Square
	Promotion PieceKind
}

// String returns the UCI form, e.g. "e7e8q"
func (m Move) String() string {
	s := m.From.String() + m.To.String()
	if ch := m.Promotion.Letter(); ch != 0 {
		s += string(ch)
	}
	return s
}

// ParseMove reads a UCI move. A fifth character selects the promotion piece.
func ParseMove(s string) (Move, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) < 4 || len(s) > 5 {
		return Move{}, fmt.Errorf("%w: %q must be 4 or 5 characters", ErrMalformedMove, s)
	}
	from, err := ParseSquare(s[0:2])
	if err != nil {
		return Move{}, fmt.Errorf("%w: %v", ErrMalformedMove, err)
	}
	to, err := ParseSquare(s[2:4])
	if err != nil {
		return Move{}, fmt.Errorf("%w: %v", ErrMalformedMove, err)
	}
	m := Move{From: from, To: to}
	if len(s) == 5 {
		k := KindFromLetter(s[4])
		if !k.IsPromotionTarget() {
			return Move{}, fmt.Errorf("%w: promotion piece %q", ErrMalformedMove, s[4])
		}
		m.Promotion = k
	}
	return m, nil
}

package board

import (
	"strings"
	"testing"

	"chessmatch/internal/server/core"
)

func sq(t *testing.T, s string) core.Square {
	t.Helper()
	square, err := core.ParseSquare(s)
	if err != nil {
		t.Fatalf("ParseSquare(%q): %v", s, err)
	}
	return square
}

func mv(t *testing.T, s string) core.Move {
	t.Helper()
	m, err := core.ParseMove(s)
	if err != nil {
		t.Fatalf("ParseMove(%q): %v", s, err)
	}
	return m
}

func TestNewStartingPosition(t *testing.T) {
	b := New()
	if b.Turn() != core.ColorWhite {
		t.Fatalf("turn = %v, want white", b.Turn())
	}
	if got := b.Count(core.ColorWhite); got != 16 {
		t.Errorf("white pieces = %d, want 16", got)
	}
	if got := b.Count(core.ColorBlack); got != 16 {
		t.Errorf("black pieces = %d, want 16", got)
	}

	e2 := sq(t, "e2")
	if e2 != (core.Square{File: 4, Rank: 6}) {
		t.Fatalf("e2 = %+v", e2)
	}
	p, ok := b.At(e2)
	if !ok || p != (core.Piece{Kind: core.Pawn, Color: core.ColorWhite}) {
		t.Errorf("At(e2) = %v, %v", p, ok)
	}
	if p, _ := b.At(sq(t, "d8")); p.Kind != core.Queen || p.Color != core.ColorBlack {
		t.Errorf("At(d8) = %v", p)
	}
	if _, ok := b.At(core.Square{File: 8, Rank: 0}); ok {
		t.Error("out of bounds square reported occupied")
	}
}

func TestApplyIsPure(t *testing.T) {
	b := New()
	next := Apply(b, mv(t, "e2e4"))

	if _, ok := b.At(sq(t, "e2")); !ok {
		t.Fatal("original board was mutated")
	}
	if b.Turn() != core.ColorWhite {
		t.Fatal("original turn was mutated")
	}
	if _, ok := next.At(sq(t, "e2")); ok {
		t.Error("origin not cleared")
	}
	if p, ok := next.At(sq(t, "e4")); !ok || p.Kind != core.Pawn {
		t.Errorf("destination = %v, %v", p, ok)
	}
	if next.Turn() != core.ColorBlack {
		t.Errorf("turn = %v, want black", next.Turn())
	}
}

func TestApplyPromotion(t *testing.T) {
	tests := []struct {
		name string
		fen  string
		move core.Move
		want core.PieceKind
	}{
		{"explicit knight", "8/4P3/8/8/8/8/8/k6K w - - 0 1", core.Move{From: core.Square{File: 4, Rank: 1}, To: core.Square{File: 4, Rank: 0}, Promotion: core.Knight}, core.Knight},
		{"unspecified defaults to queen", "8/4P3/8/8/8/8/8/k6K w - - 0 1", core.Move{From: core.Square{File: 4, Rank: 1}, To: core.Square{File: 4, Rank: 0}}, core.Queen},
		{"king request defaults to queen", "8/4P3/8/8/8/8/8/k6K w - - 0 1", core.Move{From: core.Square{File: 4, Rank: 1}, To: core.Square{File: 4, Rank: 0}, Promotion: core.King}, core.Queen},
		{"black promotes on rank one", "k6K/8/8/8/8/8/3p4/8 b - - 0 1", core.Move{From: core.Square{File: 3, Rank: 6}, To: core.Square{File: 3, Rank: 7}, Promotion: core.Rook}, core.Rook},
		{"non pawn ignores promotion", "8/4R3/8/8/8/8/8/k6K w - - 0 1", core.Move{From: core.Square{File: 4, Rank: 1}, To: core.Square{File: 4, Rank: 0}, Promotion: core.Knight}, core.Rook},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := ParseFEN(tt.fen)
			if err != nil {
				t.Fatalf("ParseFEN: %v", err)
			}
			next := Apply(b, tt.move)
			p, ok := next.At(tt.move.To)
			if !ok {
				t.Fatal("destination empty")
			}
			if p.Kind != tt.want {
				t.Errorf("kind = %v, want %v", p.Kind, tt.want)
			}
		})
	}
}

func TestApplyCaptureReducesCount(t *testing.T) {
	b, err := ParseFEN("4k3/8/8/3p4/4P3/8/8/4K3 w - - 0 1")
	if err != nil {
		t.Fatal(err)
	}
	next := Apply(b, mv(t, "e4d5"))
	if got := next.Count(core.ColorBlack); got != b.Count(core.ColorBlack)-1 {
		t.Errorf("black count = %d, want %d", got, b.Count(core.ColorBlack)-1)
	}
	if got := next.Count(core.ColorWhite); got != b.Count(core.ColorWhite) {
		t.Errorf("white count changed to %d", got)
	}
}

func TestFENRoundTrip(t *testing.T) {
	fens := []string{
		StartingFEN,
		"rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w - - 0 1",
		"8/8/8/8/8/8/8/k6K b - - 0 1",
	}
	for _, fen := range fens {
		b, err := ParseFEN(fen)
		if err != nil {
			t.Fatalf("ParseFEN(%q): %v", fen, err)
		}
		if got := b.FEN(); got != fen {
			t.Errorf("FEN() = %q, want %q", got, fen)
		}
	}
}

func TestParseFENRejects(t *testing.T) {
	bad := []string{
		"",
		"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP w",
		"rnbqkbnr/pppppppp/9/8/8/8/PPPPPPPP/RNBQKBNR w",
		"rnbqkbnr/ppppxppp/8/8/8/8/PPPPPPPP/RNBQKBNR w",
		"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR x",
	}
	for _, fen := range bad {
		if _, err := ParseFEN(fen); err == nil {
			t.Errorf("ParseFEN(%q) succeeded", fen)
		}
	}
}

func TestToASCII(t *testing.T) {
	ascii := New().ToASCII()
	lines := strings.Split(ascii, "\n")
	if len(lines) != 10 {
		t.Fatalf("got %d lines", len(lines))
	}
	if lines[1] != "8 r n b q k b n r  8" {
		t.Errorf("rank 8 = %q", lines[1])
	}
	if lines[7] != "2 P P P P P P P P  2" {
		t.Errorf("rank 2 = %q", lines[7])
	}
}

func TestKingSquareAndGrid(t *testing.T) {
	b := New()
	k, ok := b.KingSquare(core.ColorBlack)
	if !ok || k.String() != "e8" {
		t.Errorf("black king at %v, %v", k, ok)
	}
	g := b.Grid()
	if g[4][4] != nil {
		t.Error("e4 should be empty in grid")
	}
	if g[7][4] == nil || g[7][4].Kind != core.King {
		t.Error("e1 should hold the white king in grid")
	}
}

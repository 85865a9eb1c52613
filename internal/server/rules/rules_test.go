package rules

import (
	"strings"
	"testing"

	"chessmatch/internal/server/board"
	"chessmatch/internal/server/core"
)

func mustFEN(t *testing.T, fen string) board.Board {
	t.Helper()
	b, err := board.ParseFEN(fen)
	if err != nil {
		t.Fatalf("ParseFEN(%q): %v", fen, err)
	}
	return b
}

func mustMove(t *testing.T, s string) core.Move {
	t.Helper()
	m, err := core.ParseMove(s)
	if err != nil {
		t.Fatalf("ParseMove(%q): %v", s, err)
	}
	return m
}

func TestStructuralLegality(t *testing.T) {
	tests := []struct {
		name  string
		fen   string
		move  string
		mover core.Color
		want  bool
	}{
		{"pawn single push", board.StartingFEN, "e2e3", core.ColorWhite, true},
		{"pawn double push", board.StartingFEN, "e2e4", core.ColorWhite, true},
		{"pawn triple push", board.StartingFEN, "e2e5", core.ColorWhite, false},
		{"pawn backwards", "4k3/8/8/8/4P3/8/8/4K3 w - - 0 1", "e4e3", core.ColorWhite, false},
		{"pawn double push off start rank", "4k3/8/8/8/8/4P3/8/4K3 w - - 0 1", "e3e5", core.ColorWhite, false},
		{"pawn double push through piece", "4k3/8/8/8/8/4n3/4P3/4K3 w - - 0 1", "e2e4", core.ColorWhite, false},
		{"pawn push onto piece", "4k3/8/8/8/4n3/4P3/8/4K3 w - - 0 1", "e3e4", core.ColorWhite, false},
		{"pawn diagonal capture", "4k3/8/8/3p4/4P3/8/8/4K3 w - - 0 1", "e4d5", core.ColorWhite, true},
		{"pawn diagonal to empty", "4k3/8/8/8/4P3/8/8/4K3 w - - 0 1", "e4d5", core.ColorWhite, false},
		{"black pawn moves down the board", "4k3/4p3/8/8/8/8/8/4K3 b - - 0 1", "e7e5", core.ColorBlack, true},
		{"black pawn upward", "4k3/8/8/8/4p3/8/8/4K3 b - - 0 1", "e4e5", core.ColorBlack, false},
		{"knight jump over pieces", board.StartingFEN, "g1f3", core.ColorWhite, true},
		{"knight straight", board.StartingFEN, "g1g3", core.ColorWhite, false},
		{"bishop blocked", board.StartingFEN, "f1c4", core.ColorWhite, false},
		{"bishop open diagonal", "4k3/8/8/8/8/8/8/4KB2 w - - 0 1", "f1a6", core.ColorWhite, true},
		{"bishop non diagonal", "4k3/8/8/8/8/8/8/4KB2 w - - 0 1", "f1f4", core.ColorWhite, false},
		{"rook file", "4k3/8/8/8/8/8/8/R3K3 w - - 0 1", "a1a8", core.ColorWhite, true},
		{"rook diagonal", "4k3/8/8/8/8/8/8/R3K3 w - - 0 1", "a1b2", core.ColorWhite, false},
		{"queen diagonal", "4k3/8/8/8/8/8/8/3QK3 w - - 0 1", "d1h5", core.ColorWhite, true},
		{"queen knight shape", "4k3/8/8/8/8/8/8/3QK3 w - - 0 1", "d1e3", core.ColorWhite, false},
		{"king one step", "4k3/8/8/8/8/8/8/4K3 w - - 0 1", "e1d2", core.ColorWhite, true},
		{"king castling shape", "4k3/8/8/8/8/8/8/4K2R w - - 0 1", "e1g1", core.ColorWhite, false},
		{"empty origin", board.StartingFEN, "e4e5", core.ColorWhite, false},
		{"wrong color", board.StartingFEN, "e7e5", core.ColorWhite, false},
		{"same square", board.StartingFEN, "e2e2", core.ColorWhite, false},
		{"capture own piece", board.StartingFEN, "d1d2", core.ColorWhite, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := mustFEN(t, tt.fen)
			if got := IsStructurallyLegal(b, mustMove(t, tt.move), tt.mover); got != tt.want {
				t.Errorf("IsStructurallyLegal(%s) = %v, want %v", tt.move, got, tt.want)
			}
		})
	}
}

func TestStructuralLegalityOutOfBounds(t *testing.T) {
	b := board.New()
	m := core.Move{From: core.Square{File: 0, Rank: 7}, To: core.Square{File: 0, Rank: 8}}
	if IsStructurallyLegal(b, m, core.ColorWhite) {
		t.Fatal("move off the board accepted")
	}
}

// A rook may not jump over a pawn of either color, whatever lies beyond
func TestRookCannotJump(t *testing.T) {
	for _, fen := range []string{
		"4k3/8/8/8/P7/8/8/R3K3 w - - 0 1",
		"4k3/8/8/8/p7/8/8/R3K3 w - - 0 1",
	} {
		b := mustFEN(t, fen)
		for _, dst := range []string{"a5", "a6", "a8"} {
			m := mustMove(t, "a1"+dst)
			if IsStructurallyLegal(b, m, core.ColorWhite) {
				t.Errorf("%s: rook a1-%s jumped the a4 pawn", fen, dst)
			}
		}
	}
}

func TestClassifyWrapsIllegalMove(t *testing.T) {
	err := Classify(board.New(), mustMove(t, "e3e4"), core.ColorWhite)
	if err == nil {
		t.Fatal("expected error")
	}
	if core.Classify(err) != core.KindStructural {
		t.Errorf("kind = %v, want structural", core.Classify(err))
	}
}

func TestClassifyReasons(t *testing.T) {
	b := board.New()
	for uci, want := range map[string]string{
		"e3e4": "no piece on e3",
		"e7e5": "piece on e7 is not yours",
		"a1a2": "a2 is occupied by your own piece",
		"b1b3": "knight cannot move from b1 to b3",
	} {
		err := Classify(b, mustMove(t, uci), core.ColorWhite)
		if err == nil || !strings.Contains(err.Error(), want) {
			t.Errorf("%s: err = %v, want %q", uci, err, want)
		}
	}
	if err := Classify(b, mustMove(t, "g1f3"), core.ColorWhite); err != nil {
		t.Errorf("g1f3: %v", err)
	}
}

func TestRejectedCandidatesDoNotAllocate(t *testing.T) {
	b := board.New()
	bad := core.Move{From: core.Square{File: 1, Rank: 7}, To: core.Square{File: 1, Rank: 5}}
	allocs := testing.AllocsPerRun(100, func() {
		if IsStructurallyLegal(b, bad, core.ColorWhite) {
			t.Fatal("b1b3 accepted")
		}
	})
	if allocs != 0 {
		t.Fatalf("allocs per rejected move = %v", allocs)
	}
}

func BenchmarkLegalMovesStart(b *testing.B) {
	pos := board.New()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		LegalMoves(pos, core.ColorWhite)
	}
}

func TestIsInCheck(t *testing.T) {
	tests := []struct {
		name string
		fen  string
		c    core.Color
		want bool
	}{
		{"start", board.StartingFEN, core.ColorWhite, false},
		{"rook on open file", "4k3/8/8/8/8/8/8/4R1K1 b - - 0 1", core.ColorBlack, true},
		{"rook blocked", "4k3/4p3/8/8/8/8/8/4R1K1 b - - 0 1", core.ColorBlack, false},
		{"pawn attack", "8/8/8/8/8/3p4/4K3/k7 w - - 0 1", core.ColorWhite, true},
		{"pawn push is not attack", "8/8/8/8/4p3/8/4K3/k7 w - - 0 1", core.ColorWhite, false},
		{"knight attack", "4k3/8/3N4/8/8/8/8/4K3 b - - 0 1", core.ColorBlack, true},
		{"no king", "8/8/8/8/8/8/8/4R3 b - - 0 1", core.ColorBlack, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsInCheck(mustFEN(t, tt.fen), tt.c); got != tt.want {
				t.Errorf("IsInCheck = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPinnedPieceCannotExposeKing(t *testing.T) {
	// the e2 knight is pinned by the e8 rook
	b := mustFEN(t, "4r2k/8/8/8/8/8/4N3/4K3 w - - 0 1")
	m := mustMove(t, "e2c3")
	if !IsStructurallyLegal(b, m, core.ColorWhite) {
		t.Fatal("knight move should be structurally legal")
	}
	if !LeavesKingInCheck(b, m, core.ColorWhite) {
		t.Fatal("pinned knight move should leave king in check")
	}
	if IsLegal(b, m, core.ColorWhite) {
		t.Fatal("pinned knight move accepted")
	}
}

func TestFoolsMate(t *testing.T) {
	b := board.New()
	for _, s := range []string{"f2f3", "e7e5", "g2g4", "d8h4"} {
		m := mustMove(t, s)
		if !IsLegal(b, m, b.Turn()) {
			t.Fatalf("%s rejected", s)
		}
		b = board.Apply(b, m)
	}
	if !IsInCheck(b, core.ColorWhite) {
		t.Fatal("white should be in check")
	}
	if HasAnyLegalMove(b, core.ColorWhite) {
		t.Fatal("white should have no legal move")
	}
	if !IsCheckmate(b, core.ColorWhite) {
		t.Fatal("expected checkmate")
	}
	if got := Evaluate(b, core.ColorWhite); got != OutcomeCheckmate {
		t.Fatalf("Evaluate = %v, want checkmate", got)
	}
}

func TestStalemate(t *testing.T) {
	b := mustFEN(t, "7k/5Q2/6K1/8/8/8/8/8 b - - 0 1")
	if !IsStalemate(b, core.ColorBlack) {
		t.Fatal("expected stalemate")
	}
	if IsCheckmate(b, core.ColorBlack) {
		t.Fatal("stalemate reported as checkmate")
	}
	if got := Evaluate(b, core.ColorBlack); got != OutcomeStalemate {
		t.Fatalf("Evaluate = %v, want stalemate", got)
	}
}

func TestInsufficientMaterial(t *testing.T) {
	tests := []struct {
		name string
		fen  string
		want bool
	}{
		{"bare kings", "4k3/8/8/8/8/8/8/4K3 w - - 0 1", true},
		{"king and bishop vs king", "4k3/8/8/8/8/8/8/2B1K3 w - - 0 1", true},
		{"king vs king and bishop", "2b1k3/8/8/8/8/8/8/4K3 w - - 0 1", true},
		{"king and knight vs king", "4k3/8/8/8/8/8/8/1N2K3 w - - 0 1", true},
		{"same colored bishops", "2b1k3/8/8/8/8/8/8/4KB2 w - - 0 1", true},
		{"opposite colored bishops", "5bk1/8/8/8/8/8/8/4KB2 w - - 0 1", false},
		{"two knights", "4k3/8/8/8/8/8/8/1N2KN2 w - - 0 1", false},
		{"knight each", "1n2k3/8/8/8/8/8/8/1N2K3 w - - 0 1", false},
		{"rook", "4k3/8/8/8/8/8/8/R3K3 w - - 0 1", false},
		{"pawn", "4k3/8/8/8/8/8/4P3/4K3 w - - 0 1", false},
		{"start", board.StartingFEN, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := mustFEN(t, tt.fen)
			if got := InsufficientMaterial(b); got != tt.want {
				t.Errorf("InsufficientMaterial = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluatePriority(t *testing.T) {
	// bare kings with black to move: moves exist, so material decides
	b := mustFEN(t, "4k3/8/8/8/8/8/8/4K3 b - - 0 1")
	if got := Evaluate(b, core.ColorBlack); got != OutcomeInsufficientMaterial {
		t.Fatalf("Evaluate = %v, want insufficient material", got)
	}
	if got := Evaluate(board.New(), core.ColorWhite); got != OutcomeNone {
		t.Fatalf("Evaluate(start) = %v, want none", got)
	}
}

func TestLegalMovesStartingPosition(t *testing.T) {
	moves := LegalMoves(board.New(), core.ColorWhite)
	if len(moves) != 20 {
		t.Fatalf("got %d moves, want 20", len(moves))
	}
}

func TestCheckRestrictsMoves(t *testing.T) {
	b := mustFEN(t, "4k3/8/8/8/8/8/3P4/r3K3 w - - 0 1")
	if !IsInCheck(b, core.ColorWhite) {
		t.Fatal("white should be in check")
	}
	for _, m := range LegalMoves(b, core.ColorWhite) {
		if IsInCheck(board.Apply(b, m), core.ColorWhite) {
			t.Errorf("%s leaves white in check", m)
		}
	}
}

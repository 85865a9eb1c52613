package display

import (
	"fmt"
	"io"
	"strings"

	"chessmatch/internal/server/core"
)

// RenderBoard writes an ASCII board with colored pieces
func RenderBoard(w io.Writer, asciiBoard string) {
	lines := strings.Split(asciiBoard, "\n")
	last := len(lines) - 1

	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		fileLine := i == 0 || i == last

		for _, char := range line {
			switch {
			case char >= 'a' && char <= 'h' && fileLine:
				fmt.Fprintf(w, "%s%c%s", Cyan, char, Reset)
			case char >= 'A' && char <= 'Z':
				fmt.Fprintf(w, "%s%c%s", Blue, char, Reset)
			case char >= 'a' && char <= 'z':
				fmt.Fprintf(w, "%s%c%s", Red, char, Reset)
			case char >= '1' && char <= '8':
				fmt.Fprintf(w, "%s%c%s", Cyan, char, Reset)
			default:
				fmt.Fprintf(w, "%c", char)
			}
		}
		fmt.Fprintln(w)
	}
}

// ColorForTurn returns a colored side name
func ColorForTurn(c core.Color) string {
	switch c {
	case core.ColorWhite:
		return Blue + "White" + Reset
	case core.ColorBlack:
		return Red + "Black" + Reset
	default:
		return "-"
	}
}

// Outcome describes a finished game in one line
func Outcome(st *core.SessionState) string {
	if !st.Status.IsTerminal() {
		return ""
	}
	msg := fmt.Sprintf("Game over: %s", st.Status)
	if st.Reason != core.ReasonNone && st.Reason.String() != st.Status.String() {
		msg += fmt.Sprintf(" (%s)", st.Reason)
	}
	if st.Winner.Valid() {
		msg += ", winner " + ColorForTurn(st.Winner)
	}
	return msg
}

package display

import (
	"os"

	"golang.org/x/term"
)

// Terminal color codes. They are blanked by SetEnabled(false).
var (
	Reset   = "\033[0m"
	Red     = "\033[31m"
	Green   = "\033[32m"
	Yellow  = "\033[33m"
	Blue    = "\033[34m"
	Magenta = "\033[35m"
	Cyan    = "\033[36m"
	White   = "\033[37m"
)

// SetEnabled switches color output on or off
func SetEnabled(on bool) {
	if on {
		Reset, Red, Green, Yellow = "\033[0m", "\033[31m", "\033[32m", "\033[33m"
		Blue, Magenta, Cyan, White = "\033[34m", "\033[35m", "\033[36m", "\033[37m"
		return
	}
	Reset, Red, Green, Yellow, Blue, Magenta, Cyan, White = "", "", "", "", "", "", "", ""
}

// AutoDetect enables color only when stdout is a terminal and NO_COLOR is unset
func AutoDetect() {
	_, noColor := os.LookupEnv("NO_COLOR")
	SetEnabled(!noColor && term.IsTerminal(int(os.Stdout.Fd())))
}

// Prompt returns a colored prompt string
func Prompt(text string) string {
	return Yellow + text + Yellow + " > " + Reset
}

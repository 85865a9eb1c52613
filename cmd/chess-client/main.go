// Package main implements an interactive terminal client for the chess
// session API.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"

	"chessmatch/internal/client/commands"
	"chessmatch/internal/client/display"
	"chessmatch/internal/client/session"
	"chessmatch/internal/server/core"
)

func main() {
	apiURL := flag.String("api", "http://localhost:8080", "API base URL")
	name := flag.String("name", "", "Display name used when joining")
	history := flag.String("history", ".chess_history", "Readline history file (empty disables)")
	flag.Parse()

	display.AutoDetect()

	s := session.New(*apiURL)
	s.Name = *name

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          display.Prompt("chess"),
		HistoryFile:     *history,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Printf("%s%s%s\n", display.Red, err.Error(), display.Reset)
		os.Exit(1)
	}
	defer rl.Close()

	fmt.Printf("%sChess Client%s\n", display.Cyan, display.Reset)
	fmt.Printf("%sAPI: %s%s\n", display.Cyan, s.APIBaseURL, display.Reset)
	fmt.Printf("Type 'help' for commands\n\n")

	registry := commands.NewRegistryWithOutput(s, rl.Stdout())

	for {
		rl.SetPrompt(buildPrompt(s))

		line, err := rl.Readline()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			continue
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasSuffix(line, " -v") {
			s.Verbose = true
			line = strings.TrimSuffix(line, " -v")
		} else {
			s.Verbose = false
		}

		if err := registry.Execute(line); errors.Is(err, commands.ErrExit) {
			break
		}
	}

	// a seated player leaving the client frees the seat
	if s.Token != "" {
		s.Verbose = false
		s.Client.SetVerbose(false)
		s.Client.Disconnect(s.SessionID)
	}
}

func buildPrompt(s *session.Session) string {
	prompt := "chess"

	var parts []string
	if s.Name != "" {
		parts = append(parts, display.Magenta+s.Name+display.Reset)
	}
	if s.SessionID != "" {
		parts = append(parts, display.White+s.SessionID+display.Reset)
	}
	if s.Color.Valid() {
		parts = append(parts, display.ColorForTurn(s.Color))
	}
	if len(parts) > 0 {
		prompt += display.Yellow + " [" + display.Reset + strings.Join(parts, display.Yellow+" - "+display.Reset) + display.Yellow + "]"
	}

	if st := s.State; st != nil {
		switch {
		case st.Status.IsTerminal():
			prompt += " - " + st.Status.String()
		case st.Status == core.StatusWaiting:
			prompt += " - waiting"
		default:
			prompt += " - Turn:" + display.ColorForTurn(st.Turn)
			if s.MyTurn() {
				prompt += "*"
			}
		}
	}

	return display.Prompt(prompt)
}

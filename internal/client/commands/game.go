package commands

import (
	"errors"
	"fmt"
	"strings"

	"chessmatch/internal/client/display"
	"chessmatch/internal/server/core"
)

// maxWaitPolls bounds the wait command to a few long-poll rounds
const maxWaitPolls = 10

var errNoSession = errors.New("no current session, use 'new' or 'join <sessionId>'")

func (r *Registry) registerGameCommands() {
	for _, cmd := range []*Command{
		{Name: "new", ShortName: "n", Description: "Create a session and take a seat", Usage: "new [name]", Handler: (*Registry).newHandler},
		{Name: "join", ShortName: "j", Description: "Join a session", Usage: "join <sessionId> [name]", Handler: (*Registry).joinHandler},
		{Name: "move", ShortName: "m", Description: "Make a move in UCI notation", Usage: "move <uci-move>", Handler: (*Registry).moveHandler},
		{Name: "resign", ShortName: "r", Description: "Resign the game", Usage: "resign", Handler: (*Registry).resignHandler},
		{Name: "draw", ShortName: "d", Description: "Offer, accept or decline a draw", Usage: "draw offer|accept|decline", Handler: (*Registry).drawHandler},
		{Name: "leave", ShortName: "l", Description: "Disconnect from the session", Usage: "leave", Handler: (*Registry).leaveHandler},
		{Name: "show", ShortName: "h", Description: "Show board and session state", Usage: "show", Handler: (*Registry).showHandler},
		{Name: "state", ShortName: "s", Description: "Show raw session JSON", Usage: "state", Handler: (*Registry).stateHandler},
		{Name: "poll", ShortName: "p", Description: "Long-poll once for session updates", Usage: "poll", Handler: (*Registry).pollHandler},
		{Name: "wait", ShortName: "w", Description: "Wait until it is your turn or the game ends", Usage: "wait", Handler: (*Registry).waitHandler},
	} {
		cmd.Group = groupGame
		r.Register(cmd)
	}
}

func (r *Registry) newHandler(args []string) error {
	c := r.session.Client
	c.SetToken("")
	st, err := c.CreateSession()
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "%sSession created: %s%s\n", display.Green, st.SessionID, display.Reset)
	// the creator takes the first seat
	return r.join(st.SessionID, nameArg(args, 0, r.session.Name))
}

func (r *Registry) joinHandler(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: join <sessionId> [name]")
	}
	sessionID := strings.ToUpper(args[0])
	if sessionID != r.session.SessionID {
		r.session.Client.SetToken("")
	}
	return r.join(sessionID, nameArg(args, 1, r.session.Name))
}

func (r *Registry) join(sessionID, name string) error {
	resp, err := r.session.Client.Join(sessionID, name)
	if err != nil {
		return err
	}
	r.session.Seat(sessionID, resp)
	if name != "" {
		r.session.Name = name
	}

	fmt.Fprintf(r.out, "%sJoined %s as %s%s\n", display.Green, sessionID, display.ColorForTurn(resp.Color), display.Reset)
	if resp.State.Status == core.StatusWaiting {
		fmt.Fprintf(r.out, "%sWaiting for an opponent, share the session ID: %s%s\n", display.Yellow, sessionID, display.Reset)
	}
	return nil
}

func (r *Registry) moveHandler(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: move <uci-move>")
	}
	if err := r.requireSeat(); err != nil {
		return err
	}

	resp, err := r.session.Client.Move(r.session.SessionID, strings.ToLower(args[0]))
	if err != nil {
		return err
	}
	r.session.State = &resp.State

	fmt.Fprintf(r.out, "%sMoved %s%s", display.Green, resp.Move.UCI, display.Reset)
	if resp.Move.Captured != nil {
		fmt.Fprintf(r.out, " (captured %s)", resp.Move.Captured.Kind)
	}
	fmt.Fprintln(r.out)
	r.printStatus(&resp.State)
	return nil
}

func (r *Registry) resignHandler(args []string) error {
	if err := r.requireSeat(); err != nil {
		return err
	}
	st, err := r.session.Client.Resign(r.session.SessionID)
	if err != nil {
		return err
	}
	r.session.State = st
	r.printStatus(st)
	return nil
}

func (r *Registry) drawHandler(args []string) error {
	if err := r.requireSeat(); err != nil {
		return err
	}
	if len(args) < 1 {
		return fmt.Errorf("usage: draw offer|accept|decline")
	}

	c := r.session.Client
	var st *core.SessionState
	var err error
	switch args[0] {
	case "offer", "o":
		st, err = c.OfferDraw(r.session.SessionID)
	case "accept", "a":
		st, err = c.AcceptDraw(r.session.SessionID)
	case "decline", "d":
		st, err = c.DeclineDraw(r.session.SessionID)
	default:
		return fmt.Errorf("unknown draw action: %s", args[0])
	}
	if err != nil {
		return err
	}
	r.session.State = st
	r.printStatus(st)
	return nil
}

func (r *Registry) leaveHandler(args []string) error {
	if err := r.requireSeat(); err != nil {
		return err
	}
	id := r.session.SessionID
	resp, err := r.session.Client.Disconnect(id)
	if err != nil {
		return err
	}
	r.session.Leave()

	fmt.Fprintf(r.out, "%sLeft %s%s\n", display.Yellow, id, display.Reset)
	if resp.Removed {
		fmt.Fprintf(r.out, "Session removed\n")
	} else if resp.State != nil {
		r.printStatus(resp.State)
	}
	return nil
}

func (r *Registry) showHandler(args []string) error {
	id := r.session.SessionID
	if id == "" {
		return errNoSession
	}
	c := r.session.Client

	st, err := c.GetSession(id)
	if err != nil {
		return err
	}
	board, err := c.GetBoard(id)
	if err != nil {
		return err
	}
	r.session.State = st

	fmt.Fprintln(r.out)
	display.RenderBoard(r.out, board.Board)
	fmt.Fprintf(r.out, "\nFEN: %s\n", st.FEN)

	for _, p := range st.Players {
		attached := ""
		if !p.Attached {
			attached = " (disconnected)"
		}
		fmt.Fprintf(r.out, "%s: %s%s\n", display.ColorForTurn(p.Color), p.Name, attached)
	}

	if len(st.Moves) > 0 {
		fmt.Fprintf(r.out, "\nHistory: ")
		for i, m := range st.Moves {
			if i%2 == 0 {
				if i > 0 {
					fmt.Fprint(r.out, " ")
				}
				fmt.Fprintf(r.out, "%d.%s", i/2+1, m.UCI)
			} else {
				fmt.Fprintf(r.out, " %s", m.UCI)
			}
		}
		fmt.Fprintln(r.out)
	}
	if n := len(st.Captured.ByWhite) + len(st.Captured.ByBlack); n > 0 {
		fmt.Fprintf(r.out, "Captured: white took %d, black took %d\n", len(st.Captured.ByWhite), len(st.Captured.ByBlack))
	}

	r.printStatus(st)
	return nil
}

func (r *Registry) stateHandler(args []string) error {
	id := r.session.SessionID
	if id == "" {
		return errNoSession
	}
	st, err := r.session.Client.GetSession(id)
	if err != nil {
		return err
	}
	r.session.State = st

	fmt.Fprintf(r.out, "%sSession State:%s\n", display.Cyan, display.Reset)
	display.PrettyPrintJSON(r.out, st)
	return nil
}

func (r *Registry) pollHandler(args []string) error {
	id := r.session.SessionID
	if id == "" {
		return errNoSession
	}
	known := r.session.Version()

	fmt.Fprintf(r.out, "%sLong-polling for updates (version %d)...%s\n", display.Cyan, known, display.Reset)
	st, err := r.session.Client.WaitSession(id, known)
	if err != nil {
		return err
	}
	r.session.State = st

	if st.Version != known {
		fmt.Fprintf(r.out, "%sSession updated to version %d%s\n", display.Green, st.Version, display.Reset)
		if n := len(st.Moves); n > 0 {
			fmt.Fprintf(r.out, "Last move: %s\n", st.Moves[n-1].UCI)
		}
		r.printStatus(st)
	} else {
		fmt.Fprintf(r.out, "%sNo updates (timeout)%s\n", display.Yellow, display.Reset)
	}
	return nil
}

func (r *Registry) waitHandler(args []string) error {
	if err := r.requireSeat(); err != nil {
		return err
	}
	if r.session.MyTurn() {
		fmt.Fprintf(r.out, "It is already your turn\n")
		return nil
	}

	for i := 0; i < maxWaitPolls; i++ {
		st, err := r.session.Client.WaitSession(r.session.SessionID, r.session.Version())
		if err != nil {
			return err
		}
		r.session.State = st
		if st.Status.IsTerminal() || r.session.MyTurn() {
			if n := len(st.Moves); n > 0 {
				fmt.Fprintf(r.out, "Last move: %s\n", st.Moves[n-1].UCI)
			}
			r.printStatus(st)
			return nil
		}
	}
	fmt.Fprintf(r.out, "%sStill waiting, try again%s\n", display.Yellow, display.Reset)
	return nil
}

func (r *Registry) printStatus(st *core.SessionState) {
	if msg := display.Outcome(st); msg != "" {
		fmt.Fprintf(r.out, "%s%s%s\n", display.Magenta, msg, display.Reset)
		return
	}
	fmt.Fprintf(r.out, "Status: %s | Turn: %s | Moves: %d", st.Status, display.ColorForTurn(st.Turn), len(st.Moves))
	if st.InCheck {
		fmt.Fprintf(r.out, " | %sCHECK%s", display.Red, display.Reset)
	}
	if st.DrawOfferedBy.Valid() {
		fmt.Fprintf(r.out, " | draw offered by %s", display.ColorForTurn(st.DrawOfferedBy))
	}
	fmt.Fprintln(r.out)
}

func (r *Registry) requireSeat() error {
	if r.session.SessionID == "" || r.session.Token == "" {
		return errNoSession
	}
	return nil
}

func nameArg(args []string, i int, fallback string) string {
	if len(args) > i {
		return strings.Join(args[i:], " ")
	}
	return fallback
}

package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"chessmatch/internal/client/display"
	"chessmatch/internal/client/session"
)

// ErrExit is returned by the exit command
var ErrExit = errors.New("exit")

// Command defines a client command with its handler
type Command struct {
	Name        string
	ShortName   string
	Group       string
	Description string
	Usage       string
	Handler     func(*Registry, []string) error
}

// Registry manages command registration and execution
type Registry struct {
	session  *session.Session
	commands map[string]*Command
	out      io.Writer
}

func NewRegistry(s *session.Session) *Registry {
	return NewRegistryWithOutput(s, os.Stdout)
}

func NewRegistryWithOutput(s *session.Session, out io.Writer) *Registry {
	r := &Registry{
		session:  s,
		commands: make(map[string]*Command),
		out:      out,
	}
	s.Client.Out = out

	r.registerGameCommands()
	r.registerDebugCommands()

	r.Register(&Command{
		Name:        "help",
		ShortName:   "?",
		Group:       groupUtil,
		Description: "Show available commands",
		Usage:       "help [command]",
		Handler:     (*Registry).helpHandler,
	})
	r.Register(&Command{
		Name:        "exit",
		ShortName:   "x",
		Group:       groupUtil,
		Description: "Exit the client",
		Usage:       "exit",
		Handler:     func(*Registry, []string) error { return ErrExit },
	})

	return r
}

const (
	groupGame = "Game Commands"
	groupUtil = "Utility Commands"
)

func (r *Registry) Register(cmd *Command) {
	r.commands[cmd.Name] = cmd
	if cmd.ShortName != "" {
		r.commands[cmd.ShortName] = cmd
	}
}

// Execute runs one input line. It returns ErrExit when the user asked to
// leave; other errors are printed.
func (r *Registry) Execute(input string) error {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return nil
	}

	cmd, exists := r.commands[parts[0]]
	if !exists {
		fmt.Fprintf(r.out, "%sUnknown command: %s%s\n", display.Red, parts[0], display.Reset)
		fmt.Fprintf(r.out, "Type 'help' for available commands\n")
		return nil
	}

	r.session.Client.SetVerbose(r.session.Verbose)

	err := cmd.Handler(r, parts[1:])
	if errors.Is(err, ErrExit) {
		fmt.Fprintf(r.out, "%sGoodbye!%s\n", display.Cyan, display.Reset)
		return err
	}
	if err != nil {
		fmt.Fprintf(r.out, "%sError: %s%s\n", display.Red, err.Error(), display.Reset)
	}
	return nil
}

func (r *Registry) helpHandler(args []string) error {
	if len(args) > 0 {
		cmd, exists := r.commands[args[0]]
		if !exists {
			return fmt.Errorf("unknown command: %s", args[0])
		}
		fmt.Fprintf(r.out, "\n%s%s%s - %s\n", display.Cyan, cmd.Name, display.Reset, cmd.Description)
		if cmd.ShortName != "" {
			fmt.Fprintf(r.out, "Short form: %s%s%s\n", display.Cyan, cmd.ShortName, display.Reset)
		}
		fmt.Fprintf(r.out, "Usage: %s\n", cmd.Usage)
		return nil
	}

	fmt.Fprintf(r.out, "\n%sAvailable Commands:%s\n", display.Cyan, display.Reset)
	for _, group := range []string{groupGame, groupUtil} {
		var names []string
		for key, cmd := range r.commands {
			if key == cmd.Name && cmd.Group == group {
				names = append(names, key)
			}
		}
		sort.Strings(names)

		fmt.Fprintf(r.out, "\n%s%s:%s\n", display.Yellow, group, display.Reset)
		for _, name := range names {
			cmd := r.commands[name]
			shortPart := "    "
			if cmd.ShortName != "" {
				shortPart = fmt.Sprintf("[%s%s%s] ", display.Cyan, cmd.ShortName, display.Reset)
			}
			fmt.Fprintf(r.out, "  %s%-10s %s\n", shortPart, cmd.Name, cmd.Description)
		}
	}

	fmt.Fprintf(r.out, "\nType 'help <command>' for detailed usage\n")
	fmt.Fprintf(r.out, "Add '-v' to any command for verbose output\n")
	return nil
}

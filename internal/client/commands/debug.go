package commands

import (
	"fmt"
	"strings"
	"time"

	"chessmatch/internal/client/display"
)

func (r *Registry) registerDebugCommands() {
	for _, cmd := range []*Command{
		{Name: "health", ShortName: ".", Description: "Check server health", Usage: "health", Handler: (*Registry).healthHandler},
		{Name: "url", ShortName: "/", Description: "Show or set API base URL", Usage: "url [apiUrl]", Handler: (*Registry).urlHandler},
		{Name: "raw", ShortName: ":", Description: "Send raw API request", Usage: "raw <method> <path> [json-body]", Handler: (*Registry).rawRequestHandler},
		{Name: "clear", ShortName: "-", Description: "Clear screen", Usage: "clear", Handler: (*Registry).clearHandler},
	} {
		cmd.Group = groupUtil
		r.Register(cmd)
	}
}

func (r *Registry) healthHandler(args []string) error {
	resp, err := r.session.Client.Health()
	if err != nil {
		return err
	}

	fmt.Fprintf(r.out, "%sServer Health:%s\n", display.Cyan, display.Reset)
	fmt.Fprintf(r.out, "  Status:   %s\n", resp.Status)
	fmt.Fprintf(r.out, "  Time:     %s\n", time.Unix(resp.Time, 0).Format("2006-01-02 15:04:05"))
	fmt.Fprintf(r.out, "  Sessions: %d\n", resp.Sessions)
	if resp.Storage != "" {
		fmt.Fprintf(r.out, "  Storage:  %s\n", resp.Storage)
	}
	return nil
}

func (r *Registry) urlHandler(args []string) error {
	if len(args) == 0 {
		fmt.Fprintf(r.out, "Current API URL: %s\n", r.session.APIBaseURL)
		return nil
	}

	url := args[0]
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "http://" + url
	}
	r.session.APIBaseURL = url
	r.session.Client.SetBaseURL(url)

	fmt.Fprintf(r.out, "%sAPI URL set to: %s%s\n", display.Cyan, url, display.Reset)
	return nil
}

func (r *Registry) rawRequestHandler(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: raw <method> <path> [json-body]")
	}
	body := ""
	if len(args) > 2 {
		body = strings.Join(args[2:], " ")
	}
	return r.session.Client.RawRequest(strings.ToUpper(args[0]), args[1], body)
}

func (r *Registry) clearHandler(args []string) error {
	// ANSI clear and home
	fmt.Fprint(r.out, "\033[H\033[2J")
	return nil
}

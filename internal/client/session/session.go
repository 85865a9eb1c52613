// Package session holds the interactive client's state between commands
package session

import (
	"chessmatch/internal/client/api"
	"chessmatch/internal/server/core"
)

type Session struct {
	APIBaseURL string
	Client     *api.Client
	Verbose    bool

	Name      string
	SessionID string
	Identity  string
	Token     string
	Color     core.Color
	State     *core.SessionState
}

func New(baseURL string) *Session {
	return &Session{
		APIBaseURL: baseURL,
		Client:     api.New(baseURL),
	}
}

// Seat records a successful join and authorizes later requests
func (s *Session) Seat(sessionID string, resp *core.JoinResponse) {
	s.SessionID = sessionID
	s.Identity = resp.Identity
	s.Token = resp.Token
	s.Color = resp.Color
	s.State = &resp.State
	s.Client.SetToken(resp.Token)
}

// Leave forgets the current seat
func (s *Session) Leave() {
	s.SessionID = ""
	s.Identity = ""
	s.Token = ""
	s.Color = 0
	s.State = nil
	s.Client.SetToken("")
}

// Version is the last seen session version, 0 before any state
func (s *Session) Version() uint64 {
	if s.State == nil {
		return 0
	}
	return s.State.Version
}

// MyTurn reports whether the seated player is to move in an active game
func (s *Session) MyTurn() bool {
	return s.State != nil && s.State.Status == core.StatusActive && s.State.Turn == s.Color
}

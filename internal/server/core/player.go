package core

import (
	"time"

	"github.com/google/uuid"
)

// Player is a seated participant. Color never changes once assigned.
type Player struct {
	ID             string
	Name           string
	Color          Color
	ClockRemaining *time.Duration
	Attached       bool
	JoinedAt       time.Time
}

// NewIdentity issues an opaque participant identity
func NewIdentity() string {
	return uuid.New().String()
}

// NewPlayer seats an attached participant
func NewPlayer(id, name string, color Color, joinedAt time.Time) *Player {
	if name == "" {
		name = color.String()
	}
	return &Player{
		ID:       id,
		Name:     name,
		Color:    color,
		Attached: true,
		JoinedAt: joinedAt,
	}
}

// View strips the identity for broadcast
func (p *Player) View() PlayerView {
	v := PlayerView{
		Name:     p.Name,
		Color:    p.Color,
		Attached: p.Attached,
	}
	if p.ClockRemaining != nil {
		ms := p.ClockRemaining.Milliseconds()
		v.ClockRemainingMs = &ms
	}
	return v
}

// PlayerView is the broadcast-safe projection of a Player
type PlayerView struct {
	Name             string `json:"name"`
	Color            Color  `json:"color"`
	Attached         bool   `json:"attached"`
	ClockRemainingMs *int64 `json:"clockRemainingMs,omitempty"`
}

package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/lixenwraith/auth"

	"chessmatch/internal/server/core"
)

const DefaultTokenTTL = 24 * time.Hour

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrWrongSession = errors.New("token belongs to another session")
)

// Participant is the identity carried by a validated token
type Participant struct {
	Identity  string
	SessionID string
	Color     core.Color
}

// IssueToken creates a participant token bound to one session seat
func (s *Service) IssueToken(sessionID, identity string, color core.Color) (string, error) {
	if len(s.cfg.Secret) == 0 {
		return "", errors.New("token secret not configured")
	}
	claims := map[string]any{
		"sid":   sessionID,
		"color": color.String(),
	}
	return auth.GenerateHS256Token(s.cfg.Secret, identity, claims, s.cfg.TokenTTL)
}

// ValidateToken verifies token and, when sessionID is non-empty, that it was
// issued for that session
func (s *Service) ValidateToken(token, sessionID string) (Participant, error) {
	if len(s.cfg.Secret) == 0 {
		return Participant{}, ErrInvalidToken
	}
	identity, claims, err := auth.ValidateHS256Token(s.cfg.Secret, token)
	if err != nil {
		return Participant{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	sid, _ := claims["sid"].(string)
	colorName, _ := claims["color"].(string)
	color, err := core.ParseColor(colorName)
	if identity == "" || sid == "" || err != nil || !color.Valid() {
		return Participant{}, ErrInvalidToken
	}
	if sessionID != "" && sid != sessionID {
		return Participant{}, ErrWrongSession
	}
	return Participant{Identity: identity, SessionID: sid, Color: color}, nil
}

package http

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"chessmatch/internal/server/core"
	"chessmatch/internal/server/service"
)

const (
	localIdentity = "identity"
	localColor    = "color"
)

// TokenValidator checks a participant token against a session id
type TokenValidator func(token, sessionID string) (service.Participant, error)

// ParticipantRequired admits only holders of a token issued for the
// session named in the route
func ParticipantRequired(validateToken TokenValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := extractBearerToken(c.Get("Authorization"))
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(core.ErrorResponse{
				Error: "missing authorization token",
				Code:  core.ErrCodeUnauthorized,
			})
		}

		p, err := validateToken(token, c.Params("id"))
		if errors.Is(err, service.ErrWrongSession) {
			return c.Status(fiber.StatusForbidden).JSON(core.ErrorResponse{
				Error: "token was issued for another session",
				Code:  core.ErrCodeForbidden,
			})
		}
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(core.ErrorResponse{
				Error: "invalid or expired token",
				Code:  core.ErrCodeUnauthorized,
			})
		}

		c.Locals(localIdentity, p.Identity)
		c.Locals(localColor, p.Color)
		return c.Next()
	}
}

// OptionalParticipant records the identity of a valid token but lets
// anonymous callers through
func OptionalParticipant(validateToken TokenValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := extractBearerToken(c.Get("Authorization"))
		if token == "" {
			return c.Next()
		}
		if p, err := validateToken(token, c.Params("id")); err == nil {
			c.Locals(localIdentity, p.Identity)
			c.Locals(localColor, p.Color)
		}
		return c.Next()
	}
}

// extractBearerToken extracts JWT token from Authorization header
func extractBearerToken(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}

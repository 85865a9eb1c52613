package http

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"chessmatch/internal/server/core"
	"chessmatch/internal/server/processor"
	"chessmatch/internal/server/service"
)

const rateLimitRate = 10 // req/sec

// AppConfig tunes the REST app
type AppConfig struct {
	DevMode   bool
	RateLimit int // requests per second per client, 0 for the default
	AccessLog bool
}

// HTTPHandler handles HTTP requests and routes them to the processor
type HTTPHandler struct {
	proc *processor.Processor
	svc  *service.Service
}

func NewHTTPHandler(proc *processor.Processor, svc *service.Service) *HTTPHandler {
	return &HTTPHandler{proc: proc, svc: svc}
}

func NewFiberApp(proc *processor.Processor, svc *service.Service, cfg AppConfig) *fiber.App {
	h := NewHTTPHandler(proc, svc)

	app := fiber.New(fiber.Config{
		ErrorHandler:          customErrorHandler,
		ReadTimeout:           15 * time.Second,
		WriteTimeout:          35 * time.Second, // outlives a long-poll wait
		IdleTimeout:           60 * time.Second,
		DisableStartupMessage: true,
	})

	// Global middleware (order matters)
	app.Use(recover.New())
	if cfg.AccessLog {
		app.Use(logger.New(logger.Config{
			Format: "${time} ${status} ${method} ${path} ${latency}\n",
		}))
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Health check (no rate limit)
	app.Get("/health", h.Health)

	api := app.Group("/api/v1")
	api.Get("/health", h.Health)

	maxReq := cfg.RateLimit
	if maxReq <= 0 {
		maxReq = rateLimitRate
	}
	if cfg.DevMode {
		maxReq *= 2
	}
	api.Use(limiter.New(limiter.Config{
		Max:        maxReq,
		Expiration: 1 * time.Second,
		KeyGenerator: func(c *fiber.Ctx) string {
			if xff := c.Get("X-Forwarded-For"); xff != "" {
				if idx := strings.Index(xff, ","); idx != -1 {
					return strings.TrimSpace(xff[:idx])
				}
				return xff
			}
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(core.ErrorResponse{
				Error:   "rate limit exceeded",
				Code:    core.ErrCodeRateLimitExceeded,
				Details: fmt.Sprintf("%d requests per second allowed", maxReq),
			})
		},
	}))

	api.Use(contentTypeValidator)
	api.Use(validationMiddleware)

	validateToken := svc.ValidateToken
	participant := ParticipantRequired(validateToken)

	sessions := api.Group("/sessions")
	sessions.Post("", h.CreateSession)
	sessions.Get("/:id", h.GetSession)
	sessions.Get("/:id/board", h.GetBoard)
	sessions.Post("/:id/join", OptionalParticipant(validateToken), h.Join)
	sessions.Post("/:id/moves", participant, h.Move)
	sessions.Post("/:id/resign", participant, h.Resign)
	sessions.Post("/:id/draw/offer", participant, h.OfferDraw)
	sessions.Post("/:id/draw/accept", participant, h.AcceptDraw)
	sessions.Post("/:id/draw/decline", participant, h.DeclineDraw)
	sessions.Post("/:id/disconnect", participant, h.Disconnect)

	return app
}

// contentTypeValidator ensures POST requests carry JSON when they carry anything
func contentTypeValidator(c *fiber.Ctx) error {
	if c.Method() == fiber.MethodPost {
		contentType := c.Get("Content-Type")
		if contentType != "" && !strings.HasPrefix(contentType, fiber.MIMEApplicationJSON) {
			return c.Status(fiber.StatusUnsupportedMediaType).JSON(core.ErrorResponse{
				Error:   "unsupported media type",
				Code:    core.ErrCodeInvalidContent,
				Details: "Content-Type must be application/json",
			})
		}
	}
	return c.Next()
}

// customErrorHandler provides consistent error responses
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	response := core.ErrorResponse{
		Error: "internal server error",
		Code:  core.ErrCodeInternalError,
	}

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		response.Error = e.Message

		switch code {
		case fiber.StatusNotFound:
			response.Code = core.ErrCodeGameNotFound
		case fiber.StatusBadRequest:
			response.Code = core.ErrCodeInvalidRequest
		case fiber.StatusTooManyRequests:
			response.Code = core.ErrCodeRateLimitExceeded
		}
	}

	return c.Status(code).JSON(response)
}

// statusFor maps a wire error code to an HTTP status
func statusFor(code string) int {
	switch code {
	case core.ErrCodeGameNotFound:
		return fiber.StatusNotFound
	case core.ErrCodeNotParticipant, core.ErrCodeForbidden:
		return fiber.StatusForbidden
	case core.ErrCodeUnauthorized:
		return fiber.StatusUnauthorized
	case core.ErrCodeNotYourTurn, core.ErrCodeSessionFull, core.ErrCodeInvalidState,
		core.ErrCodeGameOver, core.ErrCodeNoDrawOffer:
		return fiber.StatusConflict
	case core.ErrCodeInvalidMove, core.ErrCodeInvalidRequest:
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

// respond writes a processor response with okStatus on success
func respond(c *fiber.Ctx, resp processor.ProcessorResponse, okStatus int) error {
	if !resp.Success {
		return c.Status(statusFor(resp.Error.Code)).JSON(resp.Error)
	}
	return c.Status(okStatus).JSON(resp.Data)
}

func badSessionID(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(core.ErrorResponse{
		Error:   "invalid session ID format",
		Code:    core.ErrCodeInvalidRequest,
		Details: "session ID must be 6 upper case letters or digits",
	})
}

// Health check endpoint with storage status
func (h *HTTPHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":   "healthy",
		"time":     time.Now().Unix(),
		"sessions": h.svc.Count(),
		"storage":  h.svc.GetStorageHealth(),
	})
}

// CreateSession opens a new waiting session
func (h *HTTPHandler) CreateSession(c *fiber.Ctx) error {
	return respond(c, h.proc.Execute(processor.NewCreateSessionCommand()), fiber.StatusCreated)
}

// GetSession returns the session snapshot. With wait=true it long-polls
// until the version differs from the one given.
func (h *HTTPHandler) GetSession(c *fiber.Ctx) error {
	sessionID := c.Params("id")
	if !isValidSessionID(sessionID) {
		return badSessionID(c)
	}

	if c.Query("wait", "false") != "true" {
		return respond(c, h.proc.Execute(processor.NewGetSessionCommand(sessionID)), fiber.StatusOK)
	}

	known, err := strconv.ParseUint(c.Query("version", ""), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(core.ErrorResponse{
			Error:   "invalid version",
			Code:    core.ErrCodeInvalidRequest,
			Details: "wait=true requires a numeric version",
		})
	}

	sess, err := h.svc.Get(sessionID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(core.ErrorResponse{
			Error: err.Error(),
			Code:  core.ErrCodeGameNotFound,
		})
	}
	if sess.Version() != known {
		return c.JSON(sess.Snapshot())
	}

	ctx := c.Context()
	notify := h.svc.RegisterWait(ctx, sessionID, known)
	// a change that landed before the waiter registered would be missed
	if sess.Version() == known {
		select {
		case <-notify:
		case <-ctx.Done():
			return nil
		}
	}

	return respond(c, h.proc.Execute(processor.NewGetSessionCommand(sessionID)), fiber.StatusOK)
}

// GetBoard returns ASCII representation of the board
func (h *HTTPHandler) GetBoard(c *fiber.Ctx) error {
	sessionID := c.Params("id")
	if !isValidSessionID(sessionID) {
		return badSessionID(c)
	}
	return respond(c, h.proc.Execute(processor.NewGetBoardCommand(sessionID)), fiber.StatusOK)
}

// Join seats the caller. A caller presenting a token for this session is
// re-attached to its seat.
func (h *HTTPHandler) Join(c *fiber.Ctx) error {
	sessionID := c.Params("id")
	if !isValidSessionID(sessionID) {
		return badSessionID(c)
	}

	req, ok := validatedBody[core.JoinRequest](c)
	if !ok {
		return validationBypass(c)
	}
	identity, _ := c.Locals(localIdentity).(string)

	return respond(c, h.proc.Execute(processor.NewJoinCommand(sessionID, identity, req)), fiber.StatusOK)
}

// Move submits a UCI move for the token holder
func (h *HTTPHandler) Move(c *fiber.Ctx) error {
	req, ok := validatedBody[core.MoveRequest](c)
	if !ok {
		return validationBypass(c)
	}
	return respond(c, h.proc.Execute(processor.NewMoveCommand(c.Params("id"), identity(c), req)), fiber.StatusOK)
}

func (h *HTTPHandler) Resign(c *fiber.Ctx) error {
	return respond(c, h.proc.Execute(processor.NewResignCommand(c.Params("id"), identity(c))), fiber.StatusOK)
}

func (h *HTTPHandler) OfferDraw(c *fiber.Ctx) error {
	return respond(c, h.proc.Execute(processor.NewOfferDrawCommand(c.Params("id"), identity(c))), fiber.StatusOK)
}

func (h *HTTPHandler) AcceptDraw(c *fiber.Ctx) error {
	return respond(c, h.proc.Execute(processor.NewAcceptDrawCommand(c.Params("id"), identity(c))), fiber.StatusOK)
}

func (h *HTTPHandler) DeclineDraw(c *fiber.Ctx) error {
	return respond(c, h.proc.Execute(processor.NewDeclineDrawCommand(c.Params("id"), identity(c))), fiber.StatusOK)
}

// Disconnect leaves the session; the opponent wins an active game
func (h *HTTPHandler) Disconnect(c *fiber.Ctx) error {
	return respond(c, h.proc.Execute(processor.NewDisconnectCommand(c.Params("id"), identity(c))), fiber.StatusOK)
}

func identity(c *fiber.Ctx) string {
	id, _ := c.Locals(localIdentity).(string)
	return id
}

// validatedBody fetches the body stored by validationMiddleware
func validatedBody[T any](c *fiber.Ctx) (T, bool) {
	var zero T
	if validated, ok := c.Locals("validated").(bool); !ok || !validated {
		return zero, false
	}
	body, ok := c.Locals("validatedBody").(*T)
	if !ok || body == nil {
		return zero, false
	}
	return *body, true
}

func validationBypass(c *fiber.Ctx) error {
	return c.Status(fiber.StatusInternalServerError).JSON(core.ErrorResponse{
		Error: "validation bypass detected",
		Code:  core.ErrCodeInternalError,
	})
}

package processor

import (
	"chessmatch/internal/server/core"
)

// CommandType defines the type of command being executed
type CommandType int

const (
	CmdCreateSession CommandType = iota
	CmdJoin
	CmdMove
	CmdResign
	CmdOfferDraw
	CmdAcceptDraw
	CmdDeclineDraw
	CmdDisconnect
	CmdGetSession
	CmdGetBoard
)

func (t CommandType) String() string {
	switch t {
	case CmdCreateSession:
		return "create"
	case CmdJoin:
		return "join"
	case CmdMove:
		return "move"
	case CmdResign:
		return "resign"
	case CmdOfferDraw:
		return "offer_draw"
	case CmdAcceptDraw:
		return "accept_draw"
	case CmdDeclineDraw:
		return "decline_draw"
	case CmdDisconnect:
		return "disconnect"
	case CmdGetSession:
		return "get"
	case CmdGetBoard:
		return "board"
	default:
		return "unknown"
	}
}

// Command is a unified structure for all processor operations
type Command struct {
	Type      CommandType
	Identity  string // participant identity; empty for anonymous calls
	SessionID string
	Args      any // command-specific arguments
}

// ProcessorResponse wraps the response with metadata
type ProcessorResponse struct {
	Success bool                `json:"success"`
	Data    any                 `json:"data,omitempty"`
	Error   *core.ErrorResponse `json:"error,omitempty"`
}

func NewCreateSessionCommand() Command {
	return Command{Type: CmdCreateSession}
}

// NewJoinCommand seats a new participant. A non-empty identity re-attaches
// a participant that already holds a seat.
func NewJoinCommand(sessionID, identity string, req core.JoinRequest) Command {
	return Command{
		Type:      CmdJoin,
		Identity:  identity,
		SessionID: sessionID,
		Args:      req,
	}
}

func NewMoveCommand(sessionID, identity string, req core.MoveRequest) Command {
	return Command{
		Type:      CmdMove,
		Identity:  identity,
		SessionID: sessionID,
		Args:      req,
	}
}

func NewResignCommand(sessionID, identity string) Command {
	return Command{Type: CmdResign, Identity: identity, SessionID: sessionID}
}

func NewOfferDrawCommand(sessionID, identity string) Command {
	return Command{Type: CmdOfferDraw, Identity: identity, SessionID: sessionID}
}

func NewAcceptDrawCommand(sessionID, identity string) Command {
	return Command{Type: CmdAcceptDraw, Identity: identity, SessionID: sessionID}
}

func NewDeclineDrawCommand(sessionID, identity string) Command {
	return Command{Type: CmdDeclineDraw, Identity: identity, SessionID: sessionID}
}

func NewDisconnectCommand(sessionID, identity string) Command {
	return Command{Type: CmdDisconnect, Identity: identity, SessionID: sessionID}
}

func NewGetSessionCommand(sessionID string) Command {
	return Command{Type: CmdGetSession, SessionID: sessionID}
}

func NewGetBoardCommand(sessionID string) Command {
	return Command{Type: CmdGetBoard, SessionID: sessionID}
}

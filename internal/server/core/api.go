package core

import "time"

// Request types

type JoinRequest struct {
	Name string `json:"name,omitempty" validate:"omitempty,max=40"`
}

type MoveRequest struct {
	Move string `json:"move" validate:"required,min=4,max=5"` // UCI, e.g. e2e4 or e7e8q
}

// Response types

// MoveRecord is one accepted move. Records are immutable once appended.
type MoveRecord struct {
	Seq       int       `json:"seq"`
	Piece     Piece     `json:"piece"`
	From      Square    `json:"from"`
	To        Square    `json:"to"`
	Captured  *Piece    `json:"captured,omitempty"`
	Promotion PieceKind `json:"promotion,omitempty"`
	UCI       string    `json:"uci"`
	Timestamp time.Time `json:"timestamp"`
}

// CapturedPieces lists pieces taken by each side, in capture order
type CapturedPieces struct {
	ByWhite []Piece `json:"byWhite"`
	ByBlack []Piece `json:"byBlack"`
}

// SessionState is a self-contained snapshot, enough for a client to render
// the position without replaying history
type SessionState struct {
	SessionID      string         `json:"sessionId"`
	Status         Status         `json:"status"`
	Reason         EndReason      `json:"reason,omitempty"`
	Turn           Color          `json:"turn"`
	Winner         Color          `json:"winner,omitempty"`
	Version        uint64         `json:"version"`
	Board          [8][8]*Piece   `json:"board"`
	FEN            string         `json:"fen"`
	Captured       CapturedPieces `json:"captured"`
	Moves          []MoveRecord   `json:"moves"`
	Players        []PlayerView   `json:"players"`
	DrawOfferedBy  Color          `json:"drawOfferedBy,omitempty"`
	InCheck        bool           `json:"inCheck"`
	LegalMoveCount int            `json:"legalMoveCount"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

type JoinResponse struct {
	Identity string       `json:"identity"`
	Color    Color        `json:"color"`
	Token    string       `json:"token"`
	State    SessionState `json:"state"`
}

type MoveResponse struct {
	Move  MoveRecord   `json:"move"`
	Ended bool         `json:"ended"`
	State SessionState `json:"state"`
}

type DisconnectResponse struct {
	Removed bool          `json:"removed"`
	State   *SessionState `json:"state,omitempty"`
}

type BoardResponse struct {
	FEN   string `json:"fen"`
	Board string `json:"board"` // ASCII representation
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

// Event types fanned out to participants after an accepted transition
const (
	EventSessionCreated       = "session_created"
	EventPlayerJoined         = "player_joined"
	EventMoveMade             = "move_made"
	EventGameOver             = "game_over"
	EventDrawOffered          = "draw_offered"
	EventDrawDeclined         = "draw_declined"
	EventOpponentDisconnected = "opponent_disconnected"
	EventSessionRemoved       = "session_removed"
	EventSnapshot             = "snapshot" // first frame on a new socket
	EventError                = "error"    // rejection of a socket command
)

type Event struct {
	Type      string         `json:"type"`
	SessionID string         `json:"sessionId"`
	Version   uint64         `json:"version"`
	Actor     Color          `json:"actor,omitempty"`
	State     *SessionState  `json:"state,omitempty"`
	Error     *ErrorResponse `json:"error,omitempty"`
	At        time.Time      `json:"at"`
}

// Socket command types
const (
	ClientMove        = "move"
	ClientResign      = "resign"
	ClientOfferDraw   = "offer_draw"
	ClientAcceptDraw  = "accept_draw"
	ClientDeclineDraw = "decline_draw"
)

// ClientMessage is an inbound websocket frame
type ClientMessage struct {
	Type string `json:"type"`
	Move string `json:"move,omitempty"`
}

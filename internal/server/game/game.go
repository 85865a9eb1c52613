package game

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"

	"chessmatch/internal/server/board"
	"chessmatch/internal/server/core"
	"chessmatch/internal/server/rules"
)

// MoveResult describes the session right after an accepted move
type MoveResult struct {
	Record  core.MoveRecord
	FEN     string // position after the move
	Status  core.Status
	Reason  core.EndReason
	Winner  core.Color
	InCheck bool
	Ended   bool
}

// DisconnectResult tells the registry what happened to the session.
// Removed is set once no attached participant remains.
type DisconnectResult struct {
	Changed bool
	Ended   bool // the disconnect abandoned an active game
	Removed bool // this disconnect left nobody attached
	Status  core.Status
	Winner  core.Color
}

// Option customizes a new Session
type Option func(*Session)

// WithClock replaces time.Now for timestamps
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithColorPicker replaces the random first-joiner color
func WithColorPicker(pick func() core.Color) Option {
	return func(s *Session) { s.pickColor = pick }
}

// WithInitialClock gives each joining player this much clock time.
// The value is tracked, never enforced.
func WithInitialClock(d time.Duration) Option {
	return func(s *Session) { s.initialClock = d }
}

// WithBoard starts the session from a custom position
func WithBoard(b board.Board) Option {
	return func(s *Session) { s.board = b }
}

// Session is one game between two identities. Every exported method holds
// the session lock for its whole duration, so operations apply atomically
// and in arrival order. Sessions share no state with each other.
type Session struct {
	mu sync.Mutex

	id            string
	board         board.Board
	players       map[string]*core.Player
	status        core.Status
	reason        core.EndReason
	winner        core.Color
	moves         []core.MoveRecord
	captured      core.CapturedPieces
	drawOfferedBy core.Color
	filled        bool
	version       uint64
	createdAt     time.Time
	updatedAt     time.Time

	now          func() time.Time
	pickColor    func() core.Color
	initialClock time.Duration
}

// New creates an empty session waiting for players
func New(id string, opts ...Option) *Session {
	s := &Session{
		id:        id,
		board:     board.New(),
		players:   make(map[string]*core.Player, 2),
		status:    core.StatusWaiting,
		now:       time.Now,
		pickColor: RandomColor,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.createdAt = s.now().UTC()
	s.updatedAt = s.createdAt
	return s
}

// RandomColor picks white or black uniformly
func RandomColor() core.Color {
	n, err := rand.Int(rand.Reader, big.NewInt(2))
	if err != nil || n.Int64() == 0 {
		return core.ColorWhite
	}
	return core.ColorBlack
}

func (s *Session) ID() string {
	return s.id
}

// Join seats identity. The first joiner gets a random color, the second the
// remaining one, which activates the session. A participant joining again
// is re-attached and keeps its color.
func (s *Session) Join(identity, name string) (core.Color, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.players[identity]; ok {
		if !p.Attached && s.status != core.StatusWaiting {
			return 0, fmt.Errorf("%w: %s left the session", core.ErrInvalidState, p.Color)
		}
		p.Attached = true
		return p.Color, nil
	}

	if s.status != core.StatusWaiting {
		if s.status == core.StatusActive {
			return 0, core.ErrSessionFull
		}
		return 0, fmt.Errorf("%w: session is %s", core.ErrInvalidState, s.status)
	}
	if len(s.players) >= 2 {
		return 0, core.ErrSessionFull
	}

	var color core.Color
	if len(s.players) == 0 {
		color = s.pickColor()
		if !color.Valid() {
			color = core.ColorWhite
		}
	} else {
		for _, p := range s.players {
			color = p.Color.Opposite()
		}
	}

	p := core.NewPlayer(identity, name, color, s.now().UTC())
	if s.initialClock > 0 {
		clock := s.initialClock
		p.ClockRemaining = &clock
	}
	s.players[identity] = p

	if len(s.players) == 2 {
		s.status = core.StatusActive
		s.filled = true
	}
	s.touch()
	return color, nil
}

// Move validates and applies m for identity, then evaluates the position
// for the side now to move
func (s *Session) Move(identity string, m core.Move) (MoveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireActive(); err != nil {
		return MoveResult{}, err
	}
	p, ok := s.players[identity]
	if !ok {
		return MoveResult{}, core.ErrNotParticipant
	}
	if p.Color != s.board.Turn() {
		return MoveResult{}, core.ErrNotYourTurn
	}
	if err := rules.Classify(s.board, m, p.Color); err != nil {
		return MoveResult{}, err
	}
	if rules.LeavesKingInCheck(s.board, m, p.Color) {
		return MoveResult{}, core.ErrSelfCheck
	}

	piece, _ := s.board.At(m.From)
	rec := core.MoveRecord{
		Seq:       len(s.moves) + 1,
		Piece:     piece,
		From:      m.From,
		To:        m.To,
		Timestamp: s.now().UTC(),
	}
	if target, ok := s.board.At(m.To); ok {
		captured := target
		rec.Captured = &captured
		if p.Color == core.ColorWhite {
			s.captured.ByWhite = append(s.captured.ByWhite, captured)
		} else {
			s.captured.ByBlack = append(s.captured.ByBlack, captured)
		}
	}

	next := board.Apply(s.board, m)
	if promoted, _ := next.At(m.To); promoted.Kind != piece.Kind {
		rec.Promotion = promoted.Kind
	}
	rec.UCI = core.Move{From: m.From, To: m.To, Promotion: rec.Promotion}.String()

	s.board = next
	s.moves = append(s.moves, rec)
	s.drawOfferedBy = 0

	toMove := s.board.Turn()
	switch rules.Evaluate(s.board, toMove) {
	case rules.OutcomeCheckmate:
		s.finish(core.StatusCheckmate, core.ReasonCheckmate, p.Color)
	case rules.OutcomeStalemate:
		s.finish(core.StatusStalemate, core.ReasonStalemate, 0)
	case rules.OutcomeInsufficientMaterial:
		s.finish(core.StatusDraw, core.ReasonInsufficientMaterial, 0)
	}
	s.touch()

	return MoveResult{
		Record:  rec,
		FEN:     s.board.FEN(),
		Status:  s.status,
		Reason:  s.reason,
		Winner:  s.winner,
		InCheck: rules.IsInCheck(s.board, toMove),
		Ended:   s.status.IsTerminal(),
	}, nil
}

// Resign ends an active game in the opponent's favor
func (s *Session) Resign(identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireActive(); err != nil {
		return err
	}
	p, ok := s.players[identity]
	if !ok {
		return core.ErrNotParticipant
	}
	s.finish(core.StatusResigned, core.ReasonResignation, p.Color.Opposite())
	s.touch()
	return nil
}

// OfferDraw records a pending offer. Repeating an own offer is a no-op.
// settled reports that the offer met a pending counter-offer and the game
// ended drawn.
func (s *Session) OfferDraw(identity string) (settled bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.activeParticipant(identity)
	if err != nil {
		return false, err
	}
	if s.drawOfferedBy == p.Color {
		return false, nil
	}
	if s.drawOfferedBy == p.Color.Opposite() {
		s.finish(core.StatusDraw, core.ReasonAgreement, 0)
		s.touch()
		return true, nil
	}
	s.drawOfferedBy = p.Color
	s.touch()
	return false, nil
}

// AcceptDraw ends the game drawn. The opponent must have an offer pending.
func (s *Session) AcceptDraw(identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.activeParticipant(identity)
	if err != nil {
		return err
	}
	if s.drawOfferedBy != p.Color.Opposite() {
		return core.ErrNoDrawOffer
	}
	s.finish(core.StatusDraw, core.ReasonAgreement, 0)
	s.touch()
	return nil
}

// DeclineDraw clears the opponent's pending offer
func (s *Session) DeclineDraw(identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.activeParticipant(identity)
	if err != nil {
		return err
	}
	if s.drawOfferedBy != p.Color.Opposite() {
		return core.ErrNoDrawOffer
	}
	s.drawOfferedBy = 0
	s.touch()
	return nil
}

// Disconnect detaches identity. Unknown or already detached identities are
// ignored and never mark the session removable. A session that never filled
// drops the player; an active one is abandoned in favor of whoever remains.
func (s *Session) Disconnect(identity string) DisconnectResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.players[identity]
	if !ok || !p.Attached {
		return s.disconnectResult(false, false)
	}

	ended := false
	switch {
	case !s.filled:
		delete(s.players, identity)
	case s.status == core.StatusActive:
		p.Attached = false
		s.finish(core.StatusAbandoned, core.ReasonDisconnect, p.Color.Opposite())
		ended = true
	default:
		p.Attached = false
	}
	s.touch()
	return s.disconnectResult(true, ended)
}

func (s *Session) disconnectResult(changed, ended bool) DisconnectResult {
	return DisconnectResult{
		Changed: changed,
		Ended:   ended,
		Removed: changed && s.attachedCount() == 0,
		Status:  s.status,
		Winner:  s.winner,
	}
}

// Status returns the lifecycle state
func (s *Session) Status() core.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Version increases on every accepted transition
func (s *Session) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Board returns a copy of the current position
func (s *Session) Board() board.Board {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.board
}

// ColorOf returns the color seated for identity
func (s *Session) ColorOf(identity string) (core.Color, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[identity]
	if !ok {
		return 0, false
	}
	return p.Color, true
}

// Empty reports whether nobody is attached
func (s *Session) Empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attachedCount() == 0
}

// IdleSince returns the time of the last accepted transition
func (s *Session) IdleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

// Snapshot returns a deep copy of the session for fan-out
func (s *Session) Snapshot() core.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := core.SessionState{
		SessionID:     s.id,
		Status:        s.status,
		Reason:        s.reason,
		Turn:          s.board.Turn(),
		Winner:        s.winner,
		Version:       s.version,
		Board:         s.board.Grid(),
		FEN:           s.board.FEN(),
		Moves:         append([]core.MoveRecord(nil), s.moves...),
		DrawOfferedBy: s.drawOfferedBy,
		CreatedAt:     s.createdAt,
		UpdatedAt:     s.updatedAt,
		Captured: core.CapturedPieces{
			ByWhite: append([]core.Piece{}, s.captured.ByWhite...),
			ByBlack: append([]core.Piece{}, s.captured.ByBlack...),
		},
	}
	if st.Moves == nil {
		st.Moves = []core.MoveRecord{}
	}
	for i := range st.Moves {
		if c := st.Moves[i].Captured; c != nil {
			cp := *c
			st.Moves[i].Captured = &cp
		}
	}

	st.Players = make([]core.PlayerView, 0, len(s.players))
	for _, c := range []core.Color{core.ColorWhite, core.ColorBlack} {
		for _, p := range s.players {
			if p.Color == c {
				st.Players = append(st.Players, p.View())
			}
		}
	}

	st.InCheck = rules.IsInCheck(s.board, s.board.Turn())
	if !s.status.IsTerminal() {
		st.LegalMoveCount = len(rules.LegalMoves(s.board, s.board.Turn()))
	}
	return st
}

func (s *Session) requireActive() error {
	switch {
	case s.status == core.StatusActive:
		return nil
	case s.status.IsTerminal():
		return fmt.Errorf("%w: %s", core.ErrGameOver, s.status)
	default:
		return fmt.Errorf("%w: session is %s", core.ErrInvalidState, s.status)
	}
}

func (s *Session) activeParticipant(identity string) (*core.Player, error) {
	if err := s.requireActive(); err != nil {
		return nil, err
	}
	p, ok := s.players[identity]
	if !ok {
		return nil, core.ErrNotParticipant
	}
	return p, nil
}

// finish moves the session to a terminal status. Terminal is final.
func (s *Session) finish(status core.Status, reason core.EndReason, winner core.Color) {
	if s.status.IsTerminal() {
		return
	}
	s.status = status
	s.reason = reason
	s.winner = winner
	s.drawOfferedBy = 0
}

func (s *Session) attachedCount() int {
	n := 0
	for _, p := range s.players {
		if p.Attached {
			n++
		}
	}
	return n
}

func (s *Session) touch() {
	s.version++
	s.updatedAt = s.now().UTC()
}

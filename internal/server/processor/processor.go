package processor

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"chessmatch/internal/server/core"
	"chessmatch/internal/server/game"
	"chessmatch/internal/server/obslog"
	"chessmatch/internal/server/service"
	"chessmatch/internal/server/storage"
)

// Processor executes commands against the session registry. After every
// accepted transition it wakes long-poll waiters, journals the change and
// publishes an event.
type Processor struct {
	svc    *service.Service
	events *EventQueue
	now    func() time.Time
}

// New creates a processor. events may be nil when nothing subscribes.
func New(svc *service.Service, events *EventQueue) *Processor {
	p := &Processor{
		svc:    svc,
		events: events,
		now:    time.Now,
	}
	svc.OnRemove(p.sessionRemoved)
	return p
}

func (p *Processor) Execute(cmd Command) ProcessorResponse {
	switch cmd.Type {
	case CmdCreateSession:
		return p.handleCreateSession(cmd)
	case CmdJoin:
		return p.handleJoin(cmd)
	case CmdMove:
		return p.handleMove(cmd)
	case CmdResign:
		return p.handleResign(cmd)
	case CmdOfferDraw:
		return p.handleOfferDraw(cmd)
	case CmdAcceptDraw:
		return p.handleAcceptDraw(cmd)
	case CmdDeclineDraw:
		return p.handleDeclineDraw(cmd)
	case CmdDisconnect:
		return p.handleDisconnect(cmd)
	case CmdGetSession:
		return p.handleGetSession(cmd)
	case CmdGetBoard:
		return p.handleGetBoard(cmd)
	default:
		return p.errorResponse("unknown command", core.ErrCodeInvalidRequest)
	}
}

func (p *Processor) handleCreateSession(cmd Command) ProcessorResponse {
	sess, err := p.svc.Create()
	if err != nil {
		obslog.L().Error("session_create_failed", zap.Error(err))
		return p.errorResponse("failed to create session", core.ErrCodeInternalError)
	}

	st := sess.Snapshot()
	if store := p.svc.Store(); store != nil {
		store.RecordSession(storage.SessionRecord{
			SessionID:    st.SessionID,
			InitialFEN:   st.FEN,
			Status:       st.Status.String(),
			CreatedAtUTC: st.CreatedAt,
		})
	}
	obslog.L().Info("session_create", zap.String("session", st.SessionID), zap.Int("live", p.svc.Count()))
	p.publish(core.EventSessionCreated, 0, &st)

	return ProcessorResponse{Success: true, Data: st}
}

// handleJoin seats a participant and issues its token
func (p *Processor) handleJoin(cmd Command) ProcessorResponse {
	var args core.JoinRequest
	if cmd.Args != nil {
		req, ok := cmd.Args.(core.JoinRequest)
		if !ok {
			return p.errorResponse("invalid arguments", core.ErrCodeInvalidRequest)
		}
		args = req
	}

	sess, err := p.svc.Get(cmd.SessionID)
	if err != nil {
		return p.fail(err)
	}

	identity := cmd.Identity
	if identity == "" {
		identity = core.NewIdentity()
	}
	before := sess.Version()
	color, err := sess.Join(identity, strings.TrimSpace(args.Name))
	if err != nil {
		return p.fail(err)
	}

	token, err := p.svc.IssueToken(sess.ID(), identity, color)
	if err != nil {
		obslog.L().Error("token_issue_failed", zap.String("session", sess.ID()), zap.Error(err))
		return p.errorResponse("failed to issue token", core.ErrCodeInternalError)
	}

	if sess.Version() == before {
		// attached participant joining again, only the token is new
		return ProcessorResponse{
			Success: true,
			Data: core.JoinResponse{
				Identity: identity,
				Color:    color,
				Token:    token,
				State:    sess.Snapshot(),
			},
		}
	}

	st := p.changed(sess)
	if store := p.svc.Store(); store != nil {
		for _, pv := range st.Players {
			if pv.Color == color {
				store.RecordJoin(st.SessionID, color.Short(), pv.Name, st.Status.String())
			}
		}
	}
	obslog.L().Info("session_join",
		zap.String("session", st.SessionID),
		zap.Stringer("color", color),
		zap.Stringer("status", st.Status))
	p.publish(core.EventPlayerJoined, color, &st)

	return ProcessorResponse{
		Success: true,
		Data: core.JoinResponse{
			Identity: identity,
			Color:    color,
			Token:    token,
			State:    st,
		},
	}
}

// handleMove parses and applies a UCI move
func (p *Processor) handleMove(cmd Command) ProcessorResponse {
	args, ok := cmd.Args.(core.MoveRequest)
	if !ok {
		return p.errorResponse("invalid arguments", core.ErrCodeInvalidRequest)
	}

	m, err := core.ParseMove(args.Move)
	if err != nil {
		return p.fail(err)
	}

	sess, err := p.svc.Get(cmd.SessionID)
	if err != nil {
		return p.fail(err)
	}

	res, err := sess.Move(cmd.Identity, m)
	if err != nil {
		obslog.L().Debug("session_move_rejected",
			zap.String("session", cmd.SessionID),
			zap.String("move", args.Move),
			zap.Stringer("kind", core.Classify(err)),
			zap.Error(err))
		return p.fail(err)
	}

	st := p.changed(sess)
	if store := p.svc.Store(); store != nil {
		store.RecordMove(storage.MoveRecord{
			SessionID:    st.SessionID,
			MoveNumber:   res.Record.Seq,
			MoveUCI:      res.Record.UCI,
			FENAfterMove: res.FEN,
			PlayerColor:  res.Record.Piece.Color.Short(),
			MoveTimeUTC:  res.Record.Timestamp,
		})
	}
	obslog.L().Info("session_move",
		zap.String("session", st.SessionID),
		zap.String("move", res.Record.UCI),
		zap.Bool("check", res.InCheck),
		zap.Stringer("status", res.Status))

	mover := res.Record.Piece.Color
	p.publish(core.EventMoveMade, mover, &st)
	if res.Ended {
		p.ended(&st, mover)
	}

	return ProcessorResponse{
		Success: true,
		Data: core.MoveResponse{
			Move:  res.Record,
			Ended: res.Ended,
			State: st,
		},
	}
}

func (p *Processor) handleResign(cmd Command) ProcessorResponse {
	sess, err := p.svc.Get(cmd.SessionID)
	if err != nil {
		return p.fail(err)
	}
	color, _ := sess.ColorOf(cmd.Identity)
	if err := sess.Resign(cmd.Identity); err != nil {
		return p.fail(err)
	}

	st := p.changed(sess)
	p.ended(&st, color)
	return ProcessorResponse{Success: true, Data: st}
}

func (p *Processor) handleOfferDraw(cmd Command) ProcessorResponse {
	sess, err := p.svc.Get(cmd.SessionID)
	if err != nil {
		return p.fail(err)
	}
	color, _ := sess.ColorOf(cmd.Identity)
	before := sess.Version()
	settled, err := sess.OfferDraw(cmd.Identity)
	if err != nil {
		return p.fail(err)
	}

	if settled {
		st := p.changed(sess)
		p.ended(&st, color)
		return ProcessorResponse{Success: true, Data: st}
	}
	if sess.Version() == before {
		// repeated offer, nothing changed
		return ProcessorResponse{Success: true, Data: sess.Snapshot()}
	}
	st := p.changed(sess)
	p.publish(core.EventDrawOffered, color, &st)
	return ProcessorResponse{Success: true, Data: st}
}

func (p *Processor) handleAcceptDraw(cmd Command) ProcessorResponse {
	sess, err := p.svc.Get(cmd.SessionID)
	if err != nil {
		return p.fail(err)
	}
	color, _ := sess.ColorOf(cmd.Identity)
	if err := sess.AcceptDraw(cmd.Identity); err != nil {
		return p.fail(err)
	}

	st := p.changed(sess)
	p.ended(&st, color)
	return ProcessorResponse{Success: true, Data: st}
}

func (p *Processor) handleDeclineDraw(cmd Command) ProcessorResponse {
	sess, err := p.svc.Get(cmd.SessionID)
	if err != nil {
		return p.fail(err)
	}
	color, _ := sess.ColorOf(cmd.Identity)
	if err := sess.DeclineDraw(cmd.Identity); err != nil {
		return p.fail(err)
	}

	st := p.changed(sess)
	p.publish(core.EventDrawDeclined, color, &st)
	return ProcessorResponse{Success: true, Data: st}
}

// handleDisconnect detaches a participant and drops the session once nobody
// remains attached
func (p *Processor) handleDisconnect(cmd Command) ProcessorResponse {
	sess, err := p.svc.Get(cmd.SessionID)
	if err != nil {
		return p.fail(err)
	}
	color, _ := sess.ColorOf(cmd.Identity)
	res := sess.Disconnect(cmd.Identity)
	if !res.Changed {
		return ProcessorResponse{Success: true, Data: core.DisconnectResponse{}}
	}

	st := p.changed(sess)
	// a join may have landed since Disconnect released the session
	removed := res.Removed && p.svc.RemoveIf(sess.ID(), (*game.Session).Empty)
	obslog.L().Info("session_disconnect",
		zap.String("session", st.SessionID),
		zap.Stringer("color", color),
		zap.Bool("ended", res.Ended),
		zap.Bool("removed", removed))

	resp := core.DisconnectResponse{Removed: removed}
	if !removed {
		p.publish(core.EventOpponentDisconnected, color, &st)
		resp.State = &st
	}
	if res.Ended {
		p.ended(&st, color)
	}
	return ProcessorResponse{Success: true, Data: resp}
}

func (p *Processor) handleGetSession(cmd Command) ProcessorResponse {
	sess, err := p.svc.Get(cmd.SessionID)
	if err != nil {
		return p.fail(err)
	}
	return ProcessorResponse{Success: true, Data: sess.Snapshot()}
}

// handleGetBoard returns board visualization
func (p *Processor) handleGetBoard(cmd Command) ProcessorResponse {
	sess, err := p.svc.Get(cmd.SessionID)
	if err != nil {
		return p.fail(err)
	}
	b := sess.Board()
	return ProcessorResponse{
		Success: true,
		Data: core.BoardResponse{
			FEN:   b.FEN(),
			Board: b.ToASCII(),
		},
	}
}

// changed snapshots sess after an accepted transition and wakes waiters
func (p *Processor) changed(sess *game.Session) core.SessionState {
	st := sess.Snapshot()
	p.svc.Notify(st.SessionID, st.Version)
	return st
}

// ended journals the final result and announces it
func (p *Processor) ended(st *core.SessionState, actor core.Color) {
	if store := p.svc.Store(); store != nil {
		store.RecordResult(storage.ResultRecord{
			SessionID:  st.SessionID,
			Status:     st.Status.String(),
			Reason:     st.Reason.String(),
			Winner:     winnerCode(st.Winner),
			MoveCount:  len(st.Moves),
			EndedAtUTC: st.UpdatedAt,
		})
	}
	obslog.L().Info("session_over",
		zap.String("session", st.SessionID),
		zap.Stringer("status", st.Status),
		zap.Stringer("reason", st.Reason),
		zap.String("winner", winnerCode(st.Winner)))
	p.publish(core.EventGameOver, actor, st)
}

func (p *Processor) sessionRemoved(id string) {
	obslog.L().Info("session_removed", zap.String("session", id))
	p.publish(core.EventSessionRemoved, 0, &core.SessionState{SessionID: id})
}

func (p *Processor) publish(kind string, actor core.Color, st *core.SessionState) {
	if p.events == nil {
		return
	}
	ev := core.Event{
		Type:      kind,
		SessionID: st.SessionID,
		Version:   st.Version,
		Actor:     actor,
		At:        p.now().UTC(),
	}
	if kind != core.EventSessionRemoved {
		ev.State = st
	}
	if err := p.events.Publish(ev); err != nil {
		obslog.L().Warn("event_dropped",
			zap.String("session", st.SessionID),
			zap.String("event", kind),
			zap.Error(err))
	}
}

func winnerCode(c core.Color) string {
	if !c.Valid() {
		return ""
	}
	return c.Short()
}

// fail converts a session error into an error response
func (p *Processor) fail(err error) ProcessorResponse {
	return ProcessorResponse{
		Success: false,
		Error: &core.ErrorResponse{
			Error: err.Error(),
			Code:  core.Code(err),
		},
	}
}

// errorResponse creates error response
func (p *Processor) errorResponse(message, code string) ProcessorResponse {
	return ProcessorResponse{
		Success: false,
		Error: &core.ErrorResponse{
			Error: message,
			Code:  code,
		},
	}
}

// Close drains the event queue
func (p *Processor) Close() error {
	if p.events == nil {
		return nil
	}
	return p.events.Shutdown(5 * time.Second)
}

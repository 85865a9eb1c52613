package processor

import (
	"context"
	"sync"
	"testing"
	"time"

	"chessmatch/internal/server/core"
	"chessmatch/internal/server/game"
	"chessmatch/internal/server/service"
)

type recorder struct {
	mu     sync.Mutex
	events []core.Event
}

func (r *recorder) Deliver(_ context.Context, ev core.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) types(sessionID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		if ev.SessionID == sessionID {
			out = append(out, ev.Type)
		}
	}
	return out
}

func newTestProcessor(t *testing.T) (*Processor, *service.Service, *recorder) {
	t.Helper()
	svc := service.New(nil, service.Config{
		Secret: []byte("test-secret-minimum-32-characters-long"),
	}, game.WithColorPicker(func() core.Color { return core.ColorWhite }))
	q := NewEventQueue(2, 64)
	rec := &recorder{}
	q.Subscribe(rec)
	p := New(svc, q)
	t.Cleanup(func() { p.Close() })
	return p, svc, rec
}

func mustOK(t *testing.T, resp ProcessorResponse) any {
	t.Helper()
	if !resp.Success {
		t.Fatalf("unexpected failure: %+v", resp.Error)
	}
	return resp.Data
}

func wantCode(t *testing.T, resp ProcessorResponse, code string) {
	t.Helper()
	if resp.Success {
		t.Fatalf("expected %s, got success", code)
	}
	if resp.Error.Code != code {
		t.Fatalf("code = %s (%s), want %s", resp.Error.Code, resp.Error.Error, code)
	}
}

// seat creates a session and joins two players, returning white and black
func seat(t *testing.T, p *Processor) (string, core.JoinResponse, core.JoinResponse) {
	t.Helper()
	st := mustOK(t, p.Execute(NewCreateSessionCommand())).(core.SessionState)
	white := mustOK(t, p.Execute(NewJoinCommand(st.SessionID, "", core.JoinRequest{Name: "alice"}))).(core.JoinResponse)
	black := mustOK(t, p.Execute(NewJoinCommand(st.SessionID, "", core.JoinRequest{Name: "bob"}))).(core.JoinResponse)
	return st.SessionID, white, black
}

func move(p *Processor, id, identity, uci string) ProcessorResponse {
	return p.Execute(NewMoveCommand(id, identity, core.MoveRequest{Move: uci}))
}

func TestJoinIssuesTokens(t *testing.T) {
	p, svc, _ := newTestProcessor(t)
	id, white, black := seat(t, p)

	if white.Color != core.ColorWhite || black.Color != core.ColorBlack {
		t.Fatalf("colors = %v/%v", white.Color, black.Color)
	}
	if black.State.Status != core.StatusActive {
		t.Fatalf("status = %v", black.State.Status)
	}
	part, err := svc.ValidateToken(black.Token, id)
	if err != nil {
		t.Fatal(err)
	}
	if part.Identity != black.Identity || part.Color != core.ColorBlack {
		t.Fatalf("token participant = %+v", part)
	}

	wantCode(t, p.Execute(NewJoinCommand(id, "", core.JoinRequest{Name: "carol"})), core.ErrCodeSessionFull)

	// re-attach keeps the seat
	again := mustOK(t, p.Execute(NewJoinCommand(id, white.Identity, core.JoinRequest{}))).(core.JoinResponse)
	if again.Color != core.ColorWhite {
		t.Fatalf("rejoin color = %v", again.Color)
	}
	if again.Token == "" || again.State.Version != black.State.Version {
		t.Fatalf("rejoin token %q version %d, want version %d", again.Token, again.State.Version, black.State.Version)
	}
}

func TestRejoinPublishesNothing(t *testing.T) {
	p, _, rec := newTestProcessor(t)
	id, white, _ := seat(t, p)
	mustOK(t, p.Execute(NewJoinCommand(id, white.Identity, core.JoinRequest{})))

	p.Close()
	joined := 0
	for _, typ := range rec.types(id) {
		if typ == core.EventPlayerJoined {
			joined++
		}
	}
	if joined != 2 {
		t.Fatalf("player_joined events = %d, want 2", joined)
	}
}

func TestMoveFlowAndCheckmate(t *testing.T) {
	p, _, rec := newTestProcessor(t)
	id, white, black := seat(t, p)

	wantCode(t, move(p, id, black.Identity, "e7e5"), core.ErrCodeNotYourTurn)
	wantCode(t, move(p, id, white.Identity, "e2e5"), core.ErrCodeInvalidMove)
	wantCode(t, move(p, id, white.Identity, "zz"), core.ErrCodeInvalidMove)
	wantCode(t, move(p, id, "stranger", "e2e4"), core.ErrCodeNotParticipant)
	wantCode(t, move(p, "NOPE00", white.Identity, "e2e4"), core.ErrCodeGameNotFound)

	mustOK(t, move(p, id, white.Identity, "f2f3"))
	mustOK(t, move(p, id, black.Identity, "e7e5"))
	mustOK(t, move(p, id, white.Identity, "g2g4"))
	resp := mustOK(t, move(p, id, black.Identity, "d8h4")).(core.MoveResponse)

	if !resp.Ended || resp.State.Status != core.StatusCheckmate || resp.State.Winner != core.ColorBlack {
		t.Fatalf("result = ended %v status %v winner %v", resp.Ended, resp.State.Status, resp.State.Winner)
	}
	if resp.Move.UCI != "d8h4" || resp.Move.Seq != 4 {
		t.Fatalf("move record = %+v", resp.Move)
	}
	wantCode(t, move(p, id, white.Identity, "e2e4"), core.ErrCodeGameOver)

	p.Close()
	got := rec.types(id)
	want := []string{
		core.EventSessionCreated, core.EventPlayerJoined, core.EventPlayerJoined,
		core.EventMoveMade, core.EventMoveMade, core.EventMoveMade, core.EventMoveMade,
		core.EventGameOver,
	}
	if len(got) != len(want) {
		t.Fatalf("events = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d = %s, want %s (all %v)", i, got[i], want[i], got)
		}
	}
}

func TestDrawFlow(t *testing.T) {
	p, _, rec := newTestProcessor(t)
	id, white, black := seat(t, p)

	wantCode(t, p.Execute(NewAcceptDrawCommand(id, black.Identity)), core.ErrCodeNoDrawOffer)

	st := mustOK(t, p.Execute(NewOfferDrawCommand(id, white.Identity))).(core.SessionState)
	if st.DrawOfferedBy != core.ColorWhite {
		t.Fatalf("drawOfferedBy = %v", st.DrawOfferedBy)
	}
	// repeated offer changes nothing
	again := mustOK(t, p.Execute(NewOfferDrawCommand(id, white.Identity))).(core.SessionState)
	if again.Version != st.Version {
		t.Fatalf("repeat offer bumped version %d -> %d", st.Version, again.Version)
	}

	mustOK(t, p.Execute(NewDeclineDrawCommand(id, black.Identity)))
	mustOK(t, p.Execute(NewOfferDrawCommand(id, black.Identity)))
	final := mustOK(t, p.Execute(NewAcceptDrawCommand(id, white.Identity))).(core.SessionState)
	if final.Status != core.StatusDraw || final.Reason != core.ReasonAgreement {
		t.Fatalf("final = %v %v", final.Status, final.Reason)
	}

	p.Close()
	got := rec.types(id)
	tail := got[len(got)-4:]
	want := []string{core.EventDrawOffered, core.EventDrawDeclined, core.EventDrawOffered, core.EventGameOver}
	for i := range want {
		if tail[i] != want[i] {
			t.Fatalf("events = %v", got)
		}
	}
}

func TestResign(t *testing.T) {
	p, _, _ := newTestProcessor(t)
	id, white, black := seat(t, p)

	wantCode(t, p.Execute(NewResignCommand(id, "stranger")), core.ErrCodeNotParticipant)
	st := mustOK(t, p.Execute(NewResignCommand(id, white.Identity))).(core.SessionState)
	if st.Status != core.StatusResigned || st.Winner != core.ColorBlack {
		t.Fatalf("state = %v winner %v", st.Status, st.Winner)
	}
	wantCode(t, p.Execute(NewResignCommand(id, black.Identity)), core.ErrCodeGameOver)
}

func TestDisconnectWhileWaitingRemovesSession(t *testing.T) {
	p, svc, rec := newTestProcessor(t)
	st := mustOK(t, p.Execute(NewCreateSessionCommand())).(core.SessionState)
	j := mustOK(t, p.Execute(NewJoinCommand(st.SessionID, "", core.JoinRequest{}))).(core.JoinResponse)

	resp := mustOK(t, p.Execute(NewDisconnectCommand(st.SessionID, j.Identity))).(core.DisconnectResponse)
	if !resp.Removed || resp.State != nil {
		t.Fatalf("disconnect = %+v", resp)
	}
	if svc.Count() != 0 {
		t.Fatalf("registry still holds %d sessions", svc.Count())
	}
	wantCode(t, p.Execute(NewGetSessionCommand(st.SessionID)), core.ErrCodeGameNotFound)

	p.Close()
	got := rec.types(st.SessionID)
	if got[len(got)-1] != core.EventSessionRemoved {
		t.Fatalf("events = %v", got)
	}
}

func TestDisconnectStrangerKeepsSession(t *testing.T) {
	p, svc, rec := newTestProcessor(t)
	st := mustOK(t, p.Execute(NewCreateSessionCommand())).(core.SessionState)

	resp := mustOK(t, p.Execute(NewDisconnectCommand(st.SessionID, "nobody"))).(core.DisconnectResponse)
	if resp.Removed || resp.State != nil {
		t.Fatalf("disconnect = %+v", resp)
	}
	if svc.Count() != 1 {
		t.Fatalf("registry holds %d sessions", svc.Count())
	}
	j := mustOK(t, p.Execute(NewJoinCommand(st.SessionID, "", core.JoinRequest{Name: "alice"}))).(core.JoinResponse)
	if j.State.Version != st.Version+1 {
		t.Fatalf("version = %d, want %d", j.State.Version, st.Version+1)
	}

	p.Close()
	for _, typ := range rec.types(st.SessionID) {
		if typ == core.EventSessionRemoved || typ == core.EventOpponentDisconnected {
			t.Fatalf("events = %v", rec.types(st.SessionID))
		}
	}
}

func TestDisconnectAbandonsActiveGame(t *testing.T) {
	p, _, rec := newTestProcessor(t)
	id, white, black := seat(t, p)

	resp := mustOK(t, p.Execute(NewDisconnectCommand(id, black.Identity))).(core.DisconnectResponse)
	if resp.Removed || resp.State == nil {
		t.Fatalf("disconnect = %+v", resp)
	}
	if resp.State.Status != core.StatusAbandoned || resp.State.Winner != core.ColorWhite {
		t.Fatalf("state = %v winner %v", resp.State.Status, resp.State.Winner)
	}

	// idempotent
	again := mustOK(t, p.Execute(NewDisconnectCommand(id, black.Identity))).(core.DisconnectResponse)
	if again.Removed || again.State != nil {
		t.Fatalf("second disconnect = %+v", again)
	}

	last := mustOK(t, p.Execute(NewDisconnectCommand(id, white.Identity))).(core.DisconnectResponse)
	if !last.Removed {
		t.Fatal("session should be removed once both left")
	}

	p.Close()
	got := rec.types(id)
	want := []string{core.EventOpponentDisconnected, core.EventGameOver, core.EventSessionRemoved}
	tail := got[len(got)-3:]
	for i := range want {
		if tail[i] != want[i] {
			t.Fatalf("events = %v", got)
		}
	}
}

func TestGetBoard(t *testing.T) {
	p, _, _ := newTestProcessor(t)
	id, white, _ := seat(t, p)
	mustOK(t, move(p, id, white.Identity, "e2e4"))

	b := mustOK(t, p.Execute(NewGetBoardCommand(id))).(core.BoardResponse)
	if b.FEN != "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b - - 0 1" {
		t.Fatalf("fen = %q", b.FEN)
	}
	if b.Board == "" {
		t.Fatal("empty ascii board")
	}
}

func TestUnknownCommand(t *testing.T) {
	p, _, _ := newTestProcessor(t)
	wantCode(t, p.Execute(Command{Type: CommandType(99)}), core.ErrCodeInvalidRequest)
}

func TestEventQueueOrdersPerSession(t *testing.T) {
	q := NewEventQueue(4, 128)
	rec := &recorder{}
	q.Subscribe(rec)

	sessions := []string{"AAAAAA", "BBBBBB", "CCCCCC"}
	for v := uint64(1); v <= 30; v++ {
		for _, id := range sessions {
			if err := q.Publish(core.Event{Type: core.EventMoveMade, SessionID: id, Version: v}); err != nil {
				t.Fatal(err)
			}
		}
	}
	if err := q.Shutdown(time.Second); err != nil {
		t.Fatal(err)
	}

	last := map[string]uint64{}
	for _, ev := range rec.events {
		if ev.Version != last[ev.SessionID]+1 {
			t.Fatalf("session %s: version %d after %d", ev.SessionID, ev.Version, last[ev.SessionID])
		}
		last[ev.SessionID] = ev.Version
	}
	if len(rec.events) != 90 {
		t.Fatalf("delivered %d events, want 90", len(rec.events))
	}

	if err := q.Publish(core.Event{SessionID: "AAAAAA"}); err != ErrQueueClosed {
		t.Fatalf("publish after shutdown err = %v", err)
	}
	if err := q.Shutdown(time.Second); err != nil {
		t.Fatalf("second shutdown err = %v", err)
	}
}

func TestEventQueueFull(t *testing.T) {
	q := NewEventQueue(1, 1)
	release := make(chan struct{})
	q.Subscribe(SubscriberFunc(func(ctx context.Context, ev core.Event) error {
		<-release
		return nil
	}))

	var full bool
	for i := 0; i < 5; i++ {
		if err := q.Publish(core.Event{SessionID: "AAAAAA"}); err == ErrQueueFull {
			full = true
			break
		}
	}
	close(release)
	if !full {
		t.Fatal("expected ErrQueueFull with a blocked worker")
	}
	q.Shutdown(time.Second)
}

package webserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"chessmatch/internal/server/core"
	"chessmatch/internal/server/game"
	"chessmatch/internal/server/obslog"
	"chessmatch/internal/server/processor"
	"chessmatch/internal/server/service"
)

type fixture struct {
	srv  *httptest.Server
	proc *processor.Processor
	svc  *service.Service
	hub  *Hub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	svc := service.New(nil, service.Config{
		Secret: []byte("test-secret-minimum-32-characters-long"),
	}, game.WithColorPicker(func() core.Color { return core.ColorWhite }))
	q := processor.NewEventQueue(2, 64)
	hub := NewHub()
	q.Subscribe(hub)
	proc := processor.New(svc, q)

	s, err := New(proc, svc, hub, "http://api.test")
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(s)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
		proc.Close()
	})
	return &fixture{srv: srv, proc: proc, svc: svc, hub: hub}
}

func (f *fixture) seat(t *testing.T) (string, core.JoinResponse, core.JoinResponse) {
	t.Helper()
	resp := f.proc.Execute(processor.NewCreateSessionCommand())
	if !resp.Success {
		t.Fatalf("create: %+v", resp.Error)
	}
	id := resp.Data.(core.SessionState).SessionID
	w := f.proc.Execute(processor.NewJoinCommand(id, "", core.JoinRequest{Name: "alice"}))
	b := f.proc.Execute(processor.NewJoinCommand(id, "", core.JoinRequest{Name: "bob"}))
	if !w.Success || !b.Success {
		t.Fatalf("join: %+v %+v", w.Error, b.Error)
	}
	return id, w.Data.(core.JoinResponse), b.Data.(core.JoinResponse)
}

func (f *fixture) dial(t *testing.T, sessionID, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws/sessions/" + sessionID + "?token=" + token
	return websocket.Dial(ctx, url, nil)
}

// next reads frames until one of the wanted type arrives
func next(t *testing.T, conn *websocket.Conn, want string) core.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		var ev core.Event
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			t.Fatalf("waiting for %s: %v", want, err)
		}
		if ev.Type == want {
			return ev
		}
	}
}

func TestSocketSnapshotAndMove(t *testing.T) {
	f := newFixture(t)
	id, white, black := f.seat(t)

	wc, _, err := f.dial(t, id, white.Token)
	if err != nil {
		t.Fatal(err)
	}
	defer wc.Close(websocket.StatusNormalClosure, "")
	bc, _, err := f.dial(t, id, black.Token)
	if err != nil {
		t.Fatal(err)
	}
	defer bc.Close(websocket.StatusNormalClosure, "")

	snap := next(t, wc, core.EventSnapshot)
	if snap.State == nil || snap.State.Status != core.StatusActive {
		t.Fatalf("snapshot = %+v", snap)
	}
	next(t, bc, core.EventSnapshot)

	ctx := context.Background()
	if err := wsjson.Write(ctx, wc, core.ClientMessage{Type: core.ClientMove, Move: "e2e4"}); err != nil {
		t.Fatal(err)
	}
	ev := next(t, bc, core.EventMoveMade)
	if ev.Actor != core.ColorWhite || ev.State.Turn != core.ColorBlack {
		t.Fatalf("move_made = actor %v turn %v", ev.Actor, ev.State.Turn)
	}
	next(t, wc, core.EventMoveMade)

	// out of turn is reported to the sender only
	if err := wsjson.Write(ctx, wc, core.ClientMessage{Type: core.ClientMove, Move: "d2d4"}); err != nil {
		t.Fatal(err)
	}
	rej := next(t, wc, core.EventError)
	if rej.Error == nil || rej.Error.Code != core.ErrCodeNotYourTurn {
		t.Fatalf("error frame = %+v", rej.Error)
	}

	if err := wsjson.Write(ctx, bc, core.ClientMessage{Type: "castle_everything"}); err != nil {
		t.Fatal(err)
	}
	if rej := next(t, bc, core.EventError); rej.Error.Code != core.ErrCodeInvalidRequest {
		t.Fatalf("unknown type code = %s", rej.Error.Code)
	}
}

func TestSocketRejectsBadTokens(t *testing.T) {
	f := newFixture(t)
	id, white, _ := f.seat(t)
	other, _, _ := f.seat(t)

	_, resp, err := f.dial(t, id, "garbage")
	if err == nil {
		t.Fatal("dial with bad token succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token response = %v", resp)
	}

	_, resp, err = f.dial(t, other, white.Token)
	if err == nil {
		t.Fatal("dial into another session succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("cross-session response = %v", resp)
	}
}

func TestSocketCloseAbandonsGame(t *testing.T) {
	f := newFixture(t)
	id, white, black := f.seat(t)

	wc, _, err := f.dial(t, id, white.Token)
	if err != nil {
		t.Fatal(err)
	}
	bc, _, err := f.dial(t, id, black.Token)
	if err != nil {
		t.Fatal(err)
	}
	defer bc.Close(websocket.StatusNormalClosure, "")
	next(t, wc, core.EventSnapshot)
	next(t, bc, core.EventSnapshot)

	wc.Close(websocket.StatusNormalClosure, "bye")

	over := next(t, bc, core.EventGameOver)
	if over.State.Status != core.StatusAbandoned || over.State.Winner != core.ColorBlack {
		t.Fatalf("game_over = %v winner %v", over.State.Status, over.State.Winner)
	}
}

func TestSecondSocketKeepsSeat(t *testing.T) {
	f := newFixture(t)
	id, white, _ := f.seat(t)

	first, _, err := f.dial(t, id, white.Token)
	if err != nil {
		t.Fatal(err)
	}
	second, _, err := f.dial(t, id, white.Token)
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close(websocket.StatusNormalClosure, "")
	next(t, first, core.EventSnapshot)
	next(t, second, core.EventSnapshot)

	first.Close(websocket.StatusNormalClosure, "")

	deadline := time.Now().Add(2 * time.Second)
	for f.hub.Clients(id) != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("clients = %d", f.hub.Clients(id))
		}
		time.Sleep(10 * time.Millisecond)
	}
	sess, err := f.svc.Get(id)
	if err != nil {
		t.Fatal(err)
	}
	if sess.Status() != core.StatusActive {
		t.Fatalf("status = %v after closing one of two sockets", sess.Status())
	}
}

func TestConfigAndStatic(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.srv.URL + "/config")
	if err != nil {
		t.Fatal(err)
	}
	var cfg map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if cfg["apiUrl"] != "http://api.test" {
		t.Fatalf("config = %v", cfg)
	}

	for path, wantType := range map[string]string{
		"/":              "text/html",
		"/app.js":        "application/javascript",
		"/some/sub/page": "text/html",
	} {
		resp, err := http.Get(f.srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK || !strings.HasPrefix(resp.Header.Get("Content-Type"), wantType) {
			t.Fatalf("%s: %d %s", path, resp.StatusCode, resp.Header.Get("Content-Type"))
		}
		if len(body) == 0 {
			t.Fatalf("%s: empty body", path)
		}
	}
}

func TestClientSkipsStaleState(t *testing.T) {
	c := newClient(nil, "S1", "a", core.ColorWhite)
	state := func(v uint64) core.Event {
		return core.Event{Type: core.EventMoveMade, SessionID: "S1", Version: v, State: &core.SessionState{Version: v}}
	}

	for _, tc := range []struct {
		ev   core.Event
		want bool
	}{
		{state(3), true},
		{state(3), true}, // game_over shares the move's version
		{state(2), false},
		{errorEvent("S1", &core.ErrorResponse{Code: core.ErrCodeNotYourTurn}), true},
		{core.Event{Type: core.EventSessionRemoved, SessionID: "S1"}, true},
		{state(4), true},
	} {
		if got := c.current(tc.ev); got != tc.want {
			t.Errorf("%s v%d: current = %v, want %v", tc.ev.Type, tc.ev.Version, got, tc.want)
		}
	}
}

func TestHandlerLogsAndRecovers(t *testing.T) {
	obs, logs := observer.New(zapcore.InfoLevel)
	restore := obslog.Replace(zap.New(obs))
	defer restore()

	svc := service.New(nil, service.Config{Secret: []byte("test-secret-minimum-32-characters-long")})
	proc := processor.New(svc, nil)
	s, err := New(proc, svc, NewHub(), "http://api.test")
	if err != nil {
		t.Fatal(err)
	}
	s.router.HandleFunc("/boom", func(http.ResponseWriter, *http.Request) { panic("boom") })
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	// the static catch-all only answers GET, so POST reaches the panicking route
	for _, tc := range []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/config", http.StatusOK},
		{http.MethodPost, "/boom", http.StatusInternalServerError},
	} {
		req, _ := http.NewRequest(tc.method, srv.URL+tc.path, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != tc.want {
			t.Fatalf("%s %s: status %d, want %d", tc.method, tc.path, resp.StatusCode, tc.want)
		}
	}

	access := logs.FilterMessage("web_access").All()
	if len(access) != 2 {
		t.Fatalf("access entries = %d", len(access))
	}
	fields := access[0].ContextMap()
	if fields["path"] != "/config" || fields["status"] != int64(http.StatusOK) {
		t.Fatalf("access fields = %v", fields)
	}
	if logs.FilterMessageSnippet("boom").Len() == 0 {
		t.Fatal("panic not logged")
	}
}

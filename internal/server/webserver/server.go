// Package webserver serves the browser client and the participant
// websocket on a plain net/http stack.
package webserver

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"chessmatch/internal/server/core"
	"chessmatch/internal/server/obslog"
	"chessmatch/internal/server/processor"
	"chessmatch/internal/server/service"
)

//go:embed web
var webFS embed.FS

// Server routes the static UI, its config and the websocket endpoint
type Server struct {
	router  *mux.Router
	hub     *Hub
	proc    *processor.Processor
	svc     *service.Service
	apiURL  string
	content fs.FS
	origins []string
}

// New builds the router. hub must also be subscribed to the processor's
// event queue for sockets to receive updates.
func New(proc *processor.Processor, svc *service.Service, hub *Hub, apiURL string) (*Server, error) {
	content, err := fs.Sub(webFS, "web")
	if err != nil {
		return nil, fmt.Errorf("failed to create web sub-filesystem: %w", err)
	}

	s := &Server{
		router:  mux.NewRouter(),
		hub:     hub,
		proc:    proc,
		svc:     svc,
		apiURL:  apiURL,
		content: content,
		origins: []string{"*"},
	}
	s.router.HandleFunc("/config", s.handleConfig).Methods(http.MethodGet)
	s.router.HandleFunc("/ws/sessions/{id:[0-9A-Z]{6}}", s.handleSocket)
	s.router.PathPrefix("/").HandlerFunc(s.handleStatic).Methods(http.MethodGet)
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the server wrapped in panic recovery and an access log,
// both written through the process logger
func (s *Server) Handler() http.Handler {
	recovered := handlers.RecoveryHandler(
		handlers.RecoveryLogger(zap.NewStdLog(obslog.L().Named("web"))),
	)(s)
	return handlers.CustomLoggingHandler(io.Discard, recovered, accessLog)
}

func accessLog(_ io.Writer, p handlers.LogFormatterParams) {
	obslog.L().Info("web_access",
		zap.String("method", p.Request.Method),
		zap.String("path", p.URL.Path),
		zap.Int("status", p.StatusCode),
		zap.Int("size", p.Size),
		zap.String("remote", p.Request.RemoteAddr),
		zap.Duration("took", time.Since(p.TimeStamp)))
}

// ListenAndServe runs until ctx is cancelled, then shuts down gracefully
func ListenAndServe(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"apiUrl": s.apiURL})
}

// handleStatic serves embedded files, falling back to index.html for
// client-side routes
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	if path == "/" {
		path = "/index.html"
	}
	fsPath := strings.TrimPrefix(path, "/")

	data, err := fs.ReadFile(s.content, fsPath)
	if err != nil {
		data, err = fs.ReadFile(s.content, "index.html")
		if err != nil {
			http.Error(w, "index.html not found", http.StatusInternalServerError)
			return
		}
		fsPath = "index.html"
	}

	contentType := "application/octet-stream"
	switch {
	case strings.HasSuffix(fsPath, ".html"):
		contentType = "text/html; charset=utf-8"
	case strings.HasSuffix(fsPath, ".js"):
		contentType = "application/javascript; charset=utf-8"
	case strings.HasSuffix(fsPath, ".css"):
		contentType = "text/css; charset=utf-8"
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleSocket upgrades a participant connection. The token travels in the
// query string since browsers cannot set headers on a websocket handshake.
func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	p, err := s.svc.ValidateToken(r.URL.Query().Get("token"), sessionID)
	switch {
	case errors.Is(err, service.ErrWrongSession):
		writeJSON(w, http.StatusForbidden, core.ErrorResponse{Error: err.Error(), Code: core.ErrCodeForbidden})
		return
	case err != nil:
		writeJSON(w, http.StatusUnauthorized, core.ErrorResponse{Error: "invalid or expired token", Code: core.ErrCodeUnauthorized})
		return
	}

	sess, err := s.svc.Get(sessionID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, core.ErrorResponse{Error: err.Error(), Code: core.ErrCodeGameNotFound})
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.origins})
	if err != nil {
		obslog.L().Warn("ws_accept_failed", zap.String("session", sessionID), zap.Error(err))
		return
	}

	c := newClient(conn, sessionID, p.Identity, p.Color)
	if !s.hub.register(c) {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	go c.writeLoop()
	obslog.L().Info("ws_connect", zap.String("session", sessionID), zap.Stringer("color", p.Color))

	st := sess.Snapshot()
	c.enqueue(core.Event{
		Type:      core.EventSnapshot,
		SessionID: sessionID,
		Version:   st.Version,
		State:     &st,
		At:        time.Now().UTC(),
	})

	s.readLoop(r.Context(), c)

	last := s.hub.unregister(c)
	c.close(websocket.StatusNormalClosure, "")
	obslog.L().Info("ws_disconnect", zap.String("session", sessionID), zap.Stringer("color", p.Color), zap.Bool("last", last))
	if last {
		// a closed socket is a disconnect, as if the participant left
		s.proc.Execute(processor.NewDisconnectCommand(sessionID, p.Identity))
	}
}

func (s *Server) readLoop(ctx context.Context, c *client) {
	for {
		var msg core.ClientMessage
		if err := wsjson.Read(ctx, c.conn, &msg); err != nil {
			return
		}

		cmd, ok := commandFor(c, msg)
		if !ok {
			c.enqueue(errorEvent(c.sessionID, &core.ErrorResponse{
				Error: fmt.Sprintf("unknown message type %q", msg.Type),
				Code:  core.ErrCodeInvalidRequest,
			}))
			continue
		}
		if resp := s.proc.Execute(cmd); !resp.Success {
			c.enqueue(errorEvent(c.sessionID, resp.Error))
		}
	}
}

func commandFor(c *client, msg core.ClientMessage) (processor.Command, bool) {
	switch msg.Type {
	case core.ClientMove:
		return processor.NewMoveCommand(c.sessionID, c.identity, core.MoveRequest{Move: msg.Move}), true
	case core.ClientResign:
		return processor.NewResignCommand(c.sessionID, c.identity), true
	case core.ClientOfferDraw:
		return processor.NewOfferDrawCommand(c.sessionID, c.identity), true
	case core.ClientAcceptDraw:
		return processor.NewAcceptDrawCommand(c.sessionID, c.identity), true
	case core.ClientDeclineDraw:
		return processor.NewDeclineDrawCommand(c.sessionID, c.identity), true
	default:
		return processor.Command{}, false
	}
}

func errorEvent(sessionID string, e *core.ErrorResponse) core.Event {
	return core.Event{
		Type:      core.EventError,
		SessionID: sessionID,
		Error:     e,
		At:        time.Now().UTC(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

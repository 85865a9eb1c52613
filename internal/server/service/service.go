package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"chessmatch/internal/server/core"
	"chessmatch/internal/server/game"
	"chessmatch/internal/server/obslog"
	"chessmatch/internal/server/storage"

	"go.uber.org/zap"
)

const (
	IDLength           = 6
	idAlphabet         = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	maxIDAttempts      = 32
	DefaultWaitingTTL  = 30 * time.Minute
	CleanupJobInterval = 1 * time.Minute
)

// Config tunes registry behavior
type Config struct {
	WaitingTTL   time.Duration // waiting sessions older than this are reaped
	InitialClock time.Duration // tracked per player, never enforced
	Secret       []byte        // HS256 key for participant tokens
	TokenTTL     time.Duration
}

// Service is the session registry. Its lock guards only the id map;
// each session serializes its own operations.
type Service struct {
	sessions map[string]*game.Session
	mu       sync.RWMutex
	store    *storage.Store
	waiter   *WaitRegistry
	cfg      Config

	newID       func() (string, error)
	sessionOpts []game.Option
	onRemove    func(id string)
}

// New creates a registry with optional storage
func New(store *storage.Store, cfg Config, opts ...game.Option) *Service {
	if cfg.WaitingTTL <= 0 {
		cfg.WaitingTTL = DefaultWaitingTTL
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	if cfg.InitialClock > 0 {
		opts = append(opts, game.WithInitialClock(cfg.InitialClock))
	}
	return &Service{
		sessions:    make(map[string]*game.Session),
		store:       store,
		waiter:      NewWaitRegistry(),
		cfg:         cfg,
		newID:       GenerateSessionID,
		sessionOpts: opts,
	}
}

// GenerateSessionID returns six upper case base36 characters
func GenerateSessionID() (string, error) {
	b := make([]byte, IDLength)
	max := big.NewInt(int64(len(idAlphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = idAlphabet[n.Int64()]
	}
	return string(b), nil
}

// Create allocates a fresh waiting session under an id that is neither live
// nor already in the journal
func (s *Service) Create() (*game.Session, error) {
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id, err := s.newID()
		if err != nil {
			return nil, fmt.Errorf("generate session id: %w", err)
		}
		if s.journaled(id) {
			continue
		}

		s.mu.Lock()
		if _, taken := s.sessions[id]; taken {
			s.mu.Unlock()
			continue
		}
		sess := game.New(id, s.sessionOpts...)
		s.sessions[id] = sess
		s.mu.Unlock()
		return sess, nil
	}
	return nil, errors.New("could not allocate a unique session id")
}

// journaled reports whether id already names a journaled session. Lookup
// failures are logged and treated as unused; the journal tolerates reuse.
func (s *Service) journaled(id string) bool {
	if s.store == nil || !s.store.IsHealthy() {
		return false
	}
	found, err := s.store.HasSession(id)
	if err != nil {
		obslog.L().Warn("session_id_lookup_failed", zap.String("session", id), zap.Error(err))
		return false
	}
	return found
}

// Get looks up a live session
func (s *Service) Get(id string) (*game.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrSessionNotFound, id)
	}
	return sess, nil
}

// Remove drops a session and releases its waiters. Removing an unknown id
// is a no-op.
func (s *Service) Remove(id string) bool {
	return s.RemoveIf(id, nil)
}

// RemoveIf drops a session only if cond holds for it. cond runs under the
// registry lock, so no lookup can hand out the session between the check
// and the removal. A nil cond always holds.
func (s *Service) RemoveIf(id string, cond func(*game.Session) bool) bool {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok && cond != nil && !cond(sess) {
		ok = false
	}
	if ok {
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	if ok {
		s.waiter.RemoveGame(id)
		if s.onRemove != nil {
			s.onRemove(id)
		}
	}
	return ok
}

// OnRemove registers fn to run after a session leaves the registry. It must
// be set before the service is shared.
func (s *Service) OnRemove(fn func(id string)) {
	s.onRemove = fn
}

// Count returns the number of live sessions
func (s *Service) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Store exposes the journal, nil when persistence is disabled
func (s *Service) Store() *storage.Store {
	return s.store
}

// GetStorageHealth returns the storage component status
func (s *Service) GetStorageHealth() string {
	if s.store == nil {
		return "disabled"
	}
	if s.store.IsHealthy() {
		return "ok"
	}
	return "degraded"
}

// RegisterWait registers a client to wait for a session version change
func (s *Service) RegisterWait(ctx context.Context, sessionID string, version uint64) <-chan struct{} {
	return s.waiter.RegisterWait(ctx, sessionID, version)
}

// Notify wakes long-poll clients of a session
func (s *Service) Notify(sessionID string, version uint64) {
	s.waiter.NotifyGame(sessionID, version)
}

// Shutdown gracefully shuts down the service
func (s *Service) Shutdown(timeout time.Duration) error {
	var errs []error

	if err := s.waiter.Shutdown(timeout); err != nil {
		errs = append(errs, fmt.Errorf("wait registry: %w", err))
	}

	s.mu.Lock()
	s.sessions = make(map[string]*game.Session)
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	return errors.Join(errs...)
}

// RunCleanupJob periodically reaps stale sessions until ctx is done
func (s *Service) RunCleanupJob(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := s.ReapIdle(now); n > 0 {
				obslog.L().Info("session_reap", zap.Int("removed", n), zap.Int("live", s.Count()))
			}
		}
	}
}

// ReapIdle removes waiting sessions idle past the TTL and started sessions
// with nobody attached. It returns the number removed.
func (s *Service) ReapIdle(now time.Time) int {
	s.mu.RLock()
	var stale []string
	for id, sess := range s.sessions {
		if s.stale(sess, now) {
			stale = append(stale, id)
		}
	}
	s.mu.RUnlock()

	removed := 0
	for _, id := range stale {
		if s.RemoveIf(id, func(sess *game.Session) bool { return s.stale(sess, now) }) {
			removed++
		}
	}
	return removed
}

func (s *Service) stale(sess *game.Session, now time.Time) bool {
	if sess.Status() == core.StatusWaiting {
		return now.Sub(sess.IdleSince()) > s.cfg.WaitingTTL
	}
	return sess.Empty()
}

package service

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const (
	// WaitTimeout is the maximum time a client can wait for notifications
	WaitTimeout = 25 * time.Second

	// WaitChannelBuffer size for notification channels
	WaitChannelBuffer = 1
)

// WaitRegistry manages long-polling clients waiting for session changes
type WaitRegistry struct {
	mu       sync.RWMutex
	waiters  map[string][]*WaitRequest // sessionID → waiting clients
	shutdown chan struct{}
	once     sync.Once
	wg       sync.WaitGroup
	timeout  time.Duration
}

// WaitRequest represents a single client waiting for session updates
type WaitRequest struct {
	Version   uint64          // Last version the client saw
	Notify    chan struct{}   // Buffered channel for notifications
	Timer     *time.Timer     // Timeout timer
	Context   context.Context // Client connection context
	SessionID string
}

// NewWaitRegistry creates a new wait registry
func NewWaitRegistry() *WaitRegistry {
	return &WaitRegistry{
		waiters:  make(map[string][]*WaitRequest),
		shutdown: make(chan struct{}),
		timeout:  WaitTimeout,
	}
}

// RegisterWait returns a channel that fires when the session moves past
// version, the wait times out, or the session is removed
func (w *WaitRegistry) RegisterWait(ctx context.Context, sessionID string, version uint64) <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()

	req := &WaitRequest{
		Version:   version,
		Notify:    make(chan struct{}, WaitChannelBuffer),
		Context:   ctx,
		SessionID: sessionID,
	}

	req.Timer = time.AfterFunc(w.timeout, func() {
		w.signal(req)
	})

	w.waiters[sessionID] = append(w.waiters[sessionID], req)

	out := make(chan struct{})
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer close(out)
		select {
		case <-ctx.Done():
		case <-req.Notify:
		case <-w.shutdown:
		}
		req.Timer.Stop()
		w.removeWaiter(sessionID, req)
	}()

	return out
}

// NotifyGame wakes every waiter of a session whose known version is stale
func (w *WaitRegistry) NotifyGame(sessionID string, version uint64) {
	w.mu.RLock()
	waitList := append([]*WaitRequest(nil), w.waiters[sessionID]...)
	w.mu.RUnlock()

	for _, req := range waitList {
		if req.Version != version {
			w.signal(req)
		}
	}
}

// RemoveGame releases all waiters for a session (called on removal)
func (w *WaitRegistry) RemoveGame(sessionID string) {
	w.mu.Lock()
	waitList := w.waiters[sessionID]
	delete(w.waiters, sessionID)
	w.mu.Unlock()

	for _, req := range waitList {
		w.signal(req)
	}
}

// Pending returns the number of clients waiting on a session
func (w *WaitRegistry) Pending(sessionID string) int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.waiters[sessionID])
}

// Shutdown releases every waiter and waits for their goroutines
func (w *WaitRegistry) Shutdown(timeout time.Duration) error {
	w.once.Do(func() { close(w.shutdown) })

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("wait registry shutdown timed out")
	}
}

// signal is non-blocking; a full buffer means the waiter is already woken
func (w *WaitRegistry) signal(req *WaitRequest) {
	select {
	case req.Notify <- struct{}{}:
	default:
	}
}

func (w *WaitRegistry) removeWaiter(sessionID string, req *WaitRequest) {
	w.mu.Lock()
	defer w.mu.Unlock()

	waitList := w.waiters[sessionID]
	for i, waiter := range waitList {
		if waiter == req {
			w.waiters[sessionID] = append(waitList[:i], waitList[i+1:]...)
			break
		}
	}

	if len(w.waiters[sessionID]) == 0 {
		delete(w.waiters, sessionID)
	}
}

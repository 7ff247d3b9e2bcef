package session

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/puzpuzpuz/xsync/v2"
	"go.uber.org/zap"
)

// ErrSessionActive means the widget already has a live session; a second
// poll loop must never start while one is active.
var ErrSessionActive = errors.New("a payment session is already in progress")

// terminalRetention keeps finished sessions readable for a while so the
// presentation layer can still fetch the terminal snapshot.
const terminalRetention = 30 * time.Minute

// Manager owns the live controllers: lookup by session id plus the
// one-active-session-per-widget guarantee. Sessions run on the manager's
// context, not the request's: a payment keeps settling long after the
// create-session response has been written.
type Manager struct {
	ctx      context.Context
	logger   *zap.Logger
	backend  Backend
	opts     Options
	sessions *xsync.MapOf[string, *Controller]
	active   *xsync.MapOf[string, *Controller]
}

// NewManager binds the manager to ctx; cancelling it ends every running
// session.
func NewManager(ctx context.Context, logger *zap.Logger, b Backend, opts Options) *Manager {
	return &Manager{
		ctx:      ctx,
		logger:   logger,
		backend:  b,
		opts:     opts,
		sessions: xsync.NewMapOf[*Controller](),
		active:   xsync.NewMapOf[*Controller](),
	}
}

// Start creates a controller for the request and runs it in the background.
// widgetKey identifies the submitting widget instance; while that key has a
// non-terminal session, further starts are refused.
func (m *Manager) Start(widgetKey string, req Request) (*Controller, error) {
	c := NewController(m.logger, m.backend, req, m.opts)
	var refused bool
	m.active.Compute(widgetKey, func(cur *Controller, loaded bool) (*Controller, bool) {
		if loaded && !cur.Snapshot().State.Terminal() {
			refused = true
			return cur, false
		}
		return c, false
	})
	if refused {
		return nil, ErrSessionActive
	}
	m.sessions.Store(c.ID(), c)

	go func() {
		state := c.Run(m.ctx)
		m.logger.Info("session finished",
			zap.String("session", c.ID()),
			zap.String("state", string(state)))
		time.AfterFunc(terminalRetention, func() {
			m.sessions.Delete(c.ID())
			m.active.Compute(widgetKey, func(cur *Controller, loaded bool) (*Controller, bool) {
				return cur, cur == c // delete only if still ours
			})
		})
	}()
	return c, nil
}

// Get returns the controller for a session id.
func (m *Manager) Get(id string) (*Controller, bool) {
	return m.sessions.Load(id)
}

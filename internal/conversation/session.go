package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wolfman30/maison-chat-platform/pkg/logging"
)

const (
	AnonymousSessionExpiry     = 24 * time.Hour
	AuthenticatedSessionExpiry = 30 * 24 * time.Hour
)

// ErrCleanupFailed wraps any persistence failure during a cleanup run.
var ErrCleanupFailed = errors.New("conversation: session cleanup failed")

// Archiver exports a general conversation before it is purged.
type Archiver interface {
	ArchiveExpired(ctx context.Context, conv GeneralConversation, messages []Message) error
}

// CleanupObserver records cleanup outcomes.
type CleanupObserver interface {
	ObserveCleanup(deleted int64, err error)
}

// SessionManager decides whether conversations are usable and purges stale ones.
type SessionManager struct {
	store    Store
	archiver Archiver
	observer CleanupObserver
	now      func() time.Time
	logger   *logging.Logger
}

// SessionOption customises a SessionManager.
type SessionOption func(*SessionManager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) SessionOption {
	return func(m *SessionManager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithArchiver exports expired conversations before they are deleted.
func WithArchiver(a Archiver) SessionOption {
	return func(m *SessionManager) { m.archiver = a }
}

// WithCleanupObserver reports each cleanup run.
func WithCleanupObserver(o CleanupObserver) SessionOption {
	return func(m *SessionManager) { m.observer = o }
}

func NewSessionManager(store Store, logger *logging.Logger, opts ...SessionOption) *SessionManager {
	if store == nil {
		panic("conversation: session manager requires a store")
	}
	if logger == nil {
		logger = logging.Default()
	}
	m := &SessionManager{
		store:  store,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Now returns the manager's current time.
func (m *SessionManager) Now() time.Time {
	return m.now()
}

// IsGeneralSessionValid applies the 30 day (logged in) or 24 hour (anonymous) idle window.
func (m *SessionManager) IsGeneralSessionValid(c *GeneralConversation) bool {
	if c == nil {
		return false
	}
	expiry := AnonymousSessionExpiry
	if c.IsLoggedIn {
		expiry = AuthenticatedSessionExpiry
	}
	return m.now().Sub(c.LastActivity) < expiry
}

// IsPropertySessionValid depends only on status; property conversations never time out.
func (m *SessionManager) IsPropertySessionValid(c *PropertyConversation) bool {
	return c != nil && c.Status == StatusActive
}

// RefreshGeneral marks the conversation as active now.
func (m *SessionManager) RefreshGeneral(c *GeneralConversation) {
	if c != nil {
		c.LastActivity = m.now()
	}
}

// RefreshProperty marks the conversation as active now.
func (m *SessionManager) RefreshProperty(c *PropertyConversation) {
	if c != nil {
		c.LastActivity = m.now()
	}
}

// CleanupExpired deletes expired general conversations in one transaction and
// returns how many were removed. Property conversations are never touched.
func (m *SessionManager) CleanupExpired(ctx context.Context) (int64, error) {
	now := m.now()
	anonCutoff := now.Add(-AnonymousSessionExpiry)
	authCutoff := now.Add(-AuthenticatedSessionExpiry)

	if m.archiver != nil {
		m.archive(ctx, anonCutoff, authCutoff)
	}

	var deleted int64
	err := m.store.InTx(ctx, func(repo Repository) error {
		n, err := repo.DeleteExpiredGeneralConversations(ctx, anonCutoff, authCutoff)
		if err != nil {
			return err
		}
		deleted = n
		return nil
	})
	if m.observer != nil {
		m.observer.ObserveCleanup(deleted, err)
	}
	if err != nil {
		m.logger.Error("session cleanup rolled back", "error", err)
		return 0, fmt.Errorf("%w: %v", ErrCleanupFailed, err)
	}
	m.logger.Info("session cleanup completed", "deleted", deleted)
	return deleted, nil
}

// archive exports conversations about to expire. Failures never block the purge.
func (m *SessionManager) archive(ctx context.Context, anonCutoff, authCutoff time.Time) {
	convs, err := m.store.ExpiredGeneralConversations(ctx, anonCutoff, authCutoff)
	if err != nil {
		m.logger.Warn("failed to list expired conversations for archive", "error", err)
		return
	}
	for _, c := range convs {
		msgs, err := m.store.ListMessages(ctx, GeneralRef(c.ID), 0)
		if err != nil {
			m.logger.Warn("failed to load messages for archive", "conversation_id", c.ID, "error", err)
			continue
		}
		if err := m.archiver.ArchiveExpired(ctx, c, msgs); err != nil {
			m.logger.Warn("failed to archive expired conversation", "conversation_id", c.ID, "error", err)
		}
	}
}

// CleanupWorker runs CleanupExpired on a fixed interval.
type CleanupWorker struct {
	manager  *SessionManager
	interval time.Duration
	logger   *logging.Logger
}

func NewCleanupWorker(manager *SessionManager, interval time.Duration, logger *logging.Logger) *CleanupWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &CleanupWorker{manager: manager, interval: interval, logger: logger}
}

// Start blocks until ctx is cancelled.
func (w *CleanupWorker) Start(ctx context.Context) {
	if w.manager == nil {
		return
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("session cleanup worker started", "interval", w.interval.String())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Errors are already logged and counted by CleanupExpired.
			_, _ = w.manager.CleanupExpired(ctx)
		}
	}
}

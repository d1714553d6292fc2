package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"log/slog"

	"github.com/aretw0/keeper"
	"github.com/aretw0/keeper/internal/logging"
	"github.com/aretw0/keeper/pkg/domain"
	"github.com/aretw0/keeper/pkg/phase"
	"github.com/aretw0/keeper/pkg/ports"
	"github.com/google/uuid"
)

// ErrSessionBusy is returned by a Manager configured with WithRejectBusy when
// another request already holds the session.
var ErrSessionBusy = errors.New("session is busy")

// ErrSessionExists is returned by Create when the id is taken.
var ErrSessionExists = errors.New("session already exists")

// DefaultLockTTL bounds how long a distributed session lock is held.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager orchestrates session access, ensuring safe concurrent operations.
// Every read-modify-write of a session runs under its lock, and the store is
// written only after every generator round-trip succeeded.
// It uses Reference Counting to garbage collect unused locks.
type Manager struct {
	store  ports.StateStore
	engine *keeper.Engine

	mu    sync.Mutex            // Global lock for the map
	locks map[string]*lockEntry // Map of active locks

	locker     ports.DistributedLocker // Optional distributed locker
	lockTTL    time.Duration
	rejectBusy bool
	maxInput   int
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the TTL of distributed locks.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.lockTTL = ttl
	}
}

// WithRejectBusy makes concurrent requests on the same session fail with
// ErrSessionBusy instead of waiting.
func WithRejectBusy() Option {
	return func(m *Manager) {
		m.rejectBusy = true
	}
}

// WithMaxInputSize caps the size of a player action in bytes.
func WithMaxInputSize(n int) Option {
	return func(m *Manager) {
		m.maxInput = n
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithClock overrides the clock used for UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a new Session Manager over the given store and engine.
func NewManager(store ports.StateStore, engine *keeper.Engine, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		engine:   engine,
		locks:    make(map[string]*lockEntry),
		lockTTL:  DefaultLockTTL,
		maxInput: DefaultMaxInputSize,
		logger:   logging.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(sessionID) after unlocking.
func (m *Manager) acquire(sessionID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		entry = &lockEntry{}
		m.locks[sessionID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, sessionID)
	}
}

// Create stores a new session in the lobby with the given roster. An empty
// sessionID gets a generated one.
func (m *Manager) Create(ctx context.Context, sessionID, scenarioID string, actors []*domain.Actor) (*domain.Snapshot, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	snap := domain.NewSnapshot(sessionID, scenarioID)
	for _, a := range actors {
		if err := snap.AddActor(a.Clone()); err != nil {
			return nil, err
		}
	}

	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		_, err := m.store.Load(ctx, sessionID)
		if err == nil {
			return fmt.Errorf("%w: %s", ErrSessionExists, sessionID)
		}
		if !errors.Is(err, domain.ErrSessionNotFound) {
			return fmt.Errorf("failed to check session existence: %w", err)
		}
		return m.save(ctx, snap)
	})
	if err != nil {
		return nil, err
	}
	m.logger.InfoContext(ctx, "session created", "session_id", sessionID, "scenario_id", scenarioID, "actors", len(actors))
	return snap, nil
}

// Get loads a session.
func (m *Manager) Get(ctx context.Context, sessionID string) (*domain.Snapshot, error) {
	var snap *domain.Snapshot
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		var err error
		snap, err = m.store.Load(ctx, sessionID)
		return err
	})
	return snap, err
}

// Play runs one player action end to end. An actor acting out of turn gets
// a result flagged "not_your_turn" and the session is left untouched.
func (m *Manager) Play(ctx context.Context, sessionID string, req keeper.ActionRequest) (*keeper.ActionResult, error) {
	input, err := SanitizeInput(req.Input, m.maxInput)
	if err != nil {
		return nil, err
	}
	req.Input = input

	var res *keeper.ActionResult
	err = m.update(ctx, sessionID, func(ctx context.Context, snap *domain.Snapshot) (*domain.Snapshot, error) {
		out, next, err := m.engine.Play(ctx, snap, req)
		if errors.Is(err, domain.ErrNotYourTurn) {
			res = keeper.NotYourTurn(snap)
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		res = out
		return next, nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Push spends the pending push offer of actorID and runs the continuation.
func (m *Manager) Push(ctx context.Context, sessionID, actorID string, seed *int64) (*keeper.ActionResult, error) {
	var res *keeper.ActionResult
	err := m.update(ctx, sessionID, func(ctx context.Context, snap *domain.Snapshot) (*domain.Snapshot, error) {
		out, next, err := m.engine.Push(ctx, snap, actorID, seed)
		if errors.Is(err, domain.ErrNotYourTurn) {
			res = keeper.NotYourTurn(snap)
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		res = out
		return next, nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Start moves a session out of the lobby and returns the opening narrative.
func (m *Manager) Start(ctx context.Context, sessionID string) (string, error) {
	var text string
	err := m.update(ctx, sessionID, func(ctx context.Context, snap *domain.Snapshot) (*domain.Snapshot, error) {
		out, next, err := m.engine.StartScenario(ctx, snap)
		text = out
		return next, err
	})
	return text, err
}

// Transition moves a session to another phase.
func (m *Manager) Transition(ctx context.Context, sessionID string, to phase.Phase) (*domain.Snapshot, error) {
	var snap *domain.Snapshot
	err := m.update(ctx, sessionID, func(ctx context.Context, s *domain.Snapshot) (*domain.Snapshot, error) {
		next, err := m.engine.Transition(ctx, s, to)
		snap = next
		return next, err
	})
	return snap, err
}

// Save persists a copy of snap with its version bumped. snap itself is not
// modified; reload the session to observe the stored version.
func (m *Manager) Save(ctx context.Context, snap *domain.Snapshot) error {
	return m.WithLock(ctx, snap.SessionID, func(ctx context.Context) error {
		return m.save(ctx, snap.Clone())
	})
}

// Delete removes the session from the store.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		return m.store.Delete(ctx, sessionID)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Store returns the underlying state store.
func (m *Manager) Store() ports.StateStore {
	return m.store
}

// Engine returns the engine used to run actions.
func (m *Manager) Engine() *keeper.Engine {
	return m.engine
}

// update loads the session, applies fn and saves the result when fn returns
// a new snapshot. A nil snapshot with a nil error means nothing changed.
func (m *Manager) update(ctx context.Context, sessionID string, fn func(context.Context, *domain.Snapshot) (*domain.Snapshot, error)) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		snap, err := m.store.Load(ctx, sessionID)
		if err != nil {
			return err
		}
		next, err := fn(ctx, snap)
		if err != nil {
			return err
		}
		if next == nil {
			return nil
		}
		return m.save(ctx, next)
	})
}

func (m *Manager) save(ctx context.Context, snap *domain.Snapshot) error {
	snap.Version++
	snap.UpdatedAt = m.now().UTC()
	if err := m.store.Save(ctx, snap.SessionID, snap); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// WithLock executes a function while holding the lock for the session.
func (m *Manager) WithLock(ctx context.Context, sessionID string, fn func(context.Context) error) error {
	entry := m.acquire(sessionID)
	if m.rejectBusy {
		if !entry.mu.TryLock() {
			m.release(sessionID)
			return fmt.Errorf("%w: %s", ErrSessionBusy, sessionID)
		}
	} else {
		entry.mu.Lock()
	}
	defer func() {
		entry.mu.Unlock()
		m.release(sessionID)
	}()

	if m.locker != nil {
		lockCtx := ctx
		if m.rejectBusy {
			var cancel context.CancelFunc
			lockCtx, cancel = context.WithTimeout(ctx, time.Second)
			defer cancel()
		}
		unlock, err := m.locker.Lock(lockCtx, sessionID, m.lockTTL)
		if err != nil {
			if m.rejectBusy && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				return fmt.Errorf("%w: %s", ErrSessionBusy, sessionID)
			}
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"session_id", sessionID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

package persist

import (
	"context"
	"errors"
	"sync"
	"time"

	"debtflow/internal/clock"
	"debtflow/internal/debounce"
	"debtflow/internal/logging"
	"debtflow/internal/wizard"
)

// DefaultWriteTimeout bounds a single debounced write.
const DefaultWriteTimeout = 5 * time.Second

// Restored is the outcome of Restore.
type Restored struct {
	State   wizard.State
	OK      bool
	SavedAt time.Time
	// NeedsGatewayRefresh is set when the restored draft is on the gateway
	// branch: connection status is never persisted and must be re-checked.
	NeedsGatewayRefresh bool
}

// Manager keeps the snapshot slot in step with a wizard store. Writes are
// debounced; storage failures are logged and never reach the wizard flow.
type Manager struct {
	slot      Slot
	debouncer *debounce.Debouncer
	clock     clock.Clock
	timeout   time.Duration

	mu          sync.Mutex
	closed      bool
	unsubscribe func()
}

// Option configures a Manager.
type Option func(*Manager)

// WithWindow sets the debounce window.
func WithWindow(d time.Duration) Option {
	return func(m *Manager) { m.debouncer.SetDuration(d) }
}

// WithClock sets the clock used for SavedAt stamps.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = clock.OrReal(c) }
}

// WithWriteTimeout bounds each write.
func WithWriteTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// NewManager creates a closed manager; Attach opens it.
func NewManager(slot Slot, opts ...Option) *Manager {
	m := &Manager{
		slot:      slot,
		debouncer: debounce.New(debounce.DefaultWindow),
		clock:     clock.Real{},
		timeout:   DefaultWriteTimeout,
		closed:    true,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Attach subscribes to store and opens the manager. Attaching again replaces
// the previous subscription.
func (m *Manager) Attach(store *wizard.Store) {
	m.mu.Lock()
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	m.closed = false
	m.mu.Unlock()

	unsubscribe := store.Subscribe(m.onChange)

	m.mu.Lock()
	m.unsubscribe = unsubscribe
	m.mu.Unlock()
}

func (m *Manager) onChange(c wizard.Change) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	st := c.Next
	m.debouncer.Debounce(func() { m.write(st) })
}

func (m *Manager) write(st wizard.State) {
	data, err := EncodeSnapshot(st, m.clock.Now())
	if err != nil {
		logging.Get(logging.CategoryPersist).Error("failed to encode snapshot: %v", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	if err := m.slot.Save(ctx, data); err != nil {
		logging.Get(logging.CategoryPersist).Error("failed to save snapshot: %v", err)
		return
	}
	logging.PersistDebug("snapshot saved: step=%d bytes=%d", st.Step, len(data))
}

// Restore loads the stored snapshot. Absent, unreadable or corrupt snapshots
// yield OK=false; a corrupt one is removed so it does not fail every open.
func (m *Manager) Restore(ctx context.Context) Restored {
	raw, err := m.slot.Load(ctx)
	if errors.Is(err, ErrSlotEmpty) {
		return Restored{}
	}
	if err != nil {
		logging.Get(logging.CategoryPersist).Error("failed to load snapshot: %v", err)
		return Restored{}
	}

	st, snap, err := DecodeSnapshot(raw)
	if err != nil {
		logging.Get(logging.CategoryPersist).Warn("dropping unreadable snapshot: %v", err)
		if derr := m.slot.Delete(ctx); derr != nil {
			logging.Get(logging.CategoryPersist).Error("failed to delete snapshot: %v", derr)
		}
		return Restored{}
	}

	logging.Persist("snapshot restored: step=%d method=%s schema=v%d", st.Step, st.Selections.MethodKind(), snap.SchemaVersion)
	return Restored{
		State:               st,
		OK:                  true,
		SavedAt:             snap.SavedAt,
		NeedsGatewayRefresh: st.Selections.MethodKind() == wizard.MethodGateway,
	}
}

// SaveNow cancels any pending write and stores st immediately, e.g. right
// before leaving for the gateway authorization page.
func (m *Manager) SaveNow(st wizard.State) {
	m.debouncer.Immediate(func() { m.write(st) })
}

// Flush runs a pending write now. Reports whether one was pending.
func (m *Manager) Flush() bool {
	return m.debouncer.Flush()
}

// Discard cancels any pending write and deletes the snapshot. Used after a
// successful submission.
func (m *Manager) Discard(ctx context.Context) {
	m.debouncer.Cancel()
	if err := m.slot.Delete(ctx); err != nil {
		logging.Get(logging.CategoryPersist).Error("failed to delete snapshot: %v", err)
		return
	}
	logging.Persist("snapshot discarded")
}

// Close flushes the pending write, so the last edits are kept for the next
// open, and stops listening. Further mutations are not persisted.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	unsubscribe := m.unsubscribe
	m.unsubscribe = nil
	m.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if m.debouncer.Flush() {
		logging.PersistDebug("pending snapshot flushed on close")
	}
}

// Closed reports whether the manager is closed.
func (m *Manager) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// SetWindow changes the debounce window for subsequent mutations.
func (m *Manager) SetWindow(d time.Duration) {
	m.debouncer.SetDuration(d)
}

// Window returns the debounce window.
func (m *Manager) Window() time.Duration {
	return m.debouncer.Duration()
}

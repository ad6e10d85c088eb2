// Package duplicates guards movement creation with a single advisory
// duplicate check and holds the payload while the user decides.
package duplicates

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"debtflow/internal/api"
	"debtflow/internal/logging"
	"debtflow/internal/submit"
)

var (
	// ErrCheckInFlight is returned when a submission is already running.
	ErrCheckInFlight = errors.New("a submission is already in progress")
	// ErrAwaitingResolution is returned by Submit while candidates are shown.
	ErrAwaitingResolution = errors.New("duplicate candidates are awaiting a decision")
	// ErrNothingPending is returned by CreateAnyway when nothing is paused.
	ErrNothingPending = errors.New("no submission is waiting on duplicates")
)

// Phase is the gate's position in a submission attempt.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseChecking
	PhasePaused
	PhaseCreating
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseChecking:
		return "checking"
	case PhasePaused:
		return "paused"
	case PhaseCreating:
		return "creating"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// Outcome is the result of Submit or CreateAnyway.
type Outcome struct {
	Created    bool
	Movement   api.Movement
	Paused     bool
	Candidates []api.DuplicateCandidate
	// CheckFailed is set when the duplicate check errored and creation went
	// ahead anyway.
	CheckFailed bool
}

// Gate runs one duplicate check right before create. A failed check never
// blocks: duplicate detection is advisory.
type Gate struct {
	movements api.Movements

	mu         sync.Mutex
	phase      Phase
	pending    *submit.Payload
	candidates []api.DuplicateCandidate
}

func NewGate(movements api.Movements) *Gate {
	return &Gate{movements: movements}
}

// Phase returns the current phase.
func (g *Gate) Phase() Phase {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.phase
}

// Pending returns the retained payload and its candidates while paused.
func (g *Gate) Pending() (submit.Payload, []api.DuplicateCandidate, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.phase != PhasePaused || g.pending == nil {
		return submit.Payload{}, nil, false
	}
	return *g.pending, append([]api.DuplicateCandidate(nil), g.candidates...), true
}

// Submit checks p for duplicates and creates it when there are none. When
// candidates come back, p is retained and the gate pauses.
func (g *Gate) Submit(ctx context.Context, p submit.Payload) (Outcome, error) {
	g.mu.Lock()
	switch g.phase {
	case PhaseChecking, PhaseCreating:
		g.mu.Unlock()
		return Outcome{}, ErrCheckInFlight
	case PhasePaused:
		g.mu.Unlock()
		return Outcome{}, ErrAwaitingResolution
	}
	g.phase = PhaseChecking
	g.mu.Unlock()

	candidates, err := g.movements.CheckDuplicates(ctx, p.DuplicateCriteria())
	checkFailed := err != nil
	if checkFailed {
		logging.Get(logging.CategoryDuplicates).Warn("duplicate check failed, proceeding: %v", err)
		candidates = nil
	}

	if len(candidates) > 0 {
		g.mu.Lock()
		retained := p
		g.pending = &retained
		g.candidates = candidates
		g.phase = PhasePaused
		g.mu.Unlock()
		logging.Duplicates("paused: %d candidate(s) for %q", len(candidates), p.Movement.Description)
		return Outcome{Paused: true, Candidates: candidates}, nil
	}

	g.mu.Lock()
	g.phase = PhaseCreating
	g.mu.Unlock()

	mv, err := g.movements.Create(ctx, p.Movement, p.IdempotencyKey)

	g.mu.Lock()
	g.phase = PhaseIdle
	g.mu.Unlock()
	if err != nil {
		return Outcome{CheckFailed: checkFailed}, fmt.Errorf("create movement: %w", err)
	}
	return Outcome{Created: true, Movement: mv, CheckFailed: checkFailed}, nil
}

// CreateAnyway creates the retained payload exactly as assembled, without
// re-validating or checking again. On failure the payload stays retained so
// the user can retry or cancel.
func (g *Gate) CreateAnyway(ctx context.Context) (Outcome, error) {
	g.mu.Lock()
	switch {
	case g.phase == PhaseChecking || g.phase == PhaseCreating:
		g.mu.Unlock()
		return Outcome{}, ErrCheckInFlight
	case g.phase != PhasePaused || g.pending == nil:
		g.mu.Unlock()
		return Outcome{}, ErrNothingPending
	}
	p := *g.pending
	g.phase = PhaseCreating
	g.mu.Unlock()

	mv, err := g.movements.Create(ctx, p.Movement, p.IdempotencyKey)

	g.mu.Lock()
	defer g.mu.Unlock()
	if err != nil {
		g.phase = PhasePaused
		return Outcome{Paused: true, Candidates: g.candidates}, fmt.Errorf("create movement: %w", err)
	}
	g.phase = PhaseIdle
	g.pending = nil
	g.candidates = nil
	logging.Duplicates("created %s despite duplicate warning", mv.ID)
	return Outcome{Created: true, Movement: mv}, nil
}

// Cancel discards a paused payload. Reports whether one was discarded.
func (g *Gate) Cancel() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.phase != PhasePaused {
		return false
	}
	g.phase = PhaseIdle
	g.pending = nil
	g.candidates = nil
	logging.Duplicates("pending submission cancelled")
	return true
}

// Reset drops everything, including a paused payload. Used when the wizard
// closes.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.phase == PhasePaused {
		g.phase = PhaseIdle
	}
	g.pending = nil
	g.candidates = nil
}

package duplicates

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"debtflow/internal/api"
	"debtflow/internal/submit"
)

// stubMovements records calls and returns scripted results.
type stubMovements struct {
	mu         sync.Mutex
	candidates []api.DuplicateCandidate
	checkErr   error
	createErr  error
	checkGate  chan struct{}

	checks  int
	created []createCall
}

type createCall struct {
	in  api.MovementInput
	key string
}

func (s *stubMovements) CheckDuplicates(ctx context.Context, _ api.DuplicateCriteria) ([]api.DuplicateCandidate, error) {
	s.mu.Lock()
	s.checks++
	gate := s.checkGate
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.candidates, s.checkErr
}

func (s *stubMovements) Create(_ context.Context, in api.MovementInput, key string) (api.Movement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return api.Movement{}, s.createErr
	}
	s.created = append(s.created, createCall{in: in, key: key})
	return api.Movement{ID: "mv-" + key, Description: in.Description}, nil
}

func (s *stubMovements) createCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.created)
}

func payload() submit.Payload {
	return submit.Payload{
		Movement: api.MovementInput{
			WalletID:    "w",
			Description: "Rent",
			TotalAmount: decimal.NewFromInt(1500),
		},
		IdempotencyKey:   "key-1",
		CounterpartEmail: "landlord@example.com",
	}
}

func TestSubmit_NoCandidatesCreates(t *testing.T) {
	t.Parallel()

	stub := &stubMovements{}
	g := NewGate(stub)

	out, err := g.Submit(context.Background(), payload())
	require.NoError(t, err)
	assert.True(t, out.Created)
	assert.Equal(t, "mv-key-1", out.Movement.ID)
	assert.Equal(t, 1, stub.checks)
	assert.Equal(t, 1, stub.createCount())
	assert.Equal(t, PhaseIdle, g.Phase())
}

func TestSubmit_CandidatesPauseWithoutCreating(t *testing.T) {
	t.Parallel()

	stub := &stubMovements{candidates: []api.DuplicateCandidate{{ID: "old"}}}
	g := NewGate(stub)

	out, err := g.Submit(context.Background(), payload())
	require.NoError(t, err)
	assert.True(t, out.Paused)
	assert.False(t, out.Created)
	assert.Len(t, out.Candidates, 1)
	assert.Zero(t, stub.createCount(), "create must not be called")
	assert.Equal(t, PhasePaused, g.Phase())

	retained, cands, ok := g.Pending()
	require.True(t, ok)
	assert.Equal(t, payload(), retained)
	assert.Equal(t, "old", cands[0].ID)

	_, err = g.Submit(context.Background(), payload())
	assert.ErrorIs(t, err, ErrAwaitingResolution)
}

func TestCreateAnyway_CreatesExactlyOnceWithRetainedPayload(t *testing.T) {
	t.Parallel()

	stub := &stubMovements{candidates: []api.DuplicateCandidate{{ID: "old"}}}
	g := NewGate(stub)
	_, err := g.Submit(context.Background(), payload())
	require.NoError(t, err)

	out, err := g.CreateAnyway(context.Background())
	require.NoError(t, err)
	assert.True(t, out.Created)
	require.Equal(t, 1, stub.createCount())
	assert.Equal(t, payload().Movement, stub.created[0].in)
	assert.Equal(t, "key-1", stub.created[0].key)
	assert.Equal(t, 1, stub.checks, "no second duplicate check")

	_, err = g.CreateAnyway(context.Background())
	assert.ErrorIs(t, err, ErrNothingPending)
	assert.Equal(t, 1, stub.createCount())
}

func TestCreateAnyway_FailureKeepsPayload(t *testing.T) {
	t.Parallel()

	stub := &stubMovements{candidates: []api.DuplicateCandidate{{ID: "old"}}}
	g := NewGate(stub)
	_, err := g.Submit(context.Background(), payload())
	require.NoError(t, err)

	stub.mu.Lock()
	stub.createErr = errors.New("500")
	stub.mu.Unlock()
	out, err := g.CreateAnyway(context.Background())
	assert.Error(t, err)
	assert.True(t, out.Paused)
	assert.Equal(t, PhasePaused, g.Phase())

	stub.mu.Lock()
	stub.createErr = nil
	stub.mu.Unlock()
	out, err = g.CreateAnyway(context.Background())
	require.NoError(t, err)
	assert.True(t, out.Created)
}

func TestCancel_DiscardsPending(t *testing.T) {
	t.Parallel()

	stub := &stubMovements{candidates: []api.DuplicateCandidate{{ID: "old"}}}
	g := NewGate(stub)
	assert.False(t, g.Cancel())

	_, err := g.Submit(context.Background(), payload())
	require.NoError(t, err)
	assert.True(t, g.Cancel())
	assert.Equal(t, PhaseIdle, g.Phase())

	_, _, ok := g.Pending()
	assert.False(t, ok)
	_, err = g.CreateAnyway(context.Background())
	assert.ErrorIs(t, err, ErrNothingPending)
	assert.Zero(t, stub.createCount())
}

func TestSubmit_CheckFailureFailsOpen(t *testing.T) {
	t.Parallel()

	stub := &stubMovements{checkErr: errors.New("timeout"), candidates: []api.DuplicateCandidate{{ID: "ignored"}}}
	g := NewGate(stub)

	out, err := g.Submit(context.Background(), payload())
	require.NoError(t, err)
	assert.True(t, out.Created)
	assert.True(t, out.CheckFailed)
	assert.Equal(t, 1, stub.createCount())
}

func TestSubmit_CreateFailureReturnsError(t *testing.T) {
	t.Parallel()

	stub := &stubMovements{createErr: errors.New("422")}
	g := NewGate(stub)

	_, err := g.Submit(context.Background(), payload())
	assert.Error(t, err)
	assert.Equal(t, PhaseIdle, g.Phase(), "the user can resubmit")
}

func TestSubmit_NoOverlap(t *testing.T) {
	t.Parallel()

	stub := &stubMovements{checkGate: make(chan struct{})}
	g := NewGate(stub)

	done := make(chan error, 1)
	go func() {
		_, err := g.Submit(context.Background(), payload())
		done <- err
	}()
	require.Eventually(t, func() bool { return g.Phase() == PhaseChecking }, time.Second, time.Millisecond)

	_, err := g.Submit(context.Background(), payload())
	assert.ErrorIs(t, err, ErrCheckInFlight)
	_, err = g.CreateAnyway(context.Background())
	assert.ErrorIs(t, err, ErrCheckInFlight)

	close(stub.checkGate)
	require.NoError(t, <-done)
	assert.Equal(t, 1, stub.checks)
	assert.Equal(t, 1, stub.createCount())
}

func TestPhaseString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "paused", PhasePaused.String())
	assert.Equal(t, "Phase(9)", Phase(9).String())
}

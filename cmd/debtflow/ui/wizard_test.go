package ui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"debtflow/internal/api"
	"debtflow/internal/duplicates"
	"debtflow/internal/gateway"
	"debtflow/internal/session"
	"debtflow/internal/submit"
	"debtflow/internal/wizard"
)

// =============================================================================
// FAKE CONTROLLER
// =============================================================================

type fakeCtrl struct {
	m          *wizard.Machine
	wallets    []api.Wallet
	keys       []api.PixKey
	candidates []api.DuplicateCandidate
	paused     bool

	dupOnSubmit bool
	submitErr   error

	gatewayChecks int
	submits       int
	anyway        int
	cancels       int
	discards      int
}

func newFakeCtrl() *fakeCtrl {
	return &fakeCtrl{
		m:       wizard.NewMachine(wizard.NewStore(wizard.NewState())),
		wallets: []api.Wallet{{ID: "w-1", Name: "Household"}, {ID: "w-2", Name: "Travel"}},
		keys:    []api.PixKey{{ID: "pk-1", WalletID: "w-1", Type: "email", Key: "me@example.com"}},
	}
}

func (f *fakeCtrl) Machine() *wizard.Machine { return f.m }
func (f *fakeCtrl) State() wizard.State      { return f.m.State() }
func (f *fakeCtrl) Wallets() []api.Wallet    { return f.wallets }
func (f *fakeCtrl) PixKeys() []api.PixKey    { return f.keys }
func (f *fakeCtrl) Next() wizard.Result      { return f.m.Next() }
func (f *fakeCtrl) Prev()                    { f.m.Prev() }
func (f *fakeCtrl) SelectWallet(id string)   { f.m.SelectWallet(id) }
func (f *fakeCtrl) ChoosePix()               { f.m.ChoosePix() }

func (f *fakeCtrl) Discard(ctx context.Context) {
	f.discards++
	f.m.Reset()
}

func (f *fakeCtrl) ChooseGateway(ctx context.Context) (wizard.ConnectionStatus, error) {
	f.gatewayChecks++
	f.m.ChooseGateway()
	f.m.SetGatewayStatus(wizard.StatusConnected)
	return wizard.StatusConnected, nil
}

func (f *fakeCtrl) Connect(ctx context.Context) (gateway.Authorization, error) {
	return gateway.Authorization{URL: "https://gateway.example/auth?state=s1"}, nil
}

func (f *fakeCtrl) AwaitGatewayReturn(ctx context.Context) (gateway.Reconciliation, error) {
	f.m.SetGatewayStatus(wizard.StatusConnected)
	return gateway.Reconciliation{Triggered: true, Status: wizard.StatusConnected}, nil
}

func (f *fakeCtrl) Submit(ctx context.Context) (session.Outcome, error) {
	f.submits++
	if f.submitErr != nil {
		return session.Outcome{Validation: wizard.Result{OK: true}}, f.submitErr
	}
	if f.dupOnSubmit {
		f.paused = true
		f.candidates = []api.DuplicateCandidate{{ID: "m-9", Description: "Rent", Amount: decimal.NewFromInt(900)}}
		return session.Outcome{Validation: wizard.Result{OK: true}, Outcome: duplicates.Outcome{Paused: true, Candidates: f.candidates}}, nil
	}
	f.m.Reset()
	return session.Outcome{Validation: wizard.Result{OK: true}, Outcome: duplicates.Outcome{Created: true}}, nil
}

func (f *fakeCtrl) CreateAnyway(ctx context.Context) (session.Outcome, error) {
	f.anyway++
	f.paused = false
	f.m.Reset()
	return session.Outcome{Validation: wizard.Result{OK: true}, Outcome: duplicates.Outcome{Created: true}}, nil
}

func (f *fakeCtrl) CancelDuplicate() bool {
	f.cancels++
	f.paused = false
	f.m.GoTo(wizard.StepCount - 1)
	return true
}

func (f *fakeCtrl) Pending() ([]api.DuplicateCandidate, bool) {
	return f.candidates, f.paused
}

// =============================================================================
// HELPERS
// =============================================================================

func newTestModel(f *fakeCtrl) Model {
	return NewModel(context.Background(), f, nil, submit.Party{Email: "me@example.com"}, NewStyles(LightTheme()))
}

func press(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out, cmd
}

func key(k tea.KeyType) tea.KeyMsg { return tea.KeyMsg{Type: k} }

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

// collect runs cmd and flattens batches, keeping only messages produced by
// the wizard's own background commands.
func collect(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	switch msg := cmd().(type) {
	case tea.BatchMsg:
		var out []tea.Msg
		for _, c := range msg {
			out = append(out, collect(c)...)
		}
		return out
	case gatewayCheckMsg, connectMsg, gatewayReturnMsg, submitMsg:
		return []tea.Msg{msg}
	}
	return nil
}

// =============================================================================
// TESTS
// =============================================================================

func TestModel_WalletStep(t *testing.T) {
	f := newFakeCtrl()
	m := newTestModel(f)

	m, _ = press(t, m, key(tea.KeyEnter))
	assert.NotEmpty(t, m.validation, "advancing without a wallet must explain why")
	assert.Equal(t, 0, f.State().Step)

	m, _ = press(t, m, key(tea.KeyRight))
	assert.Equal(t, "w-1", f.State().Selections.WalletID)
	m, _ = press(t, m, key(tea.KeyLeft))
	assert.Equal(t, "w-2", f.State().Selections.WalletID)
	assert.Contains(t, m.View(), "Travel")

	m, _ = press(t, m, key(tea.KeyEnter))
	assert.Empty(t, m.validation)
	assert.Equal(t, 1, f.State().Step)
}

func TestModel_TextFieldCommitsOnTab(t *testing.T) {
	f := newFakeCtrl()
	f.m.SelectWallet("w-1")
	f.m.ChoosePix()
	require.NoError(t, f.m.ChooseMovementType(wizard.MovementSingle))
	f.m.GoTo(wizard.IndexOf(wizard.StepParties))
	m := newTestModel(f)

	m, _ = press(t, m, runes("Rent"))
	m, _ = press(t, m, key(tea.KeyTab))

	assert.Equal(t, "Rent", f.State().Fields.Description)
	assert.Equal(t, 1, m.focus)
}

func TestModel_InvalidTextKeepsFocus(t *testing.T) {
	f := newFakeCtrl()
	f.m.SelectWallet("w-1")
	f.m.ChoosePix()
	require.NoError(t, f.m.ChooseMovementType(wizard.MovementSingle))
	f.m.GoTo(wizard.IndexOf(wizard.StepAmounts))
	m := newTestModel(f)

	spec, ok := m.focused()
	require.True(t, ok)
	require.Equal(t, wizard.FieldTotalAmount, spec.Field)

	m, _ = press(t, m, runes("abc"))
	m, _ = press(t, m, key(tea.KeyTab))

	assert.NotEmpty(t, m.fieldErr)
	assert.Equal(t, 0, m.focus)
	assert.True(t, f.State().Fields.TotalAmount.IsZero())
}

func TestModel_ChoosingGatewayChecksStatus(t *testing.T) {
	f := newFakeCtrl()
	f.m.SelectWallet("w-1")
	f.m.GoTo(wizard.IndexOf(wizard.StepPaymentMethod))
	m := newTestModel(f)

	m, _ = press(t, m, key(tea.KeyRight))
	assert.Equal(t, wizard.MethodPix, f.State().Selections.MethodKind())

	m, cmd := press(t, m, key(tea.KeyRight))
	assert.NotEmpty(t, m.busy)

	msgs := collect(cmd)
	require.Len(t, msgs, 1)
	m, _ = press(t, m, msgs[0])

	assert.Empty(t, m.busy)
	assert.Equal(t, 1, f.gatewayChecks)
	assert.Equal(t, wizard.StatusConnected, f.State().Gateway.Status)
	assert.Contains(t, m.View(), "Gateway account connected")
}

func TestModel_ConnectWaitsForReturn(t *testing.T) {
	f := newFakeCtrl()
	f.m.SelectWallet("w-1")
	f.m.ChooseGateway()
	f.m.SetGatewayStatus(wizard.StatusDisconnected)
	f.m.GoTo(wizard.IndexOf(wizard.StepPaymentMethod))
	m := newTestModel(f)

	m, cmd := press(t, m, key(tea.KeyCtrlG))
	msgs := collect(cmd)
	require.Len(t, msgs, 1)

	m, cmd = press(t, m, msgs[0])
	assert.Contains(t, m.View(), "https://gateway.example/auth")
	assert.NotEmpty(t, m.busy)

	msgs = collect(cmd)
	require.Len(t, msgs, 1)
	m, _ = press(t, m, msgs[0])
	assert.Empty(t, m.busy)
	assert.Empty(t, m.authURL)
}

func TestModel_SubmitPausesOnDuplicates(t *testing.T) {
	f := newFakeCtrl()
	f.dupOnSubmit = true
	f.m.GoTo(wizard.StepCount - 1)
	m := newTestModel(f)

	m, cmd := press(t, m, key(tea.KeyEnter))
	msgs := collect(cmd)
	require.Len(t, msgs, 1)
	m, _ = press(t, m, msgs[0])

	assert.True(t, m.paused())
	assert.Contains(t, m.View(), "create anyway")

	m, cmd = press(t, m, runes("y"))
	msgs = collect(cmd)
	require.Len(t, msgs, 1)
	m, _ = press(t, m, msgs[0])

	assert.Equal(t, 1, f.anyway)
	assert.False(t, m.paused())
	assert.Equal(t, 0, f.State().Step)
}

func TestModel_CancelDuplicateReturnsToConfirm(t *testing.T) {
	f := newFakeCtrl()
	f.dupOnSubmit = true
	f.m.GoTo(wizard.StepCount - 1)
	m := newTestModel(f)

	m, cmd := press(t, m, key(tea.KeyEnter))
	m, _ = press(t, m, collect(cmd)[0])
	m, _ = press(t, m, key(tea.KeyEsc))

	assert.Equal(t, 1, f.cancels)
	assert.False(t, m.paused())
	assert.True(t, f.State().IsTerminal())
}

func TestModel_SubmitErrorIsShown(t *testing.T) {
	f := newFakeCtrl()
	f.submitErr = errors.New("backend down")
	f.m.GoTo(wizard.StepCount - 1)
	m := newTestModel(f)

	m, cmd := press(t, m, key(tea.KeyEnter))
	m, _ = press(t, m, collect(cmd)[0])

	assert.Equal(t, "backend down", m.validation)
	assert.Contains(t, m.View(), "backend down")
}

func TestModel_KeysIgnoredWhileBusy(t *testing.T) {
	f := newFakeCtrl()
	f.m.GoTo(wizard.StepCount - 1)
	m := newTestModel(f)

	m, _ = press(t, m, key(tea.KeyEnter))
	require.NotEmpty(t, m.busy)

	_, cmd := press(t, m, key(tea.KeyEnter))
	assert.Nil(t, cmd)
	assert.Equal(t, 0, f.submits, "the submit command has not run yet")
}

func TestModel_EscGoesBackAndDiscardResets(t *testing.T) {
	f := newFakeCtrl()
	f.m.SelectWallet("w-1")
	f.m.GoTo(2)
	m := newTestModel(f)

	m, _ = press(t, m, key(tea.KeyEsc))
	assert.Equal(t, 1, f.State().Step)

	m, _ = press(t, m, key(tea.KeyCtrlD))
	assert.Equal(t, 1, f.discards)
	assert.Equal(t, 0, f.State().Step)
	assert.Empty(t, f.State().Selections.WalletID)
}

func TestModel_NotificationsAreCapped(t *testing.T) {
	f := newFakeCtrl()
	notes := NewNotifications(1)
	notes.Notify(session.Notification{Level: session.LevelInfo, Message: "one"})
	notes.Notify(session.Notification{Level: session.LevelInfo, Message: "dropped"})

	m := NewModel(context.Background(), f, notes, submit.Party{}, NewStyles(DarkTheme()))
	for i := 0; i < maxNotes+2; i++ {
		m, _ = press(t, m, notifyMsg{Level: session.LevelSuccess, Message: strings.Repeat("x", i+1)})
	}
	assert.Len(t, m.log, maxNotes)
	assert.Equal(t, strings.Repeat("x", maxNotes+2), m.log[maxNotes-1].Message)
}

func TestModel_CtrlCQuits(t *testing.T) {
	m := newTestModel(newFakeCtrl())
	_, cmd := press(t, m, key(tea.KeyCtrlC))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
}

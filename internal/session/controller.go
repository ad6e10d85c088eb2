// Package session runs one transaction-creation wizard against the backend.
//
// A Controller wires the wizard state machine to its side effects:
//
//	open → restore draft → reconcile gateway return → load wallets and PIX keys
//	edit → debounced snapshot
//	submit → assemble payload → duplicate gate → create → reset and wipe draft
//
// Every asynchronous result is tagged with the epoch of the open it belongs to.
// Close cancels the open's context; results that come back after Close, or for
// an older open, are dropped.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"debtflow/internal/api"
	"debtflow/internal/calc"
	"debtflow/internal/clock"
	"debtflow/internal/duplicates"
	"debtflow/internal/gateway"
	"debtflow/internal/logging"
	"debtflow/internal/persist"
	"debtflow/internal/submit"
	"debtflow/internal/wizard"
)

var (
	ErrClosed            = errors.New("wizard is closed")
	ErrAlreadyOpen       = errors.New("wizard is already open")
	ErrPixKeyInFlight    = errors.New("a PIX key is already being created")
	ErrNotGatewayBranch  = errors.New("gateway payment method is not selected")
	ErrMissingDependency = errors.New("missing session dependency")
)

// CallbackTarget is where the gateway sends the user back to. Implemented by
// *gateway.CallbackServer.
type CallbackTarget interface {
	URL() string
	Expect(stateToken string)
}

// Deps are the collaborators of a Controller. Inbox, Callback, Notifier and
// Clock are optional.
type Deps struct {
	Movements   api.Movements
	Wallets     api.Wallets
	PixKeys     api.PixKeys
	Reconciler  *gateway.Reconciler
	Persistence *persist.Manager

	Inbox    *gateway.Inbox
	Callback CallbackTarget
	Notifier Notifier
	Clock    clock.Clock
}

// Config holds per-user settings for the controller.
type Config struct {
	// Me is the signed-in user.
	Me submit.Party

	// MonthEndPolicy decides recurring due dates past the end of a month.
	MonthEndPolicy calc.MonthEndPolicy
}

// DefaultConfig returns sensible defaults. Me must still be set.
func DefaultConfig() Config {
	return Config{MonthEndPolicy: calc.PolicyClamp}
}

// Opened describes what happened during Open.
type Opened struct {
	Restored bool
	// Reconciled is set when a gateway return trip was processed.
	Reconciled bool
	Gateway    gateway.Reconciliation
	// LoadErr is a failure loading wallets or PIX keys. The wizard stays usable.
	LoadErr error
}

// Outcome is the result of Submit or CreateAnyway. When Validation is not OK
// nothing was sent.
type Outcome struct {
	Validation wizard.Result
	duplicates.Outcome
}

// Controller owns one wizard and its side effects.
type Controller struct {
	deps    Deps
	cfg     Config
	clock   clock.Clock
	notify  Notifier
	machine *wizard.Machine
	gate    *duplicates.Gate

	mu         sync.Mutex
	open       bool
	epoch      uint64
	ctx        context.Context
	cancel     context.CancelFunc
	id         string
	audit      *logging.AuditLogger
	wallets    []api.Wallet
	pixKeys    []api.PixKey
	pixKeyBusy bool
}

// New creates a closed controller.
func New(deps Deps, cfg Config) (*Controller, error) {
	switch {
	case deps.Movements == nil:
		return nil, fmt.Errorf("%w: movements", ErrMissingDependency)
	case deps.Wallets == nil:
		return nil, fmt.Errorf("%w: wallets", ErrMissingDependency)
	case deps.PixKeys == nil:
		return nil, fmt.Errorf("%w: pix keys", ErrMissingDependency)
	case deps.Reconciler == nil:
		return nil, fmt.Errorf("%w: gateway reconciler", ErrMissingDependency)
	case deps.Persistence == nil:
		return nil, fmt.Errorf("%w: persistence", ErrMissingDependency)
	}
	if cfg.MonthEndPolicy == "" {
		cfg.MonthEndPolicy = calc.PolicyClamp
	}
	notify := deps.Notifier
	if notify == nil {
		notify = logNotifier{}
	}

	logging.Session("creating wizard session controller")
	return &Controller{
		deps:    deps,
		cfg:     cfg,
		clock:   clock.OrReal(deps.Clock),
		notify:  notify,
		machine: wizard.NewMachine(wizard.NewStore(wizard.NewState())),
		gate:    duplicates.NewGate(deps.Movements),
		audit:   logging.AuditWithSession(""),
	}, nil
}

// Machine exposes the wizard for field edits and selections.
func (c *Controller) Machine() *wizard.Machine { return c.machine }

// State returns a copy of the wizard state.
func (c *Controller) State() wizard.State { return c.machine.State() }

// IsOpen reports whether the wizard is open.
func (c *Controller) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// ID identifies the current open in logs and the audit trail.
func (c *Controller) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// Wallets returns the loaded wallets.
func (c *Controller) Wallets() []api.Wallet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]api.Wallet(nil), c.wallets...)
}

// PixKeys returns the loaded PIX keys usable with the selected wallet. Keys
// without a wallet are usable with any.
func (c *Controller) PixKeys() []api.PixKey {
	wallet := c.machine.State().Selections.WalletID
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []api.PixKey
	for _, k := range c.pixKeys {
		if wallet == "" || k.WalletID == "" || k.WalletID == wallet {
			out = append(out, k)
		}
	}
	return out
}

// Pending returns the duplicate candidates awaiting a decision.
func (c *Controller) Pending() ([]api.DuplicateCandidate, bool) {
	_, cands, ok := c.gate.Pending()
	return cands, ok
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Open restores the draft, reconciles a gateway return trip and loads the
// wallets and PIX keys. ctx bounds the whole open: when it ends the open ends
// too. Only ErrAlreadyOpen is returned; every other failure degrades.
func (c *Controller) Open(ctx context.Context) (Opened, error) {
	c.mu.Lock()
	if c.open {
		c.mu.Unlock()
		return Opened{}, ErrAlreadyOpen
	}
	c.open = true
	c.epoch++
	epoch := c.epoch
	c.ctx, c.cancel = context.WithCancel(ctx)
	openCtx := c.ctx
	id := uuid.NewString()
	c.id = id
	c.audit = logging.AuditWithSession(id)
	audit := c.audit
	c.mu.Unlock()

	logging.Session("opening wizard %s", id)
	var out Opened

	restored := c.deps.Persistence.Restore(openCtx)
	if restored.OK {
		c.machine.Replace("restore", restored.State)
		out.Restored = true
		if restored.SavedAt.IsZero() {
			c.emit(LevelInfo, "Picked up your unfinished movement")
		} else {
			c.emit(LevelInfo, "Picked up your unfinished movement from %s", restored.SavedAt.Local().Format("Jan 2 15:04"))
		}
		audit.Event(logging.AuditDraftRestored, "draft restored", map[string]interface{}{"step": restored.State.Step})
	} else {
		c.machine.Reset()
	}

	var params gateway.ReturnParams
	if c.deps.Inbox != nil {
		params, _ = c.deps.Inbox.Take()
	}
	out.Gateway = c.deps.Reconciler.Reconcile(openCtx, params)
	out.Reconciled = out.Gateway.Triggered
	c.applyReconciliation(epoch, out.Gateway)

	// Restore and recovery are applied before listening, so only user edits
	// schedule writes.
	c.deps.Persistence.Attach(c.machine.Store())

	out.LoadErr = c.loadCollaborators(openCtx, epoch)

	if restored.NeedsGatewayRefresh && !out.Reconciled {
		_, _ = c.refreshGateway(openCtx, epoch)
	}

	audit.Event(logging.AuditWizardOpened, "wizard opened", map[string]interface{}{
		"restored":   out.Restored,
		"reconciled": out.Reconciled,
	})
	return out, nil
}

// Close ends the open. The draft is kept for the next open; results of calls
// still in flight are discarded when they arrive.
func (c *Controller) Close() {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return
	}
	c.open = false
	cancel := c.cancel
	audit := c.audit
	id := c.id
	c.mu.Unlock()

	cancel()
	c.deps.Persistence.Close()
	c.gate.Reset()
	audit.Event(logging.AuditWizardClosed, "wizard closed", nil)
	logging.Session("wizard %s closed", id)
}

// Discard resets the wizard and deletes the stored draft.
func (c *Controller) Discard(ctx context.Context) {
	c.gate.Reset()
	c.machine.Reset()
	c.deps.Persistence.Discard(ctx)
	c.auditor().Event(logging.AuditDraftDiscarded, "draft discarded", nil)
}

// current reports whether results for epoch may still touch the wizard.
func (c *Controller) current(epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open && c.epoch == epoch
}

func (c *Controller) auditor() *logging.AuditLogger {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.audit
}

// begin starts an operation bound to both ctx and the current open.
func (c *Controller) begin(ctx context.Context) (uint64, context.Context, func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return 0, nil, nil, ErrClosed
	}
	opCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.ctx, cancel)
	return c.epoch, opCtx, func() {
		stop()
		cancel()
	}, nil
}

func (c *Controller) emit(level Level, format string, args ...interface{}) {
	c.notify.Notify(Notification{Level: level, Message: fmt.Sprintf(format, args...)})
}

// =============================================================================
// NAVIGATION
// =============================================================================

// Next validates the active step and advances. Validation failures come back
// in the result. On the confirmation step the result is Terminal and the
// caller submits.
func (c *Controller) Next() wizard.Result {
	return c.machine.Next()
}

// Prev steps back without validating.
func (c *Controller) Prev() {
	c.machine.Prev()
}

// =============================================================================
// COLLABORATORS
// =============================================================================

func (c *Controller) loadCollaborators(ctx context.Context, epoch uint64) error {
	var (
		wallets []api.Wallet
		keys    []api.PixKey
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ws, err := c.deps.Wallets.ListWallets(gctx)
		if err != nil {
			return fmt.Errorf("load wallets: %w", err)
		}
		wallets = ws
		return nil
	})
	g.Go(func() error {
		ks, err := c.deps.PixKeys.ListPixKeys(gctx, "")
		if err != nil {
			return fmt.Errorf("load PIX keys: %w", err)
		}
		keys = ks
		return nil
	})
	err := g.Wait()

	if !c.current(epoch) {
		return ErrClosed
	}
	c.mu.Lock()
	if wallets != nil {
		c.wallets = wallets
	}
	if keys != nil {
		c.pixKeys = keys
	}
	c.mu.Unlock()

	if err != nil {
		logging.Get(logging.CategorySession).Warn("collaborator load failed: %v", err)
		c.emit(LevelError, "Could not load your wallets and PIX keys. Try reopening the wizard.")
		return err
	}
	logging.SessionDebug("loaded %d wallet(s), %d PIX key(s)", len(wallets), len(keys))
	return nil
}

// SelectWallet picks the wallet. A PIX key that belongs to another wallet is
// cleared.
func (c *Controller) SelectWallet(id string) {
	c.machine.SelectWallet(id)
	st := c.machine.State()
	keyID := st.PixKeyID()
	c.mu.Lock()
	loaded := len(c.pixKeys) > 0
	c.mu.Unlock()
	if keyID == "" || !loaded {
		return
	}
	for _, k := range c.PixKeys() {
		if k.ID == keyID {
			return
		}
	}
	_ = c.machine.SelectPixKey("")
}

// CreatePixKey registers a PIX key and selects it on the PIX branch. An empty
// WalletID uses the selected wallet.
func (c *Controller) CreatePixKey(ctx context.Context, in api.PixKeyInput) (api.PixKey, error) {
	epoch, opCtx, done, err := c.begin(ctx)
	if err != nil {
		return api.PixKey{}, err
	}
	defer done()

	c.mu.Lock()
	if c.pixKeyBusy {
		c.mu.Unlock()
		return api.PixKey{}, ErrPixKeyInFlight
	}
	c.pixKeyBusy = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.pixKeyBusy = false
		c.mu.Unlock()
	}()

	if strings.TrimSpace(in.WalletID) == "" {
		in.WalletID = c.machine.State().Selections.WalletID
	}
	key, err := c.deps.PixKeys.CreatePixKey(opCtx, in)
	if !c.current(epoch) {
		logging.SessionDebug("dropping PIX key result after close")
		return api.PixKey{}, ErrClosed
	}
	if err != nil {
		c.emit(LevelError, "Could not create the PIX key: %v", err)
		return api.PixKey{}, err
	}

	c.mu.Lock()
	c.pixKeys = append(c.pixKeys, key)
	c.mu.Unlock()
	if c.machine.State().Selections.MethodKind() == wizard.MethodPix {
		_ = c.machine.SelectPixKey(key.ID)
	}
	c.emit(LevelSuccess, "PIX key %s added", key.Key)
	return key, nil
}

// =============================================================================
// GATEWAY
// =============================================================================

// ChoosePix selects the PIX branch.
func (c *Controller) ChoosePix() {
	c.machine.ChoosePix()
}

// ChooseGateway selects the gateway branch and checks the connection right
// away: checking, then connected or disconnected.
func (c *Controller) ChooseGateway(ctx context.Context) (wizard.ConnectionStatus, error) {
	epoch, opCtx, done, err := c.begin(ctx)
	if err != nil {
		return wizard.StatusUnknown, err
	}
	defer done()

	c.machine.ChooseGateway()
	return c.refreshGateway(opCtx, epoch)
}

// RefreshGateway re-checks the connection, e.g. after the user says they
// finished authorizing.
func (c *Controller) RefreshGateway(ctx context.Context) (wizard.ConnectionStatus, error) {
	epoch, opCtx, done, err := c.begin(ctx)
	if err != nil {
		return wizard.StatusUnknown, err
	}
	defer done()
	return c.refreshGateway(opCtx, epoch)
}

func (c *Controller) refreshGateway(ctx context.Context, epoch uint64) (wizard.ConnectionStatus, error) {
	c.machine.SetGatewayStatus(wizard.StatusChecking)
	status, err := c.deps.Reconciler.Check(ctx)
	if !c.current(epoch) {
		logging.SessionDebug("dropping gateway status after close")
		return status, ErrClosed
	}
	c.machine.SetGatewayStatus(status)
	if err != nil {
		c.emit(LevelError, "Could not check the gateway connection. Try again.")
		return status, err
	}
	return status, nil
}

// Connect starts the gateway authorization: the draft is saved right away,
// a recovery record is written and the URL to open is returned.
func (c *Controller) Connect(ctx context.Context) (gateway.Authorization, error) {
	_, opCtx, done, err := c.begin(ctx)
	if err != nil {
		return gateway.Authorization{}, err
	}
	defer done()

	st := c.machine.State()
	if st.Selections.MethodKind() != wizard.MethodGateway {
		return gateway.Authorization{}, ErrNotGatewayBranch
	}
	c.deps.Persistence.SaveNow(st)

	callbackURL := ""
	if c.deps.Callback != nil {
		callbackURL = c.deps.Callback.URL()
	}
	auth, err := c.deps.Reconciler.BeginAuthorization(opCtx, st, callbackURL)
	if err != nil {
		c.emit(LevelError, "Could not start the gateway connection. Try again.")
		return gateway.Authorization{}, err
	}
	if c.deps.Callback != nil {
		c.deps.Callback.Expect(auth.Record.StateToken)
	}
	c.auditor().Event(logging.AuditGatewayRedirect, "authorization started", map[string]interface{}{"step": st.Step})
	c.emit(LevelInfo, "Finish connecting the gateway in your browser")
	return auth, nil
}

// AwaitGatewayReturn blocks until the callback delivers a return trip, then
// reconciles it into the open wizard.
func (c *Controller) AwaitGatewayReturn(ctx context.Context) (gateway.Reconciliation, error) {
	if c.deps.Inbox == nil {
		return gateway.Reconciliation{}, fmt.Errorf("%w: inbox", ErrMissingDependency)
	}
	epoch, opCtx, done, err := c.begin(ctx)
	if err != nil {
		return gateway.Reconciliation{}, err
	}
	defer done()

	params, err := c.deps.Inbox.Wait(opCtx)
	if err != nil {
		if !c.current(epoch) {
			return gateway.Reconciliation{}, ErrClosed
		}
		return gateway.Reconciliation{}, err
	}
	r := c.deps.Reconciler.Reconcile(opCtx, params)
	if !c.current(epoch) {
		return r, ErrClosed
	}
	c.applyReconciliation(epoch, r)
	return r, nil
}

// applyReconciliation moves the wizard back to where the redirect started and
// records the fresh status.
func (c *Controller) applyReconciliation(epoch uint64, r gateway.Reconciliation) {
	if !r.Triggered || !c.current(epoch) {
		return
	}
	if r.Record != nil {
		rec := *r.Record
		_ = c.machine.Store().Dispatch("gateway:recover", func(s *wizard.State) error {
			if s.Selections.WalletID == "" {
				s.Selections.WalletID = rec.WalletID
			}
			if rec.PaymentMethod == string(wizard.MethodGateway) && s.Selections.MethodKind() != wizard.MethodGateway {
				s.Selections.Method = wizard.GatewayMethod{}
			}
			s.Step = rec.Step
			return nil
		})
	}
	c.machine.SetGatewayStatus(r.Status)

	switch {
	case r.GatewayError != "":
		c.emit(LevelError, "The gateway reported an error: %s", r.GatewayError)
	case r.Err != nil:
		c.emit(LevelError, "Could not check the gateway connection. Try again.")
	case r.StateMismatch:
		c.emit(LevelError, "The gateway response did not match this session")
	case r.Connected():
		c.emit(LevelSuccess, "Gateway connected")
	default:
		c.emit(LevelInfo, "The gateway is not connected yet")
	}

	fields := map[string]interface{}{"status": string(r.Status), "recovered": r.Record != nil}
	if r.Err != nil {
		c.auditor().Failure(logging.AuditGatewayReconciled, r.Err, fields)
		return
	}
	c.auditor().Event(logging.AuditGatewayReconciled, "gateway reconciled", fields)
}

// =============================================================================
// SUBMISSION
// =============================================================================

// Submit validates the whole wizard, assembles the payload and passes it
// through the duplicate gate. A paused outcome carries the candidates; the
// user answers with CreateAnyway or CancelDuplicate.
func (c *Controller) Submit(ctx context.Context) (Outcome, error) {
	epoch, opCtx, done, err := c.begin(ctx)
	if err != nil {
		return Outcome{}, err
	}
	defer done()

	st := c.machine.State()
	if res := wizard.Validate(st); !res.OK {
		return Outcome{Validation: res}, nil
	}
	payload, err := submit.Assemble(st, c.cfg.Me, c.clock.Now(), submit.WithPolicy(c.cfg.MonthEndPolicy))
	if err != nil {
		c.emit(LevelError, "Could not prepare the movement: %v", err)
		return Outcome{Validation: wizard.Result{OK: true}}, err
	}
	logging.Submit("submitting %s/%s for wallet %s", payload.Movement.PaymentMethod, payload.Movement.MovementType, payload.Movement.WalletID)

	out, err := c.gate.Submit(opCtx, payload)
	return c.settle(opCtx, epoch, out, err, false)
}

// CreateAnyway creates the retained payload after a duplicate warning.
func (c *Controller) CreateAnyway(ctx context.Context) (Outcome, error) {
	epoch, opCtx, done, err := c.begin(ctx)
	if err != nil {
		return Outcome{}, err
	}
	defer done()

	out, err := c.gate.CreateAnyway(opCtx)
	return c.settle(opCtx, epoch, out, err, true)
}

// CancelDuplicate drops the retained payload and returns to confirmation.
func (c *Controller) CancelDuplicate() bool {
	if !c.gate.Cancel() {
		return false
	}
	c.machine.GoTo(wizard.StepCount - 1)
	c.auditor().Event(logging.AuditDuplicateResolved, "cancelled", map[string]interface{}{"resolution": "cancel"})
	c.emit(LevelInfo, "Submission cancelled. Review the movement and try again.")
	return true
}

func (c *Controller) settle(ctx context.Context, epoch uint64, out duplicates.Outcome, err error, resolved bool) (Outcome, error) {
	result := Outcome{Validation: wizard.Result{OK: true}, Outcome: out}
	if !c.current(epoch) {
		logging.Get(logging.CategorySession).Warn("dropping submission result after close (created=%v)", out.Created)
		if err == nil && out.Created {
			// The movement exists; its draft must not come back on the next open.
			wipeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persist.DefaultWriteTimeout)
			c.deps.Persistence.Discard(wipeCtx)
			cancel()
			c.auditor().Event(logging.AuditMovementCreated, "movement created after close", map[string]interface{}{
				"movement_id": out.Movement.ID,
			})
		}
		return result, ErrClosed
	}

	if err != nil {
		if errors.Is(err, duplicates.ErrCheckInFlight) || errors.Is(err, duplicates.ErrAwaitingResolution) || errors.Is(err, duplicates.ErrNothingPending) {
			return result, err
		}
		c.auditor().Failure(logging.AuditMovementFailed, err, nil)
		c.emit(LevelError, "Could not create the movement. Your input is kept, try again.")
		return result, err
	}

	if out.Paused {
		c.auditor().Event(logging.AuditDuplicatePaused, "duplicate candidates", map[string]interface{}{"count": len(out.Candidates)})
		c.emit(LevelInfo, "This looks like %d movement(s) you already have", len(out.Candidates))
		return result, nil
	}

	if resolved {
		c.auditor().Event(logging.AuditDuplicateResolved, "created anyway", map[string]interface{}{"resolution": "create"})
	}
	c.machine.Reset()
	c.deps.Persistence.Discard(ctx)
	c.auditor().Event(logging.AuditMovementCreated, "movement created", map[string]interface{}{
		"movement_id":  out.Movement.ID,
		"check_failed": out.CheckFailed,
	})
	logging.Submit("movement %s created", out.Movement.ID)
	c.emit(LevelSuccess, "Movement created")
	return result, nil
}

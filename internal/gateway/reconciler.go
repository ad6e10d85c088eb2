package gateway

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"debtflow/internal/api"
	"debtflow/internal/clock"
	"debtflow/internal/logging"
	"debtflow/internal/wizard"
)

// Reconciler checks the gateway connection and handles the authorization
// round trip.
type Reconciler struct {
	gw       api.Gateway
	recovery *RecoveryStore
	clock    clock.Clock
	maxAge   time.Duration
	timeout  time.Duration
	group    singleflight.Group
}

// DefaultCheckTimeout bounds a shared status check.
const DefaultCheckTimeout = 15 * time.Second

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithClock sets the clock used for record timestamps and expiry.
func WithClock(c clock.Clock) ReconcilerOption {
	return func(r *Reconciler) { r.clock = clock.OrReal(c) }
}

// WithMaxRecoveryAge sets how old a recovery record may be and still count.
func WithMaxRecoveryAge(d time.Duration) ReconcilerOption {
	return func(r *Reconciler) {
		if d > 0 {
			r.maxAge = d
		}
	}
}

// WithCheckTimeout bounds each shared status request.
func WithCheckTimeout(d time.Duration) ReconcilerOption {
	return func(r *Reconciler) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func NewReconciler(gw api.Gateway, recovery *RecoveryStore, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		gw:       gw,
		recovery: recovery,
		clock:    clock.Real{},
		maxAge:   DefaultMaxRecoveryAge,
		timeout:  DefaultCheckTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Check asks the backend for the connection status. Concurrent calls share a
// single request, which runs detached from any one caller's context and is
// bounded by the check timeout; each caller still stops waiting when its own
// ctx ends. On error the status is disconnected and the error returned.
func (r *Reconciler) Check(ctx context.Context) (wizard.ConnectionStatus, error) {
	ch := r.group.DoChan("status", func() (interface{}, error) {
		reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		st, err := r.gw.ConnectionStatus(reqCtx)
		if err != nil {
			return wizard.StatusDisconnected, err
		}
		if st.Connected {
			return wizard.StatusConnected, nil
		}
		return wizard.StatusDisconnected, nil
	})

	select {
	case <-ctx.Done():
		return wizard.StatusDisconnected, fmt.Errorf("gateway status check: %w", ctx.Err())
	case res := <-ch:
		status := res.Val.(wizard.ConnectionStatus)
		if res.Err != nil {
			logging.Get(logging.CategoryGateway).Warn("status check failed: %v", res.Err)
			return status, fmt.Errorf("gateway status check: %w", res.Err)
		}
		logging.Gateway("status: %s (shared=%v)", status, res.Shared)
		return status, nil
	}
}

// Authorization is a started authorization round trip.
type Authorization struct {
	URL    string
	Record RecoveryRecord
}

// BeginAuthorization stores a recovery record for st and returns the URL to
// send the user to, carrying a fresh state token and, when set, the callback.
func (r *Reconciler) BeginAuthorization(ctx context.Context, st wizard.State, callbackURL string) (Authorization, error) {
	authURL, err := r.gw.AuthorizationURL(ctx)
	if err != nil {
		return Authorization{}, fmt.Errorf("failed to get authorization URL: %w", err)
	}
	u, err := url.Parse(authURL)
	if err != nil {
		return Authorization{}, fmt.Errorf("invalid authorization URL: %w", err)
	}

	rec := RecoveryRecord{
		SchemaVersion: RecoverySchemaVersion,
		Step:          st.Step,
		PaymentMethod: string(st.Selections.MethodKind()),
		WalletID:      st.Selections.WalletID,
		StateToken:    uuid.NewString(),
		CreatedAt:     r.clock.Now().UTC(),
	}

	q := u.Query()
	q.Set(ParamState, rec.StateToken)
	if callbackURL != "" {
		q.Set("redirect_uri", callbackURL)
	}
	u.RawQuery = q.Encode()

	if err := r.recovery.Save(ctx, rec); err != nil {
		return Authorization{}, fmt.Errorf("failed to store recovery record: %w", err)
	}
	logging.Gateway("authorization started: step=%d wallet=%s", rec.Step, rec.WalletID)
	return Authorization{URL: u.String(), Record: rec}, nil
}

// Reconciliation is the outcome of Reconcile.
type Reconciliation struct {
	// Triggered is false when there was nothing to reconcile.
	Triggered bool
	// Record is the recovery record found, nil when there was none.
	Record *RecoveryRecord
	Status wizard.ConnectionStatus
	// StateMismatch is set when the return trip carried a different state
	// token than the stored record; the record is not used to restore.
	StateMismatch bool
	// GatewayError is the error reported by the gateway on the return trip.
	GatewayError string
	// Err is a failed status check.
	Err error
}

// Connected reports whether the check found the account connected.
func (r Reconciliation) Connected() bool {
	return r.Status == wizard.StatusConnected
}

// Reconcile runs when the wizard opens. If a recovery record exists or params
// signal a return, it performs exactly one status check and clears the record.
// The caller consumes params (Inbox.Take) before calling.
func (r *Reconciler) Reconcile(ctx context.Context, params ReturnParams) Reconciliation {
	rec, found, err := r.recovery.Load(ctx)
	if err != nil {
		logging.Get(logging.CategoryGateway).Error("failed to load recovery record: %v", err)
	}
	if found && r.maxAge > 0 && r.clock.Now().Sub(rec.CreatedAt) > r.maxAge && !params.Signaled() {
		logging.Gateway("discarding stale recovery record from %s", rec.CreatedAt.Format(time.RFC3339))
		r.clearRecord(ctx)
		found = false
	}
	if !found && !params.Signaled() {
		return Reconciliation{}
	}

	out := Reconciliation{Triggered: true, GatewayError: params.Error}
	if found {
		if params.State != "" && params.State != rec.StateToken {
			logging.Get(logging.CategoryGateway).Warn("return trip state token does not match recovery record")
			out.StateMismatch = true
		} else {
			out.Record = &rec
		}
	}

	out.Status, out.Err = r.Check(ctx)
	r.clearRecord(ctx)
	return out
}

func (r *Reconciler) clearRecord(ctx context.Context) {
	if err := r.recovery.Clear(ctx); err != nil {
		logging.Get(logging.CategoryGateway).Error("failed to clear recovery record: %v", err)
	}
}

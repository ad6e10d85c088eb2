// Package submit turns a completed wizard state into the create-movement
// request the backend expects.
package submit

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"debtflow/internal/api"
	"debtflow/internal/calc"
	"debtflow/internal/wizard"
)

var (
	ErrIncomplete          = errors.New("wizard state is incomplete")
	ErrUnknownRelationship = errors.New("unknown relationship")
	ErrMissingIdentity     = errors.New("signed-in user e-mail required")
)

// Party is one side of a movement.
type Party struct {
	Email string
	Name  string
}

// ResolveParties assigns debtor and creditor from the relationship. Every
// known relationship yields both parties; unknown values yield an error and
// no parties.
func ResolveParties(rel wizard.Relationship, me, counterpart Party) (debtor, creditor Party, err error) {
	switch rel {
	case wizard.OtherOwesMe:
		return counterpart, me, nil
	case wizard.IOweOther:
		return me, counterpart, nil
	case wizard.IOweMyself:
		return me, me, nil
	}
	return Party{}, Party{}, fmt.Errorf("%w: %q", ErrUnknownRelationship, rel)
}

// Counterpart returns the party entered in the wizard for rel.
func Counterpart(st wizard.State) Party {
	switch st.Selections.Relationship {
	case wizard.OtherOwesMe:
		return Party{Email: st.Fields.DebtorEmail, Name: st.Fields.DebtorName}
	case wizard.IOweOther:
		return Party{Email: st.Fields.CreditorEmail, Name: st.Fields.CreditorName}
	}
	return Party{}
}

// Payload is an assembled create request plus what the duplicate check needs.
type Payload struct {
	Movement       api.MovementInput
	IdempotencyKey string
	// CounterpartEmail is the other side of the movement, or the user for a
	// self debt.
	CounterpartEmail string
}

// DuplicateCriteria are the key fields of the payload.
func (p Payload) DuplicateCriteria() api.DuplicateCriteria {
	return api.DuplicateCriteria{
		WalletID:         p.Movement.WalletID,
		CounterpartEmail: p.CounterpartEmail,
		Amount:           p.Movement.TotalAmount,
		Description:      p.Movement.Description,
	}
}

type options struct {
	policy calc.MonthEndPolicy
	key    func() string
}

// Option configures Assemble.
type Option func(*options)

// WithPolicy sets the month-end policy for the first recurring due date.
func WithPolicy(p calc.MonthEndPolicy) Option {
	return func(o *options) { o.policy = p }
}

// WithIdempotencyKey overrides key generation.
func WithIdempotencyKey(key string) Option {
	return func(o *options) { o.key = func() string { return key } }
}

// Assemble validates st and builds the payload: method first, then schedule.
func Assemble(st wizard.State, me Party, now time.Time, opts ...Option) (Payload, error) {
	o := options{policy: calc.PolicyClamp, key: uuid.NewString}
	for _, opt := range opts {
		opt(&o)
	}

	if res := wizard.Validate(st); !res.OK {
		return Payload{}, fmt.Errorf("%w: %s", ErrIncomplete, res.Message)
	}
	if strings.TrimSpace(me.Email) == "" {
		return Payload{}, ErrMissingIdentity
	}

	counterpart := Counterpart(st)
	if st.Selections.Relationship == wizard.IOweMyself {
		counterpart = me
	}
	debtor, creditor, err := ResolveParties(st.Selections.Relationship, me, counterpart)
	if err != nil {
		return Payload{}, err
	}

	schedule := st.Selections.Schedule()
	in := api.MovementInput{
		WalletID:      st.Selections.WalletID,
		Description:   strings.TrimSpace(st.Fields.Description),
		TotalAmount:   st.Fields.TotalAmount,
		Installments:  1,
		PaymentMethod: string(st.Selections.MethodKind()),
		MovementType:  string(schedule),
		DebtorEmail:   debtor.Email,
		DebtorName:    debtor.Name,
		CreditorEmail: creditor.Email,
		CreditorName:  creditor.Name,
	}

	switch m := st.Selections.Method.(type) {
	case wizard.PixMethod:
		in.PixKeyID = m.PixKeyID
	case wizard.GatewayMethod:
		in.GatewayPaymentType = string(m.PaymentType)
	}

	switch schedule {
	case wizard.MovementRecurring:
		rec, err := recurring(st, now, o.policy)
		if err != nil {
			return Payload{}, err
		}
		in.Recurring = rec
		in.DueDate = rec.FirstDueDate

	case wizard.MovementInstallment:
		in.Installments = st.Fields.Installments
		in.DueDate = st.Fields.DueDate.Format(wizard.DateLayout)
		if st.Installment.IsInProgress && st.Installment.Mode == calc.ModePerInstallment {
			in.InProgress = &api.InProgressInput{
				InstallmentAmount: st.Installment.InstallmentAmount,
				TotalInstallments: st.Installment.TotalInstallments,
				PaidInstallments:  st.Installment.PaidInstallments,
			}
		}

	default:
		in.DueDate = st.Fields.DueDate.Format(wizard.DateLayout)
	}

	return Payload{
		Movement:         in,
		IdempotencyKey:   o.key(),
		CounterpartEmail: counterpart.Email,
	}, nil
}

// recurring builds the recurring block. Monthly schedules roll the day of
// month forward from now; weekly ones start on the entered due date when it is
// not in the past, otherwise today.
func recurring(st wizard.State, now time.Time, policy calc.MonthEndPolicy) (*api.RecurringInput, error) {
	rc := st.Recurring
	out := &api.RecurringInput{
		Interval:         string(rc.Interval),
		SubscriptionName: strings.TrimSpace(rc.SubscriptionName),
		DurationMonths:   rc.DurationMonths,
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch rc.Interval {
	case calc.Monthly:
		first, err := calc.NextDueDate(rc.DayOfMonth, now, policy)
		if err != nil {
			return nil, err
		}
		out.DayOfMonth = rc.DayOfMonth
		out.FirstDueDate = first.Format(wizard.DateLayout)
	default:
		first := today
		if due := st.Fields.DueDate; !due.IsZero() && !due.Before(today) {
			first = due
		}
		out.FirstDueDate = first.Format(wizard.DateLayout)
	}
	return out, nil
}

// Package wizard implements the movement-creation wizard: a fixed six-step
// form whose content branches on payment method and schedule, with per-step
// validation gating advancement.
package wizard

import (
	"time"

	"github.com/shopspring/decimal"

	"debtflow/internal/calc"
)

// =============================================================================
// SELECTIONS
// =============================================================================

// MethodKind names a payment method branch.
type MethodKind string

const (
	MethodUnset   MethodKind = ""
	MethodPix     MethodKind = "pix"
	MethodGateway MethodKind = "gateway"
)

// PaymentMethod is a sealed sum type: nil (unset), PixMethod or GatewayMethod.
// Branch-specific choices live inside the branch so a PIX movement type and a
// gateway payment type can never both be set.
type PaymentMethod interface {
	Kind() MethodKind
	isPaymentMethod()
}

// PixMethod is the manual bank-transfer branch.
type PixMethod struct {
	Movement MovementType
	PixKeyID string
}

func (PixMethod) Kind() MethodKind { return MethodPix }
func (PixMethod) isPaymentMethod() {}

// GatewayMethod is the online payment gateway branch.
type GatewayMethod struct {
	PaymentType GatewayPaymentType
}

func (GatewayMethod) Kind() MethodKind { return MethodGateway }
func (GatewayMethod) isPaymentMethod() {}

// MovementType is the schedule chosen on the PIX branch.
type MovementType string

const (
	MovementUnset       MovementType = ""
	MovementSingle      MovementType = "single"
	MovementInstallment MovementType = "installment"
	MovementRecurring   MovementType = "recurring"
)

// Valid reports whether m is a chosen, known movement type.
func (m MovementType) Valid() bool {
	switch m {
	case MovementSingle, MovementInstallment, MovementRecurring:
		return true
	}
	return false
}

// GatewayPaymentType is the charge kind chosen on the gateway branch.
type GatewayPaymentType string

const (
	GatewayUnset        GatewayPaymentType = ""
	GatewayCharge       GatewayPaymentType = "charge"
	GatewayInstallment  GatewayPaymentType = "installment"
	GatewaySubscription GatewayPaymentType = "subscription"
)

// Valid reports whether g is a chosen, known gateway payment type.
func (g GatewayPaymentType) Valid() bool {
	switch g {
	case GatewayCharge, GatewayInstallment, GatewaySubscription:
		return true
	}
	return false
}

// Schedule maps the gateway charge kind onto the shared schedule vocabulary.
func (g GatewayPaymentType) Schedule() MovementType {
	switch g {
	case GatewayCharge:
		return MovementSingle
	case GatewayInstallment:
		return MovementInstallment
	case GatewaySubscription:
		return MovementRecurring
	}
	return MovementUnset
}

// Relationship says who owes whom.
type Relationship string

const (
	OtherOwesMe Relationship = "other-owes-me"
	IOweOther   Relationship = "i-owe-other"
	IOweMyself  Relationship = "i-owe-myself"
)

// Relationships lists every relationship value.
var Relationships = []Relationship{OtherOwesMe, IOweOther, IOweMyself}

// Valid reports whether r is a known relationship.
func (r Relationship) Valid() bool {
	switch r {
	case OtherOwesMe, IOweOther, IOweMyself:
		return true
	}
	return false
}

// Selections are the branch-deciding choices.
type Selections struct {
	WalletID     string
	Method       PaymentMethod
	Relationship Relationship
}

// MethodKind returns the active branch, MethodUnset when no method is chosen.
func (s Selections) MethodKind() MethodKind {
	if s.Method == nil {
		return MethodUnset
	}
	return s.Method.Kind()
}

// Schedule resolves single/installment/recurring from whichever branch is active.
func (s Selections) Schedule() MovementType {
	switch m := s.Method.(type) {
	case PixMethod:
		return m.Movement
	case GatewayMethod:
		return m.PaymentType.Schedule()
	}
	return MovementUnset
}

// =============================================================================
// FIELDS
// =============================================================================

// Fields are the free-form inputs.
type Fields struct {
	Description   string
	TotalAmount   decimal.Decimal
	Installments  int
	DueDate       time.Time // zero means unset; always UTC midnight
	DebtorEmail   string
	DebtorName    string
	CreditorEmail string
	CreditorName  string
}

// InstallmentCalc drives the total <-> per-installment derivation.
type InstallmentCalc struct {
	Mode              calc.Mode
	InstallmentAmount decimal.Decimal
	IsInProgress      bool
	PaidInstallments  int
	TotalInstallments int
}

// RecurringConfig describes a subscription-like movement.
type RecurringConfig struct {
	Interval         calc.Interval
	DayOfMonth       int
	SubscriptionName string
	DurationMonths   int // 0 means open-ended
}

// ConnectionStatus is the gateway account connection state.
type ConnectionStatus string

const (
	StatusUnknown      ConnectionStatus = "unknown"
	StatusChecking     ConnectionStatus = "checking"
	StatusConnected    ConnectionStatus = "connected"
	StatusDisconnected ConnectionStatus = "disconnected"
)

// GatewayConnection is transient: never persisted, always re-checked.
type GatewayConnection struct {
	Status ConnectionStatus
}

// State is the whole wizard state. It is a value type; copies are independent.
type State struct {
	Step        int
	Selections  Selections
	Fields      Fields
	Installment InstallmentCalc
	Recurring   RecurringConfig
	Gateway     GatewayConnection
}

// NewState returns the default state.
func NewState() State {
	return State{
		Step: 0,
		Selections: Selections{
			Relationship: OtherOwesMe,
		},
		Fields: Fields{
			TotalAmount:  decimal.Zero,
			Installments: 1,
		},
		Installment: InstallmentCalc{
			Mode:              calc.ModeTotal,
			InstallmentAmount: decimal.Zero,
		},
		Recurring: RecurringConfig{
			Interval: calc.Monthly,
		},
		Gateway: GatewayConnection{Status: StatusUnknown},
	}
}

// PixKeyID returns the selected PIX key, empty off the PIX branch.
func (s State) PixKeyID() string {
	if pix, ok := s.Selections.Method.(PixMethod); ok {
		return pix.PixKeyID
	}
	return ""
}

// PerInstallmentAmount is the display-only split of the total in total mode,
// or the typed amount in per-installment mode.
func (s State) PerInstallmentAmount() decimal.Decimal {
	if s.Installment.Mode == calc.ModePerInstallment {
		return s.Installment.InstallmentAmount
	}
	return calc.PerInstallment(s.Fields.TotalAmount, s.Fields.Installments)
}

// IsTerminal reports whether the state sits on the confirmation step.
func (s State) IsTerminal() bool {
	return s.Step == StepCount-1
}

// clampStep keeps Step inside the defined step range.
func (s *State) clampStep() {
	if s.Step < 0 {
		s.Step = 0
	}
	if s.Step > StepCount-1 {
		s.Step = StepCount - 1
	}
}

// recompute refreshes derived amounts after a mutation. In per-installment
// mode the total and the installment count are outputs, not inputs.
func (s *State) recompute() {
	if s.Installment.Mode != calc.ModePerInstallment || s.Selections.Schedule() != MovementInstallment {
		return
	}
	out, err := calc.Installments(calc.Input{
		Mode:              calc.ModePerInstallment,
		InstallmentAmount: s.Installment.InstallmentAmount,
		Installments:      s.Fields.Installments,
		InProgress:        s.Installment.IsInProgress,
		TotalInstallments: s.Installment.TotalInstallments,
		PaidInstallments:  s.Installment.PaidInstallments,
	})
	if err != nil {
		// Invalid configuration; step validation reports it.
		return
	}
	s.Fields.TotalAmount = out.TotalAmount
	s.Fields.Installments = out.Installments
}

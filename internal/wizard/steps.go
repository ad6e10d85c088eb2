package wizard

import (
	"fmt"
	"net/mail"
	"strings"

	"debtflow/internal/calc"
)

// StepID identifies a wizard step.
type StepID string

const (
	StepWallet        StepID = "wallet"
	StepPaymentMethod StepID = "payment-method"
	StepMovement      StepID = "movement"
	StepParties       StepID = "parties"
	StepAmounts       StepID = "amounts"
	StepConfirm       StepID = "confirm"
)

// StepCount is fixed so the progress indicator never jumps; branch
// differences change step content, not the number of steps.
const StepCount = 6

// Result is the outcome of validating a step. A failed result carries the
// first offending field and a single human-readable message.
type Result struct {
	OK       bool
	Step     StepID
	Field    Field
	Message  string
	Terminal bool // Next was called on the confirmation step
}

func ok(step StepID) Result { return Result{OK: true, Step: step} }

func fail(step StepID, f Field, format string, args ...interface{}) Result {
	return Result{Step: step, Field: f, Message: fmt.Sprintf(format, args...)}
}

// InputKind tells a front end how to collect a field.
type InputKind int

const (
	InputText InputKind = iota
	InputChoice
	InputToggle
)

// FieldSpec describes one input shown on a step.
type FieldSpec struct {
	Field    Field
	Label    string
	Kind     InputKind
	Options  []string // static choices; dynamic ones (wallets, PIX keys) come from the session
	Optional bool
	Relevant func(State) bool
}

// StepDefinition is one position in the wizard.
type StepDefinition struct {
	ID       StepID
	Title    func(State) string
	Validate func(State) Result
	Fields   []FieldSpec
}

// VisibleFields resolves the step's content for the current branch.
func (d StepDefinition) VisibleFields(s State) []FieldSpec {
	out := make([]FieldSpec, 0, len(d.Fields))
	for _, f := range d.Fields {
		if f.Relevant == nil || f.Relevant(s) {
			out = append(out, f)
		}
	}
	return out
}

// IsRelevant reports whether the step has anything to show for this branch.
// The confirmation step is always relevant.
func (d StepDefinition) IsRelevant(s State) bool {
	return d.ID == StepConfirm || len(d.VisibleFields(s)) > 0
}

func always(State) bool { return true }

func isPix(s State) bool     { return s.Selections.MethodKind() == MethodPix }
func isGateway(s State) bool { return s.Selections.MethodKind() == MethodGateway }

func isInstallment(s State) bool { return s.Selections.Schedule() == MovementInstallment }
func isRecurring(s State) bool   { return s.Selections.Schedule() == MovementRecurring }

func perInstallment(s State) bool {
	return isInstallment(s) && s.Installment.Mode == calc.ModePerInstallment
}

func inProgress(s State) bool {
	return perInstallment(s) && s.Installment.IsInProgress
}

// Steps returns the step definitions in order.
func Steps() []StepDefinition {
	return steps
}

// StepAt returns the definition for index i, clamped to the valid range.
func StepAt(i int) StepDefinition {
	if i < 0 {
		i = 0
	}
	if i >= len(steps) {
		i = len(steps) - 1
	}
	return steps[i]
}

// IndexOf returns the position of id, or -1 when no step has that id.
func IndexOf(id StepID) int {
	for i, d := range steps {
		if d.ID == id {
			return i
		}
	}
	return -1
}

var steps = []StepDefinition{
	{
		ID:    StepWallet,
		Title: func(State) string { return "Wallet" },
		Fields: []FieldSpec{
			{Field: FieldWallet, Label: "Wallet", Kind: InputChoice, Relevant: always},
		},
		Validate: validateWallet,
	},
	{
		ID:    StepPaymentMethod,
		Title: func(State) string { return "Payment method" },
		Fields: []FieldSpec{
			{Field: FieldPaymentMethod, Label: "How will this be paid?", Kind: InputChoice,
				Options: []string{string(MethodPix), string(MethodGateway)}, Relevant: always},
		},
		Validate: validatePaymentMethod,
	},
	{
		ID: StepMovement,
		Title: func(s State) string {
			switch s.Selections.MethodKind() {
			case MethodGateway:
				return "Gateway payment type"
			case MethodPix:
				return "Movement type"
			}
			return "Movement"
		},
		Fields: []FieldSpec{
			{Field: FieldMovementType, Label: "Movement type", Kind: InputChoice,
				Options: []string{string(MovementSingle), string(MovementInstallment), string(MovementRecurring)}, Relevant: isPix},
			{Field: FieldGatewayPaymentType, Label: "Gateway payment type", Kind: InputChoice,
				Options: []string{string(GatewayCharge), string(GatewayInstallment), string(GatewaySubscription)}, Relevant: isGateway},
		},
		Validate: validateMovement,
	},
	{
		ID:    StepParties,
		Title: func(State) string { return "Who is involved" },
		Fields: []FieldSpec{
			{Field: FieldDescription, Label: "Description", Kind: InputText, Relevant: always},
			{Field: FieldRelationship, Label: "Relationship", Kind: InputChoice,
				Options: []string{string(OtherOwesMe), string(IOweOther), string(IOweMyself)}, Relevant: always},
			{Field: FieldDebtorEmail, Label: "Debtor e-mail", Kind: InputText,
				Relevant: func(s State) bool { return s.Selections.Relationship == OtherOwesMe }},
			{Field: FieldDebtorName, Label: "Debtor name", Kind: InputText, Optional: true,
				Relevant: func(s State) bool { return s.Selections.Relationship == OtherOwesMe }},
			{Field: FieldCreditorEmail, Label: "Creditor e-mail", Kind: InputText,
				Relevant: func(s State) bool { return s.Selections.Relationship == IOweOther }},
			{Field: FieldCreditorName, Label: "Creditor name", Kind: InputText, Optional: true,
				Relevant: func(s State) bool { return s.Selections.Relationship == IOweOther }},
		},
		Validate: validateParties,
	},
	{
		ID:    StepAmounts,
		Title: func(State) string { return "Amounts and schedule" },
		Fields: []FieldSpec{
			{Field: FieldInstallmentMode, Label: "I know the", Kind: InputChoice,
				Options: []string{string(calc.ModeTotal), string(calc.ModePerInstallment)}, Relevant: isInstallment},
			{Field: FieldInProgress, Label: "Already paying (has history)", Kind: InputToggle, Relevant: perInstallment},
			{Field: FieldTotalAmount, Label: "Total amount", Kind: InputText,
				Relevant: func(s State) bool { return !perInstallment(s) }},
			{Field: FieldInstallmentAmount, Label: "Installment amount", Kind: InputText, Relevant: perInstallment},
			{Field: FieldInstallments, Label: "Installments", Kind: InputText,
				Relevant: func(s State) bool { return isInstallment(s) && !inProgress(s) }},
			{Field: FieldTotalInstallments, Label: "Total installments", Kind: InputText, Relevant: inProgress},
			{Field: FieldPaidInstallments, Label: "Installments already paid", Kind: InputText, Relevant: inProgress},
			{Field: FieldDueDate, Label: "Due date (YYYY-MM-DD)", Kind: InputText,
				Relevant: func(s State) bool { return !isRecurring(s) }},
			{Field: FieldInterval, Label: "Interval", Kind: InputChoice,
				Options: []string{string(calc.Monthly), string(calc.Weekly), string(calc.Biweekly)}, Relevant: isRecurring},
			{Field: FieldDayOfMonth, Label: "Day of month", Kind: InputText, Relevant: isRecurring},
			{Field: FieldSubscriptionName, Label: "Subscription name", Kind: InputText, Optional: true, Relevant: isRecurring},
			{Field: FieldDurationMonths, Label: "Duration in months (0 = open-ended)", Kind: InputText, Optional: true, Relevant: isRecurring},
			{Field: FieldPixKeyID, Label: "PIX key", Kind: InputChoice, Relevant: isPix},
		},
		Validate: validateAmounts,
	},
	{
		ID:       StepConfirm,
		Title:    func(State) string { return "Confirm" },
		Validate: validateConfirm,
	},
}

// =============================================================================
// VALIDATION
// =============================================================================

func validateWallet(s State) Result {
	if strings.TrimSpace(s.Selections.WalletID) == "" {
		return fail(StepWallet, FieldWallet, "Select a wallet to continue.")
	}
	return ok(StepWallet)
}

func validatePaymentMethod(s State) Result {
	switch s.Selections.MethodKind() {
	case MethodUnset:
		return fail(StepPaymentMethod, FieldPaymentMethod, "Choose a payment method.")
	case MethodGateway:
		if s.Gateway.Status != StatusConnected {
			return fail(StepPaymentMethod, FieldPaymentMethod, "Connect your payment gateway account before continuing.")
		}
	}
	return ok(StepPaymentMethod)
}

func validateMovement(s State) Result {
	switch m := s.Selections.Method.(type) {
	case PixMethod:
		if !m.Movement.Valid() {
			return fail(StepMovement, FieldMovementType, "Choose a movement type.")
		}
	case GatewayMethod:
		if !m.PaymentType.Valid() {
			return fail(StepMovement, FieldGatewayPaymentType, "Choose a gateway payment type.")
		}
	default:
		return fail(StepMovement, FieldPaymentMethod, "Choose a payment method first.")
	}
	return ok(StepMovement)
}

func validateParties(s State) Result {
	if strings.TrimSpace(s.Fields.Description) == "" {
		return fail(StepParties, FieldDescription, "Describe the movement.")
	}
	switch s.Selections.Relationship {
	case OtherOwesMe:
		if !validEmail(s.Fields.DebtorEmail) {
			return fail(StepParties, FieldDebtorEmail, "Enter a valid debtor e-mail.")
		}
	case IOweOther:
		if !validEmail(s.Fields.CreditorEmail) {
			return fail(StepParties, FieldCreditorEmail, "Enter a valid creditor e-mail.")
		}
	case IOweMyself:
		// Both sides are the signed-in user.
	default:
		return fail(StepParties, FieldRelationship, "Choose who owes whom.")
	}
	return ok(StepParties)
}

func validateAmounts(s State) Result {
	schedule := s.Selections.Schedule()

	if inProgress(s) {
		if _, err := calc.Remaining(s.Installment.TotalInstallments, s.Installment.PaidInstallments); err != nil {
			return fail(StepAmounts, FieldPaidInstallments, "Paid installments must be fewer than the total installments.")
		}
	}
	if perInstallment(s) && !s.Installment.InstallmentAmount.IsPositive() {
		return fail(StepAmounts, FieldInstallmentAmount, "Enter the installment amount.")
	}
	if !s.Fields.TotalAmount.IsPositive() {
		return fail(StepAmounts, FieldTotalAmount, "Enter the total amount.")
	}
	if schedule == MovementInstallment && s.Fields.Installments <= 0 {
		return fail(StepAmounts, FieldInstallments, "Enter how many installments.")
	}
	if schedule != MovementRecurring && s.Fields.DueDate.IsZero() {
		return fail(StepAmounts, FieldDueDate, "Enter the due date.")
	}
	if schedule == MovementRecurring {
		if !s.Recurring.Interval.Valid() {
			return fail(StepAmounts, FieldInterval, "Choose how often it repeats.")
		}
		if s.Recurring.Interval == calc.Monthly && (s.Recurring.DayOfMonth < 1 || s.Recurring.DayOfMonth > 31) {
			return fail(StepAmounts, FieldDayOfMonth, "Day of month must be between 1 and 31.")
		}
	}
	if isPix(s) && strings.TrimSpace(s.PixKeyID()) == "" {
		return fail(StepAmounts, FieldPixKeyID, "Select or create a PIX key.")
	}
	return ok(StepAmounts)
}

func validateConfirm(s State) Result {
	// Listed explicitly: referencing steps here would be an initialization cycle.
	for _, validate := range []func(State) Result{
		validateWallet, validatePaymentMethod, validateMovement, validateParties, validateAmounts,
	} {
		if r := validate(s); !r.OK {
			return r
		}
	}
	return ok(StepConfirm)
}

func validEmail(addr string) bool {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return false
	}
	parsed, err := mail.ParseAddress(addr)
	return err == nil && parsed.Address == addr
}

// Validate runs every step's validation in order and reports the first
// failure, exactly as the confirmation step does.
func Validate(s State) Result {
	return validateConfirm(s)
}

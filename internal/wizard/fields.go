package wizard

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"debtflow/internal/calc"
	"debtflow/internal/money"
)

// Field names an input the wizard can set by key.
type Field string

const (
	FieldWallet             Field = "wallet_id"
	FieldPaymentMethod      Field = "payment_method"
	FieldMovementType       Field = "movement_type"
	FieldGatewayPaymentType Field = "gateway_payment_type"
	FieldRelationship       Field = "relationship"
	FieldDescription        Field = "description"
	FieldTotalAmount        Field = "total_amount"
	FieldInstallments       Field = "installments"
	FieldDueDate            Field = "due_date"
	FieldDebtorEmail        Field = "debtor_email"
	FieldDebtorName         Field = "debtor_name"
	FieldCreditorEmail      Field = "creditor_email"
	FieldCreditorName       Field = "creditor_name"
	FieldPixKeyID           Field = "pix_key_id"
	FieldInstallmentMode    Field = "installment_mode"
	FieldInstallmentAmount  Field = "installment_amount"
	FieldInProgress         Field = "in_progress"
	FieldPaidInstallments   Field = "paid_installments"
	FieldTotalInstallments  Field = "total_installments"
	FieldInterval           Field = "interval"
	FieldDayOfMonth         Field = "day_of_month"
	FieldSubscriptionName   Field = "subscription_name"
	FieldDurationMonths     Field = "duration_months"
)

// DateLayout is the accepted due-date format.
const DateLayout = "2006-01-02"

var (
	ErrUnknownField       = errors.New("unknown field")
	ErrInvalidValue       = errors.New("invalid value")
	ErrFieldNotApplicable = errors.New("field does not apply to the selected payment method")
)

// applyField parses value and stores it in s. It never panics.
func applyField(s *State, f Field, value string) error {
	v := strings.TrimSpace(value)

	switch f {
	case FieldWallet:
		s.Selections.WalletID = v

	case FieldPaymentMethod:
		switch MethodKind(strings.ToLower(v)) {
		case MethodPix:
			choosePix(s)
		case MethodGateway:
			chooseGateway(s)
		case MethodUnset:
			s.Selections.Method = nil
		default:
			return invalid(f, value)
		}

	case FieldMovementType:
		m := MovementType(strings.ToLower(v))
		if m != MovementUnset && !m.Valid() {
			return invalid(f, value)
		}
		pix, ok := s.Selections.Method.(PixMethod)
		if !ok {
			return fmt.Errorf("%w: %s", ErrFieldNotApplicable, f)
		}
		pix.Movement = m
		s.Selections.Method = pix

	case FieldGatewayPaymentType:
		g := GatewayPaymentType(strings.ToLower(v))
		if g != GatewayUnset && !g.Valid() {
			return invalid(f, value)
		}
		gw, ok := s.Selections.Method.(GatewayMethod)
		if !ok {
			return fmt.Errorf("%w: %s", ErrFieldNotApplicable, f)
		}
		gw.PaymentType = g
		s.Selections.Method = gw

	case FieldPixKeyID:
		pix, ok := s.Selections.Method.(PixMethod)
		if !ok {
			return fmt.Errorf("%w: %s", ErrFieldNotApplicable, f)
		}
		pix.PixKeyID = v
		s.Selections.Method = pix

	case FieldRelationship:
		r := Relationship(strings.ToLower(v))
		if !r.Valid() {
			return invalid(f, value)
		}
		s.Selections.Relationship = r

	case FieldDescription:
		s.Fields.Description = v
	case FieldDebtorEmail:
		s.Fields.DebtorEmail = strings.ToLower(v)
	case FieldDebtorName:
		s.Fields.DebtorName = v
	case FieldCreditorEmail:
		s.Fields.CreditorEmail = strings.ToLower(v)
	case FieldCreditorName:
		s.Fields.CreditorName = v

	case FieldTotalAmount:
		if v == "" {
			s.Fields.TotalAmount = money.FromCents(0)
			return nil
		}
		d, err := money.Parse(v)
		if err != nil {
			return fmt.Errorf("%s: %w", f, err)
		}
		s.Fields.TotalAmount = d

	case FieldInstallmentAmount:
		if v == "" {
			s.Installment.InstallmentAmount = money.FromCents(0)
			return nil
		}
		d, err := money.Parse(v)
		if err != nil {
			return fmt.Errorf("%s: %w", f, err)
		}
		s.Installment.InstallmentAmount = d

	case FieldDueDate:
		if v == "" {
			s.Fields.DueDate = time.Time{}
			return nil
		}
		d, err := time.Parse(DateLayout, v)
		if err != nil {
			return invalid(f, value)
		}
		s.Fields.DueDate = d

	case FieldInstallments:
		return setInt(f, v, &s.Fields.Installments)
	case FieldPaidInstallments:
		return setInt(f, v, &s.Installment.PaidInstallments)
	case FieldTotalInstallments:
		return setInt(f, v, &s.Installment.TotalInstallments)
	case FieldDayOfMonth:
		return setInt(f, v, &s.Recurring.DayOfMonth)
	case FieldDurationMonths:
		return setInt(f, v, &s.Recurring.DurationMonths)

	case FieldInstallmentMode:
		m := calc.Mode(strings.ToLower(v))
		if m != calc.ModeTotal && m != calc.ModePerInstallment {
			return invalid(f, value)
		}
		s.Installment.Mode = m
		if m == calc.ModeTotal {
			s.Installment.IsInProgress = false
		}

	case FieldInProgress:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return invalid(f, value)
		}
		s.Installment.IsInProgress = b
		if b {
			// History only makes sense when the user types the installment value.
			s.Installment.Mode = calc.ModePerInstallment
		}

	case FieldInterval:
		i := calc.Interval(strings.ToUpper(v))
		if !i.Valid() {
			return invalid(f, value)
		}
		s.Recurring.Interval = i

	case FieldSubscriptionName:
		s.Recurring.SubscriptionName = v

	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, f)
	}
	return nil
}

func setInt(f Field, v string, dst *int) error {
	if v == "" {
		*dst = 0
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return invalid(f, v)
	}
	*dst = n
	return nil
}

func invalid(f Field, value string) error {
	return fmt.Errorf("%w for %s: %q", ErrInvalidValue, f, value)
}

func choosePix(s *State) {
	if _, ok := s.Selections.Method.(PixMethod); ok {
		return
	}
	s.Selections.Method = PixMethod{}
}

func chooseGateway(s *State) {
	if _, ok := s.Selections.Method.(GatewayMethod); ok {
		return
	}
	s.Selections.Method = GatewayMethod{}
	s.Gateway.Status = StatusUnknown
}

// FieldValue renders the current value of f for display and editing.
func (s State) FieldValue(f Field) string {
	switch f {
	case FieldWallet:
		return s.Selections.WalletID
	case FieldPaymentMethod:
		return string(s.Selections.MethodKind())
	case FieldMovementType:
		if pix, ok := s.Selections.Method.(PixMethod); ok {
			return string(pix.Movement)
		}
	case FieldGatewayPaymentType:
		if gw, ok := s.Selections.Method.(GatewayMethod); ok {
			return string(gw.PaymentType)
		}
	case FieldPixKeyID:
		return s.PixKeyID()
	case FieldRelationship:
		return string(s.Selections.Relationship)
	case FieldDescription:
		return s.Fields.Description
	case FieldTotalAmount:
		if s.Fields.TotalAmount.IsZero() {
			return ""
		}
		return s.Fields.TotalAmount.StringFixed(money.Places)
	case FieldInstallments:
		return itoa(s.Fields.Installments)
	case FieldDueDate:
		if s.Fields.DueDate.IsZero() {
			return ""
		}
		return s.Fields.DueDate.Format(DateLayout)
	case FieldDebtorEmail:
		return s.Fields.DebtorEmail
	case FieldDebtorName:
		return s.Fields.DebtorName
	case FieldCreditorEmail:
		return s.Fields.CreditorEmail
	case FieldCreditorName:
		return s.Fields.CreditorName
	case FieldInstallmentMode:
		return string(s.Installment.Mode)
	case FieldInstallmentAmount:
		if s.Installment.InstallmentAmount.IsZero() {
			return ""
		}
		return s.Installment.InstallmentAmount.StringFixed(money.Places)
	case FieldInProgress:
		return strconv.FormatBool(s.Installment.IsInProgress)
	case FieldPaidInstallments:
		return itoa(s.Installment.PaidInstallments)
	case FieldTotalInstallments:
		return itoa(s.Installment.TotalInstallments)
	case FieldInterval:
		return string(s.Recurring.Interval)
	case FieldDayOfMonth:
		return itoa(s.Recurring.DayOfMonth)
	case FieldSubscriptionName:
		return s.Recurring.SubscriptionName
	case FieldDurationMonths:
		return itoa(s.Recurring.DurationMonths)
	}
	return ""
}

func itoa(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}

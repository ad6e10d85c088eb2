package wizard

import (
	"time"

	"github.com/shopspring/decimal"

	"debtflow/internal/calc"
)

// Draft is the persisted form of State: flat, JSON-friendly, and without
// transient flags (the gateway connection status is always re-checked).
type Draft struct {
	Step               int    `json:"step"`
	WalletID           string `json:"wallet_id,omitempty"`
	PaymentMethod      string `json:"payment_method,omitempty"`
	MovementType       string `json:"movement_type,omitempty"`
	GatewayPaymentType string `json:"gateway_payment_type,omitempty"`
	PixKeyID           string `json:"pix_key_id,omitempty"`
	Relationship       string `json:"relationship,omitempty"`

	Description   string           `json:"description,omitempty"`
	TotalAmount   *decimal.Decimal `json:"total_amount,omitempty"`
	Installments  *int             `json:"installments,omitempty"`
	DueDate       string           `json:"due_date,omitempty"`
	DebtorEmail   string           `json:"debtor_email,omitempty"`
	DebtorName    string           `json:"debtor_name,omitempty"`
	CreditorEmail string           `json:"creditor_email,omitempty"`
	CreditorName  string           `json:"creditor_name,omitempty"`

	InstallmentCalc *DraftInstallment `json:"installment_calc,omitempty"`
	Recurring       *DraftRecurring   `json:"recurring,omitempty"`
}

// DraftInstallment mirrors InstallmentCalc.
type DraftInstallment struct {
	Mode              string           `json:"mode,omitempty"`
	InstallmentAmount *decimal.Decimal `json:"installment_amount,omitempty"`
	IsInProgress      bool             `json:"is_in_progress,omitempty"`
	PaidInstallments  int              `json:"paid_installments,omitempty"`
	TotalInstallments int              `json:"total_installments,omitempty"`
}

// DraftRecurring mirrors RecurringConfig.
type DraftRecurring struct {
	Interval         string `json:"interval,omitempty"`
	DayOfMonth       int    `json:"day_of_month,omitempty"`
	SubscriptionName string `json:"subscription_name,omitempty"`
	DurationMonths   int    `json:"duration_months,omitempty"`
}

// ToDraft flattens s for persistence.
func ToDraft(s State) Draft {
	total := s.Fields.TotalAmount
	perInst := s.Installment.InstallmentAmount
	installments := s.Fields.Installments

	d := Draft{
		Step:          s.Step,
		WalletID:      s.Selections.WalletID,
		PaymentMethod: string(s.Selections.MethodKind()),
		Relationship:  string(s.Selections.Relationship),
		Description:   s.Fields.Description,
		TotalAmount:   &total,
		Installments:  &installments,
		DebtorEmail:   s.Fields.DebtorEmail,
		DebtorName:    s.Fields.DebtorName,
		CreditorEmail: s.Fields.CreditorEmail,
		CreditorName:  s.Fields.CreditorName,
		InstallmentCalc: &DraftInstallment{
			Mode:              string(s.Installment.Mode),
			InstallmentAmount: &perInst,
			IsInProgress:      s.Installment.IsInProgress,
			PaidInstallments:  s.Installment.PaidInstallments,
			TotalInstallments: s.Installment.TotalInstallments,
		},
		Recurring: &DraftRecurring{
			Interval:         string(s.Recurring.Interval),
			DayOfMonth:       s.Recurring.DayOfMonth,
			SubscriptionName: s.Recurring.SubscriptionName,
			DurationMonths:   s.Recurring.DurationMonths,
		},
	}
	switch m := s.Selections.Method.(type) {
	case PixMethod:
		d.MovementType = string(m.Movement)
		d.PixKeyID = m.PixKeyID
	case GatewayMethod:
		d.GatewayPaymentType = string(m.PaymentType)
	}
	if !s.Fields.DueDate.IsZero() {
		d.DueDate = s.Fields.DueDate.Format(DateLayout)
	}
	return d
}

// FromDraft rebuilds a State. Missing or unrecognized values fall back to the
// defaults of NewState; nothing here can fail.
func FromDraft(d Draft) State {
	s := NewState()
	s.Step = d.Step
	s.clampStep()

	s.Selections.WalletID = d.WalletID
	if r := Relationship(d.Relationship); r.Valid() {
		s.Selections.Relationship = r
	}
	switch MethodKind(d.PaymentMethod) {
	case MethodPix:
		pix := PixMethod{PixKeyID: d.PixKeyID}
		if m := MovementType(d.MovementType); m.Valid() {
			pix.Movement = m
		}
		s.Selections.Method = pix
	case MethodGateway:
		gw := GatewayMethod{}
		if g := GatewayPaymentType(d.GatewayPaymentType); g.Valid() {
			gw.PaymentType = g
		}
		s.Selections.Method = gw
	}

	s.Fields.Description = d.Description
	if d.TotalAmount != nil {
		s.Fields.TotalAmount = *d.TotalAmount
	}
	// A cleared field is stored as 0 and restored as 0; only an absent or
	// negative count falls back to the default.
	if d.Installments != nil && *d.Installments >= 0 {
		s.Fields.Installments = *d.Installments
	}
	if d.DueDate != "" {
		if due, err := time.Parse(DateLayout, d.DueDate); err == nil {
			s.Fields.DueDate = due
		}
	}
	s.Fields.DebtorEmail = d.DebtorEmail
	s.Fields.DebtorName = d.DebtorName
	s.Fields.CreditorEmail = d.CreditorEmail
	s.Fields.CreditorName = d.CreditorName

	if ic := d.InstallmentCalc; ic != nil {
		if mode := calc.Mode(ic.Mode); mode == calc.ModeTotal || mode == calc.ModePerInstallment {
			s.Installment.Mode = mode
		}
		if ic.InstallmentAmount != nil {
			s.Installment.InstallmentAmount = *ic.InstallmentAmount
		}
		s.Installment.IsInProgress = ic.IsInProgress
		s.Installment.PaidInstallments = nonNegative(ic.PaidInstallments)
		s.Installment.TotalInstallments = nonNegative(ic.TotalInstallments)
	}
	if rc := d.Recurring; rc != nil {
		if iv := calc.Interval(rc.Interval); iv.Valid() {
			s.Recurring.Interval = iv
		}
		s.Recurring.DayOfMonth = nonNegative(rc.DayOfMonth)
		s.Recurring.SubscriptionName = rc.SubscriptionName
		s.Recurring.DurationMonths = nonNegative(rc.DurationMonths)
	}
	return s
}

func nonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

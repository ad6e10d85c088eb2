package submit

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"debtflow/internal/api"
	"debtflow/internal/calc"
	"debtflow/internal/wizard"
)

var (
	me  = Party{Email: "me@example.com", Name: "Me"}
	now = time.Date(2024, 6, 10, 14, 30, 0, 0, time.UTC)
)

func baseState() wizard.State {
	st := wizard.NewState()
	st.Step = wizard.StepCount - 1
	st.Selections.WalletID = "w-1"
	st.Selections.Method = wizard.PixMethod{Movement: wizard.MovementSingle, PixKeyID: "pk-1"}
	st.Fields.Description = " Dinner "
	st.Fields.DebtorEmail = "ana@example.com"
	st.Fields.DebtorName = "Ana"
	st.Fields.TotalAmount = decimal.RequireFromString("120.50")
	st.Fields.DueDate = time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	return st
}

func TestResolveParties_TotalOverRelationships(t *testing.T) {
	t.Parallel()

	other := Party{Email: "other@example.com"}
	for _, rel := range wizard.Relationships {
		debtor, creditor, err := ResolveParties(rel, me, other)
		require.NoError(t, err, rel)
		assert.NotEmpty(t, debtor.Email, rel)
		assert.NotEmpty(t, creditor.Email, rel)

		again, againCred, _ := ResolveParties(rel, me, other)
		assert.Equal(t, debtor, again, "deterministic")
		assert.Equal(t, creditor, againCred, "deterministic")
	}

	debtor, creditor, _ := ResolveParties(wizard.OtherOwesMe, me, other)
	assert.Equal(t, other, debtor)
	assert.Equal(t, me, creditor)

	debtor, creditor, _ = ResolveParties(wizard.IOweOther, me, other)
	assert.Equal(t, me, debtor)
	assert.Equal(t, other, creditor)

	debtor, creditor, _ = ResolveParties(wizard.IOweMyself, me, other)
	assert.Equal(t, me, debtor)
	assert.Equal(t, me, creditor)

	debtor, creditor, err := ResolveParties("enemies", me, other)
	assert.ErrorIs(t, err, ErrUnknownRelationship)
	assert.Zero(t, debtor)
	assert.Zero(t, creditor)
}

func TestAssemble_PixSingle(t *testing.T) {
	t.Parallel()

	p, err := Assemble(baseState(), me, now, WithIdempotencyKey("k"))
	require.NoError(t, err)

	assert.Equal(t, api.MovementInput{
		WalletID:      "w-1",
		Description:   "Dinner",
		TotalAmount:   decimal.RequireFromString("120.50"),
		Installments:  1,
		DueDate:       "2024-07-01",
		PaymentMethod: "pix",
		MovementType:  "single",
		PixKeyID:      "pk-1",
		DebtorEmail:   "ana@example.com",
		DebtorName:    "Ana",
		CreditorEmail: "me@example.com",
		CreditorName:  "Me",
	}, p.Movement)
	assert.Equal(t, "k", p.IdempotencyKey)

	crit := p.DuplicateCriteria()
	assert.Equal(t, "w-1", crit.WalletID)
	assert.Equal(t, "ana@example.com", crit.CounterpartEmail)
	assert.Equal(t, "Dinner", crit.Description)
	assert.True(t, crit.Amount.Equal(decimal.RequireFromString("120.5")))
}

func TestAssemble_GeneratesIdempotencyKeys(t *testing.T) {
	t.Parallel()

	a, err := Assemble(baseState(), me, now)
	require.NoError(t, err)
	b, err := Assemble(baseState(), me, now)
	require.NoError(t, err)
	assert.NotEmpty(t, a.IdempotencyKey)
	assert.NotEqual(t, a.IdempotencyKey, b.IdempotencyKey)
}

func TestAssemble_InstallmentInProgress(t *testing.T) {
	t.Parallel()

	st := baseState()
	st.Selections.Method = wizard.PixMethod{Movement: wizard.MovementInstallment, PixKeyID: "pk-1"}
	st.Installment = wizard.InstallmentCalc{
		Mode:              calc.ModePerInstallment,
		InstallmentAmount: decimal.NewFromInt(250),
		IsInProgress:      true,
		TotalInstallments: 10,
		PaidInstallments:  4,
	}
	st.Fields.TotalAmount = decimal.NewFromInt(1500)
	st.Fields.Installments = 6

	p, err := Assemble(st, me, now)
	require.NoError(t, err)
	assert.Equal(t, 6, p.Movement.Installments)
	assert.Equal(t, "installment", p.Movement.MovementType)
	require.NotNil(t, p.Movement.InProgress)
	assert.Equal(t, 10, p.Movement.InProgress.TotalInstallments)
	assert.Equal(t, 4, p.Movement.InProgress.PaidInstallments)
	assert.True(t, p.Movement.InProgress.InstallmentAmount.Equal(decimal.NewFromInt(250)))
	assert.Nil(t, p.Movement.Recurring)

	// Without history the trio is omitted.
	st.Installment = wizard.InstallmentCalc{Mode: calc.ModeTotal}
	p, err = Assemble(st, me, now)
	require.NoError(t, err)
	assert.Nil(t, p.Movement.InProgress)
}

func TestAssemble_GatewaySubscription(t *testing.T) {
	t.Parallel()

	st := baseState()
	st.Selections.Method = wizard.GatewayMethod{PaymentType: wizard.GatewaySubscription}
	st.Gateway.Status = wizard.StatusConnected
	st.Fields.DueDate = time.Time{}
	st.Fields.Installments = 12
	st.Recurring = wizard.RecurringConfig{Interval: calc.Monthly, DayOfMonth: 5, SubscriptionName: " Gym ", DurationMonths: 12}

	p, err := Assemble(st, me, now)
	require.NoError(t, err)
	assert.Equal(t, "gateway", p.Movement.PaymentMethod)
	assert.Equal(t, "subscription", p.Movement.GatewayPaymentType)
	assert.Equal(t, "recurring", p.Movement.MovementType)
	assert.Empty(t, p.Movement.PixKeyID)
	assert.Equal(t, 1, p.Movement.Installments, "recurring always forces one installment")
	assert.Equal(t, &api.RecurringInput{
		Interval:         "MONTHLY",
		DayOfMonth:       5,
		SubscriptionName: "Gym",
		DurationMonths:   12,
		FirstDueDate:     "2024-07-05",
	}, p.Movement.Recurring)
	assert.Equal(t, "2024-07-05", p.Movement.DueDate)
}

func TestAssemble_RecurringPolicy(t *testing.T) {
	t.Parallel()

	st := baseState()
	st.Selections.Method = wizard.PixMethod{Movement: wizard.MovementRecurring, PixKeyID: "pk-1"}
	st.Recurring = wizard.RecurringConfig{Interval: calc.Monthly, DayOfMonth: 31}
	april := time.Date(2024, 4, 15, 0, 0, 0, 0, time.UTC)

	p, err := Assemble(st, me, april)
	require.NoError(t, err)
	assert.Equal(t, "2024-04-30", p.Movement.Recurring.FirstDueDate)

	p, err = Assemble(st, me, april, WithPolicy(calc.PolicyOverflow))
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01", p.Movement.Recurring.FirstDueDate)
}

func TestAssemble_WeeklyStartsOnDueDateOrToday(t *testing.T) {
	t.Parallel()

	st := baseState()
	st.Selections.Method = wizard.PixMethod{Movement: wizard.MovementRecurring, PixKeyID: "pk-1"}
	st.Recurring = wizard.RecurringConfig{Interval: calc.Weekly}

	p, err := Assemble(st, me, now)
	require.NoError(t, err)
	assert.Equal(t, "2024-07-01", p.Movement.Recurring.FirstDueDate)
	assert.Zero(t, p.Movement.Recurring.DayOfMonth)

	st.Fields.DueDate = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p, err = Assemble(st, me, now)
	require.NoError(t, err)
	assert.Equal(t, "2024-06-10", p.Movement.Recurring.FirstDueDate)
}

func TestAssemble_SelfDebt(t *testing.T) {
	t.Parallel()

	st := baseState()
	st.Selections.Relationship = wizard.IOweMyself
	st.Fields.DebtorEmail = ""

	p, err := Assemble(st, me, now)
	require.NoError(t, err)
	assert.Equal(t, me.Email, p.Movement.DebtorEmail)
	assert.Equal(t, me.Email, p.Movement.CreditorEmail)
	assert.Equal(t, me.Email, p.CounterpartEmail)
}

func TestAssemble_Rejects(t *testing.T) {
	t.Parallel()

	st := baseState()
	st.Fields.TotalAmount = decimal.Zero
	_, err := Assemble(st, me, now)
	assert.ErrorIs(t, err, ErrIncomplete)

	_, err = Assemble(baseState(), Party{}, now)
	assert.ErrorIs(t, err, ErrMissingIdentity)
}

package wizard

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"debtflow/internal/calc"
)

// =============================================================================
// HELPERS
// =============================================================================

func newMachine() *Machine {
	return NewMachine(NewStore(NewState()))
}

func mustSet(t *testing.T, m *Machine, f Field, v string) {
	t.Helper()
	require.NoError(t, m.SetField(f, v), "set %s=%q", f, v)
}

// fillPixSingle drives m to a state where every step validates.
func fillPixSingle(t *testing.T, m *Machine) {
	t.Helper()
	m.SelectWallet("w-1")
	m.ChoosePix()
	require.NoError(t, m.ChooseMovementType(MovementSingle))
	mustSet(t, m, FieldDescription, "Dinner")
	mustSet(t, m, FieldDebtorEmail, "  Ana@Example.com ")
	mustSet(t, m, FieldTotalAmount, "120,50")
	mustSet(t, m, FieldDueDate, "2024-07-01")
	require.NoError(t, m.SelectPixKey("pk-1"))
}

// =============================================================================
// STEP GATING
// =============================================================================

func TestNext_BlockedWithoutWallet(t *testing.T) {
	t.Parallel()

	m := newMachine()
	res := m.Next()

	assert.False(t, res.OK)
	assert.Equal(t, StepWallet, res.Step)
	assert.Equal(t, FieldWallet, res.Field)
	assert.NotEmpty(t, res.Message)
	assert.Equal(t, 0, m.State().Step)

	m.SelectWallet("w-1")
	res = m.Next()
	assert.True(t, res.OK)
	assert.Equal(t, 1, m.State().Step)
}

func TestNext_GatewayRequiresConnection(t *testing.T) {
	t.Parallel()

	m := newMachine()
	m.SelectWallet("w-1")
	require.True(t, m.Next().OK)

	m.ChooseGateway()
	res := m.Next()
	assert.False(t, res.OK)
	assert.Equal(t, FieldPaymentMethod, res.Field)
	assert.Equal(t, 1, m.State().Step)

	m.SetGatewayStatus(StatusConnected)
	assert.True(t, m.Next().OK)
	assert.Equal(t, 2, m.State().Step)
}

func TestNext_TerminalDoesNotMove(t *testing.T) {
	t.Parallel()

	m := newMachine()
	fillPixSingle(t, m)
	for i := 0; i < StepCount-1; i++ {
		res := m.Next()
		require.True(t, res.OK, "step %d: %s", i, res.Message)
		require.False(t, res.Terminal)
	}
	require.True(t, m.State().IsTerminal())

	res := m.Next()
	assert.True(t, res.OK)
	assert.True(t, res.Terminal)
	assert.Equal(t, StepCount-1, m.State().Step)
}

func TestPrev_StopsAtZeroAndSkipsValidation(t *testing.T) {
	t.Parallel()

	m := newMachine()
	m.Prev()
	assert.Equal(t, 0, m.State().Step)

	m.GoTo(3)
	m.Prev()
	assert.Equal(t, 2, m.State().Step)
}

func TestGoTo_Clamps(t *testing.T) {
	t.Parallel()

	m := newMachine()
	m.GoTo(99)
	assert.Equal(t, StepCount-1, m.State().Step)
	m.GoTo(-4)
	assert.Equal(t, 0, m.State().Step)
}

func TestIndexOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, IndexOf(StepWallet))
	assert.Equal(t, 1, IndexOf(StepPaymentMethod))
	assert.Equal(t, StepCount-1, IndexOf(StepConfirm))
	assert.Equal(t, -1, IndexOf("nope"))
}

func TestConfirm_ReportsFirstFailure(t *testing.T) {
	t.Parallel()

	m := newMachine()
	fillPixSingle(t, m)
	mustSet(t, m, FieldDescription, "")
	m.GoTo(StepCount - 1)

	res := m.Next()
	assert.False(t, res.OK)
	assert.Equal(t, StepParties, res.Step)
	assert.Equal(t, FieldDescription, res.Field)
}

// =============================================================================
// STEP VALIDATION
// =============================================================================

func TestValidateParties(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		rel       Relationship
		debtor    string
		creditor  string
		wantOK    bool
		wantField Field
	}{
		{"debtor email required", OtherOwesMe, "", "", false, FieldDebtorEmail},
		{"debtor email malformed", OtherOwesMe, "not-an-email", "", false, FieldDebtorEmail},
		{"debtor email ok", OtherOwesMe, "a@b.com", "", true, ""},
		{"creditor email required", IOweOther, "a@b.com", "", false, FieldCreditorEmail},
		{"creditor email ok", IOweOther, "", "c@d.com", true, ""},
		{"self debt needs no email", IOweMyself, "", "", true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewState()
			s.Fields.Description = "Rent"
			s.Selections.Relationship = tt.rel
			s.Fields.DebtorEmail = tt.debtor
			s.Fields.CreditorEmail = tt.creditor

			res := validateParties(s)
			assert.Equal(t, tt.wantOK, res.OK, res.Message)
			assert.Equal(t, tt.wantField, res.Field)
		})
	}
}

func TestValidateAmounts(t *testing.T) {
	t.Parallel()

	base := func() State {
		s := NewState()
		s.Selections.Method = PixMethod{Movement: MovementSingle, PixKeyID: "pk"}
		s.Fields.TotalAmount = decimal.NewFromInt(100)
		s.Fields.DueDate = time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
		return s
	}

	t.Run("valid single", func(t *testing.T) {
		assert.True(t, validateAmounts(base()).OK)
	})
	t.Run("zero total", func(t *testing.T) {
		s := base()
		s.Fields.TotalAmount = decimal.Zero
		assert.Equal(t, FieldTotalAmount, validateAmounts(s).Field)
	})
	t.Run("missing due date", func(t *testing.T) {
		s := base()
		s.Fields.DueDate = time.Time{}
		assert.Equal(t, FieldDueDate, validateAmounts(s).Field)
	})
	t.Run("pix requires key", func(t *testing.T) {
		s := base()
		s.Selections.Method = PixMethod{Movement: MovementSingle}
		assert.Equal(t, FieldPixKeyID, validateAmounts(s).Field)
	})
	t.Run("recurring needs no due date but a day of month", func(t *testing.T) {
		s := base()
		s.Selections.Method = PixMethod{Movement: MovementRecurring, PixKeyID: "pk"}
		s.Fields.DueDate = time.Time{}
		assert.Equal(t, FieldDayOfMonth, validateAmounts(s).Field)

		s.Recurring.DayOfMonth = 31
		assert.True(t, validateAmounts(s).OK)
	})
	t.Run("gateway installment needs count", func(t *testing.T) {
		s := base()
		s.Selections.Method = GatewayMethod{PaymentType: GatewayInstallment}
		s.Fields.Installments = 0
		assert.Equal(t, FieldInstallments, validateAmounts(s).Field)
	})
	t.Run("in progress fully paid", func(t *testing.T) {
		s := base()
		s.Selections.Method = PixMethod{Movement: MovementInstallment, PixKeyID: "pk"}
		s.Installment = InstallmentCalc{
			Mode:              calc.ModePerInstallment,
			InstallmentAmount: decimal.NewFromInt(250),
			IsInProgress:      true,
			TotalInstallments: 4,
			PaidInstallments:  4,
		}
		assert.Equal(t, FieldPaidInstallments, validateAmounts(s).Field)
	})
}

// =============================================================================
// BRANCH CONTENT
// =============================================================================

func visible(s State, id StepID) []Field {
	for _, d := range Steps() {
		if d.ID == id {
			var out []Field
			for _, f := range d.VisibleFields(s) {
				out = append(out, f.Field)
			}
			return out
		}
	}
	return nil
}

func TestBranchContent(t *testing.T) {
	t.Parallel()

	s := NewState()
	s.Selections.Method = PixMethod{}
	assert.Equal(t, []Field{FieldMovementType}, visible(s, StepMovement))
	assert.Contains(t, visible(s, StepAmounts), FieldPixKeyID)

	s.Selections.Method = GatewayMethod{PaymentType: GatewaySubscription}
	assert.Equal(t, []Field{FieldGatewayPaymentType}, visible(s, StepMovement))
	amounts := visible(s, StepAmounts)
	assert.NotContains(t, amounts, FieldPixKeyID)
	assert.NotContains(t, amounts, FieldDueDate)
	assert.Contains(t, amounts, FieldDayOfMonth)

	// Branching never changes the step count.
	assert.Len(t, Steps(), StepCount)
}

func TestStepTitleFollowsBranch(t *testing.T) {
	t.Parallel()

	s := NewState()
	def := StepAt(2)
	s.Selections.Method = GatewayMethod{}
	assert.Equal(t, "Gateway payment type", def.Title(s))
	s.Selections.Method = PixMethod{}
	assert.Equal(t, "Movement type", def.Title(s))
}

// =============================================================================
// FIELDS AND SELECTORS
// =============================================================================

func TestSetField_Errors(t *testing.T) {
	t.Parallel()

	m := newMachine()
	assert.ErrorIs(t, m.SetField("bogus", "x"), ErrUnknownField)
	assert.ErrorIs(t, m.SetField(FieldDueDate, "01/07/2024"), ErrInvalidValue)
	assert.ErrorIs(t, m.SetField(FieldInstallments, "-2"), ErrInvalidValue)
	assert.Error(t, m.SetField(FieldTotalAmount, "abc"))
	assert.ErrorIs(t, m.SetField(FieldPixKeyID, "pk"), ErrFieldNotApplicable)

	// Failures leave state untouched.
	assert.Equal(t, NewState(), m.State())
}

func TestSetField_AmountFormats(t *testing.T) {
	t.Parallel()

	m := newMachine()
	mustSet(t, m, FieldTotalAmount, "1.234,56")
	assert.True(t, m.State().Fields.TotalAmount.Equal(decimal.RequireFromString("1234.56")))
	mustSet(t, m, FieldTotalAmount, "1234.56")
	assert.True(t, m.State().Fields.TotalAmount.Equal(decimal.RequireFromString("1234.56")))
}

func TestSwitchingBranchDropsOtherBranchChoice(t *testing.T) {
	t.Parallel()

	m := newMachine()
	m.ChoosePix()
	require.NoError(t, m.ChooseMovementType(MovementRecurring))
	require.NoError(t, m.SelectPixKey("pk"))

	m.ChooseGateway()
	s := m.State()
	assert.Equal(t, MethodGateway, s.Selections.MethodKind())
	assert.Empty(t, s.PixKeyID())
	assert.Equal(t, MovementUnset, s.Selections.Schedule())
	assert.ErrorIs(t, m.ChooseMovementType(MovementSingle), ErrFieldNotApplicable)
}

func TestChoosePixTwiceKeepsChoices(t *testing.T) {
	t.Parallel()

	m := newMachine()
	m.ChoosePix()
	require.NoError(t, m.ChooseMovementType(MovementInstallment))
	m.ChoosePix()
	assert.Equal(t, MovementInstallment, m.State().Selections.Schedule())
}

func TestInProgressRecomputesTotal(t *testing.T) {
	t.Parallel()

	m := newMachine()
	m.ChoosePix()
	require.NoError(t, m.ChooseMovementType(MovementInstallment))
	require.NoError(t, m.SetInProgress(true))
	assert.Equal(t, calc.ModePerInstallment, m.State().Installment.Mode)

	mustSet(t, m, FieldInstallmentAmount, "250")
	mustSet(t, m, FieldTotalInstallments, "10")
	mustSet(t, m, FieldPaidInstallments, "4")

	s := m.State()
	assert.True(t, s.Fields.TotalAmount.Equal(decimal.NewFromInt(1500)), s.Fields.TotalAmount.String())
	assert.Equal(t, 6, s.Fields.Installments)

	require.NoError(t, m.SetInstallmentMode(calc.ModeTotal))
	assert.False(t, m.State().Installment.IsInProgress)
}

func TestSetRecurring(t *testing.T) {
	t.Parallel()

	m := newMachine()
	require.NoError(t, m.SetRecurring(RecurringConfig{Interval: calc.Weekly, SubscriptionName: "Gym"}))
	assert.Equal(t, calc.Weekly, m.State().Recurring.Interval)
	assert.ErrorIs(t, m.SetRecurring(RecurringConfig{Interval: "YEARLY"}), ErrInvalidValue)
	assert.Equal(t, "Gym", m.State().Recurring.SubscriptionName)
}

func TestReset(t *testing.T) {
	t.Parallel()

	m := newMachine()
	fillPixSingle(t, m)
	m.GoTo(4)
	m.Reset()
	assert.Equal(t, NewState(), m.State())
}

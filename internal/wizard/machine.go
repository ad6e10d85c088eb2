package wizard

import (
	"fmt"
	"strings"

	"debtflow/internal/calc"
	"debtflow/internal/logging"
)

// Machine drives step sequencing over a Store.
type Machine struct {
	store *Store
}

// NewMachine wraps store. Pass NewStore(NewState()) for a fresh wizard.
func NewMachine(store *Store) *Machine {
	return &Machine{store: store}
}

// Store exposes the underlying container for subscribers.
func (m *Machine) Store() *Store { return m.store }

// State returns a copy of the current state.
func (m *Machine) State() State { return m.store.State() }

// Current returns the active step definition.
func (m *Machine) Current() StepDefinition {
	return StepAt(m.store.State().Step)
}

// Next validates the active step and advances when it passes. On the
// confirmation step a passing result is marked Terminal and the step does not
// move: the caller submits instead.
func (m *Machine) Next() Result {
	var res Result
	_ = m.store.Dispatch("next", func(s *State) error {
		def := StepAt(s.Step)
		res = def.Validate(*s)
		if !res.OK {
			return errUnchanged
		}
		if s.IsTerminal() {
			res.Terminal = true
			return errUnchanged
		}
		s.Step++
		return nil
	})
	if res.OK {
		logging.WizardDebug("next: step=%s terminal=%v", res.Step, res.Terminal)
	} else {
		logging.WizardDebug("next blocked: step=%s field=%s msg=%q", res.Step, res.Field, res.Message)
	}
	return res
}

// Prev steps back without validating. It stops at the first step.
func (m *Machine) Prev() {
	_ = m.store.Dispatch("prev", func(s *State) error {
		if s.Step == 0 {
			return errUnchanged
		}
		s.Step--
		return nil
	})
}

// GoTo jumps to step i (clamped). Used to return to confirmation or to the
// step a gateway redirect started from.
func (m *Machine) GoTo(i int) {
	_ = m.store.Dispatch("goto", func(s *State) error {
		if s.Step == i {
			return errUnchanged
		}
		s.Step = i
		return nil
	})
}

// SetField parses value into field. Parse failures leave state untouched.
func (m *Machine) SetField(field Field, value string) error {
	return m.store.Dispatch("set:"+string(field), func(s *State) error {
		return applyField(s, field, value)
	})
}

// Reset restores the default state.
func (m *Machine) Reset() {
	_ = m.store.Dispatch("reset", func(s *State) error {
		*s = NewState()
		return nil
	})
}

// Replace swaps in a whole state, e.g. a restored draft.
func (m *Machine) Replace(action string, st State) {
	_ = m.store.Dispatch(action, func(s *State) error {
		*s = st
		return nil
	})
}

// =============================================================================
// TYPED SELECTORS
// =============================================================================

// SelectWallet picks the wallet.
func (m *Machine) SelectWallet(id string) {
	_ = m.store.Dispatch("select:wallet", func(s *State) error {
		s.Selections.WalletID = strings.TrimSpace(id)
		return nil
	})
}

// ChoosePix switches to the PIX branch, keeping PIX choices if already there.
func (m *Machine) ChoosePix() {
	_ = m.store.Dispatch("select:pix", func(s *State) error {
		choosePix(s)
		return nil
	})
}

// ChooseGateway switches to the gateway branch. The connection status resets
// to unknown when the branch changes; the caller triggers a status check.
func (m *Machine) ChooseGateway() {
	_ = m.store.Dispatch("select:gateway", func(s *State) error {
		chooseGateway(s)
		return nil
	})
}

// ChooseMovementType sets the PIX schedule.
func (m *Machine) ChooseMovementType(t MovementType) error {
	return m.SetField(FieldMovementType, string(t))
}

// ChooseGatewayPaymentType sets the gateway charge kind.
func (m *Machine) ChooseGatewayPaymentType(t GatewayPaymentType) error {
	return m.SetField(FieldGatewayPaymentType, string(t))
}

// ChooseRelationship sets who owes whom.
func (m *Machine) ChooseRelationship(r Relationship) error {
	return m.SetField(FieldRelationship, string(r))
}

// SelectPixKey sets the PIX key on the PIX branch.
func (m *Machine) SelectPixKey(id string) error {
	return m.SetField(FieldPixKeyID, id)
}

// SetInstallmentMode switches between typing the total and typing the installment.
func (m *Machine) SetInstallmentMode(mode calc.Mode) error {
	return m.SetField(FieldInstallmentMode, string(mode))
}

// SetInProgress marks the debt as already having paid installments.
func (m *Machine) SetInProgress(inProgress bool) error {
	return m.SetField(FieldInProgress, fmt.Sprint(inProgress))
}

// SetGatewayStatus records the gateway connection status.
func (m *Machine) SetGatewayStatus(status ConnectionStatus) {
	_ = m.store.Dispatch("gateway:"+string(status), func(s *State) error {
		if s.Gateway.Status == status {
			return errUnchanged
		}
		s.Gateway.Status = status
		return nil
	})
}

// SetRecurring replaces the recurring configuration. An unknown interval is
// rejected and leaves state untouched.
func (m *Machine) SetRecurring(cfg RecurringConfig) error {
	return m.store.Dispatch("set:recurring", func(s *State) error {
		if !cfg.Interval.Valid() {
			return invalid(FieldInterval, string(cfg.Interval))
		}
		if cfg.DayOfMonth < 0 || cfg.DurationMonths < 0 {
			return invalid(FieldDayOfMonth, fmt.Sprint(cfg.DayOfMonth))
		}
		s.Recurring = cfg
		return nil
	})
}

// Package gateway reconciles the payment gateway connection across the
// authorization redirect: it records where the wizard was before leaving,
// receives the return trip, and re-checks the connection exactly once.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"debtflow/internal/persist"
)

// RecoverySchemaVersion is the recovery record format written by this build.
const RecoverySchemaVersion = 1

// DefaultMaxRecoveryAge is how long a recovery record stays meaningful.
// Older records are treated as abandoned authorizations.
const DefaultMaxRecoveryAge = 2 * time.Hour

// RecoveryRecord is the minimal state stored before redirecting out.
type RecoveryRecord struct {
	SchemaVersion int       `json:"schema_version"`
	Step          int       `json:"step"`
	PaymentMethod string    `json:"payment_method"`
	WalletID      string    `json:"wallet_id"`
	StateToken    string    `json:"state_token"`
	CreatedAt     time.Time `json:"created_at"`
}

// RecoveryStore reads and writes the recovery record in its own slot.
type RecoveryStore struct {
	slot persist.Slot
}

// NewRecoveryStore wraps slot, normally persist.GatewayReturnSlot.
func NewRecoveryStore(slot persist.Slot) *RecoveryStore {
	return &RecoveryStore{slot: slot}
}

// Save stores rec, replacing any previous record.
func (s *RecoveryStore) Save(ctx context.Context, rec RecoveryRecord) error {
	if rec.SchemaVersion == 0 {
		rec.SchemaVersion = RecoverySchemaVersion
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode recovery record: %w", err)
	}
	return s.slot.Save(ctx, data)
}

// Load returns the stored record. ok is false when there is none; a corrupt
// record is reported as absent and removed.
func (s *RecoveryStore) Load(ctx context.Context) (rec RecoveryRecord, ok bool, err error) {
	raw, err := s.slot.Load(ctx)
	if errors.Is(err, persist.ErrSlotEmpty) {
		return RecoveryRecord{}, false, nil
	}
	if err != nil {
		return RecoveryRecord{}, false, err
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		_ = s.slot.Delete(ctx)
		return RecoveryRecord{}, false, nil
	}
	return rec, true, nil
}

// Clear deletes the record.
func (s *RecoveryStore) Clear(ctx context.Context) error {
	return s.slot.Delete(ctx)
}

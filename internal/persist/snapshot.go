package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"debtflow/internal/logging"
	"debtflow/internal/wizard"
)

// SchemaVersion is the snapshot format written by this build. Blobs without a
// version (v0) are bare drafts from before the envelope existed.
const SchemaVersion = 1

// ErrCorruptSnapshot is returned when a stored blob is not a snapshot at all.
var ErrCorruptSnapshot = errors.New("corrupt snapshot")

// Snapshot is the stored envelope.
type Snapshot struct {
	SchemaVersion int          `json:"schema_version"`
	SavedAt       time.Time    `json:"saved_at"`
	State         wizard.Draft `json:"state"`
}

// EncodeSnapshot wraps st in a versioned envelope.
func EncodeSnapshot(st wizard.State, savedAt time.Time) ([]byte, error) {
	return json.Marshal(Snapshot{
		SchemaVersion: SchemaVersion,
		SavedAt:       savedAt.UTC(),
		State:         wizard.ToDraft(st),
	})
}

// DecodeSnapshot reads any known snapshot version. Versions newer than
// SchemaVersion are decoded best-effort: unknown fields are ignored.
func DecodeSnapshot(raw []byte) (wizard.State, Snapshot, error) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		return wizard.State{}, Snapshot{}, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}

	var snap Snapshot
	if _, versioned := keys["schema_version"]; versioned {
		if err := json.Unmarshal(raw, &snap); err != nil {
			return wizard.State{}, Snapshot{}, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
		}
		if snap.SchemaVersion > SchemaVersion {
			logging.Get(logging.CategoryPersist).Warn("snapshot schema v%d is newer than v%d; decoding best-effort",
				snap.SchemaVersion, SchemaVersion)
		}
	} else {
		if err := json.Unmarshal(raw, &snap.State); err != nil {
			return wizard.State{}, Snapshot{}, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
		}
	}
	return wizard.FromDraft(snap.State), snap, nil
}

package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AuditEventType defines the type of audit event in the submission trail.
type AuditEventType string

const (
	AuditWizardOpened      AuditEventType = "wizard_opened"
	AuditWizardClosed      AuditEventType = "wizard_closed"
	AuditDraftRestored     AuditEventType = "draft_restored"
	AuditDraftDiscarded    AuditEventType = "draft_discarded"
	AuditGatewayRedirect   AuditEventType = "gateway_redirect"
	AuditGatewayReconciled AuditEventType = "gateway_reconciled"
	AuditDuplicatePaused   AuditEventType = "duplicate_paused"
	AuditDuplicateResolved AuditEventType = "duplicate_resolved"
	AuditMovementCreated   AuditEventType = "movement_created"
	AuditMovementFailed    AuditEventType = "movement_failed"
)

// AuditEvent is one JSON line in the audit log.
type AuditEvent struct {
	Timestamp int64                  `json:"ts"` // Unix milliseconds
	EventType AuditEventType         `json:"event"`
	SessionID string                 `json:"session,omitempty"`
	Success   bool                   `json:"success"`
	Error     string                 `json:"error,omitempty"`
	Message   string                 `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

var (
	auditFile *os.File
	auditMu   sync.Mutex
)

// InitAudit opens the audit log. No-op outside debug mode.
func InitAudit() error {
	if !IsDebugMode() {
		return nil
	}

	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		return nil
	}

	configMu.RLock()
	dir := logsDir
	configMu.RUnlock()

	date := time.Now().Format("2006-01-02")
	auditPath := filepath.Join(dir, fmt.Sprintf("%s_audit.jsonl", date))

	file, err := os.OpenFile(auditPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	auditFile = file
	return nil
}

// CloseAudit closes the audit log file
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		auditFile.Close()
		auditFile = nil
	}
}

// AuditLogger writes audit events scoped to a wizard session.
type AuditLogger struct {
	sessionID string
}

// AuditWithSession creates an audit logger scoped to a session
func AuditWithSession(sessionID string) *AuditLogger {
	return &AuditLogger{sessionID: sessionID}
}

// Event records a successful event.
func (a *AuditLogger) Event(eventType AuditEventType, msg string, fields map[string]interface{}) {
	a.write(AuditEvent{EventType: eventType, Success: true, Message: msg, Fields: fields})
}

// Failure records a failed event.
func (a *AuditLogger) Failure(eventType AuditEventType, err error, fields map[string]interface{}) {
	ev := AuditEvent{EventType: eventType, Fields: fields}
	if err != nil {
		ev.Error = err.Error()
	}
	a.write(ev)
}

func (a *AuditLogger) write(ev AuditEvent) {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile == nil {
		return
	}
	ev.Timestamp = time.Now().UnixMilli()
	ev.SessionID = a.sessionID

	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	auditFile.Write(append(data, '\n'))
}

package models

import (
	"errors"
	"fmt"
	"time"
)

type AuditStatus string

const (
	AuditPending   AuditStatus = "pending"
	AuditCrawling  AuditStatus = "crawling"
	AuditScanning  AuditStatus = "scanning"
	AuditScoring   AuditStatus = "scoring"
	AuditCompleted AuditStatus = "completed"
	AuditFailed    AuditStatus = "failed"
)

var ErrIllegalTransition = errors.New("illegal audit status transition")

// auditTransitions is the full transition table. Success advances one phase
// at a time; failed is reachable from every non-terminal state; terminal
// states transition nowhere.
var auditTransitions = map[AuditStatus][]AuditStatus{
	AuditPending:   {AuditCrawling, AuditFailed},
	AuditCrawling:  {AuditScanning, AuditFailed},
	AuditScanning:  {AuditScoring, AuditFailed},
	AuditScoring:   {AuditCompleted, AuditFailed},
	AuditCompleted: {},
	AuditFailed:    {},
}

// Terminal reports whether no further transitions are allowed.
func (s AuditStatus) Terminal() bool {
	return s == AuditCompleted || s == AuditFailed
}

// CanTransition reports whether s -> to is a legal move.
func (s AuditStatus) CanTransition(to AuditStatus) bool {
	for _, next := range auditTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Audit is the orchestration record for one diagnostics run. It is owned
// exclusively by the diagnostics service; scanners and the aggregator never
// touch it.
type Audit struct {
	ID           string      `json:"id"`
	Owner        string      `json:"owner"`
	SiteID       string      `json:"site_id"`
	SiteURL      string      `json:"site_url"`
	Status       AuditStatus `json:"status"`
	CreatedAt    time.Time   `json:"created_at"`
	CompletedAt  *time.Time  `json:"completed_at,omitempty"`
	ErrorMessage string      `json:"error_message,omitempty"`
	Cached       bool        `json:"cached"`
}

// TransitionTo advances the audit, rejecting illegal moves. Entering a
// terminal state stamps CompletedAt.
func (a *Audit) TransitionTo(to AuditStatus) error {
	if !a.Status.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, a.Status, to)
	}
	a.Status = to
	if to.Terminal() {
		now := time.Now().UTC()
		a.CompletedAt = &now
	}
	return nil
}

// Fail moves the audit to failed recording the cause. Failing an already
// terminal audit is rejected.
func (a *Audit) Fail(cause string) error {
	if err := a.TransitionTo(AuditFailed); err != nil {
		return err
	}
	a.ErrorMessage = cause
	return nil
}

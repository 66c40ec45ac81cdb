package models

import (
	"errors"
	"testing"
)

func TestAuditTransitionHappyPath(t *testing.T) {
	audit := &Audit{ID: "audit_1", Status: AuditPending}

	for _, next := range []AuditStatus{AuditCrawling, AuditScanning, AuditScoring, AuditCompleted} {
		if err := audit.TransitionTo(next); err != nil {
			t.Fatalf("transition to %s: %v", next, err)
		}
	}
	if !audit.Status.Terminal() {
		t.Errorf("expected completed audit to be terminal")
	}
	if audit.CompletedAt == nil {
		t.Errorf("expected CompletedAt to be stamped on completion")
	}
}

func TestAuditTransitionRejectsSkips(t *testing.T) {
	cases := []struct {
		from, to AuditStatus
	}{
		{AuditPending, AuditScanning},
		{AuditPending, AuditCompleted},
		{AuditCrawling, AuditScoring},
		{AuditCrawling, AuditCompleted},
		{AuditScanning, AuditCompleted},
		{AuditCompleted, AuditFailed},
		{AuditFailed, AuditPending},
		{AuditCompleted, AuditCrawling},
	}
	for _, tc := range cases {
		audit := &Audit{ID: "audit_2", Status: tc.from}
		err := audit.TransitionTo(tc.to)
		if !errors.Is(err, ErrIllegalTransition) {
			t.Errorf("%s -> %s: expected ErrIllegalTransition, got %v", tc.from, tc.to, err)
		}
		if audit.Status != tc.from {
			t.Errorf("%s -> %s: status mutated to %s on rejected transition", tc.from, tc.to, audit.Status)
		}
	}
}

func TestAuditFailFromEveryNonTerminalState(t *testing.T) {
	for _, from := range []AuditStatus{AuditPending, AuditCrawling, AuditScanning, AuditScoring} {
		audit := &Audit{ID: "audit_3", Status: from}
		if err := audit.Fail("crawl exploded"); err != nil {
			t.Fatalf("fail from %s: %v", from, err)
		}
		if audit.Status != AuditFailed {
			t.Errorf("fail from %s: status = %s", from, audit.Status)
		}
		if audit.ErrorMessage == "" {
			t.Errorf("fail from %s: cause not recorded", from)
		}
		if audit.CompletedAt == nil {
			t.Errorf("fail from %s: CompletedAt not stamped", from)
		}
	}
}

func TestAuditFailOnTerminalRejected(t *testing.T) {
	audit := &Audit{ID: "audit_4", Status: AuditCompleted}
	if err := audit.Fail("too late"); err == nil {
		t.Errorf("expected failing a completed audit to be rejected")
	}
}

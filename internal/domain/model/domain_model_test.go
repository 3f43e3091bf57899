//go:build !integration

package model

import (
	"errors"
	"testing"
	"time"

	"itsm-ticket-bridge/internal/domain"
)

// --- Request Model Tests ---

func TestNewRequest(t *testing.T) {
	t.Run("should create a pending request with defaults", func(t *testing.T) {
		req, err := NewRequest("principal-1", "Onboarding", "new hire", "", nil)
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if req.ID == "" {
			t.Error("expected request ID to be non-empty")
		}
		if req.Status != RequestStatusPending {
			t.Errorf("expected status 'pending', but got '%s'", req.Status)
		}
		if req.Priority != PriorityMedium {
			t.Errorf("expected default priority 'medium', but got '%s'", req.Priority)
		}
		if req.MaxRetries != DefaultMaxRetries {
			t.Errorf("expected max retries %d, but got %d", DefaultMaxRetries, req.MaxRetries)
		}
		if time.Since(req.CreatedAt) > time.Second {
			t.Error("CreatedAt timestamp is too far from current time")
		}
	})

	t.Run("should fail with empty principal or title", func(t *testing.T) {
		if _, err := NewRequest("", "title", "", PriorityLow, nil); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
		if _, err := NewRequest("p", "", "", PriorityLow, nil); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestRequestLifecycle(t *testing.T) {
	newReq := func(t *testing.T) *Request {
		t.Helper()
		req, err := NewRequest("p", "title", "", PriorityHigh, nil)
		if err != nil {
			t.Fatalf("NewRequest: %v", err)
		}
		return req
	}

	t.Run("pending to processing to completed", func(t *testing.T) {
		req := newReq(t)
		if err := req.MarkProcessing(); err != nil {
			t.Fatalf("MarkProcessing: %v", err)
		}
		if req.ProcessingStartedAt == nil {
			t.Error("expected ProcessingStartedAt to be stamped")
		}
		if err := req.Complete(); err != nil {
			t.Fatalf("Complete: %v", err)
		}
		if req.ProcessingCompletedAt == nil || req.ActualCompletionAt == nil {
			t.Error("expected completion timestamps to be stamped")
		}
		if !req.IsTerminal() {
			t.Error("completed request should be terminal")
		}
	})

	t.Run("complete requires processing", func(t *testing.T) {
		req := newReq(t)
		if err := req.Complete(); err == nil {
			t.Error("expected Complete on pending request to fail")
		}
	})

	t.Run("fail records reason and allows retry", func(t *testing.T) {
		req := newReq(t)
		_ = req.MarkProcessing()
		if err := req.Fail("remote down"); err != nil {
			t.Fatalf("Fail: %v", err)
		}
		if req.FailureReason == nil || *req.FailureReason != "remote down" {
			t.Error("expected failure reason to be recorded")
		}
		if !req.CanRetry() {
			t.Error("failed request within budget should be retryable")
		}
		if err := req.PrepareRetry(); err != nil {
			t.Fatalf("PrepareRetry: %v", err)
		}
		if req.Status != RequestStatusPending {
			t.Errorf("expected status 'pending' after retry, got '%s'", req.Status)
		}
		if req.RetryCount != 1 {
			t.Errorf("expected retry count 1, got %d", req.RetryCount)
		}
		if req.FailureReason != nil || req.ProcessingStartedAt != nil {
			t.Error("expected failure reason and processing timestamps cleared")
		}
	})

	t.Run("retry budget is enforced", func(t *testing.T) {
		req := newReq(t)
		req.MaxRetries = 1
		_ = req.MarkProcessing()
		_ = req.Fail("x")
		if err := req.PrepareRetry(); err != nil {
			t.Fatalf("first retry should be allowed: %v", err)
		}
		_ = req.MarkProcessing()
		_ = req.Fail("x")
		if req.CanRetry() {
			t.Error("retry budget exhausted; CanRetry must be false")
		}
		before := *req
		if err := req.PrepareRetry(); !errors.Is(err, domain.ErrRequestNotRetryable) {
			t.Errorf("expected ErrRequestNotRetryable, got %v", err)
		}
		if req.RetryCount != before.RetryCount || req.Status != before.Status {
			t.Error("failed PrepareRetry must not mutate the request")
		}
	})

	t.Run("retry is only allowed from failed", func(t *testing.T) {
		req := newReq(t)
		if req.CanRetry() {
			t.Error("pending request must not be retryable")
		}
		if err := req.PrepareRetry(); !errors.Is(err, domain.ErrRequestNotRetryable) {
			t.Errorf("expected ErrRequestNotRetryable, got %v", err)
		}
	})

	t.Run("cancel from pending, processing and failed", func(t *testing.T) {
		for _, setup := range []func(*Request){
			func(r *Request) {},
			func(r *Request) { _ = r.MarkProcessing() },
			func(r *Request) { _ = r.MarkProcessing(); _ = r.Fail("x") },
		} {
			req := newReq(t)
			setup(req)
			if err := req.Cancel(); err != nil {
				t.Fatalf("Cancel from %s: %v", req.Status, err)
			}
			if req.Status != RequestStatusCancelled {
				t.Errorf("expected 'cancelled', got '%s'", req.Status)
			}
		}
	})

	t.Run("cancel on completed fails with no change", func(t *testing.T) {
		req := newReq(t)
		_ = req.MarkProcessing()
		_ = req.Complete()
		if err := req.Cancel(); !errors.Is(err, domain.ErrRequestTerminal) {
			t.Errorf("expected ErrRequestTerminal, got %v", err)
		}
		if req.Status != RequestStatusCompleted {
			t.Errorf("status must stay 'completed', got '%s'", req.Status)
		}
	})

	t.Run("reconcile completes a failed request", func(t *testing.T) {
		req := newReq(t)
		_ = req.MarkProcessing()
		_ = req.Fail("remote down")
		if err := req.ReconcileCompleted(); err != nil {
			t.Fatalf("ReconcileCompleted: %v", err)
		}
		if req.Status != RequestStatusCompleted {
			t.Errorf("expected 'completed', got '%s'", req.Status)
		}
		if req.FailureReason != nil {
			t.Error("expected failure reason cleared")
		}
		if req.ProcessingCompletedAt == nil || req.ActualCompletionAt == nil {
			t.Error("expected completion timestamps stamped")
		}
	})

	t.Run("reconcile is only allowed from failed", func(t *testing.T) {
		req := newReq(t)
		if err := req.ReconcileCompleted(); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument from pending, got %v", err)
		}
		_ = req.MarkProcessing()
		_ = req.Complete()
		if err := req.ReconcileCompleted(); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument from completed, got %v", err)
		}
	})

	t.Run("terminal states reject further transitions", func(t *testing.T) {
		req := newReq(t)
		_ = req.Cancel()
		if err := req.Cancel(); !errors.Is(err, domain.ErrRequestTerminal) {
			t.Errorf("expected second cancel to fail, got %v", err)
		}
		if err := req.PrepareRetry(); !errors.Is(err, domain.ErrRequestNotRetryable) {
			t.Errorf("expected retry after cancel to fail, got %v", err)
		}
	})
}

// --- Ticket Model Tests ---

func TestTicketExternalIdentity(t *testing.T) {
	newTicket := func(t *testing.T) *Ticket {
		t.Helper()
		tk, err := NewTicket("req-1", "VM", "provision a vm", PriorityMedium, "hardware", "server", "infra", nil)
		if err != nil {
			t.Fatalf("NewTicket: %v", err)
		}
		return tk
	}

	t.Run("stub starts without identity", func(t *testing.T) {
		tk := newTicket(t)
		if tk.IsCreatedExternally() {
			t.Error("fresh stub must not be created externally")
		}
	})

	t.Run("identity is set atomically", func(t *testing.T) {
		tk := newTicket(t)
		if err := tk.ApplyCreation("sys-1", ""); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument for half identity, got %v", err)
		}
		if tk.ExternalID != nil || tk.ReferenceNumber != nil {
			t.Error("failed ApplyCreation must leave both fields nil")
		}
		if err := tk.ApplyCreation("sys-1", "INC0001"); err != nil {
			t.Fatalf("ApplyCreation: %v", err)
		}
		if !tk.IsCreatedExternally() {
			t.Error("expected identity to be set")
		}
		if tk.SyncStatus != SyncStatusSuccess || tk.CreatedInExternalAt == nil {
			t.Error("expected sync bookkeeping stamped on creation")
		}
	})

	t.Run("create failure keeps identity unset", func(t *testing.T) {
		tk := newTicket(t)
		tk.RecordCreateFailure("rejected: missing category")
		if tk.IsCreatedExternally() {
			t.Error("identity must stay unset after failure")
		}
		if tk.SyncStatus != SyncStatusFailed || tk.SyncError == nil {
			t.Error("expected failure bookkeeping")
		}
	})
}

func TestTicketApplyRemoteStatus(t *testing.T) {
	tk, _ := NewTicket("req-1", "VM", "", PriorityMedium, "", "", "", nil)
	_ = tk.ApplyCreation("sys-1", "INC0001")

	t.Run("unchanged status reports false", func(t *testing.T) {
		if changed := tk.ApplyRemoteStatus(TicketStatusNew); changed {
			t.Error("same status must report unchanged")
		}
	})

	t.Run("resolved stamps closed timestamp", func(t *testing.T) {
		if changed := tk.ApplyRemoteStatus(TicketStatusResolved); !changed {
			t.Error("expected status change")
		}
		if tk.ClosedInExternalAt == nil {
			t.Error("expected ClosedInExternalAt to be stamped on resolved")
		}
		if tk.UpdatedInExternalAt == nil {
			t.Error("expected UpdatedInExternalAt to be stamped")
		}
	})
}

package domain

import (
	"fmt"
	"testing"
)

func TestErrorTaggedDispatch(t *testing.T) {
	cases := []struct {
		err   error
		check func(error) bool
	}{
		{NewNotFoundError("run", "r1"), IsNotFound},
		{NewValidationError("bad input", nil), IsValidation},
		{NewConflictError("run", "already exists"), IsConflict},
		{NewInvalidStateError("not failed", nil), IsInvalidState},
		{NewCircuitOpenError("ai-provider"), IsCircuitOpen},
		{NewExternalServiceError("scraper", fmt.Errorf("boom")), IsExternalService},
	}

	for _, tc := range cases {
		if !tc.check(tc.err) {
			t.Errorf("predicate failed for %v", tc.err)
		}
	}

	if IsNotFound(NewValidationError("x", nil)) {
		t.Error("predicate matched the wrong kind")
	}
	if IsNotFound(nil) {
		t.Error("predicate matched nil")
	}
}

func TestErrorWrapping(t *testing.T) {
	wrapped := fmt.Errorf("engine: %w", NewNotFoundError("workflow", "wf-1"))
	if !IsNotFound(wrapped) {
		t.Error("expected wrapped tagged error to match")
	}

	if !IsDuplicateJob(fmt.Errorf("enqueue: %w", ErrDuplicateJob)) {
		t.Error("expected wrapped sentinel to match")
	}
}

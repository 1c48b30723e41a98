package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestServiceErrorWrapsUnderlyingError(t *testing.T) {
	inner := errors.New("disk full")
	svcErr := Wrap(ErrCodeInternal, "snapshot write failed", http.StatusInternalServerError, inner)

	if errors.Unwrap(svcErr) != inner {
		t.Fatalf("expected Unwrap to return inner error")
	}
	if svcErr.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("unexpected status %d", svcErr.HTTPStatus)
	}
}

func TestNotInitializedBuildsComponentCode(t *testing.T) {
	svcErr := NotInitialized("rollout")
	if svcErr.Code != "rollout_not_initialized" {
		t.Fatalf("unexpected code %q", svcErr.Code)
	}
	if svcErr.HTTPStatus != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", svcErr.HTTPStatus)
	}
}

func TestGetServiceErrorUnwrapsChain(t *testing.T) {
	svcErr := Unauthorized()
	wrapped := fmt.Errorf("context: %w", svcErr)

	if GetServiceError(wrapped) != svcErr {
		t.Fatalf("expected GetServiceError to find the wrapped ServiceError")
	}
	if !IsServiceError(wrapped) {
		t.Fatalf("expected IsServiceError to be true through a wrap")
	}
}

func TestGetHTTPStatusDefaultsTo500(t *testing.T) {
	if GetHTTPStatus(errors.New("boom")) != http.StatusInternalServerError {
		t.Fatalf("expected default 500 status for a non-ServiceError")
	}
	if GetHTTPStatus(RateLimited()) != http.StatusTooManyRequests {
		t.Fatalf("expected 429 for RateLimited")
	}
}

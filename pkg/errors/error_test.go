package errors_test

import (
	"errors"
	"fmt"
	"testing"

	. "fms/pkg/errors"
)

func TestErrorCode_Message(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want string
	}{
		{Success, "Success"},
		{InvalidParams, "Invalid parameters"},
		{TargetNotFound, "Target executable not found"},
		{InsufficientCredits, "Insufficient credits"},
		{ErrorCode(99999), "Unknown error"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.code.Message(); got != tt.want {
				t.Errorf("Message() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		code       ErrorCode
		wantStatus int
	}{
		{Success, 200},
		{InvalidParams, 400},
		{ValidationFailed, 400},
		{NotFound, 404},
		{Unauthorized, 401},
		{TokenInvalid, 401},
		{TokenExpired, 401},
		{Forbidden, 403},
		{TargetNotFound, 404},
		{QuotaExhausted, 402},
		{InsufficientCredits, 402},
		{InvalidPaymentMode, 409},
		{LedgerNotConfigured, 409},
		{JobQueueFull, 429},
		{ServiceUnavailable, 503},
		{LedgerIOError, 500},
		{InternalServerError, 500},
	}

	for _, tt := range tests {
		t.Run(tt.code.Message(), func(t *testing.T) {
			if got := tt.code.HTTPStatus(); got != tt.wantStatus {
				t.Errorf("HTTPStatus() = %v, want %v", got, tt.wantStatus)
			}
		})
	}
}

func TestNew(t *testing.T) {
	err := New(LaunchFailed)

	if err.Code != LaunchFailed {
		t.Errorf("Code = %v, want %v", err.Code, LaunchFailed)
	}
	if err.Error() != LaunchFailed.Message() {
		t.Errorf("Error() = %v, want %v", err.Error(), LaunchFailed.Message())
	}
	if err.Stack == "" {
		t.Error("Stack should be captured")
	}
}

func TestNewf(t *testing.T) {
	err := Newf(QuotaExhausted, "requested %.0fs", 25.0)

	if want := "requested 25s"; err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}
}

func TestWrap(t *testing.T) {
	originalErr := errors.New("disk full")
	wrappedErr := Wrap(originalErr, LedgerIOError)

	if wrappedErr.Code != LedgerIOError {
		t.Errorf("Code = %v, want %v", wrappedErr.Code, LedgerIOError)
	}
	if wrappedErr.Unwrap() != originalErr {
		t.Error("Unwrap() should return original error")
	}
	if Wrap(nil, LedgerIOError) != nil {
		t.Error("Wrap(nil) should be nil")
	}
}

func TestWrapKeepsExistingCode(t *testing.T) {
	inner := New(TargetNotFound)
	outer := Wrap(fmt.Errorf("resolve: %w", inner), LaunchFailed)

	if outer.Code != TargetNotFound {
		t.Errorf("Code = %v, want %v", outer.Code, TargetNotFound)
	}
}

func TestWrapf(t *testing.T) {
	err := Wrapf(errors.New("EOF"), LedgerIOError, "load usage of %s", "alice")

	if want := "load usage of alice: EOF"; err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}
	if !Is(err, LedgerIOError) {
		t.Error("Is() should match the wrapping code")
	}
}

func TestError_WithDetail(t *testing.T) {
	err := ValidationError("amount", "must be positive")

	if err.Details["field"] != "amount" {
		t.Error("Field detail not set correctly")
	}
	if err.Details["reason"] != "must be positive" {
		t.Error("Reason detail not set correctly")
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{name: "nil error", err: nil, want: Success},
		{name: "custom error", err: New(KillFailed), want: KillFailed},
		{name: "wrapped custom error", err: fmt.Errorf("ctx: %w", New(JoinTimeout)), want: JoinTimeout},
		{name: "standard error", err: errors.New("standard error"), want: InternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.want {
				t.Errorf("GetCode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHelpers(t *testing.T) {
	if got := NotFoundError("job").Error(); got != "job not found" {
		t.Errorf("NotFoundError() = %v", got)
	}
	if got := BadRequest("bad").Code; got != InvalidParams {
		t.Errorf("BadRequest().Code = %v", got)
	}
	if got := ForbiddenError("admin only"); got.Code != Forbidden || got.Error() != "admin only" {
		t.Errorf("ForbiddenError() = %v (%v)", got, got.Code)
	}
	if Is(nil, Success) {
		t.Error("Is(nil) should be false")
	}
}

package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

type leadState string

func TestTransitionCarriesAllowedTargets(t *testing.T) {
	err := Transition(leadState("new"), leadState("closed_won"), []leadState{"contacted", "closed_lost"})
	if err.Code != CodeInvalidTransition {
		t.Fatalf("code = %s", err.Code)
	}
	meta := err.Metadata
	if meta["from"] != "new" || meta["to"] != "closed_won" || meta["allowed"] != "contacted,closed_lost" {
		t.Fatalf("metadata = %v", meta)
	}
}

func TestGetCodeThroughWrapping(t *testing.T) {
	base := NotFound("lead", "42")
	wrapped := fmt.Errorf("apply action: %w", base)
	if !IsCode(wrapped, CodeNotFound) {
		t.Fatalf("GetCode = %s", GetCode(wrapped))
	}
	if GetMetadata(wrapped)["id"] != "42" {
		t.Fatalf("metadata lost through wrapping")
	}
	if GetCode(errors.New("plain")) != CodeUnknown {
		t.Fatal("plain error should be unknown")
	}
}

func TestPersistenceUnwraps(t *testing.T) {
	cause := errors.New("connection reset")
	err := Persistence("update project status", cause)
	if !errors.Is(err, cause) {
		t.Fatal("persistence error should unwrap to its cause")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeDepositExceeds, http.StatusBadRequest},
		{CodeInvalidTransition, http.StatusConflict},
		{CodeReadOnlyProject, http.StatusConflict},
		{CodeNotFound, http.StatusNotFound},
		{CodeSessionExpired, http.StatusUnauthorized},
		{CodeForbidden, http.StatusForbidden},
		{CodePersistence, http.StatusBadGateway},
		{CodeUnknown, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := tt.code.HTTPStatus(); got != tt.want {
			t.Errorf("%s.HTTPStatus() = %d, want %d", tt.code, got, tt.want)
		}
	}
}

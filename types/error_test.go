package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrPersistenceFailed, "save failed").
		WithCause(root).
		WithRetryable(true)

	if GetErrorCode(err) != ErrPersistenceFailed {
		t.Fatalf("expected code %s, got %s", ErrPersistenceFailed, GetErrorCode(err))
	}
	if !err.Retryable {
		t.Fatalf("expected retryable")
	}
	if !errors.Is(err, root) {
		t.Fatalf("expected errors.Is unwrap to root")
	}
	if got := err.Error(); got != "[PERSISTENCE_FAILED] save failed: root" {
		t.Fatalf("unexpected error string %q", got)
	}
}

func TestError_DefaultStatus(t *testing.T) {
	t.Parallel()

	cases := map[ErrorCode]int{
		ErrInvalidWorkflow:  http.StatusBadRequest,
		ErrAgentNotFound:    http.StatusNotFound,
		ErrApprovalNotFound: http.StatusNotFound,
		ErrApprovalRejected: http.StatusConflict,
		ErrTimeout:          http.StatusGatewayTimeout,
		ErrInternalError:    http.StatusInternalServerError,
	}
	for code, want := range cases {
		if got := NewError(code, "x").HTTPStatus; got != want {
			t.Errorf("%s: expected status %d, got %d", code, want, got)
		}
	}
}

func TestIsErrorCode_Wrapped(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("outer: %w", NewError(ErrAgentNotFound, "agent not found: x"))
	if !IsErrorCode(err, ErrAgentNotFound) {
		t.Fatalf("expected wrapped code to be found")
	}
	if IsErrorCode(errors.New("plain"), ErrAgentNotFound) {
		t.Fatalf("plain error must not match")
	}
}

func TestStage_LabelAndOrder(t *testing.T) {
	t.Parallel()

	if got := StageLiteratureSearch.Label("ko"); got != "문헌검색" {
		t.Fatalf("unexpected ko label %q", got)
	}
	if got := StageLiteratureSearch.Label("fr"); got != "Literature Search" {
		t.Fatalf("expected english fallback, got %q", got)
	}
	if got := Stage("unknown").Label("en"); got != "unknown" {
		t.Fatalf("expected raw fallback, got %q", got)
	}
	for i, s := range ResearchStages {
		if s.Order() != i+1 {
			t.Fatalf("stage %s: expected order %d, got %d", s, i+1, s.Order())
		}
	}
}

func TestTempKey(t *testing.T) {
	t.Parallel()

	k := TempKey("draft")
	if k != "temp:draft" || !IsTempKey(k) {
		t.Fatalf("unexpected temp key %q", k)
	}
	if IsTempKey(KeyPaperDraft) {
		t.Fatalf("%s must not be temporary", KeyPaperDraft)
	}
}

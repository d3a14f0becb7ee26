package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestKindOfDirect(t *testing.T) {
	err := NotFound("task not found")
	if KindOf(err) != KindNotFound {
		t.Fatalf("expected KindNotFound, got %v", KindOf(err))
	}
}

func TestKindOfWrapped(t *testing.T) {
	base := Conflict("task already running")
	wrapped := fmt.Errorf("execute task: %w", base)
	if KindOf(wrapped) != KindConflict {
		t.Fatalf("expected KindConflict, got %v", KindOf(wrapped))
	}
}

func TestKindOfDefaultsToInternal(t *testing.T) {
	if KindOf(stderrors.New("boom")) != KindInternal {
		t.Fatalf("expected KindInternal default")
	}
	if KindOf(nil) != KindInternal {
		t.Fatalf("expected KindInternal for nil")
	}
}

func TestIsHelper(t *testing.T) {
	err := Timeout("agent did not respond")
	if !Is(err, KindTimeout) {
		t.Fatalf("expected Is(err, KindTimeout) to be true")
	}
	if Is(err, KindGone) {
		t.Fatalf("expected Is(err, KindGone) to be false")
	}
}

func TestErrorMessageIncludesCause(t *testing.T) {
	cause := stderrors.New("no such file or directory")
	err := Internal(cause, "read tasks.yaml")
	want := "read tasks.yaml: no such file or directory"
	if err.Error() != want {
		t.Fatalf("got %q, want %q", err.Error(), want)
	}
}

func TestUnwrapSupportsErrorsIs(t *testing.T) {
	sentinel := stderrors.New("sentinel")
	err := Wrap(KindInternal, sentinel, "wrapping")
	if !stderrors.Is(err, sentinel) {
		t.Fatalf("expected errors.Is to find sentinel through Unwrap")
	}
}

package protocol

import (
	"errors"
	"testing"
)

func TestIsKnownCode(t *testing.T) {
	cases := []string{
		"",
		ErrValidation,
		ErrScript,
		ErrLimiter,
		ErrTimeout,
		ErrCrash,
		ErrRestart,
		ErrStore,
		ErrInternal,
	}
	for _, c := range cases {
		if !IsKnownCode(c) {
			t.Fatalf("expected known code: %q", c)
		}
	}
	if IsKnownCode("E_NOT_DEFINED") {
		t.Fatalf("expected unknown code rejected")
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(nil); got != "" {
		t.Fatalf("CodeOf(nil) = %q", got)
	}
	if got := CodeOf(NewError(ErrTimeout, "too slow")); got != ErrTimeout {
		t.Fatalf("CodeOf = %q", got)
	}
	if got := CodeOf(errors.New("plain")); got != ErrInternal {
		t.Fatalf("CodeOf(plain) = %q", got)
	}
}

func TestError_Format(t *testing.T) {
	e := NewError(ErrLimiter, "script too large: %d bytes", 99)
	if e.Error() != "E_LIMITER: script too large: 99 bytes" {
		t.Fatalf("format = %q", e.Error())
	}
	bare := &Error{Code: ErrCrash}
	if bare.Error() != "E_CRASH" {
		t.Fatalf("bare format = %q", bare.Error())
	}
}

func TestEvalContext_CacheKey(t *testing.T) {
	a := EvalContext{Actor: "alice", Origin: "#chan"}
	b := EvalContext{Actor: "alice", Origin: "#other"}
	if a.CacheKey() == b.CacheKey() {
		t.Fatal("cache keys must separate origins")
	}
	if a.CacheKey() != (EvalContext{Actor: "alice", Origin: "#chan"}).CacheKey() {
		t.Fatal("cache key not stable")
	}
}

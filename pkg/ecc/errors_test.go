package ecc

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	base := errors.New("boom")
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"transient", Transient("flush", base), KindTransient},
		{"fatal", Fatal("schema_bootstrap", base), KindFatal},
		{"validation", Validation("chunk", base), KindValidation},
		{"wrapped fatal", fmt.Errorf("tick: %w", Fatal("version_gate", base)), KindFatal},
		{"unclassified defaults to transient", base, KindTransient},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := KindOf(tc.err); got != tc.want {
				t.Errorf("KindOf() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	base := errors.New("connection refused")
	err := Transient("get_batch_cursor", base)
	if !errors.Is(err, base) {
		t.Error("wrapped cause not reachable through errors.Is")
	}
}

func TestIsFatal(t *testing.T) {
	if IsFatal(nil) {
		t.Error("IsFatal(nil) = true")
	}
	if IsFatal(Transient("x", errors.New("x"))) {
		t.Error("transient error reported fatal")
	}
	if !IsFatal(Fatal("x", errors.New("x"))) {
		t.Error("fatal error not reported fatal")
	}
}

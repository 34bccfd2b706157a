package errorsx

import "testing"

func TestWrapAndReason(t *testing.T) {
	err := Wrap(assertErr{}, ReasonStreamDecode)
	if Reason(err) != ReasonStreamDecode {
		t.Fatalf("expected reason %s, got %s", ReasonStreamDecode, Reason(err))
	}
	if !HasReason(err, ReasonStreamDecode) {
		t.Fatalf("expected HasReason true")
	}
}

func TestWrapPreservesExistingReason(t *testing.T) {
	first := Wrap(assertErr{}, ReasonUpload)
	second := Wrap(first, ReasonAnalysis)
	if Reason(second) != ReasonUpload {
		t.Fatalf("expected reason preserved, got %s", Reason(second))
	}
}

func TestOverrideReplacesExistingReason(t *testing.T) {
	inner := Wrap(assertErr{}, ReasonGatewayStatus)
	outer := Override(inner, ReasonUpload)
	if Reason(outer) != ReasonUpload {
		t.Fatalf("expected reason replaced, got %s", Reason(outer))
	}
	if outer.Error() != "boom" {
		t.Fatalf("expected message preserved, got %q", outer.Error())
	}
	if Override(nil, ReasonUpload) != nil {
		t.Fatalf("expected nil")
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, ReasonUpload) != nil {
		t.Fatalf("expected nil")
	}
	if Reason(nil) != ReasonUnknown {
		t.Fatalf("expected unknown reason for nil error")
	}
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }

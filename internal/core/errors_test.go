package core

import "testing"

func TestError_MessageByKind(t *testing.T) {
	cases := []struct {
		name string
		err  *Error
		want string
	}{
		{"not_found", NotFound("agent", "Nobody"), `agent "Nobody" not found`},
		{"validation", Validation("agent_name", "!!", "must match ^[a-zA-Z0-9_]{1,64}$", "x"), `invalid agent_name "!!": must match ^[a-zA-Z0-9_]{1,64}$`},
		{"quota", QuotaExceeded(5, 5), "quota exceeded: 5/5"},
		{"lock_timeout", LockTimeout("/tmp/.archive.lock", 123), "timed out acquiring lock /tmp/.archive.lock (held by pid 123)"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.err.Error(); got != tc.want {
				t.Errorf("Error() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestError_JSONRPCCodeAndHTTPStatus(t *testing.T) {
	cases := []struct {
		kind       Kind
		rpcCode    int
		httpStatus int
	}{
		{KindNotFound, 1404, 404},
		{KindQuotaExceeded, 1403, 403},
		{KindAuthError, 1401, 401},
		{KindLockTimeout, 1408, 408},
		{KindValidation, 1422, 422},
		{KindConflict, 1409, 409},
		{KindInternal, 1500, 500},
		{KindUnknown, 1500, 500},
	}
	for _, tc := range cases {
		e := &Error{Kind: tc.kind}
		if got := e.JSONRPCCode(); got != tc.rpcCode {
			t.Errorf("kind %v: JSONRPCCode() = %d, want %d", tc.kind, got, tc.rpcCode)
		}
		if got := e.HTTPStatus(); got != tc.httpStatus {
			t.Errorf("kind %v: HTTPStatus() = %d, want %d", tc.kind, got, tc.httpStatus)
		}
	}
}

func TestError_ContextPayloadByKind(t *testing.T) {
	nf := NotFound("agent", "Noboddy", "Nobody", "Noboddi")
	ctx := nf.Context()
	if ctx["entity_type"] != "agent" || ctx["identifier"] != "Noboddy" {
		t.Fatalf("not_found context = %#v", ctx)
	}
	similar, ok := ctx["similar"].([]string)
	if !ok || len(similar) != 2 {
		t.Fatalf("similar = %#v, want 2 entries", ctx["similar"])
	}

	qe := QuotaExceeded(10, 5)
	qctx := qe.Context()
	if qctx["current"] != 10 || qctx["limit"] != 5 {
		t.Fatalf("quota context = %#v", qctx)
	}
}

func TestAsError_WrapsForeignErrorsAsInternal(t *testing.T) {
	if AsError(nil) != nil {
		t.Fatal("AsError(nil) should be nil")
	}

	native := NotFound("agent", "x")
	if got := AsError(native); got != native {
		t.Fatalf("AsError should pass through an existing *Error unchanged, got %#v", got)
	}

	wrapped := AsError(errString("boom"))
	if wrapped.Kind != KindInternal {
		t.Fatalf("AsError(foreign) kind = %v, want KindInternal", wrapped.Kind)
	}
}

type errString string

func (e errString) Error() string { return string(e) }

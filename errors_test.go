package printdesk

import (
	"errors"
	"net/http"
	"testing"
)

func TestNewAPIErrorEnvelopes(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		code    string
		message string
	}{
		{"nested", `{"error":{"code":"quota","message":"print quota exceeded"}}`, "quota", "print quota exceeded"},
		{"detail", `{"detail":"Authentication credentials were not provided.","code":"not_authenticated"}`, "not_authenticated", "Authentication credentials were not provided."},
		{"flat", `{"code":"bad","message":"bad input"}`, "bad", "bad input"},
		{"empty", ``, "", "Bad Request"},
		{"html", `<html>oops</html>`, "", "Bad Request"},
	}
	for _, tc := range cases {
		e := newAPIError(http.StatusBadRequest, nil, []byte(tc.body))
		if e.Code != tc.code || e.Message != tc.message {
			t.Fatalf("%s: got code=%q message=%q", tc.name, e.Code, e.Message)
		}
		if string(e.Body) != tc.body {
			t.Fatalf("%s: raw body not kept", tc.name)
		}
	}
}

func TestAPIErrorPredicates(t *testing.T) {
	if !(&APIError{StatusCode: 401}).IsUnauthorized() {
		t.Fatalf("401 must be unauthorized")
	}
	if !(&APIError{StatusCode: 403}).IsForbidden() || !(&APIError{StatusCode: 404}).IsNotFound() {
		t.Fatalf("status predicates broken")
	}
	if got := (&APIError{StatusCode: 409, Code: "conflict", Message: "order locked"}).Error(); got != "api error 409 conflict: order locked" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestSessionExpiredErrorUnwrap(t *testing.T) {
	unauthorized := &APIError{StatusCode: 401}
	err := withUnauthorized(&SessionExpiredError{LoginURL: "/login", Cause: ErrNoRefreshToken}, unauthorized)

	if !errors.Is(err, ErrSessionExpired) || !errors.Is(err, ErrNoRefreshToken) {
		t.Fatalf("expected sentinel and cause to match: %v", err)
	}
	apiErr, ok := AsAPIError(err)
	if !ok || apiErr != unauthorized {
		t.Fatalf("expected the caller's 401, got %v", apiErr)
	}
	if err.Error() != "session expired: no refresh token stored" {
		t.Fatalf("unexpected message %q", err.Error())
	}

	plain := errors.New("store down")
	if withUnauthorized(plain, unauthorized) != plain {
		t.Fatalf("non-session errors pass through")
	}
}

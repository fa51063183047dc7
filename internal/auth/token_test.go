package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/example/facility-booking/internal/application"
)

const testSecret = "test-secret"

func fixedNow() time.Time {
	return time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
}

func TestTokenVerifier_Verify(t *testing.T) {
	t.Parallel()

	verifier, err := NewTokenVerifier(testSecret, WithClock(fixedNow))
	if err != nil {
		t.Fatalf("NewTokenVerifier returned error: %v", err)
	}
	issuer := NewTokenIssuer(testSecret, time.Hour, fixedNow)

	t.Run("maps claims to a principal", func(t *testing.T) {
		t.Parallel()

		token, err := issuer.Issue(application.Principal{UserID: "staff-3", Role: application.RoleStaff, Floor: "Third Floor"})
		if err != nil {
			t.Fatalf("Issue returned error: %v", err)
		}
		principal, err := verifier.Verify(token)
		if err != nil {
			t.Fatalf("Verify returned error: %v", err)
		}
		want := application.Principal{UserID: "staff-3", Role: application.RoleStaff, Floor: "3"}
		if principal != want {
			t.Fatalf("expected %+v, got %+v", want, principal)
		}
	})

	t.Run("students carry no floor", func(t *testing.T) {
		t.Parallel()

		token, err := issuer.Issue(application.Principal{UserID: "student-1", Role: application.RoleStudent, Floor: "3"})
		if err != nil {
			t.Fatalf("Issue returned error: %v", err)
		}
		principal, err := verifier.Verify(token)
		if err != nil {
			t.Fatalf("Verify returned error: %v", err)
		}
		if principal.Floor != "" {
			t.Fatalf("expected empty floor for a student, got %q", principal.Floor)
		}
	})

	sign := func(t *testing.T, method jwt.SigningMethod, key any, claims Claims) string {
		t.Helper()
		token, err := jwt.NewWithClaims(method, claims).SignedString(key)
		if err != nil {
			t.Fatalf("failed to sign token: %v", err)
		}
		return token
	}
	valid := func(subject, role string) Claims {
		return Claims{
			Role: role,
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   subject,
				ExpiresAt: jwt.NewNumericDate(fixedNow().Add(time.Hour)),
			},
		}
	}
	expired := valid("student-1", "student")
	expired.ExpiresAt = jwt.NewNumericDate(fixedNow().Add(-time.Minute))
	noExpiry := valid("student-1", "student")
	noExpiry.ExpiresAt = nil

	cases := []struct {
		name  string
		token string
	}{
		{name: "empty", token: "  "},
		{name: "garbage", token: "not-a-token"},
		{name: "wrong secret", token: sign(t, jwt.SigningMethodHS256, []byte("other"), valid("student-1", "student"))},
		{name: "wrong algorithm", token: sign(t, jwt.SigningMethodHS512, []byte(testSecret), valid("student-1", "student"))},
		{name: "expired", token: sign(t, jwt.SigningMethodHS256, []byte(testSecret), expired)},
		{name: "missing expiry", token: sign(t, jwt.SigningMethodHS256, []byte(testSecret), noExpiry)},
		{name: "missing subject", token: sign(t, jwt.SigningMethodHS256, []byte(testSecret), valid("", "student"))},
		{name: "unknown role", token: sign(t, jwt.SigningMethodHS256, []byte(testSecret), valid("student-1", "dean"))},
	}

	for _, tc := range cases {
		tc := tc
		t.Run("rejects "+tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := verifier.Verify(tc.token)
			if !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestTokenVerifier_Leeway(t *testing.T) {
	t.Parallel()

	issuer := NewTokenIssuer(testSecret, time.Minute, fixedNow)
	token, err := issuer.Issue(application.Principal{UserID: "admin-1", Role: application.RoleAdmin})
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	late := func() time.Time { return fixedNow().Add(90 * time.Second) }
	strict, _ := NewTokenVerifier(testSecret, WithClock(late))
	if _, err := strict.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token to be rejected, got %v", err)
	}

	tolerant, _ := NewTokenVerifier(testSecret, WithClock(late), WithLeeway(time.Minute))
	principal, err := tolerant.Verify(token)
	if err != nil {
		t.Fatalf("expected leeway to accept token, got %v", err)
	}
	if !principal.IsAdmin() {
		t.Fatalf("expected admin principal, got %+v", principal)
	}
}

func TestNewTokenVerifier_RequiresSecret(t *testing.T) {
	t.Parallel()

	if _, err := NewTokenVerifier(" "); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}

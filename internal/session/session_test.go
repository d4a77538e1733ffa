package session

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"umrahlink/internal/booking"
)

func fixedIssuer(secret string, now time.Time) Issuer {
	return Issuer{Secret: []byte(secret), TTL: time.Hour, Now: func() time.Time { return now }}
}

func TestIssueVerify_Roundtrip(t *testing.T) {
	now := time.Unix(1700000000, 0)
	iss := fixedIssuer("s3cret", now)

	tok, exp, err := iss.Issue(Session{UserID: 12, Username: "amina", Role: booking.RoleCustomer, Token: "backend-tok"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !exp.Equal(now.Add(time.Hour)) {
		t.Fatalf("expiry %v", exp)
	}

	got, err := iss.Verify(tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got.UserID != 12 || got.Role != booking.RoleCustomer || got.Token != "backend-tok" || got.Username != "amina" {
		t.Fatalf("unexpected session %+v", got)
	}
}

func TestVerify_Expired(t *testing.T) {
	now := time.Unix(1700000000, 0)
	tok, _, err := fixedIssuer("s3cret", now).Issue(Session{UserID: 1, Role: booking.RoleProvider, Token: "t"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	later := fixedIssuer("s3cret", now.Add(2*time.Hour))
	if _, err := later.Verify(tok); !errors.Is(err, jwt.ErrTokenExpired) {
		t.Fatalf("expected expired error, got %v", err)
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	now := time.Unix(1700000000, 0)
	tok, _, err := fixedIssuer("one", now).Issue(Session{UserID: 1, Role: booking.RoleAdmin, Token: "t"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := fixedIssuer("two", now).Verify(tok); !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
		t.Fatalf("expected signature error, got %v", err)
	}
}

func TestVerify_UnknownRole(t *testing.T) {
	now := time.Unix(1700000000, 0)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "5",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
		Role:         "SUPPORT",
		BackendToken: "t",
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("k"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := fixedIssuer("k", now).Verify(tok); !errors.Is(err, booking.ErrUnknownValue) {
		t.Fatalf("expected unknown role error, got %v", err)
	}
}

func TestIssue_RequiresSecretAndToken(t *testing.T) {
	if _, _, err := (Issuer{}).Issue(Session{Role: booking.RoleCustomer, Token: "t"}); !errors.Is(err, ErrMissingKey) {
		t.Fatalf("expected missing key, got %v", err)
	}
	if _, _, err := fixedIssuer("k", time.Now()).Issue(Session{Role: booking.RoleCustomer}); err == nil {
		t.Fatalf("expected error for missing backend token")
	}
}

package session

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"umrahlink/internal/booking"
)

var (
	ErrMissingToken = errors.New("missing session token")
	ErrMissingKey   = errors.New("missing session secret")
)

// Session is the signed-in viewer. It is carried explicitly through request context instead of
// being looked up from ambient storage by each screen.
type Session struct {
	UserID   int64
	Username string
	Role     booking.Role
	// Token is the backend's own auth token. It rides in the session JWT's bt claim, signed but not
	// encrypted, so anyone holding the session can read it.
	Token     string
	ExpiresAt time.Time
}

type Claims struct {
	jwt.RegisteredClaims

	Role         string `json:"role"`
	Username     string `json:"username,omitempty"`
	BackendToken string `json:"bt"`
}

// Issuer mints and verifies gateway session tokens (HS256).
type Issuer struct {
	Secret []byte
	TTL    time.Duration
	Now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) Issuer {
	return Issuer{Secret: []byte(secret), TTL: ttl, Now: time.Now}
}

func (i Issuer) now() time.Time {
	if i.Now == nil {
		return time.Now()
	}
	return i.Now()
}

func (i Issuer) Issue(s Session) (string, time.Time, error) {
	if len(i.Secret) == 0 {
		return "", time.Time{}, ErrMissingKey
	}
	if s.Token == "" {
		return "", time.Time{}, fmt.Errorf("session without backend token")
	}
	if !s.Role.Valid() {
		return "", time.Time{}, fmt.Errorf("session role %q: %w", s.Role, booking.ErrUnknownValue)
	}

	now := i.now()
	exp := now.Add(i.TTL)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(s.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Role:         string(s.Role),
		Username:     s.Username,
		BackendToken: s.Token,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session: %w", err)
	}
	return signed, exp, nil
}

// Verify checks signature, algorithm and expiry, and rejects sessions whose role the gate does not
// know.
func (i Issuer) Verify(tokenString string) (Session, error) {
	if tokenString == "" {
		return Session{}, ErrMissingToken
	}
	if len(i.Secret) == 0 {
		return Session{}, ErrMissingKey
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	)
	claims := &Claims{}
	tok, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return i.Secret, nil
	})
	if err != nil {
		return Session{}, err
	}
	if !tok.Valid {
		return Session{}, fmt.Errorf("invalid session token")
	}

	role, err := booking.ParseRole(claims.Role)
	if err != nil {
		return Session{}, err
	}
	if claims.BackendToken == "" {
		return Session{}, fmt.Errorf("session without backend token")
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return Session{}, fmt.Errorf("session subject %q: %w", claims.Subject, err)
	}

	return Session{
		UserID:    userID,
		Username:  claims.Username,
		Role:      role,
		Token:     claims.BackendToken,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

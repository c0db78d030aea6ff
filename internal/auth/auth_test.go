package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	testSecret = "unit-test-secret"
	testIssuer = "swimforge.identity"
)

func mint(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestParseValidToken(t *testing.T) {
	userID := uuid.New()
	token := mint(t, jwt.MapClaims{
		"sub":    userID.String(),
		"iss":    testIssuer,
		"exp":    time.Now().Add(time.Hour).Unix(),
		"scopes": []string{ScopeRead, ScopeWrite},
	})

	claims, err := Parse(token, Config{Secret: testSecret, Issuer: testIssuer})
	if err != nil {
		t.Fatalf("valid token rejected: %v", err)
	}
	if claims.Subject != userID.String() {
		t.Errorf("subject = %q, want %q", claims.Subject, userID)
	}
	if !claims.HasScope(ScopeRead) || !claims.HasScope(ScopeWrite) {
		t.Error("expected read and write scopes")
	}
	if claims.HasScope(ScopeAdmin) {
		t.Error("admin scope must not be granted")
	}

	got, err := claims.UserID()
	if err != nil {
		t.Fatalf("UserID: %v", err)
	}
	if got != userID {
		t.Errorf("UserID = %v, want %v", got, userID)
	}
}

func TestParseSpaceSeparatedScopes(t *testing.T) {
	token := mint(t, jwt.MapClaims{
		"sub":    uuid.NewString(),
		"iss":    testIssuer,
		"exp":    time.Now().Add(time.Hour).Unix(),
		"scopes": ScopeRead + " " + ScopeAdmin,
	})

	claims, err := Parse(token, Config{Secret: testSecret, Issuer: testIssuer})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !claims.HasScope(ScopeRead) || !claims.HasScope(ScopeAdmin) {
		t.Errorf("scopes = %v, want read+admin", claims.Scopes)
	}
}

func TestParseRejections(t *testing.T) {
	cfg := Config{Secret: testSecret, Issuer: testIssuer}
	future := time.Now().Add(time.Hour).Unix()

	cases := map[string]string{
		"wrong issuer": mint(t, jwt.MapClaims{
			"sub": uuid.NewString(), "iss": "someone-else", "exp": future,
		}),
		"expired": mint(t, jwt.MapClaims{
			"sub": uuid.NewString(), "iss": testIssuer, "exp": time.Now().Add(-time.Minute).Unix(),
		}),
		"missing expiry": mint(t, jwt.MapClaims{
			"sub": uuid.NewString(), "iss": testIssuer,
		}),
		"missing subject": mint(t, jwt.MapClaims{
			"iss": testIssuer, "exp": future,
		}),
		"wrong secret": func() string {
			token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
				"sub": uuid.NewString(), "iss": testIssuer, "exp": future,
			})
			signed, _ := token.SignedString([]byte("other-secret"))
			return signed
		}(),
		"garbage": "not.a.token",
	}

	for name, token := range cases {
		if _, err := Parse(token, cfg); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("%s: err = %v, want ErrInvalidToken", name, err)
		}
	}
}

func TestParseRejectsNonHMACAlgorithm(t *testing.T) {
	// alg=none style tokens must never be accepted.
	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": uuid.NewString(), "iss": testIssuer, "exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}

	if _, err := Parse(signed, Config{Secret: testSecret, Issuer: testIssuer}); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestParseEmptyToken(t *testing.T) {
	if _, err := Parse("  ", Config{Secret: testSecret, Issuer: testIssuer}); !errors.Is(err, ErrMissingToken) {
		t.Errorf("err = %v, want ErrMissingToken", err)
	}
}

func TestUserIDRejectsNonUUIDSubject(t *testing.T) {
	claims := &Claims{Subject: "service-account-7"}
	if _, err := claims.UserID(); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

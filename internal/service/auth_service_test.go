package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/testhub/testhub-backend/internal/config"
	"github.com/testhub/testhub-backend/internal/model"
	"golang.org/x/crypto/bcrypt"
)

func newTestAuth() *AuthService {
	cfg := &config.Config{
		JWTSecret:  "test-secret",
		JWTExpiry:  time.Hour,
		BcryptCost: bcrypt.MinCost,
	}
	return NewAuthService(cfg, nil, nil, zerolog.Nop())
}

func TestTokenRoundTrip(t *testing.T) {
	s := newTestAuth()
	user := &model.User{ID: 7, Name: "Dr. Lee", Role: model.RoleLecturer}

	token, err := s.GenerateToken(context.Background(), user)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	claims, err := s.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.UserID != 7 || claims.Role != model.RoleLecturer || claims.Name != "Dr. Lee" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if claims.ID == "" {
		t.Fatal("token has no jti")
	}
}

func TestValidateTokenRejectsTampering(t *testing.T) {
	s := newTestAuth()
	token, err := s.GenerateToken(context.Background(), &model.User{ID: 1, Role: model.RoleAdmin})
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	parts := strings.Split(token, ".")
	forged := parts[0] + "." + parts[1] + ".AAAA"
	if _, err := s.ValidateToken(forged); err == nil {
		t.Fatal("forged signature accepted")
	}

	other := newTestAuth()
	other.cfg.JWTSecret = "another-secret"
	if _, err := other.ValidateToken(token); err == nil {
		t.Fatal("token accepted under a different secret")
	}
}

func TestValidateTokenRejectsNoneAlgorithm(t *testing.T) {
	s := newTestAuth()
	claims := Claims{UserID: 1, Role: model.RoleAdmin}
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := s.ValidateToken(token); err == nil {
		t.Fatal("unsigned token accepted")
	}
}

func TestPasswordHashing(t *testing.T) {
	s := newTestAuth()
	hash, err := s.HashPassword("hunter22")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if err := s.CheckPassword(hash, "hunter22"); err != nil {
		t.Fatalf("CheckPassword rejected the right password: %v", err)
	}
	if err := s.CheckPassword(hash, "hunter23"); err != ErrInvalidCredentials {
		t.Fatalf("CheckPassword wrong password = %v, want ErrInvalidCredentials", err)
	}
}

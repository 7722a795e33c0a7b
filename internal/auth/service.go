package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/learnhub/console/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo     Repository
	tokenTTL time.Duration
	now      func() time.Time
}

// NewService constructs a new Service. Issued tokens live for tokenTTL.
func NewService(repo Repository, tokenTTL time.Duration) *Service {
	if tokenTTL <= 0 {
		tokenTTL = 12 * time.Hour
	}
	return &Service{repo: repo, tokenTTL: tokenTTL, now: time.Now}
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// IssueToken mints a bearer credential for staffID and returns its secret form.
func (s *Service) IssueToken(ctx context.Context, staffID int64) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	secret := base64.RawURLEncoding.EncodeToString(buf)
	err := s.repo.CreateToken(ctx, Token{Hash: hashToken(secret), StaffID: staffID, ExpiresAt: s.now().Add(s.tokenTTL)})
	if err != nil {
		return "", err
	}
	return secret, nil
}

// Resolve returns the staff id behind a bearer credential.
func (s *Service) Resolve(ctx context.Context, secret string) (int64, error) {
	if secret == "" {
		return 0, ErrTokenInvalid
	}
	token, err := s.repo.FindToken(ctx, hashToken(secret))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return 0, ErrTokenInvalid
		}
		return 0, err
	}
	if !s.now().Before(token.ExpiresAt) {
		return 0, ErrTokenInvalid
	}
	return token.StaffID, nil
}

// Revoke deletes a bearer credential.
func (s *Service) Revoke(ctx context.Context, secret string) error {
	if secret == "" {
		return nil
	}
	return s.repo.DeleteToken(ctx, hashToken(secret))
}

func hashToken(secret string) []byte {
	sum := sha256.Sum256([]byte(secret))
	return sum[:]
}

package service

import (
	"context"
	"strings"

	"github.com/contentgate/internal/db"
)

const minAdminPasswordLength = 8

// CredentialStore holds the single admin credential.
type CredentialStore interface {
	ValidateAdminCredential(ctx context.Context, email, password string) (bool, error)
	PutAdminCredential(ctx context.Context, email, password string) error
	AdminEmail(ctx context.Context) (string, error)
	Stats(ctx context.Context) (db.Stats, error)
}

// AdminService authenticates the admin and serves dashboard counters.
type AdminService struct {
	store CredentialStore
}

// NewAdminService creates an AdminService instance.
func NewAdminService(store CredentialStore) *AdminService {
	return &AdminService{store: store}
}

// Authenticate returns the trimmed email on success and ErrInvalidCredential otherwise.
func (s *AdminService) Authenticate(ctx context.Context, email, password string) (string, error) {
	email = strings.TrimSpace(email)
	ok, err := s.store.ValidateAdminCredential(ctx, email, password)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrInvalidCredential
	}
	return email, nil
}

// ChangeCredential replaces the stored admin credential. The bootstrap
// credential keeps working.
func (s *AdminService) ChangeCredential(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)
	if err := validateEmail(email); err != nil {
		return err
	}
	if len(password) < minAdminPasswordLength {
		return newValidationError("password", "password must be at least 8 characters")
	}
	return s.store.PutAdminCredential(ctx, email, password)
}

// AdminEmail returns the stored admin email, "" when only the bootstrap credential exists.
func (s *AdminService) AdminEmail(ctx context.Context) (string, error) {
	return s.store.AdminEmail(ctx)
}

// Stats returns dashboard counters.
func (s *AdminService) Stats(ctx context.Context) (db.Stats, error) {
	return s.store.Stats(ctx)
}

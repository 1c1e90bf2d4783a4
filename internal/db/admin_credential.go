package db

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// PutAdminCredential 以 bcrypt 哈希保存唯一的管理员凭据，覆盖已有记录。
func (s *Store) PutAdminCredential(ctx context.Context, email, password string) error {
	trimmedEmail := strings.TrimSpace(email)
	if trimmedEmail == "" || password == "" {
		return errors.New("admin email and password are required")
	}

	gdb, err := s.conn(ctx)
	if err != nil {
		return err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	return upsertSettings(ctx, gdb, map[string]string{
		SettingKeyAdminEmail:        trimmedEmail,
		SettingKeyAdminPasswordHash: string(hashed),
	})
}

// AdminEmail returns the stored admin email, or "" when only the bootstrap credential exists.
func (s *Store) AdminEmail(ctx context.Context) (string, error) {
	gdb, err := s.conn(ctx)
	if err != nil {
		return "", err
	}
	values, err := readSettings(gdb, SettingKeyAdminEmail)
	if err != nil {
		return "", err
	}
	return values[SettingKeyAdminEmail], nil
}

// ValidateAdminCredential checks the bootstrap credential first, then the stored one.
func (s *Store) ValidateAdminCredential(ctx context.Context, email, password string) (bool, error) {
	gdb, err := s.conn(ctx)
	if err != nil {
		return false, err
	}

	trimmedEmail := strings.TrimSpace(email)
	if trimmedEmail == "" || password == "" {
		return false, nil
	}

	s.mu.RLock()
	bootstrapEmail, bootstrapPassword := s.bootstrapEmail, s.bootstrapPassword
	s.mu.RUnlock()

	if trimmedEmail == bootstrapEmail &&
		subtle.ConstantTimeCompare([]byte(password), []byte(bootstrapPassword)) == 1 {
		return true, nil
	}

	values, err := readSettings(gdb, SettingKeyAdminEmail, SettingKeyAdminPasswordHash)
	if err != nil {
		return false, err
	}
	storedEmail := values[SettingKeyAdminEmail]
	storedHash := values[SettingKeyAdminPasswordHash]
	if storedEmail == "" || storedHash == "" || storedEmail != trimmedEmail {
		return false, nil
	}

	if err := bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(password)); err != nil {
		return false, nil
	}
	return true, nil
}

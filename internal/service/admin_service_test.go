package service

import (
	"context"
	"errors"
	"testing"
)

func TestAdminService_AuthenticateAndChangeCredential(t *testing.T) {
	store := setupServiceStore(t)
	store.SetBootstrapCredential("admin@example.com", "admin123")
	svc := NewAdminService(store)
	ctx := context.Background()

	email, err := svc.Authenticate(ctx, " admin@example.com ", "admin123")
	if err != nil {
		t.Fatalf("bootstrap login failed: %v", err)
	}
	if email != "admin@example.com" {
		t.Fatalf("unexpected email %q", email)
	}

	if _, err := svc.Authenticate(ctx, "admin@example.com", "wrong"); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential, got %v", err)
	}

	if err := svc.ChangeCredential(ctx, "owner@site.io", "short"); !IsValidation(err) {
		t.Fatalf("expected validation error for short password, got %v", err)
	}
	if err := svc.ChangeCredential(ctx, "not-an-email", "long-enough"); !IsValidation(err) {
		t.Fatalf("expected validation error for bad email, got %v", err)
	}
	if err := svc.ChangeCredential(ctx, "owner@site.io", "long-enough"); err != nil {
		t.Fatalf("change credential: %v", err)
	}

	if _, err := svc.Authenticate(ctx, "owner@site.io", "long-enough"); err != nil {
		t.Fatalf("stored credential should validate: %v", err)
	}
	if _, err := svc.Authenticate(ctx, "admin@example.com", "admin123"); err != nil {
		t.Fatalf("bootstrap credential should keep working: %v", err)
	}
	stored, err := svc.AdminEmail(ctx)
	if err != nil || stored != "owner@site.io" {
		t.Fatalf("unexpected admin email %q, %v", stored, err)
	}
}

func TestAdminService_Stats(t *testing.T) {
	store := setupServiceStore(t)
	content := NewContentService(store)
	svc := NewAdminService(store)
	ctx := context.Background()

	if _, err := content.Save(ctx, ContentInput{Title: "t", Description: "d", Body: "b", IsPublic: true}); err != nil {
		t.Fatalf("save: %v", err)
	}
	stats, err := svc.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.ContentCount != 1 || stats.PublicContentCount != 1 || stats.SubscriptionCount != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

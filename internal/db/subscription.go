package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm/clause"
)

// Subscription records that a visitor was granted access to a content.
// (Email, ContentID) identifies "already has access" but is not a unique key.
type Subscription struct {
	ID                string    `gorm:"primaryKey;size:64" json:"id"`
	Email             string    `gorm:"size:320;not null;index:idx_subscriptions_email_content,priority:1" json:"email"`
	ContentID         string    `gorm:"size:64;not null;index:idx_subscriptions_email_content,priority:2" json:"content_id"`
	SubscribedAt      time.Time `gorm:"not null;index" json:"subscribed_at"`
	YouTubeSubscribed bool      `gorm:"column:youtube_subscribed;not null" json:"youtube_subscribed"`
	AccessToken       string    `gorm:"column:access_token;type:text" json:"-"`
}

// PutSubscription upserts a subscription by id.
func (s *Store) PutSubscription(ctx context.Context, subscription *Subscription) error {
	if subscription == nil || strings.TrimSpace(subscription.ID) == "" {
		return errors.New("subscription id is required")
	}
	gdb, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if subscription.SubscribedAt.IsZero() {
		subscription.SubscribedAt = time.Now()
	}
	subscription.SubscribedAt = subscription.SubscribedAt.UTC()
	if err := gdb.Clauses(clause.OnConflict{UpdateAll: true}).Create(subscription).Error; err != nil {
		return fmt.Errorf("upsert subscription %s: %w", subscription.ID, err)
	}
	return nil
}

// ListSubscriptions returns all subscriptions, newest first.
func (s *Store) ListSubscriptions(ctx context.Context) ([]Subscription, error) {
	return s.listSubscriptions(ctx, "")
}

// ListSubscriptionsByContent returns subscriptions granted for one content, newest first.
func (s *Store) ListSubscriptionsByContent(ctx context.Context, contentID string) ([]Subscription, error) {
	if strings.TrimSpace(contentID) == "" {
		return []Subscription{}, nil
	}
	return s.listSubscriptions(ctx, contentID)
}

func (s *Store) listSubscriptions(ctx context.Context, contentID string) ([]Subscription, error) {
	gdb, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	query := gdb.Model(&Subscription{})
	if contentID != "" {
		query = query.Where("content_id = ?", contentID)
	}

	subscriptions := []Subscription{}
	if err := query.Order("subscribed_at desc, id asc").Find(&subscriptions).Error; err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return subscriptions, nil
}

// HasSubscription reports whether email already holds access to contentID.
// Email matching is exact and case-sensitive.
func (s *Store) HasSubscription(ctx context.Context, email, contentID string) (bool, error) {
	gdb, err := s.conn(ctx)
	if err != nil {
		return false, err
	}

	var count int64
	if err := gdb.Model(&Subscription{}).
		Where("email = ? AND content_id = ?", email, contentID).
		Limit(1).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("check subscription: %w", err)
	}
	return count > 0, nil
}

package db

import (
	"context"
	"fmt"
)

// Stats aggregates dashboard counters.
type Stats struct {
	ContentCount       int64 `json:"content_count"`
	PublicContentCount int64 `json:"public_content_count"`
	SubscriptionCount  int64 `json:"subscription_count"`
	YouTubeVerified    int64 `json:"youtube_verified_count"`
}

// Stats counts content and subscriptions.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	gdb, err := s.conn(ctx)
	if err != nil {
		return stats, err
	}

	if err := gdb.Model(&Content{}).Count(&stats.ContentCount).Error; err != nil {
		return stats, fmt.Errorf("count content: %w", err)
	}
	if err := gdb.Model(&Content{}).Where("is_public = ?", true).Count(&stats.PublicContentCount).Error; err != nil {
		return stats, fmt.Errorf("count public content: %w", err)
	}
	if err := gdb.Model(&Subscription{}).Count(&stats.SubscriptionCount).Error; err != nil {
		return stats, fmt.Errorf("count subscriptions: %w", err)
	}
	if err := gdb.Model(&Subscription{}).Where("youtube_subscribed = ?", true).Count(&stats.YouTubeVerified).Error; err != nil {
		return stats, fmt.Errorf("count verified subscriptions: %w", err)
	}
	return stats, nil
}

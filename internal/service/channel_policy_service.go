package service

import (
	"context"
	"strings"

	"github.com/contentgate/internal/db"
	"github.com/sirupsen/logrus"
)

// PolicyStore persists the singleton channel policy.
type PolicyStore interface {
	GetChannelPolicy(ctx context.Context) (*db.ChannelPolicy, error)
	PutChannelPolicy(ctx context.Context, policy db.ChannelPolicy) error
}

// ChannelResolver turns a channel URL or handle into a canonical channel id.
type ChannelResolver interface {
	ResolveChannelID(ctx context.Context, channelURLOrHandle string) (string, error)
}

// PolicyInput 用于更新频道订阅策略。
type PolicyInput struct {
	ChannelURL  string
	ChannelName string
	ChannelID   string
	Enabled     bool
}

// ChannelPolicyService 管理全局频道策略。
type ChannelPolicyService struct {
	store    PolicyStore
	resolver ChannelResolver
	logger   logrus.FieldLogger
}

// NewChannelPolicyService 构造 ChannelPolicyService。
func NewChannelPolicyService(store PolicyStore, resolver ChannelResolver, logger logrus.FieldLogger) *ChannelPolicyService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ChannelPolicyService{store: store, resolver: resolver, logger: logger}
}

// Get returns the stored policy. An unconfigured policy reads as disabled.
func (s *ChannelPolicyService) Get(ctx context.Context) (db.ChannelPolicy, error) {
	policy, err := s.store.GetChannelPolicy(ctx)
	if err != nil {
		return db.ChannelPolicy{}, err
	}
	if policy == nil {
		return db.ChannelPolicy{}, nil
	}
	return *policy, nil
}

// Configure stores the policy. A blank channel id is looked up from the URL;
// a failed lookup is logged and the policy is saved without an id.
func (s *ChannelPolicyService) Configure(ctx context.Context, input PolicyInput) (db.ChannelPolicy, error) {
	policy := db.ChannelPolicy{
		ChannelURL:  strings.TrimSpace(input.ChannelURL),
		ChannelName: strings.TrimSpace(input.ChannelName),
		ChannelID:   strings.TrimSpace(input.ChannelID),
		Enabled:     input.Enabled,
	}
	if policy.Enabled && policy.ChannelURL == "" && policy.ChannelID == "" {
		return db.ChannelPolicy{}, newValidationError("channel_url", "channel URL or channel ID is required when the policy is enabled")
	}

	if policy.ChannelID == "" && policy.ChannelURL != "" && s.resolver != nil {
		id, err := s.resolver.ResolveChannelID(ctx, policy.ChannelURL)
		if err != nil {
			s.logger.WithError(err).WithField("channel_url", policy.ChannelURL).Warn("channel id lookup failed, saving policy without id")
		} else {
			policy.ChannelID = id
		}
	}

	if err := s.store.PutChannelPolicy(ctx, policy); err != nil {
		return db.ChannelPolicy{}, err
	}
	return policy, nil
}

// Resolve looks up a channel id without saving anything.
func (s *ChannelPolicyService) Resolve(ctx context.Context, channelURLOrHandle string) (string, error) {
	input := strings.TrimSpace(channelURLOrHandle)
	if input == "" {
		return "", newValidationError("channel_url", "channel URL is required")
	}
	if s.resolver == nil {
		return "", ErrChannelResolution
	}
	return s.resolver.ResolveChannelID(ctx, input)
}

package db

import (
	"context"
	"strconv"
)

// ChannelPolicy is the global gating configuration.
type ChannelPolicy struct {
	ChannelURL  string `json:"channel_url"`
	ChannelName string `json:"channel_name"`
	ChannelID   string `json:"channel_id"`
	Enabled     bool   `json:"enabled"`
}

var channelPolicyKeys = []string{
	SettingKeyChannelURL,
	SettingKeyChannelName,
	SettingKeyChannelID,
	SettingKeyChannelEnabled,
}

// PutChannelPolicy replaces the singleton policy.
func (s *Store) PutChannelPolicy(ctx context.Context, policy ChannelPolicy) error {
	gdb, err := s.conn(ctx)
	if err != nil {
		return err
	}
	return upsertSettings(ctx, gdb, map[string]string{
		SettingKeyChannelURL:     policy.ChannelURL,
		SettingKeyChannelName:    policy.ChannelName,
		SettingKeyChannelID:      policy.ChannelID,
		SettingKeyChannelEnabled: strconv.FormatBool(policy.Enabled),
	})
}

// GetChannelPolicy returns the policy, or nil without error when none was configured yet.
func (s *Store) GetChannelPolicy(ctx context.Context) (*ChannelPolicy, error) {
	gdb, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	values, err := readSettings(gdb, channelPolicyKeys...)
	if err != nil {
		return nil, err
	}

	rawEnabled, configured := values[SettingKeyChannelEnabled]
	if !configured {
		return nil, nil
	}
	enabled, _ := strconv.ParseBool(rawEnabled)

	return &ChannelPolicy{
		ChannelURL:  values[SettingKeyChannelURL],
		ChannelName: values[SettingKeyChannelName],
		ChannelID:   values[SettingKeyChannelID],
		Enabled:     enabled,
	}, nil
}

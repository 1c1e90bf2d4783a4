package service

import (
	"context"
	"testing"

	"github.com/contentgate/internal/gateway"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestChannelPolicyService_UnconfiguredReadsDisabled(t *testing.T) {
	svc := NewChannelPolicyService(setupServiceStore(t), newStubGateway(), quietLogger())
	policy, err := svc.Get(context.Background())
	require.NoError(t, err)
	assert.False(t, policy.Enabled)
	assert.Empty(t, policy.ChannelID)
}

func TestChannelPolicyService_ConfigureResolvesBlankID(t *testing.T) {
	gw := newStubGateway()
	gw.resolved["https://www.youtube.com/@creator"] = "UCcreator"
	svc := NewChannelPolicyService(setupServiceStore(t), gw, quietLogger())
	ctx := context.Background()

	saved, err := svc.Configure(ctx, PolicyInput{
		ChannelURL:  " https://www.youtube.com/@creator ",
		ChannelName: "Creator",
		Enabled:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, "UCcreator", saved.ChannelID)

	stored, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, saved, stored)

	// an explicit id skips the lookup
	gw.resolveCalls = nil
	_, err = svc.Configure(ctx, PolicyInput{ChannelURL: "https://www.youtube.com/@creator", ChannelID: "UCgiven", Enabled: true})
	require.NoError(t, err)
	assert.Empty(t, gw.resolveCalls)
}

func TestChannelPolicyService_ConfigureSurvivesLookupFailure(t *testing.T) {
	gw := newStubGateway()
	gw.resolveErr = gateway.ErrChannelLookup
	svc := NewChannelPolicyService(setupServiceStore(t), gw, quietLogger())
	ctx := context.Background()

	saved, err := svc.Configure(ctx, PolicyInput{ChannelURL: "https://www.youtube.com/@creator", Enabled: true})
	require.NoError(t, err)
	assert.Empty(t, saved.ChannelID)

	stored, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.True(t, stored.Enabled)
	assert.Equal(t, "https://www.youtube.com/@creator", stored.ChannelURL)
}

func TestChannelPolicyService_ConfigureValidates(t *testing.T) {
	svc := NewChannelPolicyService(setupServiceStore(t), newStubGateway(), quietLogger())
	_, err := svc.Configure(context.Background(), PolicyInput{Enabled: true})
	assert.True(t, IsValidation(err))

	// disabling without a channel is fine
	_, err = svc.Configure(context.Background(), PolicyInput{Enabled: false})
	assert.NoError(t, err)

	_, err = svc.Resolve(context.Background(), "  ")
	assert.True(t, IsValidation(err))
}

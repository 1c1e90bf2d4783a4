package handler

import (
	"context"
	"strings"
	"time"

	"github.com/contentgate/internal/db"
	"github.com/contentgate/internal/service"
	"github.com/sirupsen/logrus"
)

// SubscriptionLister lists granted subscriptions for the admin views.
type SubscriptionLister interface {
	ListSubscriptions(ctx context.Context) ([]db.Subscription, error)
	ListSubscriptionsByContent(ctx context.Context, contentID string) ([]db.Subscription, error)
}

// Options carries the runtime settings the handlers need.
type Options struct {
	SiteBaseURL    string
	MaxUploadBytes int64
	AutoSubscribe  bool
	AttemptTTL     time.Duration
	AttemptCache   int
	Logger         logrus.FieldLogger
}

// API bundles shared dependencies for HTTP handlers.
type API struct {
	engine        *service.AccessEngine
	contents      *service.ContentService
	attachments   *service.AttachmentService
	policies      *service.ChannelPolicyService
	admins        *service.AdminService
	subscriptions SubscriptionLister
	logger        logrus.FieldLogger
	siteBaseURL   string
	maxUpload     int64
}

// NewAPI constructs a handler set with shared services.
func NewAPI(store *db.Store, gw service.IdentityGateway, opts Options) *API {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &API{
		engine: service.NewAccessEngine(store, gw, service.AccessEngineOptions{
			AutoSubscribe: opts.AutoSubscribe,
			AttemptTTL:    opts.AttemptTTL,
			MaxAttempts:   opts.AttemptCache,
			Logger:        logger,
		}),
		contents:      service.NewContentService(store),
		attachments:   service.NewAttachmentService(opts.MaxUploadBytes),
		policies:      service.NewChannelPolicyService(store, gw, logger),
		admins:        service.NewAdminService(store),
		subscriptions: store,
		logger:        logger,
		siteBaseURL:   strings.TrimRight(opts.SiteBaseURL, "/"),
		maxUpload:     opts.MaxUploadBytes,
	}
}

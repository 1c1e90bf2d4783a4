package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/contentgate/internal/db"
	"github.com/contentgate/internal/gateway"
	"github.com/contentgate/internal/metrics"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"
)

// AccessState is a step of a verification attempt.
type AccessState string

const (
	StateAwaitingEmail        AccessState = "awaiting_email"
	StateAwaitingExternalAuth AccessState = "awaiting_external_auth"
	StateVerifyingMembership  AccessState = "verifying_membership"
	StateGranted              AccessState = "granted"
	StateDenied               AccessState = "denied"
)

const (
	defaultAttemptTTL       = 30 * time.Minute
	defaultAttemptCacheSize = 4096
)

// AccessStore is the persistence surface the engine needs.
type AccessStore interface {
	GetContent(ctx context.Context, id string) (*db.Content, error)
	GetChannelPolicy(ctx context.Context) (*db.ChannelPolicy, error)
	HasSubscription(ctx context.Context, email, contentID string) (bool, error)
	PutSubscription(ctx context.Context, subscription *db.Subscription) error
}

// IdentityGateway talks to Google sign-in and the YouTube Data API.
type IdentityGateway interface {
	AuthorizationURL() string
	ExchangeCode(ctx context.Context, code string) (gateway.Token, error)
	FetchProfile(ctx context.Context, accessToken string) (gateway.Profile, error)
	ResolveChannelID(ctx context.Context, channelURLOrHandle string) (string, error)
	IsSubscribed(ctx context.Context, accessToken, channelID string) (bool, error)
	Subscribe(ctx context.Context, accessToken, channelID string) error
}

// VisitorIdentity is what the external sign-in hands back to the engine.
type VisitorIdentity struct {
	Email        string
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
	Profile      gateway.Profile
}

// Attempt is one visitor's walk through the gate for one content.
type Attempt struct {
	ID             string           `json:"id"`
	ContentID      string           `json:"content_id"`
	Email          string           `json:"email,omitempty"`
	State          AccessState      `json:"state"`
	Outcome        AccessState      `json:"outcome,omitempty"`
	Reason         string           `json:"reason,omitempty"`
	AlreadyGranted bool             `json:"already_granted,omitempty"`
	AutoSubscribed bool             `json:"auto_subscribed,omitempty"`
	AuthURL        string           `json:"auth_url,omitempty"`
	ChannelID      string           `json:"channel_id,omitempty"`
	Subscription   *db.Subscription `json:"subscription,omitempty"`
	History        []AccessState    `json:"history"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// Granted reports whether the body may be shown.
func (a *Attempt) Granted() bool {
	return a != nil && a.State == StateGranted
}

func (a *Attempt) enter(state AccessState, now time.Time) {
	a.State = state
	a.History = append(a.History, state)
	a.UpdatedAt = now
}

func (a *Attempt) clone() *Attempt {
	if a == nil {
		return nil
	}
	copied := *a
	copied.History = append([]AccessState(nil), a.History...)
	if a.Subscription != nil {
		sub := *a.Subscription
		copied.Subscription = &sub
	}
	return &copied
}

// AccessEngineOptions tunes the engine. Zero values fall back to defaults.
type AccessEngineOptions struct {
	// AutoSubscribe makes the engine subscribe the visitor after a negative
	// membership check. The attempt is still denied.
	AutoSubscribe bool
	AttemptTTL    time.Duration
	MaxAttempts   int
	Logger        logrus.FieldLogger
	Now           func() time.Time
}

// AccessEngine decides whether a visitor may see a content and drives the
// verification flow when the answer is not immediately yes.
type AccessEngine struct {
	store         AccessStore
	gateway       IdentityGateway
	autoSubscribe bool
	logger        logrus.FieldLogger
	now           func() time.Time

	mu       sync.Mutex
	attempts *expirable.LRU[string, *Attempt]
}

// NewAccessEngine builds an AccessEngine.
func NewAccessEngine(store AccessStore, gw IdentityGateway, opts AccessEngineOptions) *AccessEngine {
	ttl := opts.AttemptTTL
	if ttl <= 0 {
		ttl = defaultAttemptTTL
	}
	size := opts.MaxAttempts
	if size <= 0 {
		size = defaultAttemptCacheSize
	}
	logger := opts.Logger
	if logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		logger = l
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &AccessEngine{
		store:         store,
		gateway:       gw,
		autoSubscribe: opts.AutoSubscribe,
		logger:        logger.WithField("component", "access_engine"),
		now:           now,
		attempts:      expirable.NewLRU[string, *Attempt](size, nil, ttl),
	}
}

// Begin starts an attempt for contentID. Public content is granted at once and
// the returned attempt is not tracked.
func (e *AccessEngine) Begin(ctx context.Context, contentID string) (*Attempt, error) {
	content, err := e.loadContent(ctx, contentID)
	if err != nil {
		return nil, err
	}

	attempt := &Attempt{ContentID: content.ID}
	if content.IsPublic {
		attempt.enter(StateGranted, e.now())
		attempt.Outcome = StateGranted
		metrics.AccessDecisions.WithLabelValues("public").Inc()
		return attempt, nil
	}

	attempt.ID = uuid.NewString()
	attempt.enter(StateAwaitingEmail, e.now())
	e.save(attempt)
	return attempt.clone(), nil
}

// Get returns a snapshot of a tracked attempt.
func (e *AccessEngine) Get(attemptID string) (*Attempt, error) {
	return e.load(attemptID)
}

// Cancel drops a tracked attempt. Unknown ids are ignored.
func (e *AccessEngine) Cancel(attemptID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attempts.Remove(attemptID)
}

// SubmitEmail records the visitor's email. Without an enabled channel policy
// the attempt is granted; otherwise it moves on to external sign-in whatever
// records exist for the email.
//
// Validation failures keep the attempt at awaiting_email and return a
// ValidationError. Store failures also re-prompt and return the store error.
func (e *AccessEngine) SubmitEmail(ctx context.Context, attemptID, email string) (*Attempt, error) {
	attempt, err := e.load(attemptID)
	if err != nil {
		return nil, err
	}
	switch attempt.State {
	case StateGranted:
		return attempt, nil
	case StateAwaitingEmail, StateAwaitingExternalAuth:
	default:
		return attempt, ErrInvalidTransition
	}
	if attempt.State != StateAwaitingEmail {
		attempt.enter(StateAwaitingEmail, e.now())
	}

	email = strings.TrimSpace(email)
	if err := validateEmail(email); err != nil {
		attempt.Reason = err.Error()
		attempt.Outcome = ""
		e.save(attempt)
		return attempt.clone(), err
	}
	attempt.Email = email
	attempt.Reason = ""
	attempt.Outcome = ""
	attempt.AuthURL = ""
	attempt.AutoSubscribed = false

	policy, err := e.store.GetChannelPolicy(ctx)
	if err != nil {
		return e.reprompt(attempt, "We could not check your access right now. Please try again.", err), err
	}

	if policy == nil || !policy.Enabled {
		if err := e.grant(ctx, attempt, "", false); err != nil {
			return e.reprompt(attempt, "Subscription failed. Please try again.", err), err
		}
		return attempt.clone(), nil
	}

	// 频道校验开启时，输入的邮箱未经验证，必须走 Google 登录
	attempt.AuthURL = e.gateway.AuthorizationURL()
	attempt.enter(StateAwaitingExternalAuth, e.now())
	e.save(attempt)
	return attempt.clone(), nil
}

// HandleCallback finishes Google sign-in for an attempt: it exchanges the
// authorization code, reads the profile, and verifies membership.
func (e *AccessEngine) HandleCallback(ctx context.Context, attemptID, code string) (*Attempt, error) {
	attempt, err := e.load(attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.State == StateGranted {
		return attempt, nil
	}
	if attempt.State != StateAwaitingExternalAuth {
		return attempt, ErrInvalidTransition
	}

	token, err := e.gateway.ExchangeCode(ctx, code)
	if err != nil {
		return e.reprompt(attempt, "Google sign-in failed. Please try again.", err), nil
	}
	profile, err := e.gateway.FetchProfile(ctx, token.AccessToken)
	if err != nil {
		return e.reprompt(attempt, "We could not read your Google profile. Please try again.", err), nil
	}

	return e.CompleteExternalAuth(ctx, attemptID, VisitorIdentity{
		Email:        profile.Email,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresIn:    token.ExpiresIn,
		Profile:      profile,
	})
}

// CompleteExternalAuth verifies YouTube membership with an already obtained
// access token. The grant is recorded under the Google account email when the
// identity carries one, since the typed email is unverified.
//
// Gateway failures re-prompt at awaiting_email with a reason and no error.
// A negative membership check denies the attempt and, with AutoSubscribe on,
// subscribes the visitor so the next attempt can pass.
func (e *AccessEngine) CompleteExternalAuth(ctx context.Context, attemptID string, identity VisitorIdentity) (*Attempt, error) {
	attempt, err := e.load(attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.State == StateGranted {
		return attempt, nil
	}
	if attempt.State != StateAwaitingExternalAuth {
		return attempt, ErrInvalidTransition
	}

	if strings.TrimSpace(identity.AccessToken) == "" {
		verr := newValidationError("access_token", "Google sign-in did not return an access token.")
		return e.reprompt(attempt, verr.Error(), verr), verr
	}
	if verified := strings.TrimSpace(identity.Email); verified != "" {
		attempt.Email = verified
	}

	attempt.enter(StateVerifyingMembership, e.now())
	e.save(attempt)

	content, err := e.loadContent(ctx, attempt.ContentID)
	if err != nil {
		return e.reprompt(attempt, "This content is no longer available.", err), err
	}
	policy, err := e.store.GetChannelPolicy(ctx)
	if err != nil {
		return e.reprompt(attempt, "We could not check your access right now. Please try again.", err), err
	}

	channelID, err := e.resolveChannel(ctx, content, policy)
	if err != nil {
		e.logger.WithError(err).WithField("content_id", content.ID).Error("channel policy misconfigured")
		return e.reprompt(attempt, "Channel verification is not configured correctly. Please contact the site owner.", err), err
	}
	attempt.ChannelID = channelID
	attempt.AutoSubscribed = false

	subscribed, err := e.gateway.IsSubscribed(ctx, identity.AccessToken, channelID)
	if err != nil {
		return e.reprompt(attempt, "We could not verify your YouTube subscription. Please try again.", err), nil
	}

	if subscribed {
		if err := e.grant(ctx, attempt, identity.AccessToken, true); err != nil {
			return e.reprompt(attempt, "Subscription failed. Please try again.", err), err
		}
		return attempt.clone(), nil
	}

	reason := fmt.Sprintf("You need to subscribe to %s on YouTube to access this content.", channelLabel(content, policy, channelID))
	if e.autoSubscribe {
		if err := e.gateway.Subscribe(ctx, identity.AccessToken, channelID); err != nil {
			e.logger.WithError(err).WithField("channel_id", channelID).Warn("auto subscribe failed")
			if errors.Is(err, gateway.ErrInsufficientScope) {
				reason += " Automatic subscription needs permission to manage your YouTube account."
			}
		} else {
			attempt.AutoSubscribed = true
		}
	}
	e.deny(attempt, reason)
	return attempt.clone(), nil
}

// grant persists a new subscription unless one already exists for the pair.
func (e *AccessEngine) grant(ctx context.Context, attempt *Attempt, accessToken string, youtubeVerified bool) error {
	exists, err := e.store.HasSubscription(ctx, attempt.Email, attempt.ContentID)
	if err != nil {
		return err
	}
	if exists {
		e.markAlreadyGranted(attempt)
		return nil
	}

	subscription := &db.Subscription{
		ID:                uuid.NewString(),
		Email:             attempt.Email,
		ContentID:         attempt.ContentID,
		SubscribedAt:      e.now(),
		YouTubeSubscribed: youtubeVerified,
		AccessToken:       accessToken,
	}
	if err := e.store.PutSubscription(ctx, subscription); err != nil {
		return err
	}

	attempt.Subscription = subscription
	attempt.Outcome = StateGranted
	attempt.Reason = ""
	attempt.AuthURL = ""
	attempt.enter(StateGranted, e.now())
	e.save(attempt)

	metrics.AccessDecisions.WithLabelValues("granted").Inc()
	e.logger.WithFields(logrus.Fields{
		"attempt_id": attempt.ID,
		"content_id": attempt.ContentID,
		"youtube":    youtubeVerified,
	}).Info("access granted")
	return nil
}

func (e *AccessEngine) markAlreadyGranted(attempt *Attempt) {
	attempt.AlreadyGranted = true
	attempt.Outcome = StateGranted
	attempt.Reason = ""
	attempt.AuthURL = ""
	attempt.enter(StateGranted, e.now())
	e.save(attempt)
	metrics.AccessDecisions.WithLabelValues("already_granted").Inc()
}

// deny records a negative membership check and returns the attempt to email entry.
func (e *AccessEngine) deny(attempt *Attempt, reason string) {
	attempt.Outcome = StateDenied
	attempt.Reason = reason
	attempt.enter(StateDenied, e.now())
	attempt.enter(StateAwaitingEmail, e.now())
	e.save(attempt)

	metrics.AccessDecisions.WithLabelValues("denied").Inc()
	e.logger.WithFields(logrus.Fields{
		"attempt_id":      attempt.ID,
		"content_id":      attempt.ContentID,
		"channel_id":      attempt.ChannelID,
		"auto_subscribed": attempt.AutoSubscribed,
	}).Info("access denied")
}

// reprompt sends the attempt back to email entry after an operational failure.
func (e *AccessEngine) reprompt(attempt *Attempt, reason string, cause error) *Attempt {
	attempt.Outcome = ""
	attempt.Reason = reason
	attempt.AuthURL = ""
	if attempt.State != StateAwaitingEmail {
		attempt.enter(StateAwaitingEmail, e.now())
	}
	e.save(attempt)

	metrics.AccessDecisions.WithLabelValues("reprompt").Inc()
	e.logger.WithError(cause).WithFields(logrus.Fields{
		"attempt_id": attempt.ID,
		"content_id": attempt.ContentID,
	}).Warn("verification step failed")
	return attempt.clone()
}

// resolveChannel picks the channel to verify against: the content override id,
// the content override URL, the policy id, then the policy URL. A URL that
// cannot be resolved falls through to the next candidate.
func (e *AccessEngine) resolveChannel(ctx context.Context, content *db.Content, policy *db.ChannelPolicy) (string, error) {
	if id := strings.TrimSpace(content.ChannelID); id != "" {
		return id, nil
	}

	tried := ""
	if url := strings.TrimSpace(content.ChannelURL); url != "" {
		tried = url
		if id, err := e.gateway.ResolveChannelID(ctx, url); err == nil && id != "" {
			return id, nil
		} else if err != nil {
			e.logger.WithError(err).WithField("channel_url", url).Warn("content channel lookup failed")
		}
	}

	if policy != nil {
		if id := strings.TrimSpace(policy.ChannelID); id != "" {
			return id, nil
		}
		if url := strings.TrimSpace(policy.ChannelURL); url != "" && url != tried {
			id, err := e.gateway.ResolveChannelID(ctx, url)
			if err == nil && id != "" {
				return id, nil
			}
			if err != nil {
				return "", fmt.Errorf("%w: %v", ErrChannelResolution, err)
			}
		}
	}
	return "", fmt.Errorf("%w for content %s", ErrChannelResolution, content.ID)
}

func channelLabel(content *db.Content, policy *db.ChannelPolicy, channelID string) string {
	if policy != nil && strings.TrimSpace(policy.ChannelName) != "" {
		return strings.TrimSpace(policy.ChannelName)
	}
	if content.ChannelURL != "" {
		return content.ChannelURL
	}
	if policy != nil && policy.ChannelURL != "" {
		return policy.ChannelURL
	}
	return channelID
}

func (e *AccessEngine) loadContent(ctx context.Context, contentID string) (*db.Content, error) {
	content, err := e.store.GetContent(ctx, contentID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrContentNotFound
		}
		return nil, err
	}
	return content, nil
}

func (e *AccessEngine) load(attemptID string) (*Attempt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	attempt, ok := e.attempts.Get(attemptID)
	if !ok {
		return nil, ErrAttemptNotFound
	}
	return attempt.clone(), nil
}

func (e *AccessEngine) save(attempt *Attempt) {
	if attempt.ID == "" {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attempts.Add(attempt.ID, attempt.clone())
}

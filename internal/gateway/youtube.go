// Package gateway talks to Google's OAuth2 endpoints and the YouTube Data API.
// Every call is attempted once; failures surface immediately to the caller.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/contentgate/internal/metrics"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

const (
	defaultAuthURL        = "https://accounts.google.com/o/oauth2/v2/auth"
	defaultTokenURL       = "https://oauth2.googleapis.com/token"
	defaultUserInfoURL    = "https://www.googleapis.com/oauth2/v2/userinfo"
	defaultYouTubeBaseURL = "https://www.googleapis.com/youtube/v3"

	subscriptionPageSize = 50
	maxResponseBytes     = 1 << 20
)

// Scopes requested during authorization. youtube.force-ssl grants write access,
// which the auto-subscribe step needs; youtube.readonly is not enough.
var Scopes = []string{
	"https://www.googleapis.com/auth/youtube.force-ssl",
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
}

// Config carries the OAuth client and API key.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	APIKey       string
}

// Endpoints overrides Google URLs, mainly for tests.
type Endpoints struct {
	AuthURL     string
	TokenURL    string
	UserInfoURL string
	APIBaseURL  string
}

// Token is the result of an authorization code exchange.
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

// Profile is the subset of Google userinfo the service uses.
type Profile struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// YouTube implements the identity gateway against Google.
type YouTube struct {
	oauth       *oauth2.Config
	client      *http.Client
	userInfoURL string
	apiBaseURL  string
	apiKey      string
	logger      logrus.FieldLogger
}

// NewYouTube builds a gateway for the given OAuth client.
func NewYouTube(cfg Config, logger logrus.FieldLogger) *YouTube {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &YouTube{
		oauth: &oauth2.Config{
			ClientID:     strings.TrimSpace(cfg.ClientID),
			ClientSecret: strings.TrimSpace(cfg.ClientSecret),
			RedirectURL:  strings.TrimSpace(cfg.RedirectURL),
			Scopes:       append([]string(nil), Scopes...),
			Endpoint: oauth2.Endpoint{
				AuthURL:   defaultAuthURL,
				TokenURL:  defaultTokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		client:      &http.Client{Timeout: 15 * time.Second},
		userInfoURL: defaultUserInfoURL,
		apiBaseURL:  defaultYouTubeBaseURL,
		apiKey:      strings.TrimSpace(cfg.APIKey),
		logger:      logger.WithField("component", "gateway"),
	}
}

// SetHTTPClient 替换访问 Google 的 HTTP 客户端，主要面向测试场景。
func (g *YouTube) SetHTTPClient(client *http.Client) {
	if client == nil {
		g.client = &http.Client{Timeout: 15 * time.Second}
		return
	}
	g.client = client
}

// SetEndpoints overrides any non-empty endpoint.
func (g *YouTube) SetEndpoints(endpoints Endpoints) {
	if v := strings.TrimSpace(endpoints.AuthURL); v != "" {
		g.oauth.Endpoint.AuthURL = v
	}
	if v := strings.TrimSpace(endpoints.TokenURL); v != "" {
		g.oauth.Endpoint.TokenURL = v
	}
	if v := strings.TrimSpace(endpoints.UserInfoURL); v != "" {
		g.userInfoURL = v
	}
	if v := strings.TrimSpace(endpoints.APIBaseURL); v != "" {
		g.apiBaseURL = strings.TrimRight(v, "/")
	}
}

// AuthorizationURL returns the consent URL. The result depends only on configuration.
func (g *YouTube) AuthorizationURL() string {
	return g.oauth.AuthCodeURL("",
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

// ExchangeCode trades an authorization code for tokens.
func (g *YouTube) ExchangeCode(ctx context.Context, code string) (tok Token, err error) {
	start := time.Now()
	defer func() { metrics.ObserveGateway("exchange_code", start, err) }()

	code = strings.TrimSpace(code)
	if code == "" {
		return Token{}, wrap("exchange code", ErrAuthExchange, fmt.Errorf("authorization code is empty"))
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.client)
	exchanged, err := g.oauth.Exchange(ctx, code)
	if err != nil {
		return Token{}, wrap("exchange code", ErrAuthExchange, err)
	}

	return Token{
		AccessToken:  exchanged.AccessToken,
		RefreshToken: exchanged.RefreshToken,
		ExpiresIn:    expiresIn(exchanged),
	}, nil
}

// FetchProfile loads the Google profile of the token owner.
func (g *YouTube) FetchProfile(ctx context.Context, accessToken string) (profile Profile, err error) {
	start := time.Now()
	defer func() { metrics.ObserveGateway("fetch_profile", start, err) }()

	status, body, err := g.do(ctx, http.MethodGet, g.userInfoURL, accessToken, nil)
	if err != nil {
		return Profile{}, wrap("fetch profile", ErrProfileFetch, err)
	}
	if status >= http.StatusMultipleChoices {
		return Profile{}, apiError("fetch profile", status, body, ErrProfileFetch)
	}
	if err := json.Unmarshal(body, &profile); err != nil {
		return Profile{}, wrap("decode profile", ErrProfileFetch, err)
	}
	return profile, nil
}

type searchResponse struct {
	Items []struct {
		ID struct {
			ChannelID string `json:"channelId"`
		} `json:"id"`
		Snippet struct {
			ChannelID string `json:"channelId"`
		} `json:"snippet"`
	} `json:"items"`
}

// ResolveChannelID returns the canonical channel id for a channel URL, handle or id.
// Inputs that already carry a UC... id are answered without a network call;
// anything else goes through a channel search and the first hit wins.
func (g *YouTube) ResolveChannelID(ctx context.Context, channelURLOrHandle string) (channelID string, err error) {
	input := strings.TrimSpace(channelURLOrHandle)
	if input == "" {
		return "", ErrChannelNotFound
	}
	if direct := ChannelIDFromURL(input); direct != "" {
		return direct, nil
	}

	start := time.Now()
	defer func() { metrics.ObserveGateway("resolve_channel", start, err) }()

	query := url.Values{}
	query.Set("part", "snippet")
	query.Set("type", "channel")
	query.Set("q", input)
	if g.apiKey != "" {
		query.Set("key", g.apiKey)
	}

	status, body, err := g.do(ctx, http.MethodGet, g.apiBaseURL+"/search?"+query.Encode(), "", nil)
	if err != nil {
		return "", wrap("search channel", ErrChannelLookup, err)
	}
	if status >= http.StatusMultipleChoices {
		return "", apiError("search channel", status, body, ErrChannelLookup)
	}

	var result searchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", wrap("decode channel search", ErrChannelLookup, err)
	}
	for _, item := range result.Items {
		if id := strings.TrimSpace(item.Snippet.ChannelID); id != "" {
			return id, nil
		}
		if id := strings.TrimSpace(item.ID.ChannelID); id != "" {
			return id, nil
		}
	}
	return "", ErrChannelNotFound
}

type subscriptionListResponse struct {
	NextPageToken string `json:"nextPageToken"`
	Items         []struct {
		Snippet struct {
			ResourceID struct {
				Kind      string `json:"kind"`
				ChannelID string `json:"channelId"`
			} `json:"resourceId"`
		} `json:"snippet"`
	} `json:"items"`
}

// IsSubscribed pages through the token owner's subscriptions looking for channelID.
// It never mutates anything; see Subscribe.
func (g *YouTube) IsSubscribed(ctx context.Context, accessToken, channelID string) (subscribed bool, err error) {
	start := time.Now()
	defer func() { metrics.ObserveGateway("list_subscriptions", start, err) }()

	seen := map[string]bool{}
	pageToken := ""
	for {
		query := url.Values{}
		query.Set("part", "snippet")
		query.Set("mine", "true")
		query.Set("maxResults", fmt.Sprint(subscriptionPageSize))
		if pageToken != "" {
			query.Set("pageToken", pageToken)
		}

		status, body, err := g.do(ctx, http.MethodGet, g.apiBaseURL+"/subscriptions?"+query.Encode(), accessToken, nil)
		if err != nil {
			return false, wrap("list subscriptions", ErrSubscriptionQuery, err)
		}
		if status >= http.StatusMultipleChoices {
			return false, apiError("list subscriptions", status, body, ErrSubscriptionQuery)
		}

		var page subscriptionListResponse
		if err := json.Unmarshal(body, &page); err != nil {
			return false, wrap("decode subscriptions", ErrSubscriptionQuery, err)
		}
		for _, item := range page.Items {
			if item.Snippet.ResourceID.ChannelID == channelID {
				return true, nil
			}
		}

		if page.NextPageToken == "" || seen[page.NextPageToken] {
			return false, nil
		}
		seen[page.NextPageToken] = true
		pageToken = page.NextPageToken
	}
}

type subscribeRequest struct {
	Snippet struct {
		ResourceID struct {
			Kind      string `json:"kind"`
			ChannelID string `json:"channelId"`
		} `json:"resourceId"`
	} `json:"snippet"`
}

// Subscribe subscribes the token owner to channelID.
func (g *YouTube) Subscribe(ctx context.Context, accessToken, channelID string) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveGateway("subscribe", start, err) }()

	var payload subscribeRequest
	payload.Snippet.ResourceID.Kind = "youtube#channel"
	payload.Snippet.ResourceID.ChannelID = channelID

	status, body, err := g.do(ctx, http.MethodPost, g.apiBaseURL+"/subscriptions?part=snippet", accessToken, payload)
	if err != nil {
		return wrap("subscribe", ErrSubscriptionQuery, err)
	}
	if status == http.StatusForbidden {
		return apiError("subscribe", status, body, ErrInsufficientScope)
	}
	if status >= http.StatusMultipleChoices {
		return apiError("subscribe", status, body, ErrSubscriptionQuery)
	}

	g.logger.WithField("channel_id", channelID).Info("subscribed visitor to channel")
	return nil
}

func (g *YouTube) do(ctx context.Context, method, endpoint, accessToken string, payload interface{}) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "contentgate/1.0")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	client := g.client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

type googleErrorBody struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func apiError(op string, status int, body []byte, kind error) *APIError {
	message := ""
	var parsed googleErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil {
		message = strings.TrimSpace(parsed.Error.Message)
		if message == "" {
			message = strings.TrimSpace(parsed.ErrorDescription)
		}
	}
	if message == "" {
		message = strings.TrimSpace(string(body))
		if len(message) > 200 {
			message = message[:200]
		}
	}
	return &APIError{Op: op, Status: status, Message: message, kind: kind}
}

func expiresIn(tok *oauth2.Token) int64 {
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		return int64(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
	case string:
		var n int64
		if _, err := fmt.Sscan(v, &n); err == nil {
			return n
		}
	}
	if tok.Expiry.IsZero() {
		return 0
	}
	return int64(time.Until(tok.Expiry).Round(time.Second).Seconds())
}

// ChannelIDFromURL extracts a canonical UC... channel id from a bare id or a
// /channel/<id> URL. Handles, /c/ and /user/ URLs return "".
func ChannelIDFromURL(input string) string {
	input = strings.TrimSpace(input)
	if input == "" {
		return ""
	}
	if strings.HasPrefix(input, "UC") && !strings.ContainsAny(input, "/?# ") {
		return input
	}

	raw := input
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}

	_, rest, found := strings.Cut(parsed.Path, "/channel/")
	if !found {
		return ""
	}
	id, _, _ := strings.Cut(rest, "/")
	if strings.HasPrefix(id, "UC") {
		return id
	}
	return ""
}

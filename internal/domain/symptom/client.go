// Package symptom proxies the priaid symptom checker. The client signs in with
// the account's API key, caches the short-lived access token and forwards the
// lookups patients make.
package symptom

import (
	"context"
	"crypto/hmac"
	"crypto/md5"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/aimedicare/aimedicare/internal/platform/telemetry"
	"github.com/aimedicare/aimedicare/internal/platform/upstream"
)

const serviceName = "priaid"

const (
	defaultLanguage = "en-gb"
	// A token is refreshed this long before priaid says it expires.
	tokenRefreshMargin = 30 * time.Second
	defaultTokenTTL    = time.Hour
	// loginTimeout bounds a shared login, which outlives any single caller.
	loginTimeout = upstream.DefaultTimeout
)

var ErrNotConfigured = errors.New("priaid credentials are not configured")

type Config struct {
	APIKey    string
	SecretKey string
	AuthURL   string
	HealthURL string
	Language  string
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	metrics    *telemetry.Metrics
	logger     zerolog.Logger
	now        func() time.Time

	refresh singleflight.Group

	mu        sync.RWMutex
	token     string
	expiresAt time.Time
}

func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.Language == "" {
		cfg.Language = defaultLanguage
	}
	cfg.HealthURL = strings.TrimRight(cfg.HealthURL, "/")
	c := &Client{
		cfg:        cfg,
		httpClient: upstream.NewHTTPClient(0),
		logger:     zerolog.Nop(),
		now:        time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Configured reports whether the API key and secret are set.
func (c *Client) Configured() bool {
	return c.cfg.APIKey != "" && c.cfg.SecretKey != ""
}

// Symptoms lists every symptom priaid knows about.
func (c *Client) Symptoms(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "symptoms", "/symptoms", nil)
}

type DiagnosisQuery struct {
	SymptomIDs  []int
	Gender      string
	YearOfBirth int
}

// Diagnosis returns the issues priaid ranks for the given symptoms.
func (c *Client) Diagnosis(ctx context.Context, q DiagnosisQuery) (json.RawMessage, error) {
	ids, err := json.Marshal(q.SymptomIDs)
	if err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("symptoms", string(ids))
	params.Set("gender", q.Gender)
	params.Set("year_of_birth", strconv.Itoa(q.YearOfBirth))
	return c.get(ctx, "diagnosis", "/diagnosis", params)
}

// Issue returns the description of one issue.
func (c *Client) Issue(ctx context.Context, id int) (json.RawMessage, error) {
	return c.get(ctx, "issue", fmt.Sprintf("/issues/%d/info", id), nil)
}

func (c *Client) get(ctx context.Context, op, path string, params url.Values) (body json.RawMessage, err error) {
	start := time.Now()
	defer func() { c.metrics.ObserveUpstream(serviceName, op, start, err) }()

	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	body, status, err := c.fetch(ctx, path, params)
	if status == http.StatusUnauthorized {
		// priaid revoked the token before its stated expiry; sign in again once.
		c.invalidate()
		body, _, err = c.fetch(ctx, path, params)
	}
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("%s %s: response is not JSON", serviceName, op)
	}
	return body, nil
}

func (c *Client) fetch(ctx context.Context, path string, params url.Values) ([]byte, int, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, 0, err
	}

	q := url.Values{}
	for k, vs := range params {
		q[k] = vs
	}
	q.Set("token", token)
	q.Set("format", "json")
	q.Set("language", c.cfg.Language)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.HealthURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%s %s: %w", serviceName, path, err)
	}
	defer resp.Body.Close()

	body, err := upstream.ReadBody(serviceName, resp)
	return body, resp.StatusCode, err
}

// accessToken returns the cached token or signs in. Concurrent callers that
// find the cache empty share one sign-in request.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.RLock()
	token, exp := c.token, c.expiresAt
	c.mu.RUnlock()
	if token != "" && c.now().Before(exp) {
		return token, nil
	}

	ch := c.refresh.DoChan("token", func() (interface{}, error) {
		loginCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loginTimeout)
		defer cancel()
		token, ttl, err := c.login(loginCtx)
		if err != nil {
			return "", err
		}
		margin := tokenRefreshMargin
		if margin > ttl/2 {
			margin = ttl / 2
		}
		c.mu.Lock()
		c.token = token
		c.expiresAt = c.now().Add(ttl - margin)
		c.mu.Unlock()
		return token, nil
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (c *Client) invalidate() {
	c.mu.Lock()
	c.token = ""
	c.expiresAt = time.Time{}
	c.mu.Unlock()
}

// Signature computes the login credential: base64(HMAC-MD5(secret, authURL)).
func Signature(secretKey, authURL string) string {
	mac := hmac.New(md5.New, []byte(secretKey))
	mac.Write([]byte(authURL))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

type loginResponse struct {
	Token        string `json:"Token"`
	ValidThrough int    `json:"ValidThrough"`
}

func (c *Client) login(ctx context.Context) (token string, ttl time.Duration, err error) {
	start := time.Now()
	defer func() { c.metrics.ObserveUpstream(serviceName, "login", start, err) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AuthURL, nil)
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey+":"+Signature(c.cfg.SecretKey, c.cfg.AuthURL))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("%s login: %w", serviceName, err)
	}
	defer resp.Body.Close()

	body, err := upstream.ReadBody(serviceName, resp)
	if err != nil {
		return "", 0, err
	}
	var lr loginResponse
	if err := json.Unmarshal(body, &lr); err != nil {
		return "", 0, fmt.Errorf("%s login: decode response: %w", serviceName, err)
	}
	if lr.Token == "" {
		return "", 0, fmt.Errorf("%s login: response carries no token", serviceName)
	}

	ttl = time.Duration(lr.ValidThrough) * time.Second
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	c.logger.Debug().Dur("valid_for", ttl).Msg("priaid access token refreshed")
	return lr.Token, ttl, nil
}

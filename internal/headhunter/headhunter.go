package headhunter

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	apiURL    = "https://api.hh.ru"
	userAgent = "spigell/hh-screener (spigelly@gmail.com)"
	// Max value of per_page accepted by the API.
	perPage = 100
)

// Config holds the explicit settings of a Client. Zero values fall back to defaults.
type Config struct {
	APIURL    string        `mapstructure:"api-url"`
	UserAgent string        `mapstructure:"user-agent"`
	PerPage   int           `mapstructure:"per-page"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Retry     RetryPolicy   `mapstructure:"retry"`
}

// RetryPolicy configures how failed requests are repeated.
type RetryPolicy struct {
	// MaxAttempts is the ceiling of attempts for transient failures.
	MaxAttempts int `mapstructure:"max-attempts"`
	// BaseDelay is the first backoff delay; it doubles on every attempt.
	BaseDelay time.Duration `mapstructure:"base-delay"`
	// RateLimitWait is used when a 429 response carries no Retry-After header.
	RateLimitWait time.Duration `mapstructure:"rate-limit-wait"`
}

func (r RetryPolicy) withDefaults() RetryPolicy {
	if r.MaxAttempts <= 0 {
		r.MaxAttempts = 4
	}
	if r.BaseDelay <= 0 {
		r.BaseDelay = time.Second
	}
	if r.RateLimitWait <= 0 {
		r.RateLimitWait = 60 * time.Second
	}
	return r
}

// Client talks to the HeadHunter employer API on behalf of one access token.
// It is safe for concurrent use.
type Client struct {
	token      string
	logger     *zap.Logger
	HTTPClient *http.Client
	UserAgent  string
	APIURL     string
	PerPage    int
	Retry      RetryPolicy

	mu         sync.Mutex
	employerID string
}

func New(logger *zap.Logger, token string, cfg Config) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{
		token:     strings.TrimSpace(token),
		logger:    logger,
		APIURL:    strings.TrimRight(cfg.APIURL, "/"),
		UserAgent: cfg.UserAgent,
		PerPage:   cfg.PerPage,
		Retry:     cfg.Retry.withDefaults(),
		HTTPClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}

	if c.APIURL == "" {
		c.APIURL = apiURL
	}
	if c.UserAgent == "" {
		c.UserAgent = userAgent
	}
	if c.PerPage <= 0 || c.PerPage > perPage {
		c.PerPage = perPage
	}
	if c.HTTPClient.Timeout <= 0 {
		c.HTTPClient.Timeout = 10 * time.Second
	}

	return c
}

// Me describes the owner of the access token.
type Me struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	IsEmployer bool   `json:"is_employer"`
	Employer   *struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"employer"`
}

func (c *Client) Me(ctx context.Context) (*Me, error) {
	var me Me
	if err := c.getJSON(ctx, c.APIURL+"/me", nil, &me); err != nil {
		return nil, fmt.Errorf("get me: %w", err)
	}
	return &me, nil
}

// EmployerID returns the employer the token belongs to. The value is cached.
func (c *Client) EmployerID(ctx context.Context) (string, error) {
	c.mu.Lock()
	id := c.employerID
	c.mu.Unlock()
	if id != "" {
		return id, nil
	}

	me, err := c.Me(ctx)
	if err != nil {
		return "", err
	}
	if !me.IsEmployer || me.Employer == nil || me.Employer.ID == "" {
		return "", fmt.Errorf("%w: token does not belong to an employer account", ErrCredentialInvalid)
	}

	c.mu.Lock()
	c.employerID = me.Employer.ID
	c.mu.Unlock()

	return me.Employer.ID, nil
}

package buffer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"github.com/social-publisher/internal/models"
	"github.com/social-publisher/pkg/logger"
	"github.com/social-publisher/pkg/ratelimit"
)

// Client handles requests to the status scheduling API
type Client struct {
	baseURL     string
	httpClient  *http.Client
	rateLimiter *ratelimit.MultiLimiter
	log         *logger.Logger

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	tokenExpiry  time.Time

	cacheMu         sync.Mutex
	cachedProfiles  []models.Profile
	profilesFetched time.Time
}

// NewClient creates a new scheduling API client
func NewClient(baseURL string, timeout time.Duration, limiter *ratelimit.MultiLimiter, log *logger.Logger) *Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		rateLimiter: limiter,
		log:         log.WithComponent("buffer"),
	}
}

// SetTokens injects the stored access credential before making requests
func (c *Client) SetTokens(accessToken, refreshToken string, expiry time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = accessToken
	c.refreshToken = refreshToken
	c.tokenExpiry = expiry
}

// do performs an HTTP request with authentication and rate limiting
func (c *Client) do(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	// Wait for rate limiter
	if err := c.rateLimiter.Wait(ctx, ratelimit.LimiterStatusAPI); err != nil {
		return nil, fmt.Errorf("rate limit error: %w", err)
	}

	c.mu.Lock()
	token := c.accessToken
	c.mu.Unlock()
	if token == "" {
		return nil, fmt.Errorf("no access token set")
	}

	// Prepare request body
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Msg("Making scheduling API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	c.log.Debug().
		Int("status", resp.StatusCode).
		Msg("Scheduling API response")

	return resp, nil
}

// Profiles returns the connected social media profiles, keyed by profile ID.
// Results are cached for ttl; forceRefresh bypasses the cache. Listing is
// idempotent, so transient failures are retried.
func (c *Client) Profiles(ctx context.Context, forceRefresh bool, ttl time.Duration) (models.Profiles, error) {
	c.cacheMu.Lock()
	if !forceRefresh && c.cachedProfiles != nil && time.Since(c.profilesFetched) < ttl {
		cached := c.cachedProfiles
		c.cacheMu.Unlock()
		return models.ProfileList(cached), nil
	}
	c.cacheMu.Unlock()

	var list []models.Profile

	err := retry.Do(
		func() error {
			resp, err := c.do(ctx, http.MethodGet, "/profiles.json", nil)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				body, _ := io.ReadAll(resp.Body)
				err := fmt.Errorf("failed to list profiles: %s - %s", resp.Status, string(body))
				if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
					return retry.Unrecoverable(err)
				}
				return err
			}

			list = list[:0]
			if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
				return retry.Unrecoverable(fmt.Errorf("failed to decode profiles: %w", err))
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(10*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			c.log.Warn().Uint("attempt", n).Err(err).Msg("Retrying profile listing")
		}),
	)
	if err != nil {
		return nil, err
	}

	c.cacheMu.Lock()
	c.cachedProfiles = list
	c.profilesFetched = time.Now()
	c.cacheMu.Unlock()

	return models.ProfileList(list), nil
}

// Update is the API's record of one created status
type Update struct {
	ProfileID       string     `json:"profile_id"`
	Message         string     `json:"message"`
	StatusText      string     `json:"status_text"`
	StatusCreatedAt *time.Time `json:"status_created_at"`
	DueAt           *time.Time `json:"due_at"`
}

// createResponse is the API envelope for status creation
type createResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Update  Update `json:"update"`
}

// CreateStatus submits one pending status to the API
func (c *Client) CreateStatus(ctx context.Context, status *models.PendingStatus) (*Update, error) {
	resp, err := c.do(ctx, http.MethodPost, "/updates/create.json", status)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		c.log.Error().
			Int("status", resp.StatusCode).
			Str("body", string(body)).
			Msg("Failed to create status")
		return nil, fmt.Errorf("failed to create status: %s - %s", resp.Status, string(body))
	}

	var created createResponse
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, fmt.Errorf("failed to decode create response: %w", err)
	}
	if !created.Success {
		return nil, fmt.Errorf("api rejected status: %s", created.Message)
	}

	c.log.Info().
		Str("profile_id", created.Update.ProfileID).
		Msg("Status created successfully")

	return &created.Update, nil
}

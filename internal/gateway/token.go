package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Provider tokens are valid for about an hour; the 5-minute margin keeps us
// from submitting with a token that expires mid-flight.
const tokenTTL = 55 * time.Minute

// TokenSource hands out a bearer credential for MOMO calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	// ForceRefresh discards the cached token and fetches a new one.
	ForceRefresh(ctx context.Context) (string, error)
}

// tokenCache is the single source of truth for the MOMO bearer token.
// Concurrent callers hitting an expired token collapse into one credential
// exchange via singleflight.
type tokenCache struct {
	client          *http.Client
	now             func() time.Time
	baseURL         string
	apiUser         string
	apiKey          string
	subscriptionKey string

	group singleflight.Group

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func NewTokenCache(client *http.Client, baseURL, apiUser, apiKey, subscriptionKey string) TokenSource {
	if client == nil {
		client = &http.Client{Timeout: callTimeout}
	}
	return &tokenCache{
		client:          client,
		now:             time.Now,
		baseURL:         baseURL,
		apiUser:         apiUser,
		apiKey:          apiKey,
		subscriptionKey: subscriptionKey,
	}
}

func (c *tokenCache) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.token != "" && c.now().Before(c.expiresAt) {
		token := c.token
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	return c.refresh(ctx)
}

func (c *tokenCache) ForceRefresh(ctx context.Context) (string, error) {
	c.mu.Lock()
	c.token = ""
	c.expiresAt = time.Time{}
	c.mu.Unlock()
	return c.refresh(ctx)
}

func (c *tokenCache) refresh(ctx context.Context) (string, error) {
	v, err, _ := c.group.Do("token", func() (any, error) {
		// Another caller may have refreshed while we queued.
		c.mu.Lock()
		if c.token != "" && c.now().Before(c.expiresAt) {
			token := c.token
			c.mu.Unlock()
			return token, nil
		}
		c.mu.Unlock()

		token, err := c.exchange(ctx)
		if err != nil {
			return "", err
		}

		c.mu.Lock()
		c.token = token
		c.expiresAt = c.now().Add(tokenTTL)
		c.mu.Unlock()
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *tokenCache) exchange(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/collection/token/", nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.apiUser, c.apiKey)
	req.Header.Set("Ocp-Apim-Subscription-Key", c.subscriptionKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token exchange: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token exchange: unexpected status %d", resp.StatusCode)
	}

	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("token exchange: decode: %w", err)
	}
	if body.AccessToken == "" {
		return "", fmt.Errorf("token exchange: empty access_token")
	}
	return body.AccessToken, nil
}

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"cardflow/internal/domain"
)

// momoAdapter drives the mobile-money collect flow: a synchronous
// request-to-pay that the customer approves on their handset, then polled or
// confirmed by webhook.
type momoAdapter struct {
	client          *http.Client
	tokens          TokenSource
	breaker         *gobreaker.CircuitBreaker
	baseURL         string
	subscriptionKey string
	countryCode     string
}

func NewMomoAdapter(client *http.Client, tokens TokenSource, baseURL, subscriptionKey, countryCode string) Adapter {
	if client == nil {
		client = &http.Client{Timeout: callTimeout}
	}
	return &momoAdapter{
		client:          client,
		tokens:          tokens,
		breaker:         newBreaker("momo"),
		baseURL:         baseURL,
		subscriptionKey: subscriptionKey,
		countryCode:     countryCode,
	}
}

func (a *momoAdapter) Provider() domain.Provider { return domain.ProviderMomo }

func (a *momoAdapter) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	msisdn, err := NormalizeMSISDN(req.Phone, a.countryCode)
	if err != nil {
		return nil, err
	}

	// The caller's reference doubles as the provider-side reference id, so
	// the payment is addressable before the provider ever responds.
	referenceID := req.Reference
	if referenceID == "" {
		referenceID = uuid.NewString()
	}
	payload := map[string]any{
		"amount":     req.Amount.StringFixed(2),
		"currency":   req.Currency,
		"externalId": req.Reference,
		"payer": map[string]string{
			"partyIdType": "MSISDN",
			"partyId":     msisdn,
		},
		"payerMessage": "cardflow purchase",
		"payeeNote":    req.Reference,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	raw, status, err := a.call(ctx, http.MethodPost, "/collection/v1_0/requesttopay", body, map[string]string{
		"X-Reference-Id": referenceID,
	})
	if err != nil {
		return nil, err
	}
	if status != http.StatusAccepted {
		return nil, fmt.Errorf("momo initiate: unexpected status %d", status)
	}

	return &InitiateResult{
		ProviderRef:  referenceID,
		Instructions: "Approve the payment prompt on your phone to complete the purchase.",
		Raw:          raw,
	}, nil
}

func (a *momoAdapter) Verify(ctx context.Context, identifier string) (*VerifyResult, error) {
	raw, status, err := a.call(ctx, http.MethodGet, "/collection/v1_0/requesttopay/"+identifier, nil, nil)
	if err != nil {
		return nil, err
	}
	switch {
	case status == http.StatusNotFound:
		return nil, ErrTransactionNotFound
	case status != http.StatusOK:
		return nil, fmt.Errorf("momo verify: unexpected status %d: %w", status, ErrUnavailable)
	}

	var body struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("momo verify: decode: %w", err)
	}

	return &VerifyResult{
		Reference: identifier,
		Status:    MapMomoStatus(body.Status),
		Raw:       raw,
	}, nil
}

// MapMomoStatus translates MOMO's status vocabulary into the canonical enum.
// Anything that is not an explicit terminal outcome stays PENDING.
func MapMomoStatus(raw string) domain.Status {
	switch raw {
	case "SUCCESSFUL":
		return domain.StatusSuccessful
	case "FAILED":
		return domain.StatusFailed
	default:
		return domain.StatusPending
	}
}

// call runs one authenticated request through the circuit breaker. The
// returned int is the HTTP status; transport failures and 5xx responses trip
// the breaker, 4xx responses do not.
func (a *momoAdapter) call(ctx context.Context, method, path string, body []byte, headers map[string]string) (json.RawMessage, int, error) {
	token, err := a.tokens.Token(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("momo auth: %w", err)
	}

	type result struct {
		raw    json.RawMessage
		status int
	}
	v, err := a.breaker.Execute(func() (any, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Ocp-Apim-Subscription-Key", a.subscriptionKey)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, val := range headers {
			req.Header.Set(k, val)
		}

		resp, err := a.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
		}
		return result{raw: raw, status: resp.StatusCode}, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil, 0, err
	}
	res := v.(result)
	return res.raw, res.status, nil
}

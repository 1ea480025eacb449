package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sony/gobreaker"

	"cardflow/internal/domain"
)

// paylinkAdapter drives the hosted redirect/charge flow: initiation returns a
// payment link the customer is sent to, the outcome arrives by webhook and is
// confirmable with a verify-by-id call.
type paylinkAdapter struct {
	client    *http.Client
	breaker   *gobreaker.CircuitBreaker
	baseURL   string
	secretKey string
}

func NewPaylinkAdapter(client *http.Client, baseURL, secretKey string) Adapter {
	if client == nil {
		client = &http.Client{Timeout: callTimeout}
	}
	return &paylinkAdapter{
		client:    client,
		breaker:   newBreaker("paylink"),
		baseURL:   baseURL,
		secretKey: secretKey,
	}
}

func (a *paylinkAdapter) Provider() domain.Provider { return domain.ProviderPaylink }

func (a *paylinkAdapter) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	payload := map[string]any{
		"tx_ref":       req.Reference,
		"amount":       req.Amount.StringFixed(2),
		"currency":     req.Currency,
		"redirect_url": req.RedirectURL,
		"customer": map[string]string{
			"email":       req.Email,
			"phonenumber": req.Phone,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	raw, status, err := a.call(ctx, http.MethodPost, "/payments", body)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("paylink initiate: unexpected status %d", status)
	}

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Link string `json:"link"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("paylink initiate: decode: %w", err)
	}
	if resp.Status != "success" || resp.Data.Link == "" {
		return nil, fmt.Errorf("paylink initiate: rejected: %s", resp.Status)
	}

	return &InitiateResult{
		ProviderRef:  req.Reference,
		Instructions: resp.Data.Link,
		Raw:          raw,
	}, nil
}

func (a *paylinkAdapter) Verify(ctx context.Context, identifier string) (*VerifyResult, error) {
	raw, status, err := a.call(ctx, http.MethodGet, "/transactions/"+identifier+"/verify", nil)
	if err != nil {
		return nil, err
	}
	switch {
	case status == http.StatusNotFound:
		return nil, ErrTransactionNotFound
	case status != http.StatusOK:
		return nil, fmt.Errorf("paylink verify: unexpected status %d: %w", status, ErrUnavailable)
	}

	var resp struct {
		Data struct {
			TxRef  string `json:"tx_ref"`
			Status string `json:"status"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("paylink verify: decode: %w", err)
	}

	ref := resp.Data.TxRef
	if ref == "" {
		ref = identifier
	}
	return &VerifyResult{
		Reference: ref,
		Status:    MapPaylinkStatus(resp.Data.Status),
		Raw:       raw,
	}, nil
}

// MapPaylinkStatus translates PAYLINK's lowercase vocabulary into the
// canonical enum. Unknown strings stay PENDING.
func MapPaylinkStatus(raw string) domain.Status {
	switch raw {
	case "successful":
		return domain.StatusSuccessful
	case "failed":
		return domain.StatusFailed
	default:
		return domain.StatusPending
	}
}

func (a *paylinkAdapter) call(ctx context.Context, method, path string, body []byte) (json.RawMessage, int, error) {
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
		req.Header.Set("Authorization", "Bearer "+a.secretKey)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
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

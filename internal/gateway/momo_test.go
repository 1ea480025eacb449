package gateway_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardflow/internal/domain"
	"cardflow/internal/gateway"
)

type staticTokens struct{ token string }

func (s staticTokens) Token(context.Context) (string, error)        { return s.token, nil }
func (s staticTokens) ForceRefresh(context.Context) (string, error) { return s.token, nil }

func TestMapMomoStatus(t *testing.T) {
	assert.Equal(t, domain.StatusSuccessful, gateway.MapMomoStatus("SUCCESSFUL"))
	assert.Equal(t, domain.StatusFailed, gateway.MapMomoStatus("FAILED"))
	assert.Equal(t, domain.StatusPending, gateway.MapMomoStatus("PENDING"))
	assert.Equal(t, domain.StatusPending, gateway.MapMomoStatus("ONGOING"))
	assert.Equal(t, domain.StatusPending, gateway.MapMomoStatus(""))
	assert.Equal(t, domain.StatusPending, gateway.MapMomoStatus("successful"), "vocabulary is case sensitive")
}

func TestMomoVerify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/collection/v1_0/requesttopay/ref-ok":
			w.Write([]byte(`{"status":"SUCCESSFUL","financialTransactionId":"fin-1"}`))
		case "/collection/v1_0/requesttopay/ref-missing":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	adapter := gateway.NewMomoAdapter(srv.Client(), staticTokens{token: "tok"}, srv.URL, "sub", "233")

	result, err := adapter.Verify(context.Background(), "ref-ok")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccessful, result.Status)
	assert.Equal(t, "ref-ok", result.Reference)
	assert.NotEmpty(t, result.Raw)

	// 404 means the provider has not seen the reference yet.
	_, err = adapter.Verify(context.Background(), "ref-missing")
	assert.ErrorIs(t, err, gateway.ErrTransactionNotFound)
}

func TestMomoInitiate(t *testing.T) {
	var got struct {
		Amount     string `json:"amount"`
		Currency   string `json:"currency"`
		ExternalID string `json:"externalId"`
		Payer      struct {
			PartyIDType string `json:"partyIdType"`
			PartyID     string `json:"partyId"`
		} `json:"payer"`
	}
	var referenceHeader string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		referenceHeader = r.Header.Get("X-Reference-Id")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	adapter := gateway.NewMomoAdapter(srv.Client(), staticTokens{token: "tok"}, srv.URL, "sub", "233")

	result, err := adapter.Initiate(context.Background(), gateway.InitiateRequest{
		Reference: "11111111-2222-3333-4444-555555555555",
		Amount:    decimal.RequireFromString("25.50"),
		Currency:  "GHS",
		Phone:     "0241234567",
	})
	require.NoError(t, err)

	assert.Equal(t, "11111111-2222-3333-4444-555555555555", result.ProviderRef)
	assert.Equal(t, result.ProviderRef, referenceHeader)
	assert.Equal(t, "25.50", got.Amount)
	assert.Equal(t, "GHS", got.Currency)
	assert.Equal(t, "MSISDN", got.Payer.PartyIDType)
	assert.Equal(t, "233241234567", got.Payer.PartyID, "msisdn normalized before submission")
}

func TestMomoInitiate_BadPhoneNoNetworkCall(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	adapter := gateway.NewMomoAdapter(srv.Client(), staticTokens{token: "tok"}, srv.URL, "sub", "233")

	_, err := adapter.Initiate(context.Background(), gateway.InitiateRequest{
		Reference: "ref",
		Amount:    decimal.NewFromInt(10),
		Currency:  "GHS",
		Phone:     "not-a-phone",
	})

	assert.ErrorIs(t, err, gateway.ErrInvalidPhone)
	assert.False(t, called, "malformed numbers are rejected before any network call")
}

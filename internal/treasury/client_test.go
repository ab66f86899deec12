package treasury_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/allotment/internal/treasury"
	"github.com/smallbiznis/allotment/pkg/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newClient(url string) *treasury.Client {
	return treasury.NewClient(treasury.ClientConfig{
		BaseURL:      url,
		Token:        "secret",
		Timeout:      time.Second,
		RetryMax:     2,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 2 * time.Millisecond,
	}, zap.NewNop())
}

func TestChargeAccount(t *testing.T) {
	var got struct {
		AccountID string              `json:"accountId"`
		Amount    decimal.Decimal     `json:"amount"`
		Meta      treasury.ChargeMeta `json:"meta"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/fiat-accounts/acc-1/charge", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"_id":"tx-1","status":"SUCCESS","amount":"15"}`))
	}))
	defer srv.Close()

	tx, err := newClient(srv.URL).ChargeAccount(context.Background(), "acc-1", decimal.RequireFromString("15.5"), treasury.ChargeMeta{
		Service: "BILLING",
		Module:  "BILLING",
	})
	require.NoError(t, err)
	assert.Equal(t, "tx-1", tx.ID)
	assert.True(t, tx.Succeeded())
	assert.Equal(t, "acc-1", got.AccountID)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("15.5")))
	assert.Equal(t, "BILLING", got.Meta.Module)
}

func TestChargeAccountIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newClient(srv.URL).ChargeAccount(context.Background(), "acc-1", decimal.NewFromInt(1), treasury.ChargeMeta{})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.ErrUndefinedState))
	assert.True(t, apperr.Is(err, treasury.ErrUnavailable))
	assert.Equal(t, int32(1), calls.Load())
}

func TestChargeAccountRejectsMissingAccount(t *testing.T) {
	_, err := newClient("http://127.0.0.1:1").ChargeAccount(context.Background(), " ", decimal.NewFromInt(1), treasury.ChargeMeta{})
	assert.True(t, apperr.Is(err, apperr.ErrBadInput))
}

func TestReadsAreRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, "/api/organizations/org-1/fiat-accounts", r.URL.Path)
		_, _ = w.Write([]byte(`[{"_id":"acc-1","name":"Main","currency":"USD","balance":"10","default":true}]`))
	}))
	defer srv.Close()

	accounts, err := newClient(srv.URL).ListFiatAccounts(context.Background(), "org-1")
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "acc-1", accounts[0].ID)
	assert.True(t, accounts[0].Default)
	assert.Equal(t, int32(2), calls.Load())
}

package treasury

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/allotment/internal/config"
	"github.com/smallbiznis/allotment/pkg/apperr"
	"go.uber.org/zap"
)

type ClientConfig struct {
	BaseURL      string
	Token        string
	Timeout      time.Duration
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

func ClientConfigFrom(cfg config.Config) ClientConfig {
	return ClientConfig{
		BaseURL:  cfg.Treasury.BaseURL,
		Token:    cfg.Treasury.Token,
		Timeout:  cfg.Treasury.Timeout,
		RetryMax: cfg.Treasury.RetryMax,
	}
}

// Client is the HTTP Gateway.
type Client struct {
	baseURL string
	token   string
	reads   *retryablehttp.Client
	charges *retryablehttp.Client
	log     *zap.Logger
}

func NewClient(cfg ClientConfig, log *zap.Logger) *Client {
	log = log.Named("treasury.client")

	reads := newHTTPClient(cfg, log)
	reads.RetryMax = cfg.RetryMax
	charges := newHTTPClient(cfg, log)
	charges.RetryMax = 0

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		reads:   reads,
		charges: charges,
		log:     log,
	}
}

func newHTTPClient(cfg ClientConfig, log *zap.Logger) *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.Logger = leveledLogger{log: log.Sugar()}
	if cfg.Timeout > 0 {
		client.HTTPClient.Timeout = cfg.Timeout
	}
	if cfg.RetryWaitMin > 0 {
		client.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		client.RetryWaitMax = cfg.RetryWaitMax
	}
	// Hand the last response back instead of a generic give-up error.
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return client
}

type chargeRequest struct {
	AccountID string          `json:"accountId"`
	Amount    decimal.Decimal `json:"amount"`
	Meta      ChargeMeta      `json:"meta"`
}

func (c *Client) ChargeAccount(ctx context.Context, accountID string, amount decimal.Decimal, meta ChargeMeta) (*Transaction, error) {
	if strings.TrimSpace(accountID) == "" {
		return nil, apperr.Mark(ErrInvalidAccount, apperr.ErrBadInput)
	}
	if amount.IsNegative() {
		return nil, apperr.Mark(ErrInvalidAmount, apperr.ErrBadInput)
	}

	path := "/api/fiat-accounts/" + url.PathEscape(accountID) + "/charge"
	var tx Transaction
	err := c.do(ctx, c.charges, http.MethodPost, path, chargeRequest{
		AccountID: accountID,
		Amount:    amount,
		Meta:      meta,
	}, &tx)
	if err != nil {
		return nil, err
	}
	c.log.Info("account charged",
		zap.String("account_id", accountID),
		zap.String("transaction_id", tx.ID),
		zap.String("status", string(tx.Status)),
		zap.String("amount", amount.String()),
	)
	return &tx, nil
}

func (c *Client) CurrentExchangeRate(ctx context.Context) (*ExchangeRate, error) {
	var rate ExchangeRate
	if err := c.do(ctx, c.reads, http.MethodGet, "/api/exchange-rates/current", nil, &rate); err != nil {
		return nil, err
	}
	return &rate, nil
}

func (c *Client) ListAccounts(ctx context.Context, organizationID string) ([]Account, error) {
	var accounts []Account
	path := "/api/organizations/" + url.PathEscape(organizationID) + "/accounts"
	if err := c.do(ctx, c.reads, http.MethodGet, path, nil, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (c *Client) ListFiatAccounts(ctx context.Context, organizationID string) ([]Account, error) {
	var accounts []Account
	path := "/api/organizations/" + url.PathEscape(organizationID) + "/fiat-accounts"
	if err := c.do(ctx, c.reads, http.MethodGet, path, nil, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (c *Client) do(ctx context.Context, client *retryablehttp.Client, method, path string, body, out any) error {
	var payload any
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encode treasury request")
		}
		payload = encoded
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return errors.Wrap(err, "build treasury request")
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return apperr.Wrap(errors.Mark(err, ErrUnavailable), apperr.ErrUndefinedState, "treasury request failed")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperr.Wrap(errors.Mark(err, ErrUnavailable), apperr.ErrUndefinedState, "treasury response unreadable")
	}
	if resp.StatusCode >= http.StatusBadRequest {
		c.log.Warn("treasury request rejected",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return apperr.Wrap(
			errors.Mark(fmt.Errorf("treasury %s %s: status %d", method, path, resp.StatusCode), ErrUnavailable),
			apperr.ErrUndefinedState,
			fmt.Sprintf("treasury request failed with status %d", resp.StatusCode),
		)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrap(err, "decode treasury response")
	}
	return nil
}

type leveledLogger struct {
	log *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, keysAndValues...)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Infow(msg, keysAndValues...)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Warnw(msg, keysAndValues...)
}

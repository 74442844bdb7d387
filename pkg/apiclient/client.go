// Package apiclient is a typed client of the termvault REST API
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/openalpha/termvault/api/types"
	custodytypes "github.com/openalpha/termvault/x/custody/types"
	termpoolkeeper "github.com/openalpha/termvault/x/termpool/keeper"
	termpooltypes "github.com/openalpha/termvault/x/termpool/types"
)

// Config holds client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// DefaultConfig returns default client configuration
func DefaultConfig() *Config {
	return &Config{
		BaseURL: "http://localhost:8080",
		Timeout: 10 * time.Second,
	}
}

// APIError is a non-2xx reply
type APIError struct {
	StatusCode int
	types.ErrorResponse
}

func (e *APIError) Error() string {
	if e.Codespace != "" {
		return fmt.Sprintf("%d %s/%d: %s", e.StatusCode, e.Codespace, e.Code, e.ErrorResponse.Error)
	}
	return fmt.Sprintf("%d: %s", e.StatusCode, e.ErrorResponse.Error)
}

// Client calls the REST API. It never retries; callers decide what to do
// with a retryable APIError.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client
func New(config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		http:    &http.Client{Timeout: config.Timeout},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal body: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr.ErrorResponse); err != nil || apiErr.ErrorResponse.Error == "" {
			apiErr.ErrorResponse.Error = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func poolPath(poolID string, parts ...string) string {
	return "/v1/pools/" + url.PathEscape(poolID) + strings.Join(parts, "")
}

// ============ Pools ============

func (c *Client) CreatePool(ctx context.Context, req *types.CreatePoolRequest) (*types.PoolView, error) {
	var out types.PoolView
	return &out, c.do(ctx, http.MethodPost, "/v1/pools", req, &out)
}

func (c *Client) GetPool(ctx context.Context, poolID string) (*types.PoolView, error) {
	var out types.PoolView
	return &out, c.do(ctx, http.MethodGet, poolPath(poolID), nil, &out)
}

// ListPools returns one page of pools and the total count
func (c *Client) ListPools(ctx context.Context, offset, limit uint64) ([]*types.PoolView, uint64, error) {
	var out struct {
		Pools []*types.PoolView `json:"pools"`
		Total uint64            `json:"total"`
	}
	q := url.Values{}
	q.Set("offset", strconv.FormatUint(offset, 10))
	q.Set("limit", strconv.FormatUint(limit, 10))
	err := c.do(ctx, http.MethodGet, "/v1/pools?"+q.Encode(), nil, &out)
	return out.Pools, out.Total, err
}

func (c *Client) GetPosition(ctx context.Context, poolID, holder string) (*types.PositionView, error) {
	var out types.PositionView
	return &out, c.do(ctx, http.MethodGet, poolPath(poolID, "/positions/", url.PathEscape(holder)), nil, &out)
}

func (c *Client) GetValue(ctx context.Context, poolID string) (*termpoolkeeper.PoolValuation, error) {
	var out termpoolkeeper.PoolValuation
	return &out, c.do(ctx, http.MethodGet, poolPath(poolID, "/value"), nil, &out)
}

func (c *Client) GetValueHistory(ctx context.Context, poolID string) ([]*termpooltypes.ValueSnapshot, error) {
	var out struct {
		Snapshots []*termpooltypes.ValueSnapshot `json:"snapshots"`
	}
	err := c.do(ctx, http.MethodGet, poolPath(poolID, "/value/history"), nil, &out)
	return out.Snapshots, err
}

func (c *Client) PreviewWithdraw(ctx context.Context, poolID, owner, assets string) (*types.WithdrawQuote, error) {
	q := url.Values{}
	q.Set("owner", owner)
	q.Set("assets", assets)
	var out types.WithdrawQuote
	return &out, c.do(ctx, http.MethodGet, poolPath(poolID, "/withdraw/preview?", q.Encode()), nil, &out)
}

func (c *Client) Deposit(ctx context.Context, poolID string, req *types.AmountRequest) (*termpooltypes.MsgDepositResponse, error) {
	var out termpooltypes.MsgDepositResponse
	return &out, c.do(ctx, http.MethodPost, poolPath(poolID, "/deposit"), req, &out)
}

func (c *Client) Withdraw(ctx context.Context, poolID string, req *types.AmountRequest) (*termpooltypes.MsgWithdrawResponse, error) {
	var out termpooltypes.MsgWithdrawResponse
	return &out, c.do(ctx, http.MethodPost, poolPath(poolID, "/withdraw"), req, &out)
}

func (c *Client) Redeem(ctx context.Context, poolID string, req *types.AmountRequest) (*termpooltypes.MsgWithdrawResponse, error) {
	var out termpooltypes.MsgWithdrawResponse
	return &out, c.do(ctx, http.MethodPost, poolPath(poolID, "/redeem"), req, &out)
}

func (c *Client) ClaimCoupon(ctx context.Context, poolID, holder string) (*termpooltypes.MsgClaimCouponResponse, error) {
	var out termpooltypes.MsgClaimCouponResponse
	return &out, c.do(ctx, http.MethodPost, poolPath(poolID, "/claim"), &types.AmountRequest{Caller: holder}, &out)
}

// PoolAction runs an operator action such as types.ActionCloseEpoch
func (c *Client) PoolAction(ctx context.Context, poolID, action string, req *types.ActionRequest) (*termpooltypes.MsgPoolActionResponse, error) {
	var out termpooltypes.MsgPoolActionResponse
	return &out, c.do(ctx, http.MethodPost, poolPath(poolID, "/actions/", url.PathEscape(action)), req, &out)
}

func (c *Client) Calendar(ctx context.Context, from time.Time, limit int) ([]types.CalendarEntry, error) {
	q := url.Values{}
	q.Set("from", strconv.FormatInt(from.Unix(), 10))
	q.Set("limit", strconv.Itoa(limit))
	var out struct {
		Entries []types.CalendarEntry `json:"entries"`
	}
	err := c.do(ctx, http.MethodGet, "/v1/calendar?"+q.Encode(), nil, &out)
	return out.Entries, err
}

// ============ Custody ============

func ledgerPath(ledgerID string, parts ...string) string {
	return "/v1/custody/ledgers/" + url.PathEscape(ledgerID) + strings.Join(parts, "")
}

func (c *Client) GetLedger(ctx context.Context, ledgerID string) (*custodytypes.Ledger, error) {
	var out custodytypes.Ledger
	return &out, c.do(ctx, http.MethodGet, ledgerPath(ledgerID), nil, &out)
}

func (c *Client) ListTransfers(ctx context.Context, ledgerID string, pendingOnly bool) ([]*types.TransferView, error) {
	path := ledgerPath(ledgerID, "/transfers")
	if pendingOnly {
		path += "?pending=true"
	}
	var out struct {
		Transfers []*types.TransferView `json:"transfers"`
	}
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Transfers, err
}

func (c *Client) ProposeTransfer(ctx context.Context, msg *custodytypes.MsgProposeTransfer) (*custodytypes.MsgProposeTransferResponse, error) {
	var out custodytypes.MsgProposeTransferResponse
	return &out, c.do(ctx, http.MethodPost, ledgerPath(msg.LedgerID, "/transfers"), msg, &out)
}

type signerRequest struct {
	Signer string `json:"signer"`
}

func (c *Client) ApproveTransfer(ctx context.Context, ledgerID, transferID, signer string) (*custodytypes.MsgApproveTransferResponse, error) {
	var out custodytypes.MsgApproveTransferResponse
	path := ledgerPath(ledgerID, "/transfers/", url.PathEscape(transferID), "/approve")
	return &out, c.do(ctx, http.MethodPost, path, signerRequest{Signer: signer}, &out)
}

func (c *Client) ExecuteTransfer(ctx context.Context, ledgerID, transferID, signer string) (*custodytypes.MsgApproveTransferResponse, error) {
	var out custodytypes.MsgApproveTransferResponse
	path := ledgerPath(ledgerID, "/transfers/", url.PathEscape(transferID), "/execute")
	return &out, c.do(ctx, http.MethodPost, path, signerRequest{Signer: signer}, &out)
}

func (c *Client) RevokeTransfer(ctx context.Context, ledgerID, transferID, signer string) error {
	path := ledgerPath(ledgerID, "/transfers/", url.PathEscape(transferID), "/revoke")
	return c.do(ctx, http.MethodPost, path, signerRequest{Signer: signer}, nil)
}

func (c *Client) UpdateSigners(ctx context.Context, msg *custodytypes.MsgUpdateSigners) (*custodytypes.MsgUpdateSignersResponse, error) {
	var out custodytypes.MsgUpdateSignersResponse
	return &out, c.do(ctx, http.MethodPost, ledgerPath(msg.LedgerID, "/signers"), msg, &out)
}

// ============ Accounts ============

// Balance returns the balance of addr in denom, or the server default denom
func (c *Client) Balance(ctx context.Context, addr, denom string) (string, error) {
	path := "/v1/accounts/" + url.PathEscape(addr) + "/balance"
	if denom != "" {
		path += "?denom=" + url.QueryEscape(denom)
	}
	var out struct {
		Amount string `json:"amount"`
	}
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Amount, err
}

// Fund credits addr through the server faucet, when enabled
func (c *Client) Fund(ctx context.Context, addr, denom, amount string) error {
	path := "/v1/accounts/" + url.PathEscape(addr) + "/fund"
	return c.do(ctx, http.MethodPost, path, map[string]string{"denom": denom, "amount": amount}, nil)
}

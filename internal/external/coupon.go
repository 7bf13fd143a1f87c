package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"automata/internal/config"
	"automata/internal/types"
)

// couponAppID identifies the live game build to the coupon gateway.
const couponAppID = "bd2-live"

// Coupon gateway errorCode values returned on HTTP 400.
const (
	couponErrAlreadyUsed = "AlreadyUsed"
	couponErrInvalidCode = "InvalidCode"
	couponErrExpiredCode = "ExpiredCode"
)

// CouponClientConfig holds the configuration for creating a CouponClient.
type CouponClientConfig struct {
	BaseURL string
	Logger  *slog.Logger
}

// CouponClient implements CouponRedeemer against the coupon gateway. The
// gateway authenticates by game user ID only; no session token is needed.
type CouponClient struct {
	base    *BaseClient
	baseURL string
	logger  *slog.Logger
}

// NewCouponClient creates a CouponClient from the game platform config.
func NewCouponClient(httpClient *http.Client, game config.GameConfig, logger *slog.Logger) *CouponClient {
	return NewCouponClientWithBase(
		NewBaseClient(httpClient, "bd2-coupon", DefaultRetryPolicy(), "Automata/1.0"),
		CouponClientConfig{BaseURL: game.CouponBaseURL, Logger: logger},
	)
}

// NewCouponClientWithBase creates a CouponClient with a pre-configured
// BaseClient, used by tests to point at an httptest server.
func NewCouponClientWithBase(base *BaseClient, cfg CouponClientConfig) *CouponClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CouponClient{
		base:    base,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		logger:  logger,
	}
}

// Redeem submits one gift code for one game user. The gateway signals
// failures as HTTP 400 with an errorCode body; "AlreadyUsed" is normalized
// to OutcomeAlreadyDone so redemption sweeps stay idempotent.
func (c *CouponClient) Redeem(ctx context.Context, userID, code string) (*ActionOutcome, error) {
	body, err := json.Marshal(map[string]string{
		"appId":  couponAppID,
		"userId": userID,
		"code":   code,
	})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal coupon payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/coupon", bytes.NewReader(body))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create coupon request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, wrapTransportError("coupon redeem", types.ErrCodeUpstreamCoupon, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return &ActionOutcome{Outcome: types.OutcomeSuccess, Message: "code redeemed"}, nil
	case resp.StatusCode == http.StatusBadRequest:
		return couponFailureOutcome(resp.Body), nil
	default:
		return nil, types.NewAppError(
			types.ErrCodeUpstreamCoupon,
			fmt.Sprintf("coupon gateway returned status %d", resp.StatusCode),
			nil,
		)
	}
}

// couponFailureOutcome maps the gateway's 400 errorCode body to an outcome.
func couponFailureOutcome(body io.Reader) *ActionOutcome {
	var gw struct {
		ErrorCode string `json:"errorCode"`
	}
	if err := json.NewDecoder(body).Decode(&gw); err != nil || gw.ErrorCode == "" {
		return &ActionOutcome{Outcome: types.OutcomeFailure, Message: "coupon gateway rejected the code"}
	}

	switch gw.ErrorCode {
	case couponErrAlreadyUsed:
		return &ActionOutcome{Outcome: types.OutcomeAlreadyDone, Message: "code already redeemed"}
	case couponErrInvalidCode:
		return &ActionOutcome{Outcome: types.OutcomeFailure, Message: "invalid code"}
	case couponErrExpiredCode:
		return &ActionOutcome{Outcome: types.OutcomeFailure, Message: "code expired"}
	default:
		return &ActionOutcome{Outcome: types.OutcomeFailure, Message: "coupon rejected: " + gw.ErrorCode}
	}
}

// Compile-time assertion that CouponClient satisfies CouponRedeemer.
var _ CouponRedeemer = (*CouponClient)(nil)

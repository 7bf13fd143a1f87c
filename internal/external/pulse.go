package external

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"automata/internal/config"
	"automata/internal/types"
)

// Pulse catalog status values. Anything except "expired" is considered
// redeemable; expiry dates are advisory and enforced by the coupon gateway.
const pulseStatusExpired = "expired"

// PulseClientConfig holds the configuration for creating a PulseClient.
type PulseClientConfig struct {
	APIKey  string
	BaseURL string
	Logger  *slog.Logger
}

// PulseClient implements CodeCatalog against the community-run Pulse gift
// code tracker.
type PulseClient struct {
	base    *BaseClient
	apiKey  string
	baseURL string
	logger  *slog.Logger
}

// NewPulseClient creates a PulseClient from the game platform config.
func NewPulseClient(httpClient *http.Client, game config.GameConfig, logger *slog.Logger) *PulseClient {
	return NewPulseClientWithBase(
		NewBaseClient(httpClient, "bd2-pulse", DefaultRetryPolicy(), "Automata/1.0"),
		PulseClientConfig{
			APIKey:  game.PulseAPIKey.Unmask(),
			BaseURL: game.PulseBaseURL,
			Logger:  logger,
		},
	)
}

// NewPulseClientWithBase creates a PulseClient with a pre-configured
// BaseClient, used by tests to point at an httptest server.
func NewPulseClientWithBase(base *BaseClient, cfg PulseClientConfig) *PulseClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &PulseClient{
		base:    base,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		logger:  logger,
	}
}

// pulseCode mirrors one catalog entry on the wire.
type pulseCode struct {
	Code   string `json:"code"`
	Reward struct {
		En string `json:"en"`
	} `json:"reward"`
	Status     string  `json:"status"`
	ExpiryDate *string `json:"expiry_date"`
	ImageURL   *string `json:"image_url"`
}

// FetchCodes lists the catalog and drops entries the tracker already marks
// expired. Entries with empty codes are skipped rather than failing the
// whole fetch.
func (p *PulseClient) FetchCodes(ctx context.Context) ([]CatalogCode, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/redeem", nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create catalog request", err)
	}
	req.Header.Set("x-api-key", p.apiKey)

	resp, err := p.base.Do(req)
	if err != nil {
		return nil, wrapTransportError("code catalog", types.ErrCodeUpstreamCoupon, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamCoupon,
			fmt.Sprintf("code catalog returned status %d", resp.StatusCode),
			nil,
		)
	}

	var raw []pulseCode
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamCoupon, "code catalog response was not valid JSON", err)
	}

	codes := make([]CatalogCode, 0, len(raw))
	for _, rc := range raw {
		if rc.Code == "" || rc.Status == pulseStatusExpired {
			continue
		}
		cc := CatalogCode{
			Code:       rc.Code,
			RewardDesc: rc.Reward.En,
			Status:     rc.Status,
		}
		if rc.ExpiryDate != nil {
			cc.ExpiryDate = *rc.ExpiryDate
		}
		codes = append(codes, cc)
	}

	p.logger.DebugContext(ctx, "fetched code catalog",
		slog.Int("total", len(raw)),
		slog.Int("redeemable", len(codes)),
	)
	return codes, nil
}

// Compile-time assertion that PulseClient satisfies CodeCatalog.
var _ CodeCatalog = (*PulseClient)(nil)

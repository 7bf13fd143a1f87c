package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"automata/internal/config"
	"automata/internal/types"
)

// AttendKind selects which check-in surface an Attend call targets. The
// values match the web shop's attend "type" field.
type AttendKind int

const (
	AttendDaily  AttendKind = 0
	AttendWeekly AttendKind = 1
)

// Web shop errorType values surfaced in attend responses.
const (
	attendErrAlreadyDone = 3
	eventErrNotFound     = 4
	eventErrAlreadyToday = 5
	eventErrAllClaimed   = 6
)

// WebshopClientConfig holds the configuration for creating a WebshopClient.
type WebshopClientConfig struct {
	BaseURL string
	Logger  *slog.Logger
}

// WebshopClient implements AttendanceAPI against the BD2 web shop API.
// Check-in endpoints require a session access token; event info is public.
type WebshopClient struct {
	base    *BaseClient
	baseURL string
	logger  *slog.Logger
}

// NewWebshopClient creates a WebshopClient from the game platform config.
func NewWebshopClient(httpClient *http.Client, game config.GameConfig, logger *slog.Logger) *WebshopClient {
	return NewWebshopClientWithBase(
		NewBaseClient(httpClient, "bd2-webshop", DefaultRetryPolicy(), "Automata/1.0"),
		WebshopClientConfig{BaseURL: game.WebshopBaseURL, Logger: logger},
	)
}

// NewWebshopClientWithBase creates a WebshopClient with a pre-configured
// BaseClient, used by tests to point at an httptest server.
func NewWebshopClientWithBase(base *BaseClient, cfg WebshopClientConfig) *WebshopClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &WebshopClient{
		base:    base,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		logger:  logger,
	}
}

// attendData is the inner payload shared by attend and event-attend responses.
type attendData struct {
	Success            bool            `json:"success"`
	ErrorType          int             `json:"errorType"`
	ErrorMsg           string          `json:"errorMsg"`
	RequestID          string          `json:"requestId"`
	LastAttendanceDate string          `json:"lastAttendanceDate"`
	RewardInfo         json.RawMessage `json:"rewardInfo"`
}

type attendResponse struct {
	Code    string     `json:"code"`
	Message string     `json:"message"`
	Data    attendData `json:"data"`
}

// ---------------------------------------------------------------------------
// AttendanceAPI Implementation
// ---------------------------------------------------------------------------

// Attend performs a daily or weekly check-in for the session holder.
// errorType 3 ("already attended") is normalized to OutcomeAlreadyDone so
// re-runs stay idempotent; other failures return OutcomeFailure with the
// platform's message, not an error, because the call itself succeeded.
func (w *WebshopClient) Attend(ctx context.Context, accessToken string, kind AttendKind) (*ActionOutcome, error) {
	body, err := json.Marshal(map[string]int{"type": int(kind)})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal attend payload", err)
	}

	resp, err := w.postJSON(ctx, "/api/attend", accessToken, body)
	if err != nil {
		return nil, err
	}

	return attendOutcome(resp.Data, attendErrAlreadyDone, "attendance already claimed"), nil
}

// FetchEventInfo retrieves the currently scheduled in-game event. The
// endpoint is public and needs no session. Returns nil when no event is
// currently published.
func (w *WebshopClient) FetchEventInfo(ctx context.Context) (*types.EventSchedule, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL+"/api/event/event-info", nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create event info request", err)
	}

	resp, err := w.base.Do(req)
	if err != nil {
		return nil, wrapTransportError("event info", types.ErrCodeUpstreamWebshop, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamWebshop,
			fmt.Sprintf("event info returned status %d", resp.StatusCode),
			nil,
		)
	}

	var info struct {
		Code string `json:"code"`
		Data struct {
			ScheduleInfo *struct {
				EventScheduleID int64  `json:"eventScheduleId"`
				StartDate       string `json:"startDate"`
				EndDate         string `json:"endDate"`
			} `json:"scheduleInfo"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamWebshop, "event info response was not valid JSON", err)
	}
	if info.Data.ScheduleInfo == nil || info.Data.ScheduleInfo.EventScheduleID == 0 {
		return nil, nil
	}

	return &types.EventSchedule{
		EventScheduleID: info.Data.ScheduleInfo.EventScheduleID,
		StartDate:       info.Data.ScheduleInfo.StartDate,
		EndDate:         info.Data.ScheduleInfo.EndDate,
		IsActive:        true,
	}, nil
}

// AttendEvent claims today's event check-in reward for the session holder.
// errorType 5 (already attended today) and 6 (all rewards claimed) are both
// idempotent skips; errorType 4 (event not found) is a plain failure that
// prompts the caller to refresh its cached schedule.
func (w *WebshopClient) AttendEvent(ctx context.Context, accessToken string, eventScheduleID int64) (*ActionOutcome, error) {
	body, err := json.Marshal(map[string]int64{"eventScheduleId": eventScheduleID})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal event attend payload", err)
	}

	resp, err := w.postJSON(ctx, "/api/event/attend-reward", accessToken, body)
	if err != nil {
		return nil, err
	}

	d := resp.Data
	if d.Success {
		return &ActionOutcome{Outcome: types.OutcomeSuccess, Message: "event reward claimed"}, nil
	}
	switch d.ErrorType {
	case eventErrAlreadyToday:
		return &ActionOutcome{Outcome: types.OutcomeAlreadyDone, Message: "event reward already claimed today"}, nil
	case eventErrAllClaimed:
		return &ActionOutcome{Outcome: types.OutcomeAlreadyDone, Message: "all event rewards claimed"}, nil
	case eventErrNotFound:
		return &ActionOutcome{Outcome: types.OutcomeFailure, Message: "event schedule not found"}, nil
	default:
		return &ActionOutcome{Outcome: types.OutcomeFailure, Message: failureMessage(d)}, nil
	}
}

// ---------------------------------------------------------------------------
// HTTP Helpers
// ---------------------------------------------------------------------------

func (w *WebshopClient) postJSON(ctx context.Context, path, accessToken string, body []byte) (*attendResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create web shop request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := w.base.Do(req)
	if err != nil {
		return nil, wrapTransportError(path, types.ErrCodeUpstreamWebshop, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "web shop rejected the session token", nil)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamWebshop,
			fmt.Sprintf("%s returned status %d", path, resp.StatusCode),
			nil,
		)
	}

	var out attendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamWebshop, "web shop response was not valid JSON", err)
	}
	return &out, nil
}

func attendOutcome(d attendData, alreadyType int, alreadyMsg string) *ActionOutcome {
	if d.Success {
		return &ActionOutcome{Outcome: types.OutcomeSuccess, Message: "attendance claimed"}
	}
	if d.ErrorType == alreadyType {
		return &ActionOutcome{Outcome: types.OutcomeAlreadyDone, Message: alreadyMsg}
	}
	return &ActionOutcome{Outcome: types.OutcomeFailure, Message: failureMessage(d)}
}

func failureMessage(d attendData) string {
	if d.ErrorMsg != "" {
		return d.ErrorMsg
	}
	return fmt.Sprintf("platform returned errorType %d", d.ErrorType)
}

// Compile-time assertion that WebshopClient satisfies AttendanceAPI.
var _ AttendanceAPI = (*WebshopClient)(nil)

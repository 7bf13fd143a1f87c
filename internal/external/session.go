package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"automata/internal/config"
	"automata/internal/types"
)

// Platform constants fixed by the BD2 web login protocol.
const (
	neonAppID      = "5063"
	neonReleaseYmd = "251118"
	neonResultOK   = "000"
	webshopCodeOK  = "OK"
)

// SessionClientConfig holds the configuration for creating a SessionClient.
// The base URLs default to production and are overridable for testing.
type SessionClientConfig struct {
	FirebaseAPIKey          string
	FirebaseBaseURL         string
	FirebaseIdentityBaseURL string
	NeonBaseURL             string
	WebshopBaseURL          string
	Logger                  *slog.Logger
}

// SessionClient implements SessionProvider by walking the four-step BD2 web
// login chain: refresh-token exchange against the Firebase securetoken
// endpoint, account lookup against identitytoolkit, Neon web login, and
// finally the web shop login that mints the session access token.
type SessionClient struct {
	base        *BaseClient
	apiKey      string
	firebaseURL string
	identityURL string
	neonURL     string
	webshopURL  string
	logger      *slog.Logger
}

// NewSessionClient creates a SessionClient from the game platform config.
func NewSessionClient(httpClient *http.Client, game config.GameConfig, logger *slog.Logger) *SessionClient {
	return NewSessionClientWithBase(
		NewBaseClient(httpClient, "bd2-session", DefaultRetryPolicy(), "Automata/1.0"),
		SessionClientConfig{
			FirebaseAPIKey:          game.FirebaseAPIKey.Unmask(),
			FirebaseBaseURL:         game.FirebaseBaseURL,
			FirebaseIdentityBaseURL: game.FirebaseIdentityBaseURL,
			NeonBaseURL:             game.NeonBaseURL,
			WebshopBaseURL:          game.WebshopBaseURL,
			Logger:                  logger,
		},
	)
}

// NewSessionClientWithBase creates a SessionClient with a pre-configured
// BaseClient. This is useful for testing when you want to control the
// BaseClient configuration (e.g., disable retries).
func NewSessionClientWithBase(base *BaseClient, cfg SessionClientConfig) *SessionClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &SessionClient{
		base:        base,
		apiKey:      cfg.FirebaseAPIKey,
		firebaseURL: strings.TrimSuffix(cfg.FirebaseBaseURL, "/"),
		identityURL: strings.TrimSuffix(cfg.FirebaseIdentityBaseURL, "/"),
		neonURL:     strings.TrimSuffix(cfg.NeonBaseURL, "/"),
		webshopURL:  strings.TrimSuffix(cfg.WebshopBaseURL, "/"),
		logger:      logger,
	}
}

// ---------------------------------------------------------------------------
// SessionProvider Implementation
// ---------------------------------------------------------------------------

// Login exchanges a stored refresh token for a web shop session.
//
// Error mapping:
//   - Rejected refresh token or empty account lookup -> types.ErrCodeAuthTokenInvalid
//   - Neon result_code != "000" or web shop code != "OK" -> types.ErrCodeAuthLoginRejected
//   - Transport/5xx failures -> per-service upstream codes
func (s *SessionClient) Login(ctx context.Context, refreshToken string, provider types.ProviderType) (*LoginResult, error) {
	tok, err := s.exchangeRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	acct, err := s.lookupAccount(ctx, tok.IDToken)
	if err != nil {
		return nil, err
	}

	snsSrl, err := providerSnsSrl(acct, provider)
	if err != nil {
		return nil, err
	}

	neonToken, err := s.neonLogin(ctx, neonLoginPayload{
		Provider:        "FIREBASE",
		ProviderUserSrl: acct.LocalID,
		ProviderSns:     string(provider),
		ProviderSnsSrl:  snsSrl,
		AppID:           neonAppID,
		ProviderUserJWT: tok.IDToken,
		MobSvcYn:        "N",
		PrivacyYn:       "N",
		AdYn:            "N",
		AdNightYn:       "N",
		ReleaseYmd:      neonReleaseYmd,
	})
	if err != nil {
		return nil, err
	}

	session, err := s.webshopLogin(ctx, neonToken)
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		Session:      *session,
		RefreshToken: tok.RefreshToken,
	}, nil
}

// ---------------------------------------------------------------------------
// Step 1: Firebase refresh-token exchange
// ---------------------------------------------------------------------------

type firebaseTokenResponse struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    string `json:"expires_in"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token"`
	UserID       string `json:"user_id"`
	ProjectID    string `json:"project_id"`
}

func (s *SessionClient) exchangeRefreshToken(ctx context.Context, refreshToken string) (*firebaseTokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	reqURL := s.firebaseURL + "/v1/token?key=" + url.QueryEscape(s.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create token exchange request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.base.Do(req)
	if err != nil {
		return nil, wrapTransportError("token exchange", types.ErrCodeUpstreamFirebase, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// A 400 here means the stored refresh token was revoked or malformed.
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, types.NewAppError(
				types.ErrCodeAuthTokenInvalid,
				fmt.Sprintf("token exchange rejected with status %d", resp.StatusCode),
				nil,
			)
		}
		return nil, types.NewAppError(
			types.ErrCodeUpstreamFirebase,
			fmt.Sprintf("token exchange returned status %d", resp.StatusCode),
			nil,
		)
	}

	var tok firebaseTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamFirebase, "token exchange response was not valid JSON", err)
	}
	if tok.IDToken == "" {
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "token exchange returned an empty id token", nil)
	}
	return &tok, nil
}

// ---------------------------------------------------------------------------
// Step 2: account lookup
// ---------------------------------------------------------------------------

type lookupUser struct {
	LocalID          string `json:"localId"`
	Email            string `json:"email"`
	ProviderUserInfo []struct {
		ProviderID  string `json:"providerId"`
		FederatedID string `json:"federatedId"`
		RawID       string `json:"rawId"`
	} `json:"providerUserInfo"`
}

func (s *SessionClient) lookupAccount(ctx context.Context, idToken string) (*lookupUser, error) {
	body, err := json.Marshal(map[string]string{"idToken": idToken})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal account lookup payload", err)
	}

	reqURL := s.identityURL + "/v1/accounts:lookup?key=" + url.QueryEscape(s.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create account lookup request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.base.Do(req)
	if err != nil {
		return nil, wrapTransportError("account lookup", types.ErrCodeUpstreamFirebase, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamFirebase,
			fmt.Sprintf("account lookup returned status %d", resp.StatusCode),
			nil,
		)
	}

	var lookup struct {
		Kind  string       `json:"kind"`
		Users []lookupUser `json:"users"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&lookup); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamFirebase, "account lookup response was not valid JSON", err)
	}
	if len(lookup.Users) == 0 {
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "account lookup returned no users for the id token", nil)
	}
	return &lookup.Users[0], nil
}

// providerSnsSrl picks the provider-specific account identifier the Neon
// login requires: the account email for EMAIL sign-ins, the raw federated
// ID for GOOGLE and APPLE.
func providerSnsSrl(acct *lookupUser, provider types.ProviderType) (string, error) {
	switch provider {
	case types.ProviderEmail:
		if acct.Email == "" {
			return "", types.NewAppError(types.ErrCodeAuthLoginRejected, "account has no email for EMAIL provider login", nil)
		}
		return acct.Email, nil
	case types.ProviderGoogle, types.ProviderApple:
		if len(acct.ProviderUserInfo) == 0 || acct.ProviderUserInfo[0].RawID == "" {
			return "", types.NewAppError(
				types.ErrCodeAuthLoginRejected,
				fmt.Sprintf("account has no federated identity for %s provider login", provider),
				nil,
			)
		}
		return acct.ProviderUserInfo[0].RawID, nil
	default:
		return "", types.NewAppError(
			types.ErrCodeAuthLoginRejected,
			fmt.Sprintf("unsupported identity provider %q", provider),
			nil,
		)
	}
}

// ---------------------------------------------------------------------------
// Step 3: Neon web login
// ---------------------------------------------------------------------------

type neonLoginPayload struct {
	Provider        string `json:"provider"`
	ProviderUserSrl string `json:"provider_user_srl"`
	ProviderSns     string `json:"provider_sns"`
	ProviderSnsSrl  string `json:"provider_sns_srl"`
	AppID           string `json:"app_id"`
	ProviderUserJWT string `json:"provider_user_jwt"`
	MobSvcYn        string `json:"mob_svc_yn"`
	PrivacyYn       string `json:"privacy_yn"`
	AdYn            string `json:"ad_yn"`
	AdNightYn       string `json:"ad_night_yn"`
	ReleaseYmd      string `json:"release_ymd"`
}

func (s *SessionClient) neonLogin(ctx context.Context, payload neonLoginPayload) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal Neon login payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.neonURL+"/api/accounts/v3/weblogin/account", bytes.NewReader(body))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create Neon login request", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := s.base.Do(req)
	if err != nil {
		return "", wrapTransportError("Neon login", types.ErrCodeUpstreamNeon, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", types.NewAppError(
			types.ErrCodeUpstreamNeon,
			fmt.Sprintf("Neon login returned status %d", resp.StatusCode),
			nil,
		)
	}

	var neon struct {
		Value      string `json:"value"`
		ResultCode string `json:"result_code"`
		ResultMsg  string `json:"result_msg"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&neon); err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamNeon, "Neon login response was not valid JSON", err)
	}
	if neon.ResultCode != neonResultOK {
		return "", types.NewAppError(
			types.ErrCodeAuthLoginRejected,
			fmt.Sprintf("Neon login rejected: %s (%s)", neon.ResultMsg, neon.ResultCode),
			nil,
		)
	}
	return neon.Value, nil
}

// ---------------------------------------------------------------------------
// Step 4: web shop login
// ---------------------------------------------------------------------------

func (s *SessionClient) webshopLogin(ctx context.Context, neonToken string) (*types.Session, error) {
	body, err := json.Marshal(map[string]string{
		"token":      neonToken,
		"nationCode": "",
	})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal web shop login payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webshopURL+"/api/login", bytes.NewReader(body))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create web shop login request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.base.Do(req)
	if err != nil {
		return nil, wrapTransportError("web shop login", types.ErrCodeUpstreamWebshop, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamWebshop,
			fmt.Sprintf("web shop login returned status %d", resp.StatusCode),
			nil,
		)
	}

	var login struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Data    struct {
			AccessToken string `json:"accessToken"`
			MemberID    int64  `json:"memberId"`
			UserID      string `json:"userId"`
			UserIndex   int64  `json:"userIndex"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&login); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamWebshop, "web shop login response was not valid JSON", err)
	}
	if login.Code != webshopCodeOK {
		return nil, types.NewAppError(
			types.ErrCodeAuthLoginRejected,
			fmt.Sprintf("web shop login rejected: %s (%s)", login.Message, login.Code),
			nil,
		)
	}
	if login.Data.AccessToken == "" {
		return nil, types.NewAppError(types.ErrCodeUpstreamWebshop, "web shop login returned an empty access token", nil)
	}

	return &types.Session{
		AccessToken: login.Data.AccessToken,
		UserID:      login.Data.UserID,
		UserIndex:   login.Data.UserIndex,
		MemberID:    login.Data.MemberID,
	}, nil
}

// ---------------------------------------------------------------------------
// Shared helpers
// ---------------------------------------------------------------------------

// wrapTransportError wraps a BaseClient transport error with operation
// context. AppErrors from BaseClient (circuit breaker, retries exhausted)
// already carry the right code and pass through unchanged.
func wrapTransportError(operation string, code types.ErrorCode, err error) error {
	if _, ok := err.(*types.AppError); ok {
		return err
	}
	return types.NewAppError(code, fmt.Sprintf("%s request failed: %v", operation, err), err)
}

// Compile-time assertion that SessionClient satisfies SessionProvider.
var _ SessionProvider = (*SessionClient)(nil)

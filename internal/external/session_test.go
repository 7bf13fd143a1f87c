package external

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"automata/internal/types"
)

// loginFixture wires all four login services onto one httptest server and
// records what each step received.
type loginFixture struct {
	server *httptest.Server

	tokenForm     string
	lookupBody    map[string]string
	neonPayload   map[string]any
	webshopBody   map[string]string
	lookupUsers   string
	neonResponse  string
	tokenResponse string
}

func newLoginFixture(t *testing.T) *loginFixture {
	t.Helper()
	f := &loginFixture{
		tokenResponse: `{
			"access_token": "fb-access", "expires_in": "3600", "token_type": "Bearer",
			"refresh_token": "rotated-refresh", "id_token": "fb-id-token",
			"user_id": "local-1", "project_id": "proj"
		}`,
		lookupUsers: `{"kind": "identitytoolkit#GetAccountInfoResponse", "users": [{
			"localId": "local-1", "email": "player@example.com",
			"providerUserInfo": [{"providerId": "google.com", "federatedId": "fed-1", "rawId": "raw-google-1"}]
		}]}`,
		neonResponse: `{"value": "neon-token", "result_code": "000", "result_msg": "success"}`,
	}

	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/token":
			if got := r.URL.Query().Get("key"); got != "fb-api-key" {
				t.Errorf("token exchange key = %q, want fb-api-key", got)
			}
			b, _ := io.ReadAll(r.Body)
			f.tokenForm = string(b)
			io.WriteString(w, f.tokenResponse)
		case "/v1/accounts:lookup":
			json.NewDecoder(r.Body).Decode(&f.lookupBody)
			io.WriteString(w, f.lookupUsers)
		case "/api/accounts/v3/weblogin/account":
			json.NewDecoder(r.Body).Decode(&f.neonPayload)
			io.WriteString(w, f.neonResponse)
		case "/api/login":
			json.NewDecoder(r.Body).Decode(&f.webshopBody)
			io.WriteString(w, `{"code": "OK", "message": "", "data": {
				"accessToken": "shop-access", "memberId": 42, "userId": "user-77", "userIndex": 9
			}}`)
		default:
			t.Errorf("unexpected request path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *loginFixture) client() *SessionClient {
	return NewSessionClientWithBase(newTestBase(0), SessionClientConfig{
		FirebaseAPIKey:          "fb-api-key",
		FirebaseBaseURL:         f.server.URL,
		FirebaseIdentityBaseURL: f.server.URL,
		NeonBaseURL:             f.server.URL,
		WebshopBaseURL:          f.server.URL,
	})
}

func TestSessionLogin_GoogleProviderHappyPath(t *testing.T) {
	f := newLoginFixture(t)

	result, err := f.client().Login(context.Background(), "stored-refresh", types.ProviderGoogle)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if result.Session.AccessToken != "shop-access" {
		t.Errorf("access token = %q, want shop-access", result.Session.AccessToken)
	}
	if result.Session.UserID != "user-77" || result.Session.UserIndex != 9 || result.Session.MemberID != 42 {
		t.Errorf("unexpected session identity: %+v", result.Session)
	}
	if result.RefreshToken != "rotated-refresh" {
		t.Errorf("refresh token = %q, want the rotated token", result.RefreshToken)
	}

	// Step 1 sends the stored refresh token as a form body.
	if f.tokenForm != "grant_type=refresh_token&refresh_token=stored-refresh" {
		t.Errorf("token exchange form = %q", f.tokenForm)
	}
	// Step 2 forwards the id token.
	if f.lookupBody["idToken"] != "fb-id-token" {
		t.Errorf("lookup idToken = %q, want fb-id-token", f.lookupBody["idToken"])
	}
	// Step 3 uses the federated raw ID for GOOGLE.
	if f.neonPayload["provider_sns_srl"] != "raw-google-1" {
		t.Errorf("provider_sns_srl = %v, want raw-google-1", f.neonPayload["provider_sns_srl"])
	}
	if f.neonPayload["provider"] != "FIREBASE" || f.neonPayload["app_id"] != "5063" {
		t.Errorf("unexpected Neon payload: %v", f.neonPayload)
	}
	if f.neonPayload["provider_user_jwt"] != "fb-id-token" {
		t.Errorf("provider_user_jwt = %v, want fb-id-token", f.neonPayload["provider_user_jwt"])
	}
	// Step 4 forwards the Neon token.
	if f.webshopBody["token"] != "neon-token" {
		t.Errorf("web shop token = %q, want neon-token", f.webshopBody["token"])
	}
}

func TestSessionLogin_EmailProviderUsesAccountEmail(t *testing.T) {
	f := newLoginFixture(t)

	_, err := f.client().Login(context.Background(), "stored-refresh", types.ProviderEmail)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if f.neonPayload["provider_sns_srl"] != "player@example.com" {
		t.Errorf("provider_sns_srl = %v, want the account email", f.neonPayload["provider_sns_srl"])
	}
}

func TestSessionLogin_RevokedRefreshToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error": {"message": "TOKEN_EXPIRED"}}`)
	}))
	defer server.Close()

	client := NewSessionClientWithBase(newTestBase(0), SessionClientConfig{
		FirebaseAPIKey:  "fb-api-key",
		FirebaseBaseURL: server.URL,
	})

	_, err := client.Login(context.Background(), "revoked", types.ProviderGoogle)
	if err == nil {
		t.Fatal("expected error for revoked refresh token")
	}
	assertAppCode(t, err, types.ErrCodeAuthTokenInvalid)
}

func TestSessionLogin_LookupReturnsNoUsers(t *testing.T) {
	f := newLoginFixture(t)
	f.lookupUsers = `{"kind": "identitytoolkit#GetAccountInfoResponse", "users": []}`

	_, err := f.client().Login(context.Background(), "stored-refresh", types.ProviderGoogle)
	if err == nil {
		t.Fatal("expected error for empty lookup")
	}
	assertAppCode(t, err, types.ErrCodeAuthTokenInvalid)
}

func TestSessionLogin_NeonRejection(t *testing.T) {
	f := newLoginFixture(t)
	f.neonResponse = `{"value": "", "result_code": "997", "result_msg": "blocked account"}`

	_, err := f.client().Login(context.Background(), "stored-refresh", types.ProviderGoogle)
	if err == nil {
		t.Fatal("expected error for Neon rejection")
	}
	assertAppCode(t, err, types.ErrCodeAuthLoginRejected)
}

func TestSessionLogin_UnsupportedProvider(t *testing.T) {
	f := newLoginFixture(t)

	_, err := f.client().Login(context.Background(), "stored-refresh", types.ProviderType("STEAM"))
	if err == nil {
		t.Fatal("expected error for unsupported provider")
	}
	assertAppCode(t, err, types.ErrCodeAuthLoginRejected)
}

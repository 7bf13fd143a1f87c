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

func newTestCouponClient(serverURL string) *CouponClient {
	return NewCouponClientWithBase(newTestBase(0), CouponClientConfig{BaseURL: serverURL})
}

func TestCouponRedeem_Success(t *testing.T) {
	var gotBody map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/coupon" {
			t.Errorf("expected path /coupon, got %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		io.WriteString(w, `{}`)
	}))
	defer server.Close()

	outcome, err := newTestCouponClient(server.URL).Redeem(context.Background(), "user-77", "SUMMER2026")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if outcome.Outcome != types.OutcomeSuccess {
		t.Errorf("outcome = %v, want success", outcome.Outcome)
	}
	if gotBody["appId"] != "bd2-live" {
		t.Errorf("appId = %q, want bd2-live", gotBody["appId"])
	}
	if gotBody["userId"] != "user-77" || gotBody["code"] != "SUMMER2026" {
		t.Errorf("unexpected payload: %v", gotBody)
	}
}

func TestCouponRedeem_AlreadyUsedIsIdempotent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"errorCode": "AlreadyUsed"}`)
	}))
	defer server.Close()

	outcome, err := newTestCouponClient(server.URL).Redeem(context.Background(), "user-77", "SUMMER2026")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if outcome.Outcome != types.OutcomeAlreadyDone {
		t.Errorf("outcome = %v, want already-done", outcome.Outcome)
	}
}

func TestCouponRedeem_GatewayRejections(t *testing.T) {
	cases := []struct {
		errorCode string
		wantMsg   string
	}{
		{"InvalidCode", "invalid code"},
		{"ExpiredCode", "code expired"},
		{"SomethingNew", "coupon rejected: SomethingNew"},
	}

	for _, tc := range cases {
		t.Run(tc.errorCode, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]string{"errorCode": tc.errorCode})
			}))
			defer server.Close()

			outcome, err := newTestCouponClient(server.URL).Redeem(context.Background(), "user-77", "X")
			if err != nil {
				t.Fatalf("expected no error, got: %v", err)
			}
			if outcome.Outcome != types.OutcomeFailure {
				t.Errorf("outcome = %v, want failure", outcome.Outcome)
			}
			if outcome.Message != tc.wantMsg {
				t.Errorf("message = %q, want %q", outcome.Message, tc.wantMsg)
			}
		})
	}
}

func TestCouponRedeem_UpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := newTestCouponClient(server.URL).Redeem(context.Background(), "user-77", "X")
	if err == nil {
		t.Fatal("expected error for unexpected status")
	}
	assertAppCode(t, err, types.ErrCodeUpstreamCoupon)
}

package external

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"automata/internal/types"
)

func TestPulseFetchCodes_FiltersExpiredEntries(t *testing.T) {
	var gotAPIKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/redeem" {
			t.Errorf("expected path /redeem, got %s", r.URL.Path)
		}
		gotAPIKey = r.Header.Get("x-api-key")
		io.WriteString(w, `[
			{"code": "ACTIVE1", "reward": {"en": "100 dia"}, "status": "active", "expiry_date": "2026/12/31", "image_url": null},
			{"code": "GONE1", "reward": {"en": "old"}, "status": "expired", "expiry_date": "2026/01/01", "image_url": null},
			{"code": "FOREVER", "reward": {"en": "5 tickets"}, "status": "permanent", "expiry_date": null, "image_url": null},
			{"code": "", "reward": {"en": "broken row"}, "status": "active", "expiry_date": null, "image_url": null}
		]`)
	}))
	defer server.Close()

	client := NewPulseClientWithBase(newTestBase(0), PulseClientConfig{
		APIKey:  "pulse-test-key",
		BaseURL: server.URL,
	})

	codes, err := client.FetchCodes(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if gotAPIKey != "pulse-test-key" {
		t.Errorf("x-api-key = %q, want pulse-test-key", gotAPIKey)
	}
	if len(codes) != 2 {
		t.Fatalf("expected 2 redeemable codes, got %d: %+v", len(codes), codes)
	}
	if codes[0].Code != "ACTIVE1" || codes[0].RewardDesc != "100 dia" || codes[0].ExpiryDate != "2026/12/31" {
		t.Errorf("unexpected first code: %+v", codes[0])
	}
	if codes[1].Code != "FOREVER" || codes[1].ExpiryDate != "" {
		t.Errorf("unexpected second code: %+v", codes[1])
	}
}

func TestPulseFetchCodes_UpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := NewPulseClientWithBase(newTestBase(0), PulseClientConfig{
		APIKey:  "bad-key",
		BaseURL: server.URL,
	})

	_, err := client.FetchCodes(context.Background())
	if err == nil {
		t.Fatal("expected error for 403")
	}
	assertAppCode(t, err, types.ErrCodeUpstreamCoupon)
}

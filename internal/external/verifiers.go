package external

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Resend Webhook Verification (svix HMAC-SHA256)
// ---------------------------------------------------------------------------

// webhookTolerance bounds how stale a webhook timestamp may be. Replayed or
// long-delayed deliveries outside this window are rejected.
const webhookTolerance = 5 * time.Minute

// ResendVerifier verifies Resend event webhooks, which are delivered through
// svix. The signed content is "{msg_id}.{timestamp}.{payload}", HMAC-SHA256
// keyed with the base64-decoded portion of the endpoint secret after its
// "whsec_" prefix. The signature header carries one or more space-separated
// "v1,<base64>" entries; verification succeeds if any of them matches.
type ResendVerifier struct {
	// now is swappable in tests to pin the tolerance window.
	now func() time.Time
}

// NewResendVerifier creates a verifier using the wall clock.
func NewResendVerifier() *ResendVerifier {
	return &ResendVerifier{now: time.Now}
}

// Verify checks a webhook delivery against the endpoint secret.
// Parameters:
//   - payload: the raw webhook request body
//   - msgID: value from the svix-id header
//   - timestamp: value from the svix-timestamp header (unix seconds)
//   - signatureHeader: value from the svix-signature header
//   - secret: the endpoint secret, "whsec_" prefixed
//
// Returns (true, nil) if any signature entry is valid, (false, nil) if none
// match or the timestamp is outside tolerance, or (false, err) if the inputs
// are malformed.
func (v *ResendVerifier) Verify(payload []byte, msgID, timestamp, signatureHeader, secret string) (bool, error) {
	key, err := parseWebhookSecret(secret)
	if err != nil {
		return false, fmt.Errorf("failed to parse webhook secret: %w", err)
	}

	ts, err := parseWebhookTimestamp(timestamp)
	if err != nil {
		return false, fmt.Errorf("failed to parse webhook timestamp: %w", err)
	}
	if delta := v.now().Sub(ts); delta > webhookTolerance || delta < -webhookTolerance {
		return false, nil
	}

	mac := hmac.New(sha256.New, key)
	fmt.Fprintf(mac, "%s.%s.", msgID, timestamp)
	mac.Write(payload)
	expected := mac.Sum(nil)

	for _, entry := range strings.Fields(signatureHeader) {
		version, sig, ok := strings.Cut(entry, ",")
		if !ok || version != "v1" {
			continue
		}
		sigBytes, err := base64.StdEncoding.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(sigBytes, expected) {
			return true, nil
		}
	}
	return false, nil
}

// parseWebhookSecret strips the "whsec_" prefix and base64-decodes the key.
func parseWebhookSecret(secret string) ([]byte, error) {
	if secret == "" {
		return nil, errors.New("webhook secret is empty")
	}
	encoded := strings.TrimPrefix(secret, "whsec_")
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to base64-decode secret: %w", err)
	}
	return key, nil
}

// parseWebhookTimestamp parses the svix-timestamp header (unix seconds).
func parseWebhookTimestamp(timestamp string) (time.Time, error) {
	seconds, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %q is not unix seconds: %w", timestamp, err)
	}
	return time.Unix(seconds, 0), nil
}

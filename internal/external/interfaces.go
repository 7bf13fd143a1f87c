package external

import (
	"context"

	"automata/internal/types"
)

// LoginResult is a live web shop session plus the refresh token to persist.
// The token endpoint may rotate the refresh token on each exchange, so the
// caller must store RefreshToken back even on an apparent no-op.
type LoginResult struct {
	Session      types.Session
	RefreshToken string
}

// SessionProvider exchanges a stored platform refresh token for a live web
// shop session. Implemented by SessionClient; consumers depend on this
// interface so batch runners can be tested with a stub login.
type SessionProvider interface {
	Login(ctx context.Context, refreshToken string, provider types.ProviderType) (*LoginResult, error)
}

// ActionOutcome is the normalized result of one platform action. Outcome
// distinguishes a fresh success from an idempotent "already done" so callers
// can log and count the two separately.
type ActionOutcome struct {
	Outcome types.Outcome
	Message string
}

// AttendanceAPI covers the web shop's check-in surface: daily and weekly
// attendance plus event reward claims.
type AttendanceAPI interface {
	Attend(ctx context.Context, accessToken string, kind AttendKind) (*ActionOutcome, error)
	FetchEventInfo(ctx context.Context) (*types.EventSchedule, error)
	AttendEvent(ctx context.Context, accessToken string, eventScheduleID int64) (*ActionOutcome, error)
}

// CouponRedeemer submits gift codes to the coupon gateway on behalf of a
// game account.
type CouponRedeemer interface {
	Redeem(ctx context.Context, userID, code string) (*ActionOutcome, error)
}

// CatalogCode is one community-tracked gift code from the Pulse catalog.
type CatalogCode struct {
	Code       string
	RewardDesc string
	Status     string
	ExpiryDate string
}

// CodeCatalog lists currently redeemable gift codes from an external tracker.
type CodeCatalog interface {
	FetchCodes(ctx context.Context) ([]CatalogCode, error)
}

// SendInput carries one outbound email to the provider.
type SendInput struct {
	From    string
	To      string
	Subject string
	HTML    string
}

// EmailProvider transmits a single email and returns the provider-assigned
// message ID used later to correlate delivery webhooks.
type EmailProvider interface {
	Send(ctx context.Context, input SendInput) (string, error)
}

package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"automata/internal/db"
	"automata/internal/external"
	"automata/internal/types"
)

// unusableCredentialMsg marks accounts whose stored refresh token could not
// be unsealed. They are reported as failures without an upstream attempt.
const unusableCredentialMsg = "stored refresh token could not be unsealed"

// AccountSource lists opted-in accounts and persists rotated refresh tokens.
type AccountSource interface {
	ListAutomated(ctx context.Context, flag db.AutomationFlag) ([]types.GameAccount, []types.GameAccount, error)
	UpdateRefreshToken(ctx context.Context, accountID int64, plaintext string) error
}

// AttendanceLog is the shared surface of the daily and weekly attendance
// repositories; periodKey is a calendar-day or ISO-week identifier.
type AttendanceLog interface {
	ListCompletedAccountIDs(ctx context.Context, periodKey string) (map[int64]struct{}, error)
	Insert(ctx context.Context, accountID int64, periodKey string, outcome types.Outcome, responseMsg string) error
}

// EventLog records event participation and the mirrored schedule row.
type EventLog interface {
	UpsertSchedule(ctx context.Context, s types.EventSchedule) error
	ListParticipatedAccountIDs(ctx context.Context, eventScheduleID int64) (map[int64]struct{}, error)
	InsertParticipation(ctx context.Context, accountID, eventScheduleID int64, outcome types.Outcome, responseMsg, taskID string) error
}

// CodeStore manages known gift codes and redemption logs.
type CodeStore interface {
	ListActiveCodes(ctx context.Context) ([]types.GiftCode, error)
	UpsertCode(ctx context.Context, code, rewardDesc string) error
	ListRedeemedPairs(ctx context.Context) (map[db.RedeemedPair]struct{}, error)
	InsertRedemption(ctx context.Context, accountID, giftCodeID int64, codeUsed string, outcome types.Outcome, responseMsg, taskID string) error
}

// Config wires a BatchRunner.
type Config struct {
	Accounts   AccountSource
	Sessions   external.SessionProvider
	Attendance external.AttendanceAPI
	Coupons    external.CouponRedeemer
	Catalog    external.CodeCatalog
	DailyLog   AttendanceLog
	WeeklyLog  AttendanceLog
	Events     EventLog
	Codes      CodeStore

	// Concurrency bounds the per-account fan-out. Values below 1 fall back
	// to sequential execution.
	Concurrency int
	Logger      *slog.Logger
	Now         func() time.Time
}

// BatchRunner executes one batch action across all eligible accounts.
// Per-account failures are logged and counted but never abort the batch;
// only listing accounts or the done-set prefilter can fail a run.
type BatchRunner struct {
	cfg Config
}

// NewBatchRunner creates a BatchRunner, defaulting the logger, clock, and
// concurrency when unset.
func NewBatchRunner(cfg Config) *BatchRunner {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &BatchRunner{cfg: cfg}
}

// RunDaily performs the daily check-in batch for today (UTC).
func (r *BatchRunner) RunDaily(ctx context.Context) (types.BatchResult, error) {
	return r.runAttendance(ctx, db.FlagDailyAttend, external.AttendDaily, r.cfg.DailyLog, DateKey(r.cfg.Now()))
}

// RunWeekly performs the weekly check-in batch for the current ISO week.
func (r *BatchRunner) RunWeekly(ctx context.Context) (types.BatchResult, error) {
	return r.runAttendance(ctx, db.FlagWeeklyAttend, external.AttendWeekly, r.cfg.WeeklyLog, WeekKey(r.cfg.Now()))
}

func (r *BatchRunner) runAttendance(
	ctx context.Context,
	flag db.AutomationFlag,
	kind external.AttendKind,
	log AttendanceLog,
	periodKey string,
) (types.BatchResult, error) {
	accounts, unusable, err := r.cfg.Accounts.ListAutomated(ctx, flag)
	if err != nil {
		return types.BatchResult{}, err
	}

	done, err := log.ListCompletedAccountIDs(ctx, periodKey)
	if err != nil {
		return types.BatchResult{}, err
	}

	var mu sync.Mutex
	details := unusableDetails(unusable)

	// Accounts the done-set covers count as already completed without an
	// upstream call; the batch total spans every eligible account.
	var pending []types.GameAccount
	for _, acct := range accounts {
		if _, ok := done[acct.ID]; ok {
			details = append(details, skipped(acct, "already completed for "+periodKey))
			continue
		}
		pending = append(pending, acct)
	}

	g := new(errgroup.Group)
	g.SetLimit(r.cfg.Concurrency)
	for _, acct := range pending {
		g.Go(func() error {
			res := r.attendOne(ctx, acct, kind, log, periodKey)
			mu.Lock()
			details = append(details, res)
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	result := types.Summarize(details)
	r.cfg.Logger.InfoContext(ctx, "attendance batch finished",
		slog.String("flag", string(flag)),
		slog.String("period", periodKey),
		slog.Int("total", result.Total),
		slog.Int("succeeded", result.Succeeded),
		slog.Int("already", result.AlreadyCompleted),
		slog.Int("failed", result.Failed),
	)
	return result, nil
}

func (r *BatchRunner) attendOne(
	ctx context.Context,
	acct types.GameAccount,
	kind external.AttendKind,
	log AttendanceLog,
	periodKey string,
) types.ActionResult {
	session, err := r.login(ctx, acct)
	if err != nil {
		r.insertAttendance(ctx, log, acct.ID, periodKey, types.OutcomeFailure, loginFailureMsg(err))
		return failure(acct, loginFailureMsg(err))
	}

	outcome, err := r.cfg.Attendance.Attend(ctx, session.AccessToken, kind)
	if err != nil {
		r.insertAttendance(ctx, log, acct.ID, periodKey, types.OutcomeFailure, err.Error())
		return failure(acct, err.Error())
	}

	r.insertAttendance(ctx, log, acct.ID, periodKey, outcome.Outcome, outcome.Message)
	return fromOutcome(acct, outcome)
}

// RunEvent performs the event check-in batch. The live event window is
// fetched once before fan-out; no published event yields an empty result.
func (r *BatchRunner) RunEvent(ctx context.Context, taskID string) (types.BatchResult, error) {
	ev, err := r.cfg.Attendance.FetchEventInfo(ctx)
	if err != nil {
		return types.BatchResult{}, err
	}
	if ev == nil {
		r.cfg.Logger.InfoContext(ctx, "no event currently published; skipping event batch")
		return types.BatchResult{}, nil
	}

	if err := r.cfg.Events.UpsertSchedule(ctx, *ev); err != nil {
		return types.BatchResult{}, err
	}

	accounts, unusable, err := r.cfg.Accounts.ListAutomated(ctx, db.FlagEventAttend)
	if err != nil {
		return types.BatchResult{}, err
	}

	done, err := r.cfg.Events.ListParticipatedAccountIDs(ctx, ev.EventScheduleID)
	if err != nil {
		return types.BatchResult{}, err
	}

	var mu sync.Mutex
	details := unusableDetails(unusable)

	var pending []types.GameAccount
	for _, acct := range accounts {
		if _, ok := done[acct.ID]; ok {
			details = append(details, skipped(acct, "already participated in this event"))
			continue
		}
		pending = append(pending, acct)
	}

	g := new(errgroup.Group)
	g.SetLimit(r.cfg.Concurrency)
	for _, acct := range pending {
		g.Go(func() error {
			res := r.attendEventOne(ctx, acct, ev.EventScheduleID, taskID)
			mu.Lock()
			details = append(details, res)
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	result := types.Summarize(details)
	r.cfg.Logger.InfoContext(ctx, "event batch finished",
		slog.Int64("event_schedule_id", ev.EventScheduleID),
		slog.Int("total", result.Total),
		slog.Int("succeeded", result.Succeeded),
		slog.Int("already", result.AlreadyCompleted),
		slog.Int("failed", result.Failed),
	)
	return result, nil
}

func (r *BatchRunner) attendEventOne(ctx context.Context, acct types.GameAccount, eventScheduleID int64, taskID string) types.ActionResult {
	session, err := r.login(ctx, acct)
	if err != nil {
		r.insertParticipation(ctx, acct.ID, eventScheduleID, types.OutcomeFailure, loginFailureMsg(err), taskID)
		return failure(acct, loginFailureMsg(err))
	}

	outcome, err := r.cfg.Attendance.AttendEvent(ctx, session.AccessToken, eventScheduleID)
	if err != nil {
		r.insertParticipation(ctx, acct.ID, eventScheduleID, types.OutcomeFailure, err.Error(), taskID)
		return failure(acct, err.Error())
	}

	r.insertParticipation(ctx, acct.ID, eventScheduleID, outcome.Outcome, outcome.Message, taskID)
	return fromOutcome(acct, outcome)
}

// RunRedeem performs the gift-code redemption sweep. The work-item set is
// active codes x eligible accounts minus already-logged redemptions; one
// session per account covers all of that account's outstanding codes.
func (r *BatchRunner) RunRedeem(ctx context.Context, taskID string) (types.BatchResult, error) {
	r.syncCatalog(ctx)

	codes, err := r.cfg.Codes.ListActiveCodes(ctx)
	if err != nil {
		return types.BatchResult{}, err
	}
	if len(codes) == 0 {
		return types.BatchResult{}, nil
	}

	accounts, unusable, err := r.cfg.Accounts.ListAutomated(ctx, db.FlagRedeem)
	if err != nil {
		return types.BatchResult{}, err
	}

	redeemed, err := r.cfg.Codes.ListRedeemedPairs(ctx)
	if err != nil {
		return types.BatchResult{}, err
	}

	var mu sync.Mutex
	details := unusableDetails(unusable)

	g := new(errgroup.Group)
	g.SetLimit(r.cfg.Concurrency)
	for _, acct := range accounts {
		outstanding := outstandingCodes(acct.ID, codes, redeemed)
		if len(outstanding) == 0 {
			continue
		}
		g.Go(func() error {
			results := r.redeemForAccount(ctx, acct, outstanding, taskID)
			mu.Lock()
			details = append(details, results...)
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	result := types.Summarize(details)
	r.cfg.Logger.InfoContext(ctx, "redemption batch finished",
		slog.Int("codes", len(codes)),
		slog.Int("total", result.Total),
		slog.Int("succeeded", result.Succeeded),
		slog.Int("already", result.AlreadyCompleted),
		slog.Int("failed", result.Failed),
	)
	return result, nil
}

// syncCatalog refreshes the known-code table from the community catalog.
// Catalog outages degrade to the stored code list rather than failing the
// sweep.
func (r *BatchRunner) syncCatalog(ctx context.Context) {
	if r.cfg.Catalog == nil {
		return
	}
	fetched, err := r.cfg.Catalog.FetchCodes(ctx)
	if err != nil {
		r.cfg.Logger.WarnContext(ctx, "code catalog fetch failed; using stored codes",
			slog.String("error", err.Error()))
		return
	}
	for _, c := range fetched {
		if err := r.cfg.Codes.UpsertCode(ctx, c.Code, c.RewardDesc); err != nil {
			r.cfg.Logger.ErrorContext(ctx, "failed to upsert catalog code",
				slog.String("code", c.Code),
				slog.String("error", err.Error()))
		}
	}
}

func (r *BatchRunner) redeemForAccount(ctx context.Context, acct types.GameAccount, codes []types.GiftCode, taskID string) []types.ActionResult {
	session, err := r.login(ctx, acct)
	if err != nil {
		results := make([]types.ActionResult, 0, len(codes))
		for _, code := range codes {
			msg := loginFailureMsg(err)
			r.insertRedemption(ctx, acct.ID, code, types.OutcomeFailure, msg, taskID)
			results = append(results, failure(acct, fmt.Sprintf("%s: %s", code.Code, msg)))
		}
		return results
	}

	results := make([]types.ActionResult, 0, len(codes))
	for _, code := range codes {
		outcome, err := r.cfg.Coupons.Redeem(ctx, session.UserID, code.Code)
		if err != nil {
			r.insertRedemption(ctx, acct.ID, code, types.OutcomeFailure, err.Error(), taskID)
			results = append(results, failure(acct, fmt.Sprintf("%s: %s", code.Code, err.Error())))
			continue
		}
		r.insertRedemption(ctx, acct.ID, code, outcome.Outcome, outcome.Message, taskID)
		res := fromOutcome(acct, outcome)
		res.Message = fmt.Sprintf("%s: %s", code.Code, outcome.Message)
		results = append(results, res)
	}
	return results
}

// ---------------------------------------------------------------------------
// Shared helpers
// ---------------------------------------------------------------------------

// login derives a fresh session and persists the rotated refresh token when
// the token endpoint issued a new one. Rotation write failures are logged
// but do not fail the action; the old token often remains valid briefly.
func (r *BatchRunner) login(ctx context.Context, acct types.GameAccount) (*types.Session, error) {
	result, err := r.cfg.Sessions.Login(ctx, acct.RefreshToken, acct.ProviderType)
	if err != nil {
		return nil, err
	}
	if result.RefreshToken != "" && result.RefreshToken != acct.RefreshToken {
		if err := r.cfg.Accounts.UpdateRefreshToken(ctx, acct.ID, result.RefreshToken); err != nil {
			r.cfg.Logger.ErrorContext(ctx, "failed to persist rotated refresh token",
				slog.Int64("game_account_id", acct.ID),
				slog.String("error", err.Error()))
		}
	}
	return &result.Session, nil
}

func (r *BatchRunner) insertAttendance(ctx context.Context, log AttendanceLog, accountID int64, periodKey string, outcome types.Outcome, msg string) {
	if err := log.Insert(ctx, accountID, periodKey, outcome, msg); err != nil {
		r.cfg.Logger.ErrorContext(ctx, "failed to record attendance log",
			slog.Int64("game_account_id", accountID),
			slog.String("error", err.Error()))
	}
}

func (r *BatchRunner) insertParticipation(ctx context.Context, accountID, eventScheduleID int64, outcome types.Outcome, msg, taskID string) {
	if err := r.cfg.Events.InsertParticipation(ctx, accountID, eventScheduleID, outcome, msg, taskID); err != nil {
		r.cfg.Logger.ErrorContext(ctx, "failed to record event participation",
			slog.Int64("game_account_id", accountID),
			slog.String("error", err.Error()))
	}
}

func (r *BatchRunner) insertRedemption(ctx context.Context, accountID int64, code types.GiftCode, outcome types.Outcome, msg, taskID string) {
	if err := r.cfg.Codes.InsertRedemption(ctx, accountID, code.ID, code.Code, outcome, msg, taskID); err != nil {
		r.cfg.Logger.ErrorContext(ctx, "failed to record redemption log",
			slog.Int64("game_account_id", accountID),
			slog.String("code", code.Code),
			slog.String("error", err.Error()))
	}
}

func outstandingCodes(accountID int64, codes []types.GiftCode, redeemed map[db.RedeemedPair]struct{}) []types.GiftCode {
	out := make([]types.GiftCode, 0, len(codes))
	for _, c := range codes {
		if _, ok := redeemed[db.RedeemedPair{GameAccountID: accountID, GiftCodeID: c.ID}]; ok {
			continue
		}
		out = append(out, c)
	}
	return out
}

func unusableDetails(unusable []types.GameAccount) []types.ActionResult {
	details := make([]types.ActionResult, 0, len(unusable))
	for _, acct := range unusable {
		details = append(details, failure(acct, unusableCredentialMsg))
	}
	return details
}

func loginFailureMsg(err error) string {
	return "login failed: " + err.Error()
}

func failure(acct types.GameAccount, msg string) types.ActionResult {
	return types.ActionResult{
		GameAccountID: acct.ID,
		GameNickname:  acct.GameNickname,
		Message:       msg,
	}
}

func skipped(acct types.GameAccount, msg string) types.ActionResult {
	return types.ActionResult{
		GameAccountID: acct.ID,
		GameNickname:  acct.GameNickname,
		Skipped:       true,
		Message:       msg,
	}
}

func fromOutcome(acct types.GameAccount, outcome *external.ActionOutcome) types.ActionResult {
	return types.ActionResult{
		GameAccountID: acct.ID,
		GameNickname:  acct.GameNickname,
		Success:       outcome.Outcome == types.OutcomeSuccess,
		Skipped:       outcome.Outcome == types.OutcomeAlreadyDone,
		Message:       outcome.Message,
	}
}

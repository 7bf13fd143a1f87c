package db

import (
	"context"

	"automata/internal/types"
)

// RedeemedPair identifies one (account, code) combination that already has a
// successful redemption row.
type RedeemedPair struct {
	GameAccountID int64
	GiftCodeID    int64
}

// GiftCodeRepository provides data access for the automata_gift_codes and
// automata_redemption_logs tables.
type GiftCodeRepository struct {
	db DBTX
}

// NewGiftCodeRepository creates a new GiftCodeRepository.
func NewGiftCodeRepository(db DBTX) *GiftCodeRepository {
	return &GiftCodeRepository{db: db}
}

// ListActiveCodes returns all active, unexpired, non-deleted gift codes.
func (r *GiftCodeRepository) ListActiveCodes(ctx context.Context) ([]types.GiftCode, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, code, COALESCE(reward_desc, ''), is_active, expired_at
		 FROM automata_gift_codes
		 WHERE is_active = TRUE
		   AND is_deleted = FALSE
		   AND (expired_at IS NULL OR expired_at > NOW())
		 ORDER BY id`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list active gift codes", err)
	}
	defer rows.Close()

	var codes []types.GiftCode
	for rows.Next() {
		var c types.GiftCode
		if err := rows.Scan(&c.ID, &c.Code, &c.RewardDesc, &c.IsActive, &c.ExpiredAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan gift code", err)
		}
		codes = append(codes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate gift codes", err)
	}

	return codes, nil
}

// UpsertCode inserts a code discovered in the external catalog, reactivating
// it if a soft-deleted or inactive row already exists.
func (r *GiftCodeRepository) UpsertCode(ctx context.Context, code, rewardDesc string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO automata_gift_codes
		   (code, reward_desc, is_active, created_at, updated_at)
		 VALUES ($1, $2, TRUE, NOW(), NOW())
		 ON CONFLICT (code) DO UPDATE
		   SET reward_desc = EXCLUDED.reward_desc,
		       updated_at = NOW()`,
		code,
		rewardDesc,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert gift code", err)
	}
	return nil
}

// ListRedeemedPairs returns every (account, code) pair that already has a
// successful redemption row. One query covers the whole batch; the runner
// subtracts this set from the account-times-code cross product to find the
// remaining work.
func (r *GiftCodeRepository) ListRedeemedPairs(ctx context.Context) (map[RedeemedPair]struct{}, error) {
	rows, err := r.db.Query(ctx,
		`SELECT game_account_id, gift_code_id
		 FROM automata_redemption_logs
		 WHERE gift_code_id IS NOT NULL
		   AND redeem_result IN ($1, $2)
		   AND is_deleted = FALSE`,
		int(types.OutcomeSuccess),
		int(types.OutcomeAlreadyDone),
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list redeemed pairs", err)
	}
	defer rows.Close()

	set := make(map[RedeemedPair]struct{})
	for rows.Next() {
		var p RedeemedPair
		if err := rows.Scan(&p.GameAccountID, &p.GiftCodeID); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan redeemed pair", err)
		}
		set[p] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate redeemed pairs", err)
	}

	return set, nil
}

// InsertRedemption records the outcome of one redemption attempt.
func (r *GiftCodeRepository) InsertRedemption(ctx context.Context, accountID, giftCodeID int64, codeUsed string, outcome types.Outcome, responseMsg, taskID string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO automata_redemption_logs
		   (game_account_id, gift_code_id, code_used, redeem_result,
		    response_msg, task_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())`,
		accountID,
		giftCodeID,
		codeUsed,
		int(outcome),
		responseMsg,
		taskID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert redemption log", err)
	}
	return nil
}

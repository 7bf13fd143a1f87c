package db

import (
	"context"

	"automata/internal/types"
)

// TokenCipher seals and unseals refresh tokens stored in the
// automata_game_accounts table. Satisfied by *security.TokenCipher.
type TokenCipher interface {
	Seal(plaintext string) (string, error)
	Unseal(stored string) (string, error)
}

// AutomationFlag selects which opt-in column gates a batch action.
// The values are column names from a closed set, never user input.
type AutomationFlag string

const (
	FlagDailyAttend  AutomationFlag = "auto_daily_attend"
	FlagWeeklyAttend AutomationFlag = "auto_weekly_attend"
	FlagRedeem       AutomationFlag = "auto_redeem"
	FlagEventAttend  AutomationFlag = "auto_event_attend"
)

// valid reports whether the flag is one of the known opt-in columns.
func (f AutomationFlag) valid() bool {
	switch f {
	case FlagDailyAttend, FlagWeeklyAttend, FlagRedeem, FlagEventAttend:
		return true
	}
	return false
}

// GameAccountRepository provides data access for the automata_game_accounts
// table. Refresh tokens are unsealed on read so callers always see plaintext.
type GameAccountRepository struct {
	db     DBTX
	cipher TokenCipher
}

// NewGameAccountRepository creates a new GameAccountRepository. The cipher
// decrypts stored refresh tokens on read and encrypts them on write.
func NewGameAccountRepository(db DBTX, cipher TokenCipher) *GameAccountRepository {
	return &GameAccountRepository{db: db, cipher: cipher}
}

// ListAutomated returns all active, non-deleted accounts that opted in to
// the automation gated by flag. Accounts whose stored token fails to unseal
// are returned with an empty RefreshToken rather than dropped; the batch
// runner records a per-account failure for them so the owner can re-link.
func (r *GameAccountRepository) ListAutomated(ctx context.Context, flag AutomationFlag) ([]types.GameAccount, []types.GameAccount, error) {
	if !flag.valid() {
		return nil, nil, types.NewAppError(types.ErrCodeInternalUnexpected, "unknown automation flag", nil)
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, game_nickname, refresh_token, provider_type,
		        is_active, auto_daily_attend, auto_weekly_attend,
		        auto_redeem, auto_event_attend
		 FROM automata_game_accounts
		 WHERE is_active = TRUE
		   AND is_deleted = FALSE
		   AND `+string(flag)+` = TRUE
		 ORDER BY id`,
	)
	if err != nil {
		return nil, nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list automated accounts", err)
	}
	defer rows.Close()

	var accounts, undecryptable []types.GameAccount
	for rows.Next() {
		var a types.GameAccount
		var sealed string
		err := rows.Scan(
			&a.ID,
			&a.UserID,
			&a.GameNickname,
			&sealed,
			&a.ProviderType,
			&a.IsActive,
			&a.AutoDailyAttend,
			&a.AutoWeeklyAttend,
			&a.AutoRedeem,
			&a.AutoEventAttend,
		)
		if err != nil {
			return nil, nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan game account", err)
		}

		token, err := r.cipher.Unseal(sealed)
		if err != nil {
			undecryptable = append(undecryptable, a)
			continue
		}
		a.RefreshToken = token
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate game accounts", err)
	}

	return accounts, undecryptable, nil
}

// UpdateRefreshToken seals and replaces the stored token for an account.
func (r *GameAccountRepository) UpdateRefreshToken(ctx context.Context, accountID int64, plaintext string) error {
	sealed, err := r.cipher.Seal(plaintext)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to seal refresh token", err)
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE automata_game_accounts
		 SET refresh_token = $2, updated_at = NOW()
		 WHERE id = $1 AND is_deleted = FALSE`,
		accountID,
		sealed,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update refresh token", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeInternalDB, "game account not found", nil)
	}
	return nil
}

package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// stubCipher is a trivial TokenCipher that prefixes sealed values.
type stubCipher struct {
	failOn string
}

func (c stubCipher) Seal(plaintext string) (string, error) {
	return "sealed:" + plaintext, nil
}

func (c stubCipher) Unseal(stored string) (string, error) {
	if stored == c.failOn {
		return "", errors.New("authentication failed")
	}
	if len(stored) > 7 && stored[:7] == "sealed:" {
		return stored[7:], nil
	}
	return "", errors.New("bad ciphertext")
}

func accountRow(id int64, nickname, sealedToken string) []any {
	return []any{
		id, int64(1), nickname, sealedToken, "GOOGLE",
		true, true, true, true, true,
	}
}

func TestGameAccountRepository_ListAutomated(t *testing.T) {
	db := new(mockDBTX)
	repo := NewGameAccountRepository(db, stubCipher{})
	ctx := context.Background()

	db.On("Query", ctx, mock.MatchedBy(func(sql string) bool {
		return containsAll(sql, "auto_daily_attend = TRUE", "is_active = TRUE", "is_deleted = FALSE")
	}), mock.Anything).Return(newMockRows([][]any{
		accountRow(1, "alpha", "sealed:token-a"),
		accountRow(2, "beta", "sealed:token-b"),
	}), nil)

	accounts, undecryptable, err := repo.ListAutomated(ctx, FlagDailyAttend)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Empty(t, undecryptable)
	assert.Equal(t, "token-a", accounts[0].RefreshToken)
	assert.Equal(t, "beta", accounts[1].GameNickname)
}

func TestGameAccountRepository_ListAutomated_UndecryptableTokenIsolated(t *testing.T) {
	db := new(mockDBTX)
	repo := NewGameAccountRepository(db, stubCipher{failOn: "corrupt"})
	ctx := context.Background()

	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(newMockRows([][]any{
			accountRow(1, "alpha", "sealed:token-a"),
			accountRow(2, "beta", "corrupt"),
			accountRow(3, "gamma", "sealed:token-c"),
		}), nil)

	accounts, undecryptable, err := repo.ListAutomated(ctx, FlagRedeem)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	require.Len(t, undecryptable, 1)
	assert.Equal(t, int64(2), undecryptable[0].ID)
	assert.Empty(t, undecryptable[0].RefreshToken)
}

func TestGameAccountRepository_ListAutomated_UnknownFlag(t *testing.T) {
	db := new(mockDBTX)
	repo := NewGameAccountRepository(db, stubCipher{})

	_, _, err := repo.ListAutomated(context.Background(), AutomationFlag("id = id; DROP TABLE"))
	require.Error(t, err)
	db.AssertNotCalled(t, "Query")
}

func TestGameAccountRepository_UpdateRefreshToken_SealsBeforeWrite(t *testing.T) {
	db := new(mockDBTX)
	repo := NewGameAccountRepository(db, stubCipher{})
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.MatchedBy(func(args []any) bool {
		return len(args) == 2 && args[1] == "sealed:new-token"
	})).Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	err := repo.UpdateRefreshToken(ctx, 7, "new-token")
	require.NoError(t, err)
	db.AssertExpectations(t)
}

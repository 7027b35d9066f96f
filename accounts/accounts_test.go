package accounts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAccount_StoreID(t *testing.T) {
	tests := []struct {
		userID string
		want   string
	}{
		{"TRH170501", "1705"},
		{"TRH183002", "1830"},
		{"ABC170501", ""},
		{"TRH17", ""},
		{"", ""},
	}
	for _, tt := range tests {
		a := Account{UserID: tt.userID}
		assert.Equal(t, tt.want, a.StoreID(), "userID=%q", tt.userID)
	}
}

func TestAccount_PasswordDaysRemaining(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.Local)

	a := Account{PasswordUpdated: "2024-05-01T12:00:00"}
	days, ok := a.PasswordDaysRemaining(now)
	assert.True(t, ok)
	assert.Equal(t, 21, days)

	// 30日を超えていれば負値 (失効済み)
	a = Account{PasswordUpdated: "2024-04-01T12:00:00"}
	days, ok = a.PasswordDaysRemaining(now)
	assert.True(t, ok)
	assert.Less(t, days, 0)

	// 更新日未記録
	_, ok = Account{}.PasswordDaysRemaining(now)
	assert.False(t, ok)

	// 形式不正
	_, ok = Account{PasswordUpdated: "2024/05/01"}.PasswordDaysRemaining(now)
	assert.False(t, ok)
}

func TestSortByLastLogin(t *testing.T) {
	accounts := []Account{
		{UserID: "TRH170501", LastLogin: "2024-05-01T09:00:00"},
		{UserID: "TRH183002", LastLogin: "2024-05-09T09:00:00"},
		{UserID: "TRH220101"}, // 未ログイン
	}

	sorted := SortByLastLogin(accounts)
	assert.Equal(t, "TRH183002", sorted[0].UserID)
	assert.Equal(t, "TRH170501", sorted[1].UserID)
	assert.Equal(t, "TRH220101", sorted[2].UserID)

	// 元のスライスは変更しない
	assert.Equal(t, "TRH170501", accounts[0].UserID)
}

func TestFindByUserID(t *testing.T) {
	accounts := []Account{
		{UserID: "TRH170501", StoreName: "ツ)川越店"},
		{UserID: "TRH183002", StoreName: "ツ)旭川末広5条店"},
	}

	a, ok := FindByUserID(accounts, "TRH183002")
	assert.True(t, ok)
	assert.Equal(t, "ツ)旭川末広5条店", a.StoreName)

	_, ok = FindByUserID(accounts, "TRH999999")
	assert.False(t, ok)
}

// Package accounts は accounts.json による店舗アカウント管理です。
// ポータルのパスワードは30日で失効するため、更新日からの残日数を
// 計算してログイン前に警告します。
package accounts

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"time"
)

const (
	accountsFilePath = "./accounts.json"
	timeLayout       = "2006-01-02T15:04:05"

	// PasswordValidityDays はポータル側のパスワード有効期間です。
	PasswordValidityDays = 30
)

// userIDPattern: ユーザーID "TRH" + 店舗ID4桁 + 連番2桁
var userIDPattern = regexp.MustCompile(`TRH(\d{4})\d{2}`)

type Account struct {
	StoreName       string `json:"store_name"`
	UserID          string `json:"user_id"`
	Password        string `json:"password"`
	PasswordUpdated string `json:"password_updated,omitempty"`
	LastLogin       string `json:"last_login,omitempty"`
}

// StoreID はユーザーIDから4桁の店舗IDを取り出します。形式不一致は空。
func (a Account) StoreID() string {
	m := userIDPattern.FindStringSubmatch(a.UserID)
	if m == nil {
		return ""
	}
	return m[1]
}

// PasswordDaysRemaining はパスワード失効までの残日数を返します。
// 更新日が未記録の場合は ok=false。
func (a Account) PasswordDaysRemaining(now time.Time) (int, bool) {
	if a.PasswordUpdated == "" {
		return 0, false
	}
	updated, err := time.Parse(timeLayout, a.PasswordUpdated)
	if err != nil {
		return 0, false
	}
	passed := int(now.Sub(updated).Hours() / 24)
	return PasswordValidityDays - passed, true
}

// LoadAccounts は accounts.json を読み込みます。無ければ空リスト。
func LoadAccounts() ([]Account, error) {
	data, err := os.ReadFile(accountsFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []Account{}, nil
		}
		return nil, fmt.Errorf("accounts.json の読み込みに失敗: %w", err)
	}
	var accounts []Account
	if err := json.Unmarshal(data, &accounts); err != nil {
		return nil, fmt.Errorf("accounts.json の解析に失敗: %w", err)
	}
	return accounts, nil
}

func SaveAccounts(accounts []Account) error {
	f, err := os.Create(accountsFilePath)
	if err != nil {
		return fmt.Errorf("accounts.json の作成に失敗: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(accounts); err != nil {
		return fmt.Errorf("accounts.json の書き込みに失敗: %w", err)
	}
	return nil
}

// AddAccount はアカウントを追記します。パスワード更新日は現在時刻。
func AddAccount(storeName, userID, password string, now time.Time) error {
	accounts, err := LoadAccounts()
	if err != nil {
		return err
	}
	accounts = append(accounts, Account{
		StoreName:       storeName,
		UserID:          userID,
		Password:        password,
		PasswordUpdated: now.Format(timeLayout),
	})
	return SaveAccounts(accounts)
}

// UpdatePassword は該当ユーザーのパスワードと更新日を書き換えます。
// ユーザーが見つからない場合は false。
func UpdatePassword(userID, newPassword string, now time.Time) (bool, error) {
	accounts, err := LoadAccounts()
	if err != nil {
		return false, err
	}
	for i := range accounts {
		if accounts[i].UserID == userID {
			accounts[i].Password = newPassword
			accounts[i].PasswordUpdated = now.Format(timeLayout)
			return true, SaveAccounts(accounts)
		}
	}
	return false, nil
}

// TouchLastLogin はログイン成功時に最終ログイン日時を記録します。
func TouchLastLogin(userID string, now time.Time) error {
	accounts, err := LoadAccounts()
	if err != nil {
		return err
	}
	for i := range accounts {
		if accounts[i].UserID == userID {
			accounts[i].LastLogin = now.Format(timeLayout)
			return SaveAccounts(accounts)
		}
	}
	return nil
}

// SortByLastLogin は最終ログインの新しい順に並べ替えた複製を返します。
func SortByLastLogin(accounts []Account) []Account {
	sorted := make([]Account, len(accounts))
	copy(sorted, accounts)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].LastLogin > sorted[j].LastLogin
	})
	return sorted
}

// FindByUserID はユーザーIDでアカウントを探します。
func FindByUserID(accounts []Account, userID string) (Account, bool) {
	for _, a := range accounts {
		if a.UserID == userID {
			return a, true
		}
	}
	return Account{}, false
}

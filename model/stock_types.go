package model

import "github.com/shopspring/decimal"

// メッセージ在庫 (購入伺いの受信台帳) のステータス
const (
	MessageStatusUnprocessed = "unprocessed"
)

// 不動在庫 (自店が放出する余剰在庫台帳) のステータス
const (
	ImmobileStatusActive    = "active"
	ImmobileStatusCompleted = "completed"
	ImmobileStatusCancelled = "cancelled"
)

// 転送先店舗の応答ステータス。遷移は pending→accepted / pending→rejected のみ。
const (
	TargetStatusPending  = "pending"
	TargetStatusAccepted = "accepted"
	TargetStatusRejected = "rejected"
)

// MessageStockEntry は message_stock_{store_id}.json の1エントリです。
// (notice_id, medicine_name, expiry_year_month) の組で重複排除します。
type MessageStockEntry struct {
	NoticeID        string          `json:"noticeId"`
	SenderStoreName string          `json:"senderStoreName"`
	MedicineName    string          `json:"medicineName"`
	Quantity        decimal.Decimal `json:"quantity"`
	Unit            string          `json:"unit"`
	ExpiryYearMonth string          `json:"expiryYearMonth,omitempty"`
	Status          string          `json:"status"`
	CreatedAt       string          `json:"createdAt"`
}

// DedupKey は重複排除用の複合キーです。
func (e MessageStockEntry) DedupKey() string {
	return e.NoticeID + "|" + e.MedicineName + "|" + e.ExpiryYearMonth
}

// ImmobileStockEntry は immobile_stock_{store_id}.json の1エントリです。
type ImmobileStockEntry struct {
	// MedicineID は "{store_id}_{timestamp}" 形式で採番します。
	MedicineID      string          `json:"medicineId"`
	MedicineName    string          `json:"medicineName"`
	Quantity        decimal.Decimal `json:"quantity"`
	Unit            string          `json:"unit"`
	LotNumber       string          `json:"lotNumber,omitempty"`
	ExpiryYearMonth string          `json:"expiryYearMonth,omitempty"`
	SourceNoticeID  string          `json:"sourceNoticeId,omitempty"`
	Status          string          `json:"status"`
	CreatedAt       string          `json:"createdAt"`
	TargetStores    []TargetStore   `json:"targetStores"`
}

// TargetStore は不動在庫1件の転送先店舗と応答状況です。
type TargetStore struct {
	StoreID           string `json:"storeId"`
	StoreName         string `json:"storeName"`
	Status            string `json:"status"`
	SentAt            string `json:"sentAt,omitempty"`
	RespondedAt       string `json:"respondedAt,omitempty"`
	ResponseMessageID string `json:"responseMessageId,omitempty"`
}

// StoreMapping は data/store_mapping.csv の1行です。
type StoreMapping struct {
	StoreID     string `json:"storeId"`
	StoreName   string `json:"storeName"`
	UserID      string `json:"userId"`
	LastUpdated string `json:"lastUpdated"`
}

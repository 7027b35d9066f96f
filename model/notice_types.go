package model

import "github.com/shopspring/decimal"

// Notice は掲示板の未読一覧からスクレイピングした1件のメッセージです。
// ページ再読み込みで行のDOM参照は無効になるため、アクション境界を
// 越えてキャッシュしてはいけません（都度再スキャンで解決し直す）。
type Notice struct {
	ReceivedAt string `json:"receivedAt"`
	Title      string `json:"title"`
	Sender     string `json:"sender"`
	// NoticeID は詳細ウィンドウのURLクエリから抽出します。抽出失敗時は空。
	NoticeID string `json:"noticeId"`
	Body     string `json:"body"`
}

// RowKey は同一バッチ内で処理済み行を識別するためのキーです。
// DOM参照の代わりに表示文字列の組で同定します。
func (n Notice) RowKey() string {
	return n.ReceivedAt + "|" + n.Sender + "|" + n.Title
}

// DrugLot はメッセージ本文から抽出した1ロット分の医薬品情報です。
type DrugLot struct {
	SenderStoreName string          `json:"senderStoreName"`
	MedicineName    string          `json:"medicineName"`
	Quantity        decimal.Decimal `json:"quantity"`
	Unit            string          `json:"unit"`
	// ExpiryYearMonth は "YYYY/MM" 形式。数量行の直後の行にある場合のみ設定。
	ExpiryYearMonth string `json:"expiryYearMonth,omitempty"`
}

// Package noticeboard は社内掲示板の未読メッセージを分類し、
// 台帳記帳または出庫連携へ振り分けるバッチ処理の中核です。
package noticeboard

import (
	"strings"

	"fudostock/config"
)

// Action はメッセージ1件に対する処理方法です。
type Action int

const (
	// ActionSkip は対象外 (分類不一致または分類が無効化されている)。
	// 処理枠を消費しない。
	ActionSkip Action = iota
	// ActionLedger は購入伺いの解析と受信台帳への記帳。
	ActionLedger
	// ActionShipment はマッチング通知からの出庫連携シーケンス。
	ActionShipment
	// ActionInformational は件数記録のみの分類 (不動在庫転送・返信)。
	// 自動処理は未定義のまま拡張ポイントとして残している。
	ActionInformational
)

// Classifier は設定の分類有効/無効マップに基づいてタイトルを判定します。
// ページ再読み込み後は行のDOM参照が無効になるため、判定は常にタイトル
// 文字列に対して行い、要素ハンドルには依存しません。
type Classifier struct {
	enabled map[string]bool
}

func NewClassifier(enabled map[string]bool) *Classifier {
	if enabled == nil {
		enabled = map[string]bool{}
	}
	return &Classifier{enabled: enabled}
}

// ClassifyTitle はタイトルから分類名を返します。不一致は空文字。
func ClassifyTitle(title string) string {
	switch {
	case title == config.CategoryPurchaseInquiry:
		return config.CategoryPurchaseInquiry
	case strings.HasPrefix(title, config.CategoryMatchingExpiry):
		return config.CategoryMatchingExpiry
	case strings.HasPrefix(title, config.CategoryImmobileTransfer):
		return config.CategoryImmobileTransfer
	case strings.HasPrefix(title, "Re:"):
		return config.CategoryReply
	}
	return ""
}

// Decide は分類名と処理方法を返します。分類が無効ならスキップ。
func (c *Classifier) Decide(title string) (string, Action) {
	category := ClassifyTitle(title)
	if category == "" {
		return "", ActionSkip
	}
	enabled, ok := c.enabled[category]
	if ok && !enabled {
		return category, ActionSkip
	}

	switch category {
	case config.CategoryPurchaseInquiry:
		return category, ActionLedger
	case config.CategoryMatchingExpiry:
		return category, ActionShipment
	default:
		return category, ActionInformational
	}
}

package noticeboard

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"fudostock/config"
)

func TestClassifyTitle(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"購入伺い", config.CategoryPurchaseInquiry},
		{"マッチング：使用期限 2024/09", config.CategoryMatchingExpiry},
		{"不動在庫転送のお知らせ", config.CategoryImmobileTransfer},
		{"Re: 不動在庫の件", config.CategoryReply},
		{"購入伺いについて", ""}, // 完全一致のみ
		{"月次棚卸のお知らせ", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyTitle(tt.title), "title=%q", tt.title)
	}
}

func TestDecide_ActionMapping(t *testing.T) {
	c := NewClassifier(map[string]bool{
		config.CategoryPurchaseInquiry:  true,
		config.CategoryMatchingExpiry:   true,
		config.CategoryImmobileTransfer: true,
		config.CategoryReply:            true,
	})

	_, action := c.Decide("購入伺い")
	assert.Equal(t, ActionLedger, action)

	_, action = c.Decide("マッチング：使用期限 2024/09 薬品A")
	assert.Equal(t, ActionShipment, action)

	_, action = c.Decide("不動在庫転送のお知らせ")
	assert.Equal(t, ActionInformational, action)

	_, action = c.Decide("Re: 先日の件")
	assert.Equal(t, ActionInformational, action)

	_, action = c.Decide("未知のタイトル")
	assert.Equal(t, ActionSkip, action)
}

func TestDecide_DisabledCategoryIsSkipped(t *testing.T) {
	c := NewClassifier(map[string]bool{
		config.CategoryPurchaseInquiry: false,
	})

	category, action := c.Decide("購入伺い")
	assert.Equal(t, config.CategoryPurchaseInquiry, category)
	assert.Equal(t, ActionSkip, action)

	// マップに無い分類は有効扱い
	_, action = c.Decide("マッチング：使用期限 2024/09")
	assert.Equal(t, ActionShipment, action)
}

package parsers

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRule = "--------------------"

// buildBody は 見出し部 / 列見出し部 / データ部 を区切り線で組み立てます。
func buildBody(header, legend, data string) string {
	return header + "\n" + sampleRule + "\n" + legend + "\n" + sampleRule + "\n" + data
}

func TestParseNoticeBody_SingleLotWithExpiry(t *testing.T) {
	body := buildBody(
		"*****************\n　ツ)旭川末広5条店",
		"薬品名　　数量　単位　使用期限",
		"薬品A    10.00  錠\n  2024/01\n",
	)

	lots := ParseNoticeBody(body)
	require.Len(t, lots, 1)
	assert.Equal(t, "ツ)旭川末広5条店", lots[0].SenderStoreName)
	assert.Equal(t, "薬品A", lots[0].MedicineName)
	assert.True(t, lots[0].Quantity.Equal(decimal.RequireFromString("10.00")))
	assert.Equal(t, "錠", lots[0].Unit)
	assert.Equal(t, "2024/01", lots[0].ExpiryYearMonth)
}

func TestParseNoticeBody_MultipleLotsInOrder(t *testing.T) {
	body := buildBody(
		"*****************\n　ツ)旭川7条店",
		"薬品名　　数量　単位",
		strings.Join([]string{
			"アムロジピン錠5mg    30  錠",
			"  2025/03",
			"ロキソプロフェンNa錠60mg    100  錠",
			"ムコダインシロップ5%    2.5  本",
			"  2024/11",
		}, "\n"),
	)

	lots := ParseNoticeBody(body)
	require.Len(t, lots, 3)
	assert.Equal(t, "アムロジピン錠5mg", lots[0].MedicineName)
	assert.Equal(t, "2025/03", lots[0].ExpiryYearMonth)
	assert.Equal(t, "ロキソプロフェンNa錠60mg", lots[1].MedicineName)
	assert.Empty(t, lots[1].ExpiryYearMonth)
	assert.Equal(t, "ムコダインシロップ5%", lots[2].MedicineName)
	assert.Equal(t, "2024/11", lots[2].ExpiryYearMonth)
}

func TestParseNoticeBody_RejectsLongUnitCandidate(t *testing.T) {
	// 末尾トークンが10文字を超える場合は数値入りの薬品名とみなす
	body := buildBody(
		"*****************\n　ツ)旭川7条店",
		"薬品名　　数量　単位",
		"なんとか配合顆粒 10 あいうえおかきくけこさ\n",
	)

	assert.Empty(t, ParseNoticeBody(body))
}

func TestParseNoticeBody_ExpiryLineNotEmittedAsLot(t *testing.T) {
	body := buildBody(
		"*****************\n　ツ)旭川7条店",
		"薬品名　　数量　単位",
		"薬品B    5  箱\n  2024/06\n",
	)

	lots := ParseNoticeBody(body)
	require.Len(t, lots, 1)
	assert.Equal(t, "2024/06", lots[0].ExpiryYearMonth)
}

func TestParseNoticeBody_SkipsRepeatedHeaderKeywords(t *testing.T) {
	// ページ送りの痕跡で列見出しがデータ部の途中に再出現するケース
	body := buildBody(
		"*****************\n　ツ)旭川7条店",
		"薬品名　　数量　単位",
		strings.Join([]string{
			"薬品C    1  箱",
			"薬品名　　数量　単位　使用期限",
			"薬品D    2  箱",
		}, "\n"),
	)

	lots := ParseNoticeBody(body)
	require.Len(t, lots, 2)
	assert.Equal(t, "薬品C", lots[0].MedicineName)
	assert.Equal(t, "薬品D", lots[1].MedicineName)
}

func TestParseNoticeBody_FullWidthDigitsAndRule(t *testing.T) {
	body := buildBody(
		"*****************\n　ツ)旭川7条店",
		"薬品名　　数量　単位",
		"薬品Ｅ    １０  錠\n  ２０２４/０５\n",
	)

	lots := ParseNoticeBody(body)
	require.Len(t, lots, 1)
	assert.True(t, lots[0].Quantity.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, "2024/05", lots[0].ExpiryYearMonth)
	// 数値や期限は半角に畳むが、薬品名は原文のまま
	assert.Equal(t, "薬品Ｅ", lots[0].MedicineName)
}

func TestParseNoticeBody_KeepsMedicineNameCharactersVerbatim(t *testing.T) {
	// 薬品名に含まれる半角カナ・全角英数は台帳にそのまま残す
	body := buildBody(
		"*****************\n　ツ)旭川7条店",
		"薬品名　　数量　単位",
		strings.Join([]string{
			"ﾑｺﾀﾞｲﾝ錠２５０ｍｇ    10  錠",
			"  2024/09",
			"アムロジピンＯＤ錠２.５ｍｇ「ﾄｰﾜ」    30  錠",
		}, "\n"),
	)

	lots := ParseNoticeBody(body)
	require.Len(t, lots, 2)
	assert.Equal(t, "ﾑｺﾀﾞｲﾝ錠２５０ｍｇ", lots[0].MedicineName)
	assert.True(t, lots[0].Quantity.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, "錠", lots[0].Unit)
	assert.Equal(t, "2024/09", lots[0].ExpiryYearMonth)
	assert.Equal(t, "アムロジピンＯＤ錠２.５ｍｇ「ﾄｰﾜ」", lots[1].MedicineName)
}

func TestParseNoticeBody_LegacySenderFallback(t *testing.T) {
	// 見出しブロックが無い旧形式でも店舗名を拾う
	body := "依頼元: ツ)旭川末広5条店\n" + sampleRule + "\n薬品名\n" + sampleRule + "\n薬品F    3  本\n"

	lots := ParseNoticeBody(body)
	require.Len(t, lots, 1)
	assert.Equal(t, "ツ)旭川末広5条店", lots[0].SenderStoreName)
}

func TestParseNoticeBody_FewerThanTwoSectionsReturnsEmpty(t *testing.T) {
	cases := map[string]string{
		"区切り線なし":  "ただのお知らせです。\n薬品A 10 錠\n",
		"区切り線1本のみ": "お知らせ\n" + sampleRule + "\n薬品A 10 錠\n",
		"空文字":     "",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Empty(t, ParseNoticeBody(body))
		})
	}
}

func TestParseNoticeBody_NeverPanics(t *testing.T) {
	inputs := []string{
		"\x00\xff\xfe",
		strings.Repeat("-", 1000),
		strings.Repeat("-", 15) + "\n" + strings.Repeat("-", 15) + "\n",
		"***\n",
		sampleRule + "\n" + sampleRule + "\n12345\n",
	}
	for _, in := range inputs {
		assert.NotPanics(t, func() { ParseNoticeBody(in) })
	}
}

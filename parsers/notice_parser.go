package parsers

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/width"

	"fudostock/model"
)

// 本文の構造解析に使う正規表現。区切り線・数値・期限には全角文字が
// 混在することがあるため、照合は width.Fold で半角に畳んだ行に対して
// 行う。薬品名は半角カナや全角英数を含んだ原文のまま残す必要がある
// ため、畳んだ行からは取らず元の行から切り出す (Fold は1ルーン対
// 1ルーンなので照合位置がそのまま対応する)。
var (
	// ヘッダーブロック: "***...***" の行の次の、字下げされた店舗名行
	reHeaderStore = regexp.MustCompile(`(?m)^\*{3,}[^\n]*\n[ \t　]+([^\n]+)`)
	// 旧形式: "ツ)○○店" のような仕入先プレフィックス付き店舗名
	reLegacyStore = regexp.MustCompile(`ツ[)）][^\s　]+`)
	// 区切り線: ダッシュ10個以上の連なり
	reSectionRule = regexp.MustCompile(`-{10,}`)
	// データ行: <名称> <空白> <数値> <空白> <単位候補> <行末>
	reDataLine = regexp.MustCompile(`^(.*\S)[\s]+(\d+(?:\.\d+)?)[\s]+(\S+)$`)
	// 期限行: 行頭 (空白許容) の YYYY/MM
	reExpiryLine = regexp.MustCompile(`^\s*(\d{4}/\d{2})`)
)

// 列見出しの語。ページ送りの痕跡でデータ部の途中に再出現することがある。
var headerKeywords = []string{"薬品名", "数量", "単位", "使用期限", "不動在庫"}

// maxUnitLength は単位として認める末尾トークンの最大文字数。
// これを超える場合は数値を含む薬品名の誤マッチとみなして読み飛ばす。
const maxUnitLength = 10

// ParseNoticeBody は掲示板メッセージの本文から医薬品ロットを抽出します。
// 構造が一致しない本文に対しては空スライスを返し、決して panic しません。
// 1通に複数ロットが含まれる場合はすべて抽出します。
func ParseNoticeBody(body string) []model.DrugLot {
	if body == "" {
		return nil
	}

	sender := extractSenderStore(body)

	// 区切り線で区間を特定する。2本目の区切り線の次からがデータ部
	// (1本目と2本目の間は列見出しの凡例)。区切り線が2本無ければ
	// ロット通知ではないので安価に棄却する。
	rawLines := strings.Split(body, "\n")
	foldedLines := make([]string, len(rawLines))
	ruleCount := 0
	start, end := -1, len(rawLines)
	for i, raw := range rawLines {
		foldedLines[i] = strings.TrimRight(width.Fold.String(raw), " \t\r")
		if reSectionRule.MatchString(foldedLines[i]) {
			ruleCount++
			switch ruleCount {
			case 2:
				start = i + 1
			case 3:
				end = i
			}
		}
	}
	if start < 0 {
		return nil
	}

	var lots []model.DrugLot
	for i := start; i < end; i++ {
		line := foldedLines[i]
		if strings.TrimSpace(line) == "" {
			continue
		}
		if containsHeaderKeyword(line) {
			continue
		}

		loc := reDataLine.FindStringSubmatchIndex(line)
		if loc == nil {
			continue
		}
		unit := line[loc[6]:loc[7]]
		if len([]rune(unit)) > maxUnitLength {
			// 単位ではなく長い名称の一部。データ行として扱わない。
			continue
		}
		qty, err := decimal.NewFromString(line[loc[4]:loc[5]])
		if err != nil {
			continue
		}

		lot := model.DrugLot{
			SenderStoreName: sender,
			MedicineName:    sliceByFoldedOffsets(rawLines[i], line, loc[2], loc[3]),
			Quantity:        qty,
			Unit:            unit,
		}

		// 直後の行が期限行ならこのロットに添付し、行カーソルを進める
		if i+1 < end {
			if em := reExpiryLine.FindStringSubmatch(foldedLines[i+1]); em != nil {
				lot.ExpiryYearMonth = em[1]
				i++
			}
		}

		lots = append(lots, lot)
	}
	return lots
}

// sliceByFoldedOffsets は畳んだ行上のバイト範囲を元の行の同じルーン
// 範囲に写して切り出します。Fold はルーン数を変えないため、ルーン
// 位置がそのまま対応します。
func sliceByFoldedOffsets(raw, folded string, foldedFrom, foldedTo int) string {
	runeFrom := utf8.RuneCountInString(folded[:foldedFrom])
	runeLen := utf8.RuneCountInString(folded[foldedFrom:foldedTo])
	runes := []rune(raw)
	if runeFrom+runeLen > len(runes) {
		return strings.TrimSpace(folded[foldedFrom:foldedTo])
	}
	return strings.TrimSpace(string(runes[runeFrom : runeFrom+runeLen]))
}

// extractSenderStore はヘッダーブロックから依頼元店舗名を取り出します。
// 主パターン不一致時は旧形式にフォールバックし、どちらも無ければ空。
func extractSenderStore(body string) string {
	if m := reHeaderStore.FindStringSubmatch(body); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := reLegacyStore.FindString(body); m != "" {
		return m
	}
	return ""
}

func containsHeaderKeyword(line string) bool {
	for _, kw := range headerKeywords {
		if strings.Contains(line, kw) {
			return true
		}
	}
	return false
}

package noticeboard

import (
	"context"
	"fmt"
	"log/slog"

	"fudostock/browser"
)

// NoticeOutcome はバッチ中の通知1件の結果です。
type NoticeOutcome struct {
	Title      string
	Sender     string
	ReceivedAt string
	Category   string
	Succeeded  bool
	Error      string
}

// BatchResult はバッチ1回分の集計です。Attempted と Succeeded は
// 別々に数えます (1件の失敗でバッチは止めない)。
type BatchResult struct {
	Attempted int
	Succeeded int
	Outcomes  []NoticeOutcome
}

// Controller は未読一覧を上限件数まで順に処理します。
//
// 通知を1件処理するたびに一覧ページは信頼できなくなる (行が消える・
// 全体が再読み込みされる) ため、2件目以降は毎回完全に再読み込みして
// 先頭から走査し直し、「有効分類に一致し、かつ今回未処理の最初の行」
// を選び直します。位置 (行番号) による再解決はしません。
type Controller struct {
	session    browser.Session
	classifier *Classifier
	dispatcher *Dispatcher
	log        *slog.Logger

	MaxCount int
}

func NewController(session browser.Session, classifier *Classifier, dispatcher *Dispatcher, maxCount int, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		session:    session,
		classifier: classifier,
		dispatcher: dispatcher,
		log:        log,
		MaxCount:   maxCount,
	}
}

// Run は未読一覧を処理して結果を返します。対象ゼロは正常 (何もしない)
// であり、失敗と区別されます。error はセッション自体が壊れた場合のみ。
func (c *Controller) Run(ctx context.Context) (BatchResult, error) {
	var result BatchResult

	rows, err := ScanNoticeRows(c.session)
	if err != nil {
		return result, fmt.Errorf("未読一覧の取得に失敗: %w", err)
	}

	target := 0
	for _, row := range rows {
		if _, action := c.classifier.Decide(row.Title); action != ActionSkip {
			target++
		}
	}
	if target > c.MaxCount {
		target = c.MaxCount
	}
	if target == 0 {
		c.log.Info("処理対象の通知はありません")
		return result, nil
	}
	c.log.Info("バッチ処理を開始します", "target", target, "unread", len(rows))

	handled := make(map[string]struct{})
	for i := 0; i < target; i++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		// 2件目以降: DOM参照の陳腐化対策として完全再読み込み
		if i > 0 {
			if err := c.session.Reload(); err != nil {
				return result, fmt.Errorf("一覧の再読み込みに失敗: %w", err)
			}
		}

		row, category, action, found, err := c.nextQualifyingRow(handled)
		if err != nil {
			return result, err
		}
		if !found {
			// 処理の副作用で対象行が消えた。残件なしとして終了。
			c.log.Info("処理対象の行が残っていません", "processed", result.Attempted)
			break
		}

		handled[row.RowKey()] = struct{}{}
		result.Attempted++

		outcome := NoticeOutcome{
			Title:      row.Title,
			Sender:     row.Sender,
			ReceivedAt: row.ReceivedAt,
			Category:   category,
		}
		if err := c.dispatcher.Dispatch(row, category, action); err != nil {
			outcome.Error = err.Error()
			c.log.Warn("通知の処理に失敗しました (次の通知へ進みます)",
				"title", row.Title, "category", category, "error", err)
		} else {
			outcome.Succeeded = true
			result.Succeeded++
		}
		result.Outcomes = append(result.Outcomes, outcome)
	}

	c.log.Info("バッチ処理が終了しました",
		"attempted", result.Attempted, "succeeded", result.Succeeded)
	return result, nil
}

// nextQualifyingRow は一覧を先頭から再走査し、有効分類かつ未処理の
// 最初の行を返します。
func (c *Controller) nextQualifyingRow(handled map[string]struct{}) (NoticeRow, string, Action, bool, error) {
	rows, err := ScanNoticeRows(c.session)
	if err != nil {
		return NoticeRow{}, "", ActionSkip, false, fmt.Errorf("一覧の再走査に失敗: %w", err)
	}
	for _, row := range rows {
		if _, done := handled[row.RowKey()]; done {
			continue
		}
		category, action := c.classifier.Decide(row.Title)
		if action == ActionSkip {
			continue
		}
		return row, category, action, true, nil
	}
	return NoticeRow{}, "", ActionSkip, false, nil
}

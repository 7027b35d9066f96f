package noticeboard

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fudostock/browser"
	"fudostock/ledger"
	"fudostock/model"
	"fudostock/parsers"
)

const createdAtLayout = "2006-01-02T15:04:05"

// Dispatcher は分類済みの通知1件を実際に処理します。
type Dispatcher struct {
	session browser.Session
	ledger  *ledger.Store
	storeID string
	log     *slog.Logger

	// Shipment は出庫連携シーケンス。待機時間の調整のため公開している。
	Shipment *ShipmentMachine
	now      func() time.Time
}

func NewDispatcher(session browser.Session, store *ledger.Store, storeID string, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		session:  session,
		ledger:   store,
		storeID:  storeID,
		log:      log,
		Shipment: NewShipmentMachine(session, log),
		now:      time.Now,
	}
}

// Dispatch は行を処理方法に応じて処理します。ActionSkip を渡すのは
// 呼び出し側の誤りなのでエラーにします。
func (d *Dispatcher) Dispatch(row NoticeRow, category string, action Action) error {
	switch action {
	case ActionLedger:
		return d.processPurchaseInquiry(row)
	case ActionShipment:
		return d.Shipment.Execute(row)
	case ActionInformational:
		// 自動処理は未定義の拡張ポイント。件数記録のみ。
		d.log.Info("情報分類の通知を記録しました", "category", category, "title", row.Title)
		return nil
	default:
		return fmt.Errorf("処理対象外の通知が振り分けられました: %s", row.Title)
	}
}

// processPurchaseInquiry は購入伺いを開いて本文を解析し、ロットを
// 受信台帳へ記帳します。本文が構造に一致しない場合は空解析として
// 正常終了します (再試行しても結果は変わらない)。
func (d *Dispatcher) processPurchaseInquiry(row NoticeRow) error {
	mainWindow, err := d.session.CurrentWindow()
	if err != nil {
		return fmt.Errorf("メインウィンドウの記録に失敗: %w", err)
	}

	notice, noticeWindow, err := OpenNoticeDetail(d.session, row)
	if noticeWindow != "" {
		defer d.closeAndReturn(noticeWindow, mainWindow)
	}
	if err != nil {
		return fmt.Errorf("購入伺いを開けません: %w", err)
	}

	lots := parsers.ParseNoticeBody(notice.Body)
	if len(lots) == 0 {
		d.log.Info("購入伺いの本文からロットを抽出できませんでした (スキップ)",
			"title", notice.Title, "noticeId", notice.NoticeID)
		return nil
	}

	doc, err := d.ledger.LoadMessageStock(d.storeID)
	if err != nil {
		return err
	}

	added := 0
	createdAt := d.now().Format(createdAtLayout)
	for _, lot := range lots {
		entry := model.MessageStockEntry{
			NoticeID:        notice.NoticeID,
			SenderStoreName: lot.SenderStoreName,
			MedicineName:    lot.MedicineName,
			Quantity:        lot.Quantity,
			Unit:            lot.Unit,
			ExpiryYearMonth: lot.ExpiryYearMonth,
			Status:          model.MessageStatusUnprocessed,
			CreatedAt:       createdAt,
		}
		if ledger.AppendMessageIfAbsent(doc, entry) {
			added++
		}
	}

	if added == 0 {
		d.log.Info("購入伺いは記帳済みです", "noticeId", notice.NoticeID, "lots", len(lots))
		return nil
	}
	if err := d.ledger.SaveMessageStock(doc, d.storeID); err != nil {
		return err
	}
	d.log.Info("購入伺いを記帳しました",
		"noticeId", notice.NoticeID, "lots", len(lots), "added", added)
	return nil
}

// closeAndReturn は詳細ウィンドウを閉じてメインウィンドウへ戻ります。
// どちらの失敗もベストエフォート (次の一覧再取得で回復する)。
func (d *Dispatcher) closeAndReturn(noticeWindow, mainWindow string) {
	if err := d.session.CloseWindow(noticeWindow); err != nil && !errors.Is(err, browser.ErrWindowGone) {
		d.log.Warn("詳細ウィンドウを閉じられません", "error", err)
	}
	if err := d.session.SwitchWindow(mainWindow); err != nil {
		d.log.Warn("メインウィンドウへ戻れません", "error", err)
	}
}

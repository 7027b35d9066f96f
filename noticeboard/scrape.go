package noticeboard

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"fudostock/browser"
	"fudostock/model"
)

// 掲示板まわりの画面構成。ポータルはフレームセット構成で、
// 未読一覧はメインフレーム内の GridView にレンダリングされる。
var noticeListFrame = browser.FramePath{"frMain"}

const (
	noticeTableSelector = "#grdMsgList"
	// 行内のタイトルリンク。クリックで詳細が別ウィンドウに開く。
	noticeLinkFmt = "#grdMsgList tr:nth-child(%d) a"
	// 詳細ウィンドウのURLに付くメッセージID
	noticeIDParam = "MsgID"
	// 詳細ウィンドウ内の出庫連携リンク
	shipmentTriggerSelector = "#lnkSyukkoRenkei"
	// 新規ウィンドウの出現を待つ上限
	windowAppearTimeout = 10 * time.Second
)

// NoticeRow は一覧の1行です。Index は nth-child 用の1始まり行番号で、
// 同一スキャン内でのみ有効 (再読み込み後は再スキャンで取り直す)。
type NoticeRow struct {
	Index      int
	ReceivedAt string
	Title      string
	Sender     string
}

// RowKey は同一バッチ内で処理済み行を識別するキーです。
func (r NoticeRow) RowKey() string {
	return r.ReceivedAt + "|" + r.Sender + "|" + r.Title
}

// ScanNoticeRows は未読一覧のHTMLを取得して行に分解します。
// 一覧テーブルが見つからない場合は空 (掲示板が空のケース)。
func ScanNoticeRows(session browser.Session) ([]NoticeRow, error) {
	found, err := session.Find(noticeListFrame, noticeTableSelector)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	html, err := session.HTML(noticeListFrame, noticeTableSelector)
	if err != nil {
		return nil, err
	}
	return parseNoticeTable(html)
}

// parseNoticeTable はGridViewのHTMLから行を取り出します。
// 列は 受信日時 / タイトル / 送信元 の3列。ヘッダ行 (th) は読み飛ばす。
func parseNoticeTable(html string) ([]NoticeRow, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("一覧テーブルの解析に失敗: %w", err)
	}

	var rows []NoticeRow
	doc.Find("tr").Each(func(i int, tr *goquery.Selection) {
		if tr.Find("th").Length() > 0 {
			return
		}
		cells := tr.Find("td")
		if cells.Length() < 3 {
			return
		}
		rows = append(rows, NoticeRow{
			Index:      i + 1, // nth-child は1始まり
			ReceivedAt: strings.TrimSpace(cells.Eq(0).Text()),
			Title:      strings.TrimSpace(cells.Eq(1).Text()),
			Sender:     strings.TrimSpace(cells.Eq(2).Text()),
		})
	})
	return rows, nil
}

// OpenNoticeDetail は行のタイトルリンクをクリックして詳細ウィンドウを
// 開き、そのウィンドウに切り替えた上で Notice を組み立てます。
// 呼び出し側は戻ってきたウィンドウハンドルを閉じる責任を持ちます。
func OpenNoticeDetail(session browser.Session, row NoticeRow) (model.Notice, string, error) {
	notice := model.Notice{
		ReceivedAt: row.ReceivedAt,
		Title:      row.Title,
		Sender:     row.Sender,
	}

	before, err := session.Windows()
	if err != nil {
		return notice, "", err
	}

	if err := session.Click(noticeListFrame, fmt.Sprintf(noticeLinkFmt, row.Index)); err != nil {
		return notice, "", err
	}

	handle, err := waitNewWindow(session, before, windowAppearTimeout)
	if err != nil {
		return notice, "", err
	}
	if err := session.SwitchWindow(handle); err != nil {
		return notice, "", err
	}
	if err := session.WaitReady(windowAppearTimeout); err != nil {
		return notice, handle, err
	}

	if addr, err := session.Address(); err == nil {
		notice.NoticeID = extractNoticeID(addr)
	}
	if body, err := session.Text(browser.TopDocument, "body"); err == nil {
		notice.Body = body
	}
	return notice, handle, nil
}

// waitNewWindow は before に無かったウィンドウハンドルを待ちます。
func waitNewWindow(session browser.Session, before []string, timeout time.Duration) (string, error) {
	known := make(map[string]struct{}, len(before))
	for _, h := range before {
		known[h] = struct{}{}
	}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		handles, err := session.Windows()
		if err != nil {
			return "", err
		}
		for _, h := range handles {
			if _, ok := known[h]; !ok {
				return h, nil
			}
		}
		time.Sleep(200 * time.Millisecond)
	}
	return "", fmt.Errorf("詳細ウィンドウが開きません: %w", browser.ErrWindowGone)
}

// extractNoticeID は詳細ウィンドウのURLクエリからメッセージIDを抜きます。
// 抽出できない場合は空文字 (エラーにしない)。
func extractNoticeID(address string) string {
	u, err := url.Parse(address)
	if err != nil {
		return ""
	}
	return u.Query().Get(noticeIDParam)
}

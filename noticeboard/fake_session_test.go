package noticeboard

import (
	"fmt"
	"strings"
	"time"

	"fudostock/browser"
)

// fakeSession は noticeboard のテスト用 Session 実装です。
// ウィンドウは "w-main" をメインとし、詳細ウィンドウは開くたびに
// "w-detail-N" を採番します。
type fakeSession struct {
	windows   []string
	current   string
	addresses map[string]string
	bodies    map[string]string

	listHTML    string
	childFrames []string

	// recalcAt は再計算ボタンの所在 ("top" / フレーム名 / "" = 出現しない)
	recalcAt      string
	recalcVisible bool
	// revealRecalcOnSwitch 回目の "w-main" への切り替えでボタンを出現させる
	revealRecalcOnSwitch int
	switchMainCount      int

	dialogOnConfirm bool
	dialogPending   bool
	dialogAccepts   int

	detailURL  string
	detailBody string
	targetURL  string

	clicks             []string
	reloads            int
	detailOpens        int
	failClickSelectors map[string]error
}

func newFakeSession(listHTML string) *fakeSession {
	return &fakeSession{
		windows:   []string{"w-main"},
		current:   "w-main",
		addresses: map[string]string{"w-main": "https://portal.example/medicom/MsgList.aspx"},
		bodies:    map[string]string{},
		listHTML:  listHTML,
		detailURL: "https://portal.example/medicom/MsgDetail.aspx?MsgID=M1",
		targetURL: "https://portal.example/medicom/SyukkoTarget.aspx",
	}
}

func (f *fakeSession) Windows() ([]string, error) {
	out := make([]string, len(f.windows))
	copy(out, f.windows)
	return out, nil
}

func (f *fakeSession) CurrentWindow() (string, error) { return f.current, nil }

func (f *fakeSession) SwitchWindow(handle string) error {
	for _, w := range f.windows {
		if w == handle {
			f.current = handle
			if handle == "w-main" {
				f.switchMainCount++
				if f.revealRecalcOnSwitch > 0 && f.switchMainCount >= f.revealRecalcOnSwitch {
					f.recalcVisible = true
				}
			}
			return nil
		}
	}
	return browser.ErrWindowGone
}

func (f *fakeSession) CloseWindow(handle string) error {
	for i, w := range f.windows {
		if w == handle {
			f.windows = append(f.windows[:i], f.windows[i+1:]...)
			return nil
		}
	}
	return browser.ErrWindowGone
}

func (f *fakeSession) Navigate(url string) error {
	f.addresses[f.current] = url
	return nil
}

func (f *fakeSession) Address() (string, error) { return f.addresses[f.current], nil }

func (f *fakeSession) Reload() error {
	f.reloads++
	return nil
}

func (f *fakeSession) WaitReady(time.Duration) error  { return nil }
func (f *fakeSession) DocumentReady() (bool, error)   { return true, nil }
func (f *fakeSession) Input(browser.FramePath, string, string) error { return nil }

func (f *fakeSession) Find(frame browser.FramePath, selector string) (bool, error) {
	switch selector {
	case noticeTableSelector:
		return f.listHTML != "", nil
	case recalcSelector:
		if !f.recalcVisible || f.recalcAt == "" {
			return false, nil
		}
		if f.recalcAt == "top" {
			return len(frame) == 0, nil
		}
		return len(frame) == 1 && frame[0] == f.recalcAt, nil
	}
	return false, nil
}

func (f *fakeSession) Click(frame browser.FramePath, selector string) error {
	if err, ok := f.failClickSelectors[selector]; ok {
		return err
	}
	f.clicks = append(f.clicks, selector)
	// 以前の手順のダイアログ通知はクリック時点で捨てられる
	f.dialogPending = false

	switch {
	case strings.HasPrefix(selector, "#grdMsgList tr:nth-child"):
		f.detailOpens++
		handle := fmt.Sprintf("w-detail-%d", f.detailOpens)
		f.windows = append(f.windows, handle)
		f.addresses[handle] = f.detailURL
		f.bodies[handle] = f.detailBody
	case selector == shipmentTriggerSelector:
		// 通知ウィンドウが閉じ、メインウィンドウが対象画面へ遷移する
		_ = f.CloseWindow(f.current)
		f.addresses["w-main"] = f.targetURL
	case selector == confirmSelector:
		if f.dialogOnConfirm {
			f.dialogPending = true
		}
	}
	return nil
}

func (f *fakeSession) Text(frame browser.FramePath, selector string) (string, error) {
	if selector == "body" {
		return f.bodies[f.current], nil
	}
	return "", browser.ErrElementNotFound
}

func (f *fakeSession) HTML(frame browser.FramePath, selector string) (string, error) {
	if selector == noticeTableSelector && f.listHTML != "" {
		return f.listHTML, nil
	}
	return "", browser.ErrElementNotFound
}

func (f *fakeSession) ChildFrames(browser.FramePath) ([]string, error) {
	return f.childFrames, nil
}

func (f *fakeSession) AcceptDialog(grace time.Duration) (bool, error) {
	if f.dialogPending {
		f.dialogPending = false
		f.dialogAccepts++
		return true, nil
	}
	return false, nil
}

func (f *fakeSession) WaitDownload(string, time.Duration) (string, error) {
	return "", nil
}

func (f *fakeSession) Close() error { return nil }

func (f *fakeSession) clickCount(selector string) int {
	n := 0
	for _, c := range f.clicks {
		if c == selector {
			n++
		}
	}
	return n
}

// noticeListHTML は GridView 風の一覧テーブルHTMLを組み立てます。
// 各行は [受信日時, タイトル, 送信元]。
func noticeListHTML(rows [][3]string) string {
	var b strings.Builder
	b.WriteString(`<table id="grdMsgList"><tr><th>受信日時</th><th>タイトル</th><th>送信元</th></tr>`)
	for _, r := range rows {
		fmt.Fprintf(&b, `<tr><td>%s</td><td><a href="#">%s</a></td><td>%s</td></tr>`, r[0], r[1], r[2])
	}
	b.WriteString(`</table>`)
	return b.String()
}

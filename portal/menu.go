package portal

import (
	"fmt"
	"time"

	"fudostock/browser"
)

// メニューから掲示板 (メッセージ一覧) へ遷移するリンク
const noticeBoardMenuLink = `a[href*="MsgList"]`

// OpenNoticeBoard はメインウィンドウのメニューから掲示板を開きます。
// メニューはトップ文書か直下フレームのどちらかにある。
func OpenNoticeBoard(session browser.Session, elementWait time.Duration) error {
	if err := session.Click(browser.TopDocument, noticeBoardMenuLink); err == nil {
		return session.WaitReady(elementWait)
	}

	frames, err := session.ChildFrames(browser.TopDocument)
	if err != nil {
		return fmt.Errorf("掲示板メニューを探せません: %w", err)
	}
	for _, name := range frames {
		if err := session.Click(browser.FramePath{name}, noticeBoardMenuLink); err == nil {
			return session.WaitReady(elementWait)
		}
	}
	return fmt.Errorf("掲示板メニューが見つかりません: %w", browser.ErrElementNotFound)
}

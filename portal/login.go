// Package portal は薬局ポータルの画面遷移 (ログイン・ログアウト・
// バッチ帳票) をまとめます。掲示板の中核処理は noticeboard 側。
package portal

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"fudostock/accounts"
	"fudostock/browser"
)

const (
	loginURL = "https://www.ph-netmaster.jp/medicom/LoginTop.aspx"

	userFieldSelector  = "#txtUser"
	passFieldSelector  = "#txtPass"
	loginButtonSel     = "#btnLogin"
	errorLabelSelector = "#lblErr"
	logoutButtonSel    = "#btnLogout"

	concurrentLoginText = "すでにログインされています"

	loginSettleWait = 3 * time.Second
	popupSettleWait = 2 * time.Second
)

// ログイン直後に勝手に開く統計画面などの不要ウィンドウ
var unwantedWindowURLs = []string{
	"I_Tenpo_Sakutaihi_Login.aspx",
	"SubFrameSanyo.aspx",
	"about:blank",
}

// ErrConcurrentLogin は他端末でのログイン中を示します。再試行しても
// 解消しないため、操作者への案内が必要です。
var ErrConcurrentLogin = errors.New("他の端末で既にログインされています")

// Login はポータルへログインし、不要なポップアップを片付けて
// メインウィンドウをアクティブにします。
func Login(session browser.Session, account accounts.Account, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}

	log.Info("ポータルへアクセスします", "userId", account.UserID)
	if err := session.Navigate(loginURL); err != nil {
		return fmt.Errorf("ログイン画面を開けません: %w", err)
	}

	if err := session.Input(browser.TopDocument, userFieldSelector, account.UserID); err != nil {
		return fmt.Errorf("ユーザーID入力欄が見つかりません: %w", err)
	}
	if err := session.Input(browser.TopDocument, passFieldSelector, account.Password); err != nil {
		return fmt.Errorf("パスワード入力欄が見つかりません: %w", err)
	}
	if err := session.Click(browser.TopDocument, loginButtonSel); err != nil {
		return fmt.Errorf("ログインボタンが見つかりません: %w", err)
	}

	time.Sleep(loginSettleWait)

	// エラーラベルとページ本文の両方で同時ログインを検出する
	if text, err := session.Text(browser.TopDocument, errorLabelSelector); err == nil && text != "" {
		if strings.Contains(text, concurrentLoginText) {
			return fmt.Errorf("%w: %s", ErrConcurrentLogin, text)
		}
		return fmt.Errorf("ログインエラー: %s", text)
	}
	if body, err := session.Text(browser.TopDocument, "body"); err == nil &&
		strings.Contains(body, concurrentLoginText) {
		return ErrConcurrentLogin
	}

	if err := closeUnwantedWindows(session, log); err != nil {
		return err
	}

	log.Info("ログインしました", "userId", account.UserID)
	if err := accounts.TouchLastLogin(account.UserID, time.Now()); err != nil {
		log.Warn("最終ログイン日時を記録できません", "error", err)
	}
	return nil
}

// closeUnwantedWindows はログイン時に自動で開く不要ウィンドウを閉じて
// メインウィンドウに切り替えます。
func closeUnwantedWindows(session browser.Session, log *slog.Logger) error {
	time.Sleep(popupSettleWait) // ポップアップの出現を待つ

	handles, err := session.Windows()
	if err != nil {
		return fmt.Errorf("ウィンドウ一覧を取得できません: %w", err)
	}

	mainWindow := ""
	for _, handle := range handles {
		if err := session.SwitchWindow(handle); err != nil {
			continue
		}
		addr, err := session.Address()
		if err != nil {
			continue
		}
		if isUnwantedURL(addr) {
			log.Debug("不要なウィンドウを閉じます", "url", addr)
			_ = session.CloseWindow(handle)
			continue
		}
		mainWindow = handle
	}

	if mainWindow == "" {
		return fmt.Errorf("メインウィンドウが見つかりません: %w", browser.ErrWindowGone)
	}
	return session.SwitchWindow(mainWindow)
}

func isUnwantedURL(addr string) bool {
	for _, u := range unwantedWindowURLs {
		if strings.Contains(addr, u) {
			return true
		}
	}
	return false
}

// Logout はログアウトボタンを押して確認ダイアログを受諾します。
// ボタンはトップ文書に無いことがあるため、直下フレームもあたります。
func Logout(session browser.Session, dialogGrace time.Duration, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}

	var clicked bool
	for attempt := 1; attempt <= 3 && !clicked; attempt++ {
		if err := session.Click(browser.TopDocument, logoutButtonSel); err == nil {
			clicked = true
			break
		}
		frames, err := session.ChildFrames(browser.TopDocument)
		if err == nil {
			for _, name := range frames {
				if err := session.Click(browser.FramePath{name}, logoutButtonSel); err == nil {
					clicked = true
					break
				}
			}
		}
		if !clicked && attempt < 3 {
			log.Debug("ログアウトボタンを探しています", "attempt", attempt)
			time.Sleep(popupSettleWait)
		}
	}
	if !clicked {
		return fmt.Errorf("ログアウトボタンが見つかりません: %w", browser.ErrElementNotFound)
	}

	// ダイアログが出ない場合もログアウト成功として扱う
	accepted, err := session.AcceptDialog(dialogGrace)
	if err != nil {
		return fmt.Errorf("ログアウト確認の処理に失敗: %w", err)
	}
	if accepted {
		log.Debug("ログアウト確認ダイアログを受諾しました")
	}
	log.Info("ログアウトしました")
	return nil
}

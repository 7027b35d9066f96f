// Package browser はポータル操作に必要なブラウザ能力の境界です。
// フレーム文脈は暗黙のグローバル状態ではなく、呼び出しごとに
// FramePath として明示的に渡します。実装は呼び出しの内側で
// トップ文書→フレームへ降りて、戻ってから返ります。
package browser

import (
	"errors"
	"time"
)

var (
	// ErrElementNotFound は期待した要素がその時点で見つからないことを
	// 示します (フレーム文脈ずれ・描画遅延)。再試行可能。
	ErrElementNotFound = errors.New("要素が見つかりません")
	// ErrWindowGone は期待したウィンドウハンドルが既に閉じられている
	// ことを示します。
	ErrWindowGone = errors.New("ウィンドウが存在しません")
)

// FramePath はトップ文書からのフレーム名の並びです。空ならトップ文書。
type FramePath []string

// TopDocument はトップ文書を指す空のフレームパスです。
var TopDocument = FramePath{}

// Session は1ブラウザセッション分の操作能力です。実装は単一ゴルーチン
// からの利用を前提とします。
type Session interface {
	// ウィンドウ操作。ハンドルは実装固有の不透明な文字列。
	Windows() ([]string, error)
	CurrentWindow() (string, error)
	SwitchWindow(handle string) error
	CloseWindow(handle string) error

	// Navigate は現在のウィンドウ (無ければ新規) で指定URLを開きます。
	Navigate(url string) error

	// Address は現在のウィンドウのURLです。
	Address() (string, error)

	// Reload は現在のウィンドウを完全に再読み込みします。
	Reload() error
	// WaitReady は文書の読み込み完了を上限付きで待ちます。
	WaitReady(timeout time.Duration) error
	// DocumentReady は文書が読み込み済みかを即時判定します。
	DocumentReady() (bool, error)

	// フレーム文脈付きの要素操作。
	Find(frame FramePath, selector string) (bool, error)
	Click(frame FramePath, selector string) error
	Input(frame FramePath, selector, text string) error
	Text(frame FramePath, selector string) (string, error)
	HTML(frame FramePath, selector string) (string, error)
	// ChildFrames は指定フレーム直下のフレーム名を列挙します。
	ChildFrames(frame FramePath) ([]string, error)

	// AcceptDialog は猶予時間内にネイティブ確認ダイアログが現れれば
	// 受諾して true を返します。現れなければ false (エラーではない)。
	AcceptDialog(grace time.Duration) (bool, error)

	// WaitDownload は直前に開始したダウンロードの完了を待ち、
	// 保存したファイルパスを返します。
	WaitDownload(dir string, timeout time.Duration) (string, error)

	Close() error
}

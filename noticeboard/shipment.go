package noticeboard

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fudostock/browser"
)

// 出庫連携画面の操作対象。再計算ボタンはトップ文書か1階層下の
// フレームのどちらかに現れる。
const (
	recalcSelector  = "#btnSaikeisan"
	confirmSelector = "#btnSyukkoKakutei"
)

// ShipmentState は出庫連携シーケンスの進行状態です。
type ShipmentState int

const (
	StateIdle ShipmentState = iota
	StateNoticeOpened
	StateShipmentTriggered
	StateMainWindowActive
	StateTargetScreenConfirmed
	StateRecalculated
	StateShipmentConfirmed
	StateFailed
)

func (s ShipmentState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateNoticeOpened:
		return "NoticeOpened"
	case StateShipmentTriggered:
		return "ShipmentTriggered"
	case StateMainWindowActive:
		return "MainWindowActive"
	case StateTargetScreenConfirmed:
		return "TargetScreenConfirmed"
	case StateRecalculated:
		return "Recalculated"
	case StateShipmentConfirmed:
		return "ShipmentConfirmed"
	default:
		return "Failed"
	}
}

// ErrShipmentExhausted は全試行が失敗したことを示します。バッチは
// この通知を未処理として記録し、次の通知へ進みます。
var ErrShipmentExhausted = errors.New("出庫連携が規定回数内に完了しませんでした")

// ShipmentMachine はマッチング通知1件に対する出庫連携シーケンスです。
//
// 出庫連携リンクは普通のリンクではなく、通知ウィンドウを閉じつつ
// メインウィンドウの内容を対象画面に差し替える副作用トリガで、完了は
// 「別の」ウィンドウでしか観測できない。そのためトリガ前にメイン
// ウィンドウのハンドルとアドレスを必ず記録しておく。
type ShipmentMachine struct {
	session browser.Session
	log     *slog.Logger

	// MaxAttempts はシーケンス全体の試行上限。2回目以降は通知を開く
	// 手順を飛ばしてメインウィンドウ復帰から再開する (通知は一覧から
	// 消えていて再取得できないため)。
	MaxAttempts  int
	ElementWait  time.Duration
	DialogGrace  time.Duration
	RetryBackoff time.Duration
	PollInterval time.Duration
}

func NewShipmentMachine(session browser.Session, log *slog.Logger) *ShipmentMachine {
	if log == nil {
		log = slog.Default()
	}
	return &ShipmentMachine{
		session:      session,
		log:          log,
		MaxAttempts:  3,
		ElementWait:  10 * time.Second,
		DialogGrace:  2 * time.Second,
		RetryBackoff: 2 * time.Second,
		PollInterval: 500 * time.Millisecond,
	}
}

// Execute はマッチング通知の行から出庫連携を完了まで進めます。
// 失敗は error で返し、panic しません。
func (m *ShipmentMachine) Execute(row NoticeRow) error {
	mainWindow, err := m.session.CurrentWindow()
	if err != nil {
		return fmt.Errorf("メインウィンドウの記録に失敗: %w", err)
	}
	addressBefore, err := m.session.Address()
	if err != nil {
		return fmt.Errorf("トリガ前アドレスの記録に失敗: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= m.MaxAttempts; attempt++ {
		if attempt > 1 {
			m.log.Warn("出庫連携を再試行します",
				"attempt", attempt, "title", row.Title, "lastError", lastErr)
			time.Sleep(m.RetryBackoff * time.Duration(attempt-1))
		}

		state, err := m.runAttempt(row, mainWindow, addressBefore, attempt)
		if err == nil {
			m.log.Info("出庫連携が完了しました", "title", row.Title, "attempt", attempt)
			return nil
		}
		lastErr = err
		m.log.Warn("出庫連携の試行が失敗しました",
			"attempt", attempt, "failedState", state.String(), "error", err)
	}
	return fmt.Errorf("%w (試行%d回, 最終エラー: %v)", ErrShipmentExhausted, m.MaxAttempts, lastErr)
}

// runAttempt は1回分の試行です。失敗した状態と原因を返します。
func (m *ShipmentMachine) runAttempt(row NoticeRow, mainWindow, addressBefore string, attempt int) (ShipmentState, error) {
	state := StateIdle

	// 通知を開いてトリガを踏むのは初回だけ。2回目以降は既に発火済みで、
	// 通知も一覧から消えているため繰り返せない。
	if attempt == 1 {
		_, noticeWindow, err := OpenNoticeDetail(m.session, row)
		if err != nil {
			return state, fmt.Errorf("通知詳細を開けません: %w", err)
		}
		state = StateNoticeOpened

		// 出庫連携トリガ。通知ウィンドウが閉じ、メインウィンドウが
		// 対象画面へ遷移する。
		if err := m.session.Click(browser.TopDocument, shipmentTriggerSelector); err != nil {
			return state, fmt.Errorf("出庫連携リンクを押せません: %w", err)
		}
		state = StateShipmentTriggered
		_ = noticeWindow // トリガが閉じるので明示クローズ不要
	} else {
		state = StateShipmentTriggered
	}

	// 通知ウィンドウが閉じた後の「現在のウィンドウ」は不定。記録した
	// メインウィンドウへ明示的に戻る。
	if err := m.switchToMainWindow(mainWindow); err != nil {
		return state, err
	}
	state = StateMainWindowActive

	recalcFrame, err := m.waitTargetScreen(addressBefore)
	if err != nil {
		return state, err
	}
	state = StateTargetScreenConfirmed

	// 再計算は再実行に寛容な操作
	if err := m.session.Click(recalcFrame, recalcSelector); err != nil {
		return state, fmt.Errorf("再計算ボタンを押せません: %w", err)
	}
	state = StateRecalculated

	if err := m.session.Click(recalcFrame, confirmSelector); err != nil {
		return state, fmt.Errorf("出庫確定ボタンを押せません: %w", err)
	}

	// 確認ダイアログは出ないこともある。猶予内に出なければそのまま成功。
	accepted, err := m.session.AcceptDialog(m.DialogGrace)
	if err != nil {
		return state, fmt.Errorf("確認ダイアログの処理に失敗: %w", err)
	}
	if accepted {
		m.log.Debug("確認ダイアログを受諾しました", "title", row.Title)
	}
	return StateShipmentConfirmed, nil
}

// switchToMainWindow は記録済みハンドルへ戻ります。ハンドルが既に
// 失われている場合は先頭の生存ウィンドウへフォールバックします。
func (m *ShipmentMachine) switchToMainWindow(mainWindow string) error {
	err := m.session.SwitchWindow(mainWindow)
	if err == nil {
		return nil
	}
	if !errors.Is(err, browser.ErrWindowGone) {
		return fmt.Errorf("メインウィンドウへの復帰に失敗: %w", err)
	}

	m.log.Warn("記録したメインウィンドウが失われています。先頭ウィンドウで続行します")
	handles, werr := m.session.Windows()
	if werr != nil || len(handles) == 0 {
		return fmt.Errorf("復帰先ウィンドウがありません: %w", browser.ErrWindowGone)
	}
	return m.session.SwitchWindow(handles[0])
}

// waitTargetScreen は対象画面の準備完了を上限付きで待ちます。
// 条件は3つすべて: (a) アドレスがトリガ前と異なる (b) 文書の読み込みが
// 完了している (c) 再計算ボタンがトップ文書または直下フレームのどこかで
// 見つかる。見つかったフレームパスを返します。
func (m *ShipmentMachine) waitTargetScreen(addressBefore string) (browser.FramePath, error) {
	deadline := time.Now().Add(m.ElementWait)
	for time.Now().Before(deadline) {
		addr, err := m.session.Address()
		if err == nil && addr != addressBefore {
			if ready, err := m.session.DocumentReady(); err == nil && ready {
				if frame, ok := m.locateRecalcControl(); ok {
					return frame, nil
				}
			}
		}
		time.Sleep(m.PollInterval)
	}
	return nil, fmt.Errorf("対象画面の準備完了を確認できません: %w", browser.ErrElementNotFound)
}

// locateRecalcControl はトップ文書→直下フレームの順の幅優先で
// 再計算ボタンを探します。1階層で実運用上は十分。
func (m *ShipmentMachine) locateRecalcControl() (browser.FramePath, bool) {
	if found, err := m.session.Find(browser.TopDocument, recalcSelector); err == nil && found {
		return browser.TopDocument, true
	}
	frames, err := m.session.ChildFrames(browser.TopDocument)
	if err != nil {
		return nil, false
	}
	for _, name := range frames {
		path := browser.FramePath{name}
		if found, err := m.session.Find(path, recalcSelector); err == nil && found {
			return path, true
		}
	}
	return nil, false
}

package browser

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// RodSession は go-rod による Session 実装です。
type RodSession struct {
	browser *rod.Browser
	current *rod.Page
	log     *slog.Logger

	// dialogSeen はダイアログ受諾の通知。直近1件だけ保持できれば足りる。
	dialogSeen chan struct{}
	armed      map[proto.TargetTargetID]bool
}

// NewRodSession はブラウザを起動してセッションを開きます。
// Leakless(false) はセキュリティソフト対策 (誤検知でプロセスが殺される)。
func NewRodSession(headless bool, log *slog.Logger) (*RodSession, error) {
	if log == nil {
		log = slog.Default()
	}

	var browser *rod.Browser
	err := rod.Try(func() {
		u := launcher.New().
			Headless(headless).
			Leakless(false).
			MustLaunch()
		browser = rod.New().ControlURL(u).MustConnect()
	})
	if err != nil {
		return nil, fmt.Errorf("ブラウザの起動に失敗: %w", err)
	}

	s := &RodSession{
		browser:    browser,
		log:        log,
		dialogSeen: make(chan struct{}, 1),
		armed:      make(map[proto.TargetTargetID]bool),
	}
	return s, nil
}

// Navigate は現在のウィンドウ (無ければ新規) で指定URLを開きます。
func (s *RodSession) Navigate(url string) error {
	return rod.Try(func() {
		if s.current == nil {
			s.current = s.browser.MustPage(url)
		} else {
			s.current.MustNavigate(url)
		}
		s.current.MustWaitLoad()
		s.armDialogHandler(s.current)
	})
}

// armDialogHandler はページごとに1度だけダイアログ自動受諾を仕込みます。
func (s *RodSession) armDialogHandler(page *rod.Page) {
	id := page.TargetID
	if s.armed[id] {
		return
	}
	s.armed[id] = true
	go func() {
		defer func() { _ = recover() }() // ページクローズで wait が落ちても無視
		for {
			wait, handle := page.HandleDialog()
			wait()
			_ = handle(&proto.PageHandleJavaScriptDialog{Accept: true})
			select {
			case s.dialogSeen <- struct{}{}:
			default:
			}
		}
	}()
}

func (s *RodSession) Windows() ([]string, error) {
	pages, err := s.browser.Pages()
	if err != nil {
		return nil, fmt.Errorf("ウィンドウ一覧の取得に失敗: %w", err)
	}
	handles := make([]string, 0, len(pages))
	for _, p := range pages {
		handles = append(handles, string(p.TargetID))
	}
	return handles, nil
}

func (s *RodSession) CurrentWindow() (string, error) {
	if s.current == nil {
		return "", ErrWindowGone
	}
	return string(s.current.TargetID), nil
}

func (s *RodSession) pageByHandle(handle string) (*rod.Page, error) {
	pages, err := s.browser.Pages()
	if err != nil {
		return nil, fmt.Errorf("ウィンドウ一覧の取得に失敗: %w", err)
	}
	for _, p := range pages {
		if string(p.TargetID) == handle {
			return p, nil
		}
	}
	return nil, ErrWindowGone
}

func (s *RodSession) SwitchWindow(handle string) error {
	page, err := s.pageByHandle(handle)
	if err != nil {
		return err
	}
	s.current = page
	s.armDialogHandler(page)
	return nil
}

func (s *RodSession) CloseWindow(handle string) error {
	page, err := s.pageByHandle(handle)
	if err != nil {
		return err
	}
	delete(s.armed, page.TargetID)
	return page.Close()
}

func (s *RodSession) Address() (string, error) {
	if s.current == nil {
		return "", ErrWindowGone
	}
	info, err := s.current.Info()
	if err != nil {
		return "", fmt.Errorf("アドレスの取得に失敗: %w", err)
	}
	return info.URL, nil
}

func (s *RodSession) Reload() error {
	if s.current == nil {
		return ErrWindowGone
	}
	return rod.Try(func() {
		s.current.MustReload()
		s.current.MustWaitLoad()
	})
}

func (s *RodSession) WaitReady(timeout time.Duration) error {
	if s.current == nil {
		return ErrWindowGone
	}
	err := rod.Try(func() {
		s.current.Timeout(timeout).MustWaitLoad()
	})
	if err != nil {
		return fmt.Errorf("文書の読み込み完了を確認できません: %w", err)
	}
	return nil
}

func (s *RodSession) DocumentReady() (bool, error) {
	if s.current == nil {
		return false, ErrWindowGone
	}
	res, err := s.current.Eval(`() => document.readyState`)
	if err != nil {
		return false, fmt.Errorf("readyState の取得に失敗: %w", err)
	}
	return res.Value.Str() == "complete", nil
}

// frameSelector はフレーム名またはidで frame/iframe を探すセレクタです。
func frameSelector(name string) string {
	return fmt.Sprintf(
		`frame[name=%q], iframe[name=%q], frame[id=%q], iframe[id=%q]`,
		name, name, name, name)
}

// resolveFrame はトップ文書から FramePath を順に降りた *rod.Page を返します。
// 呼び出しごとに必ずトップから辿り直すことで、文脈の取り残しを防ぎます。
func (s *RodSession) resolveFrame(frame FramePath) (*rod.Page, error) {
	if s.current == nil {
		return nil, ErrWindowGone
	}
	page := s.current
	for _, name := range frame {
		el, err := page.Sleeper(rod.NotFoundSleeper).Element(frameSelector(name))
		if err != nil {
			return nil, fmt.Errorf("フレーム %s: %w", name, ErrElementNotFound)
		}
		sub, err := el.Frame()
		if err != nil {
			return nil, fmt.Errorf("フレーム %s への切り替えに失敗: %w", name, err)
		}
		page = sub
	}
	return page, nil
}

func (s *RodSession) element(frame FramePath, selector string) (*rod.Element, error) {
	page, err := s.resolveFrame(frame)
	if err != nil {
		return nil, err
	}
	el, err := page.Sleeper(rod.NotFoundSleeper).Element(selector)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", selector, ErrElementNotFound)
	}
	return el, nil
}

func (s *RodSession) Find(frame FramePath, selector string) (bool, error) {
	page, err := s.resolveFrame(frame)
	if err != nil {
		return false, err
	}
	has, _, err := page.Has(selector)
	if err != nil {
		return false, fmt.Errorf("要素の探索に失敗 (%s): %w", selector, err)
	}
	return has, nil
}

func (s *RodSession) Click(frame FramePath, selector string) error {
	el, err := s.element(frame, selector)
	if err != nil {
		return err
	}
	// 以前の手順で受諾したダイアログの通知が残っていると、この
	// クリック起因のダイアログと区別できなくなるため捨てる。
	s.drainDialogSeen()
	return rod.Try(func() { el.MustClick() })
}

func (s *RodSession) drainDialogSeen() {
	select {
	case <-s.dialogSeen:
	default:
	}
}

func (s *RodSession) Input(frame FramePath, selector, text string) error {
	el, err := s.element(frame, selector)
	if err != nil {
		return err
	}
	return rod.Try(func() {
		el.MustSelectAllText().MustInput(text)
	})
}

func (s *RodSession) Text(frame FramePath, selector string) (string, error) {
	el, err := s.element(frame, selector)
	if err != nil {
		return "", err
	}
	return el.Text()
}

func (s *RodSession) HTML(frame FramePath, selector string) (string, error) {
	el, err := s.element(frame, selector)
	if err != nil {
		return "", err
	}
	return el.HTML()
}

func (s *RodSession) ChildFrames(frame FramePath) ([]string, error) {
	page, err := s.resolveFrame(frame)
	if err != nil {
		return nil, err
	}
	els, err := page.Elements("frame, iframe")
	if err != nil {
		return nil, fmt.Errorf("フレーム一覧の取得に失敗: %w", err)
	}
	var names []string
	for _, el := range els {
		name, _ := el.Attribute("name")
		if name == nil || *name == "" {
			name, _ = el.Attribute("id")
		}
		if name != nil && *name != "" {
			names = append(names, *name)
		}
	}
	return names, nil
}

func (s *RodSession) AcceptDialog(grace time.Duration) (bool, error) {
	// 受諾自体は armDialogHandler が行う。ここでは直近の Click 以降に
	// ダイアログが観測されたかだけを報告する。
	select {
	case <-s.dialogSeen:
		return true, nil
	case <-time.After(grace):
		return false, nil
	}
}

// WaitDownload はダウンロードフォルダを監視し、新しく完成したファイルの
// パスを返します。書き込み途中 (.crdownload) は完成と見なしません。
func (s *RodSession) WaitDownload(dir string, timeout time.Duration) (string, error) {
	before, err := snapshotDir(dir)
	if err != nil {
		return "", err
	}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		time.Sleep(500 * time.Millisecond)
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() || strings.HasSuffix(name, ".crdownload") || strings.HasSuffix(name, ".tmp") {
				continue
			}
			if _, seen := before[name]; !seen {
				return filepath.Join(dir, name), nil
			}
		}
	}
	return "", fmt.Errorf("ダウンロードの完了を確認できませんでした (%s)", dir)
}

func snapshotDir(dir string) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("ダウンロードフォルダの読み取りに失敗: %w", err)
	}
	for _, e := range entries {
		out[e.Name()] = struct{}{}
	}
	return out, nil
}

func (s *RodSession) Close() error {
	if s.browser == nil {
		return nil
	}
	return s.browser.Close()
}

package portal

import (
	"fmt"
	"log/slog"
	"time"

	"fudostock/browser"
	"fudostock/printer"
)

// バッチ帳票の起動ボタン。画像ボタンしか無いため src 属性で特定する。
const (
	dailyInventoryButton = `input[type="image"][src*="00_getuji.gif"]`
	autoOrderButton      = `input[type="image"][src*="00_hattyu.gif"]`
	printButtonSelector  = `input[type="image"][src*="00_print.gif"]`

	jobTransitionWait = 3 * time.Second
	downloadTimeout   = 60 * time.Second
)

// BatchJob は月次処理・自動発注など、サーバー側で帳票を集計させて
// PDFを受け取る一連の操作です。
type BatchJob struct {
	session     browser.Session
	downloadDir string
	log         *slog.Logger

	// PrintRetryDelays は帳票ボタン探索の再試行間隔。サーバー側の集計は
	// 進捗が観測できないため、5秒→30秒→300秒と段階的に延ばして待つ。
	PrintRetryDelays []time.Duration
}

func NewBatchJob(session browser.Session, downloadDir string, retryDelays []time.Duration, log *slog.Logger) *BatchJob {
	if log == nil {
		log = slog.Default()
	}
	if len(retryDelays) == 0 {
		retryDelays = []time.Duration{5 * time.Second, 30 * time.Second, 300 * time.Second}
	}
	return &BatchJob{
		session:          session,
		downloadDir:      downloadDir,
		log:              log,
		PrintRetryDelays: retryDelays,
	}
}

// RunDailyInventory は毎日在庫 (月次処理) の帳票を取得します。
// 戻り値はダウンロードしたPDFのパス。
func (j *BatchJob) RunDailyInventory() (string, error) {
	return j.run("毎日在庫", dailyInventoryButton)
}

// RunAutoOrder は自動発注の帳票を取得します。
func (j *BatchJob) RunAutoOrder() (string, error) {
	return j.run("自動発注", autoOrderButton)
}

func (j *BatchJob) run(name, startButton string) (string, error) {
	j.log.Info("バッチ帳票を開始します", "job", name)

	if err := j.session.Click(browser.TopDocument, startButton); err != nil {
		return "", fmt.Errorf("%sボタンが見つかりません: %w", name, err)
	}
	time.Sleep(jobTransitionWait) // ページ遷移を待つ

	// 集計完了まで帳票ボタンは現れない。段階的に延ばしながら探し直す。
	var printed bool
	for i, delay := range j.PrintRetryDelays {
		found, err := j.session.Find(browser.TopDocument, printButtonSelector)
		if err == nil && found {
			if err := j.session.Click(browser.TopDocument, printButtonSelector); err == nil {
				printed = true
				break
			}
		}
		j.log.Info("帳票の集計完了を待っています", "job", name,
			"attempt", i+1, "nextWait", delay.String())
		time.Sleep(delay)
	}
	if !printed {
		// 最後の待機後にもう1度だけ試す
		if err := j.session.Click(browser.TopDocument, printButtonSelector); err != nil {
			return "", fmt.Errorf("%sの帳票ボタンが見つかりません: %w", name, err)
		}
	}

	path, err := j.session.WaitDownload(j.downloadDir, downloadTimeout)
	if err != nil {
		// ダウンロード自体は完了していて監視だけ取り逃すことがある。
		// フォルダ内の最新PDFで補う。
		latest, lerr := printer.LatestPDF(j.downloadDir)
		if lerr != nil || latest == "" {
			return "", fmt.Errorf("%sのPDFを取得できません: %w", name, err)
		}
		j.log.Warn("ダウンロード監視が完了を捉えられなかったため最新PDFを使います",
			"job", name, "path", latest)
		path = latest
	}
	j.log.Info("PDFをダウンロードしました", "job", name, "path", path)
	return path, nil
}

// RunAndPrint は帳票を取得してそのまま印刷します。プリンタ名が空なら
// 既定のプリンタを使います。
func (j *BatchJob) RunAndPrint(runner func() (string, error), printerName string) error {
	path, err := runner()
	if err != nil {
		return err
	}
	if err := printer.PrintPDF(path, printerName, j.log); err != nil {
		return fmt.Errorf("印刷に失敗: %w", err)
	}
	return nil
}

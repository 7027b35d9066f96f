// Package printer はダウンロード済みPDFの特定と印刷ジョブの送信です。
// 印刷は OS ごとの外部コマンドに委譲します。
package printer

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

const printCommandTimeout = 60 * time.Second

// LatestPDF はダウンロードフォルダ内で最も新しいPDFを返します。
// 見つからない場合は空文字 (エラーではない)。
func LatestPDF(downloadDir string) (string, error) {
	entries, err := os.ReadDir(downloadDir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("ダウンロードフォルダの読み取りに失敗: %w", err)
	}

	var latest string
	var latestMod time.Time
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if latest == "" || info.ModTime().After(latestMod) {
			latest = filepath.Join(downloadDir, e.Name())
			latestMod = info.ModTime()
		}
	}
	return latest, nil
}

// Windows の PDF ビューア候補。見つかったものを使う。
var windowsViewerPaths = []string{
	`C:\Program Files\Adobe\Acrobat DC\Acrobat\Acrobat.exe`,
	`C:\Program Files (x86)\Adobe\Acrobat DC\Acrobat\Acrobat.exe`,
	`C:\Program Files\Adobe\Acrobat Reader DC\Reader\AcroRd32.exe`,
	`C:\Program Files (x86)\Adobe\Acrobat Reader DC\Reader\AcroRd32.exe`,
	`C:\Program Files\SumatraPDF\SumatraPDF.exe`,
	`C:\Program Files (x86)\SumatraPDF\SumatraPDF.exe`,
}

// PrintPDF はPDFを印刷します。printerName が空なら既定のプリンタ。
func PrintPDF(pdfPath, printerName string, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	if pdfPath == "" {
		return fmt.Errorf("印刷するPDFファイルが指定されていません")
	}
	if _, err := os.Stat(pdfPath); err != nil {
		return fmt.Errorf("印刷するPDFファイルが見つかりません (%s): %w", pdfPath, err)
	}

	cmd, err := buildPrintCommand(pdfPath, printerName)
	if err != nil {
		return err
	}

	log.Info("印刷ジョブを送信します", "file", filepath.Base(pdfPath), "printer", printerName)
	done := make(chan error, 1)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("印刷コマンドの起動に失敗: %w", err)
	}
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("印刷コマンドがエラー終了しました: %w", err)
		}
	case <-time.After(printCommandTimeout):
		_ = cmd.Process.Kill()
		return fmt.Errorf("印刷処理がタイムアウトしました: %s", pdfPath)
	}

	log.Info("印刷ジョブを送信しました", "file", filepath.Base(pdfPath))
	return nil
}

func buildPrintCommand(pdfPath, printerName string) (*exec.Cmd, error) {
	switch runtime.GOOS {
	case "windows":
		viewer := ""
		for _, p := range windowsViewerPaths {
			if _, err := os.Stat(p); err == nil {
				viewer = p
				break
			}
		}
		if viewer == "" {
			return nil, fmt.Errorf("PDFビューアが見つかりません (Adobe Acrobat または SumatraPDF を推奨)")
		}
		if strings.Contains(viewer, "SumatraPDF") {
			if printerName != "" {
				return exec.Command(viewer, "-print-to", printerName, "-silent", pdfPath), nil
			}
			return exec.Command(viewer, "-print-to-default", "-silent", pdfPath), nil
		}
		// Acrobat: /t は印刷後に自動で閉じる
		if printerName != "" {
			return exec.Command(viewer, "/t", pdfPath, printerName), nil
		}
		return exec.Command(viewer, "/t", pdfPath), nil
	default:
		// macOS / Linux は CUPS の lp に任せる
		if printerName != "" {
			return exec.Command("lp", "-d", printerName, pdfPath), nil
		}
		return exec.Command("lp", pdfPath), nil
	}
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"

	"fudostock/accounts"
	"fudostock/browser"
	"fudostock/config"
	"fudostock/database"
	"fudostock/ledger"
	"fudostock/noticeboard"
	"fudostock/parsers"
	"fudostock/portal"
)

func main() {
	root := &cobra.Command{
		Use:   "fudostock",
		Short: "薬局ポータルの掲示板処理・帳票取得を自動化するツール",
	}
	root.AddCommand(
		newRunCmd(),
		newJobsCmd(),
		newAccountsCmd(),
		newStoremapCmd(),
	)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// loginSession はアカウントを解決し、ブラウザを起動してログインまで
// 済ませます。呼び出し側は Close とログアウトを行います。
func loginSession(userID string, headless bool, logger *slog.Logger) (*browser.RodSession, accounts.Account, error) {
	all, err := accounts.LoadAccounts()
	if err != nil {
		return nil, accounts.Account{}, err
	}
	if len(all) == 0 {
		return nil, accounts.Account{}, fmt.Errorf("accounts.json にアカウントがありません。`fudostock accounts add` で登録してください")
	}

	var account accounts.Account
	if userID != "" {
		found := false
		account, found = accounts.FindByUserID(all, userID)
		if !found {
			return nil, accounts.Account{}, fmt.Errorf("ユーザーID %s のアカウントがありません", userID)
		}
	} else {
		// 未指定なら最後にログインしたアカウント
		account = accounts.SortByLastLogin(all)[0]
	}

	if remaining, ok := account.PasswordDaysRemaining(time.Now()); ok {
		switch {
		case remaining <= 0:
			logger.Warn("パスワードの有効期限が切れています。ポータルで更新してください",
				"userId", account.UserID, "overdueDays", -remaining)
		case remaining <= 5:
			logger.Warn("パスワードの有効期限が近づいています",
				"userId", account.UserID, "remainingDays", remaining)
		}
	} else {
		logger.Warn("パスワード更新日が記録されていません", "userId", account.UserID)
	}

	session, err := browser.NewRodSession(headless, logger)
	if err != nil {
		return nil, account, err
	}
	if err := portal.Login(session, account, logger); err != nil {
		_ = session.Close()
		return nil, account, err
	}
	return session, account, nil
}

func newRunCmd() *cobra.Command {
	var userID string
	var headless bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "掲示板の未読メッセージを処理する",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

			session, account, err := loginSession(userID, headless, logger)
			if err != nil {
				return err
			}
			defer session.Close()
			defer func() {
				if err := portal.Logout(session, cfg.DialogGrace(), logger); err != nil {
					logger.Warn("ログアウトに失敗しました", "error", err)
				}
			}()

			storeID := account.StoreID()
			if cfg.StoreID != "" {
				storeID = cfg.StoreID
			}
			if storeID == "" {
				return fmt.Errorf("店舗IDを特定できません (ユーザーID形式または設定を確認してください)")
			}

			if err := portal.OpenNoticeBoard(session, cfg.ElementWait()); err != nil {
				return err
			}

			store := ledger.NewStore(cfg.DataDir, logger)
			classifier := noticeboard.NewClassifier(cfg.MessageProcessing)
			dispatcher := noticeboard.NewDispatcher(session, store, storeID, logger)
			controller := noticeboard.NewController(session, classifier, dispatcher, cfg.MaxMessageCount, logger)

			startedAt := time.Now()
			result, err := controller.Run(context.Background())
			if err != nil {
				return err
			}

			archiveRun(cfg, storeID, startedAt, result, logger)

			fmt.Printf("処理対象 %d 件中 %d 件成功\n", result.Attempted, result.Succeeded)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "ログインに使うユーザーID (省略時は最終ログインのアカウント)")
	cmd.Flags().BoolVar(&headless, "headless", false, "ブラウザを非表示で実行する")
	return cmd
}

// archiveRun は実行履歴をSQLiteへ記録します。失敗しても処理結果は
// 既に確定しているため、警告に留めます。
func archiveRun(cfg config.Config, storeID string, startedAt time.Time, result noticeboard.BatchResult, logger *slog.Logger) {
	db, err := sqlx.Open("sqlite3", cfg.HistoryDBPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		logger.Warn("履歴DBを開けません", "error", err)
		return
	}
	defer db.Close()

	if err := database.InitHistoryDB(db); err != nil {
		logger.Warn("履歴DBの初期化に失敗しました", "error", err)
		return
	}
	runID, err := database.ArchiveBatchRun(db, storeID, startedAt, time.Now(), result)
	if err != nil {
		logger.Warn("実行履歴の記録に失敗しました", "error", err)
		return
	}
	logger.Info("実行履歴を記録しました", "runId", runID)
}

func newJobsCmd() *cobra.Command {
	var userID string
	var headless bool
	var printerName string
	var doPrint bool

	cmd := &cobra.Command{
		Use:       "jobs {daily|order}",
		Short:     "毎日在庫・自動発注の帳票PDFを取得する",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"daily", "order"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

			if err := os.MkdirAll(cfg.DownloadDir, 0755); err != nil {
				return fmt.Errorf("ダウンロードフォルダの作成に失敗: %w", err)
			}

			session, _, err := loginSession(userID, headless, logger)
			if err != nil {
				return err
			}
			defer session.Close()
			defer func() {
				if err := portal.Logout(session, cfg.DialogGrace(), logger); err != nil {
					logger.Warn("ログアウトに失敗しました", "error", err)
				}
			}()

			job := portal.NewBatchJob(session, cfg.DownloadDir, cfg.PrintRetryDelays(), logger)
			runner := job.RunDailyInventory
			if args[0] == "order" {
				runner = job.RunAutoOrder
			}

			if doPrint {
				return job.RunAndPrint(runner, printerName)
			}
			path, err := runner()
			if err != nil {
				return err
			}
			fmt.Printf("PDFを保存しました: %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "ログインに使うユーザーID")
	cmd.Flags().BoolVar(&headless, "headless", false, "ブラウザを非表示で実行する")
	cmd.Flags().BoolVar(&doPrint, "print", false, "ダウンロード後にそのまま印刷する")
	cmd.Flags().StringVar(&printerName, "printer", "", "印刷に使うプリンタ名 (省略時は既定)")
	return cmd
}

func newAccountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "店舗アカウントを管理する",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "登録済みアカウントの一覧とパスワード残日数を表示する",
		RunE: func(cmd *cobra.Command, args []string) error {
			all, err := accounts.LoadAccounts()
			if err != nil {
				return err
			}
			if len(all) == 0 {
				fmt.Println("登録済みアカウントがありません")
				return nil
			}
			now := time.Now()
			for _, a := range accounts.SortByLastLogin(all) {
				line := fmt.Sprintf("%s (%s)", a.StoreName, a.UserID)
				if remaining, ok := a.PasswordDaysRemaining(now); ok {
					line += fmt.Sprintf(" パスワード残り%d日", remaining)
				} else {
					line += " パスワード更新日未記録"
				}
				fmt.Println(line)
			}
			return nil
		},
	}

	var storeName, userID, password string
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "アカウントを追加する",
		RunE: func(cmd *cobra.Command, args []string) error {
			if storeName == "" || userID == "" || password == "" {
				return fmt.Errorf("--store --user --password をすべて指定してください")
			}
			if err := accounts.AddAccount(storeName, userID, password, time.Now()); err != nil {
				return err
			}
			fmt.Printf("アカウント '%s' を追加しました\n", storeName)
			return nil
		},
	}
	addCmd.Flags().StringVar(&storeName, "store", "", "店舗名")
	addCmd.Flags().StringVar(&userID, "user", "", "ユーザーID (例: TRH170501)")
	addCmd.Flags().StringVar(&password, "password", "", "パスワード")

	var newPassword string
	passwdCmd := &cobra.Command{
		Use:   "passwd <user_id>",
		Short: "パスワードを更新する",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if newPassword == "" {
				return fmt.Errorf("--password を指定してください")
			}
			updated, err := accounts.UpdatePassword(args[0], newPassword, time.Now())
			if err != nil {
				return err
			}
			if !updated {
				return fmt.Errorf("ユーザーID %s のアカウントがありません", args[0])
			}
			fmt.Println("パスワードを更新しました")
			return nil
		},
	}
	passwdCmd.Flags().StringVar(&newPassword, "password", "", "新しいパスワード")

	cmd.AddCommand(listCmd, addCmd, passwdCmd)
	return cmd
}

func newStoremapCmd() *cobra.Command {
	var csvPath string

	cmd := &cobra.Command{
		Use:   "storemap <html_file>",
		Short: "店舗選択画面のHTMLから店舗マッピングCSVを更新する",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("HTMLファイルを読み込めません: %w", err)
			}
			text := parsers.DecodeJapaneseText(raw)

			mappings, err := parsers.ParseStoreSelectorHTML(strings.NewReader(text))
			if err != nil {
				return err
			}
			if len(mappings) == 0 {
				return fmt.Errorf("店舗情報が見つかりませんでした")
			}

			existing, err := parsers.LoadStoreMappingCSV(csvPath)
			if err != nil {
				return err
			}
			parsers.MergeStoreMappings(existing, mappings, time.Now())
			if err := parsers.SaveStoreMappingCSV(csvPath, existing); err != nil {
				return err
			}
			fmt.Printf("店舗マッピングを更新しました: %s (%d 件)\n", csvPath, len(existing))
			return nil
		},
	}
	cmd.Flags().StringVar(&csvPath, "out", "data/store_mapping.csv", "出力CSVパス")
	return cmd
}

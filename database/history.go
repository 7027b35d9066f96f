// Package database はバッチ実行履歴のローカルSQLiteアーカイブです。
// 記録はベストエフォートで、失敗してもバッチ処理は継続します。
package database

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"fudostock/noticeboard"
)

const historySchema = `
CREATE TABLE IF NOT EXISTS batch_runs (
	id          TEXT PRIMARY KEY,
	store_id    TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	attempted   INTEGER NOT NULL,
	succeeded   INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS run_notices (
	run_id      TEXT NOT NULL,
	received_at TEXT,
	title       TEXT NOT NULL,
	sender      TEXT,
	category    TEXT,
	succeeded   INTEGER NOT NULL,
	error       TEXT,
	FOREIGN KEY (run_id) REFERENCES batch_runs(id)
);
CREATE INDEX IF NOT EXISTS idx_run_notices_run_id ON run_notices(run_id);
`

// InitHistoryDB は履歴スキーマを適用します。
func InitHistoryDB(db *sqlx.DB) error {
	if _, err := db.Exec(historySchema); err != nil {
		return fmt.Errorf("履歴スキーマの適用に失敗: %w", err)
	}
	return nil
}

// BatchRunRecord は batch_runs の1行です。
type BatchRunRecord struct {
	ID         string `db:"id"`
	StoreID    string `db:"store_id"`
	StartedAt  string `db:"started_at"`
	FinishedAt string `db:"finished_at"`
	Attempted  int    `db:"attempted"`
	Succeeded  int    `db:"succeeded"`
}

// RunNoticeRecord は run_notices の1行です。
type RunNoticeRecord struct {
	RunID      string `db:"run_id"`
	ReceivedAt string `db:"received_at"`
	Title      string `db:"title"`
	Sender     string `db:"sender"`
	Category   string `db:"category"`
	Succeeded  bool   `db:"succeeded"`
	Error      string `db:"error"`
}

// ArchiveBatchRun はバッチ1回分の結果を記録し、採番したIDを返します。
func ArchiveBatchRun(db *sqlx.DB, storeID string, startedAt, finishedAt time.Time, result noticeboard.BatchResult) (string, error) {
	runID := uuid.NewString()

	tx, err := db.Beginx()
	if err != nil {
		return "", fmt.Errorf("履歴トランザクションの開始に失敗: %w", err)
	}
	defer tx.Rollback()

	const insertRun = `
		INSERT INTO batch_runs (id, store_id, started_at, finished_at, attempted, succeeded)
		VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := tx.Exec(insertRun, runID, storeID,
		startedAt.Format(time.RFC3339), finishedAt.Format(time.RFC3339),
		result.Attempted, result.Succeeded); err != nil {
		return "", fmt.Errorf("batch_runs への記録に失敗: %w", err)
	}

	const insertNotice = `
		INSERT INTO run_notices (run_id, received_at, title, sender, category, succeeded, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	for _, o := range result.Outcomes {
		if _, err := tx.Exec(insertNotice, runID,
			o.ReceivedAt, o.Title, o.Sender, o.Category, o.Succeeded, o.Error); err != nil {
			return "", fmt.Errorf("run_notices への記録に失敗: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("履歴トランザクションの確定に失敗: %w", err)
	}
	return runID, nil
}

// GetRecentRuns は直近の実行履歴を新しい順に返します。
func GetRecentRuns(db *sqlx.DB, storeID string, limit int) ([]BatchRunRecord, error) {
	const q = `
		SELECT id, store_id, started_at, finished_at, attempted, succeeded
		FROM batch_runs
		WHERE store_id = ?
		ORDER BY started_at DESC
		LIMIT ?`

	var records []BatchRunRecord
	if err := db.Select(&records, q, storeID, limit); err != nil {
		return nil, fmt.Errorf("実行履歴の取得に失敗: %w", err)
	}
	return records, nil
}

// GetRunNotices は1回の実行で処理した通知の内訳を返します。
func GetRunNotices(db *sqlx.DB, runID string) ([]RunNoticeRecord, error) {
	const q = `
		SELECT run_id, received_at, title, sender, category, succeeded, error
		FROM run_notices
		WHERE run_id = ?`

	var records []RunNoticeRecord
	if err := db.Select(&records, q, runID); err != nil {
		return nil, fmt.Errorf("通知内訳の取得に失敗: %w", err)
	}
	return records, nil
}

// Package ledger は店舗ごとの受信台帳 (message_stock) と放出台帳
// (immobile_stock) をJSONファイルで管理します。単一セッション前提のため
// ロックは持たず、全件読み込み→全件書き戻しで更新します。
package ledger

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"fudostock/model"
)

type MessageStockDocument struct {
	Messages []model.MessageStockEntry `json:"messages"`
}

type ImmobileStockDocument struct {
	Medicines []model.ImmobileStockEntry `json:"medicines"`
}

// Store は data ディレクトリ配下の台帳ファイル群への入出力です。
type Store struct {
	dataDir string
	log     *slog.Logger
}

func NewStore(dataDir string, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{dataDir: dataDir, log: log}
}

func (s *Store) messageStockPath(storeID string) string {
	return filepath.Join(s.dataDir, fmt.Sprintf("message_stock_%s.json", storeID))
}

func (s *Store) immobileStockPath(storeID string) string {
	return filepath.Join(s.dataDir, fmt.Sprintf("immobile_stock_%s.json", storeID))
}

// LoadMessageStock は受信台帳を読み込みます。ファイルが無ければ空の
// 既定構造を返し、エラーにしません。
func (s *Store) LoadMessageStock(storeID string) (*MessageStockDocument, error) {
	doc := &MessageStockDocument{Messages: []model.MessageStockEntry{}}
	if err := s.loadJSON(s.messageStockPath(storeID), doc); err != nil {
		return nil, err
	}
	if doc.Messages == nil {
		doc.Messages = []model.MessageStockEntry{}
	}
	return doc, nil
}

func (s *Store) SaveMessageStock(doc *MessageStockDocument, storeID string) error {
	return s.saveJSON(s.messageStockPath(storeID), doc)
}

// LoadImmobileStock は放出台帳を読み込みます。ファイルが無ければ空の
// 既定構造を返します。
func (s *Store) LoadImmobileStock(storeID string) (*ImmobileStockDocument, error) {
	doc := &ImmobileStockDocument{Medicines: []model.ImmobileStockEntry{}}
	if err := s.loadJSON(s.immobileStockPath(storeID), doc); err != nil {
		return nil, err
	}
	if doc.Medicines == nil {
		doc.Medicines = []model.ImmobileStockEntry{}
	}
	return doc, nil
}

func (s *Store) SaveImmobileStock(doc *ImmobileStockDocument, storeID string) error {
	return s.saveJSON(s.immobileStockPath(storeID), doc)
}

func (s *Store) loadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("台帳ファイルの読み込みに失敗 (%s): %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("台帳ファイルの解析に失敗 (%s): %w", path, err)
	}
	return nil
}

// saveJSON は全置換で書き戻します。日本語をエスケープせず可読な形で残す。
func (s *Store) saveJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("データフォルダの作成に失敗: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("台帳ファイルの作成に失敗 (%s): %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("台帳ファイルの書き込みに失敗 (%s): %w", path, err)
	}
	return nil
}

// AppendMessageIfAbsent は (notice_id, 薬品名, 期限) キーが未登録の場合のみ
// エントリを追加し、追加したかどうかを返します。同一通知の再解析で
// 重複が生まれないことを保証する唯一の場所です。台帳は高々数百件
// なので線形走査で足ります。
func AppendMessageIfAbsent(doc *MessageStockDocument, entry model.MessageStockEntry) bool {
	key := entry.DedupKey()
	for _, existing := range doc.Messages {
		if existing.DedupKey() == key {
			return false
		}
	}
	doc.Messages = append(doc.Messages, entry)
	return true
}

// UpdateTargetStatus は放出台帳の (medicine_id, target_store_id) を点更新
// します。どちらかが見つからない場合は台帳を変更せず false を返します。
// 遷移は pending からのみ許します。
func (s *Store) UpdateTargetStatus(storeID, medicineID, targetStoreID, newStatus, respondedAt, responseMessageID string) (bool, error) {
	doc, err := s.LoadImmobileStock(storeID)
	if err != nil {
		return false, err
	}

	for i := range doc.Medicines {
		if doc.Medicines[i].MedicineID != medicineID {
			continue
		}
		for j := range doc.Medicines[i].TargetStores {
			target := &doc.Medicines[i].TargetStores[j]
			if target.StoreID != targetStoreID {
				continue
			}
			if target.Status != model.TargetStatusPending {
				s.log.Warn("転送先ステータスは pending 以外から遷移できません",
					"medicineId", medicineID, "targetStoreId", targetStoreID, "status", target.Status)
				return false, nil
			}
			target.Status = newStatus
			target.RespondedAt = respondedAt
			if responseMessageID != "" {
				target.ResponseMessageID = responseMessageID
			}
			if err := s.SaveImmobileStock(doc, storeID); err != nil {
				return false, err
			}
			return true, nil
		}
		s.log.Warn("転送先店舗が見つかりません", "medicineId", medicineID, "targetStoreId", targetStoreID)
		return false, nil
	}
	s.log.Warn("不動在庫エントリが見つかりません", "storeId", storeID, "medicineId", medicineID)
	return false, nil
}

package parsers

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"

	"fudostock/model"
)

// ParseStoreSelectorHTML は店舗選択画面のHTML片から店舗ID・店舗名を
// 抽出します。対応する形式は2つ:
//
//	<option value='1830'>ツ)旭川末広5条店</option>
//	<span id="lblShopName" class="cssTenpoName">ツ)旭川末広5条店</span>
//
// span 形式にはIDが無いため StoreID は空のまま返します。
func ParseStoreSelectorHTML(r io.Reader) ([]model.StoreMapping, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("店舗選択HTMLの解析に失敗: %w", err)
	}

	seen := make(map[string]struct{})
	var mappings []model.StoreMapping

	doc.Find("option").Each(func(_ int, opt *goquery.Selection) {
		id, ok := opt.Attr("value")
		name := strings.TrimSpace(opt.Text())
		if !ok || id == "" || name == "" {
			return
		}
		if _, dup := seen[id+"|"+name]; dup {
			return
		}
		seen[id+"|"+name] = struct{}{}
		mappings = append(mappings, model.StoreMapping{StoreID: id, StoreName: name})
	})

	doc.Find(`span#lblShopName`).Each(func(_ int, span *goquery.Selection) {
		name := strings.TrimSpace(span.Text())
		if name == "" {
			return
		}
		if _, dup := seen["|"+name]; dup {
			return
		}
		seen["|"+name] = struct{}{}
		mappings = append(mappings, model.StoreMapping{StoreName: name})
	})

	return mappings, nil
}

// DecodeJapaneseText はUTF-8でなければShift-JISとして読み直します。
// ポータルからのエクスポートは文字コードが安定しないため。
func DecodeJapaneseText(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	decoded, _, err := transform.Bytes(japanese.ShiftJIS.NewDecoder(), data)
	if err != nil {
		return string(data)
	}
	return string(decoded)
}

var storeMappingHeader = []string{"store_id", "store_name", "user_id", "last_updated"}

// LoadStoreMappingCSV は既存の店舗マッピングを読み込みます。
// ファイルが無ければ空マップを返します。キーは店舗ID。
func LoadStoreMappingCSV(path string) (map[string]model.StoreMapping, error) {
	out := make(map[string]model.StoreMapping)

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("店舗マッピングCSVを開けません: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(SkipBOM(f))
	reader.LazyQuotes = true

	if _, err := reader.Read(); err == io.EOF {
		return out, nil
	} else if err != nil {
		return nil, fmt.Errorf("店舗マッピングCSVのヘッダー読み取りに失敗: %w", err)
	}

	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		if len(rec) < 4 || rec[0] == "" {
			continue
		}
		out[rec[0]] = model.StoreMapping{
			StoreID:     rec[0],
			StoreName:   rec[1],
			UserID:      rec[2],
			LastUpdated: rec[3],
		}
	}
	return out, nil
}

// MergeStoreMappings は新規分を既存マップへ上書きマージします。
// IDが空のエントリは既存のID付きエントリを消さないよう読み飛ばします。
func MergeStoreMappings(existing map[string]model.StoreMapping, updates []model.StoreMapping, now time.Time) {
	stamp := now.Format("2006-01-02 15:04:05")
	for _, u := range updates {
		if u.StoreID == "" {
			continue
		}
		u.LastUpdated = stamp
		if prev, ok := existing[u.StoreID]; ok && u.UserID == "" {
			u.UserID = prev.UserID
		}
		existing[u.StoreID] = u
	}
}

// SaveStoreMappingCSV は店舗ID昇順でUTF-8のCSVに書き出します。
func SaveStoreMappingCSV(path string, mappings map[string]model.StoreMapping) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("データフォルダの作成に失敗: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("店舗マッピングCSVの作成に失敗: %w", err)
	}
	defer f.Close()

	ids := make([]string, 0, len(mappings))
	for id := range mappings {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	w := csv.NewWriter(f)
	if err := w.Write(storeMappingHeader); err != nil {
		return fmt.Errorf("店舗マッピングCSVの書き込みに失敗: %w", err)
	}
	for _, id := range ids {
		m := mappings[id]
		if err := w.Write([]string{m.StoreID, m.StoreName, m.UserID, m.LastUpdated}); err != nil {
			return fmt.Errorf("店舗マッピングCSVの書き込みに失敗: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

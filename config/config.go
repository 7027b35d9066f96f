package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// メッセージ分類名 (設定キーと掲示板タイトルの対応は noticeboard 側で解決)
const (
	CategoryPurchaseInquiry  = "購入伺い"
	CategoryMatchingExpiry   = "マッチング：使用期限"
	CategoryImmobileTransfer = "不動在庫転送"
	CategoryReply            = "返信"
)

type Config struct {
	StoreID       string `json:"storeID"`
	DataDir       string `json:"dataDir"`
	DownloadDir   string `json:"downloadDir"`
	HistoryDBPath string `json:"historyDBPath"`

	// MessageProcessing は分類名→有効/無効。未指定の分類は有効扱い。
	MessageProcessing map[string]bool `json:"messageProcessing"`

	// MaxMessageCount は1回の実行で処理する未読メッセージの上限 (1〜50)。
	MaxMessageCount int `json:"maxMessageCount"`

	// 待機時間。サーバー側の集計バッチには進捗シグナルが無いため、
	// 長めの固定待ちも名前付きで持つ (マジックナンバー禁止)。
	ElementWaitSeconds     int   `json:"elementWaitSeconds"`
	DialogGraceSeconds     int   `json:"dialogGraceSeconds"`
	PrintRetryDelaySeconds []int `json:"printRetryDelaySeconds"`
}

var (
	cfg Config
	mu  sync.RWMutex
)

const configFilePath = "./fudostock_config.json"

// Categories は既定で処理対象となる4分類です。
var Categories = []string{
	CategoryPurchaseInquiry,
	CategoryMatchingExpiry,
	CategoryImmobileTransfer,
	CategoryReply,
}

func defaults() Config {
	processing := make(map[string]bool, len(Categories))
	for _, c := range Categories {
		processing[c] = true
	}
	return Config{
		DataDir:                "data",
		DownloadDir:            "downloads",
		HistoryDBPath:          "./fudostock.db",
		MessageProcessing:      processing,
		MaxMessageCount:        10,
		ElementWaitSeconds:     10,
		DialogGraceSeconds:     2,
		PrintRetryDelaySeconds: []int{5, 30, 300},
	}
}

// applyDefaults は未指定項目に既定値を補い、範囲外の値を丸めます。
func applyDefaults(c Config) Config {
	def := defaults()
	if c.DataDir == "" {
		c.DataDir = def.DataDir
	}
	if c.DownloadDir == "" {
		c.DownloadDir = def.DownloadDir
	}
	if c.HistoryDBPath == "" {
		c.HistoryDBPath = def.HistoryDBPath
	}
	if c.MessageProcessing == nil {
		c.MessageProcessing = make(map[string]bool, len(Categories))
	}
	for _, cat := range Categories {
		if _, ok := c.MessageProcessing[cat]; !ok {
			c.MessageProcessing[cat] = true
		}
	}
	if c.MaxMessageCount == 0 {
		c.MaxMessageCount = def.MaxMessageCount
	}
	if c.MaxMessageCount < 1 {
		c.MaxMessageCount = 1
	}
	if c.MaxMessageCount > 50 {
		c.MaxMessageCount = 50
	}
	if c.ElementWaitSeconds <= 0 {
		c.ElementWaitSeconds = def.ElementWaitSeconds
	}
	if c.DialogGraceSeconds <= 0 {
		c.DialogGraceSeconds = def.DialogGraceSeconds
	}
	if len(c.PrintRetryDelaySeconds) == 0 {
		c.PrintRetryDelaySeconds = def.PrintRetryDelaySeconds
	}
	return c
}

func LoadConfig() (Config, error) {
	mu.Lock()
	defer mu.Unlock()

	file, err := os.ReadFile(configFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg = defaults()
			return cfg, nil
		}
		return Config{}, err
	}

	// 実行時は未知キーを無視して読み込む (テストでは ParseStrict で検出する)
	var tempCfg Config
	if err := json.Unmarshal(file, &tempCfg); err != nil {
		return Config{}, fmt.Errorf("設定ファイルの解析に失敗: %w", err)
	}
	cfg = applyDefaults(tempCfg)
	return cfg, nil
}

// ParseStrict は未知キーをエラーにする厳格な解析です。主にテストと
// 設定ファイルの検証用。
func ParseStrict(data []byte) (Config, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var c Config
	if err := dec.Decode(&c); err != nil {
		return Config{}, fmt.Errorf("設定の厳格解析に失敗: %w", err)
	}
	return applyDefaults(c), nil
}

func SaveConfig(newCfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	newCfg = applyDefaults(newCfg)
	file, err := json.MarshalIndent(newCfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(configFilePath, file, 0644); err != nil {
		return err
	}
	cfg = newCfg
	return nil
}

func GetConfig() Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// ElementWait は要素出現待ちの上限時間です。
func (c Config) ElementWait() time.Duration {
	return time.Duration(c.ElementWaitSeconds) * time.Second
}

// DialogGrace は確認ダイアログを待つ猶予時間です。出ないことも正常。
func (c Config) DialogGrace() time.Duration {
	return time.Duration(c.DialogGraceSeconds) * time.Second
}

// PrintRetryDelays は帳票ボタン探索の再試行間隔 (集計待ちの段階的延長)。
func (c Config) PrintRetryDelays() []time.Duration {
	out := make([]time.Duration, 0, len(c.PrintRetryDelaySeconds))
	for _, s := range c.PrintRetryDelaySeconds {
		out = append(out, time.Duration(s)*time.Second)
	}
	return out
}

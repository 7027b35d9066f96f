package ledger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fudostock/model"
)

func testEntry(noticeID, name, expiry string) model.MessageStockEntry {
	return model.MessageStockEntry{
		NoticeID:        noticeID,
		SenderStoreName: "ツ)旭川7条店",
		MedicineName:    name,
		Quantity:        decimal.NewFromInt(10),
		Unit:            "錠",
		ExpiryYearMonth: expiry,
		Status:          model.MessageStatusUnprocessed,
		CreatedAt:       "2025-09-01T10:00:00",
	}
}

func TestLoadMessageStock_MissingFileReturnsEmptyDocument(t *testing.T) {
	store := NewStore(t.TempDir(), nil)

	doc, err := store.LoadMessageStock("1705")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Empty(t, doc.Messages)
}

func TestAppendMessageIfAbsent_Deduplicates(t *testing.T) {
	doc := &MessageStockDocument{}

	assert.True(t, AppendMessageIfAbsent(doc, testEntry("N1", "薬品A", "2024/01")))
	// 同一キーは追加されない
	assert.False(t, AppendMessageIfAbsent(doc, testEntry("N1", "薬品A", "2024/01")))
	require.Len(t, doc.Messages, 1)

	// 同一通知でも薬品が違えば別エントリ
	assert.True(t, AppendMessageIfAbsent(doc, testEntry("N1", "薬品B", "2024/01")))
	// 期限違いも別エントリ
	assert.True(t, AppendMessageIfAbsent(doc, testEntry("N1", "薬品A", "2024/02")))
	assert.Len(t, doc.Messages, 3)
}

func TestMessageStock_SaveLoadRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir(), nil)

	doc := &MessageStockDocument{}
	AppendMessageIfAbsent(doc, testEntry("N1", "薬品A", "2024/01"))
	AppendMessageIfAbsent(doc, testEntry("N2", "ムコダインシロップ5%", ""))
	require.NoError(t, store.SaveMessageStock(doc, "1705"))

	loaded, err := store.LoadMessageStock("1705")
	require.NoError(t, err)
	require.Len(t, loaded.Messages, 2)
	assert.Equal(t, doc.Messages[0], loaded.Messages[0])
	assert.Equal(t, doc.Messages[1], loaded.Messages[1])
}

func TestSaveMessageStock_KeepsJapaneseReadable(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, nil)

	doc := &MessageStockDocument{}
	AppendMessageIfAbsent(doc, testEntry("N1", "薬品A", "2024/01"))
	require.NoError(t, store.SaveMessageStock(doc, "1705"))

	raw, err := os.ReadFile(filepath.Join(dir, "message_stock_1705.json"))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(raw), "薬品A"), "日本語がエスケープされずに残ること")
}

func immobileDoc() *ImmobileStockDocument {
	return &ImmobileStockDocument{
		Medicines: []model.ImmobileStockEntry{
			{
				MedicineID:   "1705_20250901100000",
				MedicineName: "薬品A",
				Quantity:     decimal.NewFromInt(30),
				Unit:         "錠",
				Status:       model.ImmobileStatusActive,
				CreatedAt:    "2025-09-01T10:00:00",
				TargetStores: []model.TargetStore{
					{StoreID: "1830", StoreName: "ツ)旭川末広5条店", Status: model.TargetStatusPending},
					{StoreID: "1911", StoreName: "ツ)帯広西店", Status: model.TargetStatusPending},
				},
			},
		},
	}
}

func TestUpdateTargetStatus_PointUpdate(t *testing.T) {
	store := NewStore(t.TempDir(), nil)
	require.NoError(t, store.SaveImmobileStock(immobileDoc(), "1705"))

	ok, err := store.UpdateTargetStatus("1705", "1705_20250901100000", "1830",
		model.TargetStatusAccepted, "2025-09-02T09:00:00", "M99")
	require.NoError(t, err)
	assert.True(t, ok)

	loaded, err := store.LoadImmobileStock("1705")
	require.NoError(t, err)
	targets := loaded.Medicines[0].TargetStores
	assert.Equal(t, model.TargetStatusAccepted, targets[0].Status)
	assert.Equal(t, "M99", targets[0].ResponseMessageID)
	// もう一方の転送先は変更されない
	assert.Equal(t, model.TargetStatusPending, targets[1].Status)
}

func TestUpdateTargetStatus_MissingIDsLeaveDocumentUntouched(t *testing.T) {
	store := NewStore(t.TempDir(), nil)
	require.NoError(t, store.SaveImmobileStock(immobileDoc(), "1705"))

	cases := []struct {
		name          string
		medicineID    string
		targetStoreID string
	}{
		{"薬品IDなし", "1705_99999999999999", "1830"},
		{"転送先なし", "1705_20250901100000", "9999"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, err := store.UpdateTargetStatus("1705", tc.medicineID, tc.targetStoreID,
				model.TargetStatusRejected, "2025-09-02T09:00:00", "")
			require.NoError(t, err)
			assert.False(t, ok)

			loaded, err := store.LoadImmobileStock("1705")
			require.NoError(t, err)
			for _, target := range loaded.Medicines[0].TargetStores {
				assert.Equal(t, model.TargetStatusPending, target.Status)
			}
		})
	}
}

func TestUpdateTargetStatus_OnlyFromPending(t *testing.T) {
	store := NewStore(t.TempDir(), nil)
	require.NoError(t, store.SaveImmobileStock(immobileDoc(), "1705"))

	ok, err := store.UpdateTargetStatus("1705", "1705_20250901100000", "1830",
		model.TargetStatusAccepted, "2025-09-02T09:00:00", "")
	require.NoError(t, err)
	require.True(t, ok)

	// accepted からの再遷移は拒否される
	ok, err = store.UpdateTargetStatus("1705", "1705_20250901100000", "1830",
		model.TargetStatusRejected, "2025-09-03T09:00:00", "")
	require.NoError(t, err)
	assert.False(t, ok)

	loaded, err := store.LoadImmobileStock("1705")
	require.NoError(t, err)
	assert.Equal(t, model.TargetStatusAccepted, loaded.Medicines[0].TargetStores[0].Status)
}

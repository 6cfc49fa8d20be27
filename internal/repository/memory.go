package repository

import (
	"context"
	"fmt"
	"slices"
	"strings"

	memdb "github.com/hashicorp/go-memdb"

	"github.com/bigkaa/goartstore/identity-module/internal/domain/model"
)

const memTable = "items"

// memItem — запись in-memory таблицы.
// Объекты в memdb неизменяемы: при каждой записи вставляется новый экземпляр.
type memItem struct {
	PK   string
	SK   string
	Type string
	Data []byte

	TenantPK      string
	TenantSK      string
	ExternalPK    string
	ExternalSK    string
	InstitutionPK string
	InstitutionSK string
}

func memSchema() *memdb.DBSchema {
	partitionIndex := func(index model.Index, field string) *memdb.IndexSchema {
		return &memdb.IndexSchema{
			Name:         string(index),
			AllowMissing: true,
			Indexer:      &memdb.StringFieldIndex{Field: field},
		}
	}

	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			memTable: {
				Name: memTable,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:   "id",
						Unique: true,
						Indexer: &memdb.CompoundIndex{
							Indexes: []memdb.Indexer{
								&memdb.StringFieldIndex{Field: "PK"},
								&memdb.StringFieldIndex{Field: "SK"},
							},
						},
					},
					"type": {
						Name:    "type",
						Indexer: &memdb.StringFieldIndex{Field: "Type"},
					},
					string(model.IndexByTenant):           partitionIndex(model.IndexByTenant, "TenantPK"),
					string(model.IndexByExternalIdentity): partitionIndex(model.IndexByExternalIdentity, "ExternalPK"),
					string(model.IndexByInstitution):      partitionIndex(model.IndexByInstitution, "InstitutionPK"),
				},
			},
		},
	}
}

// memoryTable — реализация Table поверх go-memdb.
// Используется для локального запуска (IM_STORE_BACKEND=memory) и в тестах сервисов.
type memoryTable struct {
	db *memdb.MemDB
}

// NewMemoryTable создаёт in-memory примитив хранения.
func NewMemoryTable() (Table, error) {
	db, err := memdb.NewMemDB(memSchema())
	if err != nil {
		return nil, fmt.Errorf("ошибка создания in-memory таблицы: %w", err)
	}
	return &memoryTable{db: db}, nil
}

func toMemItem(rec *Record) *memItem {
	item := &memItem{
		PK:   rec.PK,
		SK:   rec.SK,
		Type: rec.Type,
		Data: slices.Clone(rec.Data),
	}
	if key, ok := rec.Indexes[model.IndexByTenant]; ok {
		item.TenantPK, item.TenantSK = key.Partition, key.Sort
	}
	if key, ok := rec.Indexes[model.IndexByExternalIdentity]; ok {
		item.ExternalPK, item.ExternalSK = key.Partition, key.Sort
	}
	if key, ok := rec.Indexes[model.IndexByInstitution]; ok {
		item.InstitutionPK, item.InstitutionSK = key.Partition, key.Sort
	}
	return item
}

func (m *memItem) toRecord() *Record {
	rec := &Record{
		PK:      m.PK,
		SK:      m.SK,
		Type:    m.Type,
		Data:    slices.Clone(m.Data),
		Indexes: make(map[model.Index]model.IndexKey),
	}
	if m.TenantPK != "" {
		rec.Indexes[model.IndexByTenant] = model.IndexKey{Partition: m.TenantPK, Sort: m.TenantSK}
	}
	if m.ExternalPK != "" {
		rec.Indexes[model.IndexByExternalIdentity] = model.IndexKey{Partition: m.ExternalPK, Sort: m.ExternalSK}
	}
	if m.InstitutionPK != "" {
		rec.Indexes[model.IndexByInstitution] = model.IndexKey{Partition: m.InstitutionPK, Sort: m.InstitutionSK}
	}
	return rec
}

// sortKey возвращает sort-ключ записи в заданном индексе.
func (m *memItem) sortKey(index model.Index) string {
	switch index {
	case model.IndexByTenant:
		return m.TenantSK
	case model.IndexByExternalIdentity:
		return m.ExternalSK
	case model.IndexByInstitution:
		return m.InstitutionSK
	}
	return ""
}

func (t *memoryTable) PutIfAbsent(_ context.Context, rec *Record) error {
	txn := t.db.Txn(true)
	defer txn.Abort()

	existing, err := txn.First(memTable, "id", rec.PK, rec.SK)
	if err != nil {
		return fmt.Errorf("ошибка чтения %s: %w", rec.PK, err)
	}
	if existing != nil {
		return fmt.Errorf("%w: %s", ErrConflict, rec.PK)
	}
	if err := txn.Insert(memTable, toMemItem(rec)); err != nil {
		return fmt.Errorf("ошибка создания записи %s: %w", rec.PK, err)
	}
	txn.Commit()
	return nil
}

func (t *memoryTable) Put(_ context.Context, rec *Record) error {
	txn := t.db.Txn(true)
	defer txn.Abort()

	if err := txn.Insert(memTable, toMemItem(rec)); err != nil {
		return fmt.Errorf("ошибка записи %s: %w", rec.PK, err)
	}
	txn.Commit()
	return nil
}

func (t *memoryTable) Mutate(_ context.Context, pk, sk string, fn MutateFunc) error {
	// Пишущая транзакция memdb эксклюзивна, чтение и запись атомарны
	txn := t.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(memTable, "id", pk, sk)
	if err != nil {
		return fmt.Errorf("ошибка чтения %s: %w", pk, err)
	}
	var current *Record
	if raw != nil {
		current = raw.(*memItem).toRecord()
	}

	next, err := fn(current)
	if err != nil {
		return err
	}
	if next == nil {
		return nil
	}
	if err := txn.Insert(memTable, toMemItem(next)); err != nil {
		return fmt.Errorf("ошибка записи %s: %w", pk, err)
	}
	txn.Commit()
	return nil
}

func (t *memoryTable) Get(_ context.Context, pk, sk string) (*Record, error) {
	txn := t.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(memTable, "id", pk, sk)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения %s: %w", pk, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, pk)
	}
	return raw.(*memItem).toRecord(), nil
}

func (t *memoryTable) Delete(_ context.Context, pk, sk string) error {
	txn := t.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(memTable, "id", pk, sk)
	if err != nil {
		return fmt.Errorf("ошибка удаления %s: %w", pk, err)
	}
	if raw == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, pk)
	}
	if err := txn.Delete(memTable, raw); err != nil {
		return fmt.Errorf("ошибка удаления %s: %w", pk, err)
	}
	txn.Commit()
	return nil
}

func (t *memoryTable) Query(_ context.Context, itemType string, index model.Index, partition string) ([]*Record, error) {
	if !slices.Contains(model.Indexes, index) {
		return nil, fmt.Errorf("неизвестный индекс %q", index)
	}

	txn := t.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(memTable, string(index), partition)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса по индексу %s: %w", index, err)
	}

	var items []*memItem
	for raw := it.Next(); raw != nil; raw = it.Next() {
		item := raw.(*memItem)
		if item.Type == itemType {
			items = append(items, item)
		}
	}

	slices.SortFunc(items, func(a, b *memItem) int {
		if c := strings.Compare(a.sortKey(index), b.sortKey(index)); c != 0 {
			return c
		}
		return strings.Compare(a.PK, b.PK)
	})

	result := make([]*Record, 0, len(items))
	for _, item := range items {
		result = append(result, item.toRecord())
	}
	return result, nil
}

func (t *memoryTable) Scan(_ context.Context, itemType, pageToken string, limit int) (*Page, error) {
	afterPK, afterSK, err := decodePageToken(pageToken)
	if err != nil {
		return nil, err
	}

	txn := t.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(memTable, "type", itemType)
	if err != nil {
		return nil, fmt.Errorf("ошибка сканирования %s: %w", itemType, err)
	}

	var items []*memItem
	for raw := it.Next(); raw != nil; raw = it.Next() {
		item := raw.(*memItem)
		if pageToken == "" || afterKey(item.PK, item.SK, afterPK, afterSK) {
			items = append(items, item)
		}
	}

	slices.SortFunc(items, func(a, b *memItem) int {
		if c := strings.Compare(a.PK, b.PK); c != 0 {
			return c
		}
		return strings.Compare(a.SK, b.SK)
	})

	page := &Page{}
	if len(items) > limit {
		items = items[:limit]
		last := items[limit-1]
		page.Next = encodePageToken(last.PK, last.SK)
	}
	for _, item := range items {
		page.Records = append(page.Records, item.toRecord())
	}
	return page, nil
}

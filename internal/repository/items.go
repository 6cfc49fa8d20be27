package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bigkaa/goartstore/identity-module/internal/domain/model"
)

// indexColumns — колонки таблицы items для каждого вторичного индекса.
var indexColumns = map[model.Index][2]string{
	model.IndexByTenant:           {"tenant_pk", "tenant_sk"},
	model.IndexByExternalIdentity: {"external_pk", "external_sk"},
	model.IndexByInstitution:      {"institution_pk", "institution_sk"},
}

const itemColumns = `pk, sk, item_type, data,
	tenant_pk, tenant_sk, external_pk, external_sk, institution_pk, institution_sk`

// pgTable — реализация Table поверх таблицы items в PostgreSQL.
type pgTable struct {
	db DBTX
	tx *TxRunner
}

// NewPostgresTable создаёт примитив хранения поверх pgxpool.
func NewPostgresTable(pool *pgxpool.Pool) Table {
	return &pgTable{db: pool, tx: NewTxRunner(pool)}
}

// scanRecord сканирует строку результата в Record.
func scanRecord(row pgx.Row) (*Record, error) {
	rec := &Record{}
	var tenantPK, tenantSK, externalPK, externalSK, institutionPK, institutionSK *string
	err := row.Scan(
		&rec.PK, &rec.SK, &rec.Type, &rec.Data,
		&tenantPK, &tenantSK, &externalPK, &externalSK, &institutionPK, &institutionSK,
	)
	if err != nil {
		return nil, err
	}

	rec.Indexes = make(map[model.Index]model.IndexKey)
	setIndex := func(index model.Index, pk, sk *string) {
		if pk == nil {
			return
		}
		key := model.IndexKey{Partition: *pk}
		if sk != nil {
			key.Sort = *sk
		}
		rec.Indexes[index] = key
	}
	setIndex(model.IndexByTenant, tenantPK, tenantSK)
	setIndex(model.IndexByExternalIdentity, externalPK, externalSK)
	setIndex(model.IndexByInstitution, institutionPK, institutionSK)
	return rec, nil
}

// recordArgs возвращает аргументы INSERT в порядке itemColumns.
// Отсутствующие индексы передаются как NULL.
func recordArgs(rec *Record) []any {
	args := []any{rec.PK, rec.SK, rec.Type, rec.Data}
	for _, index := range model.Indexes {
		key, ok := rec.Indexes[index]
		if !ok {
			args = append(args, nil, nil)
			continue
		}
		args = append(args, key.Partition, key.Sort)
	}
	return args
}

const insertItem = `
	INSERT INTO items (` + itemColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

func (t *pgTable) PutIfAbsent(ctx context.Context, rec *Record) error {
	tag, err := t.db.Exec(ctx, insertItem+` ON CONFLICT (pk, sk) DO NOTHING`, recordArgs(rec)...)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrConflict, rec.PK)
		}
		return fmt.Errorf("ошибка создания записи: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrConflict, rec.PK)
	}
	return nil
}

func (t *pgTable) Put(ctx context.Context, rec *Record) error {
	return put(ctx, t.db, rec)
}

// put выполняет upsert через переданный DBTX (пул или транзакцию).
func put(ctx context.Context, db DBTX, rec *Record) error {
	query := insertItem + `
		ON CONFLICT (pk, sk) DO UPDATE SET
			item_type = EXCLUDED.item_type,
			data = EXCLUDED.data,
			tenant_pk = EXCLUDED.tenant_pk,
			tenant_sk = EXCLUDED.tenant_sk,
			external_pk = EXCLUDED.external_pk,
			external_sk = EXCLUDED.external_sk,
			institution_pk = EXCLUDED.institution_pk,
			institution_sk = EXCLUDED.institution_sk,
			updated_at = NOW()`

	if _, err := db.Exec(ctx, query, recordArgs(rec)...); err != nil {
		return fmt.Errorf("ошибка записи %s: %w", rec.PK, err)
	}
	return nil
}

func (t *pgTable) Mutate(ctx context.Context, pk, sk string, fn MutateFunc) error {
	return t.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		query := fmt.Sprintf(`SELECT %s FROM items WHERE pk = $1 AND sk = $2 FOR UPDATE`, itemColumns)

		current, err := scanRecord(tx.QueryRow(ctx, query, pk, sk))
		if err != nil {
			if !errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("ошибка чтения %s: %w", pk, err)
			}
			current = nil
		}

		next, err := fn(current)
		if err != nil {
			return err
		}
		if next == nil {
			return nil
		}
		return put(ctx, tx, next)
	})
}

func (t *pgTable) Get(ctx context.Context, pk, sk string) (*Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM items WHERE pk = $1 AND sk = $2`, itemColumns)
	rec, err := scanRecord(t.db.QueryRow(ctx, query, pk, sk))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, pk)
		}
		return nil, fmt.Errorf("ошибка получения %s: %w", pk, err)
	}
	return rec, nil
}

func (t *pgTable) Delete(ctx context.Context, pk, sk string) error {
	tag, err := t.db.Exec(ctx, `DELETE FROM items WHERE pk = $1 AND sk = $2`, pk, sk)
	if err != nil {
		return fmt.Errorf("ошибка удаления %s: %w", pk, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, pk)
	}
	return nil
}

func (t *pgTable) Query(ctx context.Context, itemType string, index model.Index, partition string) ([]*Record, error) {
	cols, ok := indexColumns[index]
	if !ok {
		return nil, fmt.Errorf("неизвестный индекс %q", index)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM items
		WHERE item_type = $1 AND %s = $2
		ORDER BY %s, pk`, itemColumns, cols[0], cols[1])

	rows, err := t.db.Query(ctx, query, itemType, partition)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса по индексу %s: %w", index, err)
	}
	defer rows.Close()

	var result []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (t *pgTable) Scan(ctx context.Context, itemType, pageToken string, limit int) (*Page, error) {
	afterPK, afterSK, err := decodePageToken(pageToken)
	if err != nil {
		return nil, err
	}

	// Запрашиваем на одну запись больше, чтобы понять, есть ли следующая страница
	query := fmt.Sprintf(`
		SELECT %s
		FROM items
		WHERE item_type = $1 AND (pk, sk) > ($2, $3)
		ORDER BY pk, sk
		LIMIT $4`, itemColumns)

	rows, err := t.db.Query(ctx, query, itemType, afterPK, afterSK, limit+1)
	if err != nil {
		return nil, fmt.Errorf("ошибка сканирования %s: %w", itemType, err)
	}
	defer rows.Close()

	page := &Page{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи: %w", err)
		}
		page.Records = append(page.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(page.Records) > limit {
		page.Records = page.Records[:limit]
		last := page.Records[limit-1]
		page.Next = encodePageToken(last.PK, last.SK)
	}
	return page, nil
}

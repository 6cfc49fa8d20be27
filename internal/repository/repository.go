// Пакет repository — примитив хранения с ключами (одна таблица для всех сущностей).
// Две реализации: PostgreSQL (чистый SQL через pgx, без ORM) и in-memory (go-memdb).
package repository

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bigkaa/goartstore/identity-module/internal/domain/model"
)

// Ошибки слоя репозиториев.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("запись не найдена")
	// ErrConflict — конфликт уникальности (дублирующийся ключ).
	ErrConflict = errors.New("конфликт: запись уже существует")
)

// Record — запись общей таблицы.
type Record struct {
	// PK, SK — partition и sort ключи (<Type>#<naturalKey>)
	PK string
	SK string
	// Type — тег типа сущности
	Type string
	// Data — сериализованная сущность (JSON)
	Data []byte
	// Indexes — атрибуты вторичных индексов
	Indexes map[model.Index]model.IndexKey
}

// Page — страница результатов полного сканирования.
type Page struct {
	Records []*Record
	// Next — токен следующей страницы (пустой, если страниц больше нет)
	Next string
}

// MutateFunc получает текущую запись (nil, если её нет) и возвращает новую.
// Возврат nil, nil означает «ничего не записывать».
type MutateFunc func(current *Record) (*Record, error)

// Table — примитив хранения с ключами.
type Table interface {
	// PutIfAbsent создаёт запись, если ключ свободен, иначе ErrConflict.
	PutIfAbsent(ctx context.Context, rec *Record) error
	// Put создаёт или заменяет запись.
	Put(ctx context.Context, rec *Record) error
	// Mutate атомарно читает и перезаписывает запись.
	Mutate(ctx context.Context, pk, sk string, fn MutateFunc) error
	// Get возвращает запись по ключу или ErrNotFound.
	Get(ctx context.Context, pk, sk string) (*Record, error)
	// Delete удаляет запись или возвращает ErrNotFound.
	Delete(ctx context.Context, pk, sk string) error
	// Query возвращает записи типа itemType с точным совпадением partition
	// вторичного индекса, упорядоченные по sort-ключу индекса.
	Query(ctx context.Context, itemType string, index model.Index, partition string) ([]*Record, error)
	// Scan возвращает страницу всех записей типа itemType.
	Scan(ctx context.Context, itemType, pageToken string, limit int) (*Page, error)
}

// DBTX — интерфейс для выполнения SQL-запросов.
// Реализуется как *pgxpool.Pool, так и pgx.Tx, что позволяет
// использовать репозитории как внутри, так и вне транзакций.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxRunner позволяет выполнять операции в транзакции.
type TxRunner struct {
	pool *pgxpool.Pool
}

// NewTxRunner создаёт TxRunner для управления транзакциями.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// RunInTx выполняет fn внутри транзакции.
// При ошибке fn транзакция откатывается, при успехе коммитится.
func (r *TxRunner) RunInTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // откат после коммита — no-op

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// isUniqueViolation проверяет, является ли ошибка нарушением уникальности PostgreSQL.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

// --- Токены пагинации ---

// encodePageToken кодирует ключ последней записи страницы.
func encodePageToken(pk, sk string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(pk + "\x00" + sk))
}

// decodePageToken разбирает токен. Пустой токен — начало таблицы.
func decodePageToken(token string) (pk, sk string, err error) {
	if token == "" {
		return "", "", nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", "", fmt.Errorf("некорректный токен страницы: %w", err)
	}
	pk, sk, ok := strings.Cut(string(raw), "\x00")
	if !ok {
		return "", "", fmt.Errorf("некорректный токен страницы %q", token)
	}
	return pk, sk, nil
}

// afterKey сообщает, что ключ (pk, sk) строго больше (afterPK, afterSK).
func afterKey(pk, sk, afterPK, afterSK string) bool {
	if pk != afterPK {
		return pk > afterPK
	}
	return sk > afterSK
}

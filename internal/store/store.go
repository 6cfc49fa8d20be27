// Пакет store — типизированное хранилище сущностей поверх общей таблицы.
// Сериализует сущности в JSON, вычисляет ключи и атрибуты индексов,
// применяет политику слияния сущности при Persist.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/identity-module/internal/domain/model"
	"github.com/bigkaa/goartstore/identity-module/internal/repository"
)

// Ошибки хранилища.
var (
	// ErrNotFound — сущность не найдена.
	ErrNotFound = repository.ErrNotFound
	// ErrConflict — сущность с таким ключом уже существует.
	ErrConflict = repository.ErrConflict
	// ErrInvalidArgument — сущность или ключ не прошли валидацию.
	ErrInvalidArgument = errors.New("некорректный аргумент")
)

// scanPageSize — размер страницы при ленивом полном сканировании.
const scanPageSize = 100

// storeOpDuration — длительность операций хранилища.
var storeOpDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "im_store_operation_duration_seconds",
		Help:    "Длительность операций хранилища сущностей в секундах",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"entity", "operation", "result"},
)

// Store — хранилище сущностей типа T.
type Store[T model.Entity[T]] struct {
	table      repository.Table
	entityType string
	logger     *slog.Logger
}

// New создаёт хранилище сущностей типа T поверх table.
func New[T model.Entity[T]](table repository.Table, logger *slog.Logger) *Store[T] {
	var zero T
	return &Store[T]{
		table:      table,
		entityType: zero.EntityType(),
		logger:     logger.With(slog.String("component", "store"), slog.String("entity", zero.EntityType())),
	}
}

// observe записывает метрику длительности операции.
func (s *Store[T]) observe(op string, start time.Time, err error) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		result = "not_found"
	case errors.Is(err, ErrConflict):
		result = "conflict"
	case errors.Is(err, ErrInvalidArgument):
		result = "invalid"
	default:
		result = "error"
	}
	storeOpDuration.WithLabelValues(s.entityType, op, result).Observe(time.Since(start).Seconds())
}

// key возвращает первичный ключ для естественного ключа.
func (s *Store[T]) key(naturalKey string) string {
	return model.PrimaryKey(s.entityType, naturalKey)
}

// encode сериализует сущность в запись таблицы.
func (s *Store[T]) encode(item T) (*repository.Record, error) {
	data, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации %s: %w", s.entityType, err)
	}
	pk := s.key(item.NaturalKey())
	return &repository.Record{
		PK:      pk,
		SK:      pk,
		Type:    s.entityType,
		Data:    data,
		Indexes: item.IndexKeys(),
	}, nil
}

// decode восстанавливает сущность из записи таблицы.
func (s *Store[T]) decode(rec *repository.Record) (T, error) {
	var item T
	if rec.Type != s.entityType {
		return item, fmt.Errorf("запись %s имеет тип %q, ожидался %q", rec.PK, rec.Type, s.entityType)
	}
	if err := json.Unmarshal(rec.Data, &item); err != nil {
		return item, fmt.Errorf("ошибка десериализации %s: %w", rec.PK, err)
	}
	return item, nil
}

func (s *Store[T]) validate(item T) error {
	if err := item.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	return nil
}

func (s *Store[T]) validateKey(naturalKey string) error {
	if strings.TrimSpace(naturalKey) == "" {
		return fmt.Errorf("%w: пустой ключ %s", ErrInvalidArgument, s.entityType)
	}
	return nil
}

// Persist сохраняет сущность. Если запись уже есть, сохраняется
// результат existing.Merge(item). Возвращает сохранённое значение.
func (s *Store[T]) Persist(ctx context.Context, item T) (result T, err error) {
	defer func(start time.Time) { s.observe("persist", start, err) }(time.Now())

	if err := s.validate(item); err != nil {
		return result, err
	}

	pk := s.key(item.NaturalKey())
	err = s.table.Mutate(ctx, pk, pk, func(current *repository.Record) (*repository.Record, error) {
		result = item
		if current != nil {
			existing, err := s.decode(current)
			if err != nil {
				return nil, err
			}
			result = existing.Merge(item)
		}
		return s.encode(result)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// Create создаёт сущность, если ключ свободен, иначе ErrConflict.
func (s *Store[T]) Create(ctx context.Context, item T) (err error) {
	defer func(start time.Time) { s.observe("create", start, err) }(time.Now())

	if err := s.validate(item); err != nil {
		return err
	}
	rec, err := s.encode(item)
	if err != nil {
		return err
	}
	return s.table.PutIfAbsent(ctx, rec)
}

// Replace перезаписывает существующую сущность, иначе ErrNotFound.
func (s *Store[T]) Replace(ctx context.Context, item T) (err error) {
	defer func(start time.Time) { s.observe("replace", start, err) }(time.Now())

	if err := s.validate(item); err != nil {
		return err
	}

	pk := s.key(item.NaturalKey())
	return s.table.Mutate(ctx, pk, pk, func(current *repository.Record) (*repository.Record, error) {
		if current == nil {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, pk)
		}
		return s.encode(item)
	})
}

// Fetch возвращает сущность по естественному ключу или ErrNotFound.
func (s *Store[T]) Fetch(ctx context.Context, naturalKey string) (item T, err error) {
	defer func(start time.Time) { s.observe("fetch", start, err) }(time.Now())

	if err := s.validateKey(naturalKey); err != nil {
		return item, err
	}

	pk := s.key(naturalKey)
	rec, err := s.table.Get(ctx, pk, pk)
	if err != nil {
		return item, err
	}
	return s.decode(rec)
}

// Find — как Fetch, но отсутствие записи не ошибка.
func (s *Store[T]) Find(ctx context.Context, naturalKey string) (T, bool, error) {
	item, err := s.Fetch(ctx, naturalKey)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return item, false, nil
		}
		return item, false, err
	}
	return item, true, nil
}

// Delete удаляет сущность. Если её нет — ErrNotFound.
func (s *Store[T]) Delete(ctx context.Context, naturalKey string) (err error) {
	defer func(start time.Time) { s.observe("delete", start, err) }(time.Now())

	if err := s.validateKey(naturalKey); err != nil {
		return err
	}

	pk := s.key(naturalKey)
	if _, err := s.table.Get(ctx, pk, pk); err != nil {
		return err
	}
	if err := s.table.Delete(ctx, pk, pk); err != nil {
		return err
	}

	s.logger.Debug("Сущность удалена", slog.String("key", naturalKey))
	return nil
}

// Query возвращает сущности с заданным partition во вторичном индексе.
// Отсутствие совпадений — пустой срез без ошибки.
func (s *Store[T]) Query(ctx context.Context, index model.Index, partition string) (items []T, err error) {
	defer func(start time.Time) { s.observe("query", start, err) }(time.Now())

	if strings.TrimSpace(partition) == "" {
		return nil, fmt.Errorf("%w: пустое значение индекса %s", ErrInvalidArgument, index)
	}

	records, err := s.table.Query(ctx, s.entityType, index, partition)
	if err != nil {
		return nil, err
	}

	items = make([]T, 0, len(records))
	for _, rec := range records {
		item, err := s.decode(rec)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// ScanPage возвращает страницу сущностей и токен следующей страницы.
func (s *Store[T]) ScanPage(ctx context.Context, pageToken string, limit int) (items []T, next string, err error) {
	defer func(start time.Time) { s.observe("scan", start, err) }(time.Now())

	if limit <= 0 {
		return nil, "", fmt.Errorf("%w: limit должен быть положительным, получено %d", ErrInvalidArgument, limit)
	}

	page, err := s.table.Scan(ctx, s.entityType, pageToken, limit)
	if err != nil {
		return nil, "", err
	}

	items = make([]T, 0, len(page.Records))
	for _, rec := range page.Records {
		item, err := s.decode(rec)
		if err != nil {
			return nil, "", err
		}
		items = append(items, item)
	}
	return items, page.Next, nil
}

// Scan лениво перебирает все сущности типа T постранично.
// Каждый вызов возвращённой последовательности начинает обход заново.
func (s *Store[T]) Scan(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		token := ""
		for {
			items, next, err := s.ScanPage(ctx, token, scanPageSize)
			if err != nil {
				var zero T
				yield(zero, err)
				return
			}
			for _, item := range items {
				if !yield(item, nil) {
					return
				}
			}
			if next == "" {
				return
			}
			token = next
		}
	}
}

// Collect собирает все сущности последовательности Scan в срез.
func Collect[T any](seq iter.Seq2[T, error]) ([]T, error) {
	var items []T
	for item, err := range seq {
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

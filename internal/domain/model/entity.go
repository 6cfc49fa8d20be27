// Пакет model — доменные модели Identity Module.
// Все сущности хранятся в одной таблице и различаются тегом типа.
package model

import (
	"errors"
	"slices"
	"strings"
)

// ErrInvalid — сущность не прошла валидацию (не заданы ключевые поля и т.п.).
var ErrInvalid = errors.New("некорректная сущность")

// Типы сущностей (тег типа в общей таблице).
const (
	TypeUser     = "User"
	TypeRole     = "Role"
	TypeClient   = "Client"
	TypeTerms    = "Terms"
	TypeCustomer = "Customer"
)

// Index — имя вторичного индекса общей таблицы.
type Index string

// Вторичные индексы.
const (
	// IndexByTenant — пользователи арендатора: partition = tenantId, sort = username.
	IndexByTenant Index = "tenant"
	// IndexByExternalIdentity — связь с внешним реестром:
	// partition = externalPersonId, sort = institutionExternalId.
	IndexByExternalIdentity Index = "external_identity"
	// IndexByInstitution — арендатор по внешнему идентификатору учреждения:
	// partition = institutionExternalId, sort = id.
	IndexByInstitution Index = "institution"
)

// Indexes — все вторичные индексы таблицы.
var Indexes = []Index{IndexByTenant, IndexByExternalIdentity, IndexByInstitution}

// IndexKey — значения ключей вторичного индекса.
type IndexKey struct {
	Partition string
	Sort      string
}

// Entity — контракт сущности общей таблицы.
// T — конкретный тип сущности (значение, не указатель).
type Entity[T any] interface {
	// EntityType возвращает тег типа.
	EntityType() string
	// NaturalKey возвращает значение естественного ключа.
	NaturalKey() string
	// Validate проверяет ключевые поля.
	Validate() error
	// IndexKeys возвращает атрибуты вторичных индексов (может быть nil).
	IndexKeys() map[Index]IndexKey
	// Merge объединяет сохранённую запись (получатель) с новой.
	Merge(incoming T) T
}

// PrimaryKey формирует ключ записи: <Type>#<naturalKey>.
// Одинаков для partition и sort.
func PrimaryKey(entityType, naturalKey string) string {
	return entityType + "#" + naturalKey
}

// normalizeSet сортирует и убирает дубликаты и пустые значения.
func normalizeSet(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	slices.Sort(out)
	out = slices.Compact(out)
	if len(out) == 0 {
		return nil
	}
	return out
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

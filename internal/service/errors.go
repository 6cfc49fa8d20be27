// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import (
	"errors"
	"fmt"

	"github.com/bigkaa/goartstore/identity-module/internal/store"
)

var (
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrConflict — конфликт (дублирующийся ресурс).
	ErrConflict = errors.New("конфликт: ресурс уже существует")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrUpstream — внешний реестр персон недоступен или вернул некорректные данные.
	ErrUpstream = errors.New("ошибка внешнего реестра")
	// ErrIndexInvariant — запрос по индексу, ожидающий не более одной записи, вернул несколько.
	ErrIndexInvariant = errors.New("нарушение инварианта вторичного индекса")
)

// mapStoreError переводит ошибки хранилища в ошибки сервисного слоя.
// what — описание сущности для сообщения (например, `роль "Creator"`).
func mapStoreError(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	case errors.Is(err, store.ErrConflict):
		return fmt.Errorf("%w: %s", ErrConflict, what)
	case errors.Is(err, store.ErrInvalidArgument):
		return fmt.Errorf("%w: %s: %w", ErrValidation, what, err)
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}

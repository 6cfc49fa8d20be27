package model

import (
	"fmt"
	"slices"
)

// Role — каноническая роль. Пользователи хранят её снимок (денормализованная копия).
type Role struct {
	// Name — уникальное имя роли (регистр важен)
	Name string `json:"name"`
	// AccessRights — набор прав доступа (может быть пустым)
	AccessRights []string `json:"accessRights,omitempty"`
}

// NewRole создаёт роль с нормализованным набором прав.
func NewRole(name string, accessRights ...string) Role {
	return Role{Name: name, AccessRights: normalizeSet(accessRights)}
}

func (r Role) EntityType() string { return TypeRole }

func (r Role) NaturalKey() string { return r.Name }

// Validate проверяет, что имя роли задано.
func (r Role) Validate() error {
	if isBlank(r.Name) {
		return fmt.Errorf("%w: имя роли не задано", ErrInvalid)
	}
	return nil
}

func (r Role) IndexKeys() map[Index]IndexKey { return nil }

// Merge — каноническое обновление роли заменяет её целиком.
func (r Role) Merge(incoming Role) Role {
	return incoming.Normalized()
}

// Normalized возвращает копию с отсортированным набором прав без дубликатов.
func (r Role) Normalized() Role {
	return Role{Name: r.Name, AccessRights: normalizeSet(r.AccessRights)}
}

// Equal сравнивает имя и набор прав.
func (r Role) Equal(other Role) bool {
	return r.Name == other.Name &&
		slices.Equal(normalizeSet(r.AccessRights), normalizeSet(other.AccessRights))
}

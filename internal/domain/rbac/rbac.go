// Пакет rbac — вычисление эффективных прав доступа пользователя.
// Права пользователя = объединение прав всех встроенных ролей.
// Встроенные роли — снимки, поэтому права верны на момент последней записи.
package rbac

import (
	"slices"

	"github.com/bigkaa/goartstore/identity-module/internal/domain/model"
)

// EffectiveAccessRights возвращает отсортированное объединение прав ролей пользователя.
// Если ролей нет — пустой срез.
func EffectiveAccessRights(user model.User) []string {
	set := make(map[string]bool)
	for _, r := range user.Roles {
		for _, right := range r.AccessRights {
			set[right] = true
		}
	}
	rights := make([]string, 0, len(set))
	for right := range set {
		rights = append(rights, right)
	}
	slices.Sort(rights)
	return rights
}

// HasAccessRight проверяет наличие права хотя бы в одной роли.
func HasAccessRight(user model.User, right string) bool {
	for _, r := range user.Roles {
		if slices.Contains(r.AccessRights, right) {
			return true
		}
	}
	return false
}

// HasRole проверяет наличие роли по имени.
func HasRole(user model.User, name string) bool {
	return slices.ContainsFunc(user.Roles, func(r model.Role) bool {
		return r.Name == name
	})
}

// WithRole возвращает копию набора ролей с добавленной ролью.
// Если роль с таким именем уже есть — набор не меняется.
func WithRole(roles []model.Role, role model.Role) []model.Role {
	if slices.ContainsFunc(roles, func(r model.Role) bool { return r.Name == role.Name }) {
		return slices.Clone(roles)
	}
	return append(slices.Clone(roles), role)
}

// roles.go — реестр канонических ролей.
// Роли — источник истины для снимков ролей, встроенных в пользователей.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bigkaa/goartstore/identity-module/internal/domain/model"
	"github.com/bigkaa/goartstore/identity-module/internal/repository"
	"github.com/bigkaa/goartstore/identity-module/internal/store"
)

// RoleService — сервис управления каноническими ролями.
type RoleService struct {
	roles  *store.Store[model.Role]
	logger *slog.Logger
}

// NewRoleService создаёт сервис ролей поверх общей таблицы.
func NewRoleService(table repository.Table, logger *slog.Logger) *RoleService {
	return &RoleService{
		roles:  store.New[model.Role](table, logger),
		logger: logger.With(slog.String("component", "role_service")),
	}
}

func roleRef(name string) string {
	return fmt.Sprintf("роль %q", name)
}

// AddRole создаёт роль. Пустое имя — ErrValidation, существующее — ErrConflict.
func (s *RoleService) AddRole(ctx context.Context, role model.Role) (*model.Role, error) {
	role = role.Normalized()
	if err := role.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	if err := s.roles.Create(ctx, role); err != nil {
		return nil, mapStoreError(err, roleRef(role.Name))
	}

	s.logger.Info("Роль создана",
		slog.String("role", role.Name),
		slog.Int("access_rights", len(role.AccessRights)),
	)
	return &role, nil
}

// GetRole возвращает роль по имени или ErrNotFound с именем роли в сообщении.
func (s *RoleService) GetRole(ctx context.Context, name string) (*model.Role, error) {
	role, err := s.roles.Fetch(ctx, name)
	if err != nil {
		return nil, mapStoreError(err, roleRef(name))
	}
	return &role, nil
}

// UpdateRole — явное каноническое обновление роли. Роль должна существовать.
// Пользователи получат новые права при следующей записи.
func (s *RoleService) UpdateRole(ctx context.Context, role model.Role) (*model.Role, error) {
	role = role.Normalized()
	if err := role.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	if err := s.roles.Replace(ctx, role); err != nil {
		return nil, mapStoreError(err, roleRef(role.Name))
	}

	s.logger.Info("Роль обновлена", slog.String("role", role.Name))
	return &role, nil
}

// DeleteRole удаляет роль. В штатной работе роли не удаляются;
// операция нужна администрированию. Встроенные копии у пользователей
// исчезнут при их следующей записи.
func (s *RoleService) DeleteRole(ctx context.Context, name string) error {
	if err := s.roles.Delete(ctx, name); err != nil {
		return mapStoreError(err, roleRef(name))
	}
	s.logger.Warn("Роль удалена", slog.String("role", name))
	return nil
}

// ListRoles возвращает все роли.
func (s *RoleService) ListRoles(ctx context.Context) ([]model.Role, error) {
	roles, err := store.Collect(s.roles.Scan(ctx))
	if err != nil {
		return nil, fmt.Errorf("получение списка ролей: %w", err)
	}
	return roles, nil
}

// FetchRoleSnapshot возвращает текущий снимок роли.
// Отсутствие роли — nil без ошибки: вызывающий удаляет ссылку на неё.
func (s *RoleService) FetchRoleSnapshot(ctx context.Context, name string) (*model.Role, error) {
	role, found, err := s.roles.Find(ctx, name)
	if err != nil {
		return nil, mapStoreError(err, roleRef(name))
	}
	if !found {
		return nil, nil
	}
	return &role, nil
}

// EnsureRole создаёт роль, если её ещё нет. Конфликт с параллельным
// созданием не считается ошибкой.
func (s *RoleService) EnsureRole(ctx context.Context, role model.Role) error {
	existing, err := s.FetchRoleSnapshot(ctx, role.Name)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	if _, err := s.AddRole(ctx, role); err != nil && !errors.Is(err, ErrConflict) {
		return err
	}
	return nil
}

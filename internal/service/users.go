// users.go — реестр пользователей: CRUD, запросы по вторичным индексам
// и синхронизация встроенных ролей при каждой записи.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/identity-module/internal/domain/model"
	"github.com/bigkaa/goartstore/identity-module/internal/domain/rbac"
	"github.com/bigkaa/goartstore/identity-module/internal/repository"
	"github.com/bigkaa/goartstore/identity-module/internal/store"
)

// userWritesTotal — записи пользователей (result: written, skipped).
var userWritesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "im_user_writes_total",
		Help: "Количество операций записи пользователей",
	},
	[]string{"operation", "result"},
)

// UserService — сервис управления пользователями.
type UserService struct {
	users  *store.Store[model.User]
	roles  *RoleService
	logger *slog.Logger
}

// NewUserService создаёт сервис пользователей.
func NewUserService(table repository.Table, roles *RoleService, logger *slog.Logger) *UserService {
	return &UserService{
		users:  store.New[model.User](table, logger),
		roles:  roles,
		logger: logger.With(slog.String("component", "user_service")),
	}
}

func userRef(username string) string {
	return fmt.Sprintf("пользователь %q", username)
}

func externalRef(personID, institutionID string) string {
	return fmt.Sprintf("пользователь с внешней идентичностью (%s, %s)", personID, institutionID)
}

// GetUser возвращает пользователя по username или, если заданы оба
// внешних идентификатора, по паре (externalPersonId, institutionExternalId).
func (s *UserService) GetUser(ctx context.Context, q model.UserQuery) (*model.User, error) {
	if q.ByExternalIdentity() {
		return s.GetUserByExternalPersonAndInstitution(ctx, q.ExternalPersonID, q.InstitutionExternalID)
	}

	user, err := s.users.Fetch(ctx, q.Username)
	if err != nil {
		return nil, mapStoreError(err, userRef(q.Username))
	}
	return &user, nil
}

// FindUserByUsername — как GetUser по username, но отсутствие — nil без ошибки.
func (s *UserService) FindUserByUsername(ctx context.Context, username string) (*model.User, error) {
	user, found, err := s.users.Find(ctx, username)
	if err != nil {
		return nil, mapStoreError(err, userRef(username))
	}
	if !found {
		return nil, nil
	}
	return &user, nil
}

// ListUsersByTenant возвращает пользователей арендатора.
// Если их нет — пустой срез без ошибки.
func (s *UserService) ListUsersByTenant(ctx context.Context, tenantID string) ([]*model.User, error) {
	users, err := s.users.Query(ctx, model.IndexByTenant, tenantID)
	if err != nil {
		return nil, mapStoreError(err, fmt.Sprintf("пользователи арендатора %q", tenantID))
	}
	return toPointers(users), nil
}

// GetUsersByExternalPersonID возвращает всех пользователей, связанных с персоной
// внешнего реестра (по одному на учреждение).
func (s *UserService) GetUsersByExternalPersonID(ctx context.Context, personID string) ([]*model.User, error) {
	users, err := s.users.Query(ctx, model.IndexByExternalIdentity, personID)
	if err != nil {
		return nil, mapStoreError(err, fmt.Sprintf("пользователи персоны %q", personID))
	}
	return toPointers(users), nil
}

// GetUserByExternalPersonAndInstitution возвращает единственного пользователя
// для пары внешних идентификаторов. Несколько совпадений — ErrIndexInvariant.
func (s *UserService) GetUserByExternalPersonAndInstitution(ctx context.Context, personID, institutionID string) (*model.User, error) {
	user, err := s.FindUserByExternalIdentity(ctx, personID, institutionID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, externalRef(personID, institutionID))
	}
	return user, nil
}

// FindUserByExternalIdentity — как GetUserByExternalPersonAndInstitution,
// но отсутствие — nil без ошибки.
func (s *UserService) FindUserByExternalIdentity(ctx context.Context, personID, institutionID string) (*model.User, error) {
	if institutionID == "" {
		return nil, fmt.Errorf("%w: не задан институт для %s", ErrValidation, externalRef(personID, institutionID))
	}

	candidates, err := s.users.Query(ctx, model.IndexByExternalIdentity, personID)
	if err != nil {
		return nil, mapStoreError(err, externalRef(personID, institutionID))
	}

	var matches []model.User
	for _, u := range candidates {
		if u.InstitutionExternalID == institutionID {
			matches = append(matches, u)
		}
	}

	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		return &matches[0], nil
	default:
		names := usernames(toPointers(matches))
		s.logger.Error("Несколько пользователей для одной внешней идентичности",
			slog.String("person_id", personID),
			slog.String("institution_id", institutionID),
			slog.Any("usernames", names),
		)
		return nil, fmt.Errorf("%w: %s соответствует %d пользователей %v",
			ErrIndexInvariant, externalRef(personID, institutionID), len(matches), names)
	}
}

// checkExternalIdentityFree проверяет, что пара (externalPersonId,
// institutionExternalId) не принадлежит другому пользователю.
// Пара задаётся только целиком, неполная пара не проверяется.
func (s *UserService) checkExternalIdentityFree(ctx context.Context, user model.User) error {
	if user.ExternalPersonID == "" || user.InstitutionExternalID == "" {
		return nil
	}
	holder, err := s.FindUserByExternalIdentity(ctx, user.ExternalPersonID, user.InstitutionExternalID)
	if err != nil {
		return err
	}
	if holder != nil && holder.Username != user.Username {
		return fmt.Errorf("%w: %s уже принадлежит пользователю %q",
			ErrConflict, externalRef(user.ExternalPersonID, user.InstitutionExternalID), holder.Username)
	}
	return nil
}

// AddUser создаёт пользователя. Если username занят — ErrConflict.
// Возвращает сохранённую запись с синхронизированными ролями.
func (s *UserService) AddUser(ctx context.Context, user model.User) (*model.User, error) {
	if err := user.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	existing, err := s.FindUserByUsername(ctx, user.Username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrConflict, userRef(user.Username))
	}
	if err := s.checkExternalIdentityFree(ctx, user); err != nil {
		return nil, err
	}

	user.Roles, err = s.syncRoles(ctx, user.Roles)
	if err != nil {
		return nil, err
	}

	// Условная запись закрывает гонку между проверкой и созданием
	if err := s.users.Create(ctx, user); err != nil {
		return nil, mapStoreError(err, userRef(user.Username))
	}

	userWritesTotal.WithLabelValues("add", "written").Inc()
	s.logger.Info("Пользователь создан",
		slog.String("username", user.Username),
		slog.String("tenant_id", user.TenantID),
		slog.Any("roles", user.RoleNames()),
	)
	return &user, nil
}

// UpdateUser обновляет существующего пользователя (иначе ErrNotFound).
// Если после синхронизации ролей запись не изменилась — запись пропускается.
func (s *UserService) UpdateUser(ctx context.Context, user model.User) (*model.User, error) {
	if err := user.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	stored, err := s.users.Fetch(ctx, user.Username)
	if err != nil {
		return nil, mapStoreError(err, userRef(user.Username))
	}
	if err := s.checkExternalIdentityFree(ctx, user); err != nil {
		return nil, err
	}

	user.Roles, err = s.syncRoles(ctx, user.Roles)
	if err != nil {
		return nil, err
	}

	if user.Equal(stored) {
		userWritesTotal.WithLabelValues("update", "skipped").Inc()
		s.logger.Debug("Пользователь не изменился, запись пропущена",
			slog.String("username", user.Username),
		)
		return &stored, nil
	}

	if err := s.users.Replace(ctx, user); err != nil {
		return nil, mapStoreError(err, userRef(user.Username))
	}

	userWritesTotal.WithLabelValues("update", "written").Inc()
	s.logger.Info("Пользователь обновлён",
		slog.String("username", user.Username),
		slog.Any("roles", user.RoleNames()),
	)
	return &user, nil
}

// DeleteUser удаляет пользователя. Если его нет — ErrNotFound.
func (s *UserService) DeleteUser(ctx context.Context, username string) error {
	if err := s.users.Delete(ctx, username); err != nil {
		return mapStoreError(err, userRef(username))
	}
	s.logger.Info("Пользователь удалён", slog.String("username", username))
	return nil
}

// ListUsers возвращает страницу пользователей и токен следующей страницы.
func (s *UserService) ListUsers(ctx context.Context, pageToken string, limit int) ([]*model.User, string, error) {
	users, next, err := s.users.ScanPage(ctx, pageToken, limit)
	if err != nil {
		return nil, "", mapStoreError(err, "список пользователей")
	}
	return toPointers(users), next, nil
}

// GetUserAccessRights возвращает эффективные права пользователя
// (объединение прав встроенных ролей).
func (s *UserService) GetUserAccessRights(ctx context.Context, username string) ([]string, error) {
	user, err := s.GetUser(ctx, model.UserQuery{Username: username})
	if err != nil {
		return nil, err
	}
	return rbac.EffectiveAccessRights(*user), nil
}

// syncRoles заменяет встроенные роли каноническими снимками.
// Роли, которых больше нет в реестре, отбрасываются без ошибки.
func (s *UserService) syncRoles(ctx context.Context, roles []model.Role) ([]model.Role, error) {
	var synced []model.Role
	for _, ref := range roles {
		if rbac.HasRole(model.User{Roles: synced}, ref.Name) {
			continue
		}

		snapshot, err := s.roles.FetchRoleSnapshot(ctx, ref.Name)
		if err != nil {
			return nil, fmt.Errorf("синхронизация ролей: %w", err)
		}
		if snapshot == nil {
			s.logger.Debug("Встроенная роль отсутствует в реестре, удалена",
				slog.String("role", ref.Name),
			)
			continue
		}
		synced = rbac.WithRole(synced, *snapshot)
	}
	return synced, nil
}

func toPointers[T any](items []T) []*T {
	result := make([]*T, 0, len(items))
	for i := range items {
		result = append(result, &items[i])
	}
	return result
}

// usernames возвращает имена пользователей (для логов).
func usernames(users []*model.User) []string {
	names := make([]string, 0, len(users))
	for _, u := range users {
		names = append(names, u.Username)
	}
	slices.Sort(names)
	return names
}

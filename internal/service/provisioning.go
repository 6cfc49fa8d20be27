// provisioning.go — разрешение персоны внешнего реестра в пользователей платформы.
// Для каждой действующей принадлежности к учреждению-арендатору находит
// или создаёт ровно одного пользователя.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/identity-module/internal/domain/model"
	"github.com/bigkaa/goartstore/identity-module/internal/registry"
)

// Ветви разрешения пользователя (значения метки branch).
const (
	branchExternalIdentity = "external_identity"
	branchLegacy           = "legacy"
	branchCreated          = "created"
	branchExisting         = "existing"
)

// provisioningResolutionsTotal — разрешённые пользователи по ветвям.
var provisioningResolutionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "im_provisioning_resolutions_total",
		Help: "Количество пользователей, разрешённых провижинингом, по ветвям",
	},
	[]string{"branch"},
)

// PersonRegistry — внешний реестр персон.
type PersonRegistry interface {
	LookupPerson(ctx context.Context, nationalID string) (*registry.Person, error)
}

// ProvisionRequest — запрос провижининга персоны.
type ProvisionRequest struct {
	// NationalID — национальный идентификатор персоны
	NationalID string
	// LegacyIdentifier — ранее выданный локальный username (опционально)
	LegacyIdentifier string
}

// ProvisioningService — резолвер персон в пользователей.
type ProvisioningService struct {
	users       *UserService
	roles       *RoleService
	registry    PersonRegistry
	tenants     TenantLookup
	defaultRole model.Role
	logger      *slog.Logger
}

// NewProvisioningService создаёт резолвер.
// defaultRole назначается создаваемым пользователям.
func NewProvisioningService(
	users *UserService,
	roles *RoleService,
	personRegistry PersonRegistry,
	tenants TenantLookup,
	defaultRole model.Role,
	logger *slog.Logger,
) *ProvisioningService {
	return &ProvisioningService{
		users:       users,
		roles:       roles,
		registry:    personRegistry,
		tenants:     tenants,
		defaultRole: defaultRole.Normalized(),
		logger:      logger.With(slog.String("component", "provisioning")),
	}
}

// usernamePartEscaper экранирует '%' и '@' в частях username, чтобы
// разделитель '@' встречался ровно один раз.
var usernamePartEscaper = strings.NewReplacer("%", "%25", "@", "%40")

// DeriveUsername строит username <personID>@<tenantExternalID>.
// Одна и та же пара всегда даёт один и тот же username, разные пары
// дают разные username.
func DeriveUsername(personID, tenantExternalID string) string {
	return usernamePartEscaper.Replace(personID) + "@" + usernamePartEscaper.Replace(tenantExternalID)
}

// tenantTarget — арендатор и подразделение первой действующей принадлежности.
type tenantTarget struct {
	tenant *model.Customer
	unitID string
}

// provisionRun — состояние одного вызова Provision.
type provisionRun struct {
	person           *registry.Person
	legacyIdentifier string
	roleEnsured      bool
}

// Provision разрешает персону в пользователей: по одному на каждого
// арендатора, к учреждению которого у персоны есть действующая принадлежность.
func (s *ProvisioningService) Provision(ctx context.Context, req ProvisionRequest) ([]*model.User, error) {
	if strings.TrimSpace(req.NationalID) == "" {
		return nil, fmt.Errorf("%w: не задан национальный идентификатор", ErrValidation)
	}

	person, err := s.registry.LookupPerson(ctx, req.NationalID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	targets, err := s.mapTenants(ctx, person.ActiveAffiliations())
	if err != nil {
		return nil, err
	}

	run := &provisionRun{person: person, legacyIdentifier: req.LegacyIdentifier}
	users := make([]*model.User, 0, len(targets))
	for _, target := range targets {
		user, branch, err := s.resolveUser(ctx, run, target)
		if err != nil {
			return nil, fmt.Errorf("провижининг персоны %q для арендатора %q: %w",
				person.ID, target.tenant.ID, err)
		}
		provisioningResolutionsTotal.WithLabelValues(branch).Inc()
		s.logger.Debug("Пользователь разрешён",
			slog.String("username", user.Username),
			slog.String("tenant_id", target.tenant.ID),
			slog.String("branch", branch),
		)
		users = append(users, user)
	}

	s.logger.Info("Провижининг персоны завершён",
		slog.String("person_id", person.ID),
		slog.Int("affiliations", len(person.Affiliations)),
		slog.Int("users", len(users)),
	)
	return users, nil
}

// mapTenants сопоставляет действующие принадлежности арендаторам.
// Учреждения без арендатора пропускаются. Каждый арендатор попадает
// в результат один раз, подразделение берётся из первой принадлежности.
func (s *ProvisioningService) mapTenants(ctx context.Context, affiliations []registry.Affiliation) ([]tenantTarget, error) {
	seen := make(map[string]bool, len(affiliations))
	var targets []tenantTarget

	for _, a := range affiliations {
		tenant, err := s.tenants.GetTenantByInstitutionExternalID(ctx, a.InstitutionID)
		if errors.Is(err, ErrNotFound) {
			s.logger.Debug("Учреждение не зарегистрировано как арендатор, пропущено",
				slog.String("institution_id", a.InstitutionID),
			)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("поиск арендатора учреждения %q: %w", a.InstitutionID, err)
		}

		if seen[tenant.ID] {
			continue
		}
		seen[tenant.ID] = true
		targets = append(targets, tenantTarget{tenant: tenant, unitID: a.UnitID})
	}
	return targets, nil
}

// resolveUser находит или создаёт пользователя для арендатора.
// Порядок: внешняя идентичность, legacy-идентификатор, создание.
func (s *ProvisioningService) resolveUser(ctx context.Context, run *provisionRun, target tenantTarget) (*model.User, string, error) {
	institutionID := target.tenant.InstitutionExternalID

	user, err := s.users.FindUserByExternalIdentity(ctx, run.person.ID, institutionID)
	if err != nil {
		return nil, "", err
	}
	if user != nil {
		updated, err := s.users.UpdateUser(ctx, withIdentity(*user, run.person, target))
		return updated, branchExternalIdentity, err
	}

	legacy, err := s.findLegacyUser(ctx, run, institutionID)
	if err != nil {
		return nil, "", err
	}
	if legacy != nil {
		updated, err := s.users.UpdateUser(ctx, withIdentity(*legacy, run.person, target))
		return updated, branchLegacy, err
	}

	return s.createUser(ctx, run, target)
}

// findLegacyUser ищет пользователя по legacy-идентификатору.
// Пользователь, уже привязанный к другому учреждению или другой персоне,
// не подходит.
func (s *ProvisioningService) findLegacyUser(ctx context.Context, run *provisionRun, institutionID string) (*model.User, error) {
	if run.legacyIdentifier == "" {
		return nil, nil
	}

	user, err := s.users.FindUserByUsername(ctx, run.legacyIdentifier)
	if err != nil || user == nil {
		return nil, err
	}

	if user.InstitutionExternalID != "" && user.InstitutionExternalID != institutionID {
		return nil, nil
	}
	if !adoptable(user, run.person.ID, institutionID) {
		s.logger.Warn("Legacy-пользователь привязан к другой персоне",
			slog.String("username", user.Username),
			slog.String("person_id", run.person.ID),
		)
		return nil, nil
	}
	return user, nil
}

// adoptable сообщает, можно ли привязать user к персоне в учреждении:
// пользователь ещё не связан ни с кем или уже связан с ними же.
func adoptable(user *model.User, personID, institutionID string) bool {
	return (user.ExternalPersonID == "" || user.ExternalPersonID == personID) &&
		(user.InstitutionExternalID == "" || user.InstitutionExternalID == institutionID)
}

// createUser создаёт пользователя с детерминированным username и ролью
// по умолчанию. Если пользователь уже создан прошлой попыткой, он обновляется.
// Занятый чужой учётной записью username даёт ErrConflict.
func (s *ProvisioningService) createUser(ctx context.Context, run *provisionRun, target tenantTarget) (*model.User, string, error) {
	if !run.roleEnsured {
		if err := s.roles.EnsureRole(ctx, s.defaultRole); err != nil {
			return nil, "", fmt.Errorf("роль по умолчанию %q: %w", s.defaultRole.Name, err)
		}
		run.roleEnsured = true
	}

	username := DeriveUsername(run.person.ID, target.tenant.InstitutionExternalID)
	user := withIdentity(model.User{
		Username: username,
		Roles:    []model.Role{s.defaultRole},
	}, run.person, target)

	created, err := s.users.AddUser(ctx, user)
	if err == nil {
		return created, branchCreated, nil
	}
	if !errors.Is(err, ErrConflict) {
		return nil, "", err
	}

	existing, err := s.users.GetUser(ctx, model.UserQuery{Username: username})
	if err != nil {
		return nil, "", err
	}
	if !adoptable(existing, run.person.ID, target.tenant.InstitutionExternalID) {
		s.logger.Warn("Username занят пользователем другой персоны",
			slog.String("username", username),
			slog.String("person_id", run.person.ID),
			slog.String("holder_person_id", existing.ExternalPersonID),
		)
		return nil, "", fmt.Errorf("%w: %s привязан к другой персоне или учреждению",
			ErrConflict, userRef(username))
	}
	updated, err := s.users.UpdateUser(ctx, withIdentity(*existing, run.person, target))
	return updated, branchExisting, err
}

// withIdentity переносит в пользователя данные персоны и арендатора.
// Пустые имена из реестра не затирают сохранённые.
func withIdentity(user model.User, person *registry.Person, target tenantTarget) model.User {
	user.ExternalPersonID = person.ID
	user.InstitutionExternalID = target.tenant.InstitutionExternalID
	user.TenantID = target.tenant.ID
	user.AffiliationUnitID = target.unitID
	if person.GivenName != "" {
		user.GivenName = person.GivenName
	}
	if person.FamilyName != "" {
		user.FamilyName = person.FamilyName
	}
	return user
}

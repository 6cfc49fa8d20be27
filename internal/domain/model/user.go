package model

import (
	"fmt"
	"maps"
	"net/url"
	"regexp"
	"slices"
)

// User — пользователь платформы.
// Roles — денормализованная копия канонических ролей, синхронизируется
// сервисом пользователей при каждой записи.
type User struct {
	// Username — уникальный естественный ключ
	Username string `json:"username"`
	// GivenName — имя
	GivenName string `json:"givenName,omitempty"`
	// FamilyName — фамилия
	FamilyName string `json:"familyName,omitempty"`
	// TenantID — идентификатор арендатора (Customer.ID), может быть пустым
	TenantID string `json:"tenantId,omitempty"`
	// Roles — снимки ролей
	Roles []Role `json:"roles,omitempty"`
	// ExternalPersonID — идентификатор персоны во внешнем реестре
	ExternalPersonID string `json:"externalPersonId,omitempty"`
	// LegacyIdentifier — устаревший вторичный идентификатор (Feide-подобный)
	LegacyIdentifier string `json:"legacyIdentifier,omitempty"`
	// InstitutionExternalID — внешний идентификатор учреждения арендатора
	InstitutionExternalID string `json:"institutionExternalId,omitempty"`
	// AffiliationUnitID — подразделение, к которому относится персона
	AffiliationUnitID string `json:"affiliationUnitId,omitempty"`
	// ViewingScope — область видимости (опционально)
	ViewingScope *ViewingScope `json:"viewingScope,omitempty"`
}

// ViewingScope — включённые и исключённые подразделения.
type ViewingScope struct {
	IncludedUnits []string `json:"includedUnits"`
	ExcludedUnits []string `json:"excludedUnits,omitempty"`
}

// UserQuery — запрос пользователя по естественному ключу.
// Если заданы ExternalPersonID и InstitutionExternalID — поиск идёт по индексу
// внешней идентичности, иначе по Username.
type UserQuery struct {
	Username              string
	ExternalPersonID      string
	InstitutionExternalID string
}

// ByExternalIdentity сообщает, что запрос адресует пару внешних идентификаторов.
func (q UserQuery) ByExternalIdentity() bool {
	return q.ExternalPersonID != "" && q.InstitutionExternalID != ""
}

// unitURIPath — ожидаемая форма пути идентификатора подразделения.
var unitURIPath = regexp.MustCompile(`^(/[^/]+)*/organization/[^/]+$`)

func (u User) EntityType() string { return TypeUser }

func (u User) NaturalKey() string { return u.Username }

// Validate проверяет username и область видимости.
func (u User) Validate() error {
	if isBlank(u.Username) {
		return fmt.Errorf("%w: username не задан", ErrInvalid)
	}
	if u.ViewingScope != nil {
		if err := u.ViewingScope.Validate(); err != nil {
			return fmt.Errorf("пользователь %q: %w", u.Username, err)
		}
	}
	return nil
}

func (u User) IndexKeys() map[Index]IndexKey {
	keys := make(map[Index]IndexKey, 2)
	if u.TenantID != "" {
		keys[IndexByTenant] = IndexKey{Partition: u.TenantID, Sort: u.Username}
	}
	if u.ExternalPersonID != "" {
		keys[IndexByExternalIdentity] = IndexKey{Partition: u.ExternalPersonID, Sort: u.InstitutionExternalID}
	}
	return keys
}

// Merge — новая версия пользователя заменяет сохранённую.
func (u User) Merge(incoming User) User {
	return incoming
}

// RoleNames возвращает имена встроенных ролей.
func (u User) RoleNames() []string {
	names := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		names = append(names, r.Name)
	}
	return names
}

// Equal — сравнение поле за полем. Роли сравниваются как множество.
func (u User) Equal(other User) bool {
	if u.Username != other.Username ||
		u.GivenName != other.GivenName ||
		u.FamilyName != other.FamilyName ||
		u.TenantID != other.TenantID ||
		u.ExternalPersonID != other.ExternalPersonID ||
		u.LegacyIdentifier != other.LegacyIdentifier ||
		u.InstitutionExternalID != other.InstitutionExternalID ||
		u.AffiliationUnitID != other.AffiliationUnitID {
		return false
	}
	if !rolesEqual(u.Roles, other.Roles) {
		return false
	}
	return u.ViewingScope.Equal(other.ViewingScope)
}

// Validate проверяет, что набор включённых подразделений не пуст
// и каждый идентификатор имеет ожидаемую форму URI.
func (v *ViewingScope) Validate() error {
	if len(v.IncludedUnits) == 0 {
		return fmt.Errorf("%w: область видимости без включённых подразделений", ErrInvalid)
	}
	for _, unit := range append(slices.Clone(v.IncludedUnits), v.ExcludedUnits...) {
		if !IsUnitURI(unit) {
			return fmt.Errorf("%w: некорректный идентификатор подразделения %q", ErrInvalid, unit)
		}
	}
	return nil
}

// Equal сравнивает области видимости как множества (nil равен только nil).
func (v *ViewingScope) Equal(other *ViewingScope) bool {
	if v == nil || other == nil {
		return v == other
	}
	return slices.Equal(normalizeSet(v.IncludedUnits), normalizeSet(other.IncludedUnits)) &&
		slices.Equal(normalizeSet(v.ExcludedUnits), normalizeSet(other.ExcludedUnits))
}

// IsUnitURI проверяет форму идентификатора подразделения:
// абсолютный http(s) URI, путь которого оканчивается на /organization/<id>.
func IsUnitURI(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return false
	}
	return u.Host != "" && unitURIPath.MatchString(u.Path)
}

// rolesEqual сравнивает роли как множества по имени и правам.
func rolesEqual(a, b []Role) bool {
	setA, okA := roleSet(a)
	setB, okB := roleSet(b)
	if !okA || !okB {
		return false
	}
	return maps.EqualFunc(setA, setB, Role.Equal)
}

// roleSet индексирует роли по имени. Две роли с одним именем и разными
// правами не образуют множества: ok = false.
func roleSet(roles []Role) (map[string]Role, bool) {
	set := make(map[string]Role, len(roles))
	for _, r := range roles {
		if prev, dup := set[r.Name]; dup && !prev.Equal(r) {
			return nil, false
		}
		set[r.Name] = r
	}
	return set, true
}

package service

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/bigkaa/goartstore/identity-module/internal/domain/model"
	"github.com/bigkaa/goartstore/identity-module/internal/registry"
	"github.com/bigkaa/goartstore/identity-module/internal/repository"
)

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// testEnv — сервисы поверх одной in-memory таблицы.
type testEnv struct {
	table     repository.Table
	roles     *RoleService
	users     *UserService
	customers *CustomerService
	clients   *ClientService
	terms     *TermsService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	table, err := repository.NewMemoryTable()
	if err != nil {
		t.Fatalf("NewMemoryTable() ошибка: %v", err)
	}

	logger := testLogger()
	roles := NewRoleService(table, logger)
	return &testEnv{
		table:     table,
		roles:     roles,
		users:     NewUserService(table, roles, logger),
		customers: NewCustomerService(table, logger),
		clients:   NewClientService(table, logger),
		terms:     NewTermsService(table, logger),
	}
}

// mustAddRole создаёт роль или завершает тест.
func (e *testEnv) mustAddRole(t *testing.T, name string, rights ...string) model.Role {
	t.Helper()
	role, err := e.roles.AddRole(context.Background(), model.NewRole(name, rights...))
	if err != nil {
		t.Fatalf("AddRole(%q) ошибка: %v", name, err)
	}
	return *role
}

// mustAddUser создаёт пользователя или завершает тест.
func (e *testEnv) mustAddUser(t *testing.T, user model.User) *model.User {
	t.Helper()
	stored, err := e.users.AddUser(context.Background(), user)
	if err != nil {
		t.Fatalf("AddUser(%q) ошибка: %v", user.Username, err)
	}
	return stored
}

// mustAddCustomer регистрирует арендатора или завершает тест.
func (e *testEnv) mustAddCustomer(t *testing.T, id, institutionID string) *model.Customer {
	t.Helper()
	customer, err := e.customers.AddCustomer(context.Background(), model.Customer{
		ID:                    id,
		InstitutionExternalID: institutionID,
		Name:                  "Учреждение " + institutionID,
	})
	if err != nil {
		t.Fatalf("AddCustomer(%q) ошибка: %v", institutionID, err)
	}
	return customer
}

// fakeRegistry — реестр персон с фиксированным ответом.
type fakeRegistry struct {
	person *registry.Person
	err    error
	calls  int
}

func (f *fakeRegistry) LookupPerson(_ context.Context, _ string) (*registry.Person, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.person, nil
}

// countingLookup считает обращения к нижележащему TenantLookup.
type countingLookup struct {
	lookup TenantLookup
	calls  int
}

func (c *countingLookup) GetTenantByInstitutionExternalID(ctx context.Context, institutionID string) (*model.Customer, error) {
	c.calls++
	return c.lookup.GetTenantByInstitutionExternalID(ctx, institutionID)
}

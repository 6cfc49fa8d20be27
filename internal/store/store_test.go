package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/bigkaa/goartstore/identity-module/internal/domain/model"
	"github.com/bigkaa/goartstore/identity-module/internal/repository"
)

func newTable(t *testing.T) repository.Table {
	t.Helper()
	table, err := repository.NewMemoryTable()
	if err != nil {
		t.Fatalf("NewMemoryTable() ошибка: %v", err)
	}
	return table
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStore_CreateFetch(t *testing.T) {
	ctx := context.Background()
	users := New[model.User](newTable(t), discardLogger())

	alice := model.User{
		Username: "alice", GivenName: "Alice", TenantID: "T1",
		Roles: []model.Role{model.NewRole("Creator", "EDIT")},
	}
	if err := users.Create(ctx, alice); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}

	got, err := users.Fetch(ctx, "alice")
	if err != nil {
		t.Fatalf("Fetch() ошибка: %v", err)
	}
	if !got.Equal(alice) {
		t.Errorf("Fetch() = %+v, хотели %+v", got, alice)
	}

	if err := users.Create(ctx, alice); !errors.Is(err, ErrConflict) {
		t.Errorf("повторный Create(): ожидали ErrConflict, получили %v", err)
	}
}

func TestStore_ValidationErrors(t *testing.T) {
	ctx := context.Background()
	users := New[model.User](newTable(t), discardLogger())

	tests := []struct {
		name string
		call func() error
	}{
		{"Create без ключа", func() error { return users.Create(ctx, model.User{}) }},
		{"Persist без ключа", func() error { _, err := users.Persist(ctx, model.User{}); return err }},
		{"Replace без ключа", func() error { return users.Replace(ctx, model.User{}) }},
		{"Fetch пустой ключ", func() error { _, err := users.Fetch(ctx, " "); return err }},
		{"Delete пустой ключ", func() error { return users.Delete(ctx, "") }},
		{"Query пустой partition", func() error { _, err := users.Query(ctx, model.IndexByTenant, ""); return err }},
		{"ScanPage нулевой limit", func() error { _, _, err := users.ScanPage(ctx, "", 0); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("ожидали ErrInvalidArgument, получили %v", err)
			}
		})
	}
}

func TestStore_FetchMissing(t *testing.T) {
	ctx := context.Background()
	roles := New[model.Role](newTable(t), discardLogger())

	if _, err := roles.Fetch(ctx, "Ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Fetch(): ожидали ErrNotFound, получили %v", err)
	}

	_, found, err := roles.Find(ctx, "Ghost")
	if err != nil || found {
		t.Errorf("Find() = found %v, err %v; хотели false, nil", found, err)
	}

	if err := roles.Delete(ctx, "Ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete(): ожидали ErrNotFound, получили %v", err)
	}
}

func TestStore_Replace(t *testing.T) {
	ctx := context.Background()
	roles := New[model.Role](newTable(t), discardLogger())

	if err := roles.Replace(ctx, model.NewRole("Curator")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Replace() отсутствующей: ожидали ErrNotFound, получили %v", err)
	}

	if err := roles.Create(ctx, model.NewRole("Curator", "A")); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}
	if err := roles.Replace(ctx, model.NewRole("Curator", "B")); err != nil {
		t.Fatalf("Replace() ошибка: %v", err)
	}

	got, _ := roles.Fetch(ctx, "Curator")
	if !got.Equal(model.NewRole("Curator", "B")) {
		t.Errorf("после Replace: %+v", got)
	}
}

func TestStore_PersistMergesTerms(t *testing.T) {
	ctx := context.Background()
	terms := New[model.Terms](newTable(t), discardLogger())

	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	first := model.Terms{
		SubjectID: "p-1", SubjectType: model.SubjectPerson, TermsURI: "https://terms/v1",
		Created: created, CreatedBy: "alice", Modified: created, ModifiedBy: "alice",
	}
	if _, err := terms.Persist(ctx, first); err != nil {
		t.Fatalf("Persist() ошибка: %v", err)
	}

	later := created.Add(48 * time.Hour)
	second := model.Terms{
		SubjectID: "p-1", SubjectType: model.SubjectPerson, TermsURI: "https://terms/v2",
		Created: later, CreatedBy: "bob", Modified: later, ModifiedBy: "bob",
	}
	merged, err := terms.Persist(ctx, second)
	if err != nil {
		t.Fatalf("Persist() ошибка: %v", err)
	}
	if merged.CreatedBy != "alice" || !merged.Created.Equal(created) {
		t.Errorf("Created/CreatedBy = %v/%q, должны сохраниться", merged.Created, merged.CreatedBy)
	}

	stored, err := terms.Fetch(ctx, second.NaturalKey())
	if err != nil {
		t.Fatalf("Fetch() ошибка: %v", err)
	}
	if stored.TermsURI != "https://terms/v2" || stored.ModifiedBy != "bob" {
		t.Errorf("сохранено %+v", stored)
	}
}

func TestStore_QueryByIndex(t *testing.T) {
	ctx := context.Background()
	table := newTable(t)
	users := New[model.User](table, discardLogger())

	for _, u := range []model.User{
		{Username: "bob", TenantID: "T1"},
		{Username: "alice", TenantID: "T1"},
		{Username: "carol", TenantID: "T2"},
	} {
		if err := users.Create(ctx, u); err != nil {
			t.Fatalf("Create(%s) ошибка: %v", u.Username, err)
		}
	}

	got, err := users.Query(ctx, model.IndexByTenant, "T1")
	if err != nil {
		t.Fatalf("Query() ошибка: %v", err)
	}
	if len(got) != 2 || got[0].Username != "alice" || got[1].Username != "bob" {
		t.Errorf("Query(T1) = %+v, хотели [alice bob]", got)
	}

	none, err := users.Query(ctx, model.IndexByTenant, "T9")
	if err != nil || len(none) != 0 {
		t.Errorf("Query(T9) = %v, %v; хотели пустой срез", none, err)
	}
}

func TestStore_ScanIsLazyAndRestartable(t *testing.T) {
	ctx := context.Background()
	table := newTable(t)
	users := New[model.User](table, discardLogger())
	roles := New[model.Role](table, discardLogger())

	const total = scanPageSize + 5
	for i := range total {
		if err := users.Create(ctx, model.User{Username: fmt.Sprintf("user-%03d", i)}); err != nil {
			t.Fatalf("Create() ошибка: %v", err)
		}
	}
	if err := roles.Create(ctx, model.NewRole("Creator")); err != nil {
		t.Fatalf("Create() роли ошибка: %v", err)
	}

	seq := users.Scan(ctx)

	all, err := Collect(seq)
	if err != nil {
		t.Fatalf("Collect() ошибка: %v", err)
	}
	if len(all) != total {
		t.Errorf("Scan() вернул %d, хотели %d", len(all), total)
	}

	// Повторный обход той же последовательности начинается заново
	again, err := Collect(seq)
	if err != nil || len(again) != total {
		t.Errorf("повторный обход: %d, %v", len(again), err)
	}

	// Досрочная остановка
	count := 0
	for _, err := range seq {
		if err != nil {
			t.Fatalf("ошибка обхода: %v", err)
		}
		count++
		if count == 3 {
			break
		}
	}
	if count != 3 {
		t.Errorf("остановились на %d", count)
	}

	rolesAll, err := Collect(roles.Scan(ctx))
	if err != nil || len(rolesAll) != 1 {
		t.Errorf("роли: %d, %v; хотели 1", len(rolesAll), err)
	}
}

func TestStore_DeleteRemovesFromIndexes(t *testing.T) {
	ctx := context.Background()
	users := New[model.User](newTable(t), discardLogger())

	u := model.User{Username: "alice", TenantID: "T1", ExternalPersonID: "p-1", InstitutionExternalID: "inst"}
	if err := users.Create(ctx, u); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}
	if err := users.Delete(ctx, "alice"); err != nil {
		t.Fatalf("Delete() ошибка: %v", err)
	}

	got, err := users.Query(ctx, model.IndexByExternalIdentity, "p-1")
	if err != nil || len(got) != 0 {
		t.Errorf("после Delete Query() = %v, %v", got, err)
	}
}

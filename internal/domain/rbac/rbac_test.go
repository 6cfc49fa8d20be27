package rbac

import (
	"slices"
	"testing"

	"github.com/bigkaa/goartstore/identity-module/internal/domain/model"
)

func TestEffectiveAccessRights(t *testing.T) {
	tests := []struct {
		name  string
		roles []model.Role
		want  []string
	}{
		{
			name:  "без ролей",
			roles: nil,
			want:  []string{},
		},
		{
			name:  "одна роль",
			roles: []model.Role{model.NewRole("Curator", "APPROVE_DOI", "EDIT")},
			want:  []string{"APPROVE_DOI", "EDIT"},
		},
		{
			name: "пересекающиеся роли — без дубликатов",
			roles: []model.Role{
				model.NewRole("Curator", "APPROVE_DOI", "EDIT"),
				model.NewRole("Editor", "EDIT", "PUBLISH"),
			},
			want: []string{"APPROVE_DOI", "EDIT", "PUBLISH"},
		},
		{
			name:  "роль без прав",
			roles: []model.Role{model.NewRole("Creator")},
			want:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EffectiveAccessRights(model.User{Username: "alice", Roles: tt.roles})
			if !slices.Equal(got, tt.want) {
				t.Errorf("EffectiveAccessRights() = %v, хотели %v", got, tt.want)
			}
		})
	}
}

func TestHasAccessRight(t *testing.T) {
	u := model.User{Username: "alice", Roles: []model.Role{model.NewRole("Curator", "APPROVE_DOI")}}

	if !HasAccessRight(u, "APPROVE_DOI") {
		t.Error("ожидалось право APPROVE_DOI")
	}
	if HasAccessRight(u, "PUBLISH") {
		t.Error("право PUBLISH не должно быть выдано")
	}
}

func TestWithRole(t *testing.T) {
	roles := []model.Role{model.NewRole("Creator")}

	added := WithRole(roles, model.NewRole("Curator"))
	if len(added) != 2 || !HasRole(model.User{Roles: added}, "Curator") {
		t.Errorf("WithRole() = %v, ожидалась добавленная роль Curator", added)
	}
	if len(roles) != 1 {
		t.Error("исходный набор не должен меняться")
	}

	same := WithRole(roles, model.NewRole("Creator", "X"))
	if len(same) != 1 {
		t.Errorf("повторная роль не должна добавляться: %v", same)
	}
}

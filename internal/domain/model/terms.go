package model

import (
	"fmt"
	"time"
)

// Тип субъекта соглашения.
const (
	SubjectPerson = "Person"
	SubjectTenant = "Tenant"
)

// Terms — принятые условия использования для персоны или арендатора.
type Terms struct {
	SubjectID   string     `json:"subjectId"`
	SubjectType string     `json:"subjectType"`
	TermsURI    string     `json:"termsUri"`
	Created     time.Time  `json:"created"`
	CreatedBy   string     `json:"createdBy,omitempty"`
	Modified    time.Time  `json:"modified"`
	ModifiedBy  string     `json:"modifiedBy,omitempty"`
	ValidFrom   *time.Time `json:"validFrom,omitempty"`
}

func (t Terms) EntityType() string { return TypeTerms }

// NaturalKey — <SubjectType>:<SubjectID>.
func (t Terms) NaturalKey() string { return t.SubjectType + ":" + t.SubjectID }

func (t Terms) Validate() error {
	if isBlank(t.SubjectID) {
		return fmt.Errorf("%w: subjectId не задан", ErrInvalid)
	}
	if t.SubjectType != SubjectPerson && t.SubjectType != SubjectTenant {
		return fmt.Errorf("%w: недопустимый тип субъекта %q", ErrInvalid, t.SubjectType)
	}
	return nil
}

func (t Terms) IndexKeys() map[Index]IndexKey { return nil }

// Merge сохраняет Created/CreatedBy исходной записи,
// остальное берёт из новой.
func (t Terms) Merge(incoming Terms) Terms {
	merged := incoming
	merged.Created = t.Created
	merged.CreatedBy = t.CreatedBy
	return merged
}

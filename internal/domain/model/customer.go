package model

import (
	"fmt"
	"time"
)

// Customer — арендатор (учреждение-клиент платформы).
type Customer struct {
	// ID — внутренний идентификатор (UUID)
	ID string `json:"id"`
	// InstitutionExternalID — идентификатор учреждения во внешнем реестре
	InstitutionExternalID string `json:"institutionExternalId"`
	// Name — отображаемое имя
	Name     string    `json:"name,omitempty"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`
}

func (c Customer) EntityType() string { return TypeCustomer }

func (c Customer) NaturalKey() string { return c.ID }

func (c Customer) Validate() error {
	if isBlank(c.ID) {
		return fmt.Errorf("%w: id арендатора не задан", ErrInvalid)
	}
	return nil
}

func (c Customer) IndexKeys() map[Index]IndexKey {
	if c.InstitutionExternalID == "" {
		return nil
	}
	return map[Index]IndexKey{
		IndexByInstitution: {Partition: c.InstitutionExternalID, Sort: c.ID},
	}
}

// Merge сохраняет время создания.
func (c Customer) Merge(incoming Customer) Customer {
	merged := incoming
	merged.Created = c.Created
	return merged
}

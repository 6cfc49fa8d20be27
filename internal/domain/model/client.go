package model

import "fmt"

// Client — учётные данные клиента (machine-to-machine).
// Ключ — clientId в пространстве типа Client.
type Client struct {
	// ClientID — идентификатор клиента
	ClientID string `json:"clientId"`
	// TenantID — арендатор, от имени которого действует клиент
	TenantID string `json:"tenantId,omitempty"`
	// InstitutionExternalID — внешний идентификатор учреждения
	InstitutionExternalID string `json:"institutionExternalId,omitempty"`
	// ActingUser — username пользователя, от имени которого действует клиент
	ActingUser string `json:"actingUser,omitempty"`
}

func (c Client) EntityType() string { return TypeClient }

func (c Client) NaturalKey() string { return c.ClientID }

func (c Client) Validate() error {
	if isBlank(c.ClientID) {
		return fmt.Errorf("%w: clientId не задан", ErrInvalid)
	}
	return nil
}

func (c Client) IndexKeys() map[Index]IndexKey { return nil }

func (c Client) Merge(incoming Client) Client { return incoming }

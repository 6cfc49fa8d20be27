// clients.go — учётные записи клиентов (machine-to-machine).
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bigkaa/goartstore/identity-module/internal/domain/model"
	"github.com/bigkaa/goartstore/identity-module/internal/repository"
	"github.com/bigkaa/goartstore/identity-module/internal/store"
)

// ClientService — сервис управления клиентами.
type ClientService struct {
	clients *store.Store[model.Client]
	logger  *slog.Logger
}

// NewClientService создаёт сервис клиентов.
func NewClientService(table repository.Table, logger *slog.Logger) *ClientService {
	return &ClientService{
		clients: store.New[model.Client](table, logger),
		logger:  logger.With(slog.String("component", "client_service")),
	}
}

func clientRef(clientID string) string {
	return fmt.Sprintf("клиент %q", clientID)
}

// AddClient регистрирует клиента. Существующий clientId — ErrConflict.
func (s *ClientService) AddClient(ctx context.Context, client model.Client) (*model.Client, error) {
	if err := client.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if err := s.clients.Create(ctx, client); err != nil {
		return nil, mapStoreError(err, clientRef(client.ClientID))
	}

	s.logger.Info("Клиент зарегистрирован",
		slog.String("client_id", client.ClientID),
		slog.String("tenant_id", client.TenantID),
	)
	return &client, nil
}

// GetClient возвращает клиента по clientId.
func (s *ClientService) GetClient(ctx context.Context, clientID string) (*model.Client, error) {
	client, err := s.clients.Fetch(ctx, clientID)
	if err != nil {
		return nil, mapStoreError(err, clientRef(clientID))
	}
	return &client, nil
}

// DeleteClient удаляет клиента.
func (s *ClientService) DeleteClient(ctx context.Context, clientID string) error {
	if err := s.clients.Delete(ctx, clientID); err != nil {
		return mapStoreError(err, clientRef(clientID))
	}
	s.logger.Info("Клиент удалён", slog.String("client_id", clientID))
	return nil
}

// ListClients возвращает всех клиентов.
func (s *ClientService) ListClients(ctx context.Context) ([]*model.Client, error) {
	clients, err := store.Collect(s.clients.Scan(ctx))
	if err != nil {
		return nil, fmt.Errorf("получение списка клиентов: %w", err)
	}
	return toPointers(clients), nil
}

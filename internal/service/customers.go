// customers.go — реестр арендаторов (Customer) и поиск арендатора
// по внешнему идентификатору учреждения.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/goartstore/identity-module/internal/domain/model"
	"github.com/bigkaa/goartstore/identity-module/internal/repository"
	"github.com/bigkaa/goartstore/identity-module/internal/store"
)

// TenantLookup — поиск арендатора по внешнему идентификатору учреждения.
// Отсутствие арендатора — ErrNotFound.
type TenantLookup interface {
	GetTenantByInstitutionExternalID(ctx context.Context, institutionID string) (*model.Customer, error)
}

// CustomerService — сервис управления арендаторами.
type CustomerService struct {
	customers *store.Store[model.Customer]
	logger    *slog.Logger

	// вызываются после изменения арендатора для затронутых учреждений
	changeHooks []func(institutionID string)
}

// NewCustomerService создаёт сервис арендаторов.
func NewCustomerService(table repository.Table, logger *slog.Logger) *CustomerService {
	return &CustomerService{
		customers: store.New[model.Customer](table, logger),
		logger:    logger.With(slog.String("component", "customer_service")),
	}
}

// OnInstitutionChanged регистрирует fn, вызываемую после UpdateCustomer
// для прежнего и нового учреждения арендатора. Используется кэшем
// арендаторов. Регистрировать до начала обслуживания запросов.
func (s *CustomerService) OnInstitutionChanged(fn func(institutionID string)) {
	s.changeHooks = append(s.changeHooks, fn)
}

func (s *CustomerService) notifyChanged(institutionIDs ...string) {
	for _, id := range institutionIDs {
		for _, fn := range s.changeHooks {
			fn(id)
		}
	}
}

func customerRef(id string) string {
	return fmt.Sprintf("арендатор %q", id)
}

func institutionRef(institutionID string) string {
	return fmt.Sprintf("арендатор учреждения %q", institutionID)
}

// AddCustomer регистрирует арендатора. ID генерируется, если не задан.
// Одно учреждение может принадлежать только одному арендатору.
func (s *CustomerService) AddCustomer(ctx context.Context, customer model.Customer) (*model.Customer, error) {
	if customer.InstitutionExternalID == "" {
		return nil, fmt.Errorf("%w: не задан внешний идентификатор учреждения", ErrValidation)
	}
	if customer.ID == "" {
		customer.ID = uuid.New().String()
	}

	owner, err := s.findByInstitution(ctx, customer.InstitutionExternalID)
	if err != nil {
		return nil, err
	}
	if owner != nil {
		return nil, fmt.Errorf("%w: учреждение %q уже принадлежит арендатору %q",
			ErrConflict, customer.InstitutionExternalID, owner.ID)
	}

	now := time.Now().UTC()
	customer.Created = now
	customer.Modified = now

	if err := s.customers.Create(ctx, customer); err != nil {
		return nil, mapStoreError(err, customerRef(customer.ID))
	}

	s.logger.Info("Арендатор создан",
		slog.String("customer_id", customer.ID),
		slog.String("institution_id", customer.InstitutionExternalID),
	)
	return &customer, nil
}

// GetCustomer возвращает арендатора по ID.
func (s *CustomerService) GetCustomer(ctx context.Context, id string) (*model.Customer, error) {
	customer, err := s.customers.Fetch(ctx, id)
	if err != nil {
		return nil, mapStoreError(err, customerRef(id))
	}
	return &customer, nil
}

// UpdateCustomer обновляет арендатора. Время создания сохраняется.
func (s *CustomerService) UpdateCustomer(ctx context.Context, customer model.Customer) (*model.Customer, error) {
	if customer.InstitutionExternalID == "" {
		return nil, fmt.Errorf("%w: не задан внешний идентификатор учреждения", ErrValidation)
	}
	current, err := s.GetCustomer(ctx, customer.ID)
	if err != nil {
		return nil, err
	}

	owner, err := s.findByInstitution(ctx, customer.InstitutionExternalID)
	if err != nil {
		return nil, err
	}
	if owner != nil && owner.ID != customer.ID {
		return nil, fmt.Errorf("%w: учреждение %q уже принадлежит арендатору %q",
			ErrConflict, customer.InstitutionExternalID, owner.ID)
	}

	customer.Modified = time.Now().UTC()
	stored, err := s.customers.Persist(ctx, customer)
	if err != nil {
		return nil, mapStoreError(err, customerRef(customer.ID))
	}

	if current.InstitutionExternalID != stored.InstitutionExternalID {
		s.notifyChanged(current.InstitutionExternalID, stored.InstitutionExternalID)
	} else {
		s.notifyChanged(stored.InstitutionExternalID)
	}

	s.logger.Info("Арендатор обновлён", slog.String("customer_id", customer.ID))
	return &stored, nil
}

// ListCustomers возвращает всех арендаторов.
func (s *CustomerService) ListCustomers(ctx context.Context) ([]*model.Customer, error) {
	customers, err := store.Collect(s.customers.Scan(ctx))
	if err != nil {
		return nil, fmt.Errorf("получение списка арендаторов: %w", err)
	}
	return toPointers(customers), nil
}

// GetTenantByInstitutionExternalID возвращает арендатора учреждения или ErrNotFound.
func (s *CustomerService) GetTenantByInstitutionExternalID(ctx context.Context, institutionID string) (*model.Customer, error) {
	customer, err := s.findByInstitution(ctx, institutionID)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, institutionRef(institutionID))
	}
	return customer, nil
}

// findByInstitution ищет арендатора по индексу учреждения.
// Отсутствие — nil без ошибки, несколько совпадений — ErrIndexInvariant.
func (s *CustomerService) findByInstitution(ctx context.Context, institutionID string) (*model.Customer, error) {
	customers, err := s.customers.Query(ctx, model.IndexByInstitution, institutionID)
	if err != nil {
		return nil, mapStoreError(err, institutionRef(institutionID))
	}

	switch len(customers) {
	case 0:
		return nil, nil
	case 1:
		return &customers[0], nil
	default:
		return nil, fmt.Errorf("%w: %s: найдено %d арендаторов",
			ErrIndexInvariant, institutionRef(institutionID), len(customers))
	}
}

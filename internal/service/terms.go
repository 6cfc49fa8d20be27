// terms.go — принятые условия использования.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bigkaa/goartstore/identity-module/internal/domain/model"
	"github.com/bigkaa/goartstore/identity-module/internal/repository"
	"github.com/bigkaa/goartstore/identity-module/internal/store"
)

// TermsService — сервис условий использования.
type TermsService struct {
	terms  *store.Store[model.Terms]
	logger *slog.Logger
}

// NewTermsService создаёт сервис условий использования.
func NewTermsService(table repository.Table, logger *slog.Logger) *TermsService {
	return &TermsService{
		terms:  store.New[model.Terms](table, logger),
		logger: logger.With(slog.String("component", "terms_service")),
	}
}

func termsRef(subjectType, subjectID string) string {
	return fmt.Sprintf("условия для %s %q", subjectType, subjectID)
}

// SetTerms сохраняет условия. При первой записи actor становится автором,
// при повторной меняются только поля изменения.
func (s *TermsService) SetTerms(ctx context.Context, terms model.Terms, actor string) (*model.Terms, error) {
	if err := terms.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	now := time.Now().UTC()
	terms.Created = now
	terms.CreatedBy = actor
	terms.Modified = now
	terms.ModifiedBy = actor

	// Persist сохраняет Created/CreatedBy существующей записи
	stored, err := s.terms.Persist(ctx, terms)
	if err != nil {
		return nil, mapStoreError(err, termsRef(terms.SubjectType, terms.SubjectID))
	}

	s.logger.Info("Условия использования сохранены",
		slog.String("subject_type", stored.SubjectType),
		slog.String("subject_id", stored.SubjectID),
		slog.String("terms_uri", stored.TermsURI),
	)
	return &stored, nil
}

// GetTerms возвращает условия для субъекта.
func (s *TermsService) GetTerms(ctx context.Context, subjectType, subjectID string) (*model.Terms, error) {
	key := model.Terms{SubjectType: subjectType, SubjectID: subjectID}.NaturalKey()
	terms, err := s.terms.Fetch(ctx, key)
	if err != nil {
		return nil, mapStoreError(err, termsRef(subjectType, subjectID))
	}
	return &terms, nil
}

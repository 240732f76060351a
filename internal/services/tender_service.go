package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"tenderhub/db"
	"tenderhub/models"
)

// TenderService - жизненный цикл тендера: создание, модерация, правки, закрытие
type TenderService struct {
	store Storage
	now   func() time.Time
}

func NewTenderService(store Storage, opts ...Option) *TenderService {
	o := buildOptions(opts)
	return &TenderService{store: store, now: o.now}
}

// TenderQuery - фильтры списков тендеров
type TenderQuery struct {
	ServiceTypes   []string
	ApprovalStatus string
	Page
}

func (s *TenderService) CreateTender(ctx context.Context, caller models.Identity, in models.TenderInput) (*models.Tender, error) {
	if !caller.Is(models.RoleMember) {
		return nil, forbidden("only JMB members can create tenders")
	}
	in = normalizeTenderInput(in)
	if err := validateInput(in); err != nil {
		return nil, err
	}

	now := s.now()
	t := &models.Tender{
		ID:             uuid.NewString(),
		OwnerID:        caller.UserID,
		Status:         models.TenderOpen,
		ApprovalStatus: models.ApprovalPending,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	applyTenderInput(t, in)

	if err := s.store.CreateTender(ctx, t); err != nil {
		return nil, errors.Wrap(err, "create tender")
	}
	return t, nil
}

// SetApprovalStatus - решение администратора. Повторное решение
// перезаписывает предыдущее.
func (s *TenderService) SetApprovalStatus(ctx context.Context, caller models.Identity, tenderID, decision string) (*models.Tender, error) {
	if !caller.Is(models.RoleAdmin) {
		return nil, forbidden("only administrators can approve or reject tenders")
	}
	status, err := models.ParseApprovalDecision(decision)
	if err != nil {
		return nil, NewValidationError(FieldError{Field: "approvalStatus", Message: err.Error()})
	}

	var res *models.Tender
	err = withRetry(func() error {
		t, err := s.store.GetTender(ctx, tenderID)
		if err != nil {
			return notFound(err, "tender")
		}
		now := s.now()
		decidedBy := caller.UserID
		t.ApprovalStatus = status
		t.ApprovalDecidedBy = &decidedBy
		t.ApprovalDecidedAt = &now
		t.UpdatedAt = now
		if err := s.store.UpdateTender(ctx, t); err != nil {
			return err
		}
		res = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// UpdateTender - правка полей владельцем, пока тендер не закрыт.
// Статус одобрения не сбрасывается.
func (s *TenderService) UpdateTender(ctx context.Context, caller models.Identity, tenderID string, in models.TenderInput) (*models.Tender, error) {
	in = normalizeTenderInput(in)

	var res *models.Tender
	err := withRetry(func() error {
		t, err := s.store.GetTender(ctx, tenderID)
		if err != nil {
			return notFound(err, "tender")
		}
		if !t.IsOwnedBy(caller.UserID) {
			return forbidden("only the tender owner can update it")
		}
		if t.Status == models.TenderClosed {
			return invalidState("closed tender cannot be updated")
		}
		if err := validateInput(in); err != nil {
			return err
		}
		applyTenderInput(t, in)
		t.UpdatedAt = s.now()
		if err := s.store.UpdateTender(ctx, t); err != nil {
			return err
		}
		res = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *TenderService) CloseTender(ctx context.Context, caller models.Identity, tenderID string) (*models.Tender, error) {
	var res *models.Tender
	err := withRetry(func() error {
		t, err := s.store.GetTender(ctx, tenderID)
		if err != nil {
			return notFound(err, "tender")
		}
		if !t.IsOwnedBy(caller.UserID) {
			return forbidden("only the tender owner can close it")
		}
		if t.Status == models.TenderClosed {
			return invalidState("tender is already closed")
		}
		t.Status = models.TenderClosed
		t.UpdatedAt = s.now()
		if err := s.store.UpdateTender(ctx, t); err != nil {
			return err
		}
		res = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// CloseExpired закрывает открытые тендеры, срок подачи которых истёк к now
func (s *TenderService) CloseExpired(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.store.CloseExpiredTenders(ctx, now)
	if err != nil {
		return 0, errors.Wrap(err, "close expired tenders")
	}
	return n, nil
}

// GetTender - владелец и администратор видят любой тендер,
// остальные только опубликованный.
func (s *TenderService) GetTender(ctx context.Context, caller models.Identity, tenderID string) (*models.Tender, error) {
	t, err := s.store.GetTender(ctx, tenderID)
	if err != nil {
		return nil, notFound(err, "tender")
	}
	if t.IsOwnedBy(caller.UserID) || caller.Is(models.RoleAdmin) || t.IsVisible() {
		return t, nil
	}
	return nil, forbidden("tender is not published")
}

// ListVisibleTenders - открытые и одобренные тендеры для подрядчиков.
// Тендеры с истёкшим сроком не показываются, даже если закрывающая
// задача ещё не отработала.
func (s *TenderService) ListVisibleTenders(ctx context.Context, q TenderQuery) ([]models.Tender, error) {
	page, err := q.Page.normalize()
	if err != nil {
		return nil, err
	}
	tenders, err := s.store.ListTenders(ctx, db.TenderFilter{
		Status:         models.TenderOpen,
		ApprovalStatus: models.ApprovalApproved,
		ServiceTypes:   compactStrings(q.ServiceTypes),
		ClosingAfter:   s.now(),
		Limit:          page.Limit,
		Offset:         page.Offset,
	})
	return tenders, errors.Wrap(err, "list visible tenders")
}

func (s *TenderService) ListOwnerTenders(ctx context.Context, caller models.Identity) ([]models.Tender, error) {
	tenders, err := s.store.ListTenders(ctx, db.TenderFilter{OwnerID: caller.UserID})
	return tenders, errors.Wrap(err, "list owner tenders")
}

// ListAllTenders - очередь модерации для администратора
func (s *TenderService) ListAllTenders(ctx context.Context, caller models.Identity, q TenderQuery) ([]models.Tender, error) {
	if !caller.Is(models.RoleAdmin) {
		return nil, forbidden("only administrators can list all tenders")
	}
	page, err := q.Page.normalize()
	if err != nil {
		return nil, err
	}
	f := db.TenderFilter{
		ServiceTypes: compactStrings(q.ServiceTypes),
		Limit:        page.Limit,
		Offset:       page.Offset,
	}
	if q.ApprovalStatus != "" {
		st, err := models.ParseApprovalStatus(q.ApprovalStatus)
		if err != nil {
			return nil, NewValidationError(FieldError{Field: "approval_status", Message: err.Error()})
		}
		f.ApprovalStatus = st
	}
	tenders, err := s.store.ListTenders(ctx, f)
	return tenders, errors.Wrap(err, "list all tenders")
}

func applyTenderInput(t *models.Tender, in models.TenderInput) {
	t.Title = in.Title
	t.ServiceType = in.ServiceType
	t.PropertyName = in.PropertyName
	t.PropertyAddress = in.PropertyAddress
	t.ScopeOfWork = in.ScopeOfWork
	t.ContractPeriodMonths = in.ContractPeriodMonths
	t.MinBudget = in.MinBudget
	t.MaxBudget = in.MaxBudget
	t.ClosingAt = in.ClosingAt
	t.SiteVisitAt = in.SiteVisitAt
	t.ContactPerson = in.ContactPerson
	t.ContactEmail = in.ContactEmail
	t.ContactPhone = in.ContactPhone
	t.RequiredLicenses = pq.StringArray(in.RequiredLicenses)
	t.EvaluationCriteria = models.Criteria(in.EvaluationCriteria)
	t.TenderFee = in.TenderFee
	t.Documents = pq.StringArray(in.Documents)
}

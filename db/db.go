package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"tenderhub/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrStale     = errors.New("record was modified concurrently")
	ErrDuplicate = errors.New("record already exists")
)

// TenderFilter - условия выборки тендеров, пустые поля не фильтруют
type TenderFilter struct {
	OwnerID        string
	Status         models.TenderStatus
	ApprovalStatus models.ApprovalStatus
	ServiceTypes   []string
	ClosingAfter   time.Time // нулевое значение - без ограничения
	Limit          int       // 0 - без ограничения
	Offset         int
}

// BidFilter - условия выборки предложений
type BidFilter struct {
	TenderID      string
	ContractorID  string
	OrderByAmount bool // по возрастанию суммы, иначе по времени подачи
}

type Storage struct {
	db *sqlx.DB
}

func NewStorage(db *sqlx.DB) *Storage {
	return &Storage{db: db}
}

const tenderColumns = `id, owner_id, title, service_type, property_name, property_address,
	scope_of_work, contract_period_months, min_budget, max_budget, closing_at, site_visit_at,
	contact_person, contact_email, contact_phone, required_licenses, evaluation_criteria,
	tender_fee, documents, status, approval_status, approval_decided_by, approval_decided_at,
	version, created_at, updated_at`

const bidColumns = `id, tender_id, contractor_id, proposed_amount, company_name,
	company_registration, years_of_experience, proposed_timeline, cover_letter,
	proposal_document, status, decided_by, decided_at, version, created_at, updated_at`

// Tender (Тендер)

func (s *Storage) CreateTender(ctx context.Context, t *models.Tender) error {
	normalizeTender(t)
	query := `
        INSERT INTO tenders (` + tenderColumns + `)
        VALUES
            (:id, :owner_id, :title, :service_type, :property_name, :property_address,
             :scope_of_work, :contract_period_months, :min_budget, :max_budget, :closing_at, :site_visit_at,
             :contact_person, :contact_email, :contact_phone, :required_licenses, :evaluation_criteria,
             :tender_fee, :documents, :status, :approval_status, :approval_decided_by, :approval_decided_at,
             :version, :created_at, :updated_at)`
	_, err := s.db.NamedExecContext(ctx, query, t)
	return errors.Wrap(err, "insert tender")
}

func (s *Storage) GetTender(ctx context.Context, id string) (*models.Tender, error) {
	// колонка id имеет тип uuid, невалидный идентификатор просто не найдётся
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	t := &models.Tender{}
	query := `SELECT ` + tenderColumns + ` FROM tenders WHERE id = $1`
	if err := s.db.GetContext(ctx, t, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "select tender")
	}
	return t, nil
}

// UpdateTender перезаписывает тендер, если версия в базе совпадает с t.Version.
// При успехе версия увеличивается, иначе возвращается ErrStale.
func (s *Storage) UpdateTender(ctx context.Context, t *models.Tender) error {
	normalizeTender(t)
	query := `
        UPDATE tenders
        SET title = :title, service_type = :service_type, property_name = :property_name,
            property_address = :property_address, scope_of_work = :scope_of_work,
            contract_period_months = :contract_period_months, min_budget = :min_budget,
            max_budget = :max_budget, closing_at = :closing_at, site_visit_at = :site_visit_at,
            contact_person = :contact_person, contact_email = :contact_email,
            contact_phone = :contact_phone, required_licenses = :required_licenses,
            evaluation_criteria = :evaluation_criteria, tender_fee = :tender_fee,
            documents = :documents, status = :status, approval_status = :approval_status,
            approval_decided_by = :approval_decided_by, approval_decided_at = :approval_decided_at,
            updated_at = :updated_at, version = version + 1
        WHERE id = :id AND version = :version`
	res, err := s.db.NamedExecContext(ctx, query, t)
	if err != nil {
		return errors.Wrap(err, "update tender")
	}
	if err := checkSwapped(res); err != nil {
		return err
	}
	t.Version++
	return nil
}

func (s *Storage) ListTenders(ctx context.Context, f TenderFilter) ([]models.Tender, error) {
	var (
		filters []string
		args    []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		filters = append(filters, fmt.Sprintf(cond, len(args)))
	}
	if f.OwnerID != "" {
		add("owner_id = $%d", f.OwnerID)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.ApprovalStatus != "" {
		add("approval_status = $%d", f.ApprovalStatus)
	}
	if len(f.ServiceTypes) > 0 {
		add("service_type = ANY($%d)", pq.Array(f.ServiceTypes))
	}
	if !f.ClosingAfter.IsZero() {
		add("closing_at > $%d", f.ClosingAfter)
	}

	query := `SELECT ` + tenderColumns + ` FROM tenders`
	if len(filters) > 0 {
		query += " WHERE " + strings.Join(filters, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}
	if f.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", f.Offset)
	}

	tenders := []models.Tender{}
	if err := s.db.SelectContext(ctx, &tenders, query, args...); err != nil {
		return nil, errors.Wrap(err, "select tenders")
	}
	return tenders, nil
}

// CloseExpiredTenders закрывает все открытые тендеры со сроком подачи до now
func (s *Storage) CloseExpiredTenders(ctx context.Context, now time.Time) (int64, error) {
	query := `
        UPDATE tenders
        SET status = $1, updated_at = $2, version = version + 1
        WHERE status = $3 AND closing_at <= $2`
	res, err := s.db.ExecContext(ctx, query, models.TenderClosed, now, models.TenderOpen)
	if err != nil {
		return 0, errors.Wrap(err, "close expired tenders")
	}
	return res.RowsAffected()
}

// Bid (Предложение)

func (s *Storage) CreateBid(ctx context.Context, b *models.Bid) error {
	query := `
        INSERT INTO bids (` + bidColumns + `)
        VALUES
            (:id, :tender_id, :contractor_id, :proposed_amount, :company_name,
             :company_registration, :years_of_experience, :proposed_timeline, :cover_letter,
             :proposal_document, :status, :decided_by, :decided_at, :version, :created_at, :updated_at)`
	_, err := s.db.NamedExecContext(ctx, query, b)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return errors.Wrap(err, "insert bid")
}

func (s *Storage) GetBid(ctx context.Context, id string) (*models.Bid, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	b := &models.Bid{}
	query := `SELECT ` + bidColumns + ` FROM bids WHERE id = $1`
	if err := s.db.GetContext(ctx, b, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "select bid")
	}
	return b, nil
}

func (s *Storage) HasBid(ctx context.Context, tenderID, contractorID string) (bool, error) {
	if _, err := uuid.Parse(tenderID); err != nil {
		return false, nil
	}
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM bids WHERE tender_id = $1 AND contractor_id = $2)`
	if err := s.db.GetContext(ctx, &exists, query, tenderID, contractorID); err != nil {
		return false, errors.Wrap(err, "check bid exists")
	}
	return exists, nil
}

// UpdateBid - compare-and-set по версии, как и UpdateTender
func (s *Storage) UpdateBid(ctx context.Context, b *models.Bid) error {
	query := `
        UPDATE bids
        SET status = :status, decided_by = :decided_by, decided_at = :decided_at,
            updated_at = :updated_at, version = version + 1
        WHERE id = :id AND version = :version`
	res, err := s.db.NamedExecContext(ctx, query, b)
	if err != nil {
		return errors.Wrap(err, "update bid")
	}
	if err := checkSwapped(res); err != nil {
		return err
	}
	b.Version++
	return nil
}

func (s *Storage) ListBids(ctx context.Context, f BidFilter) ([]models.Bid, error) {
	var (
		filters []string
		args    []interface{}
	)
	if f.TenderID != "" {
		args = append(args, f.TenderID)
		filters = append(filters, fmt.Sprintf("tender_id = $%d", len(args)))
	}
	if f.ContractorID != "" {
		args = append(args, f.ContractorID)
		filters = append(filters, fmt.Sprintf("contractor_id = $%d", len(args)))
	}

	query := `SELECT ` + bidColumns + ` FROM bids`
	if len(filters) > 0 {
		query += " WHERE " + strings.Join(filters, " AND ")
	}
	if f.OrderByAmount {
		query += " ORDER BY proposed_amount ASC, created_at ASC, id"
	} else {
		query += " ORDER BY created_at ASC, id"
	}

	bids := []models.Bid{}
	if err := s.db.SelectContext(ctx, &bids, query, args...); err != nil {
		return nil, errors.Wrap(err, "select bids")
	}
	return bids, nil
}

func (s *Storage) ListBidsWithTender(ctx context.Context, contractorID string) ([]models.BidWithTender, error) {
	query := `
        SELECT b.id, b.tender_id, b.contractor_id, b.proposed_amount, b.company_name,
               b.company_registration, b.years_of_experience, b.proposed_timeline, b.cover_letter,
               b.proposal_document, b.status, b.decided_by, b.decided_at, b.version,
               b.created_at, b.updated_at,
               t.title AS "tender.title",
               t.service_type AS "tender.service_type",
               t.closing_at AS "tender.closing_at"
        FROM bids b
        JOIN tenders t ON t.id = b.tender_id
        WHERE b.contractor_id = $1
        ORDER BY b.created_at DESC, b.id`
	bids := []models.BidWithTender{}
	if err := s.db.SelectContext(ctx, &bids, query, contractorID); err != nil {
		return nil, errors.Wrap(err, "select contractor bids")
	}
	return bids, nil
}

// OwnerSnapshot читает тендеры владельца и предложения по ним в одной
// read-only транзакции, чтобы аналитика считалась по согласованным данным.
func (s *Storage) OwnerSnapshot(ctx context.Context, ownerID string) ([]models.Tender, []models.Bid, error) {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, nil, errors.Wrap(err, "begin snapshot")
	}
	defer tx.Rollback()

	tenders := []models.Tender{}
	query := `SELECT ` + tenderColumns + ` FROM tenders WHERE owner_id = $1 ORDER BY created_at ASC, id`
	if err := tx.SelectContext(ctx, &tenders, query, ownerID); err != nil {
		return nil, nil, errors.Wrap(err, "select snapshot tenders")
	}

	bids := []models.Bid{}
	query = `
        SELECT b.id, b.tender_id, b.contractor_id, b.proposed_amount, b.company_name,
               b.company_registration, b.years_of_experience, b.proposed_timeline, b.cover_letter,
               b.proposal_document, b.status, b.decided_by, b.decided_at, b.version,
               b.created_at, b.updated_at
        FROM bids b
        JOIN tenders t ON t.id = b.tender_id
        WHERE t.owner_id = $1
        ORDER BY b.created_at ASC, b.id`
	if err := tx.SelectContext(ctx, &bids, query, ownerID); err != nil {
		return nil, nil, errors.Wrap(err, "select snapshot bids")
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, errors.Wrap(err, "commit snapshot")
	}
	return tenders, bids, nil
}

func checkSwapped(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return ErrStale
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation"
}

// text[] и jsonb колонки объявлены NOT NULL
func normalizeTender(t *models.Tender) {
	if t.RequiredLicenses == nil {
		t.RequiredLicenses = pq.StringArray{}
	}
	if t.Documents == nil {
		t.Documents = pq.StringArray{}
	}
	if t.EvaluationCriteria == nil {
		t.EvaluationCriteria = models.Criteria{}
	}
}

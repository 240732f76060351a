package services

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"tenderhub/db"
	"tenderhub/models"
)

// Storage - хранилище тендеров и предложений.
// Реализации: db.Storage (PostgreSQL) и memdb.Storage.
type Storage interface {
	CreateTender(ctx context.Context, t *models.Tender) error
	GetTender(ctx context.Context, id string) (*models.Tender, error)
	UpdateTender(ctx context.Context, t *models.Tender) error
	ListTenders(ctx context.Context, f db.TenderFilter) ([]models.Tender, error)
	CloseExpiredTenders(ctx context.Context, now time.Time) (int64, error)

	CreateBid(ctx context.Context, b *models.Bid) error
	GetBid(ctx context.Context, id string) (*models.Bid, error)
	HasBid(ctx context.Context, tenderID, contractorID string) (bool, error)
	UpdateBid(ctx context.Context, b *models.Bid) error
	ListBids(ctx context.Context, f db.BidFilter) ([]models.Bid, error)
	ListBidsWithTender(ctx context.Context, contractorID string) ([]models.BidWithTender, error)

	OwnerSnapshot(ctx context.Context, ownerID string) ([]models.Tender, []models.Bid, error)
}

// Option настраивает сервисы
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock подменяет источник текущего времени
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// withRetry выполняет операцию чтение-проверка-запись и повторяет её
// ровно один раз, если запись проиграла гонку по версии.
func withRetry(op func() error) error {
	err := op()
	if errors.Is(err, db.ErrStale) {
		err = op()
	}
	if errors.Is(err, db.ErrStale) {
		return errors.WithStack(ErrConflict)
	}
	return err
}

const (
	maxPageSize = 100
)

// Page - параметры постраничной выдачи; Limit 0 означает без ограничения
type Page struct {
	Limit  int
	Offset int
}

func (p Page) normalize() (Page, error) {
	var flds []FieldError
	if p.Limit < 0 {
		flds = append(flds, FieldError{Field: "limit", Message: "limit must not be negative"})
	}
	if p.Offset < 0 {
		flds = append(flds, FieldError{Field: "offset", Message: "offset must not be negative"})
	}
	if len(flds) > 0 {
		return p, NewValidationError(flds...)
	}
	if p.Limit > maxPageSize {
		p.Limit = maxPageSize
	}
	return p, nil
}

func notFound(err error, what string) error {
	if errors.Is(err, db.ErrNotFound) {
		return errors.Wrap(ErrNotFound, what)
	}
	return errors.Wrapf(err, "get %s", what)
}

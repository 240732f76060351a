package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"tenderhub/db"
	"tenderhub/db/memdb"
	"tenderhub/internal/services"
	"tenderhub/models"
)

var (
	baseTime = time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)

	member      = models.Identity{UserID: "member-1", Role: models.RoleMember}
	member2     = models.Identity{UserID: "member-2", Role: models.RoleMember}
	admin       = models.Identity{UserID: "admin-1", Role: models.RoleAdmin}
	contractor  = models.Identity{UserID: "contractor-a", Role: models.RoleContractor}
	contractorB = models.Identity{UserID: "contractor-b", Role: models.RoleContractor}
)

// clock - управляемое время для тестов
type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

type env struct {
	store     services.Storage
	clock     *clock
	tenders   *services.TenderService
	bids      *services.BidService
	analytics *services.AnalyticsService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	return newEnvWithStore(t, memdb.New())
}

func newEnvWithStore(t *testing.T, store services.Storage) *env {
	t.Helper()
	c := &clock{t: baseTime}
	return &env{
		store:     store,
		clock:     c,
		tenders:   services.NewTenderService(store, services.WithClock(c.now)),
		bids:      services.NewBidService(store, services.WithClock(c.now)),
		analytics: services.NewAnalyticsService(store),
	}
}

func validTenderInput() models.TenderInput {
	return models.TenderInput{
		Title:                "Lift maintenance 2026",
		ServiceType:          "lift",
		PropertyName:         "Residensi Melati",
		PropertyAddress:      "Jalan Melati 3, Kuala Lumpur",
		ScopeOfWork:          "Monthly servicing of four passenger lifts",
		ContractPeriodMonths: 12,
		MinBudget:            decimal.NewNullDecimal(decimal.NewFromInt(30000)),
		MaxBudget:            decimal.NewNullDecimal(decimal.NewFromInt(60000)),
		ClosingAt:            baseTime.Add(30 * 24 * time.Hour),
		ContactPerson:        "Aisyah",
		ContactEmail:         "jmb@melati.example",
		ContactPhone:         "+60 3 1234 5678",
		RequiredLicenses:     []string{"DOSH"},
		EvaluationCriteria: []models.EvaluationCriterion{
			{Name: "price", Weight: 60},
			{Name: "experience", Weight: 40},
		},
	}
}

func bidInput(amount int64, company string) models.BidInput {
	a := decimal.NewFromInt(amount)
	return models.BidInput{ProposedAmount: &a, CompanyName: company}
}

// approvedTender создаёт тендер и сразу одобряет его
func (e *env) approvedTender(t *testing.T, owner models.Identity) *models.Tender {
	t.Helper()
	ctx := context.Background()
	tender, err := e.tenders.CreateTender(ctx, owner, validTenderInput())
	require.NoError(t, err)
	tender, err = e.tenders.SetApprovalStatus(ctx, admin, tender.ID, "approved")
	require.NoError(t, err)
	return tender
}

func fieldsOf(t *testing.T, err error) map[string]string {
	t.Helper()
	var verr *services.ValidationError
	require.ErrorAs(t, err, &verr)
	return verr.FieldMap()
}

// staleStore проигрывает заданное число записей, как будто их опередил
// другой запрос.
type staleStore struct {
	*memdb.Storage
	staleTenderWrites int
	staleBidWrites    int
	beforeStaleBid    func(b *models.Bid)
}

func (s *staleStore) UpdateTender(ctx context.Context, t *models.Tender) error {
	if s.staleTenderWrites > 0 {
		s.staleTenderWrites--
		return db.ErrStale
	}
	return s.Storage.UpdateTender(ctx, t)
}

func (s *staleStore) UpdateBid(ctx context.Context, b *models.Bid) error {
	if s.staleBidWrites > 0 {
		s.staleBidWrites--
		if s.beforeStaleBid != nil {
			s.beforeStaleBid(b)
		}
		return db.ErrStale
	}
	return s.Storage.UpdateBid(ctx, b)
}

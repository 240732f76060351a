// Package memdb - хранилище в памяти с той же семантикой, что и db.Storage.
// Используется в тестах и для локального запуска без PostgreSQL.
package memdb

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lib/pq"

	"tenderhub/db"
	"tenderhub/models"
)

type (
	Storage struct {
		mutex   sync.RWMutex
		tenders map[string]*models.Tender
		bids    map[string]*models.Bid
	}
)

func New() *Storage {
	return &Storage{
		tenders: make(map[string]*models.Tender),
		bids:    make(map[string]*models.Bid),
	}
}

func (s *Storage) CreateTender(_ context.Context, t *models.Tender) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.tenders[t.ID]; ok {
		return db.ErrDuplicate
	}
	s.tenders[t.ID] = cloneTender(t)
	return nil
}

func (s *Storage) GetTender(_ context.Context, id string) (*models.Tender, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	t, ok := s.tenders[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return cloneTender(t), nil
}

func (s *Storage) UpdateTender(_ context.Context, t *models.Tender) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	cur, ok := s.tenders[t.ID]
	if !ok || cur.Version != t.Version {
		return db.ErrStale
	}
	next := cloneTender(t)
	next.Version++
	next.OwnerID, next.CreatedAt = cur.OwnerID, cur.CreatedAt
	s.tenders[t.ID] = next
	t.Version = next.Version
	return nil
}

func (s *Storage) ListTenders(_ context.Context, f db.TenderFilter) ([]models.Tender, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	res := []models.Tender{}
	for _, t := range s.tenders {
		if f.OwnerID != "" && t.OwnerID != f.OwnerID {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.ApprovalStatus != "" && t.ApprovalStatus.OrPending() != f.ApprovalStatus {
			continue
		}
		if len(f.ServiceTypes) > 0 && !contains(f.ServiceTypes, t.ServiceType) {
			continue
		}
		if !f.ClosingAfter.IsZero() && !t.ClosingAt.After(f.ClosingAfter) {
			continue
		}
		res = append(res, *cloneTender(t))
	}
	// новые первыми, как ORDER BY created_at DESC, id
	sort.Slice(res, func(i, j int) bool {
		if !res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].CreatedAt.After(res[j].CreatedAt)
		}
		return res[i].ID < res[j].ID
	})
	return page(res, f.Limit, f.Offset), nil
}

func (s *Storage) CloseExpiredTenders(_ context.Context, now time.Time) (int64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var n int64
	for _, t := range s.tenders {
		if t.Status == models.TenderOpen && !t.ClosingAt.After(now) {
			t.Status = models.TenderClosed
			t.UpdatedAt = now
			t.Version++
			n++
		}
	}
	return n, nil
}

// CreateBid проверяет уникальность пары (тендер, подрядчик) под той же
// блокировкой, под которой вставляет запись.
func (s *Storage) CreateBid(_ context.Context, b *models.Bid) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.tenders[b.TenderID]; !ok {
		return db.ErrNotFound
	}
	if _, ok := s.bids[b.ID]; ok {
		return db.ErrDuplicate
	}
	if s.hasBid(b.TenderID, b.ContractorID) {
		return db.ErrDuplicate
	}
	s.bids[b.ID] = cloneBid(b)
	return nil
}

func (s *Storage) GetBid(_ context.Context, id string) (*models.Bid, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	b, ok := s.bids[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return cloneBid(b), nil
}

func (s *Storage) HasBid(_ context.Context, tenderID, contractorID string) (bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.hasBid(tenderID, contractorID), nil
}

func (s *Storage) UpdateBid(_ context.Context, b *models.Bid) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	cur, ok := s.bids[b.ID]
	if !ok || cur.Version != b.Version {
		return db.ErrStale
	}
	// меняются только поля решения
	next := cloneBid(cur)
	next.Status = b.Status
	next.DecidedBy = cloneString(b.DecidedBy)
	next.DecidedAt = cloneTime(b.DecidedAt)
	next.UpdatedAt = b.UpdatedAt
	next.Version++
	s.bids[b.ID] = next
	b.Version = next.Version
	return nil
}

func (s *Storage) ListBids(_ context.Context, f db.BidFilter) ([]models.Bid, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	res := []models.Bid{}
	for _, b := range s.bids {
		if f.TenderID != "" && b.TenderID != f.TenderID {
			continue
		}
		if f.ContractorID != "" && b.ContractorID != f.ContractorID {
			continue
		}
		res = append(res, *cloneBid(b))
	}
	sortBids(res, f.OrderByAmount)
	return res, nil
}

func (s *Storage) ListBidsWithTender(_ context.Context, contractorID string) ([]models.BidWithTender, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	res := []models.BidWithTender{}
	for _, b := range s.bids {
		if b.ContractorID != contractorID {
			continue
		}
		t := s.tenders[b.TenderID]
		res = append(res, models.BidWithTender{
			Bid: *cloneBid(b),
			Tender: models.TenderSummary{
				Title:       t.Title,
				ServiceType: t.ServiceType,
				ClosingAt:   t.ClosingAt,
			},
		})
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].CreatedAt.After(res[j].CreatedAt)
		}
		return res[i].ID < res[j].ID
	})
	return res, nil
}

// OwnerSnapshot читает всё под одной блокировкой на чтение
func (s *Storage) OwnerSnapshot(_ context.Context, ownerID string) ([]models.Tender, []models.Bid, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	tenders := []models.Tender{}
	owned := make(map[string]struct{})
	for _, t := range s.tenders {
		if t.OwnerID == ownerID {
			tenders = append(tenders, *cloneTender(t))
			owned[t.ID] = struct{}{}
		}
	}
	sort.Slice(tenders, func(i, j int) bool {
		if !tenders[i].CreatedAt.Equal(tenders[j].CreatedAt) {
			return tenders[i].CreatedAt.Before(tenders[j].CreatedAt)
		}
		return tenders[i].ID < tenders[j].ID
	})

	bids := []models.Bid{}
	for _, b := range s.bids {
		if _, ok := owned[b.TenderID]; ok {
			bids = append(bids, *cloneBid(b))
		}
	}
	sortBids(bids, false)
	return tenders, bids, nil
}

func (s *Storage) hasBid(tenderID, contractorID string) bool {
	for _, b := range s.bids {
		if b.TenderID == tenderID && b.ContractorID == contractorID {
			return true
		}
	}
	return false
}

func sortBids(bids []models.Bid, byAmount bool) {
	sort.Slice(bids, func(i, j int) bool {
		if byAmount {
			if c := bids[i].ProposedAmount.Cmp(bids[j].ProposedAmount); c != 0 {
				return c < 0
			}
		}
		if !bids[i].CreatedAt.Equal(bids[j].CreatedAt) {
			return bids[i].CreatedAt.Before(bids[j].CreatedAt)
		}
		return bids[i].ID < bids[j].ID
	})
}

func page[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return items[:0]
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func cloneTender(t *models.Tender) *models.Tender {
	c := *t
	c.RequiredLicenses = append(pq.StringArray{}, t.RequiredLicenses...)
	c.Documents = append(pq.StringArray{}, t.Documents...)
	c.EvaluationCriteria = append(models.Criteria{}, t.EvaluationCriteria...)
	c.SiteVisitAt = cloneTime(t.SiteVisitAt)
	c.ApprovalDecidedBy = cloneString(t.ApprovalDecidedBy)
	c.ApprovalDecidedAt = cloneTime(t.ApprovalDecidedAt)
	return &c
}

func cloneBid(b *models.Bid) *models.Bid {
	c := *b
	if b.YearsOfExperience != nil {
		y := *b.YearsOfExperience
		c.YearsOfExperience = &y
	}
	c.DecidedBy = cloneString(b.DecidedBy)
	c.DecidedAt = cloneTime(b.DecidedAt)
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

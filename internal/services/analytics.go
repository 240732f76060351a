package services

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"tenderhub/db"
	"tenderhub/models"
)

const topBiddersLimit = 10

type MonthStat struct {
	Month     string          `json:"month"` // YYYY-MM
	Count     int             `json:"count"`
	AvgAmount decimal.Decimal `json:"avgAmount"`
}

type BidderStat struct {
	CompanyName string          `json:"companyName"`
	BidCount    int             `json:"bidCount"`
	AvgBid      decimal.Decimal `json:"avgBid"`
	WinRate     float64         `json:"winRate"` // доля одобренных, в процентах
}

// Summary - статистика члена JMB по его тендерам и предложениям на них
type Summary struct {
	TotalTenders         int                         `json:"totalTenders"`
	TendersByStatus      map[models.TenderStatus]int `json:"tendersByStatus"`
	TotalBids            int                         `json:"totalBids"`
	BidsByStatus         map[models.BidStatus]int    `json:"bidsByStatus"`
	AverageBidsPerTender float64                     `json:"averageBidsPerTender"`
	AverageBidAmount     decimal.Decimal             `json:"averageBidAmount"`
	LowestBidAmount      decimal.Decimal             `json:"lowestBidAmount"`
	HighestBidAmount     decimal.Decimal             `json:"highestBidAmount"`
	TendersByServiceType map[string]int              `json:"tendersByServiceType"`
	BidsByMonth          []MonthStat                 `json:"bidsByMonth"`
	TopBidders           []BidderStat                `json:"topBidders"`
}

// Aggregate - чистая функция над снимком данных, на пустом входе
// возвращает нули.
func Aggregate(tenders []models.Tender, bids []models.Bid) Summary {
	sum := Summary{
		TotalTenders:         len(tenders),
		TendersByStatus:      make(map[models.TenderStatus]int, len(models.TenderStatuses)),
		TotalBids:            len(bids),
		BidsByStatus:         make(map[models.BidStatus]int, len(models.BidStatuses)),
		AverageBidAmount:     decimal.Zero,
		LowestBidAmount:      decimal.Zero,
		HighestBidAmount:     decimal.Zero,
		TendersByServiceType: make(map[string]int),
		BidsByMonth:          []MonthStat{},
		TopBidders:           []BidderStat{},
	}
	for _, st := range models.TenderStatuses {
		sum.TendersByStatus[st] = 0
	}
	for _, st := range models.BidStatuses {
		sum.BidsByStatus[st] = 0
	}

	for _, t := range tenders {
		sum.TendersByStatus[t.Status]++
		sum.TendersByServiceType[t.ServiceType]++
	}
	if len(tenders) > 0 {
		sum.AverageBidsPerTender = float64(len(bids)) / float64(len(tenders))
	}
	if len(bids) == 0 {
		return sum
	}

	total := decimal.Zero
	sum.LowestBidAmount = bids[0].ProposedAmount
	sum.HighestBidAmount = bids[0].ProposedAmount
	for _, b := range bids {
		sum.BidsByStatus[b.Status]++
		total = total.Add(b.ProposedAmount)
		if b.ProposedAmount.LessThan(sum.LowestBidAmount) {
			sum.LowestBidAmount = b.ProposedAmount
		}
		if b.ProposedAmount.GreaterThan(sum.HighestBidAmount) {
			sum.HighestBidAmount = b.ProposedAmount
		}
	}
	sum.AverageBidAmount = average(total, len(bids))
	sum.BidsByMonth = bidsByMonth(bids)
	sum.TopBidders = topBidders(bids)
	return sum
}

func bidsByMonth(bids []models.Bid) []MonthStat {
	type acc struct {
		count int
		total decimal.Decimal
	}
	months := make(map[string]*acc)
	for _, b := range bids {
		// месяц в том часовом поясе, в котором записана метка
		key := b.CreatedAt.Format("2006-01")
		a, ok := months[key]
		if !ok {
			a = &acc{total: decimal.Zero}
			months[key] = a
		}
		a.count++
		a.total = a.total.Add(b.ProposedAmount)
	}

	res := make([]MonthStat, 0, len(months))
	for month, a := range months {
		res = append(res, MonthStat{Month: month, Count: a.count, AvgAmount: average(a.total, a.count)})
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Month < res[j].Month })
	return res
}

func topBidders(bids []models.Bid) []BidderStat {
	type acc struct {
		count    int
		approved int
		total    decimal.Decimal
	}
	var order []string
	companies := make(map[string]*acc)
	for _, b := range bids {
		a, ok := companies[b.CompanyName]
		if !ok {
			a = &acc{total: decimal.Zero}
			companies[b.CompanyName] = a
			order = append(order, b.CompanyName)
		}
		a.count++
		a.total = a.total.Add(b.ProposedAmount)
		if b.Status == models.BidApproved {
			a.approved++
		}
	}

	res := make([]BidderStat, 0, len(order))
	for _, name := range order {
		a := companies[name]
		res = append(res, BidderStat{
			CompanyName: name,
			BidCount:    a.count,
			AvgBid:      average(a.total, a.count),
			WinRate:     float64(a.approved) / float64(a.count) * 100,
		})
	}
	// стабильная сортировка сохраняет порядок первого появления при равенстве
	sort.SliceStable(res, func(i, j int) bool { return res[i].BidCount > res[j].BidCount })
	if len(res) > topBiddersLimit {
		res = res[:topBiddersLimit]
	}
	return res
}

func average(total decimal.Decimal, n int) decimal.Decimal {
	if n == 0 {
		return decimal.Zero
	}
	return total.DivRound(decimal.NewFromInt(int64(n)), 2)
}

// LowestBidInfo - лучшее по сумме предложение тендера
type LowestBidInfo struct {
	BidID        string          `json:"bidId"`
	ContractorID string          `json:"contractorId"`
	CompanyName  string          `json:"companyName"`
	Amount       decimal.Decimal `json:"amount"`
}

type TenderBidStats struct {
	TenderID     string                   `json:"tenderId"`
	TotalBids    int                      `json:"totalBids"`
	BidsByStatus map[models.BidStatus]int `json:"bidsByStatus"`
	LowestBid    *LowestBidInfo           `json:"lowestBid"`
}

// TenderBidSummary - сводка по предложениям одного тендера
func TenderBidSummary(t models.Tender, bids []models.Bid) TenderBidStats {
	stats := TenderBidStats{
		TenderID:     t.ID,
		BidsByStatus: make(map[models.BidStatus]int, len(models.BidStatuses)),
	}
	for _, st := range models.BidStatuses {
		stats.BidsByStatus[st] = 0
	}
	own := make([]models.Bid, 0, len(bids))
	for _, b := range bids {
		if b.TenderID != t.ID {
			continue
		}
		own = append(own, b)
		stats.BidsByStatus[b.Status]++
	}
	stats.TotalBids = len(own)
	if low, ok := LowestBid(own); ok {
		stats.LowestBid = &LowestBidInfo{
			BidID:        low.ID,
			ContractorID: low.ContractorID,
			CompanyName:  low.CompanyName,
			Amount:       low.ProposedAmount,
		}
	}
	return stats
}

// AnalyticsService загружает согласованный снимок и считает статистику
type AnalyticsService struct {
	store Storage
}

func NewAnalyticsService(store Storage) *AnalyticsService {
	return &AnalyticsService{store: store}
}

func (s *AnalyticsService) MemberSummary(ctx context.Context, caller models.Identity) (Summary, error) {
	if !caller.Is(models.RoleMember) {
		return Summary{}, forbidden("analytics are available to JMB members only")
	}
	tenders, bids, err := s.store.OwnerSnapshot(ctx, caller.UserID)
	if err != nil {
		return Summary{}, errors.Wrap(err, "load analytics snapshot")
	}
	return Aggregate(tenders, bids), nil
}

func (s *AnalyticsService) TenderSummary(ctx context.Context, caller models.Identity, tenderID string) (TenderBidStats, error) {
	t, err := s.store.GetTender(ctx, tenderID)
	if err != nil {
		return TenderBidStats{}, notFound(err, "tender")
	}
	if !t.IsOwnedBy(caller.UserID) {
		return TenderBidStats{}, forbidden("only the tender owner can view its bid summary")
	}
	bids, err := s.store.ListBids(ctx, db.BidFilter{TenderID: t.ID})
	if err != nil {
		return TenderBidStats{}, errors.Wrap(err, "list tender bids")
	}
	return TenderBidSummary(*t, bids), nil
}

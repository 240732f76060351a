package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"tenderhub/db"
	"tenderhub/models"
)

// BidOrder - порядок выдачи предложений по тендеру
type BidOrder string

const (
	OrderBySubmission BidOrder = "submitted"
	OrderByAmount     BidOrder = "amount"
)

func ParseBidOrder(s string) (BidOrder, error) {
	switch o := BidOrder(strings.ToLower(strings.TrimSpace(s))); o {
	case "":
		return OrderBySubmission, nil
	case OrderBySubmission, OrderByAmount:
		return o, nil
	}
	return "", NewValidationError(FieldError{Field: "sort", Message: "sort must be 'submitted' or 'amount'"})
}

// BidService - подача предложений и решения по ним
type BidService struct {
	store Storage
	now   func() time.Time
}

func NewBidService(store Storage, opts ...Option) *BidService {
	o := buildOptions(opts)
	return &BidService{store: store, now: o.now}
}

// SubmitBid проверяет по порядку: роль, наличие тендера, его доступность,
// повторную подачу и только потом поля предложения.
func (s *BidService) SubmitBid(ctx context.Context, caller models.Identity, tenderID string, in models.BidInput) (*models.Bid, error) {
	if !caller.Is(models.RoleContractor) {
		return nil, forbidden("only contractors can submit bids")
	}
	tenderID = strings.TrimSpace(tenderID)
	if tenderID == "" {
		return nil, NewValidationError(FieldError{Field: "tenderId", Message: "tenderId is a required field"})
	}

	t, err := s.store.GetTender(ctx, tenderID)
	if err != nil {
		return nil, notFound(err, "tender")
	}
	now := s.now()
	if !t.IsVisible() {
		return nil, errors.WithStack(ErrIneligibleTender)
	}
	if !t.ClosingAt.After(now) {
		return nil, errors.Wrap(ErrIneligibleTender, "closing time has passed")
	}

	exists, err := s.store.HasBid(ctx, t.ID, caller.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "check existing bid")
	}
	if exists {
		return nil, errors.WithStack(ErrDuplicateBid)
	}

	in = normalizeBidInput(in)
	if err := validateInput(in); err != nil {
		return nil, err
	}

	b := &models.Bid{
		ID:                  uuid.NewString(),
		TenderID:            t.ID,
		ContractorID:        caller.UserID,
		ProposedAmount:      *in.ProposedAmount,
		CompanyName:         in.CompanyName,
		CompanyRegistration: in.CompanyRegistration,
		YearsOfExperience:   in.YearsOfExperience,
		ProposedTimeline:    in.ProposedTimeline,
		CoverLetter:         in.CoverLetter,
		ProposalDocument:    in.ProposalDocument,
		Status:              models.BidPending,
		Version:             1,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.store.CreateBid(ctx, b); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			return nil, errors.WithStack(ErrDuplicateBid)
		}
		return nil, errors.Wrap(err, "create bid")
	}
	return b, nil
}

// DecideBid - окончательное решение владельца тендера по предложению.
// Если запись проиграла гонку, повтор перечитывает предложение и
// уже решённое предложение даёт ErrInvalidState.
func (s *BidService) DecideBid(ctx context.Context, caller models.Identity, bidID, decision string) (*models.Bid, error) {
	status, err := models.ParseBidDecision(decision)
	if err != nil {
		return nil, NewValidationError(FieldError{Field: "status", Message: err.Error()})
	}

	var res *models.Bid
	err = withRetry(func() error {
		b, err := s.store.GetBid(ctx, bidID)
		if err != nil {
			return notFound(err, "bid")
		}
		t, err := s.store.GetTender(ctx, b.TenderID)
		if err != nil {
			return notFound(err, "tender")
		}
		if !t.IsOwnedBy(caller.UserID) {
			return forbidden("only the tender owner can decide on bids")
		}
		if b.IsDecided() {
			return invalidState("bid has already been " + string(b.Status))
		}
		now := s.now()
		decidedBy := caller.UserID
		b.Status = status
		b.DecidedBy = &decidedBy
		b.DecidedAt = &now
		b.UpdatedAt = now
		if err := s.store.UpdateBid(ctx, b); err != nil {
			return err
		}
		res = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// GetBid - предложение видят только его автор и владелец тендера
func (s *BidService) GetBid(ctx context.Context, caller models.Identity, bidID string) (*models.Bid, error) {
	b, err := s.store.GetBid(ctx, bidID)
	if err != nil {
		return nil, notFound(err, "bid")
	}
	if b.ContractorID == caller.UserID {
		return b, nil
	}
	t, err := s.store.GetTender(ctx, b.TenderID)
	if err != nil {
		return nil, notFound(err, "tender")
	}
	if !t.IsOwnedBy(caller.UserID) {
		return nil, forbidden("only the bidder or the tender owner can view this bid")
	}
	return b, nil
}

func (s *BidService) ListBidsForTender(ctx context.Context, caller models.Identity, tenderID string, order BidOrder) ([]models.Bid, error) {
	t, err := s.store.GetTender(ctx, tenderID)
	if err != nil {
		return nil, notFound(err, "tender")
	}
	if !t.IsOwnedBy(caller.UserID) {
		return nil, forbidden("only the tender owner can list its bids")
	}
	bids, err := s.store.ListBids(ctx, db.BidFilter{TenderID: t.ID, OrderByAmount: order == OrderByAmount})
	return bids, errors.Wrap(err, "list tender bids")
}

// ListBidsForContractor - предложения подрядчика, новые первыми
func (s *BidService) ListBidsForContractor(ctx context.Context, caller models.Identity) ([]models.BidWithTender, error) {
	bids, err := s.store.ListBidsWithTender(ctx, caller.UserID)
	return bids, errors.Wrap(err, "list contractor bids")
}

// LowestBid возвращает предложение с минимальной суммой; при равенстве
// побеждает поданное раньше. Только для отображения, ничего не присуждает.
func LowestBid(bids []models.Bid) (models.Bid, bool) {
	if len(bids) == 0 {
		return models.Bid{}, false
	}
	best := bids[0]
	for _, b := range bids[1:] {
		if lowerBid(b, best) {
			best = b
		}
	}
	return best, true
}

func lowerBid(a, b models.Bid) bool {
	if c := a.ProposedAmount.Cmp(b.ProposedAmount); c != 0 {
		return c < 0
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

package handlers

import (
	"context"

	"tenderhub/internal/services"
	"tenderhub/models"
)

// TenderService - операции тендеров, которые нужны обработчикам
type TenderService interface {
	CreateTender(ctx context.Context, caller models.Identity, in models.TenderInput) (*models.Tender, error)
	SetApprovalStatus(ctx context.Context, caller models.Identity, tenderID, decision string) (*models.Tender, error)
	UpdateTender(ctx context.Context, caller models.Identity, tenderID string, in models.TenderInput) (*models.Tender, error)
	CloseTender(ctx context.Context, caller models.Identity, tenderID string) (*models.Tender, error)
	GetTender(ctx context.Context, caller models.Identity, tenderID string) (*models.Tender, error)
	ListVisibleTenders(ctx context.Context, q services.TenderQuery) ([]models.Tender, error)
	ListOwnerTenders(ctx context.Context, caller models.Identity) ([]models.Tender, error)
	ListAllTenders(ctx context.Context, caller models.Identity, q services.TenderQuery) ([]models.Tender, error)
}

type BidService interface {
	SubmitBid(ctx context.Context, caller models.Identity, tenderID string, in models.BidInput) (*models.Bid, error)
	DecideBid(ctx context.Context, caller models.Identity, bidID, decision string) (*models.Bid, error)
	GetBid(ctx context.Context, caller models.Identity, bidID string) (*models.Bid, error)
	ListBidsForTender(ctx context.Context, caller models.Identity, tenderID string, order services.BidOrder) ([]models.Bid, error)
	ListBidsForContractor(ctx context.Context, caller models.Identity) ([]models.BidWithTender, error)
}

type AnalyticsService interface {
	MemberSummary(ctx context.Context, caller models.Identity) (services.Summary, error)
	TenderSummary(ctx context.Context, caller models.Identity, tenderID string) (services.TenderBidStats, error)
}

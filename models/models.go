package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

func init() {
	// Суммы в JSON отдаём числами, а не строками
	decimal.MarshalJSONWithoutQuotes = true
}

// Роль вызывающего пользователя
type Role string

const (
	RoleMember     Role = "member"     // член JMB, создаёт тендеры
	RoleContractor Role = "contractor" // подрядчик, подаёт предложения
	RoleAdmin      Role = "admin"      // модерирует тендеры
)

// ParseRole разбирает роль из заголовка запроса
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case RoleMember, RoleContractor, RoleAdmin:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Identity - аутентифицированный вызывающий, передаётся в каждую операцию
type Identity struct {
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
}

func (i Identity) Is(r Role) bool { return i.Role == r }

type (
	TenderStatus   string // Жизненный цикл тендера
	ApprovalStatus string // Решение администратора
	BidStatus      string // Статус предложения
)

const (
	TenderOpen   TenderStatus = "open"
	TenderClosed TenderStatus = "closed"

	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"

	BidPending  BidStatus = "pending"
	BidApproved BidStatus = "approved"
	BidRejected BidStatus = "rejected"
)

var (
	TenderStatuses = []TenderStatus{TenderOpen, TenderClosed}
	BidStatuses    = []BidStatus{BidPending, BidApproved, BidRejected}
)

// OrPending трактует пустой статус одобрения как pending
func (s ApprovalStatus) OrPending() ApprovalStatus {
	if s == "" {
		return ApprovalPending
	}
	return s
}

// ParseApprovalDecision принимает только approved/rejected
func ParseApprovalDecision(s string) (ApprovalStatus, error) {
	d := ApprovalStatus(strings.ToLower(strings.TrimSpace(s)))
	switch d {
	case ApprovalApproved, ApprovalRejected:
		return d, nil
	}
	return "", fmt.Errorf("approval decision must be 'approved' or 'rejected', got %q", s)
}

func ParseApprovalStatus(s string) (ApprovalStatus, error) {
	st := ApprovalStatus(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case ApprovalPending, ApprovalApproved, ApprovalRejected:
		return st, nil
	}
	return "", fmt.Errorf("unknown approval status %q", s)
}

// ParseBidDecision принимает только approved/rejected
func ParseBidDecision(s string) (BidStatus, error) {
	d := BidStatus(strings.ToLower(strings.TrimSpace(s)))
	switch d {
	case BidApproved, BidRejected:
		return d, nil
	}
	return "", fmt.Errorf("bid decision must be 'approved' or 'rejected', got %q", s)
}

// Критерий оценки предложений
type EvaluationCriterion struct {
	Name   string `json:"name" validate:"required"`
	Weight int    `json:"weight" validate:"gte=0,lte=100"`
}

// Criteria хранится в jsonb
type Criteria []EvaluationCriterion

func (c Criteria) TotalWeight() int {
	total := 0
	for _, cr := range c {
		total += cr.Weight
	}
	return total
}

func (c Criteria) Value() (driver.Value, error) {
	if c == nil {
		return "[]", nil
	}
	b, err := json.Marshal(c)
	return string(b), err
}

func (c *Criteria) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*c = Criteria{}
		return nil
	case []byte:
		return json.Unmarshal(v, c)
	case string:
		return json.Unmarshal([]byte(v), c)
	}
	return fmt.Errorf("cannot scan %T into Criteria", src)
}

// Сущность Тендера
type Tender struct {
	ID                   string              `db:"id" json:"id"`
	OwnerID              string              `db:"owner_id" json:"ownerId"`
	Title                string              `db:"title" json:"title"`
	ServiceType          string              `db:"service_type" json:"serviceType"`
	PropertyName         string              `db:"property_name" json:"propertyName"`
	PropertyAddress      string              `db:"property_address" json:"propertyAddress"`
	ScopeOfWork          string              `db:"scope_of_work" json:"scopeOfWork"`
	ContractPeriodMonths int                 `db:"contract_period_months" json:"contractPeriodMonths"`
	MinBudget            decimal.NullDecimal `db:"min_budget" json:"minBudget"`
	MaxBudget            decimal.NullDecimal `db:"max_budget" json:"maxBudget"`
	ClosingAt            time.Time           `db:"closing_at" json:"closingAt"`
	SiteVisitAt          *time.Time          `db:"site_visit_at" json:"siteVisitAt,omitempty"`
	ContactPerson        string              `db:"contact_person" json:"contactPerson"`
	ContactEmail         string              `db:"contact_email" json:"contactEmail"`
	ContactPhone         string              `db:"contact_phone" json:"contactPhone"`
	RequiredLicenses     pq.StringArray      `db:"required_licenses" json:"requiredLicenses"`
	EvaluationCriteria   Criteria            `db:"evaluation_criteria" json:"evaluationCriteria"`
	TenderFee            decimal.NullDecimal `db:"tender_fee" json:"tenderFee"`
	Documents            pq.StringArray      `db:"documents" json:"documents"`
	Status               TenderStatus        `db:"status" json:"status"`
	ApprovalStatus       ApprovalStatus      `db:"approval_status" json:"approvalStatus"`
	ApprovalDecidedBy    *string             `db:"approval_decided_by" json:"approvalDecidedBy,omitempty"`
	ApprovalDecidedAt    *time.Time          `db:"approval_decided_at" json:"approvalDecidedAt,omitempty"`
	Version              int                 `db:"version" json:"version"`
	CreatedAt            time.Time           `db:"created_at" json:"createdAt"`
	UpdatedAt            time.Time           `db:"updated_at" json:"updatedAt"`
}

// IsVisible - тендер виден подрядчикам только если открыт и одобрен
func (t *Tender) IsVisible() bool {
	return t.Status == TenderOpen && t.ApprovalStatus.OrPending() == ApprovalApproved
}

func (t *Tender) IsOwnedBy(userID string) bool { return t.OwnerID == userID }

// Сущность Предложения
type Bid struct {
	ID                  string          `db:"id" json:"id"`
	TenderID            string          `db:"tender_id" json:"tenderId"`
	ContractorID        string          `db:"contractor_id" json:"contractorId"`
	ProposedAmount      decimal.Decimal `db:"proposed_amount" json:"proposedAmount"`
	CompanyName         string          `db:"company_name" json:"companyName"`
	CompanyRegistration string          `db:"company_registration" json:"companyRegistration"`
	YearsOfExperience   *int            `db:"years_of_experience" json:"yearsOfExperience,omitempty"`
	ProposedTimeline    string          `db:"proposed_timeline" json:"proposedTimeline"`
	CoverLetter         string          `db:"cover_letter" json:"coverLetter"`
	ProposalDocument    string          `db:"proposal_document" json:"proposalDocument"`
	Status              BidStatus       `db:"status" json:"status"`
	DecidedBy           *string         `db:"decided_by" json:"decidedBy,omitempty"`
	DecidedAt           *time.Time      `db:"decided_at" json:"decidedAt,omitempty"`
	Version             int             `db:"version" json:"version"`
	CreatedAt           time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt           time.Time       `db:"updated_at" json:"updatedAt"`
}

// IsDecided - решение по предложению окончательное
func (b *Bid) IsDecided() bool { return b.Status != BidPending }

// Краткая информация о тендере для списка предложений подрядчика
type TenderSummary struct {
	Title       string    `db:"title" json:"title"`
	ServiceType string    `db:"service_type" json:"serviceType"`
	ClosingAt   time.Time `db:"closing_at" json:"closingAt"`
}

type BidWithTender struct {
	Bid
	Tender TenderSummary `db:"tender" json:"tender"`
}

// TenderInput - поля тендера от члена JMB (создание и редактирование)
type TenderInput struct {
	Title                string                `json:"title" validate:"required"`
	ServiceType          string                `json:"serviceType" validate:"required"`
	PropertyName         string                `json:"propertyName"`
	PropertyAddress      string                `json:"propertyAddress"`
	ScopeOfWork          string                `json:"scopeOfWork" validate:"required"`
	ContractPeriodMonths int                   `json:"contractPeriodMonths" validate:"required,gt=0"`
	MinBudget            decimal.NullDecimal   `json:"minBudget"`
	MaxBudget            decimal.NullDecimal   `json:"maxBudget"`
	ClosingAt            time.Time             `json:"closingAt" validate:"required"`
	SiteVisitAt          *time.Time            `json:"siteVisitAt"`
	ContactPerson        string                `json:"contactPerson" validate:"required"`
	ContactEmail         string                `json:"contactEmail" validate:"required"`
	ContactPhone         string                `json:"contactPhone" validate:"required"`
	RequiredLicenses     []string              `json:"requiredLicenses"`
	EvaluationCriteria   []EvaluationCriterion `json:"evaluationCriteria" validate:"dive"`
	TenderFee            decimal.NullDecimal   `json:"tenderFee"`
	Documents            []string              `json:"documents"`
}

// BidInput - поля предложения от подрядчика
type BidInput struct {
	TenderID            string           `json:"tenderId"`
	ProposedAmount      *decimal.Decimal `json:"proposedAmount" validate:"required"`
	CompanyName         string           `json:"companyName" validate:"required"`
	CompanyRegistration string           `json:"companyRegistration"`
	YearsOfExperience   *int             `json:"yearsOfExperience"`
	ProposedTimeline    string           `json:"proposedTimeline"`
	CoverLetter         string           `json:"coverLetter"`
	ProposalDocument    string           `json:"proposalDocument"`
}

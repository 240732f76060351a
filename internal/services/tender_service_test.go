package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"tenderhub/db/memdb"
	"tenderhub/internal/services"
	"tenderhub/models"
)

func TestCreateTender_Defaults(t *testing.T) {
	e := newEnv(t)
	tender, err := e.tenders.CreateTender(context.Background(), member, validTenderInput())
	require.NoError(t, err)

	require.NotEmpty(t, tender.ID)
	require.Equal(t, member.UserID, tender.OwnerID)
	require.Equal(t, models.TenderOpen, tender.Status)
	require.Equal(t, models.ApprovalPending, tender.ApprovalStatus)
	require.Equal(t, 1, tender.Version)
	require.Equal(t, baseTime, tender.CreatedAt)
	require.False(t, tender.IsVisible())

	stored, err := e.store.GetTender(context.Background(), tender.ID)
	require.NoError(t, err)
	require.Equal(t, tender.Title, stored.Title)
}

func TestCreateTender_OnlyMembers(t *testing.T) {
	e := newEnv(t)
	for _, caller := range []models.Identity{contractor, admin} {
		_, err := e.tenders.CreateTender(context.Background(), caller, validTenderInput())
		require.ErrorIs(t, err, services.ErrForbidden)
	}
}

func TestCreateTender_ReportsEveryMissingField(t *testing.T) {
	e := newEnv(t)
	in := models.TenderInput{Title: "   ", ContactEmail: "\t"}

	_, err := e.tenders.CreateTender(context.Background(), member, in)
	fields := fieldsOf(t, err)

	for _, f := range []string{
		"title", "serviceType", "scopeOfWork", "contractPeriodMonths",
		"closingAt", "contactPerson", "contactEmail", "contactPhone",
	} {
		require.Contains(t, fields, f)
	}
}

func TestCreateTender_CriteriaWeights(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	in := validTenderInput()
	in.EvaluationCriteria = []models.EvaluationCriterion{{Name: "price", Weight: 60}, {Name: "quality", Weight: 30}}
	_, err := e.tenders.CreateTender(ctx, member, in)
	fields := fieldsOf(t, err)
	require.Contains(t, fields["evaluationCriteria"], "got 90")

	in.EvaluationCriteria = []models.EvaluationCriterion{{Name: " ", Weight: 100}}
	_, err = e.tenders.CreateTender(ctx, member, in)
	require.Contains(t, fieldsOf(t, err), "evaluationCriteria[0].name")

	in.EvaluationCriteria = []models.EvaluationCriterion{{Name: "price", Weight: 120}, {Name: "quality", Weight: -20}}
	_, err = e.tenders.CreateTender(ctx, member, in)
	fields = fieldsOf(t, err)
	require.Contains(t, fields, "evaluationCriteria[0].weight")
	require.Contains(t, fields, "evaluationCriteria[1].weight")

	// пустой список критериев допустим
	in.EvaluationCriteria = nil
	_, err = e.tenders.CreateTender(ctx, member, in)
	require.NoError(t, err)

	in.EvaluationCriteria = []models.EvaluationCriterion{{Name: "price", Weight: 100}}
	_, err = e.tenders.CreateTender(ctx, member, in)
	require.NoError(t, err)
}

func TestCreateTender_Budgets(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	in := validTenderInput()
	in.MinBudget = decimal.NewNullDecimal(decimal.NewFromInt(70000))
	_, err := e.tenders.CreateTender(ctx, member, in)
	require.Equal(t, "minBudget must not exceed maxBudget", fieldsOf(t, err)["minBudget"])

	in = validTenderInput()
	in.MaxBudget = decimal.NewNullDecimal(decimal.NewFromInt(-1))
	in.MinBudget = decimal.NullDecimal{}
	in.TenderFee = decimal.NewNullDecimal(decimal.NewFromInt(-50))
	_, err = e.tenders.CreateTender(ctx, member, in)
	fields := fieldsOf(t, err)
	require.Contains(t, fields, "maxBudget")
	require.Contains(t, fields, "tenderFee")

	// бюджет можно не указывать
	in = validTenderInput()
	in.MinBudget, in.MaxBudget = decimal.NullDecimal{}, decimal.NullDecimal{}
	_, err = e.tenders.CreateTender(ctx, member, in)
	require.NoError(t, err)
}

func TestSetApprovalStatus(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tender, err := e.tenders.CreateTender(ctx, member, validTenderInput())
	require.NoError(t, err)

	_, err = e.tenders.SetApprovalStatus(ctx, member, tender.ID, "approved")
	require.ErrorIs(t, err, services.ErrForbidden)

	_, err = e.tenders.SetApprovalStatus(ctx, admin, tender.ID, "maybe")
	require.Contains(t, fieldsOf(t, err), "approvalStatus")

	_, err = e.tenders.SetApprovalStatus(ctx, admin, "missing", "approved")
	require.ErrorIs(t, err, services.ErrNotFound)

	approved, err := e.tenders.SetApprovalStatus(ctx, admin, tender.ID, "approved")
	require.NoError(t, err)
	require.Equal(t, models.ApprovalApproved, approved.ApprovalStatus)
	require.Equal(t, admin.UserID, *approved.ApprovalDecidedBy)
	require.Equal(t, baseTime, *approved.ApprovalDecidedAt)
	require.Equal(t, 2, approved.Version)
	require.True(t, approved.IsVisible())

	// повторное решение перезаписывает предыдущее
	e.clock.advance(time.Hour)
	rejected, err := e.tenders.SetApprovalStatus(ctx, admin, tender.ID, "rejected")
	require.NoError(t, err)
	require.Equal(t, models.ApprovalRejected, rejected.ApprovalStatus)
	require.Equal(t, baseTime.Add(time.Hour), *rejected.ApprovalDecidedAt)
	require.Equal(t, 3, rejected.Version)
}

func TestUpdateTender(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tender := e.approvedTender(t, member)

	in := validTenderInput()
	in.Title = "Lift maintenance 2026-2027"
	in.ContractPeriodMonths = 24

	_, err := e.tenders.UpdateTender(ctx, member2, tender.ID, in)
	require.ErrorIs(t, err, services.ErrForbidden)

	_, err = e.tenders.UpdateTender(ctx, member, "missing", in)
	require.ErrorIs(t, err, services.ErrNotFound)

	updated, err := e.tenders.UpdateTender(ctx, member, tender.ID, in)
	require.NoError(t, err)
	require.Equal(t, "Lift maintenance 2026-2027", updated.Title)
	require.Equal(t, 24, updated.ContractPeriodMonths)
	// одобрение сохраняется
	require.Equal(t, models.ApprovalApproved, updated.ApprovalStatus)
	require.Equal(t, tender.Version+1, updated.Version)

	in.ContractPeriodMonths = 0
	_, err = e.tenders.UpdateTender(ctx, member, tender.ID, in)
	require.Contains(t, fieldsOf(t, err), "contractPeriodMonths")
}

func TestUpdateTender_CriteriaWeightsMustSumTo100(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	in := validTenderInput()
	in.EvaluationCriteria = []models.EvaluationCriterion{
		{Name: "price", Weight: 30},
		{Name: "experience", Weight: 25},
		{Name: "safety", Weight: 20},
		{Name: "timeline", Weight: 15},
		{Name: "references", Weight: 10},
	}
	tender, err := e.tenders.CreateTender(ctx, member, in)
	require.NoError(t, err)

	changed := in
	changed.EvaluationCriteria = append([]models.EvaluationCriterion(nil), in.EvaluationCriteria...)
	changed.EvaluationCriteria[0].Weight = 35
	_, err = e.tenders.UpdateTender(ctx, member, tender.ID, changed)
	require.Contains(t, fieldsOf(t, err)["evaluationCriteria"], "got 105")

	// сохранённый тендер не изменился
	stored, err := e.tenders.GetTender(ctx, member, tender.ID)
	require.NoError(t, err)
	require.Equal(t, models.Criteria(in.EvaluationCriteria), stored.EvaluationCriteria)
	require.Equal(t, tender.Version, stored.Version)
}

func TestCreateTender_LicensesAreDeduplicated(t *testing.T) {
	e := newEnv(t)
	in := validTenderInput()
	in.RequiredLicenses = []string{"DOSH", " CIDB ", "DOSH", "", "CIDB", "SPAN"}

	tender, err := e.tenders.CreateTender(context.Background(), member, in)
	require.NoError(t, err)
	require.Equal(t, []string{"DOSH", "CIDB", "SPAN"}, []string(tender.RequiredLicenses))
}

func TestCreateTender_EveryRuleOfFieldIsReported(t *testing.T) {
	e := newEnv(t)
	in := validTenderInput()
	in.MinBudget = decimal.NewNullDecimal(decimal.NewFromInt(-5))
	in.MaxBudget = decimal.NewNullDecimal(decimal.NewFromInt(-10))

	_, err := e.tenders.CreateTender(context.Background(), member, in)
	fields := fieldsOf(t, err)
	require.Contains(t, fields["minBudget"], "minBudget must not be negative")
	require.Contains(t, fields["minBudget"], "minBudget must not exceed maxBudget")
	require.Contains(t, fields["maxBudget"], "must not be negative")
}

func TestUpdateTender_ClosedIsInvalidState(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tender := e.approvedTender(t, member)

	_, err := e.tenders.CloseTender(ctx, member, tender.ID)
	require.NoError(t, err)

	_, err = e.tenders.UpdateTender(ctx, member, tender.ID, validTenderInput())
	require.ErrorIs(t, err, services.ErrInvalidState)
}

func TestCloseTender(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tender := e.approvedTender(t, member)

	_, err := e.tenders.CloseTender(ctx, member2, tender.ID)
	require.ErrorIs(t, err, services.ErrForbidden)

	closed, err := e.tenders.CloseTender(ctx, member, tender.ID)
	require.NoError(t, err)
	require.Equal(t, models.TenderClosed, closed.Status)
	require.False(t, closed.IsVisible())

	_, err = e.tenders.CloseTender(ctx, member, tender.ID)
	require.ErrorIs(t, err, services.ErrInvalidState)
}

func TestCloseExpired(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	soon := validTenderInput()
	soon.ClosingAt = baseTime.Add(time.Hour)
	expiring, err := e.tenders.CreateTender(ctx, member, soon)
	require.NoError(t, err)

	later, err := e.tenders.CreateTender(ctx, member, validTenderInput())
	require.NoError(t, err)

	n, err := e.tenders.CloseExpired(ctx, baseTime.Add(2*time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	got, err := e.tenders.GetTender(ctx, member, expiring.ID)
	require.NoError(t, err)
	require.Equal(t, models.TenderClosed, got.Status)

	got, err = e.tenders.GetTender(ctx, member, later.ID)
	require.NoError(t, err)
	require.Equal(t, models.TenderOpen, got.Status)

	// уже закрытые повторно не считаются
	n, err = e.tenders.CloseExpired(ctx, baseTime.Add(2*time.Hour))
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestGetTender_Visibility(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	pending, err := e.tenders.CreateTender(ctx, member, validTenderInput())
	require.NoError(t, err)

	_, err = e.tenders.GetTender(ctx, member, pending.ID)
	require.NoError(t, err)
	_, err = e.tenders.GetTender(ctx, admin, pending.ID)
	require.NoError(t, err)
	_, err = e.tenders.GetTender(ctx, contractor, pending.ID)
	require.ErrorIs(t, err, services.ErrForbidden)

	_, err = e.tenders.SetApprovalStatus(ctx, admin, pending.ID, "approved")
	require.NoError(t, err)
	_, err = e.tenders.GetTender(ctx, contractor, pending.ID)
	require.NoError(t, err)

	_, err = e.tenders.GetTender(ctx, contractor, "missing")
	require.ErrorIs(t, err, services.ErrNotFound)
}

func TestListVisibleTenders(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	visible := e.approvedTender(t, member)

	pending, err := e.tenders.CreateTender(ctx, member, validTenderInput())
	require.NoError(t, err)

	closed := e.approvedTender(t, member)
	_, err = e.tenders.CloseTender(ctx, member, closed.ID)
	require.NoError(t, err)

	cleaning := validTenderInput()
	cleaning.ServiceType = "cleaning"
	e.clock.advance(time.Minute)
	other, err := e.tenders.CreateTender(ctx, member2, cleaning)
	require.NoError(t, err)
	_, err = e.tenders.SetApprovalStatus(ctx, admin, other.ID, "approved")
	require.NoError(t, err)

	list, err := e.tenders.ListVisibleTenders(ctx, services.TenderQuery{})
	require.NoError(t, err)
	ids := tenderIDs(list)
	require.ElementsMatch(t, []string{visible.ID, other.ID}, ids)
	require.NotContains(t, ids, pending.ID)
	require.NotContains(t, ids, closed.ID)
	for _, tender := range list {
		require.True(t, tender.IsVisible())
	}

	list, err = e.tenders.ListVisibleTenders(ctx, services.TenderQuery{ServiceTypes: []string{"cleaning"}})
	require.NoError(t, err)
	require.Equal(t, []string{other.ID}, tenderIDs(list))

	// новые первыми
	list, err = e.tenders.ListVisibleTenders(ctx, services.TenderQuery{Page: services.Page{Limit: 1}})
	require.NoError(t, err)
	require.Equal(t, []string{other.ID}, tenderIDs(list))

	_, err = e.tenders.ListVisibleTenders(ctx, services.TenderQuery{Page: services.Page{Offset: -1}})
	require.Contains(t, fieldsOf(t, err), "offset")
}

func TestListVisibleTenders_HidesExpired(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	soon := validTenderInput()
	soon.ClosingAt = baseTime.Add(time.Hour)
	expiring, err := e.tenders.CreateTender(ctx, member, soon)
	require.NoError(t, err)
	_, err = e.tenders.SetApprovalStatus(ctx, admin, expiring.ID, "approved")
	require.NoError(t, err)
	later := e.approvedTender(t, member)

	list, err := e.tenders.ListVisibleTenders(ctx, services.TenderQuery{})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{expiring.ID, later.ID}, tenderIDs(list))

	// срок истёк, закрывающая задача ещё не запускалась
	e.clock.advance(time.Hour)
	list, err = e.tenders.ListVisibleTenders(ctx, services.TenderQuery{})
	require.NoError(t, err)
	require.Equal(t, []string{later.ID}, tenderIDs(list))

	got, err := e.store.GetTender(ctx, expiring.ID)
	require.NoError(t, err)
	require.Equal(t, models.TenderOpen, got.Status)
}

func TestListOwnerAndAllTenders(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	approved := e.approvedTender(t, member)
	pending, err := e.tenders.CreateTender(ctx, member, validTenderInput())
	require.NoError(t, err)
	foreign, err := e.tenders.CreateTender(ctx, member2, validTenderInput())
	require.NoError(t, err)

	own, err := e.tenders.ListOwnerTenders(ctx, member)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{approved.ID, pending.ID}, tenderIDs(own))

	_, err = e.tenders.ListAllTenders(ctx, member, services.TenderQuery{})
	require.ErrorIs(t, err, services.ErrForbidden)

	all, err := e.tenders.ListAllTenders(ctx, admin, services.TenderQuery{})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{approved.ID, pending.ID, foreign.ID}, tenderIDs(all))

	queue, err := e.tenders.ListAllTenders(ctx, admin, services.TenderQuery{ApprovalStatus: "pending"})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{pending.ID, foreign.ID}, tenderIDs(queue))

	_, err = e.tenders.ListAllTenders(ctx, admin, services.TenderQuery{ApprovalStatus: "unknown"})
	require.Contains(t, fieldsOf(t, err), "approval_status")
}

// после отклонения тендер пропадает из выдачи и не принимает предложений
func TestRejectedTenderIsHiddenAndIneligible(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tender := e.approvedTender(t, member)

	_, err := e.tenders.SetApprovalStatus(ctx, admin, tender.ID, "rejected")
	require.NoError(t, err)

	list, err := e.tenders.ListVisibleTenders(ctx, services.TenderQuery{})
	require.NoError(t, err)
	require.NotContains(t, tenderIDs(list), tender.ID)

	_, err = e.bids.SubmitBid(ctx, contractor, tender.ID, bidInput(40000, "Acme Lifts"))
	require.ErrorIs(t, err, services.ErrIneligibleTender)
}

func TestTenderWriteConflictRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("one lost write is retried", func(t *testing.T) {
		store := &staleStore{Storage: memdb.New()}
		e := newEnvWithStore(t, store)
		tender, err := e.tenders.CreateTender(ctx, member, validTenderInput())
		require.NoError(t, err)

		store.staleTenderWrites = 1
		got, err := e.tenders.SetApprovalStatus(ctx, admin, tender.ID, "approved")
		require.NoError(t, err)
		require.Equal(t, models.ApprovalApproved, got.ApprovalStatus)
	})

	t.Run("two lost writes surface as conflict", func(t *testing.T) {
		store := &staleStore{Storage: memdb.New()}
		e := newEnvWithStore(t, store)
		tender, err := e.tenders.CreateTender(ctx, member, validTenderInput())
		require.NoError(t, err)

		store.staleTenderWrites = 2
		_, err = e.tenders.UpdateTender(ctx, member, tender.ID, validTenderInput())
		require.ErrorIs(t, err, services.ErrConflict)

		stored, err := store.GetTender(ctx, tender.ID)
		require.NoError(t, err)
		require.Equal(t, 1, stored.Version)
	})
}

func tenderIDs(list []models.Tender) []string {
	ids := make([]string, 0, len(list))
	for _, t := range list {
		ids = append(ids, t.ID)
	}
	return ids
}

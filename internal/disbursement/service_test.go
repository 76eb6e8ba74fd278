package disbursement

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/drm-suite/payables/internal/shared"
)

const tenant = "tenant-a"

type recordingApprovals struct {
	mu   sync.Mutex
	logs []shared.ApprovalLog
	err  error
}

func (r *recordingApprovals) Record(ctx context.Context, log shared.ApprovalLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, log)
	return r.err
}

type countingCache struct {
	mu    sync.Mutex
	bumps int
}

func (c *countingCache) BuildKey(ctx context.Context, parts ...string) (string, error) {
	return "key", nil
}

func (c *countingCache) FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error {
	v, err := loader(ctx)
	if err != nil {
		return err
	}
	*dest.(*Stats) = v.(Stats)
	return nil
}

func (c *countingCache) Bump(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bumps++
	return nil
}

type testEnv struct {
	svc       *Service
	repo      *MemoryRepository
	approvals *recordingApprovals
	cache     *countingCache
	logs      *bytes.Buffer
	now       time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		repo:      NewMemoryRepository(),
		approvals: &recordingApprovals{},
		cache:     &countingCache{},
		logs:      &bytes.Buffer{},
		now:       testNow,
	}
	logger := slog.New(slog.NewTextHandler(env.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	env.svc = NewService(env.repo, env.approvals, env.cache, logger)
	env.svc.SetClock(func() time.Time { return env.now })
	return env
}

func (e *testEnv) create(t *testing.T, amount int64, dueOffset int) Schedule {
	t.Helper()
	s, err := e.svc.Create(context.Background(), CreateInput{
		TenantID:    tenant,
		PartnerID:   "partner-1",
		PartnerName: "Yamada Koumuten",
		DueDate:     daysFromNow(dueOffset),
		Amount:      amount,
	})
	require.NoError(t, err)
	return s
}

func TestServiceCreateAssignsIdentityAndNumber(t *testing.T) {
	env := newTestEnv(t)
	first := env.create(t, 450_000, 10)
	second := env.create(t, 450_000, 12)

	require.NotEqual(t, uuid.Nil, first.ID)
	require.Equal(t, "DIS-SCH-202603-001", first.Number)
	require.Equal(t, "DIS-SCH-202603-002", second.Number)
	require.Equal(t, 2, env.cache.bumps)

	stored, err := env.svc.Get(context.Background(), tenant, first.ID)
	require.NoError(t, err)
	require.Equal(t, first.Number, stored.Number)
	require.Equal(t, StatusApproved, stored.Status)
}

func TestServiceNumbersArePerTenant(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, 100, 10)
	other, err := env.svc.Create(context.Background(), CreateInput{
		TenantID: "tenant-b", PartnerID: "p", PartnerName: "n", DueDate: daysFromNow(3), Amount: 1,
	})
	require.NoError(t, err)
	require.Equal(t, "DIS-SCH-202603-001", other.Number)

	_, err = env.svc.Get(context.Background(), "tenant-b", env.create(t, 1, 1).ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestServiceCreateValidation(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.Create(context.Background(), CreateInput{TenantID: tenant, PartnerName: "x", DueDate: testNow, Amount: 0})
	require.ErrorIs(t, err, shared.ErrValidation)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Contains(t, verr.Fields, "amount")
	require.Contains(t, verr.Fields, "partnerID")

	_, err = env.svc.Create(context.Background(), CreateInput{TenantID: tenant, PartnerID: "p", PartnerName: "x", Amount: 10})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Zero(t, env.cache.bumps)
}

func TestServiceCreateFromOrderUsesPaymentTerms(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	s, err := env.svc.CreateFromOrder(ctx, OrderEvent{
		TenantID: tenant, OrderID: "o-1", OrderNo: "PO-001", PartnerID: "p", PartnerName: "Sato Denki",
		Amount: 6_000_000, PaymentTermsDays: 14,
	})
	require.NoError(t, err)
	require.Equal(t, daysFromNow(14), s.DueDate)
	require.Equal(t, "o-1", s.OrderID)
	require.True(t, s.RequiresApproval)
	require.Equal(t, DefaultPaymentMethod, s.PaymentMethod)
	require.Contains(t, s.Notes, "PO-001")

	s, err = env.svc.CreateFromOrder(ctx, OrderEvent{
		TenantID: tenant, OrderID: "o-2", OrderNo: "PO-002", PartnerID: "p", PartnerName: "Sato Denki", Amount: 10,
	})
	require.NoError(t, err)
	require.Equal(t, daysFromNow(DefaultPaymentTermsDays), s.DueDate)

	_, err = env.svc.CreateFromOrder(ctx, OrderEvent{TenantID: tenant, Amount: 10})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestServiceListRecomputesAlertsAndFilters(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	far := env.create(t, 100_000, 20)
	soon := env.create(t, 200_000, 3)
	pending := env.create(t, 9_000_000, 6)

	// Time moves on without a refresh; reads still see current alerts.
	env.now = testNow.AddDate(0, 0, 4)

	all, stats, err := env.svc.List(ctx, ListFilter{TenantID: tenant})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, []uuid.UUID{soon.ID, pending.ID, far.ID}, []uuid.UUID{all[0].ID, all[1].ID, all[2].ID})
	require.Equal(t, AlertCritical, all[0].AlertLevel)
	require.Equal(t, -1, all[0].DaysUntilDue)
	require.Equal(t, AlertWarning, all[1].AlertLevel)
	require.Equal(t, 3, stats.Total)
	require.Equal(t, 1, stats.PendingApprovalCount)
	require.Equal(t, 1, stats.AlertCounts[AlertCritical])
	require.Equal(t, 1, stats.AlertCounts[AlertWarning])
	require.Equal(t, 1, stats.AlertCounts[AlertNone])
	require.Equal(t, 0, stats.AlertCounts[AlertDanger])
	require.Equal(t, int64(9_300_000), stats.TotalAmount)

	stored, err := env.repo.GetSchedule(ctx, tenant, soon.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, stored.Status, "reads never change status")

	critical, _, err := env.svc.List(ctx, ListFilter{TenantID: tenant, AlertLevel: AlertCritical})
	require.NoError(t, err)
	require.Len(t, critical, 1)
	require.Equal(t, soon.ID, critical[0].ID)

	pendingOnly, _, err := env.svc.List(ctx, ListFilter{TenantID: tenant, ApprovalStatus: ApprovalPending})
	require.NoError(t, err)
	require.Len(t, pendingOnly, 1)

	_, _, err = env.svc.List(ctx, ListFilter{TenantID: tenant, AlertLevel: "loud"})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestServiceSummaryUsesCache(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, 100, 2)
	env.create(t, 300, 40)

	stats, err := env.svc.Summary(context.Background(), tenant)
	require.NoError(t, err)
	require.Equal(t, 2, stats.Total)
	require.Equal(t, int64(400), stats.ScheduledAmount)
}

func TestServiceUpdateRecomputesAlert(t *testing.T) {
	env := newTestEnv(t)
	s := env.create(t, 100_000, 20)

	due := daysFromNow(1)
	method := "cash"
	updated, err := env.svc.Update(context.Background(), UpdateInput{
		TenantID: tenant, ID: s.ID, DueDate: &due, PaymentMethod: &method,
	})
	require.NoError(t, err)
	require.Equal(t, AlertDanger, updated.AlertLevel)
	require.Equal(t, "due tomorrow", updated.AlertMessage)
	require.Equal(t, "cash", updated.PaymentMethod)
}

func TestServiceUpdateAmountAcrossThresholdKeepsApprovalState(t *testing.T) {
	env := newTestEnv(t)
	s := env.create(t, 100_000, 20)

	amount := int64(7_000_000)
	updated, err := env.svc.Update(context.Background(), UpdateInput{TenantID: tenant, ID: s.ID, Amount: &amount})
	require.NoError(t, err)
	require.Equal(t, amount, updated.Amount)
	require.False(t, updated.RequiresApproval)
	require.Equal(t, ApprovalApproved, updated.ApprovalStatus)
	require.Contains(t, env.logs.String(), "amount edit crosses approval threshold")
}

func TestServiceUpdateStatusGuards(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	high := env.create(t, 5_000_000, 20)

	paid := StatusPaid
	_, err := env.svc.Update(ctx, UpdateInput{TenantID: tenant, ID: high.ID, Status: &paid})
	require.ErrorIs(t, err, ErrInvalidStatus)

	approved := StatusApproved
	_, err = env.svc.Update(ctx, UpdateInput{TenantID: tenant, ID: high.ID, Status: &approved})
	require.ErrorIs(t, err, ErrApprovalRequired)

	bogus := Status("bogus")
	_, err = env.svc.Update(ctx, UpdateInput{TenantID: tenant, ID: high.ID, Status: &bogus})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = env.svc.Cancel(ctx, tenant, high.ID)
	require.NoError(t, err)
	notes := "late"
	_, err = env.svc.Update(ctx, UpdateInput{TenantID: tenant, ID: high.ID, Notes: &notes})
	require.ErrorIs(t, err, ErrInvalidStatus)

	_, err = env.svc.Update(ctx, UpdateInput{TenantID: tenant, ID: uuid.New(), Notes: &notes})
	require.ErrorIs(t, err, ErrScheduleNotFound)
}

func TestServiceCancel(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	s := env.create(t, 100, -3)

	cancelled, err := env.svc.Cancel(ctx, tenant, s.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
	require.Equal(t, AlertNone, cancelled.AlertLevel)
	require.Equal(t, 0, cancelled.DaysUntilDue)

	again, err := env.svc.Cancel(ctx, tenant, s.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, again.Status)

	_, err = env.svc.Cancel(ctx, tenant, uuid.New())
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestServiceApprove(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	s := env.create(t, 8_500_000, 7)
	require.Equal(t, AlertWarning, s.AlertLevel)

	approved, err := env.svc.Approve(ctx, ApprovalInput{TenantID: tenant, ID: s.ID, Actor: "manager", Note: "ok"})
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)
	require.Equal(t, ApprovalApproved, approved.ApprovalStatus)
	require.Equal(t, "manager", approved.ApprovedBy)
	require.NotNil(t, approved.ApprovedAt)
	require.Equal(t, AlertNone, approved.AlertLevel)

	require.Len(t, env.approvals.logs, 1)
	require.Equal(t, shared.ApprovalApprove, env.approvals.logs[0].Action)
	require.Equal(t, s.ID, env.approvals.logs[0].RefID)

	_, err = env.svc.Approve(ctx, ApprovalInput{TenantID: tenant, ID: s.ID, Actor: "manager"})
	require.ErrorIs(t, err, ErrApprovalNotPending)

	low := env.create(t, 100, 7)
	_, err = env.svc.Approve(ctx, ApprovalInput{TenantID: tenant, ID: low.ID, Actor: "manager"})
	require.ErrorIs(t, err, ErrApprovalNotPending)

	_, err = env.svc.Approve(ctx, ApprovalInput{TenantID: tenant, ID: low.ID})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestServiceApproveKeepsOverdueStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	s := env.create(t, 6_000_000, 1)
	env.now = testNow.AddDate(0, 0, 3)

	_, err := env.svc.RefreshTenant(ctx, tenant)
	require.NoError(t, err)

	approved, err := env.svc.Approve(ctx, ApprovalInput{TenantID: tenant, ID: s.ID, Actor: "cfo"})
	require.NoError(t, err)
	require.Equal(t, StatusOverdue, approved.Status)
	require.Equal(t, AlertCritical, approved.AlertLevel)
}

func TestServiceRejectCancelsSchedule(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	s := env.create(t, 5_000_000, 30)
	env.approvals.err = errors.New("approvals table missing")

	rejected, err := env.svc.Reject(ctx, ApprovalInput{TenantID: tenant, ID: s.ID, Actor: "cfo", Note: "too high"})
	require.NoError(t, err, "recording failures do not undo the decision")
	require.Equal(t, StatusCancelled, rejected.Status)
	require.Equal(t, ApprovalRejected, rejected.ApprovalStatus)
	require.Equal(t, AlertNone, rejected.AlertLevel)
	require.Contains(t, env.logs.String(), "record approval decision")

	_, err = env.svc.Approve(ctx, ApprovalInput{TenantID: tenant, ID: s.ID, Actor: "cfo"})
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestServiceRefreshTenantCountsChangedAlerts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	passing := env.create(t, 450_000, 0)
	env.create(t, 450_000, 60)
	cancelled := env.create(t, 450_000, -10)
	_, err := env.svc.Cancel(ctx, tenant, cancelled.ID)
	require.NoError(t, err)

	// Nothing changes while the clock stands still.
	n, err := env.svc.RefreshTenant(ctx, tenant)
	require.NoError(t, err)
	require.Zero(t, n)

	// The next day only the schedule that was due today changes level; the
	// far one only moves its day count.
	env.now = testNow.AddDate(0, 0, 1)
	n, err = env.svc.RefreshTenant(ctx, tenant)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	stored, err := env.repo.GetSchedule(ctx, tenant, passing.ID)
	require.NoError(t, err)
	require.Equal(t, StatusOverdue, stored.Status)
	require.Equal(t, AlertCritical, stored.AlertLevel)
	require.Equal(t, -1, stored.DaysUntilDue)

	stored, err = env.repo.GetSchedule(ctx, tenant, cancelled.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, stored.Status)

	n, err = env.svc.RefreshTenant(ctx, tenant)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestServiceRefreshAllTenants(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for _, id := range []string{"t1", "t2", "t3"} {
		_, err := env.svc.Create(ctx, CreateInput{
			TenantID: id, PartnerID: "p", PartnerName: "n", DueDate: daysFromNow(0), Amount: 10,
		})
		require.NoError(t, err)
	}
	env.now = testNow.AddDate(0, 0, 1)

	counts, err := env.svc.RefreshAllTenants(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, map[string]int{"t1": 1, "t2": 1, "t3": 1}, counts)
}

func TestServiceRecordPaymentMarksSchedulePaid(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	s := env.create(t, 450_000, -2)

	payment, sched, err := env.svc.RecordPayment(ctx, RecordPaymentInput{
		TenantID: tenant, ScheduleID: s.ID, Reference: "TRX-1", CreatedBy: "clerk",
	})
	require.NoError(t, err)
	require.Equal(t, "DIS-202603-001", payment.Number)
	require.Equal(t, int64(450_000), payment.Amount)
	require.Equal(t, DefaultPaymentMethod, payment.Method)
	require.Equal(t, DateOf(testNow), payment.PaymentDate)
	require.Equal(t, PaymentCompleted, payment.Status)

	require.Equal(t, StatusPaid, sched.Status)
	require.Equal(t, AlertNone, sched.AlertLevel)
	require.Equal(t, payment.ID, *sched.ActualPaymentID)
	require.Equal(t, int64(450_000), *sched.ActualAmount)

	_, _, err = env.svc.RecordPayment(ctx, RecordPaymentInput{TenantID: tenant, ScheduleID: s.ID})
	require.ErrorIs(t, err, ErrInvalidStatus)

	payments, pstats, err := env.svc.ListPayments(ctx, PaymentFilter{TenantID: tenant, ScheduleID: &s.ID})
	require.NoError(t, err)
	require.Len(t, payments, 1)
	require.Equal(t, "partner-1", payments[0].PartnerID, "partner fields are copied from the schedule")
	require.Equal(t, PaymentStats{Total: 1, Completed: 1, TotalAmount: 450_000, CompletedAmount: 450_000}, pstats)

	_, stats, err := env.svc.List(ctx, ListFilter{TenantID: tenant})
	require.NoError(t, err)
	require.Equal(t, 1, stats.Paid)
	require.Equal(t, int64(450_000), stats.PaidAmount)
}

func TestServiceRecordPaymentRequiresApproval(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	s := env.create(t, 5_000_000, 10)

	_, _, err := env.svc.RecordPayment(ctx, RecordPaymentInput{TenantID: tenant, ScheduleID: s.ID})
	require.ErrorIs(t, err, ErrApprovalRequired)

	_, err = env.svc.Approve(ctx, ApprovalInput{TenantID: tenant, ID: s.ID, Actor: "cfo"})
	require.NoError(t, err)

	payment, _, err := env.svc.RecordPayment(ctx, RecordPaymentInput{
		TenantID: tenant, ScheduleID: s.ID, Amount: 4_900_000, Method: "check", PaymentDate: daysFromNow(-1),
	})
	require.NoError(t, err)
	require.Equal(t, int64(4_900_000), payment.Amount)
	require.Equal(t, "check", payment.Method)
	require.Equal(t, daysFromNow(-1), payment.PaymentDate)
}

func TestServiceCancelPaymentRevertsSchedule(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	upcoming := env.create(t, 100, 10)
	late := env.create(t, 100, -1)

	p1, _, err := env.svc.RecordPayment(ctx, RecordPaymentInput{TenantID: tenant, ScheduleID: upcoming.ID})
	require.NoError(t, err)
	p2, _, err := env.svc.RecordPayment(ctx, RecordPaymentInput{TenantID: tenant, ScheduleID: late.ID})
	require.NoError(t, err)

	cancelled, err := env.svc.CancelPayment(ctx, tenant, p1.ID)
	require.NoError(t, err)
	require.Equal(t, PaymentCancelled, cancelled.Status)

	s, err := env.repo.GetSchedule(ctx, tenant, upcoming.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, s.Status)
	require.Nil(t, s.ActualPaymentID)
	require.Nil(t, s.ActualAmount)
	require.Equal(t, 10, s.DaysUntilDue)

	_, err = env.svc.CancelPayment(ctx, tenant, p2.ID)
	require.NoError(t, err)
	s, err = env.repo.GetSchedule(ctx, tenant, late.ID)
	require.NoError(t, err)
	require.Equal(t, StatusOverdue, s.Status)
	require.Equal(t, AlertCritical, s.AlertLevel)

	_, err = env.svc.CancelPayment(ctx, tenant, p1.ID)
	require.ErrorIs(t, err, ErrInvalidStatus)

	_, err = env.svc.CancelPayment(ctx, tenant, uuid.New())
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestMemoryRepositoryDiscardsFailedTransaction(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	s := NewSchedule(CreateInput{TenantID: tenant, DueDate: testNow, Amount: 1}, testNow)
	s.ID = uuid.New()

	boom := errors.New("boom")
	err := repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		require.NoError(t, tx.InsertSchedule(ctx, s))
		_, err := tx.NextNumber(ctx, tenant, "X")
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = repo.GetSchedule(ctx, tenant, s.ID)
	require.ErrorIs(t, err, ErrScheduleNotFound)

	err = repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		n, err := tx.NextNumber(ctx, tenant, "X")
		require.Equal(t, 1, n)
		return err
	})
	require.NoError(t, err)
}

func (e *testEnv) createFor(t *testing.T, partnerID, company, orderID string, amount int64) Schedule {
	t.Helper()
	s, err := e.svc.Create(context.Background(), CreateInput{
		TenantID:       tenant,
		OrderID:        orderID,
		PartnerID:      partnerID,
		PartnerName:    partnerID + " san",
		PartnerCompany: company,
		DueDate:        daysFromNow(3),
		Amount:         amount,
	})
	require.NoError(t, err)
	return s
}

func TestServiceListPaymentsFiltersAndStats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.createFor(t, "p-1", "Tanaka Denki", "o-1", 100)
	b := env.createFor(t, "p-2", "Kato Kanamono", "o-2", 200)
	c := env.createFor(t, "p-1", "Tanaka Denki", "o-3", 300)

	pa, _, err := env.svc.RecordPayment(ctx, RecordPaymentInput{TenantID: tenant, ScheduleID: a.ID, PaymentDate: daysFromNow(-2)})
	require.NoError(t, err)
	_, _, err = env.svc.RecordPayment(ctx, RecordPaymentInput{TenantID: tenant, ScheduleID: b.ID, PaymentDate: daysFromNow(-1)})
	require.NoError(t, err)
	pc, _, err := env.svc.RecordPayment(ctx, RecordPaymentInput{TenantID: tenant, ScheduleID: c.ID})
	require.NoError(t, err)
	_, err = env.svc.CancelPayment(ctx, tenant, pc.ID)
	require.NoError(t, err)

	all, stats, err := env.svc.ListPayments(ctx, PaymentFilter{TenantID: tenant})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, pc.ID, all[0].ID, "newest payment date first")
	require.Equal(t, PaymentStats{Total: 3, Completed: 2, Cancelled: 1, TotalAmount: 600, CompletedAmount: 300}, stats)

	byPartner, stats, err := env.svc.ListPayments(ctx, PaymentFilter{TenantID: tenant, PartnerID: "p-1", Status: PaymentCompleted})
	require.NoError(t, err)
	require.Len(t, byPartner, 1)
	require.Equal(t, pa.ID, byPartner[0].ID)
	require.Equal(t, int64(100), stats.CompletedAmount)

	byOrder, _, err := env.svc.ListPayments(ctx, PaymentFilter{TenantID: tenant, OrderID: "o-2"})
	require.NoError(t, err)
	require.Len(t, byOrder, 1)
	require.Equal(t, "Kato Kanamono", byOrder[0].PartnerCompany)

	_, _, err = env.svc.ListPayments(ctx, PaymentFilter{TenantID: tenant, Status: "pending"})
	require.ErrorIs(t, err, shared.ErrValidation)

	other, _, err := env.svc.ListPayments(ctx, PaymentFilter{TenantID: "tenant-b"})
	require.NoError(t, err)
	require.Empty(t, other)
}

func TestServiceUpdatePayment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	s := env.create(t, 100, 3)
	p, _, err := env.svc.RecordPayment(ctx, RecordPaymentInput{TenantID: tenant, ScheduleID: s.ID, Notes: "first"})
	require.NoError(t, err)

	env.now = testNow.Add(time.Hour)
	ref := "WIRE-2026-0310"
	updated, err := env.svc.UpdatePayment(ctx, UpdatePaymentInput{TenantID: tenant, ID: p.ID, Reference: &ref})
	require.NoError(t, err)
	require.Equal(t, ref, updated.Reference)
	require.Equal(t, "first", updated.Notes, "nil fields are left unchanged")
	require.Equal(t, p.Amount, updated.Amount)
	require.True(t, updated.UpdatedAt.After(p.UpdatedAt))

	got, err := env.svc.GetPayment(ctx, tenant, p.ID)
	require.NoError(t, err)
	require.Equal(t, ref, got.Reference)

	_, err = env.svc.UpdatePayment(ctx, UpdatePaymentInput{TenantID: "tenant-b", ID: p.ID, Reference: &ref})
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = env.svc.GetPayment(ctx, tenant, uuid.New())
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestServiceMonthlyReport(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	march1 := env.createFor(t, "p-1", "Tanaka Denki", "", 100)
	march2 := env.createFor(t, "p-1", "Tanaka Denki", "", 250)
	march3 := env.createFor(t, "p-2", "", "", 40)
	february := env.createFor(t, "p-2", "Kato Kanamono", "", 999)
	cancelled := env.createFor(t, "p-3", "Saito Seisou", "", 77)

	pay := func(s Schedule, date time.Time, method string) Payment {
		p, _, err := env.svc.RecordPayment(ctx, RecordPaymentInput{TenantID: tenant, ScheduleID: s.ID, PaymentDate: date, Method: method})
		require.NoError(t, err)
		return p
	}
	pay(march1, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), "bank_transfer")
	pay(march2, time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC), "cheque")
	pay(march3, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), "bank_transfer")
	pay(february, time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC), "bank_transfer")
	voided := pay(cancelled, time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC), "cash")
	_, err := env.svc.CancelPayment(ctx, tenant, voided.ID)
	require.NoError(t, err)

	report, err := env.svc.MonthlyReport(ctx, tenant, 2026, 3)
	require.NoError(t, err)
	require.Equal(t, 3, report.TotalDisbursements)
	require.Equal(t, int64(390), report.TotalAmount)
	require.Equal(t, map[string]ReportBucket{
		"Tanaka Denki": {Count: 2, Amount: 350},
		"p-2 san":      {Count: 1, Amount: 40},
	}, report.ByPartner)
	require.Equal(t, map[string]ReportBucket{
		"bank_transfer": {Count: 2, Amount: 140},
		"cheque":        {Count: 1, Amount: 250},
	}, report.ByPaymentMethod)

	current, err := env.svc.MonthlyReport(ctx, tenant, 0, 0)
	require.NoError(t, err)
	require.Equal(t, report, current, "zero year and month select the current month")

	empty, err := env.svc.MonthlyReport(ctx, tenant, 2025, 3)
	require.NoError(t, err)
	require.Zero(t, empty.TotalDisbursements)
	require.Empty(t, empty.ByPartner)

	_, err = env.svc.MonthlyReport(ctx, tenant, 2026, 13)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestServiceBusinessLocationDecidesToday(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	// 20:00 UTC on 10 March is already 05:00 on 11 March in Tokyo.
	env.now = time.Date(2026, 3, 10, 20, 0, 0, 0, time.UTC)
	jst := time.FixedZone("JST", 9*60*60)

	in := CreateInput{
		TenantID:    tenant,
		PartnerID:   "p-1",
		PartnerName: "Yamada Koumuten",
		DueDate:     time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC),
		Amount:      100,
	}
	utcSched, err := env.svc.Create(ctx, in)
	require.NoError(t, err)
	require.Equal(t, 1, utcSched.DaysUntilDue)
	require.Equal(t, "due tomorrow", utcSched.AlertMessage)

	env.svc.SetLocation(jst)
	got, err := env.svc.Get(ctx, tenant, utcSched.ID)
	require.NoError(t, err)
	require.Equal(t, 0, got.DaysUntilDue)
	require.Equal(t, "due today", got.AlertMessage)

	p, _, err := env.svc.RecordPayment(ctx, RecordPaymentInput{TenantID: tenant, ScheduleID: utcSched.ID})
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), p.PaymentDate)
}

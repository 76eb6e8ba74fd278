package disbursement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/drm-suite/payables/internal/shared"
)

const (
	approvalModule   = "disbursement_schedule"
	schedulePrefix   = "DIS-SCH"
	paymentPrefix    = "DIS"
	summaryCacheRoot = "disbursement"
)

// ApprovalRecorder persists approval decisions.
type ApprovalRecorder interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
}

// SummaryCache caches tenant summaries and is invalidated on every mutation.
type SummaryCache interface {
	BuildKey(ctx context.Context, parts ...string) (string, error)
	FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error
	Bump(ctx context.Context) error
}

// Service implements disbursement schedule workflows on top of a Repository.
type Service struct {
	repo      Repository
	approvals ApprovalRecorder
	cache     SummaryCache
	logger    *slog.Logger
	validate  *validator.Validate
	printer   *message.Printer
	clock     func() time.Time
	location  *time.Location
}

// NewService constructs a Service. approvals and cache are optional.
func NewService(repo Repository, approvals ApprovalRecorder, cache SummaryCache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		approvals: approvals,
		cache:     cache,
		logger:    logger.With(slog.String("module", "disbursement")),
		validate:  validator.New(),
		printer:   message.NewPrinter(language.English),
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// SetClock overrides the time source.
func (s *Service) SetClock(clock func() time.Time) {
	if clock != nil {
		s.clock = clock
	}
}

// SetAmountLocale selects the locale used to format amounts in notes and logs.
func (s *Service) SetAmountLocale(tag language.Tag) {
	s.printer = message.NewPrinter(tag)
}

// SetLocation sets the time zone whose calendar day counts as "today" for
// alerts, numbering and default payment dates. Nil keeps the clock's own zone.
func (s *Service) SetLocation(loc *time.Location) {
	s.location = loc
}

func (s *Service) now() time.Time {
	now := s.clock()
	if s.location != nil {
		now = now.In(s.location)
	}
	return now
}

func (s *Service) formatAmount(amount int64) string {
	return s.printer.Sprintf("%d", amount)
}

// Create registers a manually entered schedule.
func (s *Service) Create(ctx context.Context, in CreateInput) (Schedule, error) {
	if err := s.validateStruct(in); err != nil {
		return Schedule{}, err
	}
	if in.DueDate.IsZero() {
		return Schedule{}, &ValidationError{Fields: map[string]string{"dueDate": "required"}}
	}
	now := s.now()
	sched := NewSchedule(in, now)
	sched.ID = uuid.New()

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := nextNumber(ctx, tx, in.TenantID, schedulePrefix, now)
		if err != nil {
			return err
		}
		sched.Number = number
		return tx.InsertSchedule(ctx, sched)
	})
	if err != nil {
		return Schedule{}, fmt.Errorf("create schedule: %w", err)
	}
	s.invalidate(ctx)
	s.logger.InfoContext(ctx, "disbursement schedule created",
		slog.String("tenant", sched.TenantID),
		slog.String("number", sched.Number),
		slog.String("amount", s.formatAmount(sched.Amount)),
		slog.Bool("requires_approval", sched.RequiresApproval),
		slog.String("alert", string(sched.AlertLevel)),
	)
	return sched, nil
}

// CreateFromOrder derives a schedule from a placed order. The due date is the
// order date plus the payment terms; zero terms fall back to the default.
func (s *Service) CreateFromOrder(ctx context.Context, ev OrderEvent) (Schedule, error) {
	if err := s.validateStruct(ev); err != nil {
		return Schedule{}, err
	}
	terms := ev.PaymentTermsDays
	if terms == 0 {
		terms = DefaultPaymentTermsDays
	}
	due := DateOf(s.now()).AddDate(0, 0, terms)
	sched, err := s.Create(ctx, CreateInput{
		TenantID:       ev.TenantID,
		OrderID:        ev.OrderID,
		OrderNo:        ev.OrderNo,
		PartnerID:      ev.PartnerID,
		PartnerName:    ev.PartnerName,
		PartnerCompany: ev.PartnerCompany,
		DueDate:        due,
		Amount:         ev.Amount,
		PaymentMethod:  DefaultPaymentMethod,
		Notes:          fmt.Sprintf("generated from order %s (payment terms: %d days)", ev.OrderNo, terms),
		CreatedBy:      ev.CreatedBy,
	})
	if err != nil {
		return Schedule{}, err
	}
	s.logger.InfoContext(ctx, "disbursement schedule generated from order",
		slog.String("tenant", ev.TenantID),
		slog.String("order_no", ev.OrderNo),
		slog.String("amount", s.formatAmount(ev.Amount)),
		slog.String("due_date", sched.DueDate.Format(time.DateOnly)),
	)
	return sched, nil
}

// Get returns a schedule with its alert recomputed relative to now.
func (s *Service) Get(ctx context.Context, tenantID string, id uuid.UUID) (Schedule, error) {
	sched, err := s.repo.GetSchedule(ctx, tenantID, id)
	if err != nil {
		return Schedule{}, err
	}
	sched.applyAlert(sched.Alert(s.now()))
	return sched, nil
}

// List returns the filtered schedules ordered by due date together with stats
// over the filtered set. Alerts are recomputed relative to now before the
// alert level filter applies.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Schedule, Stats, error) {
	if filter.AlertLevel != "" && !filter.AlertLevel.Valid() {
		return nil, Stats{}, &ValidationError{Fields: map[string]string{"alertLevel": "unknown"}}
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, Stats{}, &ValidationError{Fields: map[string]string{"status": "unknown"}}
	}
	if filter.ApprovalStatus != "" && !filter.ApprovalStatus.Valid() {
		return nil, Stats{}, &ValidationError{Fields: map[string]string{"approvalStatus": "unknown"}}
	}
	rows, err := s.repo.ListSchedules(ctx, filter)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("list schedules: %w", err)
	}
	now := s.now()
	out := rows[:0]
	for _, sched := range rows {
		sched.applyAlert(sched.Alert(now))
		if filter.AlertLevel != "" && sched.AlertLevel != filter.AlertLevel {
			continue
		}
		out = append(out, sched)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	return out, ComputeStats(out), nil
}

// Summary returns stats for every schedule of the tenant, served from the
// summary cache when available.
func (s *Service) Summary(ctx context.Context, tenantID string) (Stats, error) {
	loader := func(ctx context.Context) (any, error) {
		_, stats, err := s.List(ctx, ListFilter{TenantID: tenantID})
		return stats, err
	}
	if s.cache == nil {
		_, stats, err := s.List(ctx, ListFilter{TenantID: tenantID})
		return stats, err
	}
	key, err := s.cache.BuildKey(ctx, summaryCacheRoot, "summary", tenantID, DateOf(s.now()).Format(time.DateOnly))
	if err != nil {
		return Stats{}, err
	}
	var stats Stats
	if err := s.cache.FetchJSON(ctx, key, &stats, loader); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

// Update applies a partial update and recomputes the alert. The approval
// requirement stays as derived at creation even when the amount crosses the
// threshold; such edits are logged.
func (s *Service) Update(ctx context.Context, in UpdateInput) (Schedule, error) {
	if err := s.validateStruct(in); err != nil {
		return Schedule{}, err
	}
	if in.Status != nil && !in.Status.Valid() {
		return Schedule{}, &ValidationError{Fields: map[string]string{"status": "unknown"}}
	}
	now := s.now()
	var updated Schedule
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sched, err := tx.LockSchedule(ctx, in.TenantID, in.ID)
		if err != nil {
			return err
		}
		if sched.Status.Terminal() {
			return ErrInvalidStatus
		}
		if in.Status != nil {
			switch *in.Status {
			case StatusPaid:
				return ErrInvalidStatus
			case StatusApproved:
				if sched.RequiresApproval && sched.ApprovalStatus != ApprovalApproved {
					return ErrApprovalRequired
				}
			}
			sched.Status = *in.Status
		}
		if in.DueDate != nil {
			sched.DueDate = DateOf(*in.DueDate)
		}
		if in.Amount != nil {
			if RequiresApproval(*in.Amount) != sched.RequiresApproval {
				s.logger.WarnContext(ctx, "amount edit crosses approval threshold, approval requirement unchanged",
					slog.String("tenant", sched.TenantID),
					slog.String("number", sched.Number),
					slog.String("old_amount", s.formatAmount(sched.Amount)),
					slog.String("new_amount", s.formatAmount(*in.Amount)),
					slog.Bool("requires_approval", sched.RequiresApproval),
				)
			}
			sched.Amount = *in.Amount
		}
		if in.PaymentMethod != nil {
			sched.PaymentMethod = *in.PaymentMethod
		}
		if in.PartnerName != nil {
			sched.PartnerName = *in.PartnerName
		}
		if in.PartnerCompany != nil {
			sched.PartnerCompany = *in.PartnerCompany
		}
		if in.BankInfo != nil {
			sched.BankInfo = in.BankInfo
		}
		if in.Notes != nil {
			sched.Notes = *in.Notes
		}
		sched.applyAlert(sched.Alert(now))
		sched.UpdatedAt = now
		updated = sched
		return tx.UpdateSchedule(ctx, sched)
	})
	if err != nil {
		return Schedule{}, fmt.Errorf("update schedule: %w", err)
	}
	s.invalidate(ctx)
	return updated, nil
}

// Cancel marks a schedule cancelled. Cancelling an already cancelled schedule
// is a no-op; paid schedules must have their payment cancelled instead.
func (s *Service) Cancel(ctx context.Context, tenantID string, id uuid.UUID) (Schedule, error) {
	now := s.now()
	var cancelled Schedule
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sched, err := tx.LockSchedule(ctx, tenantID, id)
		if err != nil {
			return err
		}
		switch sched.Status {
		case StatusCancelled:
			cancelled = sched
			return nil
		case StatusPaid:
			return ErrInvalidStatus
		}
		sched.Status = StatusCancelled
		sched.applyAlert(sched.Alert(now))
		sched.UpdatedAt = now
		cancelled = sched
		return tx.UpdateSchedule(ctx, sched)
	})
	if err != nil {
		return Schedule{}, fmt.Errorf("cancel schedule: %w", err)
	}
	s.invalidate(ctx)
	s.logger.InfoContext(ctx, "disbursement schedule cancelled",
		slog.String("tenant", tenantID),
		slog.String("number", cancelled.Number),
	)
	return cancelled, nil
}

// Approve grants a pending high-value approval. A scheduled schedule becomes
// approved; an overdue one stays overdue.
func (s *Service) Approve(ctx context.Context, in ApprovalInput) (Schedule, error) {
	return s.decide(ctx, in, shared.ApprovalApprove)
}

// Reject denies a pending high-value approval and cancels the schedule.
func (s *Service) Reject(ctx context.Context, in ApprovalInput) (Schedule, error) {
	return s.decide(ctx, in, shared.ApprovalReject)
}

func (s *Service) decide(ctx context.Context, in ApprovalInput, action shared.ApprovalAction) (Schedule, error) {
	if err := s.validateStruct(in); err != nil {
		return Schedule{}, err
	}
	now := s.now()
	var decided Schedule
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sched, err := tx.LockSchedule(ctx, in.TenantID, in.ID)
		if err != nil {
			return err
		}
		if sched.Status.Terminal() {
			return ErrInvalidStatus
		}
		if !sched.RequiresApproval || sched.ApprovalStatus != ApprovalPending {
			return ErrApprovalNotPending
		}
		switch action {
		case shared.ApprovalApprove:
			sched.ApprovalStatus = ApprovalApproved
			sched.ApprovedBy = in.Actor
			at := now
			sched.ApprovedAt = &at
			if sched.Status == StatusScheduled {
				sched.Status = StatusApproved
			}
		case shared.ApprovalReject:
			sched.ApprovalStatus = ApprovalRejected
			sched.Status = StatusCancelled
		}
		sched.applyAlert(sched.Alert(now))
		sched.UpdatedAt = now
		decided = sched
		return tx.UpdateSchedule(ctx, sched)
	})
	if err != nil {
		return Schedule{}, fmt.Errorf("%s schedule: %w", strings.ToLower(string(action)), err)
	}
	s.invalidate(ctx)
	if s.approvals != nil {
		entry := shared.ApprovalLog{
			TenantID: in.TenantID,
			Module:   approvalModule,
			RefID:    decided.ID,
			Actor:    in.Actor,
			Action:   action,
			Note:     in.Note,
			At:       now,
		}
		if err := s.approvals.Record(ctx, entry); err != nil {
			s.logger.WarnContext(ctx, "record approval decision", slog.Any("error", err))
		}
	}
	return decided, nil
}

// RefreshTenant recomputes alerts for every active schedule of the tenant,
// moves past-due schedules to overdue, persists what changed and returns the
// number of schedules whose alert level or days-until-due changed.
func (s *Service) RefreshTenant(ctx context.Context, tenantID string) (int, error) {
	now := s.now()
	changed := 0
	overdue := 0
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rows, err := tx.LockActiveSchedules(ctx, tenantID)
		if err != nil {
			return err
		}
		before := make([]Schedule, len(rows))
		copy(before, rows)
		ptrs := make([]*Schedule, len(rows))
		for i := range rows {
			ptrs[i] = &rows[i]
		}
		changed = RefreshAll(ptrs, now)
		for i := range rows {
			prev := before[i]
			cur := rows[i]
			if cur.Status == prev.Status && cur.AlertLevel == prev.AlertLevel && cur.DaysUntilDue == prev.DaysUntilDue {
				continue
			}
			if cur.Status == StatusOverdue && prev.Status != StatusOverdue {
				overdue++
			}
			if err := tx.UpdateSchedule(ctx, cur); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("refresh tenant %s: %w", tenantID, err)
	}
	if changed > 0 || overdue > 0 {
		s.invalidate(ctx)
		s.logger.InfoContext(ctx, "disbursement alerts refreshed",
			slog.String("tenant", tenantID),
			slog.Int("changed", changed),
			slog.Int("overdue", overdue),
		)
	}
	return changed, nil
}

// RefreshAllTenants refreshes every tenant with at most concurrency tenants in
// flight and returns the changed count per tenant.
func (s *Service) RefreshAllTenants(ctx context.Context, concurrency int) (map[string]int, error) {
	tenants, err := s.repo.ListTenants(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	counts := make([]int, len(tenants))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, tenant := range tenants {
		g.Go(func() error {
			n, err := s.RefreshTenant(gctx, tenant)
			if err != nil {
				return err
			}
			counts[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make(map[string]int, len(tenants))
	for i, tenant := range tenants {
		out[tenant] = counts[i]
	}
	return out, nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.WarnContext(ctx, "bump summary cache", slog.Any("error", err))
	}
}

func (s *Service) validateStruct(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[lowerFirst(fe.Field())] = fe.Tag()
	}
	return &ValidationError{Fields: fields}
}

func nextNumber(ctx context.Context, tx TxRepository, tenantID, prefix string, at time.Time) (string, error) {
	scoped := fmt.Sprintf("%s-%s", prefix, at.Format("200601"))
	seq, err := tx.NextNumber(ctx, tenantID, scoped)
	if err != nil {
		return "", fmt.Errorf("next number: %w", err)
	}
	return fmt.Sprintf("%s-%03d", scoped, seq), nil
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

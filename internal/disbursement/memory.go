package disbursement

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryRepository keeps schedules in process memory, keyed by tenant. A
// single mutex serialises every call, including whole WithTx closures.
type MemoryRepository struct {
	mu        sync.Mutex
	schedules map[string]map[uuid.UUID]Schedule
	payments  map[string]map[uuid.UUID]Payment
	sequences map[string]int
}

var _ Repository = (*MemoryRepository)(nil)
var _ TxRepository = (*memoryTx)(nil)

// NewMemoryRepository constructs an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		schedules: make(map[string]map[uuid.UUID]Schedule),
		payments:  make(map[string]map[uuid.UUID]Payment),
		sequences: make(map[string]int),
	}
}

// WithTx runs fn while holding the repository lock. Writes made by fn are
// discarded when it returns an error.
func (r *MemoryRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx := &memoryTx{
		repo:      r,
		schedules: make(map[uuid.UUID]Schedule),
		payments:  make(map[uuid.UUID]Payment),
		sequences: make(map[string]int),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// GetSchedule returns a schedule by id.
func (r *MemoryRepository) GetSchedule(ctx context.Context, tenantID string, id uuid.UUID) (Schedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getSchedule(tenantID, id)
}

func (r *MemoryRepository) getSchedule(tenantID string, id uuid.UUID) (Schedule, error) {
	s, ok := r.schedules[tenantID][id]
	if !ok {
		return Schedule{}, ErrScheduleNotFound
	}
	return s, nil
}

// ListSchedules returns schedules matching the stored-field filters. Alert
// level filtering is left to the service because alerts depend on now.
func (r *MemoryRepository) ListSchedules(ctx context.Context, filter ListFilter) ([]Schedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Schedule, 0, len(r.schedules[filter.TenantID]))
	for _, s := range r.schedules[filter.TenantID] {
		if filter.OrderID != "" && s.OrderID != filter.OrderID {
			continue
		}
		if filter.PartnerID != "" && s.PartnerID != filter.PartnerID {
			continue
		}
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		if filter.ApprovalStatus != "" && s.ApprovalStatus != filter.ApprovalStatus {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// GetPayment returns a payment by id.
func (r *MemoryRepository) GetPayment(ctx context.Context, tenantID string, id uuid.UUID) (Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[tenantID][id]
	if !ok {
		return Payment{}, ErrPaymentNotFound
	}
	return p, nil
}

// ListPayments returns payments matching the filter, newest payment date first.
func (r *MemoryRepository) ListPayments(ctx context.Context, filter PaymentFilter) ([]Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Payment, 0)
	for _, p := range r.payments[filter.TenantID] {
		if matchPayment(p, filter) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PaymentDate.Equal(out[j].PaymentDate) {
			return out[i].PaymentDate.After(out[j].PaymentDate)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func matchPayment(p Payment, f PaymentFilter) bool {
	switch {
	case f.ScheduleID != nil && p.ScheduleID != *f.ScheduleID:
		return false
	case f.OrderID != "" && p.OrderID != f.OrderID:
		return false
	case f.PartnerID != "" && p.PartnerID != f.PartnerID:
		return false
	case f.Status != "" && p.Status != f.Status:
		return false
	case !f.From.IsZero() && p.PaymentDate.Before(f.From):
		return false
	case !f.To.IsZero() && !p.PaymentDate.Before(f.To):
		return false
	}
	return true
}

// ListTenants returns every tenant that owns at least one schedule.
func (r *MemoryRepository) ListTenants(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tenants := make([]string, 0, len(r.schedules))
	for tenant := range r.schedules {
		tenants = append(tenants, tenant)
	}
	sort.Strings(tenants)
	return tenants, nil
}

type memoryTx struct {
	repo      *MemoryRepository
	schedules map[uuid.UUID]Schedule
	payments  map[uuid.UUID]Payment
	sequences map[string]int
}

func (t *memoryTx) LockSchedule(ctx context.Context, tenantID string, id uuid.UUID) (Schedule, error) {
	if s, ok := t.schedules[id]; ok && s.TenantID == tenantID {
		return s, nil
	}
	return t.repo.getSchedule(tenantID, id)
}

func (t *memoryTx) LockActiveSchedules(ctx context.Context, tenantID string) ([]Schedule, error) {
	out := make([]Schedule, 0)
	for id, s := range t.repo.schedules[tenantID] {
		if pending, ok := t.schedules[id]; ok {
			s = pending
		}
		if s.Status.Active() {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	return out, nil
}

func (t *memoryTx) InsertSchedule(ctx context.Context, s Schedule) error {
	if _, err := t.LockSchedule(ctx, s.TenantID, s.ID); err == nil {
		return ErrDuplicateSchedule
	}
	t.schedules[s.ID] = s
	return nil
}

func (t *memoryTx) UpdateSchedule(ctx context.Context, s Schedule) error {
	if _, err := t.LockSchedule(ctx, s.TenantID, s.ID); err != nil {
		return err
	}
	t.schedules[s.ID] = s
	return nil
}

func (t *memoryTx) LockPayment(ctx context.Context, tenantID string, id uuid.UUID) (Payment, error) {
	if p, ok := t.payments[id]; ok && p.TenantID == tenantID {
		return p, nil
	}
	p, ok := t.repo.payments[tenantID][id]
	if !ok {
		return Payment{}, ErrPaymentNotFound
	}
	return p, nil
}

func (t *memoryTx) InsertPayment(ctx context.Context, p Payment) error {
	if _, err := t.LockPayment(ctx, p.TenantID, p.ID); err == nil {
		return ErrDuplicatePayment
	}
	t.payments[p.ID] = p
	return nil
}

func (t *memoryTx) UpdatePayment(ctx context.Context, p Payment) error {
	if _, err := t.LockPayment(ctx, p.TenantID, p.ID); err != nil {
		return err
	}
	t.payments[p.ID] = p
	return nil
}

func (t *memoryTx) NextNumber(ctx context.Context, tenantID, prefix string) (int, error) {
	key := tenantID + "|" + prefix
	current, ok := t.sequences[key]
	if !ok {
		current = t.repo.sequences[key]
	}
	current++
	t.sequences[key] = current
	return current, nil
}

func (t *memoryTx) commit() {
	r := t.repo
	for id, s := range t.schedules {
		bucket, ok := r.schedules[s.TenantID]
		if !ok {
			bucket = make(map[uuid.UUID]Schedule)
			r.schedules[s.TenantID] = bucket
		}
		bucket[id] = s
	}
	for id, p := range t.payments {
		bucket, ok := r.payments[p.TenantID]
		if !ok {
			bucket = make(map[uuid.UUID]Payment)
			r.payments[p.TenantID] = bucket
		}
		bucket[id] = p
	}
	for key, v := range t.sequences {
		r.sequences[key] = v
	}
}

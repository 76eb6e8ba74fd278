package disbursement

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines disbursement data access.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	GetSchedule(ctx context.Context, tenantID string, id uuid.UUID) (Schedule, error)
	ListSchedules(ctx context.Context, filter ListFilter) ([]Schedule, error)
	GetPayment(ctx context.Context, tenantID string, id uuid.UUID) (Payment, error)
	ListPayments(ctx context.Context, filter PaymentFilter) ([]Payment, error)
	ListTenants(ctx context.Context) ([]string, error)
}

// TxRepository defines operations within a transaction. Reads through a
// TxRepository lock the returned rows until the transaction ends.
type TxRepository interface {
	LockSchedule(ctx context.Context, tenantID string, id uuid.UUID) (Schedule, error)
	LockActiveSchedules(ctx context.Context, tenantID string) ([]Schedule, error)
	InsertSchedule(ctx context.Context, s Schedule) error
	UpdateSchedule(ctx context.Context, s Schedule) error

	LockPayment(ctx context.Context, tenantID string, id uuid.UUID) (Payment, error)
	InsertPayment(ctx context.Context, p Payment) error
	UpdatePayment(ctx context.Context, p Payment) error

	// NextNumber returns the next sequence value for prefix within the tenant.
	NextNumber(ctx context.Context, tenantID, prefix string) (int, error)
}

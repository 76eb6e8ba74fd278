package disbursement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/drm-suite/payables/internal/platform/db"
)

const scheduleColumns = `id, number, tenant_id, order_id, order_no, partner_id, partner_name, partner_company,
due_date, amount, payment_method, status, actual_payment_id, actual_payment_date, actual_amount,
alert_level, alert_message, days_until_due, requires_approval, approval_status, approved_by, approved_at,
bank_info, notes, created_by, created_at, updated_at`

const paymentColumns = `id, number, tenant_id, schedule_id, order_id, order_no, partner_id, partner_name, partner_company,
payment_date, amount, method, reference, notes, status, created_by, created_at, updated_at`

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores schedules and payments in PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

var _ Repository = (*PostgresRepository)(nil)
var _ TxRepository = (*pgTxRepository)(nil)

// NewPostgresRepository constructs a PostgresRepository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// WithTx runs fn inside a database transaction.
func (r *PostgresRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTxRepository{q: tx})
	})
}

// GetSchedule returns a schedule by id.
func (r *PostgresRepository) GetSchedule(ctx context.Context, tenantID string, id uuid.UUID) (Schedule, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+scheduleColumns+` FROM disbursement_schedules WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	return scanSchedule(row)
}

// ListSchedules returns schedules matching the stored-field filters.
func (r *PostgresRepository) ListSchedules(ctx context.Context, filter ListFilter) ([]Schedule, error) {
	where := []string{"tenant_id = $1"}
	args := []any{filter.TenantID}
	add := func(column string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if filter.OrderID != "" {
		add("order_id", filter.OrderID)
	}
	if filter.PartnerID != "" {
		add("partner_id", filter.PartnerID)
	}
	if filter.Status != "" {
		add("status", string(filter.Status))
	}
	if filter.ApprovalStatus != "" {
		add("approval_status", string(filter.ApprovalStatus))
	}
	sql := `SELECT ` + scheduleColumns + ` FROM disbursement_schedules WHERE ` + strings.Join(where, " AND ") + ` ORDER BY created_at`
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return collectSchedules(rows)
}

// GetPayment returns a payment by id.
func (r *PostgresRepository) GetPayment(ctx context.Context, tenantID string, id uuid.UUID) (Payment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM disbursement_payments WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	p, err := scanPayment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, ErrPaymentNotFound
	}
	return p, err
}

// ListPayments returns payments matching the filter, newest payment date first.
func (r *PostgresRepository) ListPayments(ctx context.Context, filter PaymentFilter) ([]Payment, error) {
	where := []string{"tenant_id = $1"}
	args := []any{filter.TenantID}
	add := func(cond string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.ScheduleID != nil {
		add("schedule_id = $%d", *filter.ScheduleID)
	}
	if filter.OrderID != "" {
		add("order_id = $%d", filter.OrderID)
	}
	if filter.PartnerID != "" {
		add("partner_id = $%d", filter.PartnerID)
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if !filter.From.IsZero() {
		add("payment_date >= $%d::date", filter.From.Format(time.DateOnly))
	}
	if !filter.To.IsZero() {
		add("payment_date < $%d::date", filter.To.Format(time.DateOnly))
	}
	sql := `SELECT ` + paymentColumns + ` FROM disbursement_payments WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY payment_date DESC, created_at DESC`
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Payment, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListTenants returns every tenant that owns at least one schedule.
func (r *PostgresRepository) ListTenants(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT tenant_id FROM disbursement_schedules ORDER BY tenant_id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

type pgTxRepository struct {
	q querier
}

func (t *pgTxRepository) LockSchedule(ctx context.Context, tenantID string, id uuid.UUID) (Schedule, error) {
	row := t.q.QueryRow(ctx, `SELECT `+scheduleColumns+` FROM disbursement_schedules WHERE tenant_id = $1 AND id = $2 FOR UPDATE`, tenantID, id)
	return scanSchedule(row)
}

func (t *pgTxRepository) LockActiveSchedules(ctx context.Context, tenantID string) ([]Schedule, error) {
	rows, err := t.q.Query(ctx, `SELECT `+scheduleColumns+` FROM disbursement_schedules
WHERE tenant_id = $1 AND status IN ('scheduled', 'approved', 'overdue') ORDER BY due_date FOR UPDATE`, tenantID)
	if err != nil {
		return nil, err
	}
	return collectSchedules(rows)
}

func (t *pgTxRepository) InsertSchedule(ctx context.Context, s Schedule) error {
	_, err := t.q.Exec(ctx, `INSERT INTO disbursement_schedules (`+scheduleColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27)`,
		s.ID, s.Number, s.TenantID, s.OrderID, s.OrderNo, s.PartnerID, s.PartnerName, s.PartnerCompany,
		s.DueDate, s.Amount, s.PaymentMethod, string(s.Status), s.ActualPaymentID, s.ActualPaymentDate, s.ActualAmount,
		string(s.AlertLevel), s.AlertMessage, s.DaysUntilDue, s.RequiresApproval, string(s.ApprovalStatus), s.ApprovedBy, s.ApprovedAt,
		s.BankInfo, s.Notes, s.CreatedBy, s.CreatedAt, s.UpdatedAt)
	return mapWriteError(err, ErrDuplicateSchedule)
}

func (t *pgTxRepository) UpdateSchedule(ctx context.Context, s Schedule) error {
	tag, err := t.q.Exec(ctx, `UPDATE disbursement_schedules SET
partner_name = $3, partner_company = $4, due_date = $5, amount = $6, payment_method = $7, status = $8,
actual_payment_id = $9, actual_payment_date = $10, actual_amount = $11,
alert_level = $12, alert_message = $13, days_until_due = $14, approval_status = $15, approved_by = $16, approved_at = $17,
bank_info = $18, notes = $19, updated_at = $20
WHERE tenant_id = $1 AND id = $2`,
		s.TenantID, s.ID, s.PartnerName, s.PartnerCompany, s.DueDate, s.Amount, s.PaymentMethod, string(s.Status),
		s.ActualPaymentID, s.ActualPaymentDate, s.ActualAmount,
		string(s.AlertLevel), s.AlertMessage, s.DaysUntilDue, string(s.ApprovalStatus), s.ApprovedBy, s.ApprovedAt,
		s.BankInfo, s.Notes, s.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

func (t *pgTxRepository) LockPayment(ctx context.Context, tenantID string, id uuid.UUID) (Payment, error) {
	row := t.q.QueryRow(ctx, `SELECT `+paymentColumns+` FROM disbursement_payments WHERE tenant_id = $1 AND id = $2 FOR UPDATE`, tenantID, id)
	p, err := scanPayment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, ErrPaymentNotFound
	}
	return p, err
}

func (t *pgTxRepository) InsertPayment(ctx context.Context, p Payment) error {
	_, err := t.q.Exec(ctx, `INSERT INTO disbursement_payments (`+paymentColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		p.ID, p.Number, p.TenantID, p.ScheduleID, p.OrderID, p.OrderNo, p.PartnerID, p.PartnerName, p.PartnerCompany,
		p.PaymentDate, p.Amount, p.Method, p.Reference, p.Notes, string(p.Status), p.CreatedBy, p.CreatedAt, p.UpdatedAt)
	return mapWriteError(err, ErrDuplicatePayment)
}

func (t *pgTxRepository) UpdatePayment(ctx context.Context, p Payment) error {
	tag, err := t.q.Exec(ctx, `UPDATE disbursement_payments SET status = $3, reference = $4, notes = $5, updated_at = $6
WHERE tenant_id = $1 AND id = $2`, p.TenantID, p.ID, string(p.Status), p.Reference, p.Notes, p.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

func (t *pgTxRepository) NextNumber(ctx context.Context, tenantID, prefix string) (int, error) {
	var next int
	err := t.q.QueryRow(ctx, `INSERT INTO disbursement_sequences (tenant_id, prefix, value) VALUES ($1, $2, 1)
ON CONFLICT (tenant_id, prefix) DO UPDATE SET value = disbursement_sequences.value + 1
RETURNING value`, tenantID, prefix).Scan(&next)
	return next, err
}

func scanSchedule(row pgx.Row) (Schedule, error) {
	var s Schedule
	var status, alert, approval string
	err := row.Scan(
		&s.ID, &s.Number, &s.TenantID, &s.OrderID, &s.OrderNo, &s.PartnerID, &s.PartnerName, &s.PartnerCompany,
		&s.DueDate, &s.Amount, &s.PaymentMethod, &status, &s.ActualPaymentID, &s.ActualPaymentDate, &s.ActualAmount,
		&alert, &s.AlertMessage, &s.DaysUntilDue, &s.RequiresApproval, &approval, &s.ApprovedBy, &s.ApprovedAt,
		&s.BankInfo, &s.Notes, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Schedule{}, ErrScheduleNotFound
	}
	if err != nil {
		return Schedule{}, err
	}
	s.Status = Status(status)
	s.AlertLevel = AlertLevel(alert)
	s.ApprovalStatus = ApprovalStatus(approval)
	return s, nil
}

func collectSchedules(rows pgx.Rows) ([]Schedule, error) {
	defer rows.Close()
	out := make([]Schedule, 0)
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	var status string
	if err := row.Scan(&p.ID, &p.Number, &p.TenantID, &p.ScheduleID,
		&p.OrderID, &p.OrderNo, &p.PartnerID, &p.PartnerName, &p.PartnerCompany,
		&p.PaymentDate, &p.Amount, &p.Method, &p.Reference, &p.Notes, &status, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return Payment{}, err
	}
	p.Status = PaymentStatus(status)
	return p, nil
}

func mapWriteError(err error, duplicate error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return duplicate
	}
	return err
}

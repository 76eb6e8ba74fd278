package disbursement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// RecordPayment records an actual payment against a schedule and marks the
// schedule paid. Schedules awaiting or denied approval cannot be paid.
func (s *Service) RecordPayment(ctx context.Context, in RecordPaymentInput) (Payment, Schedule, error) {
	if err := s.validateStruct(in); err != nil {
		return Payment{}, Schedule{}, err
	}
	now := s.now()
	var (
		payment Payment
		sched   Schedule
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		sched, err = tx.LockSchedule(ctx, in.TenantID, in.ScheduleID)
		if err != nil {
			return err
		}
		if sched.Status.Terminal() {
			return ErrInvalidStatus
		}
		if sched.RequiresApproval && sched.ApprovalStatus != ApprovalApproved {
			return ErrApprovalRequired
		}
		number, err := nextNumber(ctx, tx, in.TenantID, paymentPrefix, now)
		if err != nil {
			return err
		}
		payment = Payment{
			ID:          uuid.New(),
			Number:      number,
			TenantID:    in.TenantID,
			ScheduleID:  sched.ID,
			PaymentDate: DateOf(in.PaymentDate),
			Amount:      in.Amount,
			Method:      in.Method,
			Reference:   in.Reference,
			Notes:       in.Notes,
			Status:      PaymentCompleted,
			CreatedBy:   in.CreatedBy,
			CreatedAt:   now,
			UpdatedAt:   now,

			OrderID:        sched.OrderID,
			OrderNo:        sched.OrderNo,
			PartnerID:      sched.PartnerID,
			PartnerName:    sched.PartnerName,
			PartnerCompany: sched.PartnerCompany,
		}
		if in.PaymentDate.IsZero() {
			payment.PaymentDate = DateOf(now)
		}
		if payment.Amount == 0 {
			payment.Amount = sched.Amount
		}
		if payment.Method == "" {
			payment.Method = sched.PaymentMethod
		}
		if err := tx.InsertPayment(ctx, payment); err != nil {
			return err
		}

		paidOn := payment.PaymentDate
		paidAmount := payment.Amount
		paymentID := payment.ID
		sched.Status = StatusPaid
		sched.ActualPaymentID = &paymentID
		sched.ActualPaymentDate = &paidOn
		sched.ActualAmount = &paidAmount
		sched.applyAlert(sched.Alert(now))
		sched.UpdatedAt = now
		return tx.UpdateSchedule(ctx, sched)
	})
	if err != nil {
		return Payment{}, Schedule{}, fmt.Errorf("record payment: %w", err)
	}
	s.invalidate(ctx)
	s.logger.InfoContext(ctx, "disbursement recorded",
		slog.String("tenant", in.TenantID),
		slog.String("payment", payment.Number),
		slog.String("schedule", sched.Number),
		slog.String("amount", s.formatAmount(payment.Amount)),
	)
	return payment, sched, nil
}

// CancelPayment voids a recorded payment. The linked schedule returns to
// approved with its actual-payment fields cleared, then goes through the
// regular refresh so a past-due schedule lands in overdue.
func (s *Service) CancelPayment(ctx context.Context, tenantID string, id uuid.UUID) (Payment, error) {
	now := s.now()
	var payment Payment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		payment, err = tx.LockPayment(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if payment.Status == PaymentCancelled {
			return ErrInvalidStatus
		}
		payment.Status = PaymentCancelled
		payment.UpdatedAt = now
		if err := tx.UpdatePayment(ctx, payment); err != nil {
			return err
		}

		sched, err := tx.LockSchedule(ctx, tenantID, payment.ScheduleID)
		if err != nil {
			return err
		}
		if sched.ActualPaymentID == nil || *sched.ActualPaymentID != payment.ID {
			return nil
		}
		sched.Status = StatusApproved
		sched.ActualPaymentID = nil
		sched.ActualPaymentDate = nil
		sched.ActualAmount = nil
		Refresh(&sched, now)
		sched.UpdatedAt = now
		return tx.UpdateSchedule(ctx, sched)
	})
	if err != nil {
		return Payment{}, fmt.Errorf("cancel payment: %w", err)
	}
	s.invalidate(ctx)
	s.logger.InfoContext(ctx, "disbursement cancelled",
		slog.String("tenant", tenantID),
		slog.String("payment", payment.Number),
	)
	return payment, nil
}

// GetPayment returns a single payment.
func (s *Service) GetPayment(ctx context.Context, tenantID string, id uuid.UUID) (Payment, error) {
	p, err := s.repo.GetPayment(ctx, tenantID, id)
	if err != nil {
		return Payment{}, fmt.Errorf("get payment: %w", err)
	}
	return p, nil
}

// ListPayments returns payments matching the filter, newest first, with
// aggregate stats over the returned set.
func (s *Service) ListPayments(ctx context.Context, filter PaymentFilter) ([]Payment, PaymentStats, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, PaymentStats{}, &ValidationError{Fields: map[string]string{"status": "unknown"}}
	}
	out, err := s.repo.ListPayments(ctx, filter)
	if err != nil {
		return nil, PaymentStats{}, fmt.Errorf("list payments: %w", err)
	}
	return out, ComputePaymentStats(out), nil
}

// UpdatePayment edits the reference and notes of a payment. Amounts, dates and
// status only change through RecordPayment and CancelPayment.
func (s *Service) UpdatePayment(ctx context.Context, in UpdatePaymentInput) (Payment, error) {
	if err := s.validateStruct(in); err != nil {
		return Payment{}, err
	}
	now := s.now()
	var payment Payment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		payment, err = tx.LockPayment(ctx, in.TenantID, in.ID)
		if err != nil {
			return err
		}
		if in.Reference != nil {
			payment.Reference = *in.Reference
		}
		if in.Notes != nil {
			payment.Notes = *in.Notes
		}
		payment.UpdatedAt = now
		return tx.UpdatePayment(ctx, payment)
	})
	if err != nil {
		return Payment{}, fmt.Errorf("update payment: %w", err)
	}
	return payment, nil
}

// MonthlyReport aggregates the completed payments dated within year/month.
// Zero year and month select the current month.
func (s *Service) MonthlyReport(ctx context.Context, tenantID string, year, month int) (MonthlyReport, error) {
	if year == 0 && month == 0 {
		now := s.now()
		year, month = now.Year(), int(now.Month())
	}
	fields := map[string]string{}
	if year < 1 || year > 9999 {
		fields["year"] = "range"
	}
	if month < 1 || month > 12 {
		fields["month"] = "range"
	}
	if len(fields) > 0 {
		return MonthlyReport{}, &ValidationError{Fields: fields}
	}
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	payments, err := s.repo.ListPayments(ctx, PaymentFilter{
		TenantID: tenantID,
		Status:   PaymentCompleted,
		From:     from,
		To:       from.AddDate(0, 1, 0),
	})
	if err != nil {
		return MonthlyReport{}, fmt.Errorf("monthly report: %w", err)
	}
	return BuildMonthlyReport(year, month, payments), nil
}

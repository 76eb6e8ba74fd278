package disbursement

import (
	"fmt"
	"time"
)

// approvalWarningDays is the window in which a pending approval raises a warning.
const approvalWarningDays = 7

// dueSoonDays is the window in which an approaching due date raises a warning.
const dueSoonDays = 5

// Alert is the derived urgency of a schedule relative to a point in time.
type Alert struct {
	Level        AlertLevel
	Message      string
	DaysUntilDue int
}

// ComputeAlert derives the alert for a schedule. It is pure: the result depends
// only on its arguments, and now is compared by calendar date.
func ComputeAlert(dueDate time.Time, status Status, requiresApproval bool, approvalStatus ApprovalStatus, now time.Time) Alert {
	if status.Terminal() {
		return Alert{Level: AlertNone}
	}

	days := DaysBetween(now, dueDate)

	if requiresApproval && approvalStatus == ApprovalPending && days <= approvalWarningDays {
		return Alert{
			Level:        AlertWarning,
			Message:      fmt.Sprintf("approval pending, %d days to due", days),
			DaysUntilDue: days,
		}
	}

	switch {
	case days < 0:
		return Alert{
			Level:        AlertCritical,
			Message:      fmt.Sprintf("payment overdue by %d days", -days),
			DaysUntilDue: days,
		}
	case days == 0:
		return Alert{Level: AlertDanger, Message: "due today", DaysUntilDue: 0}
	case days == 1:
		return Alert{Level: AlertDanger, Message: "due tomorrow", DaysUntilDue: 1}
	case days <= dueSoonDays:
		return Alert{
			Level:        AlertWarning,
			Message:      fmt.Sprintf("%d days until due", days),
			DaysUntilDue: days,
		}
	default:
		return Alert{Level: AlertNone, DaysUntilDue: days}
	}
}

// DaysBetween returns the signed number of calendar days from from to to.
// Each side is reduced to its own calendar date before subtracting. Unix
// seconds are used because time.Duration overflows past roughly 292 years.
func DaysBetween(from, to time.Time) int {
	return int((DateOf(to).Unix() - DateOf(from).Unix()) / secondsPerDay)
}

const secondsPerDay = 24 * 60 * 60

// DateOf truncates t to midnight UTC of its calendar date.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// RequiresApproval reports whether amount meets the approval threshold.
func RequiresApproval(amount int64) bool {
	return amount >= ApprovalThreshold
}

// NewSchedule builds a schedule with its approval workflow and alert fields
// derived from the input. Identity and numbering are left to the caller.
func NewSchedule(in CreateInput, now time.Time) Schedule {
	requires := RequiresApproval(in.Amount)
	status := StatusApproved
	approval := ApprovalApproved
	if requires {
		status = StatusScheduled
		approval = ApprovalPending
	}
	method := in.PaymentMethod
	if method == "" {
		method = DefaultPaymentMethod
	}
	s := Schedule{
		TenantID:         in.TenantID,
		OrderID:          in.OrderID,
		OrderNo:          in.OrderNo,
		PartnerID:        in.PartnerID,
		PartnerName:      in.PartnerName,
		PartnerCompany:   in.PartnerCompany,
		DueDate:          DateOf(in.DueDate),
		Amount:           in.Amount,
		PaymentMethod:    method,
		Status:           status,
		RequiresApproval: requires,
		ApprovalStatus:   approval,
		BankInfo:         in.BankInfo,
		Notes:            in.Notes,
		CreatedBy:        in.CreatedBy,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	s.applyAlert(ComputeAlert(s.DueDate, s.Status, s.RequiresApproval, s.ApprovalStatus, now))
	return s
}

// Alert recomputes the schedule's alert relative to now without mutating it.
func (s *Schedule) Alert(now time.Time) Alert {
	return ComputeAlert(s.DueDate, s.Status, s.RequiresApproval, s.ApprovalStatus, now)
}

func (s *Schedule) applyAlert(a Alert) {
	s.AlertLevel = a.Level
	s.AlertMessage = a.Message
	s.DaysUntilDue = a.DaysUntilDue
}

// RefreshResult reports what a refresh changed on a single schedule.
type RefreshResult struct {
	AlertChanged  bool
	StatusChanged bool
}

// Dirty reports whether the schedule needs to be persisted.
func (r RefreshResult) Dirty() bool {
	return r.AlertChanged || r.StatusChanged
}

// Refresh recomputes the alert of an active schedule and moves it to overdue
// once its due date has passed. Terminal schedules are left untouched.
func Refresh(s *Schedule, now time.Time) RefreshResult {
	var res RefreshResult
	if s == nil || !s.Status.Active() {
		return res
	}
	a := s.Alert(now)
	if a.DaysUntilDue < 0 && s.Status != StatusOverdue {
		s.Status = StatusOverdue
		res.StatusChanged = true
	}
	if s.AlertLevel != a.Level || s.DaysUntilDue != a.DaysUntilDue {
		s.applyAlert(a)
		res.AlertChanged = true
	}
	if res.Dirty() {
		s.UpdatedAt = now
	}
	return res
}

// RefreshAll refreshes every schedule and returns how many had a different
// alert level or days-until-due afterwards.
func RefreshAll(schedules []*Schedule, now time.Time) int {
	changed := 0
	for _, s := range schedules {
		if Refresh(s, now).AlertChanged {
			changed++
		}
	}
	return changed
}

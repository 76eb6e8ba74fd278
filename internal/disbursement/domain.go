package disbursement

import (
	"time"

	"github.com/google/uuid"
)

// ApprovalThreshold is the amount at or above which a disbursement must be approved.
const ApprovalThreshold int64 = 5_000_000

// DefaultPaymentTermsDays applies to schedules generated from orders without explicit terms.
const DefaultPaymentTermsDays = 30

// DefaultPaymentMethod is assigned when a schedule is created without a method.
const DefaultPaymentMethod = "bank_transfer"

// Status enumerates schedule lifecycle states.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusApproved  Status = "approved"
	StatusPaid      Status = "paid"
	StatusOverdue   Status = "overdue"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status ends the schedule lifecycle.
func (s Status) Terminal() bool {
	return s == StatusPaid || s == StatusCancelled
}

// Active reports whether the schedule still participates in alert refreshes.
func (s Status) Active() bool {
	return s == StatusScheduled || s == StatusApproved || s == StatusOverdue
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusApproved, StatusPaid, StatusOverdue, StatusCancelled:
		return true
	}
	return false
}

// ApprovalStatus enumerates the high-value approval workflow states.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Valid reports whether a is a known approval status.
func (a ApprovalStatus) Valid() bool {
	switch a {
	case ApprovalPending, ApprovalApproved, ApprovalRejected:
		return true
	}
	return false
}

// AlertLevel classifies payment-due urgency.
type AlertLevel string

const (
	AlertNone     AlertLevel = "none"
	AlertWarning  AlertLevel = "warning"
	AlertDanger   AlertLevel = "danger"
	AlertCritical AlertLevel = "critical"
)

// AlertLevels lists levels in ascending severity.
var AlertLevels = []AlertLevel{AlertNone, AlertWarning, AlertDanger, AlertCritical}

// Rank orders alert levels; unknown levels rank below none.
func (l AlertLevel) Rank() int {
	for i, level := range AlertLevels {
		if level == l {
			return i
		}
	}
	return -1
}

// Valid reports whether l is a known alert level.
func (l AlertLevel) Valid() bool {
	return l.Rank() >= 0
}

// BankInfo holds the partner's transfer destination.
type BankInfo struct {
	BankName      string `json:"bankName"`
	BranchName    string `json:"branchName"`
	AccountType   string `json:"accountType"`
	AccountNumber string `json:"accountNumber"`
	AccountHolder string `json:"accountHolder"`
}

// Schedule is a planned outgoing payment to a partner.
type Schedule struct {
	ID       uuid.UUID `json:"id"`
	Number   string    `json:"number"`
	TenantID string    `json:"tenantId"`

	OrderID string `json:"orderId,omitempty"`
	OrderNo string `json:"orderNo,omitempty"`

	PartnerID      string `json:"partnerId"`
	PartnerName    string `json:"partnerName"`
	PartnerCompany string `json:"partnerCompany,omitempty"`

	DueDate       time.Time `json:"dueDate"`
	Amount        int64     `json:"amount"`
	PaymentMethod string    `json:"paymentMethod"`

	Status Status `json:"status"`

	ActualPaymentID   *uuid.UUID `json:"actualPaymentId,omitempty"`
	ActualPaymentDate *time.Time `json:"actualPaymentDate,omitempty"`
	ActualAmount      *int64     `json:"actualAmount,omitempty"`

	AlertLevel   AlertLevel `json:"alertLevel"`
	AlertMessage string     `json:"alertMessage,omitempty"`
	DaysUntilDue int        `json:"daysUntilDue"`

	RequiresApproval bool           `json:"requiresApproval"`
	ApprovalStatus   ApprovalStatus `json:"approvalStatus"`
	ApprovedBy       string         `json:"approvedBy,omitempty"`
	ApprovedAt       *time.Time     `json:"approvedAt,omitempty"`

	BankInfo *BankInfo `json:"bankInfo,omitempty"`
	Notes    string    `json:"notes,omitempty"`

	CreatedBy string    `json:"createdBy,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PaymentStatus enumerates recorded payment states.
type PaymentStatus string

const (
	PaymentCompleted PaymentStatus = "completed"
	PaymentCancelled PaymentStatus = "cancelled"
)

// Valid reports whether p is a known payment status.
func (p PaymentStatus) Valid() bool {
	return p == PaymentCompleted || p == PaymentCancelled
}

// Payment is an actual disbursement made against a schedule. Order and
// partner fields are copied from the schedule when the payment is recorded.
type Payment struct {
	ID         uuid.UUID `json:"id"`
	Number     string    `json:"number"`
	TenantID   string    `json:"tenantId"`
	ScheduleID uuid.UUID `json:"scheduleId"`

	OrderID        string `json:"orderId,omitempty"`
	OrderNo        string `json:"orderNo,omitempty"`
	PartnerID      string `json:"partnerId"`
	PartnerName    string `json:"partnerName"`
	PartnerCompany string `json:"partnerCompany,omitempty"`

	PaymentDate time.Time     `json:"paymentDate"`
	Amount      int64         `json:"amount"`
	Method      string        `json:"method"`
	Reference   string        `json:"reference,omitempty"`
	Notes       string        `json:"notes,omitempty"`
	Status      PaymentStatus `json:"status"`
	CreatedBy   string        `json:"createdBy,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// PaymentStats summarises a set of payments.
type PaymentStats struct {
	Total           int   `json:"total"`
	Completed       int   `json:"completed"`
	Cancelled       int   `json:"cancelled"`
	TotalAmount     int64 `json:"totalAmount"`
	CompletedAmount int64 `json:"completedAmount"`
}

// ReportBucket is one row of a monthly report breakdown.
type ReportBucket struct {
	Count  int   `json:"count"`
	Amount int64 `json:"amount"`
}

// MonthlyReport aggregates the completed payments of one calendar month.
type MonthlyReport struct {
	Year               int                     `json:"year"`
	Month              int                     `json:"month"`
	TotalDisbursements int                     `json:"totalDisbursements"`
	TotalAmount        int64                   `json:"totalAmount"`
	ByPartner          map[string]ReportBucket `json:"byPartner"`
	ByPaymentMethod    map[string]ReportBucket `json:"byPaymentMethod"`
}

// Stats summarises a set of schedules.
type Stats struct {
	Total                int                `json:"total"`
	Scheduled            int                `json:"scheduled"`
	Approved             int                `json:"approved"`
	Paid                 int                `json:"paid"`
	Overdue              int                `json:"overdue"`
	TotalAmount          int64              `json:"totalAmount"`
	PaidAmount           int64              `json:"paidAmount"`
	ScheduledAmount      int64              `json:"scheduledAmount"`
	OverdueAmount        int64              `json:"overdueAmount"`
	PendingApprovalCount int                `json:"pendingApprovalCount"`
	AlertCounts          map[AlertLevel]int `json:"alertCounts"`
}

// --- Input DTOs ---

// CreateInput carries a manually entered schedule.
type CreateInput struct {
	TenantID       string    `validate:"required"`
	OrderID        string    `validate:"omitempty,max=64"`
	OrderNo        string    `validate:"omitempty,max=64"`
	PartnerID      string    `validate:"required,max=64"`
	PartnerName    string    `validate:"required,max=200"`
	PartnerCompany string    `validate:"omitempty,max=200"`
	DueDate        time.Time `validate:"required"`
	Amount         int64     `validate:"gt=0"`
	PaymentMethod  string    `validate:"omitempty,max=50"`
	BankInfo       *BankInfo
	Notes          string
	CreatedBy      string
}

// OrderEvent describes a placed order from which a schedule is derived.
type OrderEvent struct {
	TenantID         string `json:"tenantId" validate:"required"`
	OrderID          string `json:"orderId" validate:"required"`
	OrderNo          string `json:"orderNo" validate:"required"`
	PartnerID        string `json:"partnerId" validate:"required"`
	PartnerName      string `json:"partnerName" validate:"required"`
	PartnerCompany   string `json:"partnerCompany"`
	Amount           int64  `json:"amount" validate:"gt=0"`
	PaymentTermsDays int    `json:"paymentTermsDays" validate:"gte=0,lte=365"`
	CreatedBy        string `json:"createdBy"`
}

// UpdateInput carries a partial schedule update; nil fields are left unchanged.
type UpdateInput struct {
	TenantID       string `validate:"required"`
	ID             uuid.UUID
	DueDate        *time.Time
	Amount         *int64 `validate:"omitempty,gt=0"`
	Status         *Status
	PaymentMethod  *string `validate:"omitempty,max=50"`
	PartnerName    *string `validate:"omitempty,max=200"`
	PartnerCompany *string `validate:"omitempty,max=200"`
	BankInfo       *BankInfo
	Notes          *string
}

// ApprovalInput carries an approve or reject decision.
type ApprovalInput struct {
	TenantID string `validate:"required"`
	ID       uuid.UUID
	Actor    string `validate:"required"`
	Note     string
}

// RecordPaymentInput carries an actual payment against a schedule.
type RecordPaymentInput struct {
	TenantID    string `validate:"required"`
	ScheduleID  uuid.UUID
	PaymentDate time.Time
	Amount      int64  `validate:"gte=0"`
	Method      string `validate:"omitempty,max=50"`
	Reference   string `validate:"omitempty,max=100"`
	Notes       string
	CreatedBy   string
}

// UpdatePaymentInput edits the free-text fields of a payment; nil fields are
// left unchanged.
type UpdatePaymentInput struct {
	TenantID  string `validate:"required"`
	ID        uuid.UUID
	Reference *string `validate:"omitempty,max=100"`
	Notes     *string
}

// PaymentFilter narrows payment listings. Zero fields match everything; From
// is inclusive and To exclusive on the payment date.
type PaymentFilter struct {
	TenantID   string
	ScheduleID *uuid.UUID
	OrderID    string
	PartnerID  string
	Status     PaymentStatus
	From       time.Time
	To         time.Time
}

// ListFilter narrows schedule listings. Empty fields match everything.
type ListFilter struct {
	TenantID       string
	OrderID        string
	PartnerID      string
	Status         Status
	AlertLevel     AlertLevel
	ApprovalStatus ApprovalStatus
}

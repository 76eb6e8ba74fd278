package disbursementhttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/drm-suite/payables/internal/disbursement"
	"github.com/drm-suite/payables/internal/platform/httpx"
	"github.com/drm-suite/payables/internal/shared"
)

// Service captures the disbursement operations used by the HTTP layer.
type Service interface {
	Create(ctx context.Context, in disbursement.CreateInput) (disbursement.Schedule, error)
	Get(ctx context.Context, tenantID string, id uuid.UUID) (disbursement.Schedule, error)
	List(ctx context.Context, filter disbursement.ListFilter) ([]disbursement.Schedule, disbursement.Stats, error)
	Summary(ctx context.Context, tenantID string) (disbursement.Stats, error)
	Update(ctx context.Context, in disbursement.UpdateInput) (disbursement.Schedule, error)
	Cancel(ctx context.Context, tenantID string, id uuid.UUID) (disbursement.Schedule, error)
	Approve(ctx context.Context, in disbursement.ApprovalInput) (disbursement.Schedule, error)
	Reject(ctx context.Context, in disbursement.ApprovalInput) (disbursement.Schedule, error)
	RefreshTenant(ctx context.Context, tenantID string) (int, error)
	RecordPayment(ctx context.Context, in disbursement.RecordPaymentInput) (disbursement.Payment, disbursement.Schedule, error)
	CancelPayment(ctx context.Context, tenantID string, id uuid.UUID) (disbursement.Payment, error)
	GetPayment(ctx context.Context, tenantID string, id uuid.UUID) (disbursement.Payment, error)
	UpdatePayment(ctx context.Context, in disbursement.UpdatePaymentInput) (disbursement.Payment, error)
	ListPayments(ctx context.Context, filter disbursement.PaymentFilter) ([]disbursement.Payment, disbursement.PaymentStats, error)
	MonthlyReport(ctx context.Context, tenantID string, year, month int) (disbursement.MonthlyReport, error)
}

const paymentIdempotencyModule = "disbursement_payment"

// Handler exposes the disbursement JSON API.
type Handler struct {
	logger  *slog.Logger
	service Service
	idem    *shared.IdempotencyStore
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// WithIdempotency enables Idempotency-Key handling on payment recording.
func (h *Handler) WithIdempotency(store *shared.IdempotencyStore) *Handler {
	h.idem = store
	return h
}

// MountRoutes registers the disbursement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/disbursement-schedules", func(r chi.Router) {
		r.Get("/", h.listSchedules)
		r.Post("/", h.createSchedule)
		r.Get("/summary", h.summary)
		r.Post("/refresh", h.refresh)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getSchedule)
			r.Put("/", h.updateSchedule)
			r.Delete("/", h.cancelSchedule)
			r.Post("/approve", h.approve)
			r.Post("/reject", h.reject)
		})
	})
	r.Route("/disbursements", func(r chi.Router) {
		r.Get("/", h.listPayments)
		r.Post("/", h.recordPayment)
		r.Get("/report", h.monthlyReport)
		r.Get("/{id}", h.getPayment)
		r.Put("/{id}", h.updatePayment)
		r.Delete("/{id}", h.cancelPayment)
	})
}

type createRequest struct {
	OrderID        string                 `json:"orderId"`
	OrderNo        string                 `json:"orderNo"`
	PartnerID      string                 `json:"partnerId"`
	PartnerName    string                 `json:"partnerName"`
	PartnerCompany string                 `json:"partnerCompany"`
	DueDate        string                 `json:"dueDate"`
	Amount         int64                  `json:"amount"`
	PaymentMethod  string                 `json:"paymentMethod"`
	BankInfo       *disbursement.BankInfo `json:"bankInfo"`
	Notes          string                 `json:"notes"`
	CreatedBy      string                 `json:"createdBy"`
}

type updateRequest struct {
	DueDate        *string                `json:"dueDate"`
	Amount         *int64                 `json:"amount"`
	Status         *string                `json:"status"`
	PaymentMethod  *string                `json:"paymentMethod"`
	PartnerName    *string                `json:"partnerName"`
	PartnerCompany *string                `json:"partnerCompany"`
	BankInfo       *disbursement.BankInfo `json:"bankInfo"`
	Notes          *string                `json:"notes"`
}

type approvalRequest struct {
	Actor string `json:"actor"`
	Note  string `json:"note"`
}

type paymentUpdateRequest struct {
	Reference *string `json:"reference"`
	Notes     *string `json:"notes"`
}

type paymentRequest struct {
	ScheduleID  string `json:"scheduleId"`
	PaymentDate string `json:"paymentDate"`
	Amount      int64  `json:"amount"`
	Method      string `json:"method"`
	Reference   string `json:"reference"`
	Notes       string `json:"notes"`
	CreatedBy   string `json:"createdBy"`
}

func (h *Handler) listSchedules(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := disbursement.ListFilter{
		TenantID:       shared.TenantFromContext(r.Context()),
		OrderID:        q.Get("orderId"),
		PartnerID:      q.Get("partnerId"),
		Status:         disbursement.Status(q.Get("status")),
		AlertLevel:     disbursement.AlertLevel(q.Get("alertLevel")),
		ApprovalStatus: disbursement.ApprovalStatus(q.Get("approvalStatus")),
	}
	schedules, stats, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, r, "list schedules", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"schedules": schedules, "stats": stats})
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Summary(r.Context(), shared.TenantFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, "schedule summary", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"stats": stats})
}

func (h *Handler) createSchedule(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	due, err := parseDate(req.DueDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "dueDate: "+err.Error())
		return
	}
	sched, err := h.service.Create(r.Context(), disbursement.CreateInput{
		TenantID:       shared.TenantFromContext(r.Context()),
		OrderID:        req.OrderID,
		OrderNo:        req.OrderNo,
		PartnerID:      req.PartnerID,
		PartnerName:    req.PartnerName,
		PartnerCompany: req.PartnerCompany,
		DueDate:        due,
		Amount:         req.Amount,
		PaymentMethod:  req.PaymentMethod,
		BankInfo:       req.BankInfo,
		Notes:          req.Notes,
		CreatedBy:      req.CreatedBy,
	})
	if err != nil {
		h.fail(w, r, "create schedule", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"schedule": sched})
}

func (h *Handler) getSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	sched, err := h.service.Get(r.Context(), shared.TenantFromContext(r.Context()), id)
	if err != nil {
		h.fail(w, r, "get schedule", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"schedule": sched})
}

func (h *Handler) updateSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	in := disbursement.UpdateInput{
		TenantID:       shared.TenantFromContext(r.Context()),
		ID:             id,
		Amount:         req.Amount,
		PaymentMethod:  req.PaymentMethod,
		PartnerName:    req.PartnerName,
		PartnerCompany: req.PartnerCompany,
		BankInfo:       req.BankInfo,
		Notes:          req.Notes,
	}
	if req.DueDate != nil {
		due, err := parseDate(*req.DueDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "dueDate: "+err.Error())
			return
		}
		in.DueDate = &due
	}
	if req.Status != nil {
		status := disbursement.Status(*req.Status)
		in.Status = &status
	}
	sched, err := h.service.Update(r.Context(), in)
	if err != nil {
		h.fail(w, r, "update schedule", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"schedule": sched})
}

func (h *Handler) cancelSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	sched, err := h.service.Cancel(r.Context(), shared.TenantFromContext(r.Context()), id)
	if err != nil {
		h.fail(w, r, "cancel schedule", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"schedule": sched})
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.service.Approve)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.service.Reject)
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, fn func(context.Context, disbursement.ApprovalInput) (disbursement.Schedule, error)) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req approvalRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	sched, err := fn(r.Context(), disbursement.ApprovalInput{
		TenantID: shared.TenantFromContext(r.Context()),
		ID:       id,
		Actor:    req.Actor,
		Note:     req.Note,
	})
	if err != nil {
		h.fail(w, r, "approval decision", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"schedule": sched})
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	changed, err := h.service.RefreshTenant(r.Context(), shared.TenantFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, "refresh alerts", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"updated": changed})
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := disbursement.PaymentFilter{
		TenantID:  shared.TenantFromContext(r.Context()),
		OrderID:   q.Get("orderId"),
		PartnerID: q.Get("partnerId"),
		Status:    disbursement.PaymentStatus(q.Get("status")),
	}
	if raw := q.Get("scheduleId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "scheduleId: invalid id")
			return
		}
		filter.ScheduleID = &id
	}
	payments, stats, err := h.service.ListPayments(r.Context(), filter)
	if err != nil {
		h.fail(w, r, "list payments", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"disbursements": payments, "stats": stats})
}

func (h *Handler) getPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	payment, err := h.service.GetPayment(r.Context(), shared.TenantFromContext(r.Context()), id)
	if err != nil {
		h.fail(w, r, "get payment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"disbursement": payment})
}

func (h *Handler) updatePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req paymentUpdateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	payment, err := h.service.UpdatePayment(r.Context(), disbursement.UpdatePaymentInput{
		TenantID:  shared.TenantFromContext(r.Context()),
		ID:        id,
		Reference: req.Reference,
		Notes:     req.Notes,
	})
	if err != nil {
		h.fail(w, r, "update payment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"disbursement": payment})
}

func (h *Handler) monthlyReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	year, err := optionalInt(q.Get("year"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "year: "+err.Error())
		return
	}
	month, err := optionalInt(q.Get("month"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "month: "+err.Error())
		return
	}
	report, err := h.service.MonthlyReport(r.Context(), shared.TenantFromContext(r.Context()), year, month)
	if err != nil {
		h.fail(w, r, "monthly report", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"report": report})
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	scheduleID, err := uuid.Parse(req.ScheduleID)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "scheduleId: invalid id")
		return
	}
	var paidOn time.Time
	if req.PaymentDate != "" {
		if paidOn, err = parseDate(req.PaymentDate); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "paymentDate: "+err.Error())
			return
		}
	}
	tenantID := shared.TenantFromContext(r.Context())
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key != "" {
		if err := h.idem.CheckAndInsert(r.Context(), tenantID, key, paymentIdempotencyModule); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
				return
			}
			h.fail(w, r, "claim idempotency key", err)
			return
		}
	}
	payment, sched, err := h.service.RecordPayment(r.Context(), disbursement.RecordPaymentInput{
		TenantID:    tenantID,
		ScheduleID:  scheduleID,
		PaymentDate: paidOn,
		Amount:      req.Amount,
		Method:      req.Method,
		Reference:   req.Reference,
		Notes:       req.Notes,
		CreatedBy:   req.CreatedBy,
	})
	if err != nil {
		if key != "" {
			if delErr := h.idem.Delete(r.Context(), tenantID, key, paymentIdempotencyModule); delErr != nil {
				h.logger.WarnContext(r.Context(), "release idempotency key", slog.Any("error", delErr))
			}
		}
		h.fail(w, r, "record payment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"disbursement": payment, "schedule": sched})
}

func (h *Handler) cancelPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	payment, err := h.service.CancelPayment(r.Context(), shared.TenantFromContext(r.Context()), id)
	if err != nil {
		h.fail(w, r, "cancel payment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"disbursement": payment})
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, disbursement.ErrInvalidStatus),
		errors.Is(err, disbursement.ErrApprovalRequired),
		errors.Is(err, disbursement.ErrApprovalNotPending):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
		return
	case errors.Is(err, shared.ErrNotFound), errors.Is(err, shared.ErrValidation), errors.Is(err, shared.ErrDuplicate):
	default:
		h.logger.ErrorContext(r.Context(), op, slog.Any("error", err), slog.String("path", r.URL.Path))
	}
	httpx.RespondError(w, err)
}

func optionalInt(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("expected an integer")
	}
	return n, nil
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.New("required")
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, errors.New("expected YYYY-MM-DD")
	}
	return t, nil
}

package handlers

import (
	"context"
	"errors"
	"strings"
	"time"

	appErrors "poltrona/internal/errors"
	"poltrona/internal/middleware"
	"poltrona/internal/models"
	"poltrona/internal/processor"
	"poltrona/internal/repositories"
	"poltrona/internal/services/audit"
	"poltrona/internal/services/chair"
	"poltrona/internal/services/payment"
	"poltrona/internal/utils/pagination"
	"poltrona/internal/utils/response"
	"poltrona/internal/utils/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

const pingTimeout = 10 * time.Second

// ProcessorPinger checks processor credentials and reachability.
type ProcessorPinger interface {
	Ping(ctx context.Context) (int, error)
}

type AdminHandler struct {
	chairs    chair.Service
	payments  payment.Service
	audit     audit.Service
	processor ProcessorPinger
}

func NewAdminHandler(chairs chair.Service, payments payment.Service, auditSvc audit.Service, proc ProcessorPinger) *AdminHandler {
	return &AdminHandler{chairs: chairs, payments: payments, audit: auditSvc, processor: proc}
}

func actor(c *fiber.Ctx) chair.Actor {
	a := chair.Actor{IPAddress: c.IP(), UserAgent: c.Get(fiber.HeaderUserAgent)}
	if claims, ok := middleware.Claims(c); ok {
		a.UserID = claims.UserID()
	}
	return a
}

func (h *AdminHandler) ListChairs(c *fiber.Ctx) error {
	chairs, err := h.chairs.List(c.UserContext(), c.QueryBool("active", false))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.OK(c, fiber.Map{"data": chairs})
}

func (h *AdminHandler) GetChair(c *fiber.Ctx) error {
	ch, err := h.chairs.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.OK(c, fiber.Map{"data": ch})
}

type createChairRequest struct {
	ChairID          string          `json:"chairId" validate:"required,max=64,chairid"`
	Address          string          `json:"address" validate:"required,max=255"`
	Price            decimal.Decimal `json:"price"`
	DurationSeconds  int             `json:"durationSeconds" validate:"required,gt=0,max=86400"`
	Location         string          `json:"location" validate:"max=255"`
	Active           *bool           `json:"active"`
	PublicPaymentURL string          `json:"publicPaymentUrl" validate:"omitempty,url"`
}

func (h *AdminHandler) CreateChair(c *fiber.Ctx) error {
	var input createChairRequest
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "invalid request format")
	}
	errs := validation.Struct(input)
	if !input.Price.IsPositive() {
		errs = append(errs, validation.ValidationError{Field: "price", Message: "must be greater than 0"})
	}
	if len(errs) > 0 {
		return response.ValidationError(c, errs)
	}

	ch, err := h.chairs.Create(c.UserContext(), actor(c), chair.CreateInput{
		ChairID:          input.ChairID,
		Address:          input.Address,
		Price:            input.Price,
		DurationSeconds:  input.DurationSeconds,
		Location:         input.Location,
		Active:           input.Active,
		PublicPaymentURL: input.PublicPaymentURL,
	})
	if err != nil {
		return response.FromError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": ch})
}

type updateChairRequest struct {
	Address          *string          `json:"address" validate:"omitempty,min=1,max=255"`
	Price            *decimal.Decimal `json:"price"`
	DurationSeconds  *int             `json:"durationSeconds" validate:"omitempty,gt=0,max=86400"`
	Location         *string          `json:"location" validate:"omitempty,max=255"`
	Active           *bool            `json:"active"`
	PublicPaymentURL *string          `json:"publicPaymentUrl" validate:"omitempty,url"`
}

// UpdateChair edits registry fields. Session and intent state cannot be
// set through this endpoint.
func (h *AdminHandler) UpdateChair(c *fiber.Ctx) error {
	var input updateChairRequest
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "invalid request format")
	}
	errs := validation.Struct(input)
	if input.Price != nil && !input.Price.IsPositive() {
		errs = append(errs, validation.ValidationError{Field: "price", Message: "must be greater than 0"})
	}
	if len(errs) > 0 {
		return response.ValidationError(c, errs)
	}

	ch, err := h.chairs.Update(c.UserContext(), actor(c), c.Params("id"), repositories.ChairConfigUpdate{
		Address:          input.Address,
		Price:            input.Price,
		DurationSeconds:  input.DurationSeconds,
		Location:         input.Location,
		Active:           input.Active,
		PublicPaymentURL: input.PublicPaymentURL,
	})
	if err != nil {
		return response.FromError(c, err)
	}
	return response.OK(c, fiber.Map{"data": ch})
}

func (h *AdminHandler) DeactivateChair(c *fiber.Ctx) error {
	ch, err := h.chairs.Deactivate(c.UserContext(), actor(c), c.Params("id"))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.OK(c, fiber.Map{"data": ch})
}

func (h *AdminHandler) ListPayments(c *fiber.Ctx) error {
	filter := repositories.PaymentFilter{ChairID: c.Query("chairId")}
	if status := c.Query("status"); status != "" {
		filter.Status = models.PaymentStatus(strings.ToLower(status))
		if !filter.Status.Valid() {
			return response.BadRequest(c, "status must be one of pending, approved, rejected, cancelled")
		}
	}

	p := pagination.ParseFromRequest(c)
	payments, total, err := h.payments.List(c.UserContext(), filter, p.Window())
	if err != nil {
		return response.FromError(c, err)
	}
	return c.JSON(pagination.Response(p, total, payments))
}

// RetryNotification re-sends the activation for an approved payment whose
// device never acknowledged it.
func (h *AdminHandler) RetryNotification(c *fiber.Ctx) error {
	result, err := h.payments.RetryNotification(c.UserContext(), c.Params("id"))
	if err != nil {
		return response.FromError(c, err)
	}
	if !result.Delivered && !result.Skipped {
		return response.FromError(c, appErrors.ErrDeviceUnreachable.WithDetails(map[string]interface{}{
			"attempts":  result.Attempts,
			"lastError": result.LastError,
		}))
	}
	return response.OK(c, fiber.Map{"notification": result})
}

func (h *AdminHandler) ListAuditLogs(c *fiber.Ctx) error {
	filter := repositories.AuditFilter{
		ChairID:    c.Query("chairId"),
		Action:     c.Query("action"),
		EntityType: c.Query("entityType"),
	}
	p := pagination.ParseFromRequest(c)
	entries, total, err := h.audit.List(c.UserContext(), filter, p.Window())
	if err != nil {
		return response.FromError(c, err)
	}
	return c.JSON(pagination.Response(p, total, entries))
}

// PingProcessor verifies the processor token by listing payment methods.
func (h *AdminHandler) PingProcessor(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), pingTimeout)
	defer cancel()

	methods, err := h.processor.Ping(ctx)
	switch {
	case errors.Is(err, processor.ErrNotConfigured):
		return response.FromError(c, appErrors.ErrConfigMissing)
	case err != nil:
		return response.FromError(c, appErrors.ErrUpstreamUnavailable)
	}
	return response.OK(c, fiber.Map{"message": "processor reachable", "paymentMethods": methods})
}

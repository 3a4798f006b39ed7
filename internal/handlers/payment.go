package handlers

import (
	"errors"
	"strings"

	appErrors "poltrona/internal/errors"
	"poltrona/internal/services/intent"
	"poltrona/internal/services/payment"
	"poltrona/internal/utils/response"
	"poltrona/internal/utils/validation"

	"github.com/gofiber/fiber/v2"
)

type PaymentHandler struct {
	intents  intent.Service
	payments payment.Service
}

func NewPaymentHandler(intents intent.Service, payments payment.Service) *PaymentHandler {
	return &PaymentHandler{intents: intents, payments: payments}
}

type createIntentRequest struct {
	ChairID string `json:"chairId" validate:"required,max=64,chairid"`
}

// CreateIntent issues (or returns the live) payment intent for a chair.
func (h *PaymentHandler) CreateIntent(c *fiber.Ctx) error {
	var input createIntentRequest
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "invalid request format")
	}
	input.ChairID = strings.TrimSpace(input.ChairID)
	if errs := validation.Struct(input); errs != nil {
		return response.ValidationError(c, errs)
	}

	in, err := h.intents.Create(c.UserContext(), input.ChairID)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.OK(c, fiber.Map{
		"intentRef":    in.PaymentID,
		"paymentId":    in.PaymentID,
		"chairId":      in.ChairID,
		"qrCode":       in.QRCode,
		"qrCodeBase64": in.QRCodeBase64,
		"amount":       in.Amount.StringFixed(2),
		"createdAt":    in.CreatedAt,
		"reused":       in.Reused,
	})
}

// PublicStatus is polled by the payer page after the QR is shown.
func (h *PaymentHandler) PublicStatus(c *fiber.Ctx) error {
	p, err := h.payments.Get(c.UserContext(), c.Params("id"))
	if errors.Is(err, appErrors.ErrPaymentNotFound) {
		return c.JSON(fiber.Map{"status": "not_found"})
	}
	if err != nil {
		return response.FromError(c, err)
	}

	return c.JSON(fiber.Map{
		"status":     p.Status,
		"approvedAt": p.ApprovedAt,
		"amount":     p.Amount.StringFixed(2),
	})
}

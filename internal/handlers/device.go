package handlers

import (
	"poltrona/internal/services/chair"
	"poltrona/internal/services/presence"
	"poltrona/internal/utils/response"
	"poltrona/internal/utils/validation"

	"github.com/gofiber/fiber/v2"
)

type DeviceHandler struct {
	presence presence.Service
	chairs   chair.Service
}

func NewDeviceHandler(presenceSvc presence.Service, chairs chair.Service) *DeviceHandler {
	return &DeviceHandler{presence: presenceSvc, chairs: chairs}
}

type heartbeatRequest struct {
	ChairID         string  `json:"chairId" validate:"required,max=64"`
	FirmwareVersion *string `json:"firmwareVersion" validate:"omitempty,max=64"`
	Signal          *int    `json:"signal"`
	Uptime          *int64  `json:"uptime" validate:"omitempty,gte=0"`
}

// Heartbeat records a liveness ping from a chair controller.
func (h *DeviceHandler) Heartbeat(c *fiber.Ctx) error {
	var input heartbeatRequest
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "invalid request format")
	}
	if errs := validation.Struct(input); errs != nil {
		return response.ValidationError(c, errs)
	}

	err := h.presence.Heartbeat(c.UserContext(), presence.Heartbeat{
		ChairID:         input.ChairID,
		FirmwareVersion: input.FirmwareVersion,
		Signal:          input.Signal,
		UptimeSeconds:   input.Uptime,
	})
	if err != nil {
		return response.FromError(c, err)
	}
	return response.OK(c, nil)
}

type deviceTestRequest struct {
	ChairID string `json:"chairId" validate:"required,max=64"`
}

// Test fires the chair relay without a payment.
func (h *DeviceHandler) Test(c *fiber.Ctx) error {
	var input deviceTestRequest
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "invalid request format")
	}
	if errs := validation.Struct(input); errs != nil {
		return response.ValidationError(c, errs)
	}

	if err := h.chairs.TestRelay(c.UserContext(), actor(c), input.ChairID); err != nil {
		return response.FromError(c, err)
	}
	return response.OK(c, fiber.Map{"message": "device responded"})
}

func (h *DeviceHandler) ListStatus(c *fiber.Ctx) error {
	views, err := h.presence.List(c.UserContext())
	if err != nil {
		return response.FromError(c, err)
	}
	return response.OK(c, fiber.Map{"data": views})
}

func (h *DeviceHandler) GetStatus(c *fiber.Ctx) error {
	view, err := h.presence.Status(c.UserContext(), c.Params("chairId"))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.OK(c, fiber.Map{"data": view})
}

package handlers

import (
	"poltrona/internal/services/reconciler"
	"poltrona/internal/services/session"
	"poltrona/internal/utils/response"

	"github.com/gofiber/fiber/v2"
)

type SweepHandler struct {
	reconciler reconciler.Service
	sessions   session.Service
}

func NewSweepHandler(reconciler reconciler.Service, sessions session.Service) *SweepHandler {
	return &SweepHandler{reconciler: reconciler, sessions: sessions}
}

func (h *SweepHandler) Poll(c *fiber.Ctx) error {
	summary, err := h.reconciler.Sweep(c.UserContext())
	if err != nil {
		return response.FromError(c, err)
	}
	return response.OK(c, fiber.Map{
		"checked":  summary.Checked,
		"approved": summary.Approved,
		"rejected": summary.Rejected,
	})
}

func (h *SweepHandler) Expire(c *fiber.Ctx) error {
	cleaned, err := h.sessions.ExpireDue(c.UserContext())
	if err != nil {
		return response.FromError(c, err)
	}
	return response.OK(c, fiber.Map{"cleaned": cleaned})
}

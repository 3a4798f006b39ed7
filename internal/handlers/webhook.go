package handlers

import (
	"poltrona/internal/processor"
	"poltrona/internal/services/webhook"
	"poltrona/internal/utils/response"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type WebhookHandler struct {
	webhooks webhook.Service
	log      logrus.FieldLogger
}

func NewWebhookHandler(webhooks webhook.Service, log logrus.FieldLogger) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks, log: log}
}

// Receive acknowledges every notification with 200 so the processor does
// not redeliver; the poller covers anything that failed here. Only a
// missing processor configuration is reported as an error.
func (h *WebhookHandler) Receive(c *fiber.Ctx) error {
	var env webhook.Envelope
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&env); err != nil {
			h.log.WithError(err).Warn("unparseable webhook body")
		}
	}
	foldQuery(c, &env)

	if _, err := h.webhooks.Handle(c.UserContext(), env); err != nil {
		return response.FromError(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

// foldQuery fills the envelope from the query string, where older
// notification formats put the topic and id.
func foldQuery(c *fiber.Ctx, env *webhook.Envelope) {
	if env.Type == "" {
		env.Type = c.Query("type", c.Query("topic"))
	}
	if env.Data.ID == "" {
		if id := c.Query("data.id"); id != "" {
			env.Data.ID = processor.PaymentID(id)
		} else if c.Query("topic") == "payment" && c.Query("id") != "" {
			env.Data.ID = processor.PaymentID(c.Query("id"))
		}
	}
}

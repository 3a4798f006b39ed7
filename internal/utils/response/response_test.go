package response

import (
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	appErrors "poltrona/internal/errors"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, handler fiber.Handler) (int, string, map[string]interface{}) {
	t.Helper()
	app := fiber.New()
	app.Get("/", handler)

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &body))
	return resp.StatusCode, resp.Header.Get(fiber.HeaderRetryAfter), body
}

func TestFromError_BusyCarriesRetryAfter(t *testing.T) {
	status, retryAfter, body := run(t, func(c *fiber.Ctx) error {
		return FromError(c, appErrors.Busy(200*time.Second))
	})

	assert.Equal(t, fiber.StatusLocked, status)
	assert.Equal(t, "200", retryAfter)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "CHAIR_BUSY", body["code"])
	details := body["details"].(map[string]interface{})
	assert.EqualValues(t, 200, details["retryAfterSeconds"])
}

func TestFromError_UnknownErrorIsOpaque(t *testing.T) {
	status, _, body := run(t, func(c *fiber.Ctx) error {
		return FromError(c, errors.New("pq: connection refused at 10.0.0.5"))
	})

	assert.Equal(t, fiber.StatusInternalServerError, status)
	assert.Equal(t, "internal server error", body["message"])
	assert.NotContains(t, body, "details")
}

func TestOK_MergesSuccess(t *testing.T) {
	status, _, body := run(t, func(c *fiber.Ctx) error {
		return OK(c, fiber.Map{"checked": 3})
	})

	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.EqualValues(t, 3, body["checked"])
}

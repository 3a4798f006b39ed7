package response

import (
	"strconv"

	appErrors "poltrona/internal/errors"
	"poltrona/internal/utils/validation"

	"github.com/gofiber/fiber/v2"
)

// OK answers 200 with body merged into {success:true}.
func OK(c *fiber.Ctx, body fiber.Map) error {
	out := fiber.Map{"success": true}
	for k, v := range body {
		out[k] = v
	}
	return c.JSON(out)
}

func Success(c *fiber.Ctx, message string, data interface{}) error {
	return c.JSON(fiber.Map{
		"success": true,
		"message": message,
		"data":    data,
	})
}

func Error(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"message": message,
	})
}

func BadRequest(c *fiber.Ctx, message string) error {
	return FromError(c, appErrors.ErrInvalidRequest.WithMessage("%s", message))
}

func Unauthorized(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"success": false,
		"message": message,
		"code":    "UNAUTHORIZED",
	})
}

func Forbidden(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
		"success": false,
		"message": message,
		"code":    "FORBIDDEN",
	})
}

// ValidationError answers 400 listing every invalid field.
func ValidationError(c *fiber.Ctx, errs validation.Errors) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"success": false,
		"message": "invalid request",
		"code":    appErrors.ErrInvalidRequest.Code,
		"details": fiber.Map{"errors": errs},
	})
}

// FromError writes the response for err. Domain errors keep their status,
// code and details; anything else is an opaque 500.
func FromError(c *fiber.Ctx, err error) error {
	de, ok := appErrors.As(err)
	if !ok {
		de = appErrors.ErrInternal
	}
	if seconds, ok := appErrors.RetryAfter(de); ok {
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(seconds))
	}

	body := fiber.Map{
		"success": false,
		"message": de.Message,
		"code":    de.Code,
	}
	if len(de.Details) > 0 {
		body["details"] = de.Details
	}
	return c.Status(de.Status).JSON(body)
}

package pagination

import (
	"poltrona/internal/repositories"

	"github.com/gofiber/fiber/v2"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params is the page/limit pair of an admin list request.
type Params struct {
	Page  int
	Limit int
}

// ParseFromRequest reads ?page=&limit=, falling back to page 1 and the
// default limit on anything unparsable. limit is capped at MaxLimit.
func ParseFromRequest(c *fiber.Ctx) Params {
	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	limit := c.QueryInt("limit", DefaultLimit)
	switch {
	case limit < 1:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}
	return Params{Page: page, Limit: limit}
}

func (p Params) Window() repositories.Page {
	return repositories.Page{Limit: p.Limit, Offset: (p.Page - 1) * p.Limit}
}

// Response wraps one page of data with its position in the full result.
func Response(p Params, total int64, data interface{}) fiber.Map {
	pages := (total + int64(p.Limit) - 1) / int64(p.Limit)
	return fiber.Map{
		"success": true,
		"data":    data,
		"meta": fiber.Map{
			"page":       p.Page,
			"limit":      p.Limit,
			"total":      total,
			"totalPages": pages,
		},
	}
}

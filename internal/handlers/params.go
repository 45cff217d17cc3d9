package handlers

import (
	"strings"

	"bookstore/internal/models"
	"bookstore/internal/services"

	"github.com/gofiber/fiber/v2"
)

// pageParams reads ?page=&size=. Services clamp the values.
func pageParams(c *fiber.Ctx) (int, int) {
	return c.QueryInt("page", 1), c.QueryInt("size", 20)
}

// orderQuery reads the paging and optional ?status= filter of an order listing.
func orderQuery(c *fiber.Ctx) (services.OrderQuery, error) {
	page, size := pageParams(c)
	q := services.OrderQuery{Page: page, Size: size}
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status, err := models.ParseOrderStatus(raw)
		if err != nil {
			return q, services.BadRequest("Invalid order status '%s'", raw)
		}
		q.Status = &status
	}
	return q, nil
}

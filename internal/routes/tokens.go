package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/tokenledger/internal/token"
)

// RegisterTokenRoutes wires the token ledger endpoints.
func RegisterTokenRoutes(r fiber.Router, h *token.Handler) {
	r.Post("/tokens", h.Create)

	group := r.Group("/tokens/:tokenId")
	group.Get("", h.Get)
	group.Get("/accounts/:accountId", h.Account)
	group.Post("/transfers", h.Transfer)
	group.Post("/mint", h.Mint)
	group.Post("/burn", h.Burn)
	group.Post("/reserve", h.Reserve)
	group.Post("/unreserve", h.Unreserve)
	group.Put("/transfer-policy", h.SetTransferPolicy)
	group.Get("/patronage", h.Patronage)
	group.Put("/patronage/rate", h.SetPatronageRate)
	group.Post("/patronage/claim", h.ClaimPatronage)
}

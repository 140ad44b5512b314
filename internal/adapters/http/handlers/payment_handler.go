package handlers

import (
	"circlepool/internal/core/services"
	"circlepool/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// PaymentHandler handles payment-provider callbacks
type PaymentHandler struct {
	paymentService *services.PaymentService
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(paymentService *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService}
}

// CallbackRequest is the settled-payment notification body
type CallbackRequest struct {
	Reference string  `json:"reference"`
	Amount    float64 `json:"amount"`
}

// Callback applies a settled payment to the resource its reference names.
// Replayed callbacks are acknowledged without effect.
func (h *PaymentHandler) Callback(c *fiber.Ctx) error {
	userID, ok := c.Locals("userID").(uint)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}

	var req CallbackRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if req.Reference == "" {
		return response.BadRequest(c, "reference is required")
	}
	if req.Amount <= 0 {
		return response.BadRequest(c, "amount must be positive")
	}

	if err := h.paymentService.OnPaymentSettled(req.Reference, req.Amount, userID); err != nil {
		return response.FromDomainError(c, err)
	}
	return response.Success(c, "Payment settled", nil)
}

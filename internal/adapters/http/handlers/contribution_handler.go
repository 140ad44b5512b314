package handlers

import (
	"circlepool/internal/core/services"
	"circlepool/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// ContributionHandler handles transaction confirmation endpoints
type ContributionHandler struct {
	contributionService *services.ContributionService
	groupService        *services.GroupService
}

// NewContributionHandler creates a new contribution handler
func NewContributionHandler(
	contributionService *services.ContributionService,
	groupService *services.GroupService,
) *ContributionHandler {
	return &ContributionHandler{
		contributionService: contributionService,
		groupService:        groupService,
	}
}

// ConfirmSender records the sender-side confirmation
func (h *ContributionHandler) ConfirmSender(c *fiber.Ctx) error {
	return h.confirm(c, true)
}

// ConfirmRecipient records the recipient-side confirmation
func (h *ContributionHandler) ConfirmRecipient(c *fiber.Ctx) error {
	return h.confirm(c, false)
}

// The acting membership is resolved from the authenticated user, never from
// the request body.
func (h *ContributionHandler) confirm(c *fiber.Ctx, asSender bool) error {
	userID, ok := c.Locals("userID").(uint)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}

	var err error
	var tx interface{}
	if asSender {
		tx, err = h.contributionService.ConfirmSenderAsUser(c.Params("id"), userID)
	} else {
		tx, err = h.contributionService.ConfirmRecipientAsUser(c.Params("id"), userID)
	}
	if err != nil {
		return response.FromDomainError(c, err)
	}
	return response.Success(c, "Confirmation recorded", tx)
}

// Cancel voids a not-yet-settled transaction (group admin only)
func (h *ContributionHandler) Cancel(c *fiber.Ctx) error {
	userID, ok := c.Locals("userID").(uint)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}

	tx, err := h.contributionService.CancelTransaction(c.Params("id"), userID)
	if err != nil {
		return response.FromDomainError(c, err)
	}
	return response.Success(c, "Transaction cancelled", tx)
}

// PendingConfirmations lists every transaction awaiting the user's action
func (h *ContributionHandler) PendingConfirmations(c *fiber.Ctx) error {
	userID, ok := c.Locals("userID").(uint)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}

	txs, err := h.groupService.PendingConfirmations(userID)
	if err != nil {
		return response.FromDomainError(c, err)
	}
	return response.Success(c, "Pending confirmations retrieved successfully", txs)
}

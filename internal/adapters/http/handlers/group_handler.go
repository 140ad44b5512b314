package handlers

import (
	"time"

	"circlepool/internal/core/services"
	"circlepool/internal/pkg/pagination"
	"circlepool/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// GroupHandler handles group lifecycle and membership endpoints
type GroupHandler struct {
	groupService    *services.GroupService
	depositService  *services.DepositService
	rotationService *services.RotationService
	autoService     *services.RotationAutoService
}

// NewGroupHandler creates a new group handler
func NewGroupHandler(
	groupService *services.GroupService,
	depositService *services.DepositService,
	rotationService *services.RotationService,
	autoService *services.RotationAutoService,
) *GroupHandler {
	return &GroupHandler{
		groupService:    groupService,
		depositService:  depositService,
		rotationService: rotationService,
		autoService:     autoService,
	}
}

// JoinRequest represents a join request body
type JoinRequest struct {
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	InviteCode string `json:"invite_code"`
}

// Create handles group creation
func (h *GroupHandler) Create(c *fiber.Ctx) error {
	userID, ok := c.Locals("userID").(uint)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}

	var input services.CreateGroupInput
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	group, err := h.groupService.CreateGroup(userID, input)
	if err != nil {
		return response.FromDomainError(c, err)
	}
	return response.Created(c, "Group created successfully", group)
}

// Get returns a group with its members
func (h *GroupHandler) Get(c *fiber.Ctx) error {
	group, err := h.groupService.GetGroup(c.Params("id"))
	if err != nil {
		return response.FromDomainError(c, err)
	}
	return response.Success(c, "Group retrieved successfully", group)
}

// Members returns the group's member list in rotation order
func (h *GroupHandler) Members(c *fiber.Ctx) error {
	members, err := h.groupService.ListMembers(c.Params("id"))
	if err != nil {
		return response.FromDomainError(c, err)
	}
	return response.Success(c, "Members retrieved successfully", members)
}

// Join adds the authenticated user to the group
func (h *GroupHandler) Join(c *fiber.Ctx) error {
	userID, ok := c.Locals("userID").(uint)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}

	var req JoinRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	member, err := h.groupService.JoinGroup(c.Params("id"), userID, req.Name, req.Phone, req.InviteCode)
	if err != nil {
		return response.FromDomainError(c, err)
	}
	return response.Created(c, "Joined group successfully", member)
}

// Invite returns the group's invitation code (admin only)
func (h *GroupHandler) Invite(c *fiber.Ctx) error {
	userID, ok := c.Locals("userID").(uint)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}

	code, err := h.groupService.InviteCode(c.Params("id"), userID)
	if err != nil {
		return response.FromDomainError(c, err)
	}
	return response.Success(c, "Invitation code retrieved successfully", fiber.Map{
		"invite_code": code,
	})
}

// RemoveMember removes a not-yet-locked-in member (admin only)
func (h *GroupHandler) RemoveMember(c *fiber.Ctx) error {
	userID, ok := c.Locals("userID").(uint)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}

	group, err := h.groupService.GetGroup(c.Params("id"))
	if err != nil {
		return response.FromDomainError(c, err)
	}
	if group.AdminID != userID {
		return response.Forbidden(c, "Only the group admin can remove members")
	}

	if err := h.groupService.RemoveMember(group.ID, c.Params("memberID")); err != nil {
		return response.FromDomainError(c, err)
	}
	return response.Success(c, "Member removed successfully", nil)
}

// Round returns the live status of the current contribution round
func (h *GroupHandler) Round(c *fiber.Ctx) error {
	status, err := h.groupService.CurrentRound(c.Params("id"))
	if err != nil {
		return response.FromDomainError(c, err)
	}
	return response.Success(c, "Round status retrieved successfully", status)
}

// Transactions returns the group's transaction history, newest first
func (h *GroupHandler) Transactions(c *fiber.Ctx) error {
	params := pagination.GetParams(c)
	txs, total, err := h.groupService.ListTransactions(c.Params("id"), params.Offset, params.Limit)
	if err != nil {
		return response.FromDomainError(c, err)
	}
	return response.Success(c, "Transactions retrieved successfully",
		pagination.NewResponse(txs, params, total))
}

// Advance triggers a rotation advance attempt (admin/ops)
func (h *GroupHandler) Advance(c *fiber.Ctx) error {
	userID, ok := c.Locals("userID").(uint)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}

	group, err := h.groupService.GetGroup(c.Params("id"))
	if err != nil {
		return response.FromDomainError(c, err)
	}
	if group.AdminID != userID {
		return response.Forbidden(c, "Only the group admin can trigger an advance")
	}

	deadline := h.autoService.RoundDeadline(group)
	if c.Query("force_deadline") == "true" {
		deadline = time.Now().Add(-time.Second)
	}

	result, err := h.rotationService.TryAdvance(group.ID, deadline)
	if err != nil {
		return response.FromDomainError(c, err)
	}
	return response.Success(c, "Advance attempted", result)
}

// ReturnDeposit returns a member's deposit after the group completes
func (h *GroupHandler) ReturnDeposit(c *fiber.Ctx) error {
	userID, ok := c.Locals("userID").(uint)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}

	group, err := h.groupService.GetGroup(c.Params("id"))
	if err != nil {
		return response.FromDomainError(c, err)
	}
	if group.AdminID != userID {
		return response.Forbidden(c, "Only the group admin can return deposits")
	}

	tx, err := h.depositService.ReturnDeposit(group, c.Params("memberID"))
	if err != nil {
		return response.FromDomainError(c, err)
	}
	return response.Success(c, "Deposit returned successfully", tx)
}

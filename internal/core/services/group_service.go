package services

import (
	"fmt"
	"log"
	"strings"
	"time"

	"circlepool/internal/adapters/persistence/models"
	"circlepool/internal/adapters/persistence/repositories"
	"circlepool/internal/core/domain"

	"github.com/google/uuid"
)

// CreateGroupInput carries the admin-supplied group parameters
type CreateGroupInput struct {
	Name               string                   `json:"name" validate:"required,min=3,max=100"`
	ContributionAmount float64                  `json:"contribution_amount" validate:"required,gt=0"`
	Frequency          domain.RotationFrequency `json:"frequency" validate:"required"`
	MemberLimit        int                      `json:"member_limit" validate:"required,min=2,max=100"`
	Tier               domain.TierLevel         `json:"tier"`
	DepositMultiplier  float64                  `json:"deposit_multiplier"`
}

// RoundStatus is the live view of the group's current contribution round
type RoundStatus struct {
	Round             int                  `json:"round"`
	RecipientMemberID string               `json:"recipient_member_id"`
	RecipientName     string               `json:"recipient_name"`
	OpenedAt          *time.Time           `json:"opened_at"`
	Expected          int                  `json:"expected_contributions"`
	Settled           int                  `json:"settled_contributions"`
	Transactions      []models.Transaction `json:"transactions"`
}

// GroupService owns group lifecycle and membership. All writes that touch
// shared group state run under a group-scoped lock so concurrent joins and
// removals cannot race past the capacity or position checks.
type GroupService struct {
	groupRepo  *repositories.GroupRepository
	memberRepo *repositories.MemberRepository
	txRepo     *repositories.TransactionRepository
	lockSvc    *LockService
	depositSvc *DepositService
	tierPolicy *TierPolicy
}

// NewGroupService creates a new group service
func NewGroupService(
	groupRepo *repositories.GroupRepository,
	memberRepo *repositories.MemberRepository,
	txRepo *repositories.TransactionRepository,
	lockSvc *LockService,
	depositSvc *DepositService,
	tierPolicy *TierPolicy,
) *GroupService {
	return &GroupService{
		groupRepo:  groupRepo,
		memberRepo: memberRepo,
		txRepo:     txRepo,
		lockSvc:    lockSvc,
		depositSvc: depositSvc,
		tierPolicy: tierPolicy,
	}
}

// CreateGroup validates the input against the admin's tier and creates the
// group with the rotation pointer at position 1.
func (s *GroupService) CreateGroup(adminID uint, input CreateGroupInput) (*models.Group, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return nil, fmt.Errorf("%w: group name is required", domain.ErrValidation)
	}
	if input.ContributionAmount <= 0 {
		return nil, fmt.Errorf("%w: contribution amount must be positive", domain.ErrValidation)
	}
	if input.MemberLimit < 2 || input.MemberLimit > 100 {
		return nil, fmt.Errorf("%w: member limit must be between 2 and 100", domain.ErrValidation)
	}
	if !input.Frequency.IsValid() {
		return nil, fmt.Errorf("%w: unknown frequency '%s'", domain.ErrValidation, input.Frequency)
	}
	if input.Tier == "" {
		input.Tier = domain.TierStarter
	}
	if input.DepositMultiplier == 0 {
		input.DepositMultiplier = 1.0
	}
	if input.DepositMultiplier < 0.5 || input.DepositMultiplier > 3.0 {
		return nil, fmt.Errorf("%w: deposit multiplier must be between 0.5 and 3.0", domain.ErrValidation)
	}

	limits, err := s.tierPolicy.LimitsFor(input.Tier)
	if err != nil {
		return nil, err
	}
	if !limits.AllowsFrequency(input.Frequency) {
		return nil, fmt.Errorf("%w: tier %s does not allow %s rotations",
			domain.ErrCapacity, input.Tier, input.Frequency)
	}
	if input.MemberLimit > limits.MaxMembersPerGroup {
		return nil, fmt.Errorf("%w: tier %s allows at most %d members per group",
			domain.ErrCapacity, input.Tier, limits.MaxMembersPerGroup)
	}

	count, err := s.groupRepo.CountByAdmin(adminID)
	if err != nil {
		return nil, err
	}
	if count >= int64(limits.MaxGroupsPerAdmin) {
		return nil, fmt.Errorf("%w: tier %s allows at most %d groups per admin",
			domain.ErrCapacity, input.Tier, limits.MaxGroupsPerAdmin)
	}

	group := &models.Group{
		ID:                 uuid.NewString(),
		InviteCode:         uuid.NewString(),
		Name:               input.Name,
		AdminID:            adminID,
		ContributionAmount: input.ContributionAmount,
		Frequency:          input.Frequency,
		MemberLimit:        input.MemberLimit,
		Tier:               input.Tier,
		DepositMultiplier:  input.DepositMultiplier,
		Status:             domain.GroupActive,
		RotationPosition:   1,
	}
	if err := s.groupRepo.Create(group); err != nil {
		return nil, err
	}

	log.Printf("✅ Group created: %s (%s, %d seats, tier %s)", group.ID, group.Name, group.MemberLimit, group.Tier)
	return group, nil
}

// JoinGroup adds a user to a group at the smallest unused rotation position.
// Joins are gated by the group's invitation code, handed out by the admin.
// The member and their security deposit both start pending; a pending
// security_deposit transaction is created for the payment flow to settle.
func (s *GroupService) JoinGroup(groupID string, userID uint, name, phone, inviteCode string) (*models.Member, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: member name is required", domain.ErrValidation)
	}

	var member *models.Member
	err := s.lockSvc.WithLock(domain.LockGroupWrite, domain.ScopeGroup, groupID, func() error {
		group, err := s.groupRepo.GetByID(groupID)
		if err != nil {
			return fmt.Errorf("%w: group %s", domain.ErrNotFound, groupID)
		}
		if inviteCode != group.InviteCode {
			return fmt.Errorf("%w: invalid invitation code", domain.ErrForbidden)
		}
		if group.Status != domain.GroupActive {
			return fmt.Errorf("%w: group is %s, not accepting members", domain.ErrState, group.Status)
		}
		if group.RoundOpenedAt != nil || group.RotationsCompleted > 0 {
			return fmt.Errorf("%w: rotation already started", domain.ErrState)
		}

		existing, err := s.memberRepo.GetByGroupAndUser(groupID, userID)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: user already has a membership in this group", domain.ErrState)
		}

		members, err := s.memberRepo.GetByGroup(groupID)
		if err != nil {
			return err
		}
		if len(members) >= group.MemberLimit {
			return fmt.Errorf("%w: group is full (%d/%d)", domain.ErrCapacity, len(members), group.MemberLimit)
		}

		// Re-check the tier cap at join time. MemberLimit is validated
		// against the cap at creation, but the stored row wins if the two
		// ever disagree.
		limits, err := s.tierPolicy.LimitsFor(group.Tier)
		if err != nil {
			return err
		}
		if len(members) >= limits.MaxMembersPerGroup {
			return fmt.Errorf("%w: tier %s allows at most %d members per group",
				domain.ErrCapacity, group.Tier, limits.MaxMembersPerGroup)
		}

		position := smallestFreePosition(members, group.MemberLimit)
		if position == 0 {
			return fmt.Errorf("%w: no rotation position available", domain.ErrCapacity)
		}

		member = &models.Member{
			ID:               uuid.NewString(),
			GroupID:          group.ID,
			UserID:           userID,
			Name:             name,
			Phone:            phone,
			RotationPosition: position,
			DepositAmount:    s.depositSvc.RequiredDeposit(group),
			DepositStatus:    domain.DepositPending,
			Status:           domain.MemberPending,
		}
		if err := s.memberRepo.Create(member); err != nil {
			return err
		}

		depositTx := &models.Transaction{
			ID:           uuid.NewString(),
			GroupID:      group.ID,
			FromMemberID: &member.ID,
			Amount:       member.DepositAmount,
			Type:         domain.TxSecurityDeposit,
		}
		depositTx.SetMetadata(map[string]interface{}{
			"reference": "deposit:" + member.ID,
		})
		if err := s.txRepo.Create(depositTx); err != nil {
			return err
		}

		log.Printf("✅ Member %s joined group %s at position %d (deposit %.2f pending)",
			member.ID, group.ID, position, member.DepositAmount)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return member, nil
}

// RemoveMember removes a not-yet-locked-in member and frees their rotation
// position for the next joiner.
func (s *GroupService) RemoveMember(groupID, memberID string) error {
	return s.lockSvc.WithLock(domain.LockGroupWrite, domain.ScopeGroup, groupID, func() error {
		member, err := s.memberRepo.GetByID(memberID)
		if err != nil {
			return fmt.Errorf("%w: member %s", domain.ErrNotFound, memberID)
		}
		if member.GroupID != groupID {
			return fmt.Errorf("%w: member %s does not belong to group %s", domain.ErrState, memberID, groupID)
		}
		if member.IsLockedIn {
			return fmt.Errorf("%w: member has received a payout and cannot be removed", domain.ErrState)
		}
		if member.Status == domain.MemberRemoved {
			return nil // already removed
		}

		if err := s.memberRepo.Updates(member.ID, map[string]interface{}{
			"status": domain.MemberRemoved,
		}); err != nil {
			return err
		}

		log.Printf("✅ Member %s removed from group %s, position %d freed",
			member.ID, groupID, member.RotationPosition)
		return nil
	})
}

// InviteCode returns the group's invitation code. Admin only; the code is
// what gates joins, so it never rides along on the public group view.
func (s *GroupService) InviteCode(groupID string, adminUserID uint) (string, error) {
	group, err := s.groupRepo.GetByID(groupID)
	if err != nil {
		return "", fmt.Errorf("%w: group %s", domain.ErrNotFound, groupID)
	}
	if group.AdminID != adminUserID {
		return "", fmt.Errorf("%w: only the group admin can read the invitation code", domain.ErrForbidden)
	}
	return group.InviteCode, nil
}

// GetGroup returns a group with its members preloaded
func (s *GroupService) GetGroup(groupID string) (*models.Group, error) {
	group, err := s.groupRepo.GetByIDWithMembers(groupID)
	if err != nil {
		return nil, fmt.Errorf("%w: group %s", domain.ErrNotFound, groupID)
	}
	return group, nil
}

// ListMembers returns the group's members ordered by rotation position
func (s *GroupService) ListMembers(groupID string) ([]models.Member, error) {
	if _, err := s.groupRepo.GetByID(groupID); err != nil {
		return nil, fmt.Errorf("%w: group %s", domain.ErrNotFound, groupID)
	}
	return s.memberRepo.GetByGroup(groupID)
}

// PendingConfirmations returns every transaction awaiting an action from any
// of the user's memberships, across all their groups.
func (s *GroupService) PendingConfirmations(userID uint) ([]models.Transaction, error) {
	memberships, err := s.memberRepo.GetByUser(userID)
	if err != nil {
		return nil, err
	}

	var pending []models.Transaction
	for _, m := range memberships {
		txs, err := s.txRepo.GetPendingForMember(m.ID)
		if err != nil {
			return nil, err
		}
		pending = append(pending, txs...)
	}
	return pending, nil
}

// CurrentRound returns the live status of the group's open contribution round
func (s *GroupService) CurrentRound(groupID string) (*RoundStatus, error) {
	group, err := s.groupRepo.GetByID(groupID)
	if err != nil {
		return nil, fmt.Errorf("%w: group %s", domain.ErrNotFound, groupID)
	}

	round := group.RotationsCompleted + 1
	txs, err := s.txRepo.GetRoundContributions(groupID, round)
	if err != nil {
		return nil, err
	}

	status := &RoundStatus{
		Round:        round,
		OpenedAt:     group.RoundOpenedAt,
		Expected:     len(txs),
		Transactions: txs,
	}
	if recipient, err := s.memberRepo.GetByGroupAndPosition(groupID, group.RotationPosition); err == nil && recipient != nil {
		status.RecipientMemberID = recipient.ID
		status.RecipientName = recipient.Name
	}
	for _, tx := range txs {
		if tx.ConfirmationStatus == domain.BothConfirmed {
			status.Settled++
		}
	}
	return status, nil
}

// smallestFreePosition returns the lowest position in 1..limit not taken by
// a non-removed member, or 0 when none is free.
func smallestFreePosition(members []models.Member, limit int) int {
	taken := make(map[int]bool, len(members))
	for _, m := range members {
		taken[m.RotationPosition] = true
	}
	for p := 1; p <= limit; p++ {
		if !taken[p] {
			return p
		}
	}
	return 0
}

// ListTransactions returns the group's transaction history, newest first
func (s *GroupService) ListTransactions(groupID string, offset, limit int) ([]models.Transaction, int64, error) {
	if _, err := s.groupRepo.GetByID(groupID); err != nil {
		return nil, 0, fmt.Errorf("%w: group %s", domain.ErrNotFound, groupID)
	}
	return s.txRepo.ListByGroup(groupID, offset, limit)
}

package services

import (
	"fmt"
	"log"
	"math"
	"time"

	"circlepool/internal/adapters/persistence/models"
	"circlepool/internal/adapters/persistence/repositories"
	"circlepool/internal/core/domain"

	"github.com/google/uuid"
)

// DepositService owns the security deposit lifecycle: sizing, confirmation,
// lock-in, default coverage and return. Deposits are sized to cover one full
// round of contributions from every other member - the worst case a single
// default can impose on a recipient.
type DepositService struct {
	memberRepo *repositories.MemberRepository
	txRepo     *repositories.TransactionRepository
	lockSvc    *LockService
	eventSvc   *EventService
}

// NewDepositService creates a new deposit service
func NewDepositService(
	memberRepo *repositories.MemberRepository,
	txRepo *repositories.TransactionRepository,
	lockSvc *LockService,
	eventSvc *EventService,
) *DepositService {
	return &DepositService{
		memberRepo: memberRepo,
		txRepo:     txRepo,
		lockSvc:    lockSvc,
		eventSvc:   eventSvc,
	}
}

// RequiredDeposit computes the deposit required to join a group:
// contribution x multiplier x (member_limit - 1), rounded up to cents.
func (s *DepositService) RequiredDeposit(group *models.Group) float64 {
	base := group.ContributionAmount * group.DepositMultiplier * float64(group.MemberLimit-1)
	// The epsilon keeps float artifacts from pushing an exact cent value up
	return math.Ceil(base*100-1e-9) / 100
}

// MaxLossScenario computes the worst-case exposure a member at the given
// rotation position can impose on the rest of the group: all contributions
// they would still owe after receiving their payout. The last position can
// cause no loss.
func (s *DepositService) MaxLossScenario(group *models.Group, position int) float64 {
	if position >= group.MemberLimit {
		return 0
	}
	return group.ContributionAmount * float64(group.MemberLimit-position)
}

// ConfirmDeposit transitions a member's deposit pending -> confirmed.
// Re-confirming a confirmed deposit is a no-op, not an error.
func (s *DepositService) ConfirmDeposit(memberID string) (*models.Member, error) {
	member, err := s.memberRepo.GetByID(memberID)
	if err != nil {
		return nil, fmt.Errorf("%w: member %s", domain.ErrNotFound, memberID)
	}

	switch member.DepositStatus {
	case domain.DepositConfirmed, domain.DepositLocked:
		return member, nil
	case domain.DepositPending:
		// fall through
	default:
		return nil, fmt.Errorf("%w: cannot confirm deposit in status %s", domain.ErrState, member.DepositStatus)
	}

	if err := s.memberRepo.Updates(member.ID, map[string]interface{}{
		"deposit_status": domain.DepositConfirmed,
	}); err != nil {
		return nil, err
	}

	member.DepositStatus = domain.DepositConfirmed
	log.Printf("✅ Deposit confirmed for member %s (%.2f)", member.ID, member.DepositAmount)
	return member, nil
}

// LockDeposit transitions a confirmed deposit to locked and activates the
// membership - from here the funds are committed to the group.
func (s *DepositService) LockDeposit(memberID string) (*models.Member, error) {
	member, err := s.memberRepo.GetByID(memberID)
	if err != nil {
		return nil, fmt.Errorf("%w: member %s", domain.ErrNotFound, memberID)
	}

	switch member.DepositStatus {
	case domain.DepositLocked:
		return member, nil
	case domain.DepositConfirmed:
		// fall through
	default:
		return nil, fmt.Errorf("%w: cannot lock deposit in status %s", domain.ErrState, member.DepositStatus)
	}

	if err := s.memberRepo.Updates(member.ID, map[string]interface{}{
		"deposit_status": domain.DepositLocked,
		"status":         domain.MemberActive,
	}); err != nil {
		return nil, err
	}

	member.DepositStatus = domain.DepositLocked
	member.Status = domain.MemberActive
	log.Printf("🔒 Deposit locked, member %s active (group %s)", member.ID, member.GroupID)
	return member, nil
}

// CoverDefault draws the owed amount from the defaulting member's locked
// deposit and records a both-confirmed default_coverage transaction to the
// recipient. Partial coverage is not permitted: a shortfall surfaces as
// ErrInsufficientFunds and must be handled by the caller out-of-band.
func (s *DepositService) CoverDefault(group *models.Group, defaulterID, recipientID string, amount float64) (*models.Transaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: coverage amount must be positive", domain.ErrValidation)
	}

	var tx *models.Transaction
	err := s.lockSvc.WithLock(domain.LockSecurityDeposit, domain.ScopeMember, defaulterID, func() error {
		defaulter, err := s.memberRepo.GetByID(defaulterID)
		if err != nil {
			return fmt.Errorf("%w: member %s", domain.ErrNotFound, defaulterID)
		}

		if defaulter.DepositStatus != domain.DepositLocked {
			return fmt.Errorf("%w: deposit is %s, not locked", domain.ErrState, defaulter.DepositStatus)
		}
		if defaulter.DepositAmount < amount {
			return fmt.Errorf("%w: locked deposit %.2f < owed %.2f",
				domain.ErrInsufficientFunds, defaulter.DepositAmount, amount)
		}

		remaining := defaulter.DepositAmount - amount
		status := domain.DepositLocked
		if remaining == 0 {
			status = domain.DepositUsed
		}

		if err := s.memberRepo.Updates(defaulter.ID, map[string]interface{}{
			"deposit_amount": remaining,
			"deposit_status": status,
		}); err != nil {
			return err
		}

		now := time.Now()
		tx = &models.Transaction{
			ID:                   uuid.NewString(),
			GroupID:              group.ID,
			FromMemberID:         &defaulter.ID,
			ToMemberID:           &recipientID,
			Amount:               amount,
			Type:                 domain.TxDefaultCoverage,
			ConfirmationStatus:   domain.BothConfirmed,
			SenderConfirmedAt:    &now,
			RecipientConfirmedAt: &now,
			Round:                group.RotationsCompleted + 1,
		}
		tx.SetMetadata(map[string]interface{}{
			"reason":         "missed_contribution",
			"auto_processed": true,
		})
		if err := s.txRepo.Create(tx); err != nil {
			return err
		}

		log.Printf("🛡️ Default covered: %.2f drawn from member %s deposit (%.2f remaining)",
			amount, defaulter.ID, remaining)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.eventSvc.Publish(domain.EventDefaultCoverageApplied, group.ID, map[string]interface{}{
		"member_id": defaulterID,
		"amount":    amount,
	})
	return tx, nil
}

// ReturnDeposit transitions a locked deposit to returned. Permitted only
// after the group completes, so every member's payout obligations are
// settled.
func (s *DepositService) ReturnDeposit(group *models.Group, memberID string) (*models.Transaction, error) {
	if group.Status != domain.GroupCompleted {
		return nil, fmt.Errorf("%w: deposits are returned after the group completes (status %s)",
			domain.ErrState, group.Status)
	}

	var tx *models.Transaction
	err := s.lockSvc.WithLock(domain.LockGroupWrite, domain.ScopeGroup, group.ID, func() error {
		member, err := s.memberRepo.GetByID(memberID)
		if err != nil {
			return fmt.Errorf("%w: member %s", domain.ErrNotFound, memberID)
		}
		if member.GroupID != group.ID {
			return fmt.Errorf("%w: member %s does not belong to group %s", domain.ErrState, memberID, group.ID)
		}
		if member.DepositStatus == domain.DepositReturned {
			return nil // already returned
		}
		if member.DepositStatus != domain.DepositLocked {
			return fmt.Errorf("%w: cannot return deposit in status %s", domain.ErrState, member.DepositStatus)
		}

		if err := s.memberRepo.Updates(member.ID, map[string]interface{}{
			"deposit_status": domain.DepositReturned,
		}); err != nil {
			return err
		}

		now := time.Now()
		tx = &models.Transaction{
			ID:                   uuid.NewString(),
			GroupID:              group.ID,
			ToMemberID:           &member.ID,
			Amount:               member.DepositAmount,
			Type:                 domain.TxDepositReturn,
			ConfirmationStatus:   domain.BothConfirmed,
			SenderConfirmedAt:    &now,
			RecipientConfirmedAt: &now,
		}
		if err := s.txRepo.Create(tx); err != nil {
			return err
		}

		log.Printf("💸 Deposit returned to member %s (%.2f)", member.ID, member.DepositAmount)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tx, nil
}

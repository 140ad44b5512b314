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

// PaymentService settles external payment-provider callbacks against the
// ledger. References are opaque strings minted by this system:
//
//	deposit:<member_uuid>        security deposit payment
//	tier:<group_uuid>:<tier>     tier upgrade purchase
//
// Settlement is idempotent per reference; replayed callbacks are no-ops.
type PaymentService struct {
	groupRepo  *repositories.GroupRepository
	memberRepo *repositories.MemberRepository
	txRepo     *repositories.TransactionRepository
	lockSvc    *LockService
	depositSvc *DepositService
	tierPolicy *TierPolicy
}

// NewPaymentService creates a new payment service
func NewPaymentService(
	groupRepo *repositories.GroupRepository,
	memberRepo *repositories.MemberRepository,
	txRepo *repositories.TransactionRepository,
	lockSvc *LockService,
	depositSvc *DepositService,
	tierPolicy *TierPolicy,
) *PaymentService {
	return &PaymentService{
		groupRepo:  groupRepo,
		memberRepo: memberRepo,
		txRepo:     txRepo,
		lockSvc:    lockSvc,
		depositSvc: depositSvc,
		tierPolicy: tierPolicy,
	}
}

// OnPaymentSettled applies a settled payment to the resource its reference
// names.
func (s *PaymentService) OnPaymentSettled(reference string, amount float64, payerUserID uint) error {
	parts := strings.Split(reference, ":")
	switch {
	case len(parts) == 2 && parts[0] == "deposit":
		return s.settleDeposit(parts[1], amount)
	case len(parts) == 3 && parts[0] == "tier":
		return s.settleTierUpgrade(parts[1], domain.TierLevel(parts[2]), amount, payerUserID)
	}
	return fmt.Errorf("%w: unrecognized payment reference '%s'", domain.ErrValidation, reference)
}

func (s *PaymentService) settleDeposit(memberID string, amount float64) error {
	member, err := s.memberRepo.GetByID(memberID)
	if err != nil {
		return fmt.Errorf("%w: member %s", domain.ErrNotFound, memberID)
	}
	if member.DepositStatus == domain.DepositLocked {
		return nil // replayed callback
	}
	if amount+1e-9 < member.DepositAmount {
		return fmt.Errorf("%w: payment %.2f does not cover required deposit %.2f",
			domain.ErrValidation, amount, member.DepositAmount)
	}

	if _, err := s.depositSvc.ConfirmDeposit(memberID); err != nil {
		return err
	}
	if _, err := s.depositSvc.LockDeposit(memberID); err != nil {
		return err
	}

	// Settle the pending security_deposit transaction opened at join time.
	depositTx, err := s.txRepo.GetDepositTransaction(memberID)
	if err != nil {
		return err
	}
	if depositTx != nil && !depositTx.ConfirmationStatus.IsTerminal() {
		now := time.Now()
		if err := s.txRepo.Updates(depositTx.ID, map[string]interface{}{
			"confirmation_status":    domain.BothConfirmed,
			"sender_confirmed_at":    now,
			"recipient_confirmed_at": now,
		}); err != nil {
			return err
		}
	}

	log.Printf("💰 Deposit payment settled for member %s (%.2f)", memberID, amount)
	return nil
}

func (s *PaymentService) settleTierUpgrade(groupID string, target domain.TierLevel, amount float64, payerUserID uint) error {
	if target.Rank() < 0 {
		return fmt.Errorf("%w: unknown tier '%s'", domain.ErrValidation, target)
	}

	return s.lockSvc.WithLock(domain.LockTierUpgrade, domain.ScopeGroup, groupID, func() error {
		group, err := s.groupRepo.GetByID(groupID)
		if err != nil {
			return fmt.Errorf("%w: group %s", domain.ErrNotFound, groupID)
		}
		if group.AdminID != payerUserID {
			return fmt.Errorf("%w: only the group admin can upgrade the tier", domain.ErrForbidden)
		}
		if group.Tier == target {
			return nil // replayed callback
		}
		if target.Rank() < group.Tier.Rank() {
			return fmt.Errorf("%w: cannot downgrade tier %s to %s", domain.ErrState, group.Tier, target)
		}
		if _, err := s.tierPolicy.LimitsFor(target); err != nil {
			return err
		}

		now := time.Now()
		tx := &models.Transaction{
			ID:                   uuid.NewString(),
			GroupID:              group.ID,
			Amount:               amount,
			Type:                 domain.TxTierUpgrade,
			ConfirmationStatus:   domain.BothConfirmed,
			SenderConfirmedAt:    &now,
			RecipientConfirmedAt: &now,
		}
		tx.SetMetadata(map[string]interface{}{
			"from_tier": string(group.Tier),
			"to_tier":   string(target),
		})
		if err := s.txRepo.Create(tx); err != nil {
			return err
		}

		if err := s.groupRepo.Updates(group.ID, map[string]interface{}{
			"tier": target,
		}); err != nil {
			return err
		}

		log.Printf("⬆️ Group %s tier upgraded %s -> %s", group.ID, group.Tier, target)
		return nil
	})
}

package services

import (
	"fmt"
	"log"
	"time"

	"circlepool/internal/adapters/persistence/models"
	"circlepool/internal/adapters/persistence/repositories"
	"circlepool/internal/core/domain"

	"github.com/google/uuid"
)

// ContributionService opens contribution rounds and drives each transaction
// through the dual-confirmation state machine: pending, one-sided, then
// both_confirmed. Terminal states are immutable.
type ContributionService struct {
	groupRepo  *repositories.GroupRepository
	memberRepo *repositories.MemberRepository
	txRepo     *repositories.TransactionRepository
	lockSvc    *LockService
	eventSvc   *EventService
}

// NewContributionService creates a new contribution service
func NewContributionService(
	groupRepo *repositories.GroupRepository,
	memberRepo *repositories.MemberRepository,
	txRepo *repositories.TransactionRepository,
	lockSvc *LockService,
	eventSvc *EventService,
) *ContributionService {
	return &ContributionService{
		groupRepo:  groupRepo,
		memberRepo: memberRepo,
		txRepo:     txRepo,
		lockSvc:    lockSvc,
		eventSvc:   eventSvc,
	}
}

// OpenRound creates one pending contribution from every other active member
// to the recipient at the group's current rotation position and stamps the
// round open time. The caller must already hold the group's rotation lock.
func (s *ContributionService) OpenRound(group *models.Group) ([]models.Transaction, error) {
	members, err := s.memberRepo.GetActiveByGroup(group.ID)
	if err != nil {
		return nil, err
	}
	if len(members) < 2 {
		return nil, fmt.Errorf("%w: at least 2 active members required to open a round", domain.ErrState)
	}

	var recipient *models.Member
	for i := range members {
		if members[i].RotationPosition == group.RotationPosition {
			recipient = &members[i]
			break
		}
	}
	if recipient == nil {
		return nil, fmt.Errorf("%w: no active member at position %d", domain.ErrState, group.RotationPosition)
	}

	round := group.RotationsCompleted + 1
	txs := make([]models.Transaction, 0, len(members)-1)
	for i := range members {
		if members[i].ID == recipient.ID {
			continue
		}
		txs = append(txs, models.Transaction{
			ID:           uuid.NewString(),
			GroupID:      group.ID,
			FromMemberID: &members[i].ID,
			ToMemberID:   &recipient.ID,
			Amount:       group.ContributionAmount,
			Type:         domain.TxContribution,
			Round:        round,
		})
	}
	if err := s.txRepo.CreateBatch(txs); err != nil {
		return nil, err
	}

	now := time.Now()
	if err := s.groupRepo.Updates(group.ID, map[string]interface{}{
		"round_opened_at": now,
	}); err != nil {
		return nil, err
	}
	group.RoundOpenedAt = &now

	s.eventSvc.Publish(domain.EventRotationOpened, group.ID, map[string]interface{}{
		"round":        round,
		"recipient_id": recipient.ID,
		"expected":     len(txs),
	})
	log.Printf("🔄 Round %d opened for group %s: %d contributions to member %s",
		round, group.ID, len(txs), recipient.ID)
	return txs, nil
}

// ConfirmSender records the sender's confirmation. Re-confirming after the
// sender side is already recorded returns the transaction unchanged.
func (s *ContributionService) ConfirmSender(txID, actorMemberID string) (*models.Transaction, error) {
	return s.confirm(txID, actorMemberID, true)
}

// ConfirmRecipient records the recipient's confirmation, mirroring
// ConfirmSender for the other side.
func (s *ContributionService) ConfirmRecipient(txID, actorMemberID string) (*models.Transaction, error) {
	return s.confirm(txID, actorMemberID, false)
}

// ConfirmSenderAsUser resolves the caller's membership in the transaction's
// group and records the sender-side confirmation through it. Callers never
// name the acting member themselves.
func (s *ContributionService) ConfirmSenderAsUser(txID string, userID uint) (*models.Transaction, error) {
	member, err := s.resolveActor(txID, userID)
	if err != nil {
		return nil, err
	}
	return s.confirm(txID, member.ID, true)
}

// ConfirmRecipientAsUser mirrors ConfirmSenderAsUser for the recipient side
func (s *ContributionService) ConfirmRecipientAsUser(txID string, userID uint) (*models.Transaction, error) {
	member, err := s.resolveActor(txID, userID)
	if err != nil {
		return nil, err
	}
	return s.confirm(txID, member.ID, false)
}

func (s *ContributionService) resolveActor(txID string, userID uint) (*models.Member, error) {
	tx, err := s.txRepo.GetByID(txID)
	if err != nil {
		return nil, fmt.Errorf("%w: transaction %s", domain.ErrNotFound, txID)
	}
	member, err := s.memberRepo.GetByGroupAndUser(tx.GroupID, userID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, fmt.Errorf("%w: user %d has no membership in group %s", domain.ErrForbidden, userID, tx.GroupID)
	}
	return member, nil
}

func (s *ContributionService) confirm(txID, actorMemberID string, asSender bool) (*models.Transaction, error) {
	var result *models.Transaction
	err := s.lockSvc.WithLock(domain.LockTransactionWrite, domain.ScopeTransaction, txID, func() error {
		tx, err := s.txRepo.GetByID(txID)
		if err != nil {
			return fmt.Errorf("%w: transaction %s", domain.ErrNotFound, txID)
		}
		if tx.Type != domain.TxContribution {
			return fmt.Errorf("%w: %s transactions are not dual-confirmed", domain.ErrState, tx.Type)
		}
		if tx.ConfirmationStatus == domain.ConfirmCancelled {
			return fmt.Errorf("%w: transaction is cancelled", domain.ErrState)
		}

		var party *string
		var already bool
		if asSender {
			party = tx.FromMemberID
			already = tx.SenderConfirmedAt != nil
		} else {
			party = tx.ToMemberID
			already = tx.RecipientConfirmedAt != nil
		}
		if party == nil || *party != actorMemberID {
			return fmt.Errorf("%w: member %s is not a party to this confirmation", domain.ErrState, actorMemberID)
		}
		if already {
			result = tx // idempotent, timestamp untouched
			return nil
		}

		now := time.Now()
		updates := map[string]interface{}{}
		if asSender {
			tx.SenderConfirmedAt = &now
			updates["sender_confirmed_at"] = now
		} else {
			tx.RecipientConfirmedAt = &now
			updates["recipient_confirmed_at"] = now
		}

		if tx.SenderConfirmedAt != nil && tx.RecipientConfirmedAt != nil {
			tx.ConfirmationStatus = domain.BothConfirmed
		} else if asSender {
			tx.ConfirmationStatus = domain.SenderConfirmed
		} else {
			tx.ConfirmationStatus = domain.RecipientConfirmed
		}
		updates["confirmation_status"] = tx.ConfirmationStatus

		if err := s.txRepo.Updates(tx.ID, updates); err != nil {
			return err
		}

		if tx.ConfirmationStatus == domain.BothConfirmed {
			s.eventSvc.Publish(domain.EventContributionConfirmed, tx.GroupID, map[string]interface{}{
				"transaction_id": tx.ID,
				"round":          tx.Round,
				"amount":         tx.Amount,
			})
			log.Printf("✅ Contribution %s fully confirmed (round %d)", tx.ID, tx.Round)
		}
		result = tx
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CancelTransaction voids a not-yet-settled transaction. Only the admin of
// the owning group may cancel; both_confirmed is terminal and stays put.
func (s *ContributionService) CancelTransaction(txID string, adminUserID uint) (*models.Transaction, error) {
	var result *models.Transaction
	err := s.lockSvc.WithLock(domain.LockTransactionWrite, domain.ScopeTransaction, txID, func() error {
		tx, err := s.txRepo.GetByID(txID)
		if err != nil {
			return fmt.Errorf("%w: transaction %s", domain.ErrNotFound, txID)
		}

		group, err := s.groupRepo.GetByID(tx.GroupID)
		if err != nil {
			return fmt.Errorf("%w: group %s", domain.ErrNotFound, tx.GroupID)
		}
		if group.AdminID != adminUserID {
			return fmt.Errorf("%w: only the group admin can cancel transactions", domain.ErrForbidden)
		}

		switch tx.ConfirmationStatus {
		case domain.ConfirmCancelled:
			result = tx // already cancelled
			return nil
		case domain.BothConfirmed:
			return fmt.Errorf("%w: settled transactions cannot be cancelled", domain.ErrState)
		}

		if err := s.txRepo.Updates(tx.ID, map[string]interface{}{
			"confirmation_status": domain.ConfirmCancelled,
		}); err != nil {
			return err
		}
		tx.ConfirmationStatus = domain.ConfirmCancelled
		log.Printf("❌ Transaction %s cancelled by admin %d", tx.ID, adminUserID)
		result = tx
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

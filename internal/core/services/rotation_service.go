package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"circlepool/internal/adapters/persistence/models"
	"circlepool/internal/adapters/persistence/repositories"
	"circlepool/internal/core/domain"
)

// AdvanceResult reports what a rotation advance attempt did
type AdvanceResult struct {
	Outcome           domain.AdvanceOutcome `json:"outcome"`
	Round             int                   `json:"round"`
	RecipientMemberID string                `json:"recipient_member_id,omitempty"`
	CoveredMemberIDs  []string              `json:"covered_member_ids,omitempty"`
	GroupCompleted    bool                  `json:"group_completed"`
}

// RotationService moves a group through its payout rotation. Every attempt
// runs under a rotation-scoped lock; concurrent ticks against the same group
// serialize or fail with ErrConcurrency, never double-advance.
type RotationService struct {
	groupRepo       *repositories.GroupRepository
	memberRepo      *repositories.MemberRepository
	txRepo          *repositories.TransactionRepository
	lockSvc         *LockService
	depositSvc      *DepositService
	contributionSvc *ContributionService
	eventSvc        *EventService
}

// NewRotationService creates a new rotation service
func NewRotationService(
	groupRepo *repositories.GroupRepository,
	memberRepo *repositories.MemberRepository,
	txRepo *repositories.TransactionRepository,
	lockSvc *LockService,
	depositSvc *DepositService,
	contributionSvc *ContributionService,
	eventSvc *EventService,
) *RotationService {
	return &RotationService{
		groupRepo:       groupRepo,
		memberRepo:      memberRepo,
		txRepo:          txRepo,
		lockSvc:         lockSvc,
		depositSvc:      depositSvc,
		contributionSvc: contributionSvc,
		eventSvc:        eventSvc,
	}
}

// TryAdvance attempts to close the group's current round and move the
// rotation pointer. The caller supplies the round deadline; unsettled
// contributions past it are covered from the senders' deposits, unsettled
// contributions within it leave the group where it is (outcome not_ready).
func (s *RotationService) TryAdvance(groupID string, deadline time.Time) (*AdvanceResult, error) {
	var result *AdvanceResult
	err := s.lockSvc.WithLock(domain.LockRotationAdvance, domain.ScopeGroup, groupID, func() error {
		group, err := s.groupRepo.GetByID(groupID)
		if err != nil {
			return fmt.Errorf("%w: group %s", domain.ErrNotFound, groupID)
		}
		if group.Status != domain.GroupActive {
			return fmt.Errorf("%w: group is %s, rotation is closed", domain.ErrState, group.Status)
		}

		round := group.RotationsCompleted + 1

		// The first round waits until every seat is filled with an active
		// member; opening early would strand the remaining seats, since
		// joins close once the rotation starts.
		if group.RoundOpenedAt == nil {
			active, err := s.memberRepo.GetActiveByGroup(groupID)
			if err != nil {
				return err
			}
			if len(active) < group.MemberLimit {
				result = &AdvanceResult{Outcome: domain.OutcomeNotReady, Round: round}
				return nil
			}
			if _, err := s.contributionSvc.OpenRound(group); err != nil {
				if errors.Is(err, domain.ErrState) {
					result = &AdvanceResult{Outcome: domain.OutcomeNotReady, Round: round}
					return nil
				}
				return err
			}
			result = &AdvanceResult{Outcome: domain.OutcomeNotReady, Round: round}
			return nil
		}

		txs, err := s.txRepo.GetRoundContributions(groupID, round)
		if err != nil {
			return err
		}

		var unsettled []models.Transaction
		for _, tx := range txs {
			if !tx.ConfirmationStatus.IsTerminal() {
				unsettled = append(unsettled, tx)
			}
		}

		outcome := domain.OutcomeAdvanced
		var covered []string
		if len(unsettled) > 0 {
			if time.Now().Before(deadline) {
				result = &AdvanceResult{Outcome: domain.OutcomeNotReady, Round: round}
				return nil
			}

			// Deadline passed: draw the owed amounts from the defaulters'
			// locked deposits and settle the transactions on their behalf.
			for _, tx := range unsettled {
				if tx.FromMemberID == nil || tx.ToMemberID == nil {
					continue
				}
				_, err := s.depositSvc.CoverDefault(group, *tx.FromMemberID, *tx.ToMemberID, tx.Amount)
				if err != nil {
					if errors.Is(err, domain.ErrInsufficientFunds) || errors.Is(err, domain.ErrCapacity) || errors.Is(err, domain.ErrState) {
						log.Printf("⚠️ Default coverage unavailable for member %s: %v", *tx.FromMemberID, err)
						result = &AdvanceResult{Outcome: domain.OutcomeNotReady, Round: round}
						return nil
					}
					return err
				}

				now := time.Now()
				meta := tx.MetadataMap()
				meta["default_covered"] = true
				tx.SetMetadata(meta)
				if err := s.txRepo.Updates(tx.ID, map[string]interface{}{
					"confirmation_status":    domain.BothConfirmed,
					"sender_confirmed_at":    now,
					"recipient_confirmed_at": now,
					"metadata":               tx.Metadata,
				}); err != nil {
					return err
				}
				covered = append(covered, *tx.FromMemberID)
			}
			outcome = domain.OutcomeDefaulted
		}

		members, err := s.memberRepo.GetActiveByGroup(groupID)
		if err != nil {
			return err
		}
		var recipient *models.Member
		for i := range members {
			if members[i].RotationPosition == group.RotationPosition {
				recipient = &members[i]
				break
			}
		}
		if recipient == nil {
			return fmt.Errorf("%w: no active member at position %d", domain.ErrState, group.RotationPosition)
		}

		// One-way flags: the recipient is now locked in for the life of
		// the group.
		if err := s.memberRepo.Updates(recipient.ID, map[string]interface{}{
			"has_received_payout": true,
			"is_locked_in":        true,
		}); err != nil {
			return err
		}
		recipient.HasReceivedPayout = true
		recipient.IsLockedIn = true

		next := nextRecipient(members, recipient)
		updates := map[string]interface{}{
			"rotations_completed": round,
		}
		if next == nil {
			updates["status"] = domain.GroupCompleted
			updates["round_opened_at"] = nil
		} else {
			updates["rotation_position"] = next.RotationPosition
		}
		if err := s.groupRepo.Updates(groupID, updates); err != nil {
			return err
		}
		group.RotationsCompleted = round

		if next == nil {
			group.Status = domain.GroupCompleted
			s.eventSvc.Publish(domain.EventGroupCompleted, groupID, map[string]interface{}{
				"rotations_completed": round,
			})
			log.Printf("🏁 Group %s completed after %d rotations", groupID, round)
		} else {
			group.RotationPosition = next.RotationPosition
			s.eventSvc.Publish(domain.EventRotationAdvanced, groupID, map[string]interface{}{
				"round":         round,
				"recipient_id":  recipient.ID,
				"next_position": next.RotationPosition,
			})
			if _, err := s.contributionSvc.OpenRound(group); err != nil {
				return err
			}
			log.Printf("➡️ Group %s advanced: round %d paid to member %s, pointer at position %d",
				groupID, round, recipient.ID, next.RotationPosition)
		}

		result = &AdvanceResult{
			Outcome:           outcome,
			Round:             round,
			RecipientMemberID: recipient.ID,
			CoveredMemberIDs:  covered,
			GroupCompleted:    next == nil,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// nextRecipient picks the next active member in position order who has not
// yet received a payout, wrapping past the end of the list. Returns nil when
// everyone has been paid.
func nextRecipient(members []models.Member, current *models.Member) *models.Member {
	start := 0
	for i := range members {
		if members[i].ID == current.ID {
			start = i
			break
		}
	}
	for offset := 1; offset <= len(members); offset++ {
		m := &members[(start+offset)%len(members)]
		if !m.HasReceivedPayout && m.ID != current.ID {
			return m
		}
	}
	return nil
}

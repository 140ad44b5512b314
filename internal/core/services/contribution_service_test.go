package services

import (
	"errors"
	"testing"

	"circlepool/internal/core/domain"
)

func TestOpenRoundCreatesContributions(t *testing.T) {
	env := newTestEnv(t)
	group, members := env.fullGroup(t, 100, 4)

	txs := env.openFirstRound(t, group.ID)
	if len(txs) != 3 {
		t.Fatalf("expected 3 contributions, got %d", len(txs))
	}

	groupRow := env.reloadGroup(t, group.ID)
	if groupRow.RoundOpenedAt == nil {
		t.Fatal("expected round open timestamp")
	}

	var recipientID string
	for _, m := range members {
		if env.reloadMember(t, m.ID).RotationPosition == groupRow.RotationPosition {
			recipientID = m.ID
		}
	}

	for _, tx := range txs {
		if tx.Type != domain.TxContribution {
			t.Errorf("expected contribution, got %s", tx.Type)
		}
		if tx.ConfirmationStatus != domain.ConfirmPending {
			t.Errorf("expected pending, got %s", tx.ConfirmationStatus)
		}
		if tx.Amount != 100 {
			t.Errorf("expected amount 100, got %v", tx.Amount)
		}
		if *tx.ToMemberID != recipientID {
			t.Errorf("expected recipient %s, got %s", recipientID, *tx.ToMemberID)
		}
		if *tx.FromMemberID == recipientID {
			t.Error("recipient must not contribute to themselves")
		}
		if tx.Round != 1 {
			t.Errorf("expected round 1, got %d", tx.Round)
		}
	}
}

func TestConfirmAsUserResolvesMembership(t *testing.T) {
	env := newTestEnv(t)
	group, _ := env.fullGroup(t, 100, 3)
	txs := env.openFirstRound(t, group.ID)

	tx := txs[0]
	sender := env.reloadMember(t, *tx.FromMemberID)
	recipient := env.reloadMember(t, *tx.ToMemberID)

	// A user with no membership in the group cannot act at all
	outsider := env.createUser(t, "0899999999")
	if _, err := env.contributionSvc.ConfirmSenderAsUser(tx.ID, outsider.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for outsider, got %v", err)
	}

	// A member of the group who is not the sender resolves to their own
	// membership and is refused as the wrong party
	other := env.reloadMember(t, *txs[1].FromMemberID)
	if other.ID == sender.ID {
		other = env.reloadMember(t, *txs[1].ToMemberID)
	}
	if _, err := env.contributionSvc.ConfirmSenderAsUser(tx.ID, other.UserID); !errors.Is(err, domain.ErrState) {
		t.Fatalf("expected ErrState for non-party member, got %v", err)
	}

	// The actual parties confirm through their own identities
	confirmed, err := env.contributionSvc.ConfirmSenderAsUser(tx.ID, sender.UserID)
	if err != nil {
		t.Fatalf("sender confirm failed: %v", err)
	}
	if confirmed.ConfirmationStatus != domain.SenderConfirmed {
		t.Fatalf("expected sender_confirmed, got %s", confirmed.ConfirmationStatus)
	}
	confirmed, err = env.contributionSvc.ConfirmRecipientAsUser(tx.ID, recipient.UserID)
	if err != nil {
		t.Fatalf("recipient confirm failed: %v", err)
	}
	if confirmed.ConfirmationStatus != domain.BothConfirmed {
		t.Fatalf("expected both_confirmed, got %s", confirmed.ConfirmationStatus)
	}
}

func TestConfirmStateMachine(t *testing.T) {
	env := newTestEnv(t)
	group, _ := env.fullGroup(t, 100, 3)
	txs := env.openFirstRound(t, group.ID)

	tx := txs[0]
	sender := *tx.FromMemberID
	recipient := *tx.ToMemberID

	afterSender, err := env.contributionSvc.ConfirmSender(tx.ID, sender)
	if err != nil {
		t.Fatalf("sender confirm failed: %v", err)
	}
	if afterSender.ConfirmationStatus != domain.SenderConfirmed {
		t.Fatalf("expected sender_confirmed, got %s", afterSender.ConfirmationStatus)
	}
	if afterSender.SenderConfirmedAt == nil {
		t.Fatal("expected sender timestamp")
	}

	afterBoth, err := env.contributionSvc.ConfirmRecipient(tx.ID, recipient)
	if err != nil {
		t.Fatalf("recipient confirm failed: %v", err)
	}
	if afterBoth.ConfirmationStatus != domain.BothConfirmed {
		t.Fatalf("expected both_confirmed, got %s", afterBoth.ConfirmationStatus)
	}
}

func TestConfirmRecipientFirst(t *testing.T) {
	env := newTestEnv(t)
	group, _ := env.fullGroup(t, 100, 3)
	txs := env.openFirstRound(t, group.ID)

	tx := txs[0]
	after, err := env.contributionSvc.ConfirmRecipient(tx.ID, *tx.ToMemberID)
	if err != nil {
		t.Fatalf("recipient confirm failed: %v", err)
	}
	if after.ConfirmationStatus != domain.RecipientConfirmed {
		t.Fatalf("expected recipient_confirmed, got %s", after.ConfirmationStatus)
	}

	both, err := env.contributionSvc.ConfirmSender(tx.ID, *tx.FromMemberID)
	if err != nil {
		t.Fatalf("sender confirm failed: %v", err)
	}
	if both.ConfirmationStatus != domain.BothConfirmed {
		t.Fatalf("expected both_confirmed, got %s", both.ConfirmationStatus)
	}
}

func TestConfirmIdempotentKeepsTimestamp(t *testing.T) {
	env := newTestEnv(t)
	group, _ := env.fullGroup(t, 100, 3)
	txs := env.openFirstRound(t, group.ID)

	tx := txs[0]
	first, err := env.contributionSvc.ConfirmSender(tx.ID, *tx.FromMemberID)
	if err != nil {
		t.Fatalf("confirm failed: %v", err)
	}

	second, err := env.contributionSvc.ConfirmSender(tx.ID, *tx.FromMemberID)
	if err != nil {
		t.Fatalf("re-confirm failed: %v", err)
	}
	if second.ConfirmationStatus != domain.SenderConfirmed {
		t.Fatalf("expected sender_confirmed, got %s", second.ConfirmationStatus)
	}
	if !second.SenderConfirmedAt.Equal(*first.SenderConfirmedAt) {
		t.Fatal("re-confirm must not touch the original timestamp")
	}
}

func TestConfirmWrongActor(t *testing.T) {
	env := newTestEnv(t)
	group, _ := env.fullGroup(t, 100, 3)
	txs := env.openFirstRound(t, group.ID)

	tx := txs[0]
	// The recipient cannot confirm the sender side
	if _, err := env.contributionSvc.ConfirmSender(tx.ID, *tx.ToMemberID); !errors.Is(err, domain.ErrState) {
		t.Fatalf("expected ErrState, got %v", err)
	}
	// A stranger cannot confirm either side
	if _, err := env.contributionSvc.ConfirmRecipient(tx.ID, "nobody"); !errors.Is(err, domain.ErrState) {
		t.Fatalf("expected ErrState, got %v", err)
	}
}

func TestCancelTransaction(t *testing.T) {
	env := newTestEnv(t)
	group, _ := env.fullGroup(t, 100, 3)
	txs := env.openFirstRound(t, group.ID)
	groupRow := env.reloadGroup(t, group.ID)

	tx := txs[0]
	// Only the group admin may cancel
	if _, err := env.contributionSvc.CancelTransaction(tx.ID, groupRow.AdminID+999); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	cancelled, err := env.contributionSvc.CancelTransaction(tx.ID, groupRow.AdminID)
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if cancelled.ConfirmationStatus != domain.ConfirmCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.ConfirmationStatus)
	}

	// Cancelling again is a no-op
	if _, err := env.contributionSvc.CancelTransaction(tx.ID, groupRow.AdminID); err != nil {
		t.Fatalf("re-cancel failed: %v", err)
	}

	// A cancelled transaction refuses further confirmations
	if _, err := env.contributionSvc.ConfirmSender(tx.ID, *tx.FromMemberID); !errors.Is(err, domain.ErrState) {
		t.Fatalf("expected ErrState confirming cancelled, got %v", err)
	}
}

func TestCancelSettledRefused(t *testing.T) {
	env := newTestEnv(t)
	group, _ := env.fullGroup(t, 100, 3)
	txs := env.openFirstRound(t, group.ID)
	groupRow := env.reloadGroup(t, group.ID)

	tx := txs[0]
	if _, err := env.contributionSvc.ConfirmSender(tx.ID, *tx.FromMemberID); err != nil {
		t.Fatalf("sender confirm failed: %v", err)
	}
	if _, err := env.contributionSvc.ConfirmRecipient(tx.ID, *tx.ToMemberID); err != nil {
		t.Fatalf("recipient confirm failed: %v", err)
	}

	if _, err := env.contributionSvc.CancelTransaction(tx.ID, groupRow.AdminID); !errors.Is(err, domain.ErrState) {
		t.Fatalf("expected ErrState cancelling both_confirmed, got %v", err)
	}
}

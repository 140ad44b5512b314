package services

import (
	"errors"
	"testing"

	"circlepool/internal/core/domain"
)

func TestPaymentSettlesDeposit(t *testing.T) {
	env := newTestEnv(t)
	admin := env.createUser(t, "0811111111")
	group := env.createGroup(t, admin, 100, 3)
	user := env.createUser(t, "0821111111")
	member, err := env.groupSvc.JoinGroup(group.ID, user.ID, user.Name, user.Phone, group.InviteCode)
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}

	if err := env.paymentSvc.OnPaymentSettled("deposit:"+member.ID, member.DepositAmount, user.ID); err != nil {
		t.Fatalf("settle failed: %v", err)
	}

	fresh := env.reloadMember(t, member.ID)
	if fresh.DepositStatus != domain.DepositLocked {
		t.Fatalf("expected locked deposit, got %s", fresh.DepositStatus)
	}
	if fresh.Status != domain.MemberActive {
		t.Fatalf("expected active member, got %s", fresh.Status)
	}

	tx, err := env.txRepo.GetDepositTransaction(member.ID)
	if err != nil {
		t.Fatalf("deposit tx lookup failed: %v", err)
	}
	if tx.ConfirmationStatus != domain.BothConfirmed {
		t.Fatalf("expected settled deposit transaction, got %s", tx.ConfirmationStatus)
	}

	// Replayed callback is acknowledged without effect
	if err := env.paymentSvc.OnPaymentSettled("deposit:"+member.ID, member.DepositAmount, user.ID); err != nil {
		t.Fatalf("replay failed: %v", err)
	}
}

func TestPaymentDepositUnderpaid(t *testing.T) {
	env := newTestEnv(t)
	admin := env.createUser(t, "0811111111")
	group := env.createGroup(t, admin, 100, 3)
	user := env.createUser(t, "0821111111")
	member, err := env.groupSvc.JoinGroup(group.ID, user.ID, user.Name, user.Phone, group.InviteCode)
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}

	err = env.paymentSvc.OnPaymentSettled("deposit:"+member.ID, member.DepositAmount-10, user.ID)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation on underpayment, got %v", err)
	}
	if got := env.reloadMember(t, member.ID).DepositStatus; got != domain.DepositPending {
		t.Fatalf("expected deposit still pending, got %s", got)
	}
}

func TestPaymentUnknownReference(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "0811111111")

	for _, ref := range []string{"", "bogus", "deposit", "loan:abc", "tier:only-two"} {
		if err := env.paymentSvc.OnPaymentSettled(ref, 100, user.ID); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("reference %q: expected ErrValidation, got %v", ref, err)
		}
	}
}

func TestPaymentTierUpgrade(t *testing.T) {
	env := newTestEnv(t)
	admin := env.createUser(t, "0811111111")
	stranger := env.createUser(t, "0822222222")
	group, err := env.groupSvc.CreateGroup(admin.ID, CreateGroupInput{
		Name:               "upgrade me",
		ContributionAmount: 100,
		Frequency:          domain.FrequencyWeekly,
		MemberLimit:        5,
		Tier:               domain.TierStarter,
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	ref := "tier:" + group.ID + ":essential"

	// Only the admin can upgrade
	if err := env.paymentSvc.OnPaymentSettled(ref, 500, stranger.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	if err := env.paymentSvc.OnPaymentSettled(ref, 500, admin.ID); err != nil {
		t.Fatalf("upgrade failed: %v", err)
	}
	if got := env.reloadGroup(t, group.ID).Tier; got != domain.TierEssential {
		t.Fatalf("expected essential, got %s", got)
	}

	// Replay is a no-op
	if err := env.paymentSvc.OnPaymentSettled(ref, 500, admin.ID); err != nil {
		t.Fatalf("replay failed: %v", err)
	}

	// Downgrades are refused
	err = env.paymentSvc.OnPaymentSettled("tier:"+group.ID+":starter", 500, admin.ID)
	if !errors.Is(err, domain.ErrState) {
		t.Fatalf("expected ErrState on downgrade, got %v", err)
	}

	// Unknown target tier
	err = env.paymentSvc.OnPaymentSettled("tier:"+group.ID+":platinum", 500, admin.ID)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation on unknown tier, got %v", err)
	}

	// The upgrade left an audit transaction
	txs, total, err := env.txRepo.ListByGroup(group.ID, 0, 10)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if total != 1 || txs[0].Type != domain.TxTierUpgrade {
		t.Fatalf("expected one tier_upgrade transaction, got %d (%v)", total, txs)
	}
}

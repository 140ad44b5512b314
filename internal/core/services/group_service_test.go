package services

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"circlepool/internal/adapters/persistence/models"
	"circlepool/internal/core/domain"
)

func TestCreateGroupValidation(t *testing.T) {
	env := newTestEnv(t)
	admin := env.createUser(t, "0811111111")

	cases := []struct {
		name  string
		input CreateGroupInput
		want  error
	}{
		{"empty name", CreateGroupInput{ContributionAmount: 100, Frequency: domain.FrequencyWeekly, MemberLimit: 5}, domain.ErrValidation},
		{"zero contribution", CreateGroupInput{Name: "c", ContributionAmount: 0, Frequency: domain.FrequencyWeekly, MemberLimit: 5}, domain.ErrValidation},
		{"member limit too small", CreateGroupInput{Name: "c", ContributionAmount: 100, Frequency: domain.FrequencyWeekly, MemberLimit: 1}, domain.ErrValidation},
		{"member limit too large", CreateGroupInput{Name: "c", ContributionAmount: 100, Frequency: domain.FrequencyWeekly, MemberLimit: 101}, domain.ErrValidation},
		{"bad frequency", CreateGroupInput{Name: "c", ContributionAmount: 100, Frequency: "hourly", MemberLimit: 5}, domain.ErrValidation},
		{"multiplier too low", CreateGroupInput{Name: "c", ContributionAmount: 100, Frequency: domain.FrequencyWeekly, MemberLimit: 5, DepositMultiplier: 0.4}, domain.ErrValidation},
		{"multiplier too high", CreateGroupInput{Name: "c", ContributionAmount: 100, Frequency: domain.FrequencyWeekly, MemberLimit: 5, DepositMultiplier: 3.5}, domain.ErrValidation},
		{"daily on starter", CreateGroupInput{Name: "c", ContributionAmount: 100, Frequency: domain.FrequencyDaily, MemberLimit: 5, Tier: domain.TierStarter}, domain.ErrCapacity},
		{"limit over tier", CreateGroupInput{Name: "c", ContributionAmount: 100, Frequency: domain.FrequencyWeekly, MemberLimit: 20, Tier: domain.TierStarter}, domain.ErrCapacity},
	}

	for _, tc := range cases {
		if _, err := env.groupSvc.CreateGroup(admin.ID, tc.input); !errors.Is(err, tc.want) {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestCreateGroupDefaults(t *testing.T) {
	env := newTestEnv(t)
	admin := env.createUser(t, "0811111111")

	group, err := env.groupSvc.CreateGroup(admin.ID, CreateGroupInput{
		Name:               "defaults",
		ContributionAmount: 100,
		Frequency:          domain.FrequencyWeekly,
		MemberLimit:        5,
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if group.Tier != domain.TierStarter {
		t.Errorf("expected default tier starter, got %s", group.Tier)
	}
	if group.DepositMultiplier != 1.0 {
		t.Errorf("expected default multiplier 1.0, got %v", group.DepositMultiplier)
	}
	if group.RotationPosition != 1 {
		t.Errorf("expected rotation position 1, got %d", group.RotationPosition)
	}
	if group.Status != domain.GroupActive {
		t.Errorf("expected active status, got %s", group.Status)
	}
}

func TestCreateGroupTierGroupCap(t *testing.T) {
	env := newTestEnv(t)
	admin := env.createUser(t, "0811111111")

	input := CreateGroupInput{
		Name:               "one",
		ContributionAmount: 100,
		Frequency:          domain.FrequencyWeekly,
		MemberLimit:        5,
		Tier:               domain.TierStarter,
	}
	if _, err := env.groupSvc.CreateGroup(admin.ID, input); err != nil {
		t.Fatalf("first group failed: %v", err)
	}

	// Starter allows a single group per admin
	if _, err := env.groupSvc.CreateGroup(admin.ID, input); !errors.Is(err, domain.ErrCapacity) {
		t.Fatalf("expected ErrCapacity on second group, got %v", err)
	}
}

func TestJoinGroupPositionsArePermutation(t *testing.T) {
	env := newTestEnv(t)
	admin := env.createUser(t, "0811111111")
	group := env.createGroup(t, admin, 100, 4)

	seen := map[int]bool{}
	for i := 0; i < 4; i++ {
		user := env.createUser(t, "082000000"+string(rune('0'+i)))
		member, err := env.groupSvc.JoinGroup(group.ID, user.ID, user.Name, user.Phone, group.InviteCode)
		if err != nil {
			t.Fatalf("join %d failed: %v", i, err)
		}
		if member.RotationPosition < 1 || member.RotationPosition > 4 {
			t.Fatalf("position %d out of range", member.RotationPosition)
		}
		if seen[member.RotationPosition] {
			t.Fatalf("duplicate position %d", member.RotationPosition)
		}
		seen[member.RotationPosition] = true

		if member.Status != domain.MemberPending {
			t.Errorf("expected pending member, got %s", member.Status)
		}
		if member.DepositStatus != domain.DepositPending {
			t.Errorf("expected pending deposit, got %s", member.DepositStatus)
		}
		// deposit = 100 * 1.0 * (4-1)
		if member.DepositAmount != 300 {
			t.Errorf("expected deposit 300, got %v", member.DepositAmount)
		}
	}
}

func TestJoinGroupCapacityAndDuplicates(t *testing.T) {
	env := newTestEnv(t)
	admin := env.createUser(t, "0811111111")
	group := env.createGroup(t, admin, 100, 2)

	u1 := env.createUser(t, "0821111111")
	u2 := env.createUser(t, "0822222222")
	u3 := env.createUser(t, "0823333333")

	if _, err := env.groupSvc.JoinGroup(group.ID, u1.ID, u1.Name, u1.Phone, group.InviteCode); err != nil {
		t.Fatalf("join u1 failed: %v", err)
	}

	// Same user cannot hold two memberships in one group
	if _, err := env.groupSvc.JoinGroup(group.ID, u1.ID, u1.Name, u1.Phone, group.InviteCode); !errors.Is(err, domain.ErrState) {
		t.Fatalf("expected ErrState on duplicate join, got %v", err)
	}

	if _, err := env.groupSvc.JoinGroup(group.ID, u2.ID, u2.Name, u2.Phone, group.InviteCode); err != nil {
		t.Fatalf("join u2 failed: %v", err)
	}

	// Group is full now
	if _, err := env.groupSvc.JoinGroup(group.ID, u3.ID, u3.Name, u3.Phone, group.InviteCode); !errors.Is(err, domain.ErrCapacity) {
		t.Fatalf("expected ErrCapacity on full group, got %v", err)
	}
}

func TestJoinGroupParallelLastSlot(t *testing.T) {
	env := newTestEnv(t)
	admin := env.createUser(t, "0811111111")
	group := env.createGroup(t, admin, 100, 2)

	u1 := env.createUser(t, "0821111111")
	if _, err := env.groupSvc.JoinGroup(group.ID, u1.ID, u1.Name, u1.Phone, group.InviteCode); err != nil {
		t.Fatalf("join u1 failed: %v", err)
	}

	// Two users race for the single remaining seat
	u2 := env.createUser(t, "0822222222")
	u3 := env.createUser(t, "0823333333")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, u := range []*models.User{u2, u3} {
		wg.Add(1)
		go func(i int, userID uint, name, phone string) {
			defer wg.Done()
			_, errs[i] = env.groupSvc.JoinGroup(group.ID, userID, name, phone, group.InviteCode)
		}(i, u.ID, u.Name, u.Phone)
	}
	wg.Wait()

	var joined int
	for _, err := range errs {
		switch {
		case err == nil:
			joined++
		case errors.Is(err, domain.ErrCapacity), errors.Is(err, domain.ErrConcurrency):
		default:
			t.Fatalf("unexpected join error: %v", err)
		}
	}
	if joined != 1 {
		t.Fatalf("expected exactly 1 join to win the last seat, got %d", joined)
	}

	members, err := env.groupSvc.ListMembers(group.ID)
	if err != nil {
		t.Fatalf("list members failed: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(members))
	}
}

func TestJoinGroupTierCapRecheck(t *testing.T) {
	env := newTestEnv(t)
	admin := env.createUser(t, "0811111111")
	group := env.createGroup(t, admin, 100, 12)

	// A stored row whose limit exceeds its tier cap must still stop at the
	// cap. Force the mismatch directly; creation would refuse it.
	if err := env.db.Model(&models.Group{}).Where("id = ?", group.ID).
		Update("tier", domain.TierStarter).Error; err != nil {
		t.Fatalf("failed to downgrade tier: %v", err)
	}

	for i := 0; i < 10; i++ {
		user := env.createUser(t, fmt.Sprintf("083%07d", i))
		if _, err := env.groupSvc.JoinGroup(group.ID, user.ID, user.Name, user.Phone, group.InviteCode); err != nil {
			t.Fatalf("join %d failed: %v", i, err)
		}
	}

	// Seat 11 is within member_limit but over the starter cap of 10
	user := env.createUser(t, "0840000000")
	if _, err := env.groupSvc.JoinGroup(group.ID, user.ID, user.Name, user.Phone, group.InviteCode); !errors.Is(err, domain.ErrCapacity) {
		t.Fatalf("expected ErrCapacity over tier cap, got %v", err)
	}
}

func TestJoinGroupRequiresInviteCode(t *testing.T) {
	env := newTestEnv(t)
	admin := env.createUser(t, "0811111111")
	group := env.createGroup(t, admin, 100, 3)
	user := env.createUser(t, "0821111111")

	if _, err := env.groupSvc.JoinGroup(group.ID, user.ID, user.Name, user.Phone, "guessed-code"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden on wrong invite code, got %v", err)
	}
	if _, err := env.groupSvc.JoinGroup(group.ID, user.ID, user.Name, user.Phone, ""); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden on empty invite code, got %v", err)
	}
	if _, err := env.groupSvc.JoinGroup(group.ID, user.ID, user.Name, user.Phone, group.InviteCode); err != nil {
		t.Fatalf("join with correct code failed: %v", err)
	}
}

func TestInviteCodeAdminOnly(t *testing.T) {
	env := newTestEnv(t)
	admin := env.createUser(t, "0811111111")
	group := env.createGroup(t, admin, 100, 3)
	outsider := env.createUser(t, "0821111111")

	code, err := env.groupSvc.InviteCode(group.ID, admin.ID)
	if err != nil {
		t.Fatalf("admin invite code lookup failed: %v", err)
	}
	if code != group.InviteCode {
		t.Fatalf("expected code %s, got %s", group.InviteCode, code)
	}

	if _, err := env.groupSvc.InviteCode(group.ID, outsider.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for non-admin, got %v", err)
	}
}

func TestJoinCreatesPendingDepositTransaction(t *testing.T) {
	env := newTestEnv(t)
	admin := env.createUser(t, "0811111111")
	group := env.createGroup(t, admin, 50, 3)

	user := env.createUser(t, "0821111111")
	member, err := env.groupSvc.JoinGroup(group.ID, user.ID, user.Name, user.Phone, group.InviteCode)
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}

	tx, err := env.txRepo.GetDepositTransaction(member.ID)
	if err != nil {
		t.Fatalf("deposit transaction lookup failed: %v", err)
	}
	if tx == nil {
		t.Fatal("expected a pending security_deposit transaction")
	}
	if tx.Amount != member.DepositAmount {
		t.Errorf("expected amount %v, got %v", member.DepositAmount, tx.Amount)
	}
	if tx.ConfirmationStatus != domain.ConfirmPending {
		t.Errorf("expected pending, got %s", tx.ConfirmationStatus)
	}
	if ref := tx.MetadataMap()["reference"]; ref != "deposit:"+member.ID {
		t.Errorf("unexpected reference %v", ref)
	}
}

func TestRemoveMemberFreesPosition(t *testing.T) {
	env := newTestEnv(t)
	admin := env.createUser(t, "0811111111")
	group := env.createGroup(t, admin, 100, 3)

	u1 := env.createUser(t, "0821111111")
	u2 := env.createUser(t, "0822222222")
	m1, _ := env.groupSvc.JoinGroup(group.ID, u1.ID, u1.Name, u1.Phone, group.InviteCode)
	if _, err := env.groupSvc.JoinGroup(group.ID, u2.ID, u2.Name, u2.Phone, group.InviteCode); err != nil {
		t.Fatalf("join u2 failed: %v", err)
	}

	if err := env.groupSvc.RemoveMember(group.ID, m1.ID); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if got := env.reloadMember(t, m1.ID).Status; got != domain.MemberRemoved {
		t.Fatalf("expected removed, got %s", got)
	}

	// The freed position goes to the next joiner
	u3 := env.createUser(t, "0823333333")
	m3, err := env.groupSvc.JoinGroup(group.ID, u3.ID, u3.Name, u3.Phone, group.InviteCode)
	if err != nil {
		t.Fatalf("join u3 failed: %v", err)
	}
	if m3.RotationPosition != m1.RotationPosition {
		t.Errorf("expected freed position %d, got %d", m1.RotationPosition, m3.RotationPosition)
	}
}

func TestRemoveLockedInMemberRefused(t *testing.T) {
	env := newTestEnv(t)
	group, members := env.fullGroup(t, 100, 3)

	txs := env.openFirstRound(t, group.ID)
	env.settleRound(t, txs)
	if _, err := env.rotationSvc.TryAdvance(group.ID, futureDeadline()); err != nil {
		t.Fatalf("advance failed: %v", err)
	}

	// The round-one recipient is locked in now
	var recipient *string
	for _, m := range members {
		if env.reloadMember(t, m.ID).IsLockedIn {
			id := m.ID
			recipient = &id
			break
		}
	}
	if recipient == nil {
		t.Fatal("expected a locked-in member after advance")
	}

	if err := env.groupSvc.RemoveMember(group.ID, *recipient); !errors.Is(err, domain.ErrState) {
		t.Fatalf("expected ErrState removing locked-in member, got %v", err)
	}
}

func TestPendingConfirmations(t *testing.T) {
	env := newTestEnv(t)
	group, members := env.fullGroup(t, 100, 3)
	env.openFirstRound(t, group.ID)

	// Every non-recipient owes exactly one pending contribution
	groupRow := env.reloadGroup(t, group.ID)
	for _, m := range members {
		fresh := env.reloadMember(t, m.ID)
		pending, err := env.groupSvc.PendingConfirmations(fresh.UserID)
		if err != nil {
			t.Fatalf("pending confirmations failed: %v", err)
		}
		if fresh.RotationPosition == groupRow.RotationPosition {
			// recipient sees all incoming contributions
			if len(pending) != 2 {
				t.Errorf("recipient expected 2 pending, got %d", len(pending))
			}
		} else {
			if len(pending) != 1 {
				t.Errorf("sender expected 1 pending, got %d", len(pending))
			}
		}
	}
}

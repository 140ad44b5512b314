package services

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"circlepool/internal/adapters/persistence/models"
	"circlepool/internal/adapters/persistence/repositories"
	"circlepool/internal/core/domain"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// testEnv bundles the full service graph on an in-memory database
type testEnv struct {
	db              *gorm.DB
	groupRepo       *repositories.GroupRepository
	memberRepo      *repositories.MemberRepository
	txRepo          *repositories.TransactionRepository
	lockRepo        *repositories.LockRepository
	eventRepo       *repositories.EventRepository
	lockSvc         *LockService
	eventSvc        *EventService
	tierPolicy      *TierPolicy
	depositSvc      *DepositService
	groupSvc        *GroupService
	contributionSvc *ContributionService
	rotationSvc     *RotationService
	paymentSvc      *PaymentService
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	// One shared in-memory database per test, isolated by name
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared",
		strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := newTestDB(t)
	env := &testEnv{
		db:         db,
		groupRepo:  repositories.NewGroupRepository(db),
		memberRepo: repositories.NewMemberRepository(db),
		txRepo:     repositories.NewTransactionRepository(db),
		lockRepo:   repositories.NewLockRepository(db),
		eventRepo:  repositories.NewEventRepository(db),
	}
	env.lockSvc = NewLockService(env.lockRepo, 30*time.Second)
	env.eventSvc = NewEventService(env.eventRepo)
	env.tierPolicy = NewTierPolicy()
	env.depositSvc = NewDepositService(env.memberRepo, env.txRepo, env.lockSvc, env.eventSvc)
	env.groupSvc = NewGroupService(env.groupRepo, env.memberRepo, env.txRepo, env.lockSvc, env.depositSvc, env.tierPolicy)
	env.contributionSvc = NewContributionService(env.groupRepo, env.memberRepo, env.txRepo, env.lockSvc, env.eventSvc)
	env.rotationSvc = NewRotationService(env.groupRepo, env.memberRepo, env.txRepo, env.lockSvc, env.depositSvc, env.contributionSvc, env.eventSvc)
	env.paymentSvc = NewPaymentService(env.groupRepo, env.memberRepo, env.txRepo, env.lockSvc, env.depositSvc, env.tierPolicy)
	return env
}

func (e *testEnv) createUser(t *testing.T, phone string) *models.User {
	t.Helper()
	user := &models.User{Phone: phone, Name: "user " + phone, Password: "x", IsActive: true}
	if err := e.db.Create(user).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return user
}

// createGroup creates an active group with the given parameters
func (e *testEnv) createGroup(t *testing.T, admin *models.User, contribution float64, limit int) *models.Group {
	t.Helper()
	group, err := e.groupSvc.CreateGroup(admin.ID, CreateGroupInput{
		Name:               "test circle",
		ContributionAmount: contribution,
		Frequency:          domain.FrequencyWeekly,
		MemberLimit:        limit,
		Tier:               domain.TierEssential,
		DepositMultiplier:  1.0,
	})
	if err != nil {
		t.Fatalf("failed to create group: %v", err)
	}
	return group
}

// addActiveMember joins a user and settles their deposit so they are active
// and locked in for contributions
func (e *testEnv) addActiveMember(t *testing.T, group *models.Group, user *models.User) *models.Member {
	t.Helper()
	member, err := e.groupSvc.JoinGroup(group.ID, user.ID, user.Name, user.Phone, group.InviteCode)
	if err != nil {
		t.Fatalf("failed to join group: %v", err)
	}
	if err := e.paymentSvc.OnPaymentSettled("deposit:"+member.ID, member.DepositAmount, user.ID); err != nil {
		t.Fatalf("failed to settle deposit payment: %v", err)
	}
	return e.reloadMember(t, member.ID)
}

// fullGroup creates a group with n members, all active with locked deposits
func (e *testEnv) fullGroup(t *testing.T, contribution float64, n int) (*models.Group, []*models.Member) {
	t.Helper()
	admin := e.createUser(t, "0800000000")
	group := e.createGroup(t, admin, contribution, n)

	members := make([]*models.Member, 0, n)
	for i := 0; i < n; i++ {
		user := e.createUser(t, fmt.Sprintf("08%08d", i+1))
		members = append(members, e.addActiveMember(t, group, user))
	}
	return group, members
}

// reloadGroup fetches the group's current row
func (e *testEnv) reloadGroup(t *testing.T, id string) *models.Group {
	t.Helper()
	group, err := e.groupRepo.GetByID(id)
	if err != nil {
		t.Fatalf("failed to reload group: %v", err)
	}
	return group
}

// reloadMember fetches the member's current row
func (e *testEnv) reloadMember(t *testing.T, id string) *models.Member {
	t.Helper()
	member, err := e.memberRepo.GetByID(id)
	if err != nil {
		t.Fatalf("failed to reload member: %v", err)
	}
	return member
}

// openFirstRound drives the lazy round opening via an advance tick
func (e *testEnv) openFirstRound(t *testing.T, groupID string) []models.Transaction {
	t.Helper()
	result, err := e.rotationSvc.TryAdvance(groupID, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("failed to open first round: %v", err)
	}
	if result.Outcome != domain.OutcomeNotReady {
		t.Fatalf("expected not_ready on round open, got %s", result.Outcome)
	}
	group := e.reloadGroup(t, groupID)
	txs, err := e.txRepo.GetRoundContributions(groupID, group.RotationsCompleted+1)
	if err != nil {
		t.Fatalf("failed to load round contributions: %v", err)
	}
	return txs
}

// settleRound confirms every contribution in the current round on both sides
func (e *testEnv) settleRound(t *testing.T, txs []models.Transaction) {
	t.Helper()
	for _, tx := range txs {
		if _, err := e.contributionSvc.ConfirmSender(tx.ID, *tx.FromMemberID); err != nil {
			t.Fatalf("failed to confirm sender for %s: %v", tx.ID, err)
		}
		if _, err := e.contributionSvc.ConfirmRecipient(tx.ID, *tx.ToMemberID); err != nil {
			t.Fatalf("failed to confirm recipient for %s: %v", tx.ID, err)
		}
	}
}

func newHolder() string {
	return uuid.NewString()
}

// futureDeadline gives the current round plenty of time, so advances never
// take the default path by accident
func futureDeadline() time.Time {
	return time.Now().Add(time.Hour)
}

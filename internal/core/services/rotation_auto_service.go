package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"circlepool/internal/adapters/persistence/models"
	"circlepool/internal/adapters/persistence/repositories"
	"circlepool/internal/config"
	"circlepool/internal/core/domain"

	"github.com/robfig/cron/v3"
)

// RotationAutoService runs the background schedules: the rotation advance
// tick, the expired-lock sweep and refresh-token cleanup. The tick is
// idempotent per group (TryAdvance with outcome not_ready does nothing), so
// overlapping runs and restarts are harmless.
type RotationAutoService struct {
	groupRepo        *repositories.GroupRepository
	refreshTokenRepo repositories.RefreshTokenRepository
	rotationSvc      *RotationService
	lockSvc          *LockService
	cfg              *config.Config
	cron             *cron.Cron
}

// NewRotationAutoService creates a new auto service
func NewRotationAutoService(
	groupRepo *repositories.GroupRepository,
	refreshTokenRepo repositories.RefreshTokenRepository,
	rotationSvc *RotationService,
	lockSvc *LockService,
	cfg *config.Config,
) *RotationAutoService {
	return &RotationAutoService{
		groupRepo:        groupRepo,
		refreshTokenRepo: refreshTokenRepo,
		rotationSvc:      rotationSvc,
		lockSvc:          lockSvc,
		cfg:              cfg,
		cron:             cron.New(),
	}
}

// Start registers and launches all schedules
func (s *RotationAutoService) Start() error {
	tickSpec := fmt.Sprintf("@every %s", s.cfg.Rotation.TickInterval)
	if _, err := s.cron.AddFunc(tickSpec, s.advanceTick); err != nil {
		return err
	}

	sweepSpec := fmt.Sprintf("@every %s", s.cfg.Lock.SweepInterval)
	if _, err := s.cron.AddFunc(sweepSpec, s.sweepLocks); err != nil {
		return err
	}

	if _, err := s.cron.AddFunc("@daily", s.cleanupRefreshTokens); err != nil {
		return err
	}

	s.cron.Start()
	log.Println("🚀 RotationAutoService started")
	return nil
}

// Stop halts the schedules and waits for running jobs to finish
func (s *RotationAutoService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Println("🛑 RotationAutoService stopped")
}

// advanceTick attempts one advance for every active group
func (s *RotationAutoService) advanceTick() {
	groups, err := s.groupRepo.GetActiveGroups()
	if err != nil {
		log.Printf("❌ Advance tick query error: %v", err)
		return
	}

	for i := range groups {
		group := &groups[i]
		result, err := s.rotationSvc.TryAdvance(group.ID, s.RoundDeadline(group))
		if err != nil {
			// Lock contention resolves itself on the next tick.
			log.Printf("⚠️ Advance tick for group %s: %v", group.ID, err)
			continue
		}
		if result.Outcome != domain.OutcomeNotReady {
			log.Printf("⏱️ Advance tick: group %s outcome %s (round %d)",
				group.ID, result.Outcome, result.Round)
		}
	}
}

// RoundDeadline derives the current round's deadline from the group's
// frequency, or from the configured override when set. A round that has not
// opened yet gets a future deadline so the tick opens it instead of
// defaulting anyone.
func (s *RotationAutoService) RoundDeadline(group *models.Group) time.Time {
	window := group.Frequency.Duration()
	if s.cfg.Rotation.DeadlineOverride > 0 {
		window = s.cfg.Rotation.DeadlineOverride
	}
	if group.RoundOpenedAt == nil {
		return time.Now().Add(window)
	}
	return group.RoundOpenedAt.Add(window)
}

func (s *RotationAutoService) sweepLocks() {
	n, err := s.lockSvc.SweepExpired()
	if err != nil {
		log.Printf("❌ Lock sweep error: %v", err)
		return
	}
	if n > 0 {
		log.Printf("🧹 Lock sweep removed %d expired locks", n)
	}
}

func (s *RotationAutoService) cleanupRefreshTokens() {
	if err := s.refreshTokenRepo.DeleteExpired(context.Background()); err != nil {
		log.Printf("❌ Refresh token cleanup error: %v", err)
	}
}

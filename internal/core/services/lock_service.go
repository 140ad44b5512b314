package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"circlepool/internal/adapters/persistence/models"
	"circlepool/internal/adapters/persistence/repositories"
	"circlepool/internal/core/domain"
	"circlepool/internal/pkg/backoff"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LockService implements TTL-bound mutual exclusion over arbitrary resource
// identifiers. Acquisition is a single atomic insert guarded by the
// (lock_type, resource_id) uniqueness invariant; expired rows are logically
// absent and get stolen on the next acquire. There is no in-process mutex -
// callers may run on different machines, the lock table is the only shared
// state.
type LockService struct {
	lockRepo *repositories.LockRepository
	retry    *backoff.Policy
	ttl      time.Duration
}

// NewLockService creates a new lock service
func NewLockService(lockRepo *repositories.LockRepository, ttl time.Duration) *LockService {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &LockService{
		lockRepo: lockRepo,
		retry:    backoff.Default(),
		ttl:      ttl,
	}
}

// LockStatus describes the current state of a lock
type LockStatus struct {
	Locked       bool          `json:"locked"`
	Holder       string        `json:"holder,omitempty"`
	RemainingTTL time.Duration `json:"remaining_ttl,omitempty"`
}

// Acquire attempts to take the lock once. Returns false when another holder
// has a non-expired row for the same (lock_type, resource_id).
func (s *LockService) Acquire(lockType domain.LockType, scope domain.LockScope, resourceID, holderID string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = s.ttl
	}
	now := time.Now()

	// Steal-on-expiry: an expired row is logically absent, remove it so the
	// insert below can succeed. Losing the race here just means the insert
	// hits the unique index and we report denied.
	if err := s.lockRepo.DeleteExpired(lockType, resourceID, now); err != nil {
		return false, err
	}

	lock := &models.OperationLock{
		ID:         uuid.NewString(),
		LockType:   lockType,
		Scope:      scope,
		ResourceID: resourceID,
		HolderID:   holderID,
		ExpiresAt:  now.Add(ttl),
	}

	err := s.lockRepo.Insert(lock)
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Release releases a lock held by holderID. Returns ErrNotHolder when the
// lock is absent or held by someone else.
func (s *LockService) Release(lockType domain.LockType, resourceID, holderID string) error {
	deleted, err := s.lockRepo.DeleteByHolder(lockType, resourceID, holderID)
	if err != nil {
		return err
	}
	if deleted == 0 {
		return fmt.Errorf("%w: %s:%s", domain.ErrNotHolder, lockType, resourceID)
	}
	return nil
}

// Status reports whether a non-expired lock exists for the key
func (s *LockService) Status(lockType domain.LockType, resourceID string) (*LockStatus, error) {
	lock, err := s.lockRepo.Get(lockType, resourceID)
	if err != nil {
		return nil, err
	}
	if lock == nil || lock.IsExpired() {
		return &LockStatus{Locked: false}, nil
	}
	return &LockStatus{
		Locked:       true,
		Holder:       lock.HolderID,
		RemainingTTL: time.Until(lock.ExpiresAt),
	}, nil
}

// ForceReleaseAll releases every lock held by a holder (crash recovery)
func (s *LockService) ForceReleaseAll(holderID string) (int64, error) {
	released, err := s.lockRepo.DeleteAllByHolder(holderID)
	if err != nil {
		return 0, err
	}
	if released > 0 {
		log.Printf("🔓 Force released %d locks held by %s", released, holderID)
	}
	return released, nil
}

// SweepExpired removes expired lock rows. Housekeeping only - correctness
// never depends on the sweep since Acquire treats expired rows as absent.
func (s *LockService) SweepExpired() (int64, error) {
	return s.lockRepo.DeleteAllExpired(time.Now())
}

// WithLock runs fn while holding the lock, retrying acquisition with bounded
// exponential backoff. An exhausted retry budget surfaces as ErrConcurrency,
// never as an indefinite block.
func (s *LockService) WithLock(lockType domain.LockType, scope domain.LockScope, resourceID string, fn func() error) error {
	holderID := uuid.NewString()

	acquireErr := s.retry.Retry(func() (bool, error) {
		granted, err := s.Acquire(lockType, scope, resourceID, holderID, s.ttl)
		if err != nil {
			return true, err
		}
		if !granted {
			return false, domain.ErrLockDenied
		}
		return true, nil
	})
	if acquireErr != nil {
		if errors.Is(acquireErr, domain.ErrLockDenied) {
			return fmt.Errorf("%w: could not acquire %s:%s", domain.ErrConcurrency, lockType, resourceID)
		}
		return acquireErr
	}

	defer func() {
		if err := s.Release(lockType, resourceID, holderID); err != nil {
			// Expired-and-stolen is the only way this happens; the TTL has
			// already made the lock available again.
			log.Printf("⚠️ Release failed for %s:%s: %v", lockType, resourceID, err)
		}
	}()

	return fn()
}

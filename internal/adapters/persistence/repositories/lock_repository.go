package repositories

import (
	"time"

	"circlepool/internal/adapters/persistence/models"
	"circlepool/internal/core/domain"

	"gorm.io/gorm"
)

// LockRepository handles operation lock rows. The (lock_type, resource_id)
// unique index makes Insert the atomic compare-and-insert primitive every
// cross-process invariant rests on.
type LockRepository struct {
	db *gorm.DB
}

// NewLockRepository creates a new lock repository
func NewLockRepository(db *gorm.DB) *LockRepository {
	return &LockRepository{db: db}
}

// Insert inserts a lock row. Returns gorm.ErrDuplicatedKey when a row for the
// same (lock_type, resource_id) already exists.
func (r *LockRepository) Insert(lock *models.OperationLock) error {
	return r.db.Create(lock).Error
}

// DeleteExpired removes an expired row for the given key so a fresh insert can
// steal it. Rows whose expiry is still in the future are left alone.
func (r *LockRepository) DeleteExpired(lockType domain.LockType, resourceID string, now time.Time) error {
	return r.db.
		Where("lock_type = ? AND resource_id = ? AND expires_at <= ?", lockType, resourceID, now).
		Delete(&models.OperationLock{}).Error
}

// DeleteByHolder removes a lock only if held by the given holder.
// Returns the number of rows removed (0 means not holder).
func (r *LockRepository) DeleteByHolder(lockType domain.LockType, resourceID, holderID string) (int64, error) {
	res := r.db.
		Where("lock_type = ? AND resource_id = ? AND holder_id = ?", lockType, resourceID, holderID).
		Delete(&models.OperationLock{})
	return res.RowsAffected, res.Error
}

// DeleteAllByHolder removes every lock held by a holder (crash recovery)
func (r *LockRepository) DeleteAllByHolder(holderID string) (int64, error) {
	res := r.db.Where("holder_id = ?", holderID).Delete(&models.OperationLock{})
	return res.RowsAffected, res.Error
}

// DeleteAllExpired removes every expired lock row (housekeeping sweep)
func (r *LockRepository) DeleteAllExpired(now time.Time) (int64, error) {
	res := r.db.Where("expires_at <= ?", now).Delete(&models.OperationLock{})
	return res.RowsAffected, res.Error
}

// Get returns the current lock row for a key, nil if absent
func (r *LockRepository) Get(lockType domain.LockType, resourceID string) (*models.OperationLock, error) {
	var lock models.OperationLock
	err := r.db.
		Where("lock_type = ? AND resource_id = ?", lockType, resourceID).
		First(&lock).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &lock, nil
}
